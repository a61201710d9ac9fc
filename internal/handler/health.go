package handler

import (
	"encoding/json"
	"net/http"

	natsclient "github.com/aria-ai/chat-engine/internal/nats"
)

// HealthHandler handles health check endpoints. These sit outside the
// envelope surface; probes want plain JSON and real status codes.
type HealthHandler struct {
	natsClient *natsclient.Client
}

// NewHealthHandler creates a health handler. natsClient may be nil
// when event publishing is disabled.
func NewHealthHandler(natsClient *natsclient.Client) *HealthHandler {
	return &HealthHandler{natsClient: natsClient}
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writePlain(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready handles GET /ready. Without NATS configured the server is
// ready as soon as it serves.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.natsClient != nil && !h.natsClient.IsConnected() {
		writePlain(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "nats not connected",
		})
		return
	}
	writePlain(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writePlain(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
