// Package handler implements the dev backend's HTTP surface: the
// session REST endpoints wrapped in the response envelope, and the
// chat reply stream.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/aria-ai/chat-engine/internal/middleware"
	"github.com/aria-ai/chat-engine/internal/service"
	"github.com/aria-ai/chat-engine/pkg/logger"
)

// Envelope codes for business failures.
const (
	codeBadRequest = 400
	codeNotFound   = 404
	codeInternal   = 500
)

const defaultPageSize = 20

// SessionHandler handles the session REST endpoints.
type SessionHandler struct {
	store  *service.ConversationStore
	logger *logger.Logger
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(store *service.ConversationStore, log *logger.Logger) *SessionHandler {
	return &SessionHandler{store: store, logger: log}
}

// Create handles POST {prefix}/session. The body is the bare title,
// JSON-encoded; the envelope data is the new conversation id.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var title string
	if err := json.NewDecoder(r.Body).Decode(&title); err != nil {
		writeFailure(w, codeBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateTitle(title); err != nil {
		writeFailure(w, codeBadRequest, err.Error())
		return
	}

	id, err := h.store.Create(r.Context(), title)
	if err != nil {
		h.logger.Error("create conversation failed", zap.Error(err))
		writeFailure(w, codeInternal, "failed to create conversation")
		return
	}
	writeData(w, id)
}

// List handles GET {prefix}/session/list with cursor pagination.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	cursor := r.URL.Query().Get("lastConversationId")
	pageSize := parsePageSize(r.URL.Query().Get("pageSize"))

	writeData(w, h.store.List(cursor, pageSize))
}

// Delete handles DELETE {prefix}/session/{conversationId}. The
// envelope data reports whether the conversation existed.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationId")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeFailure(w, codeBadRequest, err.Error())
		return
	}
	clearMemory := r.URL.Query().Get("clearChatMemory") == "true"

	writeData(w, h.store.Delete(r.Context(), conversationID, clearMemory))
}

// BatchDelete handles DELETE {prefix}/session/batch-delete. The body
// is a JSON array of conversation ids; the envelope data is how many
// were removed.
func (h *SessionHandler) BatchDelete(w http.ResponseWriter, r *http.Request) {
	var ids []string
	if err := json.NewDecoder(r.Body).Decode(&ids); err != nil {
		writeFailure(w, codeBadRequest, "invalid request body")
		return
	}
	clearMemory := r.URL.Query().Get("clearChatMemory") == "true"

	writeData(w, h.store.BatchDelete(r.Context(), ids, clearMemory))
}

// History handles GET {prefix}/session/history/{conversationId}. The
// page is newest first; lastMessageTimeStamp is the backward cursor.
func (h *SessionHandler) History(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationId")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeFailure(w, codeBadRequest, err.Error())
		return
	}
	cursor := r.URL.Query().Get("lastMessageTimeStamp")
	pageSize := parsePageSize(r.URL.Query().Get("pageSize"))

	writeData(w, h.store.History(conversationID, cursor, pageSize))
}

func parsePageSize(raw string) int {
	if raw == "" {
		return defaultPageSize
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 100 {
		return defaultPageSize
	}
	return n
}
