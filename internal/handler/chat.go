package handler

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/aria-ai/chat-engine/internal/middleware"
	"github.com/aria-ai/chat-engine/internal/service"
	"github.com/aria-ai/chat-engine/pkg/logger"
	"github.com/aria-ai/chat-engine/pkg/metrics"
)

// ChatHandler streams generated replies over the data-line protocol.
type ChatHandler struct {
	chat   *service.ChatService
	logger *logger.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(chat *service.ChatService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, logger: log}
}

// Stream handles GET {prefix}/ai/chat?prompt=...&conversationId=...
// Each reply delta goes out as one "data:" line followed by a blank
// line, so both raw body readers and EventSource clients can parse
// the stream.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	prompt := r.URL.Query().Get("prompt")
	conversationID := r.URL.Query().Get("conversationId")

	if err := middleware.ValidatePrompt(prompt); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	metrics.StreamConnectionsActive.Inc()
	defer metrics.StreamConnectionsActive.Dec()

	err := h.chat.Chat(ctx, conversationID, prompt, func(delta string) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		return writeFrames(w, flusher, delta)
	})
	if err != nil {
		// Headers are already out; all we can do is drop the
		// connection and let the client treat it as terminal.
		h.logger.Warn("chat stream ended with error",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}
}

// writeFrames emits one delta. A newline inside a delta becomes a
// frame boundary; the line protocol has no escape for it.
func writeFrames(w http.ResponseWriter, flusher http.Flusher, delta string) error {
	for _, line := range strings.Split(delta, "\n") {
		if line == "" {
			continue
		}
		if _, err := fmt.Fprintf(w, "data:%s\n\n", line); err != nil {
			return err
		}
	}
	flusher.Flush()
	return nil
}
