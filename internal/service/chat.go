package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/aria-ai/chat-engine/internal/llm"
	"github.com/aria-ai/chat-engine/pkg/logger"
	"github.com/aria-ai/chat-engine/pkg/metrics"
)

// ChatService runs one chat exchange: store the prompt, stream the
// generated reply out through emit, store the finished reply.
type ChatService struct {
	store     *ConversationStore
	generator llm.Generator
	logger    *logger.Logger
}

// NewChatService creates a chat service over a store and a generator.
func NewChatService(store *ConversationStore, generator llm.Generator, log *logger.Logger) *ChatService {
	return &ChatService{store: store, generator: generator, logger: log}
}

// Chat handles one prompt. Deltas reach emit as they are generated;
// the full reply is persisted only after generation finishes, so an
// aborted stream leaves no partial assistant message behind.
func (s *ChatService) Chat(ctx context.Context, conversationID, prompt string, emit llm.EmitFunc) error {
	if !s.store.Exists(conversationID) {
		return ErrConversationNotFound
	}

	turns := make([]llm.Turn, 0)
	for _, m := range s.store.turns(conversationID) {
		turns = append(turns, llm.Turn{Role: m.Role, Content: m.Content})
	}

	if err := s.store.Append(ctx, conversationID, "user", prompt); err != nil {
		return err
	}
	metrics.MessagesTotal.WithLabelValues("user").Inc()

	reply, err := s.generator.Stream(ctx, turns, prompt, emit)
	if err != nil {
		s.logger.Warn("generation failed",
			zap.String("conversation_id", conversationID),
			zap.String("provider", s.generator.Name()),
			zap.Error(err),
		)
		return fmt.Errorf("generate reply: %w", err)
	}

	if err := s.store.Append(ctx, conversationID, "assistant", reply); err != nil {
		return err
	}
	metrics.MessagesTotal.WithLabelValues("assistant").Inc()
	return nil
}
