package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/aria-ai/chat-engine/pkg/logger"
)

const (
	// StreamName is the JetStream stream holding chat activity.
	StreamName = "CHAT_EVENTS"

	// SubjectPrefix roots every chat subject.
	SubjectPrefix = "chat"
)

// Event kinds published to the stream.
const (
	EventMessageStored       = "message.stored"
	EventConversationCreated = "conversation.created"
	EventConversationDeleted = "conversation.deleted"
)

// Event is the wire shape of one published chat event.
type Event struct {
	Kind           string    `json:"kind"`
	ConversationID string    `json:"conversationId"`
	Role           string    `json:"role,omitempty"`
	Content        string    `json:"content,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Publisher writes chat events to JetStream. A nil Publisher is valid
// and drops everything, so callers need no NATS guard.
type Publisher struct {
	client *Client
	logger *logger.Logger
}

// NewPublisher creates a publisher over an established client.
func NewPublisher(client *Client, log *logger.Logger) *Publisher {
	return &Publisher{client: client, logger: log}
}

// EnsureStream creates the chat stream when it does not exist yet.
func (p *Publisher) EnsureStream(ctx context.Context) error {
	if p == nil {
		return nil
	}
	js := p.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Chat conversation activity",
	})
	if err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	return nil
}

// Subject returns the subject for an event kind in a conversation.
func Subject(conversationID, kind string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, conversationID, kind)
}

// Publish writes one event. Failures are logged, not returned; event
// delivery is best effort and must never fail a chat request.
func (p *Publisher) Publish(ctx context.Context, event Event) {
	if p == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("marshal chat event", zap.Error(err))
		return
	}

	if _, err := p.client.JetStream().Publish(ctx, Subject(event.ConversationID, event.Kind), data); err != nil {
		p.logger.Warn("publish chat event failed",
			zap.String("kind", event.Kind),
			zap.String("conversation_id", event.ConversationID),
			zap.Error(err),
		)
	}
}
