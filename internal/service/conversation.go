// Package service holds the dev backend's business logic: an
// in-memory conversation store and the chat orchestrator that streams
// generated replies into it.
package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aria-ai/chat-engine/internal/model"
	natsclient "github.com/aria-ai/chat-engine/internal/nats"
	"github.com/aria-ai/chat-engine/pkg/logger"
)

// ErrConversationNotFound is returned for operations on unknown or
// deleted conversations.
var ErrConversationNotFound = errors.New("conversation not found")

// storedMessage is one message as the backend keeps it.
type storedMessage struct {
	Role      string
	Content   string
	Timestamp time.Time
}

// conversationRecord is the store's internal conversation state.
type conversationRecord struct {
	Conversation model.Conversation
	Messages     []storedMessage // oldest first
}

// ConversationStore is the in-memory backing store for the dev
// backend. It exists for local development, not durability; state is
// gone on restart.
type ConversationStore struct {
	publisher *natsclient.Publisher
	logger    *logger.Logger

	mu            sync.RWMutex
	conversations map[string]*conversationRecord
}

// NewConversationStore creates an empty store. publisher may be nil.
func NewConversationStore(publisher *natsclient.Publisher, log *logger.Logger) *ConversationStore {
	return &ConversationStore{
		publisher:     publisher,
		logger:        log,
		conversations: make(map[string]*conversationRecord),
	}
}

// Create makes a conversation and returns its id.
func (s *ConversationStore) Create(ctx context.Context, title string) (string, error) {
	now := time.Now().UTC()
	conv := model.Conversation{
		ConversationID: uuid.Must(uuid.NewV7()).String(),
		Title:          title,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	s.mu.Lock()
	s.conversations[conv.ConversationID] = &conversationRecord{Conversation: conv}
	s.mu.Unlock()

	s.logger.Info("conversation created",
		zap.String("conversation_id", conv.ConversationID),
		zap.String("title", title),
	)
	s.publisher.Publish(ctx, natsclient.Event{
		Kind:           natsclient.EventConversationCreated,
		ConversationID: conv.ConversationID,
		Timestamp:      now,
	})
	return conv.ConversationID, nil
}

// List returns one page of conversations, most recently updated
// first. lastConversationID is the cursor; empty means the first
// page.
func (s *ConversationStore) List(lastConversationID string, pageSize int) []model.Conversation {
	s.mu.RLock()
	all := make([]model.Conversation, 0, len(s.conversations))
	for _, rec := range s.conversations {
		all = append(all, rec.Conversation)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].UpdatedAt.After(all[j].UpdatedAt)
		}
		return all[i].ConversationID > all[j].ConversationID
	})

	start := 0
	if lastConversationID != "" {
		for i, c := range all {
			if c.ConversationID == lastConversationID {
				start = i + 1
				break
			}
		}
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

// Delete removes a conversation. clearChatMemory also drops its
// transcript; without it the messages are kept invisible, matching
// how a real memory store detaches rather than erases.
func (s *ConversationStore) Delete(ctx context.Context, conversationID string, clearChatMemory bool) bool {
	s.mu.Lock()
	rec, exists := s.conversations[conversationID]
	if exists {
		if clearChatMemory {
			rec.Messages = nil
		}
		delete(s.conversations, conversationID)
	}
	s.mu.Unlock()

	if !exists {
		return false
	}
	s.publisher.Publish(ctx, natsclient.Event{
		Kind:           natsclient.EventConversationDeleted,
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC(),
	})
	return true
}

// BatchDelete removes several conversations and returns how many
// existed.
func (s *ConversationStore) BatchDelete(ctx context.Context, conversationIDs []string, clearChatMemory bool) int {
	count := 0
	for _, id := range conversationIDs {
		if s.Delete(ctx, id, clearChatMemory) {
			count++
		}
	}
	return count
}

// History returns one page of a conversation's messages, newest
// first. lastTimestamp is the cursor; only strictly older messages
// are returned. An unknown conversation yields an empty page.
func (s *ConversationStore) History(conversationID, lastTimestamp string, pageSize int) []model.HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.conversations[conversationID]
	if !exists {
		return nil
	}

	var cutoff time.Time
	hasCutoff := false
	if lastTimestamp != "" {
		if t, err := time.Parse(time.RFC3339, lastTimestamp); err == nil {
			cutoff = t
			hasCutoff = true
		}
	}

	entries := make([]model.HistoryEntry, 0, pageSize)
	for i := len(rec.Messages) - 1; i >= 0 && len(entries) < pageSize; i-- {
		m := rec.Messages[i]
		if hasCutoff && !m.Timestamp.Before(cutoff) {
			continue
		}
		entries = append(entries, model.HistoryEntry{
			ConversationID: conversationID,
			Content:        m.Content,
			Type:           strings.ToUpper(m.Role),
			Timestamp:      m.Timestamp.Format(time.RFC3339Nano),
		})
	}
	return entries
}

// Append stores one message and bumps the conversation's freshness.
func (s *ConversationStore) Append(ctx context.Context, conversationID, role, content string) error {
	now := time.Now().UTC()

	s.mu.Lock()
	rec, exists := s.conversations[conversationID]
	if !exists {
		s.mu.Unlock()
		return ErrConversationNotFound
	}
	// Timestamps are history cursors, so they must be strictly
	// increasing within a conversation.
	if n := len(rec.Messages); n > 0 && !now.After(rec.Messages[n-1].Timestamp) {
		now = rec.Messages[n-1].Timestamp.Add(time.Microsecond)
	}
	rec.Messages = append(rec.Messages, storedMessage{Role: role, Content: content, Timestamp: now})
	rec.Conversation.UpdatedAt = now
	rec.Conversation.LastMessage = content
	s.mu.Unlock()

	s.publisher.Publish(ctx, natsclient.Event{
		Kind:           natsclient.EventMessageStored,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Timestamp:      now,
	})
	return nil
}

// turns returns the full transcript oldest first, for generator
// context.
func (s *ConversationStore) turns(conversationID string) []storedMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.conversations[conversationID]
	if !exists {
		return nil
	}
	return append([]storedMessage(nil), rec.Messages...)
}

// Exists reports whether a conversation is present.
func (s *ConversationStore) Exists(conversationID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.conversations[conversationID]
	return ok
}
