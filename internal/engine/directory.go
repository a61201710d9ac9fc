package engine

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/aria-ai/chat-engine/internal/api"
	"github.com/aria-ai/chat-engine/internal/model"
	"github.com/aria-ai/chat-engine/pkg/logger"
)

// ErrMutationInFlight is returned when a directory mutation is
// requested while another one is still pending. Mutations are
// rejected, never queued.
var ErrMutationInFlight = errors.New("directory mutation already in flight")

// Directory mirrors the backend's conversation list. After any
// mutation it re-fetches the first page rather than patching local
// state, trading a round-trip for consistency.
type Directory struct {
	client   *api.Client
	store    KV
	pageSize int
	logger   *logger.Logger

	mu            sync.Mutex
	mutating      bool
	loading       bool
	conversations []model.Conversation
	hasMore       bool
	selected      string
}

// NewDirectory creates a directory manager. The selected conversation
// id is restored from the store when present.
func NewDirectory(client *api.Client, store KV, pageSize int, log *logger.Logger) *Directory {
	if pageSize <= 0 {
		pageSize = 20
	}
	d := &Directory{
		client:   client,
		store:    store,
		pageSize: pageSize,
		logger:   log,
		hasMore:  true,
	}
	if store != nil {
		if id, ok := store.Get(ActiveConversationKey); ok {
			d.selected = id
		}
	}
	return d
}

// Refresh replaces the mirror with the first page. A call while a
// list load is pending is a no-op.
func (d *Directory) Refresh(ctx context.Context) error {
	d.mu.Lock()
	if d.loading {
		d.mu.Unlock()
		return nil
	}
	d.loading = true
	d.mu.Unlock()

	sessions, err := d.client.ListSessions(ctx, "", d.pageSize)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.loading = false
	if err != nil {
		return err
	}
	d.conversations = sessions
	d.hasMore = len(sessions) == d.pageSize
	return nil
}

// LoadMore appends the page after the last loaded conversation.
// No-op when a load is pending or the list is exhausted.
func (d *Directory) LoadMore(ctx context.Context) error {
	d.mu.Lock()
	if d.loading || !d.hasMore || len(d.conversations) == 0 {
		d.mu.Unlock()
		return nil
	}
	d.loading = true
	cursor := d.conversations[len(d.conversations)-1].ConversationID
	d.mu.Unlock()

	sessions, err := d.client.ListSessions(ctx, cursor, d.pageSize)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.loading = false
	if err != nil {
		return err
	}
	d.conversations = append(d.conversations, sessions...)
	d.hasMore = len(sessions) == d.pageSize
	return nil
}

// Create makes a new conversation and returns its id. The mirror is
// refreshed afterwards. Selection is left to the caller.
func (d *Directory) Create(ctx context.Context, title string) (string, error) {
	if err := d.beginMutation(); err != nil {
		return "", err
	}
	defer d.endMutation()

	id, err := d.client.CreateSession(ctx, title)
	if err != nil {
		return "", err
	}
	d.logger.Info("conversation created", zap.String("conversation_id", id))

	d.refreshAfterMutation(ctx)
	return id, nil
}

// Delete removes one conversation. Deleting the selected conversation
// clears the selection; no replacement is auto-selected.
func (d *Directory) Delete(ctx context.Context, conversationID string, clearChatMemory bool) error {
	if err := d.beginMutation(); err != nil {
		return err
	}
	defer d.endMutation()

	if _, err := d.client.DeleteSession(ctx, conversationID, clearChatMemory); err != nil {
		return err
	}

	d.mu.Lock()
	if d.selected == conversationID {
		d.clearSelectionLocked()
	}
	d.mu.Unlock()

	d.refreshAfterMutation(ctx)
	return nil
}

// BatchDelete removes several conversations and returns how many the
// backend deleted.
func (d *Directory) BatchDelete(ctx context.Context, conversationIDs []string, clearChatMemory bool) (int, error) {
	if err := d.beginMutation(); err != nil {
		return 0, err
	}
	defer d.endMutation()

	count, err := d.client.BatchDeleteSessions(ctx, conversationIDs, clearChatMemory)
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	for _, id := range conversationIDs {
		if d.selected == id {
			d.clearSelectionLocked()
			break
		}
	}
	d.mu.Unlock()

	d.refreshAfterMutation(ctx)
	return count, nil
}

// Select marks a conversation as active and persists the choice.
func (d *Directory) Select(conversationID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.selected = conversationID
	if d.store != nil {
		if err := d.store.Set(ActiveConversationKey, conversationID); err != nil {
			d.logger.Warn("failed to persist active conversation", zap.Error(err))
		}
	}
}

// Selected returns the active conversation id, empty when none.
func (d *Directory) Selected() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.selected
}

// Conversations returns the local mirror.
func (d *Directory) Conversations() []model.Conversation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]model.Conversation(nil), d.conversations...)
}

// HasMore reports whether another directory page is likely available.
func (d *Directory) HasMore() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hasMore
}

func (d *Directory) beginMutation() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mutating {
		return ErrMutationInFlight
	}
	d.mutating = true
	return nil
}

func (d *Directory) endMutation() {
	d.mu.Lock()
	d.mutating = false
	d.mu.Unlock()
}

// refreshAfterMutation re-fetches the first page; a failed refresh
// only logs, the mutation itself already succeeded.
func (d *Directory) refreshAfterMutation(ctx context.Context) {
	sessions, err := d.client.ListSessions(ctx, "", d.pageSize)
	if err != nil {
		d.logger.Warn("directory refresh failed", zap.Error(err))
		return
	}
	d.mu.Lock()
	d.conversations = sessions
	d.hasMore = len(sessions) == d.pageSize
	d.mu.Unlock()
}

// clearSelectionLocked drops the active conversation and its
// persisted id. Caller holds the lock.
func (d *Directory) clearSelectionLocked() {
	d.selected = ""
	if d.store != nil {
		if err := d.store.Delete(ActiveConversationKey); err != nil {
			d.logger.Warn("failed to clear active conversation", zap.Error(err))
		}
	}
}
