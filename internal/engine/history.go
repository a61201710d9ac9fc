package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aria-ai/chat-engine/internal/api"
	"github.com/aria-ai/chat-engine/internal/model"
	"github.com/aria-ai/chat-engine/pkg/logger"
)

// Paginator backfills a conversation's past messages backward from a
// timestamp cursor. Accumulation is older-first: each LoadOlder page
// is prepended, so Messages always reads chronologically.
type Paginator struct {
	client   *api.Client
	pageSize int
	logger   *logger.Logger

	mu             sync.Mutex
	inFlight       bool
	conversationID string
	messages       []model.Message
	oldestCursor   string
	hasMore        bool
}

// NewPaginator creates a paginator with a fixed page size.
func NewPaginator(client *api.Client, pageSize int, log *logger.Logger) *Paginator {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Paginator{client: client, pageSize: pageSize, logger: log}
}

// Load resets the paginator to a conversation and fetches the newest
// page. A call while another load is pending is a no-op.
func (p *Paginator) Load(ctx context.Context, conversationID string) error {
	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		return nil
	}
	p.inFlight = true
	p.conversationID = conversationID
	p.messages = nil
	p.oldestCursor = ""
	p.hasMore = true
	p.mu.Unlock()

	return p.fetch(ctx, conversationID, "")
}

// LoadOlder fetches the page before the oldest loaded message. No-op
// when a load is pending, nothing is loaded yet, or the history is
// exhausted.
func (p *Paginator) LoadOlder(ctx context.Context) error {
	p.mu.Lock()
	if p.inFlight || !p.hasMore || p.oldestCursor == "" {
		p.mu.Unlock()
		return nil
	}
	p.inFlight = true
	conversationID := p.conversationID
	cursor := p.oldestCursor
	p.mu.Unlock()

	return p.fetch(ctx, conversationID, cursor)
}

// fetch performs one history call and folds the page in, unless the
// paginator moved to another conversation meanwhile.
func (p *Paginator) fetch(ctx context.Context, conversationID, cursor string) error {
	entries, err := p.client.ChatHistory(ctx, conversationID, cursor, p.pageSize)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight = false

	if p.conversationID != conversationID {
		// Stale response for a conversation we left.
		return nil
	}
	if err != nil {
		p.logger.Warn("history fetch failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return err
	}

	// A full page suggests more history behind it. Known
	// imprecision: a final page that is exactly full costs one
	// extra, empty fetch.
	p.hasMore = len(entries) == p.pageSize

	if len(entries) > 0 {
		// Backend pages are newest-first; the cursor for the next
		// page is this page's oldest entry.
		p.oldestCursor = entries[len(entries)-1].Timestamp
		p.messages = append(mapHistoryEntries(entries), p.messages...)
	}
	return nil
}

// Messages returns the loaded history, oldest first.
func (p *Paginator) Messages() []model.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Message(nil), p.messages...)
}

// HasMore reports whether another page is likely available.
func (p *Paginator) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

// mapHistoryEntries converts one newest-first page of raw entries to
// oldest-first messages with synthesized local IDs.
func mapHistoryEntries(entries []model.HistoryEntry) []model.Message {
	msgs := make([]model.Message, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		ts, err := time.Parse(time.RFC3339, e.Timestamp)
		if err != nil {
			ts = time.Time{}
		}
		msgs = append(msgs, model.Message{
			ID:             historyMessageID(e.Timestamp, e.Type),
			Role:           model.RoleFromHistoryType(e.Type),
			Content:        e.Content,
			Timestamp:      ts,
			ConversationID: e.ConversationID,
		})
	}
	return msgs
}
