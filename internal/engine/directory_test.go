package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aria-ai/chat-engine/internal/api"
	"github.com/aria-ai/chat-engine/internal/model"
	"github.com/aria-ai/chat-engine/pkg/logger"
)

// directoryBackend is an in-memory session surface for directory
// tests. Conversations list newest-first the way the real backend
// orders them.
type directoryBackend struct {
	mu            sync.Mutex
	conversations []model.Conversation
	nextID        int
	createBlock   chan struct{} // when set, create waits on it
}

func (b *directoryBackend) writeOK(w http.ResponseWriter, data any) {
	json.NewEncoder(w).Encode(map[string]any{"code": 200, "message": "ok", "data": data})
}

func (b *directoryBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/session/list", func(w http.ResponseWriter, r *http.Request) {
		pageSize := 0
		fmt.Sscanf(r.URL.Query().Get("pageSize"), "%d", &pageSize)
		cursor := r.URL.Query().Get("lastConversationId")

		b.mu.Lock()
		defer b.mu.Unlock()
		start := 0
		if cursor != "" {
			for i, c := range b.conversations {
				if c.ConversationID == cursor {
					start = i + 1
					break
				}
			}
		}
		end := start + pageSize
		if end > len(b.conversations) {
			end = len(b.conversations)
		}
		b.writeOK(w, b.conversations[start:end])
	})

	mux.HandleFunc("/session/batch-delete", func(w http.ResponseWriter, r *http.Request) {
		var ids []string
		json.NewDecoder(r.Body).Decode(&ids)

		b.mu.Lock()
		defer b.mu.Unlock()
		count := 0
		for _, id := range ids {
			if b.removeLocked(id) {
				count++
			}
		}
		b.writeOK(w, count)
	})

	mux.HandleFunc("/session/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/session/")
		b.mu.Lock()
		deleted := b.removeLocked(id)
		b.mu.Unlock()
		b.writeOK(w, deleted)
	})

	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		var title string
		json.NewDecoder(r.Body).Decode(&title)

		b.mu.Lock()
		block := b.createBlock
		b.mu.Unlock()
		if block != nil {
			<-block
		}

		b.mu.Lock()
		b.nextID++
		id := fmt.Sprintf("conv-%d", b.nextID)
		b.conversations = append([]model.Conversation{{ConversationID: id, Title: title}}, b.conversations...)
		b.mu.Unlock()
		b.writeOK(w, id)
	})

	return mux
}

func (b *directoryBackend) removeLocked(id string) bool {
	for i, c := range b.conversations {
		if c.ConversationID == id {
			b.conversations = append(b.conversations[:i], b.conversations[i+1:]...)
			return true
		}
	}
	return false
}

func seedConversations(n int) []model.Conversation {
	convs := make([]model.Conversation, n)
	for i := range convs {
		// Newest first: conv-n down to conv-1.
		convs[i] = model.Conversation{
			ConversationID: fmt.Sprintf("conv-%d", n-i),
			Title:          fmt.Sprintf("chat %d", n-i),
		}
	}
	return convs
}

func newTestDirectory(t *testing.T, backend *directoryBackend, store KV, pageSize int) *Directory {
	t.Helper()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)
	client := api.NewClient(srv.URL, logger.NewNop())
	return NewDirectory(client, store, pageSize, logger.NewNop())
}

func TestRefreshLoadsFirstPage(t *testing.T) {
	backend := &directoryBackend{conversations: seedConversations(5), nextID: 5}
	d := newTestDirectory(t, backend, nil, 3)

	require.NoError(t, d.Refresh(context.Background()))

	convs := d.Conversations()
	require.Len(t, convs, 3)
	assert.Equal(t, "conv-5", convs[0].ConversationID)
	assert.True(t, d.HasMore())
}

func TestLoadMoreAppendsUntilExhausted(t *testing.T) {
	backend := &directoryBackend{conversations: seedConversations(5), nextID: 5}
	d := newTestDirectory(t, backend, nil, 3)

	require.NoError(t, d.Refresh(context.Background()))
	require.NoError(t, d.LoadMore(context.Background()))

	convs := d.Conversations()
	require.Len(t, convs, 5)
	assert.Equal(t, "conv-1", convs[4].ConversationID)
	assert.False(t, d.HasMore())

	// Exhausted: no further requests are made.
	require.NoError(t, d.LoadMore(context.Background()))
	assert.Len(t, d.Conversations(), 5)
}

func TestCreateRefreshesDirectory(t *testing.T) {
	backend := &directoryBackend{conversations: seedConversations(2), nextID: 2}
	d := newTestDirectory(t, backend, nil, 10)

	id, err := d.Create(context.Background(), "new chat")
	require.NoError(t, err)
	assert.Equal(t, "conv-3", id)

	// The mirror already contains the new conversation without an
	// explicit Refresh.
	convs := d.Conversations()
	require.Len(t, convs, 3)
	assert.Equal(t, "conv-3", convs[0].ConversationID)
	assert.Equal(t, "new chat", convs[0].Title)

	// Creation does not select the new conversation.
	assert.Empty(t, d.Selected())
}

func TestDeleteRefreshesDirectory(t *testing.T) {
	backend := &directoryBackend{conversations: seedConversations(3), nextID: 3}
	d := newTestDirectory(t, backend, nil, 10)
	require.NoError(t, d.Refresh(context.Background()))

	require.NoError(t, d.Delete(context.Background(), "conv-2", false))

	convs := d.Conversations()
	require.Len(t, convs, 2)
	for _, c := range convs {
		assert.NotEqual(t, "conv-2", c.ConversationID)
	}
}

func TestDeleteSelectedClearsSelection(t *testing.T) {
	backend := &directoryBackend{conversations: seedConversations(3), nextID: 3}
	store := NewMemoryKV()
	d := newTestDirectory(t, backend, store, 10)
	d.Select("conv-2")

	require.NoError(t, d.Delete(context.Background(), "conv-2", true))

	// Selection is cleared, not moved to another conversation.
	assert.Empty(t, d.Selected())
	_, ok := store.Get(ActiveConversationKey)
	assert.False(t, ok, "persisted selection is removed")
}

func TestDeleteUnselectedKeepsSelection(t *testing.T) {
	backend := &directoryBackend{conversations: seedConversations(3), nextID: 3}
	d := newTestDirectory(t, backend, NewMemoryKV(), 10)
	d.Select("conv-1")

	require.NoError(t, d.Delete(context.Background(), "conv-3", false))
	assert.Equal(t, "conv-1", d.Selected())
}

func TestBatchDeleteReturnsCountAndClearsSelection(t *testing.T) {
	backend := &directoryBackend{conversations: seedConversations(4), nextID: 4}
	store := NewMemoryKV()
	d := newTestDirectory(t, backend, store, 10)
	d.Select("conv-3")

	count, err := d.BatchDelete(context.Background(), []string{"conv-1", "conv-3", "conv-99"}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Empty(t, d.Selected())
	assert.Len(t, d.Conversations(), 2)
}

func TestMutationExclusivity(t *testing.T) {
	backend := &directoryBackend{createBlock: make(chan struct{})}
	d := newTestDirectory(t, backend, nil, 10)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := d.Create(context.Background(), "slow")
		assert.NoError(t, err)
	}()

	// Wait until the create reaches the backend, then try overlapping
	// mutations. Each is rejected, never queued.
	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.mutating
	}, 2*time.Second, 5*time.Millisecond)

	_, err := d.Create(context.Background(), "overlap")
	assert.ErrorIs(t, err, ErrMutationInFlight)
	err = d.Delete(context.Background(), "conv-1", false)
	assert.ErrorIs(t, err, ErrMutationInFlight)
	_, err = d.BatchDelete(context.Background(), []string{"conv-1"}, false)
	assert.ErrorIs(t, err, ErrMutationInFlight)

	close(backend.createBlock)
	<-done

	// After the pending mutation settles, mutations work again.
	_, err = d.Create(context.Background(), "after")
	require.NoError(t, err)
	assert.Len(t, d.Conversations(), 2)
}

func TestSelectionRestoredFromStore(t *testing.T) {
	store := NewMemoryKV()
	require.NoError(t, store.Set(ActiveConversationKey, "conv-7"))

	backend := &directoryBackend{}
	d := newTestDirectory(t, backend, store, 10)
	assert.Equal(t, "conv-7", d.Selected())
}

func TestSelectPersists(t *testing.T) {
	store := NewMemoryKV()
	backend := &directoryBackend{}
	d := newTestDirectory(t, backend, store, 10)

	d.Select("conv-9")
	id, ok := store.Get(ActiveConversationKey)
	require.True(t, ok)
	assert.Equal(t, "conv-9", id)
}
