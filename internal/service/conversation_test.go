package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aria-ai/chat-engine/pkg/logger"
)

func newTestStore(t *testing.T) *ConversationStore {
	t.Helper()
	return NewConversationStore(nil, logger.NewNop())
}

func TestCreateAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.Create(ctx, "first")
	require.NoError(t, err)
	id2, err := s.Create(ctx, "second")
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	page := s.List("", 10)
	require.Len(t, page, 2)
	// Most recently touched first.
	assert.Equal(t, "second", page[0].Title)
	assert.Equal(t, "first", page[1].Title)
}

func TestListPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := s.Create(ctx, "chat")
		require.NoError(t, err)
	}

	first := s.List("", 2)
	require.Len(t, first, 2)

	second := s.List(first[1].ConversationID, 2)
	require.Len(t, second, 2)
	assert.NotEqual(t, first[0].ConversationID, second[0].ConversationID)

	third := s.List(second[1].ConversationID, 2)
	require.Len(t, third, 1)

	// An unknown cursor restarts from the top.
	assert.Len(t, s.List("nope", 2), 2)
}

func TestAppendBumpsConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, _ := s.Create(ctx, "first")
	id2, _ := s.Create(ctx, "second")

	require.NoError(t, s.Append(ctx, id1, "user", "hello"))

	page := s.List("", 10)
	require.Len(t, page, 2)
	assert.Equal(t, id1, page[0].ConversationID, "appending moves the conversation to the front")
	assert.Equal(t, "hello", page[0].LastMessage)
	assert.Equal(t, id2, page[1].ConversationID)
}

func TestAppendUnknownConversation(t *testing.T) {
	s := newTestStore(t)
	err := s.Append(context.Background(), "missing", "user", "hello")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestHistoryNewestFirstWithCursor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, _ := s.Create(ctx, "chat")

	for _, content := range []string{"m1", "m2", "m3", "m4", "m5"} {
		require.NoError(t, s.Append(ctx, id, "user", content))
	}

	page := s.History(id, "", 2)
	require.Len(t, page, 2)
	assert.Equal(t, "m5", page[0].Content)
	assert.Equal(t, "m4", page[1].Content)
	assert.Equal(t, "USER", page[0].Type)

	older := s.History(id, page[1].Timestamp, 2)
	require.Len(t, older, 2)
	assert.Equal(t, "m3", older[0].Content)
	assert.Equal(t, "m2", older[1].Content)

	last := s.History(id, older[1].Timestamp, 2)
	require.Len(t, last, 1)
	assert.Equal(t, "m1", last[0].Content)
}

func TestHistoryTimestampsStrictlyIncreasing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, _ := s.Create(ctx, "chat")

	// Rapid appends must still produce distinct cursor values.
	for i := 0; i < 20; i++ {
		require.NoError(t, s.Append(ctx, id, "user", "x"))
	}

	page := s.History(id, "", 20)
	require.Len(t, page, 20)
	for i := 1; i < len(page); i++ {
		a, err := time.Parse(time.RFC3339Nano, page[i-1].Timestamp)
		require.NoError(t, err)
		b, err := time.Parse(time.RFC3339Nano, page[i].Timestamp)
		require.NoError(t, err)
		assert.True(t, b.Before(a), "entry %d not older than %d", i, i-1)
	}
}

func TestHistoryUnknownConversation(t *testing.T) {
	s := newTestStore(t)
	assert.Empty(t, s.History("missing", "", 10))
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, _ := s.Create(ctx, "chat")

	assert.True(t, s.Delete(ctx, id, false))
	assert.False(t, s.Delete(ctx, id, false), "second delete reports missing")
	assert.Empty(t, s.List("", 10))
}

func TestBatchDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id1, _ := s.Create(ctx, "one")
	id2, _ := s.Create(ctx, "two")

	count := s.BatchDelete(ctx, []string{id1, id2, "missing"}, true)
	assert.Equal(t, 2, count)
	assert.Empty(t, s.List("", 10))
}
