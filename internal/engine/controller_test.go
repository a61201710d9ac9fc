package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aria-ai/chat-engine/internal/model"
	"github.com/aria-ai/chat-engine/internal/transport"
	"github.com/aria-ai/chat-engine/pkg/logger"
)

// scriptedExchange is one stream handed out by the scripted transport,
// driven from the test body.
type scriptedExchange struct {
	prompt         string
	conversationID string
	ctx            context.Context
	stream         *transport.Stream
}

// emit pushes one delta; reports whether the stream still accepted it.
func (ex *scriptedExchange) emit(frame string) bool {
	return ex.stream.Emit(ex.ctx, frame)
}

func (ex *scriptedExchange) finish(res transport.Result) {
	ex.stream.Finish(res)
}

// scriptedTransport records every Open and lets the test drive each
// resulting stream by hand.
type scriptedTransport struct {
	mu      sync.Mutex
	openErr error
	opened  []*scriptedExchange
}

func (t *scriptedTransport) Name() string { return "scripted" }

func (t *scriptedTransport) Open(ctx context.Context, prompt, conversationID string) (*transport.Stream, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.openErr != nil {
		return nil, t.openErr
	}
	ctx, cancel := context.WithCancel(ctx)
	ex := &scriptedExchange{
		prompt:         prompt,
		conversationID: conversationID,
		ctx:            ctx,
		stream:         transport.NewStream(cancel),
	}
	t.opened = append(t.opened, ex)
	return ex.stream, nil
}

func (t *scriptedTransport) exchange(i int) *scriptedExchange {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opened[i]
}

func newTestController(t *testing.T, tr transport.Transport, store KV) *Controller {
	t.Helper()
	return NewController(tr, store, nil, logger.NewNop())
}

func waitPhase(t *testing.T, c *Controller, want Phase) Snapshot {
	t.Helper()
	var snap Snapshot
	require.Eventually(t, func() bool {
		snap = c.Snapshot()
		return snap.Phase == want
	}, 2*time.Second, 5*time.Millisecond, "waiting for phase %s, at %s", want, snap.Phase)
	return snap
}

func TestSendAppendsUserMessageSynchronously(t *testing.T) {
	tr := &scriptedTransport{}
	c := newTestController(t, tr, nil)

	require.NoError(t, c.Send(context.Background(), "hi", "conv-1"))

	snap := c.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, model.RoleUser, snap.Messages[0].Role)
	assert.Equal(t, "hi", snap.Messages[0].Content)
	assert.Equal(t, "conv-1", snap.Messages[0].ConversationID)
	assert.NotEmpty(t, snap.Messages[0].ID)
	assert.True(t, snap.Streaming)
	assert.Equal(t, PhaseConnecting, snap.Phase)
}

func TestAppendOnlyStreaming(t *testing.T) {
	tr := &scriptedTransport{}
	c := newTestController(t, tr, nil)
	require.NoError(t, c.Send(context.Background(), "hi", "conv-1"))

	ex := tr.exchange(0)
	deltas := []string{"He", "llo", ", ", "wor", "ld"}
	for _, d := range deltas {
		require.True(t, ex.emit(d))
	}
	ex.finish(transport.Result{Outcome: transport.OutcomeCompleted})

	snap := waitPhase(t, c, PhaseCompleted)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, model.RoleAssistant, snap.Messages[1].Role)
	assert.Equal(t, "Hello, world", snap.Messages[1].Content)
	assert.Nil(t, snap.InProgress, "in-progress cleared after finalization")
	assert.False(t, snap.Streaming)
}

func TestStreamingExposesInProgressMessage(t *testing.T) {
	tr := &scriptedTransport{}
	c := newTestController(t, tr, nil)
	require.NoError(t, c.Send(context.Background(), "hi", "conv-1"))

	ex := tr.exchange(0)
	require.True(t, ex.emit("partial"))

	snap := waitPhase(t, c, PhaseStreaming)
	require.NotNil(t, snap.InProgress)
	assert.Equal(t, model.RoleAssistant, snap.InProgress.Role)
	assert.Equal(t, "partial", snap.InProgress.Content)
	assert.Len(t, snap.Messages, 1, "in-progress reply is not in the transcript yet")

	ex.finish(transport.Result{Outcome: transport.OutcomeCompleted})
	waitPhase(t, c, PhaseCompleted)
}

func TestCompletedEmptyReplyAddsNoAssistantMessage(t *testing.T) {
	tr := &scriptedTransport{}
	c := newTestController(t, tr, nil)
	require.NoError(t, c.Send(context.Background(), "hi", "conv-1"))

	tr.exchange(0).finish(transport.Result{Outcome: transport.OutcomeCompleted})

	snap := waitPhase(t, c, PhaseCompleted)
	assert.Len(t, snap.Messages, 1, "empty reply is dropped, user message stays")
}

func TestErrorReplacesReplyWithPlaceholder(t *testing.T) {
	tr := &scriptedTransport{}
	c := newTestController(t, tr, nil)
	require.NoError(t, c.Send(context.Background(), "hi", "conv-1"))

	ex := tr.exchange(0)
	require.True(t, ex.emit("half a rep"))
	ex.finish(transport.Result{Outcome: transport.OutcomeFailed, Err: errors.New("connection reset")})

	snap := waitPhase(t, c, PhaseErrored)
	assert.Len(t, snap.Messages, 1, "failed reply is never finalized")
	require.NotNil(t, snap.InProgress)
	assert.Equal(t, failurePlaceholder, snap.InProgress.Content)
	assert.Equal(t, failurePlaceholder, snap.Err)
	assert.False(t, snap.Streaming)
}

func TestStopDiscardsInProgressReply(t *testing.T) {
	tr := &scriptedTransport{}
	c := newTestController(t, tr, nil)

	before := len(c.Snapshot().Messages)
	require.NoError(t, c.Send(context.Background(), "hi", "conv-1"))

	ex := tr.exchange(0)
	require.True(t, ex.emit("doomed con"))
	waitPhase(t, c, PhaseStreaming)

	c.Stop()
	c.Stop() // idempotent

	snap := c.Snapshot()
	assert.Equal(t, PhaseCancelled, snap.Phase)
	assert.Nil(t, snap.InProgress)
	assert.Len(t, snap.Messages, before+1, "only the user message persists")
	assert.False(t, snap.Streaming)
	assert.Empty(t, snap.Err, "cancellation is not an error")

	// The transport side observes the cancellation.
	assert.False(t, ex.emit("late"), "cancelled stream accepts no more deltas")
}

func TestStopWhenIdleIsNoOp(t *testing.T) {
	c := newTestController(t, &scriptedTransport{}, nil)
	c.Stop()
	assert.Equal(t, PhaseIdle, c.Snapshot().Phase)
}

func TestSingleFlightExchange(t *testing.T) {
	tr := &scriptedTransport{}
	c := newTestController(t, tr, nil)

	require.NoError(t, c.Send(context.Background(), "first", "conv-1"))
	ex1 := tr.exchange(0)
	require.True(t, ex1.emit("stale "))
	waitPhase(t, c, PhaseStreaming)

	// Second send, different conversation, cancels the first exchange
	// before the new one starts streaming.
	require.NoError(t, c.Send(context.Background(), "second", "conv-2"))
	ex2 := tr.exchange(1)
	assert.Equal(t, "second", ex2.prompt)

	// Late deltas from the first exchange must not leak into the new one.
	assert.False(t, ex1.emit("leak"))
	ex1.finish(transport.Result{Outcome: transport.OutcomeCancelled})

	require.True(t, ex2.emit("fresh"))
	ex2.finish(transport.Result{Outcome: transport.OutcomeCompleted})

	snap := waitPhase(t, c, PhaseCompleted)
	require.Len(t, snap.Messages, 3) // user1, user2, assistant2
	assert.Equal(t, "fresh", snap.Messages[2].Content)
	assert.Equal(t, "conv-2", snap.Messages[2].ConversationID)
}

func TestSendOpenFailureReturnsToIdle(t *testing.T) {
	tr := &scriptedTransport{openErr: errors.New("all transports failed")}
	c := newTestController(t, tr, nil)

	err := c.Send(context.Background(), "hi", "conv-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send failed")

	snap := c.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Len(t, snap.Messages, 1, "optimistic user message stays")
	assert.Contains(t, snap.Err, "send failed")
}

func TestSubscriberSeesEveryMutationInOrder(t *testing.T) {
	tr := &scriptedTransport{}
	var mu sync.Mutex
	var phases []Phase
	sub := func(s Snapshot) {
		mu.Lock()
		phases = append(phases, s.Phase)
		mu.Unlock()
	}
	c := NewController(tr, nil, sub, logger.NewNop())

	require.NoError(t, c.Send(context.Background(), "hi", "conv-1"))
	ex := tr.exchange(0)
	require.True(t, ex.emit("a"))
	require.True(t, ex.emit("b"))
	ex.finish(transport.Result{Outcome: transport.OutcomeCompleted})
	waitPhase(t, c, PhaseCompleted)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []Phase{PhaseConnecting, PhaseStreaming, PhaseStreaming, PhaseCompleted}, phases)
}

func TestLoadConversationRestoresCachedTranscript(t *testing.T) {
	tr := &scriptedTransport{}
	store := NewMemoryKV()
	c := newTestController(t, tr, store)

	require.NoError(t, c.Send(context.Background(), "hi", "conv-1"))
	ex := tr.exchange(0)
	require.True(t, ex.emit("Hello"))
	ex.finish(transport.Result{Outcome: transport.OutcomeCompleted})
	waitPhase(t, c, PhaseCompleted)

	c.LoadConversation("conv-2")
	assert.Empty(t, c.Snapshot().Messages)

	c.LoadConversation("conv-1")
	snap := c.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "hi", snap.Messages[0].Content)
	assert.Equal(t, "Hello", snap.Messages[1].Content)
	assert.Equal(t, PhaseIdle, snap.Phase)
}

func TestLoadConversationCancelsLiveExchange(t *testing.T) {
	tr := &scriptedTransport{}
	c := newTestController(t, tr, nil)

	require.NoError(t, c.Send(context.Background(), "hi", "conv-1"))
	ex := tr.exchange(0)
	require.True(t, ex.emit("noise"))
	waitPhase(t, c, PhaseStreaming)

	c.LoadConversation("conv-2")
	snap := c.Snapshot()
	assert.Equal(t, "conv-2", snap.ConversationID)
	assert.Empty(t, snap.Messages)
	assert.False(t, ex.emit("late"))
}

func TestClearMessages(t *testing.T) {
	tr := &scriptedTransport{}
	c := newTestController(t, tr, nil)
	require.NoError(t, c.Send(context.Background(), "hi", "conv-1"))
	tr.exchange(0).finish(transport.Result{Outcome: transport.OutcomeCompleted})
	waitPhase(t, c, PhaseCompleted)

	c.ClearMessages()
	assert.Empty(t, c.Snapshot().Messages)
}

// End-to-end shape of one happy exchange, as seen through snapshots.
func TestExchangeEndToEnd(t *testing.T) {
	tr := &scriptedTransport{}
	c := newTestController(t, tr, nil)

	require.NoError(t, c.Send(context.Background(), "hi", "c1"))
	ex := tr.exchange(0)
	require.True(t, ex.emit("He"))
	require.True(t, ex.emit("llo"))
	ex.finish(transport.Result{Outcome: transport.OutcomeCompleted})

	snap := waitPhase(t, c, PhaseCompleted)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, model.RoleUser, snap.Messages[0].Role)
	assert.Equal(t, "hi", snap.Messages[0].Content)
	assert.Equal(t, model.RoleAssistant, snap.Messages[1].Role)
	assert.Equal(t, "Hello", snap.Messages[1].Content)
}
