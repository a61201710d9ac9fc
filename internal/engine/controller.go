package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aria-ai/chat-engine/internal/model"
	"github.com/aria-ai/chat-engine/internal/transport"
	"github.com/aria-ai/chat-engine/pkg/logger"
	"github.com/aria-ai/chat-engine/pkg/metrics"
)

// Phase is the controller's exchange state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseStreaming
	PhaseCompleted
	PhaseErrored
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseStreaming:
		return "streaming"
	case PhaseCompleted:
		return "completed"
	case PhaseErrored:
		return "errored"
	case PhaseCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether a new exchange may begin from this phase.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseErrored || p == PhaseCancelled
}

// failurePlaceholder replaces the in-progress reply when an exchange
// errors out.
const failurePlaceholder = "The reply could not be delivered. Please try again."

// cachedMessagesKey is the persistence key for a conversation's
// finalized transcript.
func cachedMessagesKey(conversationID string) string {
	return "chatMessages:" + conversationID
}

// Snapshot is what the subscriber sees after every mutation: the
// finalized transcript, the in-progress assistant message if one
// exists, and the streaming flag.
type Snapshot struct {
	ConversationID string
	Phase          Phase
	Messages       []model.Message
	InProgress     *model.Message
	Streaming      bool
	Err            string
}

// Subscriber receives every state change. It is invoked with the
// controller lock held, so it must not call back into the controller.
type Subscriber func(Snapshot)

// exchange tracks one in-flight prompt/reply pair. The token is the
// stale-callback guard: anything arriving for an older token is
// dropped without touching state.
type exchange struct {
	token          uint64
	conversationID string
	stream         *transport.Stream
	started        time.Time
}

// Controller owns the lifecycle of one send-prompt/receive-reply
// exchange at a time. Starting a new exchange cancels any previous
// one, regardless of conversation.
type Controller struct {
	transport  transport.Transport
	store      KV
	subscriber Subscriber
	logger     *logger.Logger

	mu             sync.Mutex
	phase          Phase
	conversationID string
	messages       []model.Message
	inProgress     *model.Message
	accumulated    strings.Builder
	lastErr        string
	current        *exchange
	nextToken      uint64
}

// NewController creates a controller. store may be nil, in which case
// nothing is persisted. subscriber may be nil.
func NewController(tr transport.Transport, store KV, subscriber Subscriber, log *logger.Logger) *Controller {
	return &Controller{
		transport:  tr,
		store:      store,
		subscriber: subscriber,
		logger:     log,
		phase:      PhaseIdle,
	}
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		ConversationID: c.conversationID,
		Phase:          c.phase,
		Messages:       append([]model.Message(nil), c.messages...),
		Streaming:      c.phase == PhaseConnecting || c.phase == PhaseStreaming,
		Err:            c.lastErr,
	}
	if c.inProgress != nil {
		m := *c.inProgress
		snap.InProgress = &m
	}
	return snap
}

func (c *Controller) notifyLocked() {
	if c.subscriber != nil {
		c.subscriber(c.snapshotLocked())
	}
}

// Send starts a new exchange: the user message is appended
// synchronously with a local id, any live exchange is cancelled, and
// the reply streams into the in-progress assistant message.
//
// An error return means no stream could be opened at all; the
// controller is back in Idle and the user message remains.
func (c *Controller) Send(ctx context.Context, prompt, conversationID string) error {
	c.mu.Lock()

	c.cancelCurrentLocked()

	userMsg := model.Message{
		ID:             NewMessageID(model.RoleUser),
		Role:           model.RoleUser,
		Content:        prompt,
		Timestamp:      time.Now(),
		ConversationID: conversationID,
	}
	c.conversationID = conversationID
	c.messages = append(c.messages, userMsg)
	c.lastErr = ""
	c.phase = PhaseConnecting
	c.nextToken++
	token := c.nextToken
	c.notifyLocked()
	c.mu.Unlock()

	stream, err := c.transport.Open(ctx, prompt, conversationID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if token != c.nextToken {
		// A newer Send or Stop took over while we were opening.
		if err == nil {
			stream.Cancel()
		}
		return nil
	}
	if err != nil {
		c.phase = PhaseIdle
		c.lastErr = "send failed: " + err.Error()
		c.logger.Error("failed to open stream",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		c.notifyLocked()
		return fmt.Errorf("send failed: %w", err)
	}

	ex := &exchange{
		token:          token,
		conversationID: conversationID,
		stream:         stream,
		started:        time.Now(),
	}
	c.current = ex
	go c.consume(ex)
	return nil
}

// consume drains one exchange's stream; every step re-checks that the
// exchange is still the live one before mutating shared state.
func (c *Controller) consume(ex *exchange) {
	for frame := range ex.stream.Frames() {
		if !c.applyDelta(ex, frame) {
			return
		}
	}
	c.terminate(ex, ex.stream.Result())
}

// applyDelta appends one delta. Reports false when the exchange has
// gone stale, which stops the consume loop.
func (c *Controller) applyDelta(ex *exchange, delta string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.current.token != ex.token {
		return false
	}

	if c.phase == PhaseConnecting {
		c.phase = PhaseStreaming
	}
	if c.inProgress == nil {
		c.inProgress = &model.Message{
			ID:             NewMessageID(model.RoleAssistant),
			Role:           model.RoleAssistant,
			Timestamp:      time.Now(),
			ConversationID: ex.conversationID,
		}
	}
	c.accumulated.WriteString(delta)
	c.inProgress.Content = c.accumulated.String()
	metrics.StreamDeltasTotal.Inc()
	c.notifyLocked()
	return true
}

// terminate applies the stream's single terminal event.
func (c *Controller) terminate(ex *exchange, res transport.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.current.token != ex.token {
		return
	}
	c.current = nil

	duration := time.Since(ex.started).Seconds()
	metrics.RecordExchange(res.Outcome.String(), duration)

	switch res.Outcome {
	case transport.OutcomeCompleted:
		content := c.accumulated.String()
		if strings.TrimSpace(content) != "" {
			// Freeze the reply under a fresh stable id.
			final := model.Message{
				ID:             NewMessageID(model.RoleAssistant),
				Role:           model.RoleAssistant,
				Content:        content,
				Timestamp:      time.Now(),
				ConversationID: ex.conversationID,
			}
			c.messages = append(c.messages, final)
		}
		c.phase = PhaseCompleted
		c.inProgress = nil
		c.accumulated.Reset()
		c.persistTranscriptLocked(ex.conversationID)
		c.logger.Info("exchange completed",
			zap.String("conversation_id", ex.conversationID),
			zap.Int("reply_len", len(content)),
		)

	case transport.OutcomeFailed:
		c.phase = PhaseErrored
		c.lastErr = failurePlaceholder
		if c.inProgress != nil {
			c.inProgress.Content = failurePlaceholder
		}
		c.accumulated.Reset()
		c.logger.Warn("exchange failed",
			zap.String("conversation_id", ex.conversationID),
			zap.Error(res.Err),
		)

	case transport.OutcomeCancelled:
		// Stop() already rewrote state when it invalidated the
		// token; reaching here means the transport cancelled on
		// its own (context teardown). Discard quietly either way.
		c.phase = PhaseCancelled
		c.inProgress = nil
		c.accumulated.Reset()
	}
	c.notifyLocked()
}

// Stop cancels the current exchange and discards whatever content has
// accumulated. Idempotent; a no-op when nothing is streaming.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil && c.phase != PhaseConnecting && c.phase != PhaseStreaming {
		return
	}
	c.cancelCurrentLocked()
	c.phase = PhaseCancelled
	c.notifyLocked()
}

// cancelCurrentLocked invalidates and cancels any live exchange,
// dropping its in-progress content. Reports whether there was one.
func (c *Controller) cancelCurrentLocked() bool {
	c.nextToken++ // stale-guard: outstanding callbacks lose the race
	if c.current == nil {
		return false
	}
	c.current.stream.Cancel()
	c.current = nil
	c.inProgress = nil
	c.accumulated.Reset()
	return true
}

// LoadConversation switches the controller to a conversation,
// cancelling any live exchange and resetting the transcript. A cached
// transcript is restored when the store has one.
func (c *Controller) LoadConversation(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelCurrentLocked()
	c.conversationID = conversationID
	c.messages = nil
	c.lastErr = ""
	c.phase = PhaseIdle

	if c.store != nil && conversationID != "" {
		if raw, ok := c.store.Get(cachedMessagesKey(conversationID)); ok {
			var cached []model.Message
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				c.messages = cached
			}
		}
	}
	c.notifyLocked()
}

// ClearMessages empties the transcript without touching the active
// conversation or any live exchange's user-visible state beyond it.
func (c *Controller) ClearMessages() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
	c.inProgress = nil
	c.accumulated.Reset()
	c.notifyLocked()
}

// persistTranscriptLocked caches the finalized transcript through the
// persistence port. Best-effort; failures only log.
func (c *Controller) persistTranscriptLocked(conversationID string) {
	if c.store == nil || conversationID == "" {
		return
	}
	raw, err := json.Marshal(c.messages)
	if err != nil {
		return
	}
	if err := c.store.Set(cachedMessagesKey(conversationID), string(raw)); err != nil {
		c.logger.Warn("failed to cache transcript", zap.Error(err))
	}
}
