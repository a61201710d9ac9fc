package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"
	"github.com/r3labs/sse/v2"
	"go.uber.org/zap"

	"github.com/aria-ai/chat-engine/pkg/logger"
)

// EventSource is the secondary transport: a persistent server-push
// connection whose message events arrive with the wire framing
// already stripped.
//
// The protocol cannot distinguish "server finished and closed" from a
// transient drop, so a closed connection is classified as completed
// unless it happened while the stream was still being established.
type EventSource struct {
	endpoint  string
	authToken string
	logger    *logger.Logger
}

// NewEventSource creates the secondary transport for the same chat
// endpoint as the primary.
func NewEventSource(endpoint string, log *logger.Logger, opts ...Option) *EventSource {
	o := applyOptions(opts)
	return &EventSource{endpoint: endpoint, authToken: o.authToken, logger: log}
}

func (t *EventSource) Name() string { return "event-source" }

// Open starts the subscription. Connection establishment happens
// asynchronously; failures are reported through the stream's Result,
// since there is no further transport to fall back to.
func (t *EventSource) Open(ctx context.Context, prompt, conversationID string) (*Stream, error) {
	ctx, cancel := context.WithCancel(ctx)

	q := url.Values{}
	q.Set("prompt", prompt)
	q.Set("conversationId", conversationID)

	client := sse.NewClient(t.endpoint + "?" + q.Encode())
	client.Connection = &http.Client{}
	client.Headers["Cache-Control"] = "no-cache"
	if t.authToken != "" {
		client.Headers["Authorization"] = "Bearer " + t.authToken
	}
	// One reply per connection: reconnecting would replay the prompt.
	client.ReconnectStrategy = &backoff.StopBackOff{}

	var established atomic.Bool
	client.OnConnect(func(*sse.Client) {
		established.Store(true)
	})

	stream := NewStream(cancel)

	go func() {
		delivered := 0
		err := client.SubscribeRawWithContext(ctx, func(msg *sse.Event) {
			if len(msg.Data) == 0 {
				return
			}
			if stream.Emit(ctx, string(msg.Data)) {
				delivered++
			}
		})

		switch {
		case ctx.Err() != nil:
			stream.Finish(Result{Outcome: OutcomeCancelled})
		case err == nil:
			// Clean close. Indistinguishable from a drop at the
			// protocol level; closed means completed.
			stream.Finish(Result{Outcome: OutcomeCompleted})
		case delivered > 0 || established.Load():
			t.logger.Warn("event source closed with error after content, treating as completed",
				zap.Int("frames", delivered),
				zap.Error(err),
			)
			stream.Finish(Result{Outcome: OutcomeCompleted})
		default:
			stream.Finish(Result{Outcome: OutcomeFailed, Err: fmt.Errorf("event source: %w", err)})
		}
	}()

	return stream, nil
}
