// Package transport opens live reply streams to the chat backend.
//
// Two transports exist: the primary reads a chunked HTTP response
// body through the frame parser; the secondary holds a persistent
// EventSource connection whose message events arrive pre-framed. Both
// present the same shape to the controller: an ordered sequence of
// text deltas followed by exactly one terminal outcome.
package transport

import (
	"context"
	"sync"
)

// Option configures a transport at construction time.
type Option func(*options)

type options struct {
	authToken string
}

// WithAuthToken makes the transport send a bearer token with every
// stream request. An empty token leaves requests unauthenticated.
func WithAuthToken(token string) Option {
	return func(o *options) { o.authToken = token }
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Outcome tags the terminal state of one stream.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeFailed
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Result is the single terminal event of a stream. Err is set only
// for OutcomeFailed.
type Result struct {
	Outcome Outcome
	Err     error
}

// Transport opens a reply stream for one prompt.
type Transport interface {
	// Name identifies the transport in logs and metrics.
	Name() string

	// Open starts the exchange. An error return means the stream
	// could not be established at all (fallback-eligible); failures
	// after a successful Open are reported through the Stream's
	// Result.
	Open(ctx context.Context, prompt, conversationID string) (*Stream, error)
}

// Stream is one live exchange. Frames yields text deltas in arrival
// order and is closed when the stream terminates; Result is valid
// once Frames is closed.
type Stream struct {
	frames chan string

	done   chan struct{}
	result Result

	cancelOnce sync.Once
	cancelFn   context.CancelFunc
	cancelled  chan struct{}
}

// NewStream creates the producer/consumer pair for one exchange.
// cancel is invoked when the consumer requests cancellation;
// producers observe it through their context.
func NewStream(cancel context.CancelFunc) *Stream {
	return &Stream{
		frames:    make(chan string),
		done:      make(chan struct{}),
		cancelFn:  cancel,
		cancelled: make(chan struct{}),
	}
}

// Frames returns the delta channel. It is closed exactly once, when
// the stream reaches its terminal outcome.
func (s *Stream) Frames() <-chan string {
	return s.frames
}

// Result blocks until the stream terminates and returns its outcome.
// Callers normally drain Frames first, at which point Result returns
// immediately.
func (s *Stream) Result() Result {
	<-s.done
	return s.result
}

// Cancel aborts the underlying connection. It is idempotent and safe
// to call after completion.
func (s *Stream) Cancel() {
	s.cancelOnce.Do(func() {
		close(s.cancelled)
		s.cancelFn()
	})
}

// Emit delivers one frame unless the stream was cancelled meanwhile.
// Reports false when the consumer is gone. Producer-side API, used by
// transport implementations.
func (s *Stream) Emit(ctx context.Context, frame string) bool {
	// Cancellation takes priority over a ready consumer, so a frame
	// racing a Cancel is dropped deterministically.
	if ctx.Err() != nil || s.isCancelled() {
		return false
	}
	select {
	case s.frames <- frame:
		return true
	case <-ctx.Done():
		return false
	case <-s.cancelled:
		return false
	}
}

// isCancelled reports whether Cancel was requested.
func (s *Stream) isCancelled() bool {
	select {
	case <-s.cancelled:
		return true
	default:
		return false
	}
}

// Finish records the terminal outcome and closes the frame channel.
// A cancellation request always wins over the producer's own
// classification. Producer-side API; must be called exactly once.
func (s *Stream) Finish(res Result) {
	if s.isCancelled() {
		res = Result{Outcome: OutcomeCancelled}
	}
	s.result = res
	close(s.frames)
	close(s.done)
}
