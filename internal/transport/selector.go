package transport

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/aria-ai/chat-engine/pkg/logger"
	"github.com/aria-ai/chat-engine/pkg/metrics"
)

// Selector presents the two transports as one. The primary is tried
// first; only when it cannot be established at all does the exchange
// fall back to the secondary, exactly once. Nothing is retried beyond
// that.
type Selector struct {
	primary  Transport
	fallback Transport
	logger   *logger.Logger
}

// NewSelector builds a selector over explicit transports. Used
// directly by tests; production code goes through New.
func NewSelector(primary, fallback Transport, log *logger.Logger) *Selector {
	return &Selector{primary: primary, fallback: fallback, logger: log}
}

// New wires the default transport pair for a backend.
func New(baseURL, apiPrefix string, log *logger.Logger, opts ...Option) *Selector {
	endpoint := chatEndpoint(baseURL, apiPrefix)
	return NewSelector(
		NewHTTPStream(endpoint, log, opts...),
		NewEventSource(endpoint, log, opts...),
		log,
	)
}

func (s *Selector) Name() string { return "selector" }

// Open opens a stream on the primary transport, falling back to the
// secondary when the primary cannot be established.
func (s *Selector) Open(ctx context.Context, prompt, conversationID string) (*Stream, error) {
	stream, err := s.primary.Open(ctx, prompt, conversationID)
	if err == nil {
		return stream, nil
	}

	metrics.TransportOpenFailures.WithLabelValues(s.primary.Name()).Inc()
	metrics.TransportFallbacksTotal.Inc()
	s.logger.Warn("primary transport failed to open, falling back",
		zap.String("primary", s.primary.Name()),
		zap.String("fallback", s.fallback.Name()),
		zap.Error(err),
	)

	stream, ferr := s.fallback.Open(ctx, prompt, conversationID)
	if ferr != nil {
		metrics.TransportOpenFailures.WithLabelValues(s.fallback.Name()).Inc()
		return nil, fmt.Errorf("all transports failed: %w", ferr)
	}
	return stream, nil
}
