// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExchangesTotal counts prompt/reply exchanges by terminal outcome.
	ExchangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_exchanges_total",
			Help: "Completed prompt/reply exchanges by outcome",
		},
		[]string{"outcome"},
	)

	// ExchangeDuration tracks wall time of one exchange.
	ExchangeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_exchange_duration_seconds",
			Help:    "Duration of one prompt/reply exchange",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	// StreamDeltasTotal counts text deltas received across all exchanges.
	StreamDeltasTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_stream_deltas_total",
			Help: "Text deltas received from the backend stream",
		},
	)

	// TransportFallbacksTotal counts primary-to-secondary transport
	// fallbacks.
	TransportFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_transport_fallbacks_total",
			Help: "Times the stream fell back to the secondary transport",
		},
	)

	// TransportOpenFailures counts failed stream opens per transport.
	TransportOpenFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_transport_open_failures_total",
			Help: "Failed stream opens by transport",
		},
		[]string{"transport"},
	)

	// SessionCallDuration tracks session REST call latency.
	SessionCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_session_call_duration_seconds",
			Help:    "Session REST call duration",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestDuration tracks chatd HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatd_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total chatd HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatd_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// StreamConnectionsActive tracks chatd's live reply streams.
	StreamConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatd_stream_connections_active",
			Help: "Number of active reply streams",
		},
	)

	// MessagesTotal tracks messages stored by chatd.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatd_messages_total",
			Help: "Messages stored by role",
		},
		[]string{"role"},
	)
)

// RecordExchange records the terminal outcome of one exchange.
func RecordExchange(outcome string, duration float64) {
	ExchangesTotal.WithLabelValues(outcome).Inc()
	ExchangeDuration.WithLabelValues(outcome).Observe(duration)
}

// RecordSessionCall records one session REST call.
func RecordSessionCall(method, path, status string, duration float64) {
	SessionCallDuration.WithLabelValues(method, path, status).Observe(duration)
}

// RecordRequest records metrics for one chatd HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}
