// Package monitoring exposes Prometheus metrics for the widget session
// service.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionsMinted *prometheus.CounterVec

	// Tracing metrics
	TraceEvents       *prometheus.CounterVec
	TraceSendFailures prometheus.Counter

	// Lifecycle signal metrics
	Signals       *prometheus.CounterVec
	WSConnections prometheus.Gauge

	startTime time.Time
}

// NewMetrics creates a metrics collector registered against reg. Tests pass
// a fresh prometheus.NewRegistry to avoid default-registry collisions.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatkit_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chatkit_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		SessionsMinted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatkit_sessions_minted_total",
				Help: "Credential mint attempts by outcome",
			},
			[]string{"outcome"},
		),
		TraceEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatkit_trace_events_total",
				Help: "Observability events emitted by type",
			},
			[]string{"type"},
		),
		TraceSendFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "chatkit_trace_send_failures_total",
				Help: "Trace batches that could not be delivered",
			},
		),
		Signals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatkit_signals_total",
				Help: "Lifecycle signals received by type",
			},
			[]string{"type"},
		),
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatkit_ws_connections",
				Help: "Open lifecycle signal streams",
			},
		),
	}
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordMint records a credential mint attempt.
func (m *Metrics) RecordMint(outcome string) {
	m.SessionsMinted.WithLabelValues(outcome).Inc()
}

// RecordSignal records one lifecycle signal.
func (m *Metrics) RecordSignal(signalType string) {
	m.Signals.WithLabelValues(signalType).Inc()
}

// RecordTraceEvent records one emitted observability event.
func (m *Metrics) RecordTraceEvent(eventType string) {
	m.TraceEvents.WithLabelValues(eventType).Inc()
}

// Uptime returns the time since metrics collection started.
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}
