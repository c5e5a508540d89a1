// Package observability provides logging, Prometheus metrics and
// OpenTelemetry tracing for the registry.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// DISPATCH METRICS
// =============================================================================

var (
	dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "o008_dispatch_total",
			Help: "Total number of dispatched commands",
		},
		[]string{"command", "status"}, // status: success, terminated, or the error kind
	)

	dispatchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "o008_dispatch_duration_seconds",
			Help:    "Command dispatch duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"command"},
	)
)

// =============================================================================
// BUS METRICS
// =============================================================================

var (
	busMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "o008_bus_messages_total",
			Help: "Total number of messages sent on a bus",
		},
		[]string{"bus", "outcome"}, // outcome: delivered, no_subscribers, closed
	)

	busLagTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "o008_bus_lagged_messages_total",
			Help: "Messages a poller missed because its subscription was full",
		},
		[]string{"bus"},
	)

	pollerResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "o008_poller_results_total",
			Help: "Response poller outcomes",
		},
		[]string{"outcome"}, // outcome: resolved, quit, closed, cancelled
	)

	responseWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "o008_response_wait_seconds",
			Help:    "Time between sending a request and observing its response",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)
)

// =============================================================================
// QUEUE METRICS
// =============================================================================

var (
	queueResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "o008_queue_results_total",
			Help: "Results joined by the command queue",
		},
		[]string{"status"}, // status: success, error, terminated, panic
	)

	queueInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "o008_queue_in_flight",
			Help: "Units of work spawned by the command queue and not yet joined",
		},
	)
)

// =============================================================================
// HTTP METRICS
// =============================================================================

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "o008_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "o008_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"route"},
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordDispatch records a dispatched command.
func RecordDispatch(command string, status string, durationMS int) {
	dispatchTotal.WithLabelValues(command, status).Inc()
	dispatchDurationSeconds.WithLabelValues(command).Observe(float64(durationMS) / 1000.0)
}

// RecordBusSend records the outcome of a bus send.
func RecordBusSend(bus string, outcome string) {
	busMessagesTotal.WithLabelValues(bus, outcome).Inc()
}

// RecordBusLag records messages missed by a lagging subscription.
func RecordBusLag(bus string, missed uint64) {
	busLagTotal.WithLabelValues(bus).Add(float64(missed))
}

// RecordPollerResult records how a response poller finished.
func RecordPollerResult(outcome string) {
	pollerResultsTotal.WithLabelValues(outcome).Inc()
}

// RecordResponseWait records the request to response latency.
func RecordResponseWait(durationMS int) {
	responseWaitSeconds.Observe(float64(durationMS) / 1000.0)
}

// RecordQueueResult records a joined command queue result.
func RecordQueueResult(status string) {
	queueResultsTotal.WithLabelValues(status).Inc()
}

// QueueWorkStarted increments the in-flight gauge.
func QueueWorkStarted() { queueInFlight.Inc() }

// QueueWorkJoined decrements the in-flight gauge.
func QueueWorkJoined() { queueInFlight.Dec() }

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(route string, code string, durationMS int) {
	httpRequestsTotal.WithLabelValues(route, code).Inc()
	httpRequestDurationSeconds.WithLabelValues(route).Observe(float64(durationMS) / 1000.0)
}
