// Package metrics provides Prometheus metrics for the bridge.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Call kinds.
const (
	KindJavaScript = "javascript"
	KindPromise    = "promise"
	KindEmit       = "emit"
)

// Call outcomes.
const (
	OutcomeResolved = "resolved"
	OutcomeRejected = "rejected"
	OutcomeTimeout  = "timeout"
	OutcomeCanceled = "canceled"
	OutcomeNoView   = "no_view"
)

// Event directions.
const (
	DirectionInbound  = "page_to_host"
	DirectionOutbound = "host_to_page"
	DirectionDropped  = "dropped"
)

var (
	// CallsTotal counts settled host calls by kind and outcome.
	CallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webbridge_calls_total",
		Help: "Total number of host-to-page calls, by kind and outcome.",
	}, []string{"kind", "outcome"})

	// EventsTotal counts bridge events by direction.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webbridge_events_total",
		Help: "Total number of bridge events, by direction.",
	}, []string{"direction"})

	// PendingCalls tracks promise calls awaiting their correlation event.
	PendingCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "webbridge_pending_calls",
		Help: "Current number of promise calls awaiting a result.",
	})

	// CallDuration observes how long calls take to settle.
	CallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webbridge_call_duration_seconds",
		Help:    "Time from issuing a call to its settlement, by kind.",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"kind"})

	// SocketSessions tracks browser sessions with a live websocket.
	SocketSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "webbridge_socket_sessions",
		Help: "Current number of connected socket sessions.",
	})

	// HTTPRequestDuration observes socket server requests by route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webbridge_http_request_duration_seconds",
		Help:    "Socket server request latency, by method, route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

// RecordCall records one settled call.
func RecordCall(kind, outcome string, elapsed time.Duration) {
	CallsTotal.WithLabelValues(kind, outcome).Inc()
	CallDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// RecordEvent counts one event in direction.
func RecordEvent(direction string) {
	EventsTotal.WithLabelValues(direction).Inc()
}
