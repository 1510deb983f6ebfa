package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PostInteractions counts successful post interactions by action.
	PostInteractions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smedia_post_interactions_total",
		Help: "Total number of post interactions by action",
	}, []string{"action"})

	// ModerationDecisions counts moderation outcomes after a report.
	ModerationDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smedia_moderation_decisions_total",
		Help: "Total number of moderation decisions by outcome",
	}, []string{"decision"})

	// ViewIncrementFailures counts view increments that were dropped.
	ViewIncrementFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smedia_view_increment_failures_total",
		Help: "Total number of view increments that failed and were ignored",
	})

	// DatabaseQueryLatency records store query latency by backend, operation and collection.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "smedia_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "operation", "table"})

	// WebSocketConnectionsTotal is the gauge of live feed connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "smedia_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketEventsTotal counts events pushed to live feed clients by type.
	WebSocketEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smedia_websocket_events_total",
		Help: "Total WebSocket events by type",
	}, []string{"event_type"})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smedia_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// RealtimePublishFailures counts events that could not be fanned out through Redis.
	RealtimePublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smedia_realtime_publish_failures_total",
		Help: "Total number of realtime events that failed to publish",
	}, []string{"event_type"})
)

// DatabaseMetrics records query latency for one storage backend.
type DatabaseMetrics struct {
	backend string
}

// NewDatabaseMetrics returns a DatabaseMetrics labelled with backend.
func NewDatabaseMetrics(backend string) *DatabaseMetrics {
	return &DatabaseMetrics{backend: backend}
}

// ObserveQuery records the latency of a database query.
func (m *DatabaseMetrics) ObserveQuery(operation, table string, start time.Time) {
	DatabaseQueryLatency.WithLabelValues(m.backend, operation, table).Observe(time.Since(start).Seconds())
}

// TrackQuery returns a function that records query latency when called (e.g. defer).
func (m *DatabaseMetrics) TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		m.ObserveQuery(operation, table, start)
	}
}
