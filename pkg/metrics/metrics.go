// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ConversationsTotal tracks conversations created, by type.
	ConversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
		[]string{"type"},
	)

	// ConversationEnsureConflicts tracks create races resolved by the
	// uniqueness constraint plus one retried lookup.
	ConversationEnsureConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conversation_ensure_conflicts_total",
			Help: "Get-or-create races resolved by retrying the lookup",
		},
	)

	// MessagesTotal tracks messages appended, by content kind.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages appended",
		},
		[]string{"kind"},
	)

	// SummaryUpdateFailures tracks best-effort last-message summary writes
	// that failed. The append itself still succeeded.
	SummaryUpdateFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "summary_update_failures_total",
			Help: "Failed denormalized last-message updates",
		},
	)

	// ForwardTargetsTotal tracks per-target fan-out outcomes.
	ForwardTargetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forward_targets_total",
			Help: "Forward fan-out target outcomes",
		},
		[]string{"result"},
	)

	// AttachmentBytesTotal tracks bytes accepted by the attachment pipeline.
	AttachmentBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attachment_bytes_total",
			Help: "Total attachment bytes staged",
		},
	)

	// AttachmentFailuresTotal tracks rejected or failed attachment stages.
	AttachmentFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attachment_failures_total",
			Help: "Attachment stage failures",
		},
		[]string{"reason"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// SubscribersActive tracks live hub subscriptions, by feed.
	SubscribersActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hub_subscribers_active",
			Help: "Active hub subscriptions",
		},
		[]string{"feed"},
	)

	// SubscriberDrops tracks events dropped for slow subscribers.
	SubscriberDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_subscriber_drops_total",
			Help: "Events dropped because a subscriber buffer was full",
		},
		[]string{"feed"},
	)

	// RelayEventsTotal tracks events exchanged with the NATS relay.
	RelayEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_total",
			Help: "Events published to or received from the relay",
		},
		[]string{"direction"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}
