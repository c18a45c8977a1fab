// Package metrics holds the Prometheus collectors shared by the sync
// engine and the outbound gateway.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncPasses counts reconciliation passes by outcome.
	SyncPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailtriage_sync_passes_total",
			Help: "Total number of sync passes",
		},
		[]string{"status"}, // status: success, failed, panic
	)

	// SyncRequests counts RequestSync calls by decision.
	SyncRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailtriage_sync_requests_total",
			Help: "Total number of sync requests",
		},
		[]string{"decision"}, // decision: started, busy, throttled
	)

	// SyncDuration observes pass duration in seconds.
	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailtriage_sync_duration_seconds",
			Help:    "Sync pass duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
	)

	// ReconciledMessages counts per-item outcomes within passes.
	ReconciledMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailtriage_reconciled_messages_total",
			Help: "Total number of remote items reconciled",
		},
		[]string{"kind", "action"}, // kind: message, draft
	)

	// OutboundMutations counts gateway remote mutations.
	OutboundMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailtriage_outbound_mutations_total",
			Help: "Total number of outbound mailbox mutations",
		},
		[]string{"action", "status"}, // status: success, failed, skipped
	)

	// RemoteCallDuration observes provider API latency.
	RemoteCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailtriage_remote_call_duration_seconds",
			Help:    "Mailbox provider call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"operation", "status"},
	)

	// MessagesAnalyzed counts classifier runs.
	MessagesAnalyzed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailtriage_messages_analyzed_total",
			Help: "Total number of messages sent to the classifier",
		},
		[]string{"status"},
	)
)

// RecordSyncPass records the outcome and duration of one pass.
func RecordSyncPass(status string, duration time.Duration) {
	SyncPasses.WithLabelValues(status).Inc()
	SyncDuration.Observe(duration.Seconds())
}

// RecordReconciled records one reconciled item.
func RecordReconciled(kind, action string) {
	ReconciledMessages.WithLabelValues(kind, action).Inc()
}

// RecordOutbound records one outbound mutation attempt.
func RecordOutbound(action, status string) {
	OutboundMutations.WithLabelValues(action, status).Inc()
}

// RecordRemoteCall records one provider call.
func RecordRemoteCall(operation, status string, duration time.Duration) {
	RemoteCallDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
}

// RecordAnalyzed records one classifier outcome.
func RecordAnalyzed(status string) {
	MessagesAnalyzed.WithLabelValues(status).Inc()
}
