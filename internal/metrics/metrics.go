// Package metrics exposes the bot's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CatalogCommits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movievault_catalog_commits_total",
			Help: "Catalog entry commit attempts by result",
		},
		[]string{"result"}, // "success", "failure"
	)

	UploadsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "movievault_uploads_rejected_total",
			Help: "Uploads refused because they came from outside the storage room",
		},
	)

	SearchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movievault_search_requests_total",
			Help: "Search requests by result kind",
		},
		[]string{"kind"}, // "direct", "suggestions", "too_short", "invalid", "error"
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "movievault_rate_limited_total",
			Help: "Search requests rejected by the per-user rate limiter",
		},
	)

	DeliveryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movievault_delivery_failures_total",
			Help: "Outbound messages that could not be delivered",
		},
		[]string{"operation"},
	)

	RetentionDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "movievault_retention_deleted_total",
			Help: "Tracked messages deleted by the retention sweep",
		},
	)

	RetentionFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "movievault_retention_failures_total",
			Help: "Tracked message deletions that failed and will be retried",
		},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "movievault_retention_sweep_duration_seconds",
			Help:    "Duration of retention sweeps",
			Buckets: prometheus.DefBuckets,
		},
	)

	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "movievault_active_workers",
			Help: "Per-user event workers currently running",
		},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "movievault_events_dropped_total",
			Help: "Inbound events refused because the user's queue was full",
		},
	)

	// CircuitBreakerState: 0 closed, 1 half-open, 2 open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "movievault_circuit_breaker_state",
			Help: "Current circuit breaker state per outbound target",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movievault_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
)

// RecordCommit counts one commit attempt.
func RecordCommit(err error) {
	if err != nil {
		CatalogCommits.WithLabelValues("failure").Inc()
		return
	}
	CatalogCommits.WithLabelValues("success").Inc()
}

func RecordSearch(kind string) {
	SearchRequests.WithLabelValues(kind).Inc()
}

func RecordDeliveryFailure(operation string) {
	DeliveryFailures.WithLabelValues(operation).Inc()
}

// RecordSweep records one retention pass.
func RecordSweep(duration time.Duration, deleted, failed int) {
	SweepDuration.Observe(duration.Seconds())
	RetentionDeleted.Add(float64(deleted))
	RetentionFailures.Add(float64(failed))
}
