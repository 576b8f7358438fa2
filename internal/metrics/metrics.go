// Bonussync - Loyalty Ledger Reconciliation Service
// Copyright 2026 LoyaltyOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/loyaltyops/bonussync

// Package metrics provides Prometheus instrumentation for bonussync.
//
// Exposed metric families cover the reconciliation passes (duration, record
// counts, skip reasons), the external source client (fetch attempts, retries,
// circuit breaker state) and the notification sweep (deliveries, failures,
// backlog). All collectors are registered with the default registry and served
// from the /metrics endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Reconciliation pass metrics
	PassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_pass_duration_seconds",
			Help:    "Duration of reconciliation passes in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
	)

	PassLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_pass_last_success_timestamp",
			Help: "Unix timestamp of the last fully completed reconciliation pass",
		},
	)

	PassesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_passes_skipped_total",
			Help: "Total number of passes skipped because a previous pass was still running",
		},
	)

	RecordsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_records_fetched_total",
			Help: "Total number of records fetched from the booking source",
		},
	)

	RecordsAwarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_records_awarded_total",
			Help: "Total number of records that produced a points award",
		},
	)

	RecordsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_records_skipped_total",
			Help: "Total number of records skipped during processing",
		},
		[]string{"reason"}, // "missing_id", "already_processed", "not_qualifying", "no_client", "unknown_client", "not_member", "malformed", "raced"
	)

	PointsAwarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_points_awarded_total",
			Help: "Total number of loyalty points credited to client balances",
		},
	)

	PageFetchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_page_fetch_size",
			Help:    "Number of records per fetched page",
			Buckets: []float64{1, 10, 25, 50, 100, 250, 500},
		},
	)

	// Source client metrics
	FetchRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "source_fetch_retries_total",
			Help: "Total number of retried page fetches against the booking source",
		},
	)

	FetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_fetch_errors_total",
			Help: "Total number of failed page fetches by error class",
		},
		[]string{"kind"}, // "network", "status", "decode", "breaker"
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through the circuit breaker",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	// Notification sweep metrics
	NotificationsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_sent_total",
			Help: "Total number of award notifications delivered",
		},
	)

	NotificationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_failures_total",
			Help: "Total number of failed notification deliveries",
		},
	)

	NotificationBacklog = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notify_backlog",
			Help: "Number of unnotified award entries observed by the last sweep",
		},
	)

	// Database metrics
	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation"},
	)
)

// RecordPass records the outcome of one reconciliation pass.
func RecordPass(duration time.Duration, completed bool) {
	PassDuration.Observe(duration.Seconds())
	if completed {
		PassLastSuccess.SetToCurrentTime()
	}
}

// RecordSkip increments the skip counter for the given reason.
func RecordSkip(reason string) {
	RecordsSkipped.WithLabelValues(reason).Inc()
}

// RecordAward records a successful award of points for one record.
func RecordAward(points int64) {
	RecordsAwarded.Inc()
	PointsAwarded.Add(float64(points))
}
