// PermitWatch - Municipal Permit Tracking and Subscriber Digest Delivery
// Copyright 2026 PermitWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/permitwatch/permitwatch

// Package metrics provides Prometheus instrumentation for:
// - Feed ingestion outcomes per city
// - Digest computation and dispatch
// - API endpoint latency and throughput
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics

	PermitsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permits_ingested_total",
			Help: "Total number of new permits persisted, by city",
		},
		[]string{"city"},
	)

	PermitsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permits_rejected_total",
			Help: "Total number of feed rows rejected for missing permit id, by city",
		},
		[]string{"city"},
	)

	PermitsDuplicate = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permits_duplicate_total",
			Help: "Total number of feed rows skipped as already-stored natural keys, by city",
		},
		[]string{"city"},
	)

	IngestRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_runs_total",
			Help: "Total number of feed ingestion runs, by city and outcome",
		},
		[]string{"city", "status"}, // status: "success", "fetch_failed", "corrupt", "error"
	)

	IngestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_run_duration_seconds",
			Help:    "Duration of feed ingestion runs in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"city"},
	)

	FeedBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "feed_circuit_breaker_state",
			Help: "Feed circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"breaker"},
	)

	// Digest metrics

	DigestRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digest_runs_total",
			Help: "Total number of digest runs, by outcome",
		},
		[]string{"status"}, // "success", "partial", "error"
	)

	DigestsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digests_dispatched_total",
			Help: "Total number of cohort digest dispatches, by channel and outcome",
		},
		[]string{"channel", "status"}, // status: "sent", "failed", "skipped_empty"
	)

	SubscribersNotified = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "digest_subscribers_notified_total",
			Help: "Total number of subscriptions whose last_sent was advanced by a successful dispatch",
		},
	)

	DigestDispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "digest_dispatch_duration_seconds",
			Help:    "Duration of a single cohort dispatch in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	// API metrics

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)
)

// RecordIngestRun records one ingestion run's outcome and row tallies.
func RecordIngestRun(city, status string, duration time.Duration, accepted, rejected, duplicates int) {
	IngestRuns.WithLabelValues(city, status).Inc()
	IngestDuration.WithLabelValues(city).Observe(duration.Seconds())
	PermitsIngested.WithLabelValues(city).Add(float64(accepted))
	PermitsRejected.WithLabelValues(city).Add(float64(rejected))
	PermitsDuplicate.WithLabelValues(city).Add(float64(duplicates))
}

// RecordDispatch records one cohort dispatch attempt's final outcome.
func RecordDispatch(channel, status string, duration time.Duration, recipients int) {
	DigestsDispatched.WithLabelValues(channel, status).Inc()
	DigestDispatchDuration.WithLabelValues(channel).Observe(duration.Seconds())
	if status == "sent" {
		SubscribersNotified.Add(float64(recipients))
	}
}

// RecordAPIRequest records a completed HTTP request.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	code := strconv.Itoa(statusCode)
	APIRequestDuration.WithLabelValues(method, endpoint, code).Observe(duration.Seconds())
	APIRequestsTotal.WithLabelValues(method, endpoint, code).Inc()
}
