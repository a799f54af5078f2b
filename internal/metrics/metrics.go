// Vidrec - Per-Device Video Recommendation Service
// Copyright 2026 Clipstream
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipstream/vidrec

// Package metrics exposes Prometheus instrumentation for the
// recommendation service: HTTP traffic, engine operations, recall cache
// efficiency, search and store failures, and behavior ingestion.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidrec_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vidrec_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vidrec_api_active_requests",
			Help: "Number of API requests currently in flight",
		},
	)

	// Engine metrics
	HotPoolSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vidrec_hot_pool_size",
			Help: "Number of videos in the hot pool mirror",
		},
		[]string{"variant"},
	)

	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidrec_ledger_merges_total",
			Help: "Total number of ledger merge attempts",
		},
		[]string{"variant", "result"}, // "applied", "empty_ledger", "no_candidates", "store_error"
	)

	DrainsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidrec_ledger_drains_total",
			Help: "Total number of ledger drain reads",
		},
		[]string{"variant", "source"}, // "ledger", "hot_pool"
	)

	RecallCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vidrec_recall_cache_hits_total",
			Help: "Total number of similarity recall cache hits",
		},
	)

	RecallCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vidrec_recall_cache_misses_total",
			Help: "Total number of similarity recall cache misses",
		},
	)

	// Behavior ingestion metrics
	BehaviorAccepted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidrec_behavior_accepted_total",
			Help: "Total number of behavior events accepted for dispatch",
		},
		[]string{"operation"},
	)

	BehaviorDebounced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidrec_behavior_debounced_total",
			Help: "Total number of behavior events dropped by the debounce marker",
		},
		[]string{"operation"},
	)

	TasksPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vidrec_tasks_published_total",
			Help: "Total number of update tasks published to the queue",
		},
	)

	TasksConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidrec_tasks_consumed_total",
			Help: "Total number of update tasks consumed from the queue",
		},
		[]string{"result"}, // "ok", "invalid", "error"
	)

	// External collaborator failures
	SearchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidrec_search_errors_total",
			Help: "Total number of content index query failures",
		},
		[]string{"query"}, // "hot", "tag_match", "get"
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidrec_store_errors_total",
			Help: "Total number of shared store operation failures",
		},
		[]string{"op"},
	)

	PublishResolveErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vidrec_publish_resolve_errors_total",
			Help: "Total number of publish-id resolution batch failures",
		},
	)
)

// RecordAPIRequest records a completed API request.
func RecordAPIRequest(method, path, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, path, status).Inc()
	APIRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(start bool) {
	if start {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
