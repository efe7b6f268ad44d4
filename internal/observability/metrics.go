// Package observability holds the Prometheus instrumentation shared across
// the service. Metrics are registered at import time; the API router mounts
// the scrape endpoint.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Swipes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swipequeue_swipes_total",
		Help: "Total number of swipes recorded.",
	}, []string{"direction"})

	BatchFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swipequeue_batch_flushes_total",
		Help: "Total number of batch flushes.",
	}, []string{"trigger", "outcome"}) // outcome: ok, partial, failed, empty

	JobsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swipequeue_jobs_submitted_total",
		Help: "Total number of job submissions accepted by the worker.",
	}, []string{"outcome"}) // outcome: created, already_queued

	JobsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swipequeue_jobs_dropped_total",
		Help: "Total number of jobs dropped without reaching the worker.",
	}, []string{"reason"}) // reason: invalid_url, retries_exhausted, rejected, stale_profile

	FlushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swipequeue_flush_duration_seconds",
		Help:    "Duration of batch flushes against the worker.",
		Buckets: prometheus.DefBuckets,
	})

	SnapshotEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swipequeue_snapshot_evictions_total",
		Help: "Total number of job snapshots evicted from the cache.",
	})

	PendingJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swipequeue_pending_jobs",
		Help: "Jobs accumulated or submitted but not yet acknowledged.",
	})
)
