// Package metrics exposes Prometheus collectors for the ingestion service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ingestRunsTotal          *prometheus.CounterVec
	ingestPostingsTotal      *prometheus.CounterVec
	ingestRunDurationSeconds *prometheus.HistogramVec
	ingestDegradedSources    *prometheus.GaugeVec
	ingestActiveWorkers      prometheus.Gauge
	ingestCleanupRowsTotal   prometheus.Counter
	httpRequestsTotal        *prometheus.CounterVec
	httpRequestDuration      *prometheus.HistogramVec
	rateLimitDelaySeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call multiple
// times.
func Init() {
	once.Do(func() {
		ingestRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_runs_total",
				Help: "Total crawl runs executed, labeled by source and terminal status.",
			},
			[]string{"source", "status"},
		)

		ingestPostingsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_postings_total",
				Help: "Total posting records handled, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		ingestRunDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_run_duration_seconds",
				Help:    "Histogram of crawl run durations, labeled by source.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"source"},
		)

		ingestDegradedSources = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ingest_degraded_sources",
				Help: "1 when a source has exhausted its retry budget, else 0.",
			},
			[]string{"source"},
		)

		ingestActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ingest_active_workers",
				Help: "Number of workers currently executing a run.",
			},
		)

		ingestCleanupRowsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_cleanup_deactivated_total",
				Help: "Total job rows deactivated by retention cleanup.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests served, labeled by method, route, and status.",
			},
			[]string{"method", "route", "status"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request durations, labeled by method and route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_rate_limit_delay_seconds",
				Help:    "Histogram of delays introduced by per-host rate limiting.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"host"},
		)
	})
}

// ObserveRun records a finished run's terminal status and duration.
func ObserveRun(source, status string, duration time.Duration) {
	if ingestRunsTotal == nil {
		return
	}
	ingestRunsTotal.WithLabelValues(source, status).Inc()
	ingestRunDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
}

// IncPosting counts one record outcome (created, updated, rejected,
// duplicate).
func IncPosting(source, outcome string) {
	if ingestPostingsTotal == nil {
		return
	}
	ingestPostingsTotal.WithLabelValues(source, outcome).Inc()
}

// SetDegraded raises or clears the operator-visible degraded flag for a
// source.
func SetDegraded(source string, degraded bool) {
	if ingestDegradedSources == nil {
		return
	}
	v := 0.0
	if degraded {
		v = 1.0
	}
	ingestDegradedSources.WithLabelValues(source).Set(v)
}

// WorkerStarted marks a worker busy.
func WorkerStarted() {
	if ingestActiveWorkers != nil {
		ingestActiveWorkers.Inc()
	}
}

// WorkerFinished marks a worker idle again.
func WorkerFinished() {
	if ingestActiveWorkers != nil {
		ingestActiveWorkers.Dec()
	}
}

// AddCleanupRows counts rows deactivated by a cleanup pass.
func AddCleanupRows(n int64) {
	if ingestCleanupRowsTotal != nil && n > 0 {
		ingestCleanupRowsTotal.Add(float64(n))
	}
}

// ObserveHTTPRequest records one served HTTP request.
func ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records time spent waiting on a host's limiter.
func ObserveRateLimitDelay(host string, delay time.Duration) {
	if rateLimitDelaySeconds != nil {
		rateLimitDelaySeconds.WithLabelValues(host).Observe(delay.Seconds())
	}
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
