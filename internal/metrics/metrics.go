// Package metrics exposes Prometheus collectors for the ingestion pipeline.
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
	fetchesTotal          *prometheus.CounterVec
	fetchDurationSeconds  *prometheus.HistogramVec
	itemsExtractedTotal   *prometheus.CounterVec
	duplicatesTotal       *prometheus.CounterVec
	spamFlaggedTotal      prometheus.Counter
	itemsIndexedTotal     *prometheus.CounterVec
	queriesTotal          *prometheus.CounterVec
	trendingWindowsTotal  prometheus.Counter
	seedQueriesTotal      prometheus.Counter
	activeWorkers         *prometheus.GaugeVec
	rateLimitDelaySeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_fetches_total",
				Help: "Total fetch task resolutions, labeled by domain and outcome.",
			},
			[]string{"domain", "outcome"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies, labeled by domain.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"domain"},
		)

		itemsExtractedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_items_extracted_total",
				Help: "Total extraction attempts, labeled by status.",
			},
			[]string{"status"},
		)

		duplicatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_duplicates_total",
				Help: "Total duplicate classifications, labeled by kind (exact/near).",
			},
			[]string{"kind"},
		)

		spamFlaggedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_spam_flagged_total",
				Help: "Total items falling below the quality cutoff.",
			},
		)

		itemsIndexedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_items_indexed_total",
				Help: "Total items indexed, labeled by backend.",
			},
			[]string{"backend"},
		)

		queriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rank_queries_total",
				Help: "Total ranked queries served, labeled by backend and cache state.",
			},
			[]string{"backend", "cached"},
		)

		trendingWindowsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "trending_windows_total",
				Help: "Total trending windows computed.",
			},
		)

		seedQueriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "trending_seed_queries_total",
				Help: "Total discovery seed queries emitted back to the scheduler.",
			},
		)

		activeWorkers = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ingest_active_workers",
				Help: "Workers currently processing a task, labeled by pool.",
			},
			[]string{"pool"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_rate_limit_delay_seconds",
				Help:    "Histogram of politeness wait durations, labeled by domain.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

// Handler returns an http.Handler exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records a fetch resolution.
func ObserveFetch(domain, outcome string, duration time.Duration) {
	Init()
	fetchesTotal.WithLabelValues(domain, outcome).Inc()
	fetchDurationSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveExtraction records an extraction attempt outcome.
func ObserveExtraction(status string) {
	Init()
	itemsExtractedTotal.WithLabelValues(status).Inc()
}

// ObserveDuplicate records a duplicate classification.
func ObserveDuplicate(kind string) {
	Init()
	duplicatesTotal.WithLabelValues(kind).Inc()
}

// ObserveSpam records an item flagged as spam.
func ObserveSpam() {
	Init()
	spamFlaggedTotal.Inc()
}

// ObserveIndexed records a successful index upsert.
func ObserveIndexed(backend string) {
	Init()
	itemsIndexedTotal.WithLabelValues(backend).Inc()
}

// ObserveQuery records a served ranked query.
func ObserveQuery(backend string, fromCache bool) {
	Init()
	queriesTotal.WithLabelValues(backend, strconv.FormatBool(fromCache)).Inc()
}

// ObserveTrendingWindow records a completed trending recompute.
func ObserveTrendingWindow() {
	Init()
	trendingWindowsTotal.Inc()
}

// ObserveSeedQuery records an emitted discovery seed.
func ObserveSeedQuery() {
	Init()
	seedQueriesTotal.Inc()
}

// IncActiveWorkers increments the active workers gauge for a pool.
func IncActiveWorkers(pool string) {
	Init()
	activeWorkers.WithLabelValues(pool).Inc()
}

// DecActiveWorkers decrements the active workers gauge for a pool.
func DecActiveWorkers(pool string) {
	Init()
	activeWorkers.WithLabelValues(pool).Dec()
}

// ObserveRateLimitDelay records the duration of a politeness wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
