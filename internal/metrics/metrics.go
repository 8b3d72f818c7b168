// Package metrics provides Prometheus metrics for newsentiment.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "newsentiment"

var (
	// IngestTotal counts ingestion runs by outcome.
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_total",
			Help:      "Total number of ingestion runs",
		},
		[]string{"scorer", "status"},
	)

	// ArticlesScored counts scored articles by strategy and resulting label.
	ArticlesScored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_scored_total",
			Help:      "Total number of articles scored",
		},
		[]string{"scorer", "label"},
	)

	// ScoringFailures counts articles that fell back to the neutral default.
	ScoringFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scoring_failures_total",
			Help:      "Articles whose agent pipeline failed and were scored neutral",
		},
		[]string{"stage"},
	)

	// StageDuration measures agent pipeline stage latency.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Duration of agent pipeline stages in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	// StoreWrites counts per-article insert outcomes.
	StoreWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_writes_total",
			Help:      "Article insert attempts by outcome",
		},
		[]string{"driver", "outcome"},
	)

	// PersistQueueDepth tracks batches waiting for the background persister.
	PersistQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "persist_queue_depth",
			Help:      "Number of batches waiting in the persist queue",
		},
	)

	// PersistOverflow counts batches saved inline because the queue was full.
	PersistOverflow = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_overflow_total",
			Help:      "Batches saved synchronously because the persist queue was full",
		},
	)

	// SearchRequests counts upstream search calls.
	SearchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Upstream search requests by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	// HTTPDuration measures API request latency.
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "code"},
	)
)

// RecordIngest records one ingestion run.
func RecordIngest(scorer, status string) {
	IngestTotal.WithLabelValues(scorer, status).Inc()
}

// RecordScored records one scored article.
func RecordScored(scorer, label string) {
	ArticlesScored.WithLabelValues(scorer, label).Inc()
}

// RecordScoringFailure records a soft failure at the given pipeline stage.
func RecordScoringFailure(stage string) {
	ScoringFailures.WithLabelValues(stage).Inc()
}

// ObserveStage records how long a pipeline stage took.
func ObserveStage(stage string, d time.Duration) {
	StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordStoreWrite records an insert outcome ("inserted", "duplicate", "error").
func RecordStoreWrite(driver, outcome string) {
	StoreWrites.WithLabelValues(driver, outcome).Inc()
}

// RecordSearch records an upstream search call.
func RecordSearch(provider, outcome string) {
	SearchRequests.WithLabelValues(provider, outcome).Inc()
}

// RecordHTTP records an API request.
func RecordHTTP(method, route string, code int, d time.Duration) {
	HTTPDuration.WithLabelValues(method, route, strconv.Itoa(code)).Observe(d.Seconds())
}

// Handler returns the Prometheus exposition handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
