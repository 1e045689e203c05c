// Package metrics exposes Prometheus collectors for the crawler service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	candidatesTotal            *prometheus.CounterVec
	pagesTotal                 *prometheus.CounterVec
	taskRetriesTotal           *prometheus.CounterVec
	workerFailuresTotal        *prometheus.CounterVec
	phaseDurationSeconds       *prometheus.HistogramVec
	queueDepth                 *prometheus.GaugeVec
	activeWorkers              prometheus.Gauge
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		candidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_candidates_total",
				Help: "Candidates reconciled, labeled by entity kind and outcome (added, updated, ignored, deleted).",
			},
			[]string{"kind", "outcome"},
		)

		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Portal pages fetched, labeled by HTTP method and result.",
			},
			[]string{"method", "result"},
		)

		taskRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_task_retries_total",
				Help: "Task attempts that failed and were retried, labeled by phase.",
			},
			[]string{"phase"},
		)

		workerFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_worker_failures_total",
				Help: "Workers terminated by the failure ceiling or an aborting error, labeled by phase.",
			},
			[]string{"phase"},
		)

		phaseDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_phase_duration_seconds",
				Help:    "Histogram of crawl phase durations.",
				Buckets: []float64{1, 10, 60, 300, 900, 3600, 14400},
			},
			[]string{"phase"},
		)

		queueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "crawler_queue_depth",
				Help: "Targets remaining in the phase work queue.",
			},
			[]string{"phase"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active_workers",
				Help: "Number of workers currently processing a target.",
			},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of status-server request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCandidate counts one reconciled candidate.
func ObserveCandidate(kind, outcome string) {
	candidatesTotal.WithLabelValues(kind, outcome).Inc()
}

// ObservePage counts one fetched portal page.
func ObservePage(method, result string) {
	pagesTotal.WithLabelValues(method, result).Inc()
}

// ObserveTaskRetry counts one failed attempt re-entering the retry loop.
func ObserveTaskRetry(phase string) {
	taskRetriesTotal.WithLabelValues(phase).Inc()
}

// ObserveWorkerFailure counts one worker terminating before queue
// exhaustion.
func ObserveWorkerFailure(phase string) {
	workerFailuresTotal.WithLabelValues(phase).Inc()
}

// ObservePhase records how long a crawl phase took.
func ObservePhase(phase string, duration time.Duration) {
	phaseDurationSeconds.WithLabelValues(phase).Observe(duration.Seconds())
}

// SetQueueDepth reports the remaining targets of a phase queue.
func SetQueueDepth(phase string, depth int) {
	queueDepth.WithLabelValues(phase).Set(float64(depth))
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// ObserveHTTPRequest records one status-server request.
func ObserveHTTPRequest(method, route string, duration time.Duration) {
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
