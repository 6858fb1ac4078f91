// Package metrics exposes Prometheus collectors for the monitor service.
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
	fetchTotal                 *prometheus.CounterVec
	recordsUpsertedTotal       *prometheus.CounterVec
	pagesFetchedTotal          prometheus.Counter
	tasksTotal                 *prometheus.CounterVec
	tasksInFlight              prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. It is safe to call more than once, and the
// Observe helpers call it themselves.
func Init() {
	once.Do(func() {
		fetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tiktok_fetch_total",
				Help: "Outbound API calls, labeled by endpoint and outcome.",
			},
			[]string{"endpoint", "outcome"},
		)

		recordsUpsertedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tiktok_records_upserted_total",
				Help: "Record upserts, labeled by kind and result.",
			},
			[]string{"kind", "result"},
		)

		pagesFetchedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tiktok_pages_fetched_total",
				Help: "Listing pages processed by user video crawls.",
			},
		)

		tasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tiktok_tasks_total",
				Help: "Scheduled monitor task runs, labeled by type and status.",
			},
			[]string{"type", "status"},
		)

		tasksInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tiktok_tasks_in_flight",
				Help: "Monitor tasks queued or running.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
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

// ObserveFetch counts one outbound call. outcome is "ok" or an absence reason.
func ObserveFetch(endpoint, outcome string) {
	Init()
	if endpoint == "" {
		endpoint = "unknown"
	}
	fetchTotal.WithLabelValues(endpoint, outcome).Inc()
}

// ObserveUpsert counts one record upsert.
func ObserveUpsert(kind string, err error) {
	Init()
	result := "ok"
	if err != nil {
		result = "error"
	}
	recordsUpsertedTotal.WithLabelValues(kind, result).Inc()
}

// ObservePage counts one processed listing page.
func ObservePage() {
	Init()
	pagesFetchedTotal.Inc()
}

// ObserveTask counts one finished monitor task.
func ObserveTask(taskType, status string) {
	Init()
	tasksTotal.WithLabelValues(taskType, status).Inc()
}

// IncTasksInFlight increments the in-flight task gauge.
func IncTasksInFlight() {
	Init()
	tasksInFlight.Inc()
}

// DecTasksInFlight decrements the in-flight task gauge.
func DecTasksInFlight() {
	Init()
	tasksInFlight.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
