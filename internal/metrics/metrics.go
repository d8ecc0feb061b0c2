// Package metrics exposes Prometheus collectors for the ingest service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch attempt outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeStatus  = "status"
	OutcomeError   = "error"
)

var (
	fetchAttemptsTotal         *prometheus.CounterVec
	fetchFailuresTotal         *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	rateLimitWaitSeconds       prometheus.Histogram
	rowsTotal                  *prometheus.CounterVec
	recordsStoredTotal         *prometheus.CounterVec
	runsTotal                  *prometheus.CounterVec
	runDurationSeconds         prometheus.Histogram
	activeWorkers              prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_fetch_attempts_total",
				Help: "HTTP fetch attempts, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		fetchFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_fetch_failures_total",
				Help: "Fetches that exhausted every retry, labeled by site.",
			},
			[]string{"site"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_fetch_bytes_total",
				Help: "Bytes received from successful fetches, labeled by site.",
			},
			[]string{"site"},
		)

		rateLimitWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ingest_rate_limit_wait_seconds",
				Help:    "Time callers spent blocked on the global request ceiling.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60},
			},
		)

		rowsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_rows_total",
				Help: "Input rows processed, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		recordsStoredTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_records_stored_total",
				Help: "Canonical records handed to storage, labeled by role.",
			},
			[]string{"role"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_runs_total",
				Help: "Pipeline runs, labeled by final status.",
			},
			[]string{"status"},
		)

		runDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ingest_run_duration_seconds",
				Help:    "Wall-clock duration of pipeline runs.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ingest_active_workers",
				Help: "Rows currently being processed.",
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

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveFetchAttempt counts one HTTP attempt and, on success, its body size.
func ObserveFetchAttempt(rawURL, outcome string, bytesFetched int) {
	Init()
	site := SanitizeSite(rawURL)
	fetchAttemptsTotal.WithLabelValues(site, outcome).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveFetchFailure counts a fetch that ran out of attempts.
func ObserveFetchFailure(rawURL string) {
	Init()
	fetchFailuresTotal.WithLabelValues(SanitizeSite(rawURL)).Inc()
}

// ObserveRateLimitWait records time spent blocked on the ceiling.
func ObserveRateLimitWait(d time.Duration) {
	Init()
	rateLimitWaitSeconds.Observe(d.Seconds())
}

// ObserveRow counts one processed row.
func ObserveRow(source, outcome string) {
	Init()
	rowsTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveStored counts one stored record.
func ObserveStored(role string) {
	Init()
	recordsStoredTotal.WithLabelValues(role).Inc()
}

// ObserveRun records a finished run.
func ObserveRun(status string, duration time.Duration) {
	Init()
	runsTotal.WithLabelValues(status).Inc()
	runDurationSeconds.Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
