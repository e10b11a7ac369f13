// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	harvestDocumentsTotal         *prometheus.CounterVec
	harvestSkippedTotal           *prometheus.CounterVec
	harvestErrorsTotal            *prometheus.CounterVec
	harvestSourcesTotal           *prometheus.CounterVec
	harvestCheckpointWritesTotal  *prometheus.CounterVec
	fetchAttemptsTotal            *prometheus.CounterVec
	fetchBytesTotal               *prometheus.CounterVec
	notifyFailuresTotal           *prometheus.CounterVec
	harvestRunDurationSeconds     *prometheus.HistogramVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec
	harvestRateLimitDelaysSeconds *prometheus.HistogramVec
	harvestActiveWorkers          prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		harvestDocumentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_documents_total",
				Help: "Documents extracted, labeled by source.",
			},
			[]string{"source"},
		)

		harvestSkippedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_skipped_total",
				Help: "Candidates skipped because they carried no content, labeled by source.",
			},
			[]string{"source"},
		)

		harvestErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_errors_total",
				Help: "Candidate and source failures, labeled by source and error kind.",
			},
			[]string{"source", "kind"},
		)

		harvestSourcesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_sources_total",
				Help: "Sources processed, labeled by terminal state.",
			},
			[]string{"state"},
		)

		harvestCheckpointWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_checkpoint_writes_total",
				Help: "Checkpoint writes, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_fetch_attempts_total",
				Help: "Individual fetch attempts, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_fetch_bytes_total",
				Help: "Bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		notifyFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_notify_failures_total",
				Help: "Notifications that exhausted retries and fell back to the local log.",
			},
			[]string{"severity"},
		)

		harvestRunDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvest_run_duration_seconds",
				Help:    "Wall-clock duration of harvesting runs, labeled by outcome.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"outcome"},
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

		harvestRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvest_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		harvestActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvest_active_workers",
				Help: "Number of pool workers currently processing a candidate.",
			},
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
	if err != nil || !strings.ContainsFunc(u.Hostname(), isHostRune) {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

func isHostRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveDocument counts an extracted document.
func ObserveDocument(source string) {
	Init()
	harvestDocumentsTotal.WithLabelValues(source).Inc()
}

// ObserveSkip counts a benign empty-content skip.
func ObserveSkip(source string) {
	Init()
	harvestSkippedTotal.WithLabelValues(source).Inc()
}

// ObserveError counts a recorded failure.
func ObserveError(source, kind string) {
	Init()
	harvestErrorsTotal.WithLabelValues(source, kind).Inc()
}

// ObserveSource counts a source reaching a terminal state.
func ObserveSource(state string) {
	Init()
	harvestSourcesTotal.WithLabelValues(state).Inc()
}

// ObserveCheckpointWrite counts a checkpoint write attempt.
func ObserveCheckpointWrite(ok bool) {
	Init()
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	harvestCheckpointWritesTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetchAttempt records one fetch attempt and the bytes it returned.
func ObserveFetchAttempt(locator, outcome string, bytesFetched int) {
	Init()
	site := SanitizeSite(locator)
	fetchAttemptsTotal.WithLabelValues(site, outcome).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveNotifyFailure counts a notification that fell back to the local log.
func ObserveNotifyFailure(severity string) {
	Init()
	notifyFailuresTotal.WithLabelValues(severity).Inc()
}

// ObserveRun records the duration of a full harvesting run.
func ObserveRun(outcome string, duration time.Duration) {
	Init()
	harvestRunDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	harvestRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active worker count.
func IncActiveWorkers() {
	Init()
	harvestActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active worker count.
func DecActiveWorkers() {
	Init()
	harvestActiveWorkers.Dec()
}
