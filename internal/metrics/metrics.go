// Package metrics exposes Prometheus collectors for the leadership engine.
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

var (
	pageFetchesTotal             *prometheus.CounterVec
	pageBytesTotal               *prometheus.CounterVec
	escalationsTotal             prometheus.Counter
	companiesTotal               *prometheus.CounterVec
	companyDurationSeconds       prometheus.Histogram
	cacheLookupsTotal            *prometheus.CounterVec
	candidatesTotal              *prometheus.CounterVec
	httpRequestsTotal            *prometheus.CounterVec
	httpRequestDurationSeconds   *prometheus.HistogramVec
	robotsFallbacksTotal         prometheus.Counter
	activeWorkers                prometheus.Gauge
	politenessDelaySeconds       *prometheus.HistogramVec
	resultNotificationsFailTotal prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call repeatedly.
func Init() {
	once.Do(func() {
		pageFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadfinder_page_fetches_total",
				Help: "Pages fetched, labeled by fetch mode and result.",
			},
			[]string{"mode", "result"},
		)

		pageBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadfinder_page_bytes_total",
				Help: "Bytes of markup fetched, labeled by fetch mode.",
			},
			[]string{"mode"},
		)

		escalationsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "leadfinder_fetch_escalations_total",
				Help: "Company runs that switched to browser rendering.",
			},
		)

		companiesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadfinder_companies_total",
				Help: "Companies processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		companyDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "leadfinder_company_duration_seconds",
				Help:    "Wall-clock time spent per company run.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 180, 300},
			},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadfinder_cache_lookups_total",
				Help: "Result cache lookups, labeled by result (hit, miss, error).",
			},
			[]string{"result"},
		)

		candidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadfinder_candidates_total",
				Help: "Candidates that survived validation, labeled by extraction method.",
			},
			[]string{"method"},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120},
			},
			[]string{"method", "route"},
		)

		robotsFallbacksTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "leadfinder_robots_probe_fallbacks_total",
				Help: "robots.txt probes answered with allow-all after repeated TLS timeouts.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "leadfinder_active_workers",
				Help: "Number of workers currently processing a company.",
			},
		)

		politenessDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leadfinder_politeness_delay_seconds",
				Help:    "Per-host politeness wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		resultNotificationsFailTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "leadfinder_result_notifications_failed_total",
				Help: "Result notifications that could not be published.",
			},
		)
	})
}

// SanitizeSite extracts a lowercase hostname, or "unknown" when invalid.
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
	return promhttp.Handler()
}

// ObservePageFetch records one page fetch in the given mode ("plain" or "browser").
func ObservePageFetch(mode, result string, bytesFetched int) {
	Init()
	pageFetchesTotal.WithLabelValues(mode, result).Inc()
	if bytesFetched > 0 {
		pageBytesTotal.WithLabelValues(mode).Add(float64(bytesFetched))
	}
}

// ObserveEscalation counts a sticky switch to browser rendering.
func ObserveEscalation() {
	Init()
	escalationsTotal.Inc()
}

// ObserveCompany records a finished company run.
func ObserveCompany(outcome string, elapsed time.Duration) {
	Init()
	companiesTotal.WithLabelValues(outcome).Inc()
	companyDurationSeconds.Observe(elapsed.Seconds())
}

// ObserveCacheLookup records a result cache lookup.
func ObserveCacheLookup(result string) {
	Init()
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveCandidate records a validated candidate.
func ObserveCandidate(method string) {
	Init()
	candidatesTotal.WithLabelValues(method).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRobotsFallback counts allow-all robots.txt fallbacks.
func ObserveRobotsFallback() {
	Init()
	robotsFallbacksTotal.Inc()
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

// ObservePolitenessDelay records the duration of a per-host wait.
func ObservePolitenessDelay(domain string, duration time.Duration) {
	Init()
	politenessDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveNotificationFailure counts a failed result notification.
func ObserveNotificationFailure() {
	Init()
	resultNotificationsFailTotal.Inc()
}
