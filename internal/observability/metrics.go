// Package observability provides Prometheus metrics for the application.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tubegrab"

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds all application metrics.
type Metrics struct {
	// Job metrics
	JobsCreated    prometheus.Counter
	JobsCompleted  prometheus.Counter
	JobsFailed     prometheus.Counter
	JobsInProgress prometheus.Gauge
	JobDuration    prometheus.Histogram

	// Storage metrics
	CleanupJobsTotal prometheus.Counter
	CleanupDirsTotal prometheus.Counter
	StoredJobsTotal  prometheus.Gauge

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Proxy metrics
	ProxyRequestsTotal *prometheus.CounterVec
	ProxyFailures      *prometheus.CounterVec
	ProxiesAvailable   prometheus.Gauge

	// Downloader metrics
	StrategyAttempts *prometheus.CounterVec
	BotChallenges    *prometheus.CounterVec
	DownloaderErrors *prometheus.CounterVec

	// Lookup metrics
	MetadataRequests *prometheus.CounterVec
	SearchRequests   *prometheus.CounterVec
}

// New creates all application metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		JobsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "jobs", Name: "created_total",
			Help: "Total number of jobs created",
		}),
		JobsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "jobs", Name: "completed_total",
			Help: "Total number of jobs completed successfully",
		}),
		JobsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "jobs", Name: "failed_total",
			Help: "Total number of jobs that failed",
		}),
		JobsInProgress: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "jobs", Name: "in_progress",
			Help: "Number of jobs currently in progress",
		}),
		JobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "jobs", Name: "duration_seconds",
			Help:    "Histogram of job duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),

		CleanupJobsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "storage", Name: "cleanup_jobs_total",
			Help: "Total number of expired jobs cleaned up",
		}),
		CleanupDirsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "storage", Name: "cleanup_dirs_total",
			Help: "Total number of job work directories removed by cleanup",
		}),
		StoredJobsTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "storage", Name: "jobs_current",
			Help: "Current number of stored jobs",
		}),

		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "Histogram of HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		HTTPResponseSize: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "response_size_bytes",
			Help:    "Histogram of HTTP response sizes in bytes",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000, 100000000},
		}, []string{"method", "path"}),

		ProxyRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "proxy", Name: "requests_total",
			Help: "Total number of download attempts made through proxies",
		}, []string{"proxy"}),
		ProxyFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "proxy", Name: "failures_total",
			Help: "Total number of proxy failures",
		}, []string{"proxy"}),
		ProxiesAvailable: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "proxy", Name: "available",
			Help: "Number of currently available proxies",
		}),

		StrategyAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "downloader", Name: "strategy_attempts_total",
			Help: "Total number of download attempts per strategy and result",
		}, []string{"strategy", "result"}),
		BotChallenges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "downloader", Name: "bot_challenges_total",
			Help: "Total number of bot challenges per strategy",
		}, []string{"strategy"}),
		DownloaderErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "downloader", Name: "errors_total",
			Help: "Total number of failed downloads per error kind",
		}, []string{"kind"}),

		MetadataRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "metadata", Name: "requests_total",
			Help: "Total number of metadata queries",
		}, []string{"result"}),
		SearchRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "search", Name: "requests_total",
			Help: "Total number of search API calls",
		}, []string{"result"}),
	}
}

// NewRegistry returns a registry with the Go runtime and process collectors registered.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return reg
}

// Handler returns the Prometheus HTTP handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// JobTimer returns a function to record job duration.
func (m *Metrics) JobTimer() func() {
	start := time.Now()

	return func() {
		m.JobDuration.Observe(time.Since(start).Seconds())
	}
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration, size int) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(size))
}

// RecordJobCreated increments the jobs created counter.
func (m *Metrics) RecordJobCreated() {
	m.JobsCreated.Inc()
	m.JobsInProgress.Inc()
}

// RecordJobCompleted records a completed job.
func (m *Metrics) RecordJobCompleted() {
	m.JobsCompleted.Inc()
	m.JobsInProgress.Dec()
}

// RecordJobFailed records a failed job.
func (m *Metrics) RecordJobFailed() {
	m.JobsFailed.Inc()
	m.JobsInProgress.Dec()
}

// RecordCleanup records cleanup metrics.
func (m *Metrics) RecordCleanup(jobs, dirs int) {
	m.CleanupJobsTotal.Add(float64(jobs))
	m.CleanupDirsTotal.Add(float64(dirs))
}

// RecordAttempt records one strategy attempt.
func (m *Metrics) RecordAttempt(strategy string, ok bool) {
	m.StrategyAttempts.WithLabelValues(strategy, result(ok)).Inc()
}

// RecordBotChallenge records a bot challenge hit by strategy.
func (m *Metrics) RecordBotChallenge(strategy string) {
	m.BotChallenges.WithLabelValues(strategy).Inc()
}

// RecordDownloaderError records a failed download by error kind.
func (m *Metrics) RecordDownloaderError(kind string) {
	m.DownloaderErrors.WithLabelValues(kind).Inc()
}

// RecordMetadataRequest records a metadata query.
func (m *Metrics) RecordMetadataRequest(ok bool) {
	m.MetadataRequests.WithLabelValues(result(ok)).Inc()
}

// RecordSearchRequest records a search API call.
func (m *Metrics) RecordSearchRequest(ok bool) {
	m.SearchRequests.WithLabelValues(result(ok)).Inc()
}

// RecordProxyRequest records a proxy request.
func (m *Metrics) RecordProxyRequest(proxy string) {
	m.ProxyRequestsTotal.WithLabelValues(proxy).Inc()
}

// RecordProxyFailure records a proxy failure.
func (m *Metrics) RecordProxyFailure(proxy string) {
	m.ProxyFailures.WithLabelValues(proxy).Inc()
}

// SetProxiesAvailable sets the number of available proxies.
func (m *Metrics) SetProxiesAvailable(count int) {
	m.ProxiesAvailable.Set(float64(count))
}

// SetStoredJobs sets the number of stored jobs.
func (m *Metrics) SetStoredJobs(count int) {
	m.StoredJobsTotal.Set(float64(count))
}

func result(ok bool) string {
	if ok {
		return ResultSuccess
	}

	return ResultFailure
}
