// Package metrics provides Prometheus metrics for the API.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for API latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Metrics holds all Prometheus metric collectors for the API.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	RateLimited   *prometheus.CounterVec
	StageFailures *prometheus.CounterVec
	StoreDuration *prometheus.HistogramVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "devcamper_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "devcamper_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "devcamper_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "devcamper_ratelimit_rejections_total",
			Help: "Requests rejected by the rate limiter, by path prefix.",
		}, []string{"path_prefix"}),

		StageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "devcamper_pipeline_stage_failures_total",
			Help: "Requests diverted to the error handler, by failing pipeline stage.",
		}, []string{"stage"}),

		StoreDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "devcamper_store_operation_duration_seconds",
			Help:    "Document store call latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"operation", "collection"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.RateLimited,
		m.StageFailures,
		m.StoreDuration,
	)

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// knownPrefixes lists the allowed path label values (bounded cardinality).
var knownPrefixes = []string{
	"/api/v1/bootcamps",
	"/api/v1/courses",
	"/api/v1/reviews",
	"/api/v1/users",
	"/api/v1/auth",
	"/api/v1/status",
	"/api-docs",
	"/healthz",
	"/metrics",
}

// NormalizePath returns a bounded path label for Prometheus metrics.
func NormalizePath(path string) string {
	for _, prefix := range knownPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?") {
			return prefix
		}
	}
	return "other"
}
