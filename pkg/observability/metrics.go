package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the authority service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization decision metrics
	DecisionsTotal   *prometheus.CounterVec
	ResolutionsTotal *prometheus.CounterVec
	LegacyFallbacks  prometheus.Counter
	StoreErrorsTotal *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// Assignment lifecycle metrics
	AssignmentChangesTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics. Passing a nil
// registry creates a private one.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authority_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authority_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authority_decisions_total",
				Help: "Authorization decisions by permission and outcome",
			},
			[]string{"permission", "outcome"},
		),
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authority_resolutions_total",
				Help: "Assignment resolutions by source",
			},
			[]string{"source"},
		),
		LegacyFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "authority_legacy_fallbacks_total",
				Help: "Resolutions answered from the legacy allow-list",
			},
		),
		StoreErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authority_store_errors_total",
				Help: "Role store failures by operation",
			},
			[]string{"operation"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "authority_cache_hits_total",
				Help: "Assignment cache hits",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "authority_cache_misses_total",
				Help: "Assignment cache misses",
			},
		),
		AssignmentChangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authority_assignment_changes_total",
				Help: "Assignment mutations by operation",
			},
			[]string{"operation"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DecisionsTotal,
		m.ResolutionsTotal,
		m.LegacyFallbacks,
		m.StoreErrorsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.AssignmentChangesTotal,
	)

	return m
}

// Handler returns the Prometheus exposition handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveDecision records an authorization decision.
func (m *Metrics) ObserveDecision(permission string, allowed bool) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.DecisionsTotal.WithLabelValues(permission, outcome).Inc()
}

// ObserveResolution records where an assignment resolution was answered
// from ("cache", "store", "legacy" or "none").
func (m *Metrics) ObserveResolution(source string) {
	m.ResolutionsTotal.WithLabelValues(source).Inc()
	if source == "legacy" {
		m.LegacyFallbacks.Inc()
	}
}

// ObserveStoreError records a store failure for the given operation.
func (m *Metrics) ObserveStoreError(operation string) {
	m.StoreErrorsTotal.WithLabelValues(operation).Inc()
}

// ObserveAssignmentChange records an assignment mutation
// ("assign", "update", "revoke" or "bootstrap").
func (m *Metrics) ObserveAssignmentChange(operation string) {
	m.AssignmentChangesTotal.WithLabelValues(operation).Inc()
}

// HTTPMiddleware instruments an HTTP handler with request metrics.
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(sw.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
