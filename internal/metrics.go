package internal

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for HTTP requests, workflow outcomes and TMS calls
type Metrics struct {
	reqTotal        *prometheus.CounterVec
	reqLatency      *prometheus.HistogramVec
	outcomes        *prometheus.CounterVec
	accountsCreated prometheus.Counter
	partials        prometheus.Counter
	upstream        *prometheus.HistogramVec
	registry        *prometheus.Registry
}

// NewMetrics creates a new Metrics instance with a private Prometheus registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	reqTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	reqLatency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	outcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tms_provision_outcomes_total",
			Help: "Provisioning workflow runs by final state",
		},
		[]string{"state"},
	)

	accountsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tms_accounts_created_total",
		Help: "TMS accounts created by the workflow",
	})

	partials := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tms_provision_partial_total",
		Help: "Runs where at least one location contact could not be attached",
	})

	upstream := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tms_upstream_request_duration_seconds",
			Help:    "Latency of outbound TMS calls in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "result"},
	)

	registry.MustRegister(reqTotal, reqLatency, outcomes, accountsCreated, partials, upstream)

	return &Metrics{
		reqTotal:        reqTotal,
		reqLatency:      reqLatency,
		outcomes:        outcomes,
		accountsCreated: accountsCreated,
		partials:        partials,
		upstream:        upstream,
		registry:        registry,
	}
}

// Middleware returns a Chi middleware that collects metrics
func (m *Metrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(rw, r)

			// Chi's route pattern keeps label cardinality bounded
			path := r.URL.Path
			if chiCtx := chi.RouteContext(r.Context()); chiCtx != nil && len(chiCtx.RoutePatterns) > 0 {
				path = chiCtx.RoutePattern()
			}

			status := http.StatusText(rw.code)
			m.reqTotal.WithLabelValues(r.Method, path, status).Inc()
			m.reqLatency.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		})
	}
}

// ObserveOutcome counts a finished workflow run
func (m *Metrics) ObserveOutcome(state string, created, partial bool) {
	m.outcomes.WithLabelValues(state).Inc()
	if created {
		m.accountsCreated.Inc()
	}
	if partial {
		m.partials.Inc()
	}
}

// ObserveUpstream records the latency of one TMS call
func (m *Metrics) ObserveUpstream(endpoint, result string, elapsed time.Duration) {
	m.upstream.WithLabelValues(endpoint, result).Observe(elapsed.Seconds())
}

// Handler returns an http.Handler that serves Prometheus metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// statusRecorder captures the HTTP status code for metrics
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.code = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	return sr.ResponseWriter.Write(b)
}

// Unwrap exposes the underlying writer to http.ResponseController
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}
