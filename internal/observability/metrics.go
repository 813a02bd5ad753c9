package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the console's Prometheus metrics.
type Metrics struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	assignmentOutcomes *prometheus.CounterVec
	permissionSaves    *prometheus.CounterVec
	invariantFindings  *prometheus.CounterVec
}

// NewMetrics builds a registry with HTTP and authorization-engine metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "console_http_requests_total",
		Help: "HTTP requests partitioned by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "console_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	assignments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "console_assignment_outcomes_total",
		Help: "Per-cinema assign/unassign outcomes reported by the assignment API.",
	}, []string{"op", "status"})
	saves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "console_permission_saves_total",
		Help: "Permission save attempts by result.",
	}, []string{"result"})
	findings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "console_invariant_findings_total",
		Help: "Assignment and grant invariant violations found by the audit job.",
	}, []string{"kind"})
	registry.MustRegister(requests, duration, assignments, saves, findings)
	return &Metrics{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:      requests,
		requestDuration:    duration,
		assignmentOutcomes: assignments,
		permissionSaves:    saves,
		invariantFindings:  findings,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveAssignment counts one per-cinema assign or unassign outcome.
func (m *Metrics) ObserveAssignment(op, status string) {
	if m == nil {
		return
	}
	m.assignmentOutcomes.WithLabelValues(op, status).Inc()
}

// ObservePermissionSave counts one save attempt.
func (m *Metrics) ObservePermissionSave(result string) {
	if m == nil {
		return
	}
	m.permissionSaves.WithLabelValues(result).Inc()
}

// AddInvariantFindings counts violations of one kind.
func (m *Metrics) AddInvariantFindings(kind string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.invariantFindings.WithLabelValues(kind).Add(float64(count))
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
