package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authentication metrics
	LoginsTotal             *prometheus.CounterVec
	RegistrationsTotal      prometheus.Counter
	TokenVerificationsTotal *prometheus.CounterVec
	MasterLoginFailures     prometheus.Counter

	// Audit metrics
	AuditRecordsTotal prometheus.Counter
	AuditDropsTotal   prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers all metrics on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trackstack_http_requests_total",
			Help: "Total HTTP requests by method, path and status code",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trackstack_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		LoginsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trackstack_logins_total",
			Help: "Login attempts by kind (user, admin, master) and outcome",
		}, []string{"kind", "outcome"}),
		RegistrationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trackstack_registrations_total",
			Help: "Successful user registrations",
		}),
		TokenVerificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trackstack_token_verifications_total",
			Help: "Bearer token verifications by kind and outcome",
		}, []string{"kind", "outcome"}),
		MasterLoginFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trackstack_master_login_failures_total",
			Help: "Failed attempts on the master escalation path",
		}),
		AuditRecordsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trackstack_audit_records_total",
			Help: "Activity records submitted to the audit recorder",
		}),
		AuditDropsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trackstack_audit_drops_total",
			Help: "Activity records dropped because persistence failed",
		}),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.LoginsTotal,
		m.RegistrationsTotal,
		m.TokenVerificationsTotal,
		m.MasterLoginFailures,
		m.AuditRecordsTotal,
		m.AuditDropsTotal,
	)
	return m
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// statusRecorder captures the response status code for instrumentation.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.written {
		r.status = code
		r.written = true
		r.ResponseWriter.WriteHeader(code)
	}
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.written {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(b)
}

// Instrument wraps a handler with request count and latency metrics. The
// path label uses the mux route template, not the raw URL, to bound
// cardinality.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
