// Package api exposes the HTTP surface: credential endpoints, session
// introspection and the admin console API.
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/trackstackhq/trackstack/pkg/audit"
	"github.com/trackstackhq/trackstack/pkg/auth"
	"github.com/trackstackhq/trackstack/pkg/httputil"
	"github.com/trackstackhq/trackstack/pkg/middleware"
	"github.com/trackstackhq/trackstack/pkg/observability"
	"github.com/trackstackhq/trackstack/pkg/storage"
)

// Pinger reports backing-store connectivity for readiness checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatsProvider computes admin dashboard statistics.
type StatsProvider interface {
	Stats(ctx context.Context) (*storage.DashboardStats, error)
}

// Server wires handlers, middleware and dependencies into a router.
type Server struct {
	svc          *auth.Service
	recorder     *audit.Recorder
	resolver     *middleware.Resolver
	logger       *observability.Logger
	metrics      *observability.Metrics
	pinger       Pinger
	stats        StatsProvider
	loginLimiter *middleware.RateLimiter
}

// Options configures optional server dependencies.
type Options struct {
	Metrics      *observability.Metrics
	LoginLimiter *middleware.RateLimiter
}

// NewServer creates the API server. pinger and stats are typically the
// storage.SQLStore; tests supply fakes.
func NewServer(svc *auth.Service, recorder *audit.Recorder, logger *observability.Logger, pinger Pinger, stats StatsProvider, opts Options) *Server {
	s := &Server{
		svc:          svc,
		recorder:     recorder,
		logger:       logger,
		metrics:      opts.Metrics,
		pinger:       pinger,
		stats:        stats,
		loginLimiter: opts.LoginLimiter,
	}
	s.resolver = middleware.NewResolver(svc, recorder, logger, opts.Metrics)
	return s
}

// Router builds the full route table with middleware applied.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestID)
	if s.metrics != nil {
		r.Use(s.metrics.Instrument)
	}

	s.registerAuthRoutes(r)
	s.registerAdminRoutes(r)

	r.HandleFunc("/healthz", s.healthz).Methods("GET")
	r.HandleFunc("/readyz", s.readyz).Methods("GET")
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}
	return r
}

// limited wraps credential handlers with the login rate limiter.
func (s *Server) limited(h http.HandlerFunc) http.Handler {
	if s.loginLimiter == nil {
		return h
	}
	return s.loginLimiter.Handler(h)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if err := s.pinger.Ping(r.Context()); err != nil {
		s.logger.FromContext(r.Context()).WithError(err).Error("readiness check failed")
		httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	httputil.WriteSuccess(w, map[string]string{"status": "ready"})
}
