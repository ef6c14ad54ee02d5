// Package middleware provides HTTP middleware for session resolution,
// request correlation and rate limiting.
package middleware

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/trackstackhq/trackstack/pkg/audit"
	"github.com/trackstackhq/trackstack/pkg/auth"
	"github.com/trackstackhq/trackstack/pkg/contextkeys"
	"github.com/trackstackhq/trackstack/pkg/httputil"
	"github.com/trackstackhq/trackstack/pkg/observability"
)

// Resolver turns bearer tokens into request-scoped identities. All variants
// share one resolution core; they differ only in what happens when no valid
// identity can be established.
type Resolver struct {
	svc      *auth.Service
	recorder *audit.Recorder
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewResolver creates a session resolver. recorder and metrics may be nil.
func NewResolver(svc *auth.Service, recorder *audit.Recorder, logger *observability.Logger, metrics *observability.Metrics) *Resolver {
	return &Resolver{svc: svc, recorder: recorder, logger: logger, metrics: metrics}
}

// RequireUser rejects requests without a valid user session with 401.
func (m *Resolver) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r2, err := m.resolveUser(r)
		if err != nil {
			m.unauthorized(w, err)
			return
		}
		m.trace(r2)
		next.ServeHTTP(w, r2)
	})
}

// RequireAdmin rejects requests without a valid admin session. A valid user
// token on an admin route yields 403, not 401.
func (m *Resolver) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := httputil.BearerToken(r)
		if token == "" {
			httputil.WriteUnauthorized(w, "missing bearer token")
			return
		}
		claims, err := m.svc.Tokens().Verify(token)
		if err != nil {
			m.countVerification("admin", false)
			m.unauthorized(w, err)
			return
		}
		admin, err := m.svc.ResolveAdmin(r.Context(), claims)
		if err != nil {
			m.countVerification("admin", false)
			if errors.Is(err, auth.ErrAdminRequired) {
				httputil.WriteForbidden(w, "admin access required")
				return
			}
			m.unauthorized(w, err)
			return
		}
		m.countVerification("admin", true)
		r2 := r.WithContext(contextkeys.WithAdmin(r.Context(), admin, claims))
		m.trace(r2)
		next.ServeHTTP(w, r2)
	})
}

// RequirePermission wraps RequireAdmin and additionally evaluates the given
// capability against the resolved admin.
func (m *Resolver) RequirePermission(capability string, next http.Handler) http.Handler {
	return m.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admin := contextkeys.AdminFrom(r.Context())
		if err := auth.Authorize(admin, capability); err != nil {
			// A stored set that cannot be parsed is a server fault, not a
			// denial. It still fails closed.
			if errors.Is(err, auth.ErrMalformedPermissions) {
				m.logger.FromContext(r.Context()).
					WithField("admin_id", admin.ExternalID).
					Error("malformed permission set, denying access")
				httputil.WriteInternalError(w)
				return
			}
			httputil.WriteForbidden(w, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// Optional resolves an identity when a valid token is present and proceeds
// anonymously otherwise. It never rejects a request.
func (m *Resolver) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if httputil.BearerToken(r) != "" {
			if r2, err := m.resolveUser(r); err == nil {
				r = r2
			}
		}
		m.trace(r)
		next.ServeHTTP(w, r)
	})
}

func (m *Resolver) resolveUser(r *http.Request) (*http.Request, error) {
	token := httputil.BearerToken(r)
	if token == "" {
		return nil, auth.ErrMissingToken
	}
	claims, err := m.svc.Tokens().Verify(token)
	if err != nil {
		m.countVerification("user", false)
		return nil, err
	}
	user, err := m.svc.ResolveUser(r.Context(), claims)
	if err != nil {
		m.countVerification("user", false)
		return nil, err
	}
	m.countVerification("user", true)
	return r.WithContext(contextkeys.WithUser(r.Context(), user, claims)), nil
}

// unauthorized maps resolution failures. A missing token or a dead account
// is 401; a token that fails verification is 403.
func (m *Resolver) unauthorized(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		httputil.WriteUnauthorized(w, "missing bearer token")
	case errors.Is(err, auth.ErrExpiredToken):
		httputil.WriteForbidden(w, "token expired")
	case errors.Is(err, auth.ErrInvalidToken):
		httputil.WriteForbidden(w, "invalid token")
	case errors.Is(err, auth.ErrAccountDeactivated), errors.Is(err, auth.ErrAccountNotFound):
		httputil.WriteUnauthorized(w, "account unavailable")
	default:
		httputil.WriteUnauthorized(w, "invalid token")
	}
}

func (m *Resolver) countVerification(kind string, ok bool) {
	if m.metrics == nil {
		return
	}
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	m.metrics.TokenVerificationsTotal.WithLabelValues(kind, outcome).Inc()
}

// trace emits an api_access activity record for the resolved request.
func (m *Resolver) trace(r *http.Request) {
	if m.recorder == nil {
		return
	}
	m.recorder.RecordRequest(r, audit.ActionAPIAccess, nil)
}

// RequestID assigns a correlation ID to each request and echoes it in the
// response headers.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := contextkeys.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
