package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/trackstackhq/trackstack/pkg/audit"
	"github.com/trackstackhq/trackstack/pkg/auth"
	"github.com/trackstackhq/trackstack/pkg/contextkeys"
	"github.com/trackstackhq/trackstack/pkg/httputil"
)

func (s *Server) registerAuthRoutes(r *mux.Router) {
	r.Handle("/auth/register", s.limited(s.register)).Methods("POST")
	r.Handle("/auth/login", s.limited(s.login)).Methods("POST")
	r.Handle("/auth/admin/login", s.limited(s.adminLogin)).Methods("POST")
	r.Handle("/admin/master-login", s.limited(s.masterLogin)).Methods("POST")

	r.HandleFunc("/auth/verify", s.verify).Methods("GET")
	r.Handle("/auth/session", s.resolver.Optional(http.HandlerFunc(s.session))).Methods("GET")
	r.HandleFunc("/auth/refresh", s.refresh).Methods("POST")
	r.Handle("/auth/logout", s.resolver.RequireUser(http.HandlerFunc(s.logout))).Methods("POST")
	r.Handle("/auth/me", s.resolver.RequireUser(http.HandlerFunc(s.me))).Methods("GET")
}

type tokenResponse struct {
	Token string      `json:"token"`
	User  interface{} `json:"user,omitempty"`
	Admin interface{} `json:"admin,omitempty"`
}

// register handles POST /auth/register
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.WriteValidationError(w, "invalid request body")
		return
	}

	user, token, err := s.svc.RegisterUser(r.Context(), in)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	if s.metrics != nil {
		s.metrics.RegistrationsTotal.Inc()
	}
	s.recorder.RecordRequest(r, audit.ActionAuthRegister, map[string]interface{}{
		"user_id": user.ExternalID,
	})
	httputil.WriteCreated(w, tokenResponse{Token: token, User: user.Public()})
}

// login handles POST /auth/login
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, "invalid request body")
		return
	}

	user, token, err := s.svc.LoginUser(r.Context(), req.Email, req.Password)
	if err != nil {
		s.countLogin("user", false)
		s.recorder.RecordRequest(r, audit.ActionAuthLoginFailed, nil)
		s.writeAuthError(w, r, err)
		return
	}

	s.countLogin("user", true)
	s.recorder.RecordRequest(r, audit.ActionAuthLogin, map[string]interface{}{
		"user_id": user.ExternalID,
	})
	httputil.WriteSuccess(w, tokenResponse{Token: token, User: user.Public()})
}

// adminLogin handles POST /auth/admin/login
func (s *Server) adminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Login    string `json:"login"`
		Password string `json:"password"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, "invalid request body")
		return
	}

	admin, token, err := s.svc.LoginAdmin(r.Context(), req.Login, req.Password)
	if err != nil {
		s.countLogin("admin", false)
		s.recorder.RecordRequest(r, audit.ActionAdminLoginFailed, nil)
		s.writeAuthError(w, r, err)
		return
	}

	s.countLogin("admin", true)
	s.recorder.RecordRequest(r, audit.ActionAdminLogin, map[string]interface{}{
		"admin_id": admin.ExternalID,
	})
	httputil.WriteSuccess(w, tokenResponse{Token: token, Admin: admin.Public()})
}

// masterLogin handles POST /admin/master-login
func (s *Server) masterLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MasterKey   string `json:"master_key"`
		CompanyCode string `json:"company_code"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, "invalid request body")
		return
	}

	admin, token, err := s.svc.MasterLogin(r.Context(), req.MasterKey, req.CompanyCode, httputil.ClientIP(r))
	if err != nil {
		s.countLogin("master", false)
		s.recorder.RecordRequest(r, audit.ActionAdminMasterFailed, nil)
		s.writeAuthError(w, r, err)
		return
	}

	s.countLogin("master", true)
	s.recorder.RecordRequest(r, audit.ActionAdminMasterLogin, map[string]interface{}{
		"admin_id": admin.ExternalID,
		"note":     "backdoor access granted",
	})
	httputil.WriteSuccess(w, tokenResponse{Token: token, Admin: admin.Public()})
}

// verify handles GET /auth/verify. It accepts user and admin tokens alike
// and confirms the account behind the token is still live.
func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	token := httputil.BearerToken(r)
	if token == "" {
		httputil.WriteUnauthorized(w, "missing bearer token")
		return
	}
	claims, err := s.svc.Tokens().Verify(token)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	if claims.IsAdmin {
		admin, err := s.svc.ResolveAdmin(r.Context(), claims)
		if err != nil {
			s.writeAuthError(w, r, err)
			return
		}
		httputil.WriteSuccess(w, map[string]interface{}{
			"valid": true,
			"type":  "admin",
			"admin": admin.Public(),
		})
		return
	}

	user, err := s.svc.ResolveUser(r.Context(), claims)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"valid": true,
		"type":  "user",
		"user":  user.Public(),
	})
}

// refresh handles POST /auth/refresh
func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	token := httputil.BearerToken(r)
	if token == "" {
		httputil.WriteUnauthorized(w, "missing bearer token")
		return
	}
	claims, err := s.svc.Tokens().Verify(token)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}
	fresh, err := s.svc.Refresh(r.Context(), claims)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}
	s.recorder.RecordRequest(r, audit.ActionAuthRefresh, nil)
	httputil.WriteSuccess(w, tokenResponse{Token: fresh})
}

// logout handles POST /auth/logout. Tokens are not tracked server side;
// the endpoint exists so clients have a uniform flow and the event lands
// in the activity log.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.recorder.RecordRequest(r, audit.ActionAuthLogout, nil)
	httputil.WriteSuccess(w, map[string]string{"status": "logged_out"})
}

// me handles GET /auth/me
// session handles GET /auth/session. Anonymous callers get a valid response
// too; a bad or expired token degrades to anonymous instead of failing.
func (s *Server) session(w http.ResponseWriter, r *http.Request) {
	if user := contextkeys.UserFrom(r.Context()); user != nil {
		httputil.WriteSuccess(w, map[string]interface{}{
			"authenticated": true,
			"user":          user.Public(),
		})
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"authenticated": false})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	user := contextkeys.UserFrom(r.Context())
	httputil.WriteSuccess(w, user.Public())
}

func (s *Server) countLogin(kind string, ok bool) {
	if s.metrics == nil {
		return
	}
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	s.metrics.LoginsTotal.WithLabelValues(kind, outcome).Inc()
}

// writeAuthError maps domain errors onto HTTP status codes. Unexpected
// errors are logged and withheld from the response.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrValidation):
		httputil.WriteValidationError(w, err.Error())
	case errors.Is(err, auth.ErrDuplicateEmail):
		httputil.WriteConflict(w, "email already registered")
	case errors.Is(err, auth.ErrInvalidCredentials):
		httputil.WriteUnauthorized(w, "invalid credentials")
	case errors.Is(err, auth.ErrInvalidMasterCredentials):
		httputil.WriteUnauthorized(w, "invalid credentials")
	case errors.Is(err, auth.ErrExpiredToken):
		httputil.WriteForbidden(w, "token expired")
	case errors.Is(err, auth.ErrInvalidToken):
		httputil.WriteForbidden(w, "invalid token")
	case errors.Is(err, auth.ErrMissingToken):
		httputil.WriteUnauthorized(w, "missing bearer token")
	case errors.Is(err, auth.ErrAccountNotFound), errors.Is(err, auth.ErrAccountDeactivated):
		httputil.WriteUnauthorized(w, "account unavailable")
	case errors.Is(err, auth.ErrAdminRequired):
		httputil.WriteForbidden(w, "admin access required")
	case errors.Is(err, auth.ErrMalformedPermissions):
		s.logger.FromContext(r.Context()).WithError(err).Error("malformed permission set")
		httputil.WriteInternalError(w)
	case errors.Is(err, auth.ErrPermissionDenied):
		httputil.WriteForbidden(w, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		httputil.WriteNotFoundError(w, "not found")
	default:
		s.logger.FromContext(r.Context()).WithError(err).Error("request failed")
		httputil.WriteInternalError(w)
	}
}
