package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/trackstackhq/trackstack/pkg/audit"
	"github.com/trackstackhq/trackstack/pkg/auth"
	"github.com/trackstackhq/trackstack/pkg/contextkeys"
	"github.com/trackstackhq/trackstack/pkg/httputil"
)

func (s *Server) registerAdminRoutes(r *mux.Router) {
	r.Handle("/admin/users",
		s.resolver.RequirePermission(auth.PermUserView, http.HandlerFunc(s.listUsers))).Methods("GET")
	r.Handle("/admin/users/{id}/deactivate",
		s.resolver.RequirePermission(auth.PermUserBan, http.HandlerFunc(s.deactivateUser))).Methods("POST")
	r.Handle("/admin/users/{id}/activate",
		s.resolver.RequirePermission(auth.PermUserBan, http.HandlerFunc(s.activateUser))).Methods("POST")
	r.Handle("/admin/dashboard/stats",
		s.resolver.RequirePermission(auth.PermDashboardView, http.HandlerFunc(s.dashboardStats))).Methods("GET")
	r.Handle("/admin/activity",
		s.resolver.RequirePermission(auth.PermDashboardView, http.HandlerFunc(s.listActivity))).Methods("GET")
}

// listUsers handles GET /admin/users
func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	page := httputil.ParsePagination(r)
	users, total, err := s.svc.ListUsers(r.Context(), page.Limit, page.Offset)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	public := make([]auth.PublicUser, 0, len(users))
	for _, u := range users {
		public = append(public, u.Public())
	}
	s.recorder.RecordRequest(r, audit.ActionAdminUserList, nil)
	httputil.WriteSuccess(w, map[string]interface{}{
		"users":  public,
		"total":  total,
		"limit":  page.Limit,
		"offset": page.Offset,
	})
}

// deactivateUser handles POST /admin/users/{id}/deactivate
func (s *Server) deactivateUser(w http.ResponseWriter, r *http.Request) {
	s.setUserActive(w, r, false)
}

// activateUser handles POST /admin/users/{id}/activate
func (s *Server) activateUser(w http.ResponseWriter, r *http.Request) {
	s.setUserActive(w, r, true)
}

func (s *Server) setUserActive(w http.ResponseWriter, r *http.Request, active bool) {
	externalID := mux.Vars(r)["id"]
	if err := s.svc.SetUserActive(r.Context(), externalID, active); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	admin := contextkeys.AdminFrom(r.Context())
	s.recorder.RecordRequest(r, audit.ActionAdminUserBan, map[string]interface{}{
		"target_user_id": externalID,
		"active":         active,
		"admin_id":       admin.ExternalID,
	})
	httputil.WriteSuccess(w, map[string]interface{}{
		"id":        externalID,
		"is_active": active,
	})
}

// dashboardStats handles GET /admin/dashboard/stats
func (s *Server) dashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.Stats(r.Context())
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, stats)
}

// listActivity handles GET /admin/activity
func (s *Server) listActivity(w http.ResponseWriter, r *http.Request) {
	page := httputil.ParsePagination(r)
	filter := audit.Filter{
		Action:    audit.Action(r.URL.Query().Get("action")),
		ActorType: audit.ActorType(r.URL.Query().Get("actor_type")),
		ActorID:   r.URL.Query().Get("actor_id"),
		Limit:     page.Limit,
		Offset:    page.Offset,
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.Since = &t
		}
	}
	if raw := r.URL.Query().Get("until"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.Until = &t
		}
	}

	records, err := s.recorder.List(r.Context(), filter)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"records": records,
		"limit":   page.Limit,
		"offset":  page.Offset,
	})
}
