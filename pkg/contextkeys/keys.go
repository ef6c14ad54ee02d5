// Package contextkeys provides shared context keys for request-scoped
// identity, avoiding import cycles between middleware and handler packages.
package contextkeys

import (
	"context"

	"github.com/trackstackhq/trackstack/pkg/auth"
)

// Key is the type used for all context keys in this package.
type Key string

const (
	// UserKey holds the resolved *auth.User for user-authenticated requests.
	UserKey Key = "auth_user"
	// AdminKey holds the resolved *auth.Admin for admin-authenticated requests.
	AdminKey Key = "auth_admin"
	// ClaimsKey holds the raw *auth.Claims decoded from the bearer token.
	ClaimsKey Key = "auth_claims"
	// RequestIDKey holds the per-request correlation ID.
	RequestIDKey Key = "request_id"
)

// WithUser stores the resolved user and claims in the context.
func WithUser(ctx context.Context, user *auth.User, claims *auth.Claims) context.Context {
	ctx = context.WithValue(ctx, UserKey, user)
	return context.WithValue(ctx, ClaimsKey, claims)
}

// WithAdmin stores the resolved admin and claims in the context.
func WithAdmin(ctx context.Context, admin *auth.Admin, claims *auth.Claims) context.Context {
	ctx = context.WithValue(ctx, AdminKey, admin)
	return context.WithValue(ctx, ClaimsKey, claims)
}

// UserFrom returns the resolved user, or nil for anonymous requests.
func UserFrom(ctx context.Context) *auth.User {
	u, _ := ctx.Value(UserKey).(*auth.User)
	return u
}

// AdminFrom returns the resolved admin, or nil.
func AdminFrom(ctx context.Context) *auth.Admin {
	a, _ := ctx.Value(AdminKey).(*auth.Admin)
	return a
}

// ClaimsFrom returns the decoded token claims, or nil.
func ClaimsFrom(ctx context.Context) *auth.Claims {
	c, _ := ctx.Value(ClaimsKey).(*auth.Claims)
	return c
}

// WithRequestID stores the request correlation ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// RequestIDFrom returns the request correlation ID, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}
