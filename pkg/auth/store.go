package auth

import (
	"context"
	"time"
)

// Store describes the persistence operations the auth core requires. The
// storage package provides the SQL implementation; tests use in-memory fakes.
type Store interface {
	Users() UserStore
	Admins() AdminStore
}

// UserStore manages ordinary user accounts.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	FindByExternalID(ctx context.Context, externalID string) (*User, error)
	// FindActiveByEmail matches only rows with is_active = true. The email is
	// compared case-normalized.
	FindActiveByEmail(ctx context.Context, email string) (*User, error)
	ActiveEmailExists(ctx context.Context, email string) (bool, error)
	// RecordLogin increments login_count and sets last_login_at in a single
	// statement so concurrent logins never lose updates.
	RecordLogin(ctx context.Context, id int64, at time.Time) error
	List(ctx context.Context, limit, offset int) ([]*User, int64, error)
	SetActive(ctx context.Context, externalID string, active bool) error
}

// AdminStore manages administrator accounts.
type AdminStore interface {
	Create(ctx context.Context, a *Admin) error
	FindByExternalID(ctx context.Context, externalID string) (*Admin, error)
	// FindActiveByLogin matches username OR email, active rows only.
	FindActiveByLogin(ctx context.Context, usernameOrEmail string) (*Admin, error)
	// FindByUsername matches regardless of active flag; used for idempotent
	// master provisioning.
	FindByUsername(ctx context.Context, username string) (*Admin, error)
	RecordLogin(ctx context.Context, id int64, at time.Time) error
}
