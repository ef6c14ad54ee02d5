package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/trackstackhq/trackstack/pkg/auth"
)

type adminStore struct {
	db     *sql.DB
	driver Driver
}

const adminColumns = `id, external_id, username, email, password_hash, role,
	permissions, is_active, login_count, last_login_at, created_by, created_at, updated_at`

func scanAdmin(row interface{ Scan(...interface{}) error }) (*auth.Admin, error) {
	var a auth.Admin
	var lastLogin sql.NullTime
	var createdBy sql.NullInt64
	err := row.Scan(
		&a.ID,
		&a.ExternalID,
		&a.Username,
		&a.Email,
		&a.PasswordHash,
		&a.Role,
		&a.Permissions,
		&a.IsActive,
		&a.LoginCount,
		&lastLogin,
		&createdBy,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		a.LastLoginAt = &t
	}
	if createdBy.Valid {
		id := createdBy.Int64
		a.CreatedBy = &id
	}
	return &a, nil
}

func (s *adminStore) Create(ctx context.Context, a *auth.Admin) error {
	query := `
		INSERT INTO admins (external_id, username, email, password_hash, role, permissions, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	var createdBy sql.NullInt64
	if a.CreatedBy != nil {
		createdBy = sql.NullInt64{Int64: *a.CreatedBy, Valid: true}
	}
	err := s.db.QueryRowContext(ctx, query,
		a.ExternalID,
		a.Username,
		a.Email,
		a.PasswordHash,
		a.Role,
		a.Permissions,
		a.IsActive,
		createdBy,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if isDuplicate(err) {
			return auth.ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create admin: %w", err)
	}
	return nil
}

func (s *adminStore) FindByExternalID(ctx context.Context, externalID string) (*auth.Admin, error) {
	query := `SELECT ` + adminColumns + ` FROM admins WHERE external_id = $1`
	a, err := scanAdmin(s.db.QueryRowContext(ctx, query, externalID))
	if err != nil {
		return nil, mapFindErr(err)
	}
	return a, nil
}

func (s *adminStore) FindActiveByLogin(ctx context.Context, usernameOrEmail string) (*auth.Admin, error) {
	query := `SELECT ` + adminColumns + ` FROM admins WHERE (username = $1 OR email = $1) AND is_active`
	a, err := scanAdmin(s.db.QueryRowContext(ctx, query, usernameOrEmail))
	if err != nil {
		return nil, mapFindErr(err)
	}
	return a, nil
}

func (s *adminStore) FindByUsername(ctx context.Context, username string) (*auth.Admin, error) {
	query := `SELECT ` + adminColumns + ` FROM admins WHERE username = $1`
	a, err := scanAdmin(s.db.QueryRowContext(ctx, query, username))
	if err != nil {
		return nil, mapFindErr(err)
	}
	return a, nil
}

func (s *adminStore) RecordLogin(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE admins
		SET login_count = login_count + 1, last_login_at = $1, updated_at = $1
		WHERE id = $2
	`
	res, err := s.db.ExecContext(ctx, query, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
