package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/trackstackhq/trackstack/pkg/auth"
)

type userStore struct {
	db     *sql.DB
	driver Driver
}

const userColumns = `id, external_id, email, name, artist_name, password_hash,
	is_active, login_count, last_login_at, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*auth.User, error) {
	var u auth.User
	var lastLogin sql.NullTime
	err := row.Scan(
		&u.ID,
		&u.ExternalID,
		&u.Email,
		&u.Name,
		&u.ArtistName,
		&u.PasswordHash,
		&u.IsActive,
		&u.LoginCount,
		&lastLogin,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

func (s *userStore) Create(ctx context.Context, u *auth.User) error {
	query := `
		INSERT INTO users (external_id, email, name, artist_name, password_hash, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		u.ExternalID,
		u.Email,
		u.Name,
		u.ArtistName,
		u.PasswordHash,
		u.IsActive,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isDuplicate(err) {
			return auth.ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *userStore) FindByExternalID(ctx context.Context, externalID string) (*auth.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE external_id = $1`
	u, err := scanUser(s.db.QueryRowContext(ctx, query, externalID))
	if err != nil {
		return nil, mapFindErr(err)
	}
	return u, nil
}

func (s *userStore) FindActiveByEmail(ctx context.Context, email string) (*auth.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 AND is_active`
	u, err := scanUser(s.db.QueryRowContext(ctx, query, email))
	if err != nil {
		return nil, mapFindErr(err)
	}
	return u, nil
}

func (s *userStore) ActiveEmailExists(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1 AND is_active)`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return exists, nil
}

func (s *userStore) RecordLogin(ctx context.Context, id int64, at time.Time) error {
	// Single statement so concurrent logins never lose increments.
	query := `
		UPDATE users
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

func (s *userStore) List(ctx context.Context, limit, offset int) ([]*auth.User, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]*auth.User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (s *userStore) SetActive(ctx context.Context, externalID string, active bool) error {
	query := `UPDATE users SET is_active = $1, updated_at = $2 WHERE external_id = $3`
	res, err := s.db.ExecContext(ctx, query, active, time.Now().UTC(), externalID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
