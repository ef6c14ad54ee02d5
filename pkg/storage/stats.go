package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/trackstackhq/trackstack/pkg/audit"
)

// DashboardStats aggregates the counters shown on the admin dashboard.
type DashboardStats struct {
	TotalUsers     int64     `json:"total_users"`
	ActiveUsers    int64     `json:"active_users"`
	NewUsersLast7d int64     `json:"new_users_last_7d"`
	LoginsLast24h  int64     `json:"logins_last_24h"`
	SignupsLast24h int64     `json:"signups_last_24h"`
	TotalAdmins    int64     `json:"total_admins"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// Stats computes dashboard statistics from the user table and the activity
// log.
func (s *SQLStore) Stats(ctx context.Context) (*DashboardStats, error) {
	now := time.Now().UTC()
	stats := &DashboardStats{GeneratedAt: now}

	userQuery := `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE is_active),
			COUNT(*) FILTER (WHERE created_at >= $1)
		FROM users
	`
	if s.driver == DriverSQLite {
		// SQLite has no FILTER clause on older builds; SUM over a boolean
		// expression is equivalent.
		userQuery = `
			SELECT COUNT(*),
				COALESCE(SUM(CASE WHEN is_active THEN 1 ELSE 0 END), 0),
				COALESCE(SUM(CASE WHEN created_at >= $1 THEN 1 ELSE 0 END), 0)
			FROM users
		`
	}
	err := s.db.QueryRowContext(ctx, userQuery, now.AddDate(0, 0, -7)).
		Scan(&stats.TotalUsers, &stats.ActiveUsers, &stats.NewUsersLast7d)
	if err != nil {
		return nil, fmt.Errorf("failed to compute user stats: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admins`).Scan(&stats.TotalAdmins); err != nil {
		return nil, fmt.Errorf("failed to count admins: %w", err)
	}

	dayAgo := now.Add(-24 * time.Hour)
	stats.LoginsLast24h, err = s.CountSince(ctx, audit.ActionAuthLogin, dayAgo)
	if err != nil {
		return nil, err
	}
	stats.SignupsLast24h, err = s.CountSince(ctx, audit.ActionAuthRegister, dayAgo)
	if err != nil {
		return nil, err
	}
	return stats, nil
}
