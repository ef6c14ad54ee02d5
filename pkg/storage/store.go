// Package storage provides the SQL persistence layer. It speaks both
// PostgreSQL (lib/pq) for cloud deployments and SQLite (mattn/go-sqlite3)
// for embedded local installs; the driver is chosen once at startup and the
// query set is shared between the two.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/trackstackhq/trackstack/pkg/auth"
)

// Driver identifies the SQL backend.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite3"
)

// Config holds database connection configuration
type Config struct {
	Driver Driver
	// DSN is the postgres URL or the sqlite file path.
	DSN         string
	MaxConns    int
	MinConns    int
	PingTimeout time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// SQLStore implements auth.Store and audit.Store on database/sql.
type SQLStore struct {
	db     *sql.DB
	driver Driver
	users  *userStore
	admins *adminStore
}

// Open connects to the configured backend, verifies the connection and
// applies the schema.
func Open(cfg Config) (*SQLStore, error) {
	switch cfg.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}

	db, err := sql.Open(string(cfg.Driver), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool. SQLite serializes writes through a single
	// connection to avoid SQLITE_BUSY under concurrent logins.
	if cfg.Driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxConns)
		db.SetMaxIdleConns(cfg.MinConns)
	}
	db.SetConnMaxLifetime(cfg.MaxLifetime)
	db.SetConnMaxIdleTime(cfg.MaxIdleTime)

	pingTimeout := cfg.PingTimeout
	if pingTimeout == 0 {
		pingTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := newSQLStore(db, cfg.Driver)
	if err := s.applySchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return s, nil
}

// NewWithDB wraps an existing connection without applying the schema.
// Used by tests running against sqlmock.
func NewWithDB(db *sql.DB, driver Driver) *SQLStore {
	return newSQLStore(db, driver)
}

func newSQLStore(db *sql.DB, driver Driver) *SQLStore {
	s := &SQLStore{db: db, driver: driver}
	s.users = &userStore{db: db, driver: driver}
	s.admins = &adminStore{db: db, driver: driver}
	return s
}

// Users returns the user account store.
func (s *SQLStore) Users() auth.UserStore { return s.users }

// Admins returns the admin account store.
func (s *SQLStore) Admins() auth.AdminStore { return s.admins }

// Ping verifies database connectivity, for readiness checks.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
