package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackstackhq/trackstack/pkg/storage"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TRACKSTACK_TOKEN_SECRET", "secret")
	t.Setenv("TRACKSTACK_MASTER_KEY", "master-key")
	t.Setenv("TRACKSTACK_COMPANY_CODE", "company-code")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, storage.DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "trackstack.db", cfg.Storage.DSN)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.True(t, cfg.Observability.MetricsEnabled)
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TRACKSTACK_PORT", "9000")
	t.Setenv("TRACKSTACK_DB_DRIVER", "postgres")
	t.Setenv("TRACKSTACK_DB_DSN", "postgres://localhost/trackstack")
	t.Setenv("TRACKSTACK_TOKEN_TTL", "1h")
	t.Setenv("TRACKSTACK_METRICS_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, storage.DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.False(t, cfg.Observability.MetricsEnabled)
}

func TestLoad_RequiresSecrets(t *testing.T) {
	cases := []struct {
		name string
		omit string
	}{
		{"token secret", "TRACKSTACK_TOKEN_SECRET"},
		{"master key", "TRACKSTACK_MASTER_KEY"},
		{"company code", "TRACKSTACK_COMPANY_CODE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tc.omit, "")

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TRACKSTACK_DB_DRIVER", "mysql")

	_, err := Load()
	assert.Error(t, err)
}
