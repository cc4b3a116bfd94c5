package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, t.TempDir(), "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "./bookd.sqlite", cfg.Database.Path)
	assert.Equal(t, "main.lua", cfg.Script)
	assert.Equal(t, "modern", cfg.API.Routes)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout.Duration())
	assert.Equal(t, BackendSQLite, cfg.Session.Backend)
	assert.Equal(t, "user", cfg.Session.Key)
	assert.Equal(t, "UTC", cfg.Validation.Timezone)
	assert.Equal(t, 3, cfg.Reconciler.GetRetryBudget())
	assert.Equal(t, 2*time.Second, cfg.Reconciler.RetryDelay.Duration())
	assert.Equal(t, 30*24*time.Hour, cfg.Ledger.Retention())
	assert.Equal(t, 2, cfg.EventBus.GetWorkers())
	assert.Equal(t, 100, cfg.EventBus.GetQueueSize())
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout.Duration())
}

func TestLoad_Values(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
api:
  base_url: https://hotel.example.com
  timeout: 5s
  routes: legacy
session:
  backend: redis
  key: me
  ttl: 24h
  redis:
    address: redis:6379
    db: 2
validation:
  timezone: Europe/Berlin
reconciler:
  retry_budget: 5
  retry_delay: 500ms
eventbus:
  workers: 4
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://hotel.example.com", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout.Duration())
	assert.Equal(t, "legacy", cfg.API.Routes)
	assert.Equal(t, BackendRedis, cfg.Session.Backend)
	assert.Equal(t, "me", cfg.Session.Key)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL.Duration())
	assert.Equal(t, "redis:6379", cfg.Session.Redis.Address)
	assert.Equal(t, 2, cfg.Session.Redis.DB)
	assert.Equal(t, 5, cfg.Reconciler.GetRetryBudget())
	assert.Equal(t, 500*time.Millisecond, cfg.Reconciler.RetryDelay.Duration())
	assert.Equal(t, 4, cfg.EventBus.GetWorkers())

	loc, err := cfg.Validation.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
}

func TestLoad_ExpandsEnvAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("BOOKD_TEST_DOTENV_URL=http://from-dotenv\n"), 0o644))
	t.Setenv("BOOKD_TEST_LEVEL", "debug")
	t.Cleanup(func() { os.Unsetenv("BOOKD_TEST_DOTENV_URL") })

	cfg, err := Load(writeConfig(t, dir, `
log:
  level: ${BOOKD_TEST_LEVEL:info}
api:
  base_url: ${BOOKD_TEST_DOTENV_URL}
database:
  path: ${BOOKD_TEST_UNSET:/tmp/fallback.db}
`))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "http://from-dotenv", cfg.API.BaseURL)
	assert.Equal(t, "/tmp/fallback.db", cfg.Database.Path)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown backend", "session:\n  backend: etcd\n"},
		{"unknown routes", "api:\n  routes: v3\n"},
		{"bad timezone", "validation:\n  timezone: Mars/Olympus\n"},
		{"bad duration", "api:\n  timeout: soon\n"},
		{"negative retry budget", "reconciler:\n  retry_budget: -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, t.TempDir(), tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_ZeroRetryBudgetDisablesRetries(t *testing.T) {
	cfg, err := Load(writeConfig(t, t.TempDir(), "reconciler:\n  retry_budget: 0\n"))
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.Reconciler.GetRetryBudget())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
