package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t77yq/ratewatch/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "ratewatch", cfg.App.Name)
	assert.Equal(t, "ratewatch.db", cfg.Storage.Path)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, "ratewatch-notifications", cfg.NATS.Bucket)
	assert.True(t, cfg.NATS.GrantOnRequest)
	assert.Equal(t, "coingecko", cfg.Providers.CryptoBackend)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 25*time.Second, cfg.Scheduler.Budget)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	data := []byte(`
storage:
  path: /tmp/alerts.db
nats:
  url: nats://nats.internal:4222
providers:
  crypto_backend: coincap
  coincap:
    api_key: secret
scheduler:
  interval: 30m
logging:
  level: debug
`)
	require.NoError(t, os.WriteFile(cfgPath, data, 0o644))

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/alerts.db", cfg.Storage.Path)
	assert.Equal(t, "nats://nats.internal:4222", cfg.NATS.URL)
	assert.Equal(t, "coincap", cfg.Providers.CryptoBackend)
	assert.Equal(t, "secret", cfg.Providers.CoinCap.APIKey)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RATEWATCH_LOGGING_LEVEL", "error")
	t.Setenv("RATEWATCH_STORAGE_PATH", "/var/lib/ratewatch/alerts.db")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, "/var/lib/ratewatch/alerts.db", cfg.Storage.Path)
}

func TestLoad_RejectsUnknownCryptoBackend(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	data := []byte(`
providers:
  crypto_backend: kraken
`)
	require.NoError(t, os.WriteFile(cfgPath, data, 0o644))

	_, err := config.Load(cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown crypto backend")
}

func TestLoad_RejectsNonPositiveInterval(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	data := []byte(`
scheduler:
  interval: 0s
`)
	require.NoError(t, os.WriteFile(cfgPath, data, 0o644))

	_, err := config.Load(cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduler.interval")
}
