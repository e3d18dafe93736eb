package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "orders", cfg.Queue.Name)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Queue.BackoffBase)
	assert.Equal(t, 10, cfg.Queue.Concurrency)
	assert.Equal(t, time.Minute, cfg.Queue.VisibilityTimeout)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)

	require.Len(t, cfg.Venues, 2)
	assert.Equal(t, "Raydium", cfg.Venues[0].Name)
	assert.Equal(t, "Meteora", cfg.Venues[1].Name)
	assert.Equal(t, 200*time.Millisecond, cfg.Venues[0].QuoteDelay)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
server:
  port: 8081
queue:
  name: swaps
  concurrency: 4
venues:
  - name: VenueA
    variance_min: 0.99
    variance_max: 1.01
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "swaps", cfg.Queue.Name)
	assert.Equal(t, 4, cfg.Queue.Concurrency)
	require.Len(t, cfg.Venues, 1)
	assert.Equal(t, "VenueA", cfg.Venues[0].Name)
	// Per-venue defaults still apply.
	assert.Equal(t, 2*time.Second, cfg.Venues[0].ExecuteMinDelay)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SWAPLINE_REDIS_ADDR", "redis:6380")
	t.Setenv("SWAPLINE_QUEUE_NAME", "orders-test")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, "orders-test", cfg.Queue.Name)
}

func TestLoadRejectsInvalidVenueVariance(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
venues:
  - name: Broken
    variance_min: 1.05
    variance_max: 0.95
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
