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
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, ":2112", cfg.Server.MetricsAddress)
	assert.Equal(t, "/api/v1/telemetry/query", cfg.Telemetry.QueryPath)
	assert.Equal(t, 30*time.Minute, cfg.Pipeline.LookBack)
	assert.Equal(t, 5*time.Minute, cfg.Pipeline.LookForward)
	assert.Equal(t, 10*time.Second, cfg.Pipeline.CascadeGap)
	assert.Equal(t, 60*time.Second, cfg.Pipeline.RootCauseTimeout)
	assert.False(t, cfg.Cache.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scout.yaml")
	content := `
server:
  address: ":9999"
telemetry:
  baseURL: "http://telemetry.internal"
pipeline:
  lookBack: 1h
  cascadeGap: 30s
logging:
  level: debug
  json: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Address)
	assert.Equal(t, "http://telemetry.internal", cfg.Telemetry.BaseURL)
	assert.Equal(t, time.Hour, cfg.Pipeline.LookBack)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.CascadeGap)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.JSON)
	// Unspecified fields keep their defaults.
	assert.Equal(t, ":2112", cfg.Server.MetricsAddress)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SCOUT_SERVER_ADDRESS", ":7070")
	t.Setenv("SCOUT_TELEMETRY_BASE_URL", "http://override.internal")
	t.Setenv("SCOUT_PIPELINE_CASCADE_GAP", "20s")
	t.Setenv("SCOUT_LOG_FORMAT", "json")
	t.Setenv("SCOUT_CACHE_ENABLED", "true")
	t.Setenv("SCOUT_CACHE_ADDR", "valkey:6379")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Address)
	assert.Equal(t, "http://override.internal", cfg.Telemetry.BaseURL)
	assert.Equal(t, 20*time.Second, cfg.Pipeline.CascadeGap)
	assert.True(t, cfg.Logging.JSON)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "valkey:6379", cfg.Cache.Addr)
}
