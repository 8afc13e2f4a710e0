package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 2*time.Second, cfg.FitBudget.Std())
	assert.Equal(t, 512, cfg.MemoSize)
	assert.Equal(t, 100, cfg.RateLimit)
	assert.Equal(t, "India", cfg.ReferenceEntity)
	assert.False(t, cfg.Otel.Enabled)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: ":9090"
fit_budget: 5s
rate_limit: 10
log_format: json
reference_entity: Kenya
otel:
  enabled: true
  endpoint: collector:4317
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, 5*time.Second, cfg.FitBudget.Std())
	assert.Equal(t, 10, cfg.RateLimit)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "Kenya", cfg.ReferenceEntity)
	assert.True(t, cfg.Otel.Enabled)
	assert.Equal(t, "collector:4317", cfg.Otel.Endpoint)

	// Unset fields keep their defaults.
	assert.Equal(t, 10*time.Minute, cfg.MemoTTL.Std())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("AIDLENS_LISTEN_ADDR", ":7070")
	t.Setenv("AIDLENS_RATE_LIMIT", "42")
	t.Setenv("AIDLENS_FIT_BUDGET", "750ms")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.ListenAddr)
	assert.Equal(t, 42, cfg.RateLimit)
	assert.Equal(t, 750*time.Millisecond, cfg.FitBudget.Std())
	assert.True(t, cfg.Otel.Enabled)
	assert.Equal(t, "otel:4317", cfg.Otel.Endpoint)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoad_Validation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rate_limit: -5\n"), 0o600))
	_, err := Load(path)
	require.ErrorContains(t, err, "rate_limit")

	require.NoError(t, os.WriteFile(path, []byte("log_format: xml\n"), 0o600))
	_, err = Load(path)
	require.ErrorContains(t, err, "log_format")
}
