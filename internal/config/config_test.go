package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg := Load()
	assert.Equal(t, "splitpay", cfg.AppName)
	assert.Equal(t, "sqlite", cfg.DBType)
	assert.Equal(t, "badger", cfg.MirrorBackend)
	assert.Equal(t, time.Hour, cfg.SweepInterval)
	assert.Equal(t, int64(1), cfg.SnowflakeNode)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.InDelta(t, 0.1, cfg.OtelSamplingRatio, 1e-9)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MIRROR_BACKEND", "Redis")
	t.Setenv("SWEEP_INTERVAL", "15m")
	t.Setenv("OTEL_ENABLED", "yes")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.5")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg := Load()
	assert.Equal(t, "redis", cfg.MirrorBackend)
	assert.Equal(t, 15*time.Minute, cfg.SweepInterval)
	assert.True(t, cfg.OtelEnabled)
	assert.InDelta(t, 0.5, cfg.OtelSamplingRatio, 1e-9)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SWEEP_INTERVAL", "-5m")
	t.Setenv("SNOWFLAKE_NODE", "abc")
	t.Setenv("OTEL_SAMPLING_RATIO", "lots")

	cfg := Load()
	assert.Equal(t, time.Hour, cfg.SweepInterval)
	assert.Equal(t, int64(1), cfg.SnowflakeNode)
	assert.InDelta(t, 0.1, cfg.OtelSamplingRatio, 1e-9)
}

func TestVerbose(t *testing.T) {
	assert.True(t, Config{LogLevel: "debug", Environment: "production"}.Verbose())
	assert.True(t, Config{LogLevel: "info", Environment: "development"}.Verbose())
	assert.False(t, Config{LogLevel: "info", Environment: "production"}.Verbose())
}
