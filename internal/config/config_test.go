package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/genproxy?sslmode=disable")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "postgres://localhost/genproxy?sslmode=disable", cfg.Database.URL)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, "localhost:6379", cfg.Redis.Address)
	assert.Equal(t, time.Minute, cfg.Registry.ReloadInterval)
	assert.Equal(t, 2, cfg.Health.HealthyThreshold)
	assert.Equal(t, 3, cfg.Health.UnhealthyThreshold)
	assert.Equal(t, 3, cfg.Failover.FailureThreshold)
	assert.Equal(t, time.Minute, cfg.Failover.RecoveryWindow)
	assert.True(t, cfg.Executor.EnableFailover)
	assert.Equal(t, 1, cfg.Executor.MaxRetries)
	assert.InDelta(t, 0.3, cfg.Perf.EWMAAlpha, 0.001)
	assert.Equal(t, "USD", cfg.Spend.Currency)
	assert.Equal(t, int64(10_485_760), cfg.Audit.MaxSize)
	assert.False(t, cfg.Audit.S3Enabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db/genproxy")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("HEALTH_PROBE_INTERVAL", "5s")
	t.Setenv("FAILOVER_FAILURE_THRESHOLD", "5")
	t.Setenv("EXECUTOR_ENABLE_FAILOVER", "false")
	t.Setenv("PERF_EWMA_ALPHA", "0.5")
	t.Setenv("AUDIT_S3_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, 5*time.Second, cfg.Health.ProbeInterval)
	assert.Equal(t, 5, cfg.Failover.FailureThreshold)
	assert.False(t, cfg.Executor.EnableFailover)
	assert.InDelta(t, 0.5, cfg.Perf.EWMAAlpha, 0.001)
	assert.True(t, cfg.Audit.S3Enabled)
}

func TestLoadMalformedValuesFallBack(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db/genproxy")
	t.Setenv("DB_MAX_OPEN_CONNS", "not-a-number")
	t.Setenv("HEALTH_PROBE_INTERVAL", "soon")
	t.Setenv("PERF_EWMA_ALPHA", "a-lot")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 30*time.Second, cfg.Health.ProbeInterval)
	assert.InDelta(t, 0.3, cfg.Perf.EWMAAlpha, 0.001)
}
