package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setRequiredEnv sets the minimum environment for Load to succeed.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/triad_test")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("TRIAD_STRATEGIST_PROVIDER", "mock")
	t.Setenv("TRIAD_PLANNER_PROVIDER", "mock")
	t.Setenv("TRIAD_VALIDATOR_PROVIDER", "mock")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Env)
	assert.Equal(t, 180*time.Second, cfg.Pipeline.TotalBudget)
	assert.Equal(t, 10*time.Second, cfg.Pipeline.PollMaxWait)
	assert.Equal(t, 3, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Breaker.ResetInterval)
	assert.Equal(t, "extended", cfg.Pipeline.Planner.Effort)
	assert.Equal(t, 8192, cfg.Pipeline.Planner.MaxOutputTokens)
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoad_MissingRedisURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("REDIS_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_URL")
}

func TestLoad_InvalidStageProvider(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TRIAD_PLANNER_PROVIDER", "skynet")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "planner provider")
}

func TestLoad_ProviderKeyRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TRIAD_STRATEGIST_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")
}

func TestLoad_StageOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TRIAD_PLANNER_MODEL", "gpt-5-mini")
	t.Setenv("TRIAD_PLANNER_TIMEOUT_SECS", "30")
	t.Setenv("TRIAD_TOTAL_BUDGET_SECS", "240")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gpt-5-mini", cfg.Pipeline.Planner.Model)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.Planner.Timeout)
	assert.Equal(t, 240*time.Second, cfg.Pipeline.TotalBudget)
}

func TestLoad_MalformedIntFallsBack(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TRIAD_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}
