package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusflow/backend/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 1500, cfg.DefaultWorkSeconds)
	assert.Equal(t, 300, cfg.DefaultShortBreakSeconds)
	assert.Equal(t, 900, cfg.DefaultLongBreakSeconds)
	assert.Equal(t, 4, cfg.DefaultTotalCycles)
	assert.Equal(t, 4, cfg.LongBreakEvery)
	assert.Equal(t, 5*time.Second, cfg.SweepInterval)
	assert.Equal(t, 72*time.Hour, cfg.TokenTTL)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DEFAULT_WORK_SECONDS", "3000")
	t.Setenv("LONG_BREAK_EVERY", "2")
	t.Setenv("SWEEP_INTERVAL", "30s")
	t.Setenv("CORS_ORIGINS", "https://app.example.com,https://beta.example.com")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 3000, cfg.DefaultWorkSeconds)
	assert.Equal(t, 2, cfg.LongBreakEvery)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, []string{"https://app.example.com", "https://beta.example.com"}, cfg.CORSOrigins)
}

func TestLoadRepairsLongBreakEvery(t *testing.T) {
	t.Setenv("LONG_BREAK_EVERY", "0")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.LongBreakEvery)
}
