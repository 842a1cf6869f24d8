package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, DefaultPeriodTable, cfg.Periods.Table)
	assert.Equal(t, PresenceSourceNone, cfg.Realtime.PresenceSource)
	assert.Equal(t, 2*time.Hour, cfg.Sessions.ArchiveRetention)
	assert.Equal(t, -85, cfg.Sessions.SignalThresholdDBM)
	assert.Nil(t, cfg.CORS.AllowedOrigins)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("PRESENCE_SOURCE", "Simulator")
	t.Setenv("SIMULATOR_DELAY", "soon")
	t.Setenv("JWT_EXPIRATION", "30m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, PresenceSourceSimulator, cfg.Realtime.PresenceSource)
	assert.Equal(t, 2*time.Second, cfg.Realtime.SimulatorDelay)
	assert.Equal(t, 30*time.Minute, cfg.JWT.Expiration)
}

func TestLoadRelayNeedsRedis(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("REALTIME_RELAY_ENABLED", "true")
	t.Setenv("REDIS_ENABLED", "false")

	_, err := Load()
	assert.Error(t, err)
}
