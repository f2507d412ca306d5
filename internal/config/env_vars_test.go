package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-tenant-gate/internal/config"
	"github.com/stretchr/testify/require"
)

func TestEnvDefaults(t *testing.T) {
	for _, name := range []string{"PORT", "ENV", "ADMIN_TOKEN", "POOL_IDLE_TIMEOUT", "LICENSE_SWEEP_INTERVAL", "STATS_EXPIRING_WINDOW_DAYS"} {
		t.Setenv(name, "")
	}
	c := config.New()

	require.Equal(t, ":8080", c.GetPort())
	require.Equal(t, "DEV", c.GetEnv())
	require.Empty(t, c.GetAdminToken())
	require.Equal(t, 15*time.Minute, c.GetPoolIdleTimeout())
	require.Equal(t, time.Hour, c.GetLicenseSweepInterval())
	require.Equal(t, 30*24*time.Hour, c.GetStatsExpiringWindow())
	require.Equal(t, 14, c.GetDefaultTrialDays())
	require.Equal(t, 7, c.GetDefaultGracePeriodDays())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ADMIN_TOKEN", "s3cret")
	t.Setenv("POOL_IDLE_TIMEOUT", "90s")
	t.Setenv("POOL_MAX_CONNS", "not-a-number")
	t.Setenv("STATS_EXPIRING_WINDOW_DAYS", "7")
	c := config.New()

	require.Equal(t, ":9090", c.GetPort())
	require.Equal(t, "s3cret", c.GetAdminToken())
	require.Equal(t, 90*time.Second, c.GetPoolIdleTimeout())
	require.EqualValues(t, 10, c.GetPoolMaxConns(), "unparseable values fall back to the default")
	require.Equal(t, 7*24*time.Hour, c.GetStatsExpiringWindow())
}

func TestCheckSecrets(t *testing.T) {
	t.Setenv("SESSION_TOKEN_SECRET", "")

	t.Setenv("ENV", "")
	require.NoError(t, config.CheckSecrets(config.New()))

	t.Setenv("ENV", "PROD")
	err := config.CheckSecrets(config.New())
	require.Error(t, err)
	require.Contains(t, err.Error(), "SESSION_TOKEN_SECRET")

	t.Setenv("SESSION_TOKEN_SECRET", "a-real-secret")
	require.NoError(t, config.CheckSecrets(config.New()))
}
