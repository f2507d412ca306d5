package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-tenant-gate/internal/config"
	"github.com/stretchr/testify/require"
)

const catalogYAML = `
plans:
  - name: starter
    maxConcurrentSessions: 5
    maxSessionsPerUser: 2
    maxVoters: 1000
    trialDays: 14
    gracePeriodDays: 7
  - name: pro
    maxConcurrentSessions: 50
    monthlyPrice: 99.5
`

func TestParsePlanCatalog(t *testing.T) {
	catalog, err := config.ParsePlanCatalog([]byte(catalogYAML))
	require.NoError(t, err)
	require.Len(t, catalog.Plans, 2)
	require.Equal(t, "starter", catalog.Plans[0].Name)
	require.EqualValues(t, 5, catalog.Plans[0].MaxConcurrentSessions)
	require.EqualValues(t, 1000, catalog.Plans[0].MaxVoters)
	require.Equal(t, 7, catalog.Plans[0].GracePeriodDays)
	require.InDelta(t, 99.5, catalog.Plans[1].MonthlyPrice, 0.001)
}

func TestParsePlanCatalog_Invalid(t *testing.T) {
	t.Run("missing name", func(t *testing.T) {
		_, err := config.ParsePlanCatalog([]byte("plans:\n  - maxVoters: 3\n"))
		require.Error(t, err)
		require.Contains(t, err.Error(), "name is required")
	})

	t.Run("duplicate", func(t *testing.T) {
		_, err := config.ParsePlanCatalog([]byte("plans:\n  - name: a\n  - name: a\n"))
		require.Error(t, err)
		require.Contains(t, err.Error(), "declared twice")
	})
}

func TestLoadPlanCatalog(t *testing.T) {
	t.Run("missing file is empty", func(t *testing.T) {
		catalog, err := config.LoadPlanCatalog(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		require.Empty(t, catalog.Plans)
	})

	t.Run("reads file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "plans.yaml")
		require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0o600))
		catalog, err := config.LoadPlanCatalog(path)
		require.NoError(t, err)
		require.Len(t, catalog.Plans, 2)
	})
}

func TestEnvFallbackOnBadValue(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("POOL_IDLE_TIMEOUT", "bogus")
	t.Setenv("ENV", "")
	c := config.New()
	require.Equal(t, ":9090", c.GetPort())
	require.Equal(t, "DEV", c.GetEnv())
	require.Equal(t, c.GetPoolIdleTimeout().String(), "15m0s")
}
