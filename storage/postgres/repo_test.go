package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-tenant-gate/internal/errors"
	"github.com/jrsteele09/go-tenant-gate/internal/utils"
	"github.com/jrsteele09/go-tenant-gate/licenses"
	"github.com/jrsteele09/go-tenant-gate/storage/postgres"
	"github.com/jrsteele09/go-tenant-gate/tenants"
)

// registryPool connects to TEST_DATABASE_URL or skips.
func registryPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := postgres.Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.Migrate(ctx, pool))
	return pool
}

func TestTenantRepo(t *testing.T) {
	ctx := context.Background()
	pool := registryPool(t)
	registry, err := tenants.NewRegistry(postgres.NewTenantRepo(pool))
	require.NoError(t, err)

	slug := "pg-" + uuid.New().String()[:8]
	created, err := registry.Register(ctx, &tenants.Tenant{
		Slug:       slug,
		Connection: tenants.ConnectionDescriptor{Host: "db", Database: slug, User: "app", Password: "pw", TLS: true},
		Limits:     tenants.Limits{MaxVoters: 40},
	})
	require.NoError(t, err)

	_, err = registry.Resolve(ctx, slug)
	require.ErrorIs(t, err, errors.ErrTenantNotProvisioned)

	require.NoError(t, registry.SetDatabaseStatus(ctx, created.ID, tenants.DatabaseReady))
	d, err := registry.Resolve(ctx, slug)
	require.NoError(t, err)
	require.Equal(t, created.ID, d.TenantID)
	require.Equal(t, "pw", d.Connection.Password)
	require.True(t, d.Connection.TLS)
	require.EqualValues(t, 40, d.Limits.MaxVoters)

	_, err = registry.Register(ctx, &tenants.Tenant{Slug: slug, Connection: tenants.ConnectionDescriptor{Host: "h", Database: "d"}})
	require.ErrorIs(t, err, errors.ErrConflict)

	repo := postgres.NewTenantRepo(pool)
	moved, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	moved.Slug = "renamed-" + slug[3:]
	require.ErrorIs(t, repo.Upsert(ctx, moved), errors.ErrConflict, "slug is immutable")

	_, err = repo.Get(ctx, uuid.New().String())
	require.ErrorIs(t, err, errors.ErrNotFound)
}

func TestLicenseRepos(t *testing.T) {
	ctx := context.Background()
	pool := registryPool(t)
	now := time.Now().UTC().Truncate(time.Microsecond)
	svc, err := licenses.NewService(postgres.NewLicenseRepo(pool), postgres.NewPlanRepo(pool),
		licenses.WithNowTime(func() time.Time { return now }))
	require.NoError(t, err)

	plan, err := svc.CreatePlan(ctx, &licenses.Plan{Name: "pg-" + uuid.New().String()[:8], MaxConcurrentSessions: 5, BillingPeriodDays: 30})
	require.NoError(t, err)

	tenantID := uuid.New().String()
	lic, err := svc.Assign(ctx, licenses.AssignRequest{
		TenantID:     tenantID,
		PlanID:       plan.ID,
		InitialState: licenses.StateActive,
		Overrides:    licenses.Overrides{MaxSessions: utils.Ptr[int64](3)},
	})
	require.NoError(t, err)

	stored, err := svc.Get(ctx, tenantID)
	require.NoError(t, err)
	require.Equal(t, lic.ID, stored.ID)
	require.EqualValues(t, 3, *stored.Overrides.MaxSessions)
	require.Nil(t, stored.Overrides.MaxVoters)

	_, err = svc.Assign(ctx, licenses.AssignRequest{TenantID: tenantID, PlanID: plan.ID, InitialState: licenses.StateTrial})
	require.ErrorIs(t, err, errors.ErrConflict)

	_, err = svc.Suspend(ctx, tenantID, "non-payment")
	require.NoError(t, err)
	_, err = svc.CheckAdmission(ctx, tenantID, now)
	require.ErrorIs(t, err, errors.ErrLicenseDenied)

	stale := stored.Clone()
	require.ErrorIs(t, postgres.NewLicenseRepo(pool).Update(ctx, stale, licenses.StateActive), errors.ErrConflict)

	_, err = svc.Cancel(ctx, tenantID)
	require.NoError(t, err)
	_, err = svc.Assign(ctx, licenses.AssignRequest{TenantID: tenantID, PlanID: plan.ID, InitialState: licenses.StateTrial})
	require.NoError(t, err)

	history, err := svc.History(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, licenses.StateCancelled, history[0].Status)

	v2 := plan.Clone()
	v2.MaxConcurrentSessions = 9
	revised, err := svc.RevisePlan(ctx, v2)
	require.NoError(t, err)
	latest, err := svc.LatestPlan(ctx, plan.Name)
	require.NoError(t, err)
	require.Equal(t, revised.ID, latest.ID)
}
