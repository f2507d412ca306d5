package gateway_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-tenant-gate/gateway"
	"github.com/jrsteele09/go-tenant-gate/internal/errors"
	"github.com/jrsteele09/go-tenant-gate/internal/utils"
	"github.com/jrsteele09/go-tenant-gate/licenses"
	licenserepofakes "github.com/jrsteele09/go-tenant-gate/licenses/repofakes"
	"github.com/jrsteele09/go-tenant-gate/pool"
	"github.com/jrsteele09/go-tenant-gate/quota"
	"github.com/jrsteele09/go-tenant-gate/sessions"
	"github.com/jrsteele09/go-tenant-gate/stats"
	"github.com/jrsteele09/go-tenant-gate/tenants"
	tenantrepofakes "github.com/jrsteele09/go-tenant-gate/tenants/repofakes"
)

var fixedNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type memStore struct {
	host  string
	usage map[tenants.ResourceKind]int64
}

func (s *memStore) Ping(context.Context) error { return nil }

func (s *memStore) CountUsage(_ context.Context, kind tenants.ResourceKind) (int64, error) {
	if kind == tenants.ResourceDataMB {
		return 0, errors.Wrapf(errors.ErrUnsupported, "data")
	}
	return s.usage[kind], nil
}

func (s *memStore) Close() error { return nil }

// testFixture wires the gateway over in-memory fakes
type testFixture struct {
	registry *tenants.Registry
	licenses *licenses.Service
	gateway  *gateway.Gateway
	starter  *licenses.Plan
	down     atomic.Bool
	connects atomic.Int64
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{}
	clock := func() time.Time { return fixedNow }

	var err error
	f.registry, err = tenants.NewRegistry(tenantrepofakes.NewFakeTenantRepo(), tenants.WithNowTime(clock))
	require.NoError(t, err)

	f.licenses, err = licenses.NewService(licenserepofakes.NewFakeLicenseRepo(), licenserepofakes.NewFakePlanRepo(), licenses.WithNowTime(clock))
	require.NoError(t, err)
	f.starter, err = f.licenses.CreatePlan(context.Background(), &licenses.Plan{
		Name:                  "starter",
		MaxConcurrentSessions: 5,
		MaxSessionsPerUser:    2,
		MaxVoters:             10,
		BillingPeriodDays:     30,
	})
	require.NoError(t, err)

	connector := pool.ConnectorFunc(func(_ context.Context, conn tenants.ConnectionDescriptor) (pool.Store, error) {
		f.connects.Add(1)
		if f.down.Load() {
			return nil, fmt.Errorf("dial %s: connection refused", conn.Host)
		}
		return &memStore{host: conn.Host, usage: map[tenants.ResourceKind]int64{tenants.ResourceVoters: 7, tenants.ResourceUsers: 1}}, nil
	})
	pm := pool.NewManager(connector, pool.WithConnectRetry(2, time.Millisecond), pool.WithNowTime(clock))
	t.Cleanup(func() { _ = pm.Close() })

	sc, err := sessions.NewController(sessions.NewMemoryCounter(), []byte("secret"), sessions.WithNowTime(clock))
	require.NoError(t, err)

	f.gateway, err = gateway.New(f.registry, pm, f.licenses, sc, gateway.WithNowTime(clock))
	require.NoError(t, err)
	return f
}

func (f *testFixture) tenant(t *testing.T, slug string, licensed bool) *tenants.Tenant {
	t.Helper()
	ctx := context.Background()
	created, err := f.registry.Register(ctx, &tenants.Tenant{
		Slug:       slug,
		Connection: tenants.ConnectionDescriptor{Host: slug + "-db", Database: slug},
	})
	require.NoError(t, err)
	require.NoError(t, f.registry.SetDatabaseStatus(ctx, created.ID, tenants.DatabaseReady))
	if licensed {
		_, err = f.gateway.AssignLicense(ctx, licenses.AssignRequest{TenantID: created.ID, PlanID: f.starter.ID, InitialState: licenses.StateActive})
		require.NoError(t, err)
	}
	return created
}

func TestAdmit(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	acme := f.tenant(t, "acme", true)

	admitted, err := f.gateway.Admit(ctx, gateway.Request{Identifier: "acme", Mutating: true, Kind: tenants.ResourceVoters, Delta: 3})
	require.NoError(t, err)
	require.Equal(t, acme.ID, admitted.Descriptor.TenantID)
	require.Equal(t, acme.ID, admitted.Handle.TenantID())
	require.Equal(t, licenses.StateActive, admitted.Admission.Effective)
	require.EqualValues(t, 7, admitted.Quota.Current)
	require.Equal(t, quota.SourcePlan, admitted.Quota.Limit.Source)

	_, err = f.gateway.Admit(ctx, gateway.Request{Identifier: "acme", Mutating: true, Kind: tenants.ResourceVoters, Delta: 4})
	var exceeded *quota.ExceededError
	require.ErrorAs(t, err, &exceeded)
	require.Equal(t, tenants.ResourceVoters, exceeded.Kind)
	require.EqualValues(t, 10, exceeded.Limit)
	require.EqualValues(t, 7, exceeded.Current)

	readOnly, err := f.gateway.Admit(ctx, gateway.Request{Identifier: acme.ID, Kind: tenants.ResourceVoters, Delta: 100})
	require.NoError(t, err, "read-only requests skip the quota")
	require.Nil(t, readOnly.Quota)
}

func TestAdmit_ErrorKinds(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.tenant(t, "acme", true)

	t.Run("unknown tenant", func(t *testing.T) {
		_, err := f.gateway.Admit(ctx, gateway.Request{Identifier: "ghost"})
		require.ErrorIs(t, err, errors.ErrTenantNotFound)
	})

	t.Run("not provisioned", func(t *testing.T) {
		_, err := f.registry.Register(ctx, &tenants.Tenant{Slug: "fresh", Connection: tenants.ConnectionDescriptor{Host: "h", Database: "d"}})
		require.NoError(t, err)
		_, err = f.gateway.Admit(ctx, gateway.Request{Identifier: "fresh"})
		require.ErrorIs(t, err, errors.ErrTenantNotProvisioned)
	})

	t.Run("backend unavailable", func(t *testing.T) {
		f.tenant(t, "offline", true)
		f.down.Store(true)
		defer f.down.Store(false)
		_, err := f.gateway.Admit(ctx, gateway.Request{Identifier: "offline"})
		require.ErrorIs(t, err, errors.ErrBackendUnavailable)
		require.NotErrorIs(t, err, errors.ErrTenantNotFound)
	})

	t.Run("suspended license blocks reads", func(t *testing.T) {
		acme, err := f.gateway.ResolveTenant(ctx, "acme")
		require.NoError(t, err)
		_, err = f.gateway.SuspendLicense(ctx, acme.TenantID, "non-payment")
		require.NoError(t, err)

		_, err = f.gateway.Admit(ctx, gateway.Request{Identifier: "acme"})
		var denied *licenses.AdmissionError
		require.ErrorAs(t, err, &denied)
		require.Equal(t, licenses.StateSuspended, denied.State)
		require.Equal(t, "non-payment", denied.Reason)

		_, err = f.gateway.ActivateLicense(ctx, acme.TenantID)
		require.NoError(t, err)
		_, err = f.gateway.Admit(ctx, gateway.Request{Identifier: "acme"})
		require.NoError(t, err)
	})

	t.Run("illegal transition", func(t *testing.T) {
		acme, err := f.gateway.ResolveTenant(ctx, "acme")
		require.NoError(t, err)
		_, err = f.gateway.RenewLicense(ctx, acme.TenantID)
		require.ErrorIs(t, err, errors.ErrIllegalTransition)
	})
}

func TestAdmit_UnlicensedUsesFallbacks(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	solo := f.tenant(t, "solo", false)

	_, err := f.gateway.Admit(ctx, gateway.Request{Identifier: "solo", Mutating: true, Kind: tenants.ResourceVoters, Delta: 1})
	require.NoError(t, err, "minimal default allows 100 voters")

	_, err = f.gateway.Admit(ctx, gateway.Request{Identifier: "solo", Mutating: true, Kind: tenants.ResourceUsers, Delta: 5})
	require.ErrorIs(t, err, errors.ErrQuotaExceeded)

	require.NoError(t, f.registry.UpdateLimits(ctx, solo.ID, tenants.Limits{MaxVoters: 7}))
	d, err := f.gateway.CheckQuota(ctx, solo.ID, tenants.ResourceVoters, 0)
	require.NoError(t, err)
	require.Equal(t, quota.SourceTenant, d.Limit.Source)
	_, err = f.gateway.CheckQuota(ctx, solo.ID, tenants.ResourceVoters, 1)
	require.ErrorIs(t, err, errors.ErrQuotaExceeded)
}

func TestRegistryChangesEvictHandles(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	acme := f.tenant(t, "acme", true)

	first, err := f.gateway.Admit(ctx, gateway.Request{Identifier: "acme"})
	require.NoError(t, err)

	require.NoError(t, f.registry.UpdateConnection(ctx, acme.ID, tenants.ConnectionDescriptor{Host: "acme-db-2", Database: "acme"}))
	require.True(t, first.Handle.Closed(), "descriptor change evicts the handle")

	second, err := f.gateway.Admit(ctx, gateway.Request{Identifier: "acme"})
	require.NoError(t, err)
	require.Equal(t, "acme-db-2", second.Handle.Connection().Host)

	require.NoError(t, f.registry.SetStatus(ctx, acme.ID, tenants.StatusSuspended))
	require.True(t, second.Handle.Closed())
	_, err = f.gateway.Admit(ctx, gateway.Request{Identifier: "acme"})
	require.ErrorIs(t, err, errors.ErrTenantSuspended)
}

func TestTryAdmitSession(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	acme := f.tenant(t, "acme", true)

	var tokens []*sessions.Token
	for i := 0; i < 5; i++ {
		tok, err := f.gateway.TryAdmitSession(ctx, "acme", fmt.Sprintf("user-%d", i))
		require.NoError(t, err)
		tokens = append(tokens, tok)
	}
	_, err := f.gateway.TryAdmitSession(ctx, "acme", "user-9")
	require.ErrorIs(t, err, errors.ErrSessionLimit)

	d, err := f.gateway.CheckQuota(ctx, acme.ID, tenants.ResourceSessions, 1)
	require.Nil(t, d)
	var exceeded *quota.ExceededError
	require.ErrorAs(t, err, &exceeded)
	require.EqualValues(t, 5, exceeded.Current)

	released, err := f.gateway.ReleaseSessionRaw(ctx, tokens[0].Raw)
	require.NoError(t, err)
	require.Equal(t, acme.ID, released.TenantID)
	require.NoError(t, f.gateway.ReleaseSession(ctx, tokens[0]))

	_, err = f.licenses.UpdateOverrides(ctx, acme.ID, licenses.Overrides{MaxSessions: utils.Ptr[int64](3)})
	require.NoError(t, err)
	_, err = f.gateway.TryAdmitSession(ctx, "acme", "user-9")
	var limitErr *sessions.LimitError
	require.ErrorAs(t, err, &limitErr)
	require.EqualValues(t, 3, limitErr.Limit)
	require.EqualValues(t, 4, limitErr.Current)
}

func TestAggregateStats(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.tenant(t, "a", true)
	b := f.tenant(t, "b", true)
	f.tenant(t, "c", false)
	_, err := f.gateway.SuspendLicense(ctx, b.ID, "review")
	require.NoError(t, err)

	report, err := f.gateway.AggregateStats(ctx, nil, nil, time.Second)
	require.NoError(t, err)
	require.Empty(t, report.Degraded)
	require.Len(t, report.Results, 3)
	require.Equal(t, 1, report.Totals.ActiveLicenses)
	require.Equal(t, 1, report.Totals.CriticalAlerts)
	require.EqualValues(t, 21, report.Totals.Usage[tenants.ResourceVoters], "suspended licenses and unlicensed tenants are still counted")

	report, err = f.gateway.AggregateStats(ctx, []string{"missing"}, stats.NewMetricSet(stats.MetricLicenseStates), time.Second)
	require.NoError(t, err)
	require.Len(t, report.Degraded, 1)
}
