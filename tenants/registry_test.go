package tenants_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-tenant-gate/internal/errors"
	"github.com/jrsteele09/go-tenant-gate/tenants"
	tenantrepofakes "github.com/jrsteele09/go-tenant-gate/tenants/repofakes"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newRegistry(t *testing.T) *tenants.Registry {
	t.Helper()
	r, err := tenants.NewRegistry(tenantrepofakes.NewFakeTenantRepo(), tenants.WithNowTime(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return r
}

func registerReady(t *testing.T, r *tenants.Registry, slug string) *tenants.Tenant {
	t.Helper()
	ctx := context.Background()
	created, err := r.Register(ctx, &tenants.Tenant{
		Slug: slug,
		Name: slug + " campaign",
		Connection: tenants.ConnectionDescriptor{
			Host:     slug + ".db.internal",
			Database: slug,
			User:     "app",
			Password: "secret",
		},
	})
	require.NoError(t, err)
	require.NoError(t, r.SetDatabaseStatus(ctx, created.ID, tenants.DatabaseReady))
	return created
}

func TestRegistry_Resolve(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)
	acme := registerReady(t, r, "acme")

	t.Run("by id", func(t *testing.T) {
		d, err := r.Resolve(ctx, acme.ID)
		require.NoError(t, err)
		require.Equal(t, acme.ID, d.TenantID)
		require.Equal(t, "acme.db.internal", d.Connection.Host)
	})

	t.Run("by slug", func(t *testing.T) {
		d, err := r.Resolve(ctx, "acme")
		require.NoError(t, err)
		require.Equal(t, acme.ID, d.TenantID)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := r.Resolve(ctx, "nobody")
		require.ErrorIs(t, err, errors.ErrTenantNotFound)
		require.NotErrorIs(t, err, errors.ErrTenantNotProvisioned)
	})

	t.Run("empty identifier", func(t *testing.T) {
		_, err := r.Resolve(ctx, "")
		require.ErrorIs(t, err, errors.ErrTenantNotFound)
	})
}

func TestRegistry_ResolveNotProvisioned(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)

	created, err := r.Register(ctx, &tenants.Tenant{
		Slug:       "pending-co",
		Connection: tenants.ConnectionDescriptor{Host: "h", Database: "d"},
	})
	require.NoError(t, err)
	require.Equal(t, tenants.DatabasePending, created.DatabaseStatus)

	for _, status := range []tenants.DatabaseStatus{
		tenants.DatabasePending,
		tenants.DatabaseProvisioning,
		tenants.DatabaseError,
		tenants.DatabaseSuspended,
	} {
		t.Run(string(status), func(t *testing.T) {
			require.NoError(t, r.SetDatabaseStatus(ctx, created.ID, status))
			_, err := r.Resolve(ctx, "pending-co")
			require.ErrorIs(t, err, errors.ErrTenantNotProvisioned)
			require.NotErrorIs(t, err, errors.ErrTenantNotFound)

			var resErr *tenants.ResolutionError
			require.ErrorAs(t, err, &resErr)
			require.Equal(t, status, resErr.DatabaseStatus)
		})
	}
}

func TestRegistry_ResolveStatusGates(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)
	acme := registerReady(t, r, "acme")

	require.NoError(t, r.SetStatus(ctx, acme.ID, tenants.StatusSuspended))
	_, err := r.Resolve(ctx, "acme")
	require.ErrorIs(t, err, errors.ErrTenantSuspended)

	require.NoError(t, r.Delete(ctx, acme.ID))
	_, err = r.Resolve(ctx, "acme")
	require.ErrorIs(t, err, errors.ErrTenantNotFound)
}

func TestRegistry_Register(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)
	registerReady(t, r, "acme")

	t.Run("duplicate slug", func(t *testing.T) {
		_, err := r.Register(ctx, &tenants.Tenant{Slug: "acme", Connection: tenants.ConnectionDescriptor{Host: "h", Database: "d"}})
		require.ErrorIs(t, err, errors.ErrConflict)
	})

	t.Run("invalid slug", func(t *testing.T) {
		_, err := r.Register(ctx, &tenants.Tenant{Slug: "Not A Slug", Connection: tenants.ConnectionDescriptor{Host: "h", Database: "d"}})
		require.ErrorIs(t, err, errors.ErrInvalidArgument)
	})

	t.Run("invalid connection", func(t *testing.T) {
		_, err := r.Register(ctx, &tenants.Tenant{Slug: "nohost"})
		require.ErrorIs(t, err, errors.ErrInvalidArgument)
	})

	t.Run("defaults", func(t *testing.T) {
		created, err := r.Register(ctx, &tenants.Tenant{Slug: "fresh", Connection: tenants.ConnectionDescriptor{URL: "postgres://x/y"}})
		require.NoError(t, err)
		require.NotEmpty(t, created.ID)
		require.Equal(t, tenants.StatusActive, created.Status)
		require.Equal(t, fixedNow, created.CreatedAt)
	})
}

func TestRegistry_ChangeHooks(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)
	acme := registerReady(t, r, "acme")

	var events []tenants.ChangeEvent
	r.OnChange(func(ev tenants.ChangeEvent) { events = append(events, ev) })

	require.NoError(t, r.UpdateConnection(ctx, acme.ID, tenants.ConnectionDescriptor{Host: "new-host", Database: "acme"}))
	require.NoError(t, r.UpdateLimits(ctx, acme.ID, tenants.Limits{MaxUsers: 3}))
	require.NoError(t, r.Delete(ctx, acme.ID))

	require.Equal(t, []tenants.ChangeEvent{
		{TenantID: acme.ID, Kind: tenants.ChangeDescriptor},
		{TenantID: acme.ID, Kind: tenants.ChangeDeleted},
	}, events)

	got, err := r.Get(ctx, acme.ID)
	require.NoError(t, err)
	require.Equal(t, "acme", got.Slug, "slug survives mutation")
	require.Equal(t, "new-host", got.Connection.Host)
	require.EqualValues(t, 3, got.Limits.MaxUsers)
}

func TestConnectionDescriptor(t *testing.T) {
	pg := tenants.ConnectionDescriptor{Host: "db", Database: "acme", User: "u", Password: "p", TLS: true}
	require.Equal(t, "postgres://u:p@db:5432/acme?sslmode=require", pg.DSN())

	my := tenants.ConnectionDescriptor{Driver: tenants.DriverMySQL, Host: "db", Database: "acme", User: "u", Password: "p"}
	require.Equal(t, "u:p@tcp(db:3306)/acme?parseTime=true&tls=false", my.DSN())

	rotated := pg
	rotated.Password = "p2"
	require.NotEqual(t, pg.Fingerprint(), rotated.Fingerprint())
	require.Equal(t, pg.Fingerprint(), pg.Fingerprint())

	withURL := tenants.ConnectionDescriptor{URL: "postgres://elsewhere/acme"}
	require.Equal(t, "postgres://elsewhere/acme", withURL.DSN())
}
