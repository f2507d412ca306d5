package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	tgerrors "github.com/jrsteele09/go-tenant-gate/internal/errors"
	"github.com/jrsteele09/go-tenant-gate/tenants"
)

var _ tenants.Repo = (*TenantRepo)(nil)

const tenantColumns = `id, slug, name, db_driver, db_host, db_port, db_name, db_user, db_password, db_tls, db_url,
	database_status, status, max_users, max_voters, max_elections, max_sessions, max_data_mb, created_at, updated_at`

type TenantRepo struct {
	pool *pgxpool.Pool
}

func NewTenantRepo(pool *pgxpool.Pool) *TenantRepo {
	return &TenantRepo{pool: pool}
}

// Upsert inserts or updates a tenant. The slug is never changed by an update.
func (r *TenantRepo) Upsert(ctx context.Context, t *tenants.Tenant) error {
	query := fmt.Sprintf(`
		INSERT INTO %s AS cur (%s)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, db_driver = EXCLUDED.db_driver, db_host = EXCLUDED.db_host,
			db_port = EXCLUDED.db_port, db_name = EXCLUDED.db_name, db_user = EXCLUDED.db_user,
			db_password = EXCLUDED.db_password, db_tls = EXCLUDED.db_tls, db_url = EXCLUDED.db_url,
			database_status = EXCLUDED.database_status, status = EXCLUDED.status,
			max_users = EXCLUDED.max_users, max_voters = EXCLUDED.max_voters,
			max_elections = EXCLUDED.max_elections, max_sessions = EXCLUDED.max_sessions,
			max_data_mb = EXCLUDED.max_data_mb, updated_at = EXCLUDED.updated_at
		WHERE cur.slug = EXCLUDED.slug`, TenantsTable, tenantColumns)

	c := t.Connection
	tag, err := r.pool.Exec(ctx, query,
		t.ID, t.Slug, t.Name, c.Driver, c.Host, c.Port, c.Database, c.User, c.Password, c.TLS, c.URL,
		string(t.DatabaseStatus), string(t.Status),
		t.Limits.MaxUsers, t.Limits.MaxVoters, t.Limits.MaxElections, t.Limits.MaxSessions, t.Limits.MaxDataMB,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return mapError(err, "upsert tenant %s", t.ID)
	}
	if tag.RowsAffected() == 0 {
		return tgerrors.Wrapf(tgerrors.ErrConflict, "slug of %s is immutable", t.ID)
	}
	return nil
}

func (r *TenantRepo) Delete(ctx context.Context, tenantID string) error {
	_, err := r.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, TenantsTable), tenantID)
	return mapError(err, "delete tenant %s", tenantID)
}

func (r *TenantRepo) Get(ctx context.Context, tenantID string) (*tenants.Tenant, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, tenantColumns, TenantsTable)
	t, err := scanTenant(r.pool.QueryRow(ctx, query, tenantID))
	if err != nil {
		return nil, mapError(err, "tenant %s", tenantID)
	}
	return t, nil
}

func (r *TenantRepo) GetBySlug(ctx context.Context, slug string) (*tenants.Tenant, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE slug = $1`, tenantColumns, TenantsTable)
	t, err := scanTenant(r.pool.QueryRow(ctx, query, slug))
	if err != nil {
		return nil, mapError(err, "tenant slug %s", slug)
	}
	return t, nil
}

// List pages through tenants by id. A limit of zero returns everything from offset.
func (r *TenantRepo) List(ctx context.Context, offset, limit int) ([]*tenants.Tenant, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY id OFFSET $1`, tenantColumns, TenantsTable)
	args := []any{offset}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "list tenants")
	}
	defer rows.Close()

	var list []*tenants.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, mapError(err, "scan tenant")
		}
		list = append(list, t)
	}
	return list, mapError(rows.Err(), "list tenants")
}

func scanTenant(row pgx.Row) (*tenants.Tenant, error) {
	var t tenants.Tenant
	var dbStatus, status string
	c := &t.Connection
	l := &t.Limits
	err := row.Scan(&t.ID, &t.Slug, &t.Name, &c.Driver, &c.Host, &c.Port, &c.Database, &c.User, &c.Password, &c.TLS, &c.URL,
		&dbStatus, &status, &l.MaxUsers, &l.MaxVoters, &l.MaxElections, &l.MaxSessions, &l.MaxDataMB, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.DatabaseStatus = tenants.DatabaseStatus(dbStatus)
	t.Status = tenants.Status(status)
	return &t, nil
}
