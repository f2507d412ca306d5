// Package postgres stores the tenant registry, plans and licenses in the
// registry database through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	tgerrors "github.com/jrsteele09/go-tenant-gate/internal/errors"
)

const (
	TenantsTable  = "gate.tenants"
	PlansTable    = "gate.license_plans"
	LicensesTable = "gate.tenant_licenses"
)

var schema = []string{
	`CREATE SCHEMA IF NOT EXISTS gate`,
	`CREATE TABLE IF NOT EXISTS ` + TenantsTable + ` (
		id              TEXT PRIMARY KEY,
		slug            TEXT NOT NULL UNIQUE,
		name            TEXT NOT NULL DEFAULT '',
		db_driver       TEXT NOT NULL DEFAULT '',
		db_host         TEXT NOT NULL DEFAULT '',
		db_port         INTEGER NOT NULL DEFAULT 0,
		db_name         TEXT NOT NULL DEFAULT '',
		db_user         TEXT NOT NULL DEFAULT '',
		db_password     TEXT NOT NULL DEFAULT '',
		db_tls          BOOLEAN NOT NULL DEFAULT FALSE,
		db_url          TEXT NOT NULL DEFAULT '',
		database_status TEXT NOT NULL,
		status          TEXT NOT NULL,
		max_users       BIGINT NOT NULL DEFAULT 0,
		max_voters      BIGINT NOT NULL DEFAULT 0,
		max_elections   BIGINT NOT NULL DEFAULT 0,
		max_sessions    BIGINT NOT NULL DEFAULT 0,
		max_data_mb     BIGINT NOT NULL DEFAULT 0,
		created_at      TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ` + PlansTable + ` (
		id                        TEXT PRIMARY KEY,
		name                      TEXT NOT NULL,
		version                   INTEGER NOT NULL,
		max_concurrent_sessions   BIGINT NOT NULL DEFAULT 0,
		max_sessions_per_user     BIGINT NOT NULL DEFAULT 0,
		max_data_mb               BIGINT NOT NULL DEFAULT 0,
		max_voters                BIGINT NOT NULL DEFAULT 0,
		max_users                 BIGINT NOT NULL DEFAULT 0,
		max_elections             BIGINT NOT NULL DEFAULT 0,
		max_api_requests_per_day  BIGINT NOT NULL DEFAULT 0,
		max_api_requests_per_hour BIGINT NOT NULL DEFAULT 0,
		trial_days                INTEGER NOT NULL DEFAULT 0,
		grace_period_days         INTEGER NOT NULL DEFAULT 0,
		billing_period_days       INTEGER NOT NULL DEFAULT 0,
		monthly_price             DOUBLE PRECISION NOT NULL DEFAULT 0,
		overage_price_per_voter   DOUBLE PRECISION NOT NULL DEFAULT 0,
		overage_price_per_gb      DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at                TIMESTAMPTZ NOT NULL,
		UNIQUE (name, version)
	)`,
	`CREATE TABLE IF NOT EXISTS ` + LicensesTable + ` (
		id                  TEXT PRIMARY KEY,
		tenant_id           TEXT NOT NULL,
		plan_id             TEXT NOT NULL REFERENCES ` + PlansTable + ` (id),
		status              TEXT NOT NULL,
		archived            BOOLEAN NOT NULL DEFAULT FALSE,
		custom_max_users    BIGINT,
		custom_max_sessions BIGINT,
		custom_max_data_mb  BIGINT,
		custom_max_voters   BIGINT,
		custom_max_elections BIGINT,
		admin_notes         TEXT NOT NULL DEFAULT '',
		has_payment_method  BOOLEAN NOT NULL DEFAULT FALSE,
		suspension_reason   TEXT NOT NULL DEFAULT '',
		started_at          TIMESTAMPTZ NOT NULL,
		trial_ends_at       TIMESTAMPTZ,
		expires_at          TIMESTAMPTZ,
		activated_at        TIMESTAMPTZ,
		suspended_at        TIMESTAMPTZ,
		expired_at          TIMESTAMPTZ,
		cancelled_at        TIMESTAMPTZ,
		updated_at          TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS tenant_licenses_current ON ` + LicensesTable + ` (tenant_id) WHERE NOT archived`,
}

// Migrate creates the registry schema when it does not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate registry schema: %w", err)
		}
	}
	return nil
}

// Connect opens the registry pool and verifies it.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open registry database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping registry database: %w", err)
	}
	return pool, nil
}

// mapError turns driver errors into the shared error kinds.
func mapError(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return tgerrors.Wrapf(tgerrors.ErrNotFound, format, args...)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return tgerrors.Wrapf(tgerrors.ErrConflict, format+": %s", append(args, pgErr.ConstraintName)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
