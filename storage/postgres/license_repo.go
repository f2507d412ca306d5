package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	tgerrors "github.com/jrsteele09/go-tenant-gate/internal/errors"
	"github.com/jrsteele09/go-tenant-gate/licenses"
)

var _ licenses.Repo = (*LicenseRepo)(nil)

const licenseColumns = `id, tenant_id, plan_id, status, custom_max_users, custom_max_sessions, custom_max_data_mb,
	custom_max_voters, custom_max_elections, admin_notes, has_payment_method, suspension_reason, started_at,
	trial_ends_at, expires_at, activated_at, suspended_at, expired_at, cancelled_at, updated_at`

// LicenseRepo keeps one current row per tenant; replaced licenses are archived.
type LicenseRepo struct {
	pool *pgxpool.Pool
}

func NewLicenseRepo(pool *pgxpool.Pool) *LicenseRepo {
	return &LicenseRepo{pool: pool}
}

func licenseArgs(l *licenses.License) []any {
	o := l.Overrides
	return []any{
		l.ID, l.TenantID, l.PlanID, string(l.Status), o.MaxUsers, o.MaxSessions, o.MaxDataMB,
		o.MaxVoters, o.MaxElections, o.AdminNotes, l.HasPaymentMethod, l.SuspensionReason, l.StartedAt,
		l.TrialEndsAt, l.ExpiresAt, l.ActivatedAt, l.SuspendedAt, l.ExpiredAt, l.CancelledAt, l.UpdatedAt,
	}
}

func (r *LicenseRepo) Create(ctx context.Context, l *licenses.License) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapError(err, "begin create license")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current string
	err = tx.QueryRow(ctx, fmt.Sprintf(`SELECT status FROM %s WHERE tenant_id = $1 AND NOT archived FOR UPDATE`, LicensesTable),
		l.TenantID).Scan(&current)
	switch {
	case tgerrors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return mapError(err, "current license of %s", l.TenantID)
	case licenses.State(current) != licenses.StateCancelled:
		return tgerrors.Wrapf(tgerrors.ErrConflict, "tenant %s already holds a %s license", l.TenantID, current)
	default:
		if _, err := tx.Exec(ctx, fmt.Sprintf(`UPDATE %s SET archived = TRUE WHERE tenant_id = $1 AND NOT archived`, LicensesTable), l.TenantID); err != nil {
			return mapError(err, "archive license of %s", l.TenantID)
		}
	}

	insert := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		LicensesTable, licenseColumns)
	if _, err := tx.Exec(ctx, insert, licenseArgs(l)...); err != nil {
		return mapError(err, "create license for %s", l.TenantID)
	}
	return mapError(tx.Commit(ctx), "commit license for %s", l.TenantID)
}

func (r *LicenseRepo) Get(ctx context.Context, tenantID string) (*licenses.License, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE tenant_id = $1 AND NOT archived`, licenseColumns, LicensesTable)
	l, err := scanLicense(r.pool.QueryRow(ctx, query, tenantID))
	if err != nil {
		return nil, mapError(err, "license for tenant %s", tenantID)
	}
	return l, nil
}

// Update writes the license only while its stored status still equals expected.
func (r *LicenseRepo) Update(ctx context.Context, l *licenses.License, expected licenses.State) error {
	query := fmt.Sprintf(`UPDATE %s SET
		plan_id = $3, status = $4, custom_max_users = $5, custom_max_sessions = $6, custom_max_data_mb = $7,
		custom_max_voters = $8, custom_max_elections = $9, admin_notes = $10, has_payment_method = $11,
		suspension_reason = $12, started_at = $13, trial_ends_at = $14, expires_at = $15, activated_at = $16,
		suspended_at = $17, expired_at = $18, cancelled_at = $19, updated_at = $20
		WHERE id = $1 AND tenant_id = $2 AND NOT archived AND status = $21`, LicensesTable)
	tag, err := r.pool.Exec(ctx, query, append(licenseArgs(l), string(expected))...)
	if err != nil {
		return mapError(err, "update license %s", l.ID)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var status string
	err = r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT status FROM %s WHERE id = $1 AND NOT archived`, LicensesTable), l.ID).Scan(&status)
	if err != nil {
		return mapError(err, "license %s", l.ID)
	}
	return tgerrors.Wrapf(tgerrors.ErrConflict, "license %s is %s, expected %s", l.ID, status, expected)
}

func (r *LicenseRepo) List(ctx context.Context) ([]*licenses.License, error) {
	return r.query(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE NOT archived ORDER BY tenant_id`, licenseColumns, LicensesTable))
}

func (r *LicenseRepo) History(ctx context.Context, tenantID string) ([]*licenses.License, error) {
	return r.query(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE tenant_id = $1 ORDER BY NOT archived, started_at`, licenseColumns, LicensesTable), tenantID)
}

func (r *LicenseRepo) query(ctx context.Context, query string, args ...any) ([]*licenses.License, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "list licenses")
	}
	defer rows.Close()

	var list []*licenses.License
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, mapError(err, "scan license")
		}
		list = append(list, l)
	}
	return list, mapError(rows.Err(), "list licenses")
}

func scanLicense(row pgx.Row) (*licenses.License, error) {
	var l licenses.License
	var status string
	o := &l.Overrides
	err := row.Scan(&l.ID, &l.TenantID, &l.PlanID, &status, &o.MaxUsers, &o.MaxSessions, &o.MaxDataMB,
		&o.MaxVoters, &o.MaxElections, &o.AdminNotes, &l.HasPaymentMethod, &l.SuspensionReason, &l.StartedAt,
		&l.TrialEndsAt, &l.ExpiresAt, &l.ActivatedAt, &l.SuspendedAt, &l.ExpiredAt, &l.CancelledAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	l.Status = licenses.State(status)
	return &l, nil
}
