package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jrsteele09/go-tenant-gate/licenses"
)

var _ licenses.PlanRepo = (*PlanRepo)(nil)

const planColumns = `id, name, version, max_concurrent_sessions, max_sessions_per_user, max_data_mb, max_voters,
	max_users, max_elections, max_api_requests_per_day, max_api_requests_per_hour, trial_days, grace_period_days,
	billing_period_days, monthly_price, overage_price_per_voter, overage_price_per_gb, created_at`

// PlanRepo stores plan versions. Rows are insert-only.
type PlanRepo struct {
	pool *pgxpool.Pool
}

func NewPlanRepo(pool *pgxpool.Pool) *PlanRepo {
	return &PlanRepo{pool: pool}
}

func (r *PlanRepo) Create(ctx context.Context, p *licenses.Plan) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		PlansTable, planColumns)
	_, err := r.pool.Exec(ctx, query,
		p.ID, p.Name, p.Version, p.MaxConcurrentSessions, p.MaxSessionsPerUser, p.MaxDataMB, p.MaxVoters,
		p.MaxUsers, p.MaxElections, p.MaxAPIRequestsPerDay, p.MaxAPIRequestsPerHour, p.TrialDays, p.GracePeriodDays,
		p.BillingPeriodDays, p.MonthlyPrice, p.OveragePricePerVoter, p.OveragePricePerGB, p.CreatedAt,
	)
	return mapError(err, "create plan %s v%d", p.Name, p.Version)
}

func (r *PlanRepo) Get(ctx context.Context, planID string) (*licenses.Plan, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, planColumns, PlansTable)
	p, err := scanPlan(r.pool.QueryRow(ctx, query, planID))
	if err != nil {
		return nil, mapError(err, "plan %s", planID)
	}
	return p, nil
}

func (r *PlanRepo) Latest(ctx context.Context, name string) (*licenses.Plan, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE name = $1 ORDER BY version DESC LIMIT 1`, planColumns, PlansTable)
	p, err := scanPlan(r.pool.QueryRow(ctx, query, name))
	if err != nil {
		return nil, mapError(err, "plan %q", name)
	}
	return p, nil
}

func (r *PlanRepo) List(ctx context.Context) ([]*licenses.Plan, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM %s ORDER BY name, version`, planColumns, PlansTable))
	if err != nil {
		return nil, mapError(err, "list plans")
	}
	defer rows.Close()

	var list []*licenses.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, mapError(err, "scan plan")
		}
		list = append(list, p)
	}
	return list, mapError(rows.Err(), "list plans")
}

func scanPlan(row pgx.Row) (*licenses.Plan, error) {
	var p licenses.Plan
	err := row.Scan(&p.ID, &p.Name, &p.Version, &p.MaxConcurrentSessions, &p.MaxSessionsPerUser, &p.MaxDataMB, &p.MaxVoters,
		&p.MaxUsers, &p.MaxElections, &p.MaxAPIRequestsPerDay, &p.MaxAPIRequestsPerHour, &p.TrialDays, &p.GracePeriodDays,
		&p.BillingPeriodDays, &p.MonthlyPrice, &p.OveragePricePerVoter, &p.OveragePricePerGB, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
