package licenses

import (
	"context"
	"time"

	"github.com/jrsteele09/go-tenant-gate/tenants"
)

// Plan is an immutable snapshot of quotas and pricing. Revising a plan stores
// a new version under a new id; licenses keep the id they were bound to.
type Plan struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version int    `json:"version"`

	MaxConcurrentSessions int64 `json:"max_concurrent_sessions"`
	MaxSessionsPerUser    int64 `json:"max_sessions_per_user"`
	MaxDataMB             int64 `json:"max_data_mb"`
	MaxVoters             int64 `json:"max_voters"`
	MaxUsers              int64 `json:"max_users"`
	MaxElections          int64 `json:"max_elections"`
	MaxAPIRequestsPerDay  int64 `json:"max_api_requests_per_day"`
	MaxAPIRequestsPerHour int64 `json:"max_api_requests_per_hour"`

	TrialDays         int `json:"trial_days"`
	GracePeriodDays   int `json:"grace_period_days"`
	BillingPeriodDays int `json:"billing_period_days"` // 0 means no scheduled expiry

	MonthlyPrice         float64 `json:"monthly_price"`
	OveragePricePerVoter float64 `json:"overage_price_per_voter"`
	OveragePricePerGB    float64 `json:"overage_price_per_gb"`

	CreatedAt time.Time `json:"created_at"`
}

func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// Limit returns the plan's ceiling for kind and whether one is set.
func (p *Plan) Limit(kind tenants.ResourceKind) (int64, bool) {
	var v int64
	switch kind {
	case tenants.ResourceUsers:
		v = p.MaxUsers
	case tenants.ResourceVoters:
		v = p.MaxVoters
	case tenants.ResourceElections:
		v = p.MaxElections
	case tenants.ResourceSessions:
		v = p.MaxConcurrentSessions
	case tenants.ResourceDataMB:
		v = p.MaxDataMB
	}
	return v, v > 0
}

// sameTerms compares everything except identity and timestamps.
func (p *Plan) sameTerms(other *Plan) bool {
	a, b := *p, *other
	a.ID, b.ID = "", ""
	a.Version, b.Version = 0, 0
	a.CreatedAt, b.CreatedAt = time.Time{}, time.Time{}
	return a == b
}

// PlanRepo stores plan versions. Create never overwrites an existing id.
type PlanRepo interface {
	Create(ctx context.Context, plan *Plan) error
	Get(ctx context.Context, planID string) (*Plan, error)
	Latest(ctx context.Context, name string) (*Plan, error)
	List(ctx context.Context) ([]*Plan, error)
}
