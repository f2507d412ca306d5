package licenses

import (
	"time"

	"github.com/jrsteele09/go-tenant-gate/internal/utils"
	"github.com/jrsteele09/go-tenant-gate/tenants"
)

// Overrides are tenant-specific ceilings that win over the plan when set.
type Overrides struct {
	MaxUsers     *int64 `json:"max_users,omitempty"`
	MaxSessions  *int64 `json:"max_sessions,omitempty"`
	MaxDataMB    *int64 `json:"max_data_mb,omitempty"`
	MaxVoters    *int64 `json:"max_voters,omitempty"`
	MaxElections *int64 `json:"max_elections,omitempty"`
	AdminNotes   string `json:"admin_notes,omitempty"`
}

func (o Overrides) For(kind tenants.ResourceKind) (int64, bool) {
	var v *int64
	switch kind {
	case tenants.ResourceUsers:
		v = o.MaxUsers
	case tenants.ResourceVoters:
		v = o.MaxVoters
	case tenants.ResourceElections:
		v = o.MaxElections
	case tenants.ResourceSessions:
		v = o.MaxSessions
	case tenants.ResourceDataMB:
		v = o.MaxDataMB
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}

func (o Overrides) clone() Overrides {
	c := o
	for _, p := range []**int64{&c.MaxUsers, &c.MaxSessions, &c.MaxDataMB, &c.MaxVoters, &c.MaxElections} {
		*p = utils.ClonePtr(*p)
	}
	return c
}

// License binds one tenant to one plan version.
type License struct {
	ID               string     `json:"id"`
	TenantID         string     `json:"tenant_id"`
	PlanID           string     `json:"plan_id"`
	Status           State      `json:"status"`
	Overrides        Overrides  `json:"overrides"`
	HasPaymentMethod bool       `json:"has_payment_method"`
	SuspensionReason string     `json:"suspension_reason,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	TrialEndsAt      *time.Time `json:"trial_ends_at,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"` // Anchor for the grace period
	ActivatedAt      *time.Time `json:"activated_at,omitempty"`
	SuspendedAt      *time.Time `json:"suspended_at,omitempty"`
	ExpiredAt        *time.Time `json:"expired_at,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (l *License) Clone() *License {
	if l == nil {
		return nil
	}
	c := *l
	c.Overrides = l.Overrides.clone()
	for _, p := range []**time.Time{&c.TrialEndsAt, &c.ExpiresAt, &c.ActivatedAt, &c.SuspendedAt, &c.ExpiredAt, &c.CancelledAt} {
		*p = utils.ClonePtr(*p)
	}
	return &c
}

// GraceEndsAt is the last instant a renewal is accepted, nil when the
// license has no expiry.
func (l *License) GraceEndsAt(graceDays int) *time.Time {
	if l.ExpiresAt == nil {
		return nil
	}
	end := l.ExpiresAt.AddDate(0, 0, graceDays)
	return &end
}
