package licenses

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Admission is the outcome of an allowed license check.
type Admission struct {
	TenantID string
	// Effective is the state admission was evaluated against.
	Effective State
	// Unlicensed is set when the tenant has no license bound; tenant status
	// alone governs such tenants.
	Unlicensed bool
	License    *License
	Plan       *Plan
}

// EffectiveState is the state the license is in at now, accounting for a
// trial end or expiry that passed before the sweep converted it.
func EffectiveState(l *License, now time.Time) State {
	switch l.Status {
	case StateTrial:
		if l.TrialEndsAt != nil && now.After(*l.TrialEndsAt) && !l.HasPaymentMethod {
			return StateExpired
		}
	case StateActive, StatePendingPayment:
		if l.ExpiresAt != nil && now.After(*l.ExpiresAt) {
			return StateExpired
		}
	}
	return l.Status
}

// CheckAdmission allows ACTIVE licenses and trials inside their window. Every
// other state is denied with an *AdmissionError carrying that state. The
// result is never cached.
func (s *Service) CheckAdmission(ctx context.Context, tenantID string, now time.Time) (*Admission, error) {
	binding, err := s.Binding(ctx, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.CheckAdmission]")
	}
	if binding == nil {
		return &Admission{TenantID: tenantID, Unlicensed: true}, nil
	}

	lic := binding.License
	effective := EffectiveState(lic, now)
	if effective == StateActive || effective == StateTrial {
		return &Admission{TenantID: tenantID, Effective: effective, License: lic, Plan: binding.Plan}, nil
	}

	denied := &AdmissionError{TenantID: tenantID, State: effective}
	switch {
	case lic.Status == StateTrial:
		// Report the trial rather than a generic expiry.
		denied.State = StateTrial
	case effective == StateSuspended:
		denied.Reason = lic.SuspensionReason
	}
	s.logger.Debug().Str("tenant_id", tenantID).Str("state", string(denied.State)).Msg("license admission denied")
	return nil, denied
}
