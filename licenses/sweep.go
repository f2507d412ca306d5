package licenses

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// SweepReport lists the tenants each sweep action touched.
type SweepReport struct {
	Converted []string // trials with a payment method, now ACTIVE
	Expired   []string
	Lapsed    []string // EXPIRED past grace, now CANCELLED
	Failed    map[string]error
}

func (r *SweepReport) Changed() int {
	return len(r.Converted) + len(r.Expired) + len(r.Lapsed)
}

func (r *SweepReport) fail(tenantID string, err error) {
	if r.Failed == nil {
		r.Failed = make(map[string]error)
	}
	r.Failed[tenantID] = err
}

// Sweep applies every time-driven transition due at now. Admission already
// treats due licenses as expired, so a late sweep only delays bookkeeping.
func (s *Service) Sweep(ctx context.Context, now time.Time) (*SweepReport, error) {
	all, err := s.licenses.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Sweep] licenses.List")
	}

	report := &SweepReport{}
	for _, lic := range all {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		switch lic.Status {
		case StateTrial:
			if lic.TrialEndsAt == nil || !now.After(*lic.TrialEndsAt) {
				continue
			}
			if lic.HasPaymentMethod {
				if _, err := s.Activate(ctx, lic.TenantID); err != nil {
					report.fail(lic.TenantID, err)
					continue
				}
				report.Converted = append(report.Converted, lic.TenantID)
				continue
			}
			s.sweepExpire(ctx, lic.TenantID, report)

		case StateActive, StatePendingPayment:
			if lic.ExpiresAt != nil && now.After(*lic.ExpiresAt) {
				s.sweepExpire(ctx, lic.TenantID, report)
			}

		case StateExpired:
			plan, err := s.plans.Get(ctx, lic.PlanID)
			if err != nil {
				report.fail(lic.TenantID, err)
				continue
			}
			graceEnd := lic.GraceEndsAt(s.graceDaysFor(plan))
			if graceEnd == nil || !now.After(*graceEnd) {
				continue
			}
			if _, err := s.lapse(ctx, lic.TenantID); err != nil {
				report.fail(lic.TenantID, err)
				continue
			}
			report.Lapsed = append(report.Lapsed, lic.TenantID)
		}
	}

	s.logger.Info().Int("converted", len(report.Converted)).Int("expired", len(report.Expired)).
		Int("lapsed", len(report.Lapsed)).Int("failed", len(report.Failed)).Msg("license sweep finished")
	return report, nil
}

func (s *Service) sweepExpire(ctx context.Context, tenantID string, report *SweepReport) {
	if _, err := s.expire(ctx, tenantID); err != nil {
		report.fail(tenantID, err)
		return
	}
	report.Expired = append(report.Expired, tenantID)
}

// Run sweeps every interval until ctx is done.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx, s.nowTime()); err != nil && ctx.Err() == nil {
				s.logger.Err(err).Msg("license sweep")
			}
		}
	}
}
