package licenses

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	tgerrors "github.com/jrsteele09/go-tenant-gate/internal/errors"
)

const (
	defaultTrialDays       = 14
	defaultGracePeriodDays = 7
	maxUpdateAttempts      = 3
)

// Service runs the license state machine over a Repo.
type Service struct {
	licenses  Repo
	plans     PlanRepo
	nowTime   func() time.Time
	logger    zerolog.Logger
	trialDays int
	graceDays int
}

type ServiceOption func(*Service)

func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithDefaults sets trial and grace day counts used when a plan leaves them at zero.
func WithDefaults(trialDays, graceDays int) ServiceOption {
	return func(s *Service) {
		s.trialDays = trialDays
		s.graceDays = graceDays
	}
}

func NewService(licenses Repo, plans PlanRepo, options ...ServiceOption) (*Service, error) {
	if licenses == nil {
		return nil, errors.New("[NewService] license repo is required")
	}
	if plans == nil {
		return nil, errors.New("[NewService] plan repo is required")
	}
	s := &Service{
		licenses:  licenses,
		plans:     plans,
		nowTime:   time.Now,
		logger:    log.Logger,
		trialDays: defaultTrialDays,
		graceDays: defaultGracePeriodDays,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Binding is a license together with the plan version it is bound to.
type Binding struct {
	License *License
	Plan    *Plan
}

// Binding returns the tenant's license and plan, or nil when no license has
// been assigned.
func (s *Service) Binding(ctx context.Context, tenantID string) (*Binding, error) {
	lic, err := s.licenses.Get(ctx, tenantID)
	if err != nil {
		if tgerrors.Is(err, tgerrors.ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "[Service.Binding] licenses.Get")
	}
	plan, err := s.plans.Get(ctx, lic.PlanID)
	if err != nil {
		return nil, errors.Wrapf(err, "[Service.Binding] plan %s", lic.PlanID)
	}
	return &Binding{License: lic, Plan: plan}, nil
}

func (s *Service) Get(ctx context.Context, tenantID string) (*License, error) {
	lic, err := s.licenses.Get(ctx, tenantID)
	if err != nil {
		if tgerrors.Is(err, tgerrors.ErrNotFound) {
			return nil, errors.Wrapf(tgerrors.ErrNoLicense, "tenant %s", tenantID)
		}
		return nil, errors.Wrap(err, "[Service.Get] licenses.Get")
	}
	return lic, nil
}

func (s *Service) List(ctx context.Context) ([]*License, error) {
	return s.licenses.List(ctx)
}

// History returns archived licenses of the tenant followed by the current one.
func (s *Service) History(ctx context.Context, tenantID string) ([]*License, error) {
	return s.licenses.History(ctx, tenantID)
}

// AssignRequest binds a tenant to a plan.
type AssignRequest struct {
	TenantID         string
	PlanID           string
	InitialState     State // TRIAL or ACTIVE
	Overrides        Overrides
	HasPaymentMethod bool
	ExpiresAt        *time.Time // ACTIVE only; defaults to the plan's billing period
}

// Assign creates the tenant's license. It fails while the tenant holds a
// license that is not CANCELLED.
func (s *Service) Assign(ctx context.Context, req AssignRequest) (*License, error) {
	if req.TenantID == "" {
		return nil, errors.Wrap(tgerrors.ErrInvalidArgument, "[Service.Assign] tenant id is required")
	}
	if req.InitialState != StateTrial && req.InitialState != StateActive {
		return nil, errors.Wrapf(tgerrors.ErrInvalidArgument, "[Service.Assign] initial state must be TRIAL or ACTIVE, got %q", req.InitialState)
	}
	plan, err := s.plans.Get(ctx, req.PlanID)
	if err != nil {
		return nil, errors.Wrapf(err, "[Service.Assign] plan %s", req.PlanID)
	}

	now := s.nowTime()
	lic := &License{
		ID:               uuid.New().String(),
		TenantID:         req.TenantID,
		PlanID:           plan.ID,
		Status:           req.InitialState,
		Overrides:        req.Overrides.clone(),
		HasPaymentMethod: req.HasPaymentMethod,
		StartedAt:        now,
		UpdatedAt:        now,
	}
	switch req.InitialState {
	case StateTrial:
		trialEnd := now.AddDate(0, 0, s.trialDaysFor(plan))
		lic.TrialEndsAt = &trialEnd
		lic.ExpiresAt = &trialEnd
	case StateActive:
		lic.ActivatedAt = &now
		lic.ExpiresAt = req.ExpiresAt
		if lic.ExpiresAt == nil {
			lic.ExpiresAt = s.termEnd(plan, now)
		}
	}

	if err := s.licenses.Create(ctx, lic); err != nil {
		return nil, errors.Wrap(err, "[Service.Assign] licenses.Create")
	}
	s.logger.Info().Str("tenant_id", lic.TenantID).Str("plan", plan.Name).Int("plan_version", plan.Version).
		Str("state", string(lic.Status)).Msg("license assigned")
	return lic.Clone(), nil
}

// Activate moves TRIAL, SUSPENDED or PENDING_PAYMENT to ACTIVE. A payment
// that arrives after the term ended starts a new term.
func (s *Service) Activate(ctx context.Context, tenantID string) (*License, error) {
	return s.transition(ctx, tenantID, EventActivate, func(l *License, plan *Plan, now time.Time) error {
		from := l.Status
		l.ActivatedAt = &now
		switch from {
		case StateTrial:
			l.TrialEndsAt = nil
			l.ExpiresAt = s.termEnd(plan, now)
		case StateSuspended:
			l.SuspendedAt = nil
			l.SuspensionReason = ""
		case StatePendingPayment:
			if l.ExpiresAt != nil && now.After(*l.ExpiresAt) {
				l.ExpiresAt = s.termEnd(plan, now)
			}
		}
		return nil
	})
}

// Suspend moves ACTIVE to SUSPENDED. The reason is mandatory.
func (s *Service) Suspend(ctx context.Context, tenantID, reason string) (*License, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errors.Wrap(tgerrors.ErrInvalidArgument, "[Service.Suspend] a suspension reason is required")
	}
	if _, err := s.reconcile(ctx, tenantID); err != nil {
		return nil, err
	}
	return s.transition(ctx, tenantID, EventSuspend, func(l *License, _ *Plan, now time.Time) error {
		l.SuspendedAt = &now
		l.SuspensionReason = reason
		return nil
	})
}

// Cancel moves any non-terminal license to CANCELLED.
func (s *Service) Cancel(ctx context.Context, tenantID string) (*License, error) {
	return s.transition(ctx, tenantID, EventCancel, func(l *License, _ *Plan, now time.Time) error {
		l.CancelledAt = &now
		return nil
	})
}

// MarkPaymentFailed records a failed payment outcome on an ACTIVE license.
func (s *Service) MarkPaymentFailed(ctx context.Context, tenantID string) (*License, error) {
	if _, err := s.reconcile(ctx, tenantID); err != nil {
		return nil, err
	}
	return s.transition(ctx, tenantID, EventPaymentFailed, nil)
}

// Renew moves EXPIRED back to ACTIVE while the grace period lasts. A license
// whose expiry passed before the sweep ran is renewable the same way. Past the
// grace period the license is cancelled and the returned error wraps
// errors.ErrGracePeriodElapsed.
func (s *Service) Renew(ctx context.Context, tenantID string) (*License, error) {
	lic, err := s.reconcile(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if lic.Status == StateExpired {
		plan, err := s.plans.Get(ctx, lic.PlanID)
		if err != nil {
			return nil, errors.Wrapf(err, "[Service.Renew] plan %s", lic.PlanID)
		}
		now := s.nowTime()
		if graceEnd := lic.GraceEndsAt(s.graceDaysFor(plan)); graceEnd != nil && now.After(*graceEnd) {
			if _, err := s.lapse(ctx, tenantID); err != nil {
				return nil, err
			}
			return nil, &TransitionError{TenantID: tenantID, From: StateExpired, Event: EventRenew, GraceEnded: graceEnd, graceLapsed: true}
		}
	}
	return s.transition(ctx, tenantID, EventRenew, func(l *License, plan *Plan, now time.Time) error {
		l.ActivatedAt = &now
		l.ExpiredAt = nil
		l.ExpiresAt = s.termEnd(plan, now)
		return nil
	})
}

// SetPaymentMethod records whether a payment method is on file, which decides
// whether a trial converts or expires at its end.
func (s *Service) SetPaymentMethod(ctx context.Context, tenantID string, onFile bool) (*License, error) {
	return s.update(ctx, tenantID, func(l *License) {
		l.HasPaymentMethod = onFile
	})
}

// UpdateOverrides replaces the tenant-specific ceilings. It applies from now on.
func (s *Service) UpdateOverrides(ctx context.Context, tenantID string, overrides Overrides) (*License, error) {
	return s.update(ctx, tenantID, func(l *License) {
		l.Overrides = overrides.clone()
	})
}

// reconcile records an expiry that admission already applies but the sweep
// has not reached yet, so operator actions see the same state as admission.
func (s *Service) reconcile(ctx context.Context, tenantID string) (*License, error) {
	lic, err := s.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if lic.Status == StateExpired || EffectiveState(lic, s.nowTime()) != StateExpired {
		return lic, nil
	}
	expired, err := s.expire(ctx, tenantID)
	if err != nil {
		if tgerrors.Is(err, tgerrors.ErrIllegalTransition) {
			// the sweep or another operator moved it first
			return s.Get(ctx, tenantID)
		}
		return nil, err
	}
	return expired, nil
}

func (s *Service) expire(ctx context.Context, tenantID string) (*License, error) {
	return s.transition(ctx, tenantID, EventExpire, func(l *License, _ *Plan, now time.Time) error {
		l.ExpiredAt = &now
		return nil
	})
}

func (s *Service) lapse(ctx context.Context, tenantID string) (*License, error) {
	return s.transition(ctx, tenantID, EventLapse, func(l *License, _ *Plan, now time.Time) error {
		l.CancelledAt = &now
		return nil
	})
}

// transition applies ev through the table and persists it with a status
// compare-and-swap, re-reading on a concurrent change.
func (s *Service) transition(ctx context.Context, tenantID string, ev Event, mutate func(*License, *Plan, time.Time) error) (*License, error) {
	for attempt := 1; ; attempt++ {
		current, err := s.Get(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		to, err := Next(current.Status, ev)
		if err != nil {
			var te *TransitionError
			if errors.As(err, &te) {
				te.TenantID = tenantID
			}
			return nil, err
		}
		plan, err := s.plans.Get(ctx, current.PlanID)
		if err != nil {
			return nil, errors.Wrapf(err, "[Service.transition] plan %s", current.PlanID)
		}

		now := s.nowTime()
		updated := current.Clone()
		if mutate != nil {
			if err := mutate(updated, plan, now); err != nil {
				return nil, err
			}
		}
		updated.Status = to
		updated.UpdatedAt = now

		err = s.licenses.Update(ctx, updated, current.Status)
		if err == nil {
			s.logger.Info().Str("tenant_id", tenantID).Str("event", string(ev)).
				Str("from", string(current.Status)).Str("to", string(to)).Msg("license transition")
			return updated.Clone(), nil
		}
		if !tgerrors.Is(err, tgerrors.ErrConflict) || attempt >= maxUpdateAttempts {
			return nil, errors.Wrapf(err, "[Service.transition] %s", ev)
		}
	}
}

// update changes non-status fields under the same compare-and-swap.
func (s *Service) update(ctx context.Context, tenantID string, mutate func(*License)) (*License, error) {
	for attempt := 1; ; attempt++ {
		current, err := s.Get(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		updated := current.Clone()
		mutate(updated)
		updated.UpdatedAt = s.nowTime()
		err = s.licenses.Update(ctx, updated, current.Status)
		if err == nil {
			return updated.Clone(), nil
		}
		if !tgerrors.Is(err, tgerrors.ErrConflict) || attempt >= maxUpdateAttempts {
			return nil, errors.Wrap(err, "[Service.update]")
		}
	}
}

func (s *Service) trialDaysFor(plan *Plan) int {
	if plan.TrialDays > 0 {
		return plan.TrialDays
	}
	return s.trialDays
}

func (s *Service) graceDaysFor(plan *Plan) int {
	if plan.GracePeriodDays > 0 {
		return plan.GracePeriodDays
	}
	return s.graceDays
}

func (s *Service) termEnd(plan *Plan, from time.Time) *time.Time {
	if plan.BillingPeriodDays <= 0 {
		return nil
	}
	end := from.AddDate(0, 0, plan.BillingPeriodDays)
	return &end
}
