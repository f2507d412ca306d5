package licenses

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-tenant-gate/internal/config"
	tgerrors "github.com/jrsteele09/go-tenant-gate/internal/errors"
)

// CreatePlan stores version 1 of a new named plan.
func (s *Service) CreatePlan(ctx context.Context, plan *Plan) (*Plan, error) {
	if strings.TrimSpace(plan.Name) == "" {
		return nil, errors.Wrap(tgerrors.ErrInvalidArgument, "[Service.CreatePlan] plan name is required")
	}
	if _, err := s.plans.Latest(ctx, plan.Name); err == nil {
		return nil, errors.Wrapf(tgerrors.ErrConflict, "[Service.CreatePlan] plan %q exists, revise it instead", plan.Name)
	} else if !tgerrors.Is(err, tgerrors.ErrNotFound) {
		return nil, errors.Wrap(err, "[Service.CreatePlan] plans.Latest")
	}
	created := plan.Clone()
	created.ID = uuid.New().String()
	created.Version = 1
	created.CreatedAt = s.nowTime()
	if err := s.plans.Create(ctx, created); err != nil {
		return nil, errors.Wrap(err, "[Service.CreatePlan] plans.Create")
	}
	return created.Clone(), nil
}

// RevisePlan stores the new terms as the next version of the named plan.
// Licenses bound to earlier versions are untouched.
func (s *Service) RevisePlan(ctx context.Context, plan *Plan) (*Plan, error) {
	latest, err := s.plans.Latest(ctx, plan.Name)
	if err != nil {
		return nil, errors.Wrapf(err, "[Service.RevisePlan] plan %q", plan.Name)
	}
	revised := plan.Clone()
	revised.ID = uuid.New().String()
	revised.Version = latest.Version + 1
	revised.CreatedAt = s.nowTime()
	if err := s.plans.Create(ctx, revised); err != nil {
		return nil, errors.Wrap(err, "[Service.RevisePlan] plans.Create")
	}
	s.logger.Info().Str("plan", revised.Name).Int("version", revised.Version).Msg("plan revised")
	return revised.Clone(), nil
}

// LatestPlan returns the newest version of the named plan.
func (s *Service) LatestPlan(ctx context.Context, name string) (*Plan, error) {
	return s.plans.Latest(ctx, name)
}

func (s *Service) Plans(ctx context.Context) ([]*Plan, error) {
	return s.plans.List(ctx)
}

// SeedPlans creates catalog plans that do not exist yet and revises those whose
// terms changed. It returns the latest version of every catalog plan.
func (s *Service) SeedPlans(ctx context.Context, catalog *config.PlanCatalog) ([]*Plan, error) {
	var seeded []*Plan
	for _, entry := range catalog.Plans {
		want := planFromEntry(entry)
		latest, err := s.plans.Latest(ctx, want.Name)
		switch {
		case tgerrors.Is(err, tgerrors.ErrNotFound):
			created, err := s.CreatePlan(ctx, want)
			if err != nil {
				return nil, err
			}
			seeded = append(seeded, created)
		case err != nil:
			return nil, errors.Wrap(err, "[Service.SeedPlans] plans.Latest")
		case latest.sameTerms(want):
			seeded = append(seeded, latest)
		default:
			revised, err := s.RevisePlan(ctx, want)
			if err != nil {
				return nil, err
			}
			seeded = append(seeded, revised)
		}
	}
	return seeded, nil
}

func planFromEntry(e config.PlanEntry) *Plan {
	return &Plan{
		Name:                  e.Name,
		MaxConcurrentSessions: e.MaxConcurrentSessions,
		MaxSessionsPerUser:    e.MaxSessionsPerUser,
		MaxDataMB:             e.MaxDataMB,
		MaxVoters:             e.MaxVoters,
		MaxUsers:              e.MaxUsers,
		MaxElections:          e.MaxElections,
		MaxAPIRequestsPerDay:  e.MaxAPIRequestsPerDay,
		MaxAPIRequestsPerHour: e.MaxAPIRequestsPerHour,
		TrialDays:             e.TrialDays,
		GracePeriodDays:       e.GracePeriodDays,
		BillingPeriodDays:     e.BillingPeriodDays,
		MonthlyPrice:          e.MonthlyPrice,
		OveragePricePerVoter:  e.OveragePricePerVoter,
		OveragePricePerGB:     e.OveragePricePerGB,
	}
}
