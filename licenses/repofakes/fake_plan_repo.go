package licenserepofakes

import (
	"context"
	"sort"
	"sync"

	"github.com/jrsteele09/go-tenant-gate/internal/errors"
	"github.com/jrsteele09/go-tenant-gate/licenses"
)

var _ licenses.PlanRepo = (*FakePlanRepo)(nil)

type FakePlanRepo struct {
	plans map[string]*licenses.Plan
	lock  sync.RWMutex
}

func NewFakePlanRepo() *FakePlanRepo {
	return &FakePlanRepo{
		plans: make(map[string]*licenses.Plan),
	}
}

func (pr *FakePlanRepo) Create(_ context.Context, plan *licenses.Plan) error {
	pr.lock.Lock()
	defer pr.lock.Unlock()
	if _, ok := pr.plans[plan.ID]; ok {
		return errors.Wrapf(errors.ErrConflict, "plan %s", plan.ID)
	}
	for _, p := range pr.plans {
		if p.Name == plan.Name && p.Version == plan.Version {
			return errors.Wrapf(errors.ErrConflict, "plan %s v%d", plan.Name, plan.Version)
		}
	}
	pr.plans[plan.ID] = plan.Clone()
	return nil
}

func (pr *FakePlanRepo) Get(_ context.Context, planID string) (*licenses.Plan, error) {
	pr.lock.RLock()
	defer pr.lock.RUnlock()
	p, ok := pr.plans[planID]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "plan %s", planID)
	}
	return p.Clone(), nil
}

func (pr *FakePlanRepo) Latest(_ context.Context, name string) (*licenses.Plan, error) {
	pr.lock.RLock()
	defer pr.lock.RUnlock()
	var latest *licenses.Plan
	for _, p := range pr.plans {
		if p.Name == name && (latest == nil || p.Version > latest.Version) {
			latest = p
		}
	}
	if latest == nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "plan %q", name)
	}
	return latest.Clone(), nil
}

func (pr *FakePlanRepo) List(_ context.Context) ([]*licenses.Plan, error) {
	pr.lock.RLock()
	defer pr.lock.RUnlock()
	list := make([]*licenses.Plan, 0, len(pr.plans))
	for _, p := range pr.plans {
		list = append(list, p.Clone())
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Name != list[j].Name {
			return list[i].Name < list[j].Name
		}
		return list[i].Version < list[j].Version
	})
	return list, nil
}
