package licenserepofakes

import (
	"context"
	"sort"
	"sync"

	"github.com/jrsteele09/go-tenant-gate/internal/errors"
	"github.com/jrsteele09/go-tenant-gate/licenses"
)

var _ licenses.Repo = (*FakeLicenseRepo)(nil)

type FakeLicenseRepo struct {
	current map[string]*licenses.License   // tenantID -> license
	history map[string][]*licenses.License // tenantID -> archived, oldest first
	lock    sync.RWMutex
}

func NewFakeLicenseRepo() *FakeLicenseRepo {
	return &FakeLicenseRepo{
		current: make(map[string]*licenses.License),
		history: make(map[string][]*licenses.License),
	}
}

func (lr *FakeLicenseRepo) Create(_ context.Context, license *licenses.License) error {
	lr.lock.Lock()
	defer lr.lock.Unlock()
	if existing, ok := lr.current[license.TenantID]; ok {
		if existing.Status != licenses.StateCancelled {
			return errors.Wrapf(errors.ErrConflict, "tenant %s already holds a %s license", license.TenantID, existing.Status)
		}
		lr.history[license.TenantID] = append(lr.history[license.TenantID], existing)
	}
	lr.current[license.TenantID] = license.Clone()
	return nil
}

func (lr *FakeLicenseRepo) Get(_ context.Context, tenantID string) (*licenses.License, error) {
	lr.lock.RLock()
	defer lr.lock.RUnlock()
	l, ok := lr.current[tenantID]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "license for tenant %s", tenantID)
	}
	return l.Clone(), nil
}

func (lr *FakeLicenseRepo) Update(_ context.Context, license *licenses.License, expected licenses.State) error {
	lr.lock.Lock()
	defer lr.lock.Unlock()
	existing, ok := lr.current[license.TenantID]
	if !ok || existing.ID != license.ID {
		return errors.Wrapf(errors.ErrNotFound, "license %s", license.ID)
	}
	if existing.Status != expected {
		return errors.Wrapf(errors.ErrConflict, "license %s is %s, expected %s", license.ID, existing.Status, expected)
	}
	lr.current[license.TenantID] = license.Clone()
	return nil
}

func (lr *FakeLicenseRepo) List(_ context.Context) ([]*licenses.License, error) {
	lr.lock.RLock()
	defer lr.lock.RUnlock()
	list := make([]*licenses.License, 0, len(lr.current))
	for _, l := range lr.current {
		list = append(list, l.Clone())
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].TenantID < list[j].TenantID
	})
	return list, nil
}

func (lr *FakeLicenseRepo) History(_ context.Context, tenantID string) ([]*licenses.License, error) {
	lr.lock.RLock()
	defer lr.lock.RUnlock()
	archived := lr.history[tenantID]
	list := make([]*licenses.License, 0, len(archived)+1)
	for _, l := range archived {
		list = append(list, l.Clone())
	}
	if l, ok := lr.current[tenantID]; ok {
		list = append(list, l.Clone())
	}
	return list, nil
}
