package tenantrepofakes

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/jrsteele09/go-tenant-gate/internal/errors"
	"github.com/jrsteele09/go-tenant-gate/tenants"
)

var _ tenants.Repo = (*FakeTenantRepo)(nil)

type FakeTenantRepo struct {
	tenants map[string]*tenants.Tenant
	slugs   map[string]string // slug -> tenantID
	lock    sync.RWMutex
}

func NewFakeTenantRepo() *FakeTenantRepo {
	return &FakeTenantRepo{
		tenants: make(map[string]*tenants.Tenant),
		slugs:   make(map[string]string),
	}
}

func (tr *FakeTenantRepo) Upsert(_ context.Context, tenantData *tenants.Tenant) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	if tenantData.ID == "" {
		tenantData.ID = uuid.New().String()
	}
	if owner, ok := tr.slugs[tenantData.Slug]; ok && owner != tenantData.ID {
		return errors.Wrapf(errors.ErrConflict, "slug %q", tenantData.Slug)
	}
	if existing, ok := tr.tenants[tenantData.ID]; ok && existing.Slug != tenantData.Slug {
		return errors.Wrapf(errors.ErrConflict, "slug of %s is immutable", tenantData.ID)
	}
	tr.tenants[tenantData.ID] = tenantData.Clone()
	tr.slugs[tenantData.Slug] = tenantData.ID
	return nil
}

func (tr *FakeTenantRepo) Delete(_ context.Context, tenantID string) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	if t, ok := tr.tenants[tenantID]; ok {
		delete(tr.slugs, t.Slug)
		delete(tr.tenants, tenantID)
	}
	return nil
}

func (tr *FakeTenantRepo) Get(_ context.Context, tenantID string) (*tenants.Tenant, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	t, ok := tr.tenants[tenantID]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "tenant %s", tenantID)
	}
	return t.Clone(), nil
}

func (tr *FakeTenantRepo) GetBySlug(_ context.Context, slug string) (*tenants.Tenant, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	id, ok := tr.slugs[slug]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "tenant slug %s", slug)
	}
	return tr.tenants[id].Clone(), nil
}

func (tr *FakeTenantRepo) List(_ context.Context, offset, limit int) ([]*tenants.Tenant, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	list := make([]*tenants.Tenant, 0, len(tr.tenants))
	for _, t := range tr.tenants {
		list = append(list, t.Clone())
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})

	if offset >= len(list) {
		return nil, nil
	}
	end := len(list)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return list[offset:end], nil
}
