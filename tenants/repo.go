package tenants

import "context"

// Repo is the authoritative tenant store. Get and GetBySlug return an error
// wrapping errors.ErrNotFound for unknown tenants.
type Repo interface {
	Upsert(ctx context.Context, tenantData *Tenant) error
	Delete(ctx context.Context, tenantID string) error
	Get(ctx context.Context, tenantID string) (*Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)
	List(ctx context.Context, offset, limit int) ([]*Tenant, error)
}
