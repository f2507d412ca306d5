package licenses

import "context"

// Repo stores the current license of each tenant.
//
// Create fails with errors.ErrConflict while the tenant holds a license that is
// not CANCELLED; a cancelled license is archived and replaced. Update is a
// compare-and-swap on the status: it fails with errors.ErrConflict when the
// stored status is no longer expected.
type Repo interface {
	Create(ctx context.Context, license *License) error
	Get(ctx context.Context, tenantID string) (*License, error)
	Update(ctx context.Context, license *License, expected State) error
	List(ctx context.Context) ([]*License, error)
	History(ctx context.Context, tenantID string) ([]*License, error)
}
