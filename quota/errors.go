package quota

import (
	"fmt"

	"github.com/jrsteele09/go-tenant-gate/internal/errors"
	"github.com/jrsteele09/go-tenant-gate/tenants"
)

// ExceededError identifies the resource kind, limit and usage that denied a
// request.
type ExceededError struct {
	TenantID string
	Kind     tenants.ResourceKind
	Limit    int64
	Current  int64
	Delta    int64
	Source   Source
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("tenant %s: %s limit %d reached (current %d, requested +%d)", e.TenantID, e.Kind, e.Limit, e.Current, e.Delta)
}

func (e *ExceededError) Unwrap() error {
	return errors.ErrQuotaExceeded
}
