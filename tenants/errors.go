package tenants

import (
	"fmt"

	"github.com/jrsteele09/go-tenant-gate/internal/errors"
)

// ResolutionError explains why an identifier could not be resolved. Kind is one
// of errors.ErrTenantNotFound, errors.ErrTenantNotProvisioned or
// errors.ErrTenantSuspended.
type ResolutionError struct {
	Identifier     string
	Kind           error
	DatabaseStatus DatabaseStatus
}

func (e *ResolutionError) Error() string {
	if e.Kind == errors.ErrTenantNotProvisioned {
		return fmt.Sprintf("tenant %q: %s (database %s)", e.Identifier, e.Kind, e.DatabaseStatus)
	}
	return fmt.Sprintf("tenant %q: %s", e.Identifier, e.Kind)
}

func (e *ResolutionError) Unwrap() error {
	return e.Kind
}
