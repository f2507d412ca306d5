package pool

import (
	"fmt"

	"github.com/jrsteele09/go-tenant-gate/internal/errors"
)

// BackendError reports that a tenant database could not be reached after
// all connect attempts. It is never a "tenant not found".
type BackendError struct {
	TenantID string
	Attempts int
	Err      error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("tenant %s: %s after %d attempt(s): %v", e.TenantID, errors.ErrBackendUnavailable, e.Attempts, e.Err)
}

func (e *BackendError) Unwrap() []error {
	return []error{errors.ErrBackendUnavailable, e.Err}
}
