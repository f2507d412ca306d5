package sessions

import (
	"fmt"

	"github.com/jrsteele09/go-tenant-gate/internal/errors"
)

// Scope says which session limit denied an admission.
type Scope string

const (
	ScopeTenant Scope = "tenant"
	ScopeUser   Scope = "user"
)

// LimitError is a session admission denial.
type LimitError struct {
	TenantID string
	UserID   string
	Scope    Scope
	Limit    int64
	Current  int64
}

func (e *LimitError) Error() string {
	if e.Scope == ScopeUser {
		return fmt.Sprintf("tenant %s: user %s already has %d of %d sessions", e.TenantID, e.UserID, e.Current, e.Limit)
	}
	return fmt.Sprintf("tenant %s: %d of %d concurrent sessions in use", e.TenantID, e.Current, e.Limit)
}

func (e *LimitError) Unwrap() error {
	return errors.ErrSessionLimit
}
