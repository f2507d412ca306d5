package errors

import (
	"errors"
	"fmt"
)

// Error kinds shared by the gateway components. Structured errors in the
// component packages unwrap to one of these so callers can branch with Is.
var (
	// Resolution errors
	ErrTenantNotFound       = errors.New("tenant not found")
	ErrTenantNotProvisioned = errors.New("tenant not provisioned")
	ErrTenantSuspended      = errors.New("tenant suspended")

	// Pool errors
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrHandleEvicted      = errors.New("connection handle evicted")

	// License errors
	ErrLicenseDenied      = errors.New("license does not permit access")
	ErrIllegalTransition  = errors.New("illegal license transition")
	ErrGracePeriodElapsed = errors.New("grace period elapsed")
	ErrNoLicense          = errors.New("no license assigned")

	// Quota errors
	ErrQuotaExceeded = errors.New("quota exceeded")
	ErrSessionLimit  = errors.New("session limit reached")

	// Session errors
	ErrInvalidSessionToken = errors.New("invalid session token")

	// General errors
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnsupported     = errors.New("unsupported operation")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
