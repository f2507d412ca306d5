package licenses

import (
	"fmt"
	"time"

	"github.com/jrsteele09/go-tenant-gate/internal/errors"
)

// AdmissionError is a license-based denial. State is the effective state,
// which can be EXPIRED for a license whose expiry passed before the sweep ran.
type AdmissionError struct {
	TenantID string
	State    State
	Reason   string
}

func (e *AdmissionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("tenant %s: %s (%s): %s", e.TenantID, e.State.Message(), e.State, e.Reason)
	}
	return fmt.Sprintf("tenant %s: %s (%s)", e.TenantID, e.State.Message(), e.State)
}

func (e *AdmissionError) Unwrap() error {
	return errors.ErrLicenseDenied
}

// TransitionError is returned for any state change not in the transition table,
// and for renewals attempted after the grace period.
type TransitionError struct {
	TenantID    string
	From        State
	Event       Event
	GraceEnded  *time.Time
	graceLapsed bool
}

func (e *TransitionError) Error() string {
	if e.graceLapsed {
		return fmt.Sprintf("tenant %s: cannot %s: grace period ended %s; license cancelled, assign a new one",
			e.TenantID, e.Event, e.GraceEnded.Format(time.RFC3339))
	}
	return fmt.Sprintf("tenant %s: %s: %s from %s", e.TenantID, errors.ErrIllegalTransition, e.Event, e.From)
}

func (e *TransitionError) Unwrap() []error {
	if e.graceLapsed {
		return []error{errors.ErrIllegalTransition, errors.ErrGracePeriodElapsed}
	}
	return []error{errors.ErrIllegalTransition}
}
