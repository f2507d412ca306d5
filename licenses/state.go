package licenses

// State is the subscription lifecycle state of a tenant license.
type State string

const (
	StateTrial          State = "TRIAL"
	StateActive         State = "ACTIVE"
	StateSuspended      State = "SUSPENDED"
	StateExpired        State = "EXPIRED"
	StateCancelled      State = "CANCELLED"
	StatePendingPayment State = "PENDING_PAYMENT"
)

// States lists every state in a stable order.
var States = []State{
	StateTrial,
	StateActive,
	StateSuspended,
	StateExpired,
	StateCancelled,
	StatePendingPayment,
}

func (s State) Valid() bool {
	for _, known := range States {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal states leave the table only by renewal (EXPIRED, within grace) or
// by lapsing (EXPIRED to CANCELLED). CANCELLED needs a new assignment.
func (s State) Terminal() bool {
	return s == StateExpired || s == StateCancelled
}

// Message is a caller-facing explanation of a denied state.
func (s State) Message() string {
	switch s {
	case StateTrial:
		return "trial expired"
	case StateSuspended:
		return "suspended by administrator"
	case StateExpired:
		return "license expired"
	case StateCancelled:
		return "license cancelled"
	case StatePendingPayment:
		return "payment required"
	}
	return "license inactive"
}
