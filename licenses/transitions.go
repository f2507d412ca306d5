package licenses

// Event is an action applied to a license.
type Event string

const (
	EventActivate      Event = "activate"       // operator or payment success
	EventSuspend       Event = "suspend"        // operator, reason required
	EventCancel        Event = "cancel"         // operator, irreversible
	EventRenew         Event = "renew"          // within grace period only
	EventExpire        Event = "expire"         // scheduled expiry check
	EventLapse         Event = "lapse"          // grace period over
	EventPaymentFailed Event = "payment_failed" // payment outcome
)

// Events lists every event in a stable order.
var Events = []Event{
	EventActivate,
	EventSuspend,
	EventCancel,
	EventRenew,
	EventExpire,
	EventLapse,
	EventPaymentFailed,
}

// transitions is the single source of truth for legal license state changes.
var transitions = map[State]map[Event]State{
	StateTrial: {
		EventActivate: StateActive,
		EventExpire:   StateExpired,
		EventCancel:   StateCancelled,
	},
	StateActive: {
		EventSuspend:       StateSuspended,
		EventExpire:        StateExpired,
		EventPaymentFailed: StatePendingPayment,
		EventCancel:        StateCancelled,
	},
	StateSuspended: {
		EventActivate: StateActive,
		EventCancel:   StateCancelled,
	},
	StatePendingPayment: {
		EventActivate: StateActive,
		EventExpire:   StateExpired,
		EventCancel:   StateCancelled,
	},
	StateExpired: {
		EventRenew: StateActive,
		EventLapse: StateCancelled,
	},
	StateCancelled: {},
}

// Next returns the state reached by applying ev to from, or a
// *TransitionError when the pair is not in the table.
func Next(from State, ev Event) (State, error) {
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	return from, &TransitionError{From: from, Event: ev}
}

// Allowed reports whether ev is legal from state from.
func Allowed(from State, ev Event) bool {
	_, ok := transitions[from][ev]
	return ok
}
