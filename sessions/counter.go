package sessions

import "context"

// Limits are the session ceilings evaluated in one admission step.
type Limits struct {
	MaxSessions int64
	MaxPerUser  int64
}

// Counter tracks live sessions per tenant. Admit checks both limits and
// records the session as one indivisible step relative to other Admit calls
// for the same tenant; a denial is returned as a *LimitError. Release is
// idempotent and reports whether the session was live.
type Counter interface {
	Admit(ctx context.Context, tenantID, userID, sessionID string, limits Limits) error
	Release(ctx context.Context, tenantID, sessionID string) (bool, error)
	Live(ctx context.Context, tenantID string) (int64, error)
	LiveForUser(ctx context.Context, tenantID, userID string) (int64, error)
}
