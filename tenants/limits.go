package tenants

// ResourceKind names a quota-bearing resource.
type ResourceKind string

const (
	ResourceUsers     ResourceKind = "users"
	ResourceVoters    ResourceKind = "voters"
	ResourceElections ResourceKind = "elections"
	ResourceSessions  ResourceKind = "sessions"
	ResourceDataMB    ResourceKind = "data_mb"
)

// ResourceKinds lists every kind in a stable order.
var ResourceKinds = []ResourceKind{
	ResourceUsers,
	ResourceVoters,
	ResourceElections,
	ResourceSessions,
	ResourceDataMB,
}

func (k ResourceKind) Valid() bool {
	for _, known := range ResourceKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Limits holds static per-tenant ceilings. Zero means "not set".
type Limits struct {
	MaxUsers     int64 `json:"max_users,omitempty"`
	MaxVoters    int64 `json:"max_voters,omitempty"`
	MaxElections int64 `json:"max_elections,omitempty"`
	MaxSessions  int64 `json:"max_sessions,omitempty"`
	MaxDataMB    int64 `json:"max_data_mb,omitempty"`
}

// For returns the ceiling for kind and whether one is set.
func (l Limits) For(kind ResourceKind) (int64, bool) {
	var v int64
	switch kind {
	case ResourceUsers:
		v = l.MaxUsers
	case ResourceVoters:
		v = l.MaxVoters
	case ResourceElections:
		v = l.MaxElections
	case ResourceSessions:
		v = l.MaxSessions
	case ResourceDataMB:
		v = l.MaxDataMB
	}
	return v, v > 0
}
