package quota

import (
	"github.com/jrsteele09/go-tenant-gate/licenses"
	"github.com/jrsteele09/go-tenant-gate/tenants"
)

// Source names where an effective limit came from.
type Source string

const (
	SourceOverride Source = "override"
	SourcePlan     Source = "plan"
	SourceTenant   Source = "tenant"
	SourceDefault  Source = "default"
)

// MinimalDefaults apply when neither a license nor the tenant sets a ceiling.
// A tenant without a license is degraded, not unlimited.
var MinimalDefaults = tenants.Limits{
	MaxUsers:     5,
	MaxVoters:    100,
	MaxElections: 1,
	MaxSessions:  2,
	MaxDataMB:    100,
}

// MinimalSessionsPerUser is the per-user session cap without a plan value.
const MinimalSessionsPerUser int64 = 1

// Limit is the effective ceiling for one resource kind.
type Limit struct {
	Kind   tenants.ResourceKind `json:"kind"`
	Value  int64                `json:"value"`
	Source Source               `json:"source"`
}

// Resolve picks the effective limit for kind: the license override, then the
// bound plan, then the tenant's static ceiling, then MinimalDefaults.
// binding may be nil.
func Resolve(kind tenants.ResourceKind, binding *licenses.Binding, static tenants.Limits) Limit {
	if binding != nil && binding.License != nil {
		if v, ok := binding.License.Overrides.For(kind); ok {
			return Limit{Kind: kind, Value: v, Source: SourceOverride}
		}
	}
	if binding != nil && binding.Plan != nil {
		if v, ok := binding.Plan.Limit(kind); ok {
			return Limit{Kind: kind, Value: v, Source: SourcePlan}
		}
	}
	if v, ok := static.For(kind); ok {
		return Limit{Kind: kind, Value: v, Source: SourceTenant}
	}
	v, _ := MinimalDefaults.For(kind)
	return Limit{Kind: kind, Value: v, Source: SourceDefault}
}

// ResolveAll resolves every resource kind.
func ResolveAll(binding *licenses.Binding, static tenants.Limits) map[tenants.ResourceKind]Limit {
	all := make(map[tenants.ResourceKind]Limit, len(tenants.ResourceKinds))
	for _, kind := range tenants.ResourceKinds {
		all[kind] = Resolve(kind, binding, static)
	}
	return all
}

// SessionsPerUser is the per-user concurrent session cap from the bound plan,
// or MinimalSessionsPerUser.
func SessionsPerUser(binding *licenses.Binding) int64 {
	if binding != nil && binding.Plan != nil && binding.Plan.MaxSessionsPerUser > 0 {
		return binding.Plan.MaxSessionsPerUser
	}
	return MinimalSessionsPerUser
}
