package stats

import (
	"time"

	"github.com/jrsteele09/go-tenant-gate/licenses"
	"github.com/jrsteele09/go-tenant-gate/tenants"
)

type Metric string

const (
	MetricActiveLicenses    Metric = "active_licenses"
	MetricLicenseStates     Metric = "license_states"
	MetricSessionsNearLimit Metric = "sessions_near_limit"
	MetricExpiringSoon      Metric = "expiring_soon"
	MetricCriticalAlerts    Metric = "critical_alerts"
	MetricUsage             Metric = "usage"
)

var AllMetrics = MetricSet{
	MetricActiveLicenses:    {},
	MetricLicenseStates:     {},
	MetricSessionsNearLimit: {},
	MetricExpiringSoon:      {},
	MetricCriticalAlerts:    {},
	MetricUsage:             {},
}

func (m Metric) Valid() bool {
	_, ok := AllMetrics[m]
	return ok
}

type MetricSet map[Metric]struct{}

func NewMetricSet(metrics ...Metric) MetricSet {
	if len(metrics) == 0 {
		return AllMetrics
	}
	set := make(MetricSet, len(metrics))
	for _, m := range metrics {
		set[m] = struct{}{}
	}
	return set
}

func (s MetricSet) Has(m Metric) bool {
	_, ok := s[m]
	return ok
}

// NeedsUsage reports whether any requested metric reads the tenant data store.
func (s MetricSet) NeedsUsage() bool {
	return s.Has(MetricUsage) || s.Has(MetricCriticalAlerts)
}

// Snapshot is the raw per-tenant input the aggregator derives metrics from.
type Snapshot struct {
	TenantID     string                         `json:"tenant_id"`
	State        licenses.State                 `json:"state,omitempty"` // effective state, empty when unlicensed
	ExpiresAt    *time.Time                     `json:"expires_at,omitempty"`
	LiveSessions int64                          `json:"live_sessions"`
	Limits       map[tenants.ResourceKind]int64 `json:"limits,omitempty"`
	Usage        map[tenants.ResourceKind]int64 `json:"usage,omitempty"`
}

type Alert string

const (
	AlertSuspended      Alert = "suspended"
	AlertPaymentPending Alert = "payment_pending"
	AlertOverQuota      Alert = "over_quota"
	AlertExpiring       Alert = "expiring"
)

// TenantResult is one responsive tenant.
type TenantResult struct {
	Snapshot
	NearSessionLimit bool    `json:"near_session_limit"`
	ExpiringSoon     bool    `json:"expiring_soon"`
	Alerts           []Alert `json:"alerts,omitempty"`
}

// Degraded is a tenant left out of the totals.
type Degraded struct {
	TenantID string `json:"tenant_id"`
	Reason   string `json:"reason"`
}

type Totals struct {
	Tenants           int                            `json:"tenants"`
	ActiveLicenses    int                            `json:"active_licenses,omitempty"`
	LicenseStates     map[licenses.State]int         `json:"license_states,omitempty"`
	SessionsNearLimit int                            `json:"sessions_near_limit,omitempty"`
	ExpiringSoon      int                            `json:"expiring_soon,omitempty"`
	CriticalAlerts    int                            `json:"critical_alerts,omitempty"`
	Usage             map[tenants.ResourceKind]int64 `json:"usage,omitempty"`
}

type Report struct {
	Results     []*TenantResult `json:"results"`
	Degraded    []Degraded      `json:"degraded"`
	Totals      Totals          `json:"totals"`
	GeneratedAt time.Time       `json:"generated_at"`
	Elapsed     time.Duration   `json:"elapsed"`
}
