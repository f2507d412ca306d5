package stats

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/jrsteele09/go-tenant-gate/licenses"
	"github.com/jrsteele09/go-tenant-gate/tenants"
)

const (
	defaultTenantTimeout  = 2 * time.Second
	defaultNearLimitRatio = 0.8
	defaultExpiringWindow = 30 * 24 * time.Hour
	criticalExpiryWindow  = 3 * 24 * time.Hour
)

// Collector gathers one tenant's snapshot. It should honour ctx; the
// aggregator stops waiting at the deadline either way.
type Collector interface {
	Snapshot(ctx context.Context, tenantID string, metrics MetricSet) (*Snapshot, error)
}

type CollectorFunc func(ctx context.Context, tenantID string, metrics MetricSet) (*Snapshot, error)

func (f CollectorFunc) Snapshot(ctx context.Context, tenantID string, metrics MetricSet) (*Snapshot, error) {
	return f(ctx, tenantID, metrics)
}

type Aggregator struct {
	collector      Collector
	nowTime        func() time.Time
	logger         zerolog.Logger
	tenantTimeout  time.Duration
	nearLimitRatio float64
	expiringWindow time.Duration
	maxConcurrency int
}

type AggregatorOption func(*Aggregator)

func WithNowTime(nowFunc func() time.Time) AggregatorOption {
	return func(a *Aggregator) {
		a.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) AggregatorOption {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// WithTenantTimeout is the default per-tenant budget.
func WithTenantTimeout(d time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		a.tenantTimeout = d
	}
}

func WithNearLimitRatio(ratio float64) AggregatorOption {
	return func(a *Aggregator) {
		a.nearLimitRatio = ratio
	}
}

func WithExpiringWindow(d time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		a.expiringWindow = d
	}
}

// WithMaxConcurrency caps parallel collections. Zero means one per tenant,
// which keeps the total runtime within a single tenant timeout.
func WithMaxConcurrency(n int) AggregatorOption {
	return func(a *Aggregator) {
		a.maxConcurrency = n
	}
}

func NewAggregator(collector Collector, options ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		collector:      collector,
		nowTime:        time.Now,
		logger:         log.Logger,
		tenantTimeout:  defaultTenantTimeout,
		nearLimitRatio: defaultNearLimitRatio,
		expiringWindow: defaultExpiringWindow,
	}
	for _, opt := range options {
		opt(a)
	}
	return a
}

type outcome struct {
	snapshot *Snapshot
	err      error
}

// Aggregate fans out to every tenant with its own timeout. Tenants that fail
// or miss the deadline are reported in Degraded and left out of the totals.
// A zero perTenantTimeout uses the configured default.
func (a *Aggregator) Aggregate(ctx context.Context, tenantIDs []string, metrics MetricSet, perTenantTimeout time.Duration) (*Report, error) {
	if perTenantTimeout <= 0 {
		perTenantTimeout = a.tenantTimeout
	}
	if len(metrics) == 0 {
		metrics = AllMetrics
	}
	started := time.Now()

	outcomes := make([]outcome, len(tenantIDs))
	var g errgroup.Group
	if a.maxConcurrency > 0 {
		g.SetLimit(a.maxConcurrency)
	}
	for i, tenantID := range tenantIDs {
		g.Go(func() error {
			outcomes[i] = a.collect(ctx, tenantID, metrics, perTenantTimeout)
			return nil
		})
	}
	_ = g.Wait()

	now := a.nowTime()
	report := &Report{Results: []*TenantResult{}, Degraded: []Degraded{}, GeneratedAt: now}
	for i, tenantID := range tenantIDs {
		o := outcomes[i]
		if o.err != nil {
			a.logger.Warn().Err(o.err).Str("tenant_id", tenantID).Msg("tenant degraded in stats")
			report.Degraded = append(report.Degraded, Degraded{TenantID: tenantID, Reason: o.err.Error()})
			continue
		}
		report.Results = append(report.Results, a.derive(o.snapshot, now))
	}
	sort.Slice(report.Results, func(i, j int) bool {
		return report.Results[i].TenantID < report.Results[j].TenantID
	})
	report.Totals = a.totals(report.Results, metrics)
	report.Elapsed = time.Since(started)
	return report, nil
}

func (a *Aggregator) collect(ctx context.Context, tenantID string, metrics MetricSet, timeout time.Duration) outcome {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		s, err := a.collector.Snapshot(tctx, tenantID, metrics)
		if err == nil && s == nil {
			err = errNoSnapshot
		}
		done <- outcome{snapshot: s, err: err}
	}()

	select {
	case o := <-done:
		if o.snapshot != nil {
			o.snapshot.TenantID = tenantID
		}
		return o
	case <-tctx.Done():
		return outcome{err: tctx.Err()}
	}
}

func (a *Aggregator) derive(s *Snapshot, now time.Time) *TenantResult {
	r := &TenantResult{Snapshot: *s}

	if limit := s.Limits[tenants.ResourceSessions]; limit > 0 {
		r.NearSessionLimit = float64(s.LiveSessions) >= a.nearLimitRatio*float64(limit)
	}
	if s.ExpiresAt != nil && !s.ExpiresAt.Before(now) {
		remaining := s.ExpiresAt.Sub(now)
		r.ExpiringSoon = remaining <= a.expiringWindow
		if remaining <= criticalExpiryWindow {
			r.Alerts = append(r.Alerts, AlertExpiring)
		}
	}

	switch s.State {
	case licenses.StateSuspended:
		r.Alerts = append(r.Alerts, AlertSuspended)
	case licenses.StatePendingPayment:
		r.Alerts = append(r.Alerts, AlertPaymentPending)
	}
	for _, kind := range tenants.ResourceKinds {
		limit, ok := s.Limits[kind]
		if !ok || limit <= 0 {
			continue
		}
		used := s.Usage[kind]
		if kind == tenants.ResourceSessions {
			used = s.LiveSessions
		}
		if used > limit {
			r.Alerts = append(r.Alerts, AlertOverQuota)
			break
		}
	}
	return r
}

func (a *Aggregator) totals(results []*TenantResult, metrics MetricSet) Totals {
	t := Totals{Tenants: len(results)}
	if metrics.Has(MetricLicenseStates) {
		t.LicenseStates = make(map[licenses.State]int)
	}
	if metrics.Has(MetricUsage) {
		t.Usage = make(map[tenants.ResourceKind]int64)
	}
	for _, r := range results {
		if metrics.Has(MetricActiveLicenses) && (r.State == licenses.StateActive || r.State == licenses.StateTrial) {
			t.ActiveLicenses++
		}
		if t.LicenseStates != nil && r.State != "" {
			t.LicenseStates[r.State]++
		}
		if metrics.Has(MetricSessionsNearLimit) && r.NearSessionLimit {
			t.SessionsNearLimit++
		}
		if metrics.Has(MetricExpiringSoon) && r.ExpiringSoon {
			t.ExpiringSoon++
		}
		if metrics.Has(MetricCriticalAlerts) && len(r.Alerts) > 0 {
			t.CriticalAlerts++
		}
		for kind, n := range r.Usage {
			if t.Usage != nil {
				t.Usage[kind] += n
			}
		}
	}
	return t
}
