// Package gateway runs a tenant request through resolution, connection,
// license and quota admission in that order.
package gateway

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	tgerrors "github.com/jrsteele09/go-tenant-gate/internal/errors"
	"github.com/jrsteele09/go-tenant-gate/licenses"
	"github.com/jrsteele09/go-tenant-gate/pool"
	"github.com/jrsteele09/go-tenant-gate/quota"
	"github.com/jrsteele09/go-tenant-gate/sessions"
	"github.com/jrsteele09/go-tenant-gate/stats"
	"github.com/jrsteele09/go-tenant-gate/tenants"
)

type Gateway struct {
	registry *tenants.Registry
	pool     *pool.Manager
	licenses *licenses.Service
	sessions *sessions.Controller
	quota    *quota.Enforcer
	stats    *stats.Aggregator

	nowTime      func() time.Time
	logger       zerolog.Logger
	statsOptions []stats.AggregatorOption
}

type Option func(*Gateway)

func WithNowTime(nowFunc func() time.Time) Option {
	return func(g *Gateway) {
		g.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

func WithStatsOptions(options ...stats.AggregatorOption) Option {
	return func(g *Gateway) {
		g.statsOptions = append(g.statsOptions, options...)
	}
}

// New wires the components and subscribes to registry changes so that a
// changed, suspended or deleted tenant loses its cached handle.
func New(registry *tenants.Registry, pm *pool.Manager, ls *licenses.Service, sc *sessions.Controller, options ...Option) (*Gateway, error) {
	if registry == nil || pm == nil || ls == nil || sc == nil {
		return nil, errors.New("[gateway.New] registry, pool, licenses and sessions are required")
	}
	g := &Gateway{
		registry: registry,
		pool:     pm,
		licenses: ls,
		sessions: sc,
		nowTime:  time.Now,
		logger:   log.Logger,
	}
	for _, opt := range options {
		opt(g)
	}
	g.quota = quota.NewEnforcer(quota.WithLiveSessions(sc), quota.WithLogger(g.logger))
	statsOptions := append([]stats.AggregatorOption{stats.WithNowTime(g.nowTime), stats.WithLogger(g.logger)}, g.statsOptions...)
	g.stats = stats.NewAggregator(stats.CollectorFunc(g.snapshot), statsOptions...)

	registry.OnChange(g.onTenantChange)
	return g, nil
}

func (g *Gateway) onTenantChange(ev tenants.ChangeEvent) {
	if err := g.pool.Evict(ev.TenantID); err != nil {
		g.logger.Warn().Err(err).Str("tenant_id", ev.TenantID).Stringer("change", ev.Kind).Msg("evicting tenant handle")
	}
}

// Request describes one inbound operation. Kind and Delta are only consulted
// for mutating operations.
type Request struct {
	Identifier string
	Mutating   bool
	Kind       tenants.ResourceKind
	Delta      int64
}

// Admitted is everything a caller needs to dispatch work to the tenant.
type Admitted struct {
	Descriptor *tenants.Descriptor
	Handle     *pool.Handle
	Admission  *licenses.Admission
	Quota      *quota.Decision
}

// Admit resolves the tenant, acquires its handle, checks the license and, for
// mutating requests naming a resource kind, the quota. Read-only requests skip
// the quota but never the license check.
func (g *Gateway) Admit(ctx context.Context, req Request) (*Admitted, error) {
	d, err := g.ResolveTenant(ctx, req.Identifier)
	if err != nil {
		return nil, err
	}
	h, err := g.AcquireConnection(ctx, d)
	if err != nil {
		return nil, err
	}
	adm, err := g.CheckLicenseAdmission(ctx, d.TenantID, g.nowTime())
	if err != nil {
		return nil, err
	}
	admitted := &Admitted{Descriptor: d, Handle: h, Admission: adm}
	if !req.Mutating || req.Kind == "" {
		return admitted, nil
	}

	admitted.Quota, err = g.quota.Check(ctx, quota.Request{
		TenantID: d.TenantID,
		Kind:     req.Kind,
		Delta:    req.Delta,
		Static:   d.Limits,
		Binding:  bindingOf(adm),
		Usage:    h,
	})
	if err != nil {
		return nil, err
	}
	return admitted, nil
}

func (g *Gateway) ResolveTenant(ctx context.Context, identifier string) (*tenants.Descriptor, error) {
	return g.registry.Resolve(ctx, identifier)
}

func (g *Gateway) AcquireConnection(ctx context.Context, d *tenants.Descriptor) (*pool.Handle, error) {
	return g.pool.Acquire(ctx, d)
}

func (g *Gateway) CheckLicenseAdmission(ctx context.Context, tenantID string, now time.Time) (*licenses.Admission, error) {
	return g.licenses.CheckAdmission(ctx, tenantID, now)
}

// CheckQuota resolves and connects to the tenant on its own, for callers that
// did not go through Admit.
func (g *Gateway) CheckQuota(ctx context.Context, tenantID string, kind tenants.ResourceKind, delta int64) (*quota.Decision, error) {
	d, err := g.ResolveTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	h, err := g.AcquireConnection(ctx, d)
	if err != nil {
		return nil, err
	}
	binding, err := g.licenses.Binding(ctx, d.TenantID)
	if err != nil {
		return nil, err
	}
	return g.quota.Check(ctx, quota.Request{
		TenantID: d.TenantID,
		Kind:     kind,
		Delta:    delta,
		Static:   d.Limits,
		Binding:  binding,
		Usage:    h,
	})
}

// TryAdmitSession admits a session for userID under the tenant's effective
// session limits. The tenant must resolve and pass license admission first.
func (g *Gateway) TryAdmitSession(ctx context.Context, tenantID, userID string) (*sessions.Token, error) {
	d, err := g.ResolveTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	adm, err := g.CheckLicenseAdmission(ctx, d.TenantID, g.nowTime())
	if err != nil {
		return nil, err
	}
	return g.sessions.TryAdmit(ctx, d.TenantID, userID, SessionLimits(d.Limits, bindingOf(adm)))
}

// SessionLimits resolves the tenant-wide and per-user session caps.
func SessionLimits(static tenants.Limits, binding *licenses.Binding) sessions.Limits {
	return sessions.Limits{
		MaxSessions: quota.Resolve(tenants.ResourceSessions, binding, static).Value,
		MaxPerUser:  quota.SessionsPerUser(binding),
	}
}

func (g *Gateway) ReleaseSession(ctx context.Context, token *sessions.Token) error {
	return g.sessions.Release(ctx, token)
}

// ReleaseSessionRaw releases a signed session token.
func (g *Gateway) ReleaseSessionRaw(ctx context.Context, raw string) (*sessions.Token, error) {
	return g.sessions.ReleaseRaw(ctx, raw)
}

func (g *Gateway) SuspendLicense(ctx context.Context, tenantID, reason string) (*licenses.License, error) {
	return g.licenses.Suspend(ctx, tenantID, reason)
}

func (g *Gateway) ActivateLicense(ctx context.Context, tenantID string) (*licenses.License, error) {
	return g.licenses.Activate(ctx, tenantID)
}

func (g *Gateway) CancelLicense(ctx context.Context, tenantID string) (*licenses.License, error) {
	return g.licenses.Cancel(ctx, tenantID)
}

func (g *Gateway) RenewLicense(ctx context.Context, tenantID string) (*licenses.License, error) {
	return g.licenses.Renew(ctx, tenantID)
}

// License returns the tenant's current license.
func (g *Gateway) License(ctx context.Context, tenantID string) (*licenses.License, error) {
	return g.licenses.Get(ctx, tenantID)
}

// AssignLicense binds a registered tenant to a plan.
func (g *Gateway) AssignLicense(ctx context.Context, req licenses.AssignRequest) (*licenses.License, error) {
	if _, err := g.registry.Get(ctx, req.TenantID); err != nil {
		return nil, err
	}
	return g.licenses.Assign(ctx, req)
}

// AggregateStats collects metrics for tenantIDs, or for every tenant that is
// not deleted when tenantIDs is empty.
func (g *Gateway) AggregateStats(ctx context.Context, tenantIDs []string, metrics stats.MetricSet, perTenantTimeout time.Duration) (*stats.Report, error) {
	if len(tenantIDs) == 0 {
		all, err := g.registry.List(ctx, 0, 0)
		if err != nil {
			return nil, errors.Wrap(err, "[Gateway.AggregateStats] registry.List")
		}
		for _, t := range all {
			if t.Status != tenants.StatusDeleted {
				tenantIDs = append(tenantIDs, t.ID)
			}
		}
	}
	return g.stats.Aggregate(ctx, tenantIDs, metrics, perTenantTimeout)
}

func (g *Gateway) snapshot(ctx context.Context, tenantID string, metrics stats.MetricSet) (*stats.Snapshot, error) {
	t, err := g.registry.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	binding, err := g.licenses.Binding(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	live, err := g.sessions.Live(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	snap := &stats.Snapshot{
		TenantID:     tenantID,
		LiveSessions: live,
		Limits:       make(map[tenants.ResourceKind]int64, len(tenants.ResourceKinds)),
	}
	for kind, limit := range quota.ResolveAll(binding, t.Limits) {
		snap.Limits[kind] = limit.Value
	}
	if binding != nil {
		snap.State = licenses.EffectiveState(binding.License, g.nowTime())
		snap.ExpiresAt = binding.License.ExpiresAt
	}
	// Tenants that cannot be resolved have no handle to count through.
	if !metrics.NeedsUsage() || t.Status != tenants.StatusActive || t.DatabaseStatus != tenants.DatabaseReady {
		return snap, nil
	}

	h, err := g.AcquireConnection(ctx, t.Descriptor())
	if err != nil {
		return nil, err
	}
	snap.Usage = make(map[tenants.ResourceKind]int64, len(tenants.ResourceKinds))
	for _, kind := range tenants.ResourceKinds {
		if kind == tenants.ResourceSessions {
			continue
		}
		n, err := h.CountUsage(ctx, kind)
		if tgerrors.Is(err, tgerrors.ErrUnsupported) {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "counting %s", kind)
		}
		snap.Usage[kind] = n
	}
	return snap, nil
}

func bindingOf(adm *licenses.Admission) *licenses.Binding {
	if adm == nil || adm.Unlicensed {
		return nil
	}
	return &licenses.Binding{License: adm.License, Plan: adm.Plan}
}
