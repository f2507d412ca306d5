package quota

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	tgerrors "github.com/jrsteele09/go-tenant-gate/internal/errors"
	"github.com/jrsteele09/go-tenant-gate/licenses"
	"github.com/jrsteele09/go-tenant-gate/tenants"
)

// UsageCounter counts a tenant's current usage in its own data store.
// *pool.Handle implements it.
type UsageCounter interface {
	CountUsage(ctx context.Context, kind tenants.ResourceKind) (int64, error)
}

// LiveSessions reports the live session count of a tenant.
type LiveSessions interface {
	Live(ctx context.Context, tenantID string) (int64, error)
}

// Request is one quota check. Binding is nil for an unlicensed tenant.
type Request struct {
	TenantID string
	Kind     tenants.ResourceKind
	Delta    int64
	Static   tenants.Limits
	Binding  *licenses.Binding
	Usage    UsageCounter
}

// Decision is an allowed check.
type Decision struct {
	Limit   Limit `json:"limit"`
	Current int64 `json:"current"`
	Delta   int64 `json:"delta"`
}

// Remaining is what is left after the requested delta.
func (d *Decision) Remaining() int64 {
	return d.Limit.Value - d.Current - d.Delta
}

type Enforcer struct {
	sessions LiveSessions
	logger   zerolog.Logger
}

type EnforcerOption func(*Enforcer)

// WithLiveSessions makes session checks count live sessions instead of asking
// the data store.
func WithLiveSessions(s LiveSessions) EnforcerOption {
	return func(e *Enforcer) {
		e.sessions = s
	}
}

func WithLogger(logger zerolog.Logger) EnforcerOption {
	return func(e *Enforcer) {
		e.logger = logger
	}
}

func NewEnforcer(options ...EnforcerOption) *Enforcer {
	e := &Enforcer{logger: log.Logger}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// Check allows the request when current usage plus delta stays within the
// effective limit, and returns an *ExceededError otherwise.
func (e *Enforcer) Check(ctx context.Context, req Request) (*Decision, error) {
	if !req.Kind.Valid() {
		return nil, errors.Wrapf(tgerrors.ErrInvalidArgument, "[Enforcer.Check] unknown resource kind %q", req.Kind)
	}
	if req.Delta < 0 {
		return nil, errors.Wrapf(tgerrors.ErrInvalidArgument, "[Enforcer.Check] negative delta %d", req.Delta)
	}
	limit := Resolve(req.Kind, req.Binding, req.Static)

	current, err := e.usage(ctx, req)
	if err != nil {
		return nil, errors.Wrapf(err, "[Enforcer.Check] counting %s", req.Kind)
	}

	if current+req.Delta > limit.Value {
		e.logger.Info().Str("tenant_id", req.TenantID).Str("kind", string(req.Kind)).Int64("limit", limit.Value).
			Int64("current", current).Int64("delta", req.Delta).Str("source", string(limit.Source)).Msg("quota exceeded")
		return nil, &ExceededError{
			TenantID: req.TenantID,
			Kind:     req.Kind,
			Limit:    limit.Value,
			Current:  current,
			Delta:    req.Delta,
			Source:   limit.Source,
		}
	}
	return &Decision{Limit: limit, Current: current, Delta: req.Delta}, nil
}

func (e *Enforcer) usage(ctx context.Context, req Request) (int64, error) {
	if req.Kind == tenants.ResourceSessions && e.sessions != nil {
		return e.sessions.Live(ctx, req.TenantID)
	}
	if req.Usage == nil {
		return 0, errors.Wrap(tgerrors.ErrInvalidArgument, "no usage counter")
	}
	return req.Usage.CountUsage(ctx, req.Kind)
}
