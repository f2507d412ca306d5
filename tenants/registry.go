package tenants

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	tgerrors "github.com/jrsteele09/go-tenant-gate/internal/errors"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// ChangeKind describes what happened to a tenant.
type ChangeKind int

const (
	ChangeDescriptor ChangeKind = iota + 1
	ChangeDatabaseStatus
	ChangeStatus
	ChangeDeleted
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeDescriptor:
		return "descriptor"
	case ChangeDatabaseStatus:
		return "database_status"
	case ChangeStatus:
		return "status"
	case ChangeDeleted:
		return "deleted"
	}
	return "unknown"
}

// ChangeEvent is published after the change has been persisted.
type ChangeEvent struct {
	TenantID string
	Kind     ChangeKind
}

// Registry resolves tenant identifiers and owns tenant mutations. It does not
// cache: every Resolve reads the repo.
type Registry struct {
	repo    Repo
	nowTime func() time.Time
	logger  zerolog.Logger

	hooksLock sync.RWMutex
	hooks     []func(ChangeEvent)
}

type RegistryOption func(*Registry)

func WithNowTime(nowFunc func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

func NewRegistry(repo Repo, options ...RegistryOption) (*Registry, error) {
	if repo == nil {
		return nil, errors.New("[NewRegistry] tenant repo is required")
	}
	r := &Registry{
		repo:    repo,
		nowTime: time.Now,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// OnChange registers a hook called synchronously after every persisted change.
func (r *Registry) OnChange(hook func(ChangeEvent)) {
	r.hooksLock.Lock()
	defer r.hooksLock.Unlock()
	r.hooks = append(r.hooks, hook)
}

func (r *Registry) publish(ev ChangeEvent) {
	r.hooksLock.RLock()
	hooks := make([]func(ChangeEvent), len(r.hooks))
	copy(hooks, r.hooks)
	r.hooksLock.RUnlock()

	r.logger.Debug().Str("tenant_id", ev.TenantID).Stringer("change", ev.Kind).Msg("tenant changed")
	for _, hook := range hooks {
		hook(ev)
	}
}

// Resolve looks a tenant up by id, then by slug, and only succeeds when the
// tenant is active and its database is READY.
func (r *Registry) Resolve(ctx context.Context, identifier string) (*Descriptor, error) {
	t, err := r.lookup(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if t.Status == StatusDeleted {
		return nil, &ResolutionError{Identifier: identifier, Kind: tgerrors.ErrTenantNotFound}
	}
	if t.Status == StatusSuspended {
		return nil, &ResolutionError{Identifier: identifier, Kind: tgerrors.ErrTenantSuspended, DatabaseStatus: t.DatabaseStatus}
	}
	if t.DatabaseStatus != DatabaseReady {
		return nil, &ResolutionError{Identifier: identifier, Kind: tgerrors.ErrTenantNotProvisioned, DatabaseStatus: t.DatabaseStatus}
	}
	return t.Descriptor(), nil
}

func (r *Registry) lookup(ctx context.Context, identifier string) (*Tenant, error) {
	if identifier == "" {
		return nil, &ResolutionError{Identifier: identifier, Kind: tgerrors.ErrTenantNotFound}
	}
	t, err := r.repo.Get(ctx, identifier)
	if err == nil {
		return t, nil
	}
	if !tgerrors.Is(err, tgerrors.ErrNotFound) {
		return nil, errors.Wrap(err, "[Registry.Resolve] repo.Get")
	}
	t, err = r.repo.GetBySlug(ctx, identifier)
	if err == nil {
		return t, nil
	}
	if !tgerrors.Is(err, tgerrors.ErrNotFound) {
		return nil, errors.Wrap(err, "[Registry.Resolve] repo.GetBySlug")
	}
	return nil, &ResolutionError{Identifier: identifier, Kind: tgerrors.ErrTenantNotFound}
}

// Get returns the tenant record regardless of status.
func (r *Registry) Get(ctx context.Context, tenantID string) (*Tenant, error) {
	t, err := r.repo.Get(ctx, tenantID)
	if err != nil {
		if tgerrors.Is(err, tgerrors.ErrNotFound) {
			return nil, &ResolutionError{Identifier: tenantID, Kind: tgerrors.ErrTenantNotFound}
		}
		return nil, errors.Wrap(err, "[Registry.Get] repo.Get")
	}
	return t, nil
}

func (r *Registry) List(ctx context.Context, offset, limit int) ([]*Tenant, error) {
	return r.repo.List(ctx, offset, limit)
}

// Register creates a tenant. The slug must be unique and DNS-label shaped.
func (r *Registry) Register(ctx context.Context, t *Tenant) (*Tenant, error) {
	if t == nil {
		return nil, errors.Wrap(tgerrors.ErrInvalidArgument, "[Registry.Register] tenant is nil")
	}
	if !slugPattern.MatchString(t.Slug) {
		return nil, errors.Wrapf(tgerrors.ErrInvalidArgument, "[Registry.Register] invalid slug %q", t.Slug)
	}
	if err := t.Connection.Validate(); err != nil {
		return nil, errors.Wrap(err, "[Registry.Register] connection")
	}
	if _, err := r.repo.GetBySlug(ctx, t.Slug); err == nil {
		return nil, errors.Wrapf(tgerrors.ErrConflict, "[Registry.Register] slug %q already taken", t.Slug)
	} else if !tgerrors.Is(err, tgerrors.ErrNotFound) {
		return nil, errors.Wrap(err, "[Registry.Register] repo.GetBySlug")
	}

	created := t.Clone()
	if created.ID == "" {
		created.ID = uuid.New().String()
	}
	if created.DatabaseStatus == "" {
		created.DatabaseStatus = DatabasePending
	}
	if created.Status == "" {
		created.Status = StatusActive
	}
	now := r.nowTime()
	created.CreatedAt = now
	created.UpdatedAt = now

	if err := r.repo.Upsert(ctx, created); err != nil {
		return nil, errors.Wrap(err, "[Registry.Register] repo.Upsert")
	}
	r.logger.Info().Str("tenant_id", created.ID).Str("slug", created.Slug).Msg("tenant registered")
	return created.Clone(), nil
}

// UpdateConnection replaces the descriptor (credential rotation, host migration).
func (r *Registry) UpdateConnection(ctx context.Context, tenantID string, conn ConnectionDescriptor) error {
	if err := conn.Validate(); err != nil {
		return errors.Wrap(err, "[Registry.UpdateConnection] connection")
	}
	return r.mutate(ctx, tenantID, ChangeDescriptor, func(t *Tenant) {
		t.Connection = conn
	})
}

func (r *Registry) SetDatabaseStatus(ctx context.Context, tenantID string, status DatabaseStatus) error {
	if !status.Valid() {
		return errors.Wrapf(tgerrors.ErrInvalidArgument, "[Registry.SetDatabaseStatus] %q", status)
	}
	return r.mutate(ctx, tenantID, ChangeDatabaseStatus, func(t *Tenant) {
		t.DatabaseStatus = status
	})
}

func (r *Registry) SetStatus(ctx context.Context, tenantID string, status Status) error {
	if !status.Valid() {
		return errors.Wrapf(tgerrors.ErrInvalidArgument, "[Registry.SetStatus] %q", status)
	}
	kind := ChangeStatus
	if status == StatusDeleted {
		kind = ChangeDeleted
	}
	return r.mutate(ctx, tenantID, kind, func(t *Tenant) {
		t.Status = status
	})
}

func (r *Registry) UpdateLimits(ctx context.Context, tenantID string, limits Limits) error {
	return r.mutate(ctx, tenantID, 0, func(t *Tenant) {
		t.Limits = limits
	})
}

// Delete marks the tenant DELETED. The row is kept so the slug stays reserved.
func (r *Registry) Delete(ctx context.Context, tenantID string) error {
	return r.SetStatus(ctx, tenantID, StatusDeleted)
}

func (r *Registry) mutate(ctx context.Context, tenantID string, kind ChangeKind, fn func(*Tenant)) error {
	t, err := r.Get(ctx, tenantID)
	if err != nil {
		return err
	}
	updated := t.Clone()
	fn(updated)
	updated.ID = t.ID
	updated.Slug = t.Slug
	updated.CreatedAt = t.CreatedAt
	updated.UpdatedAt = r.nowTime()
	if err := r.repo.Upsert(ctx, updated); err != nil {
		return errors.Wrap(err, "[Registry] repo.Upsert")
	}
	if kind != 0 {
		r.publish(ChangeEvent{TenantID: tenantID, Kind: kind})
	}
	return nil
}
