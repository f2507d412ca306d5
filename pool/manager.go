package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/jrsteele09/go-tenant-gate/internal/errors"
	"github.com/jrsteele09/go-tenant-gate/tenants"
)

const (
	defaultConnectAttempts = 3
	defaultInitialBackoff  = 200 * time.Millisecond
)

// slot is the per-tenant cache cell. Its mutex is held only to read or swap
// the handle, never while a connection is being built.
type slot struct {
	mu         sync.Mutex
	handle     *Handle
	generation uint64
}

// Manager caches one Handle per tenant id.
type Manager struct {
	connector Connector
	slots     sync.Map // tenantID -> *slot
	inflight  singleflight.Group

	nowTime         func() time.Time
	logger          zerolog.Logger
	idleTimeout     time.Duration
	connectAttempts uint64
	initialBackoff  time.Duration

	constructions atomic.Int64
}

type ManagerOption func(*Manager)

func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithIdleTimeout enables idle eviction in SweepIdle. Zero disables it.
func WithIdleTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.idleTimeout = d
	}
}

// WithConnectRetry sets the total connect attempts and the first backoff interval.
func WithConnectRetry(attempts uint64, initialBackoff time.Duration) ManagerOption {
	return func(m *Manager) {
		if attempts > 0 {
			m.connectAttempts = attempts
		}
		if initialBackoff > 0 {
			m.initialBackoff = initialBackoff
		}
	}
}

func NewManager(connector Connector, options ...ManagerOption) *Manager {
	m := &Manager{
		connector:       connector,
		nowTime:         time.Now,
		logger:          log.Logger,
		connectAttempts: defaultConnectAttempts,
		initialBackoff:  defaultInitialBackoff,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

func (m *Manager) slotFor(tenantID string) *slot {
	if s, ok := m.slots.Load(tenantID); ok {
		return s.(*slot)
	}
	s, _ := m.slots.LoadOrStore(tenantID, &slot{})
	return s.(*slot)
}

// Acquire returns the cached handle for the descriptor's tenant, building it on
// a miss. Concurrent misses for the same tenant and descriptor share one build.
// A descriptor whose fingerprint differs from the cached handle's replaces it.
func (m *Manager) Acquire(ctx context.Context, d *tenants.Descriptor) (*Handle, error) {
	if d == nil || d.TenantID == "" {
		return nil, errors.Wrapf(errors.ErrInvalidArgument, "[Manager.Acquire] descriptor without tenant id")
	}
	fingerprint := d.Connection.Fingerprint()
	s := m.slotFor(d.TenantID)

	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()
	if h != nil {
		if h.fingerprint == fingerprint {
			h.touch(m.nowTime())
			return h, nil
		}
		m.logger.Info().Str("tenant_id", d.TenantID).Msg("descriptor changed, replacing handle")
		if err := m.detach(s, h); err != nil {
			m.logger.Warn().Err(err).Str("tenant_id", d.TenantID).Msg("closing stale handle")
		}
	}

	h, err := m.await(ctx, s, d, fingerprint)
	if errors.Is(err, errors.ErrHandleEvicted) {
		// An eviction discarded the build, typically the registry dropping
		// the old descriptor of a rotation this caller already holds.
		// Build once more for it; a second eviction is reported.
		m.logger.Debug().Str("tenant_id", d.TenantID).Msg("build discarded by eviction, retrying")
		h, err = m.await(ctx, s, d, fingerprint)
	}
	return h, err
}

// await joins or starts the build for the tenant and fingerprint.
func (m *Manager) await(ctx context.Context, s *slot, d *tenants.Descriptor, fingerprint string) (*Handle, error) {
	// The build outlives any single waiter's cancellation.
	buildCtx := context.WithoutCancel(ctx)
	result := m.inflight.DoChan(d.TenantID+"|"+fingerprint, func() (interface{}, error) {
		return m.build(buildCtx, s, d, fingerprint)
	})

	select {
	case res := <-result:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Handle), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) build(ctx context.Context, s *slot, d *tenants.Descriptor, fingerprint string) (*Handle, error) {
	s.mu.Lock()
	if s.handle != nil && s.handle.fingerprint == fingerprint {
		h := s.handle
		s.mu.Unlock()
		return h, nil
	}
	generation := s.generation
	s.mu.Unlock()

	store, attempts, err := m.connect(ctx, d)
	if err != nil {
		m.logger.Error().Err(err).Str("tenant_id", d.TenantID).EmbedObject(d.Connection).Int("attempts", attempts).Msg("tenant database unavailable")
		return nil, &BackendError{TenantID: d.TenantID, Attempts: attempts, Err: err}
	}
	h := newHandle(d.TenantID, fingerprint, d.Connection, store, m.nowTime)

	s.mu.Lock()
	if s.generation != generation {
		// Evicted while we were connecting; the result must not be published.
		s.mu.Unlock()
		_ = h.close()
		return nil, errors.Wrapf(errors.ErrHandleEvicted, "tenant %s evicted during connect", d.TenantID)
	}
	old := s.handle
	s.handle = h
	s.mu.Unlock()

	if old != nil {
		_ = old.close()
	}
	m.constructions.Add(1)
	m.logger.Info().Str("tenant_id", d.TenantID).EmbedObject(d.Connection).Int("attempts", attempts).Msg("tenant handle created")
	return h, nil
}

func (m *Manager) connect(ctx context.Context, d *tenants.Descriptor) (Store, int, error) {
	attempts := 0
	operation := func() (Store, error) {
		attempts++
		store, err := m.connector.Connect(ctx, d.Connection)
		if err != nil {
			if errors.Is(err, errors.ErrInvalidArgument) {
				return nil, backoff.Permanent(err)
			}
			m.logger.Warn().Err(err).Str("tenant_id", d.TenantID).Int("attempt", attempts).Msg("connect failed")
			return nil, err
		}
		return store, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.initialBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, m.connectAttempts-1), ctx)

	store, err := backoff.RetryWithData(operation, policy)
	return store, attempts, err
}

// detach removes h from s if it is still the cached handle and closes it.
func (m *Manager) detach(s *slot, h *Handle) error {
	s.mu.Lock()
	if s.handle != h {
		s.mu.Unlock()
		return nil
	}
	s.handle = nil
	s.generation++
	s.mu.Unlock()
	return h.close()
}

// Evict drops and closes the tenant's handle. It is idempotent and safe to
// call concurrently with Acquire; once it returns the evicted handle rejects
// new work and any build that was in flight is discarded.
func (m *Manager) Evict(tenantID string) error {
	v, ok := m.slots.Load(tenantID)
	if !ok {
		return nil
	}
	s := v.(*slot)

	s.mu.Lock()
	h := s.handle
	s.handle = nil
	s.generation++
	s.mu.Unlock()

	if h == nil {
		return nil
	}
	err := h.close()
	m.logger.Info().Str("tenant_id", tenantID).Msg("tenant handle evicted")
	if err != nil {
		return errors.Wrapf(err, "[Manager.Evict] close %s", tenantID)
	}
	return nil
}

// SweepIdle evicts handles unused for longer than the idle timeout and
// returns how many were evicted.
func (m *Manager) SweepIdle(now time.Time) int {
	if m.idleTimeout <= 0 {
		return 0
	}
	evicted := 0
	m.slots.Range(func(key, value any) bool {
		s := value.(*slot)
		s.mu.Lock()
		h := s.handle
		s.mu.Unlock()
		if h != nil && now.Sub(h.LastUsed()) > m.idleTimeout {
			if err := m.detach(s, h); err != nil {
				m.logger.Warn().Err(err).Str("tenant_id", key.(string)).Msg("closing idle handle")
			}
			evicted++
		}
		return true
	})
	if evicted > 0 {
		m.logger.Info().Int("evicted", evicted).Msg("idle tenant handles swept")
	}
	return evicted
}

// Run sweeps idle handles every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SweepIdle(m.nowTime())
		}
	}
}

// Len returns the number of live cached handles.
func (m *Manager) Len() int {
	n := 0
	m.slots.Range(func(_, value any) bool {
		s := value.(*slot)
		s.mu.Lock()
		if s.handle != nil {
			n++
		}
		s.mu.Unlock()
		return true
	})
	return n
}

// Constructions counts successful handle builds since start.
func (m *Manager) Constructions() int64 {
	return m.constructions.Load()
}

// Close evicts every handle.
func (m *Manager) Close() error {
	var firstErr error
	m.slots.Range(func(key, _ any) bool {
		if err := m.Evict(key.(string)); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}
