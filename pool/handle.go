package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-tenant-gate/internal/errors"
	"github.com/jrsteele09/go-tenant-gate/tenants"
)

// Handle is the cached connection to one tenant's database. Once the manager
// evicts it, every new call fails with errors.ErrHandleEvicted; calls already
// running finish on their own.
type Handle struct {
	tenantID    string
	fingerprint string
	connection  tenants.ConnectionDescriptor
	store       Store
	createdAt   time.Time
	nowTime     func() time.Time

	lastUsed  atomic.Int64
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func newHandle(tenantID, fingerprint string, conn tenants.ConnectionDescriptor, store Store, nowTime func() time.Time) *Handle {
	now := nowTime()
	h := &Handle{
		tenantID:    tenantID,
		fingerprint: fingerprint,
		connection:  conn,
		store:       store,
		createdAt:   now,
		nowTime:     nowTime,
	}
	h.lastUsed.Store(now.UnixNano())
	return h
}

func (h *Handle) TenantID() string {
	return h.tenantID
}

// Connection returns the descriptor the handle was built from.
func (h *Handle) Connection() tenants.ConnectionDescriptor {
	return h.connection
}

func (h *Handle) Fingerprint() string {
	return h.fingerprint
}

func (h *Handle) CreatedAt() time.Time {
	return h.createdAt
}

func (h *Handle) LastUsed() time.Time {
	return time.Unix(0, h.lastUsed.Load())
}

func (h *Handle) Closed() bool {
	return h.closed.Load()
}

func (h *Handle) touch(now time.Time) {
	h.lastUsed.Store(now.UnixNano())
}

// Store exposes the underlying store for callers that need driver-specific
// access, e.g. (*PgxStore).Pool.
func (h *Handle) Store() (Store, error) {
	if h.closed.Load() {
		return nil, errors.Wrapf(errors.ErrHandleEvicted, "tenant %s", h.tenantID)
	}
	return h.store, nil
}

// Do dispatches fn through the handle unless it has been evicted.
func (h *Handle) Do(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	store, err := h.Store()
	if err != nil {
		return err
	}
	h.touch(h.nowTime())
	return fn(ctx, store)
}

func (h *Handle) CountUsage(ctx context.Context, kind tenants.ResourceKind) (int64, error) {
	var n int64
	err := h.Do(ctx, func(ctx context.Context, store Store) error {
		var err error
		n, err = store.CountUsage(ctx, kind)
		return err
	})
	return n, err
}

// close marks the handle evicted before tearing the store down.
func (h *Handle) close() error {
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeErr = h.store.Close()
	})
	return h.closeErr
}
