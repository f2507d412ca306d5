package pool_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-tenant-gate/internal/errors"
	"github.com/jrsteele09/go-tenant-gate/pool"
	"github.com/jrsteele09/go-tenant-gate/tenants"
)

type fakeStore struct {
	conn   tenants.ConnectionDescriptor
	usage  map[tenants.ResourceKind]int64
	closed atomic.Bool
}

func (s *fakeStore) Ping(context.Context) error { return nil }

func (s *fakeStore) CountUsage(_ context.Context, kind tenants.ResourceKind) (int64, error) {
	return s.usage[kind], nil
}

func (s *fakeStore) Close() error {
	s.closed.Store(true)
	return nil
}

// fakeConnector counts connects and can be slowed down or made to fail.
type fakeConnector struct {
	connects atomic.Int64
	delay    time.Duration
	failures atomic.Int64 // remaining failures before success
	mu       sync.Mutex
	stores   []*fakeStore
}

func (c *fakeConnector) Connect(ctx context.Context, conn tenants.ConnectionDescriptor) (pool.Store, error) {
	c.connects.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.failures.Add(-1) >= 0 {
		return nil, fmt.Errorf("connection refused")
	}
	s := &fakeStore{conn: conn, usage: map[tenants.ResourceKind]int64{tenants.ResourceVoters: 7}}
	c.mu.Lock()
	c.stores = append(c.stores, s)
	c.mu.Unlock()
	return s, nil
}

func descriptor(tenantID, host string) *tenants.Descriptor {
	return &tenants.Descriptor{
		TenantID:   tenantID,
		Slug:       tenantID,
		Connection: tenants.ConnectionDescriptor{Host: host, Database: tenantID, User: "app", Password: "pw"},
	}
}

func newManager(c pool.Connector, opts ...pool.ManagerOption) *pool.Manager {
	opts = append([]pool.ManagerOption{pool.WithConnectRetry(3, time.Millisecond)}, opts...)
	return pool.NewManager(c, opts...)
}

func TestManager_AcquireCachesByTenant(t *testing.T) {
	ctx := context.Background()
	c := &fakeConnector{}
	m := newManager(c)

	h1, err := m.Acquire(ctx, descriptor("t1", "db1"))
	require.NoError(t, err)
	h2, err := m.Acquire(ctx, descriptor("t1", "db1"))
	require.NoError(t, err)
	require.Same(t, h1, h2)
	require.EqualValues(t, 1, c.connects.Load())

	n, err := h1.CountUsage(ctx, tenants.ResourceVoters)
	require.NoError(t, err)
	require.EqualValues(t, 7, n)
}

func TestManager_CoalescedConstruction(t *testing.T) {
	ctx := context.Background()
	c := &fakeConnector{delay: 50 * time.Millisecond}
	m := newManager(c)

	const workers = 64
	handles := make([]*pool.Handle, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			h, err := m.Acquire(ctx, descriptor("fresh", "db"))
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}
	close(start)
	wg.Wait()

	require.EqualValues(t, 1, c.connects.Load())
	require.EqualValues(t, 1, m.Constructions())
	for _, h := range handles {
		require.Same(t, handles[0], h)
	}
}

func TestManager_DifferentTenantsDoNotContend(t *testing.T) {
	ctx := context.Background()
	c := &fakeConnector{delay: 100 * time.Millisecond}
	m := newManager(c)

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.Acquire(ctx, descriptor(fmt.Sprintf("t%d", i), "db"))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	require.Less(t, time.Since(start), 500*time.Millisecond, "builds for different tenants run in parallel")
	require.Equal(t, 8, m.Len())
}

func TestManager_Isolation(t *testing.T) {
	ctx := context.Background()
	m := newManager(&fakeConnector{})

	a, err := m.Acquire(ctx, descriptor("a", "host-a"))
	require.NoError(t, err)
	b, err := m.Acquire(ctx, descriptor("b", "host-b"))
	require.NoError(t, err)
	require.Equal(t, "host-a", a.Connection().Host)
	require.Equal(t, "host-b", b.Connection().Host)

	t.Run("after descriptor update", func(t *testing.T) {
		moved, err := m.Acquire(ctx, descriptor("a", "host-a2"))
		require.NoError(t, err)
		require.NotSame(t, a, moved)
		require.Equal(t, "host-a2", moved.Connection().Host)
		require.True(t, a.Closed(), "stale handle is closed")

		again, err := m.Acquire(ctx, descriptor("b", "host-b"))
		require.NoError(t, err)
		require.Same(t, b, again)
	})
}

func TestManager_EvictIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c := &fakeConnector{}
	m := newManager(c)

	h, err := m.Acquire(ctx, descriptor("t1", "db"))
	require.NoError(t, err)

	require.NoError(t, m.Evict("t1"))
	require.NoError(t, m.Evict("t1"))
	require.NoError(t, m.Evict("never-seen"))

	require.True(t, h.Closed())
	require.True(t, c.stores[0].closed.Load())
	_, err = h.CountUsage(ctx, tenants.ResourceVoters)
	require.ErrorIs(t, err, errors.ErrHandleEvicted)

	fresh, err := m.Acquire(ctx, descriptor("t1", "db"))
	require.NoError(t, err)
	require.NotSame(t, h, fresh)
	require.EqualValues(t, 2, c.connects.Load())
}

func TestManager_EvictConcurrentWithAcquire(t *testing.T) {
	ctx := context.Background()
	m := newManager(&fakeConnector{delay: time.Millisecond})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			h, err := m.Acquire(ctx, descriptor("busy", "db"))
			if err != nil {
				assert.ErrorIs(t, err, errors.ErrHandleEvicted)
				return
			}
			assert.Equal(t, "busy", h.TenantID())
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Evict("busy"))
		}()
	}
	wg.Wait()

	require.NoError(t, m.Evict("busy"))
	require.Equal(t, 0, m.Len())
}

func TestManager_EvictDuringBuildRebuildsForWaiter(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int64
	c := pool.ConnectorFunc(func(_ context.Context, conn tenants.ConnectionDescriptor) (pool.Store, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		return &fakeStore{conn: conn}, nil
	})
	m := newManager(c)

	type result struct {
		h   *pool.Handle
		err error
	}
	done := make(chan result, 1)
	go func() {
		h, err := m.Acquire(context.Background(), descriptor("rotating", "db-new"))
		done <- result{h, err}
	}()

	<-started
	require.NoError(t, m.Evict("rotating"))
	close(release)

	res := <-done
	require.NoError(t, res.err)
	require.False(t, res.h.Closed())
	require.Equal(t, "db-new", res.h.Connection().Host)
	require.EqualValues(t, 2, calls.Load())
	require.Equal(t, 1, m.Len())
}

func TestManager_RetriesThenSucceeds(t *testing.T) {
	c := &fakeConnector{}
	c.failures.Store(2)
	m := newManager(c)

	h, err := m.Acquire(context.Background(), descriptor("flaky", "db"))
	require.NoError(t, err)
	require.NotNil(t, h)
	require.EqualValues(t, 3, c.connects.Load())
}

func TestManager_BackendUnavailable(t *testing.T) {
	c := &fakeConnector{}
	c.failures.Store(100)
	m := newManager(c)

	_, err := m.Acquire(context.Background(), descriptor("down", "db"))
	require.ErrorIs(t, err, errors.ErrBackendUnavailable)
	require.NotErrorIs(t, err, errors.ErrTenantNotFound)

	var backendErr *pool.BackendError
	require.ErrorAs(t, err, &backendErr)
	require.Equal(t, 3, backendErr.Attempts)
	require.Equal(t, 0, m.Len())
}

func TestManager_InvalidDescriptorIsNotRetried(t *testing.T) {
	var calls atomic.Int64
	c := pool.ConnectorFunc(func(context.Context, tenants.ConnectionDescriptor) (pool.Store, error) {
		calls.Add(1)
		return nil, errors.Wrapf(errors.ErrInvalidArgument, "bad dsn")
	})
	m := newManager(c)

	_, err := m.Acquire(context.Background(), descriptor("bad", "db"))
	require.ErrorIs(t, err, errors.ErrBackendUnavailable)
	require.EqualValues(t, 1, calls.Load())
}

func TestManager_SweepIdle(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	m := newManager(&fakeConnector{}, pool.WithIdleTimeout(10*time.Minute), pool.WithNowTime(clock))
	ctx := context.Background()

	idle, err := m.Acquire(ctx, descriptor("idle", "db"))
	require.NoError(t, err)

	now = now.Add(9 * time.Minute)
	_, err = m.Acquire(ctx, descriptor("busy", "db"))
	require.NoError(t, err)

	require.Equal(t, 1, m.SweepIdle(now.Add(2*time.Minute)))
	require.True(t, idle.Closed())
	require.Equal(t, 1, m.Len())
}

func TestManager_SweepIdleSeesHandleUse(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	clock := func() time.Time { return now }
	m := newManager(&fakeConnector{}, pool.WithIdleTimeout(10*time.Minute), pool.WithNowTime(clock))
	ctx := context.Background()

	h, err := m.Acquire(ctx, descriptor("counted", "db"))
	require.NoError(t, err)

	now = start.Add(9 * time.Minute)
	_, err = h.CountUsage(ctx, tenants.ResourceVoters)
	require.NoError(t, err)
	require.True(t, now.Equal(h.LastUsed()))

	require.Zero(t, m.SweepIdle(start.Add(15*time.Minute)))
	require.Equal(t, 1, m.SweepIdle(start.Add(20*time.Minute)))
	require.True(t, h.Closed())
}

func TestManager_Close(t *testing.T) {
	ctx := context.Background()
	m := newManager(&fakeConnector{})
	for _, id := range []string{"a", "b", "c"} {
		_, err := m.Acquire(ctx, descriptor(id, "db"))
		require.NoError(t, err)
	}
	require.NoError(t, m.Close())
	require.Equal(t, 0, m.Len())
}
