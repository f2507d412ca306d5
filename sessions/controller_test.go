package sessions_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-tenant-gate/internal/errors"
	"github.com/jrsteele09/go-tenant-gate/sessions"
)

var secret = []byte("test-secret")

// counters runs each test against both counter implementations.
func counters(t *testing.T) map[string]sessions.Counter {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return map[string]sessions.Counter{
		"memory": sessions.NewMemoryCounter(),
		"redis":  sessions.NewRedisCounter(rdb, "test"),
	}
}

func newController(t *testing.T, c sessions.Counter) *sessions.Controller {
	t.Helper()
	ctrl, err := sessions.NewController(c, secret, sessions.WithIssuer("tenant-gate-test"))
	require.NoError(t, err)
	return ctrl
}

func TestTryAdmit_ConcurrentBurst(t *testing.T) {
	const k = 5
	for name, counter := range counters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ctrl := newController(t, counter)
			limits := sessions.Limits{MaxSessions: k, MaxPerUser: 2 * k}

			var admitted, denied atomic.Int64
			var wg sync.WaitGroup
			start := make(chan struct{})
			for i := 0; i < 2*k; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					_, err := ctrl.TryAdmit(ctx, "burst", fmt.Sprintf("user-%d", i), limits)
					if err != nil {
						assert.ErrorIs(t, err, errors.ErrSessionLimit)
						denied.Add(1)
						return
					}
					admitted.Add(1)
				}(i)
			}
			close(start)
			wg.Wait()

			require.EqualValues(t, k, admitted.Load())
			require.EqualValues(t, k, denied.Load())
			live, err := ctrl.Live(ctx, "burst")
			require.NoError(t, err)
			require.EqualValues(t, k, live)
		})
	}
}

func TestTryAdmit_PerUserLimit(t *testing.T) {
	for name, counter := range counters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ctrl := newController(t, counter)
			limits := sessions.Limits{MaxSessions: 10, MaxPerUser: 2}

			first, err := ctrl.TryAdmit(ctx, "acme", "alice", limits)
			require.NoError(t, err)
			_, err = ctrl.TryAdmit(ctx, "acme", "alice", limits)
			require.NoError(t, err)

			_, err = ctrl.TryAdmit(ctx, "acme", "alice", limits)
			var limitErr *sessions.LimitError
			require.ErrorAs(t, err, &limitErr)
			require.Equal(t, sessions.ScopeUser, limitErr.Scope)
			require.EqualValues(t, 2, limitErr.Limit)
			require.EqualValues(t, 2, limitErr.Current)

			_, err = ctrl.TryAdmit(ctx, "acme", "bob", limits)
			require.NoError(t, err, "another user still fits")

			require.NoError(t, ctrl.Release(ctx, first))
			_, err = ctrl.TryAdmit(ctx, "acme", "alice", limits)
			require.NoError(t, err)
		})
	}
}

func TestTryAdmit_TenantLimit(t *testing.T) {
	for name, counter := range counters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ctrl := newController(t, counter)
			limits := sessions.Limits{MaxSessions: 1}

			_, err := ctrl.TryAdmit(ctx, "acme", "alice", limits)
			require.NoError(t, err)
			_, err = ctrl.TryAdmit(ctx, "acme", "bob", limits)
			var limitErr *sessions.LimitError
			require.ErrorAs(t, err, &limitErr)
			require.Equal(t, sessions.ScopeTenant, limitErr.Scope)
			require.EqualValues(t, 1, limitErr.Current)

			_, err = ctrl.TryAdmit(ctx, "other", "bob", limits)
			require.NoError(t, err, "tenants are counted separately")
		})
	}
}

func TestRelease(t *testing.T) {
	for name, counter := range counters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ctrl := newController(t, counter)
			limits := sessions.Limits{MaxSessions: 3, MaxPerUser: 3}

			tok, err := ctrl.TryAdmit(ctx, "acme", "alice", limits)
			require.NoError(t, err)
			require.NotEmpty(t, tok.Raw)

			parsed, err := ctrl.ReleaseRaw(ctx, tok.Raw)
			require.NoError(t, err)
			require.Equal(t, tok.SessionID, parsed.SessionID)
			require.Equal(t, "alice", parsed.UserID)
			require.Equal(t, tok.IssuedAt, parsed.IssuedAt)

			require.NoError(t, ctrl.Release(ctx, tok), "second release is a no-op")
			live, err := ctrl.Live(ctx, "acme")
			require.NoError(t, err)
			require.Zero(t, live)
			mine, err := ctrl.LiveForUser(ctx, "acme", "alice")
			require.NoError(t, err)
			require.Zero(t, mine)
		})
	}
}

func TestParse_RejectsForeignTokens(t *testing.T) {
	ctx := context.Background()
	ctrl := newController(t, sessions.NewMemoryCounter())
	tok, err := ctrl.TryAdmit(ctx, "acme", "alice", sessions.Limits{MaxSessions: 1})
	require.NoError(t, err)

	other, err := sessions.NewController(sessions.NewMemoryCounter(), []byte("other-secret"), sessions.WithIssuer("tenant-gate-test"))
	require.NoError(t, err)
	_, err = other.Parse(tok.Raw)
	require.ErrorIs(t, err, errors.ErrInvalidSessionToken)

	_, err = ctrl.ReleaseRaw(ctx, "not-a-token")
	require.ErrorIs(t, err, errors.ErrInvalidSessionToken)

	live, err := ctrl.Live(ctx, "acme")
	require.NoError(t, err)
	require.EqualValues(t, 1, live)
}

func TestNewController(t *testing.T) {
	_, err := sessions.NewController(nil, secret)
	require.Error(t, err)
	_, err = sessions.NewController(sessions.NewMemoryCounter(), nil)
	require.Error(t, err)
}
