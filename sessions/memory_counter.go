package sessions

import (
	"context"
	"sync"
)

var _ Counter = (*MemoryCounter)(nil)

// tenantSessions is guarded by its own mutex so tenants never contend.
type tenantSessions struct {
	mu      sync.Mutex
	live    map[string]string // sessionID -> userID
	perUser map[string]int64
}

// MemoryCounter keeps counters in process memory.
type MemoryCounter struct {
	tenants sync.Map // tenantID -> *tenantSessions
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{}
}

func (c *MemoryCounter) tenant(tenantID string) *tenantSessions {
	if ts, ok := c.tenants.Load(tenantID); ok {
		return ts.(*tenantSessions)
	}
	ts, _ := c.tenants.LoadOrStore(tenantID, &tenantSessions{
		live:    make(map[string]string),
		perUser: make(map[string]int64),
	})
	return ts.(*tenantSessions)
}

func (c *MemoryCounter) Admit(_ context.Context, tenantID, userID, sessionID string, limits Limits) error {
	ts := c.tenant(tenantID)
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if _, ok := ts.live[sessionID]; ok {
		return nil
	}
	if total := int64(len(ts.live)); total >= limits.MaxSessions {
		return &LimitError{TenantID: tenantID, UserID: userID, Scope: ScopeTenant, Limit: limits.MaxSessions, Current: total}
	}
	if mine := ts.perUser[userID]; mine >= limits.MaxPerUser {
		return &LimitError{TenantID: tenantID, UserID: userID, Scope: ScopeUser, Limit: limits.MaxPerUser, Current: mine}
	}
	ts.live[sessionID] = userID
	ts.perUser[userID]++
	return nil
}

func (c *MemoryCounter) Release(_ context.Context, tenantID, sessionID string) (bool, error) {
	v, ok := c.tenants.Load(tenantID)
	if !ok {
		return false, nil
	}
	ts := v.(*tenantSessions)
	ts.mu.Lock()
	defer ts.mu.Unlock()

	userID, ok := ts.live[sessionID]
	if !ok {
		return false, nil
	}
	delete(ts.live, sessionID)
	if ts.perUser[userID]--; ts.perUser[userID] <= 0 {
		delete(ts.perUser, userID)
	}
	return true, nil
}

func (c *MemoryCounter) Live(_ context.Context, tenantID string) (int64, error) {
	v, ok := c.tenants.Load(tenantID)
	if !ok {
		return 0, nil
	}
	ts := v.(*tenantSessions)
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return int64(len(ts.live)), nil
}

func (c *MemoryCounter) LiveForUser(_ context.Context, tenantID, userID string) (int64, error) {
	v, ok := c.tenants.Load(tenantID)
	if !ok {
		return 0, nil
	}
	ts := v.(*tenantSessions)
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.perUser[userID], nil
}
