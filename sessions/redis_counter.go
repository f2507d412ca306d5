package sessions

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var _ Counter = (*RedisCounter)(nil)

// KEYS[1] live hash sessionID -> userID, KEYS[2] per-user count hash.
// ARGV: sessionID, userID, maxSessions, maxPerUser.
// Returns {verdict, total, mine}: 1 admitted, 0 tenant limit, -1 user limit.
var luaAdmit = redis.NewScript(`
local live, users = KEYS[1], KEYS[2]
local sid, uid = ARGV[1], ARGV[2]
local total = redis.call('HLEN', live)
local mine = tonumber(redis.call('HGET', users, uid) or '0')
if redis.call('HEXISTS', live, sid) == 1 then
  return {1, total, mine}
end
if total >= tonumber(ARGV[3]) then
  return {0, total, mine}
end
if mine >= tonumber(ARGV[4]) then
  return {-1, total, mine}
end
redis.call('HSET', live, sid, uid)
redis.call('HINCRBY', users, uid, 1)
return {1, total + 1, mine + 1}
`)

var luaRelease = redis.NewScript(`
local live, users = KEYS[1], KEYS[2]
local uid = redis.call('HGET', live, ARGV[1])
if not uid then
  return 0
end
redis.call('HDEL', live, ARGV[1])
if redis.call('HINCRBY', users, uid, -1) <= 0 then
  redis.call('HDEL', users, uid)
end
return 1
`)

// RedisCounter shares session counters between gateway processes. Each
// admission is a single Lua script, so Redis serializes it per tenant key.
type RedisCounter struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisCounter(rdb redis.UniversalClient, keyPrefix string) *RedisCounter {
	if keyPrefix == "" {
		keyPrefix = "tenantgate"
	}
	return &RedisCounter{rdb: rdb, prefix: keyPrefix}
}

// Hash tags keep both keys of a tenant in one cluster slot.
func (c *RedisCounter) keys(tenantID string) []string {
	return []string{
		fmt.Sprintf("%s:sessions:{%s}:live", c.prefix, tenantID),
		fmt.Sprintf("%s:sessions:{%s}:users", c.prefix, tenantID),
	}
}

func (c *RedisCounter) Admit(ctx context.Context, tenantID, userID, sessionID string, limits Limits) error {
	res, err := luaAdmit.Run(ctx, c.rdb, c.keys(tenantID), sessionID, userID, limits.MaxSessions, limits.MaxPerUser).Int64Slice()
	if err != nil {
		return fmt.Errorf("admit session for tenant %s: %w", tenantID, err)
	}
	if len(res) != 3 {
		return fmt.Errorf("admit session for tenant %s: unexpected script reply %v", tenantID, res)
	}
	switch res[0] {
	case 0:
		return &LimitError{TenantID: tenantID, UserID: userID, Scope: ScopeTenant, Limit: limits.MaxSessions, Current: res[1]}
	case -1:
		return &LimitError{TenantID: tenantID, UserID: userID, Scope: ScopeUser, Limit: limits.MaxPerUser, Current: res[2]}
	}
	return nil
}

func (c *RedisCounter) Release(ctx context.Context, tenantID, sessionID string) (bool, error) {
	n, err := luaRelease.Run(ctx, c.rdb, c.keys(tenantID), sessionID).Int64()
	if err != nil {
		return false, fmt.Errorf("release session for tenant %s: %w", tenantID, err)
	}
	return n == 1, nil
}

func (c *RedisCounter) Live(ctx context.Context, tenantID string) (int64, error) {
	n, err := c.rdb.HLen(ctx, c.keys(tenantID)[0]).Result()
	if err != nil {
		return 0, fmt.Errorf("count sessions for tenant %s: %w", tenantID, err)
	}
	return n, nil
}

func (c *RedisCounter) LiveForUser(ctx context.Context, tenantID, userID string) (int64, error) {
	n, err := c.rdb.HGet(ctx, c.keys(tenantID)[1], userID).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("count sessions for user %s: %w", userID, err)
	}
	return n, nil
}
