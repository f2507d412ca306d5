package config

import "time"

type Pool struct{}

var _ PoolConfig = Pool{}

// GetPoolIdleTimeout is how long an unused tenant handle stays cached.
func (Pool) GetPoolIdleTimeout() time.Duration {
	return GetEnvDuration(idleTimeoutVar, 15*time.Minute)
}

func (Pool) GetPoolSweepInterval() time.Duration {
	return time.Minute
}

// GetPoolMaxConns caps the connections of each tenant handle.
func (Pool) GetPoolMaxConns() int32 {
	return int32(GetEnvInt(maxConnsVar, 10))
}

func (Pool) GetPoolConnectAttempts() uint64 {
	return uint64(GetEnvInt(connectAttemptVar, 3))
}

func (Pool) GetPoolConnectBackoff() time.Duration {
	return 200 * time.Millisecond
}
