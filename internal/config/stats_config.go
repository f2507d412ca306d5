package config

import "time"

type Stats struct{}

var _ StatsConfig = Stats{}

func (Stats) GetStatsTenantTimeout() time.Duration {
	return GetEnvDuration(statsTimeoutVar, 2*time.Second)
}

func (Stats) GetStatsExpiringWindow() time.Duration {
	return time.Duration(GetEnvInt(expiringWindowVar, 30)) * 24 * time.Hour
}

// GetStatsMaxConcurrency bounds the fan-out; 0 means one goroutine per tenant.
func (Stats) GetStatsMaxConcurrency() int {
	return 0
}
