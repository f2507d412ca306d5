package config

import "time"

type Config interface {
	EnvConfig
	PoolConfig
	LicenseConfig
	QuotaConfig
	SessionConfig
	StatsConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetRegistryDatabaseURL() string
	GetRedisAddr() string
	GetPlansFile() string
	GetAdminToken() string
}

type PoolConfig interface {
	GetPoolIdleTimeout() time.Duration
	GetPoolSweepInterval() time.Duration
	GetPoolMaxConns() int32
	GetPoolConnectAttempts() uint64
	GetPoolConnectBackoff() time.Duration
}

type LicenseConfig interface {
	GetDefaultTrialDays() int
	GetDefaultGracePeriodDays() int
	GetLicenseSweepInterval() time.Duration
}

type SessionConfig interface {
	GetSessionTokenSecret() []byte
	GetSessionIssuer() string
}

type StatsConfig interface {
	GetStatsTenantTimeout() time.Duration
	GetStatsExpiringWindow() time.Duration
	GetStatsMaxConcurrency() int
}

type mainConfig struct {
	EnvVars
	Pool
	Licensing
	Quota
	Sessions
	Stats
}

func New() Config {
	return mainConfig{}
}
