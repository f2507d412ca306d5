package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	portEnvVar        = "PORT"
	appNameVar        = "APP_NAME"
	registryDBVar     = "REGISTRY_DATABASE_URL"
	redisAddrVar      = "REDIS_ADDR"
	plansFileVar      = "PLANS_FILE"
	adminTokenVar     = "ADMIN_TOKEN"
	tokenSecretVar    = "SESSION_TOKEN_SECRET"
	idleTimeoutVar    = "POOL_IDLE_TIMEOUT"
	maxConnsVar       = "POOL_MAX_CONNS"
	connectAttemptVar = "POOL_CONNECT_ATTEMPTS"
	licenseSweepVar   = "LICENSE_SWEEP_INTERVAL"
	statsTimeoutVar   = "STATS_TENANT_TIMEOUT"
	expiringWindowVar = "STATS_EXPIRING_WINDOW_DAYS"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Tenant Gate")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

// GetRegistryDatabaseURL is the postgres URL of the registry database holding
// tenants, plans and licenses. Empty means the in-memory registry is used.
func (EnvVars) GetRegistryDatabaseURL() string {
	return GetEnv(registryDBVar, "")
}

// GetRedisAddr enables the shared session counter when set.
func (EnvVars) GetRedisAddr() string {
	return GetEnv(redisAddrVar, "")
}

func (EnvVars) GetPlansFile() string {
	return GetEnv(plansFileVar, "./plans.yaml")
}

// GetAdminToken is the bearer token guarding the operator endpoints. Empty
// leaves them open, which is only meant for local development.
func (EnvVars) GetAdminToken() string {
	return GetEnv(adminTokenVar, "")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvDuration parses a Go duration ("90s", "1h"), falling back on error.
func GetEnvDuration(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func GetEnvInt(envVar string, defaultValue int) int {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
