package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the server
type Config struct {
	// Server settings
	Port        int
	CORSOrigins []string

	// Tenant databases: tenant ID -> DSN. Every request is served through
	// exactly one of these handles; there is no shared database.
	TenantDSNs map[string]string

	// How long an unused tenant connection pool stays open before eviction.
	TenantIdleTimeout time.Duration

	// Default response window applied when a tenant has no
	// response_window_hours setting.
	DefaultResponseWindow time.Duration

	// Shared secret guarding the scheduled sweep trigger.
	SweepSecret string

	// Logging
	LogLevel  string
	LogFormat string // "json" or "console"
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}

	// Server
	cfg.Port = getEnvInt("PORT", 8080)
	cfg.CORSOrigins = getEnvList("CORS_ORIGINS", []string{"http://localhost:3000"})

	// Tenant databases: "tenant-a=postgres://...,tenant-b=sqlite3://./b.db"
	tenantDSNs, err := parseTenantDSNs(getEnv("TENANT_DSNS", "default=sqlite3://./chairfill.db"))
	if err != nil {
		return nil, err
	}
	cfg.TenantDSNs = tenantDSNs

	cfg.TenantIdleTimeout = getEnvDuration("TENANT_IDLE_TIMEOUT", 30*time.Minute)
	cfg.DefaultResponseWindow = getEnvDuration("DEFAULT_RESPONSE_WINDOW", 48*time.Hour)

	// The sweep endpoint is unauthenticated apart from this secret, so it is
	// required rather than defaulted.
	cfg.SweepSecret = getEnv("SWEEP_SECRET", "")
	if cfg.SweepSecret == "" {
		return nil, fmt.Errorf("SWEEP_SECRET is required")
	}

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFormat = getEnv("LOG_FORMAT", "console")

	return cfg, nil
}

// parseTenantDSNs parses the TENANT_DSNS value into a tenant -> DSN map.
func parseTenantDSNs(value string) (map[string]string, error) {
	dsns := make(map[string]string)
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, dsn, ok := strings.Cut(pair, "=")
		if !ok || name == "" || dsn == "" {
			return nil, fmt.Errorf("TENANT_DSNS entry %q must be tenant=dsn", pair)
		}
		if _, exists := dsns[name]; exists {
			return nil, fmt.Errorf("TENANT_DSNS contains duplicate tenant %q", name)
		}
		dsns[name] = dsn
	}
	if len(dsns) == 0 {
		return nil, fmt.Errorf("TENANT_DSNS must list at least one tenant")
	}
	return dsns, nil
}

// DetectDriver determines the database driver from a DSN
func DetectDriver(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	if strings.HasPrefix(dsn, "sqlite3://") || strings.HasPrefix(dsn, "sqlite://") {
		return "sqlite"
	}
	// Default to sqlite for file paths
	if strings.HasSuffix(dsn, ".db") || strings.HasSuffix(dsn, ".sqlite") {
		return "sqlite"
	}
	return "postgres"
}

// CleanDSN removes the driver prefix from a DSN for the chosen driver
func CleanDSN(dsn string) string {
	driver := DetectDriver(dsn)
	dsn = strings.TrimPrefix(dsn, "postgres://")
	dsn = strings.TrimPrefix(dsn, "postgresql://")
	dsn = strings.TrimPrefix(dsn, "sqlite3://")
	dsn = strings.TrimPrefix(dsn, "sqlite://")

	// For postgres, add the prefix back
	if driver == "postgres" {
		return "postgres://" + dsn
	}
	return dsn
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
