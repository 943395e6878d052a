package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tidemark-dev/authority/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Store configuration
	Store StoreConfig

	// Cache configuration
	Cache CacheConfig

	// Legacy allow-list configuration
	Legacy LegacyConfig

	// Audit configuration
	Audit AuditConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// StoreConfig holds assignment store configuration
type StoreConfig struct {
	// Type selects the backend: "postgres" or "memory"
	Type string

	PostgresURL      string
	PostgresMaxConns int
	RunMigrations    bool
}

// CacheConfig holds assignment cache configuration
type CacheConfig struct {
	// Type selects the backend: "memory", "redis" or "none"
	Type string

	TTL      time.Duration
	Size     int
	RedisURL string
}

// LegacyConfig holds the legacy admin allow-list configuration
type LegacyConfig struct {
	// AdminsFile is the YAML allow-list path; empty disables the
	// legacy fallback entirely
	AdminsFile string

	// AutoPersist restores write-through persistence of legacy
	// fallback resolutions
	AutoPersist bool
}

// AuditConfig holds audit trail configuration
type AuditConfig struct {
	// LogFile is the JSON-lines audit file; empty routes audit events
	// to the application log
	LogFile string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("AUTHORITY_HOST", "0.0.0.0"),
			Port:            getEnv("AUTHORITY_PORT", "8080"),
			ReadTimeout:     getEnvDuration("AUTHORITY_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("AUTHORITY_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("AUTHORITY_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("AUTHORITY_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("AUTHORITY_HEALTH_PORT", "9090"),
		},
		Store: StoreConfig{
			Type:             getEnv("AUTHORITY_STORE_TYPE", "postgres"),
			PostgresURL:      getEnv("AUTHORITY_POSTGRES_URL", ""),
			PostgresMaxConns: getEnvInt("AUTHORITY_POSTGRES_MAX_CONNS", 10),
			RunMigrations:    getEnvBool("AUTHORITY_RUN_MIGRATIONS", true),
		},
		Cache: CacheConfig{
			Type:     getEnv("AUTHORITY_CACHE_TYPE", "memory"),
			TTL:      getEnvDuration("AUTHORITY_CACHE_TTL", 5*time.Minute),
			Size:     getEnvInt("AUTHORITY_CACHE_SIZE", 4096),
			RedisURL: getEnv("AUTHORITY_REDIS_URL", ""),
		},
		Legacy: LegacyConfig{
			AdminsFile:  getEnv("AUTHORITY_LEGACY_ADMINS_FILE", ""),
			AutoPersist: getEnvBool("AUTHORITY_LEGACY_AUTO_PERSIST", false),
		},
		Audit: AuditConfig{
			LogFile: getEnv("AUTHORITY_AUDIT_LOG_FILE", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:       observability.ParseLogLevel(getEnv("AUTHORITY_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("AUTHORITY_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	switch c.Store.Type {
	case "postgres":
		if c.Store.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres store")
		}
	case "memory":
		// No further configuration.
	default:
		return fmt.Errorf("unknown store type: %s", c.Store.Type)
	}

	switch c.Cache.Type {
	case "memory", "none":
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis cache")
		}
	default:
		return fmt.Errorf("unknown cache type: %s", c.Cache.Type)
	}

	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache TTL must not be negative")
	}

	return nil
}

// getEnv returns an environment variable or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
