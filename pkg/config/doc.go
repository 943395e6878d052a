// Package config loads application configuration from environment
// variables.
//
// All variables carry the AUTHORITY_ prefix. The main groups:
//
//	AUTHORITY_HOST / AUTHORITY_PORT / AUTHORITY_HEALTH_PORT
//	AUTHORITY_STORE_TYPE (postgres|memory), AUTHORITY_POSTGRES_URL
//	AUTHORITY_CACHE_TYPE (memory|redis|none), AUTHORITY_CACHE_TTL, AUTHORITY_REDIS_URL
//	AUTHORITY_LEGACY_ADMINS_FILE, AUTHORITY_LEGACY_AUTO_PERSIST
//	AUTHORITY_AUDIT_LOG_FILE
//	AUTHORITY_LOG_LEVEL, AUTHORITY_METRICS_ENABLED
//
// LoadConfig applies defaults, then validates the result; an invalid
// combination (for example a redis cache without a redis URL) fails
// startup rather than limping along.
package config
