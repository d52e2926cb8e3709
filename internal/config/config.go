// Package config provides configuration management for the traffic router.
// It loads settings from environment variables with sensible defaults and
// validates them so the process refuses to start in an unsafe state.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//   - ORIGIN_URL: Origin that unmatched traffic is forwarded to (required)
//   - ORIGIN_TIMEOUT: Upstream response header timeout (default: 15s)
//   - ORIGIN_BREAKER_ENABLED: Guard the origin with a circuit breaker (default: true)
//   - ORIGIN_BREAKER_MAX_FAILURES: Consecutive failures that open the breaker (default: 5)
//
// Admin API:
//   - ADMIN_PREFIX: Path prefix of the admin surface (default: /admin)
//   - ADMIN_TOKEN: Bearer token required by every admin call. Empty rejects all calls.
//
// Config Store:
//   - STORE_TYPE: "redis", "sqlite", "postgres" or "memory" (default: redis)
//   - STORE_KEY_PREFIX: Namespace for every stored key (default: router:)
//   - REDIS_ADDRESS: Redis server address (default: localhost:6379)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//   - REDIS_POOL_SIZE: Redis connection pool size (default: 10)
//   - DATABASE_PATH: SQLite database file path (default: ./traffic_router.db)
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_DB, POSTGRES_USER, POSTGRES_PASSWORD, POSTGRES_SSL_MODE
//
// Classification:
//   - COUNTRY_HEADER: Platform geolocation header (default: CF-IPCountry)
//   - ASN_HEADER: Platform autonomous-system-number header (optional)
//   - BOT_SIGNAL_HEADER: Platform bot verdict header (optional)
//   - CLIENT_IP_HEADER: Header carrying the client IP (default: CF-Connecting-IP)
//   - GEOIP_COUNTRY_DB: MaxMind country database used when the header is missing (optional)
//   - GEOIP_ASN_DB: MaxMind ASN database used when ASN_HEADER is missing (optional)
//   - GEOIP_RELOAD_SCHEDULE: Cron schedule for re-opening the databases (default: 0 4 * * *)
//
// Example usage:
//
//	cfg := config.Load()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid configuration: %v", err)
//	}
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"traffic-router/internal/common/validation"
)

// Store backends accepted by STORE_TYPE
const (
	StoreRedis    = "redis"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds all configuration values for the traffic router.
// Numeric values are kept as strings, the way they arrive from the
// environment, and checked by Validate.
type Config struct {
	// Application settings
	Port     string // Server port number
	LogLevel string // Logging level (debug, info, warn, error)

	// Origin forwarding
	OriginURL                string // Upstream for pass-through traffic
	OriginTimeout            string // Response header timeout (e.g. "15s")
	OriginBreakerEnabled     bool   // Whether the origin transport is guarded by a breaker
	OriginBreakerMaxFailures string // Consecutive failures before the breaker opens

	// Admin surface
	AdminPrefix string // Path prefix for admin routes
	AdminToken  string // Shared bearer secret

	// Config store
	StoreType      string // redis, sqlite, postgres or memory
	StoreKeyPrefix string // Namespace prepended to every key

	// Redis configuration
	RedisAddress  string // Redis server address (host:port)
	RedisPassword string // Redis authentication password
	RedisDB       string // Redis database number (0-15)
	RedisPoolSize string // Redis connection pool size

	// SQL configuration
	DatabasePath     string // Path to SQLite database file
	PostgresHost     string
	PostgresPort     string
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string

	// Request classification
	CountryHeader       string
	ASNHeader           string
	BotSignalHeader     string
	ClientIPHeader      string
	GeoIPCountryDB      string
	GeoIPASNDB          string
	GeoIPReloadSchedule string
}

// Load creates a new Config instance with values loaded from environment variables.
// It does not validate; call Validate on the result.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		OriginURL:                getEnv("ORIGIN_URL", ""),
		OriginTimeout:            getEnv("ORIGIN_TIMEOUT", "15s"),
		OriginBreakerEnabled:     getBoolEnv("ORIGIN_BREAKER_ENABLED", true),
		OriginBreakerMaxFailures: getEnv("ORIGIN_BREAKER_MAX_FAILURES", "5"),

		AdminPrefix: strings.TrimRight(getEnv("ADMIN_PREFIX", "/admin"), "/"),
		AdminToken:  getEnv("ADMIN_TOKEN", ""),

		StoreType:      strings.ToLower(getEnv("STORE_TYPE", StoreRedis)),
		StoreKeyPrefix: getEnv("STORE_KEY_PREFIX", "router:"),

		RedisAddress:  getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnv("REDIS_DB", "0"),
		RedisPoolSize: getEnv("REDIS_POOL_SIZE", "10"),

		DatabasePath:     getEnv("DATABASE_PATH", "./traffic_router.db"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDB:       getEnv("POSTGRES_DB", "traffic_router"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresSSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),

		CountryHeader:       getEnv("COUNTRY_HEADER", "CF-IPCountry"),
		ASNHeader:           getEnv("ASN_HEADER", ""),
		BotSignalHeader:     getEnv("BOT_SIGNAL_HEADER", ""),
		ClientIPHeader:      getEnv("CLIENT_IP_HEADER", "CF-Connecting-IP"),
		GeoIPCountryDB:      getEnv("GEOIP_COUNTRY_DB", ""),
		GeoIPASNDB:          getEnv("GEOIP_ASN_DB", ""),
		GeoIPReloadSchedule: getEnv("GEOIP_RELOAD_SCHEDULE", "0 4 * * *"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnv accepts the strconv.ParseBool spellings and falls back to defaultValue otherwise.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Validate checks required fields, formats and cross-field dependencies.
// The first problem found is returned.
func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	if c.OriginURL == "" {
		return fmt.Errorf("ORIGIN_URL environment variable is required")
	}
	origin, err := url.Parse(c.OriginURL)
	if err != nil || (origin.Scheme != "http" && origin.Scheme != "https") || origin.Host == "" {
		return fmt.Errorf("ORIGIN_URL must be an absolute http(s) URL")
	}
	if d, err := time.ParseDuration(c.OriginTimeout); err != nil || d <= 0 {
		return fmt.Errorf("ORIGIN_TIMEOUT must be a positive duration (e.g., '15s')")
	}
	if c.OriginBreakerEnabled {
		if n, err := strconv.Atoi(c.OriginBreakerMaxFailures); err != nil || n < 1 {
			return fmt.Errorf("ORIGIN_BREAKER_MAX_FAILURES must be a positive number")
		}
	}

	if c.AdminPrefix == "" || !strings.HasPrefix(c.AdminPrefix, "/") {
		return fmt.Errorf("ADMIN_PREFIX must be a non-root path starting with '/'")
	}

	switch c.StoreType {
	case StoreRedis:
		if db, err := strconv.Atoi(c.RedisDB); err != nil || db < 0 || db > 15 {
			return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
		}
		if poolSize, err := strconv.Atoi(c.RedisPoolSize); err != nil || poolSize < 1 {
			return fmt.Errorf("REDIS_POOL_SIZE must be a positive number")
		}
	case StoreSQLite:
		if c.DatabasePath == "" {
			return fmt.Errorf("DATABASE_PATH is required when using SQLite")
		}
	case StorePostgres:
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required when using PostgreSQL")
		}
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required when using PostgreSQL")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required when using PostgreSQL")
		}
		if port, err := strconv.Atoi(c.PostgresPort); err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("POSTGRES_PORT must be a valid port number")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("STORE_TYPE must be one of 'redis', 'sqlite', 'postgres' or 'memory'")
	}

	if c.CountryHeader == "" {
		return fmt.Errorf("COUNTRY_HEADER must not be empty")
	}
	if (c.GeoIPCountryDB != "" || c.GeoIPASNDB != "") && c.GeoIPReloadSchedule != "" {
		if err := validation.Default().ValidateVar(c.GeoIPReloadSchedule, "cron_expression"); err != nil {
			return fmt.Errorf("GEOIP_RELOAD_SCHEDULE must be a valid cron expression")
		}
	}

	return nil
}

// OriginTimeoutDuration returns ORIGIN_TIMEOUT parsed, falling back to 15s
func (c *Config) OriginTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.OriginTimeout)
	if err != nil || d <= 0 {
		return 15 * time.Second
	}
	return d
}

// PostgresDSN builds a pgx connection string from the POSTGRES_* settings
func (c *Config) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:     c.PostgresHost + ":" + c.PostgresPort,
		Path:     "/" + c.PostgresDB,
		RawQuery: "sslmode=" + url.QueryEscape(c.PostgresSSLMode),
	}
	return u.String()
}
