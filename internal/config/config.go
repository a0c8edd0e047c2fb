// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Store backend names accepted by SESSION_STORE and THROTTLE_STORE.
const (
	StoreRedis  = "redis"
	StoreMemory = "memory"
	StoreFile   = "file"
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 8080).
	Port int

	// BaseURL is the public-facing URL used for links, redirects and CORS.
	BaseURL string

	// LogLevel overrides log verbosity: "debug", "info", "warn", "error".
	// Empty means debug in development and info otherwise.
	LogLevel string

	// MigrationsPath is the directory holding the SQL migration files.
	MigrationsPath string

	// Database holds MariaDB connection settings.
	Database DatabaseConfig

	// Redis holds Redis connection settings.
	Redis RedisConfig

	// Session holds session lifecycle settings.
	Session SessionConfig

	// Throttle holds login throttling settings.
	Throttle ThrottleConfig

	// TOTP holds second-factor verification settings.
	TOTP TOTPConfig

	// Telemetry holds OpenTelemetry exporter settings.
	Telemetry TelemetryConfig

	// Bootstrap holds the first super admin created on an empty install.
	Bootstrap BootstrapConfig
}

// DatabaseConfig holds MariaDB connection parameters. Individual fields
// (Host, User, Password, Name) are read from separate env vars so
// container orchestrators can manage each independently.
// If DATABASE_URL is set, it takes precedence over the individual fields.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	// If no port is specified, 3306 is appended automatically.
	Host string

	// User is the MariaDB username (default: "hrportal").
	User string

	// Password is the MariaDB password (default: "hrportal").
	Password string

	// Name is the database name (default: "hrportal").
	Name string

	// dsnOverride is set when DATABASE_URL is provided, bypassing individual fields.
	dsnOverride string

	// MaxOpenConns is the maximum number of open connections in the pool.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections in the pool.
	MaxIdleConns int

	// ConnMaxLifetime is how long a connection can be reused.
	ConnMaxLifetime time.Duration
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is returned as-is. Otherwise the DSN is built from the individual
// Host/User/Password/Name fields using the driver's Config.FormatDSN()
// to safely handle special characters in passwords.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		return d.dsnOverride
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	// golang-migrate needs to run multi-statement migration files.
	cfg.MultiStatements = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
// Allows users to set DB_HOST=mydb (gets :3306) or DB_HOST=mydb:3307 (as-is).
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string
}

// SessionConfig controls the server-side session timers.
type SessionConfig struct {
	// Store selects the session backend: "redis" or "memory".
	Store string

	// IdleTimeout is the longest allowed gap between authenticated requests.
	IdleTimeout time.Duration

	// AbsoluteLifetime is the maximum session age regardless of activity.
	AbsoluteLifetime time.Duration
}

// ThrottleConfig controls the login attempt limiter.
type ThrottleConfig struct {
	// Store selects the counter backend: "redis", "file" or "memory".
	Store string

	// Dir is the directory used by the file backend. Created if missing.
	Dir string

	// MaxAttempts is the number of failures tolerated inside Window.
	MaxAttempts int

	// Window is the trailing sliding window length.
	Window time.Duration

	// IPPerMinute and IPBurst bound raw request volume per client IP on
	// the login endpoints, independent of the per-username window.
	IPPerMinute int
	IPBurst     int
}

// TOTPConfig controls second-factor verification.
type TOTPConfig struct {
	// Skew is the number of 30-second steps accepted on either side of now.
	Skew int
}

// TelemetryConfig holds OTLP trace exporter settings. Tracing is disabled
// when Endpoint is empty.
type TelemetryConfig struct {
	Endpoint string
	Insecure bool
}

// BootstrapConfig names the super admin account created when the users
// table is empty. Nothing is created while Password is empty.
type BootstrapConfig struct {
	Username string
	Password string
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if required variables are missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Env:            getEnv("ENV", "development"),
		Port:           getEnvInt("PORT", 8080),
		BaseURL:        getEnv("BASE_URL", "http://localhost:8080"),
		LogLevel:       getEnv("LOG_LEVEL", ""),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "db/migrations"),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost:3306"),
			User:            getEnv("DB_USER", "hrportal"),
			Password:        getEnv("DB_PASSWORD", "hrportal"),
			Name:            getEnv("DB_NAME", "hrportal"),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},

		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},

		Session: SessionConfig{
			Store:            strings.ToLower(getEnv("SESSION_STORE", StoreRedis)),
			IdleTimeout:      getEnvDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
			AbsoluteLifetime: getEnvDuration("SESSION_ABSOLUTE_LIFETIME", 8*time.Hour),
		},

		Throttle: ThrottleConfig{
			Store:       strings.ToLower(getEnv("THROTTLE_STORE", StoreRedis)),
			Dir:         getEnv("THROTTLE_DIR", "./data/throttle"),
			MaxAttempts: getEnvInt("THROTTLE_MAX_ATTEMPTS", 5),
			Window:      getEnvDuration("THROTTLE_WINDOW", 10*time.Minute),
			IPPerMinute: getEnvInt("LOGIN_IP_RATE", 20),
			IPBurst:     getEnvInt("LOGIN_IP_BURST", 10),
		},

		TOTP: TOTPConfig{
			Skew: getEnvInt("TOTP_SKEW", 3),
		},

		Telemetry: TelemetryConfig{
			Endpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Insecure: getEnv("OTEL_EXPORTER_OTLP_INSECURE", "") == "true",
		},

		Bootstrap: BootstrapConfig{
			Username: getEnv("BOOTSTRAP_ADMIN_USERNAME", "admin"),
			Password: getEnv("BOOTSTRAP_ADMIN_PASSWORD", ""),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate rejects settings that would silently weaken the security core.
func (c *Config) validate() error {
	switch c.Session.Store {
	case StoreRedis, StoreMemory:
	default:
		return fmt.Errorf("SESSION_STORE must be %q or %q, got %q", StoreRedis, StoreMemory, c.Session.Store)
	}
	switch c.Throttle.Store {
	case StoreRedis, StoreFile, StoreMemory:
	default:
		return fmt.Errorf("THROTTLE_STORE must be %q, %q or %q, got %q", StoreRedis, StoreFile, StoreMemory, c.Throttle.Store)
	}
	if c.Session.IdleTimeout <= 0 || c.Session.AbsoluteLifetime <= 0 {
		return fmt.Errorf("session timeouts must be positive")
	}
	if c.Throttle.MaxAttempts < 1 || c.Throttle.Window <= 0 {
		return fmt.Errorf("THROTTLE_MAX_ATTEMPTS and THROTTLE_WINDOW must be positive")
	}
	if c.TOTP.Skew < 0 {
		return fmt.Errorf("TOTP_SKEW must not be negative")
	}

	// Anything other than development is treated as production.
	if !c.IsDevelopment() {
		if c.Database.dsnOverride == "" && c.Database.Password == "hrportal" {
			return fmt.Errorf("DB_PASSWORD or DATABASE_URL is required in production")
		}
		if c.Session.Store == StoreMemory {
			return fmt.Errorf("SESSION_STORE=memory is not allowed in production")
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvDuration reads a duration env var (e.g., "30m") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
