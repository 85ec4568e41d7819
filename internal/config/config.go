// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Store backends selectable with STORE_BACKEND.
const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendMemory   = "memory"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Ledger store
	StoreBackend string        `env:"STORE_BACKEND" envDefault:"postgres"`
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"3s"`

	// PostgreSQL
	DatabaseURL    string `env:"DATABASE_URL"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START" envDefault:"false"`

	// MongoDB
	MongoURL        string `env:"MONGO_URL"`
	MongoDatabase   string `env:"MONGO_DATABASE" envDefault:"loyalty-program"`
	MongoCollection string `env:"MONGO_COLLECTION" envDefault:"loyalty-points"`

	// Redis is optional. Without it rate limiting and the gate verdict
	// cache are disabled.
	RedisURL string `env:"REDIS_URL"`

	// Access gate. API_KEY_HASH (argon2id PHC string) wins when both are set.
	APIKey          string        `env:"API_KEY"`
	APIKeyHash      string        `env:"API_KEY_HASH"`
	GateMinDuration time.Duration `env:"GATE_MIN_DURATION" envDefault:"100ms"`
	GateCacheTTL    time.Duration `env:"GATE_CACHE_TTL" envDefault:"5m"`

	// Tenants file (YAML). Built-in programs are used when empty.
	TenantsFile string `env:"TENANTS_FILE"`

	// Fixtures loaded at startup. Only honoured by the memory backend.
	SeedFile string `env:"SEED_FILE"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Rate limiting
	RateLimitEnabled          bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRPS              int  `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst            int  `env:"RATE_LIMIT_BURST" envDefault:"40"`
	TenantWriteLimitPerMinute int  `env:"TENANT_WRITE_LIMIT_PER_MINUTE" envDefault:"0"`
	TenantWriteBurst          int  `env:"TENANT_WRITE_BURST" envDefault:"20"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 64KB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"65536"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Validate checks settings that depend on each other.
func (c *Config) Validate() error {
	var errs []error

	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORE_BACKEND=postgres"))
		}
	case BackendMongo:
		if c.MongoURL == "" {
			errs = append(errs, errors.New("MONGO_URL is required when STORE_BACKEND=mongo"))
		}
	case BackendMemory:
		if c.IsProduction() {
			errs = append(errs, errors.New("STORE_BACKEND=memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}

	if c.APIKey == "" && c.APIKeyHash == "" {
		errs = append(errs, errors.New("one of API_KEY or API_KEY_HASH is required"))
	}
	if c.SeedFile != "" && c.StoreBackend != BackendMemory {
		errs = append(errs, errors.New("SEED_FILE is only supported with STORE_BACKEND=memory; use cmd/seed"))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT must be positive"))
	}
	if c.GateMinDuration < 0 {
		errs = append(errs, errors.New("GATE_MIN_DURATION must not be negative"))
	}
	if c.RateLimitEnabled && (c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0) {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}
	if c.TenantWriteLimitPerMinute < 0 || c.TenantWriteBurst < 0 {
		errs = append(errs, errors.New("tenant write limits must not be negative"))
	}

	return errors.Join(errs...)
}

// Load parses environment variables and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
