// Package config loads the engine configuration from the environment.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

// procedureNamePattern accepts a bare or schema-qualified SQL identifier.
var procedureNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*){0,2}$`)

// Config holds every setting of the engine. Values come from environment
// variables; .env files are loaded by the binary before parsing.
type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`

	// StatementTimeout bounds every backend statement, procedure calls included.
	// Zero leaves the server default in place.
	StatementTimeout time.Duration `env:"DB_STATEMENT_TIMEOUT" envDefault:"15m"`

	// ProcedureName is the closing procedure invoked for every process.
	ProcedureName string `env:"PROCEDURE_NAME" envDefault:"gc.p_mcw_fecha_comissao_global"`

	// ReservedProcessCodes are system processes hidden from catalog listings.
	ReservedProcessCodes []string `env:"RESERVED_PROCESS_CODES" envSeparator:"," envDefault:"70000008,70000009"`

	// Timezone decides which calendar day "today" is for deadline checks.
	Timezone string `env:"TIMEZONE" envDefault:"America/Sao_Paulo"`

	RedisURL      string        `env:"REDIS_URL"`
	PeriodLockTTL time.Duration `env:"PERIOD_LOCK_TTL" envDefault:"30m"`

	OTelEndpoint string `env:"OTEL_EXPORTER_ENDPOINT"`

	Log       LogConfig       `envPrefix:"LOG_"`
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	JWT       JWTConfig
	Password  PasswordConfig
}

// LogConfig controls the application and audit loggers.
type LogConfig struct {
	Level      string `env:"LEVEL" envDefault:"info"`
	Format     string `env:"FORMAT" envDefault:"json"`
	File       string `env:"FILE"`
	AuditFile  string `env:"AUDIT_FILE"`
	MaxSizeMB  int    `env:"MAX_SIZE_MB" envDefault:"100"`
	MaxBackups int    `env:"MAX_BACKUPS" envDefault:"10"`
	MaxAgeDays int    `env:"MAX_AGE_DAYS" envDefault:"90"`
}

// RateLimitConfig controls per-client request limits.
type RateLimitConfig struct {
	Enabled bool `env:"ENABLED" envDefault:"true"`
	// ExecutePerHour limits POST /processes/execute per client.
	ExecutePerHour int `env:"EXECUTE_PER_HOUR" envDefault:"30"`
	// ReadPerMinute limits every other route per client.
	ReadPerMinute int           `env:"READ_PER_MINUTE" envDefault:"600"`
	IdleTimeout   time.Duration `env:"IDLE_TIMEOUT" envDefault:"1h"`
	Whitelist     []string      `env:"WHITELIST" envSeparator:","`
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.ReservedProcessCodes = cleanList(cfg.ReservedProcessCodes)
	cfg.RateLimit.Whitelist = cleanList(cfg.RateLimit.Whitelist)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration has usable values.
// DATABASE_URL and JWT_SECRET are checked by the commands that need them.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config error: PORT out of range: %d", c.Port)
	}
	if !procedureNamePattern.MatchString(c.ProcedureName) {
		return fmt.Errorf("config error: PROCEDURE_NAME is not a valid identifier: %q", c.ProcedureName)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config error: unknown TIMEZONE %q: %w", c.Timezone, err)
	}
	if c.StatementTimeout < 0 {
		return fmt.Errorf("config error: DB_STATEMENT_TIMEOUT must be non-negative")
	}
	if c.PeriodLockTTL <= 0 {
		return fmt.Errorf("config error: PERIOD_LOCK_TTL must be positive")
	}
	if c.RateLimit.ExecutePerHour < 0 || c.RateLimit.ReadPerMinute < 0 {
		return fmt.Errorf("config error: rate limits must be non-negative")
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return fmt.Errorf("config error: log rotation values must be non-negative")
	}
	return nil
}

// Location returns the configured time zone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// RequireDatabase returns an error when DATABASE_URL is not set.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}
	return nil
}

// ProcedureIdentifier splits the procedure name into its qualified parts.
func (c *Config) ProcedureIdentifier() []string {
	return strings.Split(c.ProcedureName, ".")
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
