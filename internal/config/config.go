// ABOUTME: Configuration loading and parsing for coven-reactions
// ABOUTME: Supports YAML or TOML files with env var expansion, env overrides and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/2389/coven-reactions/internal/reactions"
	"github.com/2389/coven-reactions/internal/store"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "COVEN_REACTIONS_"

// Config represents the complete coven-reactions configuration
type Config struct {
	Server      ServerConfig      `yaml:"server" toml:"server" envPrefix:"SERVER_"`
	Database    DatabaseConfig    `yaml:"database" toml:"database" envPrefix:"DB_"`
	Reactions   ReactionsConfig   `yaml:"reactions" toml:"reactions" envPrefix:"REACTIONS_"`
	Auth        AuthConfig        `yaml:"auth" toml:"auth" envPrefix:"AUTH_"`
	Idempotency IdempotencyConfig `yaml:"idempotency" toml:"idempotency" envPrefix:"IDEMPOTENCY_"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging" envPrefix:"LOG_"`
	Tracing     TracingConfig     `yaml:"tracing" toml:"tracing" envPrefix:"TRACING_"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr" toml:"http_addr" env:"HTTP_ADDR"`
	ShutdownTimeout time.Duration `yaml:"-" toml:"-" env:"SHUTDOWN_TIMEOUT"`

	ShutdownTimeoutRaw string `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path        string        `yaml:"path" toml:"path" env:"PATH"`
	Driver      string        `yaml:"driver" toml:"driver" env:"DRIVER"`
	BusyTimeout time.Duration `yaml:"-" toml:"-" env:"BUSY_TIMEOUT"`

	BusyTimeoutRaw string `yaml:"busy_timeout" toml:"busy_timeout"`
}

// ReactionsConfig selects the engine mode and kind rules
type ReactionsConfig struct {
	AllowMultiple bool     `yaml:"allow_multiple" toml:"allow_multiple" env:"ALLOW_MULTIPLE"`
	Types         []string `yaml:"types" toml:"types" env:"TYPES" envSeparator:","`
	// CaseInsensitive is a pointer so an absent key keeps the default of true.
	CaseInsensitive *bool  `yaml:"case_insensitive" toml:"case_insensitive" env:"CASE_INSENSITIVE"`
	StoreName       string `yaml:"store_name" toml:"store_name" env:"STORE_NAME"`
	// Table overrides the table derived from StoreName.
	Table string `yaml:"table" toml:"table" env:"TABLE"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" toml:"jwt_secret" env:"JWT_SECRET"`
	TokenTTL  time.Duration `yaml:"-" toml:"-" env:"TOKEN_TTL"`

	TokenTTLRaw string `yaml:"token_ttl" toml:"token_ttl"`
}

// IdempotencyConfig controls replay of mutating requests
type IdempotencyConfig struct {
	TTL        time.Duration `yaml:"-" toml:"-" env:"TTL"`
	MaxEntries int           `yaml:"max_entries" toml:"max_entries" env:"MAX_ENTRIES"`

	TTLRaw string `yaml:"ttl" toml:"ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" env:"LEVEL"`
	Format string `yaml:"format" toml:"format" env:"FORMAT"`
}

// TracingConfig holds OpenTelemetry export configuration. Tracing is off
// when Endpoint is empty.
type TracingConfig struct {
	Endpoint    string `yaml:"endpoint" toml:"endpoint" env:"ENDPOINT"`
	ServiceName string `yaml:"service_name" toml:"service_name" env:"SERVICE_NAME"`
}

// Default returns a configuration that passes Validate once auth.jwt_secret is set.
func Default() *Config {
	caseInsensitive := true
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        "127.0.0.1:8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Path:        "reactions.db",
			Driver:      store.DriverModernc,
			BusyTimeout: 5 * time.Second,
		},
		Reactions: ReactionsConfig{
			CaseInsensitive: &caseInsensitive,
			StoreName:       "Reaction",
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Idempotency: IdempotencyConfig{
			TTL:        5 * time.Minute,
			MaxEntries: 10000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: TracingConfig{
			ServiceName: "coven-reactions",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded, then
// COVEN_REACTIONS_* variables override individual fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(expandedData, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides fields from COVEN_REACTIONS_* environment variables.
// Unset variables leave the current value alone.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parsing environment overrides: %w", err)
	}
	return nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	switch c.Database.Driver {
	case "", store.DriverModernc, store.DriverCGO:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", store.DriverModernc, store.DriverCGO, c.Database.Driver)
	}
	if c.Database.BusyTimeout < 0 {
		return fmt.Errorf("database.busy_timeout must not be negative")
	}

	if c.Reactions.StoreName == "" && c.Reactions.Table == "" {
		return fmt.Errorf("reactions.store_name or reactions.table is required")
	}
	for i, t := range c.Reactions.Types {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("reactions.types[%d] is empty", i)
		}
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}

	if c.Idempotency.TTL < 0 {
		return fmt.Errorf("idempotency.ttl must not be negative")
	}
	if c.Idempotency.MaxEntries < 0 {
		return fmt.Errorf("idempotency.max_entries must not be negative")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// EngineConfig converts the reactions section into engine configuration.
func (r ReactionsConfig) EngineConfig() reactions.Config {
	cfg := reactions.DefaultConfig()
	cfg.AllowMultipleReactionsPerUser = r.AllowMultiple
	cfg.ReactionTypes = r.Types
	if r.CaseInsensitive != nil {
		cfg.ReactionTypesCaseInsensitive = *r.CaseInsensitive
	}
	if r.StoreName != "" {
		cfg.StoreName = r.StoreName
	}
	return cfg
}

// TableName returns the table backing the reaction store.
func (r ReactionsConfig) TableName() string {
	if r.Table != "" {
		return r.Table
	}
	return store.TableName(r.StoreName)
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"database.busy_timeout", cfg.Database.BusyTimeoutRaw, &cfg.Database.BusyTimeout},
		{"auth.token_ttl", cfg.Auth.TokenTTLRaw, &cfg.Auth.TokenTTL},
		{"idempotency.ttl", cfg.Idempotency.TTLRaw, &cfg.Idempotency.TTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
