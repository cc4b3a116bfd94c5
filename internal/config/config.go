package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Session backends, mirrored from the kv package to keep config free of
// storage imports.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config represents the application configuration
type Config struct {
	API             APIConfig         `yaml:"api"`
	Session         SessionConfig     `yaml:"session"`
	Database        DatabaseConfig    `yaml:"database"`
	Validation      ValidationConfig  `yaml:"validation"`
	Log             LogConfig         `yaml:"log"`
	Reconciler      ReconcilerConfig  `yaml:"reconciler"`
	Ledger          LedgerConfig      `yaml:"ledger"`
	Healthcheck     HealthcheckConfig `yaml:"healthcheck"`
	EventBus        EventBusConfig    `yaml:"eventbus"`
	Script          string            `yaml:"script"`
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops

	// Path is the file the config was loaded from.
	Path string `yaml:"-"`
}

// APIConfig contains booking API connection settings
type APIConfig struct {
	BaseURL      string   `yaml:"base_url"`
	Timeout      Duration `yaml:"timeout"`
	RateLimitRPS float64  `yaml:"rate_limit_rps"`
	Routes       string   `yaml:"routes"` // "modern" or "legacy"
}

// SessionConfig selects where the session record lives.
type SessionConfig struct {
	Backend string      `yaml:"backend"`
	Key     string      `yaml:"key"`
	TTL     Duration    `yaml:"ttl"` // 0 = never expires
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig is used when session.backend is redis.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ValidationConfig contains client-side validation settings
type ValidationConfig struct {
	// Timezone decides what "today" is for check-in validation.
	Timezone string `yaml:"timezone"`
}

// Location resolves the timezone.
func (c ValidationConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	Colors  bool   `yaml:"colors"`
	UseJSON bool   `yaml:"use_json"`
}

// ReconcilerConfig contains booking confirmation settings
type ReconcilerConfig struct {
	RetryBudget *int     `yaml:"retry_budget"` // retries after the first fetch, nil means default
	RetryDelay  Duration `yaml:"retry_delay"`
}

// GetRetryBudget returns the retry budget with default. An explicit 0
// disables retries.
func (c *ReconcilerConfig) GetRetryBudget() int {
	if c.RetryBudget == nil {
		return 3
	}
	return *c.RetryBudget
}

// LedgerConfig contains operation ledger settings
type LedgerConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// Retention returns the retention window.
func (c LedgerConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// HealthcheckConfig contains health check server settings
type HealthcheckConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 2)
	QueueSize int `yaml:"queue_size"` // Per-worker queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 2
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file. A .env file next to it is
// loaded first; variables already set in the environment win.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(filepath.Dir(path), ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.Path = path
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./bookd.sqlite"
	}
	if cfg.Script == "" {
		cfg.Script = "main.lua"
	}

	// API defaults
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = "http://localhost:5000"
	}
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = Duration(30 * time.Second)
	}
	if cfg.API.RateLimitRPS == 0 {
		cfg.API.RateLimitRPS = 10.0
	}
	if cfg.API.Routes == "" {
		cfg.API.Routes = "modern"
	}

	// Session defaults
	if cfg.Session.Backend == "" {
		cfg.Session.Backend = BackendSQLite
	}
	if cfg.Session.Key == "" {
		cfg.Session.Key = "user"
	}
	if cfg.Session.Redis.Address == "" {
		cfg.Session.Redis.Address = "localhost:6379"
	}

	if cfg.Validation.Timezone == "" {
		cfg.Validation.Timezone = "UTC"
	}

	// Reconciler defaults: 3 retries after the first fetch (see GetRetryBudget), 2s apart
	if cfg.Reconciler.RetryDelay == 0 {
		cfg.Reconciler.RetryDelay = Duration(2 * time.Second)
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// Healthcheck defaults
	if cfg.Healthcheck.Port == 0 {
		cfg.Healthcheck.Port = 9090
	}
	if cfg.Healthcheck.Host == "" {
		cfg.Healthcheck.Host = "0.0.0.0"
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// Validate rejects settings the daemon cannot start with.
func (cfg *Config) Validate() error {
	switch cfg.Session.Backend {
	case BackendMemory, BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("unknown session backend %q", cfg.Session.Backend)
	}
	switch cfg.API.Routes {
	case "modern", "legacy":
	default:
		return fmt.Errorf("unknown api routes %q", cfg.API.Routes)
	}
	if _, err := cfg.Validation.Location(); err != nil {
		return fmt.Errorf("invalid validation timezone: %w", err)
	}
	if cfg.Reconciler.GetRetryBudget() < 0 {
		return fmt.Errorf("reconciler retry_budget must not be negative, got %d", cfg.Reconciler.GetRetryBudget())
	}
	return nil
}

// envVarPattern matches ${VAR} or ${VAR:default}
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
