// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. .env file (optional, loaded into the process environment first)
//  2. YAML file (config.yaml), with ${VAR} expansion
//  3. Environment variables (fallback)
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	dbPath := cfg.Storage.DatabasePath
//	loc, err := cfg.Reconcile.Location()
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the entire application configuration
type Config struct {
	Storage       StorageConfig       `yaml:"storage"`
	API           APIConfig           `yaml:"api"`
	Reconcile     ReconcileConfig     `yaml:"reconcile"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	Driver       string `yaml:"driver"` // sqlite3 (cgo) or sqlite (pure Go)
	DatabasePath string `yaml:"database_path"`
}

// APIConfig holds HTTP server settings
type APIConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps"`   // 0 disables rate limiting
	RateLimitBurst int      `yaml:"rate_limit_burst"`
}

// ReconcileConfig holds reconciliation run settings
type ReconcileConfig struct {
	Timezone        string        `yaml:"timezone"`
	MaxRunDuration  time.Duration `yaml:"max_run_duration"`
	HistoryCacheTTL time.Duration `yaml:"history_cache_ttl"` // negative disables the cache
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults
const (
	DefaultDriver          = "sqlite3"
	DefaultDatabasePath    = "reconciler.db"
	DefaultPort            = 8080
	DefaultTimezone        = "UTC"
	DefaultMaxRunDuration  = 2 * time.Minute
	DefaultHistoryCacheTTL = 30 * time.Second
	DefaultRateLimitRPS    = 10
	DefaultRateLimitBurst  = 30
)

// DefaultAllowedOrigins are the dev servers of the web UI
var DefaultAllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// LoadDotEnv loads .env files into the environment. Missing files are
// not an error; variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads and parses the config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${RECONCILER_DB_PATH})
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	cfg := &Config{
		Storage: StorageConfig{
			Driver:       getEnv("RECONCILER_DB_DRIVER", DefaultDriver),
			DatabasePath: getEnv("RECONCILER_DB_PATH", DefaultDatabasePath),
		},
		API: APIConfig{
			Port:           getEnvInt("PORT", DefaultPort),
			AllowedOrigins: getEnvList("ALLOWED_ORIGINS", DefaultAllowedOrigins),
			RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", DefaultRateLimitRPS),
			RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", DefaultRateLimitBurst),
		},
		Reconcile: ReconcileConfig{
			Timezone:        getEnv("RECONCILE_TIMEZONE", DefaultTimezone),
			MaxRunDuration:  getEnvDuration("RECONCILE_MAX_RUN_DURATION", DefaultMaxRunDuration),
			HistoryCacheTTL: getEnvDuration("HISTORY_CACHE_TTL", DefaultHistoryCacheTTL),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "text"),
			},
		},
	}
	cfg.applyDefaults()
	return cfg
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() *Config {
	return LoadOrEnv_WithPath("config.yaml")
}

// LoadOrEnv_WithPath tries to load from specified path, falls back to environment variables
func LoadOrEnv_WithPath(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

func (c *Config) applyDefaults() {
	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultDriver
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = DefaultDatabasePath
	}
	if c.API.Port == 0 {
		c.API.Port = DefaultPort
	}
	if len(c.API.AllowedOrigins) == 0 {
		c.API.AllowedOrigins = DefaultAllowedOrigins
	}
	if c.API.RateLimitBurst <= 0 {
		c.API.RateLimitBurst = DefaultRateLimitBurst
	}
	if c.Reconcile.Timezone == "" {
		c.Reconcile.Timezone = DefaultTimezone
	}
	if c.Reconcile.MaxRunDuration <= 0 {
		c.Reconcile.MaxRunDuration = DefaultMaxRunDuration
	}
	if c.Reconcile.HistoryCacheTTL == 0 {
		c.Reconcile.HistoryCacheTTL = DefaultHistoryCacheTTL
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = "text"
	}
}

// Validate checks values that would otherwise fail late at startup
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite3", "sqlite":
	default:
		return fmt.Errorf("storage.driver must be sqlite3 or sqlite, got %q", c.Storage.Driver)
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port out of range: %d", c.API.Port)
	}
	if c.API.RateLimitRPS < 0 {
		return fmt.Errorf("api.rate_limit_rps must not be negative")
	}
	if _, err := c.Reconcile.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the timezone used to derive calendar dates
func (r ReconcileConfig) Location() (*time.Location, error) {
	name := r.Timezone
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("reconcile.timezone %q: %w", name, err)
	}
	return loc, nil
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil {
			return result
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		var result float64
		if _, err := fmt.Sscanf(val, "%g", &result); err == nil {
			return result
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvList splits a comma-separated variable
func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
