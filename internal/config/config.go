// Package config loads service configuration in three layers: built-in
// defaults, then an optional YAML file, then environment variables with the
// LICENSOR_ prefix on top. Validation runs on the merged result.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// envPrefix namespaces every environment variable this service reads.
const envPrefix = "LICENSOR"

// defaultConfigFile is consulted when LICENSOR_CONFIG is unset.
const defaultConfigFile = "licensor.yml"

// Config is the complete service configuration.
//
// Environment names derive from the field path under the prefix
// (LICENSOR_SERVER_PORT, LICENSOR_STORE_CACHE_CAPACITY). Fields carry no
// envconfig name tags: a named tag would also register the bare name as a
// fallback lookup, letting ambient variables like PATH or PORT leak in.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Auth    AuthConfig    `yaml:"auth"`
	License LicenseConfig `yaml:"license"`
	Mail    MailConfig    `yaml:"mail"`
	Sweep   SweepConfig   `yaml:"sweep"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" split_words:"true"`
	WriteTimeout    time.Duration `yaml:"write_timeout" split_words:"true"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps" split_words:"true"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" split_words:"true"`
}

// StoreConfig locates the durable layer and bounds its cache.
type StoreConfig struct {
	Path          string `yaml:"path"`
	CacheCapacity int    `yaml:"cache_capacity" split_words:"true"`
}

// AuthConfig seeds the public-key whitelist at bootstrap.
type AuthConfig struct {
	SeedPublicKeys []string `yaml:"seed_public_keys" split_words:"true"`
}

// LicenseConfig tunes issuance policy.
type LicenseConfig struct {
	// DefaultMonths is granted when a request omits months.
	DefaultMonths int `yaml:"default_months" split_words:"true"`
	// WindowFraction is the renewal-window denominator: a license granted
	// for duration D may be renewed within D/WindowFraction of expiry.
	WindowFraction int `yaml:"window_fraction" split_words:"true"`
}

// MailConfig configures outbound SMTP. With Enabled false the service logs
// notifications instead of sending them.
type MailConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	From      string `yaml:"from"`
	QueueSize int    `yaml:"queue_size" split_words:"true"`
}

// SweepConfig schedules the periodic license sweep.
type SweepConfig struct {
	// Spec is a standard 5-field cron expression; the default runs at the
	// top of every hour.
	Spec string `yaml:"spec"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// defaults returns the built-in configuration. Defaults live here rather
// than in envconfig tags: a tag default is applied whenever the variable is
// unset, which would overwrite values the YAML layer already supplied.
func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            3000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimitRPS:    50,
			RateLimitBurst:  25,
		},
		Store: StoreConfig{
			Path:          "data/licensor.db",
			CacheCapacity: 1000,
		},
		License: LicenseConfig{
			DefaultMonths:  1,
			WindowFraction: 6,
		},
		Mail: MailConfig{
			Port:      465,
			QueueSize: 256,
		},
		Sweep: SweepConfig{
			Spec: "0 * * * *",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration: defaults first, then the YAML file (when
// present) over them, then environment variables over both, then
// validation.
func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv(envPrefix + "_CONFIG")
	if path == "" {
		path = defaultConfigFile
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("config: process environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store path must not be empty")
	}
	if c.Store.CacheCapacity <= 0 {
		return fmt.Errorf("store cache capacity must be positive, got %d", c.Store.CacheCapacity)
	}
	if c.License.DefaultMonths < 1 {
		return fmt.Errorf("license default months must be at least 1, got %d", c.License.DefaultMonths)
	}
	if c.License.WindowFraction < 1 {
		return fmt.Errorf("license window fraction must be at least 1, got %d", c.License.WindowFraction)
	}
	if c.Mail.Enabled {
		if c.Mail.Host == "" {
			return fmt.Errorf("mail host required when mail is enabled")
		}
		if c.Mail.From == "" {
			return fmt.Errorf("mail from address required when mail is enabled")
		}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}
