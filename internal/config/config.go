// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for hivecore. Resolution layers are
// defaults -> config file -> environment variables, with the environment
// reserved for secrets and path overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Providers ProvidersConfig `toml:"providers"`
	Network   NetworkConfig   `toml:"network"`
	Logging   LoggingConfig   `toml:"logging"`
	Quota     QuotaConfig     `toml:"quota"`
}

// DatabaseConfig locates the embedded index database.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// ProvidersConfig holds per-provider OAuth client settings. Secrets may be
// left empty in the file and supplied via environment variables instead.
type ProvidersConfig struct {
	Google GoogleConfig `toml:"google"`
}

// GoogleConfig is the OAuth client identity used for token refresh.
type GoogleConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// NetworkConfig controls HTTP client behavior on provider calls.
type NetworkConfig struct {
	Timeout   string `toml:"timeout"`
	UserAgent string `toml:"user_agent"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// QuotaConfig controls the optional periodic quota refresh. A zero
// interval disables it.
type QuotaConfig struct {
	RefreshInterval string `toml:"refresh_interval"`
}

// Valid log levels and formats.
var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"text": true, "json": true}
)

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: DefaultDatabasePath(),
		},
		Network: NetworkConfig{
			Timeout:   "30s",
			UserAgent: "hivecore/0.1",
		},
		Logging: LoggingConfig{
			LogLevel:  "info",
			LogFormat: "text",
		},
		Quota: QuotaConfig{
			RefreshInterval: "0s",
		},
	}
}

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config on top of defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values. This supports the zero-config
// first-run experience.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables.
func Resolve(cliConfigPath string) (*Config, error) {
	env := ReadEnvOverrides()

	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cliConfigPath != "" {
		cfgPath = cliConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	env.Apply(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks all config fields for internal consistency.
func Validate(cfg *Config) error {
	if cfg.Database.Path == "" {
		return errors.New("database.path must not be empty")
	}

	if !validLogLevels[cfg.Logging.LogLevel] {
		return fmt.Errorf("logging.log_level must be one of debug, info, warn, error; got %q", cfg.Logging.LogLevel)
	}

	if !validLogFormats[cfg.Logging.LogFormat] {
		return fmt.Errorf("logging.log_format must be text or json; got %q", cfg.Logging.LogFormat)
	}

	if _, err := time.ParseDuration(cfg.Network.Timeout); err != nil {
		return fmt.Errorf("network.timeout is not a valid duration: %w", err)
	}

	if _, err := time.ParseDuration(cfg.Quota.RefreshInterval); err != nil {
		return fmt.Errorf("quota.refresh_interval is not a valid duration: %w", err)
	}

	return nil
}

// NetworkTimeout returns the parsed network timeout. Validate has already
// established the duration parses.
func (c *Config) NetworkTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Network.Timeout)

	return d
}

// QuotaRefreshInterval returns the parsed quota refresh interval; zero
// disables the periodic refresh.
func (c *Config) QuotaRefreshInterval() time.Duration {
	d, _ := time.ParseDuration(c.Quota.RefreshInterval)

	return d
}
