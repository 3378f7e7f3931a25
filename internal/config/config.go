// Package config loads detconsole settings from ~/.detconsole/config.yaml,
// an optional project overlay and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const configFileName = "config.yaml"

// Defaults.
const (
	DefaultMasterURL      = "http://localhost:8080"
	DefaultTimeoutSeconds = 30
	DefaultRefreshSeconds = 10
	DefaultLoginPath      = "/login"
	DefaultLogoutPath     = "/logout"
	DefaultIterations     = 10
	DefaultConcurrency    = 4
	DefaultP95ThresholdMS = 1000
	DefaultStorageTTL     = 3600
)

// Config is the full detconsole configuration.
type Config struct {
	Master  MasterConfig  `yaml:"master"`
	Logging LoggingConfig `yaml:"logging"`
	Storage StorageConfig `yaml:"storage"`
	Console ConsoleConfig `yaml:"console"`
	Probe   ProbeConfig   `yaml:"probe"`

	// Dev enables development diagnostics. Set from IS_DEV only.
	Dev bool `yaml:"-"`

	configPath string
}

// MasterConfig locates and authenticates against the master.
type MasterConfig struct {
	URL            string `yaml:"url"`
	User           string `yaml:"user,omitempty"`
	CertFile       string `yaml:"cert_file,omitempty"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	// MinVersion, when set, is the oldest master version detconsole accepts.
	MinVersion string `yaml:"min_version,omitempty"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file,omitempty"`
}

// StorageConfig controls the persistent token and settings store.
type StorageConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Directory  string `yaml:"directory,omitempty"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// ConsoleConfig controls the interactive dashboard.
type ConsoleConfig struct {
	RefreshSeconds int    `yaml:"refresh_seconds"`
	LoginPath      string `yaml:"login_path"`
	LogoutPath     string `yaml:"logout_path"`
}

// ProbeConfig controls the API latency probe.
type ProbeConfig struct {
	Iterations     int `yaml:"iterations"`
	Concurrency    int `yaml:"concurrency"`
	P95ThresholdMS int `yaml:"p95_threshold_ms"`
	WorkspaceID    int `yaml:"workspace_id,omitempty"`
}

// Default returns the built-in configuration, without file or environment.
func Default() *Config {
	return &Config{
		Master: MasterConfig{
			URL:            DefaultMasterURL,
			TimeoutSeconds: DefaultTimeoutSeconds,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Storage: StorageConfig{
			Enabled:    true,
			TTLSeconds: DefaultStorageTTL,
		},
		Console: ConsoleConfig{
			RefreshSeconds: DefaultRefreshSeconds,
			LoginPath:      DefaultLoginPath,
			LogoutPath:     DefaultLogoutPath,
		},
		Probe: ProbeConfig{
			Iterations:     DefaultIterations,
			Concurrency:    DefaultConcurrency,
			P95ThresholdMS: DefaultP95ThresholdMS,
		},
	}
}

// New loads the global configuration file, if any, over the defaults and
// applies environment overrides. Problems reading the file leave defaults in
// place; use Load to see them.
func New() *Config {
	cfg, err := Load("")
	if err != nil {
		cfg = Default()
		if path, pathErr := DefaultConfigPath(); pathErr == nil {
			cfg.configPath = path
		}
		cfg.ApplyEnv()
	}
	return cfg
}

// Load reads path (the default location when empty) over the defaults and
// applies environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// LoadFile is Load without environment overrides, for editing a file in place.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		var err error
		if path, err = DefaultConfigPath(); err != nil {
			return nil, err
		}
	}

	cfg := Default()
	cfg.configPath = path

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Save writes the configuration to its path, creating the directory.
func (c *Config) Save() error {
	if c.configPath == "" {
		path, err := DefaultConfigPath()
		if err != nil {
			return err
		}
		c.configPath = path
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.configPath), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(c.configPath, data, 0o600); err != nil {
		return fmt.Errorf("writing config %s: %w", c.configPath, err)
	}
	return nil
}

// ConfigPath returns where the configuration is read from and saved to.
func (c *Config) ConfigPath() string {
	return c.configPath
}

// SetConfigPath changes where Save writes.
func (c *Config) SetConfigPath(path string) {
	c.configPath = path
}

// RequestTimeout is the per-request timeout for master calls.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Master.TimeoutSeconds) * time.Second
}

// RefreshInterval is how often the console refetches.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Console.RefreshSeconds) * time.Second
}

// StorageDir returns the storage directory, defaulting under the config dir.
func (c *Config) StorageDir() (string, error) {
	if c.Storage.Directory != "" {
		return c.Storage.Directory, nil
	}
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "storage"), nil
}

// DefaultConfigPath is ~/.detconsole/config.yaml (or under DETCONSOLE_HOME).
func DefaultConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}
