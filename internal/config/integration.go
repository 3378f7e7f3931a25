package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// GlobalConfig is the configuration of the running process.
var (
	GlobalConfig     *Config      //nolint:gochecknoglobals // set once per CLI invocation
	globalConfigMu   sync.RWMutex //nolint:gochecknoglobals // guards GlobalConfig
	globalConfigInit bool         //nolint:gochecknoglobals // whether GlobalConfig is set
)

// InitGlobalConfig loads the global configuration once.
func InitGlobalConfig() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()

	if globalConfigInit {
		return
	}
	GlobalConfig = New()
	globalConfigInit = true
}

// SetGlobalConfig replaces the global configuration, for example after the
// CLI merged a project overlay or applied flags.
func SetGlobalConfig(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	GlobalConfig = cfg
	globalConfigInit = cfg != nil
}

// ResetGlobalConfigForTest forgets the global configuration.
func ResetGlobalConfigForTest() {
	SetGlobalConfig(nil)
}

// GetGlobalConfig returns the global configuration, loading it if needed.
func GetGlobalConfig() *Config {
	InitGlobalConfig()
	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return GlobalConfig
}

// GetMasterURL returns the configured master URL.
func GetMasterURL() string {
	return GetGlobalConfig().Master.URL
}

// GetLogLevel returns the configured log level.
func GetLogLevel() string {
	return GetGlobalConfig().Logging.Level
}

// GetLogFile returns the configured log file path.
func GetLogFile() string {
	return GetGlobalConfig().Logging.File
}

// IsDev reports whether dev mode is on.
func IsDev() bool {
	return GetGlobalConfig().Dev
}

// GetConfigDir returns the detconsole home, DETCONSOLE_HOME or ~/.detconsole.
func GetConfigDir() (string, error) {
	if home := os.Getenv(EnvHome); home != "" {
		return home, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".detconsole"), nil
}

// EnsureConfigDir creates the detconsole home.
func EnsureConfigDir() error {
	dir, err := GetConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o700)
}
