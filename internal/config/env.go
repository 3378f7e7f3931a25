package config

import (
	"os"
	"strconv"

	"github.com/rshade/detconsole/internal/storage"
)

// Environment variables read by ApplyEnv.
const (
	EnvHome        = "DETCONSOLE_HOME"
	EnvMaster      = "DET_MASTER"
	EnvProxyURL    = "DET_WEBPACK_PROXY_URL"
	EnvUser        = "DET_USER"
	EnvTestUser    = "PW_USER_NAME"
	EnvDev         = "IS_DEV"
	EnvLogLevel    = "DETCONSOLE_LOG_LEVEL"
	EnvLogFormat   = "DETCONSOLE_LOG_FORMAT"
	EnvProjectDir  = "DETCONSOLE_PROJECT_DIR"
	EnvCertFile    = "DET_MASTER_CERT_FILE"
	EnvTimeoutSecs = "DETCONSOLE_TIMEOUT_SECONDS"
)

// ApplyEnv overrides file values with the environment.
//
// DET_MASTER wins over DET_WEBPACK_PROXY_URL; DET_USER wins over
// PW_USER_NAME. IS_DEV turns on dev mode and, unless a level is set
// explicitly, debug logging.
func (c *Config) ApplyEnv() {
	if v := firstEnv(EnvMaster, EnvProxyURL); v != "" {
		c.Master.URL = v
	}
	if v := firstEnv(EnvUser, EnvTestUser); v != "" {
		c.Master.User = v
	}
	if v := os.Getenv(EnvCertFile); v != "" {
		c.Master.CertFile = v
	}
	if v, err := strconv.Atoi(os.Getenv(EnvTimeoutSecs)); err == nil && v > 0 {
		c.Master.TimeoutSeconds = v
	}

	if dev, err := strconv.ParseBool(os.Getenv(EnvDev)); err == nil {
		c.Dev = dev
		if dev {
			c.Logging.Level = "debug"
		}
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Logging.Format = v
	}

	c.Storage.Enabled = storage.EnabledFromEnv(c.Storage.Enabled)
	c.Storage.TTLSeconds = storage.TTLFromEnv(c.Storage.TTLSeconds)
	if v := storage.DirFromEnv(); v != "" {
		c.Storage.Directory = v
	}
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}
