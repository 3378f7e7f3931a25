package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"

	"github.com/rshade/detconsole/internal/logging"
	"github.com/rshade/detconsole/internal/storage"
)

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Master.URL == "" {
		errs = append(errs, errors.New("master.url is required"))
	} else if u, err := url.Parse(c.Master.URL); err != nil {
		errs = append(errs, fmt.Errorf("master.url: %w", err))
	} else if u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https" && u.Host != "" {
		errs = append(errs, fmt.Errorf("master.url: unsupported scheme %q", u.Scheme))
	}
	if c.Master.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("master.timeout_seconds must be positive"))
	}
	if c.Master.MinVersion != "" {
		if _, err := semver.NewVersion(c.Master.MinVersion); err != nil {
			errs = append(errs, fmt.Errorf("master.min_version: %w", err))
		}
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.Logging.Level)); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch c.Logging.Format {
	case logging.FormatConsole, logging.FormatJSON, "":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be %q or %q", logging.FormatConsole, logging.FormatJSON))
	}

	if c.Storage.Enabled &&
		(c.Storage.TTLSeconds < storage.MinTTLSeconds || c.Storage.TTLSeconds > storage.MaxTTLSeconds) {
		errs = append(errs, fmt.Errorf("storage.ttl_seconds: %w", storage.ErrInvalidTTL))
	}

	if c.Console.RefreshSeconds <= 0 {
		errs = append(errs, errors.New("console.refresh_seconds must be positive"))
	}
	if !strings.HasPrefix(c.Console.LoginPath, "/") || !strings.HasPrefix(c.Console.LogoutPath, "/") {
		errs = append(errs, errors.New("console.login_path and console.logout_path must start with /"))
	}

	if c.Probe.Iterations <= 0 || c.Probe.Concurrency <= 0 {
		errs = append(errs, errors.New("probe.iterations and probe.concurrency must be positive"))
	}
	if c.Probe.P95ThresholdMS <= 0 {
		errs = append(errs, errors.New("probe.p95_threshold_ms must be positive"))
	}

	return errors.Join(errs...)
}
