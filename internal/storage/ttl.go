package storage

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// TTL limits and defaults.
const (
	// DefaultTTLSeconds applies to cached data such as user settings.
	DefaultTTLSeconds = 3600

	// TokenTTLSeconds bounds how long a saved session token is kept.
	TokenTTLSeconds = 7 * 24 * 3600

	MinTTLSeconds = 60
	MaxTTLSeconds = 30 * 24 * 3600

	hoursPerDay    = 24
	minutesPerHour = 60
)

// Environment overrides.
const (
	EnvTTLSeconds = "DETCONSOLE_STORAGE_TTL_SECONDS"
	EnvEnabled    = "DETCONSOLE_STORAGE_ENABLED"
	EnvDir        = "DETCONSOLE_STORAGE_DIR"
)

// ErrInvalidTTL is returned for a TTL outside [MinTTLSeconds, MaxTTLSeconds].
var ErrInvalidTTL = fmt.Errorf("TTL must be between %d and %d seconds", MinTTLSeconds, MaxTTLSeconds)

// TTLFromEnv returns the TTL from the environment, or def when unset or invalid.
func TTLFromEnv(def int) int {
	v := os.Getenv(EnvTTLSeconds)
	if v == "" {
		return def
	}
	ttl, err := strconv.Atoi(v)
	if err != nil || ttl < MinTTLSeconds || ttl > MaxTTLSeconds {
		return def
	}
	return ttl
}

// EnabledFromEnv returns the enabled flag from the environment, or def.
func EnabledFromEnv(def bool) bool {
	v := os.Getenv(EnvEnabled)
	if v == "" {
		return def
	}
	enabled, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return enabled
}

// DirFromEnv returns the storage directory from the environment, "" when unset.
func DirFromEnv() string {
	return os.Getenv(EnvDir)
}

// ParseTTL accepts integer seconds ("3600") or a Go duration ("1h30m").
func ParseTTL(s string) (int, error) {
	seconds, err := strconv.Atoi(s)
	if err != nil {
		d, derr := time.ParseDuration(s)
		if derr != nil {
			return 0, fmt.Errorf("invalid TTL format: %w", derr)
		}
		seconds = int(d.Seconds())
	}
	if seconds < MinTTLSeconds || seconds > MaxTTLSeconds {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidTTL, seconds)
	}
	return seconds, nil
}

// FormatDuration renders d compactly: "45s", "30m", "2h15m", "3d4h".
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%.0fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%.0fm", d.Minutes())
	case d < hoursPerDay*time.Hour:
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % minutesPerHour
		if minutes == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dh%dm", hours, minutes)
	default:
		days := int(d.Hours()) / hoursPerDay
		hours := int(d.Hours()) % hoursPerDay
		if hours == 0 {
			return fmt.Sprintf("%dd", days)
		}
		return fmt.Sprintf("%dd%dh", days, hours)
	}
}
