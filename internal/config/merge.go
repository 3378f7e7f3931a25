package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Top-level YAML sections, replaced whole by an overlay.
const (
	keyMaster  = "master"
	keyLogging = "logging"
	keyStorage = "storage"
	keyConsole = "console"
	keyProbe   = "probe"
)

//nolint:gochecknoglobals // lookup table
var knownTopLevelKeys = map[string]bool{
	keyMaster:  true,
	keyLogging: true,
	keyStorage: true,
	keyConsole: true,
	keyProbe:   true,
}

// ShallowMergeYAML applies the top-level sections present in overlayPath to
// target. A present section replaces the target's section entirely; absent
// sections and unknown keys are left alone.
func ShallowMergeYAML(target *Config, overlayPath string) error {
	if target == nil {
		return errors.New("nil target *Config in ShallowMergeYAML")
	}

	data, err := os.ReadFile(overlayPath)
	if err != nil {
		return fmt.Errorf("reading overlay file %s: %w", overlayPath, err)
	}

	var overlay map[string]any
	if err = yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parsing overlay YAML from %s: %w", overlayPath, err)
	}

	for key, value := range overlay {
		if !knownTopLevelKeys[key] {
			continue
		}
		section, marshalErr := yaml.Marshal(value)
		if marshalErr != nil {
			return fmt.Errorf("re-marshalling overlay section %q: %w", key, marshalErr)
		}
		if err = unmarshalSection(target, key, section); err != nil {
			return fmt.Errorf("applying overlay section %q: %w", key, err)
		}
	}
	return nil
}

// unmarshalSection decodes data into a zero value of the section type so
// the replacement is complete.
func unmarshalSection(target *Config, key string, data []byte) error {
	switch key {
	case keyMaster:
		return replaceSection(data, &target.Master)
	case keyLogging:
		return replaceSection(data, &target.Logging)
	case keyStorage:
		return replaceSection(data, &target.Storage)
	case keyConsole:
		return replaceSection(data, &target.Console)
	case keyProbe:
		return replaceSection(data, &target.Probe)
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
}

func replaceSection[T any](data []byte, dst *T) error {
	var v T
	if err := yaml.Unmarshal(data, &v); err != nil {
		return err
	}
	*dst = v
	return nil
}
