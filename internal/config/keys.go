package config

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownKey is returned by Get and Set for a key that does not exist.
var ErrUnknownKey = errors.New("unknown configuration key")

// Get returns the value at a dotted key such as "master.url".
func (c *Config) Get(key string) (any, error) {
	tree, err := c.tree()
	if err != nil {
		return nil, err
	}

	var node any = tree
	for _, part := range strings.Split(key, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
		}
		if node, ok = m[part]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
		}
	}
	return node, nil
}

// Set parses value as YAML and stores it at a dotted key. The result must
// still decode into Config, so type mismatches are rejected.
func (c *Config) Set(key, value string) error {
	if !slices.Contains(Keys(), key) {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	var parsed any
	if err := yaml.Unmarshal([]byte(value), &parsed); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	tree, err := c.tree()
	if err != nil {
		return err
	}
	parts := strings.Split(key, ".")
	m := tree
	for _, part := range parts[:len(parts)-1] {
		next, ok := m[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[part] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = parsed

	data, err := yaml.Marshal(tree)
	if err != nil {
		return err
	}
	next := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(next); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	next.configPath = c.configPath
	next.Dev = c.Dev
	*c = *next
	return nil
}

// List returns every leaf setting as sorted "key=value" pairs.
func (c *Config) List() ([]string, error) {
	tree, err := c.tree()
	if err != nil {
		return nil, err
	}
	var out []string
	flatten("", tree, &out)
	slices.Sort(out)
	return out, nil
}

// Keys returns every settable dotted key.
func Keys() []string {
	full := Default()
	full.Master.User = "x"
	full.Master.CertFile = "x"
	full.Master.MinVersion = "x"
	full.Logging.File = "x"
	full.Storage.Directory = "x"
	full.Probe.WorkspaceID = 1

	pairs, _ := full.List()
	keys := make([]string, 0, len(pairs))
	for _, p := range pairs {
		k, _, _ := strings.Cut(p, "=")
		keys = append(keys, k)
	}
	return keys
}

func (c *Config) tree() (map[string]any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	tree := map[string]any{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return tree, nil
}

func flatten(prefix string, node any, out *[]string) {
	m, ok := node.(map[string]any)
	if !ok {
		*out = append(*out, fmt.Sprintf("%s=%v", prefix, node))
		return
	}
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		flatten(key, v, out)
	}
}
