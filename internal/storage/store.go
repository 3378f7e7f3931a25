package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const entryFileExtension = ".json"

// Well-known keys.
const (
	KeyAuth         = "auth"
	KeyUserSettings = "user-settings"
)

// Storage errors.
var (
	ErrNotFound   = errors.New("storage entry not found")
	ErrExpired    = errors.New("storage entry expired")
	ErrInvalidKey = errors.New("storage key cannot be empty")
	ErrDisabled   = errors.New("storage is disabled")
)

// FileStore keeps one JSON file per key in a directory.
// It is safe for concurrent use within one process.
type FileStore struct {
	directory  string
	enabled    bool
	ttlSeconds int

	mu sync.RWMutex
}

// NewFileStore creates a store in directory, creating it when missing.
// A disabled store answers every call with ErrDisabled.
func NewFileStore(directory string, enabled bool, ttlSeconds int) (*FileStore, error) {
	if !enabled {
		return &FileStore{enabled: false}, nil
	}
	if directory == "" {
		return nil, errors.New("storage directory cannot be empty")
	}
	if ttlSeconds <= 0 {
		ttlSeconds = DefaultTTLSeconds
	}
	if err := os.MkdirAll(directory, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &FileStore{
		directory:  directory,
		enabled:    true,
		ttlSeconds: ttlSeconds,
	}, nil
}

// Get returns the entry for key. Expired entries are removed and reported as
// ErrExpired.
func (s *FileStore) Get(key string) (*Entry, error) {
	if err := s.check(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	path := s.keyToFilePath(key)
	data, err := os.ReadFile(path)
	s.mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read storage file: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal storage entry: %w", err)
	}

	if entry.IsExpired() {
		s.mu.Lock()
		_ = os.Remove(path)
		s.mu.Unlock()
		return nil, ErrExpired
	}
	return &entry, nil
}

// GetJSON decodes the value stored under key into out.
func (s *FileStore) GetJSON(key string, out any) error {
	entry, err := s.Get(key)
	if err != nil {
		return err
	}
	if err := entry.Decode(out); err != nil {
		return fmt.Errorf("failed to decode %q: %w", key, err)
	}
	return nil
}

// Set stores data under key with the default TTL.
func (s *FileStore) Set(key string, data json.RawMessage) error {
	return s.SetWithTTL(key, data, s.ttlSeconds)
}

// SetJSON marshals v and stores it under key with the default TTL.
func (s *FileStore) SetJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}
	return s.Set(key, data)
}

// SetWithTTL stores data under key, expiring after ttlSeconds.
func (s *FileStore) SetWithTTL(key string, data json.RawMessage, ttlSeconds int) error {
	if err := s.check(key); err != nil {
		return err
	}

	entryData, err := json.MarshalIndent(NewEntry(key, data, ttlSeconds), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal storage entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.keyToFilePath(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, entryData, 0o600); err != nil {
		return fmt.Errorf("failed to write storage file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename storage file: %w", err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *FileStore) Delete(key string) error {
	if err := s.check(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.keyToFilePath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete storage file: %w", err)
	}
	return nil
}

// Clear removes every entry.
func (s *FileStore) Clear() error {
	if !s.enabled {
		return ErrDisabled
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.eachEntryLocked(func(path string, _ *Entry) error {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove storage file %s: %w", filepath.Base(path), err)
		}
		return nil
	})
}

// CleanupExpired removes expired entries and returns how many went.
func (s *FileStore) CleanupExpired() (int, error) {
	if !s.enabled {
		return 0, ErrDisabled
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	err := s.eachEntryLocked(func(path string, entry *Entry) error {
		if entry != nil && entry.IsExpired() {
			if os.Remove(path) == nil {
				removed++
			}
		}
		return nil
	})
	return removed, err
}

// Count returns the number of entries, expired ones included.
func (s *FileStore) Count() (int, error) {
	if !s.enabled {
		return 0, ErrDisabled
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	err := s.eachEntryLocked(func(string, *Entry) error {
		count++
		return nil
	})
	return count, err
}

// IsEnabled reports whether the store persists anything.
func (s *FileStore) IsEnabled() bool {
	return s.enabled
}

// Directory returns the storage directory.
func (s *FileStore) Directory() string {
	return s.directory
}

// TTL returns the default TTL in seconds.
func (s *FileStore) TTL() int {
	return s.ttlSeconds
}

func (s *FileStore) check(key string) error {
	if !s.enabled {
		return ErrDisabled
	}
	if key == "" {
		return ErrInvalidKey
	}
	return nil
}

// eachEntryLocked calls fn for every entry file. entry is nil when the file
// cannot be read or parsed.
func (s *FileStore) eachEntryLocked(fn func(path string, entry *Entry) error) error {
	files, err := os.ReadDir(s.directory)
	if err != nil {
		return fmt.Errorf("failed to read storage directory: %w", err)
	}

	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != entryFileExtension {
			continue
		}
		path := filepath.Join(s.directory, f.Name())

		var entry *Entry
		if data, readErr := os.ReadFile(path); readErr == nil {
			var e Entry
			if json.Unmarshal(data, &e) == nil {
				entry = &e
			}
		}
		if err := fn(path, entry); err != nil {
			return err
		}
	}
	return nil
}

// keyToFilePath maps key to a file name that is safe on every platform.
func (s *FileStore) keyToFilePath(key string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "@", "_").Replace(key)
	return filepath.Join(s.directory, safe+entryFileExtension)
}
