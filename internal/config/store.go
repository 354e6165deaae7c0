package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"
)

// Store owns the live configuration and writes it back on every change.
// A Store with an empty path keeps changes in memory only.
type Store struct {
	mu   sync.Mutex
	path string
	cfg  Config
}

// NewStore wraps cfg. Changes are persisted to path when it is non-empty.
func NewStore(path string, cfg *Config) *Store {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Store{path: path, cfg: *cfg}
}

// OpenStore loads path, falling back to defaults when the file does not exist yet.
func OpenStore(path string) (*Store, error) {
	cfg, err := Load(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg = DefaultConfig()
	}
	return NewStore(path, cfg), nil
}

// Path returns the file backing the store, or "" for an in-memory store.
func (s *Store) Path() string {
	return s.path
}

// Get returns a copy of the current configuration.
func (s *Store) Get() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Update applies fn to the configuration and persists the result.
// The in-memory value is only replaced when persisting succeeds.
func (s *Store) Update(fn func(*Config)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg
	fn(&next)

	if s.path != "" {
		if err := Save(s.path, &next); err != nil {
			return fmt.Errorf("persisting config: %w", err)
		}
	}
	s.cfg = next
	return nil
}
