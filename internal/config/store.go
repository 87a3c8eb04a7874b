package config

import "sync/atomic"

// Store holds the current immutable Config snapshot behind an atomic
// pointer so updateConfig (§4.10) can swap it without a global lock.
type Store struct {
	ptr atomic.Pointer[Config]
}

// NewStore seeds a Store with the given snapshot.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.ptr.Store(cfg)
	return s
}

// Get returns the current snapshot. Callers must not mutate it.
func (s *Store) Get() *Config {
	return s.ptr.Load()
}

// Replace atomically installs a new validated snapshot.
func (s *Store) Replace(cfg *Config) {
	s.ptr.Store(cfg)
}
