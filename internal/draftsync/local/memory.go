// Package local provides draftsync.LocalStore implementations.
package local

import (
	"context"
	"sync"
)

// MemoryStore keeps entries in a map. It does not survive a restart and is
// meant for tests and short-lived processes.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]string
	fail    error
	writes  int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail != nil {
		return "", false, s.fail
	}
	v, ok := s.entries[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.entries[key] = value
	s.writes++
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	delete(s.entries, key)
	return nil
}

// Writes returns the number of successful Set calls.
func (s *MemoryStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// Fail makes every later call return err; nil restores normal behaviour.
func (s *MemoryStore) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}
