package audit

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Store is an append-only event sink.
type Store interface {
	Append(ctx context.Context, events ...Event) error
}

type InMemoryStore struct {
	mu     sync.RWMutex
	events map[uuid.UUID][]Event
	total  int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[uuid.UUID][]Event)}
}

func (s *InMemoryStore) Append(_ context.Context, events ...Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		s.events[e.UserID] = append(s.events[e.UserID], e)
	}
	s.total += len(events)
	return nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID uuid.UUID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event{}, s.events[userID]...), nil
}

// Len returns the number of events appended so far.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}
