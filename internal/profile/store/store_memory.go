package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"immimate/internal/profile/models"
	"immimate/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	profiles map[uuid.UUID][]*models.Profile
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{profiles: make(map[uuid.UUID][]*models.Profile)}
}

func (s *InMemoryStore) Create(_ context.Context, p *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *p
	s.profiles[p.UserID] = append(s.profiles[p.UserID], &stored)
	return nil
}

// Latest returns the user's most recent submission.
func (s *InMemoryStore) Latest(_ context.Context, userID uuid.UUID) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.Profile
	for _, p := range s.profiles[userID] {
		if latest == nil || !p.CreatedAt.Before(latest.CreatedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("profile for user %s: %w", userID, sentinel.ErrNotFound)
	}
	out := *latest
	return &out, nil
}
