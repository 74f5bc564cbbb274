// Package store holds the draft store implementations: in memory, PostgreSQL
// and Redis.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"immimate/internal/draft/models"
	"immimate/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	drafts map[uuid.UUID]map[string]*models.Draft
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{drafts: make(map[uuid.UUID]map[string]*models.Draft)}
}

// Upsert replaces the user's draft for d.FormID, keeping the original ID and
// CreatedAt. d is updated to match what was stored.
func (s *InMemoryStore) Upsert(_ context.Context, d *models.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	forms, ok := s.drafts[d.UserID]
	if !ok {
		forms = make(map[string]*models.Draft)
		s.drafts[d.UserID] = forms
	}
	if existing, ok := forms[d.FormID]; ok {
		d.ID = existing.ID
		d.CreatedAt = existing.CreatedAt
	}
	stored := *d
	stored.FormData = copyData(d.FormData)
	forms[d.FormID] = &stored
	return nil
}

func (s *InMemoryStore) Latest(_ context.Context, userID uuid.UUID) (*models.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.Draft
	for _, d := range s.drafts[userID] {
		if latest == nil || d.LastModifiedAt.After(latest.LastModifiedAt) {
			latest = d
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("draft for user %s: %w", userID, sentinel.ErrNotFound)
	}
	out := *latest
	out.FormData = copyData(latest.FormData)
	return &out, nil
}

func (s *InMemoryStore) Delete(_ context.Context, userID uuid.UUID, formID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts[userID], formID)
	return nil
}

func (s *InMemoryStore) DeleteAll(_ context.Context, userID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.drafts[userID])
	delete(s.drafts, userID)
	return n, nil
}

func copyData(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
