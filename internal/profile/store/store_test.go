package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"immimate/internal/clb"
	"immimate/internal/profile/models"
	"immimate/internal/profile/service"
	"immimate/pkg/platform/sentinel"
)

var (
	_ service.Store = (*InMemoryStore)(nil)
	_ service.Store = (*PostgresStore)(nil)
)

func newProfile(user uuid.UUID, at time.Time) *models.Profile {
	return &models.Profile{
		ID:        uuid.New(),
		UserID:    user,
		UserEmail: "ana@example.com",
		FullName:  "Ana",
		Primary: models.LanguageResult{
			TestType: clb.CELPIP,
			Levels:   map[clb.Skill]clb.Level{clb.Speaking: 9},
			Original: map[clb.Skill]string{clb.Speaking: "9"},
		},
		CreatedAt: at,
	}
}

func TestInMemoryStoreLatest(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	user := uuid.New()

	_, err := s.Latest(ctx, user)
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	first := newProfile(user, t0)
	second := newProfile(user, t0.Add(time.Minute))
	require.NoError(t, s.Create(ctx, second))
	require.NoError(t, s.Create(ctx, first))

	got, err := s.Latest(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	_, err = s.Latest(ctx, uuid.New())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
