//go:build integration

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"immimate/internal/clb"
	draftmodels "immimate/internal/draft/models"
	draftstore "immimate/internal/draft/store"
	"immimate/pkg/platform/sentinel"
	"immimate/pkg/platform/tx"
	"immimate/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *PostgresStore
	drafts   *draftstore.PostgresStore
	runner   *tx.Runner
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = NewPostgres(s.postgres.DB)
	s.drafts = draftstore.NewPostgres(s.postgres.DB)
	s.runner = tx.NewRunner(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "user_immigration_profiles", "profile_drafts"))
}

func (s *PostgresStoreSuite) TestLatestReturnsNewest() {
	ctx := context.Background()
	user := uuid.New()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.store.Latest(ctx, user)
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.Require().NoError(s.store.Create(ctx, newProfile(user, t0)))
	newer := newProfile(user, t0.Add(time.Hour))
	s.Require().NoError(s.store.Create(ctx, newer))

	got, err := s.store.Latest(ctx, user)
	s.Require().NoError(err)
	s.Equal(newer.ID, got.ID)
	s.Equal(clb.Level(9), got.Primary.Levels[clb.Speaking])
}

func (s *PostgresStoreSuite) TestSubmissionAndDraftCleanupShareTransaction() {
	ctx := context.Background()
	user := uuid.New()
	now := time.Now().UTC()
	s.Require().NoError(s.drafts.Upsert(ctx, &draftmodels.Draft{
		ID:             uuid.New(),
		UserID:         user,
		FormID:         "profile-form",
		FormData:       map[string]any{draftmodels.KeyFormID: "profile-form"},
		CreatedAt:      now,
		LastModifiedAt: now,
	}))

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, newProfile(user, now)); err != nil {
			return err
		}
		if _, err := s.drafts.DeleteAll(ctx, user); err != nil {
			return err
		}
		return errors.New("abort")
	})
	s.EqualError(err, "abort")

	_, err = s.store.Latest(ctx, user)
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.drafts.Latest(ctx, user)
	s.NoError(err, "rolled back delete keeps the draft")

	s.Require().NoError(s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, newProfile(user, now)); err != nil {
			return err
		}
		_, err := s.drafts.DeleteAll(ctx, user)
		return err
	}))
	_, err = s.store.Latest(ctx, user)
	s.NoError(err)
	_, err = s.drafts.Latest(ctx, user)
	s.ErrorIs(err, sentinel.ErrNotFound)
}
