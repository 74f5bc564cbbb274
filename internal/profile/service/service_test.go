package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"immimate/internal/audit"
	"immimate/internal/clb"
	clbservice "immimate/internal/clb/service"
	"immimate/internal/clb/source"
	"immimate/internal/profile/models"
	"immimate/internal/profile/store"
	dErrors "immimate/pkg/domain-errors"
)

type fakeDrafts struct {
	calls []uuid.UUID
	err   error
}

func (f *fakeDrafts) DiscardAll(_ context.Context, userID uuid.UUID) (int, error) {
	f.calls = append(f.calls, userID)
	return 1, f.err
}

type failingStore struct{}

func (failingStore) Create(context.Context, *models.Profile) error { return errors.New("disk full") }
func (failingStore) Latest(context.Context, uuid.UUID) (*models.Profile, error) {
	return nil, errors.New("disk full")
}

type emptySource struct{}

func (emptySource) Load(context.Context) (*clb.Table, error) {
	return nil, errors.New("no table configured")
}

func scores(values ...string) map[clb.Skill]clb.RawScore {
	out := make(map[clb.Skill]clb.RawScore, len(values))
	for i, v := range values {
		out[clb.AllSkills[i]] = clb.Scalar(v)
	}
	return out
}

type ProfileServiceSuite struct {
	suite.Suite
	ctx     context.Context
	logger  *slog.Logger
	store   *store.InMemoryStore
	drafts  *fakeDrafts
	events  *audit.InMemoryStore
	pub     *audit.Publisher
	service *Service
	now     time.Time
}

func TestProfileServiceSuite(t *testing.T) {
	suite.Run(t, new(ProfileServiceSuite))
}

func (s *ProfileServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	s.store = store.NewInMemoryStore()
	s.drafts = &fakeDrafts{}
	s.events = audit.NewInMemoryStore()
	s.pub = audit.NewPublisher(s.events)
	s.now = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	s.service = New(s.store, clbservice.New(source.Embedded{}, s.logger), s.logger,
		WithDraftCleaner(s.drafts),
		WithAuditPublisher(s.pub),
		WithClock(func() time.Time { return s.now }),
	)
}

func (s *ProfileServiceSuite) TestSubmitConvertsScoresAndClearsDrafts() {
	user := uuid.New()
	sub := models.Submission{
		FullName: " Ana Silva ",
		Primary: models.LanguageTest{
			TestType: "IELTS",
			Scores: map[clb.Skill]clb.RawScore{
				clb.Speaking:  clb.Labelled("7.0", "7.0 (CLB 9)"),
				clb.Listening: clb.Scalar("8.5"),
				clb.Reading:   clb.Scalar("7.0"),
				clb.Writing:   clb.Scalar("7.0"),
			},
		},
		TookSecondaryLanguageTest: true,
		Secondary: &models.LanguageTest{
			TestType: "TEF",
			Scores:   scores("300", "300", "300", "300"),
		},
	}

	profile, err := s.service.Submit(s.ctx, SubmitCommand{UserID: user, Email: "ana@example.com", Submission: sub})
	s.Require().NoError(err)

	s.Equal("Ana Silva", profile.FullName)
	s.Equal(clb.IELTS, profile.Primary.TestType)
	s.Equal(clb.Level(9), profile.Primary.Levels[clb.Speaking])
	s.Equal("7.0 (CLB 9)", profile.Primary.Original[clb.Speaking])
	s.Require().NotNil(profile.Secondary)
	s.Equal(clb.Level(8), profile.Secondary.Levels[clb.Writing])
	s.Equal(s.now, profile.CreatedAt)

	stored, err := s.store.Latest(s.ctx, user)
	s.Require().NoError(err)
	s.Equal(profile.ID, stored.ID)
	s.Equal([]uuid.UUID{user}, s.drafts.calls)

	s.Require().NoError(s.pub.Flush(s.ctx))
	events, err := s.events.ListByUser(s.ctx, user)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(audit.EventProfileSubmitted, events[0].Action)
	s.Equal(profile.ID.String(), events[0].Subject)
}

func (s *ProfileServiceSuite) TestSubmitRejections() {
	user := uuid.New()
	valid := models.LanguageTest{TestType: "CELPIP", Scores: scores("9", "9", "9", "9")}

	tests := []struct {
		name string
		user uuid.UUID
		sub  models.Submission
		code dErrors.Code
	}{
		{name: "anonymous", user: uuid.Nil, sub: models.Submission{Primary: valid}, code: dErrors.CodeUnauthorized},
		{
			name: "unsupported test",
			user: user,
			sub:  models.Submission{Primary: models.LanguageTest{TestType: "TOEFL", Scores: scores("9", "9", "9", "9")}},
			code: dErrors.CodeValidation,
		},
		{
			name: "missing primary score",
			user: user,
			sub:  models.Submission{Primary: models.LanguageTest{TestType: "CELPIP", Scores: scores("9", "9", "9")}},
			code: dErrors.CodeValidation,
		},
		{
			name: "score outside the table",
			user: user,
			sub:  models.Submission{Primary: models.LanguageTest{TestType: "TEF", Scores: scores("999", "300", "300", "300")}},
			code: dErrors.CodeValidation,
		},
		{
			name: "secondary declared without a test",
			user: user,
			sub:  models.Submission{Primary: valid, TookSecondaryLanguageTest: true},
			code: dErrors.CodeValidation,
		},
		{
			name: "secondary missing a score",
			user: user,
			sub: models.Submission{Primary: valid, TookSecondaryLanguageTest: true, Secondary: &models.LanguageTest{
				TestType: "TCF", Scores: scores("400", "400", "400"),
			}},
			code: dErrors.CodeValidation,
		},
		{
			name: "secondary in the same family",
			user: user,
			sub: models.Submission{Primary: valid, TookSecondaryLanguageTest: true, Secondary: &models.LanguageTest{
				TestType: "IELTS", Scores: scores("7.0", "7.0", "7.0", "7.0"),
			}},
			code: dErrors.CodeValidation,
		},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.service.Submit(s.ctx, SubmitCommand{UserID: tt.user, Submission: tt.sub})
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, tt.code), "got %v", err)
		})
	}
	_, err := s.store.Latest(s.ctx, user)
	s.Error(err)
	s.Empty(s.drafts.calls)
}

func (s *ProfileServiceSuite) TestSecondaryIgnoredWhenNotDeclared() {
	sub := models.Submission{
		Primary:   models.LanguageTest{TestType: "CELPIP", Scores: scores("9", "9", "9", "9")},
		Secondary: &models.LanguageTest{TestType: "IELTS"},
	}
	profile, err := s.service.Submit(s.ctx, SubmitCommand{UserID: uuid.New(), Submission: sub})
	s.Require().NoError(err)
	s.Nil(profile.Secondary)
}

func (s *ProfileServiceSuite) TestDraftCleanupFailureDoesNotFailSubmission() {
	s.drafts.err = errors.New("redis down")
	sub := models.Submission{Primary: models.LanguageTest{TestType: "CELPIP", Scores: scores("9", "9", "9", "9")}}
	_, err := s.service.Submit(s.ctx, SubmitCommand{UserID: uuid.New(), Submission: sub})
	s.NoError(err)
}

func (s *ProfileServiceSuite) TestStoreFailure() {
	svc := New(failingStore{}, clbservice.New(source.Embedded{}, s.logger), s.logger)
	sub := models.Submission{Primary: models.LanguageTest{TestType: "CELPIP", Scores: scores("9", "9", "9", "9")}}
	_, err := svc.Submit(s.ctx, SubmitCommand{UserID: uuid.New(), Submission: sub})
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	_, err = svc.Latest(s.ctx, uuid.New())
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ProfileServiceSuite) TestMissingTableIsConfigurationError() {
	svc := New(s.store, clbservice.New(emptySource{}, s.logger), s.logger)
	sub := models.Submission{Primary: models.LanguageTest{TestType: "CELPIP", Scores: scores("9", "9", "9", "9")}}
	_, err := svc.Submit(s.ctx, SubmitCommand{UserID: uuid.New(), Submission: sub})
	s.True(dErrors.HasCode(err, dErrors.CodeConfiguration))
}

func (s *ProfileServiceSuite) TestLatest() {
	_, err := s.service.Latest(s.ctx, uuid.New())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.Latest(s.ctx, uuid.Nil)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

type recordingTx struct {
	runs int
}

func (r *recordingTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.runs++
	return fn(ctx)
}

func (s *ProfileServiceSuite) TestTransactorMakesDraftCleanupPartOfSubmission() {
	txr := &recordingTx{}
	svc := New(s.store, clbservice.New(source.Embedded{}, s.logger), s.logger,
		WithDraftCleaner(s.drafts),
		WithTransactor(txr),
	)
	sub := models.Submission{Primary: models.LanguageTest{TestType: "CELPIP", Scores: scores("9", "9", "9", "9")}}

	_, err := svc.Submit(s.ctx, SubmitCommand{UserID: uuid.New(), Submission: sub})
	s.Require().NoError(err)
	s.Equal(1, txr.runs)
	s.Len(s.drafts.calls, 1)

	s.drafts.err = errors.New("deadlock detected")
	_, err = svc.Submit(s.ctx, SubmitCommand{UserID: uuid.New(), Submission: sub})
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.Equal(2, txr.runs)
}
