package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"immimate/internal/audit"
	"immimate/internal/clb"
	clbservice "immimate/internal/clb/service"
	"immimate/internal/profile/models"
	dErrors "immimate/pkg/domain-errors"
	"immimate/pkg/platform/sentinel"
	"immimate/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, p *models.Profile) error
	Latest(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
}

// Converter maps raw scores to CLB levels.
type Converter interface {
	Convert(ctx context.Context, testType, skill string, raw clb.RawScore) (*clbservice.Conversion, error)
}

// DraftCleaner removes the saved drafts of a user once the form is submitted.
type DraftCleaner interface {
	DiscardAll(ctx context.Context, userID uuid.UUID) (int, error)
}

// Transactor runs fn in one transaction shared by the stores.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// SubmitCommand is one completed profile form from a signed-in user.
type SubmitCommand struct {
	UserID     uuid.UUID
	Email      string
	Submission models.Submission
}

type Service struct {
	store     Store
	converter Converter
	drafts    DraftCleaner
	tx        Transactor
	auditor   AuditPublisher
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

type Option func(*Service)

func WithDraftCleaner(d DraftCleaner) Option {
	return func(s *Service) {
		s.drafts = d
	}
}

// WithTransactor makes storing the profile and clearing drafts atomic. Without
// it draft cleanup is best effort.
func WithTransactor(t Transactor) Option {
	return func(s *Service) {
		s.tx = t
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(store Store, converter Converter, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:     store,
		converter: converter,
		logger:    logger,
		tracer:    otel.Tracer("immimate/profile"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit converts every language score to its CLB level, stores the profile
// and clears the user's drafts. A score without a conversion rejects the
// whole submission.
func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (*models.Profile, error) {
	ctx, span := s.tracer.Start(ctx, "profile.Submit", trace.WithAttributes(
		attribute.String("primary_test", cmd.Submission.Primary.TestType),
		attribute.Bool("secondary", cmd.Submission.TookSecondaryLanguageTest),
	))
	defer span.End()

	if cmd.UserID == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "sign in to submit a profile")
	}
	if err := validateSecondary(cmd.Submission); err != nil {
		return nil, err
	}

	primary, err := s.convert(ctx, "primary", cmd.Submission.Primary)
	if err != nil {
		return nil, err
	}
	var secondary *models.LanguageResult
	if cmd.Submission.TookSecondaryLanguageTest {
		secondary, err = s.convert(ctx, "secondary", *cmd.Submission.Secondary)
		if err != nil {
			return nil, err
		}
	}

	profile := &models.Profile{
		ID:        uuid.New(),
		UserID:    cmd.UserID,
		UserEmail: cmd.Email,
		FullName:  strings.TrimSpace(cmd.Submission.FullName),
		Primary:   *primary,
		Secondary: secondary,
		Details:   cmd.Submission.Details,
		CreatedAt: s.now().UTC(),
	}
	if err := s.persist(ctx, profile); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failed")
		s.logger.ErrorContext(ctx, "failed to save profile", "user_id", cmd.UserID, "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save profile")
	}

	s.emit(ctx, audit.Event{
		Action:  audit.EventProfileSubmitted,
		UserID:  cmd.UserID,
		Email:   cmd.Email,
		Subject: profile.ID.String(),
	})
	s.logger.InfoContext(ctx, "profile submitted",
		"user_id", cmd.UserID,
		"profile_id", profile.ID,
		"primary_test", primary.TestType,
	)
	return profile, nil
}

func (s *Service) persist(ctx context.Context, profile *models.Profile) error {
	if s.tx == nil {
		if err := s.store.Create(ctx, profile); err != nil {
			return err
		}
		s.clearDrafts(ctx, profile.UserID)
		return nil
	}
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, profile); err != nil {
			return err
		}
		if s.drafts == nil {
			return nil
		}
		n, err := s.drafts.DiscardAll(ctx, profile.UserID)
		if err != nil {
			return fmt.Errorf("clear drafts: %w", err)
		}
		s.logger.InfoContext(ctx, "cleared drafts after submission", "user_id", profile.UserID, "count", n)
		return nil
	})
}

func (s *Service) clearDrafts(ctx context.Context, userID uuid.UUID) {
	if s.drafts == nil {
		return
	}
	n, err := s.drafts.DiscardAll(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to clear drafts after submission", "user_id", userID, "error", err)
		return
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "cleared drafts after submission", "user_id", userID, "count", n)
	}
}

// Latest returns the user's most recent submission.
func (s *Service) Latest(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	if userID == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "sign in to view your profile")
	}
	profile, err := s.store.Latest(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "no profile submitted")
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load profile", "user_id", userID, "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load profile")
	}
	return profile, nil
}

func (s *Service) convert(ctx context.Context, which string, test models.LanguageTest) (*models.LanguageResult, error) {
	tt, ok := clb.ParseTestType(test.TestType)
	if !ok {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s language test type is not supported", which))
	}
	out := &models.LanguageResult{
		TestType: tt,
		Levels:   make(map[clb.Skill]clb.Level, len(clb.AllSkills)),
		Original: make(map[clb.Skill]string, len(clb.AllSkills)),
	}
	for _, skill := range clb.AllSkills {
		raw := test.Scores[skill]
		if raw.IsZero() {
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s %s score is required", which, skill))
		}
		conv, err := s.converter.Convert(ctx, string(tt), string(skill), raw)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeConversionMiss) {
				return nil, dErrors.New(dErrors.CodeValidation,
					fmt.Sprintf("%s %s score %q has no CLB level", which, skill, raw.Value()))
			}
			return nil, err
		}
		out.Levels[skill] = conv.Level
		out.Original[skill] = raw.Label()
	}
	return out, nil
}

// validateSecondary requires a complete secondary test in the other language
// family whenever one is declared.
func validateSecondary(sub models.Submission) error {
	if !sub.TookSecondaryLanguageTest {
		return nil
	}
	sec := sub.Secondary
	if sec == nil || strings.TrimSpace(sec.TestType) == "" {
		return dErrors.New(dErrors.CodeValidation, "secondary language test type is required when a secondary test is indicated")
	}
	for _, skill := range clb.AllSkills {
		if sec.Scores[skill].IsZero() {
			return dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("secondary %s score is required when a secondary test is indicated", skill))
		}
	}
	primary, _ := clb.ParseTestType(sub.Primary.TestType)
	secondary, _ := clb.ParseTestType(sec.TestType)
	if clb.SameLanguageFamily(primary, secondary) {
		return dErrors.New(dErrors.CodeValidation, "secondary language test must assess the other official language")
	}
	return nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	event.Timestamp = s.now()
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", event.Action, "error", err)
	}
}
