package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"immimate/internal/audit"
	"immimate/internal/draft/models"
	dErrors "immimate/pkg/domain-errors"
	"immimate/pkg/platform/sentinel"
	"immimate/pkg/requestcontext"
)

// Store persists drafts. Latest returns sentinel.ErrNotFound when the user
// has none.
type Store interface {
	Upsert(ctx context.Context, d *models.Draft) error
	Latest(ctx context.Context, userID uuid.UUID) (*models.Draft, error)
	Delete(ctx context.Context, userID uuid.UUID, formID string) error
	DeleteAll(ctx context.Context, userID uuid.UUID) (int, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// SaveCommand is one draft save from a signed-in user.
type SaveCommand struct {
	UserID    uuid.UUID
	Email     string
	UserAgent string
	FormData  map[string]any
}

// Service keeps the latest form draft per user and form.
type Service struct {
	store   Store
	auditor AuditPublisher
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

type Option func(*Service)

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

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func New(store Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: logger,
		tracer: otel.Tracer("immimate/draft"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save stores cmd.FormData as the user's draft for its _formId.
func (s *Service) Save(ctx context.Context, cmd SaveCommand) (*models.Draft, error) {
	formID := models.FormIDOf(cmd.FormData)
	ctx, span := s.tracer.Start(ctx, "draft.Save", trace.WithAttributes(
		attribute.String("form_id", formID),
		attribute.Int("fields", len(cmd.FormData)),
	))
	defer span.End()

	if cmd.UserID == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "sign in to save drafts on the server")
	}
	if formID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, models.KeyFormID+" is required")
	}

	now := s.now().UTC()
	draft := &models.Draft{
		ID:             uuid.New(),
		UserID:         cmd.UserID,
		UserEmail:      cmd.Email,
		FormID:         formID,
		FormData:       cmd.FormData,
		ClientDevice:   DeviceLabel(cmd.UserAgent),
		CreatedAt:      now,
		LastModifiedAt: now,
	}
	if err := s.store.Upsert(ctx, draft); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failed")
		s.logger.ErrorContext(ctx, "failed to save draft",
			"user_id", cmd.UserID,
			"form_id", formID,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save draft")
	}

	s.emit(ctx, audit.Event{
		Action: audit.EventDraftSaved,
		UserID: cmd.UserID,
		Email:  cmd.Email,
		FormID: formID,
	})
	s.logger.InfoContext(ctx, "draft saved",
		"user_id", cmd.UserID,
		"form_id", formID,
		"device", draft.ClientDevice,
	)
	return draft, nil
}

// Latest returns the user's most recently modified draft.
func (s *Service) Latest(ctx context.Context, userID uuid.UUID) (*models.Draft, error) {
	ctx, span := s.tracer.Start(ctx, "draft.Latest")
	defer span.End()

	if userID == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "sign in to load drafts from the server")
	}
	draft, err := s.store.Latest(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "no draft found")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failed")
		s.logger.ErrorContext(ctx, "failed to load draft", "user_id", userID, "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load draft")
	}
	span.SetAttributes(attribute.String("form_id", draft.FormID))
	return draft, nil
}

// Discard deletes the draft for formID, or every draft of the user when
// formID is empty. Deleting a missing draft is not an error.
func (s *Service) Discard(ctx context.Context, userID uuid.UUID, formID string) error {
	ctx, span := s.tracer.Start(ctx, "draft.Discard", trace.WithAttributes(
		attribute.String("form_id", formID),
	))
	defer span.End()

	if userID == uuid.Nil {
		return dErrors.New(dErrors.CodeUnauthorized, "sign in to discard drafts on the server")
	}
	var err error
	if formID == "" {
		_, err = s.store.DeleteAll(ctx, userID)
	} else {
		err = s.store.Delete(ctx, userID, formID)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failed")
		s.logger.ErrorContext(ctx, "failed to discard draft",
			"user_id", userID,
			"form_id", formID,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to discard draft")
	}

	s.emit(ctx, audit.Event{
		Action: audit.EventDraftDiscarded,
		UserID: userID,
		FormID: formID,
	})
	s.logger.InfoContext(ctx, "draft discarded", "user_id", userID, "form_id", formID)
	return nil
}

// DiscardAll deletes every draft of the user, typically after a profile has
// been submitted, and returns how many were removed.
func (s *Service) DiscardAll(ctx context.Context, userID uuid.UUID) (int, error) {
	n, err := s.store.DeleteAll(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("delete drafts of %s: %w", userID, err)
	}
	if n > 0 {
		s.emit(ctx, audit.Event{Action: audit.EventDraftDiscarded, UserID: userID, Reason: "profile_submitted"})
	}
	return n, nil
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

// DeviceLabel turns a User-Agent header into a short label such as
// "Firefox 121.0 on Linux x86_64". Unknown agents yield "".
func DeviceLabel(header string) string {
	if header == "" {
		return ""
	}
	ua := useragent.New(header)
	if ua.Bot() {
		return "bot"
	}
	browser, version := ua.Browser()
	label := browser
	if version != "" {
		label += " " + version
	}
	if os := ua.OS(); os != "" {
		label += " on " + os
	}
	if ua.Mobile() {
		label += " (mobile)"
	}
	return label
}
