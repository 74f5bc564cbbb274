package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"immimate/internal/audit"
	"immimate/internal/draft/models"
	"immimate/internal/draft/service/mocks"
	dErrors "immimate/pkg/domain-errors"
	"immimate/pkg/platform/sentinel"
	"immimate/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,AuditPublisher
type DraftServiceSuite struct {
	suite.Suite
	ctx     context.Context
	now     time.Time
	store   *mocks.MockStore
	auditor *mocks.MockAuditPublisher
	service *Service
}

func TestDraftServiceSuite(t *testing.T) {
	suite.Run(t, new(DraftServiceSuite))
}

func (s *DraftServiceSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.ctx = requestcontext.WithRequestID(context.Background(), "req-1")
	s.now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.store = mocks.NewMockStore(ctrl)
	s.auditor = mocks.NewMockAuditPublisher(ctrl)
	s.service = New(s.store, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithAuditPublisher(s.auditor),
		WithClock(func() time.Time { return s.now }),
	)
}

func (s *DraftServiceSuite) TestSaveStoresDraftAndEmitsEvent() {
	user := uuid.New()
	data := map[string]any{models.KeyFormID: "form-1", "fullName": "A"}

	s.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, d *models.Draft) error {
		s.Equal(user, d.UserID)
		s.Equal("form-1", d.FormID)
		s.Equal("a@example.com", d.UserEmail)
		s.Equal(data, d.FormData)
		s.Equal(s.now, d.LastModifiedAt)
		s.Contains(d.ClientDevice, "Firefox")
		return nil
	})
	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e audit.Event) error {
		s.Equal(audit.EventDraftSaved, e.Action)
		s.Equal(user, e.UserID)
		s.Equal("form-1", e.FormID)
		s.Equal("req-1", e.RequestID)
		return nil
	})

	draft, err := s.service.Save(s.ctx, SaveCommand{
		UserID:    user,
		Email:     "a@example.com",
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
		FormData:  data,
	})
	s.Require().NoError(err)
	s.Equal("form-1", draft.FormID)
}

func (s *DraftServiceSuite) TestSaveValidation() {
	_, err := s.service.Save(s.ctx, SaveCommand{FormData: map[string]any{models.KeyFormID: "f"}})
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = s.service.Save(s.ctx, SaveCommand{UserID: uuid.New(), FormData: map[string]any{"x": 1}})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *DraftServiceSuite) TestSaveStoreFailure() {
	s.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(errors.New("connection reset"))

	_, err := s.service.Save(s.ctx, SaveCommand{UserID: uuid.New(), FormData: map[string]any{models.KeyFormID: "f"}})
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *DraftServiceSuite) TestSaveSurvivesAuditFailure() {
	s.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)
	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("queue full"))

	_, err := s.service.Save(s.ctx, SaveCommand{UserID: uuid.New(), FormData: map[string]any{models.KeyFormID: "f"}})
	s.NoError(err)
}

func (s *DraftServiceSuite) TestLatest() {
	user := uuid.New()
	s.store.EXPECT().Latest(gomock.Any(), user).Return(&models.Draft{FormID: "f"}, nil)
	draft, err := s.service.Latest(s.ctx, user)
	s.Require().NoError(err)
	s.Equal("f", draft.FormID)

	s.store.EXPECT().Latest(gomock.Any(), user).Return(nil, sentinel.ErrNotFound)
	_, err = s.service.Latest(s.ctx, user)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	s.store.EXPECT().Latest(gomock.Any(), user).Return(nil, errors.New("boom"))
	_, err = s.service.Latest(s.ctx, user)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	_, err = s.service.Latest(s.ctx, uuid.Nil)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *DraftServiceSuite) TestDiscardOneOrAll() {
	user := uuid.New()
	s.store.EXPECT().Delete(gomock.Any(), user, "f").Return(nil)
	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	s.Require().NoError(s.service.Discard(s.ctx, user, "f"))

	s.store.EXPECT().DeleteAll(gomock.Any(), user).Return(2, nil)
	s.Require().NoError(s.service.Discard(s.ctx, user, ""))
}

func (s *DraftServiceSuite) TestDiscardAllQuietWhenNothingRemoved() {
	user := uuid.New()
	s.store.EXPECT().DeleteAll(gomock.Any(), user).Return(0, nil)
	n, err := s.service.DiscardAll(s.ctx, user)
	s.Require().NoError(err)
	s.Zero(n)
}

func TestDeviceLabel(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "empty", header: "", want: ""},
		{
			name:   "desktop firefox",
			header: "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			want:   "Firefox 121.0 on Linux x86_64",
		},
		{
			name:   "bot",
			header: "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
			want:   "bot",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeviceLabel(tt.header))
		})
	}

	label := DeviceLabel("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1")
	require.NotEmpty(t, label)
	assert.Contains(t, label, "(mobile)")
}
