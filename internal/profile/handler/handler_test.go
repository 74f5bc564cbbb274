package handler

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"immimate/internal/clb"
	clbservice "immimate/internal/clb/service"
	"immimate/internal/clb/source"
	draftmodels "immimate/internal/draft/models"
	draftservice "immimate/internal/draft/service"
	draftstore "immimate/internal/draft/store"
	"immimate/internal/profile/service"
	"immimate/internal/profile/store"
	"immimate/pkg/platform/sentinel"
	"immimate/pkg/testutil"
)

func TestSubmitProfileClearsDraft(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	drafts := draftstore.NewInMemoryStore()
	svc := service.New(store.NewInMemoryStore(), clbservice.New(source.Embedded{}, logger), logger,
		service.WithDraftCleaner(draftservice.New(drafts, logger)),
	)
	r := chi.NewRouter()
	New(svc, logger).Register(r)

	ctx := context.Background()
	user := uuid.New()
	now := time.Now().UTC()
	require.NoError(t, drafts.Upsert(ctx, &draftmodels.Draft{
		ID:             uuid.New(),
		UserID:         user,
		FormID:         "profile-form",
		FormData:       map[string]any{draftmodels.KeyFormID: "profile-form"},
		CreatedAt:      now,
		LastModifiedAt: now,
	}))

	body := `{
		"fullName": "Ana",
		"primaryLanguageTest": {
			"testType": "CELPIP",
			"scores": {
				"speaking": {"value": 9, "label": "9 (CLB 9)"},
				"listening": 10,
				"reading": "8",
				"writing": 7
			}
		},
		"tookSecondaryLanguageTest": false
	}`
	rr := testutil.Do(r, testutil.WithUser(testutil.NewRawRequest(http.MethodPost, "/profiles", body), user, "ana@example.com"))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	resp := testutil.Decode[SubmitResponse](t, rr)
	assert.True(t, resp.Success)
	assert.NotEqual(t, uuid.Nil, resp.ProfileID)
	require.NotNil(t, resp.Profile)
	assert.Equal(t, map[clb.Skill]clb.Level{
		clb.Speaking: 9, clb.Listening: 10, clb.Reading: 8, clb.Writing: 7,
	}, resp.Profile.Primary.Levels)

	_, err := drafts.Latest(ctx, user)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	rr = testutil.Do(r, testutil.WithUser(testutil.NewJSONRequest(t, http.MethodGet, "/profiles/latest", nil), user, ""))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestSubmitProfileRejections(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	svc := service.New(store.NewInMemoryStore(), clbservice.New(source.Embedded{}, logger), logger)
	r := chi.NewRouter()
	New(svc, logger).Register(r)
	user := uuid.New()

	sameFamily := `{
		"primaryLanguageTest": {"testType": "TEF", "scores": {"speaking": "300", "listening": "300", "reading": "300", "writing": "300"}},
		"tookSecondaryLanguageTest": true,
		"secondaryLanguageTest": {"testType": "TCF", "scores": {"speaking": "400", "listening": "400", "reading": "400", "writing": "400"}}
	}`
	rr := testutil.Do(r, testutil.WithUser(testutil.NewRawRequest(http.MethodPost, "/profiles", sameFamily), user, ""))
	testutil.AssertError(t, rr, http.StatusBadRequest, "validation_error")

	rr = testutil.Do(r, testutil.WithUser(testutil.NewRawRequest(http.MethodPost, "/profiles", `{"primaryLanguageTest":`), user, ""))
	testutil.AssertError(t, rr, http.StatusBadRequest, "bad_request")

	rr = testutil.Do(r, testutil.NewRawRequest(http.MethodPost, "/profiles", `{}`))
	testutil.AssertError(t, rr, http.StatusUnauthorized, "unauthorized")

	rr = testutil.Do(r, testutil.WithUser(testutil.NewJSONRequest(t, http.MethodGet, "/profiles/latest", nil), user, ""))
	testutil.AssertError(t, rr, http.StatusNotFound, "not_found")
}
