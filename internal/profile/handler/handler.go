package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"immimate/internal/profile/models"
	"immimate/internal/profile/service"
	"immimate/pkg/platform/httputil"
	"immimate/pkg/requestcontext"
)

type Service interface {
	Submit(ctx context.Context, cmd service.SubmitCommand) (*models.Profile, error)
	Latest(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts POST /profiles and GET /profiles/latest.
func (h *Handler) Register(r chi.Router) {
	r.Post("/profiles", h.HandleSubmit)
	r.Get("/profiles/latest", h.HandleLatest)
}

// SubmitResponse is the body of a successful POST /profiles.
type SubmitResponse struct {
	Success   bool            `json:"success"`
	ProfileID uuid.UUID       `json:"profileId"`
	CreatedAt time.Time       `json:"createdAt"`
	Profile   *models.Profile `json:"profile"`
}

// HandleSubmit handles POST /profiles.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeJSON[models.Submission](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	profile, err := h.service.Submit(ctx, service.SubmitCommand{
		UserID:     requestcontext.UserID(ctx),
		Email:      requestcontext.Email(ctx),
		Submission: *req,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "profile submission rejected",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, SubmitResponse{
		Success:   true,
		ProfileID: profile.ID,
		CreatedAt: profile.CreatedAt,
		Profile:   profile,
	})
}

// HandleLatest handles GET /profiles/latest.
func (h *Handler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	profile, err := h.service.Latest(ctx, requestcontext.UserID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profile)
}
