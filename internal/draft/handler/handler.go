package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"immimate/internal/draft/models"
	"immimate/internal/draft/service"
	"immimate/pkg/platform/httputil"
	"immimate/pkg/requestcontext"
)

// Service defines the draft operations the handler needs.
type Service interface {
	Save(ctx context.Context, cmd service.SaveCommand) (*models.Draft, error)
	Latest(ctx context.Context, userID uuid.UUID) (*models.Draft, error)
	Discard(ctx context.Context, userID uuid.UUID, formID string) error
}

// Handler serves the signed-in user's form drafts.
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

// Register mounts the endpoints under /profiles/draft. Callers are expected
// to wrap r with authentication.
func (h *Handler) Register(r chi.Router) {
	r.Route("/profiles/draft", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Post("/", h.HandleSave)
		r.Delete("/", h.HandleDiscard)
	})
}

// HandleGet handles GET /profiles/draft.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	draft, err := h.service.Latest(ctx, requestcontext.UserID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromDraft(draft))
}

// HandleSave handles POST /profiles/draft. A body flagged with _discarded
// deletes the draft instead of saving it.
func (h *Handler) HandleSave(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	userID := requestcontext.UserID(ctx)

	body, ok := httputil.DecodeJSON[map[string]any](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	data := *body

	if models.IsDiscard(data) {
		if err := h.service.Discard(ctx, userID, models.FormIDOf(data)); err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, SuccessResponse{Success: true})
		return
	}

	draft, err := h.service.Save(ctx, service.SaveCommand{
		UserID:    userID,
		Email:     requestcontext.Email(ctx),
		UserAgent: requestcontext.UserAgent(ctx),
		FormData:  data,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "draft save rejected",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromSaved(draft))
}

// HandleDiscard handles DELETE /profiles/draft?formId=. Without formId every
// draft of the user is removed.
func (h *Handler) HandleDiscard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.service.Discard(ctx, requestcontext.UserID(ctx), r.URL.Query().Get("formId")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, SuccessResponse{Success: true})
}
