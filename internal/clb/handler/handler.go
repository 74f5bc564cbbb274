package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"immimate/internal/clb"
	"immimate/internal/clb/service"
	"immimate/pkg/platform/httputil"
	"immimate/pkg/requestcontext"
)

// Service defines the conversion operations the handler needs.
type Service interface {
	Tables(ctx context.Context) (*clb.Table, error)
	Options(ctx context.Context) ([]service.TestOptions, error)
	Convert(ctx context.Context, testType, skill string, raw clb.RawScore) (*service.Conversion, error)
	CacheEnabled() bool
}

// Handler serves the public language test endpoints. None require
// authentication.
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

// Register mounts the endpoints under /language-tests.
func (h *Handler) Register(r chi.Router) {
	r.Route("/language-tests", func(r chi.Router) {
		r.Get("/conversions", h.HandleConversions)
		r.Get("/options", h.HandleOptions)
		r.Get("/convert", h.HandleConvertQuery)
		r.Post("/convert", h.HandleConvert)
	})
}

// HandleConversions handles GET /language-tests/conversions.
func (h *Handler) HandleConversions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	table, err := h.service.Tables(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to serve conversion table",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromTable(table, h.service.CacheEnabled()))
}

// HandleOptions handles GET /language-tests/options.
func (h *Handler) HandleOptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	opts, err := h.service.Options(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to serve score options",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromOptions(opts))
}

// HandleConvertQuery handles GET /language-tests/convert?testType=&skill=&score=.
func (h *Handler) HandleConvertQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.convert(w, r, ConvertRequest{
		TestType: q.Get("testType"),
		Skill:    q.Get("skill"),
		Score:    clb.Scalar(q.Get("score")),
	})
}

// HandleConvert handles POST /language-tests/convert.
func (h *Handler) HandleConvert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeJSON[ConvertRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	h.convert(w, r, *req)
}

func (h *Handler) convert(w http.ResponseWriter, r *http.Request, req ConvertRequest) {
	ctx := r.Context()

	result, err := h.service.Convert(ctx, req.TestType, req.Skill, req.Score)
	if err != nil {
		h.logger.WarnContext(ctx, "score conversion failed",
			"request_id", requestcontext.RequestID(ctx),
			"test_type", req.TestType,
			"skill", req.Skill,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromConversion(result))
}
