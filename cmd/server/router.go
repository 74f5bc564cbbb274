package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"

	clbhandler "immimate/internal/clb/handler"
	drafthandler "immimate/internal/draft/handler"
	"immimate/internal/platform/metrics"
	"immimate/internal/platform/middleware"
	profilehandler "immimate/internal/profile/handler"
	"immimate/pkg/platform/httputil"
)

// HealthCheck reports whether one backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

type routerDeps struct {
	logger      *slog.Logger
	validator   middleware.TokenValidator
	corsOrigins []string
	metrics     *metrics.Metrics
	gatherer    prometheus.Gatherer
	health      map[string]HealthCheck

	conversions *clbhandler.Handler
	drafts      *drafthandler.Handler
	profiles    *profilehandler.Handler
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestContext)
	r.Use(chimw.RealIP)
	r.Use(middleware.AccessLog(d.logger))
	r.Use(chimw.Recoverer)
	if d.metrics != nil {
		r.Use(d.metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", handleHealth(d.health))
	if d.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(d.gatherer))
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(d.validator, d.logger))
			d.conversions.Register(r)
		})
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(d.validator, d.logger))
			d.drafts.Register(r)
			d.profiles.Register(r)
		})
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func handleHealth(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
