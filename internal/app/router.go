package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taskdesk/taskdesk/internal/auth"
	"github.com/taskdesk/taskdesk/internal/filters"
	"github.com/taskdesk/taskdesk/internal/observability"
	"github.com/taskdesk/taskdesk/internal/platform/httpx"
	"github.com/taskdesk/taskdesk/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger        *slog.Logger
	Config        *Config
	Auth          auth.Middleware
	FilterHandler *filters.Handler
	JobHandler    *jobs.Handler
	Metrics       *observability.Metrics
}

// NewRouter constructs the chi.Router with taskdesk defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.FilterHandler != nil {
		r.Route("/filter", func(r chi.Router) {
			r.Use(params.Auth.Authenticate)
			params.FilterHandler.MountRoutes(r)
		})
	}
	return r
}
