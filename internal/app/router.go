package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ganacsi/ganacsi/internal/assistant"
	"github.com/ganacsi/ganacsi/internal/auth"
	"github.com/ganacsi/ganacsi/internal/observability"
	"github.com/ganacsi/ganacsi/internal/platform/httpx"
	"github.com/ganacsi/ganacsi/internal/sales"
	"github.com/ganacsi/ganacsi/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Issuer           *auth.TokenIssuer
	AuthHandler      *auth.Handler
	SalesHandler     *sales.Handler
	AssistantHandler *assistant.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if params.AuthHandler != nil {
			r.With(AuthRateLimit(params.Config)).Route("/auth", params.AuthHandler.MountRoutes)
		}
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(params.Issuer))
			if params.SalesHandler != nil {
				r.Route("/sales", params.SalesHandler.MountRoutes)
			}
			if params.AssistantHandler != nil {
				r.Route("/assistant", params.AssistantHandler.MountRoutes)
			}
			if params.JobHandler != nil {
				r.With(auth.RequireRole(auth.RoleAdmin)).Route("/jobs", params.JobHandler.MountRoutes)
			}
		})
	})

	return r
}
