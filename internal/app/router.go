package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/vzcourier/vzcourier-backend/internal/observability"
	"github.com/vzcourier/vzcourier-backend/internal/platform/httpx"
	pricesheethttp "github.com/vzcourier/vzcourier-backend/internal/pricesheet/http"
	"github.com/vzcourier/vzcourier-backend/jobs"
)

// HealthChecker reports whether a backing service is reachable.
type HealthChecker func(r *http.Request) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	PriceSheetHandler *pricesheethttp.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
	// Checks run on every health probe, keyed by dependency name.
	Checks map[string]HealthChecker
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewRouter constructs the chi.Router with API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		for name, check := range params.Checks {
			if resp.Checks == nil {
				resp.Checks = make(map[string]string, len(params.Checks))
			}
			if err := check(r); err != nil {
				if params.Logger != nil {
					params.Logger.Warn("health check failed", slog.String("dependency", name), slog.Any("error", err))
				}
				resp.Checks[name] = "down"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "up"
		}
		httpx.JSON(w, status, resp)
	})

	r.Handle("/metrics", params.Metrics.Handler())

	if params.PriceSheetHandler != nil {
		r.Route("/api/price-sheets", params.PriceSheetHandler.MountRoutes)
	}

	if params.JobHandler != nil {
		r.Route("/api/jobs", params.JobHandler.MountRoutes)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Message(w, http.StatusNotFound, "Route not found")
	})

	return r
}
