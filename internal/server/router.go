package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cloo-solutions/tenantpal/internal/api"
	"github.com/cloo-solutions/tenantpal/internal/api/handlers"
	"github.com/cloo-solutions/tenantpal/internal/api/middleware"
	"github.com/cloo-solutions/tenantpal/internal/metrics"
)

type RouterConfig struct {
	Logger        *zap.Logger
	CrewHandler   *handlers.CrewHandler
	SearchHandler *handlers.SearchHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog(cfg.Logger))
	r.Use(metrics.Middleware())
	r.Use(middleware.JSONBody(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if cfg.CrewHandler != nil {
			r.Post("/run-crew", cfg.CrewHandler.RunCrew)
		}
		if cfg.SearchHandler != nil {
			r.Post("/search", cfg.SearchHandler.Search)
			r.Get("/collections", cfg.SearchHandler.ListCollections)
		}
	})

	return r
}
