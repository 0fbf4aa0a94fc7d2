// Package server assembles the HTTP routes.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/unclebandit/outreach-scheduler/internal/controller"
	"github.com/unclebandit/outreach-scheduler/internal/handler"
	"github.com/unclebandit/outreach-scheduler/internal/logger"
	"github.com/unclebandit/outreach-scheduler/internal/metrics"
	"github.com/unclebandit/outreach-scheduler/internal/middleware"
)

type Deps struct {
	Outreach *controller.OutreachController
	Tracking *handler.TrackingHandler
	APIKey   string
	Limiter  middleware.Limiter
	Logger   *slog.Logger
	// Health reports whether backing stores are reachable.
	Health func(ctx context.Context) error
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(d.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if d.Health != nil {
			if err := d.Health(r.Context()); err != nil {
				logger.FromContextWithErr(r.Context(), err).Warn("health check failed")
				controller.WriteDetail(w, r, http.StatusServiceUnavailable, "unhealthy")
				return
			}
		}
		controller.WriteJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Get("/tracking-pixel/{id}", d.Tracking.TrackOpen)

	r.Route("/stable", func(r chi.Router) {
		r.Use(middleware.APIKey(d.APIKey))
		if d.Limiter != nil {
			r.Use(middleware.RateLimit(d.Limiter))
		}
		r.Post("/start-outreach", d.Outreach.StartOutreach)
		r.Get("/scheduling-task-status/{id}", d.Outreach.RunStatus)
	})

	r.Route("/deprecated", func(r chi.Router) {
		r.Use(middleware.APIKey(d.APIKey))
		r.Post("/start_outreach", d.Outreach.LegacyStartOutreach)
	})

	return r
}
