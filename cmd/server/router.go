package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/scry-notes/internal/api"
	"github.com/phrazzld/scry-notes/internal/api/middleware"
	"github.com/phrazzld/scry-notes/internal/api/shared"
	"github.com/phrazzld/scry-notes/internal/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthResponse is served by GET /health.
type healthResponse struct {
	Status  string `json:"status"`
	Active  int    `json:"active_tasks"`
	Running int    `json:"running_tasks"`
	Tracked int    `json:"tracked_tasks"`
}

// setupRouter creates the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Trace(app.logger))

	heartbeat := time.Duration(app.config.Server.HeartbeatSeconds) * time.Second
	taskHandler := api.NewTaskHandler(app.scheduler, app.logger, heartbeat)
	authMiddleware := middleware.NewAuthMiddleware(app.config.Auth.JWTSecret)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)
		taskHandler.Routes(r)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		shared.RespondWithJSON(w, r, http.StatusOK, healthResponse{
			Status:  "ok",
			Active:  app.registry.CountActive(),
			Running: app.registry.CountByStatus(domain.TaskStatusRunning),
			Tracked: app.registry.Len(),
		})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
