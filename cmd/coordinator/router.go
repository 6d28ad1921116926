package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vaultrelay/relay-api/internal/api"
	apiMiddleware "github.com/vaultrelay/relay-api/internal/api/middleware"
)

// setupRouter configures the coordinator's HTTP surface: task submission and
// status on the caller-facing side, the result callback endpoint for the
// execution side, and the health and cleanup endpoints for operators.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	relayHandler := api.NewRelayHandler(app.relay)
	healthHandler := api.NewHealthHandler(app.recordStore)
	adminHandler := api.NewAdminHandler(app.janitor)

	r.Post("/tasks", relayHandler.SubmitTask)
	r.Get("/tasks/{id}", relayHandler.GetTaskStatus)
	r.Post("/task-results", relayHandler.HandleTaskResult)

	r.Get("/healthz", healthHandler.Health)
	r.Post("/admin/cleanup", adminHandler.Cleanup)

	return r
}
