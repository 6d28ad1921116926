package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vaultrelay/relay-api/internal/api"
	apiMiddleware "github.com/vaultrelay/relay-api/internal/api/middleware"
)

// setupRouter configures the executor's HTTP surface: the encrypted task
// intake for the submission side plus the health and cleanup endpoints for
// operators.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	taskHandler := api.NewTaskHandler(app.receiver)
	healthHandler := api.NewHealthHandler(app.recordStore)
	adminHandler := api.NewAdminHandler(app.janitor)

	r.Post("/encrypted-task", taskHandler.ReceiveTask)

	r.Get("/healthz", healthHandler.Health)
	r.Post("/admin/cleanup", adminHandler.Cleanup)

	return r
}
