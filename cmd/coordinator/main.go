// Package main implements the coordinator service: the submission side of
// the encrypted task relay. It accepts plaintext payloads, encrypts and
// persists them, ships them to the execution side, and records the outcomes
// posted back.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"

	"github.com/vaultrelay/relay-api/internal/config"
	"github.com/vaultrelay/relay-api/internal/platform/logger"
)

func main() {
	app, err := initializeApp()
	if err != nil {
		log.Fatalf("Failed to initialize coordinator: %v", err)
	}

	if err := app.Run(context.Background()); err != nil {
		log.Fatalf("Coordinator terminated with error: %v", err)
	}
}

// initializeApp loads configuration, sets up logging and the database, and
// wires the application dependencies.
func initializeApp() (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	slog.Info("coordinator configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"task_url", cfg.Remote.TaskURL())

	db, err := setupDatabase(cfg, appLogger)
	if err != nil {
		return nil, err
	}

	app, err := newApplication(cfg, appLogger, db)
	if err != nil {
		// The application owns the connection only once construction succeeds.
		if closeErr := db.Close(); closeErr != nil {
			appLogger.Error("failed to close database after init failure", "error", closeErr)
		}
		return nil, err
	}

	return app, nil
}
