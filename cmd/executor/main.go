// Package main implements the executor service: the execution side of the
// encrypted task relay. It receives encrypted tasks, runs them through the
// decrypt-analyze-encrypt chain, and posts the sealed results back to the
// submission side.
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
	app, err := initializeApp(context.Background())
	if err != nil {
		log.Fatalf("Failed to initialize executor: %v", err)
	}

	if err := app.Run(context.Background()); err != nil {
		log.Fatalf("Executor terminated with error: %v", err)
	}
}

// initializeApp loads configuration, sets up logging and the database, and
// wires the application dependencies.
func initializeApp(ctx context.Context) (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	slog.Info("executor configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"callback_url", cfg.Remote.CallbackURL(),
		"analysis_provider", cfg.Analysis.Provider)

	db, err := setupDatabase(cfg, appLogger)
	if err != nil {
		return nil, err
	}

	app, err := newApplication(ctx, cfg, appLogger, db)
	if err != nil {
		// The application owns the connection only once construction succeeds.
		if closeErr := db.Close(); closeErr != nil {
			appLogger.Error("failed to close database after init failure", "error", closeErr)
		}
		return nil, err
	}

	return app, nil
}
