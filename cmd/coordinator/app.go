package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/vaultrelay/relay-api/internal/config"
	"github.com/vaultrelay/relay-api/internal/crypto"
	"github.com/vaultrelay/relay-api/internal/dispatch"
	"github.com/vaultrelay/relay-api/internal/events"
	"github.com/vaultrelay/relay-api/internal/janitor"
	"github.com/vaultrelay/relay-api/internal/platform/postgres"
	"github.com/vaultrelay/relay-api/internal/relay"
	"github.com/vaultrelay/relay-api/internal/store"
)

// application holds the coordinator's shared dependencies so startup wiring
// and shutdown cleanup live in one place.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	recordStore store.TaskRecordStore
	dispatcher  *dispatch.Dispatcher
	relay       relay.Service
	janitor     *janitor.Janitor
}

// newApplication wires the coordinator: payload codec, record store, outbound
// dispatcher, relay service, and the cleanup janitor. Background components
// are started before returning.
func newApplication(cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	codec, err := crypto.NewCodec(cfg.Crypto.Key, cfg.Crypto.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize payload codec: %w", err)
	}

	app.recordStore = postgres.NewPostgresTaskRecordStore(db, logger)

	app.dispatcher = dispatch.NewDispatcher(cfg.Pool, cfg.RateLimit, cfg.Retry, logger)

	emitter := events.NewInMemoryEventEmitter(logger)
	emitter.RegisterHandler(events.NewLogAlertHandler(logger))

	app.relay, err = relay.NewService(
		app.recordStore,
		codec,
		app.dispatcher,
		cfg.Remote.TaskURL(),
		emitter,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create relay service: %w", err)
	}

	app.janitor, err = janitor.New(app.recordStore, janitor.Config{
		SweepInterval:   time.Duration(cfg.Cleanup.IntervalMinutes) * time.Minute,
		FailedRetention: time.Duration(cfg.Cleanup.ErrorRetentionHours) * time.Hour,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create janitor: %w", err)
	}
	app.janitor.Start()

	logger.Info("coordinator initialized")
	return app, nil
}

// Run starts the HTTP server and blocks until shutdown completes.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// cleanup releases resources in dependency order: pending task deliveries
// finish first, then the dispatcher they post through drains, then the
// janitor stops, then the database closes.
func (app *application) cleanup() {
	if app.relay != nil {
		app.relay.Close()
	}

	if app.dispatcher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.dispatcher.Close(ctx); err != nil {
			app.logger.Error("error draining dispatcher", "error", err)
		}
	}

	if app.janitor != nil {
		app.janitor.Stop()
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}

	app.logger.Info("coordinator shutdown completed")
}
