package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/vaultrelay/relay-api/internal/analysis"
	"github.com/vaultrelay/relay-api/internal/config"
	"github.com/vaultrelay/relay-api/internal/crypto"
	"github.com/vaultrelay/relay-api/internal/dispatch"
	"github.com/vaultrelay/relay-api/internal/events"
	"github.com/vaultrelay/relay-api/internal/janitor"
	"github.com/vaultrelay/relay-api/internal/pipeline"
	"github.com/vaultrelay/relay-api/internal/platform/gemini"
	"github.com/vaultrelay/relay-api/internal/platform/postgres"
	"github.com/vaultrelay/relay-api/internal/store"
)

// application holds the executor's shared dependencies so startup wiring and
// shutdown cleanup live in one place.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	recordStore store.TaskRecordStore
	dispatcher  *dispatch.Dispatcher
	receiver    *pipeline.Receiver
	runner      *pipeline.Runner
	janitor     *janitor.Janitor
}

// newApplication wires the executor: payload codec, record store, outbound
// dispatcher, callback sender, analyzer, processing pipeline, and the cleanup
// janitor. Starting the runner also recovers any records a previous process
// left unfinished.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
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

	callbacks, err := pipeline.NewCallbackSender(app.dispatcher, cfg.Remote.CallbackURL(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create callback sender: %w", err)
	}

	analyzer, err := buildAnalyzer(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("analyzer initialized", "provider", cfg.Analysis.Provider)

	processor, err := pipeline.NewProcessor(app.recordStore, codec, analyzer, callbacks, emitter, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create processor: %w", err)
	}

	app.runner, err = pipeline.NewRunner(app.recordStore, processor, pipeline.RunnerConfig{
		WorkerCount: cfg.Pipeline.WorkerCount,
		QueueSize:   cfg.Pipeline.QueueSize,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline runner: %w", err)
	}

	app.receiver, err = pipeline.NewReceiver(app.recordStore, app.runner, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create receiver: %w", err)
	}

	app.janitor, err = janitor.New(app.recordStore, janitor.Config{
		SweepInterval:   time.Duration(cfg.Cleanup.IntervalMinutes) * time.Minute,
		FailedRetention: time.Duration(cfg.Cleanup.ErrorRetentionHours) * time.Hour,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create janitor: %w", err)
	}

	if err := app.runner.Start(); err != nil {
		return nil, fmt.Errorf("failed to start pipeline runner: %w", err)
	}
	app.janitor.Start()

	logger.Info("executor initialized",
		"worker_count", cfg.Pipeline.WorkerCount,
		"queue_size", cfg.Pipeline.QueueSize)
	return app, nil
}

// buildAnalyzer selects the configured analysis provider.
func buildAnalyzer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (analysis.Analyzer, error) {
	switch cfg.Analysis.Provider {
	case "gemini":
		analyzer, err := gemini.NewGeminiAnalyzer(ctx, cfg.Analysis, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize gemini analyzer: %w", err)
		}
		return analyzer, nil
	default:
		return analysis.NewEchoAnalyzer(), nil
	}
}

// Run starts the HTTP server and blocks until shutdown completes.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// cleanup releases resources in dependency order: workers finish their
// current records first (they still post callbacks), then the dispatcher
// drains, then the janitor stops, then the database closes.
func (app *application) cleanup() {
	if app.runner != nil {
		app.runner.Stop()
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

	app.logger.Info("executor shutdown completed")
}
