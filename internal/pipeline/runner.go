package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vaultrelay/relay-api/internal/domain"
	"github.com/vaultrelay/relay-api/internal/platform/logger"
	"github.com/vaultrelay/relay-api/internal/store"
)

// ErrQueueFull is returned by Enqueue when the bounded queue cannot take
// another task. The record is already persisted, so a later submission or a
// restart recovery will resume it.
var ErrQueueFull = errors.New("task queue is full")

// RecordProcessor advances one task record through the processing chain.
type RecordProcessor interface {
	Process(ctx context.Context, id string) error
}

// RunnerConfig holds configuration for the pipeline runner
type RunnerConfig struct {
	// WorkerCount determines how many concurrent workers process records
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory queue
	QueueSize int
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount: 4,
		QueueSize:   64,
	}
}

// Runner owns the executor's background processing: a bounded queue of task
// ids, a worker pool consuming it, and an in-flight set covering ids that
// are queued or being processed. The set is what makes duplicate deliveries
// cheap: enqueueing an id that is already in flight is a no-op.
type Runner struct {
	store     store.TaskRecordStore
	processor RecordProcessor
	queue     chan string
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	config    RunnerConfig
	logger    *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	stopped  bool
}

// NewRunner creates a Runner. Zero config values fall back to the defaults.
func NewRunner(recordStore store.TaskRecordStore, processor RecordProcessor, config RunnerConfig, log *slog.Logger) (*Runner, error) {
	if recordStore == nil {
		return nil, ErrNilStore
	}
	if processor == nil {
		return nil, ErrNilProcessor
	}
	if log == nil {
		return nil, ErrNilLogger
	}

	defaults := DefaultRunnerConfig()
	if config.WorkerCount <= 0 {
		config.WorkerCount = defaults.WorkerCount
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		store:     recordStore,
		processor: processor,
		queue:     make(chan string, config.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
		config:    config,
		logger:    log.With("component", "pipeline_runner"),
		inflight:  make(map[string]struct{}),
	}, nil
}

// Enqueue hands a task id to the worker pool. Ids already queued or being
// processed are skipped, so a record is owned by at most one worker at a
// time no matter how often it is submitted.
func (r *Runner) Enqueue(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return fmt.Errorf("%w: runner stopped", ErrQueueFull)
	}
	if _, ok := r.inflight[id]; ok {
		return nil
	}

	select {
	case r.queue <- id:
		r.inflight[id] = struct{}{}
		return nil
	default:
		return fmt.Errorf("%w: %d tasks queued", ErrQueueFull, len(r.queue))
	}
}

// InFlight reports whether the id is currently queued or being processed.
func (r *Runner) InFlight(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inflight[id]
	return ok
}

// Start recovers unfinished records and begins processing.
func (r *Runner) Start() error {
	if err := r.Recover(context.Background()); err != nil {
		return fmt.Errorf("failed to recover task records: %w", err)
	}

	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	return nil
}

// Stop gracefully shuts down the runner. In-progress records finish their
// current step sequence; ids still queued are dropped here and picked up by
// recovery on the next start, since the records themselves persist.
func (r *Runner) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	close(r.queue)
}

// Recover re-enqueues every non-terminal record so crashes never strand
// work. ENCRYPTED records re-enter callback delivery; the others resume the
// chain from their persisted status.
func (r *Runner) Recover(ctx context.Context) error {
	records, err := r.store.ListByStatus(ctx,
		domain.StatusReceived,
		domain.StatusDecrypted,
		domain.StatusProcessing,
		domain.StatusProcessed,
		domain.StatusEncrypted,
	)
	if err != nil {
		return fmt.Errorf("failed to list unfinished task records: %w", err)
	}

	if len(records) == 0 {
		r.logger.Debug("no unfinished task records to recover")
		return nil
	}

	requeued := 0
	for _, record := range records {
		if err := r.Enqueue(ctx, record.ID); err != nil {
			r.logger.Error("failed to requeue task record, queue is full",
				"task_id", record.ID,
				"status", string(record.Status))
			continue
		}
		requeued++
	}

	r.logger.Info("recovered unfinished task records",
		"found", len(records),
		"requeued", requeued)
	return nil
}

// worker processes task ids from the queue
func (r *Runner) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("stopping worker", "worker_id", id)
			return

		case taskID, ok := <-r.queue:
			if !ok {
				r.logger.Debug("queue closed, stopping worker", "worker_id", id)
				return
			}
			r.process(taskID, id)
		}
	}
}

// process handles one record end to end and releases its in-flight slot.
func (r *Runner) process(taskID string, workerID int) {
	defer func() {
		r.mu.Lock()
		delete(r.inflight, taskID)
		r.mu.Unlock()
	}()

	log := r.logger.With(
		"task_id", taskID,
		"worker_id", workerID,
	)

	// A fresh context: once a worker owns a record the attempt runs to
	// completion, shutdown or not.
	ctx := logger.WithLogger(context.Background(), log)

	log.Info("processing task record")

	if err := r.processor.Process(ctx, taskID); err != nil {
		log.Error("task processing failed", "error", err)
		return
	}

	log.Info("task processing complete")
}
