// Package janitor keeps the task_records table healthy: it collapses
// duplicate rows left behind by concurrent inserts and purges failed records
// once their retention window has passed. Sweeps run on a timer and can also
// be triggered on demand through RunOnce.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vaultrelay/relay-api/internal/store"
)

// Common errors for janitor constructors.
var (
	ErrNilStore  = errors.New("task record store cannot be nil")
	ErrNilLogger = errors.New("logger cannot be nil")
)

// Config holds configuration for the janitor.
type Config struct {
	// SweepInterval is the time between periodic sweeps. Zero or negative
	// disables the periodic sweep; RunOnce still works.
	SweepInterval time.Duration

	// FailedRetention is how long ERROR records are kept before a sweep
	// purges them.
	FailedRetention time.Duration
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		SweepInterval:   time.Hour,
		FailedRetention: 72 * time.Hour,
	}
}

// Report summarizes one sweep.
type Report struct {
	// Inspected is the number of rows examined by duplicate detection.
	Inspected int64

	// DuplicatesRemoved is the number of superseded duplicate rows deleted.
	DuplicatesRemoved int64

	// FailedPurged is the number of expired ERROR records deleted.
	FailedPurged int64
}

// Janitor runs cleanup sweeps against the task record store.
type Janitor struct {
	store  store.TaskRecordStore
	config Config
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Janitor. A zero FailedRetention falls back to the default;
// a zero SweepInterval disables the periodic sweep.
func New(recordStore store.TaskRecordStore, config Config, log *slog.Logger) (*Janitor, error) {
	if recordStore == nil {
		return nil, ErrNilStore
	}
	if log == nil {
		return nil, ErrNilLogger
	}

	if config.FailedRetention <= 0 {
		config.FailedRetention = DefaultConfig().FailedRetention
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Janitor{
		store:  recordStore,
		config: config,
		logger: log.With("component", "janitor"),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// RunOnce performs a single sweep: duplicate removal first, then the purge
// of expired failed records.
func (j *Janitor) RunOnce(ctx context.Context) (*Report, error) {
	inspected, removed, err := j.store.RemoveDuplicates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to remove duplicate task records: %w", err)
	}

	cutoff := time.Now().UTC().Add(-j.config.FailedRetention)
	purged, err := j.store.PurgeFailedBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to purge expired failed records: %w", err)
	}

	report := &Report{
		Inspected:         inspected,
		DuplicatesRemoved: removed,
		FailedPurged:      purged,
	}

	if removed > 0 || purged > 0 {
		j.logger.Info("cleanup sweep finished",
			"inspected", report.Inspected,
			"duplicates_removed", report.DuplicatesRemoved,
			"failed_purged", report.FailedPurged)
	} else {
		j.logger.Debug("cleanup sweep found nothing to do",
			"inspected", report.Inspected)
	}

	return report, nil
}

// Start launches the periodic sweep. It is a no-op when the sweep interval
// is zero or negative.
func (j *Janitor) Start() {
	if j.config.SweepInterval <= 0 {
		j.logger.Info("periodic cleanup disabled")
		return
	}

	j.logger.Info("starting periodic cleanup",
		"sweep_interval", j.config.SweepInterval,
		"failed_retention", j.config.FailedRetention)

	j.wg.Add(1)
	go j.sweep()
}

// Stop halts the periodic sweep and waits for an in-progress sweep to
// finish. It is safe to call when Start was never called.
func (j *Janitor) Stop() {
	j.cancel()
	j.wg.Wait()
	j.logger.Info("janitor stopped")
}

// sweep runs RunOnce on every tick until the janitor is stopped.
func (j *Janitor) sweep() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-j.ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.RunOnce(j.ctx); err != nil {
				j.logger.Error("cleanup sweep failed", "error", err)
			}
		}
	}
}
