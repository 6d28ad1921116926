package pipeline

import (
	"context"
	"log/slog"

	"github.com/vaultrelay/relay-api/internal/domain"
	"github.com/vaultrelay/relay-api/internal/platform/logger"
	"github.com/vaultrelay/relay-api/internal/store"
)

// TaskQueue hands accepted task ids to the worker pool.
type TaskQueue interface {
	Enqueue(ctx context.Context, id string) error
}

// SubmissionReply is the receiver's answer to an inbound submission.
// Accepted is true when the task is queued (new or resumed) and false when a
// stored terminal outcome is being replayed.
type SubmissionReply struct {
	ID           string
	Status       domain.Status
	ErrorMessage string
	Accepted     bool
}

// Receiver handles inbound encrypted task submissions idempotently: exactly
// one durable record per task id, side effects at most once, repeated
// deliveries answered from the stored record.
type Receiver struct {
	store  store.TaskRecordStore
	queue  TaskQueue
	logger *slog.Logger
}

// NewReceiver creates a Receiver.
func NewReceiver(recordStore store.TaskRecordStore, queue TaskQueue, log *slog.Logger) (*Receiver, error) {
	if recordStore == nil {
		return nil, ErrNilStore
	}
	if queue == nil {
		return nil, ErrNilQueue
	}
	if log == nil {
		return nil, ErrNilLogger
	}

	return &Receiver{
		store:  recordStore,
		queue:  queue,
		logger: log.With("component", "receiver"),
	}, nil
}

// Receive processes one inbound {id, encryptedPayload} submission.
//
// A new id is persisted at RECEIVED and queued. A finished id replays the
// stored outcome without reprocessing. An unfinished id is re-enqueued,
// which is a no-op while the record is in flight and resumes the chain when
// a previous process crashed before finishing it.
func (r *Receiver) Receive(ctx context.Context, id, encryptedPayload string) (*SubmissionReply, error) {
	log := logger.FromContextOrDefault(ctx, r.logger)

	record, err := domain.NewTaskRecord(id, encryptedPayload, "")
	if err != nil {
		return nil, err
	}

	stored, created, err := r.store.InsertOrGet(ctx, record)
	if err != nil {
		return nil, err
	}

	if created {
		if err := r.queue.Enqueue(ctx, stored.ID); err != nil {
			// The record is persisted; a later submission or startup
			// recovery resumes it.
			log.Warn("accepted task could not be queued",
				"task_id", stored.ID,
				"error", err)
			return nil, err
		}
		log.Info("accepted encrypted task", "task_id", stored.ID)
		return &SubmissionReply{
			ID:       stored.ID,
			Status:   stored.Status,
			Accepted: true,
		}, nil
	}

	if stored.IsTerminal() {
		log.Debug("duplicate submission for finished task",
			"task_id", stored.ID,
			"status", string(stored.Status))
		return &SubmissionReply{
			ID:           stored.ID,
			Status:       stored.Status,
			ErrorMessage: stored.ErrorMessage,
			Accepted:     false,
		}, nil
	}

	if err := r.queue.Enqueue(ctx, stored.ID); err != nil {
		return nil, err
	}
	log.Debug("duplicate submission for task in progress",
		"task_id", stored.ID,
		"status", string(stored.Status))
	return &SubmissionReply{
		ID:       stored.ID,
		Status:   stored.Status,
		Accepted: true,
	}, nil
}
