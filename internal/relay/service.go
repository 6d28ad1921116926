package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/vaultrelay/relay-api/internal/crypto"
	"github.com/vaultrelay/relay-api/internal/domain"
	"github.com/vaultrelay/relay-api/internal/events"
	"github.com/vaultrelay/relay-api/internal/platform/logger"
	"github.com/vaultrelay/relay-api/internal/store"
)

// Common errors for the relay service.
var (
	// ErrTaskNotFound indicates that the task record does not exist.
	ErrTaskNotFound = errors.New("task record not found")

	// ErrNilStore is returned when the service is created without a store.
	ErrNilStore = errors.New("task record store cannot be nil")

	// ErrNilCodec is returned when the service is created without a codec.
	ErrNilCodec = errors.New("codec cannot be nil")

	// ErrNilPoster is returned when the service is created without a poster.
	ErrNilPoster = errors.New("task poster cannot be nil")

	// ErrNilEmitter is returned when the service is created without an emitter.
	ErrNilEmitter = errors.New("event emitter cannot be nil")

	// ErrEmptyTaskURL is returned when no task endpoint URL is configured.
	ErrEmptyTaskURL = errors.New("task endpoint URL cannot be empty")
)

// ServiceError wraps errors from the relay service with context.
type ServiceError struct {
	// Operation is the operation that failed (e.g., "submit", "handle_result")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("relay service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("relay service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError.
// It returns known sentinel errors directly without wrapping.
func NewServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrTaskNotFound) {
		return ErrTaskNotFound
	}

	if errors.Is(err, store.ErrTaskRecordNotFound) {
		return ErrTaskNotFound
	}

	return &ServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// TaskPoster defines the outbound delivery interface for the service layer.
// The dispatcher satisfies it; tests substitute a recorder.
type TaskPoster interface {
	// PostJSON delivers the JSON-encoded body to url with retry and
	// admission control applied.
	PostJSON(ctx context.Context, url string, in, out any) error
}

// taskRequest is the wire shape shipped to the execution side's task
// endpoint.
type taskRequest struct {
	ID               string `json:"id"`
	EncryptedPayload string `json:"encryptedPayload"`
}

// SubmitRequest carries a plaintext task submission. ID is optional; when
// empty the service assigns one.
type SubmitRequest struct {
	ID        string
	Payload   string
	SourceTag string
}

// SubmitReply reports the stored identity and status for a submission.
type SubmitReply struct {
	ID     string
	Status domain.Status
}

// ResultNotice carries an outcome reported by the execution side. Exactly
// one of Content and ErrorMessage is expected to be set.
type ResultNotice struct {
	DataID       string
	Content      string
	ErrorMessage string
	Status       string
}

// Service provides submission-side task operations.
type Service interface {
	// Submit encrypts and persists a task, then ships it to the execution
	// side asynchronously. Resubmitting a known id replays the stored
	// status without shipping again.
	Submit(ctx context.Context, req SubmitRequest) (*SubmitReply, error)

	// HandleResult records an outcome reported by the execution side and
	// returns the record's resulting status. Callbacks for finished tasks
	// acknowledge the stored outcome without mutating the record.
	HandleResult(ctx context.Context, notice ResultNotice) (domain.Status, error)

	// Status retrieves the task record for a previously submitted task.
	Status(ctx context.Context, id string) (*domain.TaskRecord, error)

	// Close waits for in-flight deliveries to finish.
	Close()
}

// relayService implements the Service interface.
type relayService struct {
	store   store.TaskRecordStore
	codec   *crypto.Codec
	poster  TaskPoster
	taskURL string
	emitter events.EventEmitter
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewService creates a new relay Service.
// It returns an error if any of the required dependencies are nil.
func NewService(
	recordStore store.TaskRecordStore,
	codec *crypto.Codec,
	poster TaskPoster,
	taskURL string,
	emitter events.EventEmitter,
	log *slog.Logger,
) (Service, error) {
	if recordStore == nil {
		return nil, ErrNilStore
	}
	if codec == nil {
		return nil, ErrNilCodec
	}
	if poster == nil {
		return nil, ErrNilPoster
	}
	if taskURL == "" {
		return nil, ErrEmptyTaskURL
	}
	if emitter == nil {
		return nil, ErrNilEmitter
	}
	if log == nil {
		log = slog.Default()
	}

	return &relayService{
		store:   recordStore,
		codec:   codec,
		poster:  poster,
		taskURL: taskURL,
		emitter: emitter,
		logger:  log.With("component", "relay_service"),
	}, nil
}

// Submit encrypts the payload, persists the record, and hands delivery to a
// background goroutine tracked by Close.
func (s *relayService) Submit(ctx context.Context, req SubmitRequest) (*SubmitReply, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if req.Payload == "" {
		return nil, domain.NewValidationError("payload", "cannot be empty", domain.ErrEmptyPayload)
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}

	ciphertext, err := s.codec.Encrypt(req.Payload)
	if err != nil {
		log.Error("failed to encrypt task payload",
			"error", err,
			"task_id", id)
		return nil, NewServiceError("submit", "failed to encrypt task payload", err)
	}

	record, err := domain.NewTaskRecord(id, ciphertext, req.SourceTag)
	if err != nil {
		return nil, err
	}

	stored, created, err := s.store.InsertOrGet(ctx, record)
	if err != nil {
		log.Error("failed to persist task record",
			"error", err,
			"task_id", id)
		return nil, NewServiceError("submit", "failed to persist task record", err)
	}

	if !created {
		log.Debug("task already submitted, replaying stored status",
			"task_id", stored.ID,
			"status", stored.Status)
		return &SubmitReply{ID: stored.ID, Status: stored.Status}, nil
	}

	// Delivery is decoupled from the caller's context so an abandoned
	// request cannot abort a persisted task.
	shipCtx := logger.WithLogger(context.Background(), log.With("task_id", stored.ID))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.ship(shipCtx, stored.ID, stored.EncryptedPayload)
	}()

	log.Info("task accepted for relay",
		"task_id", stored.ID,
		"source_tag", stored.SourceTag)
	return &SubmitReply{ID: stored.ID, Status: stored.Status}, nil
}

// ship posts the encrypted task to the execution side. The dispatcher owns
// retries; when it gives up the record is failed and operators are alerted.
func (s *relayService) ship(ctx context.Context, id, encryptedPayload string) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	body := taskRequest{ID: id, EncryptedPayload: encryptedPayload}
	if err := s.poster.PostJSON(ctx, s.taskURL, body, nil); err != nil {
		log.Error("task delivery exhausted all attempts",
			"error", err,
			"task_id", id)

		message := fmt.Sprintf("task delivery failed: %v", err)
		if failErr := s.store.MarkFailed(ctx, id, message); failErr != nil {
			log.Error("failed to record delivery failure",
				"error", failErr,
				"task_id", id)
		}
		s.emit(ctx, events.KindTaskDeliveryExhausted, id, message)
		return
	}

	log.Info("task delivered to execution side", "task_id", id)
}

// HandleResult applies an outcome callback to the task record. Races with
// other writers are resolved by re-reading the record; once it is terminal
// the stored outcome wins and the callback is acknowledged as a duplicate.
func (s *relayService) HandleResult(ctx context.Context, notice ResultNotice) (domain.Status, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if notice.DataID == "" {
		return "", domain.NewValidationError("dataId", "cannot be empty", domain.ErrEmptyTaskID)
	}

	record, err := s.store.GetByID(ctx, notice.DataID)
	if err != nil {
		return "", NewServiceError("handle_result", "failed to load task record", err)
	}

	failed := notice.ErrorMessage != "" || domain.Status(notice.Status) == domain.StatusError

	for {
		if record.IsTerminal() {
			log.Debug("duplicate result callback for finished task",
				"task_id", record.ID,
				"status", record.Status)
			return record.Status, nil
		}

		var next domain.Status
		var writeErr error
		if failed {
			next = domain.StatusError
			writeErr = s.store.MarkFailed(ctx, record.ID, notice.ErrorMessage)
		} else {
			// Only records that can legally reach SENT are completed.
			probe := *record
			if err := probe.AdvanceTo(domain.StatusSent); err != nil {
				log.Error("task record cannot legally reach SENT, refusing result",
					"task_id", record.ID,
					"status", string(record.Status),
					"error", err)
				return "", err
			}
			next = domain.StatusSent
			writeErr = s.store.CompleteWithResult(ctx, record.ID, notice.Content)
		}

		if writeErr == nil {
			if failed {
				log.Warn("execution side reported task failure",
					"task_id", record.ID,
					"error_message", notice.ErrorMessage)
			} else {
				log.Info("task result recorded",
					"task_id", record.ID,
					"status", next)
			}
			return next, nil
		}

		if errors.Is(writeErr, store.ErrStaleStatus) {
			log.Debug("lost a status race recording task outcome, re-reading record",
				"task_id", record.ID)
			record, err = s.store.GetByID(ctx, record.ID)
			if err != nil {
				return "", NewServiceError("handle_result", "failed to reload task record", err)
			}
			continue
		}

		return "", NewServiceError("handle_result", "failed to record task outcome", writeErr)
	}
}

// Status retrieves the task record for the given id.
func (s *relayService) Status(ctx context.Context, id string) (*domain.TaskRecord, error) {
	if id == "" {
		return nil, domain.NewValidationError("id", "cannot be empty", domain.ErrEmptyTaskID)
	}

	record, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, NewServiceError("status", "failed to load task record", err)
	}
	return record, nil
}

// Close blocks until every delivery goroutine started by Submit has
// finished. Callers stop the HTTP surface before closing the service.
func (s *relayService) Close() {
	s.wg.Wait()
}

// emit publishes a pipeline event, logging instead of failing when the
// emitter rejects it.
func (s *relayService) emit(ctx context.Context, kind events.Kind, taskID, message string) {
	event := events.NewPipelineEvent(kind, taskID, message)
	if err := s.emitter.EmitEvent(ctx, event); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to emit pipeline event",
			"error", err,
			"event_kind", string(kind),
			"task_id", taskID)
	}
}
