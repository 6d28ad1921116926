package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vaultrelay/relay-api/internal/domain"
	"github.com/vaultrelay/relay-api/internal/platform/logger"
)

// Common errors for pipeline constructors
var (
	ErrNilStore          = errors.New("task record store cannot be nil")
	ErrNilCodec          = errors.New("codec cannot be nil")
	ErrNilAnalyzer       = errors.New("analyzer cannot be nil")
	ErrNilCallbackSender = errors.New("callback sender cannot be nil")
	ErrNilEmitter        = errors.New("event emitter cannot be nil")
	ErrNilPoster         = errors.New("poster cannot be nil")
	ErrNilQueue          = errors.New("task queue cannot be nil")
	ErrNilProcessor      = errors.New("processor cannot be nil")
	ErrNilLogger         = errors.New("logger cannot be nil")
	ErrEmptyCallbackURL  = errors.New("callback URL cannot be empty")
)

// ResultPoster abstracts the outbound dispatcher for callback delivery.
type ResultPoster interface {
	// PostJSON delivers the JSON-encoded body to url with retry and
	// admission control applied.
	PostJSON(ctx context.Context, url string, in, out any) error
}

// callbackRequest is the wire shape posted to the submission side's result
// endpoint.
type callbackRequest struct {
	DataID       string `json:"dataId"`
	Content      string `json:"content,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	Status       string `json:"status"`
}

// CallbackSender posts task outcomes to the submission side. Delivery runs
// through the outbound dispatcher, so the pool, gate and retry policy apply.
type CallbackSender struct {
	poster ResultPoster
	url    string
	logger *slog.Logger
}

// NewCallbackSender creates a sender posting to the given result endpoint.
func NewCallbackSender(poster ResultPoster, callbackURL string, log *slog.Logger) (*CallbackSender, error) {
	if poster == nil {
		return nil, ErrNilPoster
	}
	if callbackURL == "" {
		return nil, ErrEmptyCallbackURL
	}
	if log == nil {
		return nil, ErrNilLogger
	}

	return &CallbackSender{
		poster: poster,
		url:    callbackURL,
		logger: log.With("component", "callback_sender"),
	}, nil
}

// SendResult posts the encrypted result of a finished record. The status
// field carries the record's status at post time.
func (s *CallbackSender) SendResult(ctx context.Context, record *domain.TaskRecord) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	payload := callbackRequest{
		DataID:  record.ID,
		Content: record.ResultPayload,
		Status:  string(record.Status),
	}

	if err := s.poster.PostJSON(ctx, s.url, payload, nil); err != nil {
		return fmt.Errorf("posting result callback: %w", err)
	}

	log.Debug("result callback delivered",
		"task_id", record.ID,
		"status", string(record.Status))
	return nil
}

// SendFailure notifies the submission side that the task failed.
func (s *CallbackSender) SendFailure(ctx context.Context, id, message string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	payload := callbackRequest{
		DataID:       id,
		ErrorMessage: message,
		Status:       string(domain.StatusError),
	}

	if err := s.poster.PostJSON(ctx, s.url, payload, nil); err != nil {
		return fmt.Errorf("posting failure callback: %w", err)
	}

	log.Debug("failure callback delivered", "task_id", id)
	return nil
}
