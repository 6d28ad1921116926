package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vaultrelay/relay-api/internal/analysis"
	"github.com/vaultrelay/relay-api/internal/crypto"
	"github.com/vaultrelay/relay-api/internal/domain"
	"github.com/vaultrelay/relay-api/internal/events"
	"github.com/vaultrelay/relay-api/internal/platform/logger"
	"github.com/vaultrelay/relay-api/internal/store"
)

// Processor advances a single task record through the processing chain.
// Every step is a status-guarded store transition, so two workers racing on
// one record resolve to a single winner; the loser re-reads and resumes from
// whatever status the winner left behind.
type Processor struct {
	store     store.TaskRecordStore
	codec     *crypto.Codec
	analyzer  analysis.Analyzer
	callbacks *CallbackSender
	emitter   events.EventEmitter
	logger    *slog.Logger
}

// NewProcessor creates a Processor with its collaborators.
func NewProcessor(
	recordStore store.TaskRecordStore,
	codec *crypto.Codec,
	analyzer analysis.Analyzer,
	callbacks *CallbackSender,
	emitter events.EventEmitter,
	log *slog.Logger,
) (*Processor, error) {
	if recordStore == nil {
		return nil, ErrNilStore
	}
	if codec == nil {
		return nil, ErrNilCodec
	}
	if analyzer == nil {
		return nil, ErrNilAnalyzer
	}
	if callbacks == nil {
		return nil, ErrNilCallbackSender
	}
	if emitter == nil {
		return nil, ErrNilEmitter
	}
	if log == nil {
		return nil, ErrNilLogger
	}

	return &Processor{
		store:     recordStore,
		codec:     codec,
		analyzer:  analyzer,
		callbacks: callbacks,
		emitter:   emitter,
		logger:    log.With("component", "processor"),
	}, nil
}

// Process runs the chain for one record until it reaches a terminal status.
// The record's persisted status decides the next step on every pass, so a
// record resumed after a crash picks up exactly where it stopped: a
// PROCESSING record goes straight to analysis without a second decryption.
func (p *Processor) Process(ctx context.Context, id string) error {
	log := logger.FromContextOrDefault(ctx, p.logger)

	for {
		record, err := p.store.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load task record: %w", err)
		}

		var stepErr error
		switch record.Status {
		case domain.StatusReceived:
			stepErr = p.decryptStep(ctx, record)
		case domain.StatusDecrypted:
			stepErr = p.store.MarkProcessing(ctx, id)
		case domain.StatusProcessing:
			stepErr = p.analyzeStep(ctx, record)
		case domain.StatusProcessed:
			stepErr = p.encryptStep(ctx, record)
		case domain.StatusEncrypted:
			stepErr = p.deliverStep(ctx, record)
		case domain.StatusSent:
			return nil
		case domain.StatusError:
			return nil
		default:
			return fmt.Errorf("%w: %q", domain.ErrInvalidStatus, record.Status)
		}

		if stepErr != nil {
			if errors.Is(stepErr, store.ErrStaleStatus) {
				// Another writer advanced the record; resume from its
				// current status.
				log.Debug("lost a status race, re-reading record",
					"task_id", id)
				continue
			}
			return stepErr
		}
	}
}

// decryptStep turns the request ciphertext into the working plaintext.
func (p *Processor) decryptStep(ctx context.Context, record *domain.TaskRecord) error {
	plaintext, err := p.codec.Decrypt(record.EncryptedPayload)
	if err != nil {
		return p.fail(ctx, record.ID, err.Error(), err)
	}

	return p.store.MarkDecrypted(ctx, record.ID, plaintext)
}

// analyzeStep invokes the analyzer on the working plaintext. The attempt
// runs to completion once started; the record stays PROCESSING until the
// result (or failure) is persisted.
func (p *Processor) analyzeStep(ctx context.Context, record *domain.TaskRecord) error {
	result, err := p.analyzer.Analyze(ctx, record.DecryptedPayload)
	if err != nil {
		return p.fail(ctx, record.ID, fmt.Sprintf("analysis failed: %v", err), err)
	}

	return p.store.MarkProcessed(ctx, record.ID, result)
}

// encryptStep seals the analysis result. Persisting the ciphertext and
// erasing the plaintext working copy happen in one store write.
func (p *Processor) encryptStep(ctx context.Context, record *domain.TaskRecord) error {
	ciphertext, err := p.codec.Encrypt(record.DecryptedPayload)
	if err != nil {
		return p.fail(ctx, record.ID, err.Error(), err)
	}

	return p.store.MarkEncrypted(ctx, record.ID, ciphertext)
}

// deliverStep posts the result callback. Exhausted retries move the record
// to ERROR and raise an operator event; the failure is never dropped.
func (p *Processor) deliverStep(ctx context.Context, record *domain.TaskRecord) error {
	log := logger.FromContextOrDefault(ctx, p.logger)

	if err := p.callbacks.SendResult(ctx, record); err != nil {
		message := fmt.Sprintf("result delivery failed: %v", err)
		log.Error("result callback could not be delivered",
			"task_id", record.ID,
			"error", err)
		if markErr := p.store.MarkFailed(ctx, record.ID, message); markErr != nil {
			log.Error("failed to record delivery failure",
				"task_id", record.ID,
				"error", markErr)
		}
		p.emit(ctx, events.KindCallbackExhausted, record.ID, message)
		return err
	}

	return p.store.MarkDelivered(ctx, record.ID)
}

// fail moves the record to ERROR, posts the failure callback so the
// submission side learns of it, and raises an operator event. The original
// cause is returned for the worker log.
func (p *Processor) fail(ctx context.Context, id, message string, cause error) error {
	log := logger.FromContextOrDefault(ctx, p.logger)

	if err := p.store.MarkFailed(ctx, id, message); err != nil {
		log.Error("failed to record task failure",
			"task_id", id,
			"error", err)
	}

	if err := p.callbacks.SendFailure(ctx, id, message); err != nil {
		log.Error("failure callback could not be delivered",
			"task_id", id,
			"error", err)
		p.emit(ctx, events.KindCallbackExhausted, id,
			fmt.Sprintf("failure callback undeliverable: %v", err))
	}

	p.emit(ctx, events.KindTaskFailed, id, message)
	return cause
}

func (p *Processor) emit(ctx context.Context, kind events.Kind, id, message string) {
	event := events.NewPipelineEvent(kind, id, message)
	if err := p.emitter.EmitEvent(ctx, event); err != nil {
		logger.FromContextOrDefault(ctx, p.logger).Error("failed to emit pipeline event",
			"task_id", id,
			"event_kind", string(kind),
			"error", err)
	}
}
