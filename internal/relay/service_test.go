package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultrelay/relay-api/internal/crypto"
	"github.com/vaultrelay/relay-api/internal/domain"
	"github.com/vaultrelay/relay-api/internal/events"
	"github.com/vaultrelay/relay-api/internal/mocks"
	"github.com/vaultrelay/relay-api/internal/store"
)

const testTaskURL = "http://executor.internal:8080/encrypted-task"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCodec(t *testing.T) *crypto.Codec {
	t.Helper()

	codec, err := crypto.NewCodec("test-passphrase", "test-salt")
	require.NoError(t, err)
	return codec
}

// shippedTask captures one outbound delivery observed by the fake poster.
type shippedTask struct {
	URL  string
	Body taskRequest
}

// fakePoster records deliveries after pushing them through JSON, so the
// wire field names are exercised the same way the dispatcher would.
type fakePoster struct {
	mu    sync.Mutex
	calls []shippedTask
	err   error
}

func (p *fakePoster) PostJSON(ctx context.Context, url string, in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	var body taskRequest
	if err := json.Unmarshal(raw, &body); err != nil {
		return err
	}

	p.mu.Lock()
	p.calls = append(p.calls, shippedTask{URL: url, Body: body})
	p.mu.Unlock()
	return p.err
}

func (p *fakePoster) Calls() []shippedTask {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]shippedTask(nil), p.calls...)
}

// recordingHandler collects emitted pipeline events.
type recordingHandler struct {
	mu     sync.Mutex
	events []*events.PipelineEvent
}

func (h *recordingHandler) HandleEvent(ctx context.Context, event *events.PipelineEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return nil
}

func (h *recordingHandler) Kinds() []events.Kind {
	h.mu.Lock()
	defer h.mu.Unlock()

	kinds := make([]events.Kind, 0, len(h.events))
	for _, e := range h.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func newTestService(
	t *testing.T,
	recordStore store.TaskRecordStore,
	poster TaskPoster,
) (Service, *crypto.Codec, *recordingHandler) {
	t.Helper()

	handler := &recordingHandler{}
	emitter := events.NewInMemoryEventEmitter(quietLogger())
	emitter.RegisterHandler(handler)

	codec := newTestCodec(t)
	svc, err := NewService(recordStore, codec, poster, testTaskURL, emitter, quietLogger())
	require.NoError(t, err)
	return svc, codec, handler
}

func seedRecord(t *testing.T, id string, status domain.Status) *domain.TaskRecord {
	t.Helper()

	record, err := domain.NewTaskRecord(id, "Y2lwaGVydGV4dA==", "")
	require.NoError(t, err)
	record.Status = status
	return record
}

func TestNewServiceValidation(t *testing.T) {
	t.Parallel()

	recordStore := mocks.NewMockTaskRecordStore()
	codec := newTestCodec(t)
	poster := &fakePoster{}
	emitter := events.NewInMemoryEventEmitter(quietLogger())

	testCases := []struct {
		name        string
		recordStore store.TaskRecordStore
		codec       *crypto.Codec
		poster      TaskPoster
		taskURL     string
		emitter     events.EventEmitter
		wantErr     error
	}{
		{
			name:    "nil_store",
			codec:   codec,
			poster:  poster,
			taskURL: testTaskURL,
			emitter: emitter,
			wantErr: ErrNilStore,
		},
		{
			name:        "nil_codec",
			recordStore: recordStore,
			poster:      poster,
			taskURL:     testTaskURL,
			emitter:     emitter,
			wantErr:     ErrNilCodec,
		},
		{
			name:        "nil_poster",
			recordStore: recordStore,
			codec:       codec,
			taskURL:     testTaskURL,
			emitter:     emitter,
			wantErr:     ErrNilPoster,
		},
		{
			name:        "empty_task_url",
			recordStore: recordStore,
			codec:       codec,
			poster:      poster,
			emitter:     emitter,
			wantErr:     ErrEmptyTaskURL,
		},
		{
			name:        "nil_emitter",
			recordStore: recordStore,
			codec:       codec,
			poster:      poster,
			taskURL:     testTaskURL,
			wantErr:     ErrNilEmitter,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc, err := NewService(tc.recordStore, tc.codec, tc.poster, tc.taskURL, tc.emitter, quietLogger())
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Nil(t, svc)
		})
	}

	t.Run("nil_logger_defaults", func(t *testing.T) {
		svc, err := NewService(recordStore, codec, poster, testTaskURL, emitter, nil)
		require.NoError(t, err)
		assert.NotNil(t, svc)
	})
}

func TestSubmitEncryptsPersistsAndShips(t *testing.T) {
	t.Parallel()

	recordStore := mocks.NewMockTaskRecordStore()
	poster := &fakePoster{}
	svc, codec, handler := newTestService(t, recordStore, poster)

	reply, err := svc.Submit(context.Background(), SubmitRequest{
		Payload:   "run the report",
		SourceTag: "billing",
	})
	require.NoError(t, err)
	require.NotNil(t, reply)

	assert.Equal(t, domain.StatusReceived, reply.Status)
	_, err = uuid.Parse(reply.ID)
	assert.NoError(t, err, "assigned ids are UUIDs")

	svc.Close()

	calls := poster.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, testTaskURL, calls[0].URL)
	assert.Equal(t, reply.ID, calls[0].Body.ID)

	plaintext, err := codec.Decrypt(calls[0].Body.EncryptedPayload)
	require.NoError(t, err)
	assert.Equal(t, "run the report", plaintext, "shipped ciphertext round-trips to the submitted payload")

	record, err := recordStore.GetByID(context.Background(), reply.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReceived, record.Status, "the record stays RECEIVED until a callback arrives")
	assert.Equal(t, calls[0].Body.EncryptedPayload, record.EncryptedPayload)
	assert.Equal(t, "billing", record.SourceTag)
	assert.Empty(t, record.DecryptedPayload)

	assert.Empty(t, handler.Kinds())
}

func TestSubmitKeepsCallerAssignedID(t *testing.T) {
	t.Parallel()

	recordStore := mocks.NewMockTaskRecordStore()
	poster := &fakePoster{}
	svc, _, _ := newTestService(t, recordStore, poster)

	reply, err := svc.Submit(context.Background(), SubmitRequest{ID: "order-7", Payload: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "order-7", reply.ID)

	svc.Close()

	calls := poster.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "order-7", calls[0].Body.ID)
}

func TestSubmitRejectsEmptyPayload(t *testing.T) {
	t.Parallel()

	recordStore := mocks.NewMockTaskRecordStore()
	poster := &fakePoster{}
	svc, _, _ := newTestService(t, recordStore, poster)

	reply, err := svc.Submit(context.Background(), SubmitRequest{ID: "task-1"})
	assert.Nil(t, reply)
	assert.ErrorIs(t, err, domain.ErrEmptyPayload)

	var validationErr *domain.ValidationError
	assert.ErrorAs(t, err, &validationErr)

	count, err := recordStore.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count, "nothing is persisted for a rejected submission")

	svc.Close()
	assert.Empty(t, poster.Calls())
}

func TestSubmitReplaysExistingTask(t *testing.T) {
	t.Parallel()

	t.Run("duplicate_while_received", func(t *testing.T) {
		recordStore := mocks.NewMockTaskRecordStore()
		poster := &fakePoster{}
		svc, _, _ := newTestService(t, recordStore, poster)

		first, err := svc.Submit(context.Background(), SubmitRequest{ID: "task-dup", Payload: "hello"})
		require.NoError(t, err)
		svc.Close()

		second, err := svc.Submit(context.Background(), SubmitRequest{ID: "task-dup", Payload: "different payload"})
		require.NoError(t, err)
		svc.Close()

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, domain.StatusReceived, second.Status)
		assert.Len(t, poster.Calls(), 1, "a resubmission is not shipped again")

		count, err := recordStore.Count(context.Background())
		require.NoError(t, err)
		assert.EqualValues(t, 1, count)
	})

	t.Run("duplicate_after_progress", func(t *testing.T) {
		recordStore := mocks.NewMockTaskRecordStore()
		recordStore.Seed(seedRecord(t, "task-busy", domain.StatusProcessing))
		poster := &fakePoster{}
		svc, _, _ := newTestService(t, recordStore, poster)

		reply, err := svc.Submit(context.Background(), SubmitRequest{ID: "task-busy", Payload: "hello"})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusProcessing, reply.Status, "the stored status is replayed")

		svc.Close()
		assert.Empty(t, poster.Calls())
	})
}

func TestSubmitSurfacesStoreFailure(t *testing.T) {
	t.Parallel()

	recordStore := mocks.NewMockTaskRecordStore()
	recordStore.InsertErr = errors.New("connection reset by peer")
	poster := &fakePoster{}
	svc, _, _ := newTestService(t, recordStore, poster)

	reply, err := svc.Submit(context.Background(), SubmitRequest{Payload: "hello"})
	assert.Nil(t, reply)

	var serviceErr *ServiceError
	require.ErrorAs(t, err, &serviceErr)
	assert.Equal(t, "submit", serviceErr.Operation)
	assert.ErrorIs(t, err, recordStore.InsertErr)

	svc.Close()
	assert.Empty(t, poster.Calls(), "nothing ships when persistence fails")
}

func TestSubmitMarksFailureWhenDeliveryExhausted(t *testing.T) {
	t.Parallel()

	recordStore := mocks.NewMockTaskRecordStore()
	poster := &fakePoster{err: errors.New("dial tcp 10.0.0.2:8080: connection refused")}
	svc, _, handler := newTestService(t, recordStore, poster)

	reply, err := svc.Submit(context.Background(), SubmitRequest{Payload: "hello"})
	require.NoError(t, err, "submission succeeds even when delivery later fails")

	svc.Close()

	record, err := recordStore.GetByID(context.Background(), reply.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, record.Status)
	assert.Contains(t, record.ErrorMessage, "task delivery failed")
	assert.Contains(t, record.ErrorMessage, "connection refused")

	assert.Equal(t, []events.Kind{events.KindTaskDeliveryExhausted}, handler.Kinds())
}

func TestHandleResultValidatesDataID(t *testing.T) {
	t.Parallel()

	recordStore := mocks.NewMockTaskRecordStore()
	touched := false
	recordStore.GetByIDFn = func(ctx context.Context, id string) (*domain.TaskRecord, error) {
		touched = true
		return nil, store.ErrTaskRecordNotFound
	}
	svc, _, _ := newTestService(t, recordStore, &fakePoster{})

	status, err := svc.HandleResult(context.Background(), ResultNotice{Content: "orphan"})
	assert.Empty(t, status)
	assert.ErrorIs(t, err, domain.ErrEmptyTaskID)

	var validationErr *domain.ValidationError
	assert.ErrorAs(t, err, &validationErr)
	assert.False(t, touched, "the store is not consulted for an unidentified callback")
}

func TestHandleResultUnknownTask(t *testing.T) {
	t.Parallel()

	recordStore := mocks.NewMockTaskRecordStore()
	svc, _, _ := newTestService(t, recordStore, &fakePoster{})

	status, err := svc.HandleResult(context.Background(), ResultNotice{DataID: "ghost", Content: "x"})
	assert.Empty(t, status)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestHandleResultRecordsSuccess(t *testing.T) {
	t.Parallel()

	recordStore := mocks.NewMockTaskRecordStore()
	seed := seedRecord(t, "task-1", domain.StatusReceived)
	seed.DecryptedPayload = "leftover working copy"
	recordStore.Seed(seed)
	svc, _, _ := newTestService(t, recordStore, &fakePoster{})

	status, err := svc.HandleResult(context.Background(), ResultNotice{
		DataID:  "task-1",
		Content: "cmVzdWx0IGNpcGhlcnRleHQ=",
		Status:  "ENCRYPTED",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, status)

	record, err := recordStore.GetByID(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, record.Status)
	assert.Equal(t, "cmVzdWx0IGNpcGhlcnRleHQ=", record.ResultPayload)
	assert.Empty(t, record.DecryptedPayload, "finishing a record erases the working copy")
	assert.Empty(t, record.ErrorMessage)
}

func TestHandleResultRecordsFailure(t *testing.T) {
	t.Parallel()

	t.Run("explicit_error_message", func(t *testing.T) {
		recordStore := mocks.NewMockTaskRecordStore()
		recordStore.Seed(seedRecord(t, "task-9", domain.StatusReceived))
		svc, _, _ := newTestService(t, recordStore, &fakePoster{})

		status, err := svc.HandleResult(context.Background(), ResultNotice{
			DataID:       "task-9",
			ErrorMessage: "analysis failed: quota exhausted",
			Status:       "ERROR",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusError, status)

		record, err := recordStore.GetByID(context.Background(), "task-9")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusError, record.Status)
		assert.Equal(t, "analysis failed: quota exhausted", record.ErrorMessage)
		assert.Empty(t, record.ResultPayload)
	})

	t.Run("status_alone_signals_failure", func(t *testing.T) {
		recordStore := mocks.NewMockTaskRecordStore()
		recordStore.Seed(seedRecord(t, "task-10", domain.StatusReceived))
		svc, _, _ := newTestService(t, recordStore, &fakePoster{})

		status, err := svc.HandleResult(context.Background(), ResultNotice{
			DataID: "task-10",
			Status: "ERROR",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusError, status)

		record, err := recordStore.GetByID(context.Background(), "task-10")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusError, record.Status)
	})
}

func TestHandleResultIdempotentOnFinishedTask(t *testing.T) {
	t.Parallel()

	recordStore := mocks.NewMockTaskRecordStore()
	sent := seedRecord(t, "done-task", domain.StatusSent)
	sent.ResultPayload = "c3RvcmVkIHJlc3VsdA=="
	failed := seedRecord(t, "failed-task", domain.StatusError)
	failed.ErrorMessage = "boom"
	recordStore.Seed(sent, failed)
	svc, _, _ := newTestService(t, recordStore, &fakePoster{})

	status, err := svc.HandleResult(context.Background(), ResultNotice{
		DataID:  "failed-task",
		Content: "bGF0ZSByZXN1bHQ=",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, status, "a late success does not resurrect a failed task")

	status, err = svc.HandleResult(context.Background(), ResultNotice{
		DataID:       "done-task",
		ErrorMessage: "late failure",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, status, "a late failure does not undo a delivered result")

	rows := recordStore.Snapshot()
	require.Len(t, rows, 2)
	assert.Equal(t, "c3RvcmVkIHJlc3VsdA==", rows[0].ResultPayload)
	assert.Equal(t, domain.StatusSent, rows[0].Status)
	assert.Equal(t, "boom", rows[1].ErrorMessage)
	assert.Equal(t, domain.StatusError, rows[1].Status)
}

func TestHandleResultResolvesStatusRace(t *testing.T) {
	t.Parallel()

	recordStore := mocks.NewMockTaskRecordStore()
	recordStore.Seed(seedRecord(t, "task-race", domain.StatusReceived))
	svc, _, _ := newTestService(t, recordStore, &fakePoster{})

	raced := false
	recordStore.CompleteWithResultFn = func(ctx context.Context, id, resultCiphertext string) error {
		if !raced {
			raced = true
			// Another writer failed the record between our read and write.
			require.NoError(t, recordStore.MarkFailed(ctx, id, "delivery failed elsewhere"))
			return store.ErrStaleStatus
		}
		return store.ErrStaleStatus
	}

	status, err := svc.HandleResult(context.Background(), ResultNotice{
		DataID:  "task-race",
		Content: "cmVzdWx0",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, status, "the writer that finished first wins")
	assert.True(t, raced)
}

func TestStatusPassthrough(t *testing.T) {
	t.Parallel()

	recordStore := mocks.NewMockTaskRecordStore()
	recordStore.Seed(seedRecord(t, "task-1", domain.StatusProcessing))
	svc, _, _ := newTestService(t, recordStore, &fakePoster{})

	record, err := svc.Status(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, "task-1", record.ID)
	assert.Equal(t, domain.StatusProcessing, record.Status)

	_, err = svc.Status(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	_, err = svc.Status(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrEmptyTaskID)
}

func TestNewServiceError(t *testing.T) {
	t.Parallel()

	t.Run("nil_error_returns_nil", func(t *testing.T) {
		assert.NoError(t, NewServiceError("submit", "nothing happened", nil))
	})

	t.Run("store_not_found_maps_to_sentinel", func(t *testing.T) {
		err := NewServiceError("status", "failed to load task record", store.ErrTaskRecordNotFound)
		assert.Equal(t, ErrTaskNotFound, err)
	})

	t.Run("sentinel_passes_through", func(t *testing.T) {
		err := NewServiceError("status", "failed to load task record", ErrTaskNotFound)
		assert.Equal(t, ErrTaskNotFound, err)
	})

	t.Run("other_errors_are_wrapped", func(t *testing.T) {
		cause := errors.New("connection reset by peer")
		err := NewServiceError("submit", "failed to persist task record", cause)

		var serviceErr *ServiceError
		require.ErrorAs(t, err, &serviceErr)
		assert.Equal(t, "submit", serviceErr.Operation)
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "relay service submit failed")
	})
}
