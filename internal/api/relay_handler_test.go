package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultrelay/relay-api/internal/domain"
	"github.com/vaultrelay/relay-api/internal/relay"
)

// MockRelayService is a mock implementation of relay.Service for testing
type MockRelayService struct {
	SubmitFn       func(ctx context.Context, req relay.SubmitRequest) (*relay.SubmitReply, error)
	HandleResultFn func(ctx context.Context, notice relay.ResultNotice) (domain.Status, error)
	StatusFn       func(ctx context.Context, id string) (*domain.TaskRecord, error)
}

// Submit implements relay.Service
func (m *MockRelayService) Submit(ctx context.Context, req relay.SubmitRequest) (*relay.SubmitReply, error) {
	if m.SubmitFn != nil {
		return m.SubmitFn(ctx, req)
	}
	return nil, nil
}

// HandleResult implements relay.Service
func (m *MockRelayService) HandleResult(ctx context.Context, notice relay.ResultNotice) (domain.Status, error) {
	if m.HandleResultFn != nil {
		return m.HandleResultFn(ctx, notice)
	}
	return "", nil
}

// Status implements relay.Service
func (m *MockRelayService) Status(ctx context.Context, id string) (*domain.TaskRecord, error) {
	if m.StatusFn != nil {
		return m.StatusFn(ctx, id)
	}
	return nil, nil
}

// Close implements relay.Service
func (m *MockRelayService) Close() {}

func TestRelayHandler_SubmitTask(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    interface{}
		setupMock      func(*MockRelayService)
		expectedStatus int
		expectedErrMsg string
		expectedBody   map[string]interface{}
	}{
		{
			name: "successful_submission",
			requestBody: SubmitTaskRequest{
				Payload:   "run the report",
				SourceTag: "billing",
			},
			setupMock: func(ms *MockRelayService) {
				ms.SubmitFn = func(ctx context.Context, req relay.SubmitRequest) (*relay.SubmitReply, error) {
					return &relay.SubmitReply{
						ID:     "3e2e6c1e-8f5a-4f6e-9adf-57a2a1b8cf01",
						Status: domain.StatusReceived,
					}, nil
				}
			},
			expectedStatus: http.StatusAccepted,
			expectedBody: map[string]interface{}{
				"id":     "3e2e6c1e-8f5a-4f6e-9adf-57a2a1b8cf01",
				"status": "RECEIVED",
			},
		},
		{
			name: "resubmission_replays_status",
			requestBody: SubmitTaskRequest{
				ID:      "task-1",
				Payload: "run the report",
			},
			setupMock: func(ms *MockRelayService) {
				ms.SubmitFn = func(ctx context.Context, req relay.SubmitRequest) (*relay.SubmitReply, error) {
					return &relay.SubmitReply{ID: "task-1", Status: domain.StatusSent}, nil
				}
			},
			expectedStatus: http.StatusAccepted,
			expectedBody: map[string]interface{}{
				"id":     "task-1",
				"status": "SENT",
			},
		},
		{
			name:           "invalid_json",
			requestBody:    `{"payload": `,
			setupMock:      func(ms *MockRelayService) {},
			expectedStatus: http.StatusBadRequest,
			expectedErrMsg: "Invalid request format",
		},
		{
			name:           "missing_payload",
			requestBody:    SubmitTaskRequest{ID: "task-2"},
			setupMock:      func(ms *MockRelayService) {},
			expectedStatus: http.StatusBadRequest,
			expectedErrMsg: "Invalid Payload: required field",
		},
		{
			name: "service_validation_error",
			requestBody: SubmitTaskRequest{
				Payload: "run the report",
			},
			setupMock: func(ms *MockRelayService) {
				ms.SubmitFn = func(ctx context.Context, req relay.SubmitRequest) (*relay.SubmitReply, error) {
					return nil, domain.NewValidationError("payload", "cannot be empty", domain.ErrEmptyPayload)
				}
			},
			expectedStatus: http.StatusBadRequest,
			expectedErrMsg: "payload cannot be empty",
		},
		{
			name: "service_error",
			requestBody: SubmitTaskRequest{
				Payload: "run the report",
			},
			setupMock: func(ms *MockRelayService) {
				ms.SubmitFn = func(ctx context.Context, req relay.SubmitRequest) (*relay.SubmitReply, error) {
					return nil, errors.New("unexpected service error")
				}
			},
			expectedStatus: http.StatusInternalServerError,
			expectedErrMsg: "Failed to submit task",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockRelayService{}
			tt.setupMock(mockService)

			handler := NewRelayHandler(mockService)

			var reqBody []byte
			var err error
			if str, ok := tt.requestBody.(string); ok {
				reqBody = []byte(str)
			} else {
				reqBody, err = json.Marshal(tt.requestBody)
				require.NoError(t, err)
			}

			req := httptest.NewRequest(http.MethodPost, "/tasks", bytes.NewReader(reqBody))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			handler.SubmitTask(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var respBody map[string]interface{}
			err = json.Unmarshal(w.Body.Bytes(), &respBody)
			require.NoError(t, err)

			if tt.expectedErrMsg != "" {
				assert.Equal(t, tt.expectedErrMsg, respBody["error"])
				return
			}

			for key, want := range tt.expectedBody {
				assert.Equal(t, want, respBody[key], "field %q", key)
			}
		})
	}
}

func TestRelayHandler_GetTaskStatus(t *testing.T) {
	tests := []struct {
		name           string
		taskID         string
		setupMock      func(*MockRelayService)
		expectedStatus int
		expectedErrMsg string
		expectedBody   map[string]interface{}
	}{
		{
			name:   "task_in_progress",
			taskID: "task-1",
			setupMock: func(ms *MockRelayService) {
				ms.StatusFn = func(ctx context.Context, id string) (*domain.TaskRecord, error) {
					return &domain.TaskRecord{ID: id, Status: domain.StatusReceived}, nil
				}
			},
			expectedStatus: http.StatusOK,
			expectedBody: map[string]interface{}{
				"id":     "task-1",
				"status": "RECEIVED",
			},
		},
		{
			name:   "failed_task_includes_error_message",
			taskID: "task-2",
			setupMock: func(ms *MockRelayService) {
				ms.StatusFn = func(ctx context.Context, id string) (*domain.TaskRecord, error) {
					return &domain.TaskRecord{
						ID:           id,
						Status:       domain.StatusError,
						ErrorMessage: "task delivery failed: connection refused",
					}, nil
				}
			},
			expectedStatus: http.StatusOK,
			expectedBody: map[string]interface{}{
				"id":           "task-2",
				"status":       "ERROR",
				"errorMessage": "task delivery failed: connection refused",
			},
		},
		{
			name:   "unknown_task",
			taskID: "ghost",
			setupMock: func(ms *MockRelayService) {
				ms.StatusFn = func(ctx context.Context, id string) (*domain.TaskRecord, error) {
					return nil, relay.ErrTaskNotFound
				}
			},
			expectedStatus: http.StatusNotFound,
			expectedErrMsg: "Task not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockRelayService{}
			tt.setupMock(mockService)

			handler := NewRelayHandler(mockService)

			// Route through chi so the path parameter resolves
			router := chi.NewRouter()
			router.Get("/tasks/{id}", handler.GetTaskStatus)

			req := httptest.NewRequest(http.MethodGet, "/tasks/"+tt.taskID, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var respBody map[string]interface{}
			err := json.Unmarshal(w.Body.Bytes(), &respBody)
			require.NoError(t, err)

			if tt.expectedErrMsg != "" {
				assert.Equal(t, tt.expectedErrMsg, respBody["error"])
				return
			}

			for key, want := range tt.expectedBody {
				assert.Equal(t, want, respBody[key], "field %q", key)
			}

			// A healthy record omits the error message entirely
			if tt.expectedBody["errorMessage"] == nil {
				_, hasErrMsg := respBody["errorMessage"]
				assert.False(t, hasErrMsg)
			}
		})
	}
}

func TestRelayHandler_HandleTaskResult(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    interface{}
		setupMock      func(*MockRelayService)
		expectedStatus int
		expectedErrMsg string
		expectedBody   map[string]interface{}
	}{
		{
			name: "successful_result",
			requestBody: ResultCallbackRequest{
				DataID:  "task-1",
				Content: "cmVzdWx0IGNpcGhlcnRleHQ=",
				Status:  "ENCRYPTED",
			},
			setupMock: func(ms *MockRelayService) {
				ms.HandleResultFn = func(ctx context.Context, notice relay.ResultNotice) (domain.Status, error) {
					return domain.StatusSent, nil
				}
			},
			expectedStatus: http.StatusOK,
			expectedBody: map[string]interface{}{
				"id":     "task-1",
				"status": "SENT",
			},
		},
		{
			name: "failure_result",
			requestBody: ResultCallbackRequest{
				DataID:       "task-2",
				ErrorMessage: "analysis failed",
				Status:       "ERROR",
			},
			setupMock: func(ms *MockRelayService) {
				ms.HandleResultFn = func(ctx context.Context, notice relay.ResultNotice) (domain.Status, error) {
					return domain.StatusError, nil
				}
			},
			expectedStatus: http.StatusOK,
			expectedBody: map[string]interface{}{
				"id":     "task-2",
				"status": "ERROR",
			},
		},
		{
			name:        "missing_data_id",
			requestBody: ResultCallbackRequest{Content: "orphan"},
			setupMock: func(ms *MockRelayService) {
				ms.HandleResultFn = func(ctx context.Context, notice relay.ResultNotice) (domain.Status, error) {
					return "", domain.NewValidationError("dataId", "cannot be empty", domain.ErrEmptyTaskID)
				}
			},
			expectedStatus: http.StatusBadRequest,
			expectedErrMsg: "dataId cannot be empty",
		},
		{
			name: "unknown_task",
			requestBody: ResultCallbackRequest{
				DataID:  "ghost",
				Content: "cmVzdWx0",
			},
			setupMock: func(ms *MockRelayService) {
				ms.HandleResultFn = func(ctx context.Context, notice relay.ResultNotice) (domain.Status, error) {
					return "", relay.ErrTaskNotFound
				}
			},
			expectedStatus: http.StatusNotFound,
			expectedErrMsg: "Task not found",
		},
		{
			name:           "invalid_json",
			requestBody:    `{"dataId": "task-3",`,
			setupMock:      func(ms *MockRelayService) {},
			expectedStatus: http.StatusBadRequest,
			expectedErrMsg: "Invalid request format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockRelayService{}
			tt.setupMock(mockService)

			handler := NewRelayHandler(mockService)

			var reqBody []byte
			var err error
			if str, ok := tt.requestBody.(string); ok {
				reqBody = []byte(str)
			} else {
				reqBody, err = json.Marshal(tt.requestBody)
				require.NoError(t, err)
			}

			req := httptest.NewRequest(http.MethodPost, "/task-results", bytes.NewReader(reqBody))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			handler.HandleTaskResult(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var respBody map[string]interface{}
			err = json.Unmarshal(w.Body.Bytes(), &respBody)
			require.NoError(t, err)

			if tt.expectedErrMsg != "" {
				assert.Equal(t, tt.expectedErrMsg, respBody["error"])
				return
			}

			for key, want := range tt.expectedBody {
				assert.Equal(t, want, respBody[key], "field %q", key)
			}
		})
	}
}

func TestRelayHandler_HandleTaskResultPassesNoticeThrough(t *testing.T) {
	var gotNotice relay.ResultNotice
	mockService := &MockRelayService{
		HandleResultFn: func(ctx context.Context, notice relay.ResultNotice) (domain.Status, error) {
			gotNotice = notice
			return domain.StatusSent, nil
		},
	}
	handler := NewRelayHandler(mockService)

	body, err := json.Marshal(ResultCallbackRequest{
		DataID:  "task-1",
		Content: "cmVzdWx0",
		Status:  "ENCRYPTED",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/task-results", bytes.NewReader(body))
	w := httptest.NewRecorder()
	handler.HandleTaskResult(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, relay.ResultNotice{
		DataID:  "task-1",
		Content: "cmVzdWx0",
		Status:  "ENCRYPTED",
	}, gotNotice)
}
