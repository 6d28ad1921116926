package api

// Request and response structures for both services. Field names follow the
// wire contract between the relay peers, which is camelCase JSON.

// SubmitTaskRequest defines the payload for the coordinator's submission
// endpoint. ID is optional; the service assigns a UUID when it is empty.
type SubmitTaskRequest struct {
	ID        string `json:"id,omitempty"        validate:"omitempty,max=128"`
	Payload   string `json:"payload"             validate:"required,min=1"`
	SourceTag string `json:"sourceTag,omitempty" validate:"omitempty,max=64"`
}

// TaskDeliveryRequest defines the payload the coordinator ships to the
// executor's task endpoint.
type TaskDeliveryRequest struct {
	ID               string `json:"id"               validate:"required,min=1,max=128"`
	EncryptedPayload string `json:"encryptedPayload" validate:"required,min=1"`
}

// ResultCallbackRequest defines the outcome callback the executor posts
// back to the coordinator. The relay service validates it, so duplicate and
// malformed callbacks get precise, idempotent treatment there.
type ResultCallbackRequest struct {
	DataID       string `json:"dataId"`
	Content      string `json:"content,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	Status       string `json:"status,omitempty"`
}

// TaskStatusResponse reports a task record's stored identity and status.
type TaskStatusResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// HealthResponse reports service and database health.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Records  int64  `json:"records"`
}

// CleanupResponse reports the counts of one on-demand cleanup sweep.
type CleanupResponse struct {
	Inspected         int64 `json:"inspected"`
	DuplicatesRemoved int64 `json:"duplicatesRemoved"`
	FailedPurged      int64 `json:"failedPurged"`
}
