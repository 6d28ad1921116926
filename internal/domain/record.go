package domain

import (
	"time"
)

// TaskRecord tracks one relayed analysis task through its whole lifecycle:
// receipt of the encrypted request, decryption, analysis, re-encryption of
// the result, and delivery of the result callback.
//
// DecryptedPayload is a working copy that exists only between the DECRYPTED
// and PROCESSED stages; it is erased in the same mutation that stores the
// encrypted result and must never leave the process boundary, hence the
// excluded JSON tag.
type TaskRecord struct {
	ID               string    `json:"id"`
	EncryptedPayload string    `json:"encrypted_payload"`
	DecryptedPayload string    `json:"-"`
	ResultPayload    string    `json:"result_payload,omitempty"`
	Status           Status    `json:"status"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	SourceTag        string    `json:"source_tag,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewTaskRecord creates a record in the RECEIVED state for the given id and
// request ciphertext. The id is externally supplied and kept verbatim; the
// sourceTag is a diagnostic marker of the submission channel.
// Returns an error if validation fails.
func NewTaskRecord(id, encryptedPayload, sourceTag string) (*TaskRecord, error) {
	now := time.Now().UTC()
	record := &TaskRecord{
		ID:               id,
		EncryptedPayload: encryptedPayload,
		Status:           StatusReceived,
		SourceTag:        sourceTag,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := record.Validate(); err != nil {
		return nil, err
	}

	return record, nil
}

// Validate checks if the TaskRecord has valid data.
// Returns an error if any field fails validation.
func (r *TaskRecord) Validate() error {
	if r.ID == "" {
		return ErrEmptyTaskID
	}

	if r.EncryptedPayload == "" {
		return ErrEmptyPayload
	}

	if _, err := ParseStatus(string(r.Status)); err != nil {
		return err
	}

	if r.Status == StatusError && r.ErrorMessage == "" {
		return ErrEmptyErrorMessage
	}

	return nil
}

// IsTerminal reports whether the record has reached SENT or ERROR.
func (r *TaskRecord) IsTerminal() bool {
	return r.Status.IsTerminal()
}

// TransitionTo applies a single state machine edge and refreshes UpdatedAt.
// Illegal edges return an *InvalidTransitionError and leave the record
// untouched.
func (r *TaskRecord) TransitionTo(next Status) error {
	if !r.Status.CanTransitionTo(next) {
		return NewInvalidTransitionError(r.ID, r.Status, next)
	}

	r.Status = next
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkFailed moves the record to ERROR from any non-terminal status and
// records the failure reason. An empty message is replaced with a fixed
// placeholder so failed records always explain themselves.
func (r *TaskRecord) MarkFailed(message string) error {
	if err := r.TransitionTo(StatusError); err != nil {
		return err
	}

	if message == "" {
		message = "unspecified failure"
	}
	r.ErrorMessage = message
	return nil
}

// AdvanceTo walks the record along the success path one validated edge at a
// time until it reaches target. It is used to fast-forward a mirror record
// when the remote side reports how far the task actually got; every hop is
// still checked against the state machine. Targets off the success path
// (ERROR in particular) and targets behind the current status are rejected
// with an *InvalidTransitionError.
func (r *TaskRecord) AdvanceTo(target Status) error {
	if r.Status == target {
		return nil
	}

	current := r.Status
	for {
		next, ok := current.nextOnSuccessPath()
		if !ok {
			return NewInvalidTransitionError(r.ID, r.Status, target)
		}
		if next == target {
			break
		}
		current = next
	}

	for r.Status != target {
		next, _ := r.Status.nextOnSuccessPath()
		if err := r.TransitionTo(next); err != nil {
			return err
		}
	}
	return nil
}
