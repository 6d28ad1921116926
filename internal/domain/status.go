package domain

import "fmt"

// Status represents the lifecycle state of a task record as it moves through
// the relay pipeline.
type Status string

// Task record lifecycle statuses.
const (
	// StatusReceived marks a record persisted on first receipt, before any
	// cryptographic or analysis work has happened.
	StatusReceived Status = "RECEIVED"

	// StatusDecrypted marks a record whose request payload has been decrypted
	// into the working copy.
	StatusDecrypted Status = "DECRYPTED"

	// StatusProcessing marks a record whose analysis invocation has started.
	StatusProcessing Status = "PROCESSING"

	// StatusProcessed marks a record whose analysis completed and whose
	// working copy now holds the result plaintext.
	StatusProcessed Status = "PROCESSED"

	// StatusEncrypted marks a record whose result has been re-encrypted and
	// is awaiting callback delivery.
	StatusEncrypted Status = "ENCRYPTED"

	// StatusSent marks successful delivery of the result callback. Terminal.
	StatusSent Status = "SENT"

	// StatusError marks a failure at any stage, with ErrorMessage populated.
	// Terminal.
	StatusError Status = "ERROR"
)

// ParseStatus converts a raw string (from storage or the wire) into a Status.
// Unknown values are rejected rather than mapped to a zero value.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusReceived, StatusDecrypted, StatusProcessing, StatusProcessed,
		StatusEncrypted, StatusSent, StatusError:
		return Status(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// IsTerminal reports whether the status permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusSent || s == StatusError
}

// CanTransitionTo reports whether moving from s to next is a legal edge.
// Every non-terminal status may move to ERROR; the success path is strictly
// linear; terminal statuses permit nothing.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusReceived:
		return next == StatusDecrypted || next == StatusError
	case StatusDecrypted:
		return next == StatusProcessing || next == StatusError
	case StatusProcessing:
		return next == StatusProcessed || next == StatusError
	case StatusProcessed:
		return next == StatusEncrypted || next == StatusError
	case StatusEncrypted:
		return next == StatusSent || next == StatusError
	case StatusSent, StatusError:
		return false
	default:
		return false
	}
}

// nextOnSuccessPath returns the single non-ERROR successor of s. The second
// return value is false for terminal or unknown statuses.
func (s Status) nextOnSuccessPath() (Status, bool) {
	switch s {
	case StatusReceived:
		return StatusDecrypted, true
	case StatusDecrypted:
		return StatusProcessing, true
	case StatusProcessing:
		return StatusProcessed, true
	case StatusProcessed:
		return StatusEncrypted, true
	case StatusEncrypted:
		return StatusSent, true
	default:
		return "", false
	}
}

// String implements fmt.Stringer.
func (s Status) String() string {
	return string(s)
}
