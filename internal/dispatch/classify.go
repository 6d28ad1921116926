package dispatch

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest indicates the request could not be built or its body
	// could not be encoded. Retrying will not fix it.
	ErrInvalidRequest = errors.New("dispatch: invalid request")

	// ErrMalformedResponse indicates the remote answered 2xx but the body
	// could not be decoded into the expected shape.
	ErrMalformedResponse = errors.New("dispatch: malformed response")
)

// Class labels a delivery failure for the retry loop.
type Class int

const (
	// ClassTransient failures are worth another attempt: timeouts, refused or
	// reset connections, DNS failures, and retryable status codes.
	ClassTransient Class = iota

	// ClassPermanent failures will not be fixed by retrying.
	ClassPermanent
)

// String returns a human-readable label for logging.
func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}

// StatusError reports a non-2xx reply from the remote endpoint. Body carries
// a truncated copy of the response body for diagnostics.
type StatusError struct {
	Code int
	Body string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote returned status %d", e.Code)
	}
	return fmt.Sprintf("remote returned status %d: %s", e.Code, e.Body)
}

// RetryableSet converts a configured status code list into the lookup form
// Classify expects.
func RetryableSet(codes []int) map[int]bool {
	set := make(map[int]bool, len(codes))
	for _, code := range codes {
		set[code] = true
	}
	return set
}

// Classify labels err for the retry loop. HTTP status failures follow the
// retryable set; request-shape and response-shape failures, as well as caller
// cancellation, are permanent; everything below HTTP (dial errors, resets,
// timed-out reads) is transient.
func Classify(err error, retryable map[int]bool) Class {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return ClassifyStatus(statusErr.Code, retryable)
	}
	if errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrMalformedResponse) {
		return ClassPermanent
	}
	if errors.Is(err, context.Canceled) {
		return ClassPermanent
	}
	return ClassTransient
}

// ClassifyStatus labels a bare HTTP status code against the retryable set.
func ClassifyStatus(code int, retryable map[int]bool) Class {
	if retryable[code] {
		return ClassTransient
	}
	return ClassPermanent
}
