package analysis

import "context"

// Analyzer defines the boundary between the relay pipeline and the opaque
// processing applied to decrypted payloads. It keeps the pipeline decoupled
// from the concrete provider (a local echo transform or an external model
// service).
type Analyzer interface {
	// Analyze processes the decrypted request payload and returns the result
	// plaintext. The pipeline invokes it exactly once per task while the
	// record is PROCESSING; a failure moves the record to ERROR.
	//
	// Errors wrap one of the sentinels in errors.go so callers can tell
	// rejected content apart from provider trouble.
	Analyze(ctx context.Context, plaintext string) (string, error)
}
