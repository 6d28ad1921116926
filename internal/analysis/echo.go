package analysis

import (
	"context"
	"encoding/json"
	"fmt"
)

// EchoAnalyzer is a deterministic local Analyzer. It wraps the input in a
// small result envelope without calling out to any service, which keeps
// development setups and tests independent of model providers.
type EchoAnalyzer struct{}

// Ensure EchoAnalyzer implements the Analyzer interface
var _ Analyzer = (*EchoAnalyzer)(nil)

// NewEchoAnalyzer creates a new EchoAnalyzer.
func NewEchoAnalyzer() *EchoAnalyzer {
	return &EchoAnalyzer{}
}

type echoResult struct {
	Provider string `json:"provider"`
	Length   int    `json:"length"`
	Content  string `json:"content"`
}

// Analyze returns the input unchanged inside a JSON envelope. The same input
// always yields the same output.
func (a *EchoAnalyzer) Analyze(ctx context.Context, plaintext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransientFailure, err)
	}

	encoded, err := json.Marshal(echoResult{
		Provider: "echo",
		Length:   len(plaintext),
		Content:  plaintext,
	})
	if err != nil {
		return "", fmt.Errorf("%w: encoding echo result: %v", ErrAnalysisFailed, err)
	}
	return string(encoded), nil
}
