package mocks

import (
	"context"
	"sync"
)

// MockAnalyzer implements analysis.Analyzer for testing
type MockAnalyzer struct {
	// AnalyzeFn allows test cases to mock the Analyze behavior
	AnalyzeFn func(ctx context.Context, plaintext string) (string, error)

	// Default response values used when AnalyzeFn is nil
	Result string
	Err    error

	// Call tracking for verification
	mu         sync.Mutex
	plaintexts []string
}

// Analyze implements the analysis.Analyzer interface. When no AnalyzeFn is
// provided and no default Result is set, it echoes the plaintext prefixed
// with "analyzed:" so pipeline tests can assert the value flowed through.
func (m *MockAnalyzer) Analyze(ctx context.Context, plaintext string) (string, error) {
	m.mu.Lock()
	m.plaintexts = append(m.plaintexts, plaintext)
	m.mu.Unlock()

	if m.AnalyzeFn != nil {
		return m.AnalyzeFn(ctx, plaintext)
	}
	if m.Err != nil {
		return "", m.Err
	}
	if m.Result != "" {
		return m.Result, nil
	}
	return "analyzed:" + plaintext, nil
}

// Calls returns a copy of the plaintexts passed to Analyze so far.
func (m *MockAnalyzer) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.plaintexts))
	copy(out, m.plaintexts)
	return out
}

// CallCount returns how many times Analyze was called.
func (m *MockAnalyzer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.plaintexts)
}
