package shared

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAndGetTraceID(t *testing.T) {
	ctx := context.Background()

	// A fresh context carries no trace ID
	assert.Empty(t, GetTraceID(ctx))

	traced := SetTraceID(ctx)
	traceID := GetTraceID(traced)

	require.Len(t, traceID, TraceIDLength*2, "trace IDs are hex-encoded")
	_, err := hex.DecodeString(traceID)
	assert.NoError(t, err, "trace IDs decode as hex")

	// The original context is untouched
	assert.Empty(t, GetTraceID(ctx))
}

func TestGetTraceIDWrongValueType(t *testing.T) {
	ctx := context.WithValue(context.Background(), TraceIDKey, 12345)
	assert.Empty(t, GetTraceID(ctx))
}

func TestTraceIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GetTraceID(SetTraceID(context.Background()))
		assert.False(t, seen[id], "trace ID %q generated twice", id)
		seen[id] = true
	}
}

func TestGenerateFallbackTraceID(t *testing.T) {
	first := generateFallbackTraceID()

	require.Len(t, first, TraceIDLength*2)
	_, err := hex.DecodeString(first)
	assert.NoError(t, err)

	// Fallback IDs derive from the clock, so they must never be static
	distinct := false
	for i := 0; i < 50 && !distinct; i++ {
		time.Sleep(time.Millisecond)
		distinct = generateFallbackTraceID() != first
	}
	assert.True(t, distinct, "fallback trace IDs should vary over time")
}
