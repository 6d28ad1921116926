package shared

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type decodeTarget struct {
	ID      string `json:"id"`
	Payload string `json:"payload"`
}

func TestDecodeJSON(t *testing.T) {
	t.Run("valid_body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/tasks",
			strings.NewReader(`{"id": "task-1", "payload": "hello"}`))
		w := httptest.NewRecorder()

		var target decodeTarget
		err := DecodeJSON(w, req, &target)

		require.NoError(t, err)
		assert.Equal(t, "task-1", target.ID)
		assert.Equal(t, "hello", target.Payload)
	})

	t.Run("malformed_body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/tasks",
			strings.NewReader(`{"id": "task-1", "payload":`))
		w := httptest.NewRecorder()

		var target decodeTarget
		err := DecodeJSON(w, req, &target)

		assert.Error(t, err)
	})

	t.Run("empty_body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/tasks", strings.NewReader(""))
		w := httptest.NewRecorder()

		var target decodeTarget
		err := DecodeJSON(w, req, &target)

		assert.Error(t, err)
	})

	t.Run("oversized_body_rejected", func(t *testing.T) {
		// Build a syntactically valid JSON document just past the size cap.
		var body bytes.Buffer
		body.WriteString(`{"id": "task-1", "payload": "`)
		body.Write(bytes.Repeat([]byte("a"), MaxRequestBodyBytes+1))
		body.WriteString(`"}`)

		req := httptest.NewRequest(http.MethodPost, "/tasks", &body)
		w := httptest.NewRecorder()

		var target decodeTarget
		err := DecodeJSON(w, req, &target)

		assert.Error(t, err, "bodies beyond MaxRequestBodyBytes are refused")
	})
}
