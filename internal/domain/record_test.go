package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTaskRecord(t *testing.T) {
	t.Run("creates record in RECEIVED state", func(t *testing.T) {
		record, err := NewTaskRecord("T-1", "Y2lwaGVydGV4dA==", "intake")
		require.NoError(t, err)

		assert.Equal(t, "T-1", record.ID)
		assert.Equal(t, "Y2lwaGVydGV4dA==", record.EncryptedPayload)
		assert.Equal(t, StatusReceived, record.Status)
		assert.Equal(t, "intake", record.SourceTag)
		assert.Empty(t, record.ErrorMessage)
		assert.False(t, record.CreatedAt.IsZero())
		assert.Equal(t, record.CreatedAt, record.UpdatedAt)
	})

	t.Run("rejects empty id", func(t *testing.T) {
		_, err := NewTaskRecord("", "payload", "")
		assert.ErrorIs(t, err, ErrEmptyTaskID)
	})

	t.Run("rejects empty payload", func(t *testing.T) {
		_, err := NewTaskRecord("T-1", "", "")
		assert.ErrorIs(t, err, ErrEmptyPayload)
	})
}

func TestTaskRecordValidate(t *testing.T) {
	record, err := NewTaskRecord("T-1", "payload", "")
	require.NoError(t, err)

	t.Run("rejects unknown status", func(t *testing.T) {
		bad := *record
		bad.Status = Status("LIMBO")
		assert.ErrorIs(t, bad.Validate(), ErrInvalidStatus)
	})

	t.Run("rejects ERROR without message", func(t *testing.T) {
		bad := *record
		bad.Status = StatusError
		assert.ErrorIs(t, bad.Validate(), ErrEmptyErrorMessage)
	})

	t.Run("accepts ERROR with message", func(t *testing.T) {
		failed := *record
		failed.Status = StatusError
		failed.ErrorMessage = "decrypt failed"
		assert.NoError(t, failed.Validate())
	})
}

func TestTaskRecordTransitionTo(t *testing.T) {
	t.Run("legal edge advances status and touches UpdatedAt", func(t *testing.T) {
		record, err := NewTaskRecord("T-1", "payload", "")
		require.NoError(t, err)

		before := record.UpdatedAt
		time.Sleep(time.Millisecond)

		require.NoError(t, record.TransitionTo(StatusDecrypted))
		assert.Equal(t, StatusDecrypted, record.Status)
		assert.True(t, record.UpdatedAt.After(before))
	})

	t.Run("illegal edge returns InvalidTransitionError and leaves record untouched", func(t *testing.T) {
		record, err := NewTaskRecord("T-1", "payload", "")
		require.NoError(t, err)

		err = record.TransitionTo(StatusSent)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidTransition)

		var transitionErr *InvalidTransitionError
		require.True(t, errors.As(err, &transitionErr))
		assert.Equal(t, "T-1", transitionErr.TaskID)
		assert.Equal(t, StatusReceived, transitionErr.From)
		assert.Equal(t, StatusSent, transitionErr.To)

		assert.Equal(t, StatusReceived, record.Status)
	})

	t.Run("terminal records refuse every edge", func(t *testing.T) {
		record, err := NewTaskRecord("T-1", "payload", "")
		require.NoError(t, err)
		require.NoError(t, record.MarkFailed("boom"))

		for _, next := range allStatuses {
			err := record.TransitionTo(next)
			assert.ErrorIs(t, err, ErrInvalidTransition, "transition to %s", next)
		}
	})
}

func TestTaskRecordMarkFailed(t *testing.T) {
	t.Run("fails from any non-terminal status", func(t *testing.T) {
		for _, from := range []Status{StatusReceived, StatusDecrypted, StatusProcessing, StatusProcessed, StatusEncrypted} {
			record, err := NewTaskRecord("T-1", "payload", "")
			require.NoError(t, err)
			record.Status = from

			require.NoError(t, record.MarkFailed("analysis blew up"))
			assert.Equal(t, StatusError, record.Status)
			assert.Equal(t, "analysis blew up", record.ErrorMessage)
		}
	})

	t.Run("substitutes placeholder for empty message", func(t *testing.T) {
		record, err := NewTaskRecord("T-1", "payload", "")
		require.NoError(t, err)

		require.NoError(t, record.MarkFailed(""))
		assert.NotEmpty(t, record.ErrorMessage)
	})

	t.Run("refuses to fail a terminal record", func(t *testing.T) {
		record, err := NewTaskRecord("T-1", "payload", "")
		require.NoError(t, err)
		require.NoError(t, record.MarkFailed("first failure"))

		err = record.MarkFailed("second failure")
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, "first failure", record.ErrorMessage)
	})
}

func TestTaskRecordAdvanceTo(t *testing.T) {
	t.Run("walks the whole success path", func(t *testing.T) {
		record, err := NewTaskRecord("T-1", "payload", "")
		require.NoError(t, err)

		require.NoError(t, record.AdvanceTo(StatusSent))
		assert.Equal(t, StatusSent, record.Status)
	})

	t.Run("stops at intermediate targets", func(t *testing.T) {
		record, err := NewTaskRecord("T-1", "payload", "")
		require.NoError(t, err)

		require.NoError(t, record.AdvanceTo(StatusProcessing))
		assert.Equal(t, StatusProcessing, record.Status)
	})

	t.Run("same status is a no-op", func(t *testing.T) {
		record, err := NewTaskRecord("T-1", "payload", "")
		require.NoError(t, err)

		require.NoError(t, record.AdvanceTo(StatusReceived))
		assert.Equal(t, StatusReceived, record.Status)
	})

	t.Run("rejects ERROR as a target", func(t *testing.T) {
		record, err := NewTaskRecord("T-1", "payload", "")
		require.NoError(t, err)

		assert.ErrorIs(t, record.AdvanceTo(StatusError), ErrInvalidTransition)
	})

	t.Run("rejects targets behind the current status", func(t *testing.T) {
		record, err := NewTaskRecord("T-1", "payload", "")
		require.NoError(t, err)
		require.NoError(t, record.AdvanceTo(StatusEncrypted))

		assert.ErrorIs(t, record.AdvanceTo(StatusDecrypted), ErrInvalidTransition)
		assert.Equal(t, StatusEncrypted, record.Status)
	})

	t.Run("rejects any advance from a terminal record", func(t *testing.T) {
		record, err := NewTaskRecord("T-1", "payload", "")
		require.NoError(t, err)
		require.NoError(t, record.MarkFailed("boom"))

		assert.ErrorIs(t, record.AdvanceTo(StatusSent), ErrInvalidTransition)
	})
}
