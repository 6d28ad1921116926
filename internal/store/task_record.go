package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/vaultrelay/relay-api/internal/domain"
)

// TaskRecordStore defines persistence for task records. Every status-changing
// method is guarded by the expected current status at the database level, so
// two workers racing on the same record cannot both win: the loser receives
// ErrStaleStatus and must re-read.
type TaskRecordStore interface {
	// InsertOrGet atomically persists record unless a row with the same task
	// id already exists, in which case the stored record is returned instead.
	// The boolean reports whether an insert actually happened. Concurrent
	// calls for one id always converge on a single surviving row.
	InsertOrGet(ctx context.Context, record *domain.TaskRecord) (*domain.TaskRecord, bool, error)

	// GetByID retrieves a record by task id.
	// Returns ErrTaskRecordNotFound if no record exists.
	GetByID(ctx context.Context, id string) (*domain.TaskRecord, error)

	// MarkDecrypted moves RECEIVED -> DECRYPTED and stores the decrypted
	// working copy.
	MarkDecrypted(ctx context.Context, id, plaintext string) error

	// MarkProcessing moves DECRYPTED -> PROCESSING.
	MarkProcessing(ctx context.Context, id string) error

	// MarkProcessed moves PROCESSING -> PROCESSED and replaces the working
	// copy with the analysis result plaintext.
	MarkProcessed(ctx context.Context, id, resultPlaintext string) error

	// MarkEncrypted moves PROCESSED -> ENCRYPTED, stores the result
	// ciphertext and erases the plaintext working copy in the same write.
	MarkEncrypted(ctx context.Context, id, resultCiphertext string) error

	// MarkDelivered moves ENCRYPTED -> SENT after the result callback has
	// been accepted by the peer.
	MarkDelivered(ctx context.Context, id string) error

	// MarkFailed moves any non-terminal record to ERROR with the given
	// message and erases the plaintext working copy. Terminal records are
	// left untouched and reported via ErrStaleStatus.
	MarkFailed(ctx context.Context, id, message string) error

	// CompleteWithResult moves a non-terminal record straight to SENT and
	// stores the encrypted result content. Used on the submitting side when
	// the peer reports successful completion; the domain layer validates the
	// fast-forward before this is called.
	CompleteWithResult(ctx context.Context, id, resultCiphertext string) error

	// ListByStatus returns all records currently in any of the given
	// statuses, oldest first. Used for startup recovery and diagnostics.
	ListByStatus(ctx context.Context, statuses ...domain.Status) ([]*domain.TaskRecord, error)

	// Count returns the total number of task records.
	Count(ctx context.Context) (int64, error)

	// Ping verifies store reachability for health reporting.
	Ping(ctx context.Context) error

	// RemoveDuplicates deletes all but the newest row (created_at, then row
	// identity) for any task id that has more than one row. Returns the
	// number of rows inspected and removed.
	RemoveDuplicates(ctx context.Context) (inspected, removed int64, err error)

	// PurgeFailedBefore deletes ERROR records whose last update is older than
	// cutoff. Returns the number of rows removed.
	PurgeFailedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// WithTx returns a store whose operations run within the given
	// transaction.
	WithTx(tx *sql.Tx) TaskRecordStore
}
