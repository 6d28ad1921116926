package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vaultrelay/relay-api/internal/domain"
	"github.com/vaultrelay/relay-api/internal/platform/logger"
	"github.com/vaultrelay/relay-api/internal/store"
)

// taskRecordColumns is the scan order shared by every SELECT in this file.
const taskRecordColumns = `task_id, encrypted_payload, decrypted_payload, result_payload,
		status, error_message, source_tag, created_at, updated_at`

// PostgresTaskRecordStore implements the store.TaskRecordStore interface
// using a PostgreSQL database as the storage backend. Status transitions are
// guarded at the SQL level (WHERE status = expected), so concurrent workers
// racing on one record resolve to a single winner.
type PostgresTaskRecordStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskRecordStore creates a new PostgreSQL implementation of the
// TaskRecordStore interface. It accepts a database connection or transaction
// managed by the caller. If logger is nil, a default logger will be used.
func NewPostgresTaskRecordStore(db store.DBTX, log *slog.Logger) *PostgresTaskRecordStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	return &PostgresTaskRecordStore{
		db:     db,
		logger: log.With(slog.String("component", "task_record_store")),
	}
}

// Ensure PostgresTaskRecordStore implements store.TaskRecordStore interface
var _ store.TaskRecordStore = (*PostgresTaskRecordStore)(nil)

// WithTx returns a store view whose operations run within the given
// transaction.
func (s *PostgresTaskRecordStore) WithTx(tx *sql.Tx) store.TaskRecordStore {
	return &PostgresTaskRecordStore{
		db:     tx,
		logger: s.logger,
	}
}

// InsertOrGet implements store.TaskRecordStore.InsertOrGet. The insert uses
// ON CONFLICT DO NOTHING on the task id unique index, then reads back the
// surviving row when the insert did not win, so concurrent submissions of
// one id converge on a single record.
func (s *PostgresTaskRecordStore) InsertOrGet(ctx context.Context, record *domain.TaskRecord) (*domain.TaskRecord, bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := record.Validate(); err != nil {
		log.Warn("task record validation failed during insert",
			"task_id", record.ID,
			"error", err)
		return nil, false, err
	}

	query := `
		INSERT INTO task_records (task_id, encrypted_payload, decrypted_payload, result_payload,
			status, error_message, source_tag, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (task_id) DO NOTHING
	`

	// The read-back can miss if the conflicting row is deleted between the
	// two statements; retry the whole sequence a couple of times.
	for attempt := 0; attempt < 3; attempt++ {
		result, err := s.db.ExecContext(ctx, query,
			record.ID,
			record.EncryptedPayload,
			record.DecryptedPayload,
			record.ResultPayload,
			string(record.Status),
			record.ErrorMessage,
			record.SourceTag,
			record.CreatedAt,
			record.UpdatedAt,
		)
		if err != nil {
			log.Error("failed to insert task record",
				"task_id", record.ID,
				"error", err)
			return nil, false, fmt.Errorf("failed to insert task record: %w", MapError(err))
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return nil, false, fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 1 {
			log.Info("task record created",
				"task_id", record.ID,
				"status", string(record.Status),
				"source_tag", record.SourceTag)
			return record, true, nil
		}

		existing, err := s.GetByID(ctx, record.ID)
		if err == nil {
			log.Debug("task record already present",
				"task_id", record.ID,
				"status", string(existing.Status))
			return existing, false, nil
		}
		if !errors.Is(err, store.ErrTaskRecordNotFound) {
			return nil, false, err
		}
	}

	return nil, false, store.NewStoreError("task record", "insert_or_get",
		"could not converge on a single row", store.ErrTaskIDExists)
}

// GetByID implements store.TaskRecordStore.GetByID. When duplicate rows exist
// for an id (an anomaly the janitor cleans up), the newest row wins.
func (s *PostgresTaskRecordStore) GetByID(ctx context.Context, id string) (*domain.TaskRecord, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := fmt.Sprintf(`
		SELECT %s
		FROM task_records
		WHERE task_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, taskRecordColumns)

	record, err := scanTaskRecord(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("task record not found", "task_id", id)
			return nil, store.ErrTaskRecordNotFound
		}
		log.Error("failed to get task record",
			"task_id", id,
			"error", err)
		return nil, fmt.Errorf("failed to get task record: %w", err)
	}

	return record, nil
}

// MarkDecrypted implements store.TaskRecordStore.MarkDecrypted.
func (s *PostgresTaskRecordStore) MarkDecrypted(ctx context.Context, id, plaintext string) error {
	query := `
		UPDATE task_records
		SET status = $1, decrypted_payload = $2, updated_at = $3
		WHERE task_id = $4 AND status = $5
	`
	result, err := s.db.ExecContext(ctx, query,
		string(domain.StatusDecrypted),
		plaintext,
		time.Now().UTC(),
		id,
		string(domain.StatusReceived),
	)
	return s.finishTransition(ctx, result, err, id, "mark_decrypted", string(domain.StatusReceived))
}

// MarkProcessing implements store.TaskRecordStore.MarkProcessing.
func (s *PostgresTaskRecordStore) MarkProcessing(ctx context.Context, id string) error {
	query := `
		UPDATE task_records
		SET status = $1, updated_at = $2
		WHERE task_id = $3 AND status = $4
	`
	result, err := s.db.ExecContext(ctx, query,
		string(domain.StatusProcessing),
		time.Now().UTC(),
		id,
		string(domain.StatusDecrypted),
	)
	return s.finishTransition(ctx, result, err, id, "mark_processing", string(domain.StatusDecrypted))
}

// MarkProcessed implements store.TaskRecordStore.MarkProcessed. The working
// copy is replaced by the analysis result plaintext, which stays in place
// until MarkEncrypted erases it.
func (s *PostgresTaskRecordStore) MarkProcessed(ctx context.Context, id, resultPlaintext string) error {
	query := `
		UPDATE task_records
		SET status = $1, decrypted_payload = $2, updated_at = $3
		WHERE task_id = $4 AND status = $5
	`
	result, err := s.db.ExecContext(ctx, query,
		string(domain.StatusProcessed),
		resultPlaintext,
		time.Now().UTC(),
		id,
		string(domain.StatusProcessing),
	)
	return s.finishTransition(ctx, result, err, id, "mark_processed", string(domain.StatusProcessing))
}

// MarkEncrypted implements store.TaskRecordStore.MarkEncrypted. Storing the
// result ciphertext and erasing the plaintext working copy happen in the same
// write, so no committed row ever holds both.
func (s *PostgresTaskRecordStore) MarkEncrypted(ctx context.Context, id, resultCiphertext string) error {
	query := `
		UPDATE task_records
		SET status = $1, result_payload = $2, decrypted_payload = '', updated_at = $3
		WHERE task_id = $4 AND status = $5
	`
	result, err := s.db.ExecContext(ctx, query,
		string(domain.StatusEncrypted),
		resultCiphertext,
		time.Now().UTC(),
		id,
		string(domain.StatusProcessed),
	)
	return s.finishTransition(ctx, result, err, id, "mark_encrypted", string(domain.StatusProcessed))
}

// MarkDelivered implements store.TaskRecordStore.MarkDelivered.
func (s *PostgresTaskRecordStore) MarkDelivered(ctx context.Context, id string) error {
	query := `
		UPDATE task_records
		SET status = $1, updated_at = $2
		WHERE task_id = $3 AND status = $4
	`
	result, err := s.db.ExecContext(ctx, query,
		string(domain.StatusSent),
		time.Now().UTC(),
		id,
		string(domain.StatusEncrypted),
	)
	return s.finishTransition(ctx, result, err, id, "mark_delivered", string(domain.StatusEncrypted))
}

// MarkFailed implements store.TaskRecordStore.MarkFailed. Any non-terminal
// status may fail; the plaintext working copy is erased in the same write.
func (s *PostgresTaskRecordStore) MarkFailed(ctx context.Context, id, message string) error {
	if message == "" {
		message = "unspecified failure"
	}

	query := `
		UPDATE task_records
		SET status = $1, error_message = $2, decrypted_payload = '', updated_at = $3
		WHERE task_id = $4 AND status NOT IN ($5, $6)
	`
	result, err := s.db.ExecContext(ctx, query,
		string(domain.StatusError),
		message,
		time.Now().UTC(),
		id,
		string(domain.StatusSent),
		string(domain.StatusError),
	)
	return s.finishTransition(ctx, result, err, id, "mark_failed", "a non-terminal status")
}

// CompleteWithResult implements store.TaskRecordStore.CompleteWithResult. It
// fast-forwards a non-terminal record to SENT while storing the encrypted
// result reported by the peer.
func (s *PostgresTaskRecordStore) CompleteWithResult(ctx context.Context, id, resultCiphertext string) error {
	query := `
		UPDATE task_records
		SET status = $1, result_payload = $2, decrypted_payload = '', updated_at = $3
		WHERE task_id = $4 AND status NOT IN ($5, $6)
	`
	result, err := s.db.ExecContext(ctx, query,
		string(domain.StatusSent),
		resultCiphertext,
		time.Now().UTC(),
		id,
		string(domain.StatusSent),
		string(domain.StatusError),
	)
	return s.finishTransition(ctx, result, err, id, "complete_with_result", "a non-terminal status")
}

// finishTransition checks the outcome of a status-guarded update. Zero
// affected rows means either the record does not exist or another worker got
// there first; the two cases are told apart with a follow-up read.
func (s *PostgresTaskRecordStore) finishTransition(ctx context.Context, result sql.Result, execErr error, id, operation, expected string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if execErr != nil {
		log.Error("failed to update task record",
			"task_id", id,
			"operation", operation,
			"error", execErr)
		return fmt.Errorf("failed to update task record (%s): %w", operation, MapError(execErr))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		record, err := s.GetByID(ctx, id)
		if err != nil {
			return err
		}
		log.Debug("task record transition lost to a concurrent update",
			"task_id", id,
			"operation", operation,
			"current_status", string(record.Status))
		return fmt.Errorf("%w: task %s is %s, expected %s",
			store.ErrStaleStatus, id, record.Status, expected)
	}

	log.Debug("task record updated",
		"task_id", id,
		"operation", operation)
	return nil
}

// ListByStatus implements store.TaskRecordStore.ListByStatus.
func (s *PostgresTaskRecordStore) ListByStatus(ctx context.Context, statuses ...domain.Status) ([]*domain.TaskRecord, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if len(statuses) == 0 {
		return []*domain.TaskRecord{}, nil
	}

	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = string(status)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM task_records
		WHERE status IN (%s)
		ORDER BY created_at ASC, id ASC
	`, taskRecordColumns, strings.Join(placeholders, ", "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query task records by status",
			"error", err)
		return nil, fmt.Errorf("failed to query task records by status: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", "error", err)
		}
	}()

	var records []*domain.TaskRecord
	for rows.Next() {
		record, err := scanTaskRecord(rows)
		if err != nil {
			log.Error("failed to scan task record row", "error", err)
			return nil, fmt.Errorf("failed to scan task record row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		log.Error("error iterating task record rows", "error", err)
		return nil, fmt.Errorf("error iterating task record rows: %w", err)
	}

	if records == nil {
		records = []*domain.TaskRecord{}
	}
	return records, nil
}

// Count implements store.TaskRecordStore.Count.
func (s *PostgresTaskRecordStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM task_records`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count task records: %w", err)
	}
	return count, nil
}

// Ping implements store.TaskRecordStore.Ping.
func (s *PostgresTaskRecordStore) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("store unreachable: %w", err)
	}
	return nil
}

// RemoveDuplicates implements store.TaskRecordStore.RemoveDuplicates. For any
// task id with more than one row, the newest row (created_at, then row id)
// survives and the rest are deleted.
func (s *PostgresTaskRecordStore) RemoveDuplicates(ctx context.Context) (int64, int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	inspected, err := s.Count(ctx)
	if err != nil {
		return 0, 0, err
	}

	query := `
		DELETE FROM task_records
		WHERE id IN (
			SELECT id FROM (
				SELECT id,
					ROW_NUMBER() OVER (
						PARTITION BY task_id
						ORDER BY created_at DESC, id DESC
					) AS duplicate_rank
				FROM task_records
			) ranked
			WHERE duplicate_rank > 1
		)
	`
	result, err := s.db.ExecContext(ctx, query)
	if err != nil {
		log.Error("failed to remove duplicate task records", "error", err)
		return inspected, 0, fmt.Errorf("failed to remove duplicate task records: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return inspected, 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if removed > 0 {
		log.Warn("removed duplicate task records",
			"inspected", inspected,
			"removed", removed)
	} else {
		log.Debug("no duplicate task records found",
			"inspected", inspected)
	}
	return inspected, removed, nil
}

// PurgeFailedBefore implements store.TaskRecordStore.PurgeFailedBefore. Age
// is measured from updated_at, the moment the record entered ERROR.
func (s *PostgresTaskRecordStore) PurgeFailedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		DELETE FROM task_records
		WHERE status = $1 AND updated_at < $2
	`
	result, err := s.db.ExecContext(ctx, query, string(domain.StatusError), cutoff)
	if err != nil {
		log.Error("failed to purge failed task records",
			"cutoff", cutoff,
			"error", err)
		return 0, fmt.Errorf("failed to purge failed task records: %w", err)
	}

	purged, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if purged > 0 {
		log.Info("purged failed task records",
			"count", purged,
			"cutoff", cutoff)
	}
	return purged, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTaskRecord(row rowScanner) (*domain.TaskRecord, error) {
	var record domain.TaskRecord
	var status string

	err := row.Scan(
		&record.ID,
		&record.EncryptedPayload,
		&record.DecryptedPayload,
		&record.ResultPayload,
		&status,
		&record.ErrorMessage,
		&record.SourceTag,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	// The CHECK constraint should make this impossible; parse strictly anyway
	// so schema drift surfaces as an error, not a phantom status.
	parsed, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	record.Status = parsed
	return &record, nil
}
