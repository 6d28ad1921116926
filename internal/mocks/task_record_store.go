package mocks

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/vaultrelay/relay-api/internal/domain"
	"github.com/vaultrelay/relay-api/internal/store"
)

// MockTaskRecordStore implements store.TaskRecordStore for testing. The
// default implementation keeps records in an ordered slice so duplicate task
// ids remain representable, mirroring the surrogate-key table it stands in
// for. All methods are safe for concurrent use.
type MockTaskRecordStore struct {
	mu   sync.Mutex
	rows []*domain.TaskRecord

	// Function fields for customizable behavior
	InsertOrGetFn        func(ctx context.Context, record *domain.TaskRecord) (*domain.TaskRecord, bool, error)
	GetByIDFn            func(ctx context.Context, id string) (*domain.TaskRecord, error)
	MarkDecryptedFn      func(ctx context.Context, id, plaintext string) error
	MarkProcessingFn     func(ctx context.Context, id string) error
	MarkProcessedFn      func(ctx context.Context, id, resultPlaintext string) error
	MarkEncryptedFn      func(ctx context.Context, id, resultCiphertext string) error
	MarkDeliveredFn      func(ctx context.Context, id string) error
	MarkFailedFn         func(ctx context.Context, id, message string) error
	CompleteWithResultFn func(ctx context.Context, id, resultCiphertext string) error
	ListByStatusFn       func(ctx context.Context, statuses ...domain.Status) ([]*domain.TaskRecord, error)
	RemoveDuplicatesFn   func(ctx context.Context) (int64, int64, error)
	PurgeFailedBeforeFn  func(ctx context.Context, cutoff time.Time) (int64, error)

	// Error injection for default implementations
	InsertErr     error
	TransitionErr error
	CountErr      error
	PingErr       error
}

// NewMockTaskRecordStore creates an empty mock store.
func NewMockTaskRecordStore() *MockTaskRecordStore {
	return &MockTaskRecordStore{}
}

// Seed appends copies of the given records verbatim, without uniqueness
// checks, so tests can construct duplicate-row scenarios directly.
func (m *MockTaskRecordStore) Seed(records ...*domain.TaskRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		cp := *r
		m.rows = append(m.rows, &cp)
	}
}

// Snapshot returns copies of all rows in insertion order.
func (m *MockTaskRecordStore) Snapshot() []*domain.TaskRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*domain.TaskRecord, 0, len(m.rows))
	for _, r := range m.rows {
		cp := *r
		out = append(out, &cp)
	}
	return out
}

// InsertOrGet implements the TaskRecordStore interface.
func (m *MockTaskRecordStore) InsertOrGet(ctx context.Context, record *domain.TaskRecord) (*domain.TaskRecord, bool, error) {
	if m.InsertOrGetFn != nil {
		return m.InsertOrGetFn(ctx, record)
	}

	if m.InsertErr != nil {
		return nil, false, m.InsertErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.rows {
		if r.ID == record.ID {
			cp := *r
			return &cp, false, nil
		}
	}

	cp := *record
	m.rows = append(m.rows, &cp)
	out := cp
	return &out, true, nil
}

// GetByID implements the TaskRecordStore interface.
func (m *MockTaskRecordStore) GetByID(ctx context.Context, id string) (*domain.TaskRecord, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.rows {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, store.ErrTaskRecordNotFound
}

// transition applies a status-guarded mutation the way the SQL
// implementation does: zero matching rows distinguishes "missing" from
// "moved concurrently".
func (m *MockTaskRecordStore) transition(id string, from domain.Status, mutate func(*domain.TaskRecord)) error {
	if m.TransitionErr != nil {
		return m.TransitionErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	found := false
	for _, r := range m.rows {
		if r.ID != id {
			continue
		}
		found = true
		if r.Status != from {
			continue
		}
		mutate(r)
		r.UpdatedAt = time.Now().UTC()
		return nil
	}

	if found {
		return store.ErrStaleStatus
	}
	return store.ErrTaskRecordNotFound
}

// MarkDecrypted implements the TaskRecordStore interface.
func (m *MockTaskRecordStore) MarkDecrypted(ctx context.Context, id, plaintext string) error {
	if m.MarkDecryptedFn != nil {
		return m.MarkDecryptedFn(ctx, id, plaintext)
	}
	return m.transition(id, domain.StatusReceived, func(r *domain.TaskRecord) {
		r.Status = domain.StatusDecrypted
		r.DecryptedPayload = plaintext
	})
}

// MarkProcessing implements the TaskRecordStore interface.
func (m *MockTaskRecordStore) MarkProcessing(ctx context.Context, id string) error {
	if m.MarkProcessingFn != nil {
		return m.MarkProcessingFn(ctx, id)
	}
	return m.transition(id, domain.StatusDecrypted, func(r *domain.TaskRecord) {
		r.Status = domain.StatusProcessing
	})
}

// MarkProcessed implements the TaskRecordStore interface.
func (m *MockTaskRecordStore) MarkProcessed(ctx context.Context, id, resultPlaintext string) error {
	if m.MarkProcessedFn != nil {
		return m.MarkProcessedFn(ctx, id, resultPlaintext)
	}
	return m.transition(id, domain.StatusProcessing, func(r *domain.TaskRecord) {
		r.Status = domain.StatusProcessed
		r.DecryptedPayload = resultPlaintext
	})
}

// MarkEncrypted implements the TaskRecordStore interface.
func (m *MockTaskRecordStore) MarkEncrypted(ctx context.Context, id, resultCiphertext string) error {
	if m.MarkEncryptedFn != nil {
		return m.MarkEncryptedFn(ctx, id, resultCiphertext)
	}
	return m.transition(id, domain.StatusProcessed, func(r *domain.TaskRecord) {
		r.Status = domain.StatusEncrypted
		r.ResultPayload = resultCiphertext
		r.DecryptedPayload = ""
	})
}

// MarkDelivered implements the TaskRecordStore interface.
func (m *MockTaskRecordStore) MarkDelivered(ctx context.Context, id string) error {
	if m.MarkDeliveredFn != nil {
		return m.MarkDeliveredFn(ctx, id)
	}
	return m.transition(id, domain.StatusEncrypted, func(r *domain.TaskRecord) {
		r.Status = domain.StatusSent
	})
}

// MarkFailed implements the TaskRecordStore interface.
func (m *MockTaskRecordStore) MarkFailed(ctx context.Context, id, message string) error {
	if m.MarkFailedFn != nil {
		return m.MarkFailedFn(ctx, id, message)
	}
	if m.TransitionErr != nil {
		return m.TransitionErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	found := false
	for _, r := range m.rows {
		if r.ID != id {
			continue
		}
		found = true
		if r.Status.IsTerminal() {
			continue
		}
		r.Status = domain.StatusError
		r.ErrorMessage = message
		r.DecryptedPayload = ""
		r.UpdatedAt = time.Now().UTC()
		return nil
	}

	if found {
		return store.ErrStaleStatus
	}
	return store.ErrTaskRecordNotFound
}

// CompleteWithResult implements the TaskRecordStore interface.
func (m *MockTaskRecordStore) CompleteWithResult(ctx context.Context, id, resultCiphertext string) error {
	if m.CompleteWithResultFn != nil {
		return m.CompleteWithResultFn(ctx, id, resultCiphertext)
	}
	if m.TransitionErr != nil {
		return m.TransitionErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	found := false
	for _, r := range m.rows {
		if r.ID != id {
			continue
		}
		found = true
		if r.Status.IsTerminal() {
			continue
		}
		r.Status = domain.StatusSent
		r.ResultPayload = resultCiphertext
		r.DecryptedPayload = ""
		r.UpdatedAt = time.Now().UTC()
		return nil
	}

	if found {
		return store.ErrStaleStatus
	}
	return store.ErrTaskRecordNotFound
}

// ListByStatus implements the TaskRecordStore interface.
func (m *MockTaskRecordStore) ListByStatus(ctx context.Context, statuses ...domain.Status) ([]*domain.TaskRecord, error) {
	if m.ListByStatusFn != nil {
		return m.ListByStatusFn(ctx, statuses...)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	want := make(map[domain.Status]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}

	var out []*domain.TaskRecord
	for _, r := range m.rows {
		if want[r.Status] {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Count implements the TaskRecordStore interface.
func (m *MockTaskRecordStore) Count(ctx context.Context) (int64, error) {
	if m.CountErr != nil {
		return 0, m.CountErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.rows)), nil
}

// Ping implements the TaskRecordStore interface.
func (m *MockTaskRecordStore) Ping(ctx context.Context) error {
	return m.PingErr
}

// RemoveDuplicates implements the TaskRecordStore interface.
func (m *MockTaskRecordStore) RemoveDuplicates(ctx context.Context) (int64, int64, error) {
	if m.RemoveDuplicatesFn != nil {
		return m.RemoveDuplicatesFn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	inspected := int64(len(m.rows))

	// Keep, per task id, the newest row by created_at; later insertion wins
	// ties, matching the surrogate-key ordering of the SQL implementation.
	keep := make(map[string]int)
	for i, r := range m.rows {
		j, ok := keep[r.ID]
		if !ok || !m.rows[j].CreatedAt.After(r.CreatedAt) {
			keep[r.ID] = i
		}
	}

	var kept []*domain.TaskRecord
	var removed int64
	for i, r := range m.rows {
		if keep[r.ID] == i {
			kept = append(kept, r)
		} else {
			removed++
		}
	}
	m.rows = kept

	return inspected, removed, nil
}

// PurgeFailedBefore implements the TaskRecordStore interface.
func (m *MockTaskRecordStore) PurgeFailedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.PurgeFailedBeforeFn != nil {
		return m.PurgeFailedBeforeFn(ctx, cutoff)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var kept []*domain.TaskRecord
	var removed int64
	for _, r := range m.rows {
		if r.Status == domain.StatusError && r.UpdatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept

	return removed, nil
}

// WithTx implements the TaskRecordStore interface. The mock has no real
// transactions, so it returns itself.
func (m *MockTaskRecordStore) WithTx(tx *sql.Tx) store.TaskRecordStore {
	return m
}

// Interface satisfaction check.
var _ store.TaskRecordStore = (*MockTaskRecordStore)(nil)
