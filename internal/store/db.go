package store

import (
	"context"
	"database/sql"
)

// DBTX abstracts the database handle the task record store runs its
// statements against. Both *sql.DB and *sql.Tx satisfy it, which is what
// lets WithTx hand out a transactional view of the same store.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
