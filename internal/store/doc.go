// Package store defines the persistence interfaces for task records. The
// pipeline and relay layers depend only on these interfaces, keeping the
// state machine logic independent of the PostgreSQL implementation under
// internal/platform/postgres.
package store
