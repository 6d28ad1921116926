// Package postgres provides the PostgreSQL implementation of the task record
// store defined in the internal/store package. It handles query execution,
// mapping between domain records and database rows, translation of driver
// errors to store sentinels, and embedded schema migrations.
package postgres
