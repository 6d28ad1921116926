package postgres

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// migrationsTableName tracks applied migrations separately from application
// tables.
const migrationsTableName = "schema_migrations"

// Migrate applies all pending schema migrations embedded in the binary.
// It is safe to call on every startup; goose skips migrations that have
// already been applied.
func Migrate(db *sql.DB) error {
	goose.SetTableName(migrationsTableName)
	goose.SetBaseFS(embeddedMigrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}
