// Package testdb wires integration tests to a disposable Postgres database.
// Tests call Open for a migrated connection and Begin for a transaction that
// rolls back when the test finishes, so suites leave no rows behind and can
// share one database.
package testdb

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver

	"github.com/vaultrelay/relay-api/internal/platform/postgres"
)

// Environment variables recognized when resolving the test database.
const (
	// EnvTestDatabaseURL is the preferred variable for integration tests.
	EnvTestDatabaseURL = "RELAY_TEST_DATABASE_URL"

	// EnvDatabaseURL is the generic fallback many CI images export.
	EnvDatabaseURL = "DATABASE_URL"
)

// ciVars are the markers common CI providers export.
var ciVars = []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS", "CIRCLECI"}

// IsCI reports whether the process runs under a CI provider.
func IsCI() bool {
	for _, v := range ciVars {
		if os.Getenv(v) != "" {
			return true
		}
	}
	return false
}

// URL returns the configured test database URL, preferring
// RELAY_TEST_DATABASE_URL over the generic DATABASE_URL. Empty when neither
// is set.
func URL() string {
	if u := os.Getenv(EnvTestDatabaseURL); u != "" {
		return u
	}
	return os.Getenv(EnvDatabaseURL)
}

// Open connects to the test database and applies the embedded migrations.
// Without a configured URL the test skips locally but fails in CI, so
// integration coverage cannot silently vanish from the pipeline. The
// connection closes itself when the test finishes.
func Open(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := URL()
	if dbURL == "" {
		if IsCI() {
			t.Fatalf("no test database configured in CI: set %s", EnvTestDatabaseURL)
		}
		t.Skipf("skipping integration test: %s not set", EnvTestDatabaseURL)
	}

	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("error closing test database: %v", err)
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("failed to ping test database at %s: %v", MaskURL(dbURL), err)
	}

	if err := postgres.Migrate(db); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}

	return db
}

// Begin starts a transaction that rolls back when the test finishes. A store
// built on it sees its own writes but leaves no trace in the database.
func Begin(t *testing.T, db *sql.DB) *sql.Tx {
	t.Helper()

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("failed to begin test transaction: %v", err)
	}
	t.Cleanup(func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			t.Logf("error rolling back test transaction: %v", err)
		}
	})

	return tx
}

// MaskURL hides the credential portion of a database URL for log output.
func MaskURL(dbURL string) string {
	scheme := strings.Index(dbURL, "://")
	at := strings.LastIndex(dbURL, "@")
	if scheme == -1 || at == -1 || at < scheme+3 {
		return dbURL
	}
	return dbURL[:scheme+3] + "****" + dbURL[at:]
}
