// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides owner/token persistence with automatic schema creation

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys so owner deletion cascades to tokens
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS owners (
			id           TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			created_at   TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS access_tokens (
			id               TEXT PRIMARY KEY,
			owner_id         TEXT NOT NULL REFERENCES owners(id) ON DELETE CASCADE,
			name             TEXT NOT NULL,
			secret_digest    TEXT NOT NULL UNIQUE,
			secret_prefix    TEXT NOT NULL DEFAULT '',
			encrypted_secret TEXT,
			created_at       TEXT NOT NULL,
			expires_at       TEXT,
			last_used_at     TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_access_tokens_owner ON access_tokens(owner_id);
		CREATE INDEX IF NOT EXISTS idx_access_tokens_owner_name ON access_tokens(owner_id, name);
		CREATE INDEX IF NOT EXISTS idx_access_tokens_expires ON access_tokens(expires_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		check  string // Query to check if migration is needed
		apply  string // Query to apply the migration
		column string // Column name for logging
	}{
		{
			check:  `SELECT 1 FROM pragma_table_info('access_tokens') WHERE name = 'secret_prefix'`,
			apply:  `ALTER TABLE access_tokens ADD COLUMN secret_prefix TEXT NOT NULL DEFAULT ''`,
			column: "secret_prefix",
		},
		{
			check:  `SELECT 1 FROM pragma_table_info('access_tokens') WHERE name = 'encrypted_secret'`,
			apply:  `ALTER TABLE access_tokens ADD COLUMN encrypted_secret TEXT`,
			column: "encrypted_secret",
		},
		{
			check:  `SELECT 1 FROM pragma_table_info('access_tokens') WHERE name = 'last_used_at'`,
			apply:  `ALTER TABLE access_tokens ADD COLUMN last_used_at TEXT`,
			column: "last_used_at",
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(m.check).Scan(&exists)
		if err == nil {
			// Column already exists, skip
			continue
		}
		// Column doesn't exist, apply migration
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to access_tokens: %w", m.column, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", "access_tokens")
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// nullString converts an empty string to nil for nullable columns
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// ptrToString returns the dereferenced string or empty string if nil.
func ptrToString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// formatNullTime renders a nullable timestamp as RFC3339 or NULL
func formatNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// parseNullTime parses an RFC3339 value from a nullable column.
// Unparseable values are logged and treated as NULL.
func parseNullTime(ns sql.NullString, field, id string) *time.Time {
	if !ns.Valid {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		slog.Warn("failed to parse stored timestamp", "field", field, "id", id, "error", err)
		return nil
	}
	return &parsed
}

// Ensure SQLiteStore implements the combined Store interface.
var _ Store = (*SQLiteStore)(nil)
