// Package db manages the database connection
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Import modernc.org/sqlite as a blank import to register the driver
	_ "modernc.org/sqlite"
)

// timeLayout is the fixed-width UTC timestamp format stored in TEXT columns.
// Fixed width keeps lexicographic and chronological order identical.
const timeLayout = "2006-01-02 15:04:05.000000000"

// DB wraps the SQL database connection with application-specific methods.
type DB struct {
	*sql.DB
	path string
}

// New creates a new database connection and initializes the schema.
func New(path string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := sqlDB.PingContext(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{
		DB:   sqlDB,
		path: path,
	}

	if err := db.configure(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	if err := db.createSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// configure sets up database pragmas for optimal performance.
func (db *DB) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(context.Background(), pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	return nil
}

func (db *DB) createSchema() error {
	if err := db.createTemplatesTable(); err != nil {
		return err
	}
	if err := db.createInvocationsTable(); err != nil {
		return err
	}
	if err := db.createResponseRecordsTable(); err != nil {
		return err
	}
	return db.createSessionEventsTable()
}

func (db *DB) createTemplatesTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS templates (
		id TEXT NOT NULL,
		revision INTEGER NOT NULL,
		name TEXT NOT NULL,
		method TEXT NOT NULL,
		url_pattern TEXT NOT NULL,
		headers TEXT NOT NULL DEFAULT '{}',
		body_template TEXT NOT NULL DEFAULT '',
		parameters TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL,
		PRIMARY KEY (id, revision)
	);
	CREATE INDEX IF NOT EXISTS idx_templates_name ON templates(name);
	`
	_, err := db.ExecContext(context.Background(), query)
	return err
}

func (db *DB) createInvocationsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS invocations (
		id TEXT PRIMARY KEY,
		template_id TEXT NOT NULL,
		template_revision INTEGER NOT NULL,
		method TEXT NOT NULL,
		url TEXT NOT NULL,
		headers TEXT,
		body TEXT,
		status TEXT NOT NULL CHECK(status IN ('pending', 'running', 'succeeded', 'failed', 'cancelled')),
		attempts INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		created_at TEXT NOT NULL,
		completed_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_invocations_template ON invocations(template_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_invocations_status ON invocations(status);
	`
	_, err := db.ExecContext(context.Background(), query)
	return err
}

func (db *DB) createResponseRecordsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS response_records (
		invocation_id TEXT PRIMARY KEY,
		status_code INTEGER NOT NULL DEFAULT 0,
		headers TEXT,
		body BLOB,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		recorded_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_response_records_recorded ON response_records(recorded_at);
	`
	_, err := db.ExecContext(context.Background(), query)
	return err
}

func (db *DB) createSessionEventsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS session_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL CHECK(event_type IN ('info', 'call', 'error', 'debug')),
		message TEXT NOT NULL,
		metadata TEXT,
		timestamp TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_session_events_type ON session_events(event_type);
	CREATE INDEX IF NOT EXISTS idx_session_events_timestamp ON session_events(timestamp);
	`
	_, err := db.ExecContext(context.Background(), query)
	return err
}

// Close closes the database connection gracefully.
func (db *DB) Close() error {
	// Checkpoint WAL before closing
	_, _ = db.ExecContext(context.Background(), "PRAGMA wal_checkpoint(TRUNCATE)")
	return db.DB.Close()
}

// Vacuum performs database maintenance to reclaim space.
func (db *DB) Vacuum() error {
	_, err := db.ExecContext(context.Background(), "VACUUM")
	return err
}

// formatTime serializes a timestamp for storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime deserializes a stored timestamp.
func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// nullString returns a sql.NullString from a string.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
