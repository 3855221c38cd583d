package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cozyreq/cozyreq/internal/models"
)

// InsertResponseRecord writes the response record for an invocation. Each
// invocation gets exactly one record; a second write for the same id returns
// models.ErrDuplicateRecord.
func (db *DB) InsertResponseRecord(rec *models.ResponseRecord) error {
	headers, err := json.Marshal(rec.Headers)
	if err != nil {
		return fmt.Errorf("failed to marshal response headers: %w", err)
	}

	recordedAt := rec.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
		rec.RecordedAt = recordedAt
	}

	// The conflict clause makes duplicate detection atomic; a lost race
	// surfaces as zero affected rows, never as a constraint error.
	query := `
		INSERT INTO response_records (invocation_id, status_code, headers, body, duration_ms, error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(invocation_id) DO NOTHING
	`
	res, err := db.ExecContext(context.Background(), query,
		rec.InvocationID,
		rec.StatusCode,
		string(headers),
		rec.Body,
		rec.DurationMs,
		nullString(rec.Error),
		formatTime(recordedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert response record: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm response record insert: %w", err)
	}
	if n == 0 {
		return models.ErrDuplicateRecord
	}
	return nil
}

// GetResponseRecord returns the stored response for an invocation.
func (db *DB) GetResponseRecord(invocationID string) (*models.ResponseRecord, error) {
	query := `
		SELECT invocation_id, status_code, headers, body, duration_ms, error, recorded_at
		FROM response_records
		WHERE invocation_id = ?
	`
	var rec models.ResponseRecord
	var headers string
	var body []byte
	var errStr sql.NullString
	var recordedAt string

	err := db.QueryRowContext(context.Background(), query, invocationID).Scan(
		&rec.InvocationID,
		&rec.StatusCode,
		&headers,
		&body,
		&rec.DurationMs,
		&errStr,
		&recordedAt,
	)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan response record: %w", err)
	}

	rec.Body = body
	rec.Error = errStr.String
	if err := json.Unmarshal([]byte(headers), &rec.Headers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response headers: %w", err)
	}
	rec.RecordedAt, err = parseTime(recordedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse record recorded_at: %w", err)
	}
	return &rec, nil
}

// PruneResponseBodies clears stored bodies for records older than the cutoff.
// Status, headers, and timing stay intact for audit continuity. Returns the
// number of records pruned.
func (db *DB) PruneResponseBodies(before time.Time) (int64, error) {
	query := `
		UPDATE response_records
		SET body = NULL
		WHERE recorded_at < ? AND body IS NOT NULL
	`
	res, err := db.ExecContext(context.Background(), query, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("failed to prune response bodies: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned records: %w", err)
	}
	return n, nil
}
