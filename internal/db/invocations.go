package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cozyreq/cozyreq/internal/models"
)

// InsertInvocation appends a new invocation row. The resolved request is
// stored verbatim so later template edits cannot change the audit trail.
func (db *DB) InsertInvocation(inv *models.Invocation) error {
	headers, err := json.Marshal(inv.Request.Headers)
	if err != nil {
		return fmt.Errorf("failed to marshal request headers: %w", err)
	}

	createdAt := inv.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
		inv.CreatedAt = createdAt
	}

	query := `
		INSERT INTO invocations (id, template_id, template_revision, method, url, headers, body, status, attempts, error, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = db.ExecContext(context.Background(), query,
		inv.ID,
		inv.TemplateID,
		inv.Request.TemplateRevision,
		inv.Request.Method,
		inv.Request.URL,
		string(headers),
		nullString(inv.Request.Body),
		string(inv.Status),
		inv.Attempts,
		nullString(inv.Error),
		formatTime(createdAt),
		nullTime(inv.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert invocation: %w", err)
	}
	return nil
}

// UpdateInvocation advances the status, attempt count, error, and completion
// time of an existing invocation row.
func (db *DB) UpdateInvocation(inv *models.Invocation) error {
	query := `
		UPDATE invocations
		SET status = ?, attempts = ?, error = ?, completed_at = ?
		WHERE id = ?
	`
	res, err := db.ExecContext(context.Background(), query,
		string(inv.Status),
		inv.Attempts,
		nullString(inv.Error),
		nullTime(inv.CompletedAt),
		inv.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update invocation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// GetInvocation returns one invocation by id.
func (db *DB) GetInvocation(id string) (*models.Invocation, error) {
	query := `
		SELECT id, template_id, template_revision, method, url, headers, body, status, attempts, error, created_at, completed_at
		FROM invocations
		WHERE id = ?
	`
	row := db.QueryRowContext(context.Background(), query, id)
	inv, err := scanInvocation(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	return inv, err
}

// ListInvocationsByTemplate returns the full, time-ordered invocation history
// of a template. Each call runs a fresh query, so iteration restarts from the
// beginning.
func (db *DB) ListInvocationsByTemplate(templateID string) ([]models.Invocation, error) {
	query := `
		SELECT id, template_id, template_revision, method, url, headers, body, status, attempts, error, created_at, completed_at
		FROM invocations
		WHERE template_id = ?
		ORDER BY created_at, id
	`
	return db.listInvocations(query, templateID)
}

// ListRecentInvocations returns the most recent invocations across all
// templates, newest first.
func (db *DB) ListRecentInvocations(limit int) ([]models.Invocation, error) {
	query := `
		SELECT id, template_id, template_revision, method, url, headers, body, status, attempts, error, created_at, completed_at
		FROM invocations
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	return db.listInvocations(query, limit)
}

func (db *DB) listInvocations(query string, args ...any) ([]models.Invocation, error) {
	rows, err := db.QueryContext(context.Background(), query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invocations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var invocations []models.Invocation
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, err
		}
		invocations = append(invocations, *inv)
	}
	return invocations, rows.Err()
}

// GetTemplateStats aggregates invocation counts by status for one template.
func (db *DB) GetTemplateStats(templateID string) (*models.TemplateStats, error) {
	query := `
		SELECT
			COUNT(*) as total,
			SUM(CASE WHEN status = 'succeeded' THEN 1 ELSE 0 END) as succeeded,
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END) as failed,
			SUM(CASE WHEN status = 'cancelled' THEN 1 ELSE 0 END) as cancelled,
			SUM(CASE WHEN status = 'running' THEN 1 ELSE 0 END) as running,
			SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END) as pending
		FROM invocations
		WHERE template_id = ?
	`
	var stats models.TemplateStats
	var succeeded, failed, cancelled, running, pending sql.NullInt64
	err := db.QueryRowContext(context.Background(), query, templateID).Scan(
		&stats.Total,
		&succeeded,
		&failed,
		&cancelled,
		&running,
		&pending,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query template stats: %w", err)
	}
	stats.Succeeded = int(succeeded.Int64)
	stats.Failed = int(failed.Int64)
	stats.Cancelled = int(cancelled.Int64)
	stats.Running = int(running.Int64)
	stats.Pending = int(pending.Int64)
	return &stats, nil
}

func scanInvocation(row rowScanner) (*models.Invocation, error) {
	var inv models.Invocation
	var headers string
	var body, errStr, completedAt sql.NullString
	var createdAt string

	err := row.Scan(
		&inv.ID,
		&inv.TemplateID,
		&inv.Request.TemplateRevision,
		&inv.Request.Method,
		&inv.Request.URL,
		&headers,
		&body,
		&inv.Status,
		&inv.Attempts,
		&errStr,
		&createdAt,
		&completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan invocation: %w", err)
	}

	inv.Request.TemplateID = inv.TemplateID
	inv.Request.Body = body.String
	inv.Error = errStr.String

	if err := json.Unmarshal([]byte(headers), &inv.Request.Headers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request headers: %w", err)
	}

	inv.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse invocation created_at: %w", err)
	}
	if completedAt.Valid {
		inv.CompletedAt, err = parseTime(completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse invocation completed_at: %w", err)
		}
	}
	return &inv, nil
}

// nullTime returns a sql.NullString holding a formatted timestamp, or NULL
// for the zero time.
func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}
