package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cozyreq/cozyreq/internal/models"
)

// InsertTemplate stores a template revision. The (id, revision) pair must be
// unique; revisions are never overwritten.
func (db *DB) InsertTemplate(tmpl *models.RequestTemplate) error {
	headers, err := json.Marshal(tmpl.Headers)
	if err != nil {
		return fmt.Errorf("failed to marshal headers: %w", err)
	}
	params, err := json.Marshal(tmpl.Parameters)
	if err != nil {
		return fmt.Errorf("failed to marshal parameters: %w", err)
	}

	createdAt := tmpl.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
		tmpl.CreatedAt = createdAt
	}

	query := `
		INSERT INTO templates (id, revision, name, method, url_pattern, headers, body_template, parameters, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = db.ExecContext(context.Background(), query,
		tmpl.ID,
		tmpl.Revision,
		tmpl.Name,
		tmpl.Method,
		tmpl.URLPattern,
		string(headers),
		tmpl.BodyTemplate,
		string(params),
		formatTime(createdAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert template: %w", err)
	}
	return nil
}

// GetTemplate returns the latest revision of a template.
func (db *DB) GetTemplate(id string) (*models.RequestTemplate, error) {
	query := `
		SELECT id, revision, name, method, url_pattern, headers, body_template, parameters, created_at
		FROM templates
		WHERE id = ?
		ORDER BY revision DESC
		LIMIT 1
	`
	return db.scanTemplate(db.QueryRowContext(context.Background(), query, id))
}

// GetTemplateRevision returns one specific revision of a template.
func (db *DB) GetTemplateRevision(id string, revision int) (*models.RequestTemplate, error) {
	query := `
		SELECT id, revision, name, method, url_pattern, headers, body_template, parameters, created_at
		FROM templates
		WHERE id = ? AND revision = ?
	`
	return db.scanTemplate(db.QueryRowContext(context.Background(), query, id, revision))
}

// LatestTemplateRevision returns the highest stored revision number for a
// template, or 0 if the template does not exist.
func (db *DB) LatestTemplateRevision(id string) (int, error) {
	var revision sql.NullInt64
	query := `SELECT MAX(revision) FROM templates WHERE id = ?`
	if err := db.QueryRowContext(context.Background(), query, id).Scan(&revision); err != nil {
		return 0, fmt.Errorf("failed to query template revision: %w", err)
	}
	if !revision.Valid {
		return 0, nil
	}
	return int(revision.Int64), nil
}

// ListTemplates returns the latest revision of every template, ordered by name.
func (db *DB) ListTemplates() ([]models.RequestTemplate, error) {
	query := `
		SELECT t.id, t.revision, t.name, t.method, t.url_pattern, t.headers, t.body_template, t.parameters, t.created_at
		FROM templates t
		WHERE t.revision = (SELECT MAX(revision) FROM templates WHERE id = t.id)
		ORDER BY t.name, t.id
	`
	rows, err := db.QueryContext(context.Background(), query)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var templates []models.RequestTemplate
	for rows.Next() {
		tmpl, err := scanTemplateRow(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *tmpl)
	}
	return templates, rows.Err()
}

// rowScanner abstracts *sql.Row and *sql.Rows for template scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func (db *DB) scanTemplate(row *sql.Row) (*models.RequestTemplate, error) {
	tmpl, err := scanTemplateRow(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	return tmpl, err
}

func scanTemplateRow(row rowScanner) (*models.RequestTemplate, error) {
	var tmpl models.RequestTemplate
	var headers, params, createdAt string

	err := row.Scan(
		&tmpl.ID,
		&tmpl.Revision,
		&tmpl.Name,
		&tmpl.Method,
		&tmpl.URLPattern,
		&headers,
		&tmpl.BodyTemplate,
		&params,
		&createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan template: %w", err)
	}

	if err := json.Unmarshal([]byte(headers), &tmpl.Headers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal headers: %w", err)
	}
	if err := json.Unmarshal([]byte(params), &tmpl.Parameters); err != nil {
		return nil, fmt.Errorf("failed to unmarshal parameters: %w", err)
	}

	tmpl.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template created_at: %w", err)
	}
	return &tmpl, nil
}
