package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cozyreq/cozyreq/internal/models"
)

// InsertSessionEvent appends an entry to the session event log.
func (db *DB) InsertSessionEvent(event *models.SessionEvent) error {
	timestamp := event.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
		event.Timestamp = timestamp
	}

	query := `
		INSERT INTO session_events (id, event_type, message, metadata, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(context.Background(), query,
		event.ID,
		string(event.Type),
		event.Message,
		nullString(event.Metadata),
		formatTime(timestamp),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session event: %w", err)
	}
	return nil
}

// ListSessionEvents returns events in time order, optionally filtered by type.
func (db *DB) ListSessionEvents(types ...models.EventType) ([]models.SessionEvent, error) {
	query := "SELECT id, event_type, message, metadata, timestamp FROM session_events"
	args := make([]any, 0, len(types))
	if len(types) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(types)), ",")
		query += " WHERE event_type IN (" + placeholders + ")"
		for _, t := range types {
			args = append(args, string(t))
		}
	}
	query += " ORDER BY timestamp, id"
	return db.queryEvents(query, args...)
}

// SearchSessionEvents returns events whose message contains the query
// substring (case-insensitive), optionally filtered by type.
func (db *DB) SearchSessionEvents(substr string, types ...models.EventType) ([]models.SessionEvent, error) {
	query := "SELECT id, event_type, message, metadata, timestamp FROM session_events WHERE message LIKE ?"
	args := []any{"%" + substr + "%"}
	if len(types) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(types)), ",")
		query += " AND event_type IN (" + placeholders + ")"
		for _, t := range types {
			args = append(args, string(t))
		}
	}
	query += " ORDER BY timestamp, id"
	return db.queryEvents(query, args...)
}

func (db *DB) queryEvents(query string, args ...any) ([]models.SessionEvent, error) {
	rows, err := db.QueryContext(context.Background(), query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query session events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []models.SessionEvent
	for rows.Next() {
		var event models.SessionEvent
		var metadata sql.NullString
		var timestamp string
		if err := rows.Scan(&event.ID, &event.Type, &event.Message, &metadata, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan session event: %w", err)
		}
		event.Metadata = metadata.String
		event.Timestamp, err = parseTime(timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to parse event timestamp: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
