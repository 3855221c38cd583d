// Package audit keeps the append-only record of responses and session
// events. Response bodies can be pruned; invocation metadata never is.
package audit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cozyreq/cozyreq/internal/db"
	"github.com/cozyreq/cozyreq/internal/models"
)

// Log records responses and session events. Reads of recent records are
// served from an in-memory cache in front of the database.
type Log struct {
	database *db.DB

	mu    sync.RWMutex
	cache map[string]*models.ResponseRecord
}

// New creates an audit log backed by the given database.
func New(database *db.DB) *Log {
	return &Log{
		database: database,
		cache:    make(map[string]*models.ResponseRecord),
	}
}

// Record stores the response of a completed invocation exactly once. A second
// record for the same invocation is rejected.
func (l *Log) Record(rec *models.ResponseRecord) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}

	if err := l.database.InsertResponseRecord(rec); err != nil {
		if errors.Is(err, models.ErrDuplicateRecord) {
			return &models.InternalError{
				Op:  fmt.Sprintf("record response for invocation %s", rec.InvocationID),
				Err: models.ErrDuplicateRecord,
			}
		}
		return err
	}

	l.mu.Lock()
	l.cache[rec.InvocationID] = rec
	l.mu.Unlock()
	return nil
}

// Get returns the recorded response for an invocation. Serving from the log
// never re-executes anything.
func (l *Log) Get(invocationID string) (*models.ResponseRecord, error) {
	l.mu.RLock()
	rec, ok := l.cache[invocationID]
	l.mu.RUnlock()
	if ok {
		return rec, nil
	}

	rec, err := l.database.GetResponseRecord(invocationID)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cache[invocationID] = rec
	l.mu.Unlock()
	return rec, nil
}

// Prune drops response bodies recorded before the cutoff. Status codes,
// headers, durations, and the invocations themselves stay queryable.
func (l *Log) Prune(before time.Time) (int64, error) {
	n, err := l.database.PruneResponseBodies(before)
	if err != nil {
		return 0, err
	}

	// Pruned rows may still be cached with their bodies; drop them.
	l.mu.Lock()
	for id, rec := range l.cache {
		if rec.RecordedAt.Before(before) {
			delete(l.cache, id)
		}
	}
	l.mu.Unlock()
	return n, nil
}

// Event appends an entry to the session event log.
func (l *Log) Event(eventType models.EventType, message, metadata string) error {
	return l.database.InsertSessionEvent(&models.SessionEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Message:   message,
		Metadata:  metadata,
		Timestamp: time.Now(),
	})
}

// Events returns session events in time order, optionally filtered by type.
func (l *Log) Events(types ...models.EventType) ([]models.SessionEvent, error) {
	return l.database.ListSessionEvents(types...)
}

// Search returns session events whose message contains the substring.
func (l *Log) Search(substr string, types ...models.EventType) ([]models.SessionEvent, error) {
	return l.database.SearchSessionEvents(substr, types...)
}
