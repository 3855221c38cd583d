package audit

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cozyreq/cozyreq/internal/db"
	"github.com/cozyreq/cozyreq/internal/models"
)

func newTestLog(t *testing.T) (*Log, *db.DB) {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return New(database), database
}

func testRecord(invocationID string) *models.ResponseRecord {
	return &models.ResponseRecord{
		InvocationID: invocationID,
		StatusCode:   200,
		Headers:      map[string]string{"Content-Type": "application/json"},
		Body:         []byte(`{"ok":true}`),
		DurationMs:   17,
		RecordedAt:   time.Now(),
	}
}

func TestRecordAndGet(t *testing.T) {
	log, _ := newTestLog(t)

	if err := log.Record(testRecord("inv-1")); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	rec, err := log.Get("inv-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.StatusCode != 200 {
		t.Errorf("Expected status 200, got %d", rec.StatusCode)
	}
}

func TestRecord_ExactlyOnce(t *testing.T) {
	log, _ := newTestLog(t)

	if err := log.Record(testRecord("inv-1")); err != nil {
		t.Fatalf("first Record failed: %v", err)
	}

	err := log.Record(testRecord("inv-1"))
	if !errors.Is(err, models.ErrDuplicateRecord) {
		t.Errorf("Expected ErrDuplicateRecord, got %v", err)
	}

	var ierr *models.InternalError
	if !errors.As(err, &ierr) {
		t.Errorf("Expected InternalError wrapper, got %T", err)
	}
}

func TestGet_ServedFromLogNotNetwork(t *testing.T) {
	log, database := newTestLog(t)

	if err := log.Record(testRecord("inv-1")); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	// Repeated reads return the same stored record.
	first, err := log.Get("inv-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	second, err := log.Get("inv-1")
	if err != nil {
		t.Fatalf("second Get failed: %v", err)
	}
	if string(first.Body) != string(second.Body) {
		t.Error("Repeated reads diverged")
	}

	// A fresh Log over the same database still serves the record.
	reopened := New(database)
	rec, err := reopened.Get("inv-1")
	if err != nil {
		t.Fatalf("Get on fresh log failed: %v", err)
	}
	if rec.StatusCode != 200 {
		t.Errorf("Expected persisted record, got %+v", rec)
	}
}

func TestGet_NotFound(t *testing.T) {
	log, _ := newTestLog(t)

	_, err := log.Get("missing")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestPrune_DropsBodiesAndCache(t *testing.T) {
	log, _ := newTestLog(t)

	old := testRecord("inv-old")
	old.RecordedAt = time.Now().Add(-48 * time.Hour)
	if err := log.Record(old); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := log.Record(testRecord("inv-fresh")); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	n, err := log.Prune(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 pruned record, got %d", n)
	}

	rec, err := log.Get("inv-old")
	if err != nil {
		t.Fatalf("Get after prune failed: %v", err)
	}
	if len(rec.Body) != 0 {
		t.Errorf("Expected pruned body, got %q", rec.Body)
	}
	if rec.StatusCode != 200 || rec.DurationMs != 17 {
		t.Error("Prune must keep status and duration")
	}

	rec, err = log.Get("inv-fresh")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(rec.Body) == 0 {
		t.Error("Fresh record's body was pruned")
	}
}

func TestEventLog(t *testing.T) {
	log, _ := newTestLog(t)

	if err := log.Event(models.EventInfo, "session started", ""); err != nil {
		t.Fatalf("Event failed: %v", err)
	}
	if err := log.Event(models.EventCall, "GET /users finished: succeeded", "inv-1"); err != nil {
		t.Fatalf("Event failed: %v", err)
	}
	if err := log.Event(models.EventError, "refresh failed", ""); err != nil {
		t.Fatalf("Event failed: %v", err)
	}

	events, err := log.Events()
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}

	calls, err := log.Events(models.EventCall)
	if err != nil {
		t.Fatalf("Events with filter failed: %v", err)
	}
	if len(calls) != 1 || calls[0].Metadata != "inv-1" {
		t.Errorf("Expected the call event with metadata, got %v", calls)
	}

	matches, err := log.Search("users")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(matches) != 1 {
		t.Errorf("Expected 1 search match, got %d", len(matches))
	}
}
