package db

import (
	"fmt"
	"testing"
	"time"

	"github.com/cozyreq/cozyreq/internal/models"
)

func insertTestEvent(t *testing.T, db *DB, id string, eventType models.EventType, message string, at time.Time) {
	t.Helper()
	err := db.InsertSessionEvent(&models.SessionEvent{
		ID:        id,
		Type:      eventType,
		Message:   message,
		Timestamp: at,
	})
	if err != nil {
		t.Fatalf("InsertSessionEvent failed: %v", err)
	}
}

func TestListSessionEvents_Ordered(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	base := time.Now()
	insertTestEvent(t, db, "e2", models.EventCall, "GET /users finished", base.Add(time.Second))
	insertTestEvent(t, db, "e1", models.EventInfo, "session started", base)
	insertTestEvent(t, db, "e3", models.EventError, "refresh failed", base.Add(2*time.Second))

	events, err := db.ListSessionEvents()
	if err != nil {
		t.Fatalf("ListSessionEvents failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	for i, want := range []string{"e1", "e2", "e3"} {
		if events[i].ID != want {
			t.Errorf("Position %d: expected %s, got %s", i, want, events[i].ID)
		}
	}
}

func TestListSessionEvents_FilterByType(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	base := time.Now()
	insertTestEvent(t, db, "e1", models.EventInfo, "session started", base)
	insertTestEvent(t, db, "e2", models.EventCall, "GET /users finished", base.Add(time.Second))
	insertTestEvent(t, db, "e3", models.EventError, "refresh failed", base.Add(2*time.Second))
	insertTestEvent(t, db, "e4", models.EventDebug, "worker picked up job", base.Add(3*time.Second))

	events, err := db.ListSessionEvents(models.EventCall, models.EventError)
	if err != nil {
		t.Fatalf("ListSessionEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].Type != models.EventCall || events[1].Type != models.EventError {
		t.Errorf("Filter returned wrong types: %v, %v", events[0].Type, events[1].Type)
	}
}

func TestSearchSessionEvents(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	base := time.Now()
	insertTestEvent(t, db, "e1", models.EventCall, "GET /users finished: succeeded", base)
	insertTestEvent(t, db, "e2", models.EventCall, "POST /orders finished: failed", base.Add(time.Second))
	insertTestEvent(t, db, "e3", models.EventInfo, "session started", base.Add(2*time.Second))

	events, err := db.SearchSessionEvents("finished")
	if err != nil {
		t.Fatalf("SearchSessionEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 matches, got %d", len(events))
	}

	events, err = db.SearchSessionEvents("finished", models.EventCall)
	if err != nil {
		t.Fatalf("SearchSessionEvents with filter failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 matches with type filter, got %d", len(events))
	}

	events, err = db.SearchSessionEvents("orders")
	if err != nil {
		t.Fatalf("SearchSessionEvents failed: %v", err)
	}
	if len(events) != 1 || events[0].ID != "e2" {
		t.Errorf("Expected only e2, got %v", events)
	}
}

func TestSessionEvents_AppendOnlyGrowth(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	base := time.Now()
	for i := 0; i < 10; i++ {
		insertTestEvent(t, db, fmt.Sprintf("e%d", i), models.EventDebug, "tick", base.Add(time.Duration(i)*time.Millisecond))
	}

	events, err := db.ListSessionEvents()
	if err != nil {
		t.Fatalf("ListSessionEvents failed: %v", err)
	}
	if len(events) != 10 {
		t.Errorf("Expected 10 events, got %d", len(events))
	}
}
