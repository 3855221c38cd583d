package db

import (
	"errors"
	"testing"
	"time"

	"github.com/cozyreq/cozyreq/internal/models"
)

func testTemplate(id string, revision int) *models.RequestTemplate {
	return &models.RequestTemplate{
		ID:         id,
		Revision:   revision,
		Name:       "get user",
		Method:     "GET",
		URLPattern: "https://api.example.com/users/{id}",
		Headers:    map[string]string{"Accept": "application/json"},
		Parameters: []models.Parameter{
			{Name: "id", Kind: models.ParamString, Required: true},
		},
		CreatedAt: time.Now(),
	}
}

func TestInsertAndGetTemplate(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	tmpl := testTemplate("tmpl-1", 1)
	if err := db.InsertTemplate(tmpl); err != nil {
		t.Fatalf("InsertTemplate failed: %v", err)
	}

	got, err := db.GetTemplate("tmpl-1")
	if err != nil {
		t.Fatalf("GetTemplate failed: %v", err)
	}

	if got.Name != tmpl.Name {
		t.Errorf("Expected name %q, got %q", tmpl.Name, got.Name)
	}
	if got.URLPattern != tmpl.URLPattern {
		t.Errorf("Expected url pattern %q, got %q", tmpl.URLPattern, got.URLPattern)
	}
	if got.Headers["Accept"] != "application/json" {
		t.Errorf("Headers did not round-trip: %v", got.Headers)
	}
	if len(got.Parameters) != 1 || got.Parameters[0].Name != "id" {
		t.Errorf("Parameters did not round-trip: %v", got.Parameters)
	}
}

func TestGetTemplate_NotFound(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	_, err := db.GetTemplate("missing")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestGetTemplate_ReturnsLatestRevision(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	rev1 := testTemplate("tmpl-1", 1)
	if err := db.InsertTemplate(rev1); err != nil {
		t.Fatalf("InsertTemplate rev 1 failed: %v", err)
	}

	rev2 := testTemplate("tmpl-1", 2)
	rev2.Name = "get user v2"
	if err := db.InsertTemplate(rev2); err != nil {
		t.Fatalf("InsertTemplate rev 2 failed: %v", err)
	}

	got, err := db.GetTemplate("tmpl-1")
	if err != nil {
		t.Fatalf("GetTemplate failed: %v", err)
	}
	if got.Revision != 2 {
		t.Errorf("Expected revision 2, got %d", got.Revision)
	}
	if got.Name != "get user v2" {
		t.Errorf("Expected latest name, got %q", got.Name)
	}

	// The old revision stays reachable.
	old, err := db.GetTemplateRevision("tmpl-1", 1)
	if err != nil {
		t.Fatalf("GetTemplateRevision failed: %v", err)
	}
	if old.Name != "get user" {
		t.Errorf("Expected original name on revision 1, got %q", old.Name)
	}
}

func TestLatestTemplateRevision(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	rev, err := db.LatestTemplateRevision("missing")
	if err != nil {
		t.Fatalf("LatestTemplateRevision failed: %v", err)
	}
	if rev != 0 {
		t.Errorf("Expected 0 for missing template, got %d", rev)
	}

	if err := db.InsertTemplate(testTemplate("tmpl-1", 1)); err != nil {
		t.Fatalf("InsertTemplate failed: %v", err)
	}
	if err := db.InsertTemplate(testTemplate("tmpl-1", 2)); err != nil {
		t.Fatalf("InsertTemplate failed: %v", err)
	}

	rev, err = db.LatestTemplateRevision("tmpl-1")
	if err != nil {
		t.Fatalf("LatestTemplateRevision failed: %v", err)
	}
	if rev != 2 {
		t.Errorf("Expected revision 2, got %d", rev)
	}
}

func TestListTemplates_LatestRevisionOnly(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	if err := db.InsertTemplate(testTemplate("tmpl-a", 1)); err != nil {
		t.Fatalf("InsertTemplate failed: %v", err)
	}
	if err := db.InsertTemplate(testTemplate("tmpl-a", 2)); err != nil {
		t.Fatalf("InsertTemplate failed: %v", err)
	}
	if err := db.InsertTemplate(testTemplate("tmpl-b", 1)); err != nil {
		t.Fatalf("InsertTemplate failed: %v", err)
	}

	templates, err := db.ListTemplates()
	if err != nil {
		t.Fatalf("ListTemplates failed: %v", err)
	}
	if len(templates) != 2 {
		t.Fatalf("Expected 2 templates, got %d", len(templates))
	}
	for _, tmpl := range templates {
		if tmpl.ID == "tmpl-a" && tmpl.Revision != 2 {
			t.Errorf("Expected latest revision for tmpl-a, got %d", tmpl.Revision)
		}
	}
}
