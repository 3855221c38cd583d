package app

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/cozyreq/cozyreq/internal/models"
)

func keyMsg(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func testTemplates() []models.RequestTemplate {
	return []models.RequestTemplate{
		{ID: "tmpl-a", Name: "list users"},
		{ID: "tmpl-b", Name: "create user"},
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		v, length, want int
	}{
		{0, 0, 0},
		{5, 0, 0},
		{-1, 3, 0},
		{0, 3, 0},
		{2, 3, 2},
		{3, 3, 2},
		{10, 3, 2},
	}
	for _, tt := range tests {
		if got := clamp(tt.v, tt.length); got != tt.want {
			t.Errorf("clamp(%d, %d) = %d, want %d", tt.v, tt.length, got, tt.want)
		}
	}
}

func TestUpdate_WindowSize(t *testing.T) {
	m := NewModel(nil)

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	model := updated.(*Model)
	if !model.ready {
		t.Error("Expected model to be ready after a window size message")
	}
	if model.width != 80 || model.height != 24 {
		t.Errorf("Dimensions not stored: %dx%d", model.width, model.height)
	}
}

func TestUpdate_TemplatesLoaded(t *testing.T) {
	m := NewModel(nil)

	updated, cmd := m.Update(TemplatesLoadedMsg{Templates: testTemplates()})
	model := updated.(*Model)
	if model.loading {
		t.Error("Expected loading to clear")
	}
	if len(model.templates) != 2 {
		t.Fatalf("Expected 2 templates, got %d", len(model.templates))
	}
	if model.selectedTemplateID() != "tmpl-a" {
		t.Errorf("Expected first template selected, got %q", model.selectedTemplateID())
	}
	if cmd == nil {
		t.Error("Expected a history load command for the selected template")
	}
}

func TestUpdate_TemplatesLoadedError(t *testing.T) {
	m := NewModel(nil)

	updated, _ := m.Update(TemplatesLoadedMsg{Error: errors.New("boom")})
	model := updated.(*Model)
	if model.notification == "" || !model.notifyError {
		t.Error("Expected an error notification")
	}
}

func TestUpdate_HistoryLoaded_StaleTemplateIgnored(t *testing.T) {
	m := NewModel(nil)
	m.templates = testTemplates()
	m.selectedTemplate = 0

	updated, _ := m.Update(HistoryLoadedMsg{
		TemplateID:  "tmpl-b",
		Invocations: []models.Invocation{{ID: "inv-1"}},
	})
	model := updated.(*Model)
	if len(model.history) != 0 {
		t.Error("Stale history load must be ignored")
	}

	updated, _ = model.Update(HistoryLoadedMsg{
		TemplateID:  "tmpl-a",
		Invocations: []models.Invocation{{ID: "inv-1"}},
		Stats:       &models.TemplateStats{Total: 1},
	})
	model = updated.(*Model)
	if len(model.history) != 1 {
		t.Error("Matching history load must be applied")
	}
	if model.stats == nil || model.stats.Total != 1 {
		t.Error("Stats not applied")
	}
}

func TestHandleKey_Quit(t *testing.T) {
	m := NewModel(nil)

	_, cmd := m.Update(keyMsg('q'))
	if cmd == nil {
		t.Fatal("Expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Expected tea.QuitMsg")
	}
}

func TestHandleKey_SwitchFocus(t *testing.T) {
	m := NewModel(nil)

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	model := updated.(*Model)
	if model.focus != PaneHistory {
		t.Error("Expected focus on history pane")
	}

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyTab})
	model = updated.(*Model)
	if model.focus != PaneTemplates {
		t.Error("Expected focus back on templates pane")
	}
}

func TestHandleKey_NavigationClearsSelection(t *testing.T) {
	m := NewModel(nil)
	m.templates = testTemplates()
	m.history = []models.Invocation{{ID: "inv-1"}}
	m.record = &models.ResponseRecord{InvocationID: "inv-1"}

	updated, _ := m.Update(keyMsg('j'))
	model := updated.(*Model)
	if model.selectedTemplate != 1 {
		t.Errorf("Expected selection 1, got %d", model.selectedTemplate)
	}
	if model.history != nil || model.record != nil {
		t.Error("Changing templates must clear history and response")
	}

	// Selection stops at the end of the list.
	updated, _ = model.Update(keyMsg('j'))
	model = updated.(*Model)
	if model.selectedTemplate != 1 {
		t.Errorf("Expected selection pinned at 1, got %d", model.selectedTemplate)
	}
}

func TestHandleKey_HelpToggle(t *testing.T) {
	m := NewModel(nil)

	updated, _ := m.Update(keyMsg('?'))
	model := updated.(*Model)
	if !model.showHelp {
		t.Error("Expected help to show")
	}

	updated, _ = model.Update(keyMsg('?'))
	model = updated.(*Model)
	if model.showHelp {
		t.Error("Expected help to hide")
	}
}

func TestUpdate_Notifications(t *testing.T) {
	m := NewModel(nil)

	updated, cmd := m.Update(NotificationMsg{Message: "saved", IsError: false})
	model := updated.(*Model)
	if model.notification != "saved" || model.notifyError {
		t.Errorf("Notification not applied: %q", model.notification)
	}
	if cmd == nil {
		t.Error("Expected a clear-notification command")
	}

	updated, _ = model.Update(ClearNotificationMsg{})
	model = updated.(*Model)
	if model.notification != "" {
		t.Error("Expected notification cleared")
	}
}
