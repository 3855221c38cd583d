package app

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/cozyreq/cozyreq/internal/session"
)

const (
	// DefaultTickInterval is the default interval between ticks.
	DefaultTickInterval = 2 * time.Second

	// NotificationDuration is how long status line messages stay visible.
	NotificationDuration = 5 * time.Second
)

// Commands builds tea.Cmds backed by the session engine.
type Commands struct {
	engine *session.Engine
}

// NewCommands creates a new Commands instance.
func NewCommands(engine *session.Engine) *Commands {
	return &Commands{engine: engine}
}

// Tick returns a command that sends a TickMsg after the specified interval.
func (c *Commands) Tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return TickMsg{Time: t}
	})
}

// LoadTemplates returns a command that loads the template catalog.
func (c *Commands) LoadTemplates() tea.Cmd {
	return func() tea.Msg {
		templates, err := c.engine.Templates()
		return TemplatesLoadedMsg{Templates: templates, Error: err}
	}
}

// LoadHistory returns a command that loads a template's invocation history
// and aggregate stats.
func (c *Commands) LoadHistory(templateID string) tea.Cmd {
	return func() tea.Msg {
		invocations, err := c.engine.History(templateID)
		if err != nil {
			return HistoryLoadedMsg{TemplateID: templateID, Error: err}
		}
		stats, err := c.engine.Stats(templateID)
		return HistoryLoadedMsg{
			TemplateID:  templateID,
			Invocations: invocations,
			Stats:       stats,
			Error:       err,
		}
	}
}

// Execute returns a command that admits an execution of a template.
func (c *Commands) Execute(templateID string, params map[string]any) tea.Cmd {
	return func() tea.Msg {
		id, err := c.engine.Execute(templateID, params)
		return ExecuteResultMsg{TemplateID: templateID, InvocationID: id, Error: err}
	}
}

// Cancel returns a command that requests cancellation of an invocation.
func (c *Commands) Cancel(invocationID string) tea.Cmd {
	return func() tea.Msg {
		err := c.engine.Cancel(invocationID)
		return CancelResultMsg{InvocationID: invocationID, Error: err}
	}
}

// LoadResponse returns a command that fetches a recorded response from the
// audit log.
func (c *Commands) LoadResponse(invocationID string) tea.Cmd {
	return func() tea.Msg {
		rec, err := c.engine.Response(invocationID)
		return ResponseLoadedMsg{InvocationID: invocationID, Record: rec, Error: err}
	}
}

// LoadEventLog returns a command that loads the session event log.
func (c *Commands) LoadEventLog() tea.Cmd {
	return func() tea.Msg {
		events, err := c.engine.EventLog()
		return EventLogLoadedMsg{Events: events, Error: err}
	}
}

// Subscribe returns a command that subscribes to engine events.
func (c *Commands) Subscribe() tea.Cmd {
	ch, _ := c.engine.Subscribe()
	return func() tea.Msg {
		return SubscriptionMsg{Channel: ch}
	}
}

// WaitForEngineEvent returns a command that waits for the next engine event.
func WaitForEngineEvent(ch <-chan session.EngineEvent) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return nil
		}
		return EngineEventMsg{Event: event}
	}
}

// ClearNotification returns a command that clears the status line later.
func (c *Commands) ClearNotification() tea.Cmd {
	return tea.Tick(NotificationDuration, func(_ time.Time) tea.Msg {
		return ClearNotificationMsg{}
	})
}
