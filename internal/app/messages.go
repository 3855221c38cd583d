package app

import (
	"time"

	"github.com/cozyreq/cozyreq/internal/models"
	"github.com/cozyreq/cozyreq/internal/session"
)

// TickMsg is sent periodically to trigger state refresh.
type TickMsg struct {
	Time time.Time
}

// TemplatesLoadedMsg contains the template catalog.
type TemplatesLoadedMsg struct {
	Templates []models.RequestTemplate
	Error     error
}

// HistoryLoadedMsg contains the invocation history of one template.
type HistoryLoadedMsg struct {
	TemplateID  string
	Invocations []models.Invocation
	Stats       *models.TemplateStats
	Error       error
}

// ExecuteResultMsg contains the outcome of admitting an execution.
type ExecuteResultMsg struct {
	TemplateID   string
	InvocationID string
	Error        error
}

// CancelResultMsg contains the outcome of a cancellation request.
type CancelResultMsg struct {
	InvocationID string
	Error        error
}

// ResponseLoadedMsg contains the recorded response of an invocation.
type ResponseLoadedMsg struct {
	InvocationID string
	Record       *models.ResponseRecord
	Error        error
}

// EventLogLoadedMsg contains session event log entries.
type EventLogLoadedMsg struct {
	Events []models.SessionEvent
	Error  error
}

// EngineEventMsg wraps an event from the session engine.
type EngineEventMsg struct {
	Event session.EngineEvent
}

// SubscriptionMsg delivers the engine event channel after subscribing.
type SubscriptionMsg struct {
	Channel chan session.EngineEvent
}

// NotificationMsg requests showing a transient status line message.
type NotificationMsg struct {
	Message string
	IsError bool
}

// ClearNotificationMsg clears the status line message.
type ClearNotificationMsg struct{}

// ErrorMsg represents a general error.
type ErrorMsg struct {
	Error   error
	Context string
}
