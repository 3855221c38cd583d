package models

import "time"

// InvocationStatus is the lifecycle state of an invocation. Valid sequences
// are subsequences of pending -> running -> {succeeded, failed, cancelled}.
type InvocationStatus string

const (
	StatusPending   InvocationStatus = "pending"
	StatusRunning   InvocationStatus = "running"
	StatusSucceeded InvocationStatus = "succeeded"
	StatusFailed    InvocationStatus = "failed"
	StatusCancelled InvocationStatus = "cancelled"
)

// Terminal reports whether the status is a final state.
func (s InvocationStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Invocation is one execution of a template with concrete parameters. Rows
// are append-only: status and completion fields advance, nothing is deleted.
type Invocation struct {
	ID          string
	TemplateID  string
	Request     ResolvedRequest
	Status      InvocationStatus
	Attempts    int
	Error       string
	CreatedAt   time.Time
	CompletedAt time.Time // zero until a terminal state is reached
}

// TemplateStats aggregates the invocation history of one template.
type TemplateStats struct {
	Total     int
	Succeeded int
	Failed    int
	Cancelled int
	Running   int
	Pending   int
}

// ResponseRecord is the stored outcome of a completed invocation. Written
// exactly once, immutable thereafter; Prune may clear the body later.
type ResponseRecord struct {
	InvocationID string
	StatusCode   int
	Headers      map[string]string
	Body         []byte
	DurationMs   int64
	Error        string
	RecordedAt   time.Time
}

// EventType classifies session event log entries.
type EventType string

const (
	EventInfo  EventType = "info"
	EventCall  EventType = "call"
	EventError EventType = "error"
	EventDebug EventType = "debug"
)

// SessionEvent is one entry in the append-only session event log.
type SessionEvent struct {
	ID        string
	Type      EventType
	Message   string
	Metadata  string // optional JSON payload
	Timestamp time.Time
}
