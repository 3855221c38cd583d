// Package session wires the credential store, template catalog, execution
// queue, and audit log into one engine and routes their events to the TUI.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gen2brain/beeep"

	"github.com/cozyreq/cozyreq/internal/audit"
	"github.com/cozyreq/cozyreq/internal/catalog"
	"github.com/cozyreq/cozyreq/internal/config"
	"github.com/cozyreq/cozyreq/internal/credential"
	"github.com/cozyreq/cozyreq/internal/db"
	"github.com/cozyreq/cozyreq/internal/logger"
	"github.com/cozyreq/cozyreq/internal/models"
	"github.com/cozyreq/cozyreq/internal/openapi"
	"github.com/cozyreq/cozyreq/internal/queue"
)

type (
	// InvocationEvent is emitted whenever an invocation changes state.
	InvocationEvent struct {
		Invocation models.Invocation
	}

	// CredentialEvent is emitted when the stored credential changes.
	CredentialEvent struct {
		ReauthRequired bool
	}

	// ErrorEvent is emitted when a background component reports an error.
	ErrorEvent struct {
		Component string
		Error     error
	}
)

// EngineEvent is the interface implemented by all engine events.
type EngineEvent interface {
	isEngineEvent()
}

func (InvocationEvent) isEngineEvent() {}
func (CredentialEvent) isEngineEvent() {}
func (ErrorEvent) isEngineEvent()      {}

// Result pairs a terminal invocation with its recorded response, if any.
type Result struct {
	Invocation *models.Invocation
	Response   *models.ResponseRecord
}

// Engine owns every component of a running session.
type Engine struct {
	cfg      *config.Config
	database *db.DB
	creds    *credential.Store
	catalog  *catalog.Catalog
	queue    *queue.Queue
	log      *audit.Log

	mu          sync.RWMutex
	subscribers []chan<- EngineEvent
	stopChan    chan struct{}
}

// NewEngine opens the database and credential store and starts the execution
// queue.
func NewEngine(cfg *config.Config) (*Engine, error) {
	database, err := db.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	creds, err := credential.NewStore(cfg.CredentialPath, cfg.AuthURL,
		credential.WithExpirySkew(cfg.ExpirySkew))
	if err != nil {
		if closeErr := database.Close(); closeErr != nil {
			logger.Error("failed to close database", "error", closeErr)
		}
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		database: database,
		creds:    creds,
		catalog:  catalog.New(database),
		log:      audit.New(database),
		stopChan: make(chan struct{}),
	}

	qcfg := queue.DefaultConfig()
	qcfg.Concurrency = cfg.Concurrency
	qcfg.Timeout = cfg.RequestTimeout
	qcfg.MaxRetries = cfg.MaxRetries
	e.queue = queue.New(qcfg, &http.Client{}, creds, database, e.log)

	if err := e.log.Event(models.EventInfo, "session started", ""); err != nil {
		logger.Error("failed to log session start", "error", err)
	}

	go e.routeEvents()
	return e, nil
}

// routeEvents fans component events out to subscribers and the event log.
func (e *Engine) routeEvents() {
	for {
		select {
		case event := <-e.creds.Events():
			e.handleCredentialEvent(event)

		case event := <-e.queue.Events():
			e.handleQueueEvent(event)

		case <-e.stopChan:
			return
		}
	}
}

func (e *Engine) handleCredentialEvent(event credential.Event) {
	switch event.Type {
	case credential.EventCredentialRefreshed, credential.EventCredentialChanged,
		credential.EventCredentialLoaded:
		e.broadcast(CredentialEvent{})

	case credential.EventReauthRequired:
		_ = beeep.Notify("CozyReq", "Sign-in required: complete the magic link to continue.", "")
		if err := e.log.Event(models.EventError, "re-authentication required", ""); err != nil {
			logger.Error("failed to log auth event", "error", err)
		}
		e.broadcast(CredentialEvent{ReauthRequired: true})

	case credential.EventError:
		e.broadcast(ErrorEvent{Component: "credential", Error: event.Error})
	}
}

func (e *Engine) handleQueueEvent(event queue.Event) {
	inv := event.Invocation
	if event.Type == queue.EventFinished {
		message := fmt.Sprintf("%s %s finished: %s", inv.Request.Method, inv.Request.URL, inv.Status)
		eventType := models.EventCall
		if inv.Status == models.StatusFailed {
			eventType = models.EventError
		}
		if err := e.log.Event(eventType, message, inv.ID); err != nil {
			logger.Error("failed to log invocation event", "error", err)
		}
	}
	e.broadcast(InvocationEvent{Invocation: inv})
}

// Execute resolves a template with the given parameters and admits the
// request for execution. It returns the invocation id without waiting.
func (e *Engine) Execute(templateID string, params map[string]any) (string, error) {
	resolved, err := e.catalog.Resolve(templateID, params)
	if err != nil {
		return "", err
	}
	return e.queue.Submit(*resolved)
}

// AwaitResult blocks until the invocation reaches a terminal state or the
// timeout elapses, in which case it reports ErrStillPending.
func (e *Engine) AwaitResult(id string, timeout time.Duration) (*Result, error) {
	done, err := e.queue.Done(id)
	if err != nil {
		// Possibly an invocation from an earlier session.
		inv, dbErr := e.queue.Status(id)
		if dbErr != nil {
			return nil, dbErr
		}
		if !inv.Status.Terminal() {
			return nil, models.ErrStillPending
		}
		return e.result(inv)
	}

	select {
	case <-done:
	case <-time.After(timeout):
		return nil, models.ErrStillPending
	}

	inv, err := e.queue.Status(id)
	if err != nil {
		return nil, err
	}
	return e.result(inv)
}

func (e *Engine) result(inv *models.Invocation) (*Result, error) {
	res := &Result{Invocation: inv}
	rec, err := e.log.Get(inv.ID)
	if err == nil {
		res.Response = rec
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	return res, nil
}

// Cancel requests cancellation of a pending or running invocation.
func (e *Engine) Cancel(id string) error {
	return e.queue.Cancel(id)
}

// Status returns a snapshot of an invocation.
func (e *Engine) Status(id string) (*models.Invocation, error) {
	return e.queue.Status(id)
}

// Response returns the recorded response of a completed invocation straight
// from the audit log. Nothing is re-executed.
func (e *Engine) Response(id string) (*models.ResponseRecord, error) {
	return e.log.Get(id)
}

// CreateTemplate stores a new request template.
func (e *Engine) CreateTemplate(spec models.TemplateSpec) (*models.RequestTemplate, error) {
	return e.catalog.Create(spec)
}

// EditTemplate stores a new revision of an existing template.
func (e *Engine) EditTemplate(id string, spec models.TemplateSpec) (*models.RequestTemplate, error) {
	return e.catalog.Edit(id, spec)
}

// Template returns the latest revision of a template.
func (e *Engine) Template(id string) (*models.RequestTemplate, error) {
	return e.catalog.Get(id)
}

// Templates returns the latest revision of every template.
func (e *Engine) Templates() ([]models.RequestTemplate, error) {
	return e.catalog.List()
}

// History returns the invocation history of a template, oldest first.
func (e *Engine) History(templateID string) ([]models.Invocation, error) {
	return e.catalog.History(templateID)
}

// Stats aggregates a template's invocation history by status.
func (e *Engine) Stats(templateID string) (*models.TemplateStats, error) {
	return e.catalog.Stats(templateID)
}

// RecentInvocations returns the most recently created invocations.
func (e *Engine) RecentInvocations(limit int) ([]models.Invocation, error) {
	return e.database.ListRecentInvocations(limit)
}

// ImportOpenAPI loads an OpenAPI 3.x document and creates one template per
// endpoint. It returns the created templates.
func (e *Engine) ImportOpenAPI(source string) ([]models.RequestTemplate, error) {
	doc, err := openapi.Load(source)
	if err != nil {
		return nil, err
	}

	specs := doc.TemplateSpecs()
	created := make([]models.RequestTemplate, 0, len(specs))
	for _, spec := range specs {
		tmpl, err := e.catalog.Create(spec)
		if err != nil {
			return created, fmt.Errorf("failed to import %q: %w", spec.Name, err)
		}
		created = append(created, *tmpl)
	}

	if err := e.log.Event(models.EventInfo,
		fmt.Sprintf("imported %d endpoints from %s", len(created), source), ""); err != nil {
		logger.Error("failed to log import event", "error", err)
	}
	return created, nil
}

// PruneResponses drops response bodies recorded before the cutoff.
func (e *Engine) PruneResponses(before time.Time) (int64, error) {
	return e.log.Prune(before)
}

// EventLog returns session events, optionally filtered by type.
func (e *Engine) EventLog(types ...models.EventType) ([]models.SessionEvent, error) {
	return e.log.Events(types...)
}

// SearchEventLog returns session events whose message contains the substring.
func (e *Engine) SearchEventLog(substr string, types ...models.EventType) ([]models.SessionEvent, error) {
	return e.log.Search(substr, types...)
}

// Credential returns the current credential without refreshing, or nil.
func (e *Engine) Credential() *models.Credential {
	return e.creds.Current()
}

// EnsureCredential refreshes the credential if needed and returns it.
func (e *Engine) EnsureCredential(ctx context.Context) (models.Credential, error) {
	return e.creds.Get(ctx)
}

// broadcast sends an event to all subscribers.
func (e *Engine) broadcast(event EngineEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, sub := range e.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber channel full, skip
		}
	}
}

// Subscribe creates a channel for receiving engine events.
// Returns a tea.Cmd that can be used in Bubble Tea's Init or Update.
func (e *Engine) Subscribe() (chan EngineEvent, tea.Cmd) {
	ch := make(chan EngineEvent, 50)

	e.mu.Lock()
	e.subscribers = append(e.subscribers, ch)
	e.mu.Unlock()

	return ch, WaitForEvent(ch)
}

// Unsubscribe removes a subscriber channel.
func (e *Engine) Unsubscribe(ch chan EngineEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, sub := range e.subscribers {
		if sub == ch {
			e.subscribers = append(e.subscribers[:i], e.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

// WaitForEvent returns a tea.Cmd for the next event on a channel.
func WaitForEvent(ch <-chan EngineEvent) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

// Close drains the queue within the configured grace period and releases
// every component.
func (e *Engine) Close() error {
	e.queue.Shutdown(e.cfg.ShutdownGrace)

	close(e.stopChan)

	e.mu.Lock()
	for _, sub := range e.subscribers {
		close(sub)
	}
	e.subscribers = nil
	e.mu.Unlock()

	if err := e.log.Event(models.EventInfo, "session closed", ""); err != nil {
		logger.Error("failed to log session close", "error", err)
	}

	var errs []error
	if err := e.creds.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.database.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
