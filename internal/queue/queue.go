// Package queue runs resolved requests against the network with bounded
// concurrency, per-attempt timeouts, retry with backoff, and cooperative
// cancellation. Invocation state transitions are persisted as they happen.
package queue

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cozyreq/cozyreq/internal/db"
	"github.com/cozyreq/cozyreq/internal/logger"
	"github.com/cozyreq/cozyreq/internal/models"
)

// Doer executes a single HTTP request. *http.Client satisfies it; tests
// inject fakes.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CredentialSource supplies a valid bearer credential before each execution.
type CredentialSource interface {
	Get(ctx context.Context) (models.Credential, error)
}

// Recorder persists the response record of a completed invocation.
type Recorder interface {
	Record(rec *models.ResponseRecord) error
}

// Config holds the queue's execution policy.
type Config struct {
	Concurrency    int
	Timeout        time.Duration // hard wall-clock limit per attempt
	MaxRetries     int           // transport retries after the first attempt
	InitialBackoff time.Duration
}

// DefaultConfig returns the default execution policy.
func DefaultConfig() Config {
	return Config{
		Concurrency:    4,
		Timeout:        30 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
	}
}

// EventType defines the type of queue event.
type EventType int

const (
	EventAdmitted EventType = iota
	EventStarted
	EventFinished
)

// Event reports an invocation state change.
type Event struct {
	Type       EventType
	Invocation models.Invocation
}

// Queue admits invocations and runs them on a bounded worker pool in
// first-submitted-first-run order.
type Queue struct {
	cfg      Config
	client   Doer
	creds    CredentialSource
	database *db.DB
	recorder Recorder

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu              sync.Mutex
	invocations     map[string]*models.Invocation
	cancels         map[string]context.CancelFunc
	cancelRequested map[string]bool
	done            map[string]chan struct{}
	closed          bool

	jobs      chan string
	wg        sync.WaitGroup
	eventChan chan Event
}

// New creates a queue and starts its worker pool.
func New(cfg Config, client Doer, creds CredentialSource, database *db.DB, recorder Recorder) *Queue {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	q := &Queue{
		cfg:             cfg,
		client:          client,
		creds:           creds,
		database:        database,
		recorder:        recorder,
		baseCtx:         ctx,
		baseCancel:      cancel,
		invocations:     make(map[string]*models.Invocation),
		cancels:         make(map[string]context.CancelFunc),
		cancelRequested: make(map[string]bool),
		done:            make(map[string]chan struct{}),
		jobs:            make(chan string, 1024),
		eventChan:       make(chan Event, 100),
	}

	for i := 0; i < cfg.Concurrency; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Events returns the event channel for invocation state changes.
func (q *Queue) Events() <-chan Event {
	return q.eventChan
}

// Submit admits a resolved request as a pending invocation and returns its
// id immediately. Execution proceeds independently; completion is observable
// through Done and Status.
func (q *Queue) Submit(req models.ResolvedRequest) (string, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", models.ErrQueueClosed
	}

	inv := &models.Invocation{
		ID:         uuid.NewString(),
		TemplateID: req.TemplateID,
		Request:    req,
		Status:     models.StatusPending,
		CreatedAt:  time.Now(),
	}

	if err := q.database.InsertInvocation(inv); err != nil {
		q.mu.Unlock()
		return "", err
	}

	q.invocations[inv.ID] = inv
	q.done[inv.ID] = make(chan struct{})

	select {
	case q.jobs <- inv.ID:
	default:
		inv.Status = models.StatusFailed
		inv.Error = "execution queue is full"
		inv.CompletedAt = time.Now()
		q.persistLocked(inv)
		close(q.done[inv.ID])
		q.mu.Unlock()
		return "", fmt.Errorf("execution queue is full")
	}

	snapshot := *inv
	q.mu.Unlock()

	q.sendEvent(Event{Type: EventAdmitted, Invocation: snapshot})
	return inv.ID, nil
}

// Cancel transitions a pending invocation to cancelled immediately, or asks
// a running one to abort cooperatively.
func (q *Queue) Cancel(id string) error {
	q.mu.Lock()
	inv, ok := q.invocations[id]
	if !ok {
		q.mu.Unlock()
		return models.ErrNotFound
	}
	if inv.Status.Terminal() {
		q.mu.Unlock()
		return nil
	}

	q.cancelRequested[id] = true

	if inv.Status == models.StatusPending {
		inv.Status = models.StatusCancelled
		inv.CompletedAt = time.Now()
		q.persistLocked(inv)
		close(q.done[id])
		snapshot := *inv
		q.mu.Unlock()
		q.sendEvent(Event{Type: EventFinished, Invocation: snapshot})
		return nil
	}

	if cancel := q.cancels[id]; cancel != nil {
		cancel()
	}
	q.mu.Unlock()
	return nil
}

// Status returns a snapshot of an invocation, consulting the database for
// invocations from earlier sessions.
func (q *Queue) Status(id string) (*models.Invocation, error) {
	q.mu.Lock()
	if inv, ok := q.invocations[id]; ok {
		snapshot := *inv
		q.mu.Unlock()
		return &snapshot, nil
	}
	q.mu.Unlock()
	return q.database.GetInvocation(id)
}

// Done returns a channel that is closed when the invocation reaches a
// terminal state.
func (q *Queue) Done(id string) (<-chan struct{}, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.done[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return ch, nil
}

// Shutdown stops admissions, cancels pending invocations, and gives running
// ones a grace period before aborting them as failed.
func (q *Queue) Shutdown(grace time.Duration) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	// Drain pending work that no worker has picked up yet.
	for {
		select {
		case id := <-q.jobs:
			q.cancelPendingOnShutdown(id)
			continue
		default:
		}
		break
	}

	// Closing the jobs channel lets idle workers exit; Submit already
	// rejects new work, so nothing more can be sent.
	close(q.jobs)

	waitCh := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
	case <-time.After(grace):
		logger.Warn("shutdown grace period elapsed, aborting running work")
		q.baseCancel()
		<-waitCh
	}
	q.baseCancel()
}

// cancelPendingOnShutdown marks a drained pending invocation cancelled.
func (q *Queue) cancelPendingOnShutdown(id string) {
	q.mu.Lock()
	inv, ok := q.invocations[id]
	if !ok || inv.Status != models.StatusPending {
		q.mu.Unlock()
		return
	}
	inv.Status = models.StatusCancelled
	inv.CompletedAt = time.Now()
	q.persistLocked(inv)
	close(q.done[id])
	snapshot := *inv
	q.mu.Unlock()
	q.sendEvent(Event{Type: EventFinished, Invocation: snapshot})
}

// persistLocked writes the invocation state to the database (must hold lock).
func (q *Queue) persistLocked(inv *models.Invocation) {
	if err := q.database.UpdateInvocation(inv); err != nil {
		logger.Error("failed to persist invocation state", "invocation", inv.ID, "error", err)
	}
}

// sendEvent sends an event to the event channel non-blocking.
func (q *Queue) sendEvent(event Event) {
	select {
	case q.eventChan <- event:
	default:
	}
}
