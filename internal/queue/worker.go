package queue

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/cozyreq/cozyreq/internal/logger"
	"github.com/cozyreq/cozyreq/internal/models"
)

// worker pulls invocation ids off the jobs channel until shutdown.
func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.baseCtx.Done():
			return
		case id, ok := <-q.jobs:
			if !ok {
				return
			}
			q.run(id)
		}
	}
}

// run drives one invocation from pending to a terminal state.
func (q *Queue) run(id string) {
	q.mu.Lock()
	inv, ok := q.invocations[id]
	if !ok || inv.Status != models.StatusPending {
		// Cancelled while waiting for a worker.
		q.mu.Unlock()
		return
	}
	inv.Status = models.StatusRunning
	ctx, cancel := context.WithCancel(q.baseCtx)
	q.cancels[id] = cancel
	q.persistLocked(inv)
	snapshot := *inv
	q.mu.Unlock()

	q.sendEvent(Event{Type: EventStarted, Invocation: snapshot})

	rec, attempts, err := q.execute(ctx, inv)
	cancel()
	q.finish(id, rec, attempts, err)
}

// execute obtains a credential and runs the request with transport retries.
// HTTP responses of any status are final; only transport failures retry.
func (q *Queue) execute(ctx context.Context, inv *models.Invocation) (*models.ResponseRecord, int, error) {
	cred, err := q.creds.Get(ctx)
	if err != nil {
		return nil, 0, err
	}

	bo := backoff.NewExponentialBackOff()
	if q.cfg.InitialBackoff > 0 {
		bo.InitialInterval = q.cfg.InitialBackoff
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(q.cfg.MaxRetries)), ctx)

	var rec *models.ResponseRecord
	attempts := 0
	op := func() error {
		attempts++
		r, err := q.attempt(ctx, inv, cred.AccessToken)
		if err != nil {
			logger.Debug("request attempt failed", "invocation", inv.ID, "attempt", attempts, "error", err)
			return err
		}
		rec = r
		return nil
	}

	if err := backoff.Retry(op, policy); err != nil {
		return nil, attempts, &models.TransportError{Attempts: attempts, Err: err}
	}
	return rec, attempts, nil
}

// attempt performs a single HTTP exchange under the per-attempt timeout.
func (q *Queue) attempt(ctx context.Context, inv *models.Invocation, token string) (*models.ResponseRecord, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, q.cfg.Timeout)
	defer cancel()

	var body io.Reader
	if inv.Request.Body != "" {
		body = strings.NewReader(inv.Request.Body)
	}

	req, err := http.NewRequestWithContext(attemptCtx, inv.Request.Method, inv.Request.URL, body)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	for k, v := range inv.Request.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := q.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Error("failed to close response body", "error", err)
		}
	}()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &models.ResponseRecord{
		InvocationID: inv.ID,
		StatusCode:   resp.StatusCode,
		Headers:      flattenHeader(resp.Header),
		Body:         payload,
		DurationMs:   time.Since(start).Milliseconds(),
	}, nil
}

// finish settles the terminal status of an invocation, persists it, records
// the response, and wakes waiters.
func (q *Queue) finish(id string, rec *models.ResponseRecord, attempts int, execErr error) {
	q.mu.Lock()
	inv := q.invocations[id]
	delete(q.cancels, id)
	cancelRequested := q.cancelRequested[id]
	delete(q.cancelRequested, id)

	var authErr *models.AuthError
	switch {
	case execErr == nil && !cancelRequested:
		inv.Status = models.StatusSucceeded
	case execErr == nil && cancelRequested:
		// The request outraced the cancel; keep the result, honor the intent.
		inv.Status = models.StatusCancelled
	case cancelRequested:
		inv.Status = models.StatusCancelled
	case errors.As(execErr, &authErr):
		inv.Status = models.StatusFailed
		inv.Error = execErr.Error()
	case q.baseCtx.Err() != nil && errors.Is(execErr, context.Canceled):
		// Aborted by the shutdown grace period, not a failure of its own.
		inv.Status = models.StatusFailed
		inv.Error = models.ErrShutdown.Error()
	default:
		inv.Status = models.StatusFailed
		inv.Error = execErr.Error()
	}

	inv.Attempts = attempts
	inv.CompletedAt = time.Now()
	q.persistLocked(inv)
	done := q.done[id]
	snapshot := *inv
	q.mu.Unlock()

	if rec != nil && execErr == nil {
		if err := q.recorder.Record(rec); err != nil {
			logger.Error("failed to record response", "invocation", id, "error", err)
		}
	}

	close(done)
	q.sendEvent(Event{Type: EventFinished, Invocation: snapshot})
}

// flattenHeader collapses multi-valued headers into single comma-joined
// values for storage.
func flattenHeader(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out[k] = strings.Join(h[k], ", ")
	}
	return out
}
