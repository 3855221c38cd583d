// Package credential holds the session's bearer credential and guarantees
// callers a non-expired token, refreshing through the auth service when
// needed. Exactly one refresh exchange is in flight at a time.
package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/singleflight"

	"github.com/cozyreq/cozyreq/internal/logger"
	"github.com/cozyreq/cozyreq/internal/models"
)

// Event represents a credential store event.
type Event struct {
	Type  EventType
	Error error
}

// EventType defines the type of credential event.
type EventType int

const (
	EventCredentialLoaded EventType = iota
	EventCredentialRefreshed
	EventCredentialChanged
	EventReauthRequired
	EventError
)

// Store manages the current credential with file watching, persistence, and
// single-flight refresh.
type Store struct {
	mu        sync.RWMutex
	cred      *models.Credential
	filePath  string
	authURL   string
	client    *http.Client
	skew      time.Duration
	group     singleflight.Group
	watcher   *fsnotify.Watcher
	eventChan chan Event
	stopChan  chan struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithHTTPClient overrides the HTTP client used for the refresh exchange.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Store) { s.client = client }
}

// WithExpirySkew sets how long before the actual expiry a credential is
// treated as expired.
func WithExpirySkew(skew time.Duration) Option {
	return func(s *Store) { s.skew = skew }
}

// NewStore creates a credential store backed by a JSON file and starts
// watching the file for writes by the external magic-link helper.
func NewStore(filePath, authURL string, opts ...Option) (*Store, error) {
	s := &Store{
		filePath:  filePath,
		authURL:   authURL,
		client:    &http.Client{Timeout: 30 * time.Second},
		skew:      30 * time.Second,
		eventChan: make(chan Event, 16),
		stopChan:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create credential directory: %w", err)
	}

	if err := s.loadFile(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}

	if err := s.startWatcher(); err != nil {
		return nil, fmt.Errorf("failed to start credential watcher: %w", err)
	}

	s.sendEvent(Event{Type: EventCredentialLoaded})
	return s, nil
}

// Events returns the event channel for subscribing to credential changes.
func (s *Store) Events() <-chan Event {
	return s.eventChan
}

// Current returns a copy of the stored credential without refreshing, or nil
// if none is installed.
func (s *Store) Current() *models.Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil {
		return nil
	}
	cred := *s.cred
	return &cred
}

// Get returns a valid credential, refreshing it first if it is expired or
// inside the expiry skew. Concurrent callers share a single refresh exchange.
func (s *Store) Get(ctx context.Context) (models.Credential, error) {
	s.mu.RLock()
	cred := s.cred
	s.mu.RUnlock()

	if cred.Valid(s.skew) {
		return *cred, nil
	}

	v, err, _ := s.group.Do("refresh", func() (any, error) {
		return s.refresh(ctx)
	})
	if err != nil {
		return models.Credential{}, err
	}
	return v.(models.Credential), nil
}

// refresh performs the refresh-token exchange and atomically installs the
// new credential. Called through the singleflight group only.
func (s *Store) refresh(ctx context.Context) (models.Credential, error) {
	// A concurrent caller may have refreshed while we waited for the group.
	s.mu.RLock()
	cred := s.cred
	s.mu.RUnlock()
	if cred.Valid(s.skew) {
		return *cred, nil
	}

	if cred == nil || cred.RefreshToken == "" {
		return models.Credential{}, &models.AuthError{Err: models.ErrReauthRequired}
	}

	next, err := s.exchange(ctx, cred.RefreshToken)
	if err != nil {
		if errors.Is(err, models.ErrReauthRequired) {
			s.sendEvent(Event{Type: EventReauthRequired, Error: err})
		}
		return models.Credential{}, err
	}

	if err := s.Set(*next); err != nil {
		return models.Credential{}, fmt.Errorf("failed to persist refreshed credential: %w", err)
	}

	s.sendEvent(Event{Type: EventCredentialRefreshed})
	return *next, nil
}

// tokenResponse is the auth service's refresh exchange payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// exchange trades a refresh token for a new access/refresh pair.
func (s *Store) exchange(ctx context.Context, refreshToken string) (*models.Credential, error) {
	payload, err := json.Marshal(map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.authURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Error("failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &models.AuthError{Err: models.ErrReauthRequired}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("refresh exchange failed (status %d)", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("failed to parse refresh response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("refresh response missing access token")
	}

	now := time.Now()
	cred := &models.Credential{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		IssuedAt:     now,
		ExpiresAt:    now.Add(time.Duration(tr.ExpiresIn) * time.Second),
	}
	if cred.RefreshToken == "" {
		cred.RefreshToken = refreshToken
	}
	return cred, nil
}

// Set installs a new credential and persists it to disk. The previous value
// is replaced whole, never mutated.
func (s *Store) Set(cred models.Credential) error {
	if !cred.ExpiresAt.After(cred.IssuedAt) {
		return fmt.Errorf("credential expires_at must be after issued_at")
	}

	s.mu.Lock()
	s.cred = &cred
	err := s.saveLocked()
	s.mu.Unlock()

	if err != nil {
		return err
	}
	return nil
}

// loadFile reads the credential JSON file into memory.
func (s *Store) loadFile() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var cred models.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return fmt.Errorf("failed to parse credential file: %w", err)
	}

	s.mu.Lock()
	s.cred = &cred
	s.mu.Unlock()
	return nil
}

// saveLocked writes the credential to disk atomically (must hold lock).
func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.cred, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	// Write to temp file first, then rename
	tmpFile := s.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpFile, s.filePath); err != nil {
		if removeErr := os.Remove(tmpFile); removeErr != nil {
			logger.Error("failed to remove temp file", "error", removeErr)
		}
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// startWatcher starts the file system watcher.
func (s *Store) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.watcher = watcher

	// Watch the directory (to catch file creation/deletion)
	dir := filepath.Dir(s.filePath)
	if err := watcher.Add(dir); err != nil {
		if closeErr := watcher.Close(); closeErr != nil {
			logger.Error("failed to close watcher", "error", closeErr)
		}
		return err
	}

	go s.watchLoop()
	return nil
}

// watchLoop handles file system events with debouncing. The debounce timer
// is owned by this goroutine alone.
func (s *Store) watchLoop() {
	const debounceInterval = 100 * time.Millisecond

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}

			// Only care about our credential file
			if filepath.Base(event.Name) != filepath.Base(s.filePath) {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				// Debounce rapid changes
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceInterval, func() {
					s.handleFileChange()
				})
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.sendEvent(Event{Type: EventError, Error: err})

		case <-s.stopChan:
			return
		}
	}
}

// handleFileChange reloads the credential after an external write, e.g. by
// the magic-link helper finishing a login.
func (s *Store) handleFileChange() {
	if err := s.loadFile(); err != nil {
		s.sendEvent(Event{Type: EventError, Error: err})
		return
	}
	s.sendEvent(Event{Type: EventCredentialChanged})
}

// sendEvent sends an event to the event channel non-blocking.
func (s *Store) sendEvent(event Event) {
	select {
	case s.eventChan <- event:
	default:
	}
}

// Close stops the file watcher and writes the current credential to disk.
func (s *Store) Close() error {
	close(s.stopChan)

	s.mu.Lock()
	var saveErr error
	if s.cred != nil {
		saveErr = s.saveLocked()
	}
	s.mu.Unlock()

	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil && saveErr == nil {
			saveErr = err
		}
	}
	return saveErr
}
