package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Document keys written or read by this process.
const (
	KeyLastUpdated     = "lastUpdated"
	KeyPointsTotal     = "pointsTotal"
	KeyPointsToday     = "pointsToday"
	KeyPotentialPoints = "potentialPoints"
	KeyCountdown       = "countdown"
	KeyLastPingDate    = "lastPingDate"

	// KeyAccessToken is managed externally; the store reads it but never
	// writes it.
	KeyAccessToken = "access_token"
)

// Store is the durable key-value document shared by all connections and
// the estimator. All access goes through the mutex; merges mark the
// document dirty and arm a flush timer rather than writing immediately.
type Store struct {
	path          string
	flushInterval time.Duration
	logger        *slog.Logger

	mu         sync.Mutex
	doc        map[string]any
	dirty      bool
	flushTimer *time.Timer
	closed     bool
}

// Open loads the document at path, treating a missing or unreadable file
// as an empty document. A flushInterval of zero or less disables
// coalescing and flushes on every merge.
func Open(path string, flushInterval time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		path:          path,
		flushInterval: flushInterval,
		logger:        logger,
		doc:           make(map[string]any),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("failed to read state file, starting empty", "path", path, "error", err)
		}
		return s
	}

	if err := json.Unmarshal(data, &s.doc); err != nil {
		logger.Warn("failed to parse state file, starting empty", "path", path, "error", err)
		s.doc = make(map[string]any)
	}

	return s
}

// Merge applies the given fields on top of the current document and
// schedules a flush. Fields not named are preserved. Write failures are
// logged, never returned; message processing must not block on disk.
func (s *Store) Merge(fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	for k, v := range fields {
		s.doc[k] = v
	}
	s.dirty = true

	if s.flushInterval <= 0 {
		if err := s.flushLocked(); err != nil {
			s.logger.Warn("state flush failed", "error", err)
		}
		return
	}

	if s.flushTimer == nil {
		s.flushTimer = time.AfterFunc(s.flushInterval, func() {
			if err := s.Flush(); err != nil {
				s.logger.Warn("state flush failed", "error", err)
			}
		})
	}
}

// Get returns the raw value for key.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.doc[key]
	return v, ok
}

// String returns the string value for key, or "" if absent or not a string.
func (s *Store) String(key string) string {
	v, ok := s.Get(key)
	if !ok {
		return ""
	}
	str, _ := v.(string)
	return str
}

// Float returns the numeric value for key, or 0 if absent or non-numeric.
func (s *Store) Float(key string) float64 {
	v, ok := s.Get(key)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}

// Time returns the timestamp stored under key, parsed from ISO-8601.
// The second return is false when the key is absent or unparseable.
func (s *Store) Time(key string) (time.Time, bool) {
	str := s.String(key)
	if str == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// AccessToken returns the externally-managed token, if present.
func (s *Store) AccessToken() string {
	return s.String(KeyAccessToken)
}

// Flush writes the document to disk if it has pending changes.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

// Close flushes pending changes and stops the flush timer. Subsequent
// merges are ignored.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.flushTimer != nil {
		s.flushTimer.Stop()
		s.flushTimer = nil
	}

	return s.flushLocked()
}

// flushLocked writes the document atomically via temp file + rename.
// Callers must hold s.mu.
func (s *Store) flushLocked() error {
	if s.flushTimer != nil {
		s.flushTimer.Stop()
		s.flushTimer = nil
	}
	if !s.dirty {
		return nil
	}

	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename state file: %w", err)
	}

	s.dirty = false
	return nil
}

// ISOTime formats a timestamp the way the document stores it.
func ISOTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
