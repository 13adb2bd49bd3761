// Package token persists the upstream bearer token and its expiry.
//
// The token file holds two lines: the token and the expiry in Unix
// milliseconds. An empty or missing file means no token. Any file that does
// not parse is treated the same way.
package token

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/five82/medaka/internal/cache"
)

// FileName is the token file name inside the data directory.
const FileName = "token"

var (
	// ErrExpired is returned by Set for an expiry that has already passed.
	ErrExpired = errors.New("token already expired")
	// ErrEmpty is returned by Set for an empty token.
	ErrEmpty = errors.New("token is empty")
)

// Session is a bearer token and its absolute expiry.
type Session struct {
	Token   string
	ValidTo time.Time
}

// Remaining returns how long the session stays valid after now.
func (s Session) Remaining(now time.Time) time.Duration {
	return s.ValidTo.Sub(now)
}

// Expired reports whether the session is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ValidTo)
}

// Store keeps the current session in memory and on disk.
type Store struct {
	path   string
	logger *slog.Logger
	now    func() time.Time

	restoreOnce sync.Once

	mu      sync.RWMutex
	session Session
	has     bool
}

// NewStore returns a Store backed by path. A nil logger discards output.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{path: path, logger: logger, now: time.Now}
}

// Get returns the current session.
func (s *Store) Get() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session, s.has
}

// Set persists a new session and then makes it current.
func (s *Store) Set(tok string, validTo time.Time) error {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return ErrEmpty
	}
	if !validTo.After(s.now()) {
		return fmt.Errorf("%w: valid to %s", ErrExpired, validTo.Format(time.RFC3339))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	payload := tok + "\n" + strconv.FormatInt(validTo.UnixMilli(), 10)
	if err := cache.WriteAtomic(s.path, []byte(payload), 0o600); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	s.session = Session{Token: tok, ValidTo: validTo}
	s.has = true
	return nil
}

// Clear forgets the session in memory and empties the token file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = Session{}
	s.has = false
	if err := cache.WriteAtomic(s.path, nil, 0o600); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}

// Restore loads the token file into memory. Only the first call in a Store's
// lifetime reads the file.
func (s *Store) Restore() {
	s.restoreOnce.Do(s.restore)
}

func (s *Store) restore() {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Debug("token file unreadable", "path", s.path, "error", err)
		}
		return
	}
	session, err := parse(string(raw))
	if err != nil {
		s.logger.Debug("token file ignored", "path", s.path, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.has {
		return
	}
	s.session = session
	s.has = true
	s.logger.Debug("token restored", "valid_to", session.ValidTo.Format(time.RFC3339))
}

func parse(content string) (Session, error) {
	if strings.TrimSpace(content) == "" {
		return Session{}, fmt.Errorf("empty")
	}
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	if len(lines) != 2 {
		return Session{}, fmt.Errorf("want 2 lines, got %d", len(lines))
	}
	tok := strings.TrimSpace(lines[0])
	if tok == "" {
		return Session{}, fmt.Errorf("empty token")
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(lines[1]), 10, 64)
	if err != nil {
		return Session{}, fmt.Errorf("parse expiry: %w", err)
	}
	return Session{Token: tok, ValidTo: time.UnixMilli(ms)}, nil
}
