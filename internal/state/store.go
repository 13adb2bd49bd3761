package state

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/five82/medaka/internal/carelink"
)

// FetchStatus is the lifecycle state of the fetch pipeline.
type FetchStatus int

const (
	StatusIdle FetchStatus = iota
	StatusFetching
	StatusSuccess
	StatusError
	StatusSessionExpired
)

func (s FetchStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusFetching:
		return "fetching"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusSessionExpired:
		return "session-expired"
	default:
		return "unknown"
	}
}

// ParseFetchStatus is the inverse of FetchStatus.String.
func ParseFetchStatus(s string) FetchStatus {
	for _, st := range []FetchStatus{StatusFetching, StatusSuccess, StatusError, StatusSessionExpired} {
		if st.String() == s {
			return st
		}
	}
	return StatusIdle
}

// View is a point-in-time copy of the store.
type View struct {
	Snapshot            *carelink.Snapshot
	FetchedAt           time.Time
	Status              FetchStatus
	LastError           error
	ConsecutiveFailures int
}

// HasData reports whether a snapshot is available.
func (v View) HasData() bool {
	return v.Snapshot != nil
}

// IsOffline returns true when several fetch cycles in a row have failed.
func (v View) IsOffline() bool {
	return v.ConsecutiveFailures >= 2
}

// Event is delivered to subscribers whenever the published snapshot changes.
// A nil Snapshot means the data was reset.
type Event struct {
	Snapshot  *carelink.Snapshot
	FetchedAt time.Time
}

// CacheReader loads the persisted raw payload.
type CacheReader interface {
	Read() ([]byte, time.Time, error)
}

// Store holds the latest snapshot and the fetch status.
type Store struct {
	cache  CacheReader
	logger *slog.Logger

	mu          sync.RWMutex
	snapshot    *carelink.Snapshot
	fetchedAt   time.Time
	status      FetchStatus
	lastErr     error
	failures    int
	cacheLoaded bool

	subs   map[int]chan Event
	nextID int
}

// NewStore returns a Store that falls back to cache on cold start.
func NewStore(cache CacheReader, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{cache: cache, logger: logger}
}

// BeginFetch moves the status to fetching. It returns false without changing
// anything when a fetch is already in progress.
func (s *Store) BeginFetch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusFetching {
		return false
	}
	s.status = StatusFetching
	return true
}

// CompleteFetch publishes snap and marks the fetch successful in one step.
func (s *Store) CompleteFetch(snap *carelink.Snapshot, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusSuccess
	s.lastErr = nil
	s.failures = 0
	s.publishLocked(snap, at)
}

// FailFetch records a failed fetch. Both StatusError and StatusSessionExpired
// count towards ConsecutiveFailures; StatusIdle is used for a cancelled fetch
// and leaves the counters untouched.
func (s *Store) FailFetch(status FetchStatus, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	if status == StatusIdle {
		return
	}
	s.lastErr = err
	s.failures++
}

// Status returns the current fetch status.
func (s *Store) Status() FetchStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Publish replaces the snapshot and notifies subscribers without touching the
// fetch status.
func (s *Store) Publish(snap *carelink.Snapshot, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishLocked(snap, at)
}

func (s *Store) publishLocked(snap *carelink.Snapshot, at time.Time) {
	s.snapshot = snap.Clone()
	s.fetchedAt = at
	s.broadcastLocked(Event{Snapshot: s.snapshot, FetchedAt: at})
}

// Cached returns the in-memory snapshot, or on first use loads and publishes
// the cache file. Unreadable or corrupt cache yields nil.
func (s *Store) Cached() *carelink.Snapshot {
	s.mu.Lock()
	if s.snapshot != nil {
		snap := s.snapshot.Clone()
		s.mu.Unlock()
		return snap
	}
	if s.cacheLoaded || s.cache == nil {
		s.mu.Unlock()
		return nil
	}
	s.cacheLoaded = true
	s.mu.Unlock()

	raw, modTime, err := s.cache.Read()
	if err != nil {
		s.logger.Debug("cache unreadable", "error", err)
		return nil
	}
	if len(raw) == 0 {
		return nil
	}
	snap, err := carelink.ParseSnapshot(raw)
	if err != nil {
		s.logger.Debug("cache ignored", "error", err)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		s.publishLocked(snap, modTime)
	}
	return s.snapshot.Clone()
}

// View returns a copy of the current state.
func (s *Store) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return View{
		Snapshot:            s.snapshot.Clone(),
		FetchedAt:           s.fetchedAt,
		Status:              s.status,
		LastError:           s.lastErr,
		ConsecutiveFailures: s.failures,
	}
}

// Reset drops the snapshot and error history. An in-progress fetch keeps its
// status.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = nil
	s.fetchedAt = time.Time{}
	s.lastErr = nil
	s.failures = 0
	if s.status != StatusFetching {
		s.status = StatusIdle
	}
	s.broadcastLocked(Event{})
}

// Subscribe returns a channel that always holds the latest undelivered event.
// The returned func unsubscribes and closes the channel.
func (s *Store) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = make(map[int]chan Event)
	}
	id := s.nextID
	s.nextID++
	ch := make(chan Event, 1)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

func (s *Store) broadcastLocked(ev Event) {
	for _, ch := range s.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		// Drop the stale event so the newest one wins.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}
