package fetcher

import (
	"time"

	"github.com/five82/medaka/internal/carelink"
)

// Schedule holds the retry and polling constants.
type Schedule struct {
	Attempts     int
	Backoff      time.Duration
	ErrorDelay   time.Duration
	TargetOffset time.Duration
	MinDelay     time.Duration
}

// DefaultSchedule returns the canonical constants.
func DefaultSchedule() Schedule {
	return Schedule{
		Attempts:     4,
		Backoff:      30 * time.Second,
		ErrorDelay:   60 * time.Second,
		TargetOffset: 5*time.Minute + 30*time.Second,
		MinDelay:     30 * time.Second,
	}
}

func (s Schedule) withDefaults() Schedule {
	def := DefaultSchedule()
	if s.Attempts <= 0 {
		s.Attempts = def.Attempts
	}
	if s.Backoff <= 0 {
		s.Backoff = def.Backoff
	}
	if s.ErrorDelay <= 0 {
		s.ErrorDelay = def.ErrorDelay
	}
	if s.TargetOffset <= 0 {
		s.TargetOffset = def.TargetOffset
	}
	if s.MinDelay <= 0 {
		s.MinDelay = def.MinDelay
	}
	return s
}

// DelayBeforeNextFetch aims the next fetch just after the sensor's next
// expected reading: max(MinDelay, T+TargetOffset-now) for the newest reading
// time T, or ErrorDelay when there is no timestamp.
func (s Schedule) DelayBeforeNextFetch(snap *carelink.Snapshot, now time.Time) time.Duration {
	s = s.withDefaults()
	last, ok := snap.LastTime()
	if !ok {
		return s.ErrorDelay
	}
	delay := last.Add(s.TargetOffset).Sub(now)
	if delay < s.MinDelay {
		return s.MinDelay
	}
	return delay
}
