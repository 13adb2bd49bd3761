// Package fetcher runs one authenticated fetch cycle against CareLink and
// publishes the result.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/five82/medaka/internal/carelink"
	"github.com/five82/medaka/internal/config"
	"github.com/five82/medaka/internal/session"
	"github.com/five82/medaka/internal/state"
	"github.com/five82/medaka/internal/token"
)

var (
	// ErrBusy is returned when another fetch is already in progress.
	ErrBusy = errors.New("fetch already in progress")
	// ErrSessionExpired means a fresh login is required.
	ErrSessionExpired = errors.New("session expired")
	// ErrInvalidAccount means required account settings are missing.
	ErrInvalidAccount = errors.New("invalid account settings")
)

// Outcome tells the scheduler what to do after a cycle.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeBusy
	OutcomeRetry
	OutcomeStop
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeBusy:
		return "busy"
	case OutcomeRetry:
		return "retry"
	case OutcomeStop:
		return "stop"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Result is the outcome of FetchAndPublish.
type Result struct {
	Outcome   Outcome
	NextDelay time.Duration
	Snapshot  *carelink.Snapshot
	Err       error
}

// Upstream fetches the raw display payload.
type Upstream interface {
	FetchDisplay(ctx context.Context, token, username string) ([]byte, error)
}

// Tokens is the subset of token.Store the fetcher needs.
type Tokens interface {
	Restore()
	Get() (token.Session, bool)
	Clear() error
}

// Reauther renews the session ahead of expiry.
type Reauther interface {
	ReauthIfNeeded(ctx context.Context, force bool) session.Outcome
}

// Status is the subset of state.Store the fetcher needs.
type Status interface {
	BeginFetch() bool
	CompleteFetch(snap *carelink.Snapshot, at time.Time)
	FailFetch(status state.FetchStatus, err error)
}

// CacheWriter persists the raw payload.
type CacheWriter interface {
	Write(raw []byte) error
}

// Deps are the collaborators of a Fetcher.
type Deps struct {
	Upstream Upstream
	Tokens   Tokens
	Auth     Reauther
	Status   Status
	Cache    CacheWriter
	Account  func() config.Account
}

// Options tune a Fetcher.
type Options struct {
	Schedule         Schedule
	Logger           *slog.Logger
	Now              func() time.Time
	Sleep            func(ctx context.Context, d time.Duration) error
	OnSessionExpired func()
}

// Fetcher performs fetch cycles.
type Fetcher struct {
	deps      Deps
	schedule  Schedule
	logger    *slog.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	onExpired func()
}

// New builds a Fetcher.
func New(deps Deps, opts Options) *Fetcher {
	f := &Fetcher{
		deps:      deps,
		schedule:  opts.Schedule.withDefaults(),
		logger:    opts.Logger,
		now:       opts.Now,
		sleep:     opts.Sleep,
		onExpired: opts.OnSessionExpired,
	}
	if f.logger == nil {
		f.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if f.now == nil {
		f.now = time.Now
	}
	if f.sleep == nil {
		f.sleep = sleepContext
	}
	return f
}

// Schedule returns the effective schedule.
func (f *Fetcher) Schedule() Schedule {
	return f.schedule
}

// FetchAndPublish runs one cycle. Only one cycle runs at a time; a concurrent
// call returns OutcomeBusy without touching the network.
func (f *Fetcher) FetchAndPublish(ctx context.Context) Result {
	if !f.deps.Status.BeginFetch() {
		return Result{Outcome: OutcomeBusy, NextDelay: f.schedule.ErrorDelay, Err: ErrBusy}
	}

	f.deps.Tokens.Restore()

	account := f.deps.Account()
	if err := account.Validate(); err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidAccount, err)
		f.logger.Error("fetch skipped", "error", err)
		f.deps.Status.FailFetch(state.StatusError, err)
		return Result{Outcome: OutcomeStop, Err: err}
	}

	f.deps.Auth.ReauthIfNeeded(ctx, false)
	if ctx.Err() != nil {
		return f.canceled(ctx)
	}

	current, ok := f.deps.Tokens.Get()
	if !ok {
		f.logger.Warn("no session token; login required")
		f.deps.Status.FailFetch(state.StatusSessionExpired, ErrSessionExpired)
		return Result{Outcome: OutcomeStop, Err: ErrSessionExpired}
	}

	raw, snap, err := f.fetchWithRetry(ctx, current.Token, account.Username)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return f.canceled(ctx)
	case errors.Is(err, carelink.ErrUnauthorized):
		f.logger.Warn("upstream rejected token; login required")
		if clearErr := f.deps.Tokens.Clear(); clearErr != nil {
			f.logger.Warn("clear token failed", "error", clearErr)
		}
		if f.onExpired != nil {
			f.onExpired()
		}
		err = fmt.Errorf("%w: %v", ErrSessionExpired, err)
		f.deps.Status.FailFetch(state.StatusSessionExpired, err)
		return Result{Outcome: OutcomeStop, Err: err}
	default:
		f.logger.Error("fetch failed", "error", err)
		f.deps.Status.FailFetch(state.StatusError, err)
		return Result{Outcome: OutcomeRetry, NextDelay: f.schedule.ErrorDelay, Err: err}
	}

	if err := f.deps.Cache.Write(raw); err != nil {
		f.logger.Warn("cache write failed", "error", err)
	}
	now := f.now()
	f.deps.Status.CompleteFetch(snap, now)
	delay := f.schedule.DelayBeforeNextFetch(snap, now)
	f.logger.Info("fetch succeeded", "readings", len(snap.Readings), "last", snap.LastText(), "next_in", delay.Round(time.Second))
	return Result{Outcome: OutcomeSuccess, NextDelay: delay, Snapshot: snap}
}

func (f *Fetcher) canceled(ctx context.Context) Result {
	f.deps.Status.FailFetch(state.StatusIdle, nil)
	return Result{Outcome: OutcomeCanceled, Err: ctx.Err()}
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, tok, username string) ([]byte, *carelink.Snapshot, error) {
	var lastErr error
	for attempt := 1; attempt <= f.schedule.Attempts; attempt++ {
		if attempt > 1 {
			if err := f.sleep(ctx, f.schedule.Backoff); err != nil {
				return nil, nil, err
			}
		}
		raw, err := f.deps.Upstream.FetchDisplay(ctx, tok, username)
		if err == nil {
			snap, parseErr := carelink.ParseSnapshot(raw)
			if parseErr == nil {
				return raw, snap, nil
			}
			err = parseErr
		}
		if errors.Is(err, carelink.ErrUnauthorized) {
			return nil, nil, err
		}
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		lastErr = err
		f.logger.Warn("fetch attempt failed", "attempt", attempt, "of", f.schedule.Attempts, "error", err)
	}
	return nil, nil, fmt.Errorf("fetch failed after %d attempts: %w", f.schedule.Attempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
