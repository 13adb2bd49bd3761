package app

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/five82/medaka/internal/config"
	"github.com/five82/medaka/internal/state"
	"github.com/five82/medaka/internal/token"
)

// LoopStarter is the subset of Poller the watchdog needs.
type LoopStarter interface {
	Running() bool
	Start(force bool) bool
}

// Watchdog restarts the fetch loop after it has died with data going stale.
type Watchdog struct {
	Poller     LoopStarter
	Tokens     interface{ Get() (token.Session, bool) }
	Store      interface{ View() state.View }
	Account    func() config.Account
	StaleAfter time.Duration
	Logger     *slog.Logger
	Now        func() time.Time
}

// Check starts the loop when it is not running, the account and token are
// present and the last successful fetch is older than StaleAfter.
func (w *Watchdog) Check() bool {
	if w.Poller.Running() {
		return false
	}
	if !w.Account().Valid() {
		return false
	}
	if _, ok := w.Tokens.Get(); !ok {
		return false
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	last := w.Store.View().FetchedAt
	if !last.IsZero() && now().Sub(last) <= w.StaleAfter {
		return false
	}
	w.logger().Info("watchdog restarting fetch loop", "last_fetch", last)
	return w.Poller.Start(false)
}

// Run calls Check every interval until ctx is done.
func (w *Watchdog) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Check()
		}
	}
}

func (w *Watchdog) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return w.Logger
}
