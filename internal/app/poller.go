package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/five82/medaka/internal/fetcher"
)

// Cycle runs one fetch cycle.
type Cycle interface {
	FetchAndPublish(ctx context.Context) fetcher.Result
}

// Poller drives the fetch loop. At most one loop runs at a time.
type Poller struct {
	base   context.Context
	cycle  Cycle
	logger *slog.Logger
	wait   func(ctx context.Context, d time.Duration) bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller returns a Poller whose loops stop when ctx is cancelled.
func NewPoller(ctx context.Context, cycle Cycle, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Poller{base: ctx, cycle: cycle, logger: logger, wait: waitFor}
}

// Start launches the loop. Without force it is a no-op while a loop is
// active; with force the active loop is cancelled and awaited first. It
// reports whether a new loop was started.
func (p *Poller) Start(force bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.runningLocked() {
		if !force {
			return false
		}
		p.logger.Info("restarting fetch loop")
		p.cancel()
		<-p.done
	}

	ctx, cancel := context.WithCancel(p.base)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	go p.loop(ctx, done)
	return true
}

// Stop cancels the active loop and waits for it to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.runningLocked() {
		return
	}
	p.cancel()
	<-p.done
}

// Running reports whether a loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runningLocked()
}

func (p *Poller) runningLocked() bool {
	if p.done == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		res := p.cycle.FetchAndPublish(ctx)
		switch res.Outcome {
		case fetcher.OutcomeStop:
			p.logger.Warn("fetch loop stopped", "error", res.Err)
			return
		case fetcher.OutcomeCanceled:
			return
		}
		p.logger.Debug("next fetch scheduled", "outcome", res.Outcome.String(), "in", res.NextDelay.Round(time.Second))
		if !p.wait(ctx, res.NextDelay) {
			return
		}
	}
}

func waitFor(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
