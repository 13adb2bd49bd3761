package app

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/five82/medaka/internal/config"
	"github.com/five82/medaka/internal/fetcher"
	"github.com/five82/medaka/internal/state"
	"github.com/five82/medaka/internal/token"
)

type scriptedCycle struct {
	mu       sync.Mutex
	outcomes []fetcher.Result
	calls    atomic.Int32
	block    bool
}

func (c *scriptedCycle) FetchAndPublish(ctx context.Context) fetcher.Result {
	n := int(c.calls.Add(1))
	if c.block {
		<-ctx.Done()
		return fetcher.Result{Outcome: fetcher.OutcomeCanceled, Err: ctx.Err()}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > len(c.outcomes) {
		return fetcher.Result{Outcome: fetcher.OutcomeStop}
	}
	return c.outcomes[n-1]
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPoller_LoopFollowsOutcomes(t *testing.T) {
	cycle := &scriptedCycle{outcomes: []fetcher.Result{
		{Outcome: fetcher.OutcomeSuccess, NextDelay: 210 * time.Second},
		{Outcome: fetcher.OutcomeRetry, NextDelay: time.Minute},
		{Outcome: fetcher.OutcomeBusy, NextDelay: time.Minute},
		{Outcome: fetcher.OutcomeStop},
		{Outcome: fetcher.OutcomeSuccess},
	}}
	p := NewPoller(context.Background(), cycle, nil)
	var mu sync.Mutex
	var delays []time.Duration
	p.wait = func(ctx context.Context, d time.Duration) bool {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return ctx.Err() == nil
	}

	if !p.Start(false) {
		t.Fatal("Start should launch a loop")
	}
	waitUntil(t, func() bool { return !p.Running() })

	if cycle.calls.Load() != 4 {
		t.Fatalf("cycles = %d, want 4 (loop stops on Stop outcome)", cycle.calls.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	want := []time.Duration{210 * time.Second, time.Minute, time.Minute}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delays = %v, want %v", delays, want)
		}
	}
}

func TestPoller_StartIsNoOpWhileRunning(t *testing.T) {
	cycle := &scriptedCycle{block: true}
	p := NewPoller(context.Background(), cycle, nil)

	if !p.Start(false) {
		t.Fatal("first Start should launch")
	}
	waitUntil(t, func() bool { return cycle.calls.Load() == 1 })
	if p.Start(false) {
		t.Fatal("non-forced Start while running must be a no-op")
	}
	if cycle.calls.Load() != 1 {
		t.Fatalf("cycles = %d, want 1", cycle.calls.Load())
	}

	if !p.Start(true) {
		t.Fatal("forced Start should restart")
	}
	waitUntil(t, func() bool { return cycle.calls.Load() == 2 })
	if !p.Running() {
		t.Fatal("restarted loop should be running")
	}

	p.Stop()
	if p.Running() {
		t.Fatal("Stop should end the loop")
	}
	p.Stop()
}

func TestPoller_ParentCancelStopsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cycle := &scriptedCycle{block: true}
	p := NewPoller(ctx, cycle, nil)
	p.Start(false)
	waitUntil(t, func() bool { return cycle.calls.Load() == 1 })

	cancel()
	waitUntil(t, func() bool { return !p.Running() })
}

type fakeLoop struct {
	running bool
	starts  int
}

func (f *fakeLoop) Running() bool { return f.running }

func (f *fakeLoop) Start(bool) bool {
	f.starts++
	f.running = true
	return true
}

type fakeTokens struct{ has bool }

func (f fakeTokens) Get() (token.Session, bool) { return token.Session{Token: "t"}, f.has }

type fakeView struct{ at time.Time }

func (f fakeView) View() state.View { return state.View{FetchedAt: f.at} }

func TestWatchdog_Check(t *testing.T) {
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	valid := config.Account{Username: "u", Password: "p", Country: "c", Language: "l"}

	tests := []struct {
		name      string
		running   bool
		account   config.Account
		hasToken  bool
		lastFetch time.Time
		want      bool
	}{
		{name: "never fetched", account: valid, hasToken: true, want: true},
		{name: "stale", account: valid, hasToken: true, lastFetch: now.Add(-6 * time.Minute), want: true},
		{name: "recent", account: valid, hasToken: true, lastFetch: now.Add(-4 * time.Minute), want: false},
		{name: "already running", running: true, account: valid, hasToken: true, want: false},
		{name: "no password", account: config.Account{Username: "u", Country: "c", Language: "l"}, hasToken: true, want: false},
		{name: "no token", account: valid, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loop := &fakeLoop{running: tt.running}
			w := &Watchdog{
				Poller:     loop,
				Tokens:     fakeTokens{has: tt.hasToken},
				Store:      fakeView{at: tt.lastFetch},
				Account:    func() config.Account { return tt.account },
				StaleAfter: 5 * time.Minute,
				Now:        func() time.Time { return now },
			}
			if got := w.Check(); got != tt.want {
				t.Fatalf("Check = %v, want %v", got, tt.want)
			}
			if (loop.starts == 1) != tt.want {
				t.Fatalf("starts = %d", loop.starts)
			}
		})
	}
}
