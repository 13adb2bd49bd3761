package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/five82/medaka/internal/activitylog"
	"github.com/five82/medaka/internal/cache"
	"github.com/five82/medaka/internal/carelink"
	"github.com/five82/medaka/internal/config"
	"github.com/five82/medaka/internal/fetcher"
	"github.com/five82/medaka/internal/history"
	"github.com/five82/medaka/internal/relay"
	"github.com/five82/medaka/internal/session"
	"github.com/five82/medaka/internal/state"
	"github.com/five82/medaka/internal/statusapi"
	"github.com/five82/medaka/internal/token"
)

// Options configure medaka commands.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses ~/.config/medaka/prefs.toml
	Stdout     io.Writer
	Stderr     io.Writer
}

// Daemon wires together the medaka services and manages their lifecycle.
type Daemon struct {
	cfg      config.Config
	logger   *slog.Logger
	activity *activitylog.Writer

	tokens  *token.Store
	cache   *cache.File
	store   *state.Store
	auth    *session.Authenticator
	fetcher *fetcher.Fetcher
	history *history.Store
	relay   *relay.Relay
	mqtt    *relay.MQTTMessenger
}

// pipeline is the fetch path shared by the daemon and `medaka fetch`.
type pipeline struct {
	tokens  *token.Store
	cache   *cache.File
	store   *state.Store
	auth    *session.Authenticator
	fetcher *fetcher.Fetcher
}

func newPipeline(cfg config.Config, logger *slog.Logger) pipeline {
	tokens := token.NewStore(cfg.TokenPath(), logger.With("component", "token"))
	file := cache.New(cfg.CachePath())
	store := state.NewStore(file, logger.With("component", "state"))
	client := carelink.NewClient(carelink.Options{
		DataURL:   cfg.Upstream.DataURL,
		ReauthURL: cfg.Upstream.ReauthURL,
		Timeout:   cfg.Upstream.Timeout,
	})

	onExpired := func() {
		logger.Warn("session expired, run `medaka login` to store a new one")
	}
	auth := session.New(client, tokens, session.Options{
		Margin:    cfg.Schedule.ReauthMargin,
		Logger:    logger.With("component", "session"),
		OnExpired: onExpired,
	})
	account := cfg.Account
	f := fetcher.New(fetcher.Deps{
		Upstream: client,
		Tokens:   tokens,
		Auth:     auth,
		Status:   store,
		Cache:    file,
		Account:  func() config.Account { return account },
	}, fetcher.Options{
		Schedule: fetcher.Schedule{
			Attempts:     cfg.Schedule.Attempts,
			Backoff:      cfg.Schedule.Backoff,
			ErrorDelay:   cfg.Schedule.ErrorDelay,
			TargetOffset: cfg.Schedule.TargetOffset,
			MinDelay:     cfg.Schedule.MinDelay,
		},
		Logger:           logger.With("component", "fetcher"),
		OnSessionExpired: onExpired,
	})
	return pipeline{tokens: tokens, cache: file, store: store, auth: auth, fetcher: f}
}

// NewDaemon builds the daemon. Log output goes to stderr and to the
// activity log in the data directory.
func NewDaemon(cfg config.Config, stderr io.Writer) (*Daemon, error) {
	activity, err := activitylog.Open(cfg.LogPath(), activitylog.DefaultMaxLines)
	if err != nil {
		return nil, fmt.Errorf("open activity log: %w", err)
	}
	logger := NewLogger(io.MultiWriter(stderr, activity), cfg.Server.LogLevel)

	p := newPipeline(cfg, logger)
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		activity: activity,
		tokens:   p.tokens,
		cache:    p.cache,
		store:    p.store,
		auth:     p.auth,
		fetcher:  p.fetcher,
	}

	hist, err := history.Open(cfg.HistoryPath(), logger.With("component", "history"))
	if err != nil {
		logger.Warn("reading history disabled", "error", err)
	} else {
		d.history = hist
	}

	if cfg.Wearable.Enabled {
		d.mqtt = relay.NewMQTTMessenger(cfg.Wearable.Broker, cfg.Wearable.ClientID, cfg.Wearable.Capability)
		d.relay = relay.New(discoverer(cfg.Wearable), d.mqtt, relay.Options{
			Capability: cfg.Wearable.Capability,
			ZeroMarker: cfg.Display.ZeroMarker,
			Logger:     logger.With("component", "relay"),
		})
	}
	return d, nil
}

func discoverer(w config.Wearable) relay.Discoverer {
	static := make(relay.StaticDiscoverer, 0, len(w.Nodes))
	for _, n := range w.Nodes {
		static = append(static, relay.Node{ID: n.ID, Name: n.Name, Nearby: n.Nearby})
	}
	if !w.Discovery {
		return static
	}
	return relay.MultiDiscoverer{
		relay.MDNSDiscoverer{Domain: w.Domain, Timeout: w.BrowseTimeout},
		static,
	}
}

// Run starts all services and blocks until ctx is cancelled or the status
// API fails.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if d.history != nil {
		if err := d.history.InitSchema(ctx); err != nil {
			d.logger.Warn("reading history disabled", "error", err)
			_ = d.history.Close()
			d.history = nil
		}
	}

	if err := d.cfg.Account.Validate(); err != nil {
		d.logger.Warn("fetching disabled until the account is configured", "error", err)
	}

	var wg sync.WaitGroup
	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	// Subscribe before the cache is loaded so the restored snapshot is
	// recorded and relayed like any other.
	if d.history != nil {
		events, unsubscribe := d.store.Subscribe()
		defer unsubscribe()
		spawn(func() { d.history.Run(ctx, events) })
	}
	if d.relay != nil {
		events, unsubscribe := d.store.Subscribe()
		defer unsubscribe()
		spawn(func() { d.relay.Run(ctx, events) })
	}

	d.tokens.Restore()
	if snap := d.store.Cached(); snap != nil {
		d.logger.Info("restored cached snapshot", "last", snap.LastText())
	}

	poller := NewPoller(ctx, d.fetcher, d.logger.With("component", "poller"))
	poller.Start(false)

	account := d.cfg.Account
	watchdog := &Watchdog{
		Poller:     poller,
		Tokens:     d.tokens,
		Store:      d.store,
		Account:    func() config.Account { return account },
		StaleAfter: d.cfg.Schedule.StaleAfter,
		Logger:     d.logger.With("component", "watchdog"),
	}
	spawn(func() { watchdog.Run(ctx, d.cfg.Schedule.WatchdogInterval) })

	server := statusapi.NewServer(statusapi.Deps{
		Store:  d.store,
		Tokens: d.tokens,
		Poller: poller,
		Auth:   d.auth,
		Reset:  d.resetData,
		Logs:   d.activity.Lines,
	}, d.logger.With("component", "api"))

	err := server.ListenAndServe(ctx, d.cfg.Server.APIBind)
	cancel()
	poller.Stop()
	wg.Wait()
	return err
}

// resetData removes the cache file and recorded history.
func (d *Daemon) resetData(ctx context.Context) error {
	var errs []error
	if err := d.cache.Remove(); err != nil {
		errs = append(errs, err)
	}
	if d.history != nil {
		if err := d.history.Clear(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases the daemon's files and connections.
func (d *Daemon) Close() error {
	if d.mqtt != nil {
		d.mqtt.Close()
	}
	var errs []error
	if d.history != nil {
		if err := d.history.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close history: %w", err))
		}
	}
	if err := d.activity.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close activity log: %w", err))
	}
	return errors.Join(errs...)
}

// NewLogger returns a text logger at the named level.
func NewLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel(level)}))
}

func logLevel(level string) slog.Leveler {
	var lvl slog.Level

	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	lv := new(slog.LevelVar)
	lv.Set(lvl)
	return lv
}
