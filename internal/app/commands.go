package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/five82/medaka/internal/cache"
	"github.com/five82/medaka/internal/config"
	"github.com/five82/medaka/internal/history"
	"github.com/five82/medaka/internal/logtail"
	"github.com/five82/medaka/internal/prefs"
	"github.com/five82/medaka/internal/statusapi"
	"github.com/five82/medaka/internal/token"
	"github.com/five82/medaka/internal/ui"
)

const daemonRequestTimeout = 3 * time.Second

func (o Options) stdout() io.Writer {
	if o.Stdout == nil {
		return os.Stdout
	}
	return o.Stdout
}

func (o Options) stderr() io.Writer {
	if o.Stderr == nil {
		return os.Stderr
	}
	return o.Stderr
}

func loadConfig(opts Options) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// RunDaemon boots the daemon until ctx is cancelled.
func RunDaemon(ctx context.Context, opts Options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	d, err := NewDaemon(cfg, opts.stderr())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := d.Close(); cerr != nil {
			d.logger.Error("close daemon", "error", cerr)
		}
	}()
	d.logger.Info("medaka starting", "api_bind", cfg.Server.APIBind, "data_dir", cfg.Storage.DataDir)
	if err := d.Run(ctx); err != nil {
		return err
	}
	d.logger.Info("medaka stopped")
	return nil
}

// FetchOnce runs a single fetch cycle in-process and prints the result.
func FetchOnce(ctx context.Context, opts Options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger := NewLogger(opts.stderr(), cfg.Server.LogLevel)
	p := newPipeline(cfg, logger)

	res := p.fetcher.FetchAndPublish(ctx)
	out := opts.stdout()
	if res.Snapshot != nil {
		if hist, herr := history.Open(cfg.HistoryPath(), logger); herr == nil {
			if herr = hist.InitSchema(ctx); herr == nil {
				_, herr = hist.Record(ctx, res.Snapshot)
			}
			if herr != nil {
				logger.Warn("record readings failed", "error", herr)
			}
			_ = hist.Close()
		}
		line := res.Snapshot.LastText()
		if arrow := res.Snapshot.TrendArrow(); arrow != "" {
			line += " " + arrow
		}
		if delta := res.Snapshot.LastDeltaText(cfg.Display.ZeroMarker); delta != "" {
			line += " " + delta
		}
		if at, ok := res.Snapshot.LastTimeText(); ok {
			line += " at " + at
		}
		_, _ = fmt.Fprintln(out, line)
	}
	if res.Err != nil {
		return fmt.Errorf("fetch %s: %w", res.Outcome, res.Err)
	}
	_, _ = fmt.Fprintf(out, "next fetch due in %s\n", res.NextDelay.Round(time.Second))
	return nil
}

// Login stores a session. The running daemon receives it over the status
// API; without a daemon the token file is written directly.
func Login(ctx context.Context, opts Options, req statusapi.SessionRequest) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	out := opts.stdout()

	client, err := statusapi.NewClient(cfg.Server.APIBind)
	if err != nil {
		return err
	}
	reqCtx, cancel := context.WithTimeout(ctx, daemonRequestTimeout)
	resp, err := client.Login(reqCtx, req)
	cancel()
	if err == nil {
		_, _ = fmt.Fprintf(out, "session stored, valid until %s\n", resp.ValidTo.Local().Format(time.RFC1123))
		return nil
	}
	if !daemonUnreachable(err) {
		return fmt.Errorf("login: %w", err)
	}

	creds, err := statusapi.SessionCredentials(req)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	tokens := token.NewStore(cfg.TokenPath(), nil)
	if err := tokens.Set(creds.Token, creds.ValidTo); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	_, _ = fmt.Fprintf(out, "daemon not running; session written to %s, valid until %s\n",
		cfg.TokenPath(), creds.ValidTo.Local().Format(time.RFC1123))
	return nil
}

// Reset clears the session, cached snapshot and history.
func Reset(ctx context.Context, opts Options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	out := opts.stdout()

	client, err := statusapi.NewClient(cfg.Server.APIBind)
	if err != nil {
		return err
	}
	reqCtx, cancel := context.WithTimeout(ctx, daemonRequestTimeout)
	err = client.Reset(reqCtx)
	cancel()
	if err == nil {
		_, _ = fmt.Fprintln(out, "daemon data reset")
		return nil
	}
	if !daemonUnreachable(err) {
		return fmt.Errorf("reset: %w", err)
	}

	var errs []error
	if err := token.NewStore(cfg.TokenPath(), nil).Clear(); err != nil {
		errs = append(errs, err)
	}
	if err := cache.New(cfg.CachePath()).Remove(); err != nil {
		errs = append(errs, err)
	}
	if _, statErr := os.Stat(cfg.HistoryPath()); statErr == nil {
		if hist, err := history.Open(cfg.HistoryPath(), nil); err != nil {
			errs = append(errs, err)
		} else {
			if err := hist.InitSchema(ctx); err != nil {
				errs = append(errs, err)
			} else if err := hist.Clear(ctx); err != nil {
				errs = append(errs, err)
			}
			_ = hist.Close()
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	_, _ = fmt.Fprintln(out, "local data reset")
	return nil
}

// Log prints the newest activity log lines at or above level.
func Log(ctx context.Context, opts Options, limit int, level string) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	client, err := statusapi.NewClient(cfg.Server.APIBind)
	if err != nil {
		return err
	}
	reqCtx, cancel := context.WithTimeout(ctx, daemonRequestTimeout)
	lines, err := client.FetchLogs(reqCtx, limit, level)
	cancel()
	if err != nil {
		if !daemonUnreachable(err) {
			return fmt.Errorf("fetch logs: %w", err)
		}
		lines, err = logtail.Read(cfg.LogPath(), limit)
		if err != nil {
			return fmt.Errorf("read log: %w", err)
		}
		lines = logtail.FilterLevel(lines, level)
	}
	out := opts.stdout()
	for _, line := range lines {
		_, _ = fmt.Fprintln(out, line)
	}
	return nil
}

// History prints recorded readings, newest first.
func History(ctx context.Context, opts Options, limit int) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	hist, err := history.Open(cfg.HistoryPath(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = hist.Close() }()
	if err := hist.InitSchema(ctx); err != nil {
		return err
	}
	readings, err := hist.Recent(ctx, limit)
	if err != nil {
		return err
	}
	out := opts.stdout()
	if len(readings) == 0 {
		_, _ = fmt.Fprintln(out, "no readings recorded yet")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TIME\tSG\tSTATE\tKIND")
	for _, r := range readings {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n",
			r.RecordedAt.Local().Format("2006-01-02 15:04"), r.SG, strings.ToLower(r.SensorState), r.Kind)
	}
	return tw.Flush()
}

// Watch runs the terminal view against the daemon's status API.
func Watch(ctx context.Context, opts Options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	userPrefs, _ := prefs.Load(opts.PrefsPath)
	client, err := statusapi.NewClient(cfg.Server.APIBind)
	if err != nil {
		return fmt.Errorf("init status client: %w", err)
	}
	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}
	return ui.Run(ui.Options{
		Context:    ctx,
		Client:     client,
		Prefs:      userPrefs,
		PrefsPath:  prefsPath,
		ZeroMarker: cfg.Display.ZeroMarker,
	})
}

// daemonUnreachable reports whether err means no daemon answered, as opposed
// to the daemon rejecting the request.
func daemonUnreachable(err error) bool {
	var apiErr *statusapi.APIError
	return err != nil && !errors.As(err, &apiErr)
}
