package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/five82/medaka/internal/app"
	"github.com/five82/medaka/internal/statusapi"
)

const usage = `usage: medaka [flags] [command] [command flags]

commands:
  run       run the daemon (default)
  fetch     run one fetch cycle and print the latest reading
  login     store a session: -cookie "auth_tmp_token=...; c_token_valid_to=..."
            or -token TOKEN [-valid-to RFC3339]
  watch     open the terminal view
  log       print the activity log: [-n lines] [-level info]
  history   print recorded readings: [-n rows]
  reset     clear the session, cached snapshot and history

flags:
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("medaka", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "config file path (default ~/.config/medaka/config.toml)")
	prefsPath := fs.String("prefs", "", "watch preferences path (default ~/.config/medaka/prefs.toml)")
	fs.Usage = func() {
		_, _ = fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	command := "run"
	rest := fs.Args()
	if len(rest) > 0 {
		command, rest = rest[0], rest[1:]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := app.Options{
		ConfigPath: *configPath,
		PrefsPath:  *prefsPath,
		Stdout:     stdout,
		Stderr:     stderr,
	}

	var err error
	switch command {
	case "run":
		err = app.RunDaemon(ctx, opts)
	case "fetch":
		err = app.FetchOnce(ctx, opts)
	case "login":
		var req statusapi.SessionRequest
		req, err = parseLogin(rest, stderr)
		if err == nil {
			err = app.Login(ctx, opts, req)
		}
	case "watch":
		err = app.Watch(ctx, opts)
	case "log":
		sub := flag.NewFlagSet("log", flag.ContinueOnError)
		sub.SetOutput(stderr)
		n := sub.Int("n", 100, "number of lines")
		level := sub.String("level", "", "minimum level (debug, info, warn, error)")
		if err = sub.Parse(rest); err == nil {
			err = app.Log(ctx, opts, *n, *level)
		}
	case "history":
		sub := flag.NewFlagSet("history", flag.ContinueOnError)
		sub.SetOutput(stderr)
		n := sub.Int("n", 50, "number of readings")
		if err = sub.Parse(rest); err == nil {
			err = app.History(ctx, opts, *n)
		}
	case "reset":
		err = app.Reset(ctx, opts)
	case "help":
		fs.Usage()
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "medaka: unknown command %q\n", command)
		fs.Usage()
		return 2
	}

	if err != nil {
		_, _ = fmt.Fprintf(stderr, "medaka: %v\n", err)
		return 1
	}
	return 0
}

func parseLogin(args []string, stderr io.Writer) (statusapi.SessionRequest, error) {
	sub := flag.NewFlagSet("login", flag.ContinueOnError)
	sub.SetOutput(stderr)
	cookie := sub.String("cookie", "", "browser cookie header containing auth_tmp_token and c_token_valid_to")
	tok := sub.String("token", "", "bearer token")
	validTo := sub.String("valid-to", "", "token expiry (RFC3339); defaults to the token's exp claim")
	if err := sub.Parse(args); err != nil {
		return statusapi.SessionRequest{}, err
	}

	req := statusapi.SessionRequest{Cookie: strings.TrimSpace(*cookie), Token: strings.TrimSpace(*tok)}
	if req.Cookie == "" && req.Token == "" {
		return statusapi.SessionRequest{}, fmt.Errorf("login requires -cookie or -token")
	}
	if v := strings.TrimSpace(*validTo); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return statusapi.SessionRequest{}, fmt.Errorf("parse -valid-to: %w", err)
		}
		req.ValidTo = &t
	}
	return req, nil
}
