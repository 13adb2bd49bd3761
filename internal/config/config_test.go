package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_MissingConfigFallsBackToDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load(filepath.Join(home, "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.APIBind != defaultAPIBind {
		t.Fatalf("APIBind = %q, want %q", cfg.Server.APIBind, defaultAPIBind)
	}
	wantDataDir, err := ExpandPath(defaultDataDir)
	if err != nil {
		t.Fatalf("ExpandPath(defaultDataDir) returned error: %v", err)
	}
	if cfg.Storage.DataDir != wantDataDir {
		t.Fatalf("DataDir = %q, want %q", cfg.Storage.DataDir, wantDataDir)
	}
	if cfg.CachePath() != filepath.Join(wantDataDir, "data.json") {
		t.Fatalf("CachePath = %q", cfg.CachePath())
	}
	if cfg.TokenPath() != filepath.Join(wantDataDir, "token") {
		t.Fatalf("TokenPath = %q", cfg.TokenPath())
	}
	s := cfg.Schedule
	if s.Attempts != 4 || s.Backoff != 30*time.Second || s.ErrorDelay != time.Minute ||
		s.TargetOffset != 330*time.Second || s.MinDelay != 30*time.Second {
		t.Fatalf("schedule defaults = %#v", s)
	}
	if cfg.Wearable.Capability != "medaka-wear" || !cfg.Wearable.Enabled {
		t.Fatalf("wearable defaults = %#v", cfg.Wearable)
	}
	if cfg.Account.Valid() {
		t.Fatal("default account should be invalid")
	}
}

func TestLoad_ParsesTOML(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`
[account]
username = "  alice  "
password = "secret"
country = "de"
language = "en"

[storage]
data_dir = "  ~/.medaka  "

[schedule]
attempts = 2
backoff = "5s"

[wearable]
enabled = false
broker = "tcp://broker:1883"

[[wearable.nodes]]
id = "watch-1"
nearby = true

[[wearable.nodes]]
id = "  "

[server]
api_bind = "  10.0.0.5:9999  "
log_level = "DEBUG"

[display]
zero_marker = "0"
`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Account.Username != "alice" || !cfg.Account.Valid() {
		t.Fatalf("account = %#v", cfg.Account)
	}
	if !strings.HasPrefix(cfg.Storage.DataDir, home) {
		t.Fatalf("DataDir = %q, want it under HOME %q", cfg.Storage.DataDir, home)
	}
	if cfg.Schedule.Attempts != 2 || cfg.Schedule.Backoff != 5*time.Second {
		t.Fatalf("schedule = %#v", cfg.Schedule)
	}
	if cfg.Schedule.ErrorDelay != defaultErrorDelay {
		t.Fatalf("unset durations should keep defaults: %#v", cfg.Schedule)
	}
	if cfg.Wearable.Enabled || cfg.Wearable.Broker != "tcp://broker:1883" {
		t.Fatalf("wearable = %#v", cfg.Wearable)
	}
	if len(cfg.Wearable.Nodes) != 1 || cfg.Wearable.Nodes[0].ID != "watch-1" || !cfg.Wearable.Nodes[0].Nearby {
		t.Fatalf("nodes = %#v", cfg.Wearable.Nodes)
	}
	if cfg.Server.APIBind != "10.0.0.5:9999" || cfg.Server.LogLevel != "debug" {
		t.Fatalf("server = %#v", cfg.Server)
	}
	if cfg.Display.ZeroMarker != "0" {
		t.Fatalf("ZeroMarker = %q", cfg.Display.ZeroMarker)
	}
}

func TestLoad_ParsesYAML(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(`
account:
  username: bob
  password: pw
  country: nl
  language: nl
schedule:
  error_delay: 2m
wearable:
  discovery: false
`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Account.Username != "bob" || !cfg.Account.Valid() {
		t.Fatalf("account = %#v", cfg.Account)
	}
	if cfg.Schedule.ErrorDelay != 2*time.Minute {
		t.Fatalf("ErrorDelay = %s", cfg.Schedule.ErrorDelay)
	}
	if cfg.Wearable.Discovery {
		t.Fatal("discovery should be disabled")
	}
}

func TestLoad_InvalidValuesFail(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "bad toml", content: `api_bind = [`, want: "parse config"},
		{name: "bad duration", content: "[schedule]\nbackoff = \"soon\"", want: "schedule.backoff"},
		{name: "negative duration", content: "[schedule]\nmin_delay = \"-1s\"", want: "must be positive"},
		{name: "negative attempts", content: "[schedule]\nattempts = -1", want: "attempts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestAccountValidate(t *testing.T) {
	err := Account{Username: "u", Country: "de"}.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "password, language") {
		t.Fatalf("error = %q, want missing fields listed", err)
	}
	if err := (Account{Username: "u", Password: "p", Country: "c", Language: "l"}).Validate(); err != nil {
		t.Fatalf("valid account rejected: %v", err)
	}
}

func TestExpandPath_ExpandsTildeAndReturnsAbs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := ExpandPath("~/a/b")
	if err != nil {
		t.Fatalf("ExpandPath returned error: %v", err)
	}
	want := filepath.Join(home, "a/b")
	if got != want {
		t.Fatalf("ExpandPath = %q, want %q", got, want)
	}
}

func TestExpandPath_EmptyErrors(t *testing.T) {
	if _, err := ExpandPath("   "); err == nil {
		t.Fatalf("ExpandPath returned nil error, want error")
	}
}

func TestDataPaths_DefaultWhenDataDirEmpty(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	var cfg Config
	got := cfg.LogPath()
	if !strings.HasPrefix(got, home) {
		t.Fatalf("LogPath = %q, want it under HOME %q", got, home)
	}
	if !strings.HasSuffix(got, filepath.FromSlash("/log.txt")) {
		t.Fatalf("LogPath = %q, want it to end with /log.txt", got)
	}
}
