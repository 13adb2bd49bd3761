package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config is the medaka daemon configuration.
type Config struct {
	Account  Account
	Upstream Upstream
	Storage  Storage
	Schedule Schedule
	Wearable Wearable
	Server   Server
	Display  Display
}

// Account holds the CareLink credentials and locale.
type Account struct {
	Username string
	Password string
	Country  string
	Language string
}

// Upstream overrides the CareLink endpoints.
type Upstream struct {
	DataURL   string
	ReauthURL string
	Timeout   time.Duration
}

// Storage locates persisted state.
type Storage struct {
	DataDir string
}

// Schedule tunes fetch retries and polling.
type Schedule struct {
	Attempts         int
	Backoff          time.Duration
	ErrorDelay       time.Duration
	TargetOffset     time.Duration
	MinDelay         time.Duration
	ReauthMargin     time.Duration
	WatchdogInterval time.Duration
	StaleAfter       time.Duration
}

// Wearable configures relaying to companion devices.
type Wearable struct {
	Enabled       bool
	Capability    string
	Broker        string
	ClientID      string
	Discovery     bool
	Domain        string
	BrowseTimeout time.Duration
	Nodes         []Node
}

// Node is a statically configured companion device.
type Node struct {
	ID     string
	Name   string
	Nearby bool
}

// Server configures the local status API and logging.
type Server struct {
	APIBind  string
	LogLevel string
}

// Display tunes text rendering.
type Display struct {
	ZeroMarker string
}

const (
	defaultConfigPath = "~/.config/medaka/config.toml"
	defaultDataDir    = "~/.local/share/medaka"
	defaultAPIBind    = "127.0.0.1:7489"
	defaultLogLevel   = "info"
	defaultCapability = "medaka-wear"
	defaultBroker     = "tcp://127.0.0.1:1883"
	defaultDomain     = "local."
	defaultZeroMarker = "±0"

	defaultAttempts         = 4
	defaultBackoff          = 30 * time.Second
	defaultErrorDelay       = 60 * time.Second
	defaultTargetOffset     = 5*time.Minute + 30*time.Second
	defaultMinDelay         = 30 * time.Second
	defaultReauthMargin     = 10 * time.Minute
	defaultWatchdogInterval = 15 * time.Minute
	defaultStaleAfter       = 5 * time.Minute
	defaultUpstreamTimeout  = 3 * time.Minute
	defaultBrowseTimeout    = 3 * time.Second
)

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return defaultConfigPath
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Upstream: Upstream{Timeout: defaultUpstreamTimeout},
		Storage:  Storage{DataDir: mustExpand(defaultDataDir)},
		Schedule: Schedule{
			Attempts:         defaultAttempts,
			Backoff:          defaultBackoff,
			ErrorDelay:       defaultErrorDelay,
			TargetOffset:     defaultTargetOffset,
			MinDelay:         defaultMinDelay,
			ReauthMargin:     defaultReauthMargin,
			WatchdogInterval: defaultWatchdogInterval,
			StaleAfter:       defaultStaleAfter,
		},
		Wearable: Wearable{
			Enabled:       true,
			Capability:    defaultCapability,
			Broker:        defaultBroker,
			Discovery:     true,
			Domain:        defaultDomain,
			BrowseTimeout: defaultBrowseTimeout,
		},
		Server:  Server{APIBind: defaultAPIBind, LogLevel: defaultLogLevel},
		Display: Display{ZeroMarker: defaultZeroMarker},
	}
}

type rawConfig struct {
	Account struct {
		Username string `toml:"username" yaml:"username"`
		Password string `toml:"password" yaml:"password"`
		Country  string `toml:"country" yaml:"country"`
		Language string `toml:"language" yaml:"language"`
	} `toml:"account" yaml:"account"`
	Upstream struct {
		DataURL   string `toml:"data_url" yaml:"data_url"`
		ReauthURL string `toml:"reauth_url" yaml:"reauth_url"`
		Timeout   string `toml:"timeout" yaml:"timeout"`
	} `toml:"upstream" yaml:"upstream"`
	Storage struct {
		DataDir string `toml:"data_dir" yaml:"data_dir"`
	} `toml:"storage" yaml:"storage"`
	Schedule struct {
		Attempts         int    `toml:"attempts" yaml:"attempts"`
		Backoff          string `toml:"backoff" yaml:"backoff"`
		ErrorDelay       string `toml:"error_delay" yaml:"error_delay"`
		TargetOffset     string `toml:"target_offset" yaml:"target_offset"`
		MinDelay         string `toml:"min_delay" yaml:"min_delay"`
		ReauthMargin     string `toml:"reauth_margin" yaml:"reauth_margin"`
		WatchdogInterval string `toml:"watchdog_interval" yaml:"watchdog_interval"`
		StaleAfter       string `toml:"stale_after" yaml:"stale_after"`
	} `toml:"schedule" yaml:"schedule"`
	Wearable struct {
		Enabled       *bool  `toml:"enabled" yaml:"enabled"`
		Capability    string `toml:"capability" yaml:"capability"`
		Broker        string `toml:"broker" yaml:"broker"`
		ClientID      string `toml:"client_id" yaml:"client_id"`
		Discovery     *bool  `toml:"discovery" yaml:"discovery"`
		Domain        string `toml:"domain" yaml:"domain"`
		BrowseTimeout string `toml:"browse_timeout" yaml:"browse_timeout"`
		Nodes         []struct {
			ID     string `toml:"id" yaml:"id"`
			Name   string `toml:"name" yaml:"name"`
			Nearby bool   `toml:"nearby" yaml:"nearby"`
		} `toml:"nodes" yaml:"nodes"`
	} `toml:"wearable" yaml:"wearable"`
	Server struct {
		APIBind  string `toml:"api_bind" yaml:"api_bind"`
		LogLevel string `toml:"log_level" yaml:"log_level"`
	} `toml:"server" yaml:"server"`
	Display struct {
		ZeroMarker string `toml:"zero_marker" yaml:"zero_marker"`
	} `toml:"display" yaml:"display"`
}

// Load locates and parses the config, falling back to defaults when missing.
// Files ending in .yaml or .yml are read as YAML, anything else as TOML.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw rawConfig
	switch strings.ToLower(filepath.Ext(resolved)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(bytes, &raw)
	default:
		err = toml.Unmarshal(bytes, &raw)
	}
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return raw.resolve()
}

func (raw rawConfig) resolve() (Config, error) {
	cfg := Default()

	cfg.Account = Account{
		Username: strings.TrimSpace(raw.Account.Username),
		Password: raw.Account.Password,
		Country:  strings.TrimSpace(raw.Account.Country),
		Language: strings.TrimSpace(raw.Account.Language),
	}

	cfg.Upstream.DataURL = strings.TrimSpace(raw.Upstream.DataURL)
	cfg.Upstream.ReauthURL = strings.TrimSpace(raw.Upstream.ReauthURL)

	if dir := strings.TrimSpace(raw.Storage.DataDir); dir != "" {
		cfg.Storage.DataDir = mustExpand(dir)
	}

	if raw.Schedule.Attempts < 0 {
		return Config{}, fmt.Errorf("parse config: schedule.attempts must not be negative")
	}
	if raw.Schedule.Attempts > 0 {
		cfg.Schedule.Attempts = raw.Schedule.Attempts
	}

	durations := []struct {
		key   string
		value string
		dst   *time.Duration
	}{
		{"upstream.timeout", raw.Upstream.Timeout, &cfg.Upstream.Timeout},
		{"schedule.backoff", raw.Schedule.Backoff, &cfg.Schedule.Backoff},
		{"schedule.error_delay", raw.Schedule.ErrorDelay, &cfg.Schedule.ErrorDelay},
		{"schedule.target_offset", raw.Schedule.TargetOffset, &cfg.Schedule.TargetOffset},
		{"schedule.min_delay", raw.Schedule.MinDelay, &cfg.Schedule.MinDelay},
		{"schedule.reauth_margin", raw.Schedule.ReauthMargin, &cfg.Schedule.ReauthMargin},
		{"schedule.watchdog_interval", raw.Schedule.WatchdogInterval, &cfg.Schedule.WatchdogInterval},
		{"schedule.stale_after", raw.Schedule.StaleAfter, &cfg.Schedule.StaleAfter},
		{"wearable.browse_timeout", raw.Wearable.BrowseTimeout, &cfg.Wearable.BrowseTimeout},
	}
	for _, d := range durations {
		if err := parseDuration(d.key, d.value, d.dst); err != nil {
			return Config{}, err
		}
	}

	if raw.Wearable.Enabled != nil {
		cfg.Wearable.Enabled = *raw.Wearable.Enabled
	}
	if raw.Wearable.Discovery != nil {
		cfg.Wearable.Discovery = *raw.Wearable.Discovery
	}
	if v := strings.TrimSpace(raw.Wearable.Capability); v != "" {
		cfg.Wearable.Capability = v
	}
	if v := strings.TrimSpace(raw.Wearable.Broker); v != "" {
		cfg.Wearable.Broker = v
	}
	if v := strings.TrimSpace(raw.Wearable.Domain); v != "" {
		cfg.Wearable.Domain = v
	}
	cfg.Wearable.ClientID = strings.TrimSpace(raw.Wearable.ClientID)
	for _, n := range raw.Wearable.Nodes {
		id := strings.TrimSpace(n.ID)
		if id == "" {
			continue
		}
		cfg.Wearable.Nodes = append(cfg.Wearable.Nodes, Node{ID: id, Name: strings.TrimSpace(n.Name), Nearby: n.Nearby})
	}

	if v := strings.TrimSpace(raw.Server.APIBind); v != "" {
		cfg.Server.APIBind = v
	}
	if v := strings.ToLower(strings.TrimSpace(raw.Server.LogLevel)); v != "" {
		cfg.Server.LogLevel = v
	}

	if v := strings.TrimSpace(raw.Display.ZeroMarker); v != "" {
		cfg.Display.ZeroMarker = v
	}

	return cfg, nil
}

func parseDuration(key, value string, dst *time.Duration) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse config: %s: %w", key, err)
	}
	if d <= 0 {
		return fmt.Errorf("parse config: %s must be positive", key)
	}
	*dst = d
	return nil
}

// Validate reports which required account fields are missing.
func (a Account) Validate() error {
	var missing []string
	if strings.TrimSpace(a.Username) == "" {
		missing = append(missing, "username")
	}
	if a.Password == "" {
		missing = append(missing, "password")
	}
	if strings.TrimSpace(a.Country) == "" {
		missing = append(missing, "country")
	}
	if strings.TrimSpace(a.Language) == "" {
		missing = append(missing, "language")
	}
	if len(missing) > 0 {
		return fmt.Errorf("account missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Valid reports whether every account field is set.
func (a Account) Valid() bool {
	return a.Validate() == nil
}

// CachePath returns the raw snapshot cache location.
func (c Config) CachePath() string {
	return filepath.Join(c.dataDir(), "data.json")
}

// TokenPath returns the persisted token location.
func (c Config) TokenPath() string {
	return filepath.Join(c.dataDir(), "token")
}

// HistoryPath returns the reading history database location.
func (c Config) HistoryPath() string {
	return filepath.Join(c.dataDir(), "history.db")
}

// LogPath returns the activity log location.
func (c Config) LogPath() string {
	return filepath.Join(c.dataDir(), "log.txt")
}

func (c Config) dataDir() string {
	if strings.TrimSpace(c.Storage.DataDir) == "" {
		return mustExpand(defaultDataDir)
	}
	return c.Storage.DataDir
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return ExpandPath(defaultConfigPath)
	}
	return ExpandPath(path)
}

func mustExpand(path string) string {
	expanded, err := ExpandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

// ExpandPath expands a leading ~ to the home directory and returns an
// absolute path.
func ExpandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
