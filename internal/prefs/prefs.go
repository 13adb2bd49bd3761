// Package prefs persists the watch view's preferences in
// ~/.config/medaka/prefs.toml. A missing or unreadable file never fails the
// caller; defaults are used instead.
package prefs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/five82/medaka/internal/cache"
	"github.com/five82/medaka/internal/config"
)

// Glucose display units.
const (
	UnitsMgdl = "mg/dL"
	UnitsMmol = "mmol/L"
)

// Prefs holds user preferences for the watch view.
type Prefs struct {
	Theme    string `toml:"theme"`
	Units    string `toml:"units"`
	LogLevel string `toml:"log_level"`
}

const (
	defaultPrefsPath = "~/.config/medaka/prefs.toml"
	defaultTheme     = "Nightfox"
	defaultLogLevel  = "info"
)

// Default returns the preferences used when no file exists.
func Default() Prefs {
	return Prefs{Theme: defaultTheme, Units: UnitsMgdl, LogLevel: defaultLogLevel}
}

// DefaultPath returns the default preferences file path.
func DefaultPath() string {
	return defaultPrefsPath
}

// Load reads preferences from path, falling back to defaults for anything
// missing or invalid.
func Load(path string) (Prefs, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Default(), nil
	}
	data, err := os.ReadFile(resolved)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Default(), nil // unreadable file degrades to defaults
	}
	var p Prefs
	if err := toml.Unmarshal(data, &p); err != nil {
		return Default(), nil
	}
	return p.normalize(), nil
}

// Save writes preferences to path, creating directories as needed.
func Save(path string, p Prefs) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}
	data, err := toml.Marshal(p.normalize())
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}
	if err := cache.WriteAtomic(resolved, data, 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	return nil
}

// ToggleUnits flips between mg/dL and mmol/L.
func (p Prefs) ToggleUnits() Prefs {
	if p.Units == UnitsMmol {
		p.Units = UnitsMgdl
	} else {
		p.Units = UnitsMmol
	}
	return p
}

func (p Prefs) normalize() Prefs {
	def := Default()
	if strings.TrimSpace(p.Theme) == "" {
		p.Theme = def.Theme
	}
	switch strings.ToLower(strings.TrimSpace(p.Units)) {
	case "mmol/l", "mmol":
		p.Units = UnitsMmol
	default:
		p.Units = UnitsMgdl
	}
	switch lvl := strings.ToLower(strings.TrimSpace(p.LogLevel)); lvl {
	case "debug", "info", "warn", "error":
		p.LogLevel = lvl
	default:
		p.LogLevel = def.LogLevel
	}
	return p
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		path = defaultPrefsPath
	}
	return config.ExpandPath(path)
}
