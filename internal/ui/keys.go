package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings for the watch view.
type keyMap struct {
	Quit       key.Binding
	Help       key.Binding
	CycleTheme key.Binding

	Fetch       key.Binding
	Reauth      key.Binding
	ToggleLogs  key.Binding
	ToggleUnits key.Binding
	CycleLevel  key.Binding

	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Bottom   key.Binding
}

// defaultKeyMap returns the default key bindings.
func defaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("h", "?"),
			key.WithHelp("?", "help"),
		),
		CycleTheme: key.NewBinding(
			key.WithKeys("T"),
			key.WithHelp("T", "theme"),
		),

		Fetch: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "fetch now"),
		),
		Reauth: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "renew session"),
		),
		ToggleLogs: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "logs"),
		),
		ToggleUnits: key.NewBinding(
			key.WithKeys("u"),
			key.WithHelp("u", "units"),
		),
		CycleLevel: key.NewBinding(
			key.WithKeys("v"),
			key.WithHelp("v", "log level"),
		),

		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/up", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/down", "scroll down"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup", "ctrl+u"),
			key.WithHelp("pgup", "page up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown", "ctrl+d"),
			key.WithHelp("pgdown", "page down"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "follow"),
		),
	}
}

// ShortHelp returns key bindings for the footer.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Fetch, k.Reauth, k.ToggleLogs, k.ToggleUnits, k.Help, k.Quit}
}

// FullHelp returns key bindings for the help overlay.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Fetch, k.Reauth},
		{k.ToggleLogs, k.CycleLevel, k.Up, k.Down, k.PageUp, k.PageDown, k.Bottom},
		{k.ToggleUnits, k.CycleTheme, k.Help, k.Quit},
	}
}
