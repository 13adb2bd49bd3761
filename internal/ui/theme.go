package ui

import "github.com/charmbracelet/lipgloss"

// Theme is a named palette. Glucose ranges get their own colors so a low
// reading never shares a color with a fetch error.
type Theme struct {
	Name string

	Base   string // screen background
	Bar    string // header bar
	Border string

	Fg    string
	Dim   string
	Faint string

	Low     string
	InRange string
	High    string
	Trend   string

	Notice  string
	Caution string
	Alert   string

	// StatusColors are keyed by state.FetchStatus names.
	StatusColors map[string]string
}

// Styles are the lipgloss styles derived from a Theme.
type Styles struct {
	Value   lipgloss.Style
	Label   lipgloss.Style
	Faint   lipgloss.Style
	Trend   lipgloss.Style
	Notice  lipgloss.Style
	Caution lipgloss.Style
	Alert   lipgloss.Style

	Low     lipgloss.Style
	InRange lipgloss.Style
	High    lipgloss.Style

	Brand  lipgloss.Style
	Bar    lipgloss.Style
	Footer lipgloss.Style
	Card   lipgloss.Style
}

func fg(color string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
}

// Styles builds the style set for t.
func (t Theme) Styles() Styles {
	return Styles{
		Value:   fg(t.Fg),
		Label:   fg(t.Dim),
		Faint:   fg(t.Faint),
		Trend:   fg(t.Trend).Bold(true),
		Notice:  fg(t.Notice),
		Caution: fg(t.Caution),
		Alert:   fg(t.Alert).Bold(true),

		Low:     fg(t.Low).Bold(true),
		InRange: fg(t.InRange),
		High:    fg(t.High),

		Brand:  fg(t.Caution).Bold(true),
		Bar:    fg(t.Fg).Background(lipgloss.Color(t.Bar)).Padding(0, 1),
		Footer: fg(t.Dim).Padding(0, 1),
		Card: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(t.Border)).
			Padding(0, 1),
	}
}

// Chip renders a fetch status as a filled label.
func (t Theme) Chip(status string) string {
	color, ok := t.StatusColors[status]
	if !ok {
		color = t.Dim
	}
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(t.Base)).
		Background(lipgloss.Color(color)).
		Padding(0, 1).
		Render(status)
}

var themeOrder = []Theme{nightfox, nord, gruvbox}

// GetTheme returns the named theme, or the first one when name is unknown.
func GetTheme(name string) Theme {
	for _, t := range themeOrder {
		if t.Name == name {
			return t
		}
	}
	return themeOrder[0]
}

// NextTheme returns the theme after current, wrapping around.
func NextTheme(current string) string {
	for i, t := range themeOrder {
		if t.Name == current {
			return themeOrder[(i+1)%len(themeOrder)].Name
		}
	}
	return themeOrder[0].Name
}

// ThemeNames lists the themes in cycle order.
func ThemeNames() []string {
	names := make([]string, len(themeOrder))
	for i, t := range themeOrder {
		names[i] = t.Name
	}
	return names
}

func statusColors(idle, fetching, success, failed, expired string) map[string]string {
	return map[string]string{
		"idle":            idle,
		"fetching":        fetching,
		"success":         success,
		"error":           failed,
		"session-expired": expired,
	}
}

// https://github.com/EdenEast/nightfox.nvim
var nightfox = Theme{
	Name: "Nightfox",
	Base: "#131a24", Bar: "#192330", Border: "#39506d",
	Fg: "#cdcecf", Dim: "#738091", Faint: "#71839b",
	Low: "#c94f6d", InRange: "#81b29a", High: "#dbc074", Trend: "#719cd6",
	Notice: "#63cdcf", Caution: "#f4a261", Alert: "#c94f6d",
	StatusColors: statusColors("#738091", "#63cdcf", "#81b29a", "#c94f6d", "#f4a261"),
}

// https://www.nordtheme.com/docs/colors-and-palettes
var nord = Theme{
	Name: "Nord",
	Base: "#2e3440", Bar: "#3b4252", Border: "#4c566a",
	Fg: "#eceff4", Dim: "#d8dee9", Faint: "#616e88",
	Low: "#bf616a", InRange: "#a3be8c", High: "#ebcb8b", Trend: "#88c0d0",
	Notice: "#81a1c1", Caution: "#d08770", Alert: "#bf616a",
	StatusColors: statusColors("#616e88", "#88c0d0", "#a3be8c", "#bf616a", "#d08770"),
}

// https://github.com/morhetz/gruvbox
var gruvbox = Theme{
	Name: "Gruvbox",
	Base: "#1d2021", Bar: "#282828", Border: "#504945",
	Fg: "#ebdbb2", Dim: "#a89984", Faint: "#7c6f64",
	Low: "#fb4934", InRange: "#b8bb26", High: "#fabd2f", Trend: "#83a598",
	Notice: "#8ec07c", Caution: "#fe8019", Alert: "#fb4934",
	StatusColors: statusColors("#928374", "#83a598", "#b8bb26", "#fb4934", "#fe8019"),
}
