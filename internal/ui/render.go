package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/five82/medaka/internal/carelink"
	"github.com/five82/medaka/internal/logtail"
)

func (m Model) renderMain() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	if m.showLogs {
		b.WriteString(m.logViewport.View())
	} else {
		b.WriteString(m.renderReadings())
	}
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

// headerBar joins header segments on the bar background. Every piece carries
// the background so ANSI resets between pieces leave no gaps.
type headerBar struct {
	bg    lipgloss.Color
	parts []string
}

func (h *headerBar) text(s string, st lipgloss.Style) string {
	return st.Background(h.bg).Render(s)
}

func (h *headerBar) push(pieces ...string) {
	h.parts = append(h.parts, strings.Join(pieces, h.text(" ", lipgloss.NewStyle())))
}

func (h *headerBar) String() string {
	return strings.Join(h.parts, h.text("  ", lipgloss.NewStyle()))
}

// renderHeader renders the status bar: fetch status, data age and session.
func (m Model) renderHeader() string {
	styles := m.theme.Styles()
	bar := &headerBar{bg: lipgloss.Color(m.theme.Bar)}
	bar.push(bar.text("medaka", styles.Brand))

	if m.status == nil {
		if m.lastErr != nil {
			bar.push(bar.text("DAEMON "+classifyConnectionError(m.lastErr), styles.Alert))
			bar.push(bar.text("retrying...", styles.Caution))
		} else {
			bar.push(bar.text("connecting...", styles.Caution))
		}
		return styles.Bar.Width(m.width).Render(bar.String())
	}

	st := m.status
	bar.push(m.theme.Chip(st.Status))
	if st.Offline {
		bar.push(bar.text("OFFLINE", styles.Alert))
	}

	now := m.now()
	if st.FetchedAt != nil {
		bar.push(bar.text("fetched", styles.Label),
			bar.text(humanize.RelTime(*st.FetchedAt, now, "ago", "from now"), styles.Value))
	} else {
		bar.push(bar.text("no data yet", styles.Label))
	}

	switch {
	case !st.HasToken:
		bar.push(bar.text("no session", styles.Alert))
	case st.SessionValidTo != nil:
		remaining := st.SessionValidTo.Sub(now)
		style := styles.Value
		if remaining < 10*time.Minute {
			style = styles.Caution
		}
		bar.push(bar.text("session", styles.Label), bar.text(humanizeRemaining(remaining), style))
	}

	if !st.PollerRunning {
		bar.push(bar.text("stopped", styles.Caution))
	}
	if st.LastError != "" {
		limit := 60
		if m.width < 100 {
			limit = 30
		}
		bar.push(bar.text("ERROR", styles.Alert), bar.text(truncate(st.LastError, limit), styles.Alert))
	}
	return styles.Bar.Width(m.width).Render(bar.String())
}

func classifyConnectionError(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"):
		return "not running"
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return "timeout"
	default:
		return "unreachable"
	}
}

// renderReadings renders the latest reading, pump details and history.
func (m Model) renderReadings() string {
	styles := m.theme.Styles()
	snap := m.snapshot
	if snap == nil || snap.LastReading == nil {
		msg := "Waiting for the first reading..."
		if m.status != nil && !m.status.HasToken {
			msg = "No session. Run `medaka login` to store one."
		}
		return lipgloss.NewStyle().Height(m.bodyHeight()).Render(styles.Label.Render(msg))
	}

	var b strings.Builder
	b.WriteString(m.renderLatest(*snap))
	b.WriteString("\n")
	for _, line := range m.detailLines(*snap) {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	used := lipgloss.Height(b.String())
	rows := m.bodyHeight() - used - 1
	if rows < 1 {
		rows = 1
	}
	b.WriteString(m.renderTable(snap, rows))
	return lipgloss.NewStyle().Height(m.bodyHeight()).MaxHeight(m.bodyHeight()).Render(b.String())
}

func (m Model) renderLatest(snap carelink.Snapshot) string {
	styles := m.theme.Styles()
	last := *snap.LastReading
	value := m.rangeStyle(classify(last)).Bold(true).Render(glucoseText(last, m.prefs.Units))
	parts := []string{value}
	if arrow := snap.TrendArrow(); arrow != "" {
		parts = append(parts, styles.Trend.Render(arrow))
	}
	deltas := carelink.Deltas(snap.Readings)
	if n := len(deltas); n > 0 {
		if d := deltaText(deltas[n-1], m.prefs.Units, m.zeroMarker); d != "" {
			parts = append(parts, styles.Value.Render(d))
		}
	}
	if at, ok := snap.LastTimeText(); ok {
		parts = append(parts, styles.Label.Render("at "+at))
		if t, ok := snap.LastTime(); ok {
			parts = append(parts, styles.Faint.Render("("+humanize.RelTime(t, m.now(), "ago", "ahead")+")"))
		}
	}
	return styles.Card.Render(strings.Join(parts, " "))
}

func (m Model) detailLines(snap carelink.Snapshot) []string {
	styles := m.theme.Styles()
	label := func(name string) string {
		return styles.Label.Render(padRight(name, 12))
	}
	var lines []string

	basal := snap.Basal
	if basal.ActiveBasalPattern != "" || basal.BasalRate > 0 || basal.TempBasalRate != nil {
		text := fmt.Sprintf("%s %.3fU/h", titleCase(basal.ActiveBasalPattern), basal.BasalRate)
		if basal.TempBasalRate != nil {
			text += styles.Caution.Render(fmt.Sprintf("  temp %.3fU/h", *basal.TempBasalRate))
		}
		lines = append(lines, label("basal")+styles.Value.Render(strings.TrimSpace(text)))
	}
	if snap.ActiveInsulin != nil {
		lines = append(lines, label("active")+styles.Value.Render(fmt.Sprintf("%.2fU", snap.ActiveInsulin.Amount)))
	}
	if snap.TimeToNextCalibrationMinutes != nil {
		mins := *snap.TimeToNextCalibrationMinutes
		style := styles.Value
		if mins <= 60 {
			style = styles.Caution
		}
		lines = append(lines, label("calibration")+style.Render(humanizeRemaining(time.Duration(mins)*time.Minute)))
	}
	for _, banner := range snap.PumpBanners {
		text := titleCase(banner.Type)
		if banner.TimeRemaining != nil {
			text += fmt.Sprintf(" (%s left)", humanizeRemaining(time.Duration(*banner.TimeRemaining)*time.Minute))
		}
		lines = append(lines, label("pump")+styles.Caution.Render(text))
	}
	return lines
}

func (m Model) renderTable(snap *carelink.Snapshot, limit int) string {
	styles := m.theme.Styles()
	header := styles.Faint.Render(
		padRight("time", 7) + padLeft("glucose", 14) + padLeft("Δ", 8) + padLeft("ΔΔ", 8))
	lines := []string{header}
	for _, row := range readingRows(snap, m.prefs.Units, m.zeroMarker, limit) {
		lines = append(lines,
			styles.Label.Render(padRight(row.Time, 7))+
				m.rangeStyle(row.Range).Render(padLeft(row.Value, 14))+
				styles.Value.Render(padLeft(row.Delta, 8))+
				styles.Faint.Render(padLeft(row.DDelta, 8)))
	}
	return strings.Join(lines, "\n")
}

func (m Model) rangeStyle(r glucoseRange) lipgloss.Style {
	styles := m.theme.Styles()
	switch r {
	case rangeLow:
		return styles.Low
	case rangeHigh:
		return styles.High
	case rangeInRange:
		return styles.InRange
	default:
		return styles.Label
	}
}

func (m Model) renderLogLines() string {
	styles := m.theme.Styles()
	if len(m.logLines) == 0 {
		return styles.Label.Render("No log lines at level " + m.prefs.LogLevel)
	}
	out := make([]string, len(m.logLines))
	for i, line := range m.logLines {
		switch logtail.Level(line) {
		case "ERROR":
			out[i] = styles.Alert.Render(line)
		case "WARN", "WARNING":
			out[i] = styles.Caution.Render(line)
		case "DEBUG":
			out[i] = styles.Faint.Render(line)
		default:
			out[i] = styles.Value.Render(line)
		}
	}
	return strings.Join(out, "\n")
}

func (m Model) renderFooter() string {
	styles := m.theme.Styles()
	var left string
	switch {
	case m.notice != "" && m.noticeErr:
		left = styles.Alert.Render(truncate(m.notice, 60))
	case m.notice != "":
		left = styles.Notice.Render(truncate(m.notice, 60))
	case m.showLogs && m.logErr != nil:
		left = styles.Alert.Render(truncate("logs: "+m.logErr.Error(), 60))
	case m.showLogs:
		follow := "paused"
		if m.follow {
			follow = "following"
		}
		left = styles.Label.Render(fmt.Sprintf("logs ≥ %s, %s", m.prefs.LogLevel, follow))
	default:
		left = styles.Label.Render(m.prefs.Units + "  " + m.theme.Name)
	}
	return styles.Footer.Render(left + "  " + m.help.View(m.keys))
}

func (m Model) renderHelp() string {
	styles := m.theme.Styles()
	var b strings.Builder
	b.WriteString(styles.Value.Bold(true).Render("Keyboard Shortcuts"))
	b.WriteString("\n")
	b.WriteString(styles.Faint.Render(strings.Repeat("─", 30)))
	b.WriteString("\n\n")
	b.WriteString(m.help.FullHelpView(m.keys.FullHelp()))
	b.WriteString("\n\n")
	b.WriteString(styles.Label.Render("Press any key to close"))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
		styles.Card.Render(b.String()))
}
