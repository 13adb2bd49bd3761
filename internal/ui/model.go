package ui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/medaka/internal/carelink"
	"github.com/five82/medaka/internal/prefs"
	"github.com/five82/medaka/internal/statusapi"
)

// Options configures the watch view.
type Options struct {
	Context    context.Context
	Client     statusapi.DaemonAPI
	PollTick   time.Duration
	Prefs      prefs.Prefs
	PrefsPath  string
	ZeroMarker string
	// Now is used for ages and countdowns; tests override it.
	Now func() time.Time
}

const logFetchLimit = 500

// Model is the root Bubble Tea model of the watch view.
type Model struct {
	ctx        context.Context
	client     statusapi.DaemonAPI
	pollTick   time.Duration
	prefs      prefs.Prefs
	prefsPath  string
	zeroMarker string
	now        func() time.Time

	theme Theme
	keys  keyMap
	help  help.Model

	width    int
	height   int
	ready    bool
	showLogs bool
	showHelp bool

	status      *statusapi.StatusResponse
	snapshot    *carelink.Snapshot
	lastErr     error
	lastUpdated time.Time

	logViewport viewport.Model
	logLines    []string
	logErr      error
	follow      bool

	notice    string
	noticeErr bool
}

// New creates the watch model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	pollTick := opts.PollTick
	if pollTick <= 0 {
		pollTick = time.Second
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	p := opts.Prefs
	if p == (prefs.Prefs{}) {
		p = prefs.Default()
	}
	return Model{
		ctx:        ctx,
		client:     opts.Client,
		pollTick:   pollTick,
		prefs:      p,
		prefsPath:  opts.PrefsPath,
		zeroMarker: opts.ZeroMarker,
		now:        now,
		theme:      GetTheme(p.Theme),
		keys:       defaultKeyMap(),
		help:       help.New(),
		follow:     true,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd(m.pollTick)}
	if m.client != nil {
		cmds = append(cmds, refreshCmd(m.ctx, m.client))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		if !m.ready {
			m.logViewport = viewport.New(msg.Width, m.bodyHeight())
		}
		m.ready = true
		m.logViewport.Width = msg.Width
		m.logViewport.Height = m.bodyHeight()
		m.updateLogViewport()
		return m, nil

	case tickMsg:
		return m.handleTick()

	case refreshMsg:
		m.lastErr = msg.err
		if msg.status != nil {
			m.status = msg.status
		}
		if msg.err == nil {
			m.snapshot = msg.snapshot
			m.lastUpdated = m.now()
		}
		return m, nil

	case logsMsg:
		m.logErr = msg.err
		if msg.err == nil {
			m.logLines = msg.lines
			m.updateLogViewport()
		}
		return m, nil

	case noticeMsg:
		m.noticeErr = msg.err != nil
		m.notice = msg.text
		if msg.err != nil {
			m.notice = msg.err.Error()
		}
		return m, nil
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	return m.renderMain()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.prefs.Theme = m.theme.Name
		return m, m.savePrefs()

	case key.Matches(msg, m.keys.ToggleUnits):
		m.prefs = m.prefs.ToggleUnits()
		return m, m.savePrefs()

	case key.Matches(msg, m.keys.Fetch):
		if m.client == nil {
			return m, nil
		}
		m.notice = "requesting fetch..."
		m.noticeErr = false
		return m, fetchCmd(m.ctx, m.client)

	case key.Matches(msg, m.keys.Reauth):
		if m.client == nil {
			return m, nil
		}
		m.notice = "renewing session..."
		m.noticeErr = false
		return m, reauthCmd(m.ctx, m.client)

	case key.Matches(msg, m.keys.ToggleLogs):
		m.showLogs = !m.showLogs
		if m.showLogs {
			m.follow = true
			return m, m.refreshLogs()
		}
		return m, nil
	}

	if m.showLogs {
		return m.handleLogsKey(msg)
	}
	return m, nil
}

func (m Model) handleLogsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.CycleLevel):
		m.prefs.LogLevel = nextLevel(m.prefs.LogLevel)
		return m, tea.Batch(m.refreshLogs(), m.savePrefs())
	case key.Matches(msg, m.keys.Up):
		m.follow = false
		m.logViewport.ScrollUp(1)
	case key.Matches(msg, m.keys.Down):
		m.logViewport.ScrollDown(1)
		m.follow = m.logViewport.AtBottom()
	case key.Matches(msg, m.keys.PageUp):
		m.follow = false
		m.logViewport.PageUp()
	case key.Matches(msg, m.keys.PageDown):
		m.logViewport.PageDown()
		m.follow = m.logViewport.AtBottom()
	case key.Matches(msg, m.keys.Bottom):
		m.follow = true
		m.logViewport.GotoBottom()
	}
	return m, nil
}

func (m Model) handleTick() (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{tickCmd(m.pollTick)}
	if m.client != nil {
		cmds = append(cmds, refreshCmd(m.ctx, m.client))
		if m.showLogs && m.follow {
			cmds = append(cmds, m.refreshLogs())
		}
	}
	return m, tea.Batch(cmds...)
}

func (m Model) refreshLogs() tea.Cmd {
	if m.client == nil {
		return nil
	}
	return logsCmd(m.ctx, m.client, logFetchLimit, m.prefs.LogLevel)
}

// savePrefs persists preferences off the update loop. Failures surface as a
// footer notice.
func (m Model) savePrefs() tea.Cmd {
	if m.prefsPath == "" {
		return nil
	}
	path, p := m.prefsPath, m.prefs
	return func() tea.Msg {
		if err := prefs.Save(path, p); err != nil {
			return noticeMsg{err: err}
		}
		return nil
	}
}

func (m *Model) updateLogViewport() {
	if !m.ready {
		return
	}
	m.logViewport.SetContent(m.renderLogLines())
	if m.follow {
		m.logViewport.GotoBottom()
	}
}

// bodyHeight is the space left under the header and above the footer.
func (m Model) bodyHeight() int {
	h := m.height - 3
	if h < 1 {
		return 1
	}
	return h
}

var logLevels = []string{"debug", "info", "warn", "error"}

func nextLevel(current string) string {
	for i, lvl := range logLevels {
		if lvl == current {
			return logLevels[(i+1)%len(logLevels)]
		}
	}
	return logLevels[0]
}

// Run starts the Bubble Tea program.
func Run(opts Options) error {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	p := tea.NewProgram(New(opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
