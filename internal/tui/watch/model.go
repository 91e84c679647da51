package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattjoyce/mcpserve/internal/events"
)

const (
	maxEventLog      = 50
	keepFinished     = 20
	healthInterval   = 5 * time.Second
	sessionsInterval = 2 * time.Second
	reconnectDelay   = 3 * time.Second
)

// Model is the main BubbleTea model for the watch TUI.
type Model struct {
	apiURL string

	width  int
	height int

	health   HealthState
	sessions map[string]*SessionState
	tools    map[string]*ToolStats
	eventLog []events.Event
	lastID   int64

	ticker  Ticker
	spinner Spinner

	theme        Theme
	sessionTable table.Model

	hubEvents chan events.Event

	lastError string
}

// New creates a new watch TUI model for the API at apiURL.
func New(apiURL string) *Model {
	theme := NewDefaultTheme()
	return &Model{
		apiURL:       apiURL,
		sessions:     make(map[string]*SessionState),
		tools:        make(map[string]*ToolStats),
		eventLog:     make([]events.Event, 0),
		hubEvents:    make(chan events.Event, 100),
		ticker:       NewTicker(),
		spinner:      NewSpinner(),
		theme:        theme,
		sessionTable: newSessionTable(theme),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.apiURL, 0, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchHealth(m.apiURL) },
		func() tea.Msg { return fetchSessions(m.apiURL) },
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.sessionTable, cmd = m.sessionTable.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.sessionTable.SetWidth(msg.Width - 8)

	case tickMsg:
		m.ticker.Tick()
		m.spinner.Decay()
		m.refreshTable()
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case eventMsg:
		e := events.Event(msg)
		m.applyEvent(e)
		m.health.Connected = true
		m.lastError = ""
		return m, receiveNextEvent(m.hubEvents)

	case healthMsg:
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.Mode = msg.Mode
		m.health.SessionsActive = msg.SessionsActive
		m.health.ToolsLoaded = msg.ToolsLoaded
		m.health.Connected = true
		m.health.LastCheck = time.Now()
		m.lastError = ""

		return m, tea.Tick(healthInterval, func(t time.Time) tea.Msg {
			return fetchHealth(m.apiURL)
		})

	case sessionsMsg:
		applySnapshot(m.sessions, msg.Sessions, time.Now())
		pruneSessions(m.sessions, keepFinished)
		m.refreshTable()
		return m, tea.Tick(sessionsInterval, func(t time.Time) tea.Msg {
			return fetchSessions(m.apiURL)
		})

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "SSE disconnected, reconnecting..."
		// The pending receiveNextEvent keeps reading the channel the new
		// subscription will feed.
		return m, tea.Tick(reconnectDelay, func(t time.Time) tea.Msg {
			return reconnectMsg{}
		})

	case reconnectMsg:
		return m, subscribeToEvents(m.apiURL, m.lastID, m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(healthInterval, func(t time.Time) tea.Msg {
			return fetchHealth(m.apiURL)
		})
	}

	return m, nil
}

// applyEvent folds one hub event into the model state.
func (m *Model) applyEvent(e events.Event) {
	if e.ID > m.lastID {
		m.lastID = e.ID
	}
	m.eventLog = append([]events.Event{e}, m.eventLog...)
	if len(m.eventLog) > maxEventLog {
		m.eventLog = m.eventLog[:maxEventLog]
	}
	m.spinner.OnEvent()

	updateSessionState(m.sessions, e)
	updateToolStats(m.tools, e)
	pruneSessions(m.sessions, keepFinished)
	m.refreshTable()
}

func (m *Model) refreshTable() {
	m.sessionTable.SetRows(sessionRows(m.sessions, time.Now()))
}

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing mcpserve watch..."
	}

	header := renderHeader(m.health, m.ticker, m.spinner, m.theme, m.width)
	sessions := renderSessions(m.sessionTable, len(m.sessions), m.theme, m.width)
	tools := renderTools(m.tools, m.theme, m.width)
	eventStream := renderEventStream(m.eventLog, m.theme, m.width)

	var errBar string
	if m.lastError != "" {
		errBar = m.theme.StatusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError))
	}

	help := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Quit • [↑/↓] Navigate Sessions")

	parts := []string{header, sessions, tools, eventStream}
	if errBar != "" {
		parts = append(parts, errBar)
	}
	parts = append(parts, help)

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
