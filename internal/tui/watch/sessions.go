package watch

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattjoyce/mcpserve/internal/events"
	"github.com/mattjoyce/mcpserve/internal/supervisor"
)

// Session states shown in the table. Live states come from the supervisor;
// closed is only known from events.
const (
	stateStarting = "starting"
	stateReady    = "ready"
	stateFailed   = "failed"
	stateExited   = "exited"
	stateClosed   = "closed"
)

// SessionState tracks one worker session seen in /sessions or the event stream.
type SessionState struct {
	ID        string
	Mode      string
	State     string
	PID       int
	Kind      string
	ExitCode  *int
	StartedAt time.Time
	EndedAt   time.Time
}

func (s *SessionState) live() bool {
	return s.State == stateStarting || s.State == stateReady
}

func getOrCreateSession(sessions map[string]*SessionState, id string) *SessionState {
	s, ok := sessions[id]
	if !ok {
		s = &SessionState{ID: id, PID: -1}
		sessions[id] = s
	}
	return s
}

// updateSessionState applies a supervisor lifecycle event.
func updateSessionState(sessions map[string]*SessionState, e events.Event) {
	switch e.Type {
	case supervisor.EventStarting, supervisor.EventReady, supervisor.EventFailed,
		supervisor.EventExited, supervisor.EventClosed:
	default:
		return
	}

	data := decodeData(e)
	id, _ := data["session_id"].(string)
	if id == "" {
		return
	}
	s := getOrCreateSession(sessions, id)
	if mode, ok := data["mode"].(string); ok {
		s.Mode = mode
	}
	if pid, ok := data["pid"].(float64); ok {
		s.PID = int(pid)
	}

	switch e.Type {
	case supervisor.EventStarting:
		// A reused id starts over.
		*s = SessionState{ID: id, Mode: s.Mode, PID: -1, State: stateStarting, StartedAt: e.At}
	case supervisor.EventReady:
		s.State = stateReady
	case supervisor.EventFailed:
		s.State = stateFailed
		s.Kind, _ = data["kind"].(string)
		s.EndedAt = e.At
		if code, ok := data["exit_code"].(float64); ok {
			c := int(code)
			s.ExitCode = &c
		}
	case supervisor.EventExited:
		if s.State != stateClosed {
			s.State = stateExited
		}
		s.EndedAt = e.At
		if code, ok := data["exit_code"].(float64); ok {
			c := int(code)
			s.ExitCode = &c
		}
	case supervisor.EventClosed:
		s.State = stateClosed
		if s.EndedAt.IsZero() {
			s.EndedAt = e.At
		}
	}
}

// applySnapshot merges a /sessions listing. Sessions the event stream still
// thinks are live but the server no longer lists are marked exited.
func applySnapshot(sessions map[string]*SessionState, infos []supervisor.Info, now time.Time) {
	listed := make(map[string]bool, len(infos))
	for _, info := range infos {
		listed[info.SessionID] = true
		s := getOrCreateSession(sessions, info.SessionID)
		s.Mode = string(info.Mode)
		s.State = info.State
		s.PID = info.PID
		s.StartedAt = info.StartedAt
		s.ExitCode = info.ExitCode
	}
	for id, s := range sessions {
		if !listed[id] && s.live() {
			s.State = stateExited
			s.EndedAt = now
		}
	}
}

// pruneSessions keeps every live session and the most recent finished ones.
func pruneSessions(sessions map[string]*SessionState, keepFinished int) {
	var finished []*SessionState
	for _, s := range sessions {
		if !s.live() {
			finished = append(finished, s)
		}
	}
	if len(finished) <= keepFinished {
		return
	}
	sort.Slice(finished, func(i, j int) bool { return finished[i].EndedAt.After(finished[j].EndedAt) })
	for _, s := range finished[keepFinished:] {
		delete(sessions, s.ID)
	}
}

// sortedSessions returns live sessions first, then newest first.
func sortedSessions(sessions map[string]*SessionState) []*SessionState {
	out := make([]*SessionState, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].live() != out[j].live() {
			return out[i].live()
		}
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func newSessionTable(theme Theme) table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "Session", Width: 12},
			{Title: "Mode", Width: 5},
			{Title: "State", Width: 9},
			{Title: "PID", Width: 7},
			{Title: "Exit", Width: 5},
			{Title: "Runtime", Width: 9},
		}),
		table.WithFocused(true),
		table.WithHeight(8),
	)
	t.SetStyles(theme.Table)
	return t
}

func sessionRows(sessions map[string]*SessionState, now time.Time) []table.Row {
	var rows []table.Row
	for _, s := range sortedSessions(sessions) {
		pid := "-"
		if s.PID > 0 {
			pid = strconv.Itoa(s.PID)
		}
		exit := "-"
		if s.ExitCode != nil {
			exit = strconv.Itoa(*s.ExitCode)
		}
		runtime := "-"
		if !s.StartedAt.IsZero() {
			end := now
			if !s.EndedAt.IsZero() {
				end = s.EndedAt
			}
			runtime = formatDuration(end.Sub(s.StartedAt))
		}
		rows = append(rows, table.Row{stateGlyph(s.State), shortID(s.ID), s.Mode, s.State, pid, exit, runtime})
	}
	return rows
}

// stateGlyph is plain text: the table computes widths from raw strings.
func stateGlyph(state string) string {
	switch state {
	case stateReady:
		return "●"
	case stateStarting:
		return "◌"
	case stateFailed:
		return "✗"
	default:
		return "○"
	}
}

func renderSessions(t table.Model, count int, theme Theme, width int) string {
	innerWidth := width - 4
	title := theme.Title.Render(fmt.Sprintf("SESSIONS (%d)", count))

	if count == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			title,
			theme.Dim.Render("  No sessions yet..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	return theme.Border.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left, title, t.View()))
}
