package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattjoyce/mcpserve/internal/dispatch"
	"github.com/mattjoyce/mcpserve/internal/events"
	"github.com/mattjoyce/mcpserve/internal/supervisor"
)

const eventRows = 10

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= eventRows {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	eventsText := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENT STREAM"),
		eventsText,
	)

	return theme.Border.Width(innerWidth).Render(content)
}

func eventStyle(e events.Event, theme Theme) lipgloss.Style {
	switch e.Type {
	case supervisor.EventReady:
		return theme.StatusOK
	case supervisor.EventFailed:
		return theme.StatusFailed
	case supervisor.EventStarting:
		return theme.StatusRunning
	case supervisor.EventExited, supervisor.EventClosed:
		return theme.StatusGone
	case dispatch.EventToolCalled:
		if isError, _ := decodeData(e)["is_error"].(bool); isError {
			return theme.StatusFailed
		}
		return theme.Highlight
	default:
		return theme.Dim
	}
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))
	typeName := eventStyle(e, theme).Render(fmt.Sprintf("%-18s", e.Type))
	return fmt.Sprintf("%s %s %s", ts, typeName, extractEventDesc(e))
}

func decodeData(e events.Event) map[string]any {
	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)
	return data
}

func extractEventDesc(e events.Event) string {
	data := decodeData(e)

	var parts []string
	if id, ok := data["session_id"].(string); ok {
		parts = append(parts, fmt.Sprintf("[%s]", shortID(id)))
	}
	if tool, ok := data["tool"].(string); ok {
		parts = append(parts, tool)
	}
	if kind, ok := data["kind"].(string); ok {
		parts = append(parts, kind)
	}
	// JSON numbers decode as float64.
	if code, ok := data["exit_code"].(float64); ok {
		parts = append(parts, fmt.Sprintf("exit=%d", int(code)))
	}
	if ms, ok := data["duration_ms"].(float64); ok {
		parts = append(parts, fmt.Sprintf("%dms", int(ms)))
	}

	if len(parts) == 0 {
		raw := string(e.Data)
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}
	return strings.Join(parts, " ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
