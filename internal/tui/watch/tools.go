package watch

import (
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattjoyce/mcpserve/internal/dispatch"
	"github.com/mattjoyce/mcpserve/internal/events"
)

// ToolStats aggregates tool.called events for one tool.
type ToolStats struct {
	Name         string
	Calls        int
	Errors       int
	LastDuration time.Duration
	LastCall     time.Time
}

func updateToolStats(tools map[string]*ToolStats, e events.Event) {
	if e.Type != dispatch.EventToolCalled {
		return
	}
	data := decodeData(e)
	name, _ := data["tool"].(string)
	if name == "" {
		return
	}

	t, ok := tools[name]
	if !ok {
		t = &ToolStats{Name: name}
		tools[name] = t
	}
	t.Calls++
	if isError, _ := data["is_error"].(bool); isError {
		t.Errors++
	}
	if ms, ok := data["duration_ms"].(float64); ok {
		t.LastDuration = time.Duration(ms) * time.Millisecond
	}
	t.LastCall = e.At
}

func renderTools(tools map[string]*ToolStats, theme Theme, width int) string {
	innerWidth := width - 4

	if len(tools) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("TOOLS"),
			theme.Dim.Render("  No tool calls yet..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := []string{theme.Title.Render("TOOLS")}
	for _, name := range names {
		lines = append(lines, renderToolRow(tools[name], theme))
	}
	return theme.Border.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func renderToolRow(t *ToolStats, theme Theme) string {
	errs := theme.Dim.Render("0 errors")
	if t.Errors > 0 {
		errs = theme.StatusFailed.Render(fmt.Sprintf("%d errors", t.Errors))
	}
	last := "-"
	if !t.LastCall.IsZero() {
		last = formatAgo(time.Since(t.LastCall))
	}
	return fmt.Sprintf(" %-16s %5d calls  %s  last: %s %s",
		t.Name, t.Calls, errs, last, theme.Dim.Render(t.LastDuration.String()))
}
