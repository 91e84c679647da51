package watch

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/mattjoyce/mcpserve/internal/dispatch"
	"github.com/mattjoyce/mcpserve/internal/events"
	"github.com/mattjoyce/mcpserve/internal/supervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ev(typ string, at time.Time, data map[string]any) events.Event {
	raw, _ := json.Marshal(data)
	return events.Event{Type: typ, At: at, Data: raw}
}

func TestUpdateSessionStateLifecycle(t *testing.T) {
	sessions := map[string]*SessionState{}
	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	updateSessionState(sessions, ev(supervisor.EventStarting, t0, map[string]any{"session_id": "s1", "mode": "http"}))
	require.Contains(t, sessions, "s1")
	assert.Equal(t, stateStarting, sessions["s1"].State)
	assert.Equal(t, t0, sessions["s1"].StartedAt)

	updateSessionState(sessions, ev(supervisor.EventReady, t0.Add(time.Second), map[string]any{"session_id": "s1", "pid": 42}))
	assert.Equal(t, stateReady, sessions["s1"].State)
	assert.Equal(t, 42, sessions["s1"].PID)

	updateSessionState(sessions, ev(supervisor.EventClosed, t0.Add(2*time.Second), map[string]any{"session_id": "s1"}))
	updateSessionState(sessions, ev(supervisor.EventExited, t0.Add(3*time.Second), map[string]any{"session_id": "s1", "exit_code": -1}))
	s := sessions["s1"]
	assert.Equal(t, stateClosed, s.State, "exit after close keeps the closed state")
	require.NotNil(t, s.ExitCode)
	assert.Equal(t, -1, *s.ExitCode)
	assert.Equal(t, t0.Add(3*time.Second), s.EndedAt)

	// Reusing the id starts a fresh row.
	updateSessionState(sessions, ev(supervisor.EventStarting, t0.Add(time.Minute), map[string]any{"session_id": "s1"}))
	assert.Equal(t, stateStarting, sessions["s1"].State)
	assert.Nil(t, sessions["s1"].ExitCode)
	assert.True(t, sessions["s1"].EndedAt.IsZero())
}

func TestUpdateSessionStateFailure(t *testing.T) {
	sessions := map[string]*SessionState{}
	now := time.Now()

	updateSessionState(sessions, ev(supervisor.EventFailed, now, map[string]any{
		"session_id": "bad", "kind": "exit_error", "exit_code": 3,
	}))
	s := sessions["bad"]
	require.NotNil(t, s)
	assert.Equal(t, stateFailed, s.State)
	assert.Equal(t, "exit_error", s.Kind)
	require.NotNil(t, s.ExitCode)
	assert.Equal(t, 3, *s.ExitCode)

	// Non-session events are ignored.
	updateSessionState(sessions, ev(dispatch.EventToolCalled, now, map[string]any{"session_id": "x"}))
	assert.NotContains(t, sessions, "x")
}

func TestApplySnapshotMarksVanishedSessionsExited(t *testing.T) {
	now := time.Now()
	sessions := map[string]*SessionState{
		"gone": {ID: "gone", State: stateReady},
		"done": {ID: "done", State: stateFailed},
	}

	applySnapshot(sessions, []supervisor.Info{
		{SessionID: "live", Mode: supervisor.ModeStream, State: "ready", PID: 7, StartedAt: now},
	}, now)

	assert.Equal(t, stateExited, sessions["gone"].State)
	assert.Equal(t, now, sessions["gone"].EndedAt)
	assert.Equal(t, stateFailed, sessions["done"].State)
	assert.Equal(t, "stdio", sessions["live"].Mode)
	assert.Equal(t, 7, sessions["live"].PID)
}

func TestPruneSessionsKeepsLiveAndNewest(t *testing.T) {
	base := time.Now()
	sessions := map[string]*SessionState{
		"live": {ID: "live", State: stateReady},
		"old":  {ID: "old", State: stateExited, EndedAt: base},
		"new":  {ID: "new", State: stateExited, EndedAt: base.Add(time.Minute)},
	}

	pruneSessions(sessions, 1)

	assert.Contains(t, sessions, "live")
	assert.Contains(t, sessions, "new")
	assert.NotContains(t, sessions, "old")
}

func TestSessionRows(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	code := 0
	sessions := map[string]*SessionState{
		"finished-session": {ID: "finished-session", Mode: "stdio", State: stateExited, PID: 10,
			ExitCode: &code, StartedAt: start.Add(time.Minute), EndedAt: start.Add(2 * time.Minute)},
		"live": {ID: "live", Mode: "http", State: stateReady, PID: -1, StartedAt: start},
	}

	rows := sessionRows(sessions, start.Add(90*time.Second))
	require.Len(t, rows, 2)

	assert.Equal(t, []string{"●", "live", "http", "ready", "-", "-", "1m 30s"}, []string(rows[0]))
	assert.Equal(t, []string{"○", "finished", "stdio", "exited", "10", "0", "1m 0s"}, []string(rows[1]))
}

func TestUpdateToolStats(t *testing.T) {
	tools := map[string]*ToolStats{}
	now := time.Now()

	updateToolStats(tools, ev(dispatch.EventToolCalled, now, map[string]any{"tool": "add", "is_error": false, "duration_ms": 3}))
	updateToolStats(tools, ev(dispatch.EventToolCalled, now, map[string]any{"tool": "add", "is_error": true, "duration_ms": 5}))
	updateToolStats(tools, ev(supervisor.EventReady, now, map[string]any{"tool": "ignored"}))

	require.Len(t, tools, 1)
	assert.Equal(t, 2, tools["add"].Calls)
	assert.Equal(t, 1, tools["add"].Errors)
	assert.Equal(t, 5*time.Millisecond, tools["add"].LastDuration)
}

func TestExtractEventDesc(t *testing.T) {
	now := time.Now()
	assert.Equal(t, "[12345678] exit_error exit=3",
		extractEventDesc(ev(supervisor.EventFailed, now, map[string]any{
			"session_id": "123456789abc", "kind": "exit_error", "exit_code": 3,
		})))
	assert.Equal(t, "add 12ms",
		extractEventDesc(ev(dispatch.EventToolCalled, now, map[string]any{"tool": "add", "duration_ms": 12})))
	assert.Equal(t, `{"other":true}`,
		extractEventDesc(ev("custom", now, map[string]any{"other": true})))
}
