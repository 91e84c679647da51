package supervisor

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mocks/mock_recorder.go -package=mocks github.com/mattjoyce/mcpserve/internal/supervisor Recorder

// SessionInfo describes a session attempt at spawn time.
type SessionInfo struct {
	SessionID      string
	Mode           Mode
	PID            int
	Command        string
	EnvFingerprint string
	StartedAt      time.Time
}

// Recorder persists session lifecycle transitions. Calls are best-effort:
// errors are logged and never change a session's outcome.
type Recorder interface {
	RecordStart(ctx context.Context, info SessionInfo) error
	RecordReady(ctx context.Context, sessionID string, at time.Time) error
	RecordFailure(ctx context.Context, sessionID string, cause error, at time.Time) error
	RecordExit(ctx context.Context, sessionID string, code int, at time.Time) error
}

// Publisher receives lifecycle events (see the Event* constants).
type Publisher interface {
	Publish(eventType string, data any)
}

// Event types published by the supervisor.
const (
	EventStarting = "session.starting"
	EventReady    = "session.ready"
	EventFailed   = "session.failed"
	EventExited   = "session.exited"
	EventClosed   = "session.closed"
)

type nopRecorder struct{}

func (nopRecorder) RecordStart(context.Context, SessionInfo) error { return nil }
func (nopRecorder) RecordReady(context.Context, string, time.Time) error { return nil }
func (nopRecorder) RecordFailure(context.Context, string, error, time.Time) error { return nil }
func (nopRecorder) RecordExit(context.Context, string, int, time.Time) error { return nil }

type nopPublisher struct{}

func (nopPublisher) Publish(string, any) {}
