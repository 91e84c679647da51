package ledger

import (
	"errors"
	"time"
)

// Status is the recorded outcome of one session attempt.
type Status string

const (
	StatusStarting  Status = "starting"
	StatusReady     Status = "ready"
	StatusFailed    Status = "failed"
	StatusExited    Status = "exited"
	StatusAbandoned Status = "abandoned"
)

// ErrNotFound is returned when no attempt exists for a session id.
var ErrNotFound = errors.New("session not found in ledger")

// Session is one row of the ledger: a single attempt to run a session's worker.
type Session struct {
	ID             string     `json:"id"`
	SessionID      string     `json:"session_id"`
	Mode           string     `json:"mode"`
	PID            int        `json:"pid"`
	Command        string     `json:"command"`
	EnvFingerprint string     `json:"env_fingerprint"`
	Status         Status     `json:"status"`
	ExitCode       *int       `json:"exit_code,omitempty"`
	Error          *string    `json:"error,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	ReadyAt        *time.Time `json:"ready_at,omitempty"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
}
