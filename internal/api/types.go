package api

import (
	"github.com/mattjoyce/mcpserve/internal/config"
	"github.com/mattjoyce/mcpserve/internal/ledger"
	"github.com/mattjoyce/mcpserve/internal/supervisor"
)

// StartSessionRequest is the JSON body for POST /sessions. Every field is optional.
type StartSessionRequest struct {
	SessionID string               `json:"session_id,omitempty"`
	Mode      string               `json:"mode,omitempty"`
	Config    config.SessionConfig `json:"config,omitempty"`
}

// SessionListResponse is returned by GET /sessions.
type SessionListResponse struct {
	Sessions []supervisor.Info `json:"sessions"`
}

// SessionResponse is returned by GET /sessions/{id}. Live is set while the
// worker runs; Record is the newest ledger attempt, when a ledger is configured.
type SessionResponse struct {
	Live   *supervisor.Info `json:"live,omitempty"`
	Record *ledger.Session  `json:"record,omitempty"`
}

// SessionHistoryResponse is returned by GET /sessions/history.
type SessionHistoryResponse struct {
	Sessions []ledger.Session `json:"sessions"`
}

// CloseSessionResponse is returned by DELETE /sessions/{id}.
type CloseSessionResponse struct {
	SessionID string `json:"session_id"`
	ExitCode  int    `json:"exit_code"`
}

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StartErrorResponse is returned when a worker could not be brought up.
type StartErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	SessionID string `json:"session_id"`
	ExitCode  *int   `json:"exit_code,omitempty"`
}

// Start failure kinds.
const (
	KindSpawnError = "spawn_error"
	KindExitError  = "exit_error"
	KindCancelled  = "cancelled"
)

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status         string `json:"status"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	Mode           string `json:"mode"`
	SessionsActive int    `json:"sessions_active"`
	ToolsLoaded    int    `json:"tools_loaded"`
}
