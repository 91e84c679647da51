package supervisor

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingSessionID is returned when StartSession is called without an id.
	ErrMissingSessionID = errors.New("session id is required")

	// ErrSessionExists is returned when the id belongs to a live session.
	ErrSessionExists = errors.New("session already exists")

	// ErrSessionNotFound is returned by lookups for unknown or finished sessions.
	ErrSessionNotFound = errors.New("session not found")

	// ErrShuttingDown is returned once Shutdown has been called.
	ErrShuttingDown = errors.New("supervisor is shutting down")
)

// SpawnError reports that the OS failed to create the worker process
// (binary missing, permission denied, ...). It is never retried.
type SpawnError struct {
	SessionID string
	Cause     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("session %q: spawn worker: %v", e.SessionID, e.Cause)
}

func (e *SpawnError) Unwrap() error {
	return e.Cause
}

// ExitError reports that the worker terminated with a non-zero status before
// it was declared ready. Code is the worker's exit code verbatim, or -1 when
// it was killed by a signal.
type ExitError struct {
	SessionID string
	Code      int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("session %q: worker exited with code %d before becoming ready", e.SessionID, e.Code)
}
