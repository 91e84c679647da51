package supervisor

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// State is the lifecycle state of a session.
type State int32

const (
	StateStarting State = iota
	StateReady
	StateFailed
	StateExited
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// Handle is the live worker of one session. The supervisor owns it and
// observes its exit; callers borrow the streams and the process reference.
// Stdin, Stdout and Stderr are nil in network mode.
type Handle struct {
	ID     string
	Mode   Mode
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Stderr io.ReadCloser

	proc        *Process
	invocation  Invocation
	fingerprint string
	stopTimeout time.Duration
	state       atomic.Int32
	// settled is closed once the start call has returned.
	settled chan struct{}

	closeOnce sync.Once
	closeErr  error
	onClose   func(*Handle)
}

// Info is a point-in-time description of a session.
type Info struct {
	SessionID      string    `json:"session_id"`
	Mode           Mode      `json:"mode"`
	State          string    `json:"state"`
	PID            int       `json:"pid"`
	Command        string    `json:"command"`
	EnvFingerprint string    `json:"env_fingerprint"`
	StartedAt      time.Time `json:"started_at"`
	ExitCode       *int      `json:"exit_code,omitempty"`
}

// Process returns the worker process reference.
func (h *Handle) Process() *Process {
	return h.proc
}

// PID returns the worker's process id.
func (h *Handle) PID() int {
	return h.proc.PID()
}

// State returns the session state.
func (h *Handle) State() State {
	return State(h.state.Load())
}

func (h *Handle) setState(s State) {
	h.state.Store(int32(s))
}

// Exited is closed when the worker process exits, for whatever reason.
func (h *Handle) Exited() <-chan struct{} {
	return h.proc.Done()
}

// ExitCode returns the worker's exit code, or -1 while it is running.
func (h *Handle) ExitCode() int {
	return h.proc.ExitCode()
}

// Wait blocks until the worker exits or ctx is done.
func (h *Handle) Wait(ctx context.Context) (int, error) {
	select {
	case <-h.proc.Done():
		return h.proc.ExitCode(), nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// Close tears the session down: stdin is closed, the worker gets SIGTERM and,
// after the stop timeout, SIGKILL. Calling Close more than once is safe.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		if h.Stdin != nil {
			_ = h.Stdin.Close()
		}
		h.closeErr = h.proc.terminate(h.stopTimeout)
		if h.Stdout != nil {
			_ = h.Stdout.Close()
		}
		if h.Stderr != nil {
			_ = h.Stderr.Close()
		}
		if h.onClose != nil {
			h.onClose(h)
		}
	})
	return h.closeErr
}

// Info returns a snapshot of the session.
func (h *Handle) Info() Info {
	info := Info{
		SessionID:      h.ID,
		Mode:           h.Mode,
		State:          h.State().String(),
		Command:        h.invocation.Path,
		EnvFingerprint: h.fingerprint,
		PID:            -1,
	}
	if h.proc != nil {
		info.PID = h.proc.PID()
		info.StartedAt = h.proc.Started()
		select {
		case <-h.proc.Done():
			code := h.proc.ExitCode()
			info.ExitCode = &code
		default:
		}
	}
	return info
}
