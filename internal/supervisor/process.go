package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// ErrProcessNotRunning is returned when signalling a process that has exited.
var ErrProcessNotRunning = errors.New("process not running")

// Process wraps a started exec.Cmd with exit tracking.
// It is safe for concurrent use.
type Process struct {
	cmd     *exec.Cmd
	started time.Time

	// done is closed when the process exits.
	done chan struct{}

	launched atomic.Bool
	exitCode atomic.Int32

	mu      sync.RWMutex
	exitErr error
}

func newProcess(cmd *exec.Cmd) *Process {
	p := &Process{cmd: cmd, done: make(chan struct{})}
	p.exitCode.Store(-1)
	return p
}

// start launches the process and begins waiting for it.
func (p *Process) start() error {
	if err := p.cmd.Start(); err != nil {
		return err
	}
	p.started = time.Now()
	p.launched.Store(true)
	go p.waitLoop()
	return nil
}

func (p *Process) waitLoop() {
	err := p.cmd.Wait()

	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// -1 when terminated by a signal.
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}

	p.mu.Lock()
	p.exitErr = err
	p.mu.Unlock()

	p.exitCode.Store(int32(code))
	close(p.done)
}

// PID returns the OS process id, or -1 if the process never started.
func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

// Done is closed when the process exits.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Running reports whether the process has started and not yet exited.
func (p *Process) Running() bool {
	if !p.launched.Load() {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// ExitCode returns the exit code, or -1 while running (or when signalled).
func (p *Process) ExitCode() int {
	return int(p.exitCode.Load())
}

// ExitErr returns the error from Wait, if any.
func (p *Process) ExitErr() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitErr
}

// Started returns the start time.
func (p *Process) Started() time.Time {
	return p.started
}

// Signal sends sig to the process.
func (p *Process) Signal(sig os.Signal) error {
	if !p.Running() || p.cmd.Process == nil {
		return ErrProcessNotRunning
	}
	return p.cmd.Process.Signal(sig)
}

// Kill sends SIGKILL.
func (p *Process) Kill() error {
	if !p.Running() || p.cmd.Process == nil {
		return ErrProcessNotRunning
	}
	return p.cmd.Process.Kill()
}

// terminate sends SIGTERM, waits up to grace for the process to exit, then
// sends SIGKILL and waits for it to die.
func (p *Process) terminate(grace time.Duration) error {
	if !p.Running() {
		return nil
	}

	if err := p.Signal(syscall.SIGTERM); !gone(err) {
		// Platforms without SIGTERM go straight to kill.
		if kerr := p.Kill(); !gone(kerr) {
			return fmt.Errorf("kill process: %w", kerr)
		}
		<-p.done
		return nil
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-p.done:
		return nil
	case <-timer.C:
	}

	if err := p.Kill(); !gone(err) {
		return fmt.Errorf("kill process: %w", err)
	}
	<-p.done
	return nil
}

// gone reports whether a signalling error only means the process already exited.
func gone(err error) bool {
	return err == nil || errors.Is(err, ErrProcessNotRunning) || errors.Is(err, os.ErrProcessDone)
}
