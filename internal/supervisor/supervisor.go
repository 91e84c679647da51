package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/mattjoyce/mcpserve/internal/config"
	"github.com/mattjoyce/mcpserve/internal/log"
)

const (
	// DefaultGracePeriod is how long a network-mode worker gets before it is declared ready.
	DefaultGracePeriod = 1500 * time.Millisecond

	// DefaultStopTimeout is the time we wait after SIGTERM before sending SIGKILL.
	DefaultStopTimeout = 5 * time.Second

	// recordTimeout bounds each best-effort recorder call.
	recordTimeout = 5 * time.Second
)

// Supervisor starts and tracks worker sessions.
type Supervisor struct {
	mode           Mode
	invocations    map[Mode]Invocation
	grace          time.Duration
	stopTimeout    time.Duration
	port           int
	workerLogLevel string

	environ   func() []string
	clock     Clock
	logger    *slog.Logger
	recorder  Recorder
	publisher Publisher

	mu           sync.Mutex
	sessions     map[string]*Handle
	shuttingDown bool
	// stopping is closed by Shutdown and aborts network-mode grace windows.
	stopping chan struct{}
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger used for lifecycle and worker output.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// WithClock replaces the clock that drives the grace period.
func WithClock(c Clock) Option {
	return func(s *Supervisor) { s.clock = c }
}

// WithRecorder sets the session ledger.
func WithRecorder(r Recorder) Option {
	return func(s *Supervisor) { s.recorder = r }
}

// WithPublisher sets the lifecycle event sink.
func WithPublisher(p Publisher) Option {
	return func(s *Supervisor) { s.publisher = p }
}

// WithEnviron replaces the ambient environment source (os.Environ by default).
func WithEnviron(fn func() []string) Option {
	return func(s *Supervisor) { s.environ = fn }
}

// WithInvocation overrides the command used for mode.
func WithInvocation(mode Mode, inv Invocation) Option {
	return func(s *Supervisor) { s.invocations[mode] = inv }
}

// WithGracePeriod overrides the network-mode grace period.
func WithGracePeriod(d time.Duration) Option {
	return func(s *Supervisor) { s.grace = d }
}

// WithStopTimeout overrides the SIGTERM→SIGKILL delay used by Handle.Close.
func WithStopTimeout(d time.Duration) Option {
	return func(s *Supervisor) { s.stopTimeout = d }
}

// WithPort overrides the WEB_PORT default injected in network mode.
func WithPort(port int) Option {
	return func(s *Supervisor) { s.port = port }
}

// WithWorkerLogLevel overrides the LOG_LEVEL default injected in network mode.
func WithWorkerLogLevel(level string) Option {
	return func(s *Supervisor) { s.workerLogLevel = level }
}

// New creates a Supervisor from the worker configuration.
func New(cfg config.WorkerConfig, opts ...Option) (*Supervisor, error) {
	mode, err := ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}

	s := &Supervisor{
		mode: mode,
		invocations: map[Mode]Invocation{
			ModeStream:  InvocationFromConfig(cfg, ModeStream),
			ModeNetwork: InvocationFromConfig(cfg, ModeNetwork),
		},
		grace:          cfg.GracePeriod,
		stopTimeout:    cfg.StopTimeout,
		port:           cfg.Port,
		workerLogLevel: cfg.LogLevel,
		environ:        os.Environ,
		clock:          realClock{},
		logger:         log.WithComponent("supervisor"),
		recorder:       nopRecorder{},
		publisher:      nopPublisher{},
		sessions:       make(map[string]*Handle),
		stopping:       make(chan struct{}),
	}
	if s.grace <= 0 {
		s.grace = DefaultGracePeriod
	}
	if s.stopTimeout <= 0 {
		s.stopTimeout = DefaultStopTimeout
	}

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Mode returns the default operating mode.
func (s *Supervisor) Mode() Mode {
	return s.mode
}

// StartSession starts a worker for sessionID in the default mode.
func (s *Supervisor) StartSession(ctx context.Context, sessionID string, sc config.SessionConfig) (*Handle, error) {
	return s.StartSessionMode(ctx, sessionID, s.mode, sc)
}

// StartSessionMode starts a worker for sessionID in the given mode. It
// returns either a ready handle or an error, never both; on error no process
// is left running.
func (s *Supervisor) StartSessionMode(ctx context.Context, sessionID string, mode Mode, sc config.SessionConfig) (*Handle, error) {
	if sessionID == "" {
		return nil, ErrMissingSessionID
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}

	logger := s.logger.With("session_id", sessionID, "mode", string(mode))

	h := &Handle{
		ID:          sessionID,
		Mode:        mode,
		stopTimeout: s.stopTimeout,
		onClose:     s.handleClosed,
		settled:     make(chan struct{}),
	}
	h.setState(StateStarting)
	if err := s.reserve(h); err != nil {
		return nil, err
	}
	defer close(h.settled)

	env := ComposeEnvironment(s.environ(), sc, EnvDefaults{
		Mode:     mode,
		Port:     s.port,
		LogLevel: s.workerLogLevel,
	})
	inv := s.invocations[mode]
	h.invocation = inv
	h.fingerprint = env.Fingerprint()

	cmd := exec.Command(inv.Path, inv.Args...)
	cmd.Env = env.Environ()
	h.proc = newProcess(cmd)

	s.publisher.Publish(EventStarting, map[string]any{
		"session_id": sessionID,
		"mode":       string(mode),
		"command":    inv.Path,
	})
	logger.Info("starting worker", "command", inv.Path, "args", inv.Args, "env_overrides", env.Overridden())

	pp, err := newPipes(cmd, mode)
	if err != nil {
		return nil, s.failSpawn(h, logger, fmt.Errorf("create pipes: %w", err))
	}
	if err := h.proc.start(); err != nil {
		pp.closeAll()
		return nil, s.failSpawn(h, logger, err)
	}
	pp.closeChildEnds()

	s.record(logger, "start", func(ctx context.Context) error {
		return s.recorder.RecordStart(ctx, SessionInfo{
			SessionID:      sessionID,
			Mode:           mode,
			PID:            h.proc.PID(),
			Command:        inv.String(),
			EnvFingerprint: h.fingerprint,
			StartedAt:      h.proc.Started(),
		})
	})

	if mode == ModeStream {
		h.Stdin = pp.stdinW
		h.Stdout = newLineTap(pp.stdoutR, outputLogger(logger, "stdout", slog.LevelDebug))
		h.Stderr = newLineTap(pp.stderrR, outputLogger(logger, "stderr", slog.LevelDebug))
		s.markReady(h, logger)
		go s.watchExit(h, logger)
		return h, nil
	}

	go s.forward(pp.stdoutR, "stdout", slog.LevelInfo, logger)
	go s.forward(pp.stderrR, "stderr", slog.LevelWarn, logger)

	timer := s.clock.After(s.grace)
	exited := h.proc.Done()
	for {
		select {
		case <-exited:
			if code := h.proc.ExitCode(); code != 0 {
				return nil, s.exitFailure(h, logger, code)
			}
			// A clean exit does not fail readiness; the caller sees it via Exited.
			logger.Warn("worker exited cleanly during grace period")
			exited = nil
		case <-timer:
			// The exit may have landed in the same instant as the timer.
			select {
			case <-h.proc.Done():
				if code := h.proc.ExitCode(); code != 0 {
					return nil, s.exitFailure(h, logger, code)
				}
			default:
			}
			s.markReady(h, logger)
			go s.watchExit(h, logger)
			return h, nil
		case <-ctx.Done():
			s.abort(h, logger, ctx.Err())
			return nil, ctx.Err()
		case <-s.stopping:
			s.abort(h, logger, ErrShuttingDown)
			return nil, ErrShuttingDown
		}
	}
}

// Get returns the live handle for sessionID.
func (s *Supervisor) Get(sessionID string) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.sessions[sessionID]
	if !ok || h.State() != StateReady {
		return nil, false
	}
	return h, true
}

// List returns the live sessions ordered by start time.
func (s *Supervisor) List() []Info {
	s.mu.Lock()
	handles := make([]*Handle, 0, len(s.sessions))
	for _, h := range s.sessions {
		if h.State() == StateReady {
			handles = append(handles, h)
		}
	}
	s.mu.Unlock()

	infos := make([]Info, 0, len(handles))
	for _, h := range handles {
		infos = append(infos, h.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].StartedAt.Equal(infos[j].StartedAt) {
			return infos[i].SessionID < infos[j].SessionID
		}
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

// Count returns the number of live sessions.
func (s *Supervisor) Count() int {
	return len(s.List())
}

// Close tears down the session with the given id.
func (s *Supervisor) Close(sessionID string) error {
	h, ok := s.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	return h.Close()
}

// Shutdown closes every live session and refuses new ones. Sessions still
// inside their grace window are killed. It returns when all workers are gone
// or ctx is done.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.shuttingDown {
		s.shuttingDown = true
		close(s.stopping)
	}
	handles := make([]*Handle, 0, len(s.sessions))
	for _, h := range s.sessions {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	if len(handles) == 0 {
		return nil
	}
	s.logger.Info("shutting down sessions", "count", len(handles))

	var (
		wg   sync.WaitGroup
		emu  sync.Mutex
		errs []error
	)
	for _, h := range handles {
		wg.Add(1)
		go func(h *Handle) {
			defer wg.Done()
			// Starting handles either become ready or are killed by their own
			// start call once stopping is closed.
			<-h.settled
			if h.State() != StateReady {
				return
			}
			if err := h.Close(); err != nil {
				emu.Lock()
				errs = append(errs, fmt.Errorf("session %q: %w", h.ID, err))
				emu.Unlock()
			}
		}(h)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return errors.Join(errs...)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) reserve(h *Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shuttingDown {
		return ErrShuttingDown
	}
	if _, exists := s.sessions[h.ID]; exists {
		return fmt.Errorf("%w: %s", ErrSessionExists, h.ID)
	}
	s.sessions[h.ID] = h
	return nil
}

// release drops h from the session table if it is still the registered handle.
func (s *Supervisor) release(h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.sessions[h.ID]; ok && cur == h {
		delete(s.sessions, h.ID)
	}
}

func (s *Supervisor) failSpawn(h *Handle, logger *slog.Logger, cause error) error {
	err := &SpawnError{SessionID: h.ID, Cause: cause}
	h.setState(StateFailed)
	s.release(h)

	logger.Error("failed to start worker", "error", cause)
	s.record(logger, "start", func(ctx context.Context) error {
		return s.recorder.RecordStart(ctx, SessionInfo{
			SessionID:      h.ID,
			Mode:           h.Mode,
			PID:            -1,
			Command:        h.invocation.String(),
			EnvFingerprint: h.fingerprint,
			StartedAt:      s.clock.Now(),
		})
	})
	s.record(logger, "failure", func(ctx context.Context) error {
		return s.recorder.RecordFailure(ctx, h.ID, err, s.clock.Now())
	})
	s.publisher.Publish(EventFailed, map[string]any{
		"session_id": h.ID,
		"kind":       "spawn_error",
		"error":      cause.Error(),
	})
	return err
}

func (s *Supervisor) exitFailure(h *Handle, logger *slog.Logger, code int) error {
	err := &ExitError{SessionID: h.ID, Code: code}
	s.fail(h, logger, err)
	return err
}

// abort kills a worker that has not become ready and waits for it.
func (s *Supervisor) abort(h *Handle, logger *slog.Logger, cause error) {
	if err := h.proc.Kill(); !gone(err) {
		logger.Error("failed to kill worker", "error", err)
	}
	<-h.proc.Done()
	s.fail(h, logger, cause)
}

func (s *Supervisor) fail(h *Handle, logger *slog.Logger, err error) {
	h.setState(StateFailed)
	s.release(h)

	data := map[string]any{"session_id": h.ID, "error": err.Error()}
	var exitErr *ExitError
	switch {
	case errors.As(err, &exitErr):
		data["kind"] = "exit_error"
		data["exit_code"] = exitErr.Code
		logger.Error("worker exited before becoming ready", "exit_code", exitErr.Code)
	case errors.Is(err, ErrShuttingDown):
		data["kind"] = "shutdown"
		logger.Warn("session start aborted by shutdown")
	default:
		data["kind"] = "cancelled"
		logger.Warn("session start cancelled", "error", err)
	}

	s.record(logger, "failure", func(ctx context.Context) error {
		return s.recorder.RecordFailure(ctx, h.ID, err, s.clock.Now())
	})
	s.publisher.Publish(EventFailed, data)
}

func (s *Supervisor) markReady(h *Handle, logger *slog.Logger) {
	h.setState(StateReady)
	logger.Info("worker ready", "pid", h.proc.PID())
	s.record(logger, "ready", func(ctx context.Context) error {
		return s.recorder.RecordReady(ctx, h.ID, s.clock.Now())
	})
	s.publisher.Publish(EventReady, map[string]any{
		"session_id": h.ID,
		"mode":       string(h.Mode),
		"pid":        h.proc.PID(),
	})
}

// watchExit routes post-readiness exits to the lifecycle channels.
func (s *Supervisor) watchExit(h *Handle, logger *slog.Logger) {
	<-h.proc.Done()
	code := h.proc.ExitCode()
	h.setState(StateExited)
	s.release(h)

	logger.Info("worker exited", "exit_code", code, "runtime", time.Since(h.proc.Started()).Round(time.Millisecond))
	s.record(logger, "exit", func(ctx context.Context) error {
		return s.recorder.RecordExit(ctx, h.ID, code, s.clock.Now())
	})
	s.publisher.Publish(EventExited, map[string]any{
		"session_id": h.ID,
		"exit_code":  code,
	})
}

func (s *Supervisor) handleClosed(h *Handle) {
	s.publisher.Publish(EventClosed, map[string]any{"session_id": h.ID})
}

func (s *Supervisor) forward(r *os.File, stream string, level slog.Level, logger *slog.Logger) {
	defer r.Close()
	if err := ForwardLines(r, outputLogger(logger, stream, level)); err != nil {
		logger.Debug("worker output forwarding stopped", "stream", stream, "error", err)
	}
}

func (s *Supervisor) record(logger *slog.Logger, what string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Warn("failed to record session "+what, "error", err)
	}
}

func outputLogger(logger *slog.Logger, stream string, level slog.Level) LineFunc {
	return func(line string) {
		logger.Log(context.Background(), level, "worker output", "stream", stream, "line", line)
	}
}

// pipes holds both ends of the worker's standard streams. os.Pipe is used
// instead of exec.Cmd's *Pipe helpers so that Wait never closes the read
// ends before the caller has drained them.
type pipes struct {
	stdinR, stdinW   *os.File
	stdoutR, stdoutW *os.File
	stderrR, stderrW *os.File
}

func newPipes(cmd *exec.Cmd, mode Mode) (*pipes, error) {
	p := &pipes{}
	var err error

	if mode == ModeStream {
		if p.stdinR, p.stdinW, err = os.Pipe(); err != nil {
			return nil, err
		}
		cmd.Stdin = p.stdinR
	}
	if p.stdoutR, p.stdoutW, err = os.Pipe(); err != nil {
		p.closeAll()
		return nil, err
	}
	cmd.Stdout = p.stdoutW
	if p.stderrR, p.stderrW, err = os.Pipe(); err != nil {
		p.closeAll()
		return nil, err
	}
	cmd.Stderr = p.stderrW
	return p, nil
}

func (p *pipes) closeChildEnds() {
	closeFiles(p.stdinR, p.stdoutW, p.stderrW)
}

func (p *pipes) closeAll() {
	closeFiles(p.stdinR, p.stdinW, p.stdoutR, p.stdoutW, p.stderrR, p.stderrW)
}

func closeFiles(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}
