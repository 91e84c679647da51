package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mattjoyce/mcpserve/internal/config"
	"github.com/mattjoyce/mcpserve/internal/log"
	"github.com/mattjoyce/mcpserve/internal/supervisor"
)

// drainTimeout bounds how long output copying may outlive the worker, for
// grandchildren that inherited its stdout.
const drainTimeout = 2 * time.Second

func runSession(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return sessionMain(ctx, args, os.Stdin, os.Stdout, os.Stderr)
}

// sessionMain starts one worker with the configured mode and bridges the
// given streams to it. The return value is the worker's exit code.
func sessionMain(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("session", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to configuration file")
	mode := fs.String("mode", "", "Worker mode: stdio or http (default: worker.mode)")
	sessionID := fs.String("id", "", "Session id (default: random uuid)")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.LoadOrDefaults(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}
	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("session")

	sup, err := supervisor.New(cfg.Worker, supervisor.WithLogger(log.WithComponent("supervisor")))
	if err != nil {
		fmt.Fprintf(stderr, "Invalid worker configuration: %v\n", err)
		return 1
	}
	m := sup.Mode()
	if *mode != "" {
		if m, err = supervisor.ParseMode(*mode); err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return 1
		}
	}
	id := *sessionID
	if id == "" {
		id = uuid.NewString()
	}

	h, err := sup.StartSessionMode(ctx, id, m, cfg.Session)
	if err != nil {
		var exitErr *supervisor.ExitError
		if errors.As(err, &exitErr) && exitErr.Code > 0 {
			logger.Error("worker failed to start", "session_id", id, "exit_code", exitErr.Code)
			return exitErr.Code
		}
		fmt.Fprintf(stderr, "Failed to start worker: %v\n", err)
		return 1
	}

	var drained sync.WaitGroup
	if h.Mode == supervisor.ModeStream {
		bridge(h, stdin, stdout, stderr, &drained)
	}

	select {
	case <-h.Exited():
	case <-ctx.Done():
		logger.Info("stopping worker", "session_id", id)
		if err := h.Close(); err != nil {
			logger.Warn("failed to stop worker", "session_id", id, "error", err)
		}
		<-h.Exited()
	}

	waitTimeout(&drained, drainTimeout)
	return exitStatus(h.ExitCode())
}

// bridge copies stdin to the worker and its output streams back out. The
// worker sees EOF when stdin ends.
func bridge(h *supervisor.Handle, stdin io.Reader, stdout, stderr io.Writer, wg *sync.WaitGroup) {
	go func() {
		_, _ = io.Copy(h.Stdin, stdin)
		_ = h.Stdin.Close()
	}()

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(stdout, h.Stdout)
	}()
	go func() {
		defer wg.Done()
		_, _ = io.Copy(stderr, h.Stderr)
	}()
}

func waitTimeout(wg *sync.WaitGroup, d time.Duration) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
	}
}

// exitStatus maps a worker exit code to ours. Signalled workers report -1.
func exitStatus(code int) int {
	if code < 0 {
		return 1
	}
	return code
}
