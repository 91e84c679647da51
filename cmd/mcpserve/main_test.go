package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/mcpserve/internal/config"
	"github.com/mattjoyce/mcpserve/internal/lock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	// Drain concurrently so large outputs cannot fill the pipe buffer.
	var stdoutBuf, stderrBuf bytes.Buffer
	done := make(chan struct{}, 2)
	go func() { _, _ = io.Copy(&stdoutBuf, stdoutR); done <- struct{}{} }()
	go func() { _, _ = io.Copy(&stderrBuf, stderrR); done <- struct{}{} }()

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr
	<-done
	<-done

	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, stdoutBuf.String(), stderrBuf.String()
}

func setVersionMetadataForTest(t *testing.T, v, commit, built string) {
	t.Helper()

	origVersion := version
	origCommit := gitCommit
	origBuildDate := buildDate

	version = v
	gitCommit = commit
	buildDate = built

	t.Cleanup(func() {
		version = origVersion
		gitCommit = origCommit
		buildDate = origBuildDate
	})
}

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "mcpserve.yaml")
	yaml = strings.ReplaceAll(yaml, "$DIR", dir)
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestRunCLIUnknownCommand(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"bogus"})
	})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Unknown command: bogus")
}

func TestRunCLIHelp(t *testing.T) {
	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"help"})
	})
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "mcpserve <command>")
	assert.Contains(t, stdout, "session")
}

func TestConfigFlagHelpNamesAFile(t *testing.T) {
	for _, cmd := range []string{"serve", "session", "stdio", "tools", "watch"} {
		t.Run(cmd, func(t *testing.T) {
			_, _, stderr := captureOutputWithExitCode(t, func() int {
				return runCLI([]string{cmd, "-h"})
			})
			assert.Contains(t, stderr, "Path to configuration file")
			assert.NotContains(t, stderr, "directory")
		})
	}
}

func TestRunVersionJSON(t *testing.T) {
	setVersionMetadataForTest(t, "1.2.3", "0123456789abcdef", "2026-01-02T03:04:05+02:00")

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"version", "--json"})
	})
	require.Equal(t, 0, code)

	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, versionInfo{
		Version:   "1.2.3",
		Commit:    "0123456789ab",
		BuildTime: "2026-01-02T01:04:05Z",
	}, info)
}

func TestRunVersionRejectsArgs(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"version", "extra"})
	})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Usage: mcpserve version")
}

func TestRunTools(t *testing.T) {
	path := writeConfig(t, `
tools:
  web:
    enabled: true
`)
	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"tools", "--config", path})
	})
	require.Equal(t, 0, code, stderr)

	var out struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	var names []string
	for _, tool := range out.Tools {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"add", "fetch", "search", "translate"}, names)
}

func TestConfigCheck(t *testing.T) {
	valid := writeConfig(t, `
worker:
  mode: http
state:
  path: $DIR/sessions.db
`)
	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "check", "--config", valid})
	})
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "Configuration valid")
	assert.Contains(t, stdout, "mode=http")
	assert.Contains(t, stdout, "blake3: ")

	invalid := writeConfig(t, "worker:\n  mode: grpc\n")
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "check", "--config", invalid})
	})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "worker.mode")
}

func TestConfigShowMasksSecrets(t *testing.T) {
	path := writeConfig(t, `
session:
  jina_api_key: super-secret
  log_level: DEBUG
`)
	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "show", "--config", path})
	})
	require.Equal(t, 0, code)
	assert.NotContains(t, stdout, "super-secret")
	assert.Contains(t, stdout, "********")
	assert.Contains(t, stdout, "log_level: DEBUG")

	code, stdout, _ = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "show", "--config", path, "--reveal"})
	})
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "super-secret")
}

func TestConfigGet(t *testing.T) {
	path := writeConfig(t, `
worker:
  grace_period: 3s
session:
  gemini_api_key: hidden
`)
	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "get", "--config", path, "worker.grace_period"})
	})
	require.Equal(t, 0, code)
	assert.Equal(t, "3s\n", stdout)

	code, stdout, _ = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "get", "--config", path, "session"})
	})
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "gemini_api_key:")
	assert.Contains(t, stdout, "********")
	assert.NotContains(t, stdout, "hidden")

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "get", "--config", path, "worker.nope"})
	})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "not found")
}

func TestConfigNounUnknownAction(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "lock"})
	})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Unknown config action: lock")
}

func TestSessionBridgesStdioAndPropagatesExitCode(t *testing.T) {
	path := writeConfig(t, `
worker:
  mode: stdio
  command: sh
  args: ["-c", "cat; echo done >&2; exit 3"]
`)
	var stdout, stderr bytes.Buffer
	code := sessionMain(context.Background(), []string{"--config", path, "--id", "bridge"},
		strings.NewReader("hello\nworld\n"), &stdout, &stderr)

	assert.Equal(t, 3, code)
	assert.Equal(t, "hello\nworld\n", stdout.String())
	assert.Contains(t, stderr.String(), "done")
}

func TestSessionStartFailureReturnsWorkerCode(t *testing.T) {
	path := writeConfig(t, `
worker:
  mode: http
  command: sh
  args: ["-c", "exit 4"]
  grace_period: 10s
`)
	var stdout, stderr bytes.Buffer
	code := sessionMain(context.Background(), []string{"--config", path},
		strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, 4, code)
}

func TestSessionSpawnFailure(t *testing.T) {
	path := writeConfig(t, `
worker:
  command: /nonexistent/mcpserve-worker
`)
	var stdout, stderr bytes.Buffer
	code := sessionMain(context.Background(), []string{"--config", path},
		strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "Failed to start worker")
}

func TestSessionCancelStopsWorker(t *testing.T) {
	path := writeConfig(t, `
worker:
  mode: http
  command: sh
  args: ["-c", "exec sleep 30"]
  grace_period: 50ms
  stop_timeout: 2s
`)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(300*time.Millisecond, cancel)

	var stdout, stderr bytes.Buffer
	start := time.Now()
	code := sessionMain(ctx, []string{"--config", path}, strings.NewReader(""), &stdout, &stderr)

	assert.Equal(t, 1, code, "a signalled worker maps to 1")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestServeRefusesWithAPIDisabled(t *testing.T) {
	cfg := config.Defaults()
	cfg.API.Enabled = false
	cfg.State.Path = filepath.Join(t.TempDir(), "sessions.db")

	err := serve(context.Background(), cfg)
	assert.ErrorContains(t, err, "api.enabled is false")
}

func TestServeRunsUntilCancelled(t *testing.T) {
	cfg := config.Defaults()
	cfg.State.Path = filepath.Join(t.TempDir(), "state", "sessions.db")
	cfg.API.Listen = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	require.NoError(t, serve(ctx, cfg))

	_, err := os.Stat(cfg.State.Path)
	assert.NoError(t, err, "ledger database is created")

	// The lock is released on return.
	l, err := lock.Acquire(lock.PathFor(cfg.State.Path))
	require.NoError(t, err)
	require.NoError(t, l.Release())
}

func TestServeFailsWhileLocked(t *testing.T) {
	cfg := config.Defaults()
	cfg.State.Path = filepath.Join(t.TempDir(), "sessions.db")

	held, err := lock.Acquire(lock.PathFor(cfg.State.Path))
	require.NoError(t, err)
	defer held.Release()

	err = serve(context.Background(), cfg)
	assert.ErrorIs(t, err, lock.ErrLocked)
}

func TestExitStatus(t *testing.T) {
	assert.Equal(t, 0, exitStatus(0))
	assert.Equal(t, 7, exitStatus(7))
	assert.Equal(t, 1, exitStatus(-1))
}
