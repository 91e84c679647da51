package ledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mattjoyce/mcpserve/internal/config"
	"github.com/mattjoyce/mcpserve/internal/storage"
	"github.com/mattjoyce/mcpserve/internal/supervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func startInfo(id string, at time.Time) supervisor.SessionInfo {
	return supervisor.SessionInfo{
		SessionID:      id,
		Mode:           supervisor.ModeStream,
		PID:            4242,
		Command:        "python3 [-m enhanced_mcp_server.core.server]",
		EnvFingerprint: "abc123",
		StartedAt:      at,
	}
}

func TestLifecycleRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordStart(ctx, startInfo("s1", t0)))

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StatusStarting, got.Status)
	assert.Equal(t, "stdio", got.Mode)
	assert.Equal(t, 4242, got.PID)
	assert.Equal(t, "abc123", got.EnvFingerprint)
	assert.True(t, got.StartedAt.Equal(t0))
	assert.NotEmpty(t, got.ID)
	assert.Nil(t, got.ReadyAt)

	require.NoError(t, s.RecordReady(ctx, "s1", t0.Add(time.Second)))
	got, err = s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, got.Status)
	require.NotNil(t, got.ReadyAt)
	assert.True(t, got.ReadyAt.Equal(t0.Add(time.Second)))

	require.NoError(t, s.RecordExit(ctx, "s1", 0, t0.Add(time.Minute)))
	got, err = s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StatusExited, got.Status)
	require.NotNil(t, got.ExitCode)
	assert.Equal(t, 0, *got.ExitCode)
	require.NotNil(t, got.EndedAt)
	assert.Nil(t, got.Error)

	// Nothing left open to exit.
	err = s.RecordExit(ctx, "s1", 1, t0.Add(2*time.Minute))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordFailureKeepsExitCode(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.RecordStart(ctx, startInfo("bad", now)))
	cause := &supervisor.ExitError{SessionID: "bad", Code: 3}
	require.NoError(t, s.RecordFailure(ctx, "bad", cause, now))

	got, err := s.Get(ctx, "bad")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	require.NotNil(t, got.ExitCode)
	assert.Equal(t, 3, *got.ExitCode)
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "exited with code 3")

	require.NoError(t, s.RecordStart(ctx, startInfo("spawn", now)))
	require.NoError(t, s.RecordFailure(ctx, "spawn", &supervisor.SpawnError{SessionID: "spawn", Cause: errors.New("no such file")}, now))
	got, err = s.Get(ctx, "spawn")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Nil(t, got.ExitCode)
}

func TestRestartedSessionUsesNewestAttempt(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordStart(ctx, startInfo("again", t0)))
	require.NoError(t, s.RecordReady(ctx, "again", t0))
	require.NoError(t, s.RecordExit(ctx, "again", 1, t0.Add(time.Second)))

	second := startInfo("again", t0.Add(2*time.Second))
	second.PID = 5000
	require.NoError(t, s.RecordStart(ctx, second))
	require.NoError(t, s.RecordReady(ctx, "again", t0.Add(3*time.Second)))

	got, err := s.Get(ctx, "again")
	require.NoError(t, err)
	assert.Equal(t, 5000, got.PID)
	assert.Equal(t, StatusReady, got.Status)

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 5000, all[0].PID, "newest first")
	assert.Equal(t, StatusExited, all[1].Status)
	assert.NotEqual(t, all[0].ID, all[1].ID)
}

func TestListLimit(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	t0 := time.Now()

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.RecordStart(ctx, startInfo(id, t0.Add(time.Duration(i)*time.Millisecond))))
	}
	got, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].SessionID)
	assert.Equal(t, "b", got[1].SessionID)
}

func TestGetUnknown(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.RecordReady(context.Background(), "ghost", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, s.RecordStart(context.Background(), supervisor.SessionInfo{}))
}

func TestRecoverAbandoned(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.RecordStart(ctx, startInfo("live", now)))
	require.NoError(t, s.RecordReady(ctx, "live", now))
	require.NoError(t, s.RecordStart(ctx, startInfo("pending", now)))
	require.NoError(t, s.RecordStart(ctx, startInfo("done", now)))
	require.NoError(t, s.RecordExit(ctx, "done", 0, now))

	n, err := s.RecoverAbandoned(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.Get(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, StatusAbandoned, got.Status)
	assert.NotNil(t, got.EndedAt)

	got, err = s.Get(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, StatusExited, got.Status)
}

func TestSupervisorRecordsIntoLedger(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	cfg := config.Defaults().Worker
	sup, err := supervisor.New(cfg,
		supervisor.WithRecorder(s),
		supervisor.WithInvocation(supervisor.ModeStream, supervisor.Invocation{Path: "cat"}),
		supervisor.WithEnviron(func() []string { return []string{"PATH=" + os.Getenv("PATH")} }),
	)
	require.NoError(t, err)

	h, err := sup.StartSession(context.Background(), "real", config.SessionConfig{RedisURL: "redis://x"})
	require.NoError(t, err)

	got, err := s.Get(context.Background(), "real")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, got.Status)
	assert.Equal(t, h.PID(), got.PID)
	assert.Len(t, got.EnvFingerprint, 32)

	require.NoError(t, h.Close())
	require.Eventually(t, func() bool {
		got, err := s.Get(context.Background(), "real")
		return err == nil && got.Status == StatusExited
	}, 5*time.Second, 20*time.Millisecond)
}
