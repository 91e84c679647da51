// Package ledger persists session attempts in SQLite.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattjoyce/mcpserve/internal/supervisor"
)

// DefaultListLimit bounds List when no limit is given.
const DefaultListLimit = 100

// Store records session lifecycles. It implements supervisor.Recorder.
type Store struct {
	db *sql.DB
}

var _ supervisor.Recorder = (*Store)(nil)

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// RecordStart inserts a new attempt for info.SessionID.
func (s *Store) RecordStart(ctx context.Context, info supervisor.SessionInfo) error {
	if info.SessionID == "" {
		return fmt.Errorf("session_id is empty")
	}
	startedAt := info.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO sessions(id, session_id, mode, pid, command, env_fingerprint, status, started_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?);
`, uuid.NewString(), info.SessionID, string(info.Mode), info.PID, info.Command, info.EnvFingerprint,
		StatusStarting, formatTime(startedAt))
	if err != nil {
		return fmt.Errorf("record session start: %w", err)
	}
	return nil
}

// RecordReady marks the newest starting attempt ready.
func (s *Store) RecordReady(ctx context.Context, sessionID string, at time.Time) error {
	return s.updateLatest(ctx, sessionID, []Status{StatusStarting}, `status = ?, ready_at = ?`,
		StatusReady, formatTime(at))
}

// RecordFailure marks the newest starting attempt failed. The worker's exit
// code is kept when cause is a *supervisor.ExitError.
func (s *Store) RecordFailure(ctx context.Context, sessionID string, cause error, at time.Time) error {
	var exitCode any
	var exitErr *supervisor.ExitError
	if errors.As(cause, &exitErr) {
		exitCode = exitErr.Code
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.updateLatest(ctx, sessionID, []Status{StatusStarting},
		`status = ?, error = ?, exit_code = ?, ended_at = ?`,
		StatusFailed, msg, exitCode, formatTime(at))
}

// RecordExit marks the newest live attempt exited with code.
func (s *Store) RecordExit(ctx context.Context, sessionID string, code int, at time.Time) error {
	return s.updateLatest(ctx, sessionID, []Status{StatusStarting, StatusReady},
		`status = ?, exit_code = ?, ended_at = ?`,
		StatusExited, code, formatTime(at))
}

// updateLatest applies set to the newest attempt of sessionID in one of from.
func (s *Store) updateLatest(ctx context.Context, sessionID string, from []Status, set string, args ...any) error {
	if sessionID == "" {
		return fmt.Errorf("session_id is empty")
	}

	placeholders := "?"
	for range from[1:] {
		placeholders += ", ?"
	}
	query := `
UPDATE sessions SET ` + set + `
WHERE id = (
  SELECT id FROM sessions
  WHERE session_id = ? AND status IN (` + placeholders + `)
  ORDER BY started_at DESC, rowid DESC
  LIMIT 1
);`

	args = append(args, sessionID)
	for _, st := range from {
		args = append(args, st)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update session %q: %w", sessionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session %q: %w", sessionID, err)
	}
	if n == 0 {
		return fmt.Errorf("update session %q: no %v attempt: %w", sessionID, from, ErrNotFound)
	}
	return nil
}

// RecoverAbandoned closes attempts left starting or ready by a previous
// process that did not shut down cleanly. It returns the number of rows changed.
func (s *Store) RecoverAbandoned(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE sessions
SET status = ?, error = ?, ended_at = ?
WHERE status IN (?, ?);
`, StatusAbandoned, "supervisor stopped before the worker exited", formatTime(time.Now()),
		StatusStarting, StatusReady)
	if err != nil {
		return 0, fmt.Errorf("recover abandoned sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("recover abandoned sessions: %w", err)
	}
	return int(n), nil
}

const selectColumns = `id, session_id, mode, pid, command, env_fingerprint, status, exit_code, error, started_at, ready_at, ended_at`

// Get returns the newest attempt for sessionID.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+selectColumns+`
FROM sessions
WHERE session_id = ?
ORDER BY started_at DESC, rowid DESC
LIMIT 1;
`, sessionID)

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %q: %w", sessionID, err)
	}
	return sess, nil
}

// List returns up to limit attempts, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+selectColumns+`
FROM sessions
ORDER BY started_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		sess       Session
		status     string
		exitCode   sql.NullInt64
		errMsg     sql.NullString
		startedAtS string
		readyAtS   sql.NullString
		endedAtS   sql.NullString
	)
	err := row.Scan(
		&sess.ID, &sess.SessionID, &sess.Mode, &sess.PID, &sess.Command, &sess.EnvFingerprint,
		&status, &exitCode, &errMsg, &startedAtS, &readyAtS, &endedAtS,
	)
	if err != nil {
		return nil, err
	}

	sess.Status = Status(status)
	if exitCode.Valid {
		code := int(exitCode.Int64)
		sess.ExitCode = &code
	}
	if errMsg.Valid {
		sess.Error = &errMsg.String
	}
	if t, err := time.Parse(time.RFC3339Nano, startedAtS); err == nil {
		sess.StartedAt = t
	}
	sess.ReadyAt = parseNullTime(readyAtS)
	sess.EndedAt = parseNullTime(endedAtS)
	return &sess, nil
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
