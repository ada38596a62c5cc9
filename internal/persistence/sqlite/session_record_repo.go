package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SessionRecord is one terminal session's persisted lifecycle row.
type SessionRecord struct {
	ID        string
	Shell     string
	Cwd       string
	CreatedAt time.Time
	EndedAt   *time.Time
	ExitCode  *int
}

// SessionRecordRepository tracks which terminal sessions ran and when they
// ended, so a crashed run can be reconciled on the next start.
type SessionRecordRepository struct {
	db *sql.DB
}

// NewSessionRecordRepository creates a session record repository.
func NewSessionRecordRepository(db *sql.DB) *SessionRecordRepository {
	return &SessionRecordRepository{db: db}
}

// RecordStart inserts (or replaces) a session row with no end time.
func (r *SessionRecordRepository) RecordStart(ctx context.Context, id, shell, cwd string) error {
	if id == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO terminal_sessions (id, shell, cwd, created_at)
		VALUES (?, ?, NULLIF(?, ''), ?)`,
		id, shell, cwd, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("record session start: %w", err)
	}
	return nil
}

// RecordEnd stamps a session's end time and exit code. exitCode may be nil
// when the process was killed rather than exiting.
func (r *SessionRecordRepository) RecordEnd(ctx context.Context, id string, exitCode *int) error {
	var code sql.NullInt64
	if exitCode != nil {
		code = sql.NullInt64{Int64: int64(*exitCode), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE terminal_sessions SET ended_at = ?, exit_code = ? WHERE id = ?`,
		time.Now().Unix(), code, id)
	if err != nil {
		return fmt.Errorf("record session end: %w", err)
	}
	return nil
}

// MarkAllEnded stamps every still-open session row. Run at startup to close
// rows orphaned by a previous crash, and at shutdown.
func (r *SessionRecordRepository) MarkAllEnded(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE terminal_sessions SET ended_at = ? WHERE ended_at IS NULL",
		time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("mark all sessions ended: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark all sessions ended: %w", err)
	}
	return n, nil
}

// CleanupEndedBefore deletes ended session rows older than cutoff and
// returns how many were removed.
func (r *SessionRecordRepository) CleanupEndedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM terminal_sessions WHERE ended_at IS NOT NULL AND ended_at < ?",
		cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("cleanup sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup sessions: %w", err)
	}
	return n, nil
}

// ListActive returns all sessions with no recorded end, newest first.
func (r *SessionRecordRepository) ListActive(ctx context.Context) ([]SessionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, shell, COALESCE(cwd, ''), created_at, ended_at, exit_code
		FROM terminal_sessions
		WHERE ended_at IS NULL
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		rec, err := scanSessionRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanSessionRecord(rows *sql.Rows) (SessionRecord, error) {
	var (
		rec       SessionRecord
		createdAt int64
		endedAt   sql.NullInt64
		exitCode  sql.NullInt64
	)
	if err := rows.Scan(&rec.ID, &rec.Shell, &rec.Cwd, &createdAt, &endedAt, &exitCode); err != nil {
		return SessionRecord{}, fmt.Errorf("scan session record: %w", err)
	}
	rec.CreatedAt = time.Unix(createdAt, 0)
	if endedAt.Valid {
		t := time.Unix(endedAt.Int64, 0)
		rec.EndedAt = &t
	}
	if exitCode.Valid {
		c := int(exitCode.Int64)
		rec.ExitCode = &c
	}
	return rec, nil
}
