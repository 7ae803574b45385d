package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"focusflow/backend/internal/model"
)

const sessionColumns = `id, owner_id, state, work_duration_seconds, short_break_duration_seconds,
	        long_break_duration_seconds, total_cycles, current_cycle, started_at, ends_at,
	        remaining_seconds, last_resumed_at, paused_state, linked_task_id, shared,
	        version, created_at, updated_at`

type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return tx, nil
}

func (r *SessionRepository) Insert(ctx context.Context, session *model.Session) error {
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO sessions (
			id, owner_id, state, work_duration_seconds, short_break_duration_seconds,
			long_break_duration_seconds, total_cycles, current_cycle, started_at, ends_at,
			remaining_seconds, last_resumed_at, paused_state, linked_task_id, shared,
			version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.OwnerID,
		session.State,
		session.WorkDurationSeconds,
		session.ShortBreakDurationSeconds,
		session.LongBreakDurationSeconds,
		session.TotalCycles,
		session.CurrentCycle,
		nullableTime(session.StartedAt),
		nullableTime(session.EndsAt),
		session.RemainingSeconds,
		nullableTime(session.LastResumedAt),
		nullableString(session.PausedState),
		nullableString(session.LinkedTaskID),
		boolToInt(session.Shared),
		session.Version,
		session.CreatedAt.UTC().Format(time.RFC3339Nano),
		session.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`,
		sessionID,
	)
	return scanSession(row)
}

func (r *SessionRepository) GetTx(ctx context.Context, tx *sql.Tx, sessionID string) (*model.Session, error) {
	row := tx.QueryRowContext(
		ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`,
		sessionID,
	)
	return scanSession(row)
}

// FindActiveByOwnerTx returns the owner's single non-idle, non-finished
// session, the one the single-flight rule allows.
func (r *SessionRepository) FindActiveByOwnerTx(ctx context.Context, tx *sql.Tx, ownerID string) (*model.Session, error) {
	row := tx.QueryRowContext(
		ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE owner_id = ? AND state NOT IN (?, ?)
		 LIMIT 1`,
		ownerID,
		model.StateIdle,
		model.StateFinished,
	)
	return scanSession(row)
}

func (r *SessionRepository) FindActiveByOwner(ctx context.Context, ownerID string) (*model.Session, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE owner_id = ? AND state NOT IN (?, ?)
		 LIMIT 1`,
		ownerID,
		model.StateIdle,
		model.StateFinished,
	)
	return scanSession(row)
}

// UpdateTx persists the session guarded by the version it was loaded
// at. On success the in-memory version is bumped to match the row. A
// concurrent writer that landed first leaves nothing to update and the
// caller gets ErrStaleVersion.
func (r *SessionRepository) UpdateTx(ctx context.Context, tx *sql.Tx, session *model.Session) error {
	result, err := tx.ExecContext(
		ctx,
		`UPDATE sessions
		 SET state = ?,
		     current_cycle = ?,
		     started_at = ?,
		     ends_at = ?,
		     remaining_seconds = ?,
		     last_resumed_at = ?,
		     paused_state = ?,
		     linked_task_id = ?,
		     shared = ?,
		     version = version + 1,
		     updated_at = ?
		 WHERE id = ? AND version = ?`,
		session.State,
		session.CurrentCycle,
		nullableTime(session.StartedAt),
		nullableTime(session.EndsAt),
		session.RemainingSeconds,
		nullableTime(session.LastResumedAt),
		nullableString(session.PausedState),
		nullableString(session.LinkedTaskID),
		boolToInt(session.Shared),
		session.UpdatedAt.UTC().Format(time.RFC3339Nano),
		session.ID,
		session.Version,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session rows affected: %w", err)
	}
	if affected == 0 {
		return ErrStaleVersion
	}

	session.Version++
	return nil
}

func (r *SessionRepository) ListNotIdle(ctx context.Context, ownerID string, limit int) ([]model.Session, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE owner_id = ? AND state != ?
		 ORDER BY updated_at DESC
		 LIMIT ?`,
		ownerID,
		model.StateIdle,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]model.Session, 0, limit)
	for rows.Next() {
		session, scanErr := scanSession(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		sessions = append(sessions, *session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

// ListDue returns running sessions whose scheduled phase end has
// passed, for the proactive sweep.
func (r *SessionRepository) ListDue(ctx context.Context, now time.Time) ([]model.Session, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE state IN (?, ?, ?) AND ends_at IS NOT NULL AND ends_at <= ?`,
		model.StateWorking,
		model.StateShortBreak,
		model.StateLongBreak,
		now.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("list due sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		session, scanErr := scanSession(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		sessions = append(sessions, *session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due sessions: %w", err)
	}

	return sessions, nil
}

func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSession(s scanner) (*model.Session, error) {
	session := model.Session{}
	var startedAt sql.NullString
	var endsAt sql.NullString
	var lastResumedAt sql.NullString
	var pausedState sql.NullString
	var linkedTaskID sql.NullString
	var shared int
	var createdAt string
	var updatedAt string

	err := s.Scan(
		&session.ID,
		&session.OwnerID,
		&session.State,
		&session.WorkDurationSeconds,
		&session.ShortBreakDurationSeconds,
		&session.LongBreakDurationSeconds,
		&session.TotalCycles,
		&session.CurrentCycle,
		&startedAt,
		&endsAt,
		&session.RemainingSeconds,
		&lastResumedAt,
		&pausedState,
		&linkedTaskID,
		&shared,
		&session.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	if session.StartedAt, err = parseNullableTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse session started_at: %w", err)
	}
	if session.EndsAt, err = parseNullableTime(endsAt); err != nil {
		return nil, fmt.Errorf("parse session ends_at: %w", err)
	}
	if session.LastResumedAt, err = parseNullableTime(lastResumedAt); err != nil {
		return nil, fmt.Errorf("parse session last_resumed_at: %w", err)
	}
	if pausedState.Valid {
		value := pausedState.String
		session.PausedState = &value
	}
	if linkedTaskID.Valid {
		value := linkedTaskID.String
		session.LinkedTaskID = &value
	}
	session.Shared = shared != 0

	if session.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse session created_at: %w", err)
	}
	if session.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse session updated_at: %w", err)
	}

	return &session, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseNullableTime(raw sql.NullString) (*time.Time, error) {
	if !raw.Valid {
		return nil, nil
	}
	parsed, err := parseTime(raw.String)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
