package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"focusflow/backend/internal/model"
)

type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Insert(ctx context.Context, task *model.Task) error {
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO tasks (id, owner_id, title, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		task.ID,
		task.OwnerID,
		task.Title,
		task.CreatedAt.UTC().Format(time.RFC3339Nano),
		task.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (r *TaskRepository) Get(ctx context.Context, taskID string) (*model.Task, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT id, owner_id, title, created_at, updated_at FROM tasks WHERE id = ?`,
		taskID,
	)

	var task model.Task
	var createdAt string
	var updatedAt string
	if err := row.Scan(&task.ID, &task.OwnerID, &task.Title, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}

	var err error
	if task.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse task created_at: %w", err)
	}
	if task.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse task updated_at: %w", err)
	}

	return &task, nil
}

func (r *TaskRepository) Exists(ctx context.Context, taskID string) (bool, error) {
	var count int
	if err := r.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM tasks WHERE id = ?`,
		taskID,
	).Scan(&count); err != nil {
		return false, fmt.Errorf("check task exists: %w", err)
	}
	return count > 0, nil
}

func (r *TaskRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]model.Task, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT id, owner_id, title, created_at, updated_at
		 FROM tasks
		 WHERE owner_id = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		ownerID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]model.Task, 0, limit)
	for rows.Next() {
		var task model.Task
		var createdAt string
		var updatedAt string
		if err := rows.Scan(&task.ID, &task.OwnerID, &task.Title, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if task.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse task created_at: %w", err)
		}
		if task.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("parse task updated_at: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}

	return tasks, nil
}

// AddSessionRefTx records a session under the task's reverse-reference
// collection, inside the caller's transaction so the forward link and
// the ref commit or roll back together. Linking the same pair twice is
// a no-op.
func (r *TaskRepository) AddSessionRefTx(ctx context.Context, tx *sql.Tx, taskID, sessionID string) error {
	_, err := tx.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO task_sessions (task_id, session_id, created_at)
		 VALUES (?, ?, ?)`,
		taskID,
		sessionID,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("add task session ref: %w", err)
	}
	return nil
}

func (r *TaskRepository) RemoveSessionRefTx(ctx context.Context, tx *sql.Tx, taskID, sessionID string) error {
	_, err := tx.ExecContext(
		ctx,
		`DELETE FROM task_sessions WHERE task_id = ? AND session_id = ?`,
		taskID,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("remove task session ref: %w", err)
	}
	return nil
}

func (r *TaskRepository) SessionRefs(ctx context.Context, taskID string) ([]string, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT session_id FROM task_sessions WHERE task_id = ? ORDER BY created_at`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("list task session refs: %w", err)
	}
	defer rows.Close()

	var sessionIDs []string
	for rows.Next() {
		var sessionID string
		if err := rows.Scan(&sessionID); err != nil {
			return nil, fmt.Errorf("scan task session ref: %w", err)
		}
		sessionIDs = append(sessionIDs, sessionID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task session refs: %w", err)
	}

	return sessionIDs, nil
}
