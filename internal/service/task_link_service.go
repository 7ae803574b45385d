package service

import (
	"context"
	"time"

	apperrors "focusflow/backend/internal/errors"
	"focusflow/backend/internal/model"
	"focusflow/backend/internal/repository"
)

// TaskLinkService maintains the optional session-to-task association
// and the task side's reverse-reference collection. The task records
// themselves are an external concern; the adapter only needs existence
// checks and the reverse refs.
type TaskLinkService struct {
	sessions *repository.SessionRepository
	tasks    *repository.TaskRepository
}

func NewTaskLinkService(sessions *repository.SessionRepository, tasks *repository.TaskRepository) *TaskLinkService {
	return &TaskLinkService{sessions: sessions, tasks: tasks}
}

// Link points a session at a task. Linking to the same task twice is a
// no-op; linking to a different task moves the reverse reference.
func (s *TaskLinkService) Link(ctx context.Context, ownerID, sessionID, taskID string) (*model.Session, *apperrors.APIError) {
	exists, err := s.tasks.Exists(ctx, taskID)
	if err != nil {
		return nil, apperrors.Internal("failed to check task")
	}
	if !exists {
		return nil, apperrors.NotFound("task_not_found", "task not found")
	}

	now := time.Now().UTC()
	tx, err := s.sessions.BeginTx(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to start transaction")
	}
	defer tx.Rollback()

	session, err := s.sessions.GetTx(ctx, tx, sessionID)
	if err == repository.ErrNotFound {
		return nil, apperrors.NotFound("session_not_found", "session not found")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to load session")
	}
	if session.OwnerID != ownerID {
		return nil, apperrors.Forbidden("session belongs to another user")
	}

	if session.LinkedTaskID != nil && *session.LinkedTaskID == taskID {
		if err := s.tasks.AddSessionRefTx(ctx, tx, taskID, sessionID); err != nil {
			return nil, apperrors.Internal("failed to record task reference")
		}
		if commitErr := tx.Commit(); commitErr != nil {
			return nil, apperrors.Internal("failed to commit transaction")
		}
		return session, nil
	}

	previous := session.LinkedTaskID
	session.LinkedTaskID = &taskID
	session.UpdatedAt = now

	if err := s.sessions.UpdateTx(ctx, tx, session); err != nil {
		if err == repository.ErrStaleVersion {
			return nil, apperrors.Conflict("state_conflict", "session was modified concurrently", nil)
		}
		return nil, apperrors.Internal("failed to update session")
	}
	if previous != nil {
		if err := s.tasks.RemoveSessionRefTx(ctx, tx, *previous, sessionID); err != nil {
			return nil, apperrors.Internal("failed to move task reference")
		}
	}
	if err := s.tasks.AddSessionRefTx(ctx, tx, taskID, sessionID); err != nil {
		return nil, apperrors.Internal("failed to record task reference")
	}
	if commitErr := tx.Commit(); commitErr != nil {
		return nil, apperrors.Internal("failed to commit transaction")
	}

	return session, nil
}

// Unlink clears the forward reference. A session with no link succeeds
// as a no-op.
func (s *TaskLinkService) Unlink(ctx context.Context, ownerID, sessionID string) (*model.Session, *apperrors.APIError) {
	now := time.Now().UTC()
	tx, err := s.sessions.BeginTx(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to start transaction")
	}
	defer tx.Rollback()

	session, err := s.sessions.GetTx(ctx, tx, sessionID)
	if err == repository.ErrNotFound {
		return nil, apperrors.NotFound("session_not_found", "session not found")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to load session")
	}
	if session.OwnerID != ownerID {
		return nil, apperrors.Forbidden("session belongs to another user")
	}

	if session.LinkedTaskID == nil {
		return session, nil
	}

	taskID := *session.LinkedTaskID
	session.LinkedTaskID = nil
	session.UpdatedAt = now

	if err := s.sessions.UpdateTx(ctx, tx, session); err != nil {
		if err == repository.ErrStaleVersion {
			return nil, apperrors.Conflict("state_conflict", "session was modified concurrently", nil)
		}
		return nil, apperrors.Internal("failed to update session")
	}
	if err := s.tasks.RemoveSessionRefTx(ctx, tx, taskID, sessionID); err != nil {
		return nil, apperrors.Internal("failed to remove task reference")
	}
	if commitErr := tx.Commit(); commitErr != nil {
		return nil, apperrors.Internal("failed to commit transaction")
	}

	return session, nil
}
