package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	apperrors "focusflow/backend/internal/errors"
	"focusflow/backend/internal/event"
	"focusflow/backend/internal/model"
	"focusflow/backend/internal/repository"
)

// Policy holds the application-wide session constants. LongBreakEvery
// is the cycle interval at which a completed work phase leads into a
// long break.
type Policy struct {
	DefaultWorkSeconds       int
	DefaultShortBreakSeconds int
	DefaultLongBreakSeconds  int
	DefaultTotalCycles       int
	LongBreakEvery           int
}

func DefaultPolicy() Policy {
	return Policy{
		DefaultWorkSeconds:       model.DefaultWorkDurationSeconds,
		DefaultShortBreakSeconds: model.DefaultShortBreakDurationSeconds,
		DefaultLongBreakSeconds:  model.DefaultLongBreakDurationSeconds,
		DefaultTotalCycles:       model.DefaultTotalCycles,
		LongBreakEvery:           4,
	}
}

// SessionService is the sole writer of session timer state. Every
// mutation runs in its own transaction, first settling any phase whose
// scheduled end has already passed, then applying the command against
// the settled record.
type SessionService struct {
	repo   *repository.SessionRepository
	events event.Publisher
	policy Policy
}

type CreateSessionInput struct {
	WorkDurationSeconds       int
	ShortBreakDurationSeconds int
	LongBreakDurationSeconds  int
	TotalCycles               int
}

// SnapshotView is the complete presentation payload pushed on every
// broadcast and join. CurrentRemainingSeconds is derived from wall
// clocks at snapshot time and is never written back; it may be
// transiently negative when a phase has expired but not yet been
// advanced server-side.
type SnapshotView struct {
	ID                        string     `json:"id"`
	State                     string     `json:"state"`
	CurrentCycle              int        `json:"currentCycle"`
	WorkDurationSeconds       int        `json:"workDurationSeconds"`
	ShortBreakDurationSeconds int        `json:"shortBreakDurationSeconds"`
	LongBreakDurationSeconds  int        `json:"longBreakDurationSeconds"`
	TotalCycles               int        `json:"totalCycles"`
	StartedAt                 *time.Time `json:"startedAt,omitempty"`
	EndsAt                    *time.Time `json:"endsAt,omitempty"`
	RemainingSeconds          int        `json:"remainingSeconds"`
	PausedState               *string    `json:"pausedState,omitempty"`
	LinkedTaskID              *string    `json:"linkedTaskId,omitempty"`
	Shared                    bool       `json:"shared"`
	CurrentRemainingSeconds   int        `json:"currentRemainingSeconds"`
	ServerTime                time.Time  `json:"serverTime"`
}

func NewSessionService(repo *repository.SessionRepository, events event.Publisher, policy Policy) *SessionService {
	if events == nil {
		events = event.NopPublisher{}
	}
	if policy.LongBreakEvery <= 0 {
		policy.LongBreakEvery = 4
	}
	return &SessionService{repo: repo, events: events, policy: policy}
}

func (s *SessionService) Create(ctx context.Context, ownerID string, input CreateSessionInput) (*model.Session, *apperrors.APIError) {
	if input.WorkDurationSeconds <= 0 || input.ShortBreakDurationSeconds <= 0 || input.LongBreakDurationSeconds <= 0 {
		return nil, apperrors.BadRequest("invalid_duration", "all durations must be positive seconds")
	}
	if input.TotalCycles <= 0 {
		return nil, apperrors.BadRequest("invalid_cycles", "totalCycles must be positive")
	}

	now := time.Now().UTC()
	session := &model.Session{
		ID:                        uuid.NewString(),
		OwnerID:                   ownerID,
		State:                     model.StateIdle,
		WorkDurationSeconds:       input.WorkDurationSeconds,
		ShortBreakDurationSeconds: input.ShortBreakDurationSeconds,
		LongBreakDurationSeconds:  input.LongBreakDurationSeconds,
		TotalCycles:               input.TotalCycles,
		CurrentCycle:              0,
		RemainingSeconds:          0,
		Version:                   1,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}

	if err := s.repo.Insert(ctx, session); err != nil {
		return nil, apperrors.Internal("failed to create session")
	}
	return session, nil
}

func (s *SessionService) CreateDefault(ctx context.Context, ownerID string) (*model.Session, *apperrors.APIError) {
	return s.Create(ctx, ownerID, CreateSessionInput{
		WorkDurationSeconds:       s.policy.DefaultWorkSeconds,
		ShortBreakDurationSeconds: s.policy.DefaultShortBreakSeconds,
		LongBreakDurationSeconds:  s.policy.DefaultLongBreakSeconds,
		TotalCycles:               s.policy.DefaultTotalCycles,
	})
}

func (s *SessionService) Start(ctx context.Context, ownerID, sessionID string) (*model.Session, *apperrors.APIError) {
	now := time.Now().UTC()
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to start transaction")
	}
	defer tx.Rollback()

	session, pending, apiErr := s.getOwnedForUpdate(ctx, tx, ownerID, sessionID, now)
	if apiErr != nil {
		return nil, apiErr
	}

	if session.Active() {
		// Retried start for the session that already holds the
		// single-flight slot: report the current state, no double
		// effect.
		if commitErr := tx.Commit(); commitErr != nil {
			return nil, apperrors.Internal("failed to commit transaction")
		}
		s.publish(pending)
		return session, nil
	}

	active, err := s.repo.FindActiveByOwnerTx(ctx, tx, ownerID)
	if err != nil && err != repository.ErrNotFound {
		return nil, apperrors.Internal("failed to check active sessions")
	}
	if err == nil && active.ID != session.ID {
		// The blocking session may only look active because nobody has
		// touched it since its final phase lapsed. Settle it first; a
		// session that settles to finished holds no slot.
		settled, apiErr := s.advanceDuePhases(ctx, tx, active, now)
		if apiErr != nil {
			return nil, apiErr
		}
		if active.Active() {
			return nil, apperrors.Conflict("active_session_exists", "another session is already running", map[string]interface{}{
				"activeSessionId": active.ID,
			})
		}
		pending = append(pending, settled...)
	}

	if session.State != model.StateIdle {
		return nil, apperrors.InvalidState("session must be idle to start; reset it first")
	}

	session.State = model.StateWorking
	session.CurrentCycle = 1
	session.StartedAt = &now
	session.LastResumedAt = &now
	endsAt := now.Add(time.Duration(session.WorkDurationSeconds) * time.Second)
	session.EndsAt = &endsAt
	session.RemainingSeconds = session.WorkDurationSeconds
	session.PausedState = nil
	session.UpdatedAt = now

	if apiErr := s.persist(ctx, tx, session); apiErr != nil {
		return nil, apiErr
	}
	if commitErr := tx.Commit(); commitErr != nil {
		return nil, apperrors.Internal("failed to commit transaction")
	}

	pending = append(pending, event.Event{
		Type:      event.TypeSessionStarted,
		OwnerID:   session.OwnerID,
		SessionID: session.ID,
		Cycle:     session.CurrentCycle,
	})
	s.publish(pending)
	return session, nil
}

func (s *SessionService) Pause(ctx context.Context, ownerID, sessionID string) (*model.Session, *apperrors.APIError) {
	now := time.Now().UTC()
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to start transaction")
	}
	defer tx.Rollback()

	session, pending, apiErr := s.getOwnedForUpdate(ctx, tx, ownerID, sessionID, now)
	if apiErr != nil {
		return nil, apiErr
	}

	if !session.Running() {
		return nil, apperrors.InvalidState("only a running session can be paused")
	}

	remaining := 0
	if session.EndsAt != nil {
		remaining = int(session.EndsAt.Sub(now).Seconds())
		if remaining < 0 {
			remaining = 0
		}
	}

	pausedState := session.State
	session.RemainingSeconds = remaining
	session.PausedState = &pausedState
	session.State = model.StatePaused
	session.LastResumedAt = nil
	session.EndsAt = nil
	session.UpdatedAt = now

	if apiErr := s.persist(ctx, tx, session); apiErr != nil {
		return nil, apiErr
	}
	if commitErr := tx.Commit(); commitErr != nil {
		return nil, apperrors.Internal("failed to commit transaction")
	}

	s.publish(pending)
	return session, nil
}

func (s *SessionService) Resume(ctx context.Context, ownerID, sessionID string) (*model.Session, *apperrors.APIError) {
	now := time.Now().UTC()
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to start transaction")
	}
	defer tx.Rollback()

	session, pending, apiErr := s.getOwnedForUpdate(ctx, tx, ownerID, sessionID, now)
	if apiErr != nil {
		return nil, apiErr
	}

	if session.State != model.StatePaused {
		return nil, apperrors.InvalidState("only a paused session can be resumed")
	}

	resumedState := model.StateWorking
	if session.PausedState != nil {
		resumedState = *session.PausedState
	}

	session.State = resumedState
	session.PausedState = nil
	session.LastResumedAt = &now
	endsAt := now.Add(time.Duration(session.RemainingSeconds) * time.Second)
	session.EndsAt = &endsAt
	session.UpdatedAt = now

	if apiErr := s.persist(ctx, tx, session); apiErr != nil {
		return nil, apiErr
	}
	if commitErr := tx.Commit(); commitErr != nil {
		return nil, apperrors.Internal("failed to commit transaction")
	}

	s.publish(pending)
	return session, nil
}

func (s *SessionService) Stop(ctx context.Context, ownerID, sessionID string) (*model.Session, *apperrors.APIError) {
	return s.halt(ctx, ownerID, sessionID, false)
}

// Reset is Stop plus a full progress wipe back to cycle zero.
func (s *SessionService) Reset(ctx context.Context, ownerID, sessionID string) (*model.Session, *apperrors.APIError) {
	return s.halt(ctx, ownerID, sessionID, true)
}

func (s *SessionService) halt(ctx context.Context, ownerID, sessionID string, resetCycles bool) (*model.Session, *apperrors.APIError) {
	now := time.Now().UTC()
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to start transaction")
	}
	defer tx.Rollback()

	session, pending, apiErr := s.getOwnedForUpdate(ctx, tx, ownerID, sessionID, now)
	if apiErr != nil {
		return nil, apiErr
	}

	wasActive := session.Active()

	session.State = model.StateIdle
	session.StartedAt = nil
	session.EndsAt = nil
	session.RemainingSeconds = 0
	session.LastResumedAt = nil
	session.PausedState = nil
	if resetCycles {
		session.CurrentCycle = 0
	}
	session.UpdatedAt = now

	if apiErr := s.persist(ctx, tx, session); apiErr != nil {
		return nil, apiErr
	}
	if commitErr := tx.Commit(); commitErr != nil {
		return nil, apperrors.Internal("failed to commit transaction")
	}

	if wasActive {
		pending = append(pending, event.Event{
			Type:      event.TypeSessionStopped,
			OwnerID:   session.OwnerID,
			SessionID: session.ID,
			Cycle:     session.CurrentCycle,
		})
	}
	s.publish(pending)
	return session, nil
}

// Share marks the session joinable read-only by other users and
// returns the sanitized snapshot. Timer state is untouched.
func (s *SessionService) Share(ctx context.Context, ownerID, sessionID string) (*SnapshotView, *apperrors.APIError) {
	now := time.Now().UTC()
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to start transaction")
	}
	defer tx.Rollback()

	session, pending, apiErr := s.getOwnedForUpdate(ctx, tx, ownerID, sessionID, now)
	if apiErr != nil {
		return nil, apiErr
	}

	if !session.Shared {
		session.Shared = true
		session.UpdatedAt = now
		if apiErr := s.persist(ctx, tx, session); apiErr != nil {
			return nil, apiErr
		}
	}
	if commitErr := tx.Commit(); commitErr != nil {
		return nil, apperrors.Internal("failed to commit transaction")
	}

	s.publish(pending)
	view := s.Snapshot(session, time.Now().UTC())
	return &view, nil
}

// FindOne loads an owned session, settling any overdue phase on the
// way so callers always observe post-advance state.
func (s *SessionService) FindOne(ctx context.Context, ownerID, sessionID string) (*model.Session, *apperrors.APIError) {
	now := time.Now().UTC()
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to start transaction")
	}
	defer tx.Rollback()

	session, pending, apiErr := s.getOwnedForUpdate(ctx, tx, ownerID, sessionID, now)
	if apiErr != nil {
		return nil, apiErr
	}
	if commitErr := tx.Commit(); commitErr != nil {
		return nil, apperrors.Internal("failed to commit transaction")
	}

	s.publish(pending)
	return session, nil
}

// FindWorking returns the owner's active session, or nil when the
// owner has none. A session whose final phase expired in the meantime
// is settled to finished and reported as none.
func (s *SessionService) FindWorking(ctx context.Context, ownerID string) (*model.Session, *apperrors.APIError) {
	now := time.Now().UTC()
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to start transaction")
	}
	defer tx.Rollback()

	session, err := s.repo.FindActiveByOwnerTx(ctx, tx, ownerID)
	if err == repository.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Internal("failed to find active session")
	}

	pending, apiErr := s.advanceDuePhases(ctx, tx, session, now)
	if apiErr != nil {
		return nil, apiErr
	}
	if commitErr := tx.Commit(); commitErr != nil {
		return nil, apperrors.Internal("failed to commit transaction")
	}

	s.publish(pending)
	if !session.Active() {
		return nil, nil
	}
	return session, nil
}

// FindAllNotIdle lists the owner's sessions in any state other than
// idle, newest first.
func (s *SessionService) FindAllNotIdle(ctx context.Context, ownerID string, limit int) ([]model.Session, *apperrors.APIError) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	// Settle the at-most-one running session first so the listing
	// never shows a phase that has already lapsed.
	if _, apiErr := s.FindWorking(ctx, ownerID); apiErr != nil {
		return nil, apiErr
	}

	sessions, err := s.repo.ListNotIdle(ctx, ownerID, limit)
	if err != nil {
		return nil, apperrors.Internal("failed to list sessions")
	}
	return sessions, nil
}

func (s *SessionService) Delete(ctx context.Context, ownerID, sessionID string) *apperrors.APIError {
	session, err := s.repo.Get(ctx, sessionID)
	if err == repository.ErrNotFound {
		return apperrors.NotFound("session_not_found", "session not found")
	}
	if err != nil {
		return apperrors.Internal("failed to load session")
	}
	if session.OwnerID != ownerID {
		return apperrors.Forbidden("session belongs to another user")
	}

	if err := s.repo.Delete(ctx, sessionID); err != nil {
		if err == repository.ErrNotFound {
			return apperrors.NotFound("session_not_found", "session not found")
		}
		return apperrors.Internal("failed to delete session")
	}
	return nil
}

// AdvanceDue settles every running session whose phase end has passed
// and returns the settled records, for the periodic sweep to
// broadcast. Races with concurrent commands are resolved by the
// version guard; a lost race just skips that session.
func (s *SessionService) AdvanceDue(ctx context.Context) ([]model.Session, *apperrors.APIError) {
	now := time.Now().UTC()
	due, err := s.repo.ListDue(ctx, now)
	if err != nil {
		return nil, apperrors.Internal("failed to list due sessions")
	}

	advanced := make([]model.Session, 0, len(due))
	for _, stale := range due {
		tx, err := s.repo.BeginTx(ctx)
		if err != nil {
			return advanced, apperrors.Internal("failed to start transaction")
		}

		session, err := s.repo.GetTx(ctx, tx, stale.ID)
		if err != nil {
			_ = tx.Rollback()
			continue
		}

		pending, apiErr := s.advanceDuePhases(ctx, tx, session, now)
		if apiErr != nil {
			_ = tx.Rollback()
			continue
		}
		if len(pending) == 0 {
			_ = tx.Rollback()
			continue
		}
		if commitErr := tx.Commit(); commitErr != nil {
			continue
		}

		s.publish(pending)
		advanced = append(advanced, *session)
	}
	return advanced, nil
}

// CurrentRemaining reconstructs the live remaining seconds from the
// persisted snapshot and wall clocks. It is presentation-only and may
// be negative for a phase that expired but has not been advanced yet.
func (s *SessionService) CurrentRemaining(session *model.Session, now time.Time) int {
	if session.LastResumedAt == nil {
		return session.RemainingSeconds
	}
	elapsed := int(now.Sub(*session.LastResumedAt).Seconds())
	return session.RemainingSeconds - elapsed
}

func (s *SessionService) Snapshot(session *model.Session, now time.Time) SnapshotView {
	return SnapshotView{
		ID:                        session.ID,
		State:                     session.State,
		CurrentCycle:              session.CurrentCycle,
		WorkDurationSeconds:       session.WorkDurationSeconds,
		ShortBreakDurationSeconds: session.ShortBreakDurationSeconds,
		LongBreakDurationSeconds:  session.LongBreakDurationSeconds,
		TotalCycles:               session.TotalCycles,
		StartedAt:                 session.StartedAt,
		EndsAt:                    session.EndsAt,
		RemainingSeconds:          session.RemainingSeconds,
		PausedState:               session.PausedState,
		LinkedTaskID:              session.LinkedTaskID,
		Shared:                    session.Shared,
		CurrentRemainingSeconds:   s.CurrentRemaining(session, now),
		ServerTime:                now,
	}
}

// SharedSnapshot resolves a snapshot for a non-owner viewer; only
// explicitly shared sessions are visible.
func (s *SessionService) SharedSnapshot(ctx context.Context, sessionID string) (*SnapshotView, *apperrors.APIError) {
	session, err := s.repo.Get(ctx, sessionID)
	if err == repository.ErrNotFound {
		return nil, apperrors.NotFound("session_not_found", "session not found")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to load session")
	}
	if !session.Shared {
		return nil, apperrors.Forbidden("session is not shared")
	}
	view := s.Snapshot(session, time.Now().UTC())
	return &view, nil
}

func (s *SessionService) getOwnedForUpdate(ctx context.Context, tx *sql.Tx, ownerID, sessionID string, now time.Time) (*model.Session, []event.Event, *apperrors.APIError) {
	session, err := s.repo.GetTx(ctx, tx, sessionID)
	if err == repository.ErrNotFound {
		return nil, nil, apperrors.NotFound("session_not_found", "session not found")
	}
	if err != nil {
		return nil, nil, apperrors.Internal("failed to load session")
	}
	if session.OwnerID != ownerID {
		return nil, nil, apperrors.Forbidden("session belongs to another user")
	}

	pending, apiErr := s.advanceDuePhases(ctx, tx, session, now)
	if apiErr != nil {
		return nil, nil, apiErr
	}
	return session, pending, nil
}

// advanceDuePhases settles every phase whose scheduled end has passed,
// anchoring each successor phase at the previous phase's scheduled end
// so a session untouched across several phases catches up to the
// correct one. Calling it on a session that is not overdue is a no-op.
func (s *SessionService) advanceDuePhases(ctx context.Context, tx *sql.Tx, session *model.Session, now time.Time) ([]event.Event, *apperrors.APIError) {
	var pending []event.Event

	for session.Running() && session.EndsAt != nil && !now.Before(*session.EndsAt) {
		at := session.EndsAt.UTC()
		pending = append(pending, event.Event{
			Type:      event.TypePhaseCompleted,
			OwnerID:   session.OwnerID,
			SessionID: session.ID,
			Cycle:     session.CurrentCycle,
		})

		next := s.nextPhase(session)
		if next == model.StateFinished {
			session.State = model.StateFinished
			session.EndsAt = nil
			session.RemainingSeconds = 0
			session.LastResumedAt = nil
			session.UpdatedAt = now
			pending = append(pending, event.Event{
				Type:      event.TypeSessionFinished,
				OwnerID:   session.OwnerID,
				SessionID: session.ID,
				Cycle:     session.CurrentCycle,
			})
			break
		}

		if next == model.StateWorking {
			session.CurrentCycle++
		}
		duration := session.PhaseDurationSeconds(next)
		endsAt := at.Add(time.Duration(duration) * time.Second)
		session.State = next
		session.StartedAt = &at
		session.LastResumedAt = &at
		session.EndsAt = &endsAt
		session.RemainingSeconds = duration
		session.UpdatedAt = now
	}

	if len(pending) == 0 {
		return nil, nil
	}
	if apiErr := s.persist(ctx, tx, session); apiErr != nil {
		return nil, apiErr
	}
	return pending, nil
}

func (s *SessionService) nextPhase(session *model.Session) string {
	if session.State == model.StateWorking {
		if session.CurrentCycle >= session.TotalCycles {
			return model.StateFinished
		}
		if session.CurrentCycle%s.policy.LongBreakEvery == 0 {
			return model.StateLongBreak
		}
		return model.StateShortBreak
	}

	// Break phases.
	if session.CurrentCycle >= session.TotalCycles {
		return model.StateFinished
	}
	return model.StateWorking
}

func (s *SessionService) persist(ctx context.Context, tx *sql.Tx, session *model.Session) *apperrors.APIError {
	if err := s.repo.UpdateTx(ctx, tx, session); err != nil {
		if err == repository.ErrStaleVersion {
			return apperrors.Conflict("state_conflict", "session was modified concurrently", nil)
		}
		return apperrors.Internal("failed to update session")
	}
	return nil
}

func (s *SessionService) publish(events []event.Event) {
	for _, evt := range events {
		s.events.Publish(evt)
	}
}
