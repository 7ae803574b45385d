package model

import "time"

const (
	StateIdle       = "idle"
	StateWorking    = "working"
	StateShortBreak = "short_break"
	StateLongBreak  = "long_break"
	StatePaused     = "paused"
	StateFinished   = "finished"
)

const (
	DefaultWorkDurationSeconds       = 25 * 60
	DefaultShortBreakDurationSeconds = 5 * 60
	DefaultLongBreakDurationSeconds  = 15 * 60
	DefaultTotalCycles               = 4
)

// Session is the authoritative record for one focus-cycle timer.
// Timing truth is remainingSeconds plus lastResumedAt; everything a
// client displays is derived from those two at read time.
type Session struct {
	ID                        string     `json:"id"`
	OwnerID                   string     `json:"ownerId"`
	State                     string     `json:"state"`
	WorkDurationSeconds       int        `json:"workDurationSeconds"`
	ShortBreakDurationSeconds int        `json:"shortBreakDurationSeconds"`
	LongBreakDurationSeconds  int        `json:"longBreakDurationSeconds"`
	TotalCycles               int        `json:"totalCycles"`
	CurrentCycle              int        `json:"currentCycle"`
	StartedAt                 *time.Time `json:"startedAt,omitempty"`
	EndsAt                    *time.Time `json:"endsAt,omitempty"`
	RemainingSeconds          int        `json:"remainingSeconds"`
	LastResumedAt             *time.Time `json:"lastResumedAt,omitempty"`
	PausedState               *string    `json:"pausedState,omitempty"`
	LinkedTaskID              *string    `json:"linkedTaskId,omitempty"`
	Shared                    bool       `json:"shared"`
	Version                   int        `json:"version"`
	CreatedAt                 time.Time  `json:"createdAt"`
	UpdatedAt                 time.Time  `json:"updatedAt"`
}

// Running reports whether the session is in an actively ticking phase.
func (s *Session) Running() bool {
	switch s.State {
	case StateWorking, StateShortBreak, StateLongBreak:
		return true
	default:
		return false
	}
}

// Active reports whether the session counts against the one-active-
// session-per-owner rule.
func (s *Session) Active() bool {
	return s.State != StateIdle && s.State != StateFinished
}

func (s *Session) PhaseDurationSeconds(state string) int {
	switch state {
	case StateShortBreak:
		return s.ShortBreakDurationSeconds
	case StateLongBreak:
		return s.LongBreakDurationSeconds
	default:
		return s.WorkDurationSeconds
	}
}

func IsValidState(state string) bool {
	switch state {
	case StateIdle, StateWorking, StateShortBreak, StateLongBreak, StatePaused, StateFinished:
		return true
	default:
		return false
	}
}
