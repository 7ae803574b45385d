// Package event carries session lifecycle notifications to interested
// collaborators without the engine knowing who they are.
package event

type Type string

const (
	TypeSessionStarted  Type = "session.started"
	TypePhaseCompleted  Type = "session.phaseCompleted"
	TypeSessionFinished Type = "session.finished"
	TypeSessionStopped  Type = "session.stopped"
)

// Event is a complete, self-sufficient notification; subscribers never
// need to query back for context.
type Event struct {
	Type      Type   `json:"type"`
	OwnerID   string `json:"ownerId"`
	SessionID string `json:"sessionId"`
	Cycle     int    `json:"cycle"`
}

// Publisher is the sink contract the engine emits into. Delivery and
// subscription are entirely the implementation's concern.
type Publisher interface {
	Publish(evt Event)
}

// NopPublisher drops every event. Useful in tests and as a default.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}
