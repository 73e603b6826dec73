package core

import "time"

// EventType names an auth event published for other instances and audit consumers
type EventType string

const (
	EventPinVerified      EventType = "pin.verified"
	EventPinFailed        EventType = "pin.failed"
	EventPinRejected      EventType = "pin.rejected" // malformed and not counted
	EventPinLocked        EventType = "pin.locked"
	EventSessionRotated   EventType = "session.rotated"
	EventReplayRejected   EventType = "session.replay_rejected"
	EventSessionLoggedOut EventType = "session.logout"
)

// Event is a single auth event. TokenID is a jti, never a raw token.
type Event struct {
	Type       EventType `json:"type"`
	Identity   string    `json:"identity"`
	TokenID    string    `json:"token_id,omitempty"`
	Source     string    `json:"source,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
