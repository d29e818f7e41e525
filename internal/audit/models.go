package audit

import "time"

type EventType string

const (
	EventTypeCallInitiated  EventType = "call_initiated"
	EventTypeCallTransition EventType = "call_transition"
	EventTypeCallExpired    EventType = "call_expired"
)

// Event is one append-only audit record of a call lifecycle action.
// Statuses are plain strings to keep this package free of domain imports.
type Event struct {
	ID     string    `json:"id" db:"id"`
	Type   EventType `json:"type" db:"type"`
	CallID string    `json:"call_id" db:"call_id"`

	ActorUserID string `json:"actor_user_id" db:"actor_user_id"`

	FromStatus string `json:"from_status,omitempty" db:"from_status"`
	ToStatus   string `json:"to_status,omitempty" db:"to_status"`

	Message  string `json:"message,omitempty" db:"message"`
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
