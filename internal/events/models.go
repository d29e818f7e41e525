package events

import (
	"encoding/json"
	"time"
)

// EventType identifies what a signal event describes.
// The call-* values are emitted by the signaling service on state
// transitions; anything else is treated as a custom application event.
type EventType string

const (
	EventTypeInitiateCall  EventType = "initiate-call"
	EventTypeCallAccepted  EventType = "call-accepted"
	EventTypeCallRejected  EventType = "call-rejected"
	EventTypeCallEnded     EventType = "call-ended"
	EventTypeCallConnected EventType = "call-connected"
)

// IsCallEvent reports whether t is one of the fixed call-lifecycle types.
func (t EventType) IsCallEvent() bool {
	switch t {
	case EventTypeInitiateCall, EventTypeCallAccepted, EventTypeCallRejected, EventTypeCallEnded, EventTypeCallConnected:
		return true
	default:
		return false
	}
}

// CallPayload is a snapshot of a call session at the moment an event was
// emitted. It is a copy, not a reference: later transitions never mutate
// an already-appended event.
type CallPayload struct {
	CallID        string    `json:"call_id"`
	CallerID      string    `json:"caller_id"`
	CallerName    string    `json:"caller_name"`
	CalleeID      string    `json:"callee_id"`
	CalleeName    string    `json:"callee_name"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	ChannelName   string    `json:"channel_name"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// Payload is a tagged union over the supported event types: call events
// carry a session snapshot, custom events carry raw JSON.
// Exactly one side should be set.
type Payload struct {
	Call *CallPayload    `json:"call,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SignalEvent is a single notification destined for one recipient.
//
// Sequence is the per-recipient poll cursor: strictly increasing, assigned
// atomically by the store at append time. There is no ordering relationship
// between sequences of different recipients.
type SignalEvent struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipient_id"`
	Sequence    int64     `json:"sequence"`
	Type        EventType `json:"event_type"`
	Payload     Payload   `json:"payload"`
	CreatedAt   time.Time `json:"created_at"`
}
