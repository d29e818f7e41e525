package signaling

import "time"

// Status is the call-session lifecycle state.
//
// ringing -> {accepted, rejected, ended}
// accepted -> {connected, ended}
// connected -> ended
// rejected and ended are terminal.
type Status string

const (
	StatusRinging   Status = "ringing"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusConnected Status = "connected"
	StatusEnded     Status = "ended"
)

func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusEnded
}

// CanTransition reports whether moving from -> to is a legal state-machine
// step. Transitions are monotonic: nothing ever goes back to ringing.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusRinging:
		return to == StatusAccepted || to == StatusRejected || to == StatusEnded
	case StatusAccepted:
		return to == StatusConnected || to == StatusEnded
	case StatusConnected:
		return to == StatusEnded
	default:
		return false
	}
}

// CallSession is one coordination attempt between a caller and a callee.
//
// Invariants:
// - ChannelName is immutable once set; both participants join the same
//   media channel under this name.
// - Exactly one session exists per CallID.
// - Status moves per CanTransition only; concurrent conflicting writes
//   resolve last-writer-wins on Status.
type CallSession struct {
	CallID        string `json:"call_id" db:"call_id"`
	CallerID      string `json:"caller_id" db:"caller_id"`
	CallerName    string `json:"caller_name" db:"caller_name"`
	CalleeID      string `json:"callee_id" db:"callee_id"`
	CalleeName    string `json:"callee_name" db:"callee_name"`
	AppointmentID string `json:"appointment_id,omitempty" db:"appointment_id"`

	ChannelName string `json:"channel_name" db:"channel_name"`
	Status      Status `json:"status" db:"status"`

	// Acknowledged marks the incoming-call notification as seen by the
	// callee (the notify-incoming-call path). It never affects Status.
	Acknowledged bool `json:"acknowledged" db:"acknowledged"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// OtherParticipant returns the participant id opposite to userID, or empty
// if userID is not part of the session.
func (s CallSession) OtherParticipant(userID string) string {
	switch userID {
	case s.CallerID:
		return s.CalleeID
	case s.CalleeID:
		return s.CallerID
	default:
		return ""
	}
}
