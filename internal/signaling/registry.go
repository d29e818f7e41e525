package signaling

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("signaling: call not found")
	ErrInvalidArgument = errors.New("signaling: invalid argument")
)

// Registry maps active call ids to their session state.
//
// Writes are keyed by call_id only; no cross-session locking exists or is
// needed. SetStatus is deliberately last-writer-wins: the service layer
// turns benign races into no-ops rather than surfacing registry conflicts.
type Registry interface {
	Create(ctx context.Context, s CallSession) error
	Get(ctx context.Context, callID string) (CallSession, bool, error)

	// SetStatus overwrites Status (and UpdatedAt) for callID.
	// Returns ErrNotFound if no session exists.
	SetStatus(ctx context.Context, callID string, to Status, now time.Time) (CallSession, error)

	// Acknowledge marks the callee-side incoming notification consumed.
	Acknowledge(ctx context.Context, callID string) error

	// ListUnacknowledgedRinging returns pending incoming calls for a callee,
	// oldest first.
	ListUnacknowledgedRinging(ctx context.Context, calleeID string) ([]CallSession, error)

	// ListRingingBefore returns sessions still ringing that were created
	// before cutoff (ring-timeout sweep).
	ListRingingBefore(ctx context.Context, cutoff time.Time) ([]CallSession, error)

	// PurgeTerminalBefore removes terminal sessions last updated before
	// cutoff and reports how many were dropped.
	PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
}
