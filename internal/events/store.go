package events

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidArgument = errors.New("events: invalid argument")

// Store is the per-recipient signal event log.
//
// Delivery contract: at-least-once, ordered per recipient. Poll with a
// strictly increasing cursor never returns the same event twice; a consumer
// that restarts from zero accepts redelivery and must be idempotent.
// Append is the only mutating operation besides deletion; an appended event
// is immutable.
type Store interface {
	// Append assigns the next sequence for recipientID and stores the event.
	Append(ctx context.Context, recipientID string, eventType EventType, payload Payload) (SignalEvent, error)

	// Poll returns all events for recipientID with sequence > since, ordered
	// by sequence ascending. A cursor beyond the end yields an empty slice,
	// not an error.
	Poll(ctx context.Context, recipientID string, since int64) ([]SignalEvent, error)

	// Ack deletes consumed events with sequence <= upTo. Acking is optional;
	// retention bounds growth either way.
	Ack(ctx context.Context, recipientID string, upTo int64) error

	// PurgeBefore drops events created before cutoff. Implementations whose
	// storage expires entries on its own may treat this as a no-op.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int, error)
}
