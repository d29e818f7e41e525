package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records call lifecycle history.
//
// Audit is internal-only and best-effort: callers log append failures and
// carry on; a failed audit write never fails the signaling operation.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.CallID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogTransition records a status change on a call session.
func (s *Service) LogTransition(ctx context.Context, callID, actorUserID, fromStatus, toStatus, message string) error {
	t := EventTypeCallTransition
	if fromStatus == "" {
		t = EventTypeCallInitiated
	}
	return s.Append(ctx, Event{
		Type:        t,
		CallID:      callID,
		ActorUserID: actorUserID,
		FromStatus:  fromStatus,
		ToStatus:    toStatus,
		Message:     message,
	})
}
