package signaling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telehealth-signaling/internal/audit"
	"telehealth-signaling/internal/directory"
	"telehealth-signaling/internal/events"
	"telehealth-signaling/pkg/logger"

	"github.com/google/uuid"
)

var (
	// ErrInvalidRecipient means the callee could not be resolved at
	// initiate time. Surfaced to the initiating user.
	ErrInvalidRecipient = errors.New("signaling: callee cannot be resolved")

	// ErrActiveCallLimit means the caller already has the maximum number
	// of ringing calls outstanding.
	ErrActiveCallLimit = errors.New("signaling: too many concurrent ringing calls")
)

// SystemActor marks transitions performed by the service itself (janitor
// ring-timeout expiry) rather than a participant.
const SystemActor = "system"

// Service owns all writes to the call registry and the event store.
// Handlers and pollers are read-only consumers.
//
// Race policy: conflicting concurrent transitions resolve last-writer-wins
// on status; any action against a terminal or unknown call id is a warned
// no-op, never an error surfaced to the user.
type Service struct {
	registry Registry
	store    events.Store
	dir      directory.Directory

	// gate and auditor are optional; nil disables the concern.
	gate    CallGate
	auditor *audit.Service

	clock func() time.Time
}

func NewService(registry Registry, store events.Store, dir directory.Directory) *Service {
	return &Service{
		registry: registry,
		store:    store,
		dir:      dir,
		clock:    time.Now,
	}
}

// WithGate installs a per-caller ringing-call cap.
func (s *Service) WithGate(g CallGate) *Service {
	s.gate = g
	return s
}

// WithAudit installs best-effort lifecycle auditing.
func (s *Service) WithAudit(a *audit.Service) *Service {
	s.auditor = a
	return s
}

type InitiateCallRequest struct {
	CallerID      string `json:"caller_id"`
	CallerName    string `json:"caller_name"`
	CalleeID      string `json:"callee_id"`
	CalleeName    string `json:"callee_name"`
	AppointmentID string `json:"appointment_id,omitempty"`

	// ChannelName is caller-generated; if empty the service generates a
	// time-based unique name. Immutable for the life of the session.
	ChannelName string `json:"channel_name,omitempty"`
}

// TransitionResult reports whether a requested transition was applied.
// Applied=false means the action hit a terminal or unknown session and was
// recovered as a no-op.
type TransitionResult struct {
	Applied bool        `json:"applied"`
	Session CallSession `json:"session"`
}

func (s *Service) InitiateCall(ctx context.Context, req InitiateCallRequest) (CallSession, error) {
	if req.CallerID == "" || req.CalleeID == "" {
		return CallSession{}, ErrInvalidArgument
	}
	if req.CallerID == req.CalleeID {
		return CallSession{}, ErrInvalidArgument
	}

	callee, ok, err := s.dir.Resolve(ctx, req.CalleeID)
	if err != nil {
		return CallSession{}, fmt.Errorf("signaling: resolve callee: %w", err)
	}
	if !ok {
		return CallSession{}, ErrInvalidRecipient
	}
	if req.CalleeName == "" {
		req.CalleeName = callee.DisplayName
	}
	if req.CallerName == "" {
		if caller, ok, err := s.dir.Resolve(ctx, req.CallerID); err == nil && ok {
			req.CallerName = caller.DisplayName
		}
	}

	if s.gate != nil {
		acquired, err := s.gate.Acquire(ctx, req.CallerID)
		if err != nil {
			// Gate trouble is a transport problem, not a user error.
			// Fail open so a degraded Redis never blocks calls.
			logger.From(ctx).Warn("call gate unavailable, admitting call", "caller_id", req.CallerID, "err", err)
		} else if !acquired {
			return CallSession{}, ErrActiveCallLimit
		}
	}

	now := s.clock().UTC()
	sess := CallSession{
		CallID:        uuid.NewString(),
		CallerID:      req.CallerID,
		CallerName:    req.CallerName,
		CalleeID:      req.CalleeID,
		CalleeName:    req.CalleeName,
		AppointmentID: req.AppointmentID,
		ChannelName:   req.ChannelName,
		Status:        StatusRinging,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if sess.ChannelName == "" {
		sess.ChannelName = generateChannelName(now)
	}

	if err := s.registry.Create(ctx, sess); err != nil {
		s.releaseGate(ctx, sess.CallerID)
		return CallSession{}, fmt.Errorf("signaling: create session: %w", err)
	}

	if _, err := s.store.Append(ctx, sess.CalleeID, events.EventTypeInitiateCall, callPayload(sess)); err != nil {
		s.releaseGate(ctx, sess.CallerID)
		return CallSession{}, fmt.Errorf("signaling: notify callee: %w", err)
	}

	s.logAudit(ctx, sess.CallID, req.CallerID, "", StatusRinging, "call placed")
	return sess, nil
}

// AcceptCall moves a ringing session to accepted and notifies the caller.
// The callee then requests its own media token and joins the channel.
func (s *Service) AcceptCall(ctx context.Context, callID, accepterID string) (TransitionResult, error) {
	return s.transition(ctx, callID, accepterID, StatusAccepted, events.EventTypeCallAccepted)
}

// RejectCall moves a ringing session to rejected and notifies the caller.
func (s *Service) RejectCall(ctx context.Context, callID, rejecterID string) (TransitionResult, error) {
	return s.transition(ctx, callID, rejecterID, StatusRejected, events.EventTypeCallRejected)
}

// EndCall ends a session from any non-terminal state and notifies the
// other participant.
func (s *Service) EndCall(ctx context.Context, callID, enderID string) (TransitionResult, error) {
	return s.transition(ctx, callID, enderID, StatusEnded, events.EventTypeCallEnded)
}

// MarkConnected records that media is flowing on an accepted session.
// Purely observational; signaling correctness does not depend on it.
func (s *Service) MarkConnected(ctx context.Context, callID, actorID string) (TransitionResult, error) {
	return s.transition(ctx, callID, actorID, StatusConnected, events.EventTypeCallConnected)
}

func (s *Service) transition(ctx context.Context, callID, actorID string, to Status, evType events.EventType) (TransitionResult, error) {
	if callID == "" || actorID == "" {
		return TransitionResult{}, ErrInvalidArgument
	}

	log := logger.From(ctx)

	sess, ok, err := s.registry.Get(ctx, callID)
	if err != nil {
		return TransitionResult{}, fmt.Errorf("signaling: load session: %w", err)
	}
	if !ok {
		log.Warn("transition on unknown call, ignoring", "call_id", callID, "to", to, "actor", actorID)
		return TransitionResult{}, nil
	}
	if !CanTransition(sess.Status, to) {
		// Benign race: the session moved on (e.g. caller hung up before
		// the callee's accept arrived). Tolerate, don't fail.
		log.Warn("stale transition, ignoring",
			"call_id", callID, "from", sess.Status, "to", to, "actor", actorID)
		return TransitionResult{Session: sess}, nil
	}

	from := sess.Status
	updated, err := s.registry.SetStatus(ctx, callID, to, s.clock().UTC())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Warn("call vanished during transition, ignoring", "call_id", callID, "to", to)
			return TransitionResult{}, nil
		}
		return TransitionResult{}, fmt.Errorf("signaling: set status: %w", err)
	}

	if from == StatusRinging {
		s.releaseGate(ctx, updated.CallerID)
	}

	for _, rid := range s.eventRecipients(updated, actorID) {
		if _, err := s.store.Append(ctx, rid, evType, callPayload(updated)); err != nil {
			// The registry is already updated; the recipient will learn the
			// state from the notify path or a restarted poll.
			log.Warn("event append failed", "call_id", callID, "recipient", rid, "err", err)
		}
	}

	s.logAudit(ctx, callID, actorID, from, to, "")
	return TransitionResult{Applied: true, Session: updated}, nil
}

// eventRecipients picks who must hear about a transition: the participant
// opposite the actor, or both participants for non-participant actors
// (janitor expiry).
func (s *Service) eventRecipients(sess CallSession, actorID string) []string {
	if other := sess.OtherParticipant(actorID); other != "" {
		return []string{other}
	}
	return []string{sess.CallerID, sess.CalleeID}
}

// ListPendingCalls returns unacknowledged ringing calls for a recipient,
// the notify-incoming-call projection of the registry.
func (s *Service) ListPendingCalls(ctx context.Context, recipientID string) ([]CallSession, error) {
	if recipientID == "" {
		return nil, ErrInvalidArgument
	}
	return s.registry.ListUnacknowledgedRinging(ctx, recipientID)
}

// AcknowledgePendingCall removes one pending incoming-call notification.
// It never changes session status; a missing or already-moved call is a
// harmless no-op.
func (s *Service) AcknowledgePendingCall(ctx context.Context, recipientID, callID string) error {
	if recipientID == "" || callID == "" {
		return ErrInvalidArgument
	}

	sess, ok, err := s.registry.Get(ctx, callID)
	if err != nil {
		return fmt.Errorf("signaling: load session: %w", err)
	}
	if !ok {
		return nil
	}
	if sess.CalleeID != recipientID {
		return ErrInvalidArgument
	}
	if err := s.registry.Acknowledge(ctx, callID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return fmt.Errorf("signaling: acknowledge: %w", err)
	}
	return nil
}

// ExpireRinging ends calls left ringing since before cutoff, emitting
// call-ended to both participants. Returns how many calls were expired.
func (s *Service) ExpireRinging(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := s.registry.ListRingingBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("signaling: list ringing: %w", err)
	}

	expired := 0
	for _, sess := range stale {
		res, err := s.EndCall(ctx, sess.CallID, SystemActor)
		if err != nil {
			logger.From(ctx).Warn("ring-timeout expiry failed", "call_id", sess.CallID, "err", err)
			continue
		}
		if res.Applied {
			expired++
		}
	}
	return expired, nil
}

func (s *Service) releaseGate(ctx context.Context, callerID string) {
	if s.gate == nil {
		return
	}
	if err := s.gate.Release(ctx, callerID); err != nil {
		logger.From(ctx).Warn("call gate release failed", "caller_id", callerID, "err", err)
	}
}

func (s *Service) logAudit(ctx context.Context, callID, actorID string, from, to Status, msg string) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.LogTransition(ctx, callID, actorID, string(from), string(to), msg); err != nil {
		logger.From(ctx).Warn("audit append failed", "call_id", callID, "err", err)
	}
}

func callPayload(s CallSession) events.Payload {
	return events.Payload{Call: &events.CallPayload{
		CallID:        s.CallID,
		CallerID:      s.CallerID,
		CallerName:    s.CallerName,
		CalleeID:      s.CalleeID,
		CalleeName:    s.CalleeName,
		AppointmentID: s.AppointmentID,
		ChannelName:   s.ChannelName,
		Status:        string(s.Status),
		CreatedAt:     s.CreatedAt,
	}}
}

func generateChannelName(now time.Time) string {
	// Time plus random suffix keeps concurrent sessions from colliding.
	return fmt.Sprintf("call-%d-%s", now.UnixMilli(), uuid.NewString()[:8])
}
