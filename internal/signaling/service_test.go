package signaling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"telehealth-signaling/internal/directory"
	"telehealth-signaling/internal/events"
)

func newTestService(t *testing.T) (*Service, *MemoryRegistry, *events.MemoryStore) {
	t.Helper()
	reg := NewMemoryRegistry()
	store := events.NewMemoryStore()
	dir := directory.NewMemoryDirectory(
		directory.User{ID: "alice", DisplayName: "Alice", Role: "patient"},
		directory.User{ID: "bob", DisplayName: "Dr. Bob", Role: "doctor"},
		directory.User{ID: "carol", DisplayName: "Carol", Role: "patient"},
		directory.User{ID: "dave", DisplayName: "Dr. Dave", Role: "doctor"},
	)
	svc := NewService(reg, store, dir)
	svc.clock = func() time.Time { return time.Unix(1700000000, 0).UTC() }
	return svc, reg, store
}

func initiate(t *testing.T, svc *Service, caller, callee, channel string) CallSession {
	t.Helper()
	sess, err := svc.InitiateCall(context.Background(), InitiateCallRequest{
		CallerID:      caller,
		CalleeID:      callee,
		AppointmentID: "appt-1",
		ChannelName:   channel,
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	return sess
}

func TestInitiatePollRoundTrip(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()

	sess := initiate(t, svc, "alice", "bob", "ch1")
	if sess.Status != StatusRinging {
		t.Fatalf("expected ringing, got %s", sess.Status)
	}
	if sess.CalleeName != "Dr. Bob" {
		t.Fatalf("expected callee name from directory, got %q", sess.CalleeName)
	}

	evs, err := store.Poll(ctx, "bob", 0)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(evs) != 1 || evs[0].Type != events.EventTypeInitiateCall {
		t.Fatalf("expected one initiate-call event, got %+v", evs)
	}
	if evs[0].Payload.Call.CallID != sess.CallID {
		t.Fatalf("event call id %q != session call id %q", evs[0].Payload.Call.CallID, sess.CallID)
	}
}

func TestInitiateRejectsUnknownCallee(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.InitiateCall(context.Background(), InitiateCallRequest{CallerID: "alice", CalleeID: "nobody"})
	if !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("expected ErrInvalidRecipient, got %v", err)
	}
}

func TestInitiateGeneratesChannelName(t *testing.T) {
	svc, _, _ := newTestService(t)
	a := initiate(t, svc, "alice", "bob", "")
	b := initiate(t, svc, "carol", "dave", "")
	if a.ChannelName == "" || b.ChannelName == "" {
		t.Fatalf("expected generated channel names")
	}
	if a.ChannelName == b.ChannelName {
		t.Fatalf("expected unique channel names, both %q", a.ChannelName)
	}
}

// Scenario: alice calls bob on ch1; bob accepts; alice's poll carries the
// accepted session referencing ch1.
func TestAcceptFlowNotifiesCaller(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()

	sess := initiate(t, svc, "alice", "bob", "ch1")

	res, err := svc.AcceptCall(ctx, sess.CallID, "bob")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !res.Applied || res.Session.Status != StatusAccepted {
		t.Fatalf("expected applied accept, got %+v", res)
	}

	evs, _ := store.Poll(ctx, "alice", 0)
	if len(evs) != 1 || evs[0].Type != events.EventTypeCallAccepted {
		t.Fatalf("expected call-accepted for alice, got %+v", evs)
	}
	if evs[0].Payload.Call.ChannelName != "ch1" {
		t.Fatalf("expected channel ch1 in payload, got %q", evs[0].Payload.Call.ChannelName)
	}
}

// Scenario: caller hangs up before the callee responds; the late accept is
// a no-op and the session stays ended.
func TestLateAcceptAfterEndIsNoOp(t *testing.T) {
	svc, reg, store := newTestService(t)
	ctx := context.Background()

	sess := initiate(t, svc, "alice", "bob", "ch1")

	if res, err := svc.EndCall(ctx, sess.CallID, "alice"); err != nil || !res.Applied {
		t.Fatalf("end: %v %+v", err, res)
	}

	res, err := svc.AcceptCall(ctx, sess.CallID, "bob")
	if err != nil {
		t.Fatalf("late accept must not error: %v", err)
	}
	if res.Applied {
		t.Fatalf("late accept must be a no-op")
	}

	got, ok, _ := reg.Get(ctx, sess.CallID)
	if !ok || got.Status != StatusEnded {
		t.Fatalf("status must remain ended, got %+v", got)
	}

	// Bob hears about the end, and nothing from his failed accept.
	evs, _ := store.Poll(ctx, "bob", 0)
	var sawEnded bool
	for _, e := range evs {
		if e.Type == events.EventTypeCallAccepted {
			t.Fatalf("unexpected call-accepted after end")
		}
		if e.Type == events.EventTypeCallEnded {
			sawEnded = true
		}
	}
	if !sawEnded {
		t.Fatalf("expected call-ended event for bob")
	}
}

func TestTerminalStatesAreIdempotent(t *testing.T) {
	svc, reg, _ := newTestService(t)
	ctx := context.Background()

	sess := initiate(t, svc, "alice", "bob", "ch1")
	if _, err := svc.RejectCall(ctx, sess.CallID, "bob"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	for _, attempt := range []func() (TransitionResult, error){
		func() (TransitionResult, error) { return svc.AcceptCall(ctx, sess.CallID, "bob") },
		func() (TransitionResult, error) { return svc.EndCall(ctx, sess.CallID, "alice") },
		func() (TransitionResult, error) { return svc.RejectCall(ctx, sess.CallID, "bob") },
	} {
		res, err := attempt()
		if err != nil {
			t.Fatalf("terminal action must not error: %v", err)
		}
		if res.Applied {
			t.Fatalf("terminal action must not apply")
		}
	}

	got, _, _ := reg.Get(ctx, sess.CallID)
	if got.Status != StatusRejected {
		t.Fatalf("status changed after terminal: %s", got.Status)
	}
}

func TestUnknownCallIsWarnedNoOp(t *testing.T) {
	svc, _, _ := newTestService(t)
	res, err := svc.EndCall(context.Background(), "no-such-call", "alice")
	if err != nil {
		t.Fatalf("unknown call must not error: %v", err)
	}
	if res.Applied {
		t.Fatalf("unknown call must be a no-op")
	}
}

// Scenario: two independent pairs never observe each other's events.
func TestConcurrentPairsAreIsolated(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()

	ab := initiate(t, svc, "alice", "bob", "ch-ab")
	cd := initiate(t, svc, "carol", "dave", "ch-cd")

	if _, err := svc.AcceptCall(ctx, ab.CallID, "bob"); err != nil {
		t.Fatalf("accept ab: %v", err)
	}
	if _, err := svc.RejectCall(ctx, cd.CallID, "dave"); err != nil {
		t.Fatalf("reject cd: %v", err)
	}

	for user, wantCall := range map[string]string{
		"alice": ab.CallID, "bob": ab.CallID,
		"carol": cd.CallID, "dave": cd.CallID,
	} {
		evs, _ := store.Poll(ctx, user, 0)
		if len(evs) == 0 {
			t.Fatalf("%s expected events", user)
		}
		for _, e := range evs {
			if e.Payload.Call.CallID != wantCall {
				t.Fatalf("%s observed foreign call %s", user, e.Payload.Call.CallID)
			}
		}
	}
}

func TestMarkConnectedRequiresAccepted(t *testing.T) {
	svc, reg, _ := newTestService(t)
	ctx := context.Background()

	sess := initiate(t, svc, "alice", "bob", "ch1")

	// Not yet accepted.
	res, err := svc.MarkConnected(ctx, sess.CallID, "bob")
	if err != nil || res.Applied {
		t.Fatalf("connected before accept must be a no-op: %v %+v", err, res)
	}

	if _, err := svc.AcceptCall(ctx, sess.CallID, "bob"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	res, err = svc.MarkConnected(ctx, sess.CallID, "bob")
	if err != nil || !res.Applied {
		t.Fatalf("connected after accept must apply: %v %+v", err, res)
	}
	got, _, _ := reg.Get(ctx, sess.CallID)
	if got.Status != StatusConnected {
		t.Fatalf("expected connected, got %s", got.Status)
	}
}

func TestPendingCallsListAndAcknowledge(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sess := initiate(t, svc, "alice", "bob", "ch1")

	pending, err := svc.ListPendingCalls(ctx, "bob")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 1 || pending[0].CallID != sess.CallID {
		t.Fatalf("expected one pending call, got %+v", pending)
	}

	if err := svc.AcknowledgePendingCall(ctx, "bob", sess.CallID); err != nil {
		t.Fatalf("ack: %v", err)
	}
	pending, _ = svc.ListPendingCalls(ctx, "bob")
	if len(pending) != 0 {
		t.Fatalf("expected empty pending after ack, got %+v", pending)
	}

	// Ack never changes session status; bob can still accept.
	res, err := svc.AcceptCall(ctx, sess.CallID, "bob")
	if err != nil || !res.Applied {
		t.Fatalf("accept after ack must apply: %v %+v", err, res)
	}
}

func TestAcknowledgeForeignCallRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sess := initiate(t, svc, "alice", "bob", "ch1")
	if err := svc.AcknowledgePendingCall(ctx, "dave", sess.CallID); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestAcknowledgeMissingCallIsNoOp(t *testing.T) {
	svc, _, _ := newTestService(t)
	if err := svc.AcknowledgePendingCall(context.Background(), "bob", "gone"); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}

func TestExpireRingingEndsStaleCalls(t *testing.T) {
	svc, reg, store := newTestService(t)
	ctx := context.Background()

	sess := initiate(t, svc, "alice", "bob", "ch1")

	n, err := svc.ExpireRinging(ctx, time.Unix(1700000000, 0).UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired, got %d", n)
	}

	got, _, _ := reg.Get(ctx, sess.CallID)
	if got.Status != StatusEnded {
		t.Fatalf("expected ended, got %s", got.Status)
	}

	// Both sides hear the expiry.
	for _, user := range []string{"alice", "bob"} {
		evs, _ := store.Poll(ctx, user, 0)
		var sawEnded bool
		for _, e := range evs {
			if e.Type == events.EventTypeCallEnded {
				sawEnded = true
			}
		}
		if !sawEnded {
			t.Fatalf("%s expected call-ended", user)
		}
	}
}

// countingGate admits up to limit concurrent acquisitions per caller.
type countingGate struct {
	mu    sync.Mutex
	limit int
	held  map[string]int
}

func (g *countingGate) Acquire(ctx context.Context, callerID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held == nil {
		g.held = map[string]int{}
	}
	if g.held[callerID] >= g.limit {
		return false, nil
	}
	g.held[callerID]++
	return true, nil
}

func (g *countingGate) Release(ctx context.Context, callerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[callerID] > 0 {
		g.held[callerID]--
	}
	return nil
}

func TestRingingCallCapEnforcedAndReleased(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.WithGate(&countingGate{limit: 1})
	ctx := context.Background()

	first := initiate(t, svc, "alice", "bob", "")

	if _, err := svc.InitiateCall(ctx, InitiateCallRequest{CallerID: "alice", CalleeID: "dave"}); !errors.Is(err, ErrActiveCallLimit) {
		t.Fatalf("expected ErrActiveCallLimit, got %v", err)
	}

	// Leaving ringing frees the slot.
	if _, err := svc.AcceptCall(ctx, first.CallID, "bob"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := svc.InitiateCall(ctx, InitiateCallRequest{CallerID: "alice", CalleeID: "dave"}); err != nil {
		t.Fatalf("expected second call after release, got %v", err)
	}
}
