package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for tests and single-node deployments.
// Each recipient gets an independent slice ordered by sequence.
type MemoryStore struct {
	mu    sync.Mutex
	seqs  map[string]int64
	queue map[string][]SignalEvent

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		seqs:  map[string]int64{},
		queue: map[string][]SignalEvent{},
		clock: time.Now,
	}
}

func (s *MemoryStore) Append(ctx context.Context, recipientID string, eventType EventType, payload Payload) (SignalEvent, error) {
	if recipientID == "" || eventType == "" {
		return SignalEvent{}, ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seqs[recipientID]++
	e := SignalEvent{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		Sequence:    s.seqs[recipientID],
		Type:        eventType,
		Payload:     payload,
		CreatedAt:   s.clock().UTC(),
	}
	s.queue[recipientID] = append(s.queue[recipientID], e)
	return e, nil
}

func (s *MemoryStore) Poll(ctx context.Context, recipientID string, since int64) ([]SignalEvent, error) {
	if recipientID == "" {
		return nil, ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SignalEvent, 0)
	for _, e := range s.queue[recipientID] {
		if e.Sequence > since {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) Ack(ctx context.Context, recipientID string, upTo int64) error {
	if recipientID == "" {
		return ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.queue[recipientID][:0]
	for _, e := range s.queue[recipientID] {
		if e.Sequence > upTo {
			kept = append(kept, e)
		}
	}
	s.queue[recipientID] = kept
	return nil
}

func (s *MemoryStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for rid, q := range s.queue {
		kept := q[:0]
		for _, e := range q {
			if e.CreatedAt.Before(cutoff) {
				purged++
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(s.queue, rid)
			continue
		}
		s.queue[rid] = kept
	}
	return purged, nil
}
