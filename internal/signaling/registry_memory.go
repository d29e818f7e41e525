package signaling

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRegistry is an in-process Registry for tests and single-node
// deployments.
type MemoryRegistry struct {
	mu       sync.Mutex
	sessions map[string]CallSession
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{sessions: map[string]CallSession{}}
}

func (r *MemoryRegistry) Create(ctx context.Context, s CallSession) error {
	if s.CallID == "" {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.CallID] = s
	return nil
}

func (r *MemoryRegistry) Get(ctx context.Context, callID string) (CallSession, bool, error) {
	if callID == "" {
		return CallSession{}, false, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[callID]
	return s, ok, nil
}

func (r *MemoryRegistry) SetStatus(ctx context.Context, callID string, to Status, now time.Time) (CallSession, error) {
	if callID == "" {
		return CallSession{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[callID]
	if !ok {
		return CallSession{}, ErrNotFound
	}
	s.Status = to
	s.UpdatedAt = now
	r.sessions[callID] = s
	return s, nil
}

func (r *MemoryRegistry) Acknowledge(ctx context.Context, callID string) error {
	if callID == "" {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[callID]
	if !ok {
		return ErrNotFound
	}
	s.Acknowledged = true
	r.sessions[callID] = s
	return nil
}

func (r *MemoryRegistry) ListUnacknowledgedRinging(ctx context.Context, calleeID string) ([]CallSession, error) {
	if calleeID == "" {
		return nil, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallSession, 0)
	for _, s := range r.sessions {
		if s.CalleeID == calleeID && s.Status == StatusRinging && !s.Acknowledged {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRegistry) ListRingingBefore(ctx context.Context, cutoff time.Time) ([]CallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallSession, 0)
	for _, s := range r.sessions {
		if s.Status == StatusRinging && s.CreatedAt.Before(cutoff) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRegistry) PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	purged := 0
	for id, s := range r.sessions {
		if s.Status.IsTerminal() && s.UpdatedAt.Before(cutoff) {
			delete(r.sessions, id)
			purged++
		}
	}
	return purged, nil
}
