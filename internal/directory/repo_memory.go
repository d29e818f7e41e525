package directory

import (
	"context"
	"sync"
)

// MemoryDirectory is a simple in-memory directory for tests and local
// development.
type MemoryDirectory struct {
	mu    sync.Mutex
	users map[string]User
}

func NewMemoryDirectory(users ...User) *MemoryDirectory {
	d := &MemoryDirectory{users: map[string]User{}}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *MemoryDirectory) Put(u User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

func (d *MemoryDirectory) Resolve(ctx context.Context, userID string) (User, bool, error) {
	if userID == "" {
		return User{}, false, ErrInvalidArgument
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	return u, ok, nil
}
