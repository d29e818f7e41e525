package directory

import (
	"context"
	"errors"
)

// User is the minimal identity shape the signaling layer needs. The full
// account system (profiles, credentials) lives outside this service.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

var ErrInvalidArgument = errors.New("directory: invalid argument")

// Directory resolves user ids against the external user system.
// A callee must resolve before a call can be initiated to them.
type Directory interface {
	Resolve(ctx context.Context, userID string) (User, bool, error)
}
