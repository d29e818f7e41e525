package media

import (
	"context"
	"errors"
	"time"
)

// Role is the participant's media role on a channel.
type Role string

const (
	RolePublisher  Role = "publisher"
	RoleSubscriber Role = "subscriber"
)

var (
	// ErrInvalidAppConfiguration means the media app identifier is
	// malformed. Fatal to the join attempt; surfaced to the user.
	ErrInvalidAppConfiguration = errors.New("media: invalid app configuration")

	// ErrTokenGeneration means a join token could not be minted.
	ErrTokenGeneration = errors.New("media: token generation failed")

	ErrInvalidArgument = errors.New("media: invalid argument")
)

// TokenRequest asks for a join token on a channel. Each participant
// requests its own token per join attempt; tokens are never shared or
// persisted beyond the active session.
type TokenRequest struct {
	ChannelName string `json:"channel_name"`
	UID         string `json:"uid"`
	Role        Role   `json:"role"`
}

// TokenResult carries everything a client needs to join the media channel.
// Token is opaque to this layer.
type TokenResult struct {
	Token     string    `json:"token"`
	AppID     string    `json:"app_id"`
	Channel   string    `json:"channel"`
	UID       string    `json:"uid"`
	ExpiresAt time.Time `json:"expires"`
}

// TokenProvider is the control-plane boundary to the external media SDK.
//
// Rules:
// - No media SDK calls outside provider adapters.
// - Request/response types stay provider-agnostic.
type TokenProvider interface {
	Name() string
	RequestToken(ctx context.Context, req TokenRequest) (TokenResult, error)
}
