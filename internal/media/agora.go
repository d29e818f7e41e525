package media

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"telehealth-signaling/internal/config"
)

// AgoraProvider mints time-boxed join tokens for an Agora-style media
// control plane.
//
// With an app certificate, tokens are HMAC-SHA256 signed over (app id,
// channel, uid, role, expiry). Without one, RequestToken returns an empty
// token: the client performs an unauthenticated join, which is only
// acceptable outside production.
type AgoraProvider struct {
	appID       string
	certificate string
	tokenTTL    time.Duration

	// requireToken forbids the unauthenticated-join fallback.
	requireToken bool

	clock func() time.Time
}

func NewAgoraProvider(cfg config.AgoraConfig, production bool) (*AgoraProvider, error) {
	if err := validateAppID(cfg.AppID); err != nil {
		return nil, err
	}
	if production && cfg.AppCertificate == "" {
		return nil, fmt.Errorf("%w: app certificate required in production", ErrInvalidAppConfiguration)
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AgoraProvider{
		appID:        cfg.AppID,
		certificate:  cfg.AppCertificate,
		tokenTTL:     ttl,
		requireToken: production,
		clock:        time.Now,
	}, nil
}

func (p *AgoraProvider) Name() string { return "agora" }

func (p *AgoraProvider) RequestToken(ctx context.Context, req TokenRequest) (TokenResult, error) {
	// Re-validate on every request: the app id shape must be checked
	// before any join is attempted.
	if err := validateAppID(p.appID); err != nil {
		return TokenResult{}, err
	}
	if req.ChannelName == "" || req.UID == "" {
		return TokenResult{}, ErrInvalidArgument
	}
	role := req.Role
	if role == "" {
		role = RolePublisher
	}

	expires := p.clock().UTC().Add(p.tokenTTL)
	out := TokenResult{
		AppID:     p.appID,
		Channel:   req.ChannelName,
		UID:       req.UID,
		ExpiresAt: expires,
	}

	if p.certificate == "" {
		if p.requireToken {
			return TokenResult{}, fmt.Errorf("%w: no app certificate configured", ErrTokenGeneration)
		}
		// Unauthenticated join: empty token, valid app id.
		return out, nil
	}

	out.Token = p.sign(req.ChannelName, req.UID, role, expires)
	return out, nil
}

func (p *AgoraProvider) sign(channel, uid string, role Role, expires time.Time) string {
	mac := hmac.New(sha256.New, []byte(p.certificate))
	fmt.Fprintf(mac, "%s\n%s\n%s\n%s\n%d", p.appID, channel, uid, role, expires.Unix())
	sum := mac.Sum(nil)

	// Opaque wire shape: version prefix, expiry, signature.
	raw := fmt.Sprintf("001:%d:%s", expires.Unix(), base64.RawURLEncoding.EncodeToString(sum))
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func validateAppID(appID string) error {
	if appID == "" {
		return fmt.Errorf("%w: app id is empty", ErrInvalidAppConfiguration)
	}
	if len(appID) != config.AgoraAppIDLength {
		return fmt.Errorf("%w: app id must be %d characters, got %d",
			ErrInvalidAppConfiguration, config.AgoraAppIDLength, len(appID))
	}
	return nil
}
