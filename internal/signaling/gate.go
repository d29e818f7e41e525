package signaling

import (
	"context"
	"fmt"
	"time"

	"telehealth-signaling/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// CallGate caps concurrent ringing calls per caller. The gate is acquired
// at initiate time and released when the session leaves ringing.
type CallGate interface {
	Acquire(ctx context.Context, callerID string) (bool, error)
	Release(ctx context.Context, callerID string) error
}

// RedisCallGate enforces the cap across process instances.
//
// The TTL keeps a crashed process from leaking a slot forever; it should
// comfortably exceed the ring timeout so the janitor ends the call first.
type RedisCallGate struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
}

func NewRedisCallGate(rdb *redis.Client, limit int, ttl time.Duration) (*RedisCallGate, error) {
	if rdb == nil {
		return nil, fmt.Errorf("signaling: redis client is required")
	}
	if limit <= 0 {
		limit = 1
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCallGate{rdb: rdb, limit: limit, ttl: ttl}, nil
}

func gateKey(callerID string) string { return "calls:ringing:" + callerID }

func (g *RedisCallGate) Acquire(ctx context.Context, callerID string) (bool, error) {
	if callerID == "" {
		return false, ErrInvalidArgument
	}
	return utils.AcquireConcurrencyCap(ctx, g.rdb, gateKey(callerID), g.limit, g.ttl)
}

func (g *RedisCallGate) Release(ctx context.Context, callerID string) error {
	if callerID == "" {
		return ErrInvalidArgument
	}
	return utils.ReleaseConcurrencyCap(ctx, g.rdb, gateKey(callerID))
}
