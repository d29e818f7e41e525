package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one sorted set per recipient (score = sequence) plus a
// sequence counter key. Appending is atomic via Lua: the sequence INCR and
// the ZADD cannot interleave with a concurrent append for the same
// recipient.
//
// Retention is enforced by Redis itself: every append refreshes a TTL on
// both keys, so an idle recipient's stream disappears after the retention
// window. PurgeBefore is therefore a no-op here.
type RedisStore struct {
	rdb       *redis.Client
	retention time.Duration
	maxQueue  int64

	clock func() time.Time
}

type RedisStoreConfig struct {
	// Retention is the sliding TTL applied on every append.
	Retention time.Duration
	// MaxQueue caps events kept per recipient; oldest are dropped first.
	MaxQueue int64
}

func NewRedisStore(rdb *redis.Client, cfg RedisStoreConfig) (*RedisStore, error) {
	if rdb == nil {
		return nil, fmt.Errorf("events: redis client is required")
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 10 * time.Minute
	}
	if cfg.MaxQueue <= 0 {
		cfg.MaxQueue = 1000
	}
	return &RedisStore{rdb: rdb, retention: cfg.Retention, maxQueue: cfg.MaxQueue, clock: time.Now}, nil
}

// appendScript assigns the next sequence and stores the event in one atomic
// step. The member is "<seq>|<json>" because the sequence is only known
// inside the script.
var appendScript = redis.NewScript(`
-- KEYS[1] = sequence counter key
-- KEYS[2] = event zset key
-- ARGV[1] = event json (without sequence)
-- ARGV[2] = retention ttl_ms
-- ARGV[3] = max queue length
local seq = redis.call('INCR', KEYS[1])
redis.call('ZADD', KEYS[2], seq, seq .. '|' .. ARGV[1])
local over = redis.call('ZCARD', KEYS[2]) - tonumber(ARGV[3])
if over > 0 then
  redis.call('ZREMRANGEBYRANK', KEYS[2], 0, over - 1)
end
redis.call('PEXPIRE', KEYS[1], ARGV[2])
redis.call('PEXPIRE', KEYS[2], ARGV[2])
return seq
`)

func seqKey(recipientID string) string   { return "signal:seq:" + recipientID }
func queueKey(recipientID string) string { return "signal:events:" + recipientID }

func (s *RedisStore) Append(ctx context.Context, recipientID string, eventType EventType, payload Payload) (SignalEvent, error) {
	if recipientID == "" || eventType == "" {
		return SignalEvent{}, ErrInvalidArgument
	}

	e := SignalEvent{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		Type:        eventType,
		Payload:     payload,
		CreatedAt:   s.clock().UTC(),
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return SignalEvent{}, fmt.Errorf("events: marshal: %w", err)
	}

	seq, err := appendScript.Run(ctx, s.rdb,
		[]string{seqKey(recipientID), queueKey(recipientID)},
		string(raw), s.retention.Milliseconds(), s.maxQueue,
	).Int64()
	if err != nil {
		return SignalEvent{}, fmt.Errorf("events: append: %w", err)
	}

	e.Sequence = seq
	return e, nil
}

func (s *RedisStore) Poll(ctx context.Context, recipientID string, since int64) ([]SignalEvent, error) {
	if recipientID == "" {
		return nil, ErrInvalidArgument
	}

	members, err := s.rdb.ZRangeByScore(ctx, queueKey(recipientID), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(since, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("events: poll: %w", err)
	}

	out := make([]SignalEvent, 0, len(members))
	for _, m := range members {
		e, err := decodeMember(m)
		if err != nil {
			// A corrupt member should not wedge the whole stream.
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *RedisStore) Ack(ctx context.Context, recipientID string, upTo int64) error {
	if recipientID == "" {
		return ErrInvalidArgument
	}
	err := s.rdb.ZRemRangeByScore(ctx, queueKey(recipientID), "-inf", strconv.FormatInt(upTo, 10)).Err()
	if err != nil {
		return fmt.Errorf("events: ack: %w", err)
	}
	return nil
}

// PurgeBefore is a no-op: key TTLs bound retention.
func (s *RedisStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}

func decodeMember(member string) (SignalEvent, error) {
	i := strings.IndexByte(member, '|')
	if i <= 0 {
		return SignalEvent{}, fmt.Errorf("events: malformed member")
	}
	seq, err := strconv.ParseInt(member[:i], 10, 64)
	if err != nil {
		return SignalEvent{}, fmt.Errorf("events: malformed sequence: %w", err)
	}
	var e SignalEvent
	if err := json.Unmarshal([]byte(member[i+1:]), &e); err != nil {
		return SignalEvent{}, fmt.Errorf("events: unmarshal: %w", err)
	}
	e.Sequence = seq
	return e, nil
}
