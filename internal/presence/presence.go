// Package presence keeps a cross-instance set of live connections in a
// Redis sorted set. Each member's score is the unix time it expires at;
// hubs refresh their own members on a heartbeat and Count prunes the rest.
package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type Tracker struct {
	redis *redis.Client
	key   string
	ttl   time.Duration
	now   func() time.Time
}

// NewTracker returns a tracker on key. ttl must comfortably exceed the
// hub's heartbeat interval or members will flicker.
func NewTracker(redisClient *redis.Client, key string, ttl time.Duration) *Tracker {
	return &Tracker{redis: redisClient, key: key, ttl: ttl, now: time.Now}
}

func (t *Tracker) deadline() float64 {
	return float64(t.now().Add(t.ttl).Unix())
}

func (t *Tracker) Join(ctx context.Context, id string) error {
	return t.Heartbeat(ctx, id)
}

// Heartbeat pushes the expiry of every id forward by ttl.
func (t *Tracker) Heartbeat(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	score := t.deadline()
	members := make([]redis.Z, len(ids))
	for i, id := range ids {
		members[i] = redis.Z{Score: score, Member: id}
	}
	if err := t.redis.ZAdd(ctx, t.key, members...).Err(); err != nil {
		return fmt.Errorf("presence heartbeat: %w", err)
	}
	return nil
}

func (t *Tracker) Leave(ctx context.Context, id string) error {
	if err := t.redis.ZRem(ctx, t.key, id).Err(); err != nil {
		return fmt.Errorf("presence leave: %w", err)
	}
	return nil
}

// Count drops expired members and returns how many remain.
func (t *Tracker) Count(ctx context.Context) (int64, error) {
	var card *redis.IntCmd
	_, err := t.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, t.key, "-inf", strconv.FormatInt(t.now().Unix(), 10))
		card = pipe.ZCard(ctx, t.key)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("presence count: %w", err)
	}
	return card.Val(), nil
}
