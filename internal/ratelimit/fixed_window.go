package ratelimit

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// FixedWindow implements a fixed-window request counter over Redis. The
// window is anchored at a key's first increment: the expiry is armed only
// when the post-increment count is 1, never re-armed on later requests.
//
// The counter store is a shared dependency that can go away; when it does
// the limiter fails open. A policy rejection (count over the ceiling) is
// never suppressed by fail-open; only store errors admit unconditionally.
type FixedWindow struct {
	client counterStore
	limit  int64
	window time.Duration
}

// counterStore is the slice of the Redis client the limiter uses.
type counterStore interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// NewFixedWindow constructs a limiter allowing limit requests per window.
func NewFixedWindow(client *redis.Client, limit int, window time.Duration) *FixedWindow {
	if limit <= 0 {
		limit = 10
	}
	if window == 0 {
		window = 60 * time.Second
	}
	return &FixedWindow{
		client: client,
		limit:  int64(limit),
		window: window,
	}
}

// Allow admits or rejects one request for the given key. The returned count
// is the post-increment counter value (0 when the store was unreachable).
func (l *FixedWindow) Allow(ctx context.Context, key string) (bool, int64) {
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("ratelimit: counter store unreachable, failing open: %v", err)
		return true, 0
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			// An unarmed counter never expires, so once over the ceiling the
			// key would be locked out forever. Drop the counter and fail open
			// for this window instead.
			log.Printf("ratelimit: failed to arm window expiry for %s, failing open: %v", key, err)
			if delErr := l.client.Del(ctx, key).Err(); delErr != nil {
				log.Printf("ratelimit: failed to drop unarmed counter %s: %v", key, delErr)
			}
			return true, 0
		}
	}
	return count <= l.limit, count
}
