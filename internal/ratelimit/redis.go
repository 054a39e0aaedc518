package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis is a fixed window counter shared by every instance talking to the
// same Redis. On Redis errors it fails open and returns the error for logging.
type Redis struct {
	client *redis.Client
	limit  int64
	window time.Duration
	prefix string
}

// NewRedis allows limit requests per window for each key.
func NewRedis(client *redis.Client, limit int, window time.Duration, prefix string) *Redis {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Second
	}
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &Redis{client: client, limit: int64(limit), window: window, prefix: prefix}
}

func (r *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	redisKey := fmt.Sprintf("%s:%s", r.prefix, key)

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{Allowed: true}, fmt.Errorf("redis rate limit: %w", err)
	}

	remaining := ttl.Val()
	if remaining < 0 {
		// First hit in this window; the key has no expiry yet.
		if err := r.client.PExpire(ctx, redisKey, r.window).Err(); err != nil {
			return Decision{Allowed: true}, fmt.Errorf("redis rate limit: %w", err)
		}
		remaining = r.window
	}

	if incr.Val() > r.limit {
		return Decision{Allowed: false, RetryAfter: remaining}, nil
	}
	return Decision{Allowed: true}, nil
}

// Reset clears the counter for key.
func (r *Redis) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, fmt.Sprintf("%s:%s", r.prefix, key)).Err()
}
