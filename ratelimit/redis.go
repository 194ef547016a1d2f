package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "ratelimit:"

var _ Limiter = (*RedisLimiter)(nil)

// RedisLimiter keeps fixed windows in Redis so several server processes share one budget.
// The window starts at the first INCR and ends when the key's TTL elapses; INCR is atomic so
// the allowed count is exact. The now argument is unused: Redis owns the window clock.
type RedisLimiter struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisLimiter(client redis.UniversalClient, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisLimiter{redis: client, prefix: prefix}
}

func (l *RedisLimiter) CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration, _ time.Time) (Decision, error) {
	if limit <= 0 || window <= 0 {
		return Decision{}, fmt.Errorf("limit and window must be positive")
	}
	redisKey := l.prefix + key

	count, err := l.redis.Incr(ctx, redisKey).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// Fixed-window semantics: the TTL is set only by the attempt that opened the window.
	if count == 1 {
		if err := l.redis.PExpire(ctx, redisKey, window).Err(); err != nil {
			return Decision{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	d := Decision{Allowed: count <= int64(limit), Count: int(count), Limit: limit}
	if d.Allowed {
		return d, nil
	}

	ttl, err := l.redis.PTTL(ctx, redisKey).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if ttl < 0 {
		// The key lost its TTL (crash between INCR and PEXPIRE); restore it so the window can end.
		if err := l.redis.PExpire(ctx, redisKey, window).Err(); err != nil {
			return Decision{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		ttl = window
	}
	d.RetryAfter = ttl
	return d, nil
}

// SweepExpired is a no-op: Redis evicts elapsed windows itself.
func (l *RedisLimiter) SweepExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

// Ping checks connectivity at startup.
func (l *RedisLimiter) Ping(ctx context.Context) error {
	if err := l.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
