package ratelimit

import (
	"time"

	"github.com/jrsteele09/go-finance-server/internal/shardmap"
	"golang.org/x/time/rate"
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Throttle is a per-origin token bucket for endpoints that run before any principal is
// known, such as login. Idle buckets are dropped by SweepIdle.
type Throttle struct {
	buckets *shardmap.Map[*bucket]
	limit   rate.Limit
	burst   int
	idle    time.Duration
}

// NewThrottle allows perSecond sustained requests per origin with the given burst. Buckets
// untouched for idle are eligible for sweeping.
func NewThrottle(perSecond float64, burst int, idle time.Duration) *Throttle {
	return &Throttle{
		buckets: shardmap.New[*bucket](shardmap.DefaultShards),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idle:    idle,
	}
}

// Allow consumes one token for origin at now. When the bucket is empty it returns false and
// how long until a token is available; the denied attempt does not consume future tokens.
func (t *Throttle) Allow(origin string, now time.Time) (bool, time.Duration) {
	allowed := true
	var wait time.Duration
	t.buckets.Compute(origin, func(cur *bucket, exists bool) (*bucket, bool) {
		if !exists {
			cur = &bucket{limiter: rate.NewLimiter(t.limit, t.burst)}
		}
		cur.lastSeen = now
		r := cur.limiter.ReserveN(now, 1)
		if !r.OK() {
			allowed, wait = false, t.idle
			return cur, true
		}
		if delay := r.DelayFrom(now); delay > 0 {
			r.CancelAt(now)
			allowed, wait = false, delay
		}
		return cur, true
	})
	return allowed, wait
}

// SweepIdle drops buckets not used since now-idle.
func (t *Throttle) SweepIdle(now time.Time) int {
	removed := t.buckets.DeleteIf(func(_ string, b *bucket) bool {
		return now.Sub(b.lastSeen) > t.idle
	})
	return len(removed)
}
