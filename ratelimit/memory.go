package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/jrsteele09/go-finance-server/internal/shardmap"
)

// Window is one fixed rate-limit window.
type Window struct {
	Start    time.Time
	Duration time.Duration
	Count    int
}

// ExpiresAt is the instant the window stops counting.
func (w Window) ExpiresAt() time.Time {
	return w.Start.Add(w.Duration)
}

// Active reports whether attempts at now still count against w.
func (w Window) Active(now time.Time) bool {
	return now.Before(w.ExpiresAt())
}

var _ Limiter = (*MemoryLimiter)(nil)

// MemoryLimiter keeps windows in process memory. Each check-and-increment runs inside the
// key's shard lock, so concurrent callers on one key never both observe the same count: at
// most limit attempts are allowed per window, with no overshoot.
type MemoryLimiter struct {
	windows *shardmap.Map[Window]
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{windows: shardmap.New[Window](shardmap.DefaultShards)}
}

func (l *MemoryLimiter) CheckAndIncrement(_ context.Context, key string, limit int, window time.Duration, now time.Time) (Decision, error) {
	if limit <= 0 || window <= 0 {
		return Decision{}, fmt.Errorf("limit and window must be positive")
	}

	w, _ := l.windows.Compute(key, func(cur Window, exists bool) (Window, bool) {
		if !exists || !cur.Active(now) {
			return Window{Start: now, Duration: window, Count: 1}, true
		}
		cur.Count++
		return cur, true
	})

	d := Decision{Allowed: w.Count <= limit, Count: w.Count, Limit: limit}
	if !d.Allowed {
		d.RetryAfter = w.ExpiresAt().Sub(now)
	}
	return d, nil
}

func (l *MemoryLimiter) SweepExpired(_ context.Context, now time.Time) (int, error) {
	removed := l.windows.DeleteIf(func(_ string, w Window) bool {
		return !w.Active(now)
	})
	return len(removed), nil
}

// Get returns the window stored for key.
func (l *MemoryLimiter) Get(key string) (Window, bool) {
	return l.windows.Get(key)
}

// Len returns the number of tracked windows.
func (l *MemoryLimiter) Len() int {
	return l.windows.Len()
}
