// Package ratelimit throttles sensitive operations with fixed-window counters keyed by
// principal and origin, and throttles unauthenticated endpoints with per-origin token buckets.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned when the limiter's backing store cannot be reached.
var ErrUnavailable = errors.New("rate limiter unavailable")

// Decision is the outcome of one CheckAndIncrement call.
type Decision struct {
	Allowed    bool
	Count      int           // Attempts recorded in the current window, including this one
	Limit      int           // Attempts allowed per window
	RetryAfter time.Duration // Time until the window resets; zero when allowed
}

// Limiter is a fixed-window counter store.
type Limiter interface {
	// CheckAndIncrement records one attempt for key. A missing or elapsed window is replaced
	// by a fresh window with count 1. The attempt is denied when the post-increment count
	// exceeds limit.
	CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Decision, error)

	// SweepExpired drops windows that have elapsed at now and returns how many were dropped.
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// Key builds the limiter key for a principal calling from origin.
func Key(principalID, origin string) string {
	return principalID + "@" + origin
}
