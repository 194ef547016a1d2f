package auth

import (
	"context"
	"time"

	"github.com/jrsteele09/go-finance-server/internal/reaper"
	"github.com/rs/zerolog/log"
)

// SweepTasks returns the cleanup work for the reaper, in the order it should run. Expired
// sessions are swept first so their nonces can be revoked before the nonce sweep.
func (as *AuthorizationService) SweepTasks() []reaper.Task {
	tasks := []reaper.Task{
		{Name: "sessions", Run: as.sweepSessions},
		{Name: "rate_limits", Run: as.components.Limiter.SweepExpired},
		{Name: "csrf", Run: func(_ context.Context, now time.Time) (int, error) {
			return as.components.CSRF.SweepExpired(now), nil
		}},
	}
	if as.components.LoginThrottle != nil {
		tasks = append(tasks, reaper.Task{Name: "login_throttle", Run: func(_ context.Context, now time.Time) (int, error) {
			return as.components.LoginThrottle.SweepIdle(now), nil
		}})
	}
	return tasks
}

func (as *AuthorizationService) sweepSessions(_ context.Context, now time.Time) (int, error) {
	expired := as.components.Sessions.SweepExpiredSessions(as.policy, now)
	revoked := 0
	for _, s := range expired {
		revoked += as.components.CSRF.RevokeAllFor(s.Key().String())
	}
	if revoked > 0 {
		log.Debug().Int("csrf_revoked", revoked).Msg("Revoked nonces of expired sessions")
	}
	return len(expired), nil
}
