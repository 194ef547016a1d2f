package auth

import (
	"context"
	"errors"

	"github.com/jrsteele09/go-finance-server/ratelimit"
	"github.com/jrsteele09/go-finance-server/sessions"
	"github.com/jrsteele09/go-finance-server/token"
	"github.com/rs/zerolog/log"
)

// Authorize decides whether req satisfies reqs. Checks run in a fixed order and stop at the
// first failure, which is returned as a *Rejection. Session activity is recorded only once
// every check has passed, so a rejected request leaves the session untouched.
func (as *AuthorizationService) Authorize(ctx context.Context, req Request, reqs Requirements) (*AuthContext, error) {
	if req.Credential == "" {
		return nil, reject(Unauthenticated, "authentication required")
	}

	identity, err := as.components.Codec.Verify(req.Credential)
	if err != nil {
		log.Debug().Str("reason", credentialFailure(err)).Str("origin", req.Origin).Msg("Credential rejected")
		return nil, reject(Unauthenticated, "invalid or expired credential")
	}

	ac := &AuthContext{
		PrincipalID: identity.PrincipalID,
		Role:        identity.Role,
		Credential: Credential{
			IssuedAt:  identity.IssuedAt,
			ExpiresAt: identity.ExpiresAt,
			TokenID:   identity.TokenID,
		},
	}

	if reqs.Session {
		if req.SessionID == "" {
			return nil, reject(Unauthenticated, "session required")
		}
		session, verdict, found := as.components.Sessions.Check(identity.PrincipalID, req.SessionID, as.policy)
		if !found {
			return nil, reject(SessionExpired, "session expired")
		}
		if verdict.Expired() {
			as.components.CSRF.RevokeAllFor(session.Key().String())
			log.Info().Str("user_id", identity.PrincipalID).Str("verdict", verdict.String()).Msg("Session expired")
			return nil, reject(SessionExpired, "session expired")
		}
		ac.SessionID = session.ID
		if verdict == sessions.ValidWithWarning {
			ac.SessionWarning = true
			ac.ExpiresIn = as.policy.Remaining(session, as.components.Sessions.Now())
		}
	}

	if reqs.Privileged && !identity.Role.IsPrivileged() {
		return nil, reject(Forbidden, "insufficient privileges")
	}

	if reqs.RateLimit {
		key := ratelimit.Key(identity.PrincipalID, req.Origin)
		decision, err := as.components.Limiter.CheckAndIncrement(ctx, key, as.settings.RateLimitMax, as.settings.RateLimitWindow, as.nowTime())
		if err != nil {
			log.Error().Err(err).Str("key", key).Msg("Rate limiter unavailable")
			return nil, reject(Unavailable, "service temporarily unavailable")
		}
		if !decision.Allowed {
			log.Warn().Str("key", key).Int("count", decision.Count).Msg("Rate limit exceeded")
			return nil, &Rejection{Kind: TooManyRequests, Message: "too many requests", RetryAfter: decision.RetryAfter}
		}
	}

	if reqs.CSRF && isStateChanging(req.Method) {
		var valid bool
		if ac.SessionID != "" {
			valid = as.components.CSRF.ValidateFor(req.CSRFToken, ac.SessionKey())
		} else {
			valid = as.components.CSRF.Validate(req.CSRFToken)
		}
		if !valid {
			return nil, reject(Forbidden, "invalid csrf token")
		}
	}

	if ac.SessionID != "" && !reqs.Passive {
		if !as.components.Sessions.Touch(identity.PrincipalID, ac.SessionID) {
			// Removed by logout or a sweep after the check above.
			return nil, reject(SessionExpired, "session expired")
		}
	}

	return ac, nil
}

func credentialFailure(err error) string {
	switch {
	case errors.Is(err, token.ErrExpired):
		return "expired"
	case errors.Is(err, token.ErrSignatureInvalid):
		return "signature"
	default:
		return "malformed"
	}
}
