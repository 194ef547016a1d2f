package config

import (
	"time"

	apperrors "github.com/jrsteele09/go-finance-server/internal/errors"
)

// MinSigningKeyLength is the minimum HMAC key length in bytes.
const MinSigningKeyLength = 32

// Validate checks the settings the server cannot start without. Every returned error wraps
// errors.ErrConfiguration.
func Validate(c Config) error {
	key := c.GetSigningKey()
	if key == "" {
		return apperrors.Configf("%s must be set", signingKeyVar)
	}
	if len(key) < MinSigningKeyLength {
		return apperrors.Configf("%s must be at least %d bytes", signingKeyVar, MinSigningKeyLength)
	}

	for name, d := range map[string]time.Duration{
		accessTokenTTLVar:    c.GetAccessTokenTTL(),
		inactivityTimeoutVar: c.GetInactivityTimeout(),
		warningLeadVar:       c.GetWarningLeadTime(),
		maxSessionAgeVar:     c.GetMaxSessionAge(),
		csrfTTLVar:           c.GetCSRFTokenTTL(),
		reaperIntervalVar:    c.GetReaperInterval(),
		rateLimitWindowVar:   c.GetRateLimitWindow(),
	} {
		if d <= 0 {
			return apperrors.Configf("%s must be a positive duration", name)
		}
	}

	if c.GetWarningLeadTime() >= c.GetInactivityTimeout() {
		return apperrors.Configf("%s must be shorter than %s", warningLeadVar, inactivityTimeoutVar)
	}
	if c.GetRateLimitMax() <= 0 {
		return apperrors.Configf("%s must be positive", rateLimitMaxVar)
	}
	if c.GetLoginThrottleRate() <= 0 || c.GetLoginThrottleBurst() <= 0 {
		return apperrors.Configf("%s and %s must be positive", loginThrottleRateVar, loginThrottleBurstVar)
	}
	return nil
}
