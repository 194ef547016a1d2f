package config

import "time"

const (
	signingKeyVar        = "SIGNING_KEY"
	tokenIssuerVar       = "TOKEN_ISSUER"
	accessTokenTTLVar    = "ACCESS_TOKEN_TTL"
	inactivityTimeoutVar = "SESSION_INACTIVITY_TIMEOUT"
	warningLeadVar       = "SESSION_WARNING_LEAD"
	maxSessionAgeVar     = "SESSION_MAX_LIFETIME"
	csrfTTLVar           = "CSRF_TTL"
	reaperIntervalVar    = "REAPER_INTERVAL"
)

type SecurityConfig interface {
	GetSigningKey() string
	GetTokenIssuer() string
	GetAccessTokenTTL() time.Duration
	GetInactivityTimeout() time.Duration
	GetWarningLeadTime() time.Duration
	GetMaxSessionAge() time.Duration
	GetCSRFTokenTTL() time.Duration
	GetReaperInterval() time.Duration
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetSigningKey has no default: an unset key is a fatal configuration error.
func (Security) GetSigningKey() string {
	return GetEnv(signingKeyVar, "")
}

func (Security) GetTokenIssuer() string {
	return GetEnv(tokenIssuerVar, "go-finance-server")
}

func (Security) GetAccessTokenTTL() time.Duration {
	return GetDuration(accessTokenTTLVar, 15*time.Minute)
}

func (Security) GetInactivityTimeout() time.Duration {
	return GetDuration(inactivityTimeoutVar, 10*time.Minute)
}

func (Security) GetWarningLeadTime() time.Duration {
	return GetDuration(warningLeadVar, 9*time.Minute)
}

func (Security) GetMaxSessionAge() time.Duration {
	return GetDuration(maxSessionAgeVar, 24*time.Hour)
}

func (Security) GetCSRFTokenTTL() time.Duration {
	return GetDuration(csrfTTLVar, time.Hour)
}

func (Security) GetReaperInterval() time.Duration {
	return GetDuration(reaperIntervalVar, time.Minute)
}
