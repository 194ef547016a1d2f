package auth

import (
	"net/http"
	"time"

	"github.com/jrsteele09/go-finance-server/users"
)

// Requirements declares what a route demands beyond a valid credential.
type Requirements struct {
	Session    bool // A live server-side session must accompany the credential
	Passive    bool // Validate the session without recording activity
	Privileged bool // Credential role must be admin
	RateLimit  bool // Count the call against the principal's sensitive-operation budget
	CSRF       bool // State-changing methods must carry a nonce bound to the session
}

// Request is the transport-neutral view of an inbound request.
type Request struct {
	Credential string
	SessionID  string
	CSRFToken  string
	Method     string
	Origin     string // Caller address used for rate limiting
}

// AuthContext is attached to an authorized request.
type AuthContext struct {
	PrincipalID string
	Role        users.Role
	SessionID   string // Empty when the route does not use sessions
	Credential  Credential

	// Renewal hint, set when the session was close to its inactivity timeout.
	SessionWarning bool
	ExpiresIn      time.Duration
}

// Credential summarises the verified credential.
type Credential struct {
	IssuedAt  time.Time
	ExpiresAt time.Time
	TokenID   string
}

// SessionKey returns the key CSRF nonces are bound to, or "" without a session.
func (ac *AuthContext) SessionKey() string {
	if ac.SessionID == "" {
		return ""
	}
	return sessionKey(ac.PrincipalID, ac.SessionID)
}

// SessionGrant is returned when a session is created.
type SessionGrant struct {
	SessionID string
	CSRFToken string
}

// LoginResult carries everything a client needs after logging in.
type LoginResult struct {
	AccessToken string
	ExpiresAt   time.Time
	SessionID   string
	CSRFToken   string
	User        *users.User
}

// Settings are the tunable values the service enforces.
type Settings struct {
	AccessTokenTTL  time.Duration
	CSRFTokenTTL    time.Duration
	RateLimitMax    int
	RateLimitWindow time.Duration
}

// DefaultSettings mirrors the configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		AccessTokenTTL:  15 * time.Minute,
		CSRFTokenTTL:    time.Hour,
		RateLimitMax:    5,
		RateLimitWindow: 15 * time.Minute,
	}
}

func isStateChanging(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
