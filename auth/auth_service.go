package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-finance-server/csrf"
	apperrors "github.com/jrsteele09/go-finance-server/internal/errors"
	"github.com/jrsteele09/go-finance-server/ratelimit"
	"github.com/jrsteele09/go-finance-server/sessions"
	"github.com/jrsteele09/go-finance-server/token"
	"github.com/jrsteele09/go-finance-server/users"
	"github.com/rs/zerolog/log"
)

// Components holds the stores and codecs the AuthorizationService orchestrates.
type Components struct {
	Users         users.UserRepo      // Identity store
	Codec         *token.Codec        // Signs and verifies credentials
	Sessions      *sessions.Store     // Server-side session table
	Limiter       ratelimit.Limiter   // Sensitive-operation budget per principal and origin
	CSRF          *csrf.Registry      // Anti-forgery nonces bound to sessions
	LoginThrottle *ratelimit.Throttle // Optional per-origin throttle for login and registration
}

// AuthorizationService issues sessions and decides whether requests may proceed.
type AuthorizationService struct {
	components Components
	policy     sessions.Policy
	settings   Settings
	nowTime    func() time.Time
}

// AuthorizationServiceOption defines a function type to modify the AuthorizationService instance.
type AuthorizationServiceOption func(*AuthorizationService)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.nowTime = nowFunc
	}
}

// NewAuthorizationService initializes a new AuthorizationService with required dependencies.
func NewAuthorizationService(
	components Components,
	policy sessions.Policy,
	settings Settings,
	options ...AuthorizationServiceOption,
) (*AuthorizationService, error) {
	if components.Users == nil {
		return nil, errors.New("[NewAuthorizationService] Users repo is required")
	}
	if components.Codec == nil {
		return nil, errors.New("[NewAuthorizationService] Codec is required")
	}
	if components.Sessions == nil {
		return nil, errors.New("[NewAuthorizationService] Sessions store is required")
	}
	if components.Limiter == nil {
		return nil, errors.New("[NewAuthorizationService] Limiter is required")
	}
	if components.CSRF == nil {
		return nil, errors.New("[NewAuthorizationService] CSRF registry is required")
	}
	if settings.AccessTokenTTL <= 0 || settings.CSRFTokenTTL <= 0 {
		return nil, apperrors.Configf("token lifetimes must be positive")
	}
	if settings.RateLimitMax <= 0 || settings.RateLimitWindow <= 0 {
		return nil, apperrors.Configf("rate limit and window must be positive")
	}

	as := &AuthorizationService{
		components: components,
		policy:     policy,
		settings:   settings,
		nowTime:    time.Now,
	}
	for _, opt := range options {
		opt(as)
	}
	return as, nil
}

// Policy returns the session policy in force.
func (as *AuthorizationService) Policy() sessions.Policy {
	return as.policy
}

// Users returns the identity store.
func (as *AuthorizationService) Users() users.UserRepo {
	return as.components.Users
}

// dummyHash lets a login for an unknown email spend the same bcrypt time as a wrong password.
var dummyHash = sync.OnceValue(func() string {
	h, err := users.HashPassword("not-a-real-password-0")
	if err != nil {
		log.Error().Err(err).Msg("Failed to build dummy password hash")
	}
	return h
})

// Login verifies the email and password, then opens a session and issues a credential.
// Unknown emails and wrong passwords both yield ErrInvalidCredentials.
func (as *AuthorizationService) Login(ctx context.Context, email, password, origin string) (*LoginResult, error) {
	if err := as.throttle(origin); err != nil {
		return nil, err
	}

	user, err := as.components.Users.GetByEmail(email)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrUserNotFound) {
			users.CheckPasswordHash(password, dummyHash())
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, apperrors.Wrapf(err, "[Login] user lookup failed")
	}
	if !users.CheckPasswordHash(password, user.PasswordHash) {
		return nil, apperrors.ErrInvalidCredentials
	}
	switch user.Status {
	case users.StatusPending:
		return nil, apperrors.ErrAccountNotApproved
	case users.StatusRevoked:
		return nil, apperrors.ErrAccountRevoked
	}

	grant, err := as.CreateSession(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	// An approve or revoke may have landed during the password check. Re-reading after the
	// session exists means a concurrent RevokeUser either sees the session or is seen here.
	if err := as.recheckStatus(user.ID); err != nil {
		as.TerminateSession(user.ID, grant.SessionID)
		return nil, err
	}
	accessToken, expiresAt, err := as.components.Codec.Issue(user.ID, user.Role, as.settings.AccessTokenTTL)
	if err != nil {
		as.TerminateSession(user.ID, grant.SessionID)
		return nil, apperrors.Wrapf(err, "[Login] failed to issue credential")
	}

	now := as.nowTime()
	if err := as.components.Users.RecordLogin(user.ID, now); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID).Msg("Failed to record login time")
	}
	user.LastLogin = now

	log.Info().Str("user_id", user.ID).Str("origin", origin).Msg("User logged in")
	return &LoginResult{
		AccessToken: accessToken,
		ExpiresAt:   expiresAt,
		SessionID:   grant.SessionID,
		CSRFToken:   grant.CSRFToken,
		User:        user,
	}, nil
}

// Register creates a member account awaiting admin approval.
func (as *AuthorizationService) Register(ctx context.Context, email, name, password, origin string) (*users.User, error) {
	if err := as.throttle(origin); err != nil {
		return nil, err
	}
	if err := users.ValidatePasswordStrength(password); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrWeakPassword, err)
	}
	hash, err := users.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("%w: [Register] failed to hash password: %v", apperrors.ErrInternal, err)
	}

	user := &users.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         users.RoleMember,
		Status:       users.StatusPending,
		DateJoined:   as.nowTime(),
	}
	if err := as.components.Users.Upsert(user); err != nil {
		return nil, err
	}
	log.Info().Str("user_id", user.ID).Msg("User registered, awaiting approval")
	return user, nil
}

func (as *AuthorizationService) recheckStatus(userID string) error {
	user, err := as.components.Users.GetByID(userID)
	if err != nil {
		return apperrors.Wrapf(err, "[Login] user lookup failed")
	}
	switch user.Status {
	case users.StatusApproved:
		return nil
	case users.StatusPending:
		return apperrors.ErrAccountNotApproved
	default:
		return apperrors.ErrAccountRevoked
	}
}

func (as *AuthorizationService) throttle(origin string) error {
	if as.components.LoginThrottle == nil {
		return nil
	}
	if ok, wait := as.components.LoginThrottle.Allow(origin, as.nowTime()); !ok {
		log.Warn().Str("origin", origin).Msg("Login throttled")
		return &Rejection{Kind: TooManyRequests, Message: "too many attempts, try again later", RetryAfter: wait}
	}
	return nil
}

// CreateSession opens a session for the principal and issues its first CSRF nonce.
func (as *AuthorizationService) CreateSession(principalID string, role users.Role) (SessionGrant, error) {
	sessionID, err := as.components.Sessions.Create(principalID, role)
	if err != nil {
		return SessionGrant{}, apperrors.Wrapf(err, "[CreateSession] failed to create session")
	}
	csrfToken, err := as.components.CSRF.Issue(sessionKey(principalID, sessionID), as.settings.CSRFTokenTTL)
	if err != nil {
		as.components.Sessions.Remove(principalID, sessionID)
		return SessionGrant{}, apperrors.Wrapf(err, "[CreateSession] failed to issue csrf token")
	}
	return SessionGrant{SessionID: sessionID, CSRFToken: csrfToken}, nil
}

// TerminateSession removes the session and every nonce bound to it. It is idempotent.
func (as *AuthorizationService) TerminateSession(principalID, sessionID string) {
	removed := as.components.Sessions.Remove(principalID, sessionID)
	revoked := as.components.CSRF.RevokeAllFor(sessionKey(principalID, sessionID))
	log.Debug().Str("user_id", principalID).Bool("removed", removed).Int("csrf_revoked", revoked).Msg("Session terminated")
}

// RefreshCredential issues a fresh credential for an authorized caller.
func (as *AuthorizationService) RefreshCredential(ac *AuthContext) (string, time.Time, error) {
	user, err := as.components.Users.GetByID(ac.PrincipalID)
	if err != nil {
		return "", time.Time{}, apperrors.Wrapf(err, "[RefreshCredential] user lookup failed")
	}
	if !user.CanLogin() {
		as.TerminateSession(ac.PrincipalID, ac.SessionID)
		return "", time.Time{}, apperrors.ErrAccountRevoked
	}
	tok, expiresAt, err := as.components.Codec.Issue(user.ID, user.Role, as.settings.AccessTokenTTL)
	if err != nil {
		return "", time.Time{}, apperrors.Wrapf(err, "[RefreshCredential] failed to issue credential")
	}
	return tok, expiresAt, nil
}

// IssueCSRF issues an extra nonce for the caller's session, e.g. for a second browser tab.
func (as *AuthorizationService) IssueCSRF(ac *AuthContext) (string, error) {
	if ac.SessionID == "" {
		return "", apperrors.ErrSessionNotFound
	}
	return as.components.CSRF.Issue(ac.SessionKey(), as.settings.CSRFTokenTTL)
}

// SessionInfo returns the caller's session and the time left before it expires from inactivity.
func (as *AuthorizationService) SessionInfo(ac *AuthContext) (sessions.Session, time.Duration, error) {
	s, ok := as.components.Sessions.Get(ac.PrincipalID, ac.SessionID)
	if !ok {
		return sessions.Session{}, 0, apperrors.ErrSessionNotFound
	}
	return s, as.policy.Remaining(s, as.components.Sessions.Now()), nil
}

// ListUsers pages through the identity store.
func (as *AuthorizationService) ListUsers(offset, limit int) ([]*users.User, int, error) {
	return as.components.Users.List(offset, limit)
}

// ApproveUser lets a pending or revoked account log in.
func (as *AuthorizationService) ApproveUser(userID string) error {
	if err := as.components.Users.SetStatus(userID, users.StatusApproved); err != nil {
		return err
	}
	log.Info().Str("user_id", userID).Msg("User approved")
	return nil
}

// RevokeUser blocks the account and ends all of its sessions. Outstanding credentials stay
// verifiable until they expire, but none of them can pass a session-guarded route.
func (as *AuthorizationService) RevokeUser(userID string) error {
	if err := as.components.Users.SetStatus(userID, users.StatusRevoked); err != nil {
		return err
	}
	ended := as.components.Sessions.RemoveAllFor(userID)
	for _, s := range ended {
		as.components.CSRF.RevokeAllFor(s.Key().String())
	}
	log.Info().Str("user_id", userID).Int("sessions_ended", len(ended)).Msg("User revoked")
	return nil
}

func sessionKey(principalID, sessionID string) string {
	return sessions.Key{PrincipalID: principalID, SessionID: sessionID}.String()
}
