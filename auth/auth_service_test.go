package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-finance-server/auth"
	"github.com/jrsteele09/go-finance-server/csrf"
	apperrors "github.com/jrsteele09/go-finance-server/internal/errors"
	"github.com/jrsteele09/go-finance-server/ratelimit"
	"github.com/jrsteele09/go-finance-server/sessions"
	"github.com/jrsteele09/go-finance-server/token"
	"github.com/jrsteele09/go-finance-server/users"
	"github.com/jrsteele09/go-finance-server/users/memrepo"
	"github.com/stretchr/testify/require"
)

const (
	signingKey     = "0123456789abcdef0123456789abcdef"
	testOrigin     = "192.0.2.10"
	memberEmail    = "jane.doe@example.com"
	memberPassword = "Passw0rdOne"
	adminEmail     = "admin@example.com"
	adminPassword  = "Adm1nPassword"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testFixture holds all test dependencies
type testFixture struct {
	clock    *fakeClock
	users    *memrepo.InMemoryUserRepo
	codec    *token.Codec
	sessions *sessions.Store
	limiter  *ratelimit.MemoryLimiter
	csrf     *csrf.Registry
	service  *auth.AuthorizationService
}

// setupTestFixture creates a new test fixture with all dependencies sharing one clock
func setupTestFixture(t *testing.T, throttle *ratelimit.Throttle) *testFixture {
	t.Helper()

	clock := &fakeClock{now: t0}
	codec, err := token.NewCodec(signingKey, token.WithIssuer("test"), token.WithNowFunc(clock.Now))
	require.NoError(t, err)

	f := &testFixture{
		clock:    clock,
		users:    memrepo.NewInMemoryUserRepo(),
		codec:    codec,
		sessions: sessions.NewStore(sessions.WithNowFunc(clock.Now)),
		limiter:  ratelimit.NewMemoryLimiter(),
		csrf:     csrf.NewRegistry(csrf.WithNowFunc(clock.Now)),
	}

	f.service, err = auth.NewAuthorizationService(auth.Components{
		Users:         f.users,
		Codec:         f.codec,
		Sessions:      f.sessions,
		Limiter:       f.limiter,
		CSRF:          f.csrf,
		LoginThrottle: throttle,
	}, sessions.DefaultPolicy(), auth.DefaultSettings(), auth.WithNowTime(clock.Now))
	require.NoError(t, err)
	return f
}

func (f *testFixture) addUser(t *testing.T, email, password string, role users.Role, status users.AccountStatus) *users.User {
	t.Helper()
	hash, err := users.HashPassword(password)
	require.NoError(t, err)
	u := &users.User{Email: email, Name: email, PasswordHash: hash, Role: role, Status: status, DateJoined: f.clock.Now()}
	require.NoError(t, f.users.Upsert(u))
	return u
}

func (f *testFixture) login(t *testing.T, email, password string) *auth.LoginResult {
	t.Helper()
	res, err := f.service.Login(context.Background(), email, password, testOrigin)
	require.NoError(t, err)
	return res
}

func requireRejection(t *testing.T, err error, kind auth.RejectionKind) *auth.Rejection {
	t.Helper()
	require.Error(t, err)
	rej, ok := auth.AsRejection(err)
	require.True(t, ok, "expected a rejection, got %v", err)
	require.Equal(t, kind, rej.Kind, rej.Message)
	return rej
}

func sessionRequest(res *auth.LoginResult, method string) auth.Request {
	return auth.Request{
		Credential: res.AccessToken,
		SessionID:  res.SessionID,
		CSRFToken:  res.CSRFToken,
		Method:     method,
		Origin:     testOrigin,
	}
}

func TestNewAuthorizationService_RequiresComponents(t *testing.T) {
	_, err := auth.NewAuthorizationService(auth.Components{}, sessions.DefaultPolicy(), auth.DefaultSettings())
	require.Error(t, err)

	f := setupTestFixture(t, nil)
	settings := auth.DefaultSettings()
	settings.RateLimitMax = 0
	_, err = auth.NewAuthorizationService(auth.Components{
		Users: f.users, Codec: f.codec, Sessions: f.sessions, Limiter: f.limiter, CSRF: f.csrf,
	}, sessions.DefaultPolicy(), settings)
	require.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestLogin(t *testing.T) {
	f := setupTestFixture(t, nil)
	member := f.addUser(t, memberEmail, memberPassword, users.RoleMember, users.StatusApproved)
	f.addUser(t, "pending@example.com", memberPassword, users.RoleMember, users.StatusPending)
	f.addUser(t, "revoked@example.com", memberPassword, users.RoleMember, users.StatusRevoked)

	t.Run("success opens session and issues credential", func(t *testing.T) {
		res := f.login(t, "Jane.Doe@Example.com", memberPassword)

		id, err := f.codec.Verify(res.AccessToken)
		require.NoError(t, err)
		require.Equal(t, member.ID, id.PrincipalID)
		require.Equal(t, users.RoleMember, id.Role)
		require.Equal(t, t0.Add(15*time.Minute), res.ExpiresAt)
		require.True(t, id.ExpiresAt.Equal(res.ExpiresAt), "reported expiry is the encoded exp")

		s, ok := f.sessions.Get(member.ID, res.SessionID)
		require.True(t, ok)
		require.Equal(t, t0, s.CreatedAt)
		require.True(t, f.csrf.ValidateFor(res.CSRFToken, s.Key().String()))

		stored, err := f.users.GetByID(member.ID)
		require.NoError(t, err)
		require.Equal(t, t0, stored.LastLogin)
	})

	t.Run("wrong password and unknown email look the same", func(t *testing.T) {
		_, err := f.service.Login(context.Background(), memberEmail, "Wrong1Password", testOrigin)
		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
		_, err = f.service.Login(context.Background(), "nobody@example.com", memberPassword, testOrigin)
		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	})

	t.Run("account status", func(t *testing.T) {
		_, err := f.service.Login(context.Background(), "pending@example.com", memberPassword, testOrigin)
		require.ErrorIs(t, err, apperrors.ErrAccountNotApproved)
		_, err = f.service.Login(context.Background(), "revoked@example.com", memberPassword, testOrigin)
		require.ErrorIs(t, err, apperrors.ErrAccountRevoked)
	})
}

func TestLogin_Throttled(t *testing.T) {
	f := setupTestFixture(t, ratelimit.NewThrottle(0.1, 2, time.Hour))
	f.addUser(t, memberEmail, memberPassword, users.RoleMember, users.StatusApproved)

	for i := 0; i < 2; i++ {
		_, err := f.service.Login(context.Background(), memberEmail, "Wrong1Password", testOrigin)
		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	}

	_, err := f.service.Login(context.Background(), memberEmail, memberPassword, testOrigin)
	rej := requireRejection(t, err, auth.TooManyRequests)
	require.Equal(t, 10*time.Second, rej.RetryAfter)

	f.clock.Advance(10 * time.Second)
	f.login(t, memberEmail, memberPassword)
}

// lookupHookRepo runs onLookup after GetByEmail has read the user, so a test can change the
// account while a login is between its status check and session creation.
type lookupHookRepo struct {
	users.UserRepo
	onLookup func()
}

func (r *lookupHookRepo) GetByEmail(email string) (*users.User, error) {
	u, err := r.UserRepo.GetByEmail(email)
	if r.onLookup != nil {
		r.onLookup()
	}
	return u, err
}

func TestLogin_RevokedDuringLogin(t *testing.T) {
	f := setupTestFixture(t, nil)
	member := f.addUser(t, memberEmail, memberPassword, users.RoleMember, users.StatusApproved)

	repo := &lookupHookRepo{UserRepo: f.users}
	svc, err := auth.NewAuthorizationService(auth.Components{
		Users: repo, Codec: f.codec, Sessions: f.sessions, Limiter: f.limiter, CSRF: f.csrf,
	}, sessions.DefaultPolicy(), auth.DefaultSettings(), auth.WithNowTime(f.clock.Now))
	require.NoError(t, err)

	repo.onLookup = func() {
		require.NoError(t, f.service.RevokeUser(member.ID))
	}

	res, err := svc.Login(context.Background(), memberEmail, memberPassword, testOrigin)
	require.ErrorIs(t, err, apperrors.ErrAccountRevoked)
	require.Nil(t, res)
	require.Zero(t, f.sessions.Len(), "no session survives for the revoked account")
	require.Zero(t, f.csrf.Len())

	stored, err := f.users.GetByID(member.ID)
	require.NoError(t, err)
	require.Equal(t, users.StatusRevoked, stored.Status)
}

func TestRegister(t *testing.T) {
	f := setupTestFixture(t, nil)

	u, err := f.service.Register(context.Background(), "New.User@example.com", "New User", "Str0ngPassword", testOrigin)
	require.NoError(t, err)
	require.NotEmpty(t, u.ID)
	require.Equal(t, users.StatusPending, u.Status)
	require.Equal(t, users.RoleMember, u.Role)

	_, err = f.service.Login(context.Background(), "new.user@example.com", "Str0ngPassword", testOrigin)
	require.ErrorIs(t, err, apperrors.ErrAccountNotApproved)

	require.NoError(t, f.service.ApproveUser(u.ID))
	f.login(t, "new.user@example.com", "Str0ngPassword")

	_, err = f.service.Register(context.Background(), "new.user@example.com", "Again", "Str0ngPassword", testOrigin)
	require.ErrorIs(t, err, apperrors.ErrUserExists)

	_, err = f.service.Register(context.Background(), "weak@example.com", "Weak", "weak", testOrigin)
	require.ErrorIs(t, err, apperrors.ErrWeakPassword)
}

func TestAuthorize_SessionLifecycleEndToEnd(t *testing.T) {
	f := setupTestFixture(t, nil)
	member := f.addUser(t, memberEmail, memberPassword, users.RoleMember, users.StatusApproved)
	res := f.login(t, memberEmail, memberPassword)
	reqs := auth.Requirements{Session: true}

	f.clock.Advance(100 * time.Second)
	ac, err := f.service.Authorize(context.Background(), sessionRequest(res, "GET"), reqs)
	require.NoError(t, err)
	require.Equal(t, member.ID, ac.PrincipalID)
	require.Equal(t, res.SessionID, ac.SessionID)
	require.True(t, ac.SessionWarning, "idle past inactivity timeout minus warning lead")
	require.Equal(t, 500*time.Second, ac.ExpiresIn)

	s, ok := f.sessions.Get(member.ID, res.SessionID)
	require.True(t, ok)
	require.Equal(t, t0.Add(100*time.Second), s.LastActivityAt)

	f.clock.Advance(10*time.Minute + time.Second)
	_, err = f.service.Authorize(context.Background(), sessionRequest(res, "GET"), reqs)
	requireRejection(t, err, auth.SessionExpired)

	_, ok = f.sessions.Get(member.ID, res.SessionID)
	require.False(t, ok, "expired session is removed when detected")
	require.False(t, f.csrf.Validate(res.CSRFToken), "nonces of an expired session are revoked")
}

func TestAuthorize_Credential(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.addUser(t, memberEmail, memberPassword, users.RoleMember, users.StatusApproved)
	res := f.login(t, memberEmail, memberPassword)

	t.Run("missing", func(t *testing.T) {
		_, err := f.service.Authorize(context.Background(), auth.Request{Method: "GET"}, auth.Requirements{})
		requireRejection(t, err, auth.Unauthenticated)
	})

	t.Run("malformed and expired share one message", func(t *testing.T) {
		_, err := f.service.Authorize(context.Background(), auth.Request{Credential: "not-a-token"}, auth.Requirements{})
		malformed := requireRejection(t, err, auth.Unauthenticated)

		other, err := token.NewCodec("another-signing-key-of-32-bytes!!", token.WithIssuer("test"), token.WithNowFunc(f.clock.Now))
		require.NoError(t, err)
		forged, err := other.Issue("someone", users.RoleAdmin, time.Hour)
		require.NoError(t, err)
		_, err = f.service.Authorize(context.Background(), auth.Request{Credential: forged}, auth.Requirements{})
		badSig := requireRejection(t, err, auth.Unauthenticated)

		f.clock.Advance(15 * time.Minute)
		_, err = f.service.Authorize(context.Background(), auth.Request{Credential: res.AccessToken}, auth.Requirements{})
		expired := requireRejection(t, err, auth.Unauthenticated)

		require.Equal(t, malformed.Message, badSig.Message)
		require.Equal(t, malformed.Message, expired.Message)
	})
}

func TestAuthorize_CredentialOnlyRoute(t *testing.T) {
	f := setupTestFixture(t, nil)
	member := f.addUser(t, memberEmail, memberPassword, users.RoleMember, users.StatusApproved)
	res := f.login(t, memberEmail, memberPassword)

	ac, err := f.service.Authorize(context.Background(), auth.Request{Credential: res.AccessToken, Method: "GET"}, auth.Requirements{})
	require.NoError(t, err)
	require.Equal(t, member.ID, ac.PrincipalID)
	require.Empty(t, ac.SessionID)
}

func TestAuthorize_SessionChecks(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.addUser(t, memberEmail, memberPassword, users.RoleMember, users.StatusApproved)
	f.addUser(t, "other@example.com", memberPassword, users.RoleMember, users.StatusApproved)
	res := f.login(t, memberEmail, memberPassword)
	other := f.login(t, "other@example.com", memberPassword)
	reqs := auth.Requirements{Session: true}

	t.Run("missing session id", func(t *testing.T) {
		req := sessionRequest(res, "GET")
		req.SessionID = ""
		_, err := f.service.Authorize(context.Background(), req, reqs)
		requireRejection(t, err, auth.Unauthenticated)
	})

	t.Run("unknown session id", func(t *testing.T) {
		req := sessionRequest(res, "GET")
		req.SessionID = "unknown"
		_, err := f.service.Authorize(context.Background(), req, reqs)
		requireRejection(t, err, auth.SessionExpired)
	})

	t.Run("another principal's session", func(t *testing.T) {
		req := sessionRequest(res, "GET")
		req.SessionID = other.SessionID
		_, err := f.service.Authorize(context.Background(), req, reqs)
		requireRejection(t, err, auth.SessionExpired)
	})

	t.Run("renewal hint near inactivity timeout", func(t *testing.T) {
		f.clock.Advance(9*time.Minute + 30*time.Second)
		ac, err := f.service.Authorize(context.Background(), sessionRequest(res, "GET"), reqs)
		require.NoError(t, err)
		require.True(t, ac.SessionWarning)
		require.Equal(t, 30*time.Second, ac.ExpiresIn)
	})
}

func TestAuthorize_PassiveDoesNotTouch(t *testing.T) {
	f := setupTestFixture(t, nil)
	member := f.addUser(t, memberEmail, memberPassword, users.RoleMember, users.StatusApproved)
	res := f.login(t, memberEmail, memberPassword)

	f.clock.Advance(time.Minute)
	_, err := f.service.Authorize(context.Background(), sessionRequest(res, "GET"), auth.Requirements{Session: true, Passive: true})
	require.NoError(t, err)

	s, ok := f.sessions.Get(member.ID, res.SessionID)
	require.True(t, ok)
	require.Equal(t, t0, s.LastActivityAt)
}

func TestAuthorize_Privileged(t *testing.T) {
	f := setupTestFixture(t, nil)
	member := f.addUser(t, memberEmail, memberPassword, users.RoleMember, users.StatusApproved)
	f.addUser(t, adminEmail, adminPassword, users.RoleAdmin, users.StatusApproved)
	memberRes := f.login(t, memberEmail, memberPassword)
	adminRes := f.login(t, adminEmail, adminPassword)
	reqs := auth.Requirements{Session: true, Privileged: true}

	f.clock.Advance(time.Minute)
	_, err := f.service.Authorize(context.Background(), sessionRequest(memberRes, "GET"), reqs)
	requireRejection(t, err, auth.Forbidden)

	s, ok := f.sessions.Get(member.ID, memberRes.SessionID)
	require.True(t, ok)
	require.Equal(t, t0, s.LastActivityAt, "a rejected request does not record activity")

	ac, err := f.service.Authorize(context.Background(), sessionRequest(adminRes, "GET"), reqs)
	require.NoError(t, err)
	require.Equal(t, users.RoleAdmin, ac.Role)
}

func TestAuthorize_RateLimit(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.addUser(t, adminEmail, adminPassword, users.RoleAdmin, users.StatusApproved)
	res := f.login(t, adminEmail, adminPassword)
	reqs := auth.Requirements{Session: true, Privileged: true, RateLimit: true}

	for i := 0; i < 5; i++ {
		_, err := f.service.Authorize(context.Background(), sessionRequest(res, "GET"), reqs)
		require.NoError(t, err, "attempt %d", i+1)
	}

	f.clock.Advance(time.Minute)
	_, err := f.service.Authorize(context.Background(), sessionRequest(res, "GET"), reqs)
	rej := requireRejection(t, err, auth.TooManyRequests)
	require.Equal(t, 14*time.Minute, rej.RetryAfter)
	require.Equal(t, 840, rej.RetryAfterSeconds())

	t.Run("other origins have their own budget", func(t *testing.T) {
		req := sessionRequest(res, "GET")
		req.Origin = "198.51.100.7"
		_, err := f.service.Authorize(context.Background(), req, reqs)
		require.NoError(t, err)
	})
}

type failingLimiter struct{}

func (failingLimiter) CheckAndIncrement(context.Context, string, int, time.Duration, time.Time) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, ratelimit.ErrUnavailable
}

func (failingLimiter) SweepExpired(context.Context, time.Time) (int, error) {
	return 0, ratelimit.ErrUnavailable
}

func TestAuthorize_LimiterUnavailable(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.addUser(t, adminEmail, adminPassword, users.RoleAdmin, users.StatusApproved)
	res := f.login(t, adminEmail, adminPassword)

	svc, err := auth.NewAuthorizationService(auth.Components{
		Users: f.users, Codec: f.codec, Sessions: f.sessions, Limiter: failingLimiter{}, CSRF: f.csrf,
	}, sessions.DefaultPolicy(), auth.DefaultSettings(), auth.WithNowTime(f.clock.Now))
	require.NoError(t, err)

	_, err = svc.Authorize(context.Background(), sessionRequest(res, "POST"), auth.Requirements{Session: true, RateLimit: true})
	rej := requireRejection(t, err, auth.Unavailable)
	require.Equal(t, 503, rej.Kind.StatusCode())
}

func TestAuthorize_CSRF(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.addUser(t, memberEmail, memberPassword, users.RoleMember, users.StatusApproved)
	res := f.login(t, memberEmail, memberPassword)
	second := f.login(t, memberEmail, memberPassword)
	reqs := auth.Requirements{Session: true, CSRF: true}

	t.Run("safe methods need no nonce", func(t *testing.T) {
		req := sessionRequest(res, "GET")
		req.CSRFToken = ""
		_, err := f.service.Authorize(context.Background(), req, reqs)
		require.NoError(t, err)
	})

	for _, method := range []string{"POST", "PUT", "PATCH", "DELETE"} {
		t.Run(method+" without nonce", func(t *testing.T) {
			req := sessionRequest(res, method)
			req.CSRFToken = ""
			_, err := f.service.Authorize(context.Background(), req, reqs)
			requireRejection(t, err, auth.Forbidden)
		})
	}

	t.Run("nonce bound to another session", func(t *testing.T) {
		req := sessionRequest(res, "POST")
		req.CSRFToken = second.CSRFToken
		_, err := f.service.Authorize(context.Background(), req, reqs)
		requireRejection(t, err, auth.Forbidden)
	})

	t.Run("valid nonce is reusable until expiry", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			_, err := f.service.Authorize(context.Background(), sessionRequest(res, "POST"), reqs)
			require.NoError(t, err)
		}
	})

	t.Run("extra nonce for a new tab", func(t *testing.T) {
		ac, err := f.service.Authorize(context.Background(), sessionRequest(res, "POST"), reqs)
		require.NoError(t, err)
		extra, err := f.service.IssueCSRF(ac)
		require.NoError(t, err)

		req := sessionRequest(res, "DELETE")
		req.CSRFToken = extra
		_, err = f.service.Authorize(context.Background(), req, reqs)
		require.NoError(t, err)
	})
}

func TestTerminateSession(t *testing.T) {
	f := setupTestFixture(t, nil)
	member := f.addUser(t, memberEmail, memberPassword, users.RoleMember, users.StatusApproved)
	res := f.login(t, memberEmail, memberPassword)

	f.service.TerminateSession(member.ID, res.SessionID)
	f.service.TerminateSession(member.ID, res.SessionID)

	_, ok := f.sessions.Get(member.ID, res.SessionID)
	require.False(t, ok)
	require.False(t, f.csrf.Validate(res.CSRFToken))

	_, err := f.service.Authorize(context.Background(), sessionRequest(res, "GET"), auth.Requirements{Session: true})
	requireRejection(t, err, auth.SessionExpired)

	_, err = f.service.Authorize(context.Background(), sessionRequest(res, "GET"), auth.Requirements{})
	require.NoError(t, err, "credential-only routes accept the credential until it expires")
}

func TestRevokeUser(t *testing.T) {
	f := setupTestFixture(t, nil)
	member := f.addUser(t, memberEmail, memberPassword, users.RoleMember, users.StatusApproved)
	first := f.login(t, memberEmail, memberPassword)
	second := f.login(t, memberEmail, memberPassword)

	require.NoError(t, f.service.RevokeUser(member.ID))
	require.Zero(t, f.sessions.Len())
	require.False(t, f.csrf.Validate(first.CSRFToken))
	require.False(t, f.csrf.Validate(second.CSRFToken))

	_, err := f.service.Login(context.Background(), memberEmail, memberPassword, testOrigin)
	require.ErrorIs(t, err, apperrors.ErrAccountRevoked)

	require.ErrorIs(t, f.service.RevokeUser("missing"), apperrors.ErrUserNotFound)
}

func TestRefreshCredential(t *testing.T) {
	f := setupTestFixture(t, nil)
	member := f.addUser(t, memberEmail, memberPassword, users.RoleMember, users.StatusApproved)
	res := f.login(t, memberEmail, memberPassword)

	f.clock.Advance(5 * time.Minute)
	ac, err := f.service.Authorize(context.Background(), sessionRequest(res, "POST"), auth.Requirements{Session: true, CSRF: true})
	require.NoError(t, err)

	tok, expires, err := f.service.RefreshCredential(ac)
	require.NoError(t, err)
	require.Equal(t, t0.Add(20*time.Minute), expires)

	id, err := f.codec.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, member.ID, id.PrincipalID)

	require.NoError(t, f.users.SetStatus(member.ID, users.StatusRevoked))
	_, _, err = f.service.RefreshCredential(ac)
	require.ErrorIs(t, err, apperrors.ErrAccountRevoked)
	_, ok := f.sessions.Get(member.ID, res.SessionID)
	require.False(t, ok)
}

func TestSessionInfo(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.addUser(t, memberEmail, memberPassword, users.RoleMember, users.StatusApproved)
	res := f.login(t, memberEmail, memberPassword)

	f.clock.Advance(2 * time.Minute)
	ac, err := f.service.Authorize(context.Background(), sessionRequest(res, "GET"), auth.Requirements{Session: true, Passive: true})
	require.NoError(t, err)

	s, remaining, err := f.service.SessionInfo(ac)
	require.NoError(t, err)
	require.Equal(t, t0, s.CreatedAt)
	require.Equal(t, 8*time.Minute, remaining)
}

func TestSweepTasks(t *testing.T) {
	f := setupTestFixture(t, ratelimit.NewThrottle(1, 5, time.Minute))
	f.addUser(t, adminEmail, adminPassword, users.RoleAdmin, users.StatusApproved)
	res := f.login(t, adminEmail, adminPassword)

	_, err := f.service.Authorize(context.Background(), sessionRequest(res, "GET"), auth.Requirements{Session: true, RateLimit: true})
	require.NoError(t, err)

	tasks := f.service.SweepTasks()
	names := make([]string, 0, len(tasks))
	for _, task := range tasks {
		names = append(names, task.Name)
	}
	require.Equal(t, []string{"sessions", "rate_limits", "csrf", "login_throttle"}, names)

	now := t0.Add(20 * time.Minute)
	counts := make(map[string]int)
	for _, task := range tasks {
		n, err := task.Run(context.Background(), now)
		require.NoError(t, err)
		counts[task.Name] = n
	}
	require.Equal(t, map[string]int{"sessions": 1, "rate_limits": 1, "csrf": 0, "login_throttle": 1}, counts)
	require.Zero(t, f.csrf.Len(), "the session sweep revokes the session's nonces")
	require.Zero(t, f.sessions.Len())
}

func TestAuthorize_ConcurrentRateLimitedRequests(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.addUser(t, adminEmail, adminPassword, users.RoleAdmin, users.StatusApproved)
	res := f.login(t, adminEmail, adminPassword)
	reqs := auth.Requirements{Session: true, Privileged: true, RateLimit: true}

	var mu sync.Mutex
	kinds := make(map[string]int)
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Authorize(context.Background(), sessionRequest(res, "GET"), reqs)
			key := "allowed"
			if rej, ok := auth.AsRejection(err); ok {
				key = rej.Kind.String()
			}
			mu.Lock()
			kinds[key]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, map[string]int{"allowed": 5, "too_many_requests": 35}, kinds)
}
