// Package csrf issues single-session anti-forgery nonces and validates them on
// state-changing requests.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/jrsteele09/go-finance-server/internal/shardmap"
)

// NonceBytes is the entropy of each issued nonce.
const NonceBytes = 32

// Entry is a registered nonce.
type Entry struct {
	Token      string
	SessionKey string
	IssuedAt   time.Time
	TTL        time.Duration
}

// Expired reports whether the nonce is no longer accepted at now. A nonce is still valid at
// exactly IssuedAt+TTL.
func (e Entry) Expired(now time.Time) bool {
	return now.Sub(e.IssuedAt) > e.TTL
}

// Option configures a Registry.
type Option func(*Registry)

// WithNowFunc overrides the registry clock.
func WithNowFunc(fn func() time.Time) Option {
	return func(r *Registry) {
		if fn != nil {
			r.nowFunc = fn
		}
	}
}

// Registry tracks issued nonces and the session each one is bound to.
type Registry struct {
	tokens  *shardmap.Map[Entry]
	nowFunc func() time.Time
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		tokens:  shardmap.New[Entry](shardmap.DefaultShards),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Issue creates a nonce bound to sessionKey, valid for ttl.
func (r *Registry) Issue(sessionKey string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("csrf ttl must be positive")
	}
	issuedAt := r.nowFunc()
	for attempt := 0; attempt < 3; attempt++ {
		tok, err := newNonce()
		if err != nil {
			return "", err
		}
		if r.tokens.SetIfAbsent(tok, Entry{Token: tok, SessionKey: sessionKey, IssuedAt: issuedAt, TTL: ttl}) {
			return tok, nil
		}
	}
	return "", fmt.Errorf("failed to allocate unique csrf token")
}

// Validate reports whether token was issued and has not expired. An expired token is
// removed as a side effect.
func (r *Registry) Validate(token string) bool {
	_, ok := r.lookup(token)
	return ok
}

// ValidateFor is Validate plus a check that token was issued for sessionKey.
func (r *Registry) ValidateFor(token, sessionKey string) bool {
	e, ok := r.lookup(token)
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(e.SessionKey), []byte(sessionKey)) == 1
}

func (r *Registry) lookup(token string) (Entry, bool) {
	if token == "" {
		return Entry{}, false
	}
	now := r.nowFunc()
	var found Entry
	var ok bool
	r.tokens.Compute(token, func(cur Entry, exists bool) (Entry, bool) {
		if !exists {
			return cur, false
		}
		if cur.Expired(now) {
			return cur, false
		}
		found, ok = cur, true
		return cur, true
	})
	return found, ok
}

// Revoke removes a single token and reports whether it was registered.
func (r *Registry) Revoke(token string) bool {
	return r.tokens.Delete(token)
}

// RevokeAllFor removes every token bound to sessionKey and returns how many were removed.
func (r *Registry) RevokeAllFor(sessionKey string) int {
	return len(r.tokens.DeleteIf(func(_ string, e Entry) bool {
		return e.SessionKey == sessionKey
	}))
}

// SweepExpired removes tokens expired at now and returns how many were removed.
func (r *Registry) SweepExpired(now time.Time) int {
	return len(r.tokens.DeleteIf(func(_ string, e Entry) bool {
		return e.Expired(now)
	}))
}

// Len returns the number of registered tokens.
func (r *Registry) Len() int {
	return r.tokens.Len()
}

func newNonce() (string, error) {
	b := make([]byte, NonceBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate csrf token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
