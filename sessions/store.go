package sessions

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/jrsteele09/go-finance-server/internal/shardmap"
	"github.com/jrsteele09/go-finance-server/users"
)

const (
	sessionIDBytes    = 32
	maxCreateAttempts = 3
)

// Store is a concurrent in-memory session table. Each operation locks only the shard that
// holds the key, so a touch on one session never waits on another session's bookkeeping.
type Store struct {
	sessions *shardmap.Map[Session]
	nowFunc  func() time.Time
}

type StoreOption func(*Store)

func WithNowFunc(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowFunc = now
	}
}

// WithShards overrides the shard count.
func WithShards(n int) StoreOption {
	return func(s *Store) {
		s.sessions = shardmap.New[Session](n)
	}
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		sessions: shardmap.New[Session](shardmap.DefaultShards),
		nowFunc:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create starts a session for principalID and returns its id.
func (s *Store) Create(principalID string, role users.Role) (string, error) {
	if principalID == "" {
		return "", fmt.Errorf("principal id is required")
	}
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		id, err := newSessionID()
		if err != nil {
			return "", fmt.Errorf("failed to generate session id: %w", err)
		}
		now := s.nowFunc()
		session := Session{
			ID:             id,
			PrincipalID:    principalID,
			Role:           role,
			CreatedAt:      now,
			LastActivityAt: now,
		}
		if s.sessions.SetIfAbsent(session.Key().String(), session) {
			return id, nil
		}
	}
	return "", fmt.Errorf("failed to allocate a unique session id")
}

// Touch records activity on an existing session. It reports false, and changes nothing,
// when the session does not exist.
func (s *Store) Touch(principalID, sessionID string) bool {
	now := s.nowFunc()
	_, ok := s.sessions.Compute(Key{principalID, sessionID}.String(), func(cur Session, exists bool) (Session, bool) {
		if !exists {
			return cur, false
		}
		if now.After(cur.LastActivityAt) {
			cur.LastActivityAt = now
		}
		return cur, true
	})
	return ok
}

// Get returns a copy of the session.
func (s *Store) Get(principalID, sessionID string) (Session, bool) {
	return s.sessions.Get(Key{principalID, sessionID}.String())
}

// Remove deletes the session. It is idempotent and reports whether anything was removed.
func (s *Store) Remove(principalID, sessionID string) bool {
	return s.sessions.Delete(Key{principalID, sessionID}.String())
}

// RemoveAllFor deletes every session owned by principalID and returns them.
func (s *Store) RemoveAllFor(principalID string) []Session {
	return s.sessions.DeleteIf(func(_ string, sess Session) bool {
		return sess.PrincipalID == principalID
	})
}

// Check evaluates the session against policy at the store's current time in one critical
// section. An expired session is removed before Check returns, so it can never be observed
// as valid afterwards. found is false when no such session exists.
func (s *Store) Check(principalID, sessionID string, policy Policy) (session Session, verdict Verdict, found bool) {
	now := s.nowFunc()
	s.sessions.Compute(Key{principalID, sessionID}.String(), func(cur Session, exists bool) (Session, bool) {
		if !exists {
			return cur, false
		}
		found = true
		session = cur
		verdict = policy.Evaluate(cur, now)
		return cur, !verdict.Expired()
	})
	return session, verdict, found
}

// SweepExpired removes every session policy considers expired at now and returns the count.
func (s *Store) SweepExpired(policy Policy, now time.Time) int {
	return len(s.SweepExpiredSessions(policy, now))
}

// SweepExpiredSessions is SweepExpired returning the removed sessions, so callers can clean
// up dependent state after the store's locks are released.
func (s *Store) SweepExpiredSessions(policy Policy, now time.Time) []Session {
	return s.sessions.DeleteIf(func(_ string, sess Session) bool {
		return policy.Evaluate(sess, now).Expired()
	})
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	return s.sessions.Len()
}

// Now returns the store's clock reading.
func (s *Store) Now() time.Time {
	return s.nowFunc()
}

func newSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
