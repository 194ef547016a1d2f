package sessions

import (
	"time"

	"github.com/jrsteele09/go-finance-server/users"
)

// Session is the server-side record of a logged-in principal. It is independent of the
// signed credential: revoking a session does not touch the credential and vice versa.
type Session struct {
	ID             string     // 256-bit random identifier, base64url encoded
	PrincipalID    string     // Owner of the session
	Role           users.Role // Role at login time
	CreatedAt      time.Time  // Start of the absolute lifetime
	LastActivityAt time.Time  // Never moves backwards
}

// Key identifies a session. Sessions are always addressed by owner and id together so a
// leaked session id is useless with another principal's credential.
type Key struct {
	PrincipalID string
	SessionID   string
}

func (k Key) String() string {
	return k.PrincipalID + "|" + k.SessionID
}

// Key returns the session's store key.
func (s Session) Key() Key {
	return Key{PrincipalID: s.PrincipalID, SessionID: s.ID}
}
