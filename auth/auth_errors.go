package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// RejectionKind classifies why a request was not authorized. Kinds are deliberately coarse:
// a caller never learns which credential check failed.
type RejectionKind int

const (
	Unauthenticated RejectionKind = iota // No, invalid or expired credential
	SessionExpired                       // Credential valid but the session is gone or expired
	Forbidden                            // Insufficient privilege or failed CSRF check
	TooManyRequests                      // Rate limit exceeded
	Unavailable                          // A backing store could not answer
)

func (k RejectionKind) String() string {
	switch k {
	case Unauthenticated:
		return "unauthenticated"
	case SessionExpired:
		return "session_expired"
	case Forbidden:
		return "forbidden"
	case TooManyRequests:
		return "too_many_requests"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// StatusCode maps the kind onto an HTTP status.
func (k RejectionKind) StatusCode() int {
	switch k {
	case Unauthenticated, SessionExpired:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case TooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusServiceUnavailable
	}
}

// Rejection is the structured outcome of a failed authorization.
type Rejection struct {
	Kind       RejectionKind
	Message    string
	RetryAfter time.Duration // Set for TooManyRequests
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Kind, r.Message)
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds.
func (r *Rejection) RetryAfterSeconds() int {
	if r.RetryAfter <= 0 {
		return 0
	}
	return int((r.RetryAfter + time.Second - 1) / time.Second)
}

func reject(kind RejectionKind, message string) *Rejection {
	return &Rejection{Kind: kind, Message: message}
}

// AsRejection extracts a Rejection from err's chain.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
