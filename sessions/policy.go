package sessions

import (
	"time"

	apperrors "github.com/jrsteele09/go-finance-server/internal/errors"
)

// Verdict is the outcome of evaluating a session against the clock.
type Verdict int

const (
	Valid Verdict = iota
	ValidWithWarning
	ExpiredInactive
	ExpiredAbsolute
)

func (v Verdict) String() string {
	switch v {
	case Valid:
		return "valid"
	case ValidWithWarning:
		return "valid-with-warning"
	case ExpiredInactive:
		return "expired-inactive"
	case ExpiredAbsolute:
		return "expired-absolute"
	default:
		return "unknown"
	}
}

// Expired reports whether the session must be rejected and removed.
func (v Verdict) Expired() bool {
	return v == ExpiredInactive || v == ExpiredAbsolute
}

// Policy holds the session timing rules. Evaluation is pure.
type Policy struct {
	InactivityTimeout   time.Duration
	WarningLeadTime     time.Duration
	MaxAbsoluteLifetime time.Duration
}

// DefaultPolicy is 10 minutes idle, a warning from 1 minute idle, and a 24 hour cap.
func DefaultPolicy() Policy {
	return Policy{
		InactivityTimeout:   10 * time.Minute,
		WarningLeadTime:     9 * time.Minute,
		MaxAbsoluteLifetime: 24 * time.Hour,
	}
}

// NewPolicy validates and returns a Policy. warningLead must be shorter than inactivity.
func NewPolicy(inactivity, warningLead, maxLifetime time.Duration) (Policy, error) {
	if inactivity <= 0 || maxLifetime <= 0 {
		return Policy{}, apperrors.Configf("session timeouts must be positive")
	}
	if warningLead < 0 || warningLead >= inactivity {
		return Policy{}, apperrors.Configf("warning lead time %s must be in [0, %s)", warningLead, inactivity)
	}
	return Policy{
		InactivityTimeout:   inactivity,
		WarningLeadTime:     warningLead,
		MaxAbsoluteLifetime: maxLifetime,
	}, nil
}

// Evaluate classifies s at now. The absolute cap is checked first and always wins.
func (p Policy) Evaluate(s Session, now time.Time) Verdict {
	if now.Sub(s.CreatedAt) > p.MaxAbsoluteLifetime {
		return ExpiredAbsolute
	}
	idle := now.Sub(s.LastActivityAt)
	if idle > p.InactivityTimeout {
		return ExpiredInactive
	}
	if idle > p.InactivityTimeout-p.WarningLeadTime {
		return ValidWithWarning
	}
	return Valid
}

// Remaining is the time left before s expires for inactivity, floored at zero.
func (p Policy) Remaining(s Session, now time.Time) time.Duration {
	left := p.InactivityTimeout - now.Sub(s.LastActivityAt)
	if left < 0 {
		return 0
	}
	return left
}
