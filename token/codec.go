package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-finance-server/internal/errors"
	"github.com/jrsteele09/go-finance-server/users"
	"github.com/pkg/errors"
)

// MinSecretLength is the shortest HMAC secret NewCodec accepts.
const MinSecretLength = 32

var (
	ErrMalformed        = errors.New("credential malformed")
	ErrSignatureInvalid = errors.New("credential signature invalid")
	ErrExpired          = errors.New("credential expired")
)

// Claims is the payload of a credential.
type Claims struct {
	Role users.Role `json:"role"`
	jwt.RegisteredClaims
}

// Identity is what a verified credential proves.
type Identity struct {
	PrincipalID string
	Role        users.Role
	IssuedAt    time.Time
	ExpiresAt   time.Time
	TokenID     string
}

// Codec issues and verifies signed, time-bounded credentials. It holds no mutable state and is
// safe for concurrent use.
type Codec struct {
	signer  Signer
	issuer  string
	nowFunc func() time.Time
}

type CodecOption func(*Codec)

func WithIssuer(issuer string) CodecOption {
	return func(c *Codec) {
		c.issuer = issuer
	}
}

func WithNowFunc(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.nowFunc = now
	}
}

// NewCodec creates an HS256 codec. An empty or short secret is a configuration error.
func NewCodec(secret string, opts ...CodecOption) (*Codec, error) {
	if secret == "" {
		return nil, apperrors.Configf("signing key is required")
	}
	if len(secret) < MinSecretLength {
		return nil, apperrors.Configf("signing key must be at least %d bytes", MinSecretLength)
	}

	c := &Codec{
		signer:  NewHMACSigner(secret),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs a credential for principalID valid from now until now+ttl. It returns the
// expiry exactly as encoded in the exp claim.
func (c *Codec) Issue(principalID string, role users.Role, ttl time.Duration) (string, time.Time, error) {
	if principalID == "" {
		return "", time.Time{}, errors.New("principal id is required")
	}
	if !role.Valid() {
		return "", time.Time{}, errors.Errorf("unknown role %q", role)
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("ttl must be positive")
	}

	now := c.nowFunc()
	expiresAt := jwt.NewNumericDate(now.Add(ttl))
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: expiresAt,
			ID:        uuid.New().String(),
		},
	}
	tok, err := c.signer.Sign(claims)
	if err != nil {
		return "", time.Time{}, errors.Wrapf(err, "failed to issue credential for %s", principalID)
	}
	return tok, expiresAt.Time, nil
}

// Verify checks signature, algorithm, issuer and expiry. The returned error is one of
// ErrMalformed, ErrSignatureInvalid or ErrExpired, wrapping the parser's error.
func (c *Codec) Verify(tokenStr string) (Identity, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.signer.GetSigningMethod().Alg()}),
		jwt.WithTimeFunc(c.nowFunc),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if c.issuer != "" {
		options = append(options, jwt.WithIssuer(c.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, c.signer.GetVerificationKey, options...)
	if err != nil {
		return Identity{}, classify(err)
	}

	if claims.Subject == "" || !claims.Role.Valid() || claims.IssuedAt == nil {
		return Identity{}, fmt.Errorf("%w: missing required claims", ErrMalformed)
	}

	return Identity{
		PrincipalID: claims.Subject,
		Role:        claims.Role,
		IssuedAt:    claims.IssuedAt.Time,
		ExpiresAt:   claims.ExpiresAt.Time,
		TokenID:     claims.ID,
	}, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		// Bad issuer, iat in the future, missing exp: structurally a credential, but not one we minted.
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
