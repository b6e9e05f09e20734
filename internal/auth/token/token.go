// Package token issues and verifies the signed bearer tokens handed out at
// login.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// InsecureDefaultSecret is the placeholder shipped in sample configs.
const InsecureDefaultSecret = "change-me"

// DefaultTTL is the validity window of an issued token.
const DefaultTTL = 12 * time.Hour

const minSecretLen = 16

var (
	ErrExpired   = errors.New("token expired")
	ErrMalformed = errors.New("token malformed")
	ErrSignature = errors.New("token signature invalid")
	ErrInvalid   = errors.New("token invalid")
)

// Claims is the verified token payload.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Issuer)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(i *Issuer) { i.now = now } }

func NewIssuer(secret string, ttl time.Duration, opts ...Option) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	i := &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, o := range opts {
		o(i)
	}
	return i
}

func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue signs a token for username valid for the issuer's TTL.
func (i *Issuer) Issue(username string) (string, error) {
	now := i.now()
	c := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

// Verify checks signature and expiry. The returned error is one of
// ErrExpired, ErrMalformed, ErrSignature or ErrInvalid.
func (i *Issuer) Verify(tokenString string) (Claims, error) {
	var c Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	tok, err := parser.ParseWithClaims(tokenString, &c, func(*jwt.Token) (any, error) { return i.secret, nil })
	if err != nil {
		return Claims{}, classify(err)
	}
	if !tok.Valid || c.Username == "" {
		return Claims{}, ErrInvalid
	}
	return c, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrSignature
	default:
		return ErrInvalid
	}
}

// Reason labels a Verify error for logs and metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrSignature):
		return "bad_signature"
	default:
		return "invalid"
	}
}

// WeakSecret reports whether secret is the shipped default or too short to
// resist brute force.
func WeakSecret(secret string) bool {
	return secret == "" || secret == InsecureDefaultSecret || len(secret) < minSecretLen
}
