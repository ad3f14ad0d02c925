// Package auth verifies bearer credentials and resolves them to principals.
// Login flows live outside this service; it only consumes tokens signed with
// the shared secret key.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/forgeworks/draftforge/pkg/config"
)

// Resolution errors surfaced to the HTTP layer.
var (
	// ErrMissingToken indicates no credential was presented.
	ErrMissingToken = errors.New("missing token")

	// ErrInvalidToken indicates a malformed token or signature mismatch.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken indicates a token past its expiry.
	ErrExpiredToken = errors.New("expired token")
)

// Principal is the verified identity of a request. Immutable within a request.
type Principal struct {
	UserID        string
	Tier          config.Tier
	EmailVerified bool
	IsAdmin       bool
}

// claims is the JWT claim set carried by draftforge tokens.
type claims struct {
	Tier          string `json:"tier"`
	EmailVerified bool   `json:"email_verified"`
	IsAdmin       bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

const tokenIssuer = "draftforge"

// Resolver verifies tokens and produces principals. Side-effect free: no I/O
// beyond HMAC verification.
type Resolver struct {
	key []byte
}

// NewResolver creates a Resolver using the given signing key.
func NewResolver(key []byte) *Resolver {
	return &Resolver{key: key}
}

// Resolve verifies the bearer credential and returns the principal.
func (r *Resolver) Resolve(credential string) (*Principal, error) {
	if credential == "" {
		return nil, ErrMissingToken
	}

	var c claims
	token, err := jwt.ParseWithClaims(credential, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.key, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || c.Subject == "" {
		return nil, ErrInvalidToken
	}

	tier := config.Tier(c.Tier)
	if !tier.Valid() {
		tier = config.TierFree
	}

	return &Principal{
		UserID:        c.Subject,
		Tier:          tier,
		EmailVerified: c.EmailVerified,
		IsAdmin:       c.IsAdmin,
	}, nil
}

// Issuer mints tokens. Used by tests and by operator tooling; the production
// login flow runs in a separate service sharing the same key.
type Issuer struct {
	key []byte
	ttl time.Duration
}

// NewIssuer creates an Issuer with the given signing key and token lifetime.
func NewIssuer(key []byte, ttl time.Duration) *Issuer {
	return &Issuer{key: key, ttl: ttl}
}

// Issue signs a token for the given principal.
func (i *Issuer) Issue(p *Principal) (string, error) {
	now := time.Now()
	c := claims{
		Tier:          string(p.Tier),
		EmailVerified: p.EmailVerified,
		IsAdmin:       p.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}
