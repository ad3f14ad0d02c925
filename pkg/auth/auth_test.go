package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/draftforge/pkg/config"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func TestResolveRoundTrip(t *testing.T) {
	issuer := NewIssuer(testKey, time.Hour)
	resolver := NewResolver(testKey)

	token, err := issuer.Issue(&Principal{
		UserID:        "user-1",
		Tier:          config.TierPro,
		EmailVerified: true,
		IsAdmin:       true,
	})
	require.NoError(t, err)

	p, err := resolver.Resolve(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", p.UserID)
	assert.Equal(t, config.TierPro, p.Tier)
	assert.True(t, p.EmailVerified)
	assert.True(t, p.IsAdmin)
}

func TestResolveMissingToken(t *testing.T) {
	resolver := NewResolver(testKey)
	_, err := resolver.Resolve("")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestResolveExpiredToken(t *testing.T) {
	issuer := NewIssuer(testKey, -time.Minute)
	resolver := NewResolver(testKey)

	token, err := issuer.Issue(&Principal{UserID: "user-1", Tier: config.TierFree})
	require.NoError(t, err)

	_, err = resolver.Resolve(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestResolveWrongKey(t *testing.T) {
	issuer := NewIssuer([]byte("another-key-that-is-32-bytes-long"), time.Hour)
	resolver := NewResolver(testKey)

	token, err := issuer.Issue(&Principal{UserID: "user-1", Tier: config.TierFree})
	require.NoError(t, err)

	_, err = resolver.Resolve(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestResolveGarbageToken(t *testing.T) {
	resolver := NewResolver(testKey)
	_, err := resolver.Resolve("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestResolveRejectsWrongIssuer(t *testing.T) {
	c := jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    "someone-else",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(testKey)
	require.NoError(t, err)

	_, err = NewResolver(testKey).Resolve(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestResolveRejectsMissingExpiry(t *testing.T) {
	c := jwt.RegisteredClaims{
		Subject: "user-1",
		Issuer:  "draftforge",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(testKey)
	require.NoError(t, err)

	_, err = NewResolver(testKey).Resolve(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestResolveUnknownTierFallsBackToFree(t *testing.T) {
	issuer := NewIssuer(testKey, time.Hour)
	token, err := issuer.Issue(&Principal{UserID: "user-1", Tier: config.Tier("platinum")})
	require.NoError(t, err)

	p, err := NewResolver(testKey).Resolve(token)
	require.NoError(t, err)
	assert.Equal(t, config.TierFree, p.Tier)
}

func TestResolveRejectsMissingSubject(t *testing.T) {
	issuer := NewIssuer(testKey, time.Hour)
	token, err := issuer.Issue(&Principal{Tier: config.TierFree})
	require.NoError(t, err)

	_, err = NewResolver(testKey).Resolve(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
