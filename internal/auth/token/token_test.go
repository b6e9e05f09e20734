package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestIssueVerifyRoundTrip(t *testing.T) {
	iss := NewIssuer(secret, 0)
	assert.Equal(t, 12*time.Hour, iss.TTL())
	tok, err := iss.Issue("ops")
	require.NoError(t, err)

	c, err := iss.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "ops", c.Username)
	assert.Equal(t, "ops", c.Subject)
	assert.WithinDuration(t, time.Now().Add(12*time.Hour), c.ExpiresAt.Time, time.Minute)
}

func TestExpiryWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	iss := NewIssuer(secret, 12*time.Hour, WithClock(clock))
	tok, err := iss.Issue("ops")
	require.NoError(t, err)

	now = now.Add(11*time.Hour + 59*time.Minute)
	_, err = iss.Verify(tok)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = iss.Verify(tok)
	assert.ErrorIs(t, err, ErrExpired)
	assert.Equal(t, "expired", Reason(err))
}

func TestDifferentSecretFails(t *testing.T) {
	tok, err := NewIssuer(secret, time.Hour).Issue("ops")
	require.NoError(t, err)
	_, err = NewIssuer("another-secret-of-enough-length", time.Hour).Verify(tok)
	assert.ErrorIs(t, err, ErrSignature)
	assert.Equal(t, "bad_signature", Reason(err))
}

func TestMalformed(t *testing.T) {
	iss := NewIssuer(secret, time.Hour)
	for _, s := range []string{"", "abc", "a.b.c", "Bearer x.y.z"} {
		_, err := iss.Verify(s)
		require.Error(t, err, s)
		assert.Contains(t, []error{ErrMalformed, ErrInvalid, ErrSignature}, err, s)
	}
	_, err := iss.Verify("not-a-jwt")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestRejectsNoneAlgorithm(t *testing.T) {
	c := Claims{Username: "ops", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}}
	s, err := jwt.NewWithClaims(jwt.SigningMethodNone, c).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = NewIssuer(secret, time.Hour).Verify(s)
	assert.Error(t, err)
}

func TestRequiresExpiryAndUsername(t *testing.T) {
	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Username: "ops"}).SignedString([]byte(secret))
	require.NoError(t, err)
	_, err = NewIssuer(secret, time.Hour).Verify(noExp)
	assert.Error(t, err)

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	_, err = NewIssuer(secret, time.Hour).Verify(noUser)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestWeakSecret(t *testing.T) {
	assert.True(t, WeakSecret(""))
	assert.True(t, WeakSecret(InsecureDefaultSecret))
	assert.True(t, WeakSecret("short"))
	assert.False(t, WeakSecret(secret))
}

func TestDefaultSecretStillWorks(t *testing.T) {
	iss := NewIssuer(InsecureDefaultSecret, time.Hour)
	tok, err := iss.Issue("ops")
	require.NoError(t, err)
	_, err = iss.Verify(tok)
	assert.NoError(t, err)
}
