package middleware

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-jwt-secret-32bytes-padded!!"

func TestParseToken_RoundTrip(t *testing.T) {
	tok, err := GenerateToken("user-99", testSecret, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, tok)

	claims, err := ParseToken(tok, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "user-99", claims.Subject)
	assert.True(t, claims.ExpiresAt.After(time.Now()))
}

func TestParseToken_Rejects(t *testing.T) {
	valid, err := GenerateToken("u1", testSecret, time.Hour)
	require.NoError(t, err)
	expired, err := GenerateToken("u1", testSecret, -time.Second)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "u1"}).
		SignedString([]byte(testSecret))
	require.NoError(t, err)
	noSubject, err := GenerateToken("", testSecret, time.Hour)
	require.NoError(t, err)
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := []struct {
		name, token, secret string
	}{
		{"wrong secret", valid, "wrong-secret"},
		{"expired", expired, testSecret},
		{"malformed", "not.a.jwt", testSecret},
		{"empty", "", testSecret},
		{"no expiry", noExpiry, testSecret},
		{"no subject", noSubject, testSecret},
		{"alg none", unsigned, testSecret},
	}
	for _, tc := range cases {
		_, err := ParseToken(tc.token, tc.secret)
		assert.Error(t, err, tc.name)
	}
}

func TestGenerateToken_DifferentUsers(t *testing.T) {
	t1, _ := GenerateToken("a", testSecret, time.Hour)
	t2, _ := GenerateToken("b", testSecret, time.Hour)
	assert.NotEqual(t, t1, t2)

	c1, _ := ParseToken(t1, testSecret)
	c2, _ := ParseToken(t2, testSecret)
	assert.Equal(t, "a", c1.Subject)
	assert.Equal(t, "b", c2.Subject)
}

func TestGenerateToken_SameUserGetsDistinctTokens(t *testing.T) {
	t1, err := GenerateToken("a", testSecret, time.Hour)
	require.NoError(t, err)
	t2, err := GenerateToken("a", testSecret, time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, t1, t2)

	c1, _ := ParseToken(t1, testSecret)
	c2, _ := ParseToken(t2, testSecret)
	assert.NotEqual(t, c1.ID, c2.ID)
}
