package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	v := NewTokenVerifier("test-secret")

	token, err := v.Issue("u-1", "admin", "acme", time.Hour)
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "admin", claims.RoleID)
	assert.Equal(t, "acme", claims.TenantID)
	assert.Equal(t, "sprintdeck", claims.Issuer)
}

func TestTokenWrongSecretRejected(t *testing.T) {
	token, err := NewTokenVerifier("secret-a").Issue("u-1", "admin", "", time.Hour)
	require.NoError(t, err)

	_, err = NewTokenVerifier("secret-b").Verify(token)
	assert.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	v := NewTokenVerifier("test-secret")

	token, err := v.Issue("u-1", "admin", "", -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.Error(t, err)
}

func TestGarbageTokenRejected(t *testing.T) {
	v := NewTokenVerifier("test-secret")

	_, err := v.Verify("not-a-token")
	assert.Error(t, err)
}
