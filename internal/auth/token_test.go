package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "test-secret-with-enough-length-123"
	testIssuer   = "fortuna-budget"
	testAudience = "fortuna-budget-api"
)

func TestIssueAndValidate(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, testIssuer, testAudience, time.Hour)
	v, err := NewTokenValidator(testSecret, testIssuer, testAudience)
	require.NoError(t, err)

	token, expiresAt, err := issuer.Issue("user-123", "ana@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := v.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.RegisteredClaims.Subject)

	custom, ok := claims.CustomClaims.(*CustomClaims)
	require.True(t, ok)
	assert.Equal(t, "ana@example.com", custom.Email)
}

func TestValidate_WrongSecret(t *testing.T) {
	issuer := NewTokenIssuer("another-secret-entirely-different", testIssuer, testAudience, time.Hour)
	v, err := NewTokenValidator(testSecret, testIssuer, testAudience)
	require.NoError(t, err)

	token, _, err := issuer.Issue("user-123", "ana@example.com")
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_Expired(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, testIssuer, testAudience, time.Hour)
	issuer.now = func() time.Time { return time.Now().Add(-3 * time.Hour) }
	v, err := NewTokenValidator(testSecret, testIssuer, testAudience)
	require.NoError(t, err)

	token, _, err := issuer.Issue("user-123", "ana@example.com")
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_WrongAudience(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, testIssuer, "someone-else", time.Hour)
	v, err := NewTokenValidator(testSecret, testIssuer, testAudience)
	require.NoError(t, err)

	token, _, err := issuer.Issue("user-123", "ana@example.com")
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_Garbage(t *testing.T) {
	v, err := NewTokenValidator(testSecret, testIssuer, testAudience)
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
