package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginAndValidate(t *testing.T) {
	s, err := NewService("secret", "operator-pass", time.Hour)
	require.NoError(t, err)

	token, err := s.Login("operator", "operator-pass")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Username)
}

func TestLoginWrongPassword(t *testing.T) {
	s, err := NewService("secret", "operator-pass", time.Hour)
	require.NoError(t, err)

	_, err = s.Login("operator", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	s1, err := NewService("secret-one", "pass", time.Hour)
	require.NoError(t, err)
	s2, err := NewService("secret-two", "pass", time.Hour)
	require.NoError(t, err)

	token, err := s1.Login("operator", "pass")
	require.NoError(t, err)

	_, err = s2.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateExpiredToken(t *testing.T) {
	s, err := NewService("secret", "pass", -time.Minute)
	require.NoError(t, err)

	token, err := s.Login("operator", "pass")
	require.NoError(t, err)

	_, err = s.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateGarbageToken(t *testing.T) {
	s, err := NewService("secret", "pass", time.Hour)
	require.NoError(t, err)

	_, err = s.ValidateToken("not-a-token")
	assert.Error(t, err)
}
