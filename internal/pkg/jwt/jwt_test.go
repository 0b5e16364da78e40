package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseToken(t *testing.T) {
	secret := []byte("test-secret")
	token, err := GenerateToken("admin", "admin@example.com", secret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token, secret)
	require.NoError(t, err)
	require.Equal(t, "admin", claims.UserID)
	require.Equal(t, "admin@example.com", claims.Email)
}

func TestParseTokenWrongSecret(t *testing.T) {
	token, err := GenerateToken("admin", "", []byte("right"), time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(token, []byte("wrong"))
	require.Error(t, err)
}

func TestParseTokenExpired(t *testing.T) {
	token, err := GenerateToken("admin", "", []byte("secret"), -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, []byte("secret"))
	require.Error(t, err)
}
