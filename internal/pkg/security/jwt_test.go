package security

import (
	"Beacon/internal/api/config"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupJWTConfig(secret string) {
	config.Cfg = &config.Config{JWT: config.JWTConfig{Secret: secret, ExpireHour: 1}}
}

func TestTokenRoundTrip(t *testing.T) {
	setupJWTConfig("test-secret")

	token, err := GenerateToken(42, "admin", 7)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claims.UserID)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, int64(7), claims.AppNameID)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	setupJWTConfig("secret-a")
	token, err := GenerateToken(1, "user", 0)
	require.NoError(t, err)

	setupJWTConfig("secret-b")
	_, err = ValidateToken(token)
	assert.Error(t, err)
}

func TestExtractSignature(t *testing.T) {
	setupJWTConfig("test-secret")
	token, err := GenerateToken(1, "user", 0)
	require.NoError(t, err)

	sig, err := ExtractSignature(token)
	require.NoError(t, err)
	assert.NotEmpty(t, sig)

	_, err = ExtractSignature("not-a-jwt")
	assert.Error(t, err)
}
