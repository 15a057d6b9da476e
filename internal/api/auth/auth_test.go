package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret, userID string, expiry time.Duration) string {
	t.Helper()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestParseToken(t *testing.T) {
	tokenString := signToken(t, testSecret, "user-1", time.Hour)

	claims, err := ParseToken(testSecret, tokenString)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
}

func TestParseTokenRejectsBadSecret(t *testing.T) {
	tokenString := signToken(t, "other-secret", "user-1", time.Hour)

	_, err := ParseToken(testSecret, tokenString)
	assert.Error(t, err)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	tokenString := signToken(t, testSecret, "user-1", -time.Hour)

	_, err := ParseToken(testSecret, tokenString)
	assert.Error(t, err)
}

func TestParseTokenRejectsEmptyUser(t *testing.T) {
	tokenString := signToken(t, testSecret, "", time.Hour)

	_, err := ParseToken(testSecret, tokenString)
	assert.Error(t, err)
}

func TestTokenFromRequest(t *testing.T) {
	t.Run("BearerHeader", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/ws/chat", nil)
		req.Header.Set("Authorization", "Bearer abc123")
		assert.Equal(t, "abc123", TokenFromRequest(req))
	})

	t.Run("QueryParam", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/ws/chat?token=xyz", nil)
		assert.Equal(t, "xyz", TokenFromRequest(req))
	})

	t.Run("Missing", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/ws/chat", nil)
		assert.Equal(t, "", TokenFromRequest(req))
	})
}
