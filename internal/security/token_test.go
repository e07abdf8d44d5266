package security

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager(testSecret)

	token, err := tm.GenerateAccessToken("user-1", "dara@example.com", []string{RoleAdmin}, true)
	require.NoError(t, err)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.True(t, claims.Student)
	assert.True(t, claims.HasRole(RoleAdmin))
	assert.False(t, claims.HasRole("auditor"))
}

func TestTokenManager_Rejects(t *testing.T) {
	tm := NewTokenManager(testSecret)

	t.Run("WrongSecret", func(t *testing.T) {
		token, err := NewTokenManager("another-secret-another-secret-xx").GenerateAccessToken("user-1", "", nil, false)
		require.NoError(t, err)
		_, err = tm.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Expired", func(t *testing.T) {
		expired := &tokenManager{secret: []byte(testSecret), ttl: -time.Minute}
		token, err := expired.GenerateAccessToken("user-1", "", nil, false)
		require.NoError(t, err)
		_, err = tm.ValidateToken(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("RefreshToken", func(t *testing.T) {
		claims := UserClaims{
			UserID: "user-1",
			Type:   "refresh",
			RegisteredClaims: jwt.RegisteredClaims{
				Audience:  jwt.ClaimStrings{accessAudience},
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)
		_, err = tm.ValidateToken(token)
		assert.ErrorIs(t, err, ErrWrongTokenType)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := tm.ValidateToken("not-a-jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
