package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAuthMiddleware(t *testing.T) {
	viper.Set("jwt.secret_key", "test-secret")
	defer viper.Set("jwt.secret_key", "")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := r.Context().Value(UserIDKey).(string)
		w.Write([]byte(userID))
	})
	handler := AuthMiddleware(next)

	t.Run("valid token passes through with the user id in context", func(t *testing.T) {
		token := signedToken(t, "test-secret", jwt.MapClaims{"user_id": 7})

		r := httptest.NewRequest("POST", "/v1/topup", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "7", w.Body.String())
	})

	t.Run("missing header", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/v1/topup", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/v1/topup", nil)
		r.Header.Set("Authorization", "Token abc")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("token signed with the wrong secret", func(t *testing.T) {
		token := signedToken(t, "other-secret", jwt.MapClaims{"user_id": 7})

		r := httptest.NewRequest("POST", "/v1/topup", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuthEnabled(t *testing.T) {
	viper.Set("jwt.secret_key", "")
	assert.False(t, AuthEnabled())

	viper.Set("jwt.secret_key", "s")
	assert.True(t, AuthEnabled())
	viper.Set("jwt.secret_key", "")
}
