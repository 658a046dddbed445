package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret, subject, name string) string {
	t.Helper()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		DisplayName: name,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func authProbe(t *testing.T, authorization string) (*httptest.ResponseRecorder, *http.Request) {
	t.Helper()
	var captured *http.Request
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	Auth(testSecret)(next).ServeHTTP(rec, req)
	return rec, captured
}

func TestAuth_ValidToken(t *testing.T) {
	req := require.New(t)

	token := signToken(t, testSecret, "uidA", "Alice")
	rec, captured := authProbe(t, "Bearer "+token)

	req.Equal(http.StatusOK, rec.Code)
	req.NotNil(captured)
	req.Equal("uidA", GetUserID(captured.Context()))
	req.Equal("Alice", GetDisplayName(captured.Context()))
}

func TestAuth_Rejections(t *testing.T) {
	cases := []struct {
		name          string
		authorization string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"garbage token", "Bearer not.a.jwt"},
		{"wrong secret", "Bearer " + signToken(t, "other-secret", "uidA", "Alice")},
		{"empty subject", "Bearer " + signToken(t, testSecret, "", "Alice")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, captured := authProbe(t, tc.authorization)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			require.Nil(t, captured)
		})
	}
}

func TestAuth_ExpiredToken(t *testing.T) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "uidA",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	rec, _ := authProbe(t, "Bearer "+token)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
