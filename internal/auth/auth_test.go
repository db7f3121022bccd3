package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"procurahub/internal/auth"
	"procurahub/internal/rules"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := auth.HashPassword("correct horse")
	require.NoError(t, err)
	require.True(t, auth.VerifyPassword("correct horse", hash))
	require.False(t, auth.VerifyPassword("wrong", hash))
}

func TestTokenRoundTrip(t *testing.T) {
	m := auth.NewTokenManager("secret", time.Hour)
	token, err := m.Issue(auth.Identity{UserID: 42, Role: rules.RoleProcurement}, time.Now())
	require.NoError(t, err)

	identity, err := m.Parse(token)
	require.NoError(t, err)
	require.Equal(t, 42, identity.UserID)
	require.Equal(t, rules.RoleProcurement, identity.Role)
}

func TestTokenWrongSecret(t *testing.T) {
	m := auth.NewTokenManager("secret", time.Hour)
	token, err := m.Issue(auth.Identity{UserID: 42, Role: rules.RoleAdmin}, time.Now())
	require.NoError(t, err)

	other := auth.NewTokenManager("another", time.Hour)
	_, err = other.Parse(token)
	require.Error(t, err)
}

func TestTokenExpired(t *testing.T) {
	m := auth.NewTokenManager("secret", time.Minute)
	token, err := m.Issue(auth.Identity{UserID: 1, Role: rules.RoleAdmin}, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	_, err = m.Parse(token)
	require.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	m := auth.NewTokenManager("secret", time.Hour)
	token, err := m.Issue(auth.Identity{UserID: 7, Role: rules.RoleSupplier}, time.Now())
	require.NoError(t, err)

	var got auth.Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = auth.IdentityFrom(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	m.Middleware(next).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 7, got.UserID)

	// Без токена — 401
	rec = httptest.NewRecorder()
	m.Middleware(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
