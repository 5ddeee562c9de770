//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"church-admin-api/internal/model"
)

func TestLoginRefreshLogoutFlow(t *testing.T) {
	server := newTestServer(t)
	result := loginAdmin(t, server)

	status, env := doJSON(t, http.MethodGet, server.URL+"/api/v1/auth/profile", nil, result.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, status)
	var profile model.PublicUser
	decodeData(t, env, &profile)
	require.Equal(t, "admin@example.org", profile.Email)
	require.Equal(t, model.RoleAdmin, profile.Role)

	// Rotate the session.
	status, env = doJSON(t, http.MethodPost, server.URL+"/api/v1/auth/refresh", map[string]string{
		"refresh_token": result.Tokens.RefreshToken,
	}, "")
	require.Equal(t, http.StatusOK, status)
	var rotated struct {
		Tokens model.TokenPair `json:"tokens"`
	}
	decodeData(t, env, &rotated)
	require.NotEmpty(t, rotated.Tokens.RefreshToken)

	// The pre-rotation token is dead.
	status, env = doJSON(t, http.MethodPost, server.URL+"/api/v1/auth/refresh", map[string]string{
		"refresh_token": result.Tokens.RefreshToken,
	}, "")
	require.Equal(t, http.StatusUnauthorized, status)
	require.False(t, env.Success)

	// Logout kills the rotated session too.
	status, _ = doJSON(t, http.MethodPost, server.URL+"/api/v1/auth/logout", nil, result.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, status)

	status, _ = doJSON(t, http.MethodPost, server.URL+"/api/v1/auth/refresh", map[string]string{
		"refresh_token": rotated.Tokens.RefreshToken,
	}, "")
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	server := newTestServer(t)

	status, env := doJSON(t, http.MethodPost, server.URL+"/api/v1/auth/login", map[string]string{
		"email": "admin@example.org", "password": "nope",
	}, "")
	require.Equal(t, http.StatusUnauthorized, status)
	require.False(t, env.Success)
	require.Equal(t, "UNAUTHORIZED", env.Error.Code)

	status, _ = doJSON(t, http.MethodPost, server.URL+"/api/v1/auth/login", map[string]string{
		"email": "", "password": "",
	}, "")
	require.Equal(t, http.StatusBadRequest, status)
}

func TestProtectedEndpointsRequireToken(t *testing.T) {
	server := newTestServer(t)

	for _, endpoint := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/auth/profile"},
		{http.MethodPost, "/api/v1/auth/logout"},
		{http.MethodGet, "/api/v1/auth/users/"},
		{http.MethodGet, "/api/v1/access-requests/"},
	} {
		status, env := doJSON(t, endpoint.method, server.URL+endpoint.path, nil, "")
		require.Equal(t, http.StatusUnauthorized, status, "%s %s", endpoint.method, endpoint.path)
		require.False(t, env.Success)
	}
}

func TestChangePasswordFlow(t *testing.T) {
	server := newTestServer(t)
	result := loginAdmin(t, server)

	status, _ := doJSON(t, http.MethodPut, server.URL+"/api/v1/auth/change-password", map[string]string{
		"current_password": "wrong", "new_password": "next-pass-456",
	}, result.Tokens.AccessToken)
	require.Equal(t, http.StatusUnauthorized, status)

	status, _ = doJSON(t, http.MethodPut, server.URL+"/api/v1/auth/change-password", map[string]string{
		"current_password": "admin-pass-123", "new_password": "next-pass-456",
	}, result.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, status)

	loginAs(t, server, "admin@example.org", "next-pass-456")
}

func TestUserManagementRequiresAdmin(t *testing.T) {
	server := newTestServer(t)
	admin := loginAdmin(t, server)

	status, env := doJSON(t, http.MethodPost, server.URL+"/api/v1/auth/users/", map[string]string{
		"name": "Sofia", "email": "sofia@example.org", "password": "sofia-pass-123", "role": model.RoleSecretary,
	}, admin.Tokens.AccessToken)
	require.Equal(t, http.StatusCreated, status)
	require.True(t, env.Success)

	secretary := loginAs(t, server, "sofia@example.org", "sofia-pass-123")

	status, env = doJSON(t, http.MethodGet, server.URL+"/api/v1/auth/users/", nil, secretary.Tokens.AccessToken)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "FORBIDDEN", env.Error.Code)
}
