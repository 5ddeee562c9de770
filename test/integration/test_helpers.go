//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"church-admin-api/internal/config"
	"church-admin-api/internal/handler"
	"church-admin-api/internal/middleware"
	"church-admin-api/internal/model"
	"church-admin-api/internal/router"
	"church-admin-api/internal/service"
	"church-admin-api/internal/token"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	stores := newMemoryStores()
	issuer, err := token.NewIssuer("test-access-secret", "test-refresh-secret", 15*time.Minute, 24*time.Hour)
	require.NoError(t, err)
	hasher := service.NewPasswordHasher(bcrypt.MinCost)

	authService := service.NewAuthService(stores, issuer, hasher, noopAuditor{})
	require.NoError(t, authService.EnsureAdmin(context.Background(), "Admin", "admin@example.org", "admin-pass-123"))

	requestService := service.NewAccessRequestService(requestStore{stores}, stores, hasher, nil, noopAuditor{})
	authMiddleware := middleware.NewAuthMiddleware(authService, noopAuditor{})

	cfg := &config.Config{
		ServerPort:       "8080",
		RequestTimeout:   30 * time.Second,
		CORSOrigins:      []string{"*"},
		RateLimitRPM:     1000,
		AuthRateLimitRPM: 1000,
	}

	server := httptest.NewServer(router.New(cfg, authMiddleware, router.Handlers{
		Auth:          handler.NewAuthHandler(authService),
		AccessRequest: handler.NewAccessRequestHandler(requestService),
		User:          handler.NewUserHandler(authService),
	}))
	t.Cleanup(server.Close)

	return server
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *model.APIError `json:"error"`
	Meta    *model.Meta     `json:"meta"`
}

func doJSON(t *testing.T, method string, url string, body any, accessToken string) (int, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var parsed envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	return resp.StatusCode, parsed
}

func decodeData(t *testing.T, env envelope, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func loginAs(t *testing.T, server *httptest.Server, email string, password string) model.LoginResult {
	t.Helper()

	status, env := doJSON(t, http.MethodPost, server.URL+"/api/v1/auth/login", map[string]string{
		"email": email, "password": password,
	}, "")
	require.Equal(t, http.StatusOK, status)
	require.True(t, env.Success)

	var result model.LoginResult
	decodeData(t, env, &result)
	require.NotEmpty(t, result.Tokens.AccessToken)
	require.NotEmpty(t, result.Tokens.RefreshToken)
	return result
}

func loginAdmin(t *testing.T, server *httptest.Server) model.LoginResult {
	t.Helper()
	return loginAs(t, server, "admin@example.org", "admin-pass-123")
}
