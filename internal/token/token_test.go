package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"church-admin-api/internal/model"
)

func testIssuer(t *testing.T, accessTTL time.Duration, refreshTTL time.Duration) *Issuer {
	t.Helper()
	issuer, err := NewIssuer("access-secret", "refresh-secret", accessTTL, refreshTTL)
	require.NoError(t, err)
	return issuer
}

func testUser() model.User {
	return model.User{ID: "user-1", Email: "ana@example.org", Role: model.RoleSecretary}
}

func TestNewIssuer(t *testing.T) {
	t.Parallel()

	_, err := NewIssuer("", "refresh", time.Hour, time.Hour)
	require.Error(t, err)

	_, err = NewIssuer("access", "", time.Hour, time.Hour)
	require.Error(t, err)
}

func TestIssuePair(t *testing.T) {
	t.Parallel()

	issuer := testIssuer(t, time.Hour, 24*time.Hour)
	pair, err := issuer.IssuePair(testUser())
	require.NoError(t, err)

	require.Equal(t, "Bearer", pair.TokenType)
	require.Equal(t, int64(3600), pair.ExpiresIn)
	require.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	claims, err := issuer.Verify(pair.AccessToken, TypeAccess)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, "ana@example.org", claims.Email)
	require.Equal(t, model.RoleSecretary, claims.Role)
	require.Equal(t, TypeAccess, claims.Type)
	require.NotEmpty(t, claims.TokenID)

	refreshClaims, err := issuer.Verify(pair.RefreshToken, TypeRefresh)
	require.NoError(t, err)
	require.Equal(t, TypeRefresh, refreshClaims.Type)
	require.NotEqual(t, claims.TokenID, refreshClaims.TokenID)
}

func TestVerifyTypeDiscrimination(t *testing.T) {
	t.Parallel()

	issuer := testIssuer(t, time.Hour, 24*time.Hour)
	pair, err := issuer.IssuePair(testUser())
	require.NoError(t, err)

	// Signed with different secrets, so a swapped token fails the signature
	// check before the typ claim is even inspected.
	_, err = issuer.Verify(pair.AccessToken, TypeRefresh)
	require.ErrorIs(t, err, model.ErrTokenInvalid)

	_, err = issuer.Verify(pair.RefreshToken, TypeAccess)
	require.ErrorIs(t, err, model.ErrTokenInvalid)
}

func TestVerifyExpired(t *testing.T) {
	t.Parallel()

	issuer := testIssuer(t, -time.Minute, -time.Minute)
	pair, err := issuer.IssuePair(testUser())
	require.NoError(t, err)

	_, err = issuer.Verify(pair.AccessToken, TypeAccess)
	require.ErrorIs(t, err, model.ErrTokenExpired)

	_, err = issuer.Verify(pair.RefreshToken, TypeRefresh)
	require.ErrorIs(t, err, model.ErrTokenExpired)
}

func TestVerifyRejectsForgedTokens(t *testing.T) {
	t.Parallel()

	issuer := testIssuer(t, time.Hour, 24*time.Hour)
	other, err := NewIssuer("other-access", "other-refresh", time.Hour, 24*time.Hour)
	require.NoError(t, err)

	pair, err := other.IssuePair(testUser())
	require.NoError(t, err)

	_, err = issuer.Verify(pair.AccessToken, TypeAccess)
	require.ErrorIs(t, err, model.ErrTokenInvalid)

	_, err = issuer.Verify("not-a-token", TypeAccess)
	require.ErrorIs(t, err, model.ErrTokenInvalid)

	_, err = issuer.Verify("", TypeAccess)
	require.ErrorIs(t, err, model.ErrTokenInvalid)
}
