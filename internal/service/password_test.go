package service

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasher(t *testing.T) {
	t.Parallel()

	hasher := NewPasswordHasher(bcrypt.MinCost)

	t.Run("verifies its own hashes", func(t *testing.T) {
		hash, err := hasher.Hash("correct horse battery staple")
		require.NoError(t, err)
		require.NotEqual(t, "correct horse battery staple", hash)
		require.True(t, hasher.Verify("correct horse battery staple", hash))
	})

	t.Run("rejects the wrong password", func(t *testing.T) {
		hash, err := hasher.Hash("correct horse battery staple")
		require.NoError(t, err)
		require.False(t, hasher.Verify("incorrect horse", hash))
		require.False(t, hasher.Verify("", hash))
	})

	t.Run("same password hashes to different strings", func(t *testing.T) {
		first, err := hasher.Hash("correct horse battery staple")
		require.NoError(t, err)
		second, err := hasher.Hash("correct horse battery staple")
		require.NoError(t, err)
		require.NotEqual(t, first, second)
	})

	t.Run("out-of-range cost falls back to the bcrypt default", func(t *testing.T) {
		h := NewPasswordHasher(99)
		require.Equal(t, bcrypt.DefaultCost, h.cost)

		h = NewPasswordHasher(0)
		require.Equal(t, bcrypt.DefaultCost, h.cost)
	})
}
