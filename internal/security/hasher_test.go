package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher(t *testing.T) {
	hasher := NewBcryptHasher(bcrypt.MinCost)

	t.Run("digest never equals plaintext", func(t *testing.T) {
		digest, err := hasher.Hash("p1")
		require.NoError(t, err)
		assert.NotEqual(t, "p1", digest)
		assert.NotContains(t, digest, "p1")
	})

	t.Run("same password yields different digests", func(t *testing.T) {
		first, err := hasher.Hash("secret")
		require.NoError(t, err)
		second, err := hasher.Hash("secret")
		require.NoError(t, err)
		assert.NotEqual(t, first, second)
	})

	t.Run("verify accepts the right password only", func(t *testing.T) {
		digest, err := hasher.Hash("p1")
		require.NoError(t, err)
		assert.True(t, hasher.Verify("p1", digest))
		assert.False(t, hasher.Verify("wrong", digest))
	})

	t.Run("verify rejects malformed digest", func(t *testing.T) {
		assert.False(t, hasher.Verify("p1", "not-a-hash"))
		assert.False(t, hasher.Verify("p1", ""))
	})

	t.Run("too long password", func(t *testing.T) {
		_, err := hasher.Hash(strings.Repeat("a", 73))
		assert.ErrorIs(t, err, ErrPasswordTooLong)
	})
}

func TestNewBcryptHasherFallsBackToDefaultCost(t *testing.T) {
	assert.Equal(t, DefaultBcryptCost, NewBcryptHasher(0).cost)
	assert.Equal(t, DefaultBcryptCost, NewBcryptHasher(bcrypt.MaxCost+1).cost)
	assert.Equal(t, bcrypt.MinCost, NewBcryptHasher(bcrypt.MinCost).cost)
}
