package auth

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher_HashIsSaltedAndVerifies(t *testing.T) {
	hasher := newTestHasher(t)
	ctx := context.Background()

	for _, password := range []string{"secret1", "correct horse battery staple", "пароль-123", "x"} {
		first, err := hasher.Hash(ctx, password)
		require.NoError(t, err)
		second, err := hasher.Hash(ctx, password)
		require.NoError(t, err)

		assert.NotEqual(t, password, first)
		assert.NotEqual(t, first, second, "two hashes of the same password must differ")

		for _, hash := range []string{first, second} {
			ok, err := hasher.Verify(ctx, password, hash)
			require.NoError(t, err)
			assert.True(t, ok)
		}
	}
}

func TestBcryptHasher_RejectsOtherPassword(t *testing.T) {
	hasher := newTestHasher(t)
	ctx := context.Background()

	pairs := [][2]string{
		{"secret1", "secret2"},
		{"password", "Password"},
		{"abcdef", "abcdef "},
	}
	for _, pair := range pairs {
		hash, err := hasher.Hash(ctx, pair[1])
		require.NoError(t, err)

		ok, err := hasher.Verify(ctx, pair[0], hash)
		require.NoError(t, err)
		assert.False(t, ok, "%q must not verify against hash of %q", pair[0], pair[1])
	}
}

func TestBcryptHasher_RejectsPasswordExtendingStoredOne(t *testing.T) {
	hasher := newTestHasher(t)
	ctx := context.Background()

	stored := strings.Repeat("p", maxPasswordBytes)
	hash, err := hasher.Hash(ctx, stored)
	require.NoError(t, err)

	ok, err := hasher.Verify(ctx, stored, hash)
	require.NoError(t, err)
	assert.True(t, ok)

	for _, candidate := range []string{stored + "EXTRA", stored + "p", stored + strings.Repeat("x", 100)} {
		ok, err := hasher.Verify(ctx, candidate, hash)
		require.NoError(t, err)
		assert.False(t, ok, "a %d byte password must not match the hash of its 72 byte prefix", len(candidate))
	}
}

func TestBcryptHasher_MalformedHashIsMismatch(t *testing.T) {
	hasher := newTestHasher(t)

	for _, hash := range []string{"", "plaintext", "$2a$10$short", "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA"} {
		ok, err := hasher.Verify(context.Background(), "secret1", hash)
		assert.NoError(t, err, hash)
		assert.False(t, ok, hash)
	}
}

func TestBcryptHasher_UsesConfiguredCost(t *testing.T) {
	hasher, err := NewBcryptHasher(bcrypt.MinCost+1, 1)
	require.NoError(t, err)

	hash, err := hasher.Hash(context.Background(), "secret1")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost+1, cost)
}

func TestBcryptHasher_CancelledWhileWaitingForSlot(t *testing.T) {
	hasher, err := NewBcryptHasher(bcrypt.MinCost, 1)
	require.NoError(t, err)

	// Occupy the only slot.
	require.NoError(t, hasher.slots.Acquire(context.Background(), 1))
	defer hasher.slots.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = hasher.Hash(ctx, "secret1")
	assert.ErrorIs(t, err, context.Canceled)

	ok, err := hasher.Verify(ctx, "secret1", "$2a$04$invalid")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)

	assert.ErrorIs(t, hasher.Equalize(ctx, "secret1"), context.Canceled)
}

func TestBcryptHasher_Equalize(t *testing.T) {
	hasher := newTestHasher(t)
	assert.NoError(t, hasher.Equalize(context.Background(), "anything"))
}
