package hasher_test

import (
	"strings"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vibast-solutions/ms-go-account/app/hasher"
)

func newTestHasher() *hasher.Hasher {
	return hasher.New(hasher.Params{MemoryKB: 1024, Iterations: 1, Threads: 1})
}

func TestHash(t *testing.T) {
	h := newTestHasher()

	t.Run("produces argon2id PHC string", func(t *testing.T) {
		hash, err := h.Hash("pw123456")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$"))
		assert.Len(t, strings.Split(hash, "$"), 6)
	})

	t.Run("same password produces different hashes", func(t *testing.T) {
		hash1, err := h.Hash("samepassword")
		require.NoError(t, err)
		hash2, err := h.Hash("samepassword")
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("rejects empty password", func(t *testing.T) {
		_, err := h.Hash("")
		require.Error(t, err)
		oopsErr, ok := oops.AsOops(err)
		require.True(t, ok)
		assert.Equal(t, "HASH_EMPTY_PASSWORD", oopsErr.Code())
	})
}

func TestVerify(t *testing.T) {
	h := newTestHasher()
	hash, err := h.Hash("correctpassword")
	require.NoError(t, err)

	t.Run("correct password", func(t *testing.T) {
		assert.True(t, h.Verify(hash, "correctpassword"))
	})

	t.Run("wrong password", func(t *testing.T) {
		assert.False(t, h.Verify(hash, "wrongpassword"))
	})

	t.Run("hash from other parameters still verifies", func(t *testing.T) {
		other := hasher.New(hasher.Params{MemoryKB: 2048, Iterations: 2, Threads: 2})
		assert.True(t, other.Verify(hash, "correctpassword"))
	})

	t.Run("malformed hashes never match", func(t *testing.T) {
		for _, stored := range []string{
			"",
			"plain",
			"$argon2id$v=19$m=1024,t=1,p=1$onlysalt",
			"$argon2id$v=18$m=1024,t=1,p=1$c2FsdA$a2V5",
			"$argon2id$v=19$m=x,t=1,p=1$c2FsdA$a2V5",
			"$argon2id$v=19$m=1024,t=1,p=0$c2FsdA$a2V5",
			"$argon2id$v=19$m=1024,t=1,p=1$!!!$a2V5",
			"$argon2i$v=19$m=1024,t=1,p=1$c2FsdA$a2V5",
			"$argon2id$v=19$m=4294967295,t=1,p=1$c2FsdA$a2V5",
			"$argon2id$v=19$m=1024,t=4294967295,p=1$c2FsdA$a2V5",
			"$2b$10$short",
		} {
			assert.False(t, h.Verify(stored, "correctpassword"), stored)
		}
	})

	t.Run("cost above four times the configured params is refused", func(t *testing.T) {
		within, err := hasher.New(hasher.Params{MemoryKB: 4096, Iterations: 4, Threads: 1}).Hash("correctpassword")
		require.NoError(t, err)
		assert.True(t, h.Verify(within, "correctpassword"))

		tooHeavy, err := hasher.New(hasher.Params{MemoryKB: 8192, Iterations: 1, Threads: 1}).Hash("correctpassword")
		require.NoError(t, err)
		assert.False(t, h.Verify(tooHeavy, "correctpassword"))

		tooSlow, err := hasher.New(hasher.Params{MemoryKB: 1024, Iterations: 5, Threads: 1}).Hash("correctpassword")
		require.NoError(t, err)
		assert.False(t, h.Verify(tooSlow, "correctpassword"))
	})

	t.Run("legacy bcrypt hash", func(t *testing.T) {
		legacy, err := bcrypt.GenerateFromPassword([]byte("pw123456"), bcrypt.MinCost)
		require.NoError(t, err)
		assert.True(t, h.Verify(string(legacy), "pw123456"))
		assert.False(t, h.Verify(string(legacy), "other"))
	})
}

func TestNeedsRehash(t *testing.T) {
	h := newTestHasher()
	current, err := h.Hash("pw123456")
	require.NoError(t, err)

	t.Run("current parameters", func(t *testing.T) {
		assert.False(t, h.NeedsRehash(current))
	})

	t.Run("weaker parameters", func(t *testing.T) {
		stronger := hasher.New(hasher.Params{MemoryKB: 2048, Iterations: 1, Threads: 1})
		assert.True(t, stronger.NeedsRehash(current))
	})

	t.Run("bcrypt", func(t *testing.T) {
		legacy, err := bcrypt.GenerateFromPassword([]byte("pw123456"), bcrypt.MinCost)
		require.NoError(t, err)
		assert.True(t, h.NeedsRehash(string(legacy)))
	})

	t.Run("garbage", func(t *testing.T) {
		assert.True(t, h.NeedsRehash("not-a-hash"))
	})
}

func TestNewAppliesDefaults(t *testing.T) {
	h := hasher.New(hasher.Params{})
	assert.Equal(t, hasher.DefaultParams(), h.Params())
}
