// Package kvtest holds the behavioural contract every kv.Storage backend
// must satisfy.
package kvtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finwise/internal/kv"
)

// RunContract exercises s against the Storage contract. s must start empty.
func RunContract(t *testing.T, s kv.Storage) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key is not an error", func(t *testing.T) {
		v, ok, err := s.Get(ctx, "absent")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, v)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "deviceId", "device_1"))
		v, ok, err := s.Get(ctx, "deviceId")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "device_1", v)
	})

	t.Run("set overwrites", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "theme", "light"))
		require.NoError(t, s.Set(ctx, "theme", "dark"))
		v, ok, err := s.Get(ctx, "theme")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "dark", v)
	})

	t.Run("empty value is stored", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "ai_api_key_x", ""))
		v, ok, err := s.Get(ctx, "ai_api_key_x")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Empty(t, v)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "userData_x", `{"name":"Sam"}`))
		require.NoError(t, s.Delete(ctx, "userData_x"))
		require.NoError(t, s.Delete(ctx, "userData_x"))
		_, ok, err := s.Get(ctx, "userData_x")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("large json blob round-trips", func(t *testing.T) {
		blob := `[{"id":"1","name":"Coffee ☕","amount":"4.5"}]`
		require.NoError(t, s.Set(ctx, "transactions_x", blob))
		v, ok, err := s.Get(ctx, "transactions_x")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, blob, v)
	})
}
