package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()

	t.Run("get after set", func(t *testing.T) {
		// given
		c := NewMemoryCache()
		require.NoError(t, c.Set(ctx, "sku:A1", "101", 0))

		// when
		got, err := c.Get(ctx, "sku:A1")

		// then
		require.NoError(t, err)
		assert.Equal(t, "101", got)
	})

	t.Run("missing key", func(t *testing.T) {
		c := NewMemoryCache()
		_, err := c.Get(ctx, "nope")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("expired entry", func(t *testing.T) {
		// given
		now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		c := NewMemoryCache()
		c.now = func() time.Time { return now }
		require.NoError(t, c.Set(ctx, "k", "v", time.Minute))

		// when
		now = now.Add(2 * time.Minute)
		_, err := c.Get(ctx, "k")

		// then
		assert.ErrorIs(t, err, ErrCacheMiss)
		assert.Empty(t, c.entries)
	})

	t.Run("delete", func(t *testing.T) {
		c := NewMemoryCache()
		require.NoError(t, c.Set(ctx, "k", "v", 0))
		require.NoError(t, c.Delete(ctx, "k"))
		_, err := c.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})
}
