package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgcache "PulsePrice/pkg/cache"
)

func TestTTLCache_Expiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewTTLCache().WithClock(func() time.Time { return now })

	require.NoError(t, c.SetBytes("a", []byte("1"), time.Minute))
	require.NoError(t, c.SetBytes("b", []byte("2"), 0))

	v, ok, err := c.GetBytes("a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	now = now.Add(2 * time.Minute)
	_, ok, _ = c.GetBytes("a")
	assert.False(t, ok)
	_, ok, _ = c.GetBytes("b")
	assert.True(t, ok, "zero ttl never expires")
	assert.Equal(t, 1, c.Len())
}

func TestSharedCache(t *testing.T) {
	mem := pkgcache.NewMemoryCache()
	t.Cleanup(func() { _ = mem.Close() })
	var c BytesCache = NewSharedCache(mem, "attest")

	_, ok, err := c.GetBytes("naruto")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetBytes("naruto", []byte("8470"), time.Minute))
	v, ok, err := c.GetBytes("naruto")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("8470"), v)
}
