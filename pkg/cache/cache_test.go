package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

func newRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	rc, err := NewRedisCache(WithRedisAddr(mr.Host(), port), WithRedisPrefix("test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestServicesRoundTripTypedValues(t *testing.T) {
	ctx := context.Background()
	rc, _ := newRedis(t)
	mem := NewMemoryCache()
	t.Cleanup(func() { _ = mem.Close() })
	layered := NewLayeredCache(rc)

	for name, svc := range map[string]Service{"memory": mem, "redis": rc, "layered": layered} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, svc.Set(ctx, name+":a", sample{Name: "a", Value: 7}, time.Minute))

			var got sample
			require.NoError(t, svc.Get(ctx, name+":a", &got))
			assert.Equal(t, sample{Name: "a", Value: 7}, got)

			err := svc.Get(ctx, name+":missing", &got)
			assert.ErrorIs(t, err, ErrCacheMiss)

			require.NoError(t, svc.MSet(ctx, map[string]interface{}{
				name + ":b": sample{Name: "b", Value: 1},
				name + ":c": sample{Name: "c", Value: 2},
			}, time.Minute))

			typed, err := MGetTyped[sample](ctx, svc, name+":b", name+":c", name+":nope")
			require.NoError(t, err)
			assert.Len(t, typed, 2)
			assert.Equal(t, int64(2), typed[name+":c"].Value)
		})
	}
}

func TestRedisCachePrefixesKeys(t *testing.T) {
	ctx := context.Background()
	rc, mr := newRedis(t)

	require.NoError(t, rc.Set(ctx, "k", "v", 0))
	got, err := mr.Get("test:k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	require.NoError(t, rc.SAdd(ctx, "tokens", "x", "y"))
	members, err := rc.SMembers(ctx, "tokens")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"x", "y"}, members)

	ok, err := rc.SIsMember(ctx, "tokens", "x")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("test:tokens"))
}

func TestLayeredCacheFillsL1FromRedis(t *testing.T) {
	ctx := context.Background()
	rc, _ := newRedis(t)
	layered := NewLayeredCache(rc)
	t.Cleanup(func() { _ = layered.memCache.Close() })

	require.NoError(t, rc.Set(ctx, "only-l2", sample{Name: "l2"}, 0))
	assert.Equal(t, 0, layered.memCache.Len())

	var got sample
	require.NoError(t, layered.Get(ctx, "only-l2", &got))
	assert.Equal(t, "l2", got.Name)
	assert.Equal(t, 1, layered.memCache.Len())
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryCache(WithMemoryMaxSize(2))
	t.Cleanup(func() { _ = mem.Close() })

	require.NoError(t, mem.Set(ctx, "a", "1", 0))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, mem.Set(ctx, "b", "2", 0))
	time.Sleep(2 * time.Millisecond)
	var s string
	require.NoError(t, mem.Get(ctx, "a", &s))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, mem.Set(ctx, "c", "3", 0))

	assert.ErrorIs(t, mem.Get(ctx, "b", &s), ErrCacheMiss)
	require.NoError(t, mem.Get(ctx, "a", &s))
	assert.Equal(t, "1", s)
}
