package rediscache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_GetSetDel(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	require.NoError(t, c.Ping(ctx))

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	b, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), b)

	require.NoError(t, c.Del(ctx, "k"))
	require.False(t, mr.Exists("k"))
	require.NoError(t, c.Del(ctx, "k"))
}

func TestRedisCache_ZeroTTLNeverExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "session", []byte("x"), 0))
	mr.FastForward(24 * time.Hour)
	require.True(t, mr.Exists("session"))
}

func TestRedisCache_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())
	mr.Close()

	_, _, err := c.Get(context.Background(), "k")
	require.Error(t, err)
	require.Contains(t, err.Error(), "redis get")
}

func TestRateLimiter_Allow(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := New(mr.Addr()).Cooldowns()

	ctx := context.Background()
	ok, n, err := rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), n)

	ok, n, _ = rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(2), n)

	ok, n, _ = rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.False(t, ok)
	require.Equal(t, int64(3), n)
}

func TestRateLimiter_MillisecondWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := New(mr.Addr()).Cooldowns()
	ctx := context.Background()

	ok, _, err := rl.Allow(ctx, "scan:cooldown:x", 1, 1500*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1500*time.Millisecond, mr.TTL("scan:cooldown:x"))

	ok, _, _ = rl.Allow(ctx, "scan:cooldown:x", 1, 1500*time.Millisecond)
	require.False(t, ok)

	mr.FastForward(2 * time.Second)
	ok, n, _ := rl.Allow(ctx, "scan:cooldown:x", 1, 1500*time.Millisecond)
	require.True(t, ok)
	require.Equal(t, int64(1), n)
}

func TestRateLimiter_ZeroWindowDisabled(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := New(mr.Addr()).Cooldowns()

	for i := 0; i < 3; i++ {
		ok, _, err := rl.Allow(context.Background(), "k", 1, 0)
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.False(t, mr.Exists("k"))
}

func TestCooldowns_ShareCacheClient(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())
	rl := c.Cooldowns()
	ctx := context.Background()

	ok, _, err := rl.Allow(ctx, "scan:cooldown:4202:A", 1, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.Close())
	_, _, err = rl.Allow(ctx, "scan:cooldown:4202:A", 1, time.Second)
	require.Error(t, err)
}
