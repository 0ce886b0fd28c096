package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client, "test:")
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStore_IncrementStartsWindow(t *testing.T) {
	s, mr := newMiniredisStore(t)
	ctx := context.Background()

	count, ttl, err := s.Increment(ctx, "1.2.3.4", 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, 10*time.Minute, ttl)
	assert.True(t, mr.Exists("test:1.2.3.4"))

	mr.FastForward(time.Minute)
	count, ttl, err = s.Increment(ctx, "1.2.3.4", 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, 9*time.Minute, ttl, "later hits must not extend the window")
}

func TestRedisStore_WindowExpires(t *testing.T) {
	s, mr := newMiniredisStore(t)
	ctx := context.Background()

	for range 3 {
		_, _, err := s.Increment(ctx, "k", time.Minute)
		require.NoError(t, err)
	}

	mr.FastForward(time.Minute + time.Second)
	count, _, err := s.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRedisStore_Reset(t *testing.T) {
	s, mr := newMiniredisStore(t)
	ctx := context.Background()

	_, _, err := s.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Reset(ctx, "k"))
	assert.False(t, mr.Exists("test:k"))
}

func TestRedisStore_ContextCancelled(t *testing.T) {
	s, _ := newMiniredisStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := s.Increment(ctx, "k", time.Minute)
	assert.True(t, errors.Is(err, context.Canceled), "expected context.Canceled, got %v", err)
}

func TestRedisStore_WithFixedWindowLimiter(t *testing.T) {
	s, _ := newMiniredisStore(t)
	l := NewFixedWindowLimiter(s, 100, 10*time.Minute)
	ctx := context.Background()

	for i := 1; i <= 100; i++ {
		res, err := l.Allow(ctx, "client")
		require.NoError(t, err)
		require.True(t, res.Allowed, "request %d should be allowed", i)
	}
	res, err := l.Allow(ctx, "client")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestDialRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := DialRedis(context.Background(), RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	assert.Equal(t, "ratelimit:", s.prefix)
	require.NoError(t, s.Close())

	mr.Close()
	_, err = DialRedis(context.Background(), RedisConfig{Address: mr.Addr(), DialTimeout: 200 * time.Millisecond})
	assert.Error(t, err)
}
