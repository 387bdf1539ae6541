package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestSlidingWindow(t *testing.T) {
	limiter := Sliding{Client: newClient(t), Prefix: "test:", Window: 2 * time.Second, Max: 2}
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < limiter.Max; i++ {
		allowed, remaining, err := limiter.allow(ctx, "alice", now)
		require.NoError(t, err)
		require.True(t, allowed, "attempt %d", i)
		require.Equal(t, limiter.Max-(i+1), remaining)
	}

	allowed, remaining, err := limiter.allow(ctx, "alice", now)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Zero(t, remaining)

	allowed, err = limiter.Allow(ctx, "bob")
	require.NoError(t, err)
	require.True(t, allowed, "keys are independent")

	allowed, _, err = limiter.allow(ctx, "alice", now.Add(3*time.Second))
	require.NoError(t, err)
	require.True(t, allowed, "old attempts leave the window")
}

func TestSlidingWithoutClientAllows(t *testing.T) {
	allowed, err := Sliding{Max: 1, Window: time.Second}.Allow(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestSlidingReportsRedisErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer func() { _ = client.Close() }()
	_, err := Sliding{Client: client, Window: time.Second, Max: 1}.Allow(context.Background(), "k")
	require.Error(t, err)
}

func TestFixedGuards(t *testing.T) {
	mem, err := NewMemoryFixed("2-M")
	require.NoError(t, err)
	shared, err := NewRedisFixed(newClient(t), "test:fixed", "2-M")
	require.NoError(t, err)

	for name, guard := range map[string]Guard{"memory": mem, "redis": shared} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 2; i++ {
				ok, err := guard.Allow(ctx, "alice")
				require.NoError(t, err)
				require.True(t, ok)
			}
			ok, err := guard.Allow(ctx, "alice")
			require.NoError(t, err)
			require.False(t, ok)
		})
	}

	_, err = NewMemoryFixed("lots")
	require.Error(t, err)
}

func TestNewRedisGuardSelectsLimiter(t *testing.T) {
	client := newClient(t)

	guard, err := NewRedisGuard(client, Options{Prefix: "test:attempts", Rate: "5-M", Window: time.Minute, Max: 1})
	require.NoError(t, err)
	sliding, ok := guard.(Sliding)
	require.True(t, ok)
	require.Equal(t, "test:attempts:", sliding.Prefix)

	ctx := context.Background()
	allowed, err := guard.Allow(ctx, "alice")
	require.NoError(t, err)
	require.True(t, allowed)
	allowed, err = guard.Allow(ctx, "alice")
	require.NoError(t, err)
	require.False(t, allowed)

	guard, err = NewRedisGuard(client, Options{Prefix: "test:fixed", Rate: "5-M"})
	require.NoError(t, err)
	require.IsType(t, Fixed{}, guard)

	guard, err = NewRedisGuard(client, Options{})
	require.NoError(t, err)
	require.Nil(t, guard)

	_, err = NewRedisGuard(client, Options{Rate: "lots"})
	require.Error(t, err)
}
