package locker

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestRedisLocker_AcquireRelease(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	l := NewRedisLocker(client)
	client.Del(ctx, lockKey(42))

	ok, err := l.Acquire(ctx, 42)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second acquisition for the same order is refused
	ok, err = l.Acquire(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok)

	// A different order is unaffected
	client.Del(ctx, lockKey(43))
	ok, err = l.Acquire(ctx, 43)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, l.Release(ctx, 42))

	ok, err = l.Acquire(ctx, 42)
	require.NoError(t, err)
	assert.True(t, ok)

	client.Del(ctx, lockKey(42), lockKey(43))
}
