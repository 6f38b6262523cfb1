// Package locker guards payment initiation so that at most one gateway order
// is being created per catering order at any time.
package locker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// initiationTTL bounds how long an abandoned lock can block retries; a normal
// initiation releases well before this expires
const initiationTTL = 2 * time.Minute

// PaymentLocker acquires and releases per-order initiation locks
type PaymentLocker interface {
	Acquire(ctx context.Context, orderID int) (bool, error)
	Release(ctx context.Context, orderID int) error
}

// RedisLocker implements PaymentLocker on Redis SetNX with a TTL
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker creates a locker backed by the given Redis client
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func lockKey(orderID int) string {
	return fmt.Sprintf("payment:init:%d", orderID)
}

// Acquire returns false when another initiation holds the lock
func (l *RedisLocker) Acquire(ctx context.Context, orderID int) (bool, error) {
	ok, err := l.client.SetNX(ctx, lockKey(orderID), 1, initiationTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Release frees the lock after the initiation outcome is persisted
func (l *RedisLocker) Release(ctx context.Context, orderID int) error {
	if err := l.client.Del(ctx, lockKey(orderID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
