package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Only the holder of the token may delete the key.
const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var (
	ErrLockUnavailable = errors.New("lock_unavailable")
	ErrEmptyLockKey    = errors.New("empty_lock_key")
)

// DeliveryLock is a SETNX lease keyed by idempotency key. A lease that is
// never released expires after ttl so a crashed worker cannot wedge an order.
type DeliveryLock struct {
	client *redis.Client
	unlock *redis.Script
	ttl    time.Duration
}

func NewDeliveryLock(client *redis.Client, ttl time.Duration) *DeliveryLock {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &DeliveryLock{
		client: client,
		unlock: redis.NewScript(unlockScript),
		ttl:    ttl,
	}
}

// Acquire returns the lease token and whether the lease was granted.
func (l *DeliveryLock) Acquire(ctx context.Context, key string) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, ErrLockUnavailable
	}
	if key == "" {
		return "", false, ErrEmptyLockKey
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *DeliveryLock) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil || key == "" || token == "" {
		return nil
	}
	return l.unlock.Run(ctx, l.client, []string{key}, token).Err()
}
