package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/paysync/internal/config"
)

const (
	keyWebhookClient = "webhook:client:%s:%s"
	keyWebhookLock   = "webhook:lock:%s"

	defaultLockTTL = 30 * time.Second
)

// WebhookLimiter guards the webhook route with a per-client token bucket and
// serializes concurrent deliveries that share an idempotency key.
type WebhookLimiter struct {
	limitEnabled bool

	bucket *TokenBucket
	lock   *DeliveryLock

	rate  float64
	burst int
}

func NewWebhookLimiter(cfg config.Config, client *redis.Client) *WebhookLimiter {
	if client == nil {
		return nil
	}

	return &WebhookLimiter{
		limitEnabled: cfg.Webhook.RateLimitEnabled && cfg.Webhook.Rate > 0 && cfg.Webhook.Burst > 0,
		bucket:       NewTokenBucket(client),
		lock:         NewDeliveryLock(client, time.Duration(cfg.Webhook.LockTTLSeconds)*time.Second),
		rate:         cfg.Webhook.Rate,
		burst:        cfg.Webhook.Burst,
	}
}

func (l *WebhookLimiter) Enabled() bool {
	return l != nil && l.limitEnabled
}

// AllowClient spends one token from the caller's bucket.
func (l *WebhookLimiter) AllowClient(ctx context.Context, provider, clientIP string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyWebhookClient, strings.ToLower(strings.TrimSpace(provider)), strings.TrimSpace(clientIP))
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}

// TryLock acquires the delivery lock for an idempotency key.
func (l *WebhookLimiter) TryLock(ctx context.Context, key string) (string, bool, error) {
	if l == nil {
		return "", true, nil
	}
	return l.lock.Acquire(ctx, fmt.Sprintf(keyWebhookLock, key))
}

func (l *WebhookLimiter) Release(ctx context.Context, key, token string) error {
	if l == nil {
		return nil
	}
	return l.lock.Release(ctx, fmt.Sprintf(keyWebhookLock, key), token)
}
