package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/fortimind/subscriptions/internal/config"
)

const keyWebhookSource = "webhook:source:%s"

// WebhookLimiter throttles inbound webhook deliveries per source
// address. It is disabled when no redis address is configured.
type WebhookLimiter struct {
	enabled bool

	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewWebhookLimiter(cfg config.Config) *WebhookLimiter {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     strings.TrimSpace(cfg.RedisPassword),
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	rate := float64(cfg.WebhookRatePerMinute) / 60
	if rate <= 0 {
		rate = 1
	}
	burst := cfg.WebhookBurst
	if burst <= 0 {
		burst = 30
	}

	return &WebhookLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    rate,
		burst:   burst,
	}
}

func (l *WebhookLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// AllowSource consumes one token for the given source address.
// Limiter errors fail open.
func (l *WebhookLimiter) AllowSource(ctx context.Context, source string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyWebhookSource, strings.TrimSpace(source)), l.rate, l.burst)
}
