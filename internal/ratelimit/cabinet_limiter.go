package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/cabinet/internal/config"
)

const keyCabinetRequests = "cabinet:api:%s"

// CabinetLimiter caps API requests per cabinet. A nil or disabled limiter
// allows everything.
type CabinetLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewCabinetLimiter(cfg config.Config, client *redis.Client) *CabinetLimiter {
	if client == nil || cfg.RateLimitPerMin <= 0 {
		return nil
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = cfg.RateLimitPerMin
	}
	return &CabinetLimiter{
		bucket: NewTokenBucket(client),
		rate:   float64(cfg.RateLimitPerMin) / 60,
		burst:  burst,
	}
}

func (l *CabinetLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *CabinetLimiter) Allow(ctx context.Context, cabinetID string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	cabinetID = strings.TrimSpace(cabinetID)
	if cabinetID == "" {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyCabinetRequests, cabinetID), l.rate, l.burst)
}
