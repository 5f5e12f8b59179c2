package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/toolhub/internal/config"
)

const keyFunctionsClient = "functions:%s:client:%s"

// FunctionsLimiter throttles the language-model function endpoints per client.
type FunctionsLimiter struct {
	enabled bool
	bucket  *TokenBucket
	rate    float64
	burst   int
}

func NewFunctionsLimiter(cfg config.Config, client *redis.Client) (*FunctionsLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return &FunctionsLimiter{}, nil
	}
	if client == nil {
		return nil, errors.New("rate limit requires REDIS_ADDR")
	}
	if limitCfg.FunctionsRate <= 0 || limitCfg.FunctionsBurst <= 0 {
		return nil, errors.New("functions rate limit must be positive")
	}
	return &FunctionsLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    limitCfg.FunctionsRate,
		burst:   limitCfg.FunctionsBurst,
	}, nil
}

func (l *FunctionsLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// Allow reports whether clientKey may call function now. Disabled limiters allow everything.
func (l *FunctionsLimiter) Allow(ctx context.Context, function, clientKey string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyFunctionsClient, strings.TrimSpace(function), strings.TrimSpace(clientKey))
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}
