package ratelimit

import (
	"context"
	"time"

	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// TokenBucketLimiter refills limit tokens per window and allows bursts of up
// to limit requests. State lives in Echo's in-memory limiter store.
type TokenBucketLimiter struct {
	store  *echomw.RateLimiterMemoryStore
	limit  int
	window time.Duration
}

// NewTokenBucketLimiter creates a token bucket limiter with the same
// limit-per-window semantics as the fixed window limiter.
func NewTokenBucketLimiter(limit int, window time.Duration) *TokenBucketLimiter {
	r := rate.Limit(float64(limit) / window.Seconds())
	return &TokenBucketLimiter{
		store: echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
			Rate:      r,
			Burst:     limit,
			ExpiresIn: window,
		}),
		limit:  limit,
		window: window,
	}
}

// Allow implements Limiter.
func (l *TokenBucketLimiter) Allow(_ context.Context, key string) (*Result, error) {
	ok, err := l.store.Allow(key)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Allowed:    ok,
		Limit:      l.limit,
		Remaining:  -1,
		ResetAfter: l.window,
	}
	if !ok {
		res.RetryAfter = l.window / time.Duration(l.limit)
	}
	return res, nil
}
