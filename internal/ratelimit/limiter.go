// Package ratelimit provides per-client request rate limiting.
// It supports a fixed window counter over a pluggable Store (in-memory or
// Redis) and a token bucket backed by Echo's in-memory limiter store.
package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	// Allow records one request for key and reports whether it is allowed.
	Allow(ctx context.Context, key string) (*Result, error)
}

// Result represents the result of a rate limit check.
type Result struct {
	// Allowed indicates whether the request is allowed.
	Allowed bool

	// Limit is the maximum number of requests allowed per window.
	Limit int

	// Remaining is the number of requests left in the current window,
	// or -1 when the algorithm cannot tell.
	Remaining int

	// ResetAfter is the duration until the window resets.
	ResetAfter time.Duration

	// RetryAfter is the duration to wait before retrying (when not allowed).
	RetryAfter time.Duration
}

// Algorithm names a rate limiting algorithm.
type Algorithm string

const (
	AlgorithmFixedWindow Algorithm = "fixed_window"
	AlgorithmTokenBucket Algorithm = "token_bucket"
)

// FixedWindowLimiter counts requests per key in fixed windows of a given
// length. The window for a key starts at its first request.
type FixedWindowLimiter struct {
	store  Store
	limit  int
	window time.Duration
}

// NewFixedWindowLimiter creates a limiter allowing limit requests per window.
func NewFixedWindowLimiter(s Store, limit int, window time.Duration) *FixedWindowLimiter {
	return &FixedWindowLimiter{store: s, limit: limit, window: window}
}

// Allow implements Limiter. The store increments and reads the counter in a
// single operation, so concurrent requests for the same key cannot both pass
// the last free slot.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	count, resetAfter, err := l.store.Increment(ctx, key, l.window)
	if err != nil {
		return nil, err
	}

	allowed := count <= int64(l.limit)

	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	if resetAfter < 0 {
		resetAfter = 0
	}

	var retryAfter time.Duration
	if !allowed {
		retryAfter = resetAfter
	}

	return &Result{
		Allowed:    allowed,
		Limit:      l.limit,
		Remaining:  remaining,
		ResetAfter: resetAfter,
		RetryAfter: retryAfter,
	}, nil
}

// Limit returns the configured requests per window.
func (l *FixedWindowLimiter) Limit() int { return l.limit }

// Window returns the configured window length.
func (l *FixedWindowLimiter) Window() time.Duration { return l.window }
