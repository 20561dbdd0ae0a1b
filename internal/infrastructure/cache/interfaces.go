package cache

import (
	"context"
	"time"
)

// RateLimiter provides distributed rate limiting over Redis.
type RateLimiter interface {
	// Allow checks if a request is allowed under the rate limit
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)

	// Count returns the current count for a rate limit key
	Count(ctx context.Context, key string, window time.Duration) (int, error)

	// Reset clears the rate limit counter for a key
	Reset(ctx context.Context, key string) error

	// Remaining returns how many requests are remaining in the current window
	Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error)
}

// Key prefixes for consistent cache key naming
const (
	SnapshotPrefix  = "auction:snapshot:"
	RateLimitPrefix = "auction:ratelimit:"
)

// DefaultSnapshotTTL bounds how stale a cached auction read may be.
const DefaultSnapshotTTL = 5 * time.Second
