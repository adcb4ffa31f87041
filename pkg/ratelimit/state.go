// Package ratelimit implements per-client fixed-window request limiting for
// the gateway's API routes. The Redis limiter shares windows across gateway
// instances; the memory limiter is the single-instance fallback.
package ratelimit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RedisKeyPrefix prefixes every window counter key.
const RedisKeyPrefix = "soft:rate_limit:"

// Defaults for the API limiter.
const (
	DefaultWindow = 15 * time.Minute
	DefaultLimit  = 1000
)

// Prometheus metrics for rate limiting.
var (
	rateLimitBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_rate_limit_blocks_total",
		Help: "Total number of requests rejected by the rate limiter",
	}, []string{"limiter"})

	rateLimitErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_rate_limit_errors_total",
		Help: "Total number of rate limit backend errors (requests allowed)",
	})
)

// Decision is the outcome of one rate limit check.
type Decision struct {
	// Allowed is false when the client has used up its window.
	Allowed bool `json:"allowed"`

	// Limit is the number of requests allowed per window.
	Limit int `json:"limit"`

	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the current window ends.
	ResetAt time.Time `json:"reset_at"`
}

// RetryAfter returns how long the client should wait before its window
// resets. Returns 0 if the reset time has already passed.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// Limiter decides whether a client may make another request.
type Limiter interface {
	Allow(ctx context.Context, client string) (Decision, error)
}

// windowStart aligns now to the start of its fixed window.
func windowStart(now time.Time, window time.Duration) time.Time {
	return now.Truncate(window)
}

// decide builds a Decision from the post-increment count.
func decide(count int64, limit int, start time.Time, window time.Duration) Decision {
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   start.Add(window),
	}
}
