package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisLimiter counts requests per client and window in Redis, so every
// gateway instance sees the same window.
type RedisLimiter struct {
	redis  *redis.Client
	window time.Duration
	limit  int
	now    func() time.Time
	logger zerolog.Logger
}

// NewRedisLimiter creates a Redis-backed limiter.
func NewRedisLimiter(redisClient *redis.Client, window time.Duration, limit int, logger zerolog.Logger) *RedisLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &RedisLimiter{
		redis:  redisClient,
		window: window,
		limit:  limit,
		now:    time.Now,
		logger: logger,
	}
}

// Allow increments the client's counter for the current window.
// Redis failures are returned with an allowing Decision; callers should let
// the request through rather than fail on limiter outages.
func (l *RedisLimiter) Allow(ctx context.Context, client string) (Decision, error) {
	start := windowStart(l.now(), l.window)
	key := RedisKeyPrefix + client + ":" + strconv.FormatInt(start.Unix(), 10)

	var incr *redis.IntCmd
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		// Key is window-scoped, so refreshing the expiry never extends the window.
		pipe.PExpire(ctx, key, l.window)
		return nil
	})
	if err != nil {
		rateLimitErrorsTotal.Inc()
		return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit, ResetAt: start.Add(l.window)},
			fmt.Errorf("rate limit incr: %w", err)
	}

	d := decide(incr.Val(), l.limit, start, l.window)
	if !d.Allowed {
		rateLimitBlocksTotal.WithLabelValues("redis").Inc()
		l.logger.Warn().
			Str("client", client).
			Int("limit", l.limit).
			Time("reset_at", d.ResetAt).
			Msg("Rate limit exceeded - blocking request")
	}
	return d, nil
}
