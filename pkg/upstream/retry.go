package upstream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_retries_total",
		Help: "Total number of retry attempts by operation and error class",
	}, []string{"operation", "error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by operation and error class",
	}, []string{"operation", "error_class"})
)

// Policy holds the configuration for retry logic.
type Policy struct {
	// MaxAttempts is the maximum number of attempts (including the initial call).
	MaxAttempts int

	// BaseDelay is the wait before the second attempt.
	BaseDelay time.Duration

	// MaxDelay caps the un-jittered wait.
	MaxDelay time.Duration

	// Multiplier grows the wait between consecutive attempts.
	Multiplier float64

	// Jitter randomizes each wait by ±Jitter (0.2 = ±20%).
	Jitter float64

	// AttemptTimeout bounds a single attempt; 0 leaves it to the caller's context.
	AttemptTimeout time.Duration
}

// DefaultPolicy returns the default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.2,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if p.Jitter < 0 || p.Jitter >= 1 {
		p.Jitter = d.Jitter
	}
	return p
}

// newBackOff builds the exponential schedule for one Execute call.
func (p Policy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.Jitter
	b.MaxInterval = p.MaxDelay
	b.MaxElapsedTime = 0 // attempts are bounded by MaxAttempts instead
	b.Reset()
	return b
}

// AttemptRecorder receives one event per upstream call attempt.
type AttemptRecorder interface {
	RecordAttempt(name string)
}

// Coordinator runs an operation with classification-driven retries.
type Coordinator struct {
	policy   Policy
	recorder AttemptRecorder
	sleep    func(ctx context.Context, d time.Duration) error
	logger   zerolog.Logger
}

// NewCoordinator creates a Coordinator. recorder may be nil.
func NewCoordinator(policy Policy, recorder AttemptRecorder) *Coordinator {
	return &Coordinator{
		policy:   policy.withDefaults(),
		recorder: recorder,
		sleep:    sleepContext,
		logger:   log.With().Str("component", "retry").Logger(),
	}
}

// Policy returns the effective policy.
func (c *Coordinator) Policy() Policy {
	return c.policy
}

// Execute calls op until it succeeds, fails with a non-retryable error, or
// MaxAttempts retryable failures have occurred.
//
// Non-retryable errors are returned unchanged. Exhaustion returns an error
// wrapping both ErrRetryExhausted and the last failure. If ctx ends, the
// result wraps ErrContextCancelled.
func (c *Coordinator) Execute(ctx context.Context, name string, op func(ctx context.Context) error) error {
	schedule := c.policy.newBackOff()

	var lastErr error
	var lastClass ErrorClass

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrContextCancelled, err)
		}

		if c.recorder != nil {
			c.recorder.RecordAttempt(name)
		}

		err := c.attempt(ctx, op)
		if err == nil {
			if attempt > 1 {
				c.logger.Info().
					Str("operation", name).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		// The caller gave up; the failure is not the upstream's.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctxErr)
		}

		lastErr = err
		lastClass = Classify(err)

		if !ShouldRetry(lastClass) {
			return err
		}

		if attempt >= c.policy.MaxAttempts {
			break
		}

		delay := schedule.NextBackOff()
		var upErr *UpstreamError
		if errors.As(err, &upErr) && upErr.RetryAfter > delay {
			delay = min(upErr.RetryAfter, c.policy.MaxDelay)
		}

		retriesTotal.WithLabelValues(name, string(lastClass)).Inc()
		retryBackoffSeconds.WithLabelValues(string(lastClass)).Observe(delay.Seconds())

		c.logger.Warn().
			Err(err).
			Str("operation", name).
			Str("error_class", string(lastClass)).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Retrying request after backoff")

		if err := c.sleep(ctx, delay); err != nil {
			c.logger.Warn().
				Str("operation", name).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %w", ErrContextCancelled, err)
		}
	}

	retryExhaustedTotal.WithLabelValues(name, string(lastClass)).Inc()
	c.logger.Error().
		Err(lastErr).
		Str("operation", name).
		Str("error_class", string(lastClass)).
		Int("max_attempts", c.policy.MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, c.policy.MaxAttempts, lastErr)
}

// attempt runs op under the per-attempt timeout, if any.
func (c *Coordinator) attempt(ctx context.Context, op func(ctx context.Context) error) error {
	if c.policy.AttemptTimeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, c.policy.AttemptTimeout)
	defer cancel()
	return op(attemptCtx)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
