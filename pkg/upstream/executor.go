// Package upstream runs calls to external services (Rhino.Compute, OpenAI)
// with response caching, fill coalescing, circuit breaking and
// classification-driven retries.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// ResponseCache stores successful upstream results.
type ResponseCache interface {
	Lookup(ctx context.Context, key string) (json.RawMessage, bool)
	Store(ctx context.Context, key string, value json.RawMessage, ttl time.Duration)
}

// Recorder receives cache and operation events.
type Recorder interface {
	AttemptRecorder
	RecordHit(name string)
	RecordMiss(name string)
	RecordOperation(name string, d time.Duration)
	RecordError(name string)
}

// Gate admits or rejects calls to an upstream, usually a circuit breaker.
type Gate interface {
	Allow() error
	RecordSuccess()
	RecordFailure()
	Release()
}

// Call performs one upstream attempt and returns its JSON result.
type Call func(ctx context.Context) (json.RawMessage, error)

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	// Service names the upstream in logs
	Service string

	Cache    ResponseCache
	Recorder Recorder
	Policy   Policy

	// Gate is optional
	Gate Gate
}

// Executor is the shared cache → coalesce → gate → retry pipeline.
type Executor struct {
	cache       ResponseCache
	recorder    Recorder
	coordinator *Coordinator
	gate        Gate
	group       singleflight.Group
	logger      zerolog.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.Cache == nil {
		panic("upstream: executor cache cannot be nil")
	}
	if cfg.Recorder == nil {
		panic("upstream: executor recorder cannot be nil")
	}
	return &Executor{
		cache:       cfg.Cache,
		recorder:    cfg.Recorder,
		coordinator: NewCoordinator(cfg.Policy, cfg.Recorder),
		gate:        cfg.Gate,
		logger:      log.With().Str("component", "executor").Str("service", cfg.Service).Logger(),
	}
}

// Coordinator returns the retry coordinator the executor uses.
func (e *Executor) Coordinator() *Coordinator {
	return e.coordinator
}

// Fetch returns the cached result for key or runs fn and caches its result
// for ttl. Concurrent misses on the same key share one upstream call. The
// shared call is detached from any single caller's cancellation; each caller
// stops waiting when its own ctx ends. An empty key bypasses caching and
// coalescing.
func (e *Executor) Fetch(ctx context.Context, name, key string, ttl time.Duration, fn Call) (json.RawMessage, bool, error) {
	if key == "" {
		value, err := e.call(ctx, name, "", 0, fn)
		return value, false, err
	}

	if value, ok := e.cache.Lookup(ctx, key); ok {
		e.recorder.RecordHit(name)
		e.logger.Debug().Str("operation", name).Str("key", key).Msg("Cache hit")
		return value, true, nil
	}
	e.recorder.RecordMiss(name)
	e.logger.Debug().Str("operation", name).Str("key", key).Msg("Cache miss")

	shared := context.WithoutCancel(ctx)
	ch := e.group.DoChan(key, func() (any, error) {
		// A call that just finished may have stored the value and left the group.
		if value, ok := e.cache.Lookup(shared, key); ok {
			return fill{value: value, cached: true}, nil
		}
		value, err := e.call(shared, name, key, ttl, fn)
		return fill{value: value}, err
	})

	select {
	case res := <-ch:
		if res.Shared {
			e.logger.Debug().Str("operation", name).Str("key", key).Msg("Shared in-flight upstream call")
		}
		if res.Err != nil {
			return nil, false, res.Err
		}
		f := res.Val.(fill)
		return f.value, f.cached, nil
	case <-ctx.Done():
		return nil, false, fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
	}
}

type fill struct {
	value  json.RawMessage
	cached bool
}

func (e *Executor) call(ctx context.Context, name, key string, ttl time.Duration, fn Call) (json.RawMessage, error) {
	if e.gate != nil {
		if err := e.gate.Allow(); err != nil {
			e.recorder.RecordError(name)
			return nil, err
		}
	}

	start := time.Now()
	var result json.RawMessage
	err := e.coordinator.Execute(ctx, name, func(ctx context.Context) error {
		value, err := fn(ctx)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		e.recorder.RecordError(name)
		e.settleGate(err)
		return nil, err
	}

	e.settleGate(nil)
	elapsed := time.Since(start)
	if key != "" {
		e.cache.Store(ctx, key, result, ttl)
	}
	e.recorder.RecordOperation(name, elapsed)

	e.logger.Info().
		Str("operation", name).
		Dur("duration", elapsed).
		Msg("Upstream operation succeeded")

	return result, nil
}

// settleGate reports the outcome of an admitted call. A terminal client
// error still proves the upstream is answering.
func (e *Executor) settleGate(err error) {
	if e.gate == nil {
		return
	}
	switch {
	case err == nil:
		e.gate.RecordSuccess()
	case errors.Is(err, ErrContextCancelled):
		e.gate.Release()
	case errors.Is(err, ErrRetryExhausted), ShouldRetry(Classify(err)):
		e.gate.RecordFailure()
	case Classify(err) == ErrorClassClient:
		e.gate.RecordSuccess()
	default:
		e.gate.Release()
	}
}
