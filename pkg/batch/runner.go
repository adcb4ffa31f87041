// Package batch runs many compute operations in parallel with bounded
// concurrency.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/softlyplease/soft-compute-gateway/pkg/compute"
	"github.com/softlyplease/soft-compute-gateway/pkg/params"
	"github.com/softlyplease/soft-compute-gateway/pkg/upstream"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// MaxOperations bounds the size of one batch.
const MaxOperations = 100

// Config holds batch runner configuration
type Config struct {
	// MaxConcurrency is the maximum number of operations in flight
	MaxConcurrency int
	// Timeout per operation
	Timeout time.Duration
	// Slots, when set, is acquired once per operation. Sharing it with
	// other callers bounds their combined in-flight upstream calls.
	Slots *semaphore.Weighted
}

// DefaultConfig returns the default runner configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 10,
		Timeout:        60 * time.Second,
	}
}

// Executor runs a single operation. *compute.Client implements it.
type Executor interface {
	Execute(ctx context.Context, operation string, geometry json.RawMessage, parameters map[string]any) (*compute.OperationResult, error)
}

// Result is the outcome of one batch item. Exactly one of Result and Err is set.
type Result struct {
	Index     int
	Operation string
	Result    *compute.OperationResult
	Err       error
}

// Runner executes batches of operations
type Runner struct {
	executor Executor
	config   Config
}

// NewRunner creates a new batch runner
func NewRunner(executor Executor, config Config) *Runner {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 10
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	return &Runner{
		executor: executor,
		config:   config,
	}
}

// Run executes every request and returns one Result per request in input
// order. A failed item does not stop the others; items not yet started when
// ctx ends fail with upstream.ErrContextCancelled.
func (r *Runner) Run(ctx context.Context, requests []compute.Request) []Result {
	start := time.Now()
	results := make([]Result, len(requests))

	log.Info().
		Int("operations", len(requests)).
		Int("max_concurrency", r.config.MaxConcurrency).
		Msg("Starting batch")

	var g errgroup.Group
	g.SetLimit(r.config.MaxConcurrency)

	for i, req := range requests {
		i, req := i, req
		results[i] = Result{Index: i, Operation: req.Operation}

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = cancelled(err)
				return nil
			}
			if r.config.Slots != nil {
				if err := r.config.Slots.Acquire(ctx, 1); err != nil {
					results[i].Err = cancelled(err)
					return nil
				}
				defer r.config.Slots.Release(1)
			}

			opCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
			res, err := r.executor.Execute(opCtx, req.Operation, req.GeometryData, req.Parameters)
			cancel()

			if err != nil {
				log.Warn().
					Err(err).
					Int("index", i).
					Str("operation", req.Operation).
					Msg("Batch operation failed")
				results[i].Err = err
				return nil
			}
			results[i].Result = res
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}

	log.Info().
		Int("operations", len(requests)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Batch complete")

	return results
}

func cancelled(err error) error {
	return fmt.Errorf("%w: %w", upstream.ErrContextCancelled, err)
}

// Validate checks the batch size.
func Validate(requests []compute.Request) error {
	if len(requests) == 0 {
		return params.Invalid("operations", "Missing required parameter: operations")
	}
	if len(requests) > MaxOperations {
		return params.Invalid("operations", "Batch exceeds %d operations (got %d)", MaxOperations, len(requests))
	}
	return nil
}
