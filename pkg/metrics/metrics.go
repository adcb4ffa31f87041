// Package metrics tracks cache and upstream operation counters for the gateway.
//
// A Counter is an explicit instance owned by whoever builds the compute or AI
// service, so tests can observe one service in isolation. Every event is also
// mirrored into the package-level Prometheus collectors below, which are what
// the /metrics endpoint exposes.
//
// Exported series:
//   - gateway_cache_hits_total{operation} (Counter)
//   - gateway_cache_misses_total{operation} (Counter)
//   - gateway_operations_total{operation} (Counter)
//   - gateway_operation_duration_seconds{operation} (Histogram)
//   - gateway_upstream_attempts_total{operation} (Counter)
//   - gateway_operation_errors_total{operation} (Counter)
//
// Example Prometheus queries:
//
//	# Cache hit rate
//	sum(rate(gateway_cache_hits_total[5m])) /
//	(sum(rate(gateway_cache_hits_total[5m])) + sum(rate(gateway_cache_misses_total[5m])))
//
//	# P95 upstream latency per operation
//	histogram_quantile(0.95, rate(gateway_operation_duration_seconds_bucket[5m]))
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_cache_hits_total",
		Help: "Total operation cache hits by operation",
	}, []string{"operation"})

	cacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_cache_misses_total",
		Help: "Total operation cache misses by operation",
	}, []string{"operation"})

	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_operations_total",
		Help: "Total successful upstream operations by operation",
	}, []string{"operation"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_operation_duration_seconds",
		Help:    "Upstream operation duration in seconds by operation",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"operation"})

	attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_upstream_attempts_total",
		Help: "Total upstream call attempts, including retries, by operation",
	}, []string{"operation"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_operation_errors_total",
		Help: "Total failed operations by operation",
	}, []string{"operation"})
)

// Stats is a point-in-time snapshot of a Counter.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hitRate"`

	// OperationCounts holds successful operations by name.
	OperationCounts map[string]int64 `json:"operationCounts"`

	// AverageDurations holds the mean duration of successful operations by name.
	AverageDurations map[string]time.Duration `json:"averageDurations"`

	// Attempts holds upstream call attempts by name, retries included.
	Attempts map[string]int64 `json:"attempts"`

	// Errors holds failed operations by name.
	Errors map[string]int64 `json:"errors"`
}

// Counter accumulates cache and operation counters. Safe for concurrent use.
type Counter struct {
	mu         sync.Mutex
	hits       int64
	misses     int64
	operations map[string]int64
	durations  map[string]time.Duration
	attempts   map[string]int64
	errors     map[string]int64
}

// NewCounter returns an empty Counter.
func NewCounter() *Counter {
	return &Counter{
		operations: make(map[string]int64),
		durations:  make(map[string]time.Duration),
		attempts:   make(map[string]int64),
		errors:     make(map[string]int64),
	}
}

// RecordHit records a cache hit for the named operation.
func (c *Counter) RecordHit(name string) {
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	cacheHitsTotal.WithLabelValues(name).Inc()
}

// RecordMiss records a cache miss for the named operation.
func (c *Counter) RecordMiss(name string) {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	cacheMissesTotal.WithLabelValues(name).Inc()
}

// RecordOperation records one successful operation and how long it took.
func (c *Counter) RecordOperation(name string, d time.Duration) {
	c.mu.Lock()
	c.operations[name]++
	c.durations[name] += d
	c.mu.Unlock()
	operationsTotal.WithLabelValues(name).Inc()
	operationDuration.WithLabelValues(name).Observe(d.Seconds())
}

// RecordAttempt records one upstream call attempt.
func (c *Counter) RecordAttempt(name string) {
	c.mu.Lock()
	c.attempts[name]++
	c.mu.Unlock()
	attemptsTotal.WithLabelValues(name).Inc()
}

// RecordError records one failed operation.
func (c *Counter) RecordError(name string) {
	c.mu.Lock()
	c.errors[name]++
	c.mu.Unlock()
	errorsTotal.WithLabelValues(name).Inc()
}

// Stats returns a snapshot. HitRate is hits/(hits+misses), or 0 when
// nothing has been recorded.
func (c *Counter) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:             c.hits,
		Misses:           c.misses,
		HitRate:          HitRate(c.hits, c.misses),
		OperationCounts:  make(map[string]int64, len(c.operations)),
		AverageDurations: make(map[string]time.Duration, len(c.durations)),
		Attempts:         make(map[string]int64, len(c.attempts)),
		Errors:           make(map[string]int64, len(c.errors)),
	}
	for name, n := range c.operations {
		s.OperationCounts[name] = n
		s.AverageDurations[name] = c.durations[name] / time.Duration(n)
	}
	for name, n := range c.attempts {
		s.Attempts[name] = n
	}
	for name, n := range c.errors {
		s.Errors[name] = n
	}
	return s
}

// TotalOperations sums OperationCounts.
func (s Stats) TotalOperations() int64 {
	var total int64
	for _, n := range s.OperationCounts {
		total += n
	}
	return total
}

// HitRate returns hits/(hits+misses), defined as 0 when both are zero.
func HitRate(hits, misses int64) float64 {
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}
