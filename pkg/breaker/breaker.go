// Package breaker implements a consecutive-failure circuit breaker that
// stops calls to an upstream which keeps failing, then probes it again after
// a cool-down.
package breaker

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrCircuitOpen is returned by Allow while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker open")

// Defaults match the upstream service's documented tolerance.
const (
	DefaultThreshold   = 5
	DefaultOpenTimeout = 60 * time.Second
)

// Prometheus metrics for breaker state.
var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gateway_circuit_breaker_state",
		Help: "Circuit breaker state by upstream (0=closed, 1=half-open, 2=open)",
	}, []string{"breaker"})

	breakerRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_circuit_breaker_rejections_total",
		Help: "Total number of calls rejected by an open circuit breaker",
	}, []string{"breaker"})

	breakerTripsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_circuit_breaker_trips_total",
		Help: "Total number of transitions to open",
	}, []string{"breaker"})
)

// State is the breaker position.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota

	// StateHalfOpen lets a single trial call through.
	StateHalfOpen

	// StateOpen rejects calls until OpenTimeout has passed.
	StateOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Config configures a Breaker.
type Config struct {
	// Name labels metrics and logs ("rhino-compute", "openai")
	Name string

	// Threshold is the number of consecutive failures that opens the circuit
	Threshold int

	// OpenTimeout is how long the circuit stays open before a trial call
	OpenTimeout time.Duration

	// Now overrides the clock, for tests
	Now func() time.Time
}

// Breaker is a consecutive-failure circuit breaker. A nil *Breaker allows
// every call, so callers can disable it by not constructing one.
type Breaker struct {
	mu          sync.Mutex
	name        string
	threshold   int
	openTimeout time.Duration
	now         func() time.Time
	logger      zerolog.Logger

	state    State
	failures int
	openedAt time.Time
	trialOut bool
}

// New creates a closed Breaker.
func New(cfg Config) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultOpenTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	b := &Breaker{
		name:        cfg.Name,
		threshold:   cfg.Threshold,
		openTimeout: cfg.OpenTimeout,
		now:         cfg.Now,
		logger:      log.With().Str("component", "breaker").Str("breaker", cfg.Name).Logger(),
	}
	breakerState.WithLabelValues(b.name).Set(float64(StateClosed))
	return b
}

// Allow reports whether a call may proceed. Every nil return must be
// followed by exactly one of RecordSuccess, RecordFailure or Release.
func (b *Breaker) Allow() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.openTimeout {
			breakerRejectionsTotal.WithLabelValues(b.name).Inc()
			return ErrCircuitOpen
		}
		b.setState(StateHalfOpen)
		b.trialOut = true
		return nil
	case StateHalfOpen:
		if b.trialOut {
			breakerRejectionsTotal.WithLabelValues(b.name).Inc()
			return ErrCircuitOpen
		}
		b.trialOut = true
		return nil
	default:
		return nil
	}
}

// RecordSuccess closes the circuit and resets the failure count.
func (b *Breaker) RecordSuccess() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.trialOut = false
	if b.state != StateClosed {
		b.logger.Info().Msg("Circuit breaker closed")
		b.setState(StateClosed)
	}
}

// RecordFailure counts a failure; reaching the threshold, or failing the
// half-open trial, opens the circuit.
func (b *Breaker) RecordFailure() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.trialOut = false
	if b.state == StateHalfOpen || (b.state == StateClosed && b.failures >= b.threshold) {
		b.trip()
	}
}

// Release returns a permit without an outcome (caller cancelled).
func (b *Breaker) Release() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trialOut = false
}

// State returns the current state. An open breaker whose timeout has passed
// still reports open until the next Allow.
func (b *Breaker) State() State {
	if b == nil {
		return StateClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// trip opens the circuit. Caller holds mu.
func (b *Breaker) trip() {
	b.openedAt = b.now()
	b.setState(StateOpen)
	breakerTripsTotal.WithLabelValues(b.name).Inc()
	b.logger.Warn().
		Int("consecutive_failures", b.failures).
		Dur("open_for", b.openTimeout).
		Msg("Circuit breaker opened")
}

func (b *Breaker) setState(s State) {
	b.state = s
	breakerState.WithLabelValues(b.name).Set(float64(s))
}
