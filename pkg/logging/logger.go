// Package logging configures the gateway's zerolog output and HTTP access
// logs.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logger configuration.
type Config struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string

	// Pretty switches from JSON lines to console output.
	Pretty bool

	// Output defaults to os.Stderr.
	Output io.Writer

	// Fields are attached to every line (service, environment, version).
	Fields map[string]string
}

// DefaultConfig returns JSON output at info level on stderr.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Output: os.Stderr,
	}
}

// Setup builds the logger described by cfg and installs it as the global
// logger. An unknown level falls back to info and is reported once.
func Setup(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	level, levelErr := ParseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	ctx := zerolog.New(out).With().Timestamp()
	for k, v := range cfg.Fields {
		ctx = ctx.Str(k, v)
	}
	logger := ctx.Logger()
	log.Logger = logger

	if levelErr != nil {
		logger.Warn().Err(levelErr).Msg("Falling back to info level")
	}
	return logger
}

// ParseLevel maps a configured level name to a zerolog level. Names are case
// insensitive and "warning" is accepted for warn.
func ParseLevel(name string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", name)
	}
}

// NewLogger returns a child of the global logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache operations (hit/miss, key)
//   - Coalesced upstream calls
//   - Internal state changes
//
// Info: Normal operation events
//   - Successful upstream operations
//   - Cache clears
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Retry attempts
//   - Circuit breaker trips and rejections
//   - Redis errors (fallback to memory)
//   - Failed status probes, artifact logging failures
//
// Error: Error conditions requiring attention
//   - Failed operations (after retries)
//   - Service unavailability
//   - Configuration errors
//
// Context Fields:
//   - component: Emitting component
//   - operation: Operation name (compute.<type>, ai_<operation>)
//   - service: Upstream service (rhino-compute, openai)
//   - request_id: X-Request-ID of the HTTP request
//   - status: HTTP status code
//   - duration: Request or operation duration
//   - error_class: Error classification (client, server, rate_limit, timeout, network)
//   - attempt: Retry attempt number
