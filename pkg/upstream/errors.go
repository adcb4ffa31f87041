package upstream

import (
	"errors"
	"fmt"
	"time"
)

// Common errors returned by the coordinator and executor.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the caller's context ends during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 408 and 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassTimeout represents 408 responses and attempt deadlines.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassNetwork represents transport failures (refused, reset, DNS).
	ErrorClassNetwork ErrorClass = "network"
)

// UpstreamError is a failed call to an upstream service with its classification.
type UpstreamError struct {
	// Service is the upstream name ("rhino-compute", "openai")
	Service string

	// StatusCode is the HTTP status, 0 for transport failures
	StatusCode int

	// Class drives the retry decision
	Class ErrorClass

	// Message is the upstream's error text
	Message string

	// RetryAfter is the server-requested wait, if any
	RetryAfter time.Duration

	Err error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s error (status %d): %s: %v",
			e.Service, e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s error (status %d): %s",
		e.Service, e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the call may succeed.
func (e *UpstreamError) Temporary() bool {
	return ShouldRetry(e.Class)
}

// ShouldRetry determines if an error class should be retried.
func ShouldRetry(class ErrorClass) bool {
	switch class {
	case ErrorClassClient:
		// 4xx errors are deterministic; retrying only repeats the rejection
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassTimeout, ErrorClassNetwork:
		return true
	default:
		return false
	}
}
