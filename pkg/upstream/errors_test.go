package upstream

import (
	"errors"
	"testing"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name       string
		errorClass ErrorClass
		expected   bool
	}{
		{
			name:       "client error should not retry",
			errorClass: ErrorClassClient,
			expected:   false,
		},
		{
			name:       "server error should retry",
			errorClass: ErrorClassServer,
			expected:   true,
		},
		{
			name:       "rate limit should retry",
			errorClass: ErrorClassRateLimit,
			expected:   true,
		},
		{
			name:       "timeout should retry",
			errorClass: ErrorClassTimeout,
			expected:   true,
		},
		{
			name:       "network error should retry",
			errorClass: ErrorClassNetwork,
			expected:   true,
		},
		{
			name:       "empty error class should not retry",
			errorClass: "",
			expected:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ShouldRetry(tt.errorClass)
			if result != tt.expected {
				t.Errorf("ShouldRetry(%q) = %v, want %v", tt.errorClass, result, tt.expected)
			}
		})
	}
}

func TestUpstreamError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *UpstreamError
		expected string
	}{
		{
			name: "error with wrapped error",
			err: &UpstreamError{
				Service:    "rhino-compute",
				StatusCode: 0,
				Class:      ErrorClassNetwork,
				Message:    "request failed",
				Err:        errors.New("connection refused"),
			},
			expected: "rhino-compute network error (status 0): request failed: connection refused",
		},
		{
			name: "error without wrapped error",
			err: &UpstreamError{
				Service:    "openai",
				StatusCode: 400,
				Class:      ErrorClassClient,
				Message:    "invalid model",
			},
			expected: "openai client error (status 400): invalid model",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestUpstreamError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	err := &UpstreamError{Class: ErrorClassNetwork, Err: inner}

	if !errors.Is(err, inner) {
		t.Error("errors.Is should find the wrapped error")
	}
}

func TestUpstreamError_Temporary(t *testing.T) {
	if (&UpstreamError{Class: ErrorClassClient}).Temporary() {
		t.Error("client error should not be temporary")
	}
	if !(&UpstreamError{Class: ErrorClassServer}).Temporary() {
		t.Error("server error should be temporary")
	}
}
