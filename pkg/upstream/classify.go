package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// maxErrorBody bounds how much of an error response is read for its message.
const maxErrorBody = 4 << 10

// ClassifyStatus maps an HTTP status code to an error class.
// Returns "" for non-error statuses.
func ClassifyStatus(code int) ErrorClass {
	switch {
	case code == http.StatusRequestTimeout:
		return ErrorClassTimeout
	case code == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case code >= 500:
		return ErrorClassServer
	case code >= 400:
		return ErrorClassClient
	default:
		return ""
	}
}

// Classify returns the error class of err, or "" when err is not an
// upstream failure (validation errors, decode errors, caller cancellation).
// An empty class is never retried.
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}

	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return upErr.Class
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ""
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorClassTimeout
		}
		return ErrorClassNetwork
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return ErrorClassNetwork
	}

	return ""
}

// NewStatusError builds an UpstreamError from a non-2xx response.
// The body is read (bounded) for a message but not closed.
func NewStatusError(service string, resp *http.Response) *UpstreamError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	return &UpstreamError{
		Service:    service,
		StatusCode: resp.StatusCode,
		Class:      ClassifyStatus(resp.StatusCode),
		Message:    errorMessage(resp.Status, body),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// NewTransportError wraps a failed round trip.
func NewTransportError(service string, err error) *UpstreamError {
	class := Classify(err)
	if class == "" {
		class = ErrorClassNetwork
	}
	return &UpstreamError{
		Service: service,
		Class:   class,
		Message: "request failed",
		Err:     err,
	}
}

// errorMessage prefers an "error" or "message" field from a JSON body.
func errorMessage(status string, body []byte) string {
	var parsed struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		var s string
		if json.Unmarshal(parsed.Error, &s) == nil && s != "" {
			return s
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) < 200 {
		return text
	}
	return status
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
