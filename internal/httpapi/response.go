package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/softlyplease/soft-compute-gateway/pkg/breaker"
	"github.com/softlyplease/soft-compute-gateway/pkg/params"
	"github.com/softlyplease/soft-compute-gateway/pkg/upstream"
)

// envelope is the body of every JSON response.
type envelope struct {
	Success        bool   `json:"success"`
	RequestID      string `json:"requestId,omitempty"`
	ProcessingTime int64  `json:"processingTime,omitempty"`
	Data           any    `json:"data,omitempty"`
	Error          string `json:"error,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write response")
	}
}

// writeData writes a success envelope around data.
func (s *Server) writeData(w http.ResponseWriter, r *http.Request, data any) {
	s.writeJSON(w, http.StatusOK, envelope{
		Success:        true,
		RequestID:      requestIDFrom(r),
		ProcessingTime: elapsedMillis(r, s.now()),
		Data:           data,
	})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.writeJSON(w, status, envelope{
		Success:   false,
		RequestID: requestIDFrom(r),
		Error:     message,
	})
}

// fail maps err to a status and user message and writes it.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("request_id", requestIDFrom(r)).Int("status", status).Msg("Request failed")
	}
	s.writeError(w, r, status, userMessage(err))
}

// statusFor maps an error to the HTTP status returned to the client.
func statusFor(err error) int {
	var upErr *upstream.UpstreamError

	switch {
	case err == nil:
		return http.StatusOK
	case params.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, breaker.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, upstream.ErrRetryExhausted):
		if upstream.Classify(err) == upstream.ErrorClassTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusServiceUnavailable
	case errors.Is(err, upstream.ErrContextCancelled):
		return http.StatusServiceUnavailable
	case errors.As(err, &upErr):
		switch {
		case upErr.Class == upstream.ErrorClassClient && upErr.StatusCode >= 400 && upErr.StatusCode < 500:
			return upErr.StatusCode
		case upErr.Class == upstream.ErrorClassTimeout:
			return http.StatusGatewayTimeout
		default:
			return http.StatusBadGateway
		}
	default:
		return http.StatusInternalServerError
	}
}

// userMessage is the error text shown to clients. Internal details stay in
// the logs.
func userMessage(err error) string {
	var upErr *upstream.UpstreamError

	switch {
	case params.IsValidation(err):
		return err.Error()
	case errors.Is(err, breaker.ErrCircuitOpen):
		return "Service temporarily unavailable, please retry later"
	case errors.Is(err, context.DeadlineExceeded):
		return "Upstream request timed out"
	case errors.Is(err, upstream.ErrRetryExhausted):
		return "Upstream service unavailable after retries"
	case errors.Is(err, upstream.ErrContextCancelled):
		return "Request cancelled"
	case errors.As(err, &upErr):
		if upErr.Class == upstream.ErrorClassClient && upErr.Message != "" {
			return upErr.Message
		}
		return "Upstream service error"
	default:
		return "Internal server error"
	}
}
