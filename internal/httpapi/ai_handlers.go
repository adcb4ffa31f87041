package httpapi

import (
	"context"
	"net/http"

	"github.com/softlyplease/soft-compute-gateway/pkg/ai"
)

// aiHandler decodes a request of type T, runs call and writes the result.
func aiHandler[T any](s *Server, call func(ctx context.Context, req T) (*ai.Result, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req T
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		result, err := call(r.Context(), req)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.writeData(w, r, result)
	}
}

func (s *Server) handleAnalyzeGeometry(w http.ResponseWriter, r *http.Request) {
	aiHandler(s, s.ai.AnalyzeGeometry)(w, r)
}

func (s *Server) handleOptimizeParameters(w http.ResponseWriter, r *http.Request) {
	aiHandler(s, s.ai.OptimizeParameters)(w, r)
}

func (s *Server) handleNaturalLanguage(w http.ResponseWriter, r *http.Request) {
	aiHandler(s, s.ai.NaturalLanguageToOperation)(w, r)
}

func (s *Server) handleDiagnoseError(w http.ResponseWriter, r *http.Request) {
	aiHandler(s, s.ai.DiagnoseError)(w, r)
}

func (s *Server) handlePerformanceRecommendations(w http.ResponseWriter, r *http.Request) {
	aiHandler(s, s.ai.PerformanceRecommendations)(w, r)
}

func (s *Server) handleAIMetrics(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, r, s.ai.ServiceMetrics())
}

func (s *Server) handleAIValidate(w http.ResponseWriter, r *http.Request) {
	status := s.ai.ValidateConnection(r.Context())
	code := http.StatusOK
	if !status.Success {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, envelope{
		Success:   status.Success,
		RequestID: requestIDFrom(r),
		Data:      status,
		Error:     status.Error,
	})
}

func (s *Server) handleClearAICache(w http.ResponseWriter, r *http.Request) {
	if err := s.ai.ClearCache(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeData(w, r, map[string]string{"message": "AI cache cleared"})
}
