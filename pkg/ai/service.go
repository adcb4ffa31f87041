// Package ai provides geometry-aware assistance backed by the OpenAI chat
// completions API: geometry analysis, parameter optimization, natural
// language to operation conversion, error diagnosis and performance
// recommendations. Every operation goes through the shared upstream
// executor, so results are cached and transient failures retried.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
	"github.com/softlyplease/soft-compute-gateway/pkg/cache"
	"github.com/softlyplease/soft-compute-gateway/pkg/metrics"
	"github.com/softlyplease/soft-compute-gateway/pkg/upstream"
)

// ServiceName names OpenAI in errors and logs.
const ServiceName = "openai"

// CacheNamespace prefixes AI cache keys.
const CacheNamespace = "ai"

// APIVersion is reported by ServiceMetrics and ValidateConnection.
const APIVersion = "2024-11-06"

// Operation names, used for metrics and cache keys.
const (
	OpGeometryAnalysis           = "ai_geometry_analysis"
	OpParameterOptimization      = "ai_parameter_optimization"
	OpNaturalLanguageConversion  = "ai_natural_language_conversion"
	OpErrorDiagnosis             = "ai_error_diagnosis"
	OpPerformanceRecommendations = "ai_performance_recommendations"
)

// Cache is the response cache used by the service.
type Cache interface {
	upstream.ResponseCache
	Purge(ctx context.Context) error
	Len() int
}

// Recorder is the metrics sink used by the service.
type Recorder interface {
	upstream.Recorder
	Stats() metrics.Stats
}

// DefaultAttemptTimeout bounds one completion when the policy sets none.
const DefaultAttemptTimeout = 60 * time.Second

// Config holds the service configuration.
type Config struct {
	APIKey string

	// BaseURL overrides the OpenAI endpoint (proxies, compatible servers)
	BaseURL string

	Policy upstream.Policy
}

// Metadata describes the completion behind a result.
type Metadata struct {
	Model            string `json:"model"`
	ProcessingTime   int64  `json:"processingTime"`
	TokensUsed       int    `json:"tokensUsed"`
	PromptTokens     int    `json:"promptTokens"`
	CompletionTokens int    `json:"completionTokens"`
	FinishReason     string `json:"finishReason"`
}

// Result is the model's JSON answer plus metadata. It marshals as
// {<Kind>: Payload, "metadata": ..., "cached": ...}.
type Result struct {
	Kind     string
	Payload  json.RawMessage
	Metadata Metadata
	Cached   bool
}

// MarshalJSON implements json.Marshaler.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		r.Kind:     r.Payload,
		"metadata": r.Metadata,
		"cached":   r.Cached,
	})
}

// stored is the cached form of a Result.
type stored struct {
	Payload  json.RawMessage `json:"payload"`
	Metadata Metadata        `json:"metadata"`
}

// Service calls the completion API.
type Service struct {
	client   *openai.Client
	exec     *upstream.Executor
	cache    Cache
	recorder Recorder
	logger   zerolog.Logger
	now      func() time.Time
}

// New creates an AI service. gate is optional.
func New(cfg Config, c Cache, recorder Recorder, gate upstream.Gate) (*Service, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if c == nil || recorder == nil {
		return nil, fmt.Errorf("ai cache and recorder are required")
	}

	policy := cfg.Policy
	if policy.AttemptTimeout <= 0 {
		policy.AttemptTimeout = DefaultAttemptTimeout
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &Service{
		client: openai.NewClientWithConfig(clientCfg),
		exec: upstream.NewExecutor(upstream.ExecutorConfig{
			Service:  ServiceName,
			Cache:    c,
			Recorder: recorder,
			Policy:   policy,
			Gate:     gate,
		}),
		cache:    c,
		recorder: recorder,
		logger:   log.With().Str("component", "ai-service").Logger(),
		now:      time.Now,
	}, nil
}

// complete runs one cached, retried completion.
func (s *Service) complete(ctx context.Context, op, kind string, profile Profile, prompt string, keyInput any, ttl time.Duration) (*Result, error) {
	key := cache.Key(CacheNamespace, map[string]any{"operation": op, "input": keyInput})

	value, cached, err := s.exec.Fetch(ctx, op, key, ttl, func(ctx context.Context) (json.RawMessage, error) {
		start := s.now()
		resp, err := s.client.CreateChatCompletion(ctx, profile.request(prompt))
		if err != nil {
			return nil, mapError(err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("invalid response structure from OpenAI API: no choices")
		}

		content := strings.TrimSpace(resp.Choices[0].Message.Content)
		if !json.Valid([]byte(content)) {
			return nil, fmt.Errorf("invalid response from OpenAI API: content is not JSON")
		}

		return json.Marshal(stored{
			Payload: json.RawMessage(content),
			Metadata: Metadata{
				Model:            profile.Model,
				ProcessingTime:   s.now().Sub(start).Milliseconds(),
				TokensUsed:       resp.Usage.TotalTokens,
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				FinishReason:     string(resp.Choices[0].FinishReason),
			},
		})
	})
	if err != nil {
		s.logger.Error().Err(err).Str("operation", op).Msg("AI operation failed")
		return nil, err
	}

	var st stored
	if err := json.Unmarshal(value, &st); err != nil {
		return nil, fmt.Errorf("decode cached %s result: %w", op, err)
	}
	return &Result{Kind: kind, Payload: st.Payload, Metadata: st.Metadata, Cached: cached}, nil
}

// mapError converts go-openai errors to upstream errors so the coordinator
// can classify them.
func mapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return &upstream.UpstreamError{
			Service:    ServiceName,
			StatusCode: apiErr.HTTPStatusCode,
			Class:      upstream.ClassifyStatus(apiErr.HTTPStatusCode),
			Message:    apiErr.Message,
			Err:        err,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return &upstream.UpstreamError{
			Service:    ServiceName,
			StatusCode: reqErr.HTTPStatusCode,
			Class:      upstream.ClassifyStatus(reqErr.HTTPStatusCode),
			Message:    "request failed",
			Err:        err,
		}
	}

	return upstream.NewTransportError(ServiceName, err)
}

// ConnectionStatus is the result of ValidateConnection.
type ConnectionStatus struct {
	Success    bool            `json:"success"`
	Models     []string        `json:"models,omitempty"`
	Features   map[string]bool `json:"features,omitempty"`
	Error      string          `json:"error,omitempty"`
	APIVersion string          `json:"apiVersion"`
}

// ValidateConnection lists the available models. Failures are reported in
// the status, not as an error.
func (s *Service) ValidateConnection(ctx context.Context) ConnectionStatus {
	list, err := s.client.ListModels(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("OpenAI connection check failed")
		return ConnectionStatus{Success: false, Error: err.Error(), APIVersion: APIVersion}
	}

	models := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, m.ID)
	}
	features := make(map[string]bool, len(Profiles))
	for name, p := range Profiles {
		features[name] = p.availableIn(models)
	}

	return ConnectionStatus{Success: true, Models: models, Features: features, APIVersion: APIVersion}
}

// ServiceMetrics summarizes AI usage.
type ServiceMetrics struct {
	Operations map[string]int64   `json:"aiOperations"`
	Cache      CacheStats         `json:"cachePerformance"`
	Models     map[string]Profile `json:"modelConfig"`
	Stats      metrics.Stats      `json:"stats"`
	APIVersion string             `json:"apiVersion"`
}

// CacheStats is the cache part of ServiceMetrics.
type CacheStats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hitRate"`
	Size    int     `json:"size"`
}

// ServiceMetrics returns per-operation counts, cache performance and the
// model profiles.
func (s *Service) ServiceMetrics() ServiceMetrics {
	stats := s.recorder.Stats()
	ops := map[string]int64{
		"geometryAnalysis":           stats.OperationCounts[OpGeometryAnalysis],
		"parameterOptimization":      stats.OperationCounts[OpParameterOptimization],
		"naturalLanguageConversion":  stats.OperationCounts[OpNaturalLanguageConversion],
		"errorDiagnosis":             stats.OperationCounts[OpErrorDiagnosis],
		"performanceRecommendations": stats.OperationCounts[OpPerformanceRecommendations],
	}
	return ServiceMetrics{
		Operations: ops,
		Cache: CacheStats{
			Hits:    stats.Hits,
			Misses:  stats.Misses,
			HitRate: stats.HitRate,
			Size:    s.cache.Len(),
		},
		Models:     Profiles,
		Stats:      stats,
		APIVersion: APIVersion,
	}
}

// ClearCache drops every cached AI response.
func (s *Service) ClearCache(ctx context.Context) error {
	if err := s.cache.Purge(ctx); err != nil {
		return fmt.Errorf("clear ai cache: %w", err)
	}
	s.logger.Info().Msg("AI cache cleared")
	return nil
}
