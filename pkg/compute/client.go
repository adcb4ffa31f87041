// Package compute is the Rhino.Compute client: operation dispatch,
// plugin and topology optimization wrappers, Grasshopper (Hops) solves and
// the status probe. Calls go through the shared upstream executor.
package compute

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/softlyplease/soft-compute-gateway/pkg/metrics"
	"github.com/softlyplease/soft-compute-gateway/pkg/params"
	"github.com/softlyplease/soft-compute-gateway/pkg/upstream"
)

// Service names Rhino.Compute in errors and logs.
const Service = "rhino-compute"

// CacheNamespace prefixes compute cache keys.
const CacheNamespace = "compute"

// StatusTimeout bounds the /version probe.
const StatusTimeout = 5 * time.Second

// APIKeyHeader carries the compute API key.
const APIKeyHeader = "RhinoComputeKey"

// Algorithms accepted by TopologyOptimization.
var Algorithms = []string{
	"BESOOptimization", "LevelSetOptimization", "MultiObjectiveOptimization",
	"AdaptiveMeshOptimization", "StressBasedOptimization", "FrequencyBasedOptimization",
}

// Cache is the response cache used by the client.
type Cache interface {
	upstream.ResponseCache
	Purge(ctx context.Context) error
	Len() int
}

// Recorder is the metrics sink used by the client.
type Recorder interface {
	upstream.Recorder
	Stats() metrics.Stats
}

// Config holds the client configuration.
type Config struct {
	// URL of the Rhino.Compute server, without trailing slash
	URL string

	// APIKey is sent as the RhinoComputeKey header when set
	APIKey string

	// CacheTTL for successful operation results
	CacheTTL time.Duration

	// Retry policy; AttemptTimeout bounds each HTTP attempt
	Policy upstream.Policy

	// UserAgent header
	UserAgent string
}

// DefaultConfig returns the configuration for a compute server at url.
func DefaultConfig(url string) Config {
	policy := upstream.DefaultPolicy()
	policy.AttemptTimeout = 30 * time.Second
	return Config{
		URL:       url,
		CacheTTL:  5 * time.Minute,
		Policy:    policy,
		UserAgent: "soft-compute-gateway",
	}
}

// Request is one operation to run.
type Request struct {
	Operation    string          `json:"operation"`
	GeometryData json.RawMessage `json:"geometryData,omitempty"`
	Parameters   map[string]any  `json:"parameters,omitempty"`
}

// OperationResult is the response of an operation.
type OperationResult struct {
	Success       bool            `json:"success"`
	Result        json.RawMessage `json:"result,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	Performance   json.RawMessage `json:"performance,omitempty"`
	Operation     string          `json:"operation"`
	OperationType string          `json:"operationType"`
	ResponseTime  int64           `json:"responseTime"`
	Cached        bool            `json:"cached"`
}

// Status is the result of a compute server probe.
type Status struct {
	OK         bool   `json:"ok"`
	Version    string `json:"version,omitempty"`
	StatusCode int    `json:"status,omitempty"`
	Error      string `json:"error,omitempty"`
	URL        string `json:"url"`
}

// Client calls Rhino.Compute.
type Client struct {
	httpClient *http.Client
	exec       *upstream.Executor
	cache      Cache
	recorder   Recorder
	config     Config
	logger     zerolog.Logger
	now        func() time.Time
}

// New creates a compute client. gate is optional.
func New(cfg Config, c Cache, recorder Recorder, gate upstream.Gate) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("compute url is required")
	}
	if c == nil || recorder == nil {
		return nil, fmt.Errorf("compute cache and recorder are required")
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")

	return &Client{
		httpClient: &http.Client{},
		exec: upstream.NewExecutor(upstream.ExecutorConfig{
			Service:  Service,
			Cache:    c,
			Recorder: recorder,
			Policy:   cfg.Policy,
			Gate:     gate,
		}),
		cache:    c,
		recorder: recorder,
		config:   cfg,
		logger:   log.With().Str("component", "compute-client").Logger(),
		now:      time.Now,
	}, nil
}

// URL returns the configured compute server URL.
func (c *Client) URL() string {
	return c.config.URL
}

// Execute runs an operation, serving repeated identical requests from cache.
func (c *Client) Execute(ctx context.Context, operation string, geometry json.RawMessage, parameters map[string]any) (*OperationResult, error) {
	if operation == "" {
		return nil, params.Invalid("operation", "Missing required parameter: operation")
	}
	if parameters == nil {
		parameters = map[string]any{}
	}

	opType := TypeOf(operation)
	endpoint := EndpointFor(operation)
	key := cacheKey(map[string]any{
		"operation":  operation,
		"geometry":   geometry,
		"parameters": parameters,
	})

	start := c.now()
	value, cached, err := c.exec.Fetch(ctx, "compute."+opType, key, c.config.CacheTTL, func(ctx context.Context) (json.RawMessage, error) {
		payload := map[string]any{
			"operation":     operation,
			"geometryData":  geometry,
			"parameters":    parameters,
			"operationType": opType,
			"precision":     stringOr(parameters["precision"], "high"),
			"performance":   stringOr(parameters["performance"], "optimized"),
			"timestamp":     c.now().UTC().Format(time.RFC3339Nano),
		}
		body, err := c.do(ctx, http.MethodPost, "/compute/"+endpoint, payload)
		if err != nil {
			return nil, err
		}

		var upstreamBody struct {
			Result      json.RawMessage `json:"result"`
			Metadata    json.RawMessage `json:"metadata"`
			Performance json.RawMessage `json:"performance"`
		}
		if err := json.Unmarshal(body, &upstreamBody); err != nil {
			return nil, fmt.Errorf("decode %s response: %w", operation, err)
		}
		return json.Marshal(OperationResult{
			Success:       true,
			Result:        upstreamBody.Result,
			Metadata:      upstreamBody.Metadata,
			Performance:   upstreamBody.Performance,
			Operation:     operation,
			OperationType: opType,
			ResponseTime:  c.now().Sub(start).Milliseconds(),
		})
	})
	if err != nil {
		c.logger.Error().Err(err).Str("operation", operation).Msg("Compute operation failed")
		return nil, err
	}

	var result OperationResult
	if err := json.Unmarshal(value, &result); err != nil {
		return nil, fmt.Errorf("decode cached %s result: %w", operation, err)
	}
	result.Cached = cached
	return &result, nil
}

// ExecutePlugin runs operation of a compute plugin.
func (c *Client) ExecutePlugin(ctx context.Context, plugin, operation string, geometry json.RawMessage, parameters map[string]any) (*OperationResult, error) {
	if plugin == "" {
		return nil, params.Invalid("plugin", "Missing required parameter: plugin")
	}
	return c.Execute(ctx, plugin+"."+operation, geometry, parameters)
}

// TopologyOptimization runs one of the advanced topology optimization
// algorithms on mesh.
func (c *Client) TopologyOptimization(ctx context.Context, algorithm string, mesh json.RawMessage, parameters map[string]any) (*OperationResult, error) {
	if !contains(Algorithms, algorithm) {
		return nil, params.Invalid("algorithm", "Invalid algorithm. Valid options: %s", strings.Join(Algorithms, ", "))
	}
	return c.ExecutePlugin(ctx, "AdvancedTopologyOptimization", algorithm, mesh, parameters)
}

// Status probes GET /version. It never returns an error; failures are
// reported in the Status.
func (c *Client) Status(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, StatusTimeout)
	defer cancel()

	status := Status{URL: c.config.URL}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.URL+"/version", nil)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		status.Error = err.Error()
		c.logger.Warn().Err(err).Msg("Compute status probe failed")
		return status
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		status.StatusCode = resp.StatusCode
		c.logger.Warn().Int("status", resp.StatusCode).Msg("Compute status probe returned non-200")
		return status
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	status.OK = true
	status.Version = strings.TrimSpace(string(body))
	return status
}

// Capabilities describes what the gateway can forward to compute.
type Capabilities struct {
	Algorithms      []string                  `json:"algorithms"`
	MaxFileSizeMB   int                       `json:"maxFileSizeMB"`
	Formats         []string                  `json:"formats"`
	Categories      map[string]map[string]int `json:"categories"`
	TotalOperations int                       `json:"totalOperations"`
}

// Capabilities returns the supported algorithms, formats and catalog summary.
func (c *Client) Capabilities() Capabilities {
	formats := make([]string, len(params.AllowedExtensions))
	for i, ext := range params.AllowedExtensions {
		formats[i] = strings.TrimPrefix(ext, ".")
	}
	return Capabilities{
		Algorithms:      append([]string(nil), params.Algorithms...),
		MaxFileSizeMB:   params.MaxUploadBytes >> 20,
		Formats:         formats,
		Categories:      Summary(),
		TotalOperations: TotalOperations(),
	}
}

// PerformanceMetrics is the client's metrics snapshot.
type PerformanceMetrics struct {
	metrics.Stats
	CacheSize           int    `json:"cacheSize"`
	SupportedOperations int    `json:"supportedOperations"`
	URL                 string `json:"url"`
}

// PerformanceMetrics returns counters, averages and the cache size.
func (c *Client) PerformanceMetrics() PerformanceMetrics {
	return PerformanceMetrics{
		Stats:               c.recorder.Stats(),
		CacheSize:           c.cache.Len(),
		SupportedOperations: TotalOperations(),
		URL:                 c.config.URL,
	}
}

// ClearCache drops every cached response.
func (c *Client) ClearCache(ctx context.Context) error {
	if err := c.cache.Purge(ctx); err != nil {
		return fmt.Errorf("clear compute cache: %w", err)
	}
	c.logger.Info().Msg("Compute cache cleared")
	return nil
}

// do sends one request and returns the response body. Non-2xx responses
// and transport failures come back as *upstream.UpstreamError.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.URL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, upstream.NewTransportError(Service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, upstream.NewStatusError(Service, resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, upstream.NewTransportError(Service, err)
	}
	return data, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.APIKey != "" {
		req.Header.Set(APIKeyHeader, c.config.APIKey)
	}
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
