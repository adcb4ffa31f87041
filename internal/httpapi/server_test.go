package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/softlyplease/soft-compute-gateway/internal/testutil"
	"github.com/softlyplease/soft-compute-gateway/pkg/ai"
	"github.com/softlyplease/soft-compute-gateway/pkg/artifact"
	"github.com/softlyplease/soft-compute-gateway/pkg/breaker"
	"github.com/softlyplease/soft-compute-gateway/pkg/cache"
	"github.com/softlyplease/soft-compute-gateway/pkg/compute"
	"github.com/softlyplease/soft-compute-gateway/pkg/metrics"
	"github.com/softlyplease/soft-compute-gateway/pkg/params"
	"github.com/softlyplease/soft-compute-gateway/pkg/ratelimit"
	"github.com/softlyplease/soft-compute-gateway/pkg/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	mock    *testutil.MockCompute
	openai  *testutil.MockOpenAI
	server  *Server
	handler http.Handler
	index   *artifact.Logger
}

type envOption func(*Deps, *Config)

func withLimiter(l ratelimit.Limiter) envOption {
	return func(d *Deps, _ *Config) { d.Limiter = l }
}

func withTrustedProxies(n int) envOption {
	return func(_ *Deps, c *Config) { c.TrustedProxies = n }
}

func withoutAI() envOption {
	return func(d *Deps, _ *Config) { d.AI = nil }
}

func fastPolicy() upstream.Policy {
	p := upstream.DefaultPolicy()
	p.BaseDelay = time.Millisecond
	p.MaxDelay = 5 * time.Millisecond
	p.AttemptTimeout = 2 * time.Second
	return p
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	mock := testutil.NewMockCompute()
	t.Cleanup(mock.Close)
	openaiMock := testutil.NewMockOpenAI(`{"summary":"ok","confidence":0.9}`)
	t.Cleanup(openaiMock.Close)

	computeCfg := compute.DefaultConfig(mock.URL())
	computeCfg.Policy = fastPolicy()
	computeClient, err := compute.New(computeCfg,
		cache.NewManager(cache.NewMemory(cache.Options{Name: "http-compute"}), nil),
		metrics.NewCounter(), nil)
	require.NoError(t, err)

	aiService, err := ai.New(ai.Config{APIKey: "sk-test", BaseURL: openaiMock.BaseURL(), Policy: fastPolicy()},
		cache.NewManager(cache.NewMemory(cache.Options{Name: "http-ai"}), nil),
		metrics.NewCounter(), nil)
	require.NoError(t, err)

	index := artifact.NewLogger(filepath.Join(t.TempDir(), "artifact_index.json"), "test")

	deps := Deps{Compute: computeClient, AI: aiService, Artifacts: index}
	cfg := Config{Environment: "test", MaxConcurrent: 4}
	for _, opt := range opts {
		opt(&deps, &cfg)
	}

	server := NewServer(cfg, deps)
	return &testEnv{
		mock:    mock,
		openai:  openaiMock,
		server:  server,
		handler: server.Router(),
		index:   index,
	}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) postJSON(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return e.do(t, req)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), "body: %s", rec.Body.String())
	return body
}

func multipartRequest(t *testing.T, path, fileName string, content []byte, paramsJSON string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	if paramsJSON != "" {
		require.NoError(t, mw.WriteField("params", paramsJSON))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, "test", body["environment"])
	assert.Equal(t, Version, body["version"])
	features := body["features"].(map[string]any)
	assert.Equal(t, true, features["ai"])
}

func TestRequestMetaHeaders(t *testing.T) {
	env := newTestEnv(t)

	t.Run("generated", func(t *testing.T) {
		rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
		assert.True(t, strings.HasSuffix(rec.Header().Get("X-Processing-Time"), "ms"))
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/rhino/operations/Area", strings.NewReader(`{}`))
		req.Header.Set(RequestIDHeader, "req-123")
		rec := env.do(t, req)

		assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
		assert.Equal(t, "req-123", decodeBody(t, rec)["requestId"])
	})
}

func TestReadyAndVMHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/rhino/vm-health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Rhino.Compute OK", rec.Body.String())

	env.mock.SetResponse("/version", testutil.MockResponse{StatusCode: http.StatusBadGateway})

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/rhino/vm-health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Rhino.Compute unavailable", rec.Body.String())

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/rhino/test-connection", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["success"])
}

func TestOperation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postJSON(t, "/api/rhino/operations/MeshSmooth", `{"geometryData":{"v":[1]},"parameters":{"iterations":2}}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "MeshSmooth", data["operation"])
	assert.Equal(t, compute.TypeMesh, data["operationType"])
	assert.Equal(t, false, data["cached"])
	assert.Equal(t, 1, env.mock.GetPathCount("/compute/mesh/smooth"))

	rec = env.postJSON(t, "/api/rhino/operations/MeshSmooth", `{"geometryData":{"v":[1]},"parameters":{"iterations":2}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["data"].(map[string]any)["cached"])
	assert.Equal(t, 1, env.mock.GetPathCount("/compute/mesh/smooth"), "second call should be served from cache")
}

func TestOperation_Errors(t *testing.T) {
	tests := []struct {
		name       string
		response   testutil.MockResponse
		body       string
		wantStatus int
		wantError  string
	}{
		{
			name:       "upstream bad request passes through",
			response:   testutil.NewBadRequestResponse("bad geometry"),
			body:       `{"geometryData":{}}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "bad geometry",
		},
		{
			name:       "retries exhausted",
			response:   testutil.NewServerErrorResponse(),
			body:       `{"geometryData":{}}`,
			wantStatus: http.StatusServiceUnavailable,
			wantError:  "Upstream service unavailable after retries",
		},
		{
			name:       "invalid json body",
			body:       `{not json`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid JSON body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.response.StatusCode != 0 {
				env.mock.SetResponse("/compute/analysis/area", tt.response)
			}

			rec := env.postJSON(t, "/api/rhino/operations/Area", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Contains(t, body["error"], tt.wantError)
		})
	}
}

func TestTopOpt(t *testing.T) {
	env := newTestEnv(t)

	req := multipartRequest(t, "/api/rhino/topopt", "bracket.stl", []byte("solid bracket"), `{"volumeFraction":0.4,"algorithm":"BESO"}`)
	rec := env.do(t, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["requestId"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "AdvancedTopologyOptimization.BESOOptimization", data["operation"])

	var sent map[string]any
	require.NoError(t, json.Unmarshal(env.mock.GetLastBody(), &sent))
	geometry := sent["geometryData"].(map[string]any)
	assert.Equal(t, "bracket.stl", geometry["fileName"])
	assert.Equal(t, "stl", geometry["format"])
	assert.Equal(t, 0.4, sent["parameters"].(map[string]any)["volumeFraction"])

	assets, err := env.index.List()
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "bracket.stl", assets[0].Name)
	assert.Equal(t, artifact.Checksum([]byte("solid bracket")), assets[0].Checksum)
	assert.Equal(t, "topopt:beso", assets[0].Notes)
}

func TestTopOpt_Validation(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		fileName  string
		params    string
		wantError string
	}{
		{name: "missing file", path: "/api/rhino/topopt", params: `{}`, wantError: "No file uploaded"},
		{name: "bad extension", path: "/api/rhino/topopt", fileName: "part.step", wantError: "Unsupported file type: .step"},
		{name: "out of range", path: "/api/optimize", fileName: "part.obj", params: `{"volumeFraction":0.95}`, wantError: "Volume fraction must be between 0.1 and 0.9"},
		{name: "bad params json", path: "/api/optimize", fileName: "part.obj", params: `{`, wantError: "Invalid parameters JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			rec := env.do(t, multipartRequest(t, tt.path, tt.fileName, []byte("data"), tt.params))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decodeBody(t, rec)["error"], tt.wantError)
			assert.Equal(t, 0, env.mock.GetRequestCount())
		})
	}
}

func TestHops(t *testing.T) {
	env := newTestEnv(t)
	env.mock.SetResponse("/grasshopper", testutil.NewJSONResponse(`{"values":[{"ParamName":"Out"}]}`))

	t.Run("json", func(t *testing.T) {
		rec := env.postJSON(t, "/api/rhino/hops", `{"definition":"bracket.gh","inputs":{"Width":10}}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "grasshopper", decodeBody(t, rec)["data"].(map[string]any)["operation"])
	})

	t.Run("multipart with file", func(t *testing.T) {
		req := multipartRequest(t, "/api/rhino/hops", "shape.3dm", []byte("3dm"), `{"definition":"shape.gh"}`)
		rec := env.do(t, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Contains(t, string(env.mock.GetLastBody()), `"ParamName":"Geometry"`)
	})

	t.Run("missing definition", func(t *testing.T) {
		rec := env.postJSON(t, "/api/rhino/hops", `{"inputs":{}}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestBatch(t *testing.T) {
	env := newTestEnv(t)
	env.mock.SetResponse("/compute/analysis/area", testutil.NewBadRequestResponse("bad geometry"))

	rec := env.postJSON(t, "/api/rhino/batch", `{"operations":[
		{"operation":"MeshSmooth","geometryData":{}},
		{"operation":"Area","geometryData":{}},
		{"operation":"Volume","geometryData":{}}
	]}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, float64(3), data["total"])
	assert.Equal(t, float64(2), data["succeeded"])
	assert.Equal(t, float64(1), data["failed"])

	results := data["results"].([]any)
	require.Len(t, results, 3)
	failed := results[1].(map[string]any)
	assert.Equal(t, "Area", failed["operation"])
	assert.Equal(t, false, failed["success"])
	assert.Equal(t, "bad geometry", failed["error"])
	assert.Equal(t, float64(http.StatusBadRequest), failed["status"])
}

func TestBatch_ItemsWaitForServerSlots(t *testing.T) {
	env := newTestEnv(t)
	require.True(t, env.server.slots.TryAcquire(int64(env.server.config.MaxConcurrent)))
	defer env.server.slots.Release(int64(env.server.config.MaxConcurrent))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(30*time.Millisecond, cancel)
	req := httptest.NewRequest(http.MethodPost, "/api/rhino/batch",
		strings.NewReader(`{"operations":[{"operation":"Area","geometryData":{}},{"operation":"Volume","geometryData":{}}]}`)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")

	rec := env.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, float64(2), data["failed"])
	for _, r := range data["results"].([]any) {
		item := r.(map[string]any)
		assert.Equal(t, "Request cancelled", item["error"])
		assert.Equal(t, float64(http.StatusServiceUnavailable), item["status"])
	}
	assert.Equal(t, 0, env.mock.GetRequestCount())
}

func TestBatch_Validation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postJSON(t, "/api/rhino/batch", `{"operations":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing required parameter: operations", decodeBody(t, rec)["error"])

	ops := make([]string, 101)
	for i := range ops {
		ops[i] = `{"operation":"Area"}`
	}
	rec = env.postJSON(t, "/api/rhino/batch", `{"operations":[`+strings.Join(ops, ",")+`]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, env.mock.GetRequestCount())
}

func TestCatalogRoutes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/rhino/capabilities", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, float64(50), data["maxFileSizeMB"])
	assert.Equal(t, float64(compute.TotalOperations()), data["totalOperations"])

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/rhino/operations?category=rendering", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	data = decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, "rendering", data["category"])
	assert.Len(t, data["operations"], len(compute.Operations("rendering")))

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/rhino/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["data"], "cacheSize")
}

func TestClearComputeCache(t *testing.T) {
	env := newTestEnv(t)

	env.postJSON(t, "/api/rhino/operations/MeshSmooth", `{"geometryData":{}}`)
	rec := env.do(t, httptest.NewRequest(http.MethodDelete, "/api/rhino/cache", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	env.postJSON(t, "/api/rhino/operations/MeshSmooth", `{"geometryData":{}}`)
	assert.Equal(t, 2, env.mock.GetPathCount("/compute/mesh/smooth"))
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, withLimiter(ratelimit.NewMemoryLimiter(time.Minute, 2)))

	for i := 0; i < 2; i++ {
		rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, fmt.Sprint(1-i), rec.Header().Get("X-RateLimit-Remaining"))
	}

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "Too many requests from this IP, please try again later.", decodeBody(t, rec)["error"])

	// Routes outside /api are not limited.
	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit_SpoofedForwardedFor(t *testing.T) {
	env := newTestEnv(t, withLimiter(ratelimit.NewMemoryLimiter(time.Minute, 2)), withTrustedProxies(1))

	allowed := 0
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.RemoteAddr = "10.0.0.9:4000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d, 203.0.113.7", i))
		if env.do(t, req).Code == http.StatusOK {
			allowed++
		}
	}
	assert.Equal(t, 2, allowed)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{Allowed: true}, errors.New("redis down")
}

func TestRateLimit_BackendErrorAllows(t *testing.T) {
	env := newTestEnv(t, withLimiter(failingLimiter{}))

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAIRoutes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postJSON(t, "/api/ai/geometry/analyze", `{"geometryData":"mesh","analysisType":"topology"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, "ok", data["analysis"].(map[string]any)["summary"])
	assert.Equal(t, "gpt-5", data["metadata"].(map[string]any)["model"])

	rec = env.postJSON(t, "/api/ai/natural-language/convert", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing required parameter: userRequest", decodeBody(t, rec)["error"])

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/ai/validate", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["success"])

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/ai/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	ops := decodeBody(t, rec)["data"].(map[string]any)["aiOperations"].(map[string]any)
	assert.Equal(t, float64(1), ops["geometryAnalysis"])

	rec = env.do(t, httptest.NewRequest(http.MethodDelete, "/api/ai/cache", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAIRoutes_NotConfigured(t *testing.T) {
	env := newTestEnv(t, withoutAI())

	rec := env.postJSON(t, "/api/ai/geometry/analyze", `{"geometryData":"mesh","analysisType":"topology"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "AI service not configured", decodeBody(t, rec)["error"])
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", params.Invalid("x", "bad"), http.StatusBadRequest},
		{"circuit open", fmt.Errorf("call: %w", breaker.ErrCircuitOpen), http.StatusServiceUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"exhausted server", fmt.Errorf("%w: %w", upstream.ErrRetryExhausted, &upstream.UpstreamError{StatusCode: 503, Class: upstream.ErrorClassServer}), http.StatusServiceUnavailable},
		{"exhausted timeout", fmt.Errorf("%w: %w", upstream.ErrRetryExhausted, &upstream.UpstreamError{StatusCode: 408, Class: upstream.ErrorClassTimeout}), http.StatusGatewayTimeout},
		{"client error", &upstream.UpstreamError{StatusCode: 404, Class: upstream.ErrorClassClient}, http.StatusNotFound},
		{"server error", &upstream.UpstreamError{StatusCode: 500, Class: upstream.ErrorClassServer}, http.StatusBadGateway},
		{"cancelled", fmt.Errorf("%w: %w", upstream.ErrContextCancelled, context.Canceled), http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		forward string
		hops    int
		want    string
	}{
		{"no header", "", 1, "10.0.0.1"},
		{"header ignored without trusted proxies", "203.0.113.7", 0, "10.0.0.1"},
		{"single proxy", "203.0.113.7", 1, "203.0.113.7"},
		{"spoofed prefix", "1.2.3.4, 203.0.113.7", 1, "203.0.113.7"},
		{"two proxies", "1.2.3.4, 203.0.113.7, 172.16.0.2", 2, "203.0.113.7"},
		{"fewer entries than hops", "203.0.113.7", 3, "203.0.113.7"},
		{"blank entries", " , 203.0.113.7 ,", 1, "203.0.113.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "10.0.0.1:5555"
			if tt.forward != "" {
				req.Header.Set("X-Forwarded-For", tt.forward)
			}
			assert.Equal(t, tt.want, clientIP(req, tt.hops))
		})
	}
}
