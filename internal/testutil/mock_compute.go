// Package testutil provides fake upstream servers for tests.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockCompute is a configurable fake Rhino.Compute server.
type MockCompute struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	queued   map[string][]MockResponse

	// Tracking
	RequestCount  int
	LastRequest   *http.Request
	LastBody      []byte
	RequestsByURL map[string]int
}

// NewMockCompute starts a fake compute server. By default /version answers
// "8.0.0" and every /compute/ path echoes the posted operation.
func NewMockCompute() *MockCompute {
	mock := &MockCompute{
		handlers:      make(map[string]http.HandlerFunc),
		queued:        make(map[string][]MockResponse),
		RequestsByURL: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		mock.mu.Lock()
		mock.RequestCount++
		mock.RequestsByURL[r.URL.Path]++
		mock.LastRequest = r.Clone(r.Context())
		mock.LastBody = body
		var next *MockResponse
		if q := mock.queued[r.URL.Path]; len(q) > 0 {
			next = &q[0]
			mock.queued[r.URL.Path] = q[1:]
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		switch {
		case next != nil:
			writeMockResponse(w, *next)
		case exists:
			handler(w, r)
		default:
			mock.defaultHandler(w, r, body)
		}
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockCompute) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCompute) Close() {
	m.server.Close()
}

// Reset clears tracking counters, queued responses and handlers.
func (m *MockCompute) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequest = nil
	m.LastBody = nil
	m.RequestsByURL = make(map[string]int)
	m.queued = make(map[string][]MockResponse)
	m.handlers = make(map[string]http.HandlerFunc)
}

// SetHandler sets a custom handler for a specific path.
func (m *MockCompute) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockCompute) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeMockResponse(w, resp)
	})
}

// QueueResponses makes the next requests to path answer with resps in
// order; afterwards the path falls back to its handler.
func (m *MockCompute) QueueResponses(path string, resps ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued[path] = append(m.queued[path], resps...)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockCompute) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetPathCount returns the number of requests made to path.
func (m *MockCompute) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestsByURL[path]
}

// GetLastBody returns the body of the most recent request.
func (m *MockCompute) GetLastBody() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]byte(nil), m.LastBody...)
}

// GetLastHeader returns a header of the most recent request.
func (m *MockCompute) GetLastHeader(name string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.LastRequest == nil {
		return ""
	}
	return m.LastRequest.Header.Get(name)
}

func (m *MockCompute) defaultHandler(w http.ResponseWriter, r *http.Request, body []byte) {
	if r.URL.Path == "/version" {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("8.0.0"))
		return
	}

	var req struct {
		Operation string `json:"operation"`
	}
	_ = json.Unmarshal(body, &req)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"result":      map[string]any{"operation": req.Operation, "path": r.URL.Path},
		"metadata":    map[string]any{"engine": "mock"},
		"performance": map[string]any{"computeMs": 1},
	})
}

func writeMockResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewJSONResponse creates a 200 OK JSON response.
func NewJSONResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewServerErrorResponse creates a 503 Service Unavailable response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusServiceUnavailable,
		Body:       `{"error": "Compute busy"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewBadRequestResponse creates a 400 Bad Request response.
func NewBadRequestResponse(message string) MockResponse {
	body, _ := json.Marshal(map[string]string{"message": message})
	return MockResponse{
		StatusCode: http.StatusBadRequest,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
			"Retry-After":  retryAfter,
		},
	}
}
