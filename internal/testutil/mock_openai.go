package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockOpenAI is a fake OpenAI API. Point clients at BaseURL().
type MockOpenAI struct {
	server *httptest.Server
	mu     sync.RWMutex

	content  string
	models   []string
	failures []int
	delay    time.Duration

	// Tracking
	CompletionCount int
	LastCompletion  map[string]any
}

// NewMockOpenAI starts a fake OpenAI server that answers every completion
// with content.
func NewMockOpenAI(content string) *MockOpenAI {
	mock := &MockOpenAI{
		content: content,
		models:  []string{"gpt-5", "gpt-4o", "o1-preview", "o1-mini"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", mock.handleCompletion)
	mux.HandleFunc("/v1/models", mock.handleModels)
	mock.server = httptest.NewServer(mux)

	return mock
}

// BaseURL returns the API base URL including the /v1 prefix.
func (m *MockOpenAI) BaseURL() string {
	return m.server.URL + "/v1"
}

// Close shuts down the mock server.
func (m *MockOpenAI) Close() {
	m.server.Close()
}

// SetContent changes the completion content.
func (m *MockOpenAI) SetContent(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.content = content
}

// SetModels changes the model list.
func (m *MockOpenAI) SetModels(models ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.models = models
}

// QueueFailures makes the next completions fail with the given statuses.
func (m *MockOpenAI) QueueFailures(statuses ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, statuses...)
}

// SetDelay holds every completion for d, or until the client gives up.
func (m *MockOpenAI) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// GetCompletionCount returns the number of completion requests.
func (m *MockOpenAI) GetCompletionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.CompletionCount
}

// GetLastCompletion returns the decoded body of the last completion request.
func (m *MockOpenAI) GetLastCompletion() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastCompletion
}

func (m *MockOpenAI) handleCompletion(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req map[string]any
	_ = json.Unmarshal(body, &req)

	m.mu.Lock()
	m.CompletionCount++
	m.LastCompletion = req
	status := 0
	if len(m.failures) > 0 {
		status = m.failures[0]
		m.failures = m.failures[1:]
	}
	content := m.content
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"message": http.StatusText(status),
				"type":    "server_error",
			},
		})
		return
	}

	model, _ := req["model"].(string)
	json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-mock",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   model,
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{
			"prompt_tokens":     12,
			"completion_tokens": 8,
			"total_tokens":      20,
		},
	})
}

func (m *MockOpenAI) handleModels(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	models := append([]string(nil), m.models...)
	m.mu.RUnlock()

	data := make([]map[string]any, len(models))
	for i, id := range models {
		data[i] = map[string]any{"id": id, "object": "model", "owned_by": "openai"}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data})
}
