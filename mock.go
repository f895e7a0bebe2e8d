package xgate

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
)

// MockHandler is a function that handles mock requests.
type MockHandler func(req *http.Request) (*http.Response, error)

// MockTransport implements http.RoundTripper for testing code built on the
// client, including its retry behavior.
type MockTransport struct {
	mu           sync.Mutex
	handlers     map[string]MockHandler
	methodRoutes map[string]map[string]MockHandler
	sequences    map[string]*mockSequence
	requests     []*http.Request
}

// MockStep is one scripted outcome of a sequence: a response or a transport
// error.
type MockStep struct {
	Response *http.Response
	Err      error
}

type mockSequence struct {
	steps []MockStep
	index int
}

// NewMockTransport creates a new mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		handlers:     make(map[string]MockHandler),
		methodRoutes: make(map[string]map[string]MockHandler),
		sequences:    make(map[string]*mockSequence),
	}
}

// RoundTrip implements http.RoundTripper. Sequences take precedence over
// method handlers, which take precedence over path handlers. An exhausted
// sequence keeps returning its last step.
func (m *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	path := req.URL.Path

	if seq, ok := m.sequences[path]; ok && len(seq.steps) > 0 {
		idx := min(seq.index, len(seq.steps)-1)
		seq.index++
		step := seq.steps[idx]
		m.mu.Unlock()
		if step.Err != nil {
			return nil, step.Err
		}
		return cloneResponse(step.Response, req), nil
	}

	var handler MockHandler
	if methodHandlers, ok := m.methodRoutes[req.Method]; ok {
		handler = methodHandlers[path]
	}
	if handler == nil {
		handler = m.handlers[path]
	}
	m.mu.Unlock()

	if handler != nil {
		return handler(req)
	}

	return nil, errors.New("mock: no handler registered for " + req.Method + " " + path)
}

// cloneResponse lets a scripted step be replayed: the body is buffered and
// a fresh reader is returned each time.
func cloneResponse(resp *http.Response, req *http.Request) *http.Response {
	var data []byte
	if resp.Body != nil {
		data, _ = io.ReadAll(resp.Body)
		resp.Body = io.NopCloser(bytes.NewReader(data))
	}
	clone := *resp
	clone.Header = resp.Header.Clone()
	clone.Body = io.NopCloser(bytes.NewReader(data))
	clone.Request = req
	return &clone
}

// AddResponse adds a simple JSON response for a path.
func (m *MockTransport) AddResponse(path string, statusCode int, body any) {
	m.AddHandler(path, func(req *http.Request) (*http.Response, error) {
		return MockJSONResponse(statusCode, body), nil
	})
}

// AddResponseForMethod adds a response for a specific method and path.
func (m *MockTransport) AddResponseForMethod(method, path string, statusCode int, body any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.methodRoutes[method] == nil {
		m.methodRoutes[method] = make(map[string]MockHandler)
	}

	m.methodRoutes[method][path] = func(req *http.Request) (*http.Response, error) {
		return MockJSONResponse(statusCode, body), nil
	}
}

// AddHandler adds a custom handler for a path.
func (m *MockTransport) AddHandler(path string, handler MockHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers[path] = handler
}

// AddResponseSequence scripts successive responses for a path.
func (m *MockTransport) AddResponseSequence(path string, responses ...*http.Response) {
	steps := make([]MockStep, len(responses))
	for i, resp := range responses {
		steps[i] = MockStep{Response: resp}
	}
	m.AddSequence(path, steps...)
}

// AddSequence scripts successive responses and transport errors for a path.
func (m *MockTransport) AddSequence(path string, steps ...MockStep) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sequences[path] = &mockSequence{steps: steps}
}

// Requests returns all recorded requests.
func (m *MockTransport) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*http.Request, len(m.requests))
	copy(result, m.requests)
	return result
}

// WasCalled returns true if the path was called at least once.
func (m *MockTransport) WasCalled(path string) bool {
	return m.CallCount(path) > 0
}

// CallCount returns the number of times a path was called.
func (m *MockTransport) CallCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, req := range m.requests {
		if req.URL.Path == path {
			count++
		}
	}
	return count
}

// Reset clears all recorded requests and rewinds sequences.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = nil
	for _, seq := range m.sequences {
		seq.index = 0
	}
}

// MockJSONResponse creates a mock HTTP response with JSON body.
func MockJSONResponse(statusCode int, body any) *http.Response {
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			data = []byte(`{"message":"marshal failed"}`)
		}
	}

	return &http.Response{
		StatusCode: statusCode,
		Status:     strconv.Itoa(statusCode) + " " + http.StatusText(statusCode),
		Header: http.Header{
			"Content-Type": []string{"application/json"},
		},
		Body: io.NopCloser(bytes.NewReader(data)),
	}
}

// MockErrorResponse creates an API error response carrying message.
func MockErrorResponse(statusCode int, message string) *http.Response {
	return MockJSONResponse(statusCode, map[string]string{"message": message})
}

// MockRateLimitResponse creates a 429 response with the given Retry-After
// seconds and any extra rate limit headers.
func MockRateLimitResponse(retryAfter int, headers map[string]string) *http.Response {
	resp := MockJSONResponse(http.StatusTooManyRequests, nil)
	if retryAfter >= 0 {
		resp.Header.Set("Retry-After", strconv.Itoa(retryAfter))
	}
	for k, v := range headers {
		resp.Header.Set(k, v)
	}
	return resp
}

// mockNetworkError represents a network error for testing.
type mockNetworkError struct {
	message string
}

func (e *mockNetworkError) Error() string {
	return e.message
}

// MockNetworkError creates a transport error with message, which the client
// classifies like a real failure with the same text.
func MockNetworkError(message string) error {
	return &mockNetworkError{message: message}
}
