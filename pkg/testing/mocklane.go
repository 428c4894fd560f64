package testing

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/getmockd/mocklane/pkg/config"
	"github.com/getmockd/mocklane/pkg/engine"
	"github.com/getmockd/mocklane/pkg/mock"
)

// MockServer is a test helper for running mocklane in tests.
// It provides a fluent API for configuring mock endpoints and assertions.
type MockServer struct {
	t       testing.TB
	server  *engine.Server
	httpSrv *httptest.Server

	mu         sync.Mutex
	rules      []*mock.Rule
	timesLimit map[string]int // rule ID -> remaining matches
	requests   []RequestLog
}

// New creates a new mock server for testing. It is stopped automatically
// when the test completes.
func New(t testing.TB) *MockServer {
	t.Helper()
	m := &MockServer{
		t:          t,
		timesLimit: make(map[string]int),
	}
	t.Cleanup(m.Stop)
	return m
}

// Start starts the mock server and returns the base URL. Mocks may be added
// before or after Start.
func (m *MockServer) Start() string {
	m.t.Helper()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.httpSrv != nil {
		return m.httpSrv.URL
	}

	cfg := config.DefaultServerConfiguration()
	cfg.Port = 0
	cfg.Log.Level = "debug"
	srv, err := engine.NewServer(cfg)
	if err != nil {
		m.t.Fatalf("failed to create server: %v", err)
	}
	if err := srv.ReplaceRules(m.rules, false); err != nil {
		m.t.Fatalf("invalid mocks: %v", err)
	}
	m.server = srv
	m.httpSrv = httptest.NewServer(m.wrapHandler(srv.Handler()))
	return m.httpSrv.URL
}

// wrapHandler records every request and enforces Times limits. Both happen
// before the status line is written, so a client never observes a response
// ahead of its bookkeeping.
func (m *MockServer) wrapHandler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))

		entry := RequestLog{
			Method:      r.Method,
			Path:        r.URL.Path,
			Headers:     make(map[string]string, len(r.Header)),
			Body:        string(body),
			QueryString: r.URL.RawQuery,
		}
		for k, v := range r.Header {
			entry.Headers[k] = strings.Join(v, ", ")
		}

		rw := &recordingWriter{ResponseWriter: w}
		rw.onHeader = func() {
			entry.MatchedID = w.Header().Get(engine.HeaderRuleID)
			m.record(entry)
		}
		h.ServeHTTP(rw, r)
		rw.headerWritten()
	})
}

func (m *MockServer) record(entry RequestLog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, entry)
	remaining, ok := m.timesLimit[entry.MatchedID]
	if !ok {
		return
	}
	remaining--
	m.timesLimit[entry.MatchedID] = remaining
	if remaining <= 0 {
		m.rules = slices.DeleteFunc(m.rules, func(r *mock.Rule) bool { return r.ID == entry.MatchedID })
		delete(m.timesLimit, entry.MatchedID)
		m.publishLocked()
	}
}

// recordingWriter runs onHeader once, just before the status line is sent.
type recordingWriter struct {
	http.ResponseWriter
	onHeader func()
	done     bool
}

func (w *recordingWriter) headerWritten() {
	if !w.done {
		w.done = true
		w.onHeader()
	}
}

func (w *recordingWriter) WriteHeader(status int) {
	w.headerWritten()
	w.ResponseWriter.WriteHeader(status)
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.headerWritten()
	return w.ResponseWriter.Write(p)
}

func (w *recordingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Stop stops the mock server. Safe to call more than once.
func (m *MockServer) Stop() {
	m.mu.Lock()
	httpSrv, server := m.httpSrv, m.server
	m.httpSrv, m.server = nil, nil
	m.mu.Unlock()

	if httpSrv != nil {
		httpSrv.Close()
	}
	if server != nil {
		_ = server.Stop()
	}
}

// URL returns the base URL of the mock server, or "" before Start.
func (m *MockServer) URL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.httpSrv == nil {
		return ""
	}
	return m.httpSrv.URL
}

// Mock starts a mock for method and path and returns a builder for it. Path
// accepts the same templates as rule files, such as /users/:id or /files/**.
//
//	mock.Mock("GET", "/users/:id").
//	    WithStatus(200).
//	    WithBody(`{"id": "{{path}}"}`).
//	    Reply()
func (m *MockServer) Mock(method, path string) *MockBuilder {
	return &MockBuilder{
		server: m,
		rule: &mock.Rule{
			Matcher:  mock.Matcher{Method: strings.ToUpper(method), Path: path},
			Response: mock.Response{Status: http.StatusOK},
		},
	}
}

// Reset clears all mocks and recorded requests.
func (m *MockServer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = nil
	m.requests = nil
	clear(m.timesLimit)
	m.publishLocked()
}

// Requests returns the recorded requests, newest first.
func (m *MockServer) Requests() []RequestLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(m.requests)
	slices.Reverse(out)
	return out
}

// LastRequest returns the newest recorded request, or nil if none.
func (m *MockServer) LastRequest() *RequestLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	r := m.requests[len(m.requests)-1]
	return &r
}

// AssertCalled asserts that an endpoint was called at least once.
func (m *MockServer) AssertCalled(t testing.TB, method, path string) {
	t.Helper()
	if m.countCalls(method, path) == 0 {
		t.Errorf("expected %s %s to be called, but it was not called", method, path)
	}
}

// AssertCalledTimes asserts that an endpoint was called exactly n times.
func (m *MockServer) AssertCalledTimes(t testing.TB, method, path string, times int) {
	t.Helper()
	if count := m.countCalls(method, path); count != times {
		t.Errorf("expected %s %s to be called %d times, but was called %d times",
			method, path, times, count)
	}
}

// AssertNotCalled asserts that an endpoint was not called.
func (m *MockServer) AssertNotCalled(t testing.TB, method, path string) {
	t.Helper()
	if count := m.countCalls(method, path); count > 0 {
		t.Errorf("expected %s %s to not be called, but it was called %d times",
			method, path, count)
	}
}

func (m *MockServer) countCalls(method, path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, r := range m.requests {
		if strings.EqualFold(r.Method, method) && matchesPath(r.Path, path) {
			count++
		}
	}
	return count
}

// matchesPath compares a request path with an expected path in which
// ":name" and "{name}" segments match any single segment.
func matchesPath(actual, expected string) bool {
	if actual == expected {
		return true
	}
	actualParts := strings.Split(actual, "/")
	expectedParts := strings.Split(expected, "/")
	if len(actualParts) != len(expectedParts) {
		return false
	}
	for i, exp := range expectedParts {
		if strings.HasPrefix(exp, ":") || (strings.HasPrefix(exp, "{") && strings.HasSuffix(exp, "}")) {
			continue
		}
		if exp != actualParts[i] {
			return false
		}
	}
	return true
}

// addRule registers a built rule, publishing it at once if started.
func (m *MockServer) addRule(rule *mock.Rule, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, rule)
	if times > 0 {
		m.timesLimit[rule.ID] = times
	}
	m.publishLocked()
}

func (m *MockServer) publishLocked() {
	if m.server == nil {
		return
	}
	if err := m.server.ReplaceRules(m.rules, false); err != nil {
		m.t.Errorf("invalid mocks: %v", err)
	}
}

// Client returns an http.Client configured to work with the mock server.
func (m *MockServer) Client() *http.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.httpSrv != nil {
		return m.httpSrv.Client()
	}
	return http.DefaultClient
}

// Server returns the underlying engine.Server for advanced use cases such as
// reading its event log.
func (m *MockServer) Server() *engine.Server {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.server
}
