package testing

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/mocklane/pkg/engine"
)

func send(t *testing.T, m *MockServer, method, path, body string, headers ...string) (*http.Response, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, m.URL()+path, r)
	require.NoError(t, err)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := m.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func TestMockServer_ServesBuiltRules(t *testing.T) {
	m := New(t)
	m.Mock("GET", "/users/:id").
		WithID("user").
		WithName("Get user").
		WithStatus(http.StatusOK).
		WithBody(`{"path":"{{path}}"}`).
		Reply()
	m.Mock("post", "/items").
		RespondWith(http.StatusCreated, map[string]any{"created": true}).
		WithHeader("Location", "/items/{{bodyJson.id}}").
		Reply()

	url := m.Start()
	assert.Equal(t, url, m.URL())
	assert.Equal(t, url, m.Start(), "Start is idempotent")

	resp, body := send(t, m, http.MethodGet, "/users/42", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"path":"/users/42"}`, body)
	assert.Equal(t, "Get user", resp.Header.Get(engine.HeaderRuleName))

	resp, body = send(t, m, http.MethodPost, "/items", `{"id":"7"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "/items/7", resp.Header.Get("Location"))
	assert.JSONEq(t, `{"created":true}`, body)

	m.AssertCalled(t, "GET", "/users/:id")
	m.AssertCalledTimes(t, "POST", "/items", 1)
	m.AssertNotCalled(t, "DELETE", "/items")
}

func TestMockServer_AddAfterStartAndReset(t *testing.T) {
	m := New(t)
	m.Start()

	resp, _ := send(t, m, http.MethodGet, "/late", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	m.Mock("GET", "/late").WithBody("here").Reply()
	resp, body := send(t, m, http.MethodGet, "/late", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "here", body)
	assert.Len(t, m.Requests(), 2)

	m.Reset()
	assert.Empty(t, m.Requests())
	resp, _ = send(t, m, http.MethodGet, "/late", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMockServer_Times(t *testing.T) {
	m := New(t)
	m.Mock("GET", "/token").WithID("first").WithBody("one").Once().Reply()
	m.Mock("GET", "/token").WithID("fallback").WithBody("many").Reply()
	m.Start()

	_, body := send(t, m, http.MethodGet, "/token", "")
	assert.Equal(t, "one", body)
	_, body = send(t, m, http.MethodGet, "/token", "")
	assert.Equal(t, "many", body)
	_, body = send(t, m, http.MethodGet, "/token", "")
	assert.Equal(t, "many", body)

	reqs := m.Requests()
	require.Len(t, reqs, 3)
	reqs[2].AssertMatched(t, "first")
	reqs[0].AssertMatched(t, "fallback")
}

func TestMockServer_RequestMatchers(t *testing.T) {
	m := New(t)
	m.Mock("GET", "/search").WithQueryParam("q", "^go").WithBody("go results").Reply()
	m.Mock("GET", "/secure").WithRequestHeader("Authorization", "^Bearer ").RespondNoContent().Reply()
	m.Mock("POST", "/orders").WithBodyPattern(`"qty":\s*[1-9]`).WithDelay(5 * time.Millisecond).Reply()
	m.Start()

	resp, body := send(t, m, http.MethodGet, "/search?q=golang", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "go results", body)
	resp, _ = send(t, m, http.MethodGet, "/search?q=rust", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = send(t, m, http.MethodGet, "/secure", "", "Authorization", "Bearer abc")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = send(t, m, http.MethodGet, "/secure", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = send(t, m, http.MethodPost, "/orders", `{"qty": 3}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequestLog_Assertions(t *testing.T) {
	m := New(t)
	m.Mock("POST", "/users").WithID("create").RespondJSON(map[string]string{"ok": "yes"}).Reply()
	m.Start()

	send(t, m, http.MethodPost, "/users?source=test&x=1", `{"user":{"name":"ada","age":36}}`,
		"Authorization", "Bearer token", "Content-Type", "application/json")

	req := m.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/users", req.Path)
	req.AssertMatched(t, "create")
	req.AssertHeader(t, "authorization", "Bearer token")
	req.AssertHeaderExists(t, "Content-Type")
	req.AssertQueryParam(t, "source", "test")
	req.AssertBodyContains(t, `"ada"`)
	req.AssertJSONBody(t, map[string]any{"user": map[string]any{"name": "ada", "age": 36}})
	req.AssertJSONPath(t, "$.user.name", "ada")
	req.AssertJSONPath(t, "$.user.age", float64(36))
	assert.Nil(t, req.JSONPath("$.user.email"))
	assert.Nil(t, req.JSONPath("$[bad"))
}

func TestMatchesPath(t *testing.T) {
	tests := []struct {
		actual, expected string
		want             bool
	}{
		{"/users/1", "/users/1", true},
		{"/users/1", "/users/:id", true},
		{"/users/1", "/users/{id}", true},
		{"/users/1/posts", "/users/:id", false},
		{"/users", "/orders", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchesPath(tt.actual, tt.expected), "%s vs %s", tt.actual, tt.expected)
	}
}

func TestMockBuilder_Errors(t *testing.T) {
	m := New(t)
	b := m.Mock("GET", "/x").WithJSON(make(chan int))
	assert.Error(t, b.Err())

	b = m.Mock("GET", "/x").WithDelay(-time.Second)
	assert.ErrorContains(t, b.Err(), "negative delay")
}

func TestMockServer_StopIsIdempotent(t *testing.T) {
	m := New(t)
	m.Start()
	m.Stop()
	m.Stop()
	assert.Empty(t, m.URL())
	assert.Same(t, http.DefaultClient, m.Client())
}
