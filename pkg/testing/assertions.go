package testing

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/ohler55/ojg/jp"
	"github.com/stretchr/testify/assert"
)

// RequestLog is one request received by a MockServer.
type RequestLog struct {
	// Method is the HTTP method (GET, POST, etc.)
	Method string
	// Path is the request URL path
	Path string
	// Headers are the request headers, repeats joined with ", "
	Headers map[string]string
	// Body is the request body content
	Body string
	// QueryString is the raw query string
	QueryString string
	// MatchedID is the ID of the rule that answered, "" when unmatched
	MatchedID string
}

// Header returns the value of the header key, matched case-insensitively.
func (r *RequestLog) Header(key string) (string, bool) {
	if v, ok := r.Headers[http.CanonicalHeaderKey(key)]; ok {
		return v, true
	}
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// AssertJSONBody asserts that the request body is JSON equal to expected,
// which may be a string, []byte, or any value that encodes to JSON.
func (r *RequestLog) AssertJSONBody(t testing.TB, expected any) bool {
	t.Helper()
	var want string
	switch v := expected.(type) {
	case string:
		want = v
	case []byte:
		want = string(v)
	default:
		data, err := json.Marshal(v)
		if !assert.NoError(t, err, "failed to marshal expected value") {
			return false
		}
		want = string(data)
	}
	return assert.JSONEq(t, want, r.Body, "request body")
}

// AssertBody asserts that the request body exactly matches expected.
func (r *RequestLog) AssertBody(t testing.TB, expected string) bool {
	t.Helper()
	return assert.Equal(t, expected, r.Body, "request body")
}

// AssertBodyContains asserts that the request body contains substr.
func (r *RequestLog) AssertBodyContains(t testing.TB, substr string) bool {
	t.Helper()
	return assert.Contains(t, r.Body, substr, "request body")
}

// AssertHeader asserts that the request carried header key with value expected.
func (r *RequestLog) AssertHeader(t testing.TB, key, expected string) bool {
	t.Helper()
	actual, ok := r.Header(key)
	if !assert.True(t, ok, "request does not have header %q", key) {
		return false
	}
	return assert.Equal(t, expected, actual, "header %q", key)
}

// AssertHeaderExists asserts that the request carried header key.
func (r *RequestLog) AssertHeaderExists(t testing.TB, key string) bool {
	t.Helper()
	_, ok := r.Header(key)
	return assert.True(t, ok, "request does not have header %q", key)
}

// AssertQueryParam asserts that the first value of query parameter key is expected.
func (r *RequestLog) AssertQueryParam(t testing.TB, key, expected string) bool {
	t.Helper()
	values, err := url.ParseQuery(r.QueryString)
	if !assert.NoError(t, err, "invalid query string %q", r.QueryString) {
		return false
	}
	if !assert.Contains(t, values, key, "request does not have query parameter %q", key) {
		return false
	}
	return assert.Equal(t, expected, values.Get(key), "query parameter %q", key)
}

// AssertMatched asserts that rule ruleID answered the request.
func (r *RequestLog) AssertMatched(t testing.TB, ruleID string) bool {
	t.Helper()
	return assert.Equal(t, ruleID, r.MatchedID, "matched rule")
}

// JSONPath evaluates a JSONPath expression such as "$.user.name" against the
// request body and returns the first result, or nil.
func (r *RequestLog) JSONPath(path string) any {
	expr, err := jp.ParseString(path)
	if err != nil {
		return nil
	}
	var data any
	if err := json.Unmarshal([]byte(r.Body), &data); err != nil {
		return nil
	}
	if results := expr.Get(data); len(results) > 0 {
		return results[0]
	}
	return nil
}

// AssertJSONPath asserts that the JSONPath expression selects expected. JSON
// numbers decode as float64.
func (r *RequestLog) AssertJSONPath(t testing.TB, path string, expected any) bool {
	t.Helper()
	actual := r.JSONPath(path)
	if !assert.NotNil(t, actual, "JSONPath %q not found in request body: %s", path, r.Body) {
		return false
	}
	return assert.Equal(t, expected, actual, "JSONPath %q", path)
}
