package testing

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/getmockd/mocklane/internal/id"
	"github.com/getmockd/mocklane/pkg/mock"
)

// MockBuilder builds a rule using a fluent API.
type MockBuilder struct {
	server *MockServer
	rule   *mock.Rule
	times  int   // 0 means unlimited
	err    error // First error encountered during building
}

// setError records the first error encountered during building.
func (b *MockBuilder) setError(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Err returns any error encountered during building.
func (b *MockBuilder) Err() error {
	return b.err
}

// WithID sets the rule ID. By default a ULID is assigned on Reply.
func (b *MockBuilder) WithID(id string) *MockBuilder {
	b.rule.ID = id
	return b
}

// WithName sets a human-readable name, echoed in the X-Mocklane-Rule-Name header.
func (b *MockBuilder) WithName(name string) *MockBuilder {
	b.rule.Name = name
	return b
}

// WithStatus sets the HTTP response status code. Default is 200 (OK).
func (b *MockBuilder) WithStatus(status int) *MockBuilder {
	b.rule.Response.Status = status
	return b
}

// WithBody sets the response body. Strings and byte slices are used as-is
// and may contain template placeholders; anything else is JSON encoded.
func (b *MockBuilder) WithBody(body any) *MockBuilder {
	switch v := body.(type) {
	case string:
		b.rule.Response.Body = v
	case []byte:
		b.rule.Response.Body = string(v)
	default:
		return b.WithJSON(v)
	}
	return b
}

// WithJSON sets the response body as JSON and the Content-Type to
// application/json.
func (b *MockBuilder) WithJSON(body any) *MockBuilder {
	data, err := json.Marshal(body)
	if err != nil {
		b.setError(fmt.Errorf("WithJSON: failed to marshal body: %w", err))
		return b
	}
	b.rule.Response.Body = string(data)
	return b.WithHeader("Content-Type", "application/json")
}

// WithHeader adds a response header. Values may contain template placeholders.
func (b *MockBuilder) WithHeader(key, value string) *MockBuilder {
	b.rule.Response.Headers = append(b.rule.Response.Headers, mock.KeyValue{Key: key, Value: value})
	return b
}

// WithHeaders adds several response headers in key order.
func (b *MockBuilder) WithHeaders(headers map[string]string) *MockBuilder {
	for _, k := range slices.Sorted(maps.Keys(headers)) {
		b.WithHeader(k, headers[k])
	}
	return b
}

// WithDelay delays the response. Sub-millisecond parts are dropped.
func (b *MockBuilder) WithDelay(d time.Duration) *MockBuilder {
	if d < 0 {
		b.setError(fmt.Errorf("WithDelay: negative delay %s", d))
		return b
	}
	b.rule.Response.Delay = int(d.Milliseconds())
	return b
}

// WithRequestHeader matches requests whose header key matches the value
// pattern (a regular expression, or a substring if it does not compile).
func (b *MockBuilder) WithRequestHeader(key, pattern string) *MockBuilder {
	b.rule.Matcher.Headers = append(b.rule.Matcher.Headers, mock.KeyValue{Key: key, Value: pattern})
	return b
}

// WithQueryParam matches requests whose query parameter key matches pattern.
func (b *MockBuilder) WithQueryParam(key, pattern string) *MockBuilder {
	b.rule.Matcher.QueryParams = append(b.rule.Matcher.QueryParams, mock.KeyValue{Key: key, Value: pattern})
	return b
}

// WithBodyPattern matches requests whose body matches pattern.
func (b *MockBuilder) WithBodyPattern(pattern string) *MockBuilder {
	b.rule.Matcher.Body = mock.Value(pattern)
	return b
}

// Times sets how many times this mock should match. After n matches the
// rule is removed and later requests fall through to other rules or a 404.
// Use 0 for unlimited matches (default).
func (b *MockBuilder) Times(n int) *MockBuilder {
	b.times = n
	return b
}

// Once is a convenience method for Times(1).
func (b *MockBuilder) Once() *MockBuilder {
	return b.Times(1)
}

// Reply validates and registers the rule. Builder errors and invalid rules
// fail the test.
func (b *MockBuilder) Reply() {
	b.server.t.Helper()
	if b.err != nil {
		b.server.t.Fatalf("mock %s %s: %v", b.rule.Matcher.Method, b.rule.Matcher.Path, b.err)
		return
	}
	if b.rule.ID == "" {
		b.rule.ID = id.ULID()
	}
	if err := b.rule.Validate(); err != nil {
		b.server.t.Fatalf("mock %s %s: %v", b.rule.Matcher.Method, b.rule.Matcher.Path, err)
		return
	}
	b.server.addRule(b.rule, b.times)
}

// RespondWith is a shorthand for setting status and body together.
func (b *MockBuilder) RespondWith(status int, body any) *MockBuilder {
	return b.WithStatus(status).WithBody(body)
}

// RespondJSON is a shorthand for a JSON response with status 200.
func (b *MockBuilder) RespondJSON(body any) *MockBuilder {
	return b.WithStatus(http.StatusOK).WithJSON(body)
}

// RespondNotFound configures a 404 Not Found response.
func (b *MockBuilder) RespondNotFound() *MockBuilder {
	return b.WithStatus(http.StatusNotFound).WithJSON(map[string]string{"error": "not_found"})
}

// RespondServerError configures a 500 Internal Server Error response.
func (b *MockBuilder) RespondServerError(message string) *MockBuilder {
	return b.WithStatus(http.StatusInternalServerError).WithJSON(map[string]string{"error": message})
}

// RespondNoContent configures a 204 No Content response.
func (b *MockBuilder) RespondNoContent() *MockBuilder {
	return b.WithStatus(http.StatusNoContent)
}
