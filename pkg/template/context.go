package template

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/getmockd/mocklane/pkg/mock"
)

// Context is the read-only, per-request data available to templates.
// It is built once per dispatch and shared by the body and header renders.
type Context struct {
	Method    string
	Path      string
	URL       string
	Headers   map[string]string // lower-cased keys, repeated values joined with ", "
	Query     map[string]string // first value per key
	Body      string            // raw body
	BodyJSON  any               // parsed body, nil when the body is not JSON
	Timestamp string            // ISO 8601, UTC, millisecond precision
	EpochMs   int64
	UUID      string // one identifier per context; {{uuid}} is fresh per occurrence

	vars map[string]any
}

// NewContext derives a template context from a request.
func NewContext(req *mock.Request) *Context {
	return newContextAt(req, time.Now())
}

func newContextAt(req *mock.Request, now time.Time) *Context {
	ctx := &Context{
		Method:    req.Method,
		Path:      req.Path,
		URL:       req.URL(),
		Headers:   req.HeaderMap(),
		Query:     req.QueryMap(),
		Body:      req.Body,
		BodyJSON:  parseJSON(req.Body),
		Timestamp: now.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		EpochMs:   now.UnixMilli(),
		UUID:      uuid.NewString(),
	}
	ctx.vars = map[string]any{
		"method":    ctx.Method,
		"path":      ctx.Path,
		"url":       ctx.URL,
		"headers":   ctx.Headers,
		"query":     ctx.Query,
		"body":      ctx.Body,
		"bodyJson":  ctx.BodyJSON,
		"timestamp": ctx.Timestamp,
		"isoNow":    ctx.Timestamp,
		"epochMs":   ctx.EpochMs,
		"uuid":      ctx.UUID,
	}
	return ctx
}

// Lookup resolves a dotted path such as "bodyJson.user.id" or "headers.accept".
// Array elements are addressed by index ("bodyJson.items.0"). Any missing
// segment yields (nil, false).
func (c *Context) Lookup(path string) (any, bool) {
	if c == nil || path == "" {
		return nil, false
	}
	var cur any = c.vars
	for _, seg := range splitPath(path) {
		next, ok := step(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// parseJSON parses body as JSON, returning nil when it is empty or invalid.
func parseJSON(body string) any {
	if body == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return nil
	}
	return v
}
