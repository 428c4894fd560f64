package mock

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Request is the engine's view of one inbound HTTP request.
// Query keeps arrival order and repeated keys. Headers are sorted by
// canonical name, since net/http does not preserve their order; repeated
// values of one header keep arrival order.
type Request struct {
	// ID correlates the request with its dispatch log event
	ID string

	Method   string
	Path     string
	Headers  []KeyValue
	Query    []KeyValue
	RawQuery string
	Body     string

	// ReceivedAt is the arrival instant; dispatch duration is measured from it
	ReceivedAt time.Time
}

// NewRequest builds a Request from an http.Request and its already-read body.
func NewRequest(r *http.Request, body []byte, receivedAt time.Time) *Request {
	req := &Request{
		Method:     r.Method,
		Path:       r.URL.Path,
		RawQuery:   r.URL.RawQuery,
		Body:       string(body),
		ReceivedAt: receivedAt,
	}
	keys := make([]string, 0, len(r.Header))
	for key := range r.Header {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		for _, v := range r.Header[key] {
			req.Headers = append(req.Headers, KeyValue{Key: key, Value: v})
		}
	}
	if r.Host != "" && r.Header.Get("Host") == "" {
		req.Headers = append(req.Headers, KeyValue{Key: "Host", Value: r.Host})
	}
	req.Query = ParseQuery(r.URL.RawQuery)
	return req
}

// ParseQuery splits a raw query string into ordered key/value pairs.
// Malformed escapes are kept verbatim.
func ParseQuery(rawQuery string) []KeyValue {
	if rawQuery == "" {
		return nil
	}
	var out []KeyValue
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if v, err := url.QueryUnescape(value); err == nil {
			value = v
		}
		out = append(out, KeyValue{Key: key, Value: value})
	}
	return out
}

// URL returns the path plus the query string.
func (r *Request) URL() string {
	if r.RawQuery != "" {
		return r.Path + "?" + r.RawQuery
	}
	if len(r.Query) == 0 {
		return r.Path
	}
	parts := make([]string, 0, len(r.Query))
	for _, q := range r.Query {
		parts = append(parts, url.QueryEscape(q.Key)+"="+url.QueryEscape(q.Value))
	}
	return r.Path + "?" + strings.Join(parts, "&")
}

// HeaderMap returns headers keyed by lower-cased name. Repeated headers are
// joined with ", ".
func (r *Request) HeaderMap() map[string]string {
	out := make(map[string]string, len(r.Headers))
	for _, h := range r.Headers {
		key := strings.ToLower(h.Key)
		if prev, ok := out[key]; ok {
			out[key] = prev + ", " + h.Value
			continue
		}
		out[key] = h.Value
	}
	return out
}

// QueryMap returns the first value of each query parameter.
func (r *Request) QueryMap() map[string]string {
	out := make(map[string]string, len(r.Query))
	for _, q := range r.Query {
		if _, ok := out[q.Key]; !ok {
			out[q.Key] = q.Value
		}
	}
	return out
}
