package mock

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule is one declarative mock: a matcher plus the response it produces.
// Rules are immutable once published to the engine; updates replace the whole set.
type Rule struct {
	// ID is a unique identifier for the rule within a rule set
	ID string `json:"id" yaml:"id"`

	// Name is a human-readable name, echoed in the debug response headers
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Matcher selects the requests this rule answers
	Matcher Matcher `json:"matcher" yaml:"matcher"`

	// Response describes the synthesized response
	Response Response `json:"response" yaml:"response"`
}

// Matcher holds the request predicates of a rule. All set predicates must hold.
type Matcher struct {
	// Method is compared exactly and case-sensitively
	Method string `json:"method" yaml:"method"`

	// Path is a path template: literal segments, :name, * and ** wildcards
	Path string `json:"path" yaml:"path"`

	// Headers are header patterns; entries with an empty key are ignored
	Headers []KeyValue `json:"headers,omitempty" yaml:"headers,omitempty"`

	// QueryParams are query parameter patterns; entries with an empty key are ignored
	QueryParams []KeyValue `json:"queryParams,omitempty" yaml:"queryParams,omitempty"`

	// Body is an optional pattern applied to the raw request body
	Body Pattern `json:"body,omitzero" yaml:"body,omitempty"`
}

// Response is the response template of a rule.
type Response struct {
	// Status is the HTTP status code to send
	Status int `json:"status" yaml:"status"`

	// Headers are response headers; values are templates, keys are literal
	Headers []KeyValue `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Body is the response body template
	Body string `json:"body,omitempty" yaml:"body,omitempty"`

	// Delay is an artificial latency in milliseconds applied before responding
	Delay int `json:"delay,omitempty" yaml:"delay,omitempty"`
}

// KeyValue is a keyed entry used for header and query patterns and for
// response headers. An empty Key means the entry is unset.
type KeyValue struct {
	ID    string `json:"id,omitempty" yaml:"id,omitempty"`
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// IsSet reports whether the entry carries a key.
func (kv KeyValue) IsSet() bool {
	return kv.Key != ""
}

// Pattern is an optional matcher value: either Unset or Value(s).
// The zero value is Unset.
type Pattern struct {
	value string
	set   bool
}

// Unset returns a pattern that matches anything.
func Unset() Pattern {
	return Pattern{}
}

// Value returns a pattern holding s. Value("") is distinct from Unset.
func Value(s string) Pattern {
	return Pattern{value: s, set: true}
}

// Get returns the pattern text and whether it is set.
func (p Pattern) Get() (string, bool) {
	return p.value, p.set
}

// IsSet reports whether the pattern holds a value.
func (p Pattern) IsSet() bool {
	return p.set
}

// IsZero reports whether the pattern is unset. Used by omitzero.
func (p Pattern) IsZero() bool {
	return !p.set
}

// String returns the pattern text, or "" when unset.
func (p Pattern) String() string {
	return p.value
}

// MarshalJSON encodes an unset pattern as null.
func (p Pattern) MarshalJSON() ([]byte, error) {
	if !p.set {
		return []byte("null"), nil
	}
	return json.Marshal(p.value)
}

// UnmarshalJSON decodes null and "" as Unset; rule files written by editors
// use the empty string for "no body constraint".
func (p *Pattern) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*p = Unset()
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("body pattern must be a string: %w", err)
	}
	if s == "" {
		*p = Unset()
		return nil
	}
	*p = Value(s)
	return nil
}

// MarshalYAML encodes an unset pattern as null.
func (p Pattern) MarshalYAML() (interface{}, error) {
	if !p.set {
		return nil, nil
	}
	return p.value, nil
}

// UnmarshalYAML decodes null and "" as Unset.
func (p *Pattern) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*p = Unset()
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("body pattern must be a string: %w", err)
	}
	if s == "" {
		*p = Unset()
		return nil
	}
	*p = Value(s)
	return nil
}

// HeaderValue returns the first response header value for key (case-insensitive).
func (r *Response) HeaderValue(key string) (string, bool) {
	for _, h := range r.Headers {
		if h.IsSet() && strings.EqualFold(h.Key, key) {
			return h.Value, true
		}
	}
	return "", false
}

// Decoding errors.
var (
	ErrInvalidJSON = errors.New("invalid JSON")
	ErrNotArray    = errors.New("body must be an array of mocks")
)

// DecodeRules decodes a JSON array of rules. Anything other than an array
// (including null) fails with ErrNotArray.
func DecodeRules(data []byte) ([]*Rule, error) {
	trimmed := bytes.TrimSpace(data)
	if !json.Valid(trimmed) {
		return nil, ErrInvalidJSON
	}
	if trimmed[0] != '[' {
		return nil, ErrNotArray
	}
	var rules []*Rule
	if err := json.Unmarshal(trimmed, &rules); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	out := rules[:0]
	for _, r := range rules {
		if r != nil {
			out = append(out, r)
		}
	}
	return out, nil
}
