package mock

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ValidationError represents a validation failure with context.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// ErrDuplicateID is wrapped by ValidateSet when two rules share an id.
var ErrDuplicateID = errors.New("duplicate mock id")

// validHTTPMethods are the allowed HTTP methods.
var validHTTPMethods = map[string]bool{
	"GET":     true,
	"POST":    true,
	"PUT":     true,
	"DELETE":  true,
	"PATCH":   true,
	"HEAD":    true,
	"OPTIONS": true,
}

// headerNameRegex validates HTTP header names (RFC 7230).
var headerNameRegex = regexp.MustCompile(`^[A-Za-z0-9!#$%&'*+\-.^_\x60|~]+$`)

// Validate checks that a single rule is well formed.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "id", Message: "id is required"}
	}
	if err := r.Matcher.Validate(); err != nil {
		return err
	}
	return r.Response.Validate()
}

// Validate checks the matcher fields.
func (m *Matcher) Validate() error {
	if !validHTTPMethods[m.Method] {
		return &ValidationError{Field: "matcher.method", Message: fmt.Sprintf("unsupported method %q", m.Method)}
	}
	if !strings.HasPrefix(m.Path, "/") {
		return &ValidationError{Field: "matcher.path", Message: "path must start with /"}
	}
	for i, h := range m.Headers {
		if h.IsSet() && !headerNameRegex.MatchString(h.Key) {
			return &ValidationError{
				Field:   fmt.Sprintf("matcher.headers[%d].key", i),
				Message: fmt.Sprintf("invalid header name %q", h.Key),
			}
		}
	}
	return nil
}

// Validate checks the response fields.
func (r *Response) Validate() error {
	if r.Status < 100 || r.Status > 599 {
		return &ValidationError{Field: "response.status", Message: fmt.Sprintf("status %d out of range 100-599", r.Status)}
	}
	if r.Delay < 0 {
		return &ValidationError{Field: "response.delay", Message: "delay must be >= 0"}
	}
	for i, h := range r.Headers {
		if h.IsSet() && !headerNameRegex.MatchString(h.Key) {
			return &ValidationError{
				Field:   fmt.Sprintf("response.headers[%d].key", i),
				Message: fmt.Sprintf("invalid header name %q", h.Key),
			}
		}
	}
	return nil
}

// ValidateSet validates every rule and checks id uniqueness. All failures are
// joined into one error, each prefixed with the rule's position.
func ValidateSet(rules []*Rule) error {
	var errs []error
	seen := make(map[string]int, len(rules))
	for i, r := range rules {
		if err := r.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("mocks[%d]: %w", i, err))
			continue
		}
		if first, ok := seen[r.ID]; ok {
			errs = append(errs, fmt.Errorf("mocks[%d]: %w %q (first used at mocks[%d])", i, ErrDuplicateID, r.ID, first))
			continue
		}
		seen[r.ID] = i
	}
	return errors.Join(errs...)
}
