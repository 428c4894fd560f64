package config

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed rules.schema.json
var rulesSchema string

const rulesSchemaURL = "rules.schema.json"

// ErrSchema is wrapped by every SchemaError.
var ErrSchema = errors.New("rules do not match schema")

// SchemaError lists every schema violation of a rule document.
type SchemaError struct {
	// Details are "<location>: <message>" lines, location in dot notation
	Details []string
}

func (e *SchemaError) Error() string {
	if len(e.Details) == 0 {
		return ErrSchema.Error()
	}
	return ErrSchema.Error() + ": " + strings.Join(e.Details, "; ")
}

func (e *SchemaError) Unwrap() error { return ErrSchema }

var compileRulesSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(rulesSchemaURL, strings.NewReader(rulesSchema)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	return compiler.Compile(rulesSchemaURL)
})

// RulesSchema returns the JSON Schema that rule documents must satisfy.
func RulesSchema() string {
	return rulesSchema
}

// ValidateDocument checks a decoded JSON document (as produced by
// encoding/json into an any) against the rules schema.
func ValidateDocument(doc any) error {
	schema, err := compileRulesSchema()
	if err != nil {
		return err
	}
	err = schema.Validate(doc)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return &SchemaError{Details: []string{err.Error()}}
	}
	var details []string
	collectSchemaErrors(verr, &details)
	sort.Strings(details)
	return &SchemaError{Details: details}
}

// collectSchemaErrors walks down to the leaf causes, which carry the useful messages.
func collectSchemaErrors(err *jsonschema.ValidationError, out *[]string) {
	if len(err.Causes) == 0 {
		*out = append(*out, fmt.Sprintf("%s: %s", fieldFromPointer(err.InstanceLocation), err.Message))
		return
	}
	for _, cause := range err.Causes {
		collectSchemaErrors(cause, out)
	}
}

// fieldFromPointer turns "/0/matcher/method" into "[0].matcher.method".
func fieldFromPointer(ptr string) string {
	if ptr == "" || ptr == "/" {
		return "(root)"
	}
	var b strings.Builder
	for _, part := range strings.Split(strings.TrimPrefix(ptr, "/"), "/") {
		part = strings.ReplaceAll(strings.ReplaceAll(part, "~1", "/"), "~0", "~")
		if part != "" && strings.Trim(part, "0123456789") == "" {
			b.WriteString("[" + part + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(part)
	}
	return b.String()
}
