package admin

import (
	"errors"

	"github.com/getmockd/mocklane/pkg/config"
)

// Error codes of admin error responses.
const (
	ErrCodeInvalidJSON     = "invalid_json"
	ErrCodeNotArray        = "not_array"
	ErrCodeSchema          = "schema_validation_failed"
	ErrCodeValidation      = "validation_failed"
	ErrCodeNotPersistable  = "not_persistable"
	ErrCodePersistFailed   = "persist_failed"
	ErrCodeBodyTooLarge    = "request_too_large"
	ErrCodeInvalidParam    = "invalid_parameter"
	ErrCodeStreamingFailed = "streaming_unsupported"
)

// errorDetails flattens err into one line per underlying failure: schema
// violations, or each error of an errors.Join.
func errorDetails(err error) []string {
	var schemaErr *config.SchemaError
	if errors.As(err, &schemaErr) {
		return schemaErr.Details
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, errorDetails(e)...)
		}
		return out
	}
	return []string{err.Error()}
}
