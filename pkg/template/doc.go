// Package template renders mock response bodies and header values.
// Placeholders are written as {{ ... }} and are resolved left to right.
//
// # Placeholder Modes
//
//   - {{uuid}} - a fresh random UUID for every occurrence
//   - {{= expression}} or {{js: expression}} - expression mode
//   - {{dotted.path}} - path mode, a lookup in the request context
//
// A placeholder that cannot be resolved renders as the empty string. Rendering
// never fails as a whole.
//
// # Context Variables
//
//   - method, path, url - request line data; url includes the query string
//   - headers.<name> - request header, lower-case name
//   - query.<name> - first value of a query parameter
//   - body - raw request body
//   - bodyJson.<path> - parsed JSON body; arrays are indexed as bodyJson.items.0
//   - timestamp, isoNow - ISO 8601 time of the request (UTC, milliseconds)
//   - epochMs - Unix time of the request in milliseconds
//   - uuid - in expression mode, one identifier shared by the whole render
//
// # Expression Mode
//
// Expressions are evaluated by expr-lang (github.com/expr-lang/expr) against
// the context variables above. The language has no statements, loops or I/O.
// Each evaluation is bounded by a timeout (DefaultExpressionTimeout); a
// compile error, runtime error or timeout renders "".
//
// Helper functions:
//   - uppercase(s), lowercase(s) - Unicode case conversion
//   - base64(s) - standard base64 encoding
//   - stringify(v) - compact JSON encoding
//   - parseJson(s) - JSON decoding, nil on failure
//   - randomInt(lo, hi) - inclusive random integer; bounds may be given in either order
//   - jsonPath(v, "$.path") - first JSONPath match in v (a string v is parsed first)
//
// The same helpers are grouped under the helpers namespace, for rules written
// as helpers.upper(s), helpers.lower(s), helpers.base64(s), helpers.json(v),
// helpers.parseJson(s) and helpers.randomInt(lo, hi).
//
// expr's builtins are also available, including abs, ceil, floor, round, max,
// min, now(), date(), duration(), toJSON, fromJSON, upper and lower.
//
// Results render as: nil as "", strings verbatim, numbers in shortest decimal
// form, booleans as true/false, maps and slices as compact JSON.
package template
