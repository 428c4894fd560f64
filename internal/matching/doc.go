// Package matching selects the mock rule that answers a request.
//
// Rules are evaluated in order and the first rule whose predicates all hold
// wins. There is no scoring: rule order is the only tie-break. Predicates are
// checked in a fixed order and evaluation short-circuits on the first failure:
//
//   - Method: exact, case-sensitive equality
//   - Path: a path template compiled to an anchored regular expression
//   - Headers: case-insensitive key, value pattern per entry
//   - Query parameters: exact key, value pattern per entry
//   - Body: optional value pattern against the raw body
//
// Path templates support literal segments, ":name" parameters and "*"
// wildcards (each matching one non-slash segment), and "**" (zero or more
// segments). A single trailing slash on the request path is ignored, except
// for the root path. A template that cannot be compiled never matches.
//
// Value patterns are tried as regular expressions and matched unanchored; a
// pattern that does not compile falls back to substring containment. So "4"
// matches "404", and "(" matches any value containing a parenthesis.
//
// Compiled templates and value patterns are cached by their source text.
package matching
