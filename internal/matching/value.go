package matching

import (
	"regexp"
	"strings"

	"github.com/getmockd/mocklane/pkg/mock"
)

// valueCache holds compiled value patterns; nil marks a pattern that is not
// a valid regular expression.
var valueCache = newPatternCache[*regexp.Regexp](4096)

// MatchValue applies the value-match rule: expected is compiled as a regular
// expression and searched for anywhere in actual; if it does not compile,
// substring containment is used instead.
func MatchValue(expected, actual string) bool {
	re := valueCache.get(expected, func(p string) *regexp.Regexp {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil
		}
		return re
	})
	if re != nil {
		return re.MatchString(actual)
	}
	return strings.Contains(actual, expected)
}

// MatchHeaders reports whether every set header pattern is satisfied by at
// least one request header. Keys compare case-insensitively.
func MatchHeaders(patterns, headers []mock.KeyValue) (bool, string) {
	for _, p := range patterns {
		if !p.IsSet() {
			continue
		}
		if !anyMatch(p, headers, strings.EqualFold) {
			return false, p.Key
		}
	}
	return true, ""
}

// MatchQuery reports whether every set query pattern is satisfied by at least
// one query parameter. Keys compare exactly.
func MatchQuery(patterns, query []mock.KeyValue) (bool, string) {
	for _, p := range patterns {
		if !p.IsSet() {
			continue
		}
		if !anyMatch(p, query, func(a, b string) bool { return a == b }) {
			return false, p.Key
		}
	}
	return true, ""
}

// MatchBody applies an optional body pattern to the raw body.
func MatchBody(pattern mock.Pattern, body string) bool {
	expected, ok := pattern.Get()
	if !ok {
		return true
	}
	return MatchValue(expected, body)
}

func anyMatch(p mock.KeyValue, actual []mock.KeyValue, keyEqual func(a, b string) bool) bool {
	for _, kv := range actual {
		if keyEqual(p.Key, kv.Key) && MatchValue(p.Value, kv.Value) {
			return true
		}
	}
	return false
}
