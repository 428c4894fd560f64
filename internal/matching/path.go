package matching

import (
	"fmt"
	"regexp"
	"strings"
)

// compiledPath is a cached path template compilation. A nil re means the
// template failed to compile and never matches.
type compiledPath struct {
	re  *regexp.Regexp
	err error
}

var pathCache = newPatternCache[compiledPath](4096)

// MatchPath reports whether path satisfies the path template.
// The request path is normalized with NormalizePath first.
func MatchPath(template, path string) bool {
	cp := pathCache.get(template, func(t string) compiledPath {
		re, err := CompilePath(t)
		return compiledPath{re: re, err: err}
	})
	if cp.re == nil {
		return false
	}
	return cp.re.MatchString(NormalizePath(path))
}

// NormalizePath strips a single trailing slash, except from the root path.
func NormalizePath(path string) string {
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		return path[:len(path)-1]
	}
	return path
}

// CompilePath compiles a path template into an anchored regular expression.
//
//   - "/users/:id" matches "/users/42"
//   - "/files/*" matches "/files/a" but not "/files/a/b"
//   - "/files/**" matches "/files", "/files/a" and "/files/a/b/c"
//
// A parameter name must start with a letter or underscore; any characters
// following the name stay literal, so ":id.json" matches "42.json".
// Inside a literal segment "*" and ":name" each match one or more non-slash
// characters, so "/v:ver/items" matches "/v2/items".
func CompilePath(template string) (*regexp.Regexp, error) {
	if template == "" {
		return nil, fmt.Errorf("empty path template")
	}
	template = NormalizePath(template)
	if template == "/" {
		return regexp.Compile(`^/$`)
	}

	var b strings.Builder
	b.WriteString("^")
	for i, seg := range strings.Split(template, "/") {
		if i == 0 {
			if seg != "" {
				b.WriteString(regexp.QuoteMeta(seg))
			}
			continue
		}
		switch {
		case seg == "**":
			b.WriteString(`(?:/.*)?`)
		case seg == "*":
			b.WriteString(`/[^/]+`)
		case strings.HasPrefix(seg, ":"):
			name, rest := splitParam(seg[1:])
			if name == "" {
				return nil, fmt.Errorf("invalid parameter %q in path template %q", seg, template)
			}
			b.WriteString(`/[^/]+`)
			b.WriteString(literalSegment(rest))
		default:
			b.WriteString("/")
			b.WriteString(literalSegment(seg))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// splitParam splits a parameter segment (without the leading colon) into the
// identifier and the literal remainder.
func splitParam(s string) (name, rest string) {
	for i, r := range s {
		isLetter := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		if isLetter || (isDigit && i > 0) {
			continue
		}
		return s[:i], s[i:]
	}
	return s, ""
}

// literalSegment escapes a literal segment, turning embedded "*" and
// ":name" into single-segment wildcards. A colon not followed by a valid
// name stays literal.
func literalSegment(seg string) string {
	var b strings.Builder
	lit := 0
	for i := 0; i < len(seg); {
		switch seg[i] {
		case '*':
			b.WriteString(regexp.QuoteMeta(seg[lit:i]))
			b.WriteString(`[^/]+`)
			i++
			lit = i
			continue
		case ':':
			if name, _ := splitParam(seg[i+1:]); name != "" {
				b.WriteString(regexp.QuoteMeta(seg[lit:i]))
				b.WriteString(`[^/]+`)
				i += 1 + len(name)
				lit = i
				continue
			}
		}
		i++
	}
	b.WriteString(regexp.QuoteMeta(seg[lit:]))
	return b.String()
}

// ValidatePath reports whether a path template compiles.
func ValidatePath(template string) error {
	_, err := CompilePath(template)
	return err
}
