package template

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/expr-lang/expr"
	"github.com/ohler55/ojg/jp"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var errArgCount = errors.New("wrong number of arguments")

// helperOptions registers the helper functions available in expression mode.
// expr's own builtins (abs, round, now, date, toJSON, fromJSON, ...) stay available.
func helperOptions() []expr.Option {
	return []expr.Option{
		expr.Function("uppercase", unary(funcUpper)),
		expr.Function("lowercase", unary(funcLower)),
		expr.Function("base64", unary(funcBase64)),
		expr.Function("stringify", func(params ...any) (any, error) {
			if len(params) != 1 {
				return nil, errArgCount
			}
			return funcStringify(params[0]), nil
		}),
		expr.Function("parseJson", func(params ...any) (any, error) {
			if len(params) != 1 {
				return nil, errArgCount
			}
			return funcParseJSON(FormatValue(params[0])), nil
		}),
		expr.Function("randomInt", func(params ...any) (any, error) {
			if len(params) != 2 {
				return nil, errArgCount
			}
			lo, ok1 := toInt(params[0])
			hi, ok2 := toInt(params[1])
			if !ok1 || !ok2 {
				return nil, fmt.Errorf("randomInt: integer arguments required")
			}
			return funcRandomInt(lo, hi), nil
		}),
		expr.Function("jsonPath", func(params ...any) (any, error) {
			if len(params) != 2 {
				return nil, errArgCount
			}
			path, ok := params[1].(string)
			if !ok {
				return nil, fmt.Errorf("jsonPath: path must be a string")
			}
			return funcJSONPath(params[0], path), nil
		}),
	}
}

func unary(fn func(string) string) func(params ...any) (any, error) {
	return func(params ...any) (any, error) {
		if len(params) != 1 {
			return nil, errArgCount
		}
		return fn(FormatValue(params[0])), nil
	}
}

// funcUpper upper-cases s using Unicode case rules.
func funcUpper(s string) string {
	return cases.Upper(language.Und).String(s)
}

// funcLower lower-cases s using Unicode case rules.
func funcLower(s string) string {
	return cases.Lower(language.Und).String(s)
}

// funcBase64 encodes s with standard base64.
func funcBase64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// funcStringify returns v as compact JSON, or "" if it cannot be encoded.
func funcStringify(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// funcParseJSON parses s, returning nil on failure.
func funcParseJSON(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil
	}
	return v
}

// funcRandomInt returns a random integer in [lo, hi]; the bounds are swapped when hi < lo.
func funcRandomInt(lo, hi int) int {
	if hi < lo {
		lo, hi = hi, lo
	}
	span := hi - lo + 1
	if span <= 0 {
		return lo + rand.Int()
	}
	return lo + rand.IntN(span)
}

// funcJSONPath returns the first match of path in v. A string v is parsed as
// JSON first. Returns nil when nothing matches.
func funcJSONPath(v any, path string) any {
	if s, ok := v.(string); ok {
		v = funcParseJSON(s)
	}
	x, err := jp.ParseString(path)
	if err != nil {
		return nil
	}
	results := x.Get(v)
	if len(results) == 0 {
		return nil
	}
	return results[0]
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
