package template

import (
	"strconv"
	"strings"
)

func splitPath(path string) []string {
	return strings.Split(path, ".")
}

// step descends one segment into maps and arrays.
func step(cur any, seg string) (any, bool) {
	if seg == "" {
		return nil, false
	}
	switch v := cur.(type) {
	case map[string]any:
		next, ok := v[seg]
		return next, ok
	case map[string]string:
		next, ok := v[seg]
		return next, ok
	case []any:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(v) {
			return nil, false
		}
		return v[i], true
	default:
		return nil, false
	}
}
