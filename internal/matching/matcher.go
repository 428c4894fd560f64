package matching

import (
	"github.com/getmockd/mocklane/pkg/mock"
)

// Select returns the first rule whose matcher holds for req, or nil.
func Select(req *mock.Request, rules []*mock.Rule) *mock.Rule {
	for _, r := range rules {
		if r == nil {
			continue
		}
		if Explain(req, r) == nil {
			return r
		}
	}
	return nil
}

// Matches reports whether a single rule matches req.
func Matches(req *mock.Request, r *mock.Rule) bool {
	return Explain(req, r) == nil
}
