package matching

import (
	"github.com/getmockd/mocklane/pkg/mock"
)

// Stage identifies a matcher predicate, in evaluation order.
type Stage int

// Predicate stages.
const (
	StageMethod Stage = iota
	StagePath
	StageHeaders
	StageQuery
	StageBody
)

func (s Stage) String() string {
	switch s {
	case StageMethod:
		return "method"
	case StagePath:
		return "path"
	case StageHeaders:
		return "header"
	case StageQuery:
		return "query"
	case StageBody:
		return "body"
	default:
		return "unknown"
	}
}

// Mismatch describes the first predicate of a rule that failed.
type Mismatch struct {
	Stage    Stage  `json:"-"`
	Field    string `json:"field"`
	Expected string `json:"expected,omitempty"`
}

// NearMiss is the rule that got furthest through its predicates without matching.
type NearMiss struct {
	MockID   string `json:"mockId"`
	MockName string `json:"mockName,omitempty"`
	Field    string `json:"field"`
	Expected string `json:"expected,omitempty"`
}

// Explain evaluates the rule's predicates in order and returns the first one
// that fails, or nil when the rule matches.
func Explain(req *mock.Request, r *mock.Rule) *Mismatch {
	m := &r.Matcher
	if m.Method != req.Method {
		return &Mismatch{Stage: StageMethod, Field: "method", Expected: m.Method}
	}
	if !MatchPath(m.Path, req.Path) {
		return &Mismatch{Stage: StagePath, Field: "path", Expected: m.Path}
	}
	if ok, key := MatchHeaders(m.Headers, req.Headers); !ok {
		return &Mismatch{Stage: StageHeaders, Field: "header:" + key, Expected: headerPattern(m.Headers, key)}
	}
	if ok, key := MatchQuery(m.QueryParams, req.Query); !ok {
		return &Mismatch{Stage: StageQuery, Field: "query:" + key, Expected: headerPattern(m.QueryParams, key)}
	}
	if !MatchBody(m.Body, req.Body) {
		return &Mismatch{Stage: StageBody, Field: "body", Expected: m.Body.String()}
	}
	return nil
}

// ClosestMiss returns the non-matching rule whose first failing predicate came
// latest, ignoring rules that failed on method. Earlier rules win ties.
// Returns nil when no rule got past the method check.
func ClosestMiss(req *mock.Request, rules []*mock.Rule) *NearMiss {
	var best *NearMiss
	bestStage := StageMethod
	for _, r := range rules {
		if r == nil {
			continue
		}
		mm := Explain(req, r)
		if mm == nil || mm.Stage <= bestStage {
			continue
		}
		bestStage = mm.Stage
		best = &NearMiss{MockID: r.ID, MockName: r.Name, Field: mm.Field, Expected: mm.Expected}
	}
	return best
}

func headerPattern(patterns []mock.KeyValue, key string) string {
	for _, p := range patterns {
		if p.Key == key {
			return p.Value
		}
	}
	return ""
}
