package engine

import (
	"sync/atomic"
	"time"

	"github.com/getmockd/mocklane/pkg/mock"
)

// Snapshot is an immutable view of the rule set. Dispatches read one snapshot
// for their whole lifetime; updates publish a new one.
type Snapshot struct {
	Rules    []*mock.Rule
	LoadedAt time.Time
	// Source names where the rules came from: a file path or glob, "admin", or "" for none
	Source string
}

// Len returns the number of rules in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.Rules)
}

// RuleStore holds the current Snapshot. Reads are a single atomic load and
// never block on writers.
type RuleStore struct {
	current atomic.Pointer[Snapshot]
	now     func() time.Time
}

// NewRuleStore creates a store holding an empty snapshot.
func NewRuleStore() *RuleStore {
	s := &RuleStore{now: time.Now}
	s.current.Store(&Snapshot{Rules: []*mock.Rule{}, LoadedAt: s.now()})
	return s
}

// Snapshot returns the current snapshot. Callers must not modify it.
func (s *RuleStore) Snapshot() *Snapshot {
	return s.current.Load()
}

// Replace publishes a new snapshot. The rules slice is copied so later
// changes by the caller are not observed by in-flight dispatches.
func (s *RuleStore) Replace(rules []*mock.Rule, source string) *Snapshot {
	copied := make([]*mock.Rule, 0, len(rules))
	for _, r := range rules {
		if r != nil {
			copied = append(copied, r)
		}
	}
	snap := &Snapshot{Rules: copied, LoadedAt: s.now(), Source: source}
	s.current.Store(snap)
	return snap
}

// Len returns the number of rules in the current snapshot.
func (s *RuleStore) Len() int {
	return s.Snapshot().Len()
}
