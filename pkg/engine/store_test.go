package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/getmockd/mocklane/pkg/mock"
)

func TestRuleStore_StartsEmpty(t *testing.T) {
	s := NewRuleStore()
	snap := s.Snapshot()
	assert.NotNil(t, snap.Rules)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, "", snap.Source)
	assert.False(t, snap.LoadedAt.IsZero())
}

func TestRuleStore_ReplaceCopiesAndDropsNil(t *testing.T) {
	s := NewRuleStore()
	rules := []*mock.Rule{rule("a", "GET", "/a", 200, ""), nil, rule("b", "GET", "/b", 200, "")}

	old := s.Snapshot()
	snap := s.Replace(rules, "rules.json")
	rules[0] = rule("changed", "GET", "/c", 200, "")

	assert.Same(t, snap, s.Snapshot())
	assert.Equal(t, 2, snap.Len())
	assert.Equal(t, "a", snap.Rules[0].ID)
	assert.Equal(t, "rules.json", snap.Source)
	assert.Equal(t, 0, old.Len(), "earlier snapshots are immutable")
}

func TestRuleStore_ConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	s := NewRuleStore()
	one := []*mock.Rule{rule("1", "GET", "/", 200, "")}
	two := []*mock.Rule{rule("1", "GET", "/", 200, ""), rule("2", "GET", "/", 200, "")}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%2 == 0 {
				s.Replace(one, "a")
			} else {
				s.Replace(two, "b")
			}
		}
	}()

	for i := 0; i < 1000; i++ {
		snap := s.Snapshot()
		switch snap.Source {
		case "a":
			assert.Equal(t, 1, snap.Len())
		case "b":
			assert.Equal(t, 2, snap.Len())
		}
	}
	close(stop)
	wg.Wait()
}
