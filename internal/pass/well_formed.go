package pass

import (
	"fmt"

	"github.com/fortree/fortree/internal/ftree"
)

// WellFormed validates structural tree invariants after a pipeline has run:
// single parenthood, no cycles, and no node left with an unresolved
// placeholder attribute. A violation fails the whole job.
type WellFormed struct{}

func (*WellFormed) Name() string       { return "well-formed" }
func (*WellFormed) Kind() Kind         { return Validator }
func (*WellFormed) Requires() []string { return nil }
func (*WellFormed) Provides() []string { return []string{"well-formed"} }

func (*WellFormed) Apply(t *ftree.Tree, _ Config) Result {
	if err := t.Validate(); err != nil {
		return Fail(err)
	}
	var bad ftree.NodeID = ftree.InvalidID
	_ = t.Walk(t.Root(), func(id ftree.NodeID) bool {
		if _, ok := t.Attr(id, "placeholder"); ok {
			bad = id
			return false
		}
		return true
	})
	if bad != ftree.InvalidID {
		return Fail(fmt.Errorf("node %d carries an unresolved placeholder", bad))
	}
	return NoChange()
}
