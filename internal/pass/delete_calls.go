package pass

import (
	"fmt"
	"strings"

	"github.com/fortree/fortree/internal/ftree"
)

// DeleteCalls removes every CALL statement invoking a configured callee.
// A one-line logical IF wrapping such a call is removed with it. With the
// "simplify" option, an IF construct whose body contains nothing but the
// call (and comments) is removed entirely.
//
// Options: callee (required), simplify (bool).
type DeleteCalls struct{}

func (*DeleteCalls) Name() string       { return "delete-calls" }
func (*DeleteCalls) Kind() Kind         { return Rewriter }
func (*DeleteCalls) Requires() []string { return nil }
func (*DeleteCalls) Provides() []string { return nil }

func (*DeleteCalls) Apply(t *ftree.Tree, cfg Config) Result {
	callee := cfg.Get("callee", "")
	if callee == "" {
		return Fail(fmt.Errorf("delete-calls: option %q is required", "callee"))
	}
	simplify := cfg.Bool("simplify")

	calls, err := t.Find(t.Root(), ftree.And(
		ftree.ByKind(ftree.KindStmt),
		ftree.ByAttr("stmt", "call"),
		func(t *ftree.Tree, id ftree.NodeID) bool {
			name, _ := t.Attr(id, "name")
			return strings.EqualFold(name, callee)
		},
	))
	if err != nil {
		return Fail(err)
	}
	if len(calls) == 0 {
		return NoChange()
	}

	var details []string
	removed := 0
	for _, call := range calls {
		if !t.Valid(call) {
			continue // already gone with an enclosing construct
		}
		target := call
		parent, err := t.Parent(call)
		if err != nil {
			return Fail(err)
		}
		if s, _ := t.Attr(parent, "stmt"); s == "if-oneline" {
			target = parent
		} else if simplify {
			if c := enclosingSoleIf(t, call); c != ftree.InvalidID {
				target = c
			}
		}
		if err := t.Remove(target); err != nil {
			return Fail(err)
		}
		removed++
		details = append(details, "CALL "+strings.ToUpper(callee))
	}
	return DidChange(fmt.Sprintf("removed %d CALL %s statement(s)", removed, strings.ToUpper(callee)), details...)
}

// enclosingSoleIf returns the IF construct directly containing call when the
// call is its only executable body statement, InvalidID otherwise.
func enclosingSoleIf(t *ftree.Tree, call ftree.NodeID) ftree.NodeID {
	parent, err := t.Parent(call)
	if err != nil {
		return ftree.InvalidID
	}
	if c, _ := t.Attr(parent, "construct"); c != "if" {
		return ftree.InvalidID
	}
	children, err := t.Children(parent)
	if err != nil {
		return ftree.InvalidID
	}
	for _, ch := range children {
		if ch == call {
			continue
		}
		kind, _ := t.Kind(ch)
		if kind == ftree.KindComment || kind == ftree.KindExpr {
			continue
		}
		s, _ := t.Attr(ch, "stmt")
		if s == "if-head" || s == "end" {
			continue
		}
		return ftree.InvalidID // something else in the body
	}
	return parent
}
