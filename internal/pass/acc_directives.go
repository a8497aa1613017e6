package pass

import (
	"strings"

	"github.com/fortree/fortree/internal/fortran"
	"github.com/fortree/fortree/internal/ftree"
)

// AccDirectives inserts an OpenACC loop directive ahead of every outermost
// DO construct that does not already carry one.
//
// Options: directive (default "!$acc parallel loop").
type AccDirectives struct{}

func (*AccDirectives) Name() string       { return "acc-directives" }
func (*AccDirectives) Kind() Kind         { return Rewriter }
func (*AccDirectives) Requires() []string { return nil }
func (*AccDirectives) Provides() []string { return []string{"acc-annotated"} }

func (*AccDirectives) Apply(t *ftree.Tree, cfg Config) Result {
	directive := cfg.Get("directive", "!$acc parallel loop")

	loops, err := t.Find(t.Root(), ftree.ByAttr("construct", "do"))
	if err != nil {
		return Fail(err)
	}

	var details []string
	for _, loop := range loops {
		if insideDo(t, loop) {
			continue
		}
		prev, err := t.PrevSibling(loop)
		if err != nil {
			return Fail(err)
		}
		if prev != ftree.InvalidID {
			if k, _ := t.Kind(prev); k == ftree.KindDirective {
				if text, _ := t.Attr(prev, "text"); strings.Contains(strings.ToLower(text), "$acc") {
					continue
				}
			}
		}
		head := doHeadText(t, loop)
		dir := t.NewNode(ftree.KindDirective, map[string]string{
			"text": fortran.Indent(head) + directive,
		})
		if err := t.InsertBefore(loop, dir); err != nil {
			return Fail(err)
		}
		details = append(details, strings.TrimSpace(head))
	}
	if len(details) == 0 {
		return NoChange()
	}
	return DidChange(plural(len(details), "annotated %d loop"), details...)
}

func insideDo(t *ftree.Tree, id ftree.NodeID) bool {
	ancestors, err := t.Ancestors(id)
	if err != nil {
		return false
	}
	for _, a := range ancestors {
		if c, _ := t.Attr(a, "construct"); c == "do" {
			return true
		}
	}
	return false
}

func doHeadText(t *ftree.Tree, loop ftree.NodeID) string {
	children, err := t.Children(loop)
	if err != nil || len(children) == 0 {
		return ""
	}
	text, _ := t.Attr(children[0], "text")
	return text
}
