package pass

import (
	"strings"

	"github.com/fortree/fortree/internal/fortran"
	"github.com/fortree/fortree/internal/ftree"
)

// IfConstruct rewrites one-line logical IF statements into IF/THEN/END IF
// constructs, so later passes can insert statements into the branch body.
type IfConstruct struct{}

func (*IfConstruct) Name() string       { return "if-construct" }
func (*IfConstruct) Kind() Kind         { return Rewriter }
func (*IfConstruct) Requires() []string { return nil }
func (*IfConstruct) Provides() []string { return []string{"no-oneline-if"} }

func (*IfConstruct) Apply(t *ftree.Tree, _ Config) Result {
	oneliners, err := t.Find(t.Root(), ftree.And(
		ftree.ByKind(ftree.KindStmt),
		ftree.ByAttr("stmt", "if-oneline"),
	))
	if err != nil {
		return Fail(err)
	}
	if len(oneliners) == 0 {
		return NoChange()
	}

	var details []string
	for _, old := range oneliners {
		cond, _ := t.Attr(old, "cond")
		action, _ := t.Attr(old, "action")
		text, _ := t.Attr(old, "text")
		indent := fortran.Indent(text)
		upper := strings.HasPrefix(strings.TrimSpace(text), "IF")

		kw := func(lower string) string {
			if upper {
				return strings.ToUpper(lower)
			}
			return lower
		}

		actionAttrs := onelineActionAttrs(t, old)
		actionAttrs["text"] = indent + "  " + action

		repl := t.NewNode(ftree.KindStmt, map[string]string{"construct": "if"})
		head := t.NewNode(ftree.KindStmt, map[string]string{
			"stmt": "if-head",
			"cond": cond,
			"text": indent + kw("if") + " (" + cond + ") " + kw("then"),
		})
		body := t.NewNode(ftree.KindStmt, actionAttrs)
		end := t.NewNode(ftree.KindStmt, map[string]string{
			"stmt": "end",
			"text": indent + kw("end if"),
		})
		for _, c := range []ftree.NodeID{head, body, end} {
			if err := t.AppendChild(repl, c); err != nil {
				return Fail(err)
			}
		}
		if err := t.Replace(old, repl); err != nil {
			return Fail(err)
		}
		details = append(details, strings.TrimSpace(text))
	}
	return DidChange(plural(len(details), "rewrote %d one-line IF statement"), details...)
}

// onelineActionAttrs copies the classified attributes of the one-line IF's
// action child so the rewritten body statement stays queryable.
func onelineActionAttrs(t *ftree.Tree, oneline ftree.NodeID) map[string]string {
	children, err := t.Children(oneline)
	if err != nil {
		return map[string]string{"stmt": "exec"}
	}
	for _, c := range children {
		k, _ := t.Kind(c)
		if k != ftree.KindStmt {
			continue
		}
		attrs, err := t.Attrs(c)
		if err != nil {
			continue
		}
		delete(attrs, "src")
		return attrs
	}
	return map[string]string{"stmt": "exec"}
}
