package pass

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fortree/fortree/internal/fortran"
	"github.com/fortree/fortree/internal/ftree"
)

// RemoveUnusedDecls deletes local variable declarations whose names are
// never referenced in the rest of their program unit. Dummy arguments,
// intent-carrying declarations, and named constants are left alone; nested
// units count as references because of host association.
type RemoveUnusedDecls struct{}

func (*RemoveUnusedDecls) Name() string       { return "remove-unused-decls" }
func (*RemoveUnusedDecls) Kind() Kind         { return Rewriter }
func (*RemoveUnusedDecls) Requires() []string { return nil }
func (*RemoveUnusedDecls) Provides() []string { return []string{"no-unused-decls"} }

func (p *RemoveUnusedDecls) Apply(t *ftree.Tree, _ Config) Result {
	units, err := t.Find(t.Root(), ftree.ByKind(ftree.KindUnit))
	if err != nil {
		return Fail(err)
	}

	var details []string
	for _, unit := range units {
		removed, err := p.applyUnit(t, unit)
		if err != nil {
			return Fail(err)
		}
		details = append(details, removed...)
	}
	if len(details) == 0 {
		return NoChange()
	}
	return DidChange(plural(len(details), "removed %d unused declaration"), details...)
}

func (p *RemoveUnusedDecls) applyUnit(t *ftree.Tree, unit ftree.NodeID) ([]string, error) {
	name, _ := t.Attr(unit, "name")
	keep := protectedNames(t, unit)

	children, err := t.Children(unit)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, decl := range children {
		if d, _ := t.Attr(decl, "decl"); d != "var" {
			continue
		}
		if _, dummy := t.Attr(decl, "intent"); dummy {
			continue
		}
		if _, constant := t.Attr(decl, "parameter"); constant {
			continue
		}
		names, _ := t.Attr(decl, "names")
		if names == "" {
			continue
		}

		var unused, kept []string
		for _, n := range strings.Split(names, ",") {
			if keep[strings.ToLower(n)] || referenced(t, unit, decl, n) {
				kept = append(kept, n)
			} else {
				unused = append(unused, n)
			}
		}
		if len(unused) == 0 {
			continue
		}

		if len(kept) == 0 {
			if err := t.Remove(decl); err != nil {
				return nil, err
			}
		} else if err := rewriteDecl(t, decl, kept); err != nil {
			return nil, err
		}
		for _, n := range unused {
			removed = append(removed, fmt.Sprintf("%s (in %s)", n, name))
		}
	}
	return removed, nil
}

// protectedNames collects identifiers that must never be removed from a
// unit: its dummy arguments and the unit name itself (function results).
func protectedNames(t *ftree.Tree, unit ftree.NodeID) map[string]bool {
	keep := make(map[string]bool)
	if n, ok := t.Attr(unit, "name"); ok {
		keep[strings.ToLower(n)] = true
	}
	children, err := t.Children(unit)
	if err != nil {
		return keep
	}
	for _, c := range children {
		if s, _ := t.Attr(c, "stmt"); s != "unit-head" {
			continue
		}
		text, _ := t.Attr(c, "text")
		if i := strings.Index(text, "("); i >= 0 {
			if args, _, ok := argsOf(text[i:]); ok {
				for _, a := range strings.Split(args, ",") {
					a = strings.TrimSpace(a)
					if a != "" {
						keep[strings.ToLower(a)] = true
					}
				}
			}
		}
		// result(res) clause on functions
		low := strings.ToLower(text)
		if i := strings.Index(low, "result"); i >= 0 {
			if res, _, ok := argsOf(text[i+len("result"):]); ok {
				keep[strings.ToLower(strings.TrimSpace(res))] = true
			}
		}
		break
	}
	return keep
}

func argsOf(s string) (string, string, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "(") {
		return "", "", false
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[1:i], s[i+1:], true
			}
		}
	}
	return "", "", false
}

// referenced reports whether name occurs, as a whole word, anywhere in the
// unit subtree outside its own declaration.
func referenced(t *ftree.Tree, unit, decl ftree.NodeID, name string) bool {
	re := regexp.MustCompile(`(?i)(^|\W)` + regexp.QuoteMeta(name) + `($|\W)`)
	found := false
	_ = t.Walk(unit, func(id ftree.NodeID) bool {
		if found || id == decl {
			return false
		}
		if text, ok := t.Attr(id, "text"); ok && id != unit {
			// Skip the unit head: dummy args are handled separately and a
			// head mention alone is not a use.
			if s, _ := t.Attr(id, "stmt"); s != "unit-head" {
				if re.MatchString(text) {
					found = true
					return false
				}
			}
		}
		return true
	})
	return found
}

// rewriteDecl rebuilds a declaration's text with only the kept entities.
func rewriteDecl(t *ftree.Tree, decl ftree.NodeID, kept []string) error {
	text, _ := t.Attr(decl, "text")
	spec, _ := t.Attr(decl, "type")
	entities, _ := t.Attr(decl, "entities")

	keptSet := make(map[string]bool, len(kept))
	for _, k := range kept {
		keptSet[strings.ToLower(k)] = true
	}
	var keptEntities []string
	for _, e := range fortran.SplitEntities(entities) {
		if keptSet[strings.ToLower(fortran.EntityName(e))] {
			keptEntities = append(keptEntities, e)
		}
	}

	if err := t.SetAttr(decl, "names", strings.Join(kept, ",")); err != nil {
		return err
	}
	if err := t.SetAttr(decl, "entities", strings.Join(keptEntities, ", ")); err != nil {
		return err
	}
	return t.SetAttr(decl, "text",
		fortran.Indent(text)+spec+" :: "+strings.Join(keptEntities, ", "))
}
