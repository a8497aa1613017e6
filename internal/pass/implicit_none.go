package pass

import (
	"strings"

	"github.com/fortree/fortree/internal/ftree"
)

// ImplicitNone reports program units that lack an IMPLICIT NONE statement.
// It never mutates the tree.
type ImplicitNone struct{}

func (*ImplicitNone) Name() string       { return "implicit-none" }
func (*ImplicitNone) Kind() Kind         { return Finder }
func (*ImplicitNone) Requires() []string { return nil }
func (*ImplicitNone) Provides() []string { return nil }

func (*ImplicitNone) Apply(t *ftree.Tree, _ Config) Result {
	units, err := t.Find(t.Root(), ftree.ByKind(ftree.KindUnit))
	if err != nil {
		return Fail(err)
	}

	var diags []Diagnostic
	for _, unit := range units {
		children, err := t.Children(unit)
		if err != nil {
			return Fail(err)
		}
		found := false
		for _, c := range children {
			if d, _ := t.Attr(c, "decl"); d != "implicit" {
				continue
			}
			if text, _ := t.Attr(c, "text"); strings.Contains(strings.ToLower(text), "none") {
				found = true
				break
			}
		}
		if !found {
			diags = append(diags, Diagnostic{
				Scope:   ScopePath(t, unit),
				Message: "missing IMPLICIT NONE",
			})
		}
	}
	return Result{Status: Unchanged, Diagnostics: diags}
}

// ScopePath renders a unit's scope path in module:M/sub:S form.
func ScopePath(t *ftree.Tree, unit ftree.NodeID) string {
	var parts []string
	for id := unit; id != ftree.InvalidID; {
		k, err := t.Kind(id)
		if err != nil {
			break
		}
		if k == ftree.KindUnit {
			u, _ := t.Attr(id, "unit")
			name, _ := t.Attr(id, "name")
			parts = append([]string{scopeKind(u) + ":" + strings.ToUpper(name)}, parts...)
		}
		p, err := t.Parent(id)
		if err != nil {
			break
		}
		id = p
	}
	return strings.Join(parts, "/")
}

func scopeKind(unit string) string {
	switch unit {
	case "subroutine":
		return "sub"
	case "function":
		return "func"
	case "program":
		return "prog"
	}
	return unit
}
