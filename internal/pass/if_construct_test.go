package pass

import (
	"strings"
	"testing"

	"github.com/fortree/fortree/internal/ftree"
)

func TestIfConstructRewritesOneliner(t *testing.T) {
	tree := parseSource(t, "subroutine s\n  if (x > 0) y = 1\nend subroutine s\n")
	p := &IfConstruct{}

	r := p.Apply(tree, nil)
	if r.Status != Changed {
		t.Fatalf("status = %s, err = %v", r.Status, r.Err)
	}
	out := unparseSource(t, tree)
	want := "subroutine s\n" +
		"  if (x > 0) then\n" +
		"    y = 1\n" +
		"  end if\n" +
		"end subroutine s\n"
	if out != want {
		t.Errorf("got:\n%s\nwant:\n%s", out, want)
	}
}

func TestIfConstructKeepsUpperCase(t *testing.T) {
	tree := parseSource(t, "SUBROUTINE S\n  IF (LHOOK) CALL DR_HOOK('S', 0, ZH)\nEND SUBROUTINE S\n")
	r := (&IfConstruct{}).Apply(tree, nil)
	if r.Status != Changed {
		t.Fatalf("status = %s", r.Status)
	}
	out := unparseSource(t, tree)
	if !strings.Contains(out, "IF (LHOOK) THEN") || !strings.Contains(out, "END IF") {
		t.Errorf("expected upper-case keywords:\n%s", out)
	}
}

func TestIfConstructBodyStaysClassified(t *testing.T) {
	tree := parseSource(t, "subroutine s\n  if (lhook) call dr_hook('S', 0, zh)\nend subroutine s\n")
	if r := (&IfConstruct{}).Apply(tree, nil); r.Status != Changed {
		t.Fatalf("status = %s", r.Status)
	}

	// The rewritten body is still findable as a call, so delete-calls can
	// run after this pass.
	calls, err := tree.Find(tree.Root(), ftree.ByAttr("stmt", "call"))
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 1 {
		t.Fatalf("expected 1 call in rewritten body, got %d", len(calls))
	}
	if name, _ := tree.Attr(calls[0], "name"); !strings.EqualFold(name, "dr_hook") {
		t.Errorf("call name = %q", name)
	}

	r := (&DeleteCalls{}).Apply(tree, Config{"callee": "dr_hook", "simplify": "true"})
	if r.Status != Changed {
		t.Fatalf("delete-calls after rewrite: %s", r.Status)
	}
	out := unparseSource(t, tree)
	if strings.Contains(out, "lhook") {
		t.Errorf("construct should be gone after simplify:\n%s", out)
	}
}

func TestIfConstructIdempotent(t *testing.T) {
	tree := parseSource(t, "subroutine s\n  if (x > 0) y = 1\nend subroutine s\n")
	p := &IfConstruct{}
	if r := p.Apply(tree, nil); r.Status != Changed {
		t.Fatalf("first apply: %s", r.Status)
	}
	if r := p.Apply(tree, nil); r.Status != Unchanged {
		t.Errorf("second apply: %s, want unchanged", r.Status)
	}
	if err := tree.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestIfConstructLeavesConstructsAlone(t *testing.T) {
	tree := parseSource(t, "subroutine s\n  if (x > 0) then\n    y = 1\n  end if\nend subroutine s\n")
	if r := (&IfConstruct{}).Apply(tree, nil); r.Status != Unchanged {
		t.Errorf("status = %s, want unchanged", r.Status)
	}
}
