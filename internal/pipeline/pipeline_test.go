package pipeline

import (
	"errors"
	"strings"
	"testing"

	"github.com/fortree/fortree/internal/ftree"
	"github.com/fortree/fortree/internal/pass"
)

// countdownPass reports Changed until a tree attribute reaches zero, a
// minimal stand-in for a rewriter that converges after a few rounds.
type countdownPass struct {
	name     string
	requires []string
	provides []string
}

func (p *countdownPass) Name() string       { return p.name }
func (p *countdownPass) Kind() pass.Kind    { return pass.Rewriter }
func (p *countdownPass) Requires() []string { return p.requires }
func (p *countdownPass) Provides() []string { return p.provides }

func (p *countdownPass) Apply(t *ftree.Tree, _ pass.Config) pass.Result {
	v, _ := t.Attr(t.Root(), p.name)
	switch v {
	case "", "0":
		return pass.NoChange()
	case "1":
		_ = t.SetAttr(t.Root(), p.name, "0")
	case "2":
		_ = t.SetAttr(t.Root(), p.name, "1")
	case "3":
		_ = t.SetAttr(t.Root(), p.name, "2")
	}
	return pass.DidChange("ticked " + p.name)
}

type failingPass struct {
	kind pass.Kind
}

func (p *failingPass) Name() string       { return "always-fails" }
func (p *failingPass) Kind() pass.Kind    { return p.kind }
func (p *failingPass) Requires() []string { return nil }
func (p *failingPass) Provides() []string { return nil }
func (p *failingPass) Apply(*ftree.Tree, pass.Config) pass.Result {
	return pass.Fail(errors.New("boom"))
}

func TestParseSpec(t *testing.T) {
	data := []byte(`
name: cleanup
max_fixpoint_iterations: 5
passes:
  - name: delete-calls
    options: {callee: DR_HOOK}
  - fixpoint:
      - name: remove-unused-decls
  - name: well-formed
`)
	spec, err := ParseSpec(data)
	if err != nil {
		t.Fatalf("ParseSpec: %v", err)
	}
	if spec.Name != "cleanup" || spec.MaxFixpointIterations != 5 {
		t.Errorf("header = %q/%d", spec.Name, spec.MaxFixpointIterations)
	}
	if len(spec.Passes) != 3 {
		t.Fatalf("passes = %d", len(spec.Passes))
	}
	if spec.Passes[0].Options["callee"] != "DR_HOOK" {
		t.Errorf("options = %v", spec.Passes[0].Options)
	}
	if len(spec.Passes[1].Fixpoint) != 1 {
		t.Errorf("fixpoint = %v", spec.Passes[1].Fixpoint)
	}
}

func TestParseSpecRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"no passes", "name: empty\n"},
		{"name and fixpoint", "passes:\n  - name: x\n    fixpoint:\n      - name: y\n"},
		{"neither", "passes:\n  - options: {a: b}\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseSpec([]byte(tc.data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewRejectsUnknownPass(t *testing.T) {
	ctx := pass.NewContext(&countdownPass{name: "tick"})
	_, err := New(ctx, &Spec{Name: "p", Passes: []StepSpec{{Name: "no-such-pass"}}})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "no-such-pass") {
		t.Errorf("err = %v", err)
	}
	// The error lists what is available.
	if !strings.Contains(err.Error(), "tick") {
		t.Errorf("error should name available passes: %v", err)
	}
}

func TestNewRejectsUnmetPrecondition(t *testing.T) {
	ctx := pass.NewContext(
		&countdownPass{name: "needs-inv", requires: []string{"some-invariant"}},
		&countdownPass{name: "gives-inv", provides: []string{"some-invariant"}},
	)

	// Required invariant provided by no preceding pass.
	_, err := New(ctx, &Spec{Name: "p", Passes: []StepSpec{{Name: "needs-inv"}}})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "some-invariant") {
		t.Errorf("err = %v", err)
	}

	// Same passes in a satisfying order construct fine.
	_, err = New(ctx, &Spec{Name: "p", Passes: []StepSpec{{Name: "gives-inv"}, {Name: "needs-inv"}}})
	if err != nil {
		t.Errorf("satisfied ordering rejected: %v", err)
	}
}

func TestNewWarnsOnContradictionOnly(t *testing.T) {
	// A "!inv" precondition contradicted by an earlier pass is a warning,
	// never a construction failure.
	ctx := pass.NewContext(
		&countdownPass{name: "gives-inv", provides: []string{"some-invariant"}},
		&countdownPass{name: "shuns-inv", requires: []string{"!some-invariant"}},
	)
	_, err := New(ctx, &Spec{Name: "p", Passes: []StepSpec{{Name: "gives-inv"}, {Name: "shuns-inv"}}})
	if err != nil {
		t.Errorf("contradiction must not fail construction: %v", err)
	}
}

func TestRunSequentialAndLog(t *testing.T) {
	ctx := pass.NewContext(
		&countdownPass{name: "a"},
		&countdownPass{name: "b"},
	)
	p, err := New(ctx, &Spec{Name: "p", Passes: []StepSpec{{Name: "a"}, {Name: "b"}}})
	if err != nil {
		t.Fatal(err)
	}
	tree := ftree.New()
	_ = tree.SetAttr(tree.Root(), "a", "1")

	log, err := p.Run(tree)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(log) != 2 {
		t.Fatalf("log = %v", log)
	}
	if log[0].Pass != "a" || log[0].Status != pass.Changed {
		t.Errorf("entry 0 = %+v", log[0])
	}
	if log[1].Pass != "b" || log[1].Status != pass.Unchanged {
		t.Errorf("entry 1 = %+v", log[1])
	}
}

func TestRunAbortsOnFailure(t *testing.T) {
	ctx := pass.NewContext(&failingPass{kind: pass.Rewriter}, &countdownPass{name: "after"})
	p, err := New(ctx, &Spec{Name: "p", Passes: []StepSpec{{Name: "always-fails"}, {Name: "after"}}})
	if err != nil {
		t.Fatal(err)
	}
	log, err := p.Run(ftree.New())
	if err == nil {
		t.Fatal("expected failure")
	}
	var pe *PassError
	if !errors.As(err, &pe) || pe.Pass != "always-fails" {
		t.Errorf("err = %v", err)
	}
	if len(log) != 1 {
		t.Errorf("later passes must not run after a failure, log = %v", log)
	}
}

func TestRunFixpointConverges(t *testing.T) {
	ctx := pass.NewContext(&countdownPass{name: "tick"})
	p, err := New(ctx, &Spec{Name: "p", Passes: []StepSpec{
		{Fixpoint: []StepSpec{{Name: "tick"}}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	tree := ftree.New()
	_ = tree.SetAttr(tree.Root(), "tick", "3")

	log, err := p.Run(tree)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Rounds 1-3 change, round 4 confirms the fixpoint.
	if len(log) != 4 {
		t.Fatalf("expected 4 rounds, log = %v", log)
	}
	if log[3].Status != pass.Unchanged || log[3].Round != 4 {
		t.Errorf("final entry = %+v", log[3])
	}
	if v, _ := tree.Attr(tree.Root(), "tick"); v != "0" {
		t.Errorf("tick = %q", v)
	}
}

func TestRunFixpointBoundExceeded(t *testing.T) {
	ctx := pass.NewContext(&countdownPass{name: "tick"})
	p, err := New(ctx, &Spec{Name: "p", Passes: []StepSpec{
		{Fixpoint: []StepSpec{{Name: "tick"}}, MaxIterations: 2},
	}})
	if err != nil {
		t.Fatal(err)
	}
	tree := ftree.New()
	_ = tree.SetAttr(tree.Root(), "tick", "3")

	_, err = p.Run(tree)
	if !errors.Is(err, ErrFixpointNotReached) {
		t.Errorf("err = %v, want ErrFixpointNotReached", err)
	}
}

func TestValidatorFailureCarriesKind(t *testing.T) {
	ctx := pass.NewContext(&failingPass{kind: pass.Validator})
	p, err := New(ctx, &Spec{Name: "p", Passes: []StepSpec{{Name: "always-fails"}}})
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Run(ftree.New())
	var pe *PassError
	if !errors.As(err, &pe) || pe.Kind != pass.Validator {
		t.Errorf("err = %v", err)
	}
}
