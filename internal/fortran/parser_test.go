package fortran

import (
	"errors"
	"strings"
	"testing"

	"github.com/fortree/fortree/internal/ftree"
)

const sampleSource = `MODULE MODE_TURB
  USE MODD_CST, ONLY: XG, XRD
  IMPLICIT NONE

CONTAINS

  SUBROUTINE TURB(KLON, KLEV, PTEMP)
    INTEGER, INTENT(IN) :: KLON
    INTEGER, INTENT(IN) :: KLEV
    REAL, INTENT(INOUT) :: PTEMP(KLON, KLEV)
    INTEGER :: JI, JK
    REAL :: ZTMP

    IF (LHOOK) CALL DR_HOOK('TURB', 0, ZHOOK_HANDLE)

    ! main loop
    DO JK = 1, KLEV
      DO JI = 1, KLON
        PTEMP(JI, JK) = PTEMP(JI, JK) + &
          & XG * XRD
      END DO
    END DO

    IF (LHOOK) CALL DR_HOOK('TURB', 1, ZHOOK_HANDLE)
  END SUBROUTINE TURB

END MODULE MODE_TURB
`

func mustParse(t *testing.T, source string) *ftree.Tree {
	t.Helper()
	tree, err := Parse([]byte(source))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return tree
}

func TestRoundTripIdentity(t *testing.T) {
	tree := mustParse(t, sampleSource)
	out, err := Unparse(tree)
	if err != nil {
		t.Fatalf("Unparse: %v", err)
	}
	if string(out) != sampleSource {
		t.Errorf("round trip diverged:\n--- in ---\n%s\n--- out ---\n%s", sampleSource, out)
	}
}

func TestRoundTripPreservesTexture(t *testing.T) {
	source := "program p\n" +
		"  ! a comment with   odd    spacing\n" +
		"\n" +
		"  x = 1.0   ! trailing comment\n" +
		"  CALL Mixed_Case_Sub(x, &\n" +
		"    & y)\n" +
		"end program p\n"
	tree := mustParse(t, source)
	out, err := Unparse(tree)
	if err != nil {
		t.Fatalf("Unparse: %v", err)
	}
	if string(out) != source {
		t.Errorf("round trip diverged:\n%s", out)
	}
}

func TestParseUnitStructure(t *testing.T) {
	tree := mustParse(t, sampleSource)

	mods, err := tree.Find(tree.Root(), ftree.ByAttr("unit", "module"))
	if err != nil {
		t.Fatal(err)
	}
	if len(mods) != 1 {
		t.Fatalf("expected 1 module, got %d", len(mods))
	}
	if name, _ := tree.Attr(mods[0], "name"); name != "MODE_TURB" {
		t.Errorf("module name = %q", name)
	}

	subs, err := tree.Find(tree.Root(), ftree.ByAttr("unit", "subroutine"))
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 1 {
		t.Fatalf("expected 1 subroutine, got %d", len(subs))
	}
	parent, _ := tree.Parent(subs[0])
	if parent != mods[0] {
		t.Error("subroutine should nest inside the module")
	}
}

func TestParseUseAndDecls(t *testing.T) {
	tree := mustParse(t, sampleSource)

	uses, err := tree.Find(tree.Root(), ftree.ByAttr("decl", "use"))
	if err != nil {
		t.Fatal(err)
	}
	if len(uses) != 1 {
		t.Fatalf("expected 1 use, got %d", len(uses))
	}
	if mod, _ := tree.Attr(uses[0], "module"); mod != "MODD_CST" {
		t.Errorf("use module = %q", mod)
	}
	if only, _ := tree.Attr(uses[0], "only"); only != "XG, XRD" {
		t.Errorf("use only = %q", only)
	}

	decls, err := tree.Find(tree.Root(), ftree.ByAttr("decl", "var"))
	if err != nil {
		t.Fatal(err)
	}
	var withIntent, local int
	for _, d := range decls {
		if _, ok := tree.Attr(d, "intent"); ok {
			withIntent++
		} else {
			local++
		}
	}
	if withIntent != 3 {
		t.Errorf("expected 3 intent declarations, got %d", withIntent)
	}
	if local != 2 {
		t.Errorf("expected 2 local declarations, got %d", local)
	}
}

func TestParseOnelineIf(t *testing.T) {
	tree := mustParse(t, sampleSource)

	oneliners, err := tree.Find(tree.Root(), ftree.ByAttr("stmt", "if-oneline"))
	if err != nil {
		t.Fatal(err)
	}
	if len(oneliners) != 2 {
		t.Fatalf("expected 2 one-line IFs, got %d", len(oneliners))
	}
	if cond, _ := tree.Attr(oneliners[0], "cond"); cond != "LHOOK" {
		t.Errorf("cond = %q", cond)
	}
	// The action child is classified as a call.
	calls, err := tree.Find(oneliners[0], ftree.ByAttr("stmt", "call"))
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 1 {
		t.Fatalf("expected classified call child, got %d", len(calls))
	}
	if name, _ := tree.Attr(calls[0], "name"); name != "DR_HOOK" {
		t.Errorf("call name = %q", name)
	}
	if _, ok := tree.Attr(calls[0], "text"); ok {
		t.Error("action child must not carry text; the container owns it")
	}
}

func TestParseNestedDo(t *testing.T) {
	tree := mustParse(t, sampleSource)
	loops, err := tree.Find(tree.Root(), ftree.ByAttr("construct", "do"))
	if err != nil {
		t.Fatal(err)
	}
	if len(loops) != 2 {
		t.Fatalf("expected 2 DO constructs, got %d", len(loops))
	}
	parent, _ := tree.Parent(loops[1])
	if parent != loops[0] {
		t.Error("inner DO should nest inside outer DO")
	}
}

func TestParseCallArgs(t *testing.T) {
	tree := mustParse(t, "subroutine s\n  call compute(a, b(1, 2), c)\nend subroutine s\n")
	calls, err := tree.Find(tree.Root(), ftree.ByAttr("stmt", "call"))
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if args, _ := tree.Attr(calls[0], "args"); args != "a, b(1, 2), c" {
		t.Errorf("args = %q", args)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name   string
		source string
	}{
		{"unterminated subroutine", "subroutine s\n  x = 1\n"},
		{"mismatched end", "subroutine s\n  do i = 1, 3\n  end if\nend subroutine s\n"},
		{"else outside if", "subroutine s\nelse\nend subroutine s\n"},
		{"end without open", "end do\n"},
		{"unbalanced if parens", "subroutine s\n  if (a .and. (b) x = 1\nend subroutine s\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.source))
			if !errors.Is(err, ErrParse) {
				t.Errorf("expected ErrParse, got %v", err)
			}
		})
	}
}

func TestKeywordPrefixedIdentifiers(t *testing.T) {
	// Identifiers that merely start with a statement keyword are plain
	// assignments, not declarations or construct heads.
	source := "subroutine s\n" +
		"  realistic = 1\n" +
		"  selector = 1\n" +
		"  associated_flag = 1\n" +
		"  interface_mod = 2\n" +
		"  elseif_count = 3\n" +
		"  integerize(4) = 5\n" +
		"end subroutine s\n"
	tree := mustParse(t, source)

	execs, err := tree.Find(tree.Root(), ftree.ByAttr("stmt", "exec"))
	if err != nil {
		t.Fatal(err)
	}
	if len(execs) != 6 {
		t.Errorf("expected 6 executable statements, got %d", len(execs))
	}
	decls, err := tree.Find(tree.Root(), ftree.ByAttr("decl", "var"))
	if err != nil {
		t.Fatal(err)
	}
	if len(decls) != 0 {
		for _, d := range decls {
			attrs, _ := tree.Attrs(d)
			t.Errorf("assignment misread as declaration: %v", attrs)
		}
	}

	out, err := Unparse(tree)
	if err != nil {
		t.Fatalf("Unparse: %v", err)
	}
	if string(out) != source {
		t.Errorf("round trip diverged:\n%s", out)
	}
}

func TestSelectInterfaceAssociateConstructs(t *testing.T) {
	source := "module m\n" +
		"  interface swap\n" +
		"    module procedure swap_i\n" +
		"  end interface swap\n" +
		"contains\n" +
		"  subroutine s(i, x)\n" +
		"    integer, intent(in) :: i\n" +
		"    real, intent(inout) :: x\n" +
		"    select case (i)\n" +
		"    case (1)\n" +
		"      x = 1.0\n" +
		"    end select\n" +
		"    associate (y => x)\n" +
		"      y = 2.0\n" +
		"    end associate\n" +
		"    if (i > 0) then\n" +
		"      x = 3.0\n" +
		"    else if (i < 0) then\n" +
		"      x = 4.0\n" +
		"    end if\n" +
		"  end subroutine s\n" +
		"end module m\n"
	tree := mustParse(t, source)

	for _, construct := range []string{"interface", "select", "associate", "if"} {
		found, err := tree.Find(tree.Root(), ftree.ByAttr("construct", construct))
		if err != nil {
			t.Fatal(err)
		}
		if len(found) != 1 {
			t.Errorf("expected 1 %s construct, got %d", construct, len(found))
		}
	}
	elseIfs, err := tree.Find(tree.Root(), ftree.ByAttr("stmt", "else-if"))
	if err != nil {
		t.Fatal(err)
	}
	if len(elseIfs) != 1 {
		t.Errorf("expected 1 else-if, got %d", len(elseIfs))
	}

	out, err := Unparse(tree)
	if err != nil {
		t.Fatalf("Unparse: %v", err)
	}
	if string(out) != source {
		t.Errorf("round trip diverged:\n%s", out)
	}
}

func TestUnparseRejectsEmptyContainer(t *testing.T) {
	tree := ftree.New()
	empty := tree.NewNode(ftree.KindStmt, map[string]string{"construct": "if"})
	if err := tree.AppendChild(tree.Root(), empty); err != nil {
		t.Fatal(err)
	}
	_, err := Unparse(tree)
	if !errors.Is(err, ErrUnparse) {
		t.Errorf("expected ErrUnparse, got %v", err)
	}
}

func TestEntityHelpers(t *testing.T) {
	ents := SplitEntities("ZTMP(KLON, KLEV), ZWORK, ZOUT(2) = 0.0")
	if len(ents) != 3 {
		t.Fatalf("expected 3 entities, got %v", ents)
	}
	if EntityName(ents[0]) != "ZTMP" {
		t.Errorf("EntityName = %q", EntityName(ents[0]))
	}
	if EntityName(" ZOUT(2) = 0.0") != "ZOUT" {
		t.Errorf("EntityName with initializer = %q", EntityName(" ZOUT(2) = 0.0"))
	}
	if Indent("    do i = 1, 2") != "    " {
		t.Errorf("Indent = %q", Indent("    do i = 1, 2"))
	}
	if !strings.HasPrefix(Indent("\t x = 1"), "\t") {
		t.Error("Indent should keep tabs")
	}
}
