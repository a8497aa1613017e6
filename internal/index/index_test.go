package index

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenMemory(t *testing.T) {
	ix, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	ix.Close()
}

// Three-file fixture: consts <- grid <- solver, with solver calling into
// grid's procedures.
func buildFixture(t *testing.T) (*Index, map[string]string) {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"modd_consts.f90": "module modd_consts\n" +
			"  real :: xg = 9.81\n" +
			"end module modd_consts\n",
		"mode_grid.f90": "module mode_grid\n" +
			"  use modd_consts\n" +
			"contains\n" +
			"  subroutine init_grid(n)\n" +
			"    integer, intent(in) :: n\n" +
			"    x = n\n" +
			"  end subroutine init_grid\n" +
			"end module mode_grid\n",
		"solver.f90": "subroutine solver\n" +
			"  use mode_grid, only: init_grid\n" +
			"  call init_grid(10)\n" +
			"  call external_lib()\n" +
			"end subroutine solver\n",
	}
	paths := make(map[string]string, len(files))
	for name, src := range files {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(src), 0o600); err != nil {
			t.Fatal(err)
		}
		paths[name] = p
	}

	ix, err := OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ix.Close() })
	all := []string{paths["modd_consts.f90"], paths["mode_grid.f90"], paths["solver.f90"]}
	if n, err := ix.BuildFiles(all); err != nil || n != 3 {
		t.Fatalf("BuildFiles: n = %d, err = %v", n, err)
	}
	return ix, paths
}

func TestBuildAndScopes(t *testing.T) {
	ix, paths := buildFixture(t)

	scopes, err := ix.Scopes(paths["mode_grid.f90"])
	if err != nil {
		t.Fatalf("Scopes: %v", err)
	}
	if len(scopes) != 2 {
		t.Fatalf("scopes = %+v", scopes)
	}
	if scopes[0].Path != "module:MODE_GRID" || scopes[0].Kind != "module" {
		t.Errorf("scope 0 = %+v", scopes[0])
	}
	if scopes[1].Path != "module:MODE_GRID/sub:INIT_GRID" {
		t.Errorf("scope 1 = %+v", scopes[1])
	}

	all, err := ix.Files()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("files = %v", all)
	}
}

func TestBuildSkipsUnchanged(t *testing.T) {
	ix, paths := buildFixture(t)
	n, err := ix.BuildFiles([]string{paths["solver.f90"]})
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("unchanged file reindexed %d times", n)
	}

	// Touching the content forces a reindex.
	if err := os.WriteFile(paths["solver.f90"],
		[]byte("subroutine solver\n  use mode_grid\nend subroutine solver\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	n, err = ix.BuildFiles([]string{paths["solver.f90"]})
	if err != nil || n != 1 {
		t.Fatalf("n = %d, err = %v", n, err)
	}
}

func TestNeedsFile(t *testing.T) {
	ix, paths := buildFixture(t)

	// One hop: solver needs mode_grid.
	needs, err := ix.NeedsFile(paths["solver.f90"], 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(needs) != 1 || needs[0] != paths["mode_grid.f90"] {
		t.Errorf("needs(1) = %v", needs)
	}

	// Unlimited: the consts module comes in transitively.
	needs, err = ix.NeedsFile(paths["solver.f90"], 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(needs) != 2 {
		t.Errorf("needs(0) = %v", needs)
	}
}

func TestNeededByFile(t *testing.T) {
	ix, paths := buildFixture(t)

	needed, err := ix.NeededByFile(paths["modd_consts.f90"], 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(needed) != 2 {
		t.Errorf("neededBy = %v", needed)
	}
}

func TestCallsScopes(t *testing.T) {
	ix, _ := buildFixture(t)

	calls, err := ix.CallsScopes("sub:SOLVER", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 2 {
		t.Fatalf("calls = %v", calls)
	}
	// Resolved callee by scope path, unresolved by bare name.
	var haveResolved, haveBare bool
	for _, c := range calls {
		switch c {
		case "module:MODE_GRID/sub:INIT_GRID":
			haveResolved = true
		case "EXTERNAL_LIB":
			haveBare = true
		}
	}
	if !haveResolved || !haveBare {
		t.Errorf("calls = %v", calls)
	}
}

func TestCalledByScope(t *testing.T) {
	ix, _ := buildFixture(t)

	callers, err := ix.CalledByScope("module:MODE_GRID/sub:INIT_GRID", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(callers) != 1 || callers[0] != "sub:SOLVER" {
		t.Errorf("callers = %v", callers)
	}
}
