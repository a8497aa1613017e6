package index

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/fortree/fortree/internal/fortran"
	"github.com/fortree/fortree/internal/ftree"
	"github.com/fortree/fortree/internal/pass"
)

// scopeFact is one program unit found in a file.
type scopeFact struct {
	path string // module:M/sub:S form
	kind string // program, module, subroutine, function
	name string // upper-cased
	uses []useFact
	call []string // upper-cased callee names
}

type useFact struct {
	module string // upper-cased
	only   string
}

// BuildFiles indexes every listed file, skipping files whose content hash
// is unchanged since the last run. It returns the number of files actually
// (re)indexed.
func (ix *Index) BuildFiles(paths []string) (int, error) {
	indexed := 0
	for _, p := range paths {
		changed, err := ix.IndexFile(p)
		if err != nil {
			return indexed, fmt.Errorf("index %s: %w", p, err)
		}
		if changed {
			indexed++
		}
	}
	slog.Info("index.build", "files", len(paths), "indexed", indexed)
	return indexed, nil
}

// IndexFile parses one file and replaces its rows in the database. Returns
// false without touching the database when the file's hash matches the
// stored one.
func (ix *Index) IndexFile(path string) (bool, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read: %w", err)
	}
	hash := fmt.Sprintf("%016x", xxh3.Hash(source))

	var stored string
	err = ix.q.QueryRow("SELECT hash FROM files WHERE path=?", path).Scan(&stored)
	if err == nil && stored == hash {
		return false, nil
	}

	tree, err := fortran.Parse(source)
	if err != nil {
		return false, fmt.Errorf("parse: %w", err)
	}
	facts := extractFacts(tree)

	err = ix.WithTransaction(func(tx *Index) error {
		if _, err := tx.q.Exec("DELETE FROM files WHERE path=?", path); err != nil {
			return err
		}
		now := time.Now().UTC().Format(time.RFC3339)
		if _, err := tx.q.Exec("INSERT INTO files (path, hash, indexed_at) VALUES (?, ?, ?)",
			path, hash, now); err != nil {
			return err
		}
		for _, sc := range facts {
			res, err := tx.q.Exec("INSERT INTO scopes (file, path, kind, name) VALUES (?, ?, ?, ?)",
				path, sc.path, sc.kind, sc.name)
			if err != nil {
				return err
			}
			scopeID, err := res.LastInsertId()
			if err != nil {
				return err
			}
			for _, u := range sc.uses {
				if _, err := tx.q.Exec("INSERT INTO uses (scope_id, module, only) VALUES (?, ?, ?)",
					scopeID, u.module, u.only); err != nil {
					return err
				}
			}
			for _, callee := range sc.call {
				if _, err := tx.q.Exec("INSERT INTO calls (scope_id, callee) VALUES (?, ?)",
					scopeID, callee); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	slog.Debug("index.file", "path", path, "scopes", len(facts))
	return true, nil
}

// extractFacts walks one parsed file and attributes every USE and CALL to
// its nearest enclosing program unit, so host-association is reflected in
// the index.
func extractFacts(t *ftree.Tree) []scopeFact {
	byUnit := make(map[ftree.NodeID]*scopeFact)
	var order []ftree.NodeID

	_ = t.Walk(t.Root(), func(id ftree.NodeID) bool {
		k, err := t.Kind(id)
		if err != nil {
			return true
		}
		switch k {
		case ftree.KindUnit:
			unit, _ := t.Attr(id, "unit")
			name, _ := t.Attr(id, "name")
			byUnit[id] = &scopeFact{
				path: pass.ScopePath(t, id),
				kind: unit,
				name: strings.ToUpper(name),
			}
			order = append(order, id)
		case ftree.KindDecl:
			if d, _ := t.Attr(id, "decl"); d != "use" {
				return true
			}
			sc := enclosingScope(t, id, byUnit)
			if sc == nil {
				return true
			}
			mod, _ := t.Attr(id, "module")
			only, _ := t.Attr(id, "only")
			sc.uses = append(sc.uses, useFact{module: strings.ToUpper(mod), only: only})
		case ftree.KindStmt:
			if s, _ := t.Attr(id, "stmt"); s != "call" {
				return true
			}
			sc := enclosingScope(t, id, byUnit)
			if sc == nil {
				return true
			}
			name, _ := t.Attr(id, "name")
			sc.call = append(sc.call, strings.ToUpper(name))
		}
		return true
	})

	facts := make([]scopeFact, 0, len(order))
	for _, id := range order {
		facts = append(facts, *byUnit[id])
	}
	return facts
}

func enclosingScope(t *ftree.Tree, id ftree.NodeID, byUnit map[ftree.NodeID]*scopeFact) *scopeFact {
	ancs, err := t.Ancestors(id)
	if err != nil {
		return nil
	}
	for _, anc := range ancs {
		if sc, ok := byUnit[anc]; ok {
			return sc
		}
	}
	return nil
}
