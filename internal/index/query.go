package index

import (
	"fmt"
	"sort"
	"strings"
)

// ScopeInfo is one indexed program unit.
type ScopeInfo struct {
	File string
	Path string
	Kind string
	Name string
}

// Files returns every indexed file path, sorted.
func (ix *Index) Files() ([]string, error) {
	rows, err := ix.q.Query("SELECT path FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Scopes returns the program units a file defines, in insertion order.
func (ix *Index) Scopes(file string) ([]ScopeInfo, error) {
	rows, err := ix.q.Query("SELECT file, path, kind, name FROM scopes WHERE file=? ORDER BY id", file)
	if err != nil {
		return nil, fmt.Errorf("list scopes: %w", err)
	}
	defer rows.Close()
	var out []ScopeInfo
	for rows.Next() {
		var s ScopeInfo
		if err := rows.Scan(&s.File, &s.Path, &s.Kind, &s.Name); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// NeedsFile returns the files that must be compiled before the given file,
// following USE statements to the files defining the used modules. level
// bounds the transitive depth; level <= 0 means unlimited.
func (ix *Index) NeedsFile(path string, level int) ([]string, error) {
	return ix.fileClosure(path, level, ix.directNeeds)
}

// NeededByFile returns the files whose compilation depends on the given
// file, the inverse of NeedsFile.
func (ix *Index) NeededByFile(path string, level int) ([]string, error) {
	return ix.fileClosure(path, level, ix.directNeededBy)
}

// fileClosure expands one hop at a time until the level bound or a fixed
// point, whichever comes first. Cycles (mutual USE) terminate because
// visited files are never re-expanded.
func (ix *Index) fileClosure(path string, level int, next func(string) ([]string, error)) ([]string, error) {
	visited := map[string]bool{path: true}
	frontier := []string{path}
	var out []string
	for hop := 0; level <= 0 || hop < level; hop++ {
		var nextFrontier []string
		for _, f := range frontier {
			found, err := next(f)
			if err != nil {
				return nil, err
			}
			for _, g := range found {
				if !visited[g] {
					visited[g] = true
					out = append(out, g)
					nextFrontier = append(nextFrontier, g)
				}
			}
		}
		if len(nextFrontier) == 0 {
			break
		}
		frontier = nextFrontier
	}
	sort.Strings(out)
	return out, nil
}

func (ix *Index) directNeeds(file string) ([]string, error) {
	return ix.stringQuery(`
		SELECT DISTINCT def.file FROM scopes s
		JOIN uses u ON u.scope_id = s.id
		JOIN scopes def ON def.kind = 'module' AND def.name = u.module
		WHERE s.file = ? AND def.file != ?`, file, file)
}

func (ix *Index) directNeededBy(file string) ([]string, error) {
	return ix.stringQuery(`
		SELECT DISTINCT s.file FROM scopes s
		JOIN uses u ON u.scope_id = s.id
		JOIN scopes def ON def.kind = 'module' AND def.name = u.module
		WHERE def.file = ? AND s.file != ?`, file, file)
}

// CallsScopes returns the scope paths the given scope calls, transitively
// up to level hops. Callees with no indexed definition are reported by
// their bare upper-cased name.
func (ix *Index) CallsScopes(scopePath string, level int) ([]string, error) {
	return ix.scopeClosure(scopePath, level, ix.directCalls)
}

// CalledByScope returns the scope paths that call the given scope, the
// inverse of CallsScopes. The argument is a scope path; its final name
// component is what callers reference.
func (ix *Index) CalledByScope(scopePath string, level int) ([]string, error) {
	return ix.scopeClosure(scopePath, level, ix.directCallers)
}

func (ix *Index) scopeClosure(scopePath string, level int, next func(string) ([]string, error)) ([]string, error) {
	visited := map[string]bool{scopePath: true}
	frontier := []string{scopePath}
	var out []string
	for hop := 0; level <= 0 || hop < level; hop++ {
		var nextFrontier []string
		for _, sp := range frontier {
			found, err := next(sp)
			if err != nil {
				return nil, err
			}
			for _, g := range found {
				if !visited[g] {
					visited[g] = true
					out = append(out, g)
					// Unresolved callees have no outgoing edges to follow.
					if strings.Contains(g, ":") {
						nextFrontier = append(nextFrontier, g)
					}
				}
			}
		}
		if len(nextFrontier) == 0 {
			break
		}
		frontier = nextFrontier
	}
	sort.Strings(out)
	return out, nil
}

func (ix *Index) directCalls(scopePath string) ([]string, error) {
	callees, err := ix.stringQuery(`
		SELECT DISTINCT c.callee FROM calls c
		JOIN scopes s ON c.scope_id = s.id
		WHERE s.path = ?`, scopePath)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, callee := range callees {
		defs, err := ix.stringQuery(`
			SELECT path FROM scopes
			WHERE kind IN ('subroutine', 'function') AND name = ?`, callee)
		if err != nil {
			return nil, err
		}
		if len(defs) == 0 {
			out = append(out, callee)
			continue
		}
		out = append(out, defs...)
	}
	return out, nil
}

func (ix *Index) directCallers(scopePath string) ([]string, error) {
	name := scopeName(scopePath)
	return ix.stringQuery(`
		SELECT DISTINCT s.path FROM calls c
		JOIN scopes s ON c.scope_id = s.id
		WHERE c.callee = ?`, name)
}

// scopeName extracts the final name component of a scope path, e.g.
// "module:M/sub:S" yields "S".
func scopeName(scopePath string) string {
	last := scopePath
	if i := strings.LastIndex(scopePath, "/"); i >= 0 {
		last = scopePath[i+1:]
	}
	if i := strings.Index(last, ":"); i >= 0 {
		last = last[i+1:]
	}
	return strings.ToUpper(last)
}

func (ix *Index) stringQuery(query string, args ...any) ([]string, error) {
	rows, err := ix.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
