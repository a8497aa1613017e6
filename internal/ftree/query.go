package ftree

import "fmt"

// WalkFunc is called for each node during traversal.
// Return false to skip the node's children.
type WalkFunc func(id NodeID) bool

// Walk traverses the subtree rooted at id in depth-first source order.
// Walking is read-only; callers that mutate must collect handles first.
func (t *Tree) Walk(id NodeID, fn WalkFunc) error {
	n, err := t.deref(id)
	if err != nil {
		return err
	}
	if !fn(id) {
		return nil
	}
	// Copy: fn may be called on handles collected before a later mutation.
	children := make([]NodeID, len(n.children))
	copy(children, n.children)
	for _, c := range children {
		if t.Valid(c) {
			if err := t.Walk(c, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Predicate selects nodes during Find.
type Predicate func(t *Tree, id NodeID) bool

// ByKind matches nodes of one kind.
func ByKind(kind Kind) Predicate {
	return func(t *Tree, id NodeID) bool {
		k, err := t.Kind(id)
		return err == nil && k == kind
	}
}

// ByAttr matches nodes carrying an attribute with an exact value.
func ByAttr(key, value string) Predicate {
	return func(t *Tree, id NodeID) bool {
		v, ok := t.Attr(id, key)
		return ok && v == value
	}
}

// And combines predicates conjunctively.
func And(preds ...Predicate) Predicate {
	return func(t *Tree, id NodeID) bool {
		for _, p := range preds {
			if !p(t, id) {
				return false
			}
		}
		return true
	}
}

// Find returns all nodes under scope (scope included) matching pred, in
// source order.
func (t *Tree) Find(scope NodeID, pred Predicate) ([]NodeID, error) {
	var out []NodeID
	err := t.Walk(scope, func(id NodeID) bool {
		if pred(t, id) {
			out = append(out, id)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Ancestors returns the chain of parents from id's parent up to the root.
func (t *Tree) Ancestors(id NodeID) ([]NodeID, error) {
	n, err := t.deref(id)
	if err != nil {
		return nil, err
	}
	var out []NodeID
	for p := n.parent; p != InvalidID; p = t.nodes[p].parent {
		out = append(out, p)
	}
	return out, nil
}

// PrevSibling returns the sibling immediately before id, or InvalidID.
func (t *Tree) PrevSibling(id NodeID) (NodeID, error) {
	return t.sibling(id, -1)
}

// NextSibling returns the sibling immediately after id, or InvalidID.
func (t *Tree) NextSibling(id NodeID) (NodeID, error) {
	return t.sibling(id, +1)
}

func (t *Tree) sibling(id NodeID, delta int) (NodeID, error) {
	n, err := t.deref(id)
	if err != nil {
		return InvalidID, err
	}
	if n.parent == InvalidID {
		return InvalidID, nil
	}
	pn := &t.nodes[n.parent]
	i := childIndex(pn, id) + delta
	if i < 0 || i >= len(pn.children) {
		return InvalidID, nil
	}
	return pn.children[i], nil
}

// Validate checks structural well-formedness: every live node except the
// root has exactly one live parent that lists it exactly once, and no
// parent chain loops back on itself.
func (t *Tree) Validate() error {
	seen := make(map[NodeID]NodeID, len(t.nodes)) // child -> parent
	for id := range t.nodes {
		n := &t.nodes[id]
		if !n.alive {
			continue
		}
		for _, c := range n.children {
			if !t.Valid(c) {
				return fmt.Errorf("ftree: node %d lists dead child %d", id, c)
			}
			if p, dup := seen[c]; dup {
				return fmt.Errorf("ftree: node %d has two parents (%d and %d)", c, p, id)
			}
			seen[c] = NodeID(id)
			if t.nodes[c].parent != NodeID(id) {
				return fmt.Errorf("ftree: node %d parent link disagrees with child list of %d", c, id)
			}
		}
	}
	// Every reachable parent chain must terminate at the root.
	for id := range t.nodes {
		n := &t.nodes[id]
		if !n.alive || n.parent == InvalidID {
			continue
		}
		steps := 0
		for p := NodeID(id); p != InvalidID; p = t.nodes[p].parent {
			if steps++; steps > len(t.nodes) {
				return fmt.Errorf("ftree: parent cycle through node %d", id)
			}
		}
	}
	return nil
}
