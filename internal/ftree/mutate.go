package ftree

import "fmt"

// AppendChild attaches a detached node as the last child of parent.
func (t *Tree) AppendChild(parent, child NodeID) error {
	n, err := t.deref(parent)
	if err != nil {
		return err
	}
	return t.insertAt(parent, n, len(n.children), child)
}

// InsertChild attaches a detached node among parent's children at pos.
// pos may range from 0 to len(children) inclusive.
func (t *Tree) InsertChild(parent NodeID, pos int, child NodeID) error {
	n, err := t.deref(parent)
	if err != nil {
		return err
	}
	if pos < 0 || pos > len(n.children) {
		return fmt.Errorf("ftree: insert position %d out of range [0,%d]", pos, len(n.children))
	}
	return t.insertAt(parent, n, pos, child)
}

// InsertBefore attaches a detached node as the sibling immediately
// preceding ref.
func (t *Tree) InsertBefore(ref, child NodeID) error {
	rn, err := t.deref(ref)
	if err != nil {
		return err
	}
	if rn.parent == InvalidID {
		return fmt.Errorf("ftree: cannot insert before the root")
	}
	parent := rn.parent
	pn := &t.nodes[parent]
	pos := childIndex(pn, ref)
	return t.insertAt(parent, pn, pos, child)
}

func (t *Tree) insertAt(parent NodeID, pn *node, pos int, child NodeID) error {
	cn, err := t.deref(child)
	if err != nil {
		return err
	}
	if cn.parent != InvalidID {
		return fmt.Errorf("ftree: node %d already has a parent", child)
	}
	if child == t.root {
		return fmt.Errorf("ftree: cannot insert the root node")
	}
	// An ancestor inserted under its own descendant would form a cycle.
	for a := parent; a != InvalidID; a = t.nodes[a].parent {
		if a == child {
			return fmt.Errorf("ftree: node %d is an ancestor of %d", child, parent)
		}
	}
	pn.children = append(pn.children, InvalidID)
	copy(pn.children[pos+1:], pn.children[pos:])
	pn.children[pos] = child
	cn.parent = parent
	return nil
}

// Remove detaches id from its parent and invalidates the whole subtree.
// Handles into the removed subtree become stale and fail with
// ErrInvalidNodeReference on the next dereference.
func (t *Tree) Remove(id NodeID) error {
	n, err := t.deref(id)
	if err != nil {
		return err
	}
	if id == t.root {
		return fmt.Errorf("ftree: cannot remove the root")
	}
	if n.parent != InvalidID {
		pn := &t.nodes[n.parent]
		pn.children = deleteChild(pn.children, id)
	}
	t.kill(id)
	return nil
}

// Replace removes old and splices a detached subtree rooted at repl into its
// position. Handles into the old subtree become stale.
func (t *Tree) Replace(old, repl NodeID) error {
	on, err := t.deref(old)
	if err != nil {
		return err
	}
	rn, err := t.deref(repl)
	if err != nil {
		return err
	}
	if old == t.root {
		return fmt.Errorf("ftree: cannot replace the root")
	}
	if rn.parent != InvalidID {
		return fmt.Errorf("ftree: replacement node %d already has a parent", repl)
	}
	parent := on.parent
	pn := &t.nodes[parent]
	pos := childIndex(pn, old)
	pn.children[pos] = repl
	rn.parent = parent
	on.parent = InvalidID
	t.kill(old)
	return nil
}

// Detach removes id from its parent but keeps the subtree alive so it can be
// re-inserted elsewhere in the same tree.
func (t *Tree) Detach(id NodeID) error {
	n, err := t.deref(id)
	if err != nil {
		return err
	}
	if id == t.root {
		return fmt.Errorf("ftree: cannot detach the root")
	}
	if n.parent != InvalidID {
		pn := &t.nodes[n.parent]
		pn.children = deleteChild(pn.children, id)
		n.parent = InvalidID
	}
	return nil
}

func (t *Tree) kill(id NodeID) {
	n := &t.nodes[id]
	for _, c := range n.children {
		t.kill(c)
	}
	n.alive = false
	n.attrs = nil
	n.children = nil
	n.parent = InvalidID
}

func childIndex(pn *node, id NodeID) int {
	for i, c := range pn.children {
		if c == id {
			return i
		}
	}
	return -1
}

func deleteChild(children []NodeID, id NodeID) []NodeID {
	for i, c := range children {
		if c == id {
			return append(children[:i], children[i+1:]...)
		}
	}
	return children
}
