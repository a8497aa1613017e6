// Package ftree implements the mutable syntax tree that rewrite passes
// operate on. Nodes live in an arena owned by the Tree and are addressed by
// NodeID handles; parent and child links are stored as indices, so the tree
// cannot form ownership cycles and destroying the Tree releases every node.
package ftree

import (
	"errors"
	"fmt"
)

// ErrInvalidNodeReference is returned when a handle refers to a node that
// was removed, or that never existed in this tree.
var ErrInvalidNodeReference = errors.New("ftree: invalid node reference")

// Kind classifies a node.
type Kind uint8

const (
	KindRoot Kind = iota
	KindUnit       // program unit: program, module, subroutine, function
	KindDecl       // declaration statement (type decl, use, implicit, parameter)
	KindStmt       // executable statement or construct container
	KindExpr       // expression attached to a statement (condition, arg list)
	KindComment    // comment or blank line
	KindDirective  // compiler directive line (!$acc, !$omp)
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindUnit:
		return "unit"
	case KindDecl:
		return "decl"
	case KindStmt:
		return "stmt"
	case KindExpr:
		return "expr"
	case KindComment:
		return "comment"
	case KindDirective:
		return "directive"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// NodeID is a handle into a Tree's node arena. Handles are only meaningful
// for the Tree that issued them and become stale when the node is removed.
type NodeID int32

// InvalidID is the zero-value-adjacent sentinel for "no node".
const InvalidID NodeID = -1

type node struct {
	kind     Kind
	attrs    map[string]string
	parent   NodeID
	children []NodeID
	alive    bool
}

// Tree owns an arena of nodes rooted at Root(). Child order is source order
// and is semantically significant for unparsing.
type Tree struct {
	nodes []node
	root  NodeID
}

// New creates an empty tree containing only the root node.
func New() *Tree {
	t := &Tree{}
	t.root = t.alloc(KindRoot, nil)
	t.nodes[t.root].parent = InvalidID
	return t
}

// Root returns the root node handle.
func (t *Tree) Root() NodeID { return t.root }

// Len returns the number of live nodes, root included.
func (t *Tree) Len() int {
	n := 0
	for i := range t.nodes {
		if t.nodes[i].alive {
			n++
		}
	}
	return n
}

func (t *Tree) alloc(kind Kind, attrs map[string]string) NodeID {
	id := NodeID(len(t.nodes))
	t.nodes = append(t.nodes, node{
		kind:   kind,
		attrs:  attrs,
		parent: InvalidID,
		alive:  true,
	})
	return id
}

// NewNode creates a detached node. It belongs to this tree but has no parent
// until inserted with AppendChild, InsertChild, or Replace.
func (t *Tree) NewNode(kind Kind, attrs map[string]string) NodeID {
	cp := make(map[string]string, len(attrs))
	for k, v := range attrs {
		cp[k] = v
	}
	return t.alloc(kind, cp)
}

func (t *Tree) deref(id NodeID) (*node, error) {
	if id < 0 || int(id) >= len(t.nodes) || !t.nodes[id].alive {
		return nil, fmt.Errorf("%w: node %d", ErrInvalidNodeReference, id)
	}
	return &t.nodes[id], nil
}

// Valid reports whether id refers to a live node of this tree.
func (t *Tree) Valid(id NodeID) bool {
	return id >= 0 && int(id) < len(t.nodes) && t.nodes[id].alive
}

// Kind returns the node's kind.
func (t *Tree) Kind(id NodeID) (Kind, error) {
	n, err := t.deref(id)
	if err != nil {
		return 0, err
	}
	return n.kind, nil
}

// Attr returns one attribute value. The second result is false when the
// attribute is absent (or the handle is stale).
func (t *Tree) Attr(id NodeID, key string) (string, bool) {
	n, err := t.deref(id)
	if err != nil {
		return "", false
	}
	v, ok := n.attrs[key]
	return v, ok
}

// Attrs returns a copy of the node's attribute map.
func (t *Tree) Attrs(id NodeID) (map[string]string, error) {
	n, err := t.deref(id)
	if err != nil {
		return nil, err
	}
	cp := make(map[string]string, len(n.attrs))
	for k, v := range n.attrs {
		cp[k] = v
	}
	return cp, nil
}

// SetAttr sets or replaces one attribute.
func (t *Tree) SetAttr(id NodeID, key, value string) error {
	n, err := t.deref(id)
	if err != nil {
		return err
	}
	if n.attrs == nil {
		n.attrs = make(map[string]string, 1)
	}
	n.attrs[key] = value
	return nil
}

// DelAttr removes one attribute if present.
func (t *Tree) DelAttr(id NodeID, key string) error {
	n, err := t.deref(id)
	if err != nil {
		return err
	}
	delete(n.attrs, key)
	return nil
}

// Parent returns the parent handle, or InvalidID for the root.
func (t *Tree) Parent(id NodeID) (NodeID, error) {
	n, err := t.deref(id)
	if err != nil {
		return InvalidID, err
	}
	return n.parent, nil
}

// Children returns a copy of the node's ordered child list.
func (t *Tree) Children(id NodeID) ([]NodeID, error) {
	n, err := t.deref(id)
	if err != nil {
		return nil, err
	}
	out := make([]NodeID, len(n.children))
	copy(out, n.children)
	return out, nil
}

// ChildCount returns the number of children without copying.
func (t *Tree) ChildCount(id NodeID) (int, error) {
	n, err := t.deref(id)
	if err != nil {
		return 0, err
	}
	return len(n.children), nil
}
