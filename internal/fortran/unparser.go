package fortran

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fortree/fortree/internal/ftree"
)

// ErrUnparse marks a mutated tree that cannot be serialized back to source.
// Hitting it is a correctness bug in the pass that produced the tree.
var ErrUnparse = errors.New("fortran: unparse error")

// Unparse serializes a tree back to source text. Nodes carrying a "text"
// attribute emit it verbatim (their children are structural detail already
// covered by that text); container nodes recurse into their children in
// source order.
func Unparse(t *ftree.Tree) ([]byte, error) {
	var b strings.Builder
	if err := unparseChildren(t, t.Root(), &b); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

func unparseChildren(t *ftree.Tree, id ftree.NodeID, b *strings.Builder) error {
	children, err := t.Children(id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnparse, err)
	}
	for _, c := range children {
		if err := unparseNode(t, c, b); err != nil {
			return err
		}
	}
	return nil
}

func unparseNode(t *ftree.Tree, id ftree.NodeID, b *strings.Builder) error {
	kind, err := t.Kind(id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnparse, err)
	}
	if kind == ftree.KindExpr {
		// Expressions are query-only attachments; their text is part of the
		// owning statement.
		return nil
	}
	if text, ok := t.Attr(id, "text"); ok {
		b.WriteString(text)
		b.WriteByte('\n')
		return nil
	}
	switch kind {
	case ftree.KindUnit, ftree.KindStmt:
		n, err := t.ChildCount(id)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnparse, err)
		}
		if n == 0 {
			attrs, _ := t.Attrs(id)
			return fmt.Errorf("%w: %s node %d has neither text nor children (attrs %v)",
				ErrUnparse, kind, id, attrs)
		}
		return unparseChildren(t, id, b)
	default:
		return fmt.Errorf("%w: %s node %d has no text", ErrUnparse, kind, id)
	}
}
