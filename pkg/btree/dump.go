package btree

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// Dump writes a read-only in-order diagnostic walk of the tree to w: one
// line per node, indented by depth, showing the node's kind and key
// boundaries. Used by tests to assert tree shape after splits/merges.
func (t *Tree) Dump(w io.Writer) error {
	return dumpNode(w, t.root.Load(), 0)
}

func dumpNode(w io.Writer, n *Node, depth int) error {
	indent := strings.Repeat("  ", depth)
	switch {
	case n.IsExternal():
		_, err := fmt.Fprintf(w, "%sexternal keys=%d [%s..%s]\n",
			indent, len(n.keys), shortKey(firstOrNil(n.keys)), shortKey(lastOrNil(n.keys)))
		return err
	case n.IsInternal():
		if _, err := fmt.Fprintf(w, "%sinternal children=%d\n", indent, len(n.children)); err != nil {
			return err
		}
		for _, c := range n.children {
			if err := dumpNode(w, c, depth+1); err != nil {
				return err
			}
		}
		return nil
	case n.IsEmpty():
		_, err := fmt.Fprintf(w, "%sempty\n", indent)
		return err
	default:
		_, err := fmt.Fprintf(w, "%snone\n", indent)
		return err
	}
}

func firstOrNil(keys []EntryKey) EntryKey {
	if len(keys) == 0 {
		return nil
	}
	return keys[0]
}

func lastOrNil(keys []EntryKey) EntryKey {
	if len(keys) == 0 {
		return nil
	}
	return keys[len(keys)-1]
}

func shortKey(k EntryKey) string {
	if k == nil {
		return "-"
	}
	if len(k) > 8 {
		k = k[:8]
	}
	return hex.EncodeToString(k)
}

// Reconstruct rebuilds the internal-node layer above an already-ordered
// run of external leaves, used after a pkg/backup replay has restored
// leaf-level cells but left no in-memory index above them. leaves must
// already be linked via their next/prev pointers in ascending key order;
// ownership of the leaf chain transfers to the returned Tree.
func Reconstruct(leaves []*Node) *Tree {
	if len(leaves) == 0 {
		return New()
	}
	level := leaves
	for _, l := range level {
		l.boundKey = l.firstKey()
	}
	for len(level) > 1 {
		level = buildParentLevel(level)
	}
	t := &Tree{}
	t.root.Store(level[0])
	return t
}

// buildParentLevel groups a level's nodes into internal parents of at
// most NumPtrs children each, linking rightNext/rightBound across parent
// siblings the same way splitInternal does.
func buildParentLevel(level []*Node) []*Node {
	var parents []*Node
	for i := 0; i < len(level); i += NumPtrs {
		end := i + NumPtrs
		if end > len(level) {
			end = len(level)
		}
		p := newInternal()
		p.children = append(p.children, level[i:end]...)
		p.boundKey = p.firstKey()
		parents = append(parents, p)
	}
	for i, p := range parents {
		if i+1 < len(parents) {
			p.rightNext = parents[i+1]
			p.rightBound = parents[i+1].firstKey()
		}
	}
	return parents
}
