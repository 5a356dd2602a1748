package mst

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/ipfs/go-cid"
	"github.com/xlab/treeprint"
)

func DebugPrintMap(w io.Writer, m map[string]cid.Cid) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%s\n", k, m[k])
	}
}

// Prints the full structure of the tree, loading any unresolved nodes.
func DebugPrintTree(ctx context.Context, w io.Writer, t *Tree) error {
	root, err := t.RootCID()
	if err != nil {
		return err
	}
	layer, err := t.Height(ctx)
	if err != nil {
		return err
	}
	out := treeprint.NewWithRoot(debugNodeLabel(root, layer))
	if err := debugWalkNode(ctx, t.root, out); err != nil {
		return err
	}
	_, err = io.WriteString(w, out.String())
	return err
}

func debugNodeLabel(c cid.Cid, layer int) string {
	s := c.String()
	return fmt.Sprintf("[…%s]─◉ layer=%d", s[len(s)-7:], layer)
}

func debugWalkNode(ctx context.Context, n *Node, branch treeprint.Tree) error {
	entries, err := n.getEntries(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsLeaf() {
			branch.AddNode(fmt.Sprintf("%s -> %s (%d)", e.Key, e.Val, LeadingZerosOnHash(e.Key)))
			continue
		}
		c, err := e.Tree.getPointer()
		if err != nil {
			return err
		}
		layer, err := e.Tree.getLayer(ctx)
		if err != nil {
			return err
		}
		if err := debugWalkNode(ctx, e.Tree, branch.AddBranch(debugNodeLabel(c, layer))); err != nil {
			return err
		}
	}
	return nil
}
