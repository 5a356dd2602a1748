package mst

import (
	"context"
)

// Loads the entire tree and checks every structural rule: key order and uniqueness, layer assignment, no adjacent or empty subtrees, and a trimmed root. Failures are returned as [StructuralError].
func (t *Tree) Verify(ctx context.Context) error {
	entries, err := t.root.getEntries(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		// entire tree is empty
		return nil
	}
	if len(entries) == 1 && entries[0].IsTree() {
		return structuralErrorf("top of tree is just a pointer to child")
	}
	layer, err := t.root.getLayer(ctx)
	if err != nil {
		return err
	}
	var lastKey string
	return t.root.verifyStructure(ctx, layer, &lastKey)
}

func (n *Node) verifyStructure(ctx context.Context, layer int, lastKey *string) error {
	entries, err := n.getEntries(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return structuralErrorf("empty tree node")
	}
	nodeLayer, err := n.getLayer(ctx)
	if err != nil {
		return err
	}
	if nodeLayer != layer {
		return structuralErrorf("node has incorrect layer: %d (expected %d)", nodeLayer, layer)
	}

	lastWasTree := false
	for _, e := range entries {
		switch e.Kind {
		case EntryTree:
			if lastWasTree {
				return structuralErrorf("sibling subtrees in entries list")
			}
			lastWasTree = true
			if layer == 0 {
				return structuralErrorf("subtree below layer zero")
			}
			if err := e.Tree.verifyStructure(ctx, layer-1, lastKey); err != nil {
				return err
			}
		case EntryLeaf:
			lastWasTree = false
			if *lastKey != "" && e.Key <= *lastKey {
				return structuralErrorf("out of order or duplicate key: %q", e.Key)
			}
			*lastKey = e.Key
			if kl := LeadingZerosOnHash(e.Key); kl != layer {
				return structuralErrorf("wrong layer for key %q: %d", e.Key, kl)
			}
		default:
			return structuralErrorf("entry was neither subtree nor leaf")
		}
	}
	return nil
}
