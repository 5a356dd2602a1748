package mst

import (
	"context"

	"github.com/ipfs/go-cid"
)

// Removes a key from the subtree rooted at this node, returning the new subtree root (which may be empty) and the removed value.
func (n *Node) remove(ctx context.Context, key string) (*Node, cid.Cid, error) {
	entries, err := n.getEntries(ctx)
	if err != nil {
		return nil, cid.Undef, err
	}
	layer, err := n.getLayer(ctx)
	if err != nil {
		return nil, cid.Undef, err
	}

	idx := findGtOrEqualLeafIndex(entries, key)
	if idx < len(entries) && entries[idx].Key == key {
		prev := entries[idx].Val
		if idx > 0 && idx+1 < len(entries) && entries[idx-1].IsTree() && entries[idx+1].IsTree() {
			// removing the leaf leaves two subtrees adjacent, so merge them
			merged, err := appendMerge(ctx, entries[idx-1].Tree, entries[idx+1].Tree)
			if err != nil {
				return nil, cid.Undef, err
			}
			return newNode(n.store, spliceEntries(entries, idx-1, idx+2, treeEntry(merged)), layer), prev, nil
		}
		return newNode(n.store, spliceEntries(entries, idx, idx+1), layer), prev, nil
	}

	if idx > 0 && entries[idx-1].IsTree() {
		sub, prev, err := entries[idx-1].Tree.remove(ctx, key)
		if err != nil {
			return nil, cid.Undef, err
		}
		subEntries, err := sub.getEntries(ctx)
		if err != nil {
			return nil, cid.Undef, err
		}
		if len(subEntries) == 0 {
			return newNode(n.store, spliceEntries(entries, idx-1, idx), layer), prev, nil
		}
		return newNode(n.store, spliceEntries(entries, idx-1, idx, treeEntry(sub)), layer), prev, nil
	}

	return nil, cid.Undef, ErrKeyNotFound
}
