package mst

import (
	"context"

	"github.com/ipfs/go-cid"
)

// Adds a key to the subtree rooted at this node, returning the new subtree root and the previous value (if any).
//
// If `replace` is false, an existing key is an error. When the value is unchanged, the original node is returned.
func (n *Node) insert(ctx context.Context, key string, val cid.Cid, keyLayer int, replace bool) (*Node, *cid.Cid, error) {
	entries, err := n.getEntries(ctx)
	if err != nil {
		return nil, nil, err
	}
	layer, err := n.getLayer(ctx)
	if err != nil {
		return nil, nil, err
	}

	idx := findGtOrEqualLeafIndex(entries, key)
	if idx < len(entries) && entries[idx].Key == key {
		if !replace {
			return nil, nil, ErrKeyExists
		}
		prev := entries[idx].Val
		if prev == val {
			return n, &prev, nil
		}
		return newNode(n.store, spliceEntries(entries, idx, idx+1, leafEntry(key, val)), layer), &prev, nil
	}

	if keyLayer > layer {
		return n.insertParent(ctx, key, val, keyLayer, layer)
	}

	if keyLayer == layer {
		leaf := leafEntry(key, val)
		if idx == 0 || !entries[idx-1].IsTree() {
			return newNode(n.store, spliceEntries(entries, idx, idx, leaf), layer), nil, nil
		}
		// the subtree to the left straddles the new key
		left, right, err := entries[idx-1].Tree.splitAround(ctx, key)
		if err != nil {
			return nil, nil, err
		}
		repl := make([]NodeEntry, 0, 3)
		if left != nil {
			repl = append(repl, treeEntry(left))
		}
		repl = append(repl, leaf)
		if right != nil {
			repl = append(repl, treeEntry(right))
		}
		return newNode(n.store, spliceEntries(entries, idx-1, idx, repl...), layer), nil, nil
	}

	// key belongs further down the tree
	if idx > 0 && entries[idx-1].IsTree() {
		child := entries[idx-1].Tree
		sub, prev, err := child.insert(ctx, key, val, keyLayer, replace)
		if err != nil {
			return nil, nil, err
		}
		if sub == child {
			return n, prev, nil
		}
		return newNode(n.store, spliceEntries(entries, idx-1, idx, treeEntry(sub)), layer), prev, nil
	}
	child := newNode(n.store, nil, layer-1)
	sub, _, err := child.insert(ctx, key, val, keyLayer, replace)
	if err != nil {
		return nil, nil, err
	}
	return newNode(n.store, spliceEntries(entries, idx, idx, treeEntry(sub)), layer), nil, nil
}

// Handles inserting a key above the current top of the tree: splits this node around the key, and adds intermediate layers as needed.
func (n *Node) insertParent(ctx context.Context, key string, val cid.Cid, keyLayer, layer int) (*Node, *cid.Cid, error) {
	left, right, err := n.splitAround(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	for l := layer; l < keyLayer-1; l++ {
		if left != nil {
			left = left.createParent(l)
		}
		if right != nil {
			right = right.createParent(l)
		}
	}
	entries := make([]NodeEntry, 0, 3)
	if left != nil {
		entries = append(entries, treeEntry(left))
	}
	entries = append(entries, leafEntry(key, val))
	if right != nil {
		entries = append(entries, treeEntry(right))
	}
	return newNode(n.store, entries, keyLayer), nil, nil
}
