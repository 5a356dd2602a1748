package mst

import (
	"context"
	"fmt"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
)

// Serializes every node which has not been persisted yet: in-memory nodes created by mutations. Children are returned before their parents.
//
// Unresolved parts of the tree were loaded from a store, and are never descended into.
func (t *Tree) UnstoredBlocks(ctx context.Context) ([]blocks.Block, error) {
	var out []blocks.Block
	seen := map[cid.Cid]struct{}{}
	if err := t.root.collectUnstored(ctx, seen, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (n *Node) collectUnstored(ctx context.Context, seen map[cid.Cid]struct{}, out *[]blocks.Block) error {
	if n.isStored() {
		return nil
	}
	entries, err := n.getEntries(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsTree() {
			if err := e.Tree.collectUnstored(ctx, seen, out); err != nil {
				return err
			}
		}
	}

	nd, err := serializeNodeData(entries)
	if err != nil {
		return err
	}
	b, c, err := nd.Bytes()
	if err != nil {
		return err
	}
	if _, ok := seen[c]; ok {
		return nil
	}
	seen[c] = struct{}{}
	blk, err := blocks.NewBlockWithCid(b, c)
	if err != nil {
		return err
	}
	*out = append(*out, blk)
	return nil
}

// Writes all unstored nodes to the store, tagged with the revision, and returns the root CID.
//
// Nodes are marked as stored after a successful write, so repeated calls only write new nodes.
func (t *Tree) WriteBlocks(ctx context.Context, w BlockWriter, rev string) (cid.Cid, error) {
	blks, err := t.UnstoredBlocks(ctx)
	if err != nil {
		return cid.Undef, err
	}
	for _, blk := range blks {
		if err := w.PutBlock(ctx, blk.Cid(), blk.RawData(), rev); err != nil {
			return cid.Undef, fmt.Errorf("writing MST node %s: %w", blk.Cid(), err)
		}
	}
	if err := t.MarkStored(ctx); err != nil {
		return cid.Undef, err
	}
	return t.RootCID()
}

// Marks all in-memory nodes as persisted. Used after the blocks from [Tree.UnstoredBlocks] have been written by the caller.
func (t *Tree) MarkStored(ctx context.Context) error {
	return t.root.markStoredRecursive(ctx)
}

func (n *Node) markStoredRecursive(ctx context.Context) error {
	if n.isStored() {
		return nil
	}
	entries, err := n.getEntries(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsTree() {
			if err := e.Tree.markStoredRecursive(ctx); err != nil {
				return err
			}
		}
	}
	n.markStored()
	return nil
}
