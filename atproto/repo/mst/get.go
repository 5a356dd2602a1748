package mst

import (
	"context"

	"github.com/ipfs/go-cid"
)

func (n *Node) get(ctx context.Context, key string) (*cid.Cid, error) {
	entries, err := n.getEntries(ctx)
	if err != nil {
		return nil, err
	}
	idx := findGtOrEqualLeafIndex(entries, key)
	if idx < len(entries) && entries[idx].Key == key {
		val := entries[idx].Val
		return &val, nil
	}
	if idx > 0 && entries[idx-1].IsTree() {
		return entries[idx-1].Tree.get(ctx, key)
	}
	return nil, nil
}
