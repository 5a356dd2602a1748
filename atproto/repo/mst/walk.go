package mst

import (
	"context"
	"errors"
	"strings"

	"github.com/ipfs/go-cid"
	"golang.org/x/sync/errgroup"
)

// Callback for leaf walks. Returning [ErrStopWalk] ends the walk early without an error.
type WalkFunc func(key string, val cid.Cid) error

var ErrStopWalk = errors.New("stop MST walk")

// Visits every leaf in key order.
func (t *Tree) Walk(ctx context.Context, cb WalkFunc) error {
	return t.WalkLeavesFrom(ctx, "", cb)
}

// Visits every leaf with key greater than or equal to `from`, in key order. Only nodes which could hold such keys are loaded.
func (t *Tree) WalkLeavesFrom(ctx context.Context, from string, cb WalkFunc) error {
	err := t.root.walkLeavesFrom(ctx, from, cb)
	if errors.Is(err, ErrStopWalk) {
		return nil
	}
	return err
}

func (n *Node) walkLeavesFrom(ctx context.Context, from string, cb WalkFunc) error {
	entries, err := n.getEntries(ctx)
	if err != nil {
		return err
	}
	idx := findGtOrEqualLeafIndex(entries, from)
	if idx > 0 && entries[idx-1].IsTree() {
		if err := entries[idx-1].Tree.walkLeavesFrom(ctx, from, cb); err != nil {
			return err
		}
	}
	for _, e := range entries[idx:] {
		if e.IsLeaf() {
			if err := cb(e.Key, e.Val); err != nil {
				return err
			}
		} else {
			if err := e.Tree.walkLeavesFrom(ctx, from, cb); err != nil {
				return err
			}
		}
	}
	return nil
}

// Returns up to `count` leaves in key order, strictly after `after` and strictly before `before`. Empty bounds and non-positive counts are unlimited.
func (t *Tree) List(ctx context.Context, count int, after, before string) ([]Leaf, error) {
	var out []Leaf
	err := t.WalkLeavesFrom(ctx, after, func(key string, val cid.Cid) error {
		if key == after {
			return nil
		}
		if count > 0 && len(out) >= count {
			return ErrStopWalk
		}
		if before != "" && key >= before {
			return ErrStopWalk
		}
		out = append(out, Leaf{Key: key, Value: val})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Returns up to `count` leaves (non-positive for unlimited) whose keys start with the prefix.
func (t *Tree) ListWithPrefix(ctx context.Context, prefix string, count int) ([]Leaf, error) {
	var out []Leaf
	err := t.WalkLeavesFrom(ctx, prefix, func(key string, val cid.Cid) error {
		if (count > 0 && len(out) >= count) || !strings.HasPrefix(key, prefix) {
			return ErrStopWalk
		}
		out = append(out, Leaf{Key: key, Value: val})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Tree) Leaves(ctx context.Context) ([]Leaf, error) {
	return t.List(ctx, 0, "", "")
}

func (t *Tree) LeafCount(ctx context.Context) (int, error) {
	count := 0
	err := t.Walk(ctx, func(string, cid.Cid) error {
		count++
		return nil
	})
	return count, err
}

// Visits every node of the tree, parents before children, loading the whole tree.
func (t *Tree) WalkNodes(ctx context.Context, cb func(n *Node) error) error {
	err := t.root.walkNodes(ctx, cb)
	if errors.Is(err, ErrStopWalk) {
		return nil
	}
	return err
}

func (n *Node) walkNodes(ctx context.Context, cb func(n *Node) error) error {
	if err := cb(n); err != nil {
		return err
	}
	entries, err := n.getEntries(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsTree() {
			if err := e.Tree.walkNodes(ctx, cb); err != nil {
				return err
			}
		}
	}
	return nil
}

// Returns the CIDs of every node in the tree, parents before children.
func (t *Tree) AllCIDs(ctx context.Context) ([]cid.Cid, error) {
	var out []cid.Cid
	err := t.WalkNodes(ctx, func(n *Node) error {
		c, err := n.getPointer()
		if err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Loads every node of the tree from the store, fetching up to `concurrency` blocks at a time.
func (t *Tree) Hydrate(ctx context.Context, concurrency int) error {
	if concurrency < 1 {
		concurrency = 1
	}
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(concurrency)

	var visit func(n *Node) error
	visit = func(n *Node) error {
		entries, err := n.getEntries(ctx)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if !e.IsTree() {
				continue
			}
			child := e.Tree
			// run inline when no slot is free, so workers never block waiting on each other
			if !eg.TryGo(func() error { return visit(child) }) {
				if err := visit(child); err != nil {
					return err
				}
			}
		}
		return nil
	}

	eg.Go(func() error { return visit(t.root) })
	return eg.Wait()
}
