package mst

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/ipfs/go-cid"
)

type DiffKind int

const (
	DiffAdded DiffKind = iota + 1
	DiffRemoved
	DiffUpdated
)

func (k DiffKind) String() string {
	switch k {
	case DiffAdded:
		return "add"
	case DiffRemoved:
		return "del"
	case DiffUpdated:
		return "mut"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Single key-level change between two trees. OldCid is undefined for additions, and NewCid for removals.
type DiffOp struct {
	Kind   DiffKind
	Key    string
	OldCid cid.Cid
	NewCid cid.Cid
}

type DiffResult struct {
	// key-level changes, in key order
	Ops []DiffOp
	// CIDs of nodes which are part of the "to" tree but not the "from" tree
	NewNodes []cid.Cid
	// CIDs of nodes which are part of the "from" tree but not the "to" tree
	RemovedNodes []cid.Cid
}

type diffSide struct {
	queue []NodeEntry
	nodes map[cid.Cid]struct{}
}

func (s *diffSide) head() *NodeEntry {
	if len(s.queue) == 0 {
		return nil
	}
	return &s.queue[0]
}

// Replaces the subtree at the head of the queue with its entries, recording the node CID.
func (s *diffSide) expand(ctx context.Context) error {
	n := s.queue[0].Tree
	c, err := n.getPointer()
	if err != nil {
		return err
	}
	s.nodes[c] = struct{}{}
	entries, err := n.getEntries(ctx)
	if err != nil {
		return err
	}
	s.queue = spliceEntries(s.queue, 0, 1, entries...)
	return nil
}

func (s *diffSide) pop() {
	s.queue = s.queue[1:]
}

// Computes the key-level and node-level differences going from one tree to another.
//
// Both trees are walked in lock-step. Subtrees with identical CIDs hold identical leaves and are skipped without being loaded, so the cost scales with the size of the change rather than the size of the trees. A nil "from" tree is treated as empty.
func Diff(ctx context.Context, from, to *Tree) (*DiffResult, error) {
	if from == nil {
		from = NewEmptyTree(nil)
	}
	if to == nil {
		to = NewEmptyTree(nil)
	}

	fs := &diffSide{queue: []NodeEntry{treeEntry(from.root)}, nodes: map[cid.Cid]struct{}{}}
	ts := &diffSide{queue: []NodeEntry{treeEntry(to.root)}, nodes: map[cid.Cid]struct{}{}}
	res := &DiffResult{}

	for {
		ef, et := fs.head(), ts.head()
		if ef == nil && et == nil {
			break
		}

		if ef != nil && et != nil && ef.IsTree() && et.IsTree() {
			fc, err := ef.Tree.getPointer()
			if err != nil {
				return nil, err
			}
			tc, err := et.Tree.getPointer()
			if err != nil {
				return nil, err
			}
			if fc == tc {
				fs.pop()
				ts.pop()
				continue
			}
			// expand the higher of the two first, so matching subtrees line up
			fl, err := ef.Tree.getLayer(ctx)
			if err != nil {
				return nil, err
			}
			tl, err := et.Tree.getLayer(ctx)
			if err != nil {
				return nil, err
			}
			if fl >= tl {
				if err := fs.expand(ctx); err != nil {
					return nil, err
				}
			}
			if tl >= fl {
				if err := ts.expand(ctx); err != nil {
					return nil, err
				}
			}
			continue
		}

		if ef != nil && ef.IsTree() {
			if err := fs.expand(ctx); err != nil {
				return nil, err
			}
			continue
		}
		if et != nil && et.IsTree() {
			if err := ts.expand(ctx); err != nil {
				return nil, err
			}
			continue
		}

		// both heads are leaves (or exhausted)
		switch {
		case ef == nil:
			res.Ops = append(res.Ops, DiffOp{Kind: DiffAdded, Key: et.Key, NewCid: et.Val})
			ts.pop()
		case et == nil:
			res.Ops = append(res.Ops, DiffOp{Kind: DiffRemoved, Key: ef.Key, OldCid: ef.Val})
			fs.pop()
		case ef.Key == et.Key:
			if ef.Val != et.Val {
				res.Ops = append(res.Ops, DiffOp{Kind: DiffUpdated, Key: ef.Key, OldCid: ef.Val, NewCid: et.Val})
			}
			fs.pop()
			ts.pop()
		case ef.Key < et.Key:
			res.Ops = append(res.Ops, DiffOp{Kind: DiffRemoved, Key: ef.Key, OldCid: ef.Val})
			fs.pop()
		default:
			res.Ops = append(res.Ops, DiffOp{Kind: DiffAdded, Key: et.Key, NewCid: et.Val})
			ts.pop()
		}
	}

	for c := range ts.nodes {
		if _, ok := fs.nodes[c]; !ok {
			res.NewNodes = append(res.NewNodes, c)
		}
	}
	for c := range fs.nodes {
		if _, ok := ts.nodes[c]; !ok {
			res.RemovedNodes = append(res.RemovedNodes, c)
		}
	}
	sortCIDs(res.NewNodes)
	sortCIDs(res.RemovedNodes)
	return res, nil
}

func sortCIDs(cids []cid.Cid) {
	slices.SortFunc(cids, func(a, b cid.Cid) int {
		return strings.Compare(a.KeyString(), b.KeyString())
	})
}
