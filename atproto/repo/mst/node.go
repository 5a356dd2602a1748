package mst

import (
	"context"
	"fmt"
	"sync"

	"github.com/ipfs/go-cid"
)

type EntryKind int

const (
	EntryUndefined EntryKind = iota
	EntryLeaf
	EntryTree
)

// A single entry in a node: either a leaf (key and value CID) or a pointer to a child node.
type NodeEntry struct {
	Kind EntryKind
	Key  string
	Val  cid.Cid
	Tree *Node
}

func (e *NodeEntry) IsLeaf() bool {
	return e.Kind == EntryLeaf
}

func (e *NodeEntry) IsTree() bool {
	return e.Kind == EntryTree
}

func leafEntry(key string, val cid.Cid) NodeEntry {
	return NodeEntry{Kind: EntryLeaf, Key: key, Val: val}
}

func treeEntry(n *Node) NodeEntry {
	return NodeEntry{Kind: EntryTree, Tree: n}
}

// Key/value pair stored in the tree.
type Leaf struct {
	Key   string
	Value cid.Cid
}

// Handle on a single MST node.
//
// A handle is either resolved (entries in memory) or unresolved (only the CID is known, and the block is fetched from the store on first access). Entries never change once set; all mutation methods return new handles.
type Node struct {
	store BlockReader

	mu       sync.Mutex
	hydrated bool
	entries  []NodeEntry
	// -1 until known. Unresolved handles usually get their layer from the parent.
	layer   int
	pointer cid.Cid
	// true if the node block is known to already exist in a store
	stored bool
}

func newNode(store BlockReader, entries []NodeEntry, layer int) *Node {
	return &Node{
		store:    store,
		hydrated: true,
		entries:  entries,
		layer:    layer,
	}
}

func stubNode(store BlockReader, ptr cid.Cid, layer int) *Node {
	return &Node{
		store:   store,
		layer:   layer,
		pointer: ptr,
		stored:  true,
	}
}

// Returns the entries of this node, fetching and decoding the block if needed. Concurrent callers wait for a single fetch.
func (n *Node) getEntries(ctx context.Context) ([]NodeEntry, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.hydrated {
		return n.entries, nil
	}
	if n.store == nil {
		return nil, fmt.Errorf("no block store to load MST node: %s", n.pointer)
	}

	blk, err := n.store.GetBlock(ctx, n.pointer)
	if err != nil {
		return nil, err
	}
	nd, err := NodeDataFromCBOR(blk)
	if err != nil {
		return nil, err
	}
	entries, layer, err := deserializeNodeData(n.store, nd, n.layer)
	if err != nil {
		return nil, fmt.Errorf("loading MST node %s: %w", n.pointer, err)
	}
	n.entries = entries
	n.layer = layer
	n.hydrated = true
	return n.entries, nil
}

// Returns the layer of this node, resolving it (and possibly descendants, for nodes without leaves) if necessary.
func (n *Node) getLayer(ctx context.Context) (int, error) {
	entries, err := n.getEntries(ctx)
	if err != nil {
		return -1, err
	}

	n.mu.Lock()
	layer := n.layer
	n.mu.Unlock()
	if layer >= 0 {
		return layer, nil
	}

	// only reached for nodes with no leaves: either empty, or a lone pointer
	layer = 0
	for _, e := range entries {
		if e.IsTree() {
			childLayer, err := e.Tree.getLayer(ctx)
			if err != nil {
				return -1, err
			}
			layer = childLayer + 1
			break
		}
	}

	n.mu.Lock()
	n.layer = layer
	n.mu.Unlock()
	return layer, nil
}

// Returns the CID of this node, computing it (and any child CIDs) from in-memory entries if needed. Never does I/O.
func (n *Node) getPointer() (cid.Cid, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.pointer.Defined() {
		return n.pointer, nil
	}
	c, err := CIDForEntries(n.entries)
	if err != nil {
		return cid.Undef, err
	}
	n.pointer = c
	return c, nil
}

func (n *Node) isStored() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stored
}

func (n *Node) markStored() {
	n.mu.Lock()
	n.stored = true
	n.mu.Unlock()
}

// Returns a fresh slice with entries[start:end] replaced by repl. Never aliases the input slice.
func spliceEntries(entries []NodeEntry, start, end int, repl ...NodeEntry) []NodeEntry {
	out := make([]NodeEntry, 0, len(entries)-(end-start)+len(repl))
	out = append(out, entries[:start]...)
	out = append(out, repl...)
	out = append(out, entries[end:]...)
	return out
}

// Index of the first leaf with key greater than or equal to the given key, or len(entries) if there is none.
func findGtOrEqualLeafIndex(entries []NodeEntry, key string) int {
	for i, e := range entries {
		if e.IsLeaf() && e.Key >= key {
			return i
		}
	}
	return len(entries)
}

// Wraps this node in a new node one layer up.
func (n *Node) createParent(layer int) *Node {
	return newNode(n.store, []NodeEntry{treeEntry(n)}, layer+1)
}

// Splits this node in two around a key which is not present at this layer. Either side may be nil if it would be empty.
func (n *Node) splitAround(ctx context.Context, key string) (*Node, *Node, error) {
	entries, err := n.getEntries(ctx)
	if err != nil {
		return nil, nil, err
	}
	layer, err := n.getLayer(ctx)
	if err != nil {
		return nil, nil, err
	}

	idx := findGtOrEqualLeafIndex(entries, key)
	leftEntries := spliceEntries(entries[:idx], idx, idx)
	rightEntries := spliceEntries(entries[idx:], 0, 0)

	if len(leftEntries) > 0 && leftEntries[len(leftEntries)-1].IsTree() {
		last := leftEntries[len(leftEntries)-1].Tree
		leftEntries = leftEntries[:len(leftEntries)-1]
		subLeft, subRight, err := last.splitAround(ctx, key)
		if err != nil {
			return nil, nil, err
		}
		if subLeft != nil {
			leftEntries = append(leftEntries, treeEntry(subLeft))
		}
		if subRight != nil {
			rightEntries = spliceEntries(rightEntries, 0, 0, treeEntry(subRight))
		}
	}

	var left, right *Node
	if len(leftEntries) > 0 {
		left = newNode(n.store, leftEntries, layer)
	}
	if len(rightEntries) > 0 {
		right = newNode(n.store, rightEntries, layer)
	}
	return left, right, nil
}

// Joins two adjacent nodes on the same layer, recursively merging the subtrees where they meet.
func appendMerge(ctx context.Context, left, right *Node) (*Node, error) {
	leftLayer, err := left.getLayer(ctx)
	if err != nil {
		return nil, err
	}
	rightLayer, err := right.getLayer(ctx)
	if err != nil {
		return nil, err
	}
	if leftLayer != rightLayer {
		return nil, structuralErrorf("merging nodes from different layers: %d and %d", leftLayer, rightLayer)
	}

	leftEntries, err := left.getEntries(ctx)
	if err != nil {
		return nil, err
	}
	rightEntries, err := right.getEntries(ctx)
	if err != nil {
		return nil, err
	}

	nl := len(leftEntries)
	if nl > 0 && len(rightEntries) > 0 && leftEntries[nl-1].IsTree() && rightEntries[0].IsTree() {
		merged, err := appendMerge(ctx, leftEntries[nl-1].Tree, rightEntries[0].Tree)
		if err != nil {
			return nil, err
		}
		out := make([]NodeEntry, 0, nl+len(rightEntries)-1)
		out = append(out, leftEntries[:nl-1]...)
		out = append(out, treeEntry(merged))
		out = append(out, rightEntries[1:]...)
		return newNode(left.store, out, leftLayer), nil
	}

	out := make([]NodeEntry, 0, nl+len(rightEntries))
	out = append(out, leftEntries...)
	out = append(out, rightEntries...)
	return newNode(left.store, out, leftLayer), nil
}

// Descends through the top of the tree while it is just a single pointer.
func (n *Node) trimTop(ctx context.Context) (*Node, error) {
	entries, err := n.getEntries(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) == 1 && entries[0].IsTree() {
		return entries[0].Tree.trimTop(ctx)
	}
	return n, nil
}
