package mst

import (
	"context"
	"fmt"

	"github.com/ipfs/go-cid"
)

// Immutable handle on an MST: a root node, plus the store that unresolved nodes are loaded from.
//
// Mutating methods return a new *Tree, and leave the receiver valid and unchanged.
type Tree struct {
	store BlockReader
	root  *Node
}

// Creates a new tree with no entries. The store may be nil for a purely in-memory tree.
func NewEmptyTree(store BlockReader) *Tree {
	return &Tree{
		store: store,
		root:  newNode(store, nil, 0),
	}
}

// Returns a tree rooted at the given CID. Nothing is fetched until the tree is read.
func LoadTree(store BlockReader, root cid.Cid) *Tree {
	return &Tree{
		store: store,
		root:  stubNode(store, root, -1),
	}
}

// Builds a tree containing exactly the entries in the map.
func NewTreeFromMap(ctx context.Context, store BlockReader, m map[string]cid.Cid) (*Tree, error) {
	t := NewEmptyTree(store)
	for k, v := range m {
		var err error
		t, err = t.Add(ctx, k, v)
		if err != nil {
			return nil, fmt.Errorf("building MST from map: %w", err)
		}
	}
	return t, nil
}

func (t *Tree) Store() BlockReader {
	return t.store
}

// Computes the root CID of the tree. Does not write or fetch any blocks.
func (t *Tree) RootCID() (cid.Cid, error) {
	return t.root.getPointer()
}

// Returns the layer of the root node (zero for an empty tree).
func (t *Tree) Height(ctx context.Context) (int, error) {
	return t.root.getLayer(ctx)
}

func (t *Tree) IsEmpty(ctx context.Context) (bool, error) {
	entries, err := t.root.getEntries(ctx)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}

// Looks up the value for a key. A missing key is not an error: returns nil.
func (t *Tree) Get(ctx context.Context, key string) (*cid.Cid, error) {
	if err := EnsureValidKey(key); err != nil {
		return nil, err
	}
	return t.root.get(ctx, key)
}

// Adds a new key. Fails with [ErrKeyExists] if the key is already present.
func (t *Tree) Add(ctx context.Context, key string, val cid.Cid) (*Tree, error) {
	if err := EnsureValidKey(key); err != nil {
		return nil, err
	}
	root, _, err := t.root.insert(ctx, key, val, LeadingZerosOnHash(key), false)
	if err != nil {
		return nil, err
	}
	return &Tree{store: t.store, root: root}, nil
}

// Changes the value of an existing key, returning the previous value. Fails with [ErrKeyNotFound] if the key is not present.
func (t *Tree) Update(ctx context.Context, key string, val cid.Cid) (*Tree, cid.Cid, error) {
	prev, err := t.Get(ctx, key)
	if err != nil {
		return nil, cid.Undef, err
	}
	if prev == nil {
		return nil, cid.Undef, ErrKeyNotFound
	}
	next, _, err := t.Insert(ctx, key, val)
	if err != nil {
		return nil, cid.Undef, err
	}
	return next, *prev, nil
}

// Sets the value for a key, whether or not it is already present. Returns the previous value, if there was one.
func (t *Tree) Insert(ctx context.Context, key string, val cid.Cid) (*Tree, *cid.Cid, error) {
	if err := EnsureValidKey(key); err != nil {
		return nil, nil, err
	}
	root, prev, err := t.root.insert(ctx, key, val, LeadingZerosOnHash(key), true)
	if err != nil {
		return nil, nil, err
	}
	return &Tree{store: t.store, root: root}, prev, nil
}

// Removes a key, returning the removed value. Fails with [ErrKeyNotFound] if the key is not present.
func (t *Tree) Delete(ctx context.Context, key string) (*Tree, cid.Cid, error) {
	if err := EnsureValidKey(key); err != nil {
		return nil, cid.Undef, err
	}
	root, prev, err := t.root.remove(ctx, key)
	if err != nil {
		return nil, cid.Undef, err
	}
	root, err = root.trimTop(ctx)
	if err != nil {
		return nil, cid.Undef, err
	}
	entries, err := root.getEntries(ctx)
	if err != nil {
		return nil, cid.Undef, err
	}
	if len(entries) == 0 {
		return NewEmptyTree(t.store), prev, nil
	}
	return &Tree{store: t.store, root: root}, prev, nil
}

// Copies all key/value pairs in the tree into the map.
func (t *Tree) ReadToMap(ctx context.Context, m map[string]cid.Cid) error {
	return t.Walk(ctx, func(key string, val cid.Cid) error {
		m[key] = val
		return nil
	})
}
