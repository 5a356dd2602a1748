package mst

import (
	"bytes"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// CBOR serialization struct for a MST tree node. Note that the CBOR fields are all single-character.
type NodeData struct {
	Left    *cid.Cid    `cborgen:"l"` // [nullable] pointer to lower-level subtree to the "left" of this path/key
	Entries []EntryData `cborgen:"e"` // ordered list of entries at this node
}

// CBOR serialization struct for a single entry within a `NodeData` entry list.
type EntryData struct {
	PrefixLen int64    `cborgen:"p"` // count of bytes shared with previous path/key in node
	KeySuffix []byte   `cborgen:"k"` // remaining part of path/key (appended to "previous key")
	Value     cid.Cid  `cborgen:"v"` // CID pointer at this path/key
	Right     *cid.Cid `cborgen:"t"` // [nullable] pointer to lower-level subtree to the "right" of this path/key entry
}

var cidBuilder = cid.NewPrefixV1(cid.DagCBOR, multihash.SHA2_256)

// Encodes a single `NodeData` struct as canonical CBOR bytes, and computes the CID. Does not recursively encode children.
func (d *NodeData) Bytes() ([]byte, cid.Cid, error) {
	buf := new(bytes.Buffer)
	if err := d.MarshalCBOR(buf); err != nil {
		return nil, cid.Undef, err
	}
	b := buf.Bytes()
	c, err := cidBuilder.Sum(b)
	if err != nil {
		return nil, cid.Undef, err
	}
	return b, c, nil
}

// Parses CBOR bytes in to `NodeData` struct. Any failure is returned as a [SerializationError].
func NodeDataFromCBOR(b []byte) (*NodeData, error) {
	var nd NodeData
	r := bytes.NewReader(b)
	if err := nd.UnmarshalCBOR(r); err != nil {
		return nil, &SerializationError{Err: err}
	}
	if r.Len() != 0 {
		return nil, &SerializationError{Err: fmt.Errorf("%d trailing bytes after node", r.Len())}
	}
	return &nd, nil
}

// Transforms a list of entries to `NodeData`, which is the format used for encoding to CBOR.
//
// Child CIDs are computed (and memoized) as needed, but nothing is written or fetched.
func serializeNodeData(entries []NodeEntry) (*NodeData, error) {
	d := NodeData{
		Entries: make([]EntryData, 0, len(entries)),
	}

	i := 0
	if len(entries) > 0 && entries[0].IsTree() {
		c, err := entries[0].Tree.getPointer()
		if err != nil {
			return nil, err
		}
		d.Left = &c
		i++
	}

	var prevKey string
	for i < len(entries) {
		leaf := entries[i]
		if !leaf.IsLeaf() {
			return nil, structuralErrorf("two subtrees adjacent in node entries")
		}
		if !IsValidKey(leaf.Key) {
			return nil, &KeyFormatError{Key: leaf.Key}
		}
		if i > 0 && leaf.Key <= prevKey {
			return nil, structuralErrorf("node keys out of order: %q after %q", leaf.Key, prevKey)
		}
		i++

		prefixLen := CountPrefixLen(prevKey, leaf.Key)
		if prefixLen > 255 {
			return nil, structuralErrorf("key prefix length out of range: %d", prefixLen)
		}
		ed := EntryData{
			PrefixLen: int64(prefixLen),
			KeySuffix: []byte(leaf.Key[prefixLen:]),
			Value:     leaf.Val,
		}

		if i < len(entries) && entries[i].IsTree() {
			c, err := entries[i].Tree.getPointer()
			if err != nil {
				return nil, err
			}
			ed.Right = &c
			i++
		}

		d.Entries = append(d.Entries, ed)
		prevKey = leaf.Key
	}
	return &d, nil
}

// Rebuilds a list of entries from `NodeData`. Child pointers become unresolved nodes, one layer below.
//
// If the layer is not already known (negative), it is derived from the first key. Returns the layer, which is still negative if the node has no keys.
func deserializeNodeData(store BlockReader, nd *NodeData, layer int) ([]NodeEntry, int, error) {
	if len(nd.Entries) > 0 {
		firstLayer := LeadingZerosOnHash(string(nd.Entries[0].KeySuffix))
		if layer < 0 {
			layer = firstLayer
		} else if layer != firstLayer {
			return nil, layer, structuralErrorf("node at layer %d holds key at layer %d", layer, firstLayer)
		}
	}

	childLayer := -1
	if layer >= 0 {
		childLayer = layer - 1
	}
	child := func(c cid.Cid) (NodeEntry, error) {
		if layer == 0 {
			return NodeEntry{}, structuralErrorf("subtree pointer below layer zero")
		}
		return NodeEntry{
			Kind: EntryTree,
			Tree: stubNode(store, c, childLayer),
		}, nil
	}

	entries := make([]NodeEntry, 0, 2*len(nd.Entries)+1)
	if nd.Left != nil {
		e, err := child(*nd.Left)
		if err != nil {
			return nil, layer, err
		}
		entries = append(entries, e)
	}

	var prevKey string
	for i, ed := range nd.Entries {
		if ed.PrefixLen < 0 || int(ed.PrefixLen) > len(prevKey) {
			return nil, layer, structuralErrorf("key prefix length %d exceeds previous key", ed.PrefixLen)
		}
		if !ed.Value.Defined() {
			return nil, layer, &SerializationError{Err: fmt.Errorf("entry %d missing value CID", i)}
		}
		key := prevKey[:ed.PrefixLen] + string(ed.KeySuffix)
		if !IsValidKey(key) {
			return nil, layer, &KeyFormatError{Key: key}
		}
		if i > 0 && key <= prevKey {
			return nil, layer, structuralErrorf("node keys out of order: %q after %q", key, prevKey)
		}
		entries = append(entries, NodeEntry{
			Kind: EntryLeaf,
			Key:  key,
			Val:  ed.Value,
		})
		if ed.Right != nil {
			e, err := child(*ed.Right)
			if err != nil {
				return nil, layer, err
			}
			entries = append(entries, e)
		}
		prevKey = key
	}
	return entries, layer, nil
}

// Computes the CID of a list of entries, as it would be encoded in a single node.
func CIDForEntries(entries []NodeEntry) (cid.Cid, error) {
	nd, err := serializeNodeData(entries)
	if err != nil {
		return cid.Undef, err
	}
	_, c, err := nd.Bytes()
	return c, err
}
