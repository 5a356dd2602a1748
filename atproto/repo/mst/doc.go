/*
Package mst implements the Merkle Search Tree (MST) used to index the records of an atproto repository.

The tree maps string keys (like "app.bsky.feed.post/3jqfcqzm3fo2j") to CIDs. Each key is assigned a layer from the hash of its bytes, and the overall shape of the tree is fully determined by the set of keys, independent of insertion order. The root CID is therefore a stable commitment to the key/value contents.

## Terminology

node: any node in the tree. nodes hold an ordered list of entries. they should never be entirely "empty", unless the entire tree is a single empty node, but they might only contain a single "child" pointer

entry: either a leaf (key/CID pair) or a pointer to a child node. entries are lexically sorted, and a child pointer covers the keys which fall between its neighboring leaves. there are never two adjacent child pointers in the same node

tree: an immutable handle on a root node and the block store it is lazily loaded from

## Laziness and Sharing

Nodes loaded from a store start out as just a CID, and are fetched and decoded on first access. Mutations never modify existing nodes: every write returns a new [Tree] which shares all untouched subtrees with the original. It is safe to read the same [Tree] from multiple goroutines.

## Tricky Bits

When inserting:

- the inserted key might be on a "higher" layer than the current top of the tree, in which case new parent nodes need to be created
- "parent" or "child" insertions might be multiple layers away from the starting node, with intermediate nodes created
- inserting a leaf in a node might require "splitting" a child node, if the key would have fallen within the lexical range of the child

When removing:

- deleting a leaf from a node might result in a "merge" of two child nodes which are no longer separated
- removing a leaf from the top of the tree might leave it as a simple pointer down to a child; the top of the tree is then "trimmed" (possibly multiple layers)

## Hacking

Be careful with go slices. Entry slices are shared between tree versions, so any operation which changes a list of entries must copy it first.
*/
package mst
