package mst

import (
	"context"

	"github.com/ipfs/go-cid"
)

// Source of raw node blocks. Implementations should return [ipld.ErrNotFound] (from go-ipld-format) for missing blocks.
type BlockReader interface {
	GetBlock(ctx context.Context, c cid.Cid) ([]byte, error)
}

// Destination for new node blocks. The revision is an opaque tag recorded alongside the block.
type BlockWriter interface {
	PutBlock(ctx context.Context, c cid.Cid, data []byte, rev string) error
}

type BlockStore interface {
	BlockReader
	BlockWriter
}
