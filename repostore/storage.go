// Package repostore implements block and root storage for repository MSTs.
//
// Every backend stores raw node blocks keyed by CID, each tagged with the revision that wrote it, plus a single current root pointer per repository.
package repostore

import (
	"context"
	"errors"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
)

// Returned by GetRootDetailed when a repository has never been committed.
var ErrRootNotFound = errors.New("repository root not found")

type RootDetailed struct {
	CID cid.Cid
	Rev string
}

// Storage for a single repository. Missing blocks are reported as ipld.ErrNotFound.
type RepoStorage interface {
	GetBlock(ctx context.Context, c cid.Cid) ([]byte, error)
	Has(ctx context.Context, c cid.Cid) (bool, error)
	PutBlock(ctx context.Context, c cid.Cid, data []byte, rev string) error
	// Writes a set of blocks atomically (where the backend supports it).
	PutBlocks(ctx context.Context, blks []blocks.Block, rev string) error
	GetRootDetailed(ctx context.Context) (*RootDetailed, error)
	UpdateRoot(ctx context.Context, root cid.Cid, rev string) error
	Close() error
}
