package repostore

import (
	"context"
	"sync"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
)

// Repo storage on top of a generic IPFS blockstore. Revisions and the root pointer are only kept in memory.
type BlockstoreStorage struct {
	bs blockstore.Blockstore

	lk   sync.Mutex
	revs map[cid.Cid]string
	root *RootDetailed
}

var _ RepoStorage = (*BlockstoreStorage)(nil)

func NewBlockstoreStorage(bs blockstore.Blockstore) *BlockstoreStorage {
	return &BlockstoreStorage{
		bs:   bs,
		revs: make(map[cid.Cid]string),
	}
}

// Fully in-memory storage, mostly for tests and scratch work.
func NewMemoryStore() *BlockstoreStorage {
	return NewBlockstoreStorage(blockstore.NewBlockstore(dssync.MutexWrap(datastore.NewMapDatastore())))
}

func (s *BlockstoreStorage) GetBlock(ctx context.Context, c cid.Cid) ([]byte, error) {
	blk, err := s.bs.Get(ctx, c)
	if err != nil {
		return nil, err
	}
	return blk.RawData(), nil
}

func (s *BlockstoreStorage) Has(ctx context.Context, c cid.Cid) (bool, error) {
	return s.bs.Has(ctx, c)
}

func (s *BlockstoreStorage) PutBlock(ctx context.Context, c cid.Cid, data []byte, rev string) error {
	blk, err := blocks.NewBlockWithCid(data, c)
	if err != nil {
		return err
	}
	if err := s.bs.Put(ctx, blk); err != nil {
		return err
	}
	s.lk.Lock()
	s.revs[c] = rev
	s.lk.Unlock()
	return nil
}

func (s *BlockstoreStorage) PutBlocks(ctx context.Context, blks []blocks.Block, rev string) error {
	if err := s.bs.PutMany(ctx, blks); err != nil {
		return err
	}
	s.lk.Lock()
	for _, blk := range blks {
		s.revs[blk.Cid()] = rev
	}
	s.lk.Unlock()
	return nil
}

// Returns the revision which last wrote a block, if known.
func (s *BlockstoreStorage) BlockRev(c cid.Cid) (string, bool) {
	s.lk.Lock()
	defer s.lk.Unlock()
	rev, ok := s.revs[c]
	return rev, ok
}

func (s *BlockstoreStorage) GetRootDetailed(ctx context.Context) (*RootDetailed, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	if s.root == nil {
		return nil, ErrRootNotFound
	}
	out := *s.root
	return &out, nil
}

func (s *BlockstoreStorage) UpdateRoot(ctx context.Context, root cid.Cid, rev string) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.root = &RootDetailed{CID: root, Rev: rev}
	return nil
}

func (s *BlockstoreStorage) Close() error {
	return nil
}
