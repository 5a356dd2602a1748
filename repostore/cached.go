package repostore

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
)

// CachedStore puts a two-queue LRU block cache in front of another store. Root reads and writes pass straight through.
type CachedStore struct {
	base  RepoStorage
	cache *lru.TwoQueueCache[string, []byte]
}

var _ RepoStorage = (*CachedStore)(nil)

func NewCachedStore(base RepoStorage, size int) (*CachedStore, error) {
	cache, err := lru.New2Q[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("creating block cache: %w", err)
	}
	return &CachedStore{
		base:  base,
		cache: cache,
	}, nil
}

func (cs *CachedStore) GetBlock(ctx context.Context, c cid.Cid) ([]byte, error) {
	if v, ok := cs.cache.Get(c.KeyString()); ok {
		cacheHits.Inc()
		return v, nil
	}
	cacheMisses.Inc()

	data, err := cs.base.GetBlock(ctx, c)
	if err != nil {
		return nil, err
	}
	cs.cache.Add(c.KeyString(), data)
	return data, nil
}

func (cs *CachedStore) Has(ctx context.Context, c cid.Cid) (bool, error) {
	if cs.cache.Contains(c.KeyString()) {
		return true, nil
	}
	return cs.base.Has(ctx, c)
}

func (cs *CachedStore) PutBlock(ctx context.Context, c cid.Cid, data []byte, rev string) error {
	if err := cs.base.PutBlock(ctx, c, data, rev); err != nil {
		return err
	}
	cs.cache.Add(c.KeyString(), data)
	return nil
}

func (cs *CachedStore) PutBlocks(ctx context.Context, blks []blocks.Block, rev string) error {
	if err := cs.base.PutBlocks(ctx, blks, rev); err != nil {
		return err
	}
	for _, blk := range blks {
		cs.cache.Add(blk.Cid().KeyString(), blk.RawData())
	}
	return nil
}

func (cs *CachedStore) GetRootDetailed(ctx context.Context) (*RootDetailed, error) {
	return cs.base.GetRootDetailed(ctx)
}

func (cs *CachedStore) UpdateRoot(ctx context.Context, root cid.Cid, rev string) error {
	return cs.base.UpdateRoot(ctx, root, rev)
}

func (cs *CachedStore) Close() error {
	cs.cache.Purge()
	return cs.base.Close()
}
