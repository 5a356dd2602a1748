// Package repo keeps a single account's record index as an MST over a [repostore.RepoStorage], and commits batches of record writes to it.
package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/rsky-pds/repo-mst/atproto/repo/mst"
	"github.com/rsky-pds/repo-mst/atproto/syntax"
	"github.com/rsky-pds/repo-mst/repostore"

	"github.com/ipfs/go-cid"
)

var ErrNotFound = errors.New("record not found in repository")

type Repo struct {
	DID     string
	Storage repostore.RepoStorage
	Clock   *syntax.TIDClock
	Logger  *slog.Logger

	mtx  sync.Mutex
	tree *mst.Tree
	root *cid.Cid
	rev  string
}

// Opens the repository for a DID, resuming from the stored root if there is one.
func Open(ctx context.Context, did string, store repostore.RepoStorage, logger *slog.Logger) (*Repo, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Repo{
		DID:     did,
		Storage: store,
		Clock:   syntax.NewTIDClock(0),
		Logger:  logger.With("system", "repo", "did", did),
	}

	root, err := store.GetRootDetailed(ctx)
	if errors.Is(err, repostore.ErrRootNotFound) {
		r.tree = mst.NewEmptyTree(store)
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading repo root: %w", err)
	}

	r.tree = mst.LoadTree(store, root.CID)
	r.root = &root.CID
	r.rev = root.Rev
	if tid, err := syntax.ParseTID(root.Rev); err == nil {
		r.Clock = syntax.ClockFromTID(tid)
	}
	r.Logger.Debug("opened repo", "root", root.CID, "rev", root.Rev)
	return r, nil
}

// Current tree. The returned tree is immutable, so it stays valid across later commits.
func (r *Repo) Tree() *mst.Tree {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.tree
}

// Root CID and revision of the last commit. The root is nil if nothing has been committed.
func (r *Repo) Head() (*cid.Cid, string) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.root, r.rev
}

func (r *Repo) GetRecordCID(ctx context.Context, collection, rkey string) (*cid.Cid, error) {
	c, err := r.Tree().Get(ctx, collection+"/"+rkey)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}
	return c, nil
}

// Lists records in a collection, in key order, starting after the cursor record key (if any). A limit of zero or less returns all.
func (r *Repo) ListRecords(ctx context.Context, collection string, limit int, cursor string) ([]mst.Leaf, error) {
	prefix := collection + "/"
	tree := r.Tree()

	var out []mst.Leaf
	from := prefix
	if cursor != "" {
		from = prefix + cursor
	}
	err := tree.WalkLeavesFrom(ctx, from, func(key string, val cid.Cid) error {
		if !strings.HasPrefix(key, prefix) {
			return mst.ErrStopWalk
		}
		if cursor != "" && key == from {
			return nil
		}
		out = append(out, mst.Leaf{Key: key, Value: val})
		if limit > 0 && len(out) >= limit {
			return mst.ErrStopWalk
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Diffs the tree at an earlier root against the current tree. An undefined since diffs from the empty tree.
func (r *Repo) Diff(ctx context.Context, since cid.Cid) (*mst.DiffResult, error) {
	var from *mst.Tree
	if since.Defined() {
		from = mst.LoadTree(r.Storage, since)
	}
	return mst.Diff(ctx, from, r.Tree())
}
