package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/rsky-pds/repo-mst/atproto/repo/mst"

	"github.com/ipfs/go-cid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

type WriteAction string

const (
	WriteCreate WriteAction = "create"
	WriteUpdate WriteAction = "update"
	WriteDelete WriteAction = "delete"
)

// A single record write. Value is ignored for deletes.
type Write struct {
	Action     WriteAction
	Collection string
	RKey       string
	Value      cid.Cid
}

func (w *Write) Path() string {
	return w.Collection + "/" + w.RKey
}

type CommitResult struct {
	Root cid.Cid
	Rev  string
	// root of the previous commit, nil for the first commit
	Prev *cid.Cid
	Ops  []mst.DiffOp
	// number of new blocks written
	Blocks int
}

var ErrEmptyCommit = errors.New("no writes in commit")

func (w *Write) validate() error {
	switch w.Action {
	case WriteCreate, WriteUpdate:
		if !w.Value.Defined() {
			return fmt.Errorf("%s of %s has no record CID", w.Action, w.Path())
		}
	case WriteDelete:
	default:
		return fmt.Errorf("unknown write action: %q", w.Action)
	}
	return mst.EnsureValidKey(w.Path())
}

// Applies a batch of writes as one commit. Every write is validated before any is applied; if any fails, the repository is left unchanged.
//
// Blocks for new tree nodes are written tagged with a fresh revision, then the root pointer is moved.
func (r *Repo) ApplyWrites(ctx context.Context, writes []Write) (*CommitResult, error) {
	ctx, span := otel.Tracer("repo").Start(ctx, "ApplyWrites")
	defer span.End()
	span.SetAttributes(
		attribute.String("did", r.DID),
		attribute.Int("writes", len(writes)),
	)

	if len(writes) == 0 {
		return nil, ErrEmptyCommit
	}
	for i := range writes {
		if err := writes[i].validate(); err != nil {
			return nil, err
		}
	}

	r.mtx.Lock()
	defer r.mtx.Unlock()

	prevTree := r.tree
	tree := r.tree
	for _, w := range writes {
		var err error
		switch w.Action {
		case WriteCreate:
			tree, err = tree.Add(ctx, w.Path(), w.Value)
		case WriteUpdate:
			tree, _, err = tree.Update(ctx, w.Path(), w.Value)
		case WriteDelete:
			tree, _, err = tree.Delete(ctx, w.Path())
		}
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", w.Action, w.Path(), err)
		}
	}

	rev := r.Clock.Next().String()
	blks, err := tree.UnstoredBlocks(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.Storage.PutBlocks(ctx, blks, rev); err != nil {
		return nil, fmt.Errorf("writing commit blocks: %w", err)
	}
	if err := tree.MarkStored(ctx); err != nil {
		return nil, err
	}
	root, err := tree.RootCID()
	if err != nil {
		return nil, err
	}
	if err := r.Storage.UpdateRoot(ctx, root, rev); err != nil {
		return nil, fmt.Errorf("updating repo root: %w", err)
	}

	diff, err := mst.Diff(ctx, prevTree, tree)
	if err != nil {
		return nil, fmt.Errorf("diffing commit: %w", err)
	}

	res := &CommitResult{
		Root:   root,
		Rev:    rev,
		Prev:   r.root,
		Ops:    diff.Ops,
		Blocks: len(blks),
	}
	r.tree = tree
	r.root = &root
	r.rev = rev

	span.SetAttributes(attribute.String("rev", rev), attribute.Int("blocks", len(blks)))
	r.Logger.Debug("committed", "root", root, "rev", rev, "ops", len(diff.Ops), "blocks", len(blks))
	return res, nil
}
