package mst

import (
	"context"
	"fmt"

	"github.com/ipfs/go-cid"
)

// A single key mutation. A nil Value means deletion. Prev is the value before the mutation, and is filled in when the operation is applied.
type Operation struct {
	Path  string
	Value *cid.Cid
	Prev  *cid.Cid
}

func (op *Operation) IsCreate() bool {
	return op.Value != nil && op.Prev == nil
}

func (op *Operation) IsUpdate() bool {
	return op.Value != nil && op.Prev != nil && *op.Value != *op.Prev
}

func (op *Operation) IsDelete() bool {
	return op.Value == nil && op.Prev != nil
}

// Applies a batch of operations in order, returning the resulting tree and the full operations (with Prev set).
//
// All keys are validated before anything is applied, and any failure (including deleting a missing key) fails the whole batch. The receiver is never modified.
func (t *Tree) ApplyOps(ctx context.Context, ops []Operation) (*Tree, []Operation, error) {
	for _, op := range ops {
		if err := EnsureValidKey(op.Path); err != nil {
			return nil, nil, err
		}
	}

	out := make([]Operation, 0, len(ops))
	next := t
	for _, op := range ops {
		var err error
		var full Operation
		next, full, err = next.applyOp(ctx, op.Path, op.Value)
		if err != nil {
			return nil, nil, fmt.Errorf("applying MST op on %s: %w", op.Path, err)
		}
		out = append(out, full)
	}
	return next, out, nil
}

func (t *Tree) applyOp(ctx context.Context, path string, val *cid.Cid) (*Tree, Operation, error) {
	if val != nil {
		next, prev, err := t.Insert(ctx, path, *val)
		if err != nil {
			return nil, Operation{}, err
		}
		return next, Operation{Path: path, Value: val, Prev: prev}, nil
	}
	next, prev, err := t.Delete(ctx, path)
	if err != nil {
		return nil, Operation{}, err
	}
	return next, Operation{Path: path, Prev: &prev}, nil
}

// Does a simple "forwards" (not inversion) check of operation
func (t *Tree) CheckOp(ctx context.Context, op *Operation) error {
	val, err := t.Get(ctx, op.Path)
	if err != nil {
		return err
	}
	if op.IsCreate() || op.IsUpdate() {
		if val == nil || *val != *op.Value {
			return fmt.Errorf("tree value did not match op: %s %s", op.Path, val)
		}
		return nil
	}
	if op.IsDelete() {
		if val != nil {
			return fmt.Errorf("key still in tree after deletion op: %s", op.Path)
		}
		return nil
	}
	return fmt.Errorf("invalid operation")
}

// Applies the inverse of an operation which was previously applied to the tree, returning the prior tree state.
func (t *Tree) InvertOp(ctx context.Context, op *Operation) (*Tree, error) {
	if err := t.CheckOp(ctx, op); err != nil {
		return nil, fmt.Errorf("can not invert op: %w", err)
	}
	switch {
	case op.IsCreate():
		next, _, err := t.Delete(ctx, op.Path)
		return next, err
	case op.IsUpdate():
		next, _, err := t.Update(ctx, op.Path, *op.Prev)
		return next, err
	case op.IsDelete():
		return t.Add(ctx, op.Path, *op.Prev)
	default:
		return nil, fmt.Errorf("invalid operation")
	}
}
