package repostore

import (
	"context"
	"errors"
	"time"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	ipld "github.com/ipfs/go-ipld-format"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Instrumented wraps a store with prometheus metrics and tracing spans.
type Instrumented struct {
	base RepoStorage
}

var _ RepoStorage = (*Instrumented)(nil)

func NewInstrumented(base RepoStorage) *Instrumented {
	return &Instrumented{base: base}
}

var tracer = otel.Tracer("repostore")

func observe(op string, start time.Time, span trace.Span, err error) {
	storeOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	status := "ok"
	switch {
	case err == nil:
	case ipld.IsNotFound(err) || errors.Is(err, ErrRootNotFound):
		status = "not_found"
	default:
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	storeOps.WithLabelValues(op, status).Inc()
	span.End()
}

func (s *Instrumented) GetBlock(ctx context.Context, c cid.Cid) (data []byte, err error) {
	ctx, span := tracer.Start(ctx, "GetBlock", trace.WithAttributes(attribute.String("cid", c.String())))
	defer func(start time.Time) { observe("get_block", start, span, err) }(time.Now())
	return s.base.GetBlock(ctx, c)
}

func (s *Instrumented) Has(ctx context.Context, c cid.Cid) (ok bool, err error) {
	ctx, span := tracer.Start(ctx, "Has")
	defer func(start time.Time) { observe("has", start, span, err) }(time.Now())
	return s.base.Has(ctx, c)
}

func (s *Instrumented) PutBlock(ctx context.Context, c cid.Cid, data []byte, rev string) (err error) {
	ctx, span := tracer.Start(ctx, "PutBlock", trace.WithAttributes(attribute.String("cid", c.String()), attribute.String("rev", rev)))
	defer func(start time.Time) { observe("put_block", start, span, err) }(time.Now())
	if err = s.base.PutBlock(ctx, c, data, rev); err == nil {
		blocksWritten.Inc()
	}
	return err
}

func (s *Instrumented) PutBlocks(ctx context.Context, blks []blocks.Block, rev string) (err error) {
	ctx, span := tracer.Start(ctx, "PutBlocks", trace.WithAttributes(attribute.Int("count", len(blks)), attribute.String("rev", rev)))
	defer func(start time.Time) { observe("put_blocks", start, span, err) }(time.Now())
	if err = s.base.PutBlocks(ctx, blks, rev); err == nil {
		blocksWritten.Add(float64(len(blks)))
	}
	return err
}

func (s *Instrumented) GetRootDetailed(ctx context.Context) (root *RootDetailed, err error) {
	ctx, span := tracer.Start(ctx, "GetRootDetailed")
	defer func(start time.Time) { observe("get_root", start, span, err) }(time.Now())
	return s.base.GetRootDetailed(ctx)
}

func (s *Instrumented) UpdateRoot(ctx context.Context, root cid.Cid, rev string) (err error) {
	ctx, span := tracer.Start(ctx, "UpdateRoot", trace.WithAttributes(attribute.String("root", root.String()), attribute.String("rev", rev)))
	defer func(start time.Time) { observe("update_root", start, span, err) }(time.Now())
	return s.base.UpdateRoot(ctx, root, rev)
}

func (s *Instrumented) Close() error {
	return s.base.Close()
}
