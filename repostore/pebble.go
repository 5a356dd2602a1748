package repostore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/cockroachdb/pebble"
	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	ipld "github.com/ipfs/go-ipld-format"
)

// PebbleStore keeps repository blocks in a pebble key/value database. Multiple repositories can share one database.
//
// Inner schema:
// B{did}\x00{cid bytes} : {uvarint len(rev)}{rev}{block bytes}
// R{did} : {uvarint len(rev)}{rev}{cid bytes}
type PebbleStore struct {
	db     *pebble.DB
	did    string
	ownsDB bool

	log *slog.Logger
}

var _ RepoStorage = (*PebbleStore)(nil)

// Opens (or creates) a pebble database at the given path, for a single repository.
func OpenPebbleStore(path, did string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening pebble db: %w", err)
	}
	ps := NewPebbleStore(db, did)
	ps.ownsDB = true
	return ps, nil
}

// Wraps an existing database. The caller remains responsible for closing it.
func NewPebbleStore(db *pebble.DB, did string) *PebbleStore {
	return &PebbleStore{
		db:  db,
		did: did,
		log: slog.Default().With("system", "repostore", "store", "pebble"),
	}
}

func (ps *PebbleStore) blockKey(c cid.Cid) []byte {
	cb := c.Bytes()
	out := make([]byte, 1+len(ps.did)+1+len(cb))
	out[0] = 'B'
	copy(out[1:], ps.did)
	pos := 1 + len(ps.did)
	out[pos] = 0
	copy(out[pos+1:], cb)
	return out
}

func (ps *PebbleStore) rootKey() []byte {
	out := make([]byte, 1+len(ps.did))
	out[0] = 'R'
	copy(out[1:], ps.did)
	return out
}

func encodeRevValue(rev string, data []byte) []byte {
	out := make([]byte, binary.MaxVarintLen64+len(rev)+len(data))
	pos := binary.PutUvarint(out, uint64(len(rev)))
	pos += copy(out[pos:], rev)
	pos += copy(out[pos:], data)
	return out[:pos]
}

func decodeRevValue(val []byte) (string, []byte, error) {
	l, n := binary.Uvarint(val)
	if n <= 0 || uint64(len(val)-n) < l {
		return "", nil, fmt.Errorf("corrupt pebble value")
	}
	rev := string(val[n : n+int(l)])
	// copy out, since pebble owns the value buffer
	data := append([]byte(nil), val[n+int(l):]...)
	return rev, data, nil
}

func (ps *PebbleStore) get(key []byte) ([]byte, bool, error) {
	val, closer, err := ps.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	out := append([]byte(nil), val...)
	if err := closer.Close(); err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func (ps *PebbleStore) GetBlock(ctx context.Context, c cid.Cid) ([]byte, error) {
	val, ok, err := ps.get(ps.blockKey(c))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &ipld.ErrNotFound{Cid: c}
	}
	_, data, err := decodeRevValue(val)
	if err != nil {
		return nil, fmt.Errorf("block %s: %w", c, err)
	}
	return data, nil
}

// Returns the revision which wrote a block.
func (ps *PebbleStore) BlockRev(ctx context.Context, c cid.Cid) (string, error) {
	val, ok, err := ps.get(ps.blockKey(c))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &ipld.ErrNotFound{Cid: c}
	}
	rev, _, err := decodeRevValue(val)
	return rev, err
}

func (ps *PebbleStore) Has(ctx context.Context, c cid.Cid) (bool, error) {
	_, ok, err := ps.get(ps.blockKey(c))
	return ok, err
}

func (ps *PebbleStore) PutBlock(ctx context.Context, c cid.Cid, data []byte, rev string) error {
	return ps.db.Set(ps.blockKey(c), encodeRevValue(rev, data), pebble.Sync)
}

func (ps *PebbleStore) PutBlocks(ctx context.Context, blks []blocks.Block, rev string) error {
	batch := ps.db.NewBatch()
	defer batch.Close()
	for _, blk := range blks {
		if err := batch.Set(ps.blockKey(blk.Cid()), encodeRevValue(rev, blk.RawData()), nil); err != nil {
			return err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return err
	}
	ps.log.Debug("wrote blocks", "did", ps.did, "count", len(blks), "rev", rev)
	return nil
}

func (ps *PebbleStore) GetRootDetailed(ctx context.Context) (*RootDetailed, error) {
	val, ok, err := ps.get(ps.rootKey())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRootNotFound
	}
	rev, cb, err := decodeRevValue(val)
	if err != nil {
		return nil, fmt.Errorf("repo root: %w", err)
	}
	c, err := cid.Cast(cb)
	if err != nil {
		return nil, fmt.Errorf("repo root: %w", err)
	}
	return &RootDetailed{CID: c, Rev: rev}, nil
}

func (ps *PebbleStore) UpdateRoot(ctx context.Context, root cid.Cid, rev string) error {
	return ps.db.Set(ps.rootKey(), encodeRevValue(rev, root.Bytes()), pebble.Sync)
}

func (ps *PebbleStore) Close() error {
	if !ps.ownsDB {
		return nil
	}
	return ps.db.Close()
}

var _ io.Closer = (*PebbleStore)(nil)
