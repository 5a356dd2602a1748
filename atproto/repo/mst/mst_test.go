package mst

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ipfs/go-cid"
	ipld "github.com/ipfs/go-ipld-format"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// in-memory block store which counts reads
type countingStore struct {
	mu     sync.Mutex
	blocks map[cid.Cid][]byte
	gets   atomic.Int64
}

func newCountingStore() *countingStore {
	return &countingStore{blocks: map[cid.Cid][]byte{}}
}

func (s *countingStore) GetBlock(ctx context.Context, c cid.Cid) ([]byte, error) {
	s.gets.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[c]
	if !ok {
		return nil, &ipld.ErrNotFound{Cid: c}
	}
	return b, nil
}

func (s *countingStore) PutBlock(ctx context.Context, c cid.Cid, data []byte, rev string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[c] = data
	return nil
}

func (s *countingStore) resetCount() {
	s.gets.Store(0)
}

func testCID(t testing.TB, i int) cid.Cid {
	c, err := cid.NewPrefixV1(cid.Raw, multihash.SHA2_256).Sum([]byte(fmt.Sprintf("value-%d", i)))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func testKey(i int) string {
	return fmt.Sprintf("com.example.record/%08d", i)
}

func buildTree(t testing.TB, store BlockReader, count int) *Tree {
	ctx := context.Background()
	tree := NewEmptyTree(store)
	for i := 0; i < count; i++ {
		var err error
		tree, err = tree.Add(ctx, testKey(i), testCID(t, i))
		if err != nil {
			t.Fatal(err)
		}
	}
	return tree
}

func TestBasicMST(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	c2 := testCID(t, 2)
	c3 := testCID(t, 3)
	tree := NewEmptyTree(nil)

	tree, prev, err := tree.Insert(ctx, "coll/abc", c2)
	assert.NoError(err)
	assert.Nil(prev)

	val, err := tree.Get(ctx, "coll/abc")
	assert.NoError(err)
	assert.Equal(c2, *val)

	val, err = tree.Get(ctx, "coll/xyz")
	assert.NoError(err)
	assert.Nil(val)

	tree, prev, err = tree.Insert(ctx, "coll/abc", c3)
	assert.NoError(err)
	assert.Equal(&c2, prev)

	val, err = tree.Get(ctx, "coll/abc")
	assert.NoError(err)
	assert.Equal(&c3, val)

	tree, err = tree.Add(ctx, "coll/aaa", c2)
	assert.NoError(err)

	tree, err = tree.Add(ctx, "coll/zzz", c3)
	assert.NoError(err)

	val, err = tree.Get(ctx, "coll/zzz")
	assert.NoError(err)
	assert.Equal(&c3, val)

	m := make(map[string]cid.Cid)
	assert.NoError(tree.ReadToMap(ctx, m))
	assert.Equal(map[string]cid.Cid{
		"coll/aaa": c2,
		"coll/abc": c3,
		"coll/zzz": c3,
	}, m)

	var buf bytes.Buffer
	DebugPrintMap(&buf, m)
	assert.Contains(buf.String(), "coll/abc")
	buf.Reset()
	assert.NoError(DebugPrintTree(ctx, &buf, tree))
	assert.Contains(buf.String(), "coll/zzz")

	assert.NoError(tree.Verify(ctx))
}

func TestAddUpdateDeleteErrors(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	c1 := testCID(t, 1)
	c2 := testCID(t, 2)

	tree := buildTree(t, nil, 50)
	before := rootCidString(t, tree)

	_, err := tree.Add(ctx, testKey(7), c1)
	assert.ErrorIs(err, ErrKeyExists)

	_, _, err = tree.Update(ctx, testKey(500), c1)
	assert.ErrorIs(err, ErrKeyNotFound)

	_, _, err = tree.Delete(ctx, testKey(500))
	assert.ErrorIs(err, ErrKeyNotFound)

	updated, prev, err := tree.Update(ctx, testKey(7), c2)
	assert.NoError(err)
	assert.Equal(testCID(t, 7), prev)
	val, err := updated.Get(ctx, testKey(7))
	assert.NoError(err)
	assert.Equal(&c2, val)

	// original tree is never modified
	assert.Equal(before, rootCidString(t, tree))
	val, err = tree.Get(ctx, testKey(7))
	assert.NoError(err)
	assert.Equal(testCID(t, 7), *val)

	// updating to the same value is a no-op
	same, _, err := tree.Update(ctx, testKey(7), testCID(t, 7))
	assert.NoError(err)
	assert.Equal(before, rootCidString(t, same))
}

func TestInvalidKeysLeaveTreeUnchanged(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	c1 := testCID(t, 1)

	tree := buildTree(t, nil, 20)
	before := rootCidString(t, tree)

	for _, k := range []string{"", "coll/.", "coll/..", "no-slash", "a/b/c", "coll/" + string(make([]byte, 300))} {
		_, err := tree.Add(ctx, k, c1)
		assert.ErrorIs(err, ErrInvalidKey, k)
		_, _, err = tree.Insert(ctx, k, c1)
		assert.ErrorIs(err, ErrInvalidKey, k)
		_, _, err = tree.Delete(ctx, k)
		assert.ErrorIs(err, ErrInvalidKey, k)
		_, err = tree.Get(ctx, k)
		assert.ErrorIs(err, ErrInvalidKey, k)
	}
	assert.Equal(before, rootCidString(t, tree))
}

func TestDeleteInvertsInsert(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	tree := buildTree(t, nil, 200)
	before := rootCidString(t, tree)

	for i := 1000; i < 1050; i++ {
		next, err := tree.Add(ctx, testKey(i), testCID(t, i))
		if err != nil {
			t.Fatal(err)
		}
		assert.NotEqual(before, rootCidString(t, next))
		back, prev, err := next.Delete(ctx, testKey(i))
		if err != nil {
			t.Fatal(err)
		}
		assert.Equal(testCID(t, i), prev)
		assert.Equal(before, rootCidString(t, back))
		assert.NoError(back.Verify(ctx))
	}
}

func TestDeleteAll(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	tree := buildTree(t, nil, 100)
	for i := 0; i < 100; i++ {
		var err error
		tree, _, err = tree.Delete(ctx, testKey(i))
		if err != nil {
			t.Fatal(err)
		}
		if i%10 == 0 {
			assert.NoError(tree.Verify(ctx))
		}
	}
	empty, err := tree.IsEmpty(ctx)
	assert.NoError(err)
	assert.True(empty)
	assert.Equal("bafyreie5737gdxlw5i64vzichcalba3z2v5n6icifvx5xytvske7mr3hpm", rootCidString(t, tree))
	assert.Equal(0, treeHeight(t, tree))

	// and the emptied tree is still usable
	tree, err = tree.Add(ctx, "com.example.record/3jqfcqzm3fo2j", mustCID(t, cid1str))
	assert.NoError(err)
	assert.Equal("bafyreibj4lsc3aqnrvphp5xmrnfoorvru4wynt6lwidqbm2623a6tatzdu", rootCidString(t, tree))
}

func TestLazyLoading(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	store := newCountingStore()

	tree := buildTree(t, store, 300)
	root, err := tree.WriteBlocks(ctx, store, "rev1")
	require.NoError(err)

	// nothing left to write
	blks, err := tree.UnstoredBlocks(ctx)
	require.NoError(err)
	assert.Empty(blks)

	loaded := LoadTree(store, root)
	assert.Equal(int64(0), store.gets.Load())
	rc, err := loaded.RootCID()
	require.NoError(err)
	assert.Equal(root, rc)

	val, err := loaded.Get(ctx, testKey(123))
	require.NoError(err)
	assert.Equal(testCID(t, 123), *val)
	height, err := loaded.Height(ctx)
	require.NoError(err)
	// a point read only loads one path from root to leaf
	assert.LessOrEqual(store.gets.Load(), int64(height+1))

	// mutations on a loaded tree only produce new nodes along the mutated path
	next, err := loaded.Add(ctx, testKey(5000), testCID(t, 5000))
	require.NoError(err)
	blks, err = next.UnstoredBlocks(ctx)
	require.NoError(err)
	assert.LessOrEqual(len(blks), 2*(height+2))

	count, err := loaded.LeafCount(ctx)
	require.NoError(err)
	assert.Equal(300, count)
	assert.NoError(loaded.Verify(ctx))

	all, err := loaded.AllCIDs(ctx)
	require.NoError(err)
	assert.Equal(root, all[0])
	for _, c := range all {
		_, ok := store.blocks[c]
		assert.True(ok)
	}
}

func TestMissingBlock(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	store := newCountingStore()

	missing := mustCID(t, cid1str)
	tree := LoadTree(store, missing)
	_, err := tree.Get(ctx, "coll/abc")
	assert.Error(err)
	assert.True(ipld.IsNotFound(err))

	// no store at all
	tree = LoadTree(nil, missing)
	_, err = tree.Get(ctx, "coll/abc")
	assert.Error(err)
}

func TestCorruptBlock(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	store := newCountingStore()

	c := mustCID(t, cid1str)
	store.blocks[c] = []byte{0x01, 0x02, 0x03}
	tree := LoadTree(store, c)
	_, err := tree.Get(ctx, "coll/abc")
	assert.True(errors.Is(err, ErrSerialization))
}

func TestConcurrentReads(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	store := newCountingStore()

	tree := buildTree(t, store, 500)
	root, err := tree.WriteBlocks(ctx, store, "rev1")
	require.NoError(err)
	nodes, err := tree.AllCIDs(ctx)
	require.NoError(err)

	loaded := LoadTree(store, root)
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				val, err := loaded.Get(ctx, testKey(i))
				if err != nil {
					errs <- err
					return
				}
				if val == nil || *val != testCID(t, i) {
					errs <- fmt.Errorf("wrong value for %s", testKey(i))
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	// every node was fetched exactly once, despite concurrent readers
	assert.Equal(int64(len(nodes)), store.gets.Load())
}

func TestHydrate(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	store := newCountingStore()

	tree := buildTree(t, store, 400)
	root, err := tree.WriteBlocks(ctx, store, "rev1")
	require.NoError(err)
	nodes, err := tree.AllCIDs(ctx)
	require.NoError(err)

	loaded := LoadTree(store, root)
	require.NoError(loaded.Hydrate(ctx, 4))
	assert.Equal(int64(len(nodes)), store.gets.Load())

	// fully in memory now
	store.resetCount()
	count, err := loaded.LeafCount(ctx)
	require.NoError(err)
	assert.Equal(400, count)
	assert.Equal(int64(0), store.gets.Load())

	// errors propagate
	broken := LoadTree(newCountingStore(), root)
	assert.True(ipld.IsNotFound(broken.Hydrate(ctx, 4)))
}

func TestApplyOps(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	tree := buildTree(t, nil, 30)
	before := rootCidString(t, tree)

	c1 := testCID(t, 9001)
	c2 := testCID(t, 9002)
	ops := []Operation{
		{Path: testKey(1000), Value: &c1},
		{Path: testKey(3), Value: &c2},
		{Path: testKey(4)},
	}
	next, full, err := tree.ApplyOps(ctx, ops)
	require.NoError(err)
	require.Len(full, 3)
	assert.True(full[0].IsCreate())
	assert.True(full[1].IsUpdate())
	assert.True(full[2].IsDelete())
	for _, op := range full {
		assert.NoError(next.CheckOp(ctx, &op))
	}

	// operations invert, in reverse order
	back := next
	for i := len(full) - 1; i >= 0; i-- {
		back, err = back.InvertOp(ctx, &full[i])
		require.NoError(err)
	}
	assert.Equal(before, rootCidString(t, back))

	// a failing op fails the whole batch
	_, _, err = tree.ApplyOps(ctx, []Operation{
		{Path: testKey(2000), Value: &c1},
		{Path: testKey(2001)},
	})
	assert.ErrorIs(err, ErrKeyNotFound)

	// validation happens before anything is applied
	_, _, err = tree.ApplyOps(ctx, []Operation{
		{Path: testKey(2000), Value: &c1},
		{Path: "bad key", Value: &c1},
	})
	assert.ErrorIs(err, ErrInvalidKey)
	assert.Equal(before, rootCidString(t, tree))
}

func TestVerifyDetectsBadStructure(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	c1 := testCID(t, 1)

	// root which is just a pointer to a child
	child := newNode(nil, []NodeEntry{leafEntry("com.example.record/3jqfcqzm3fo2j", c1)}, 0)
	tree := &Tree{root: newNode(nil, []NodeEntry{treeEntry(child)}, 1)}
	assert.ErrorIs(tree.Verify(ctx), ErrInvalidTree)

	// key on the wrong layer
	tree = &Tree{root: newNode(nil, []NodeEntry{
		leafEntry("com.example.record/3jqfcqzm3fo2j", c1),
		leafEntry("com.example.record/3jqfcqzm3fs2j", c1),
	}, 0)}
	assert.ErrorIs(tree.Verify(ctx), ErrInvalidTree)

	// keys out of order
	tree = &Tree{root: newNode(nil, []NodeEntry{
		leafEntry("com.example.record/3jqfcqzm3fp2j", c1),
		leafEntry("com.example.record/3jqfcqzm3fo2j", c1),
	}, 0)}
	assert.ErrorIs(tree.Verify(ctx), ErrInvalidTree)
}
