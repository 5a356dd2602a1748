// Package fakedata generates reproducible test records and keys for exercising repository trees.
package fakedata

import (
	"context"
	"fmt"
	"time"

	"github.com/rsky-pds/repo-mst/atproto/syntax"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/ipfs/go-cid"
	cbornode "github.com/ipfs/go-ipld-cbor"
	"github.com/multiformats/go-multihash"
)

const randomCharset = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

const KeyCollection = "com.example.record"

var recordPrefix = cid.Prefix{
	Version:  1,
	Codec:    cid.DagCBOR,
	MhType:   multihash.SHA2_256,
	MhLength: -1,
}

// Anything blocks can be written to, such as a repostore.RepoStorage.
type BlockPutter interface {
	PutBlock(ctx context.Context, c cid.Cid, data []byte, rev string) error
}

// Generator is a seeded source of fake data. The same seed always produces the same sequence. Not safe for concurrent use.
type Generator struct {
	faker *gofakeit.Faker
	clock *syntax.TIDClock
}

func NewGenerator(seed int64) *Generator {
	faker := gofakeit.New(seed)
	base := faker.DateRange(
		time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	).UTC()
	clock := syntax.NewTIDClock(uint(faker.IntRange(0, 1023)))
	// frozen time: each TID is one microsecond after the last
	clock.Now = func() time.Time { return base }
	return &Generator{
		faker: faker,
		clock: clock,
	}
}

func (g *Generator) RandomString(n int) string {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = randomCharset[g.faker.IntRange(0, len(randomCharset)-1)]
	}
	return string(buf)
}

// Encodes a small record, {"test": <50 random chars>}, as DAG-CBOR.
func (g *Generator) RandomRecord() ([]byte, error) {
	return cbornode.DumpObject(map[string]string{"test": g.RandomString(50)})
}

// Returns the CID of a fresh random record. If store is non-nil the record block is written, tagged with rev.
func (g *Generator) RandomCID(ctx context.Context, store BlockPutter, rev string) (cid.Cid, error) {
	rec, err := g.RandomRecord()
	if err != nil {
		return cid.Undef, err
	}
	c, err := recordPrefix.Sum(rec)
	if err != nil {
		return cid.Undef, err
	}
	if store != nil {
		if err := store.PutBlock(ctx, c, rec, rev); err != nil {
			return cid.Undef, fmt.Errorf("storing fake record: %w", err)
		}
	}
	return c, nil
}

// Next revision from the generator's clock.
func (g *Generator) NextTID() syntax.TID {
	return g.clock.Next()
}

// Generates count record keys, "com.example.record/<tid>", in increasing order.
func (g *Generator) BulkKeys(count int) []string {
	out := make([]string, count)
	for i := range out {
		out[i] = KeyCollection + "/" + g.NextTID().String()
	}
	return out
}

// Generates count keys mapped to random record CIDs. Each record is written to store (if non-nil) under its key's TID as revision.
func (g *Generator) BulkData(ctx context.Context, count int, store BlockPutter) (map[string]cid.Cid, error) {
	out := make(map[string]cid.Cid, count)
	for i := 0; i < count; i++ {
		rev := g.NextTID().String()
		c, err := g.RandomCID(ctx, store, rev)
		if err != nil {
			return nil, err
		}
		out[KeyCollection+"/"+rev] = c
	}
	return out, nil
}

// Abbreviates a CID for debug output.
func ShortCID(c cid.Cid) string {
	s := c.String()
	if len(s) <= 15 {
		return s
	}
	return s[:7] + "..." + s[len(s)-8:]
}
