// This file contains tests which are the same across language implementations.
// AKA, if you update this file, you should probably update the corresponding
// file in the other implementations
package mst

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ipfs/go-cid"
)

const cid1str = "bafyreie5cvv4h45feadgeuwhbcutmh6t2ceseocckahdoe6uat64zmz454"

func mapToCidMapDecode(t *testing.T, a map[string]string) map[string]cid.Cid {
	out := make(map[string]cid.Cid)
	for k, v := range a {
		c, err := cid.Decode(v)
		if err != nil {
			t.Fatal(err)
		}
		out[k] = c
	}
	return out
}

func mapToTree(t *testing.T, m map[string]string) *Tree {
	tree, err := NewTreeFromMap(context.Background(), nil, mapToCidMapDecode(t, m))
	if err != nil {
		t.Fatal(err)
	}
	return tree
}

func mapToMstRootCidString(t *testing.T, m map[string]string) string {
	return rootCidString(t, mapToTree(t, m))
}

func rootCidString(t *testing.T, tree *Tree) string {
	c, err := tree.RootCID()
	if err != nil {
		t.Fatal(err)
	}
	return c.String()
}

func treeHeight(t *testing.T, tree *Tree) int {
	h, err := tree.Height(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func TestManualNode(t *testing.T) {

	cid1, err := cid.Decode(cid1str)
	if err != nil {
		t.Fatal(err)
	}

	simple_nd := NodeData{
		Left: nil,
		Entries: []EntryData{
			{
				PrefixLen: 0,
				KeySuffix: []byte("com.example.record/3jqfcqzm3fo2j"),
				Value:     cid1,
				Right:     nil,
			},
		},
	}
	entries, layer, err := deserializeNodeData(nil, &simple_nd, -1)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 0, layer)
	assert.Equal(t, []NodeEntry{leafEntry("com.example.record/3jqfcqzm3fo2j", cid1)}, entries)

	nd, err := serializeNodeData(entries)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, simple_nd, *nd)

	_, mcid, err := nd.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "bafyreibj4lsc3aqnrvphp5xmrnfoorvru4wynt6lwidqbm2623a6tatzdu", mcid.String())
}

func TestInteropKnownMaps(t *testing.T) {

	// empty map
	emptyMap := map[string]string{}
	assert.Equal(t, "bafyreie5737gdxlw5i64vzichcalba3z2v5n6icifvx5xytvske7mr3hpm", mapToMstRootCidString(t, emptyMap))

	// no depth, single entry
	trivialMap := map[string]string{
		"com.example.record/3jqfcqzm3fo2j": cid1str,
	}
	assert.Equal(t, "bafyreibj4lsc3aqnrvphp5xmrnfoorvru4wynt6lwidqbm2623a6tatzdu", mapToMstRootCidString(t, trivialMap))

	// single layer=2 entry
	singlelayer2Map := map[string]string{
		"com.example.record/3jqfcqzm3fx2j": cid1str,
	}
	assert.Equal(t, "bafyreih7wfei65pxzhauoibu3ls7jgmkju4bspy4t2ha2qdjnzqvoy33ai", mapToMstRootCidString(t, singlelayer2Map))

	// pretty simple, but with some depth
	simpleMap := map[string]string{
		"com.example.record/3jqfcqzm3fp2j": cid1str,
		"com.example.record/3jqfcqzm3fr2j": cid1str,
		"com.example.record/3jqfcqzm3fs2j": cid1str,
		"com.example.record/3jqfcqzm3ft2j": cid1str,
		"com.example.record/3jqfcqzm4fc2j": cid1str,
	}
	assert.Equal(t, "bafyreicmahysq4n6wfuxo522m6dpiy7z7qzym3dzs756t5n7nfdgccwq7m", mapToMstRootCidString(t, simpleMap))
}

// "trims top of tree on delete"
func TestInteropEdgeCasesTrimTop(t *testing.T) {
	ctx := context.Background()

	l1root := "bafyreifnqrwbk6ffmyaz5qtujqrzf5qmxf7cbxvgzktl4e3gabuxbtatv4"
	l0root := "bafyreie4kjuxbwkhzg2i5dljaswcroeih4dgiqq6pazcmunwt2byd725vi"

	trimMap := map[string]string{
		"com.example.record/3jqfcqzm3fn2j": cid1str, // level 0
		"com.example.record/3jqfcqzm3fo2j": cid1str, // level 0
		"com.example.record/3jqfcqzm3fp2j": cid1str, // level 0
		"com.example.record/3jqfcqzm3fs2j": cid1str, // level 1
		"com.example.record/3jqfcqzm3ft2j": cid1str, // level 0
		"com.example.record/3jqfcqzm3fu2j": cid1str, // level 0
	}
	trimMst := mapToTree(t, trimMap)
	assert.Equal(t, 1, treeHeight(t, trimMst))
	assert.Equal(t, l1root, rootCidString(t, trimMst))

	trimMst, _, err := trimMst.Delete(ctx, "com.example.record/3jqfcqzm3fs2j") // level 1
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 0, treeHeight(t, trimMst))
	assert.Equal(t, l0root, rootCidString(t, trimMst))
}

func TestInteropEdgeCasesInsertion(t *testing.T) {
	ctx := context.Background()

	cid1, err := cid.Decode(cid1str)
	if err != nil {
		t.Fatal(err)
	}

	// "handles insertion that splits two layers down"
	l1root := "bafyreiettyludka6fpgp33stwxfuwhkzlur6chs4d2v4nkmq2j3ogpdjem"
	l2root := "bafyreid2x5eqs4w4qxvc5jiwda4cien3gw2q6cshofxwnvv7iucrmfohpm"
	insertionMap := map[string]string{
		"com.example.record/3jqfcqzm3fo2j": cid1str, // A; level 0
		"com.example.record/3jqfcqzm3fp2j": cid1str, // B; level 0
		"com.example.record/3jqfcqzm3fr2j": cid1str, // C; level 0
		"com.example.record/3jqfcqzm3fs2j": cid1str, // D; level 1
		"com.example.record/3jqfcqzm3ft2j": cid1str, // E; level 0
		"com.example.record/3jqfcqzm3fz2j": cid1str, // G; level 0
		"com.example.record/3jqfcqzm4fc2j": cid1str, // H; level 0
		"com.example.record/3jqfcqzm4fd2j": cid1str, // I; level 1
		"com.example.record/3jqfcqzm4ff2j": cid1str, // J; level 0
		"com.example.record/3jqfcqzm4fg2j": cid1str, // K; level 0
		"com.example.record/3jqfcqzm4fh2j": cid1str, // L; level 0
	}
	insertionMst := mapToTree(t, insertionMap)
	assert.Equal(t, 1, treeHeight(t, insertionMst))
	assert.Equal(t, l1root, rootCidString(t, insertionMst))

	// insert F, which will push E out of the node with G+H to a new node under D
	insertionMst, err = insertionMst.Add(ctx, "com.example.record/3jqfcqzm3fx2j", cid1) // F; level 2
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 2, treeHeight(t, insertionMst))
	assert.Equal(t, l2root, rootCidString(t, insertionMst))

	// remove F, which should push E back over with G+H
	insertionMst, _, err = insertionMst.Delete(ctx, "com.example.record/3jqfcqzm3fx2j") // F; level 2
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 1, treeHeight(t, insertionMst))
	assert.Equal(t, l1root, rootCidString(t, insertionMst))
}

// "handles new layers that are two higher than existing"
func TestInteropEdgeCasesHigher(t *testing.T) {
	ctx := context.Background()

	cid1, err := cid.Decode(cid1str)
	if err != nil {
		t.Fatal(err)
	}

	l0root := "bafyreidfcktqnfmykz2ps3dbul35pepleq7kvv526g47xahuz3rqtptmky"
	l2root := "bafyreiavxaxdz7o7rbvr3zg2liox2yww46t7g6hkehx4i4h3lwudly7dhy"
	l2root2 := "bafyreig4jv3vuajbsybhyvb7gggvpwh2zszwfyttjrj6qwvcsp24h6popu"
	higherMap := map[string]string{
		"com.example.record/3jqfcqzm3ft2j": cid1str, // A; level 0
		"com.example.record/3jqfcqzm3fz2j": cid1str, // C; level 0
	}
	higherMst := mapToTree(t, higherMap)
	assert.Equal(t, 0, treeHeight(t, higherMst))
	assert.Equal(t, l0root, rootCidString(t, higherMst))

	// insert B, which is two levels above
	higherMst, err = higherMst.Add(ctx, "com.example.record/3jqfcqzm3fx2j", cid1) // B; level 2
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, l2root, rootCidString(t, higherMst))

	// remove B
	higherMst, _, err = higherMst.Delete(ctx, "com.example.record/3jqfcqzm3fx2j") // B; level 2
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 0, treeHeight(t, higherMst))
	assert.Equal(t, l0root, rootCidString(t, higherMst))

	// insert B (level=2) and D (level=1)
	higherMst, err = higherMst.Add(ctx, "com.example.record/3jqfcqzm3fx2j", cid1) // B; level 2
	if err != nil {
		t.Fatal(err)
	}
	higherMst, err = higherMst.Add(ctx, "com.example.record/3jqfcqzm4fd2j", cid1) // D; level 1
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 2, treeHeight(t, higherMst))
	assert.Equal(t, l2root2, rootCidString(t, higherMst))

	// remove D
	higherMst, _, err = higherMst.Delete(ctx, "com.example.record/3jqfcqzm4fd2j") // D; level 1
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 2, treeHeight(t, higherMst))
	assert.Equal(t, l2root, rootCidString(t, higherMst))
}
