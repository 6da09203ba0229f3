package routing

import (
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/meshmail/dhtnode/internal/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randPeer(t *testing.T, seed byte) peer.Peer {
	t.Helper()
	identity := make([]byte, 32)
	identity[0] = seed
	return peer.NewPeer(identity)
}

func TestAddIsIdempotent(t *testing.T) {
	local := randPeer(t, 0)
	tbl := New(local.ID, nil)

	p := randPeer(t, 1)
	assert.True(t, tbl.Add(p))
	assert.False(t, tbl.Add(p))

	got, ok := tbl.Find(p.ID)
	require.True(t, ok)
	assert.Equal(t, p.ID, got.ID)
}

func TestAddRejectsLocalID(t *testing.T) {
	local := randPeer(t, 0)
	tbl := New(local.ID, nil)
	assert.False(t, tbl.Add(local))
	assert.Equal(t, 0, tbl.Len())
}

func TestClosestOrdersByXORDistance(t *testing.T) {
	local := randPeer(t, 0)
	tbl := New(local.ID, nil)

	r := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		identity := make([]byte, 32)
		r.Read(identity)
		tbl.Add(peer.NewPeer(identity))
	}

	var target peer.ID
	r.Read(target[:])

	all := tbl.All()
	sort.Slice(all, func(i, j int) bool {
		di := peer.Distance(all[i].ID, target)
		dj := peer.Distance(all[j].ID, target)
		return peer.Less(di, dj)
	})

	got := tbl.Closest(target, 20, false)
	require.Len(t, got, 20)
	for i, p := range got {
		assert.Equal(t, all[i].ID, p.ID)
	}

	// Every returned peer must be at least as close as every unreturned one.
	returned := make(map[peer.ID]bool, len(got))
	for _, p := range got {
		returned[p.ID] = true
	}
	maxReturnedDist := peer.Distance(got[len(got)-1].ID, target)
	for _, p := range all {
		if returned[p.ID] {
			continue
		}
		d := peer.Distance(p.ID, target)
		assert.False(t, peer.Less(d, maxReturnedDist), "unreturned peer closer than returned set")
	}
}

func TestClosestExcludesLocked(t *testing.T) {
	local := randPeer(t, 0)
	tbl := New(local.ID, nil)

	p1 := randPeer(t, 1)
	p2 := randPeer(t, 2)
	tbl.Add(p1)
	tbl.Add(p2)
	tbl.Lock(p1.ID)

	got := tbl.Closest(p1.ID, 20, false)
	for _, p := range got {
		assert.NotEqual(t, p1.ID, p.ID)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	local := randPeer(t, 0)
	tbl := New(local.ID, nil)
	p1 := randPeer(t, 1)
	p2 := randPeer(t, 2)
	tbl.Add(p1)
	tbl.Add(p2)

	path := filepath.Join(t.TempDir(), "nodes.txt")
	require.NoError(t, tbl.SaveToFile(path))

	loaded, err := LoadPeersFromFile(path)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	ids := map[peer.ID]bool{}
	for _, p := range loaded {
		ids[p.ID] = true
	}
	assert.True(t, ids[p1.ID])
	assert.True(t, ids[p2.ID])
}

func TestLoadIgnoresCommentsAndBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.txt")
	content := "# comment\n\n" + randB64(t) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	loaded, err := LoadPeersFromFile(path)
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
}

func randB64(t *testing.T) string {
	t.Helper()
	return randPeer(t, 5).IdentityBase64()
}

func TestBootstrapFallsBackWhenFileMissing(t *testing.T) {
	local := randPeer(t, 0)
	tbl := New(local.ID, nil)

	path := filepath.Join(t.TempDir(), "missing-nodes.txt")
	bootstrap := randPeer(t, 9)

	loaded, fromFile := tbl.Bootstrap(path, [][]byte{bootstrap.Identity})
	assert.Equal(t, 1, loaded)
	assert.False(t, fromFile)
	_, ok := tbl.Find(bootstrap.ID)
	assert.True(t, ok)
}

func TestBootstrapPrefersFileWhenNonEmpty(t *testing.T) {
	local := randPeer(t, 0)
	seed := New(local.ID, nil)
	filePeer := randPeer(t, 3)
	seed.Add(filePeer)

	path := filepath.Join(t.TempDir(), "nodes.txt")
	require.NoError(t, seed.SaveToFile(path))

	tbl := New(local.ID, nil)
	bootstrap := randPeer(t, 9)
	loaded, fromFile := tbl.Bootstrap(path, [][]byte{bootstrap.Identity})
	assert.Equal(t, 1, loaded)
	assert.True(t, fromFile)

	_, ok := tbl.Find(filePeer.ID)
	assert.True(t, ok)
	_, ok = tbl.Find(bootstrap.ID)
	assert.False(t, ok)
}
