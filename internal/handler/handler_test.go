package handler

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshmail/dhtnode/internal/peer"
	"github.com/meshmail/dhtnode/internal/routing"
	"github.com/meshmail/dhtnode/internal/store"
	"github.com/meshmail/dhtnode/internal/wire"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	s, err := store.New(dir, nil, nil)
	require.NoError(t, err)
	local := peer.NewPeer([]byte("local"))
	rt := routing.New(local.ID, nil)
	return New(s, rt, AllowAll{}, nil)
}

func emailBody(t *testing.T, preimage [32]byte) []byte {
	t.Helper()
	dv := sha256.Sum256(preimage[:])
	body := make([]byte, 70)
	body[0] = byte(wire.KindEmail)
	body[1] = 1
	copy(body[38:70], dv[:])
	return body
}

func TestHandleRetrieveNotFound(t *testing.T) {
	r := newTestRegistry(t)
	env := wire.Envelope{Type: wire.TypeRetrieve}
	req := wire.RetrieveRequest{Kind: wire.KindEmail}
	env.Payload = req.Encode()

	resp, ok := r.Handle(env, "peer-a")
	require.True(t, ok)
	assert.Equal(t, wire.StatusNoDataFound, resp.Status)
}

func TestHandleStoreThenRetrieveRoundTrips(t *testing.T) {
	r := newTestRegistry(t)

	var preimage [32]byte
	copy(preimage[:], []byte("secret"))
	body := emailBody(t, preimage)
	key := store.ContentHash(body)

	storeReq := wire.StoreRequest{Body: body}
	storeEnv := wire.Envelope{Type: wire.TypeStore, Payload: storeReq.Encode()}
	resp, ok := r.Handle(storeEnv, "peer-a")
	require.True(t, ok)
	require.Equal(t, wire.StatusOK, resp.Status)

	retrieveReq := wire.RetrieveRequest{Kind: wire.KindEmail, Key: key}
	retrieveEnv := wire.Envelope{Type: wire.TypeRetrieve, Payload: retrieveReq.Encode()}
	resp, ok = r.Handle(retrieveEnv, "peer-a")
	require.True(t, ok)
	require.Equal(t, wire.StatusOK, resp.Status)
	assert.Equal(t, body, resp.Data)
}

func TestHandleEmailDeleteWrongAuthLeavesPacketIntact(t *testing.T) {
	r := newTestRegistry(t)

	var preimage [32]byte
	copy(preimage[:], []byte("secret"))
	body := emailBody(t, preimage)
	key := store.ContentHash(body)

	storeReq := wire.StoreRequest{Body: body}
	_, ok := r.Handle(wire.Envelope{Type: wire.TypeStore, Payload: storeReq.Encode()}, "peer-a")
	require.True(t, ok)

	var wrong [32]byte
	copy(wrong[:], []byte("wrong"))
	delReq := wire.EmailDeleteRequest{EmailKey: key, DeleteAuth: wrong}
	resp, ok := r.Handle(wire.Envelope{Type: wire.TypeEmailDelete, Payload: delReq.Encode()}, "peer-a")
	require.True(t, ok)
	assert.Equal(t, wire.StatusInvalidPacket, resp.Status)

	got, found := r.Store.Get(wire.KindEmail, key)
	require.True(t, found)
	assert.Equal(t, body, got)
}

func TestHandleEmailDeleteCorrectAuthDeletes(t *testing.T) {
	r := newTestRegistry(t)

	var preimage [32]byte
	copy(preimage[:], []byte("secret"))
	body := emailBody(t, preimage)
	key := store.ContentHash(body)

	storeReq := wire.StoreRequest{Body: body}
	_, ok := r.Handle(wire.Envelope{Type: wire.TypeStore, Payload: storeReq.Encode()}, "peer-a")
	require.True(t, ok)

	delReq := wire.EmailDeleteRequest{EmailKey: key, DeleteAuth: preimage}
	resp, ok := r.Handle(wire.Envelope{Type: wire.TypeEmailDelete, Payload: delReq.Encode()}, "peer-a")
	require.True(t, ok)
	assert.Equal(t, wire.StatusOK, resp.Status)

	_, found := r.Store.Get(wire.KindEmail, key)
	assert.False(t, found)
}

func TestHandleIndexDeletePartialTrimsEntries(t *testing.T) {
	r := newTestRegistry(t)

	var authA, authB [32]byte
	copy(authA[:], []byte("auth-a"))
	copy(authB[:], []byte("auth-b"))

	idx := wire.IndexBody{
		Version: 1,
		Entries: []wire.IndexEntry{
			{EmailKey: [32]byte{1}, DV: sha256.Sum256(authA[:])},
			{EmailKey: [32]byte{2}, DV: sha256.Sum256(authB[:])},
		},
	}
	var indexKey [32]byte
	copy(indexKey[:], []byte("index-key"))
	require.NoError(t, r.Store.PutIndexBody(indexKey, idx))

	delReq := wire.IndexDeleteRequest{
		IndexKey: indexKey,
		Entries:  []wire.IndexDeleteEntry{{EmailKey: [32]byte{1}, DeleteAuth: authA}},
	}
	resp, ok := r.Handle(wire.Envelope{Type: wire.TypeIndexDelete, Payload: delReq.Encode()}, "peer-a")
	require.True(t, ok)
	assert.Equal(t, wire.StatusOK, resp.Status)

	got, found := r.Store.Get(wire.KindIndex, indexKey)
	require.True(t, found)
	decoded, err := wire.DecodeIndexBody(got)
	require.NoError(t, err)
	require.Len(t, decoded.Entries, 1)
	assert.Equal(t, [32]byte{2}, decoded.Entries[0].EmailKey)
}

func TestHandleIndexDeleteAllEntriesDeletesPacket(t *testing.T) {
	r := newTestRegistry(t)

	var authA [32]byte
	copy(authA[:], []byte("auth-a"))
	idx := wire.IndexBody{
		Version: 1,
		Entries: []wire.IndexEntry{{EmailKey: [32]byte{1}, DV: sha256.Sum256(authA[:])}},
	}
	var indexKey [32]byte
	copy(indexKey[:], []byte("index-key"))
	require.NoError(t, r.Store.PutIndexBody(indexKey, idx))

	delReq := wire.IndexDeleteRequest{
		IndexKey: indexKey,
		Entries:  []wire.IndexDeleteEntry{{EmailKey: [32]byte{1}, DeleteAuth: authA}},
	}
	resp, ok := r.Handle(wire.Envelope{Type: wire.TypeIndexDelete, Payload: delReq.Encode()}, "peer-a")
	require.True(t, ok)
	assert.Equal(t, wire.StatusOK, resp.Status)

	_, found := r.Store.Get(wire.KindIndex, indexKey)
	assert.False(t, found)
}

func TestHandleFindClosePeersReturnsPeerList(t *testing.T) {
	r := newTestRegistry(t)
	for i := 0; i < 3; i++ {
		r.Routing.Add(peer.NewPeer([]byte{byte(i), byte(i), byte(i)}))
	}

	var key [32]byte
	req := wire.FindClosePeersRequest{Key: key}
	env := wire.Envelope{Type: wire.TypeFindClosePeers, Version: wire.ProtocolVersionV5, Payload: req.Encode()}
	resp, ok := r.Handle(env, "peer-a")
	require.True(t, ok)
	assert.Equal(t, wire.StatusOK, resp.Status)

	list, err := wire.DecodePeerListV5(resp.Data)
	require.NoError(t, err)
	assert.Len(t, list.Identities, 3)
}

func TestHandleAddsSenderToRoutingTable(t *testing.T) {
	r := newTestRegistry(t)
	sender := peer.NewPeer([]byte("sender-identity"))

	req := wire.RetrieveRequest{Kind: wire.KindEmail}
	env := wire.Envelope{Type: wire.TypeRetrieve, From: sender.Identity, Payload: req.Encode()}
	_, ok := r.Handle(env, "peer-a")
	require.True(t, ok)

	_, found := r.Routing.Find(sender.ID)
	assert.True(t, found)
}

func TestHandleUnknownTypeReportsNotOK(t *testing.T) {
	r := newTestRegistry(t)
	_, ok := r.Handle(wire.Envelope{Type: wire.Type('Z')}, "peer-a")
	assert.False(t, ok)
}

