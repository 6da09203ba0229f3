package store

import (
	"crypto/sha256"
	"testing"
	"time"

	"github.com/meshmail/dhtnode/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func emailBody(t *testing.T, deleteAuth [wire.KeySize]byte, filler byte) []byte {
	t.Helper()
	body := make([]byte, wire.DeleteVerifierEnd+10)
	body[0] = byte(wire.KindEmail)
	body[1] = 1
	dv := sha256.Sum256(deleteAuth[:])
	copy(body[wire.DeleteVerifierOffset:wire.DeleteVerifierEnd], dv[:])
	for i := wire.DeleteVerifierEnd; i < len(body); i++ {
		body[i] = filler
	}
	return body
}

func TestPutGetRoundTrip(t *testing.T) {
	s, err := New(t.TempDir(), nil, nil)
	require.NoError(t, err)

	var auth [wire.KeySize]byte
	auth[0] = 1
	body := emailBody(t, auth, 0xAA)

	key, ok, err := s.Put(body)
	require.NoError(t, err)
	require.True(t, ok)

	got, found := s.Get(wire.KindEmail, key)
	require.True(t, found)
	assert.Equal(t, body, got)
}

func TestPutRejectsUnknownKind(t *testing.T) {
	s, err := New(t.TempDir(), nil, nil)
	require.NoError(t, err)

	_, _, err = s.Put([]byte{'Z', 1, 2, 3})
	require.Error(t, err)
}

func TestGetMissingReturnsFalse(t *testing.T) {
	s, err := New(t.TempDir(), nil, nil)
	require.NoError(t, err)

	_, found := s.Get(wire.KindEmail, Key{})
	assert.False(t, found)
}

func TestDeleteThenGetNotFound(t *testing.T) {
	s, err := New(t.TempDir(), nil, nil)
	require.NoError(t, err)

	var auth [wire.KeySize]byte
	body := emailBody(t, auth, 1)
	key, _, err := s.Put(body)
	require.NoError(t, err)

	removed, err := s.Delete(wire.KindEmail, key)
	require.NoError(t, err)
	assert.True(t, removed)

	_, found := s.Get(wire.KindEmail, key)
	assert.False(t, found)
}

func TestDeleteMissingReturnsFalse(t *testing.T) {
	s, err := New(t.TempDir(), nil, nil)
	require.NoError(t, err)

	removed, err := s.Delete(wire.KindEmail, Key{})
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestMaintenanceEvictsPastTTL(t *testing.T) {
	ttl := map[wire.Kind]time.Duration{wire.KindEmail: time.Millisecond}
	s, err := New(t.TempDir(), ttl, nil)
	require.NoError(t, err)

	var auth [wire.KeySize]byte
	body := emailBody(t, auth, 2)
	key, _, err := s.Put(body)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	s.Maintenance()

	_, found := s.Get(wire.KindEmail, key)
	assert.False(t, found)
}

func TestMaintenanceKeepsFreshPackets(t *testing.T) {
	ttl := map[wire.Kind]time.Duration{wire.KindEmail: time.Hour}
	s, err := New(t.TempDir(), ttl, nil)
	require.NoError(t, err)

	var auth [wire.KeySize]byte
	body := emailBody(t, auth, 3)
	key, _, err := s.Put(body)
	require.NoError(t, err)

	s.Maintenance()

	_, found := s.Get(wire.KindEmail, key)
	assert.True(t, found)
}

func TestPutIndexBodyReplacesAtomically(t *testing.T) {
	s, err := New(t.TempDir(), nil, nil)
	require.NoError(t, err)

	var key Key
	key[0] = 9

	full := wire.IndexBody{Version: 1, Entries: []wire.IndexEntry{
		{EmailKey: [wire.KeySize]byte{1}, DV: [wire.KeySize]byte{2}},
		{EmailKey: [wire.KeySize]byte{3}, DV: [wire.KeySize]byte{4}},
	}}
	require.NoError(t, s.PutIndexBody(key, full))

	trimmed := wire.IndexBody{Version: 1, Entries: full.Entries[:1]}
	require.NoError(t, s.PutIndexBody(key, trimmed))

	got, found := s.Get(wire.KindIndex, key)
	require.True(t, found)
	decoded, err := wire.DecodeIndexBody(got)
	require.NoError(t, err)
	assert.Len(t, decoded.Entries, 1)
}

func TestReopenRebuildsIndexFromDisk(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, nil, nil)
	require.NoError(t, err)

	var auth [wire.KeySize]byte
	body := emailBody(t, auth, 4)
	key, _, err := s.Put(body)
	require.NoError(t, err)

	reopened, err := New(dir, nil, nil)
	require.NoError(t, err)

	got, found := reopened.Get(wire.KindEmail, key)
	require.True(t, found)
	assert.Equal(t, body, got)
}
