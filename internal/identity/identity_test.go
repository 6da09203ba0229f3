package identity

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadGeneratesAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")

	id, err := Load(path)
	require.NoError(t, err)
	assert.NotEmpty(t, id.Pub)
	assert.NotEqual(t, peerIDZero(), id.PeerID)

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, id.PeerID, reloaded.PeerID)
	assert.Equal(t, id.Pub, reloaded.Pub)
}

func peerIDZero() (zero [32]byte) { return }
