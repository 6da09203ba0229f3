package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshmail/dhtnode/internal/wire"
)

func TestDefaultMatchesSpecTimeouts(t *testing.T) {
	c := Default()
	assert.Equal(t, 5*time.Second, c.ResponseTimeout)
	assert.Equal(t, 60*time.Second, c.MaintenanceInterval)
	assert.Equal(t, 5, c.MaxRetries)
}

func TestSaveLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	c := Default()
	c.BootstrapPeers = []string{"aGVsbG8="}

	require.NoError(t, Save(c, path))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c.BootstrapPeers, loaded.BootstrapPeers)
	assert.Equal(t, c.ResponseTimeout, loaded.ResponseTimeout)
}

func TestLoadFillsUnsetFieldsFromDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"data_dir": "custom"}`), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "custom", loaded.DataDir)
	assert.Equal(t, 5*time.Second, loaded.ResponseTimeout)
}

func TestTTLByKindCoversAllThreeKinds(t *testing.T) {
	c := Default()
	ttl := c.TTLByKind()
	assert.Contains(t, ttl, wire.KindIndex)
	assert.Contains(t, ttl, wire.KindEmail)
	assert.Contains(t, ttl, wire.KindContact)
}
