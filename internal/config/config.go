// Package config defines the hand-off struct the DHT subsystem's
// components are constructed with. Loading it from disk and exposing a
// CLI around it are external-collaborator concerns (spec.md §1, §6.3);
// this package only gives those collaborators a concrete type to fill
// in, and a bare JSON round-trip to do it with.
//
// Grounded on internal/network/mesh.go's PersistentIdentity, the
// teacher's only config-shaped type: a plain struct serialized with
// encoding/json, no framework (viper/cobra/etc. appear nowhere in the
// retrieved pack).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/meshmail/dhtnode/internal/wire"
)

// Config holds every tunable spec.md §6.3 lists as belonging to the
// core: bootstrap peers, per-kind TTLs, and the timeouts governing
// lookups and waits.
type Config struct {
	DataDir        string   `json:"data_dir"`
	NodesFile      string   `json:"nodes_file"`
	IdentityFile   string   `json:"identity_file"`
	BootstrapPeers []string `json:"bootstrap_peers"` // base64 identity blobs

	TTL struct {
		Index   time.Duration `json:"index"`
		Email   time.Duration `json:"email"`
		Contact time.Duration `json:"contact"`
	} `json:"ttl"`

	MaintenanceInterval  time.Duration `json:"maintenance_interval"`
	ResponseTimeout      time.Duration `json:"response_timeout"`
	ClosestLookupTimeout time.Duration `json:"closest_lookup_timeout"`
	MinClosestNodes      int           `json:"min_closest_nodes"`
	MaxRetries           int           `json:"max_retries"`
}

// Default returns the spec-mandated defaults (spec.md §4.7): 5s
// response wait, 30s whole-lookup budget, 3 minimum closest nodes,
// 5 retries, 60s maintenance tick.
func Default() Config {
	var c Config
	c.DataDir = "data"
	c.NodesFile = "nodes.txt"
	c.IdentityFile = "identity.json"
	c.TTL.Index = 30 * 24 * time.Hour
	c.TTL.Email = 30 * 24 * time.Hour
	c.TTL.Contact = 0 // no expiry
	c.MaintenanceInterval = 60 * time.Second
	c.ResponseTimeout = 5 * time.Second
	c.ClosestLookupTimeout = 30 * time.Second
	c.MinClosestNodes = 3
	c.MaxRetries = 5
	return c
}

// TTLByKind returns the per-kind TTL map the Local Store's constructor
// expects.
func (c Config) TTLByKind() map[wire.Kind]time.Duration {
	return map[wire.Kind]time.Duration{
		wire.KindIndex:   c.TTL.Index,
		wire.KindEmail:   c.TTL.Email,
		wire.KindContact: c.TTL.Contact,
	}
}

// Load reads a JSON config file, filling unset fields from Default.
func Load(path string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return c, nil
}

// Save writes c to path as indented JSON.
func Save(c Config, path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
