package routing

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/meshmail/dhtnode/internal/peer"
)

// SaveToFile flushes every known peer to path as a newline-delimited list
// of base64 identity blobs (spec.md §4.3, §6.2). Grounded on
// internal/network/mesh.go's SaveIdentity, generalized from a single JSON
// record to a line-per-peer text format because spec.md mandates the
// nodes.txt layout explicitly.
func (t *Table) SaveToFile(path string) error {
	peers := t.All()

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create nodes file: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, p := range peers {
		if _, err := w.WriteString(p.IdentityBase64() + "\n"); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("write nodes file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("flush nodes file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close nodes file: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadPeersFromFile reads a newline-delimited base64 identity list,
// ignoring blank lines and lines starting with '#' (spec.md §4.3).
func LoadPeersFromFile(path string) ([]peer.Peer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var peers []peer.Peer
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		identity, err := base64.StdEncoding.DecodeString(line)
		if err != nil {
			continue // skip malformed lines rather than fail the whole load
		}
		peers = append(peers, peer.NewPeer(identity))
	}
	return peers, scanner.Err()
}

// Bootstrap populates the table from path, falling back to the
// configured bootstrap identities when the file is absent or yields no
// peers (spec.md §4.3: "On startup, if the file yields no peers, the
// bootstrap list from configuration is loaded").
func (t *Table) Bootstrap(path string, bootstrapIdentities [][]byte) (loaded int, fromFile bool) {
	if peers, err := LoadPeersFromFile(path); err == nil && len(peers) > 0 {
		for _, p := range peers {
			t.Add(p)
		}
		return len(peers), true
	}

	for _, identity := range bootstrapIdentities {
		t.Add(peer.NewPeer(identity))
	}
	return len(bootstrapIdentities), false
}
