// Package identity generates and persists the node's own overlay
// keypair. The email-composition and crypto pipeline are out of scope
// for the DHT subsystem (spec.md §1), but something has to produce the
// local Peer{identity, peer-id} the routing table and every outbound
// envelope's From field are built from; this is the teacher's own
// answer to that exact problem.
//
// Grounded on internal/network/mesh.go's PersistentIdentity/
// SaveIdentity/LoadIdentity, generalized only in naming: the key
// material, JSON file layout, and Ed25519-via-libp2p-crypto choice are
// carried over unchanged.
package identity

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/libp2p/go-libp2p/core/crypto"

	"github.com/meshmail/dhtnode/internal/peer"
)

// Identity is the node's own keypair plus the derived peer-id and the
// marshaled public key this repo's wire format carries in every
// envelope's From field.
type Identity struct {
	Priv   crypto.PrivKey
	Pub    []byte // marshaled public key, the wire-format identity blob
	PeerID peer.ID
}

type persisted struct {
	PrivKey []byte `json:"priv_key"`
}

// Load reads a persisted keypair from path, or generates and persists a
// fresh Ed25519 one if path does not exist.
func Load(path string) (Identity, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		var p persisted
		if err := json.Unmarshal(data, &p); err != nil {
			return Identity{}, fmt.Errorf("identity: parse %s: %w", path, err)
		}
		priv, err := crypto.UnmarshalPrivateKey(p.PrivKey)
		if err != nil {
			return Identity{}, fmt.Errorf("identity: unmarshal key: %w", err)
		}
		return fromPrivateKey(priv)
	}
	if !os.IsNotExist(err) {
		return Identity{}, fmt.Errorf("identity: read %s: %w", path, err)
	}

	priv, _, err := crypto.GenerateEd25519Key(nil)
	if err != nil {
		return Identity{}, fmt.Errorf("identity: generate key: %w", err)
	}
	id, err := fromPrivateKey(priv)
	if err != nil {
		return Identity{}, err
	}
	if err := id.save(path); err != nil {
		return Identity{}, err
	}
	return id, nil
}

func fromPrivateKey(priv crypto.PrivKey) (Identity, error) {
	pubBytes, err := crypto.MarshalPublicKey(priv.GetPublic())
	if err != nil {
		return Identity{}, fmt.Errorf("identity: marshal public key: %w", err)
	}
	return Identity{
		Priv:   priv,
		Pub:    pubBytes,
		PeerID: peer.IDFromIdentity(pubBytes),
	}, nil
}

func (id Identity) save(path string) error {
	privBytes, err := crypto.MarshalPrivateKey(id.Priv)
	if err != nil {
		return fmt.Errorf("identity: marshal private key: %w", err)
	}
	data, err := json.Marshal(persisted{PrivKey: privBytes})
	if err != nil {
		return fmt.Errorf("identity: encode: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("identity: write %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}

// Peer builds this node's own Peer value, the one Add()ed is never
// needed since a node never routes to itself, but useful for
// constructing the From field of outbound envelopes.
func (id Identity) Peer() peer.Peer {
	return peer.Peer{Identity: id.Pub, ID: id.PeerID}
}
