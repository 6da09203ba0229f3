// Package peer defines the node identity and peer value types shared by
// the routing table, the batch dispatcher and the DHT engine, and the
// XOR-distance metric those components route on.
//
// Grounded on kernel/core/mesh/routing/dht.go's peer-id handling in the
// teacher repo, generalized from string node IDs hashed through
// math/big to a fixed 32-byte ID with a dedicated comparator — spec.md
// §3/§4.3 calls for lexicographic byte comparison, not big.Int ordering,
// and §9's "shared-pointer graphs" note asks for peers modeled by value
// with an opaque id rather than pointers shared across the routing table
// and in-flight lookups.
package peer

import (
	"crypto/sha256"
	"encoding/base64"
	"time"
)

// IDSize is the width, in bytes, of a peer-id.
const IDSize = 32

// ID is a 32-byte hash derived from a peer's overlay identity public-key
// material (spec.md §3). It is opaque: nothing in this package inspects
// its bytes except to compare and XOR them.
type ID [IDSize]byte

// IDFromIdentity derives a peer-id by hashing the opaque identity blob,
// matching spec.md §3 ("PeerID... derived from a peer's overlay identity
// public-key material").
func IDFromIdentity(identity []byte) ID {
	return sha256.Sum256(identity)
}

// Distance returns the XOR distance between two ids as a 32-byte
// big-endian magnitude (spec.md §4.3 "XOR metric").
func Distance(a, b ID) [IDSize]byte {
	var d [IDSize]byte
	for i := 0; i < IDSize; i++ {
		d[i] = a[i] ^ b[i]
	}
	return d
}

// Less reports whether magnitude x is strictly less than y under
// lexicographic byte comparison (spec.md §4.3).
func Less(x, y [IDSize]byte) bool {
	for i := 0; i < IDSize; i++ {
		if x[i] != y[i] {
			return x[i] < y[i]
		}
	}
	return false
}

// Peer is a known remote node (spec.md §3).
type Peer struct {
	Identity     []byte // opaque identity blob; base64-encoded in nodes.txt and transport peer addresses
	ID           ID
	Locked       bool // transient: unavailable for routing-table selection
	FirstSeen    time.Time
	LastResponse time.Time
}

// IdentityBase64 renders Identity the way it is used as a transport peer
// address and persisted to nodes.txt.
func (p Peer) IdentityBase64() string {
	return base64.StdEncoding.EncodeToString(p.Identity)
}

// NewPeer builds a Peer from a raw identity blob, deriving its peer-id.
func NewPeer(identity []byte) Peer {
	now := time.Now()
	return Peer{
		Identity:  append([]byte(nil), identity...),
		ID:        IDFromIdentity(identity),
		FirstSeen: now,
	}
}
