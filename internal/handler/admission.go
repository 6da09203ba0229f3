// Package handler implements the Packet Handler: a registry of inbound
// request handlers keyed by packet type, each consulting the Local
// Store and Routing Table and emitting a response payload (spec.md
// §4.6).
package handler

import (
	"time"

	"github.com/yasserelgammal/rate-limiter/limiter"
	"github.com/yasserelgammal/rate-limiter/store"

	"github.com/meshmail/dhtnode/internal/wire"
)

// AdmissionPolicy decides whether an inbound Store Request should be
// admitted, returning the reserved status code to reply with when it
// should not (spec.md §9: "hash-cash... leave validation as a pluggable
// policy returning the existing codes"). A request admitted by the
// policy still has to pass the ordinary (kind, version) and store
// checks.
type AdmissionPolicy interface {
	Admit(peerKey string, req wire.StoreRequest) (admit bool, reject wire.Status)
}

// AllowAll is the default AdmissionPolicy: hash-cash/quota enforcement
// is not implemented in this revision, matching spec.md §4.6's "not
// enforced in this revision" note.
type AllowAll struct{}

func (AllowAll) Admit(string, wire.StoreRequest) (bool, wire.Status) {
	return true, wire.StatusOK
}

// RateLimitPolicy rejects a peer's Store Requests once it exceeds a
// token-bucket quota, replying INSUFFICIENT_HASHCASH — the reserved
// status for "try again slower" rather than INVALID_PACKET, since the
// packet itself may be perfectly well-formed.
//
// Grounded on kernel/core/mesh/routing/gossip.go's GossipManager, which
// wires the identical github.com/yasserelgammal/rate-limiter token
// bucket (limiter.NewTokenBucket backed by store.NewMemoryStore) to
// throttle per-peer fan-out; this repo reuses the same library for the
// admission-policy hook spec.md leaves pluggable instead of inventing a
// bespoke limiter.
type RateLimitPolicy struct {
	limiter *limiter.TokenBucket
}

// NewRateLimitPolicy builds a policy allowing up to burst Store
// Requests immediately and ratePerSecond thereafter, per peer key.
func NewRateLimitPolicy(ratePerSecond, burst int64) (*RateLimitPolicy, error) {
	tb, err := limiter.NewTokenBucket(
		limiter.Config{
			Rate:     ratePerSecond,
			Duration: time.Second,
			Burst:    burst,
		},
		store.NewMemoryStore(time.Minute),
	)
	if err != nil {
		return nil, err
	}
	return &RateLimitPolicy{limiter: tb}, nil
}

func (p *RateLimitPolicy) Admit(peerKey string, _ wire.StoreRequest) (bool, wire.Status) {
	if p.limiter.Allow(peerKey) {
		return true, wire.StatusOK
	}
	return false, wire.StatusInsufficientHashcash
}
