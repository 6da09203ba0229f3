// Package dispatch implements the Batch Dispatcher: the correlation
// engine that turns best-effort datagrams into awaitable multi-peer
// operations by tagging every outbound request with a random CID and
// routing inbound responses back to the batch that owns it (spec.md
// §4.5).
//
// Grounded on WebRTCTransport.SendRPC in
// kernel/core/mesh/transport/transport.go, which registers a response
// channel under a random RPC id before sending, and on the RPC-handling
// side, WebRTCTransport.handleIncomingMessage/handleRPCRequest routing a
// reply back to the waiting channel by id. This package generalizes that
// one-request/one-reply shape into spec.md's Batch: many peers, many
// CIDs, one owner, with wait-first/wait-all/retract semantics the
// teacher's single-channel RPC call never needed.
package dispatch

import (
	"sync"

	"github.com/meshmail/dhtnode/internal/peer"
	"github.com/meshmail/dhtnode/internal/wire"
)

// CID is a 32-byte correlation id.
type CID = [wire.CIDSize]byte

// Entry is one outbound request within a batch: a specific peer, the
// fully-encoded bytes to send it (already carrying CID in the envelope),
// and the CID itself for bookkeeping.
type Entry struct {
	CID   CID
	Peer  peer.Peer
	Bytes []byte
}

// Response is one inbound reply matched to a batch by CID.
type Response struct {
	CID      CID
	FromAddr string
	Envelope wire.Envelope
}

// Batch is an in-flight multi-peer RPC (spec.md §3): populated with one
// outbound entry per target peer, submitted, awaited, then retracted.
// A batch is retracted at most once.
type Batch struct {
	Label string

	mu        sync.Mutex
	pending   map[CID]Entry
	responses []Response
	notify    chan struct{}
	retracted bool
	total     int
}

// NewBatch creates an empty, not-yet-submitted batch.
func NewBatch(label string) *Batch {
	return &Batch{
		Label:   label,
		pending: make(map[CID]Entry),
		notify:  make(chan struct{}, 1),
	}
}

// Add registers one outbound entry. Call this before Submit.
func (b *Batch) Add(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[e.CID] = e
	b.total++
}

// Entries returns a snapshot of the batch's outbound entries.
func (b *Batch) Entries() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, 0, len(b.pending))
	for _, e := range b.pending {
		out = append(out, e)
	}
	return out
}

// Responses returns a snapshot of responses received so far, in arrival
// order.
func (b *Batch) Responses() []Response {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Response, len(b.responses))
	copy(out, b.responses)
	return out
}

// PendingCount returns how many outstanding CIDs have not yet been
// answered.
func (b *Batch) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Batch) wake() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

func (b *Batch) deliver(r Response) {
	b.mu.Lock()
	delete(b.pending, r.CID)
	b.responses = append(b.responses, r)
	b.mu.Unlock()
	b.wake()
}
