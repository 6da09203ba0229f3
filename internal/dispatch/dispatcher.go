package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	bloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/meshmail/dhtnode/internal/transport"
)

// Dispatcher owns the global CID -> batch correlation table and the
// Transport Gateway the batches' datagrams flow through.
type Dispatcher struct {
	gw     *transport.Gateway
	logger *slog.Logger

	mu   sync.Mutex
	cids map[CID]*Batch

	// seen accelerates the common non-collision case: a CID not in the
	// filter is, with certainty, not in cids, so the authoritative map
	// lookup can be skipped. A positive test still falls through to the
	// map because Bloom filters admit false positives (grounded on
	// kernel/core/mesh/routing/gossip.go's seenFilter, used the same way
	// for message-id dedup).
	seen *bloom.BloomFilter
}

// New builds a Dispatcher driving datagrams through gw.
func New(gw *transport.Gateway, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		gw:     gw,
		logger: logger.With("component", "dispatch"),
		cids:   make(map[CID]*Batch),
		seen:   bloom.NewWithEstimates(100_000, 0.01),
	}
}

// Submit registers every pending entry's CID and enqueues its bytes on
// the send queue (spec.md §4.5). A CID already registered is a protocol
// error (collision, treated as overwhelmingly unlikely given 256-bit
// random CIDs); Submit fails the whole batch rather than silently
// dropping one entry.
func (d *Dispatcher) Submit(ctx context.Context, b *Batch) error {
	entries := b.Entries()

	d.mu.Lock()
	for _, e := range entries {
		if _, collision := d.lookupLocked(e.CID); collision {
			d.mu.Unlock()
			return fmt.Errorf("dispatch: cid collision for %x", e.CID)
		}
	}
	for _, e := range entries {
		d.cids[e.CID] = b
		d.seen.Add(e.CID[:])
	}
	d.mu.Unlock()

	for _, e := range entries {
		addr := e.Peer.IdentityBase64()
		if err := d.gw.Send(ctx, transport.Datagram{PeerAddr: addr, Bytes: e.Bytes}); err != nil {
			return fmt.Errorf("dispatch: send to %s: %w", addr, err)
		}
	}
	return nil
}

func (d *Dispatcher) lookupLocked(cid CID) (*Batch, bool) {
	if !d.seen.Test(cid[:]) {
		return nil, false
	}
	b, ok := d.cids[cid]
	return b, ok
}

// Dispatch matches an inbound envelope's CID against the registered
// batches. It reports whether the packet was claimed; the Packet Handler
// should treat an unclaimed packet as an inbound request (spec.md §4.6).
// A matched CID is immediately un-registered: spec.md's testable property
// #3 requires exactly-once delivery, and this protocol's one
// request/one response shape means no further reply is expected for a
// CID once consumed.
func (d *Dispatcher) Dispatch(r Response) bool {
	d.mu.Lock()
	b, ok := d.lookupLocked(r.CID)
	if ok {
		delete(d.cids, r.CID)
	}
	d.mu.Unlock()

	if !ok {
		d.logger.Debug("unmatched cid", "cid", fmt.Sprintf("%x", r.CID))
		return false
	}
	b.deliver(r)
	return true
}

// Retract removes every still-pending CID a batch owns from the
// dispatcher's table. Idempotent (spec.md §3, §4.5).
func (d *Dispatcher) Retract(b *Batch) {
	b.mu.Lock()
	if b.retracted {
		b.mu.Unlock()
		return
	}
	b.retracted = true
	cids := make([]CID, 0, len(b.pending))
	for cid := range b.pending {
		cids = append(cids, cid)
	}
	b.mu.Unlock()

	d.mu.Lock()
	for _, cid := range cids {
		delete(d.cids, cid)
	}
	d.mu.Unlock()
}

// WaitFirst blocks until at least one response has arrived or timeout
// elapses, returning whatever responses are present at that point
// (spec.md §4.5).
func (d *Dispatcher) WaitFirst(ctx context.Context, b *Batch, timeout time.Duration) []Response {
	return d.wait(ctx, b, timeout, func() bool {
		return len(b.Responses()) > 0
	})
}

// WaitAll blocks until every pending CID has a response or timeout
// elapses (spec.md §4.5).
func (d *Dispatcher) WaitAll(ctx context.Context, b *Batch, timeout time.Duration) []Response {
	return d.wait(ctx, b, timeout, func() bool {
		return b.PendingCount() == 0
	})
}

func (d *Dispatcher) wait(ctx context.Context, b *Batch, timeout time.Duration, satisfied func() bool) []Response {
	deadline := time.Now().Add(timeout)
	for {
		if satisfied() {
			return b.Responses()
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return b.Responses()
		}
		timer := time.NewTimer(remaining)
		select {
		case <-b.notify:
			timer.Stop()
		case <-timer.C:
			return b.Responses()
		case <-ctx.Done():
			timer.Stop()
			return b.Responses()
		}
	}
}
