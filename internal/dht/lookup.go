package dht

import (
	"context"
	"time"

	"github.com/meshmail/dhtnode/internal/dispatch"
	"github.com/meshmail/dhtnode/internal/peer"
	"github.com/meshmail/dhtnode/internal/wire"
)

// iterativeClosestLookup implements spec.md §4.7's iterative
// closest-node lookup: query every currently-known peer for its
// closest peers to target, folding newly-discovered peers into the
// routing table and the return set, until MinClosestNodes responses
// have arrived or ClosestLookupTimeout elapses.
//
// Deviation from spec.md's literal retract-and-reloop-on-empty-round
// wording (documented in DESIGN.md): a round that yields zero new
// responses ends the lookup immediately rather than re-looping to wait
// again on an already-fully-submitted batch, since nothing further
// would arrive without a fresh submission this function does not
// perform.
func (e *Engine) iterativeClosestLookup(ctx context.Context, target peer.ID) []peer.Peer {
	peers := e.routing.All()
	if len(peers) == 0 {
		return nil
	}

	batch := dispatch.NewBatch("closest-lookup")
	active := make(map[dispatch.CID]peer.Peer, len(peers))
	for _, p := range peers {
		cid, err := randomCID()
		if err != nil {
			e.logger.Warn("cid generation failed", "err", err)
			continue
		}
		req := wire.FindClosePeersRequest{Key: target}
		env := e.buildEnvelope(wire.TypeFindClosePeers, wire.ProtocolVersionV5, cid, req.Encode())
		batch.Add(dispatch.Entry{CID: cid, Peer: p, Bytes: env.Encode()})
		active[cid] = p
	}

	if err := e.dispatch.Submit(ctx, batch); err != nil {
		e.logger.Warn("closest lookup submit failed", "err", err)
		return nil
	}
	defer e.dispatch.Retract(batch)

	discovered := make(map[peer.ID]peer.Peer)
	processed := make(map[dispatch.CID]bool)
	deadline := time.Now().Add(e.cfg.ClosestLookupTimeout)

	for len(active) > 0 && time.Now().Before(deadline) {
		responses := e.dispatch.WaitAll(ctx, batch, e.cfg.ResponseTimeout)

		newResponses := 0
		for _, r := range responses {
			if processed[r.CID] {
				continue
			}
			processed[r.CID] = true
			newResponses++

			if p, ok := active[r.CID]; ok {
				delete(active, r.CID)
				e.routing.Touch(p.ID, time.Now())
				e.report(p, true)
			}
			e.foldPeerListResponse(r, discovered)
		}

		if len(processed) >= e.cfg.MinClosestNodes {
			break
		}
		if newResponses == 0 {
			break
		}
	}

	out := make([]peer.Peer, 0, len(discovered))
	for _, p := range discovered {
		out = append(out, p)
	}
	return out
}

func (e *Engine) foldPeerListResponse(r dispatch.Response, discovered map[peer.ID]peer.Peer) {
	payload, err := wire.DecodeResponsePayload(r.Envelope.Payload)
	if err != nil || payload.Status != wire.StatusOK {
		return
	}

	addPeer := func(identity []byte) {
		p := peer.NewPeer(identity)
		if p.ID == e.self.ID {
			return
		}
		e.routing.Add(p)
		discovered[p.ID] = p
	}

	if r.Envelope.Version == wire.ProtocolVersionV4 {
		list, err := wire.DecodePeerListV4(payload.Data)
		if err != nil {
			return
		}
		for _, rec := range list.Identities {
			addPeer(rec[:])
		}
		return
	}

	list, err := wire.DecodePeerListV5(payload.Data)
	if err != nil {
		return
	}
	for _, rec := range list.Identities {
		addPeer(rec)
	}
}
