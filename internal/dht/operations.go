package dht

import (
	"context"

	"github.com/meshmail/dhtnode/internal/dispatch"
	"github.com/meshmail/dhtnode/internal/peer"
	"github.com/meshmail/dhtnode/internal/store"
	"github.com/meshmail/dhtnode/internal/wire"
)

// peerBatch builds a batch of one request per peer, returning the batch
// alongside a CID -> peer map the caller needs to attribute responses
// back to the peer that sent them (a Response only carries the
// transport address and sender identity the responder chose to put in
// its envelope, not which of our outbound entries it is answering).
func (e *Engine) peerBatch(label string, peers []peer.Peer, typ wire.Type, payload func() []byte) (*dispatch.Batch, map[dispatch.CID]peer.Peer) {
	batch := dispatch.NewBatch(label)
	owners := make(map[dispatch.CID]peer.Peer, len(peers))
	for _, p := range peers {
		cid, err := randomCID()
		if err != nil {
			e.logger.Warn("cid generation failed", "err", err)
			continue
		}
		env := e.buildEnvelope(typ, wire.ProtocolVersionV5, cid, payload())
		batch.Add(dispatch.Entry{CID: cid, Peer: p, Bytes: env.Encode()})
		owners[cid] = p
	}
	return batch, owners
}

// FindOne implements spec.md §4.7's find-one(key, kind): wait-first
// semantics, retried up to MaxRetries times on a fully empty response
// set.
func (e *Engine) FindOne(ctx context.Context, kind wire.Kind, key store.Key) (dispatch.Response, bool) {
	req := wire.RetrieveRequest{Kind: kind, Key: key}
	for attempt := 0; attempt < e.cfg.MaxRetries; attempt++ {
		peers := e.selectPeers(ctx, peer.ID(key))
		if len(peers) == 0 {
			return dispatch.Response{}, false
		}

		batch, _ := e.peerBatch("find-one", peers, wire.TypeRetrieve, req.Encode)
		if err := e.dispatch.Submit(ctx, batch); err != nil {
			e.dispatch.Retract(batch)
			continue
		}
		responses := e.dispatch.WaitFirst(ctx, batch, e.cfg.ResponseTimeout)
		e.dispatch.Retract(batch)

		if len(responses) > 0 {
			return responses[0], true
		}
	}
	return dispatch.Response{}, false
}

// FindAll implements spec.md §4.7's find-all(key, kind): wait-all
// semantics, retried up to MaxRetries times on a fully empty response
// set. At most one response per queried peer (spec.md §8 invariant 7)
// follows directly from one CID per peer.
func (e *Engine) FindAll(ctx context.Context, kind wire.Kind, key store.Key) []dispatch.Response {
	req := wire.RetrieveRequest{Kind: kind, Key: key}
	for attempt := 0; attempt < e.cfg.MaxRetries; attempt++ {
		peers := e.selectPeers(ctx, peer.ID(key))
		if len(peers) == 0 {
			return nil
		}

		batch, _ := e.peerBatch("find-all", peers, wire.TypeRetrieve, req.Encode)
		if err := e.dispatch.Submit(ctx, batch); err != nil {
			e.dispatch.Retract(batch)
			continue
		}
		responses := e.dispatch.WaitAll(ctx, batch, e.cfg.ResponseTimeout)
		e.dispatch.Retract(batch)

		if len(responses) > 0 {
			return responses
		}
	}
	return nil
}

// Store implements spec.md §4.7's store(key, kind, body): the peer
// selection target is the content-hash of body, a fresh random CID is
// used per peer per attempt, and the return value is the set of peer
// identities (base64) that acknowledged with OK.
func (e *Engine) Store(ctx context.Context, body []byte) []string {
	target := peer.ID(store.ContentHash(body))
	req := wire.StoreRequest{Body: body}

	for attempt := 0; attempt < e.cfg.MaxRetries; attempt++ {
		peers := e.selectPeers(ctx, target)
		if len(peers) == 0 {
			return nil
		}

		batch, owners := e.peerBatch("store", peers, wire.TypeStore, req.Encode)
		if err := e.dispatch.Submit(ctx, batch); err != nil {
			e.dispatch.Retract(batch)
			continue
		}
		responses := e.dispatch.WaitAll(ctx, batch, e.cfg.ResponseTimeout)
		e.dispatch.Retract(batch)

		if acked := e.ackedIdentities(responses, owners); len(acked) > 0 {
			return acked
		}
	}
	return nil
}

// DeleteEmail implements spec.md §4.7's delete-email(key, delete-auth).
func (e *Engine) DeleteEmail(ctx context.Context, key, deleteAuth [wire.KeySize]byte) []string {
	req := wire.EmailDeleteRequest{EmailKey: key, DeleteAuth: deleteAuth}
	for attempt := 0; attempt < e.cfg.MaxRetries; attempt++ {
		peers := e.selectPeers(ctx, peer.ID(key))
		if len(peers) == 0 {
			return nil
		}

		batch, owners := e.peerBatch("delete-email", peers, wire.TypeEmailDelete, req.Encode)
		if err := e.dispatch.Submit(ctx, batch); err != nil {
			e.dispatch.Retract(batch)
			continue
		}
		responses := e.dispatch.WaitAll(ctx, batch, e.cfg.ResponseTimeout)
		e.dispatch.Retract(batch)

		if acked := e.ackedIdentities(responses, owners); len(acked) > 0 {
			return acked
		}
	}
	return nil
}

// DeleteIndexEntry implements spec.md §4.7's
// delete-index-entry(index-key, email-key, delete-auth).
func (e *Engine) DeleteIndexEntry(ctx context.Context, indexKey [wire.KeySize]byte, emailKey, deleteAuth [wire.KeySize]byte) []string {
	req := wire.IndexDeleteRequest{
		IndexKey: indexKey,
		Entries:  []wire.IndexDeleteEntry{{EmailKey: emailKey, DeleteAuth: deleteAuth}},
	}
	for attempt := 0; attempt < e.cfg.MaxRetries; attempt++ {
		peers := e.selectPeers(ctx, peer.ID(indexKey))
		if len(peers) == 0 {
			return nil
		}

		batch, owners := e.peerBatch("delete-index-entry", peers, wire.TypeIndexDelete, req.Encode)
		if err := e.dispatch.Submit(ctx, batch); err != nil {
			e.dispatch.Retract(batch)
			continue
		}
		responses := e.dispatch.WaitAll(ctx, batch, e.cfg.ResponseTimeout)
		e.dispatch.Retract(batch)

		if acked := e.ackedIdentities(responses, owners); len(acked) > 0 {
			return acked
		}
	}
	return nil
}

func (e *Engine) ackedIdentities(responses []dispatch.Response, owners map[dispatch.CID]peer.Peer) []string {
	acked := make([]string, 0, len(responses))
	for _, r := range responses {
		p, ok := owners[r.CID]
		if !ok {
			continue
		}
		payload, err := wire.DecodeResponsePayload(r.Envelope.Payload)
		success := err == nil && payload.Status == wire.StatusOK
		e.report(p, success)
		if success {
			acked = append(acked, p.IdentityBase64())
		}
	}
	return acked
}
