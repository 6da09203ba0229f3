package handler

import (
	"crypto/sha256"
	"log/slog"

	"github.com/meshmail/dhtnode/internal/peer"
	"github.com/meshmail/dhtnode/internal/routing"
	"github.com/meshmail/dhtnode/internal/store"
	"github.com/meshmail/dhtnode/internal/wire"
)

// Func handles one inbound request envelope and produces the response
// payload to send back. fromAddr is the transport peer-address the
// envelope arrived on (not the overlay identity carried in env.From).
type Func func(reg *Registry, env wire.Envelope, fromAddr string) wire.ResponsePayload

// Registry holds the type -> handler table plus the collaborators
// every handler needs (spec.md §4.6: "consult the Local Store and the
// Routing Table"). Grounded on
// WebRTCTransport.RegisterRPCHandler/handleRPCRequest in
// kernel/core/mesh/transport/transport.go, generalized from
// dispatch-by-method-string to dispatch-by-type-byte.
type Registry struct {
	Store   *store.Store
	Routing *routing.Table
	Policy  AdmissionPolicy
	Logger  *slog.Logger

	funcs map[wire.Type]Func
}

// New builds a Registry with the six request handlers pre-registered.
func New(s *store.Store, rt *routing.Table, policy AdmissionPolicy, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if policy == nil {
		policy = AllowAll{}
	}
	r := &Registry{
		Store:   s,
		Routing: rt,
		Policy:  policy,
		Logger:  logger.With("component", "handler"),
		funcs:   make(map[wire.Type]Func),
	}
	r.funcs[wire.TypeRetrieve] = handleRetrieve
	r.funcs[wire.TypeDeletionQuery] = handleDeletionQuery
	r.funcs[wire.TypeStore] = handleStore
	r.funcs[wire.TypeEmailDelete] = handleEmailDelete
	r.funcs[wire.TypeIndexDelete] = handleIndexDelete
	r.funcs[wire.TypeFindClosePeers] = handleFindClosePeers
	return r
}

// Handle looks up env.Type in the registry and runs it, opportunistically
// adding the envelope's sender to the routing table first (spec.md §4.6:
// "Every inbound handler also opportunistically adds the sender to the
// routing table"). It reports ok=false for a type with no registered
// handler, which the caller should treat as a malformed/unsupported
// packet.
func (r *Registry) Handle(env wire.Envelope, fromAddr string) (wire.ResponsePayload, bool) {
	if len(env.From) > 0 {
		r.Routing.Add(peer.NewPeer(env.From))
	}

	fn, ok := r.funcs[env.Type]
	if !ok {
		r.Logger.Debug("no handler registered", "type", string(env.Type))
		return wire.ResponsePayload{}, false
	}
	return fn(r, env, fromAddr), true
}

func handleRetrieve(r *Registry, env wire.Envelope, _ string) wire.ResponsePayload {
	req, err := wire.DecodeRetrieveRequest(env.Payload)
	if err != nil {
		r.Logger.Debug("malformed retrieve request", "err", err)
		return wire.ResponsePayload{Status: wire.StatusInvalidPacket}
	}
	body, ok := r.Store.Get(req.Kind, req.Key)
	if !ok {
		return wire.ResponsePayload{Status: wire.StatusNoDataFound}
	}
	return wire.ResponsePayload{Status: wire.StatusOK, Data: body}
}

// handleDeletionQuery reports whether an Email packet exists without
// deleting it, preserving the "probe, not delete" semantics spec.md §9
// documents as an open question resolved in favor of the source's
// actual behavior.
func handleDeletionQuery(r *Registry, env wire.Envelope, _ string) wire.ResponsePayload {
	req, err := wire.DecodeDeletionQueryRequest(env.Payload)
	if err != nil {
		r.Logger.Debug("malformed deletion query", "err", err)
		return wire.ResponsePayload{Status: wire.StatusInvalidPacket}
	}
	if _, ok := r.Store.Get(wire.KindEmail, req.EmailKey); !ok {
		return wire.ResponsePayload{Status: wire.StatusNoDataFound}
	}
	return wire.ResponsePayload{Status: wire.StatusOK}
}

func handleStore(r *Registry, env wire.Envelope, fromAddr string) wire.ResponsePayload {
	req, err := wire.DecodeStoreRequest(env.Payload)
	if err != nil {
		r.Logger.Debug("malformed store request", "err", err)
		return wire.ResponsePayload{Status: wire.StatusInvalidPacket}
	}

	if admit, reject := r.Policy.Admit(fromAddr, req); !admit {
		return wire.ResponsePayload{Status: reject}
	}

	if _, _, err := wire.BodyKindVersion(req.Body); err != nil {
		return wire.ResponsePayload{Status: wire.StatusInvalidPacket}
	}

	if _, ok, err := r.Store.Put(req.Body); err != nil {
		r.Logger.Warn("store put failed", "err", err)
		return wire.ResponsePayload{Status: wire.StatusGeneralError}
	} else if !ok {
		return wire.ResponsePayload{Status: wire.StatusGeneralError}
	}
	return wire.ResponsePayload{Status: wire.StatusOK}
}

// handleEmailDelete verifies SHA-256(delete-auth) against the stored
// delete-verifier at the fixed offset before deleting (spec.md §3, §7:
// an auth mismatch returns INVALID_PACKET, deliberately not
// distinguishing "wrong auth" from "no such key").
func handleEmailDelete(r *Registry, env wire.Envelope, _ string) wire.ResponsePayload {
	req, err := wire.DecodeEmailDeleteRequest(env.Payload)
	if err != nil {
		r.Logger.Debug("malformed email delete request", "err", err)
		return wire.ResponsePayload{Status: wire.StatusInvalidPacket}
	}

	body, ok := r.Store.Get(wire.KindEmail, req.EmailKey)
	if !ok {
		return wire.ResponsePayload{Status: wire.StatusInvalidPacket}
	}
	storedDV, err := wire.StoredDeleteVerifier(body)
	if err != nil {
		return wire.ResponsePayload{Status: wire.StatusGeneralError}
	}
	if sha256.Sum256(req.DeleteAuth[:]) != storedDV {
		return wire.ResponsePayload{Status: wire.StatusInvalidPacket}
	}

	if _, err := r.Store.Delete(wire.KindEmail, req.EmailKey); err != nil {
		r.Logger.Warn("email delete failed", "err", err)
		return wire.ResponsePayload{Status: wire.StatusGeneralError}
	}
	return wire.ResponsePayload{Status: wire.StatusOK}
}

// handleIndexDelete removes every entry whose dv matches a supplied
// pre-image's SHA-256, writing back the trimmed packet atomically, or
// deleting it outright if every entry was removed (spec.md §3, §8
// invariant 6).
func handleIndexDelete(r *Registry, env wire.Envelope, _ string) wire.ResponsePayload {
	req, err := wire.DecodeIndexDeleteRequest(env.Payload)
	if err != nil {
		r.Logger.Debug("malformed index delete request", "err", err)
		return wire.ResponsePayload{Status: wire.StatusInvalidPacket}
	}

	body, ok := r.Store.Get(wire.KindIndex, req.IndexKey)
	if !ok {
		return wire.ResponsePayload{Status: wire.StatusInvalidPacket}
	}
	idx, err := wire.DecodeIndexBody(body)
	if err != nil {
		return wire.ResponsePayload{Status: wire.StatusGeneralError}
	}

	toRemove := make(map[[wire.KeySize]byte]bool, len(req.Entries))
	for _, e := range req.Entries {
		toRemove[sha256.Sum256(e.DeleteAuth[:])] = true
	}

	kept := idx.Entries[:0:0]
	for _, e := range idx.Entries {
		if toRemove[e.DV] {
			continue
		}
		kept = append(kept, e)
	}
	idx.Entries = kept

	if len(idx.Entries) == 0 {
		if _, err := r.Store.Delete(wire.KindIndex, req.IndexKey); err != nil {
			r.Logger.Warn("index delete failed", "err", err)
			return wire.ResponsePayload{Status: wire.StatusGeneralError}
		}
		return wire.ResponsePayload{Status: wire.StatusOK}
	}

	if err := r.Store.PutIndexBody(req.IndexKey, idx); err != nil {
		r.Logger.Warn("index rewrite failed", "err", err)
		return wire.ResponsePayload{Status: wire.StatusGeneralError}
	}
	return wire.ResponsePayload{Status: wire.StatusOK}
}

// handleFindClosePeers replies with up to K closest peers, encoded as a
// PeerList body matching the request's protocol version (spec.md §4.6,
// §6.1).
func handleFindClosePeers(r *Registry, env wire.Envelope, _ string) wire.ResponsePayload {
	req, err := wire.DecodeFindClosePeersRequest(env.Payload)
	if err != nil {
		r.Logger.Debug("malformed find close peers request", "err", err)
		return wire.ResponsePayload{Status: wire.StatusInvalidPacket}
	}

	var target peer.ID
	copy(target[:], req.Key[:])
	closest := r.Routing.Closest(target, wire.KademliaK, false)

	var data []byte
	switch env.Version {
	case wire.ProtocolVersionV4:
		list := wire.PeerListV4{Identities: make([][wire.IdentityRecordV4Size]byte, 0, len(closest))}
		for _, p := range closest {
			var rec [wire.IdentityRecordV4Size]byte
			copy(rec[:], p.Identity)
			list.Identities = append(list.Identities, rec)
		}
		data = list.Encode(wire.TypePeerListMarkerL)
	default:
		list := wire.PeerListV5{Identities: make([][]byte, 0, len(closest))}
		for _, p := range closest {
			list.Identities = append(list.Identities, p.Identity)
		}
		data = list.Encode(wire.TypePeerListMarkerL)
	}

	return wire.ResponsePayload{Status: wire.StatusOK, Data: data}
}
