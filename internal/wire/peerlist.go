package wire

import (
	"encoding/binary"
	"errors"
)

// identityRecordV4Size is the fixed width of a legacy V4 peer identity
// record on the wire.
const identityRecordV4Size = 384

// IdentityRecordV4Size exports identityRecordV4Size for callers building
// PeerListV4 records outside this package (e.g. the Packet Handler).
const IdentityRecordV4Size = identityRecordV4Size

// PeerListV4 is the body of a V4 find-close-peers response:
// marker(1) || 4(1) || count(u16) || count × identity(384).
//
// Each 384-byte record is force-zero-padded by three trailing bytes by
// senders of this protocol version — a compatibility workaround carried
// over from the legacy wire format, which has no way to encode a peer
// identity's signing-key type (spec.md §9). New code should prefer V5 on
// the wire and only emit V4 for backward compatibility; V4 must still be
// accepted inbound.
type PeerListV4 struct {
	Identities [][identityRecordV4Size]byte
}

func (p *PeerListV4) Encode(marker Type) []byte {
	buf := make([]byte, 0, 4+len(p.Identities)*identityRecordV4Size)
	buf = append(buf, byte(marker), ProtocolVersionV4)
	var u16 [2]byte
	binary.BigEndian.PutUint16(u16[:], uint16(len(p.Identities)))
	buf = append(buf, u16[:]...)
	for _, id := range p.Identities {
		// Force-zero the three trailing bytes (see the type comment).
		id[identityRecordV4Size-3], id[identityRecordV4Size-2], id[identityRecordV4Size-1] = 0, 0, 0
		buf = append(buf, id[:]...)
	}
	return buf
}

func DecodePeerListV4(b []byte) (PeerListV4, error) {
	if len(b) < 4 {
		return PeerListV4{}, malformed("peer_list_v4", errors.New("truncated header"))
	}
	marker := Type(b[0])
	if marker != TypePeerListMarkerL && marker != TypePeerListMarkerP {
		return PeerListV4{}, malformed("peer_list_v4.marker", errors.New("unknown marker"))
	}
	if b[1] != ProtocolVersionV4 {
		return PeerListV4{}, malformed("peer_list_v4.version", errors.New("not V4"))
	}
	count := int(binary.BigEndian.Uint16(b[2:4]))

	out := PeerListV4{Identities: make([][identityRecordV4Size]byte, 0, count)}
	off := 4
	for i := 0; i < count; i++ {
		if off == len(b) {
			break // truncated tail: tolerate, stop early (matches reference implementation)
		}
		if off+identityRecordV4Size > len(b) {
			break
		}
		var rec [identityRecordV4Size]byte
		copy(rec[:], b[off:off+identityRecordV4Size])
		out.Identities = append(out.Identities, rec)
		off += identityRecordV4Size
	}
	return out, nil
}

// PeerListV5 is the body of a V5 find-close-peers response:
// marker(1) || 5(1) || count(u16) || count × identity.
//
// The reference protocol's V5 identity records are self-describing via an
// embedded signing-key-type field understood by the full identity codec,
// which is out of scope here (spec.md §1: crypto pipeline is an external
// collaborator). This implementation represents each record as an opaque,
// length-prefixed blob (u16 length || bytes), which keeps the record
// self-describing without depending on identity internals.
type PeerListV5 struct {
	Identities [][]byte
}

func (p *PeerListV5) Encode(marker Type) []byte {
	size := 4
	for _, id := range p.Identities {
		size += 2 + len(id)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, byte(marker), ProtocolVersionV5)
	var u16 [2]byte
	binary.BigEndian.PutUint16(u16[:], uint16(len(p.Identities)))
	buf = append(buf, u16[:]...)
	for _, id := range p.Identities {
		binary.BigEndian.PutUint16(u16[:], uint16(len(id)))
		buf = append(buf, u16[:]...)
		buf = append(buf, id...)
	}
	return buf
}

func DecodePeerListV5(b []byte) (PeerListV5, error) {
	if len(b) < 4 {
		return PeerListV5{}, malformed("peer_list_v5", errors.New("truncated header"))
	}
	marker := Type(b[0])
	if marker != TypePeerListMarkerL && marker != TypePeerListMarkerP {
		return PeerListV5{}, malformed("peer_list_v5.marker", errors.New("unknown marker"))
	}
	if b[1] != ProtocolVersionV5 {
		return PeerListV5{}, malformed("peer_list_v5.version", errors.New("not V5"))
	}
	count := int(binary.BigEndian.Uint16(b[2:4]))

	out := PeerListV5{Identities: make([][]byte, 0, count)}
	off := 4
	for i := 0; i < count; i++ {
		if off+2 > len(b) {
			break
		}
		recLen := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if off+recLen > len(b) {
			break
		}
		out.Identities = append(out.Identities, append([]byte(nil), b[off:off+recLen]...))
		off += recLen
	}
	return out, nil
}

// Index packet body layout (spec.md §3, §6.1): the stored Index packet
// begins with kind(1) || version(1) || ... and carries a 32-byte
// "delete verifier" for the whole packet starting at offset 38, followed
// by a variable list of (email-key, dv) entries. DeleteVerifierOffset and
// DeleteVerifierEnd give that fixed window.
const (
	DeleteVerifierOffset = 38
	DeleteVerifierEnd    = DeleteVerifierOffset + KeySize // 70, per spec.md §4.2
)

// StoredDeleteVerifier extracts the 32-byte delete verifier embedded in a
// stored Email packet's bytes at the fixed offset spec.md §3 mandates.
func StoredDeleteVerifier(body []byte) ([KeySize]byte, error) {
	var dv [KeySize]byte
	if len(body) < DeleteVerifierEnd {
		return dv, malformed("stored_body.dv", errors.New("too short for delete verifier"))
	}
	copy(dv[:], body[DeleteVerifierOffset:DeleteVerifierEnd])
	return dv, nil
}

// IndexEntry is one (email-key, delete-verifier) pair carried inside a
// stored Index packet's body.
type IndexEntry struct {
	EmailKey [KeySize]byte
	DV       [KeySize]byte
}

// IndexBody is the parsed representation of a stored Index packet: the
// fixed kind/version/whole-packet-dv header plus the variable entry list.
// EncodeIndexBody/DecodeIndexBody give the Local Store and the index-delete
// handler a structured view without re-deriving the byte layout each time.
type IndexBody struct {
	Version  byte
	WholeDV  [KeySize]byte
	Entries  []IndexEntry
}

func EncodeIndexBody(b IndexBody) []byte {
	buf := make([]byte, 0, DeleteVerifierEnd+1+len(b.Entries)*2*KeySize)
	buf = append(buf, byte(KindIndex), b.Version)
	// Bytes 2..38 are reserved header fields this spec does not define the
	// contents of; zero-fill them so DeleteVerifierOffset lands at 38.
	buf = append(buf, make([]byte, DeleteVerifierOffset-len(buf))...)
	buf = append(buf, b.WholeDV[:]...)
	buf = append(buf, byte(len(b.Entries)))
	for _, e := range b.Entries {
		buf = append(buf, e.EmailKey[:]...)
		buf = append(buf, e.DV[:]...)
	}
	return buf
}

func DecodeIndexBody(body []byte) (IndexBody, error) {
	if len(body) < DeleteVerifierEnd+1 {
		return IndexBody{}, malformed("index_body", errors.New("too short"))
	}
	k := Kind(body[0])
	if k != KindIndex {
		return IndexBody{}, malformed("index_body.kind", errors.New("not an Index packet"))
	}
	var out IndexBody
	out.Version = body[1]
	copy(out.WholeDV[:], body[DeleteVerifierOffset:DeleteVerifierEnd])

	n := int(body[DeleteVerifierEnd])
	off := DeleteVerifierEnd + 1
	want := off + n*2*KeySize
	if len(body) != want {
		return IndexBody{}, malformed("index_body.entries", errors.New("length mismatch"))
	}
	out.Entries = make([]IndexEntry, n)
	for i := 0; i < n; i++ {
		copy(out.Entries[i].EmailKey[:], body[off:off+KeySize])
		off += KeySize
		copy(out.Entries[i].DV[:], body[off:off+KeySize])
		off += KeySize
	}
	return out, nil
}
