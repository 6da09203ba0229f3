package wire

import (
	"encoding/binary"
	"errors"
)

// RetrieveRequest is the payload of a Q (retrieve) packet:
// kind(1) || key(32).
type RetrieveRequest struct {
	Kind Kind
	Key  [KeySize]byte
}

func (r *RetrieveRequest) Encode() []byte {
	buf := make([]byte, 1+KeySize)
	buf[0] = byte(r.Kind)
	copy(buf[1:], r.Key[:])
	return buf
}

func DecodeRetrieveRequest(b []byte) (RetrieveRequest, error) {
	if len(b) != 1+KeySize {
		return RetrieveRequest{}, malformed("retrieve_request", errors.New("wrong length"))
	}
	k := Kind(b[0])
	if !k.Valid() {
		return RetrieveRequest{}, malformed("retrieve_request.kind", errors.New("unknown kind"))
	}
	var req RetrieveRequest
	req.Kind = k
	copy(req.Key[:], b[1:])
	return req, nil
}

// DeletionQueryRequest is the payload of a Y (deletion query) packet: a
// probe for whether an Email packet exists, without deleting it
// (spec.md §4.6, §9 open question — probe semantics preserved).
type DeletionQueryRequest struct {
	EmailKey [KeySize]byte
}

func (r *DeletionQueryRequest) Encode() []byte {
	buf := make([]byte, KeySize)
	copy(buf, r.EmailKey[:])
	return buf
}

func DecodeDeletionQueryRequest(b []byte) (DeletionQueryRequest, error) {
	if len(b) != KeySize {
		return DeletionQueryRequest{}, malformed("deletion_query", errors.New("wrong length"))
	}
	var req DeletionQueryRequest
	copy(req.EmailKey[:], b)
	return req, nil
}

// StoreRequest is the payload of an S (store) packet:
// hc_length(u16) || hashcash(hc_length) || length(u16) || body(length).
// Body begins with kind(1) || version(1) || ... (spec.md §6.1).
type StoreRequest struct {
	Hashcash []byte
	Body     []byte
}

func (r *StoreRequest) Encode() []byte {
	buf := make([]byte, 0, 2+len(r.Hashcash)+2+len(r.Body))
	var u16 [2]byte

	binary.BigEndian.PutUint16(u16[:], uint16(len(r.Hashcash)))
	buf = append(buf, u16[:]...)
	buf = append(buf, r.Hashcash...)

	binary.BigEndian.PutUint16(u16[:], uint16(len(r.Body)))
	buf = append(buf, u16[:]...)
	buf = append(buf, r.Body...)
	return buf
}

func DecodeStoreRequest(b []byte) (StoreRequest, error) {
	if len(b) < 2 {
		return StoreRequest{}, malformed("store_request.hc_length", errors.New("truncated"))
	}
	hcLen := int(binary.BigEndian.Uint16(b[0:2]))
	off := 2
	if len(b) < off+hcLen+2 {
		return StoreRequest{}, malformed("store_request.hashcash", errors.New("truncated"))
	}
	hashcash := append([]byte(nil), b[off:off+hcLen]...)
	off += hcLen

	bodyLen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if len(b) < off+bodyLen {
		return StoreRequest{}, malformed("store_request.body", errors.New("truncated"))
	}
	body := append([]byte(nil), b[off:off+bodyLen]...)

	return StoreRequest{Hashcash: hashcash, Body: body}, nil
}

// BodyKindVersion reads the two-byte (kind, version) prefix every stored
// packet body must begin with (spec.md §3 invariant).
func BodyKindVersion(body []byte) (Kind, byte, error) {
	if len(body) < 2 {
		return 0, 0, malformed("body", errors.New("too short for kind/version prefix"))
	}
	k := Kind(body[0])
	if !k.Valid() {
		return 0, 0, malformed("body.kind", errors.New("unknown kind"))
	}
	return k, body[1], nil
}

// EmailDeleteRequest is the payload of a D (email delete) packet:
// email-key(32) || delete-auth(32).
type EmailDeleteRequest struct {
	EmailKey   [KeySize]byte
	DeleteAuth [KeySize]byte
}

func (r *EmailDeleteRequest) Encode() []byte {
	buf := make([]byte, 2*KeySize)
	copy(buf[:KeySize], r.EmailKey[:])
	copy(buf[KeySize:], r.DeleteAuth[:])
	return buf
}

func DecodeEmailDeleteRequest(b []byte) (EmailDeleteRequest, error) {
	if len(b) != 2*KeySize {
		return EmailDeleteRequest{}, malformed("email_delete_request", errors.New("wrong length"))
	}
	var req EmailDeleteRequest
	copy(req.EmailKey[:], b[:KeySize])
	copy(req.DeleteAuth[:], b[KeySize:])
	return req, nil
}

// IndexDeleteEntry is one (email-key, delete-auth) pair in an index
// delete request.
type IndexDeleteEntry struct {
	EmailKey   [KeySize]byte
	DeleteAuth [KeySize]byte
}

// IndexDeleteRequest is the payload of an X (index delete) packet:
// index-key(32) || n(1) || n × (email-key(32) || delete-auth(32)).
type IndexDeleteRequest struct {
	IndexKey [KeySize]byte
	Entries  []IndexDeleteEntry
}

func (r *IndexDeleteRequest) Encode() []byte {
	buf := make([]byte, 0, KeySize+1+len(r.Entries)*2*KeySize)
	buf = append(buf, r.IndexKey[:]...)
	buf = append(buf, byte(len(r.Entries)))
	for _, e := range r.Entries {
		buf = append(buf, e.EmailKey[:]...)
		buf = append(buf, e.DeleteAuth[:]...)
	}
	return buf
}

func DecodeIndexDeleteRequest(b []byte) (IndexDeleteRequest, error) {
	if len(b) < KeySize+1 {
		return IndexDeleteRequest{}, malformed("index_delete_request", errors.New("truncated"))
	}
	var req IndexDeleteRequest
	copy(req.IndexKey[:], b[:KeySize])
	n := int(b[KeySize])
	off := KeySize + 1

	want := off + n*2*KeySize
	if len(b) != want {
		return IndexDeleteRequest{}, malformed("index_delete_request.entries", errors.New("length mismatch"))
	}
	req.Entries = make([]IndexDeleteEntry, n)
	for i := 0; i < n; i++ {
		copy(req.Entries[i].EmailKey[:], b[off:off+KeySize])
		off += KeySize
		copy(req.Entries[i].DeleteAuth[:], b[off:off+KeySize])
		off += KeySize
	}
	return req, nil
}

// FindClosePeersRequest is the payload of an F (find close peers) packet:
// key(32).
type FindClosePeersRequest struct {
	Key [KeySize]byte
}

func (r *FindClosePeersRequest) Encode() []byte {
	buf := make([]byte, KeySize)
	copy(buf, r.Key[:])
	return buf
}

func DecodeFindClosePeersRequest(b []byte) (FindClosePeersRequest, error) {
	if len(b) != KeySize {
		return FindClosePeersRequest{}, malformed("find_close_peers_request", errors.New("wrong length"))
	}
	var req FindClosePeersRequest
	copy(req.Key[:], b)
	return req, nil
}

// ResponsePayload is the payload of an N (response) packet:
// status(1) || length(u16) || data(length).
type ResponsePayload struct {
	Status Status
	Data   []byte
}

func (r *ResponsePayload) Encode() []byte {
	buf := make([]byte, 0, 1+2+len(r.Data))
	buf = append(buf, byte(r.Status))
	var u16 [2]byte
	binary.BigEndian.PutUint16(u16[:], uint16(len(r.Data)))
	buf = append(buf, u16[:]...)
	buf = append(buf, r.Data...)
	return buf
}

func DecodeResponsePayload(b []byte) (ResponsePayload, error) {
	if len(b) < 3 {
		return ResponsePayload{}, malformed("response", errors.New("truncated"))
	}
	status := Status(b[0])
	length := int(binary.BigEndian.Uint16(b[1:3]))
	if len(b) != 3+length {
		return ResponsePayload{}, malformed("response.data", errors.New("length mismatch"))
	}
	return ResponsePayload{Status: status, Data: append([]byte(nil), b[3:]...)}, nil
}
