// Package wire implements the on-the-wire packet codec for the DHT
// subsystem: the common envelope, the six request payload families, the
// response payload, and the V4/V5 peer-list bodies. Every function here is
// pure — no I/O, no goroutines — so packets can be built and parsed in
// isolation from transport and storage concerns.
package wire

import "fmt"

// Kind identifies which keyspace a stored packet belongs to.
type Kind byte

const (
	KindIndex   Kind = 'I'
	KindEmail   Kind = 'E'
	KindContact Kind = 'C'
)

func (k Kind) Valid() bool {
	switch k {
	case KindIndex, KindEmail, KindContact:
		return true
	default:
		return false
	}
}

func (k Kind) String() string {
	switch k {
	case KindIndex:
		return "Index"
	case KindEmail:
		return "Email"
	case KindContact:
		return "Contact"
	default:
		return fmt.Sprintf("Kind(0x%02x)", byte(k))
	}
}

// Type identifies the packet's role within the request/response protocol.
type Type byte

const (
	TypeRetrieve       Type = 'Q'
	TypeDeletionQuery   Type = 'Y'
	TypeStore           Type = 'S'
	TypeEmailDelete     Type = 'D'
	TypeIndexDelete     Type = 'X'
	TypeFindClosePeers  Type = 'F'
	TypeResponse        Type = 'N'
	TypePeerListMarkerL Type = 'L'
	TypePeerListMarkerP Type = 'P'
)

// Status is a response status code (spec.md §6.1, §7).
type Status byte

const (
	StatusOK                     Status = 1
	StatusGeneralError           Status = 2
	StatusNoDataFound            Status = 3
	StatusInvalidPacket          Status = 4
	StatusInsufficientHashcash   Status = 5
	StatusInvalidHashcash        Status = 6
	StatusNoDiskSpace            Status = 7
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusGeneralError:
		return "GENERAL_ERROR"
	case StatusNoDataFound:
		return "NO_DATA_FOUND"
	case StatusInvalidPacket:
		return "INVALID_PACKET"
	case StatusInsufficientHashcash:
		return "INSUFFICIENT_HASHCASH"
	case StatusInvalidHashcash:
		return "INVALID_HASHCASH"
	case StatusNoDiskSpace:
		return "NO_DISK_SPACE"
	default:
		return fmt.Sprintf("Status(%d)", byte(s))
	}
}

const (
	// ProtocolVersionV4 is the legacy protocol version with fixed-width
	// 384-byte peer identity records.
	ProtocolVersionV4 = 4
	// ProtocolVersionV5 is the current protocol version with
	// variable-length, self-describing peer identity records.
	ProtocolVersionV5 = 5

	// KeySize is the width, in bytes, of every content hash, peer-id and
	// delete verifier in the protocol.
	KeySize = 32
	// CIDSize is the width, in bytes, of a correlation id.
	CIDSize = 32

	// KademliaK is the replication/neighborhood size (spec.md glossary).
	KademliaK = 20
)

// magic is the four-byte envelope prefix. The spec leaves the exact bytes
// implementation-defined ("ASCII \"6\x03...\"; specific bytes per impl");
// this is this implementation's fixed choice, checked on every decode.
var magic = [4]byte{'6', 0x03, 0x00, 0x01}

// MalformedError reports a structural problem with a packet. It names the
// offending field so callers can log structured detail without parsing
// error strings.
type MalformedError struct {
	Field string
	Cause error
}

func (e *MalformedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed packet: field %s: %v", e.Field, e.Cause)
	}
	return fmt.Sprintf("malformed packet: field %s", e.Field)
}

func (e *MalformedError) Unwrap() error { return e.Cause }

func malformed(field string, cause error) error {
	return &MalformedError{Field: field, Cause: cause}
}
