package wire

import (
	"encoding/binary"
	"errors"
)

// Envelope is the common header carried by every request/response packet
// (spec.md §4.1). Payload is the type- and version-specific body, left
// unparsed here — handlers pick the right payload decoder once they know
// both Type and Version.
type Envelope struct {
	Type    Type
	Version byte
	CID     [CIDSize]byte
	From    []byte // sender overlay-identity blob as raw bytes (length-prefixed, not base64-encoded)
	Payload []byte
}

// Encode serializes the envelope: magic(4) || type(1) || version(1) ||
// cid(32) || fromLen(u16) || from || payload.
func (e *Envelope) Encode() []byte {
	buf := make([]byte, 0, 4+1+1+CIDSize+2+len(e.From)+len(e.Payload))
	buf = append(buf, magic[:]...)
	buf = append(buf, byte(e.Type), e.Version)
	buf = append(buf, e.CID[:]...)

	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(e.From)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, e.From...)
	buf = append(buf, e.Payload...)
	return buf
}

// DecodeEnvelope parses the common header and returns the remaining bytes
// as Payload. It tolerates any Version value — version-specific payload
// parsing happens downstream — but rejects a bad magic or a truncated
// header outright.
func DecodeEnvelope(b []byte) (Envelope, error) {
	const headerLen = 4 + 1 + 1 + CIDSize + 2
	if len(b) < headerLen {
		return Envelope{}, malformed("envelope", errors.New("truncated header"))
	}
	if [4]byte(b[:4]) != magic {
		return Envelope{}, malformed("magic", errors.New("bad protocol magic"))
	}

	var env Envelope
	off := 4
	env.Type = Type(b[off])
	off++
	env.Version = b[off]
	off++
	copy(env.CID[:], b[off:off+CIDSize])
	off += CIDSize

	fromLen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if len(b) < off+fromLen {
		return Envelope{}, malformed("from", errors.New("truncated sender identity"))
	}
	env.From = append([]byte(nil), b[off:off+fromLen]...)
	off += fromLen

	env.Payload = append([]byte(nil), b[off:]...)
	return env, nil
}
