package harbor

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/s2"

	"github.com/shacorun/shaco/addr"
	"github.com/shacorun/shaco/msg"
)

// headerSize is the fixed part of a frame after the length prefix:
// source(2) + dest(1) + type(1) + session(4) (spec.md §6 field table),
// grounded byte-for-byte on mod_harbor.c's struct package_header /
// HEADSZ.
const headerSize = 8

// lengthSize is the 4-byte big-endian prefix itself; it is not counted
// in the length value it carries.
const lengthSize = 4

// header is the decoded fixed part of a frame. source and dest are
// wire-truncated exactly as spec.md §6 documents: source packs the
// sending node id into its high byte and only the low 8 bits of the
// sender's local id into its low byte; dest carries only the low 8
// bits of the destination's local id (the node is implied: a frame
// only ever arrives addressed to a local service).
type header struct {
	source     uint16
	dest       uint8
	typ        msg.Type
	session    int32
	compressed bool
}

// flagCompressed is stamped into the otherwise-unused top bit of the
// wire type byte when the payload behind it is s2-compressed (harbor's
// optional compression extra, off by default — spec.md §6 never
// describes this bit, so every defined msg.Type stays well under it).
const flagCompressed uint8 = 0x80

// encodeFrame builds one wire frame for an outbound REMOTE message.
// The length prefix equals headerSize+len(payload) — header and
// payload only, never the prefix itself — exactly as
// mod_harbor.c's _toremote computes it (`len-4` where `len =
// sz+HEADSZ+4`). src is the local sender (its node id is discarded;
// selfNode replaces it, matching "source high byte stamped with the
// local node id"), dest is the remote destination.
func encodeFrame(selfNode uint8, src addr.Handle, dest addr.Handle, typ msg.Type, session int32, payload []byte) []byte {
	return encodeFrameExtra(selfNode, src, dest, typ, session, payload, false)
}

// encodeFrameExtra is encodeFrame plus the optional compression extra:
// when compress is true and s2 actually shrinks payload, the frame
// carries the compressed bytes with flagCompressed set in the type
// byte; otherwise it falls back to the plain frame unchanged.
func encodeFrameExtra(selfNode uint8, src addr.Handle, dest addr.Handle, typ msg.Type, session int32, payload []byte, compress bool) []byte {
	wireTyp := uint8(typ)
	if compress && len(payload) > 0 {
		if packed := s2.Encode(nil, payload); len(packed) < len(payload) {
			payload = packed
			wireTyp |= flagCompressed
		}
	}

	length := headerSize + len(payload)
	buf := make([]byte, lengthSize+length)

	binary.BigEndian.PutUint32(buf[0:4], uint32(length))

	wireSource := uint16(selfNode)<<8 | uint16(src.LocalID()&0xff)
	binary.BigEndian.PutUint16(buf[4:6], wireSource)
	buf[6] = uint8(dest.LocalID() & 0xff)
	buf[7] = wireTyp
	binary.BigEndian.PutUint32(buf[8:12], uint32(session))
	copy(buf[12:], payload)
	return buf
}

// decodeHeader parses the 8-byte fixed part of a frame whose length
// prefix has already been consumed.
func decodeHeader(buf []byte) header {
	raw := buf[3]
	return header{
		source:     binary.BigEndian.Uint16(buf[0:2]),
		dest:       buf[2],
		typ:        msg.Type(raw &^ flagCompressed),
		session:    int32(binary.BigEndian.Uint32(buf[4:8])),
		compressed: raw&flagCompressed != 0,
	}
}

// decompressPayload reverses encodeFrameExtra's s2 packing.
func decompressPayload(payload []byte) ([]byte, error) {
	return s2.Decode(nil, payload)
}

// sourceHandle reconstructs a routable 32-bit handle from the wire's
// truncated 16-bit source: the high byte is the remote node id, the
// low byte its (truncated) local id.
func (h header) sourceHandle() addr.Handle {
	node := uint8(h.source >> 8)
	local := uint32(h.source & 0xff)
	return addr.Make(node, local)
}

// destHandle reconstructs the local destination: dest only ever names
// a service on this node, so the node byte is always selfNode.
func (h header) destHandle(selfNode uint8) addr.Handle {
	return addr.Make(selfNode, uint32(h.dest))
}

// errShortHeader is returned by the reassembler when a frame's length
// value is too small to hold even the fixed header (spec.md §6
// "Frames with total ≤ 8 are rejected" / mod_harbor.c "package head too
// small").
var errShortHeader = fmt.Errorf("harbor: frame header too small")
