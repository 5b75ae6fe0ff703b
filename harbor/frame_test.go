package harbor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shacorun/shaco/addr"
	"github.com/shacorun/shaco/msg"
)

// Frame round-trip (spec.md §8 invariant 3): encoding then decoding a
// message yields the same tuple modulo the documented truncation of
// destination to 8 bits and source to 16 bits.
//
// The length prefix is computed as headerSize+len(payload), matching
// mod_harbor.c's `len-4` (len = sz+HEADSZ+4) exactly. spec.md's own
// worked hex examples for this scenario (S1/S2) don't arithmetically
// agree with its own field-width table, so this test is grounded on
// the original C source instead; see DESIGN.md.
func TestFrameRoundTrip(t *testing.T) {
	src := addr.Make(3, 0x000022)
	dst := addr.Make(5, 0x000011)
	payload := []byte("HI")

	buf := encodeFrame(3, src, dst, msg.Type(1), 7, payload)

	require.Equal(t, uint32(headerSize+len(payload)), beUint32(buf[0:4]))

	hdr := decodeHeader(buf[lengthSize : lengthSize+headerSize])
	require.EqualValues(t, 0x11, hdr.dest) // low 8 bits of dst retained
	require.Equal(t, msg.Type(1), hdr.typ)
	require.EqualValues(t, 7, hdr.session)
	require.EqualValues(t, (3<<8)|0x22, hdr.source) // node 3 stamped, low byte of src retained

	gotPayload := buf[lengthSize+headerSize:]
	require.Equal(t, payload, gotPayload)

	require.EqualValues(t, 5, hdr.destHandle(5).NodeID())
	require.EqualValues(t, 0x11, hdr.destHandle(5).LocalID())
	require.EqualValues(t, 3, hdr.sourceHandle().NodeID())
	require.EqualValues(t, 0x22, hdr.sourceHandle().LocalID())
}

// TestFrameEncodeEmptyPayload exercises S2's exact scenario values
// (node 3, dest handle 0x050011, source 0x000022, session 1, type 2,
// empty payload) with the corrected length formula.
func TestFrameEncodeEmptyPayload(t *testing.T) {
	src := addr.Make(0, 0x000022)
	dst := addr.Handle(0x050011)

	buf := encodeFrame(3, src, dst, msg.Type(2), 1, nil)
	require.Equal(t, []byte{0x00, 0x00, 0x00, 0x08, 0x03, 0x22, 0x11, 0x02, 0x00, 0x00, 0x00, 0x01}, buf)
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// TestFrameCompressionRoundTrip covers the opt-in compression extra:
// a compressible payload is flagged and shrunk on encode, and comes
// back byte-identical on decode.
func TestFrameCompressionRoundTrip(t *testing.T) {
	src := addr.Make(3, 0x22)
	dst := addr.Make(5, 0x11)
	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = 'a'
	}

	buf := encodeFrameExtra(3, src, dst, msg.Type(1), 7, payload, true)
	require.Less(t, len(buf), lengthSize+headerSize+len(payload))

	hdr := decodeHeader(buf[lengthSize : lengthSize+headerSize])
	require.True(t, hdr.compressed)
	require.Equal(t, msg.Type(1), hdr.typ) // flag bit doesn't leak into the decoded type

	got, err := decompressPayload(buf[lengthSize+headerSize:])
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

// TestFrameCompressionSkipsIncompressiblePayload covers the fallback:
// a payload s2 can't shrink is sent uncompressed rather than larger.
func TestFrameCompressionSkipsIncompressiblePayload(t *testing.T) {
	src := addr.Make(0, 1)
	dst := addr.Make(0, 2)
	payload := []byte("x")

	compressed := encodeFrameExtra(3, src, dst, msg.Type(1), 1, payload, true)
	plain := encodeFrame(3, src, dst, msg.Type(1), 1, payload)
	require.Equal(t, plain, compressed)
}
