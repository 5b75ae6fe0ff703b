package harbor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shacorun/shaco/addr"
	"github.com/shacorun/shaco/msg"
)

// TestReassemblerSingleFrame covers S1's scenario (spec.md §8): one
// frame fed in one push decodes to exactly one message.
func TestReassemblerSingleFrame(t *testing.T) {
	buf := encodeFrame(0, addr.Make(0, 0x2A), addr.Make(5, 5), msg.Type(1), 7, []byte("HI"))

	var r reassembler
	r.push(buf)
	frames, err := r.pop()
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.Equal(t, []byte("HI"), frames[0].payload)
	require.EqualValues(t, 7, frames[0].session)
}

// TestReassemblerSplitFrame covers S4: the same bytes fed across two
// reads decode to nothing after the first and exactly one message
// after the second.
func TestReassemblerSplitFrame(t *testing.T) {
	buf := encodeFrame(0, addr.Make(0, 0x2A), addr.Make(5, 5), msg.Type(1), 7, []byte("HI"))
	mid := len(buf) / 2

	var r reassembler
	r.push(buf[:mid])
	frames, err := r.pop()
	require.NoError(t, err)
	require.Empty(t, frames)

	r.push(buf[mid:])
	frames, err = r.pop()
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.Equal(t, []byte("HI"), frames[0].payload)
}

// TestReassemblerConcatenatedFrames covers invariant 4: any chunking of
// a concatenated sequence of frames yields exactly the original
// sequence, in order, with no bytes lost.
func TestReassemblerConcatenatedFrames(t *testing.T) {
	f1 := encodeFrame(0, addr.Make(0, 1), addr.Make(0, 2), msg.Type(1), 1, []byte("a"))
	f2 := encodeFrame(0, addr.Make(0, 1), addr.Make(0, 2), msg.Type(1), 2, []byte("bb"))
	f3 := encodeFrame(0, addr.Make(0, 1), addr.Make(0, 2), msg.Type(1), 3, nil)

	var r reassembler
	r.push(append(append(append([]byte{}, f1...), f2...), f3...))
	frames, err := r.pop()
	require.NoError(t, err)
	require.Len(t, frames, 3)
	require.EqualValues(t, 1, frames[0].session)
	require.EqualValues(t, 2, frames[1].session)
	require.EqualValues(t, 3, frames[2].session)
}

// TestReassemblerShortHeader covers S3: a length value too small to
// hold the fixed header is rejected.
func TestReassemblerShortHeader(t *testing.T) {
	buf := []byte{0x00, 0x00, 0x00, 0x05, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA}

	var r reassembler
	r.push(buf)
	_, err := r.pop()
	require.ErrorIs(t, err, errShortHeader)
}
