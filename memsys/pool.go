// Package memsys is the runtime's allocator shim: the Go stand-in for
// the original shaco_malloc/shaco_free/shaco_strdup wrappers. The
// reactor's read buffers and the data payloads it hands out are
// allocated here, and the dispatcher Frees the payloads it drops; other
// buffers (e.g. the harbor's encoded frames) are built with make.
package memsys

import "sync"

// size classes, coarse enough that a harbor frame or a typical TEXT
// command payload always rounds up to one of them without much waste.
const (
	classSmall  = 256
	classMedium = 4 * 1024
	classLarge  = 64 * 1024
)

var pools = [...]*sync.Pool{
	newClassPool(classSmall),
	newClassPool(classMedium),
	newClassPool(classLarge),
}

func newClassPool(size int) *sync.Pool {
	return &sync.Pool{New: func() any { return make([]byte, size) }}
}

func classFor(n int) int {
	switch {
	case n <= classSmall:
		return 0
	case n <= classMedium:
		return 1
	default:
		return 2
	}
}

// Alloc returns a buffer of at least n bytes, ownership transferring to
// the caller until it calls Free. Message payload ownership (spec.md §3)
// is modeled exactly this way: enqueue transfers it to the dispatcher,
// delivery transfers it to the callback, which is expected to Free it.
func Alloc(n int) []byte {
	if n > classLarge {
		return make([]byte, n) // oversize: not pooled
	}
	idx := classFor(n)
	buf := pools[idx].Get().([]byte)
	return buf[:n]
}

// Free returns buf to its size-class pool. Safe to call on a buffer that
// didn't come from Alloc (e.g. a caller-supplied slice) as long as its
// capacity doesn't happen to collide with a pool's backing array size —
// callers that build their own buffers should simply not call Free.
func Free(buf []byte) {
	c := cap(buf)
	switch c {
	case classSmall, classMedium, classLarge:
		pools[classFor(c)].Put(buf[:c])
	}
}

// Dup copies src into a freshly Alloc-ed buffer — the Go analogue of
// shaco_strdup/memcpy-into-owned-buffer used when a payload needs to
// outlive the caller's own slice (e.g. a control-command string).
func Dup(src []byte) []byte {
	b := Alloc(len(src))
	copy(b, src)
	return b
}
