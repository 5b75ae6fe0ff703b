// Package addr implements the 32-bit handle address space: an 8-bit
// node id packed into the high byte, a 24-bit local id in the low
// three bytes (spec.md §3 "Handle").
package addr

import (
	"fmt"
	"sync/atomic"
)

// Handle is a routable 32-bit service address. The zero Handle denotes
// "no addressee".
type Handle uint32

const (
	None      Handle = 0
	NodeShift        = 24
	LocalMask        = 1<<NodeShift - 1
)

// Make packs a node id and a 24-bit local id into a Handle. Callers
// must ensure local fits in 24 bits; a local id that doesn't is a
// programming error (the local-id space is dense-allocated and never
// comes close to the limit in practice).
func Make(node uint8, local uint32) Handle {
	return Handle(uint32(node)<<NodeShift | (local & LocalMask))
}

func (h Handle) NodeID() uint8   { return uint8(uint32(h) >> NodeShift) }
func (h Handle) LocalID() uint32 { return uint32(h) & LocalMask }

func (h Handle) String() string { return fmt.Sprintf("%08x", uint32(h)) }

var selfNode atomic.Uint32

// SetSelf records the local node id; called once at startup from the
// configured "slaveid" option by engine.SetSelfNode (or left at the
// zero value for a
// single-node deployment with no harbor).
func SetSelf(node uint8) { selfNode.Store(uint32(node)) }

func Self() uint8 { return uint8(selfNode.Load()) }

// IsLocal reports whether h addresses a service on this node.
func (h Handle) IsLocal() bool { return h.NodeID() == Self() }
