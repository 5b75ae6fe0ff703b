// Package atomic provides thin typed wrappers over sync/atomic, the way
// the rest of the pack names and groups its atomically-mutated fields
// instead of sprinkling raw sync/atomic calls through the codebase.
package atomic

import "sync/atomic"

type (
	Bool   struct{ v atomic.Bool }
	Int32  struct{ v atomic.Int32 }
	Uint32 struct{ v atomic.Uint32 }
	Int64  struct{ v atomic.Int64 }
)

func (b *Bool) Store(v bool) { b.v.Store(v) }
func (b *Bool) Load() bool   { return b.v.Load() }
func (b *Bool) CompareAndSwap(old, new bool) bool { return b.v.CompareAndSwap(old, new) }

func (i *Int32) Store(v int32)    { i.v.Store(v) }
func (i *Int32) Load() int32      { return i.v.Load() }
func (i *Int32) Add(d int32) int32 { return i.v.Add(d) }

func (u *Uint32) Store(v uint32)     { u.v.Store(v) }
func (u *Uint32) Load() uint32       { return u.v.Load() }
func (u *Uint32) Add(d uint32) uint32 { return u.v.Add(d) }

func (i *Int64) Store(v int64)     { i.v.Store(v) }
func (i *Int64) Load() int64       { return i.v.Load() }
func (i *Int64) Add(d int64) int64 { return i.v.Add(d) }
