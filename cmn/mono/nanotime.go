// Package mono provides the monotonic clock reading used throughout the
// runtime: the timer's deadlines and the scripting bridge's now(). Every
// call reads the clock afresh; no reading is cached per main-loop
// iteration.
package mono

import "time"

var start = time.Now()

// NanoTime returns nanoseconds since an arbitrary but fixed point in the
// process's lifetime (not wall-clock); safe to compare across calls
// within one process, never across processes or after a restart.
func NanoTime() int64 { return time.Since(start).Nanoseconds() }

func Since(t int64) time.Duration { return time.Duration(NanoTime() - t) }
