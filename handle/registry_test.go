package handle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shacorun/shaco/addr"
	"github.com/shacorun/shaco/svc"
)

func newCounterModule() *svc.Module {
	return &svc.Module{
		Name:   "counter",
		Create: func() any { return struct{}{} },
		Init:   func(ctx *svc.Context, inst any, args string) error { return nil },
	}
}

// TestHandleStableAcrossRegistration covers testable property 1
// (spec.md §8): once Register returns a handle, it never changes for
// the lifetime of the context, and resolves back to the same context.
func TestHandleStableAcrossRegistration(t *testing.T) {
	reg := New()
	loader := svc.NewLoader(t.TempDir())
	loader.RegisterBuiltin(newCounterModule())

	ctx, err := svc.Create(loader, reg, "counter", "")
	require.NoError(t, err)

	h1 := ctx.Handle()
	h2 := ctx.Handle()
	require.Equal(t, h1, h2)

	got, ok := reg.Lookup(h1)
	require.True(t, ok)
	require.Same(t, ctx, got)
}

func TestRegisterAssignsDenseIncreasingLocalIDs(t *testing.T) {
	reg := New()
	loader := svc.NewLoader(t.TempDir())
	loader.RegisterBuiltin(newCounterModule())

	ctxA, err := svc.Create(loader, reg, "counter", "")
	require.NoError(t, err)
	ctxB, err := svc.Create(loader, reg, "counter", "")
	require.NoError(t, err)

	require.Equal(t, ctxA.Handle().LocalID()+1, ctxB.Handle().LocalID())
	require.Equal(t, 2, reg.Len())
}

func TestQueryResolvesClassNameToEarliestBinding(t *testing.T) {
	reg := New()
	loader := svc.NewLoader(t.TempDir())
	loader.RegisterBuiltin(newCounterModule())

	first, err := svc.Create(loader, reg, "counter", "")
	require.NoError(t, err)
	_, err = svc.Create(loader, reg, "counter", "")
	require.NoError(t, err)

	h, ok := reg.Query("counter")
	require.True(t, ok)
	require.Equal(t, first.Handle(), h)
}

func TestQueryUnboundNameNotFound(t *testing.T) {
	reg := New()
	_, ok := reg.Query("nonexistent")
	require.False(t, ok)
}

func TestLookupRejectsZeroAndOutOfRangeHandles(t *testing.T) {
	reg := New()
	_, ok := reg.Lookup(addr.None)
	require.False(t, ok)

	_, ok = reg.Lookup(addr.Make(addr.Self(), 99))
	require.False(t, ok)
}

// TestKillTombstonesRatherThanReusingSlot covers Open Question
// resolution (b): a killed handle reports "gone" forever, and the next
// Register still gets a fresh, never-reused local id.
func TestKillTombstonesRatherThanReusingSlot(t *testing.T) {
	reg := New()
	loader := svc.NewLoader(t.TempDir())

	freed := false
	loader.RegisterBuiltin(&svc.Module{
		Name:   "counter",
		Create: func() any { return struct{}{} },
		Init:   func(ctx *svc.Context, inst any, args string) error { return nil },
		Free:   func(inst any) { freed = true },
	})

	ctx, err := svc.Create(loader, reg, "counter", "")
	require.NoError(t, err)
	h := ctx.Handle()

	require.True(t, reg.Kill(h))
	require.True(t, freed)

	_, ok := reg.Lookup(h)
	require.False(t, ok)
	require.False(t, reg.Kill(h)) // already dead

	next, err := svc.Create(loader, reg, "counter", "")
	require.NoError(t, err)
	require.NotEqual(t, h.LocalID(), next.Handle().LocalID())
	require.Equal(t, h.LocalID()+1, next.Handle().LocalID())
}
