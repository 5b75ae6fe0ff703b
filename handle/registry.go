// Package handle is the handle registry (spec.md §3 "Handle registry",
// §4.1): two parallel dynamic arrays — contexts indexed by
// (local_id - 1), and name<->handle aliases in registration order.
package handle

import (
	"sync"

	"github.com/shacorun/shaco/addr"
	"github.com/shacorun/shaco/cmn/nlog"
	"github.com/shacorun/shaco/dispatch"
	"github.com/shacorun/shaco/svc"
)

type alias struct {
	name   string
	handle addr.Handle
}

type slot struct {
	ctx  *svc.Context
	dead bool // set by Kill; Lookup then reports "gone" instead of reusing the slot
}

// Registry is the process-wide handle table. Destruction of individual
// contexts during normal operation is deferred by design (spec.md §9)
// — Kill is the explicit opt-in alternative (design note resolution
// (b)): it tombstones the slot rather than ever reusing it.
type Registry struct {
	mu       sync.RWMutex
	contexts []slot
	aliases  []alias
}

func New() *Registry {
	return &Registry{
		contexts: make([]slot, 0, 1),
		aliases:  make([]alias, 0, 1),
	}
}

// Register appends ctx and assigns it the next dense local id, then
// binds the owning module's class name as an alias — every instance of
// a class is bindable by that class name, with Query resolving to
// whichever registered first (spec.md §4.1, and the supplemented
// unconditional-bind detail from shaco_handle_register in SPEC_FULL.md).
func (r *Registry) Register(ctx *svc.Context) addr.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	local := uint32(len(r.contexts)) + 1
	r.contexts = append(r.contexts, slot{ctx: ctx})
	h := addr.Make(addr.Self(), local)
	r.bindNameLocked(h, ctx.ModuleName())
	return h
}

// Lookup resolves h to its context. Out-of-range, zero, or killed
// handles return (nil, false) and log at ERROR (spec.md §4.1).
func (r *Registry) Lookup(h addr.Handle) (dispatch.Receiver, bool) {
	ctx, ok := r.lookupCtx(h)
	if !ok {
		return nil, false
	}
	return ctx, true
}

func (r *Registry) lookupCtx(h addr.Handle) (*svc.Context, bool) {
	if h == addr.None || !h.IsLocal() {
		nlog.Errorf("handle: not found %s", h)
		return nil, false
	}
	local := h.LocalID()
	r.mu.RLock()
	defer r.mu.RUnlock()
	if local == 0 || int(local) > len(r.contexts) {
		nlog.Errorf("handle: not found %s", h)
		return nil, false
	}
	s := r.contexts[local-1]
	if s.dead {
		nlog.Errorf("handle: %s is gone", h)
		return nil, false
	}
	return s.ctx, true
}

// BindName adds an alias for handle, in addition to whatever its
// class-name alias already is. Multiple names may map to the same
// handle (spec.md §4.1).
func (r *Registry) BindName(h addr.Handle, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindNameLocked(h, name)
}

func (r *Registry) bindNameLocked(h addr.Handle, name string) {
	r.aliases = append(r.aliases, alias{name: name, handle: h})
}

// QuerySentinel is returned by Query when name has never been bound —
// kept for parity with shaco_handle_query's (uint32_t)-1 contract
// (spec.md §9 Open Questions); new code should prefer the (handle, ok)
// form below instead.
const QuerySentinel = addr.Handle(0xFFFFFFFF)

// Query resolves name to a handle, scanning aliases in insertion order
// so ties are broken by earliest binding (spec.md §4.1).
func (r *Registry) Query(name string) (addr.Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.aliases {
		if a.name == name {
			return a.handle, true
		}
	}
	return QuerySentinel, false
}

// Kill tombstones h's slot: the instance's Free hook runs, and future
// Lookups report "gone" rather than ever reusing the local id (design
// note resolution (b), since the upstream source comments out
// context_free and leaves the behavior undefined).
func (r *Registry) Kill(h addr.Handle) bool {
	ctx, ok := r.lookupCtx(h)
	if !ok {
		return false
	}
	r.mu.Lock()
	r.contexts[h.LocalID()-1].dead = true
	r.mu.Unlock()
	ctx.Free()
	return true
}

// Len reports how many contexts have ever been registered (includes
// killed ones, since local ids are never reused).
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contexts)
}
