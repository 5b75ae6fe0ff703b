// Package dispatch is the process-wide message FIFO (spec.md §3
// "Dispatcher queue", §4.4 "Dispatcher"): single producer/consumer from
// the main loop's point of view, draining a bounded batch per call so a
// storm of self-resubmitting callbacks can't starve socket polling.
package dispatch

import (
	"container/list"
	"sync"

	"github.com/shacorun/shaco/addr"
	"github.com/shacorun/shaco/cmn/nlog"
	"github.com/shacorun/shaco/memsys"
	"github.com/shacorun/shaco/msg"
)

// Receiver is implemented by whatever a Resolver's Lookup returns —
// in practice *svc.Context. Kept as an interface here so dispatch never
// imports the svc package (avoids a dependency cycle: svc needs nothing
// from dispatch, dispatch needs only this narrow view of a context).
type Receiver interface {
	Send(m msg.Message) error
	Handle() addr.Handle
}

// Resolver is implemented by the handle registry.
type Resolver interface {
	Lookup(h addr.Handle) (Receiver, bool)
}

// DefaultBatch bounds how many messages one Dispatch() call drains, so
// that messages enqueued by a callback during this drain are processed
// in a later main-loop iteration rather than recursively in this one
// (spec.md §4.4 "Draining is non-recursive").
const DefaultBatch = 256

type (
	dropCounter interface{ IncDropped() }

	Dispatcher struct {
		mu     sync.Mutex
		q      list.List
		res    Resolver
		drops  dropCounter
		harbor addr.Handle // dest of a locally loaded harbor instance, if any
	}
)

func New(res Resolver) *Dispatcher { return &Dispatcher{res: res} }

// SetDropCounter wires an optional stats sink that's incremented every
// time a message is dropped for an unresolvable destination (spec.md
// §8 scenario S5); nil (the default) disables the counter.
func (d *Dispatcher) SetDropCounter(c dropCounter) { d.drops = c }

// SetHarbor records the locally loaded harbor instance's handle, so a
// message addressed to a non-local node can be rewritten into a REMOTE
// envelope and routed to it (spec.md §3 "remote deliveries are
// rewritten through harbor before dispatch"). Unset (the zero Handle)
// on a process with no harbor; such a process simply has no remote
// addresses to resolve.
func (d *Dispatcher) SetHarbor(h addr.Handle) { d.harbor = h }

// Push enqueues m; ownership of m.Payload transfers to the dispatcher.
func (d *Dispatcher) Push(m msg.Message) {
	d.mu.Lock()
	d.q.PushBack(m)
	d.mu.Unlock()
}

func (d *Dispatcher) Empty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.q.Len() == 0
}

func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.q.Len()
}

// Dispatch drains up to DefaultBatch messages, delivering each to its
// resolved destination context. Called repeatedly by the main loop.
func (d *Dispatcher) Dispatch() (n int) {
	for ; n < DefaultBatch; n++ {
		m, ok := d.pop()
		if !ok {
			break
		}
		d.deliver(m)
	}
	return
}

func (d *Dispatcher) pop() (msg.Message, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e := d.q.Front()
	if e == nil {
		return msg.Message{}, false
	}
	d.q.Remove(e)
	return e.Value.(msg.Message), true
}

func (d *Dispatcher) deliver(m msg.Message) {
	if m.Type != msg.REMOTE && !m.Dest.IsLocal() {
		m = rewriteRemote(m, d.harbor)
	}

	rcv, ok := d.res.Lookup(m.Dest)
	if !ok {
		nlog.Errorf("dispatch: no context for dest=%s (src=%s session=%d type=%s): dropping",
			m.Dest, m.Source, m.Session, m.Type)
		memsys.Free(m.Payload)
		if m.Event != nil {
			memsys.Free(m.Event.Data)
		}
		if d.drops != nil {
			d.drops.IncDropped()
		}
		return
	}
	if err := rcv.Send(m); err != nil {
		nlog.Errorf("dispatch: callback error %v: src=%s dst=%s session=%d type=%s sz=%d",
			err, m.Source, m.Dest, m.Session, m.Type, len(m.Payload))
	}
}

// rewriteRemote turns a message addressed to a non-local node into a
// REMOTE envelope addressed to the local harbor instance, so the usual
// Lookup/Send path below delivers it there exactly like any other
// message (spec.md §3, §4.5 "Outbound path"). harbor being addr.None
// (no harbor loaded) is left to the Lookup miss below, which logs and
// drops it the same way an unresolvable local handle would.
func rewriteRemote(m msg.Message, harbor addr.Handle) msg.Message {
	return msg.Message{
		Source:  m.Source,
		Dest:    harbor,
		Session: m.Session,
		Type:    msg.REMOTE,
		Remote:  &msg.Remote{Dest: m.Dest, Type: m.Type, Body: m.Payload},
	}
}
