// Package harbor is the cross-node bridge: it translates between local
// REMOTE-typed messages and framed byte streams exchanged with slave
// connections (spec.md §4.5), and is itself loaded and run as an
// ordinary service — the same Create/Init/Free/Signal shape as any
// other module (spec.md §3 "Module"), grounded on mod_harbor.c.
package harbor

import (
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/shacorun/shaco/addr"
	"github.com/shacorun/shaco/cmn/cos"
	"github.com/shacorun/shaco/cmn/nlog"
	"github.com/shacorun/shaco/dispatch"
	"github.com/shacorun/shaco/msg"
	"github.com/shacorun/shaco/reactor"
	"github.com/shacorun/shaco/rtcfg"
	"github.com/shacorun/shaco/svc"
)

// NodeMax bounds the slave table, one slot per possible remote node id
// (spec.md §3 "Harbor state": "fixed-size table of 256 slave slots").
const NodeMax = 256

type slave struct {
	id   uint8 // 0 means unused, mirroring the original's slave-id-0 ambiguity
	sock int32
	rb   reassembler
}

// Harbor is one loaded instance of the harbor module. A process runs
// exactly one (spec.md never describes more than one slave_handle), but
// nothing here prevents a second instance under test.
type Harbor struct {
	disp  *dispatch.Dispatcher
	react *reactor.Reactor
	opts  *rtcfg.Store

	self addr.Handle // this harbor's own handle, set by Init
	node uint8        // this node's id, i.e. addr.Self()

	bysock map[int32]uint8 // sock id -> slave id, for socket events
	slaves [NodeMax]slave

	supervisor addr.Handle // slave_handle: notified with "D <id>" on disconnect

	errs     cos.Errs // deduplicated teardown causes, for diagnostics
	compress bool     // harbor.compress option: opt-in outbound payload compression

	counters frameCounter // optional stats sink; nil disables counting

	session int32 // self-originated session counter, seeded by cos.GenSessionSeed
}

// frameCounter is the narrow view of *stats.Runner this package needs,
// kept as an interface so harbor never imports stats (the same pattern
// dispatch uses for its own optional drop counter).
type frameCounter interface {
	IncFramesIn()
	IncFramesOut()
	IncSlaveTornDown()
}

// ErrSummary reports how many distinct teardown causes this harbor has
// seen and a joined error describing them, for a process status/debug
// surface rather than anything on the wire.
func (h *Harbor) ErrSummary() (int, error) {
	return h.errs.JoinErr()
}

// NewModule builds the harbor's Module descriptor, closing over the
// process-wide dispatcher, reactor, options store, and stats sink it
// needs — the wiring a real bootstrap does once at startup before
// registering built-ins with the loader. counters may be nil to disable
// frame/teardown counting (e.g. under test).
func NewModule(disp *dispatch.Dispatcher, react *reactor.Reactor, opts *rtcfg.Store, counters frameCounter) *svc.Module {
	return &svc.Module{
		Name: "harbor",
		Create: func() any {
			return &Harbor{
				disp:     disp,
				react:    react,
				opts:     opts,
				node:     addr.Self(),
				bysock:   make(map[int32]uint8),
				counters: counters,
			}
		},
		Init: initHarbor,
	}
}

// initHarbor mirrors harbor_init: args is the supervisor's handle in
// hex, and both it and the "slaveid" option are fatal-to-the-process
// when absent — the supplemented fatal checks from mod_harbor.c, not
// the generic "module-load errors are logged and the process
// continues" rule (harbor failing to start is unrecoverable, since
// nothing else can reach a remote node without it).
func initHarbor(ctx *svc.Context, inst any, args string) error {
	h := inst.(*Harbor)
	h.self = ctx.Handle()

	args = strings.TrimSpace(args)
	var supHandle uint64
	if args != "" {
		supHandle, _ = strconv.ParseUint(args, 16, 32)
	}
	if supHandle == 0 {
		nlog.Exitf("harbor: slave handle is none")
	}
	h.supervisor = addr.Handle(supHandle)

	slaveid, ok := h.opts.RequireInt("slaveid")
	if !ok {
		nlog.Exitf("harbor: slaveid = 0")
	}
	_ = slaveid // this node's own id is addr.Self(), set at startup from the same option

	h.compress = h.opts.Bool("harbor.compress", false)
	h.session = cos.GenSessionSeed()

	ctx.SetCallback(h.onMessage)
	return nil
}

// nextSession hands out the session id for a harbor-originated message
// (one the harbor itself sends rather than forwards, e.g. a teardown
// notification) — seeded per process so two bootstraps never replay the
// same sequence (spec.md §9 "Global singletons").
func (h *Harbor) nextSession() int32 {
	return atomic.AddInt32(&h.session, 1)
}

// onMessage is the harbor's installed Callback (spec.md §4.3):
// SOCKET events drive inbound reassembly, REMOTE envelopes drive the
// outbound path, and TEXT carries the "S"/attach control command
// (spec.md §4.5, §6).
func (h *Harbor) onMessage(ctx *svc.Context, m msg.Message) error {
	switch m.Type {
	case msg.SOCKET:
		if m.Event == nil {
			nlog.Errorf("harbor: SOCKET message with no event payload")
			return nil
		}
		return h.dosock(*m.Event)
	case msg.REMOTE:
		if m.Remote == nil {
			nlog.Errorf("harbor: REMOTE message with no envelope")
			return nil
		}
		return h.toRemote(m.Source, *m.Remote, m.Session)
	case msg.TEXT:
		return h.command(string(m.Payload))
	default:
		nlog.Errorf("harbor: unexpected message type %s", m.Type)
		return nil
	}
}

// OnSocketEvent implements reactor.Sink by handing the event to the
// dispatcher addressed to the harbor's own handle, so it is processed
// synchronously on the next main-loop drain rather than racing the
// reactor's goroutine (spec.md §5: everything but socket.poll is
// single-threaded).
func (h *Harbor) OnSocketEvent(ev msg.SocketEvent) {
	h.disp.Push(msg.Message{Source: h.self, Dest: h.self, Type: msg.SOCKET, Event: &ev})
}
