// Package engine wires every subsystem together and runs the main
// loop, grounded on shaco.c's shaco_init/shaco_start/shaco_fini
// (spec.md §4.6, §5, §9 "Global singletons": "model each as an owned
// object threaded through an explicit runtime handle passed to every
// subsystem").
package engine

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shacorun/shaco/addr"
	"github.com/shacorun/shaco/cmn/atomic"
	"github.com/shacorun/shaco/cmn/nlog"
	"github.com/shacorun/shaco/dispatch"
	"github.com/shacorun/shaco/handle"
	"github.com/shacorun/shaco/harbor"
	"github.com/shacorun/shaco/hk"
	"github.com/shacorun/shaco/reactor"
	"github.com/shacorun/shaco/rtcfg"
	"github.com/shacorun/shaco/script"
	"github.com/shacorun/shaco/stats"
	"github.com/shacorun/shaco/svc"
)

// Engine owns every process-wide singleton spec.md §9 names.
type Engine struct {
	Opts  *rtcfg.Store
	Stats *stats.Runner

	Registry *handle.Registry
	Disp     *dispatch.Dispatcher
	Timer    *hk.Timer
	Reactor  *reactor.Reactor
	Loader   *svc.Loader

	run       atomic.Bool
	reopening atomic.Bool
}

// New assembles every subsystem but does not start anything: the
// handle registry and dispatcher first, then the timer (which pushes
// its expiries into the dispatcher), then the reactor and module
// loader, then built-in modules. All of it exists before Bootstrap, so
// a bootstrap class can register timers from its own Init.
func New(opts *rtcfg.Store) *Engine {
	e := &Engine{Opts: opts, Stats: stats.New()}

	e.Registry = handle.New()
	e.Disp = dispatch.New(e.Registry)
	e.Disp.SetDropCounter(e.Stats)
	e.Timer = hk.New(e.Disp)
	e.Reactor = reactor.New(nil, 256) // sink wired to the harbor context below, once loaded
	e.Loader = svc.NewLoader(opts.String("modpath", "./lib-mod"))

	e.Loader.RegisterBuiltin(harbor.NewModule(e.Disp, e.Reactor, opts, e.Stats))
	e.Loader.RegisterBuiltin(script.NewModule(e.Disp, e.Registry, opts))
	return e
}

// installSignals mirrors sig_handler_init: SIGINT/SIGTERM set the stop
// flag, SIGUSR1 sets the reopen flag, nothing else runs in the handler
// goroutine itself (spec.md §5 "Signals").
func (e *Engine) installSignals() {
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
	go func() {
		for sig := range ch {
			switch sig {
			case syscall.SIGINT, syscall.SIGTERM:
				nlog.Infof("engine: received %s", sig)
				e.run.Store(false)
			case syscall.SIGUSR1:
				e.reopening.Store(true)
			}
		}
	}()
}

// Bootstrap launches the configured entry service (spec.md §6
// "bootstrap"). Failure here is terminal — shaco_init's `shaco_exit(NULL,
// "bootstrap fail")` — distinct from the general "module-load errors
// only fail that Context.Create" rule, because nothing else in the
// process can do useful work without an entry point.
func (e *Engine) Bootstrap() {
	boot := e.Opts.String("bootstrap", "lua bootstrap")
	name, args, _ := strings.Cut(boot, " ")
	ctx, err := svc.Create(e.Loader, e.Registry, name, args)
	if err != nil {
		nlog.Exitf("bootstrap fail")
	}

	// A harbor-fronting node's bootstrap class is the harbor itself; the
	// reactor needs that instance as its event sink, and the dispatcher
	// needs its handle to route non-local-dest sends through it (spec.md
	// §4.5 "Slave transport", §3 "remote deliveries are rewritten through
	// harbor before dispatch"). Any other entry class is expected to
	// create the harbor itself, in which case this is a no-op and the
	// bridge must wire the sink and handle some other way.
	if ctx.ModuleName() == "harbor" {
		if h, ok := ctx.Instance().(*harbor.Harbor); ok {
			e.Reactor.SetSink(h)
			e.Disp.SetHarbor(ctx.Handle())
		}
	}
}

// Run is shaco_start: poll, trigger timers, dispatch, occasionally
// reopen logs, until a signal clears the run flag.
func (e *Engine) Run() {
	nlog.Infof("shaco start")
	e.run.Store(true)
	for e.run.Load() {
		timeout := e.Timer.MaxTimeout()
		if !e.Disp.Empty() {
			timeout = 0
		}
		e.Stats.QueueDepth.Set(float64(e.Disp.Len()))
		pollSleep(timeout)

		e.Timer.Trigger()
		e.Disp.Dispatch()

		if e.reopening.CompareAndSwap(true, false) {
			if err := nlog.Reopen(); err != nil {
				nlog.Errorf("engine: reopen log: %v", err)
			}
		}
	}
	nlog.Infof("shaco stop")
}

// Stop requests a graceful shutdown from outside a signal handler
// (e.g. a test, or an administrative command).
func (e *Engine) Stop() { e.run.Store(false) }

// InstallSignals exposes installSignals for callers assembling the
// full daemon (kept separate from New so tests can drive Run without
// touching process-wide signal state).
func (e *Engine) InstallSignals() { e.installSignals() }

// SetSelfNode records this process's node id from the "slaveid" option,
// matching the relationship between addr.Self() and harbor's own
// slaveid requirement (both must agree — spec.md §3 "Handle").
func SetSelfNode(opts *rtcfg.Store) {
	if id, ok := opts.RequireInt("slaveid"); ok {
		addr.SetSelf(uint8(id))
	}
}

// pollSleep stands in for shaco_socket_poll(timeout): the reactor's own
// goroutines already deliver socket data onto the dispatcher
// asynchronously (spec.md §4.5 "Slave transport"), so the main loop's
// poll phase here only bounds how long Run waits before the next timer
// sweep, not socket readiness.
func pollSleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}
