package svc

import (
	"github.com/shacorun/shaco/addr"
	"github.com/shacorun/shaco/cmn/cos"
	"github.com/shacorun/shaco/cmn/nlog"
	"github.com/shacorun/shaco/msg"
)

// Callback is a context's installed message handler. A non-nil error
// return is logged with the full envelope; there is no retry and no
// teardown (spec.md §4.3). It receives the full message rather than an
// unpacked payload so that SOCKET and REMOTE handlers can reach m.Event
// / m.Remote without a type-specific callback signature.
type Callback func(ctx *Context, m msg.Message) error

// Registrar is the handle registry's view from Context.Create's
// perspective — kept as an interface here, implemented by
// *handle.Registry, so svc never imports handle (handle imports svc to
// store *Context, not the other way around).
type Registrar interface {
	Register(ctx *Context) addr.Handle
}

// Context is one live service instance (spec.md §3 "Context"): the
// module it was created from, its duplicated name, its handle, its
// opaque instance state, and its installed callback. Once registered a
// context's handle never changes (spec.md invariant).
type Context struct {
	module   *Module
	name     string // as requested, before "." rewriting
	handle   addr.Handle
	instance any
	cb       Callback
}

// Create resolves name's module, instantiates it, registers the
// resulting context to obtain a handle, then runs the module's Init
// hook. Init failure is logged but the context is left registered —
// spec.md §4.3 documents this as a known design weakness inherited
// from the original (shaco_context_create never undoes the
// shaco_handle_register on init failure either).
func Create(loader *Loader, reg Registrar, name, args string) (*Context, error) {
	m, err := loader.Load(name)
	if err != nil {
		nlog.Errorf("context %q: create failed: %v", name, err)
		return nil, err
	}
	ctx := &Context{module: m, name: name}
	ctx.instance = m.Create()
	ctx.handle = reg.Register(ctx)

	corrID := cos.GenCorrelationID()
	nlog.Tracef("context %q (handle=%s): create [%s]", name, ctx.handle, corrID)
	if m.Init != nil {
		if err := m.Init(ctx, ctx.instance, args); err != nil {
			nlog.Errorf("context %q (handle=%s): init failed [%s]: %v", name, ctx.handle, corrID, err)
		}
	}
	return ctx, nil
}

func (c *Context) Handle() addr.Handle { return c.handle }
func (c *Context) Name() string        { return c.name }
func (c *Context) ModuleName() string  { return c.module.Name }
func (c *Context) Instance() any       { return c.instance }

// SetCallback installs cb, overwriting any previously installed one
// without notification (spec.md §4.3, latest-wins).
func (c *Context) SetCallback(cb Callback) { c.cb = cb }

// Send invokes the installed callback, passing ownership of m to it. A
// non-nil return is logged with the full envelope; the dispatcher
// continues regardless (spec.md §4.3, §4.4, §7).
func (c *Context) Send(m msg.Message) error {
	if c.cb == nil {
		nlog.Errorf("context %s (%s): message dropped, no callback installed", c.handle, c.name)
		return nil
	}
	return c.cb(c, m)
}

// Signal forwards signo to the instance's optional Signal hook.
func (c *Context) Signal(signo int) {
	if c.module.Signal != nil {
		c.module.Signal(c.instance, signo)
	}
}

// Free invokes the module's optional Free hook. Per spec.md §9
// "Deferred context destruction", the registry never calls this during
// normal operation — only Kill (see handle.Registry.Kill) does, which
// implements resolution (b) from the design notes: remove the entry,
// Free the instance, and tombstone the slot.
func (c *Context) Free() {
	if c.module.Free != nil {
		c.module.Free(c.instance)
	}
}
