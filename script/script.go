// Package script embeds the interpreter a "."-prefixed service class
// rewrites to (spec.md §3 "Module": "a name beginning with '.' aliases
// to the scripting-interpreter module", §9 "Message loop <-> scripting").
// Grounded on mod_lua.c's lua_init: the same four path options, loaded
// into interpreter globals before running a loader file, with the
// bootstrap's residual argument string passed as that loader's sole
// argument.
package script

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/shacorun/shaco/addr"
	"github.com/shacorun/shaco/cmn/mono"
	"github.com/shacorun/shaco/cmn/nlog"
	"github.com/shacorun/shaco/dispatch"
	"github.com/shacorun/shaco/msg"
	"github.com/shacorun/shaco/rtcfg"
	"github.com/shacorun/shaco/svc"
)

// Script is one loaded instance of the scripting module: an
// interpreter state plus the owning context it bridges to.
type Script struct {
	L    *lua.LState
	disp *dispatch.Dispatcher
	self addr.Handle
	reg  registrar
	cb   *lua.LFunction // installed via register_callback, nil until then
}

// registrar is the narrow view of the handle registry Query needs;
// kept as an interface so script never imports handle.
type registrar interface {
	Query(name string) (addr.Handle, bool)
}

// NewModule builds the scripting module's descriptor, closing over the
// dependencies every instance's bridge functions need.
func NewModule(disp *dispatch.Dispatcher, reg registrar, opts *rtcfg.Store) *svc.Module {
	return &svc.Module{
		Name:   "lua",
		Create: func() any { return &Script{disp: disp, reg: reg} },
		Init:   initFunc(opts),
		Free:   freeFunc,
	}
}

func freeFunc(inst any) {
	s := inst.(*Script)
	if s.L != nil {
		s.L.Close()
	}
}

// initFunc closes over the options store (lua_init reads four path
// options directly from shaco_optstr; here they come from the process
// options store passed in at bootstrap).
func initFunc(opts *rtcfg.Store) svc.InitFunc {
	return func(ctx *svc.Context, inst any, args string) error {
		s := inst.(*Script)
		s.self = ctx.Handle()

		L := lua.NewState()
		s.L = L
		registerBridge(L, ctx, s)

		L.SetGlobal("LUA_PATH", lua.LString(opts.String("luapath", "./lua-shaco/?.lua")))
		L.SetGlobal("LUA_CPATH", lua.LString(opts.String("luacpath", "./lib-l/?.so")))
		L.SetGlobal("LUA_MODPATH", lua.LString(opts.String("luamodpath", "./lua-mod/?.lua")))
		L.SetGlobal("PACKAGE_PATH", lua.LString(opts.String("packagepath", "./lib-lua/?.lso")))

		loader := opts.String("lualoader", "./lua-shaco/loader.lua")
		fn, err := L.LoadFile(loader)
		if err != nil {
			nlog.Errorf("script: %v", err)
			return err
		}
		L.Push(fn)
		L.Push(lua.LString(args))
		if err := L.PCall(1, 0, nil); err != nil {
			nlog.Errorf("script: %v", err)
			return err
		}
		return nil
	}
}

// registerBridge installs the value-oriented bridge functions spec.md
// §9 names: send, register_callback, query_handle, now, and log
// primitives. Nothing beyond handles, session ids, and byte buffers
// crosses the boundary.
func registerBridge(L *lua.LState, ctx *svc.Context, s *Script) {
	L.SetGlobal("send", L.NewFunction(func(L *lua.LState) int {
		dest := addr.Handle(L.CheckInt64(1))
		session := int32(L.CheckInt64(2))
		typ := msg.Type(L.CheckInt64(3))
		payload := []byte(L.CheckString(4))
		s.disp.Push(msg.Message{Source: s.self, Dest: dest, Session: session, Type: typ, Payload: payload})
		return 0
	}))

	L.SetGlobal("register_callback", L.NewFunction(func(L *lua.LState) int {
		fn := L.CheckFunction(1)
		s.cb = fn
		ctx.SetCallback(s.onMessage)
		return 0
	}))

	L.SetGlobal("query_handle", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		h, ok := s.reg.Query(name)
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LNumber(uint32(h)))
		return 1
	}))

	L.SetGlobal("now", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(mono.NanoTime()))
		return 1
	}))

	L.SetGlobal("log_info", L.NewFunction(func(L *lua.LState) int {
		nlog.Infof("%s", L.CheckString(1))
		return 0
	}))
	L.SetGlobal("log_error", L.NewFunction(func(L *lua.LState) int {
		nlog.Errorf("%s", L.CheckString(1))
		return 0
	}))
}

// onMessage is installed on the owning context once the script calls
// register_callback; it forwards every message into the interpreter as
// plain values (spec.md §9 "keep the bridge purely value-oriented").
func (s *Script) onMessage(ctx *svc.Context, m msg.Message) error {
	if s.cb == nil {
		return nil
	}
	L := s.L
	err := L.CallByParam(lua.P{Fn: s.cb, NRet: 0, Protect: true},
		lua.LNumber(uint32(m.Source)),
		lua.LNumber(m.Session),
		lua.LNumber(uint8(m.Type)),
		lua.LString(string(m.Payload)),
	)
	if err != nil {
		return fmt.Errorf("script: callback: %w", err)
	}
	return nil
}
