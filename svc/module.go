// Package svc is the service layer: Module (a loadable service class)
// and Context (one live instance of a class), spec.md §3 "Module" and
// "Context", §4.2 and §4.3.
package svc

type (
	// InitFunc runs synchronously during Context.Create and may call
	// ctx.SetCallback to install the message handler. args is whatever
	// followed the class name in the bootstrap/launch string (spec.md
	// §9 "Message loop <-> scripting": kept value-oriented, a string).
	InitFunc func(ctx *Context, inst any, args string) error
	FreeFunc func(inst any)
	// SignalFunc forwards a received OS signal number to the instance;
	// optional (spec.md §4.2).
	SignalFunc func(inst any, signo int)

	// Module is one loaded service class: a name and its four hooks.
	// Create and Init are mandatory; Free and Signal may be nil
	// (spec.md §4.2 "Absence of create and init is fatal").
	Module struct {
		Name   string
		Create func() any
		Init   InitFunc
		Free   FreeFunc
		Signal SignalFunc
	}
)
