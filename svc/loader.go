package svc

import (
	"fmt"
	"path/filepath"
	"plugin"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// ScriptClassPrefix is the "." prefix that aliases a service name to
// the scripting module (spec.md §4.2, §3 "Module": "a name beginning
// with '.' aliases to the scripting-interpreter module").
const ScriptClassPrefix = "."

// ScriptModuleName is the real class name a "."-prefixed service is
// rewritten to.
const ScriptModuleName = "lua"

// Loader loads named service classes once and caches them by name
// (spec.md §4.2). Built-in classes (harbor, lua) are registered at
// process startup via RegisterBuiltin; anything else is resolved from
// a *.so in dir by the symbol-naming convention <name>_create,
// <name>_init, <name>_free, <name>_signal.
type Loader struct {
	dir      string
	mu       sync.RWMutex
	cache    map[string]*Module
	group    singleflight.Group
	builtins map[string]*Module
}

func NewLoader(dir string) *Loader {
	return &Loader{
		dir:      dir,
		cache:    make(map[string]*Module),
		builtins: make(map[string]*Module),
	}
}

// RegisterBuiltin installs a compiled-in class (e.g. harbor, lua) so it
// never goes through plugin.Open.
func (l *Loader) RegisterBuiltin(m *Module) {
	l.mu.Lock()
	l.builtins[m.Name] = m
	l.mu.Unlock()
}

// dlname rewrites a "."-prefixed service name to the scripting module's
// real class name, the way shaco_context_create's dlname does.
func dlname(name string) string {
	if strings.HasPrefix(name, ScriptClassPrefix) {
		return ScriptModuleName
	}
	return name
}

// Load resolves and caches the module backing name, loading it the
// first time it's queried (spec.md §4.2). Concurrent Loads of the same
// name load the underlying class exactly once.
func (l *Loader) Load(name string) (*Module, error) {
	dl := dlname(name)

	l.mu.RLock()
	if m, ok := l.cache[dl]; ok {
		l.mu.RUnlock()
		return m, nil
	}
	if m, ok := l.builtins[dl]; ok {
		l.mu.RUnlock()
		l.mu.Lock()
		l.cache[dl] = m
		l.mu.Unlock()
		return m, nil
	}
	l.mu.RUnlock()

	v, err, _ := l.group.Do(dl, func() (any, error) {
		m, err := l.loadPlugin(dl)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.cache[dl] = m
		l.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "module %q", name)
	}
	return v.(*Module), nil
}

func (l *Loader) loadPlugin(name string) (*Module, error) {
	path := filepath.Join(l.dir, name+".so")
	p, err := plugin.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}

	create, err := lookupCreate(p, name)
	if err != nil {
		return nil, err
	}
	init, err := lookupInit(p, name)
	if err != nil {
		return nil, err
	}
	m := &Module{Name: name, Create: create, Init: init}
	if fn, ok := lookupFree(p, name); ok {
		m.Free = fn
	}
	if fn, ok := lookupSignal(p, name); ok {
		m.Signal = fn
	}
	return m, nil
}

func lookupCreate(p *plugin.Plugin, name string) (func() any, error) {
	sym, err := p.Lookup(name + "_create")
	if err != nil {
		return nil, errors.Wrapf(err, "%s: create hook is required", name)
	}
	fn, ok := sym.(func() any)
	if !ok {
		return nil, fmt.Errorf("%s: %s_create has the wrong signature", name, name)
	}
	return fn, nil
}

func lookupInit(p *plugin.Plugin, name string) (InitFunc, error) {
	sym, err := p.Lookup(name + "_init")
	if err != nil {
		return nil, errors.Wrapf(err, "%s: init hook is required", name)
	}
	fn, ok := sym.(func(*Context, any, string) error)
	if !ok {
		return nil, fmt.Errorf("%s: %s_init has the wrong signature", name, name)
	}
	return fn, nil
}

func lookupFree(p *plugin.Plugin, name string) (FreeFunc, bool) {
	sym, err := p.Lookup(name + "_free")
	if err != nil {
		return nil, false
	}
	fn, ok := sym.(func(any))
	return fn, ok
}

func lookupSignal(p *plugin.Plugin, name string) (SignalFunc, bool) {
	sym, err := p.Lookup(name + "_signal")
	if err != nil {
		return nil, false
	}
	fn, ok := sym.(func(any, int))
	return fn, ok
}
