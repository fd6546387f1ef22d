package wasmrt

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/kjx98/wasmrt/wasmerr"
	"github.com/kjx98/wasmrt/wasmlog"
)

// Program is the registry of module instances, grounded on
// original_source/src/interpreter/program.rs's ProgramInstance: one strong
// ownership edge (program -> module) and an unexported back-pointer on each
// ModuleInstance (set by Instantiate). Go's garbage collector reclaims the
// resulting cycle, so no weak-pointer type replaces the Rust original's
// Arc/Weak pair.
type Program struct {
	mu      sync.RWMutex
	modules map[string]*ModuleInstance
	log     *zap.Logger
	cfg     Config
}

// NewProgram creates a program with a default "env" module (memory, table,
// a few globals), per spec.md §6's Program::new() contract.
func NewProgram(opts ...Option) (*Program, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	p := &Program{modules: make(map[string]*ModuleInstance), log: cfg.Logger, cfg: cfg}
	env, err := defaultEnvModule(p, cfg)
	if err != nil {
		return nil, err
	}
	p.modules["env"] = env
	return p, nil
}

// NewProgramWithEnv creates a program with a caller-supplied env module
// instance instead of the default one (Program::with_env_module).
func NewProgramWithEnv(env *ModuleInstance, opts ...Option) *Program {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	p := &Program{modules: make(map[string]*ModuleInstance), log: cfg.Logger, cfg: cfg}
	p.modules["env"] = env
	return p
}

// AddModule validates, instantiates, and registers m under name, resolving
// its imports against already-registered modules plus any caller-supplied
// externals; running its start function if declared.
func (p *Program) AddModule(ctx context.Context, name string, m *Module, extra Externals) (*ModuleInstance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.modules[name]; exists {
		return nil, wasmerr.Instantiate(wasmerr.KindImportKindMismatch, "module %q already registered", name)
	}

	if _, err := ValidateModule(m, p); err != nil {
		return nil, err
	}

	ext := p.mergeExternals(m, extra)
	mi, err := Instantiate(ctx, name, m, p, ext, p.cfg, wasmlog.Module(p.log, name))
	if err != nil {
		return nil, err
	}
	p.modules[name] = mi
	return mi, nil
}

// Lookup returns the registered module instance by name.
func (p *Program) Lookup(name string) (*ModuleInstance, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	mi, ok := p.modules[name]
	return mi, ok
}

// mergeExternals assembles an Externals bundle for m's declared imports by
// resolving each (module, field) pair against already-registered modules,
// falling back to extra for anything the caller wants to inject directly.
func (p *Program) mergeExternals(m *Module, extra Externals) Externals {
	out := Externals{
		Funcs:    map[string]*FuncInstance{},
		Tables:   map[string]*TableInstance{},
		Memories: map[string]*MemoryInstance{},
		Globals:  map[string]*VariableInstance{},
	}
	for k, v := range extra.Funcs {
		out.Funcs[k] = v
	}
	for k, v := range extra.Tables {
		out.Tables[k] = v
	}
	for k, v := range extra.Memories {
		out.Memories[k] = v
	}
	for k, v := range extra.Globals {
		out.Globals[k] = v
	}

	for _, im := range m.Imports {
		key := importKey(im.Module, im.Field)
		owner, ok := p.modules[im.Module]
		if !ok {
			continue
		}
		switch im.Kind {
		case ExternalFunction:
			if _, have := out.Funcs[key]; !have {
				if ee, ok := owner.Exports[im.Field]; ok && ee.Kind == ExternalFunction {
					if fn, err := owner.resolveFuncInstance(ee.Index); err == nil {
						out.Funcs[key] = fn
					}
				}
			}
		case ExternalTable:
			if _, have := out.Tables[key]; !have {
				if ee, ok := owner.Exports[im.Field]; ok && ee.Kind == ExternalTable && int(ee.Index) < len(owner.Tables) {
					out.Tables[key] = owner.Tables[ee.Index]
				}
			}
		case ExternalMemory:
			if _, have := out.Memories[key]; !have {
				if ee, ok := owner.Exports[im.Field]; ok && ee.Kind == ExternalMemory && int(ee.Index) < len(owner.Memories) {
					out.Memories[key] = owner.Memories[ee.Index]
				}
			}
		case ExternalGlobal:
			if _, have := out.Globals[key]; !have {
				if ee, ok := owner.Exports[im.Field]; ok && ee.Kind == ExternalGlobal {
					if g, err := owner.globalAt(ee.Index); err == nil {
						out.Globals[key] = g
					}
				}
			}
		}
	}
	return out
}

// ResolveFuncType implements ImportResolver by consulting already
// registered modules; AddModule passes the program to ValidateModule as
// its resolver.
func (p *Program) ResolveFuncType(moduleName, field string) (FuncType, bool) {
	owner, ok := p.modules[moduleName]
	if !ok {
		return FuncType{}, false
	}
	ee, ok := owner.Exports[field]
	if !ok || ee.Kind != ExternalFunction {
		return FuncType{}, false
	}
	fn, err := owner.resolveFuncInstance(ee.Index)
	if err != nil {
		return FuncType{}, false
	}
	return fn.Type, true
}

func (p *Program) ResolveGlobalType(moduleName, field string) (GlobalType, bool) {
	owner, ok := p.modules[moduleName]
	if !ok {
		return GlobalType{}, false
	}
	ee, ok := owner.Exports[field]
	if !ok || ee.Kind != ExternalGlobal {
		return GlobalType{}, false
	}
	g, err := owner.globalAt(ee.Index)
	if err != nil {
		return GlobalType{}, false
	}
	return GlobalType{ContentType: g.Type(), Mutable: g.Mutable()}, true
}
