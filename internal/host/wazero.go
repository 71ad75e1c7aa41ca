package host

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

func init() {
	register(NameWazero, func() Runtime {
		return newWazeroRuntime(NameWazero, wazero.NewRuntimeConfig())
	})
	register(NameWazeroInterpreter, func() Runtime {
		return newWazeroRuntime(NameWazeroInterpreter, wazero.NewRuntimeConfigInterpreter())
	})
}

func newWazeroRuntime(name string, config wazero.RuntimeConfig) Runtime {
	return &wazeroRuntime{name: name, config: config}
}

type wazeroRuntime struct {
	name     string
	config   wazero.RuntimeConfig
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
}

type wazeroModule struct {
	mod   api.Module
	funcs map[string]api.Function
}

func (r *wazeroRuntime) Name() string {
	return r.name
}

func (r *wazeroRuntime) Compile(ctx context.Context, cfg *RuntimeConfig) (err error) {
	r.runtime = wazero.NewRuntimeWithConfig(ctx, r.config)
	if cfg.NeedsWASI {
		if _, err = wasi_snapshot_preview1.Instantiate(ctx, r.runtime); err != nil {
			return
		}
	}
	r.compiled, err = r.runtime.CompileModule(ctx, cfg.ModuleWasm)
	return
}

func (r *wazeroRuntime) Instantiate(ctx context.Context, cfg *RuntimeConfig) (Module, error) {
	if r.compiled == nil {
		return nil, fmt.Errorf("%s: Instantiate before Compile", r.name)
	}

	// Reactors are initialized instead of started: _start would run main.
	mc := wazero.NewModuleConfig().WithName(cfg.ModuleName).WithStartFunctions()
	if cfg.NeedsInitialize {
		mc = mc.WithStartFunctions("_initialize")
	}

	mod, err := r.runtime.InstantiateModule(ctx, r.compiled, mc)
	if err != nil {
		return nil, err
	}

	m := &wazeroModule{mod: mod, funcs: map[string]api.Function{}}
	for _, funcName := range cfg.FuncNames {
		fn := mod.ExportedFunction(funcName)
		if fn == nil {
			_ = mod.Close(ctx)
			return nil, fmt.Errorf("%s is not an exported function", funcName)
		}
		m.funcs[funcName] = fn
	}
	return m, nil
}

func (r *wazeroRuntime) Close(ctx context.Context) (err error) {
	if rt := r.runtime; rt != nil {
		err = rt.Close(ctx) // closes compiled and instantiated modules, too
	}
	r.runtime = nil
	r.compiled = nil
	return
}

func (m *wazeroModule) CallI32_I32(ctx context.Context, funcName string, param uint32) (uint32, error) {
	fn, ok := m.funcs[funcName]
	if !ok {
		return 0, fmt.Errorf("%s is not an exported function", funcName)
	}
	results, err := fn.Call(ctx, api.EncodeU32(param))
	if err != nil {
		return 0, err
	}
	return api.DecodeU32(results[0]), nil
}

func (m *wazeroModule) Close(ctx context.Context) (err error) {
	if mod := m.mod; mod != nil {
		err = mod.Close(ctx)
	}
	m.mod = nil
	m.funcs = nil
	return
}
