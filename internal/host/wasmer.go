//go:build amd64 && cgo && !windows

package host

import (
	"context"
	"fmt"

	"github.com/wasmerio/wasmer-go/wasmer"
)

func init() {
	register(NameWasmer, newWasmerRuntime)
}

func newWasmerRuntime() Runtime {
	return &wasmerRuntime{}
}

type wasmerRuntime struct {
	engine *wasmer.Engine
}

type wasmerModule struct {
	store    *wasmer.Store
	module   *wasmer.Module
	instance *wasmer.Instance
	funcs    map[string]*wasmer.Function
}

func (r *wasmerRuntime) Name() string {
	return NameWasmer
}

func (r *wasmerRuntime) Compile(_ context.Context, cfg *RuntimeConfig) error {
	// wasmer-go 1.0.4 segfaults in wasi_env_new instead of returning an
	// error, taking the process down with it.
	if cfg.NeedsWASI {
		return fmt.Errorf("%w: %s imports", ErrUnsupported, wasiModuleName)
	}
	// Compilation is bound to a store, so it happens per Instantiate. Stores
	// aren't reused: re-instantiating too many times in one leads to
	// >> resource limit exceeded: instance count too high at 10001
	r.engine = wasmer.NewEngine()
	return nil
}

func (r *wasmerRuntime) Instantiate(_ context.Context, cfg *RuntimeConfig) (mod Module, err error) {
	if r.engine == nil {
		return nil, fmt.Errorf("%s: Instantiate before Compile", NameWasmer)
	}

	wm := &wasmerModule{funcs: map[string]*wasmer.Function{}}
	wm.store = wasmer.NewStore(r.engine)
	defer func() {
		if err != nil {
			_ = wm.Close(context.Background())
		}
	}()

	if wm.module, err = wasmer.NewModule(wm.store, cfg.ModuleWasm); err != nil {
		return
	}

	importObject := wasmer.NewImportObject()

	// TODO: wasmer_module_set_name is not exposed in wasmer-go

	if wm.instance, err = wasmer.NewInstance(wm.module, importObject); err != nil {
		return
	}

	if cfg.NeedsInitialize {
		var initialize wasmer.NativeFunction
		if initialize, err = wm.instance.Exports.GetFunction("_initialize"); err != nil {
			return
		}
		if _, err = initialize(); err != nil {
			return
		}
	}

	for _, funcName := range cfg.FuncNames {
		var fn *wasmer.Function
		if fn, err = wm.instance.Exports.GetRawFunction(funcName); err != nil {
			return
		} else if fn == nil {
			err = fmt.Errorf("%s is not an exported function", funcName)
			return
		}
		wm.funcs[funcName] = fn
	}
	mod = wm
	return
}

func (r *wasmerRuntime) Close(context.Context) error {
	r.engine = nil
	return nil
}

func (m *wasmerModule) CallI32_I32(_ context.Context, funcName string, param uint32) (uint32, error) {
	fn, ok := m.funcs[funcName]
	if !ok {
		return 0, fmt.Errorf("%s is not an exported function", funcName)
	}
	result, err := fn.Call(int32(param))
	if err != nil {
		return 0, err
	}
	return uint32(result.(int32)), nil
}

func (m *wasmerModule) Close(context.Context) error {
	if instance := m.instance; instance != nil {
		instance.Close()
	}
	m.instance = nil
	if mod := m.module; mod != nil {
		mod.Close()
	}
	m.module = nil
	if store := m.store; store != nil {
		store.Close()
	}
	m.store = nil
	m.funcs = nil
	return nil
}
