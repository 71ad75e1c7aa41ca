//go:build amd64 && cgo

package host

import (
	"context"
	"fmt"

	"github.com/bytecodealliance/wasmtime-go"
)

func init() {
	register(NameWasmtime, newWasmtimeRuntime)
}

func newWasmtimeRuntime() Runtime {
	return &wasmtimeRuntime{}
}

type wasmtimeRuntime struct {
	engine *wasmtime.Engine
	module *wasmtime.Module
}

type wasmtimeModule struct {
	store *wasmtime.Store
	// instance is here because there's no close/destroy function. The only thing is garbage collection.
	instance *wasmtime.Instance
	funcs    map[string]*wasmtime.Func
}

func (r *wasmtimeRuntime) Name() string {
	return NameWasmtime
}

func (r *wasmtimeRuntime) Compile(_ context.Context, cfg *RuntimeConfig) (err error) {
	r.engine = wasmtime.NewEngine()
	r.module, err = wasmtime.NewModule(r.engine, cfg.ModuleWasm)
	return
}

func (r *wasmtimeRuntime) Instantiate(_ context.Context, cfg *RuntimeConfig) (mod Module, err error) {
	if r.module == nil {
		return nil, fmt.Errorf("%s: Instantiate before Compile", NameWasmtime)
	}

	wm := &wasmtimeModule{funcs: map[string]*wasmtime.Func{}}
	wm.store = wasmtime.NewStore(r.engine)

	linker := wasmtime.NewLinker(r.engine)
	if cfg.NeedsWASI {
		if err = linker.DefineWasi(); err != nil {
			return
		}
		wm.store.SetWasi(wasmtime.NewWasiConfig())
	}

	if wm.instance, err = linker.Instantiate(wm.store, r.module); err != nil {
		return
	}

	if cfg.NeedsInitialize {
		initialize := wm.instance.GetFunc(wm.store, "_initialize")
		if initialize == nil {
			err = fmt.Errorf("_initialize is not an exported function")
			return
		}
		if _, err = initialize.Call(wm.store); err != nil {
			return
		}
	}

	for _, funcName := range cfg.FuncNames {
		fn := wm.instance.GetFunc(wm.store, funcName)
		if fn == nil {
			err = fmt.Errorf("%s is not an exported function", funcName)
			return
		}
		wm.funcs[funcName] = fn
	}

	mod = wm
	return
}

func (r *wasmtimeRuntime) Close(context.Context) error {
	r.engine = nil
	r.module = nil
	return nil // wasmtime only closes via finalizer
}

func (m *wasmtimeModule) CallI32_I32(_ context.Context, funcName string, param uint32) (uint32, error) {
	fn, ok := m.funcs[funcName]
	if !ok {
		return 0, fmt.Errorf("%s is not an exported function", funcName)
	}
	result, err := fn.Call(m.store, int32(param))
	if err != nil {
		return 0, err
	}
	return uint32(result.(int32)), nil
}

func (m *wasmtimeModule) Close(context.Context) error {
	m.store = nil
	m.instance = nil
	m.funcs = nil
	return nil // wasmtime only closes via finalizer
}
