package host

import (
	"context"
	"fmt"

	addone "github.com/dandyvica/wasm-add-one"
)

func init() {
	register(NameNative, newNativeRuntime)
}

func newNativeRuntime() Runtime {
	return &nativeRuntime{}
}

// nativeRuntime ignores the wasm binary and calls the Go implementation
// directly. It is the reference the other runtimes are compared against.
type nativeRuntime struct{}

type nativeModule struct {
	funcs map[string]func(uint32) uint32
}

func (r *nativeRuntime) Name() string {
	return NameNative
}

func (r *nativeRuntime) Compile(context.Context, *RuntimeConfig) error {
	return nil
}

func (r *nativeRuntime) Instantiate(_ context.Context, cfg *RuntimeConfig) (Module, error) {
	m := &nativeModule{funcs: map[string]func(uint32) uint32{}}
	for _, funcName := range cfg.FuncNames {
		if funcName != addone.ExportName {
			return nil, fmt.Errorf("%s is not an exported function", funcName)
		}
		m.funcs[funcName] = addone.AddOne
	}
	return m, nil
}

func (r *nativeRuntime) Close(context.Context) error {
	return nil
}

func (m *nativeModule) CallI32_I32(_ context.Context, funcName string, param uint32) (uint32, error) {
	fn, ok := m.funcs[funcName]
	if !ok {
		return 0, fmt.Errorf("%s is not an exported function", funcName)
	}
	return fn(param), nil
}

func (m *nativeModule) Close(context.Context) error {
	m.funcs = nil
	return nil
}
