// Package host loads a module exporting add_one into one of several
// WebAssembly runtimes and calls it.
//
// Every runtime implements the same Runtime and Module interfaces, so the
// guest can be checked against each of them and against the native Go
// implementation.
package host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

const (
	NameNative            = "native"
	NameWazero            = "wazero"
	NameWazeroInterpreter = "wazero-interpreter"
	NameWasmer            = "wasmer"
	NameWasmtime          = "wasmtime"
)

// ErrUnknownRuntime is returned by New for a name that isn't registered,
// either because it is misspelled or because this build excludes it (cgo
// runtimes).
var ErrUnknownRuntime = errors.New("unknown runtime")

// ErrUnsupported is returned when a runtime can't host a module, such as
// wasmer with a module importing wasi_snapshot_preview1.
var ErrUnsupported = errors.New("unsupported by runtime")

// RuntimeConfig describes the module to compile and instantiate.
type RuntimeConfig struct {
	ModuleName string
	ModuleWasm []byte
	// FuncNames are function exports that must exist after instantiation.
	FuncNames []string
	// NeedsWASI is true when the module imports wasi_snapshot_preview1.
	NeedsWASI bool
	// NeedsInitialize is true when the module is a reactor exporting
	// _initialize, which must run before any other export.
	NeedsInitialize bool
}

// Runtime is one WebAssembly engine.
type Runtime interface {
	Name() string
	Compile(ctx context.Context, cfg *RuntimeConfig) error
	Instantiate(ctx context.Context, cfg *RuntimeConfig) (Module, error)
	Close(ctx context.Context) error
}

// Module is an instantiated module. Implementations are not safe for
// concurrent use.
type Module interface {
	// CallI32_I32 calls a function with signature (i32) -> (i32), carrying
	// u32 bit patterns in both directions.
	CallI32_I32(ctx context.Context, funcName string, param uint32) (uint32, error)
	Close(ctx context.Context) error
}

var (
	runtimesMu sync.RWMutex
	runtimes   = map[string]func() Runtime{}
)

// register is called from init in each runtime's file, so build tags
// decide which runtimes exist.
func register(name string, newRuntime func() Runtime) {
	runtimesMu.Lock()
	defer runtimesMu.Unlock()
	if _, ok := runtimes[name]; ok {
		panic(fmt.Sprintf("runtime %q registered twice", name))
	}
	runtimes[name] = newRuntime
}

// Names returns the sorted names of the runtimes in this build.
func Names() []string {
	runtimesMu.RLock()
	defer runtimesMu.RUnlock()
	names := make([]string, 0, len(runtimes))
	for name := range runtimes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New returns a new, uncompiled runtime of the given name.
func New(name string) (Runtime, error) {
	runtimesMu.RLock()
	newRuntime, ok := runtimes[name]
	runtimesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q: available runtimes are %v", ErrUnknownRuntime, name, Names())
	}
	return newRuntime(), nil
}
