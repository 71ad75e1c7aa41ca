package host

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	addone "github.com/dandyvica/wasm-add-one"
	"github.com/dandyvica/wasm-add-one/internal/wasmbin"
)

const wasiModuleName = "wasi_snapshot_preview1"

var (
	// ErrMissingExport is returned by Load when the module doesn't export add_one as a function.
	ErrMissingExport = wasmbin.ErrExportNotFound
	// ErrSignature is returned by Load when add_one isn't (i32) -> (i32).
	ErrSignature = errors.New("add_one has the wrong signature")
)

// Incrementer calls add_one in an instantiated guest.
//
// A guest instance has one linear memory and, for Go guests, one
// scheduler, so calls are serialized. Incrementer is safe for concurrent
// use.
type Incrementer struct {
	runtime Runtime
	mu      sync.Mutex
	mod     Module
}

// Load verifies that wasm exports add_one with the expected signature,
// then compiles and instantiates it with rt. rt is owned by the returned
// Incrementer and closed with it, including when Load fails.
//
// Modules importing wasi_snapshot_preview1 get WASI, and reactors
// exporting _initialize are initialized before Load returns.
func Load(ctx context.Context, rt Runtime, wasm []byte) (inc *Incrementer, err error) {
	logger := zerolog.Ctx(ctx).With().Str("runtime", rt.Name()).Logger()
	defer func() {
		if err != nil {
			_ = rt.Close(ctx)
		}
	}()

	m, err := wasmbin.DecodeModule(wasm)
	if err != nil {
		return nil, fmt.Errorf("invalid wasm binary: %w", err)
	}

	sig, err := m.ExportedFunctionType(addone.ExportName)
	if err != nil {
		return nil, err
	}
	want := wasmbin.AddOneSignature
	if !sig.EqualsSignature(want.Params, want.Results) {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrSignature, sig, want)
	}

	cfg := &RuntimeConfig{
		ModuleName: "addone",
		ModuleWasm: wasm,
		FuncNames:  []string{addone.ExportName},
		NeedsWASI:  m.ImportsModule(wasiModuleName),
	}
	if e := m.Export("_initialize"); e != nil && e.Type == wasmbin.ExternTypeFunc {
		cfg.NeedsInitialize = true
	}
	logger.Debug().
		Int("size", len(wasm)).
		Str("signature", sig.String()).
		Bool("wasi", cfg.NeedsWASI).
		Bool("reactor", cfg.NeedsInitialize).
		Msg("verified module")

	if err = rt.Compile(ctx, cfg); err != nil {
		return nil, fmt.Errorf("%s: compile: %w", rt.Name(), err)
	}

	mod, err := rt.Instantiate(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: instantiate: %w", rt.Name(), err)
	}
	logger.Debug().Msg("instantiated module")
	return &Incrementer{runtime: rt, mod: mod}, nil
}

// Runtime returns the name of the runtime the guest runs in.
func (i *Incrementer) Runtime() string {
	return i.runtime.Name()
}

// AddOne calls the guest's add_one with x.
func (i *Incrementer) AddOne(ctx context.Context, x uint32) (uint32, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.mod == nil {
		return 0, fmt.Errorf("%s: module closed", i.runtime.Name())
	}
	return i.mod.CallI32_I32(ctx, addone.ExportName, x)
}

// Close releases the module and the runtime.
func (i *Incrementer) Close(ctx context.Context) (err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.mod != nil {
		err = i.mod.Close(ctx)
		i.mod = nil
	}
	if closeErr := i.runtime.Close(ctx); err == nil {
		err = closeErr
	}
	return
}
