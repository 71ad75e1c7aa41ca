package host

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	addone "github.com/dandyvica/wasm-add-one"
	"github.com/dandyvica/wasm-add-one/internal/testing/hammer"
	"github.com/dandyvica/wasm-add-one/internal/wasmbin"
)

// testCtx is an arbitrary, non-default context. Non-nil also prevents linter errors.
var testCtx = context.WithValue(context.Background(), struct{}{}, "arbitrary")

var boundaryInputs = []uint32{0, 1, 41, math.MaxInt32, 1 << 31, math.MaxUint32 - 1, math.MaxUint32}

func TestNames(t *testing.T) {
	names := Names()
	require.Subset(t, names, []string{NameNative, NameWazero, NameWazeroInterpreter})
	require.IsIncreasing(t, names)
}

func TestNew_Unknown(t *testing.T) {
	_, err := New("v8")
	require.ErrorIs(t, err, ErrUnknownRuntime)
	require.Contains(t, err.Error(), `"v8"`)
}

func TestLoad_AllRuntimes(t *testing.T) {
	for _, name := range Names() {
		name := name
		t.Run(name, func(t *testing.T) {
			inc := load(t, name, wasmbin.AddOneModule())
			require.Equal(t, name, inc.Runtime())

			for _, x := range boundaryInputs {
				actual, err := inc.AddOne(testCtx, x)
				require.NoError(t, err)
				require.Equal(t, addone.AddOne(x), actual, "add_one(%d)", x)
			}

			// Repeated application accumulates through the wrap.
			x := uint32(math.MaxUint32 - 1)
			for i := 0; i < 3; i++ {
				var err error
				x, err = inc.AddOne(testCtx, x)
				require.NoError(t, err)
			}
			require.Equal(t, uint32(1), x)
		})
	}
}

func TestLoad_WASIReactor(t *testing.T) {
	wasm := wasiReactorModule()
	for _, name := range Names() {
		name := name
		t.Run(name, func(t *testing.T) {
			if name == NameWasmer {
				rt, err := New(name)
				require.NoError(t, err)
				_, err = Load(testCtx, rt, wasm)
				require.ErrorIs(t, err, ErrUnsupported)
				require.EqualError(t, err, "wasmer: compile: unsupported by runtime: wasi_snapshot_preview1 imports")
				return
			}

			inc := load(t, name, wasm)
			actual, err := inc.AddOne(testCtx, math.MaxUint32)
			require.NoError(t, err)
			require.Equal(t, uint32(0), actual)
		})
	}

	t.Run("config", func(t *testing.T) {
		rt := &recordingRuntime{Runtime: newNativeRuntime()}
		inc, err := Load(testCtx, rt, wasm)
		require.NoError(t, err)
		defer inc.Close(testCtx)

		require.True(t, rt.cfg.NeedsWASI)
		require.True(t, rt.cfg.NeedsInitialize)
		require.Equal(t, []string{addone.ExportName}, rt.cfg.FuncNames)
	})
}

func TestLoad_Errors(t *testing.T) {
	i32 := wasmbin.ValueTypeI32
	tests := []struct {
		name        string
		wasm        []byte
		expectedErr error
		expectedMsg string
	}{
		{
			name:        "not wasm",
			wasm:        []byte("pooh"),
			expectedErr: wasmbin.ErrInvalidMagicNumber,
			expectedMsg: "invalid wasm binary: invalid magic number",
		},
		{
			name:        "no export",
			wasm:        wasmbin.EncodeModule(&wasmbin.Module{}),
			expectedErr: ErrMissingExport,
		},
		{
			name: "two params",
			wasm: singleFunctionModule(&wasmbin.FunctionType{
				Params:  []wasmbin.ValueType{i32, i32},
				Results: []wasmbin.ValueType{i32},
			}, []byte{wasmbin.OpcodeLocalGet, 0, wasmbin.OpcodeEnd}),
			expectedErr: ErrSignature,
			expectedMsg: "add_one has the wrong signature: got (i32, i32) -> (i32), want (i32) -> (i32)",
		},
		{
			name: "i64",
			wasm: singleFunctionModule(&wasmbin.FunctionType{
				Params:  []wasmbin.ValueType{wasmbin.ValueTypeI64},
				Results: []wasmbin.ValueType{wasmbin.ValueTypeI64},
			}, []byte{wasmbin.OpcodeLocalGet, 0, wasmbin.OpcodeEnd}),
			expectedErr: ErrSignature,
		},
	}

	for _, tc := range tests {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			rt := &recordingRuntime{Runtime: newNativeRuntime()}
			_, err := Load(testCtx, rt, tt.wasm)
			require.ErrorIs(t, err, tt.expectedErr)
			if tt.expectedMsg != "" {
				require.EqualError(t, err, tt.expectedMsg)
			}
			require.Nil(t, rt.cfg, "compiled an invalid module")
			require.True(t, rt.closed, "runtime leaked on error")
		})
	}
}

func TestLoad_CompileError(t *testing.T) {
	rt := &recordingRuntime{Runtime: newNativeRuntime(), compileErr: errors.New("out of cheese")}
	_, err := Load(testCtx, rt, wasmbin.AddOneModule())
	require.EqualError(t, err, "native: compile: out of cheese")
	require.True(t, rt.closed)
}

func TestIncrementer_Concurrent(t *testing.T) {
	for _, name := range []string{NameNative, NameWazero} {
		name := name
		t.Run(name, func(t *testing.T) {
			inc := load(t, name, wasmbin.AddOneModule())

			P := 8
			N := 200
			if testing.Short() {
				P = 4
				N = 50
			}
			hammer.NewHammer(t, P, N).Run(func(p, n int) {
				x := uint32(p*N + n)
				actual, err := inc.AddOne(testCtx, x)
				require.NoError(t, err)
				require.Equal(t, x+1, actual)
			}, nil)
		})
	}
}

func TestIncrementer_Closed(t *testing.T) {
	rt, err := New(NameWazero)
	require.NoError(t, err)
	inc, err := Load(testCtx, rt, wasmbin.AddOneModule())
	require.NoError(t, err)

	require.NoError(t, inc.Close(testCtx))
	_, err = inc.AddOne(testCtx, 1)
	require.EqualError(t, err, "wazero: module closed")
}

func load(t *testing.T, name string, wasm []byte) *Incrementer {
	t.Helper()
	rt, err := New(name)
	require.NoError(t, err)
	inc, err := Load(testCtx, rt, wasm)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, inc.Close(testCtx)) })
	return inc
}

// recordingRuntime captures the configuration Load compiles with.
type recordingRuntime struct {
	Runtime
	compileErr error
	cfg        *RuntimeConfig
	closed     bool
}

func (r *recordingRuntime) Compile(ctx context.Context, cfg *RuntimeConfig) error {
	if r.compileErr != nil {
		return r.compileErr
	}
	r.cfg = cfg
	return r.Runtime.Compile(ctx, cfg)
}

func (r *recordingRuntime) Close(ctx context.Context) error {
	r.closed = true
	return r.Runtime.Close(ctx)
}

func singleFunctionModule(sig *wasmbin.FunctionType, body []byte) []byte {
	return wasmbin.EncodeModule(&wasmbin.Module{
		TypeSection:     []*wasmbin.FunctionType{sig},
		FunctionSection: []wasmbin.Index{0},
		ExportSection:   []*wasmbin.Export{{Type: wasmbin.ExternTypeFunc, Name: addone.ExportName, Index: 0}},
		CodeSection:     []*wasmbin.Code{{Body: body}},
	})
}

// wasiReactorModule is shaped like a wasip1 c-shared build: it imports from
// wasi_snapshot_preview1 and exports _initialize next to add_one.
func wasiReactorModule() []byte {
	i32 := wasmbin.ValueTypeI32
	return wasmbin.EncodeModule(&wasmbin.Module{
		TypeSection: []*wasmbin.FunctionType{
			{Params: []wasmbin.ValueType{i32}, Results: []wasmbin.ValueType{i32}},
			{Params: []wasmbin.ValueType{i32}},
			{},
		},
		ImportSection: []*wasmbin.Import{
			{Type: wasmbin.ExternTypeFunc, Module: "wasi_snapshot_preview1", Name: "proc_exit", DescFunc: 1},
		},
		FunctionSection: []wasmbin.Index{0, 2},
		ExportSection: []*wasmbin.Export{
			{Type: wasmbin.ExternTypeFunc, Name: addone.ExportName, Index: 1},
			{Type: wasmbin.ExternTypeFunc, Name: "_initialize", Index: 2},
		},
		CodeSection: []*wasmbin.Code{
			{Body: wasmbin.AddOneBody()},
			{Body: []byte{wasmbin.OpcodeEnd}},
		},
	})
}
