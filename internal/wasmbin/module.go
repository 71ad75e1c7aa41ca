// Package wasmbin decodes and encodes the subset of the WebAssembly 1.0
// binary format needed to find and check a module's function exports.
//
// Sections that don't affect the function index space are skipped by size
// when decoding, so modules produced by real toolchains decode fine even
// though only type, import, function, export and code sections are kept.
//
// See https://www.w3.org/TR/wasm-core-1/#binary-format%E2%91%A0
package wasmbin

import (
	"errors"
	"fmt"
	"strings"
)

// magic is the 4 byte preamble (literally "\0asm") of the binary format
// See https://www.w3.org/TR/wasm-core-1/#binary-magic
var magic = []byte{0x00, 0x61, 0x73, 0x6D}

// version is format version and doesn't change between known specification versions
// See https://www.w3.org/TR/wasm-core-1/#binary-version
var version = []byte{0x01, 0x00, 0x00, 0x00}

var (
	ErrInvalidByte        = errors.New("invalid byte")
	ErrInvalidMagicNumber = errors.New("invalid magic number")
	ErrInvalidVersion     = errors.New("invalid version header")
	ErrInvalidSectionID   = errors.New("invalid section id")
	ErrExportNotFound     = errors.New("export not found")
)

// Index is the offset in an index space, such as the function index space.
type Index = uint32

type SectionID = byte

const (
	// SectionIDCustom includes the standard defined NameSection and possibly others not defined in the standard.
	SectionIDCustom   SectionID = 0
	SectionIDType     SectionID = 1
	SectionIDImport   SectionID = 2
	SectionIDFunction SectionID = 3
	SectionIDTable    SectionID = 4
	SectionIDMemory   SectionID = 5
	SectionIDGlobal   SectionID = 6
	SectionIDExport   SectionID = 7
	SectionIDStart    SectionID = 8
	SectionIDElement  SectionID = 9
	SectionIDCode     SectionID = 10
	SectionIDData     SectionID = 11
	// SectionIDDataCount is a WebAssembly 2.0 addition emitted by current toolchains.
	SectionIDDataCount SectionID = 12
)

// ValueType is the binary encoding of a type such as i32
// See https://www.w3.org/TR/wasm-core-1/#binary-valtype
type ValueType = byte

const (
	ValueTypeI32 ValueType = 0x7f
	ValueTypeI64 ValueType = 0x7e
	ValueTypeF32 ValueType = 0x7d
	ValueTypeF64 ValueType = 0x7c
	// The types below are WebAssembly 2.0 (SIMD and reference types).
	ValueTypeV128      ValueType = 0x7b
	ValueTypeFuncref   ValueType = 0x70
	ValueTypeExternref ValueType = 0x6f
)

// ValueTypeName returns the type name of the given ValueType as a string.
// These type names match the names used in the WebAssembly text format.
func ValueTypeName(t ValueType) string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	case ValueTypeV128:
		return "v128"
	case ValueTypeFuncref:
		return "funcref"
	case ValueTypeExternref:
		return "externref"
	}
	return fmt.Sprintf("unknown(%#x)", t)
}

// ExternType classifies imports and exports with their respective types.
// See https://www.w3.org/TR/wasm-core-1/#external-types%E2%91%A0
type ExternType = byte

const (
	ExternTypeFunc   ExternType = 0x00
	ExternTypeTable  ExternType = 0x01
	ExternTypeMemory ExternType = 0x02
	ExternTypeGlobal ExternType = 0x03
)

// ExternTypeName returns the name of the WebAssembly 1.0 (MVP) Text Format field of the given type.
func ExternTypeName(et ExternType) string {
	switch et {
	case ExternTypeFunc:
		return "func"
	case ExternTypeTable:
		return "table"
	case ExternTypeMemory:
		return "memory"
	case ExternTypeGlobal:
		return "global"
	}
	return fmt.Sprintf("%#x", et)
}

// Opcodes used by the reference module.
const (
	OpcodeEnd      byte = 0x0b
	OpcodeLocalGet byte = 0x20
	OpcodeI32Const byte = 0x41
	OpcodeI32Add   byte = 0x6a
)

// FunctionType is a possibly empty function signature.
// See https://www.w3.org/TR/wasm-core-1/#function-types%E2%91%A0
type FunctionType struct {
	Params, Results []ValueType
}

// String returns the signature in the form "(i32) -> (i32)".
func (t *FunctionType) String() string {
	return "(" + valueTypeNames(t.Params) + ") -> (" + valueTypeNames(t.Results) + ")"
}

// EqualsSignature returns true if the function type has the same parameters and results.
func (t *FunctionType) EqualsSignature(params []ValueType, results []ValueType) bool {
	return string(t.Params) == string(params) && string(t.Results) == string(results)
}

func valueTypeNames(vts []ValueType) string {
	names := make([]string, len(vts))
	for i, vt := range vts {
		names[i] = ValueTypeName(vt)
	}
	return strings.Join(names, ", ")
}

// Import is the binary representation of an import indicated by Type
// See https://www.w3.org/TR/wasm-core-1/#binary-import
type Import struct {
	Type   ExternType
	Module string
	Name   string
	// DescFunc is the index in Module.TypeSection when Type equals ExternTypeFunc
	DescFunc Index
	// Desc holds the undecoded descriptor of a table, memory or global import.
	Desc []byte
}

// Export is the binary representation of an export indicated by Type
// See https://www.w3.org/TR/wasm-core-1/#binary-export
type Export struct {
	Type  ExternType
	Name  string
	Index Index
}

// Code is an entry in the Module.CodeSection containing the locals and
// body of the function.
// See https://www.w3.org/TR/wasm-core-1/#binary-code
type Code struct {
	LocalTypes []ValueType
	// Body is the instruction sequence, including the trailing OpcodeEnd.
	Body []byte
}

// Module is the decoded function view of a WebAssembly module.
type Module struct {
	TypeSection     []*FunctionType
	ImportSection   []*Import
	FunctionSection []Index
	ExportSection   []*Export
	CodeSection     []*Code
}

// ImportFuncCount returns how many imported functions precede the
// module-defined ones in the function index space.
func (m *Module) ImportFuncCount() (count uint32) {
	for _, i := range m.ImportSection {
		if i.Type == ExternTypeFunc {
			count++
		}
	}
	return
}

// ImportsModule returns true if any import is satisfied by the host module
// of the given name, such as "wasi_snapshot_preview1".
func (m *Module) ImportsModule(moduleName string) bool {
	for _, i := range m.ImportSection {
		if i.Module == moduleName {
			return true
		}
	}
	return false
}

// Export returns the export of the given name or nil.
func (m *Module) Export(name string) *Export {
	for _, e := range m.ExportSection {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// ExportedFunctionType resolves the signature of the function exported as
// name. Imported functions come first in the function index space.
func (m *Module) ExportedFunctionType(name string) (*FunctionType, error) {
	e := m.Export(name)
	if e == nil {
		return nil, fmt.Errorf("%w: %q", ErrExportNotFound, name)
	}
	if e.Type != ExternTypeFunc {
		return nil, fmt.Errorf("%w: %q is a %s, not a func", ErrExportNotFound, name, ExternTypeName(e.Type))
	}

	var typeIndex Index
	idx := e.Index
	if imported := m.ImportFuncCount(); idx < imported {
		for _, i := range m.ImportSection {
			if i.Type != ExternTypeFunc {
				continue
			}
			if idx == 0 {
				typeIndex = i.DescFunc
				break
			}
			idx--
		}
	} else if idx -= imported; idx < uint32(len(m.FunctionSection)) {
		typeIndex = m.FunctionSection[idx]
	} else {
		return nil, fmt.Errorf("export %q: function index %d out of range", name, e.Index)
	}

	if typeIndex >= uint32(len(m.TypeSection)) {
		return nil, fmt.Errorf("export %q: type index %d out of range", name, typeIndex)
	}
	return m.TypeSection[typeIndex], nil
}
