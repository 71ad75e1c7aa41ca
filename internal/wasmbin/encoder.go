package wasmbin

import (
	"github.com/dandyvica/wasm-add-one/internal/leb128"
)

// EncodeModule encodes the module in the WebAssembly 1.0 (MVP) Binary Format.
// Note: If saving to a file, the conventional extension is wasm
// See https://www.w3.org/TR/wasm-core-1/#binary-format%E2%91%A0
func EncodeModule(m *Module) (bytes []byte) {
	bytes = append(append([]byte{}, magic...), version...)
	if len(m.TypeSection) > 0 {
		bytes = append(bytes, encodeTypeSection(m.TypeSection)...)
	}
	if len(m.ImportSection) > 0 {
		bytes = append(bytes, encodeImportSection(m.ImportSection)...)
	}
	if len(m.FunctionSection) > 0 {
		bytes = append(bytes, encodeFunctionSection(m.FunctionSection)...)
	}
	if len(m.ExportSection) > 0 {
		bytes = append(bytes, encodeExportSection(m.ExportSection)...)
	}
	if len(m.CodeSection) > 0 {
		bytes = append(bytes, encodeCodeSection(m.CodeSection)...)
	}
	return
}

// encodeSection encodes the sectionID, the size of its contents in bytes, followed by the contents.
// See https://www.w3.org/TR/wasm-core-1/#sections%E2%91%A0
func encodeSection(sectionID SectionID, contents []byte) []byte {
	return append([]byte{sectionID}, encodeSizePrefixed(contents)...)
}

func encodeSizePrefixed(data []byte) []byte {
	return append(leb128.EncodeUint32(uint32(len(data))), data...)
}

// encodeTypeSection encodes a SectionIDType for the given types.
// See https://www.w3.org/TR/wasm-core-1/#type-section%E2%91%A0
func encodeTypeSection(types []*FunctionType) []byte {
	contents := leb128.EncodeUint32(uint32(len(types)))
	for _, t := range types {
		contents = append(contents, encodeFunctionType(t)...)
	}
	return encodeSection(SectionIDType, contents)
}

// encodeFunctionType returns the function type prefixed by 0x60.
// See https://www.w3.org/TR/wasm-core-1/#binary-functype
func encodeFunctionType(t *FunctionType) []byte {
	data := append([]byte{0x60}, encodeSizePrefixed(t.Params)...)
	return append(data, encodeSizePrefixed(t.Results)...)
}

// encodeImportSection encodes a SectionIDImport for the given imports.
// See https://www.w3.org/TR/wasm-core-1/#import-section%E2%91%A0
func encodeImportSection(imports []*Import) []byte {
	contents := leb128.EncodeUint32(uint32(len(imports)))
	for _, i := range imports {
		contents = append(contents, encodeImport(i)...)
	}
	return encodeSection(SectionIDImport, contents)
}

func encodeImport(i *Import) []byte {
	data := encodeSizePrefixed([]byte(i.Module))
	data = append(data, encodeSizePrefixed([]byte(i.Name))...)
	data = append(data, i.Type)
	if i.Type == ExternTypeFunc {
		return append(data, leb128.EncodeUint32(i.DescFunc)...)
	}
	return append(data, i.Desc...)
}

// encodeFunctionSection encodes a SectionIDFunction for the type indices associated with module-defined functions.
// See https://www.w3.org/TR/wasm-core-1/#function-section%E2%91%A0
func encodeFunctionSection(typeIndices []Index) []byte {
	contents := leb128.EncodeUint32(uint32(len(typeIndices)))
	for _, index := range typeIndices {
		contents = append(contents, leb128.EncodeUint32(index)...)
	}
	return encodeSection(SectionIDFunction, contents)
}

// encodeExportSection encodes a SectionIDExport for the given exports in declaration order.
// See https://www.w3.org/TR/wasm-core-1/#export-section%E2%91%A0
func encodeExportSection(exports []*Export) []byte {
	contents := leb128.EncodeUint32(uint32(len(exports)))
	for _, e := range exports {
		contents = append(contents, encodeSizePrefixed([]byte(e.Name))...)
		contents = append(contents, e.Type)
		contents = append(contents, leb128.EncodeUint32(e.Index)...)
	}
	return encodeSection(SectionIDExport, contents)
}

// encodeCodeSection encodes a SectionIDCode for the module-defined function in WebAssembly 1.0 (MVP) Binary Format.
// See https://www.w3.org/TR/wasm-core-1/#code-section%E2%91%A0
func encodeCodeSection(code []*Code) []byte {
	contents := leb128.EncodeUint32(uint32(len(code)))
	for _, c := range code {
		contents = append(contents, encodeCode(c)...)
	}
	return encodeSection(SectionIDCode, contents)
}

// encodeCode returns the size-prefixed locals and body. Runs of the same
// local type are folded into one declaration.
// See https://www.w3.org/TR/wasm-core-1/#binary-code
func encodeCode(c *Code) []byte {
	type run struct {
		count uint32
		vt    ValueType
	}
	var runs []run
	for _, vt := range c.LocalTypes {
		if n := len(runs); n > 0 && runs[n-1].vt == vt {
			runs[n-1].count++
		} else {
			runs = append(runs, run{count: 1, vt: vt})
		}
	}

	data := leb128.EncodeUint32(uint32(len(runs)))
	for _, r := range runs {
		data = append(data, leb128.EncodeUint32(r.count)...)
		data = append(data, r.vt)
	}
	data = append(data, c.Body...)
	return encodeSizePrefixed(data)
}
