package wasmbin

import (
	addone "github.com/dandyvica/wasm-add-one"
	"github.com/dandyvica/wasm-add-one/internal/leb128"
)

// AddOneSignature is the signature every add_one export must have: u32 is
// carried as i32 across the boundary.
var AddOneSignature = &FunctionType{
	Params:  []ValueType{ValueTypeI32},
	Results: []ValueType{ValueTypeI32},
}

// AddOneModule returns a module whose only export is add_one, implemented
// as i32.add of the argument and 1. i32.add wraps, so it agrees with
// addone.AddOne on every input, including math.MaxUint32.
//
// It is the text format module below, hand-encoded:
//
//	(module
//	  (func (export "add_one") (param i32) (result i32)
//	    local.get 0
//	    i32.const 1
//	    i32.add))
func AddOneModule() []byte {
	return EncodeModule(&Module{
		TypeSection:     []*FunctionType{AddOneSignature},
		FunctionSection: []Index{0},
		ExportSection:   []*Export{{Type: ExternTypeFunc, Name: addone.ExportName, Index: 0}},
		CodeSection:     []*Code{{Body: AddOneBody()}},
	})
}

// AddOneBody is the body of add_one: the parameter plus a signed LEB128
// i32.const 1.
func AddOneBody() []byte {
	body := []byte{OpcodeLocalGet, 0, OpcodeI32Const}
	body = append(body, leb128.EncodeInt32(1)...)
	return append(body, OpcodeI32Add, OpcodeEnd)
}
