// Package addone holds the function exported to WebAssembly hosts as
// "add_one".
//
// The addition wraps: AddOne(math.MaxUint32) is 0, the same result the
// wasm i32.add instruction produces for the exported function.
package addone

// ExportName is the name of the function in the guest's export section and
// of the global installed by the js build.
const ExportName = "add_one"

// AddOne returns x + 1 modulo 2^32.
func AddOne(x uint32) uint32 {
	return x + 1
}
