// Command addone-guest is the WebAssembly guest exporting add_one.
//
// Build it as a WASI reactor, exporting add_one next to _initialize:
//
//	GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared -o addone.wasm ./cmd/addone-guest
//
// or for browsers, where it installs a global add_one function once loaded
// with wasm_exec.js:
//
//	GOOS=js GOARCH=wasm go build -o www/addone.wasm ./cmd/addone-guest
package main

func main() {
	serve()
}
