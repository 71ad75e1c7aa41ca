//go:build wasip1

package main

import (
	addone "github.com/dandyvica/wasm-add-one"
)

//go:wasmexport add_one
func addOne(x uint32) uint32 {
	return addone.AddOne(x)
}

// serve does nothing: a c-shared build never runs main, and a command
// build returns so the host sees a clean exit.
func serve() {}
