//go:build js

package main

import (
	"syscall/js"

	addone "github.com/dandyvica/wasm-add-one"
	"github.com/dandyvica/wasm-add-one/internal/jsconv"
)

// serve installs add_one on the global object and parks main, since the
// function is only callable while the Go program is alive.
func serve() {
	js.Global().Set(addone.ExportName, js.FuncOf(addOne))
	select {}
}

// addOne coerces its first argument like generated binding glue would,
// ToNumber then ToUint32. A missing argument is undefined, which becomes 0.
//
// Go callbacks can't throw, so when ToNumber throws (a Symbol, say) the
// TypeError is returned to the caller instead of crashing the program.
func addOne(_ js.Value, args []js.Value) (result any) {
	defer func() {
		if r := recover(); r != nil {
			jsErr, ok := r.(js.Error)
			if !ok {
				panic(r)
			}
			result = jsErr.Value
		}
	}()

	arg := js.Undefined()
	if len(args) > 0 {
		arg = args[0]
	}
	x := jsconv.ToUint32(js.Global().Call("Number", arg).Float())
	return js.ValueOf(addone.AddOne(x))
}
