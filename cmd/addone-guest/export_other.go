//go:build !wasip1 && !js

package main

import (
	"fmt"
	"os"
)

func serve() {
	fmt.Fprintln(os.Stderr, "addone-guest must be built with GOARCH=wasm and GOOS=wasip1 or GOOS=js")
	os.Exit(1)
}
