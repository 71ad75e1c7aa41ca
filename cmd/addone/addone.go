// Command addone loads a module exporting add_one into a WebAssembly
// runtime and calls it.
package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/dandyvica/wasm-add-one/internal/config"
	"github.com/dandyvica/wasm-add-one/internal/host"
	"github.com/dandyvica/wasm-add-one/internal/logging"
	"github.com/dandyvica/wasm-add-one/internal/wasmbin"
)

func main() {
	doMain(os.Args[1:], os.Stdout, os.Stderr, os.Exit)
}

// doMain is separated out for the purpose of unit testing. exit must not
// return.
func doMain(args []string, stdOut, stdErr io.Writer, exit func(code int)) {
	flags := pflag.NewFlagSet("addone", pflag.ContinueOnError)
	flags.SetOutput(stdErr)
	flags.SetInterspersed(false)

	var help bool
	flags.BoolVarP(&help, "help", "h", false, "print usage")

	if err := flags.Parse(args); err != nil {
		fmt.Fprintln(stdErr, err)
		printUsage(stdErr)
		exit(1)
	}

	if help || flags.NArg() == 0 {
		printUsage(stdErr)
		exit(0)
	}

	subCmd := flags.Arg(0)
	switch subCmd {
	case "run":
		doRun(flags.Args()[1:], stdOut, stdErr, exit)
	case "emit":
		doEmit(flags.Args()[1:], stdOut, stdErr, exit)
	case "inspect":
		doInspect(flags.Args()[1:], stdOut, stdErr, exit)
	case "engines":
		for _, name := range host.Names() {
			fmt.Fprintln(stdOut, name)
		}
		exit(0)
	default:
		fmt.Fprintf(stdErr, "invalid command %q\n", subCmd)
		printUsage(stdErr)
		exit(1)
	}
}

func doRun(args []string, stdOut, stdErr io.Writer, exit func(code int)) {
	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	flags.SetOutput(stdErr)

	var help bool
	flags.BoolVarP(&help, "help", "h", false, "print usage")
	configPath := flags.StringP("config", "c", "", "path to a YAML config file")
	flags.StringP("engine", "e", host.NameWazero, "runtime to call add_one in: "+strings.Join(host.Names(), ", "))
	flags.StringP("wasm", "w", "", "path to the guest binary. Defaults to the built-in reference module")
	flags.String("log-level", "info", "log level: trace, debug, info, warn or error")
	flags.Bool("log-pretty", false, "log in console format instead of JSON")

	if err := flags.Parse(args); err != nil {
		fmt.Fprintln(stdErr, err)
		printRunUsage(stdErr, flags)
		exit(1)
	}

	if help {
		printRunUsage(stdErr, flags)
		exit(0)
	}

	if flags.NArg() == 0 {
		fmt.Fprintln(stdErr, "missing number to increment")
		printRunUsage(stdErr, flags)
		exit(1)
	}

	inputs := make([]uint32, flags.NArg())
	for i, arg := range flags.Args() {
		x, err := parseUint32(arg)
		if err != nil {
			fmt.Fprintln(stdErr, err)
			exit(1)
		}
		inputs[i] = x
	}

	cfg, err := config.Load(*configPath, changedFlags(flags))
	if err != nil {
		fmt.Fprintf(stdErr, "error loading config: %v\n", err)
		exit(1)
	}

	logger, err := logging.New(cfg.Log, stdErr)
	if err != nil {
		fmt.Fprintf(stdErr, "error configuring logging: %v\n", err)
		exit(1)
	}
	ctx := logger.WithContext(context.Background())

	wasm, err := readWasm(cfg.Wasm)
	if err != nil {
		fmt.Fprintf(stdErr, "error reading wasm binary: %v\n", err)
		exit(1)
	}

	rt, err := host.New(cfg.Engine)
	if err != nil {
		fmt.Fprintf(stdErr, "error selecting engine: %v\n", err)
		exit(1)
	}

	inc, err := host.Load(ctx, rt, wasm)
	if err != nil {
		fmt.Fprintf(stdErr, "error loading wasm binary: %v\n", err)
		exit(1)
	}

	for _, x := range inputs {
		result, err := inc.AddOne(ctx, x)
		if err != nil {
			_ = inc.Close(ctx)
			fmt.Fprintf(stdErr, "error calling add_one(%d): %v\n", x, err)
			exit(1)
		}
		logger.Debug().Str("runtime", inc.Runtime()).Uint32("x", x).Uint32("result", result).Msg("called add_one")
		fmt.Fprintf(stdOut, "add_one(%d) = %d\n", x, result)
	}
	_ = inc.Close(ctx)
	exit(0)
}

func doEmit(args []string, stdOut, stdErr io.Writer, exit func(code int)) {
	flags := pflag.NewFlagSet("emit", pflag.ContinueOnError)
	flags.SetOutput(stdErr)

	var help bool
	flags.BoolVarP(&help, "help", "h", false, "print usage")
	out := flags.StringP("output", "o", "", "file to write the module to. Defaults to stdout")

	if err := flags.Parse(args); err != nil {
		fmt.Fprintln(stdErr, err)
		printEmitUsage(stdErr, flags)
		exit(1)
	}

	if help {
		printEmitUsage(stdErr, flags)
		exit(0)
	}

	wasm := wasmbin.AddOneModule()
	if *out == "" {
		if _, err := stdOut.Write(wasm); err != nil {
			fmt.Fprintf(stdErr, "error writing module: %v\n", err)
			exit(1)
		}
	} else if err := os.WriteFile(*out, wasm, 0o644); err != nil {
		fmt.Fprintf(stdErr, "error writing module: %v\n", err)
		exit(1)
	}
	exit(0)
}

func doInspect(args []string, stdOut, stdErr io.Writer, exit func(code int)) {
	flags := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	flags.SetOutput(stdErr)

	var help bool
	flags.BoolVarP(&help, "help", "h", false, "print usage")

	if err := flags.Parse(args); err != nil {
		fmt.Fprintln(stdErr, err)
		printInspectUsage(stdErr, flags)
		exit(1)
	}

	if help {
		printInspectUsage(stdErr, flags)
		exit(0)
	}

	if flags.NArg() < 1 {
		fmt.Fprintln(stdErr, "missing path to wasm file")
		printInspectUsage(stdErr, flags)
		exit(1)
	}

	wasm, err := os.ReadFile(flags.Arg(0))
	if err != nil {
		fmt.Fprintf(stdErr, "error reading wasm binary: %v\n", err)
		exit(1)
	}

	m, err := wasmbin.DecodeModule(wasm)
	if err != nil {
		fmt.Fprintf(stdErr, "error decoding wasm binary: %v\n", err)
		exit(1)
	}

	sig, err := m.ExportedFunctionType("add_one")
	if err != nil {
		fmt.Fprintf(stdErr, "error resolving add_one: %v\n", err)
		exit(1)
	}

	names := make([]string, len(m.ExportSection))
	for i, e := range m.ExportSection {
		names[i] = e.Name
	}
	fmt.Fprintf(stdOut, "add_one: %s\n", sig)
	fmt.Fprintf(stdOut, "exports: %s\n", strings.Join(names, ", "))
	fmt.Fprintf(stdOut, "wasi: %t\n", m.ImportsModule("wasi_snapshot_preview1"))
	exit(0)
}

// changedFlags returns the flags set on the command line, keyed by their
// config path, so unset flags don't mask the file or environment.
func changedFlags(flags *pflag.FlagSet) map[string]interface{} {
	keys := map[string]string{
		"engine":     config.KeyEngine,
		"wasm":       config.KeyWasm,
		"log-level":  config.KeyLogLevel,
		"log-pretty": config.KeyLogPretty,
	}
	changed := map[string]interface{}{}
	flags.Visit(func(f *pflag.Flag) {
		if key, ok := keys[f.Name]; ok {
			changed[key] = f.Value.String()
		}
	})
	return changed
}

func parseUint32(arg string) (uint32, error) {
	x, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: must be an integer between 0 and %d", arg, uint32(math.MaxUint32))
	}
	return uint32(x), nil
}

func readWasm(path string) ([]byte, error) {
	if path == "" {
		return wasmbin.AddOneModule(), nil
	}
	return os.ReadFile(path)
}

func printUsage(stdErr io.Writer) {
	fmt.Fprintln(stdErr, "addone CLI")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:\n  addone <command>")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Commands:")
	fmt.Fprintln(stdErr, "  run\t\tCalls add_one with each number")
	fmt.Fprintln(stdErr, "  emit\t\tWrites the reference add_one module")
	fmt.Fprintln(stdErr, "  inspect\tPrints the add_one signature of a WebAssembly binary")
	fmt.Fprintln(stdErr, "  engines\tLists the runtimes in this build")
}

func printRunUsage(stdErr io.Writer, flags *pflag.FlagSet) {
	fmt.Fprintln(stdErr, "addone CLI")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:\n  addone run <options> <number>...")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Options:")
	flags.PrintDefaults()
}

func printEmitUsage(stdErr io.Writer, flags *pflag.FlagSet) {
	fmt.Fprintln(stdErr, "addone CLI")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:\n  addone emit <options>")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Options:")
	flags.PrintDefaults()
}

func printInspectUsage(stdErr io.Writer, flags *pflag.FlagSet) {
	fmt.Fprintln(stdErr, "addone CLI")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:\n  addone inspect <path to wasm file>")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Options:")
	flags.PrintDefaults()
}
