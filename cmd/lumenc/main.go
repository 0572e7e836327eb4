// Package main implements the Lumen compiler binary.
//
// Philosophy: Fast, minimal, elegant - inspired by Go's compiler architecture.
package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/fatih/color"

	"github.com/lumen-lang/lumenc/pkg/driver"
	"github.com/lumen-lang/lumenc/pkg/logger"
	"github.com/lumen-lang/lumenc/pkg/mir"
	"github.com/lumen-lang/lumenc/pkg/pass"
)

const version = "0.1.0"

var (
	statusOK   = color.New(color.FgGreen, color.Bold)
	statusFail = color.New(color.FgRed, color.Bold)
)

func main() {
	// Initialize logging early
	logger.InitDev()
	logger.LogCompilerStart(os.Args)

	// IR contract violations are programmer errors: report them as a crash
	// with a stack trace; any other panic propagates unchanged.
	defer func() {
		if r := recover(); r != nil {
			if iv, ok := r.(*mir.InvariantViolation); ok {
				fmt.Fprintf(os.Stderr, "internal compiler error: %s\n%s", iv.Error(), debug.Stack())
				os.Exit(2)
			}
			panic(r)
		}
	}()

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "build":
		build(os.Args[2:], false, false)
	case "emit-mir":
		build(os.Args[2:], true, false)
	case "emit-llvm":
		build(os.Args[2:], false, true)
	case "version":
		fmt.Printf("lumenc version %s\n", version)
	case "help":
		usage()
	default:
		logger.Error("Unknown command", "command", cmd)
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`Lumen Compiler - Compile Lumen source to native code

Usage:
    lumenc build <source.lum> [-o output]  Compile to native binary
    lumenc emit-mir <source.lum>           Print optimized MIR and stop
    lumenc emit-llvm <source.lum>          Print per-CGU LLVM IR and stop
    lumenc version                         Show compiler version
    lumenc help                            Show this help message

Options:
    -o <file>        Output binary name (no object output when omitted)
    -O <level>       Optimization level (0-3, default: 2)
    -cgus <n>        Codegen unit count (default: 1)
    -cache <dir>     CGU object cache directory
    -profile <file>  Profile data for PGO
    -target <os>     Link target (linux, darwin)`)
}

func build(args []string, emitMIR, emitLLVM bool) {
	start := time.Now()

	if len(args) == 0 {
		logger.Error("No input file provided")
		fmt.Fprintln(os.Stderr, "error: no input file")
		os.Exit(1)
	}
	sourceFile := args[0]

	opts := driver.Options{
		OptLevel: pass.O2,
		Units:    1,
		EmitMIR:  emitMIR,
		EmitLLVM: emitLLVM,
		Target:   "linux",
	}
	for i := 1; i < len(args); i++ {
		switch args[i] {
		case "-o":
			i++
			opts.Output = argAt(args, i)
		case "-O", "-O0", "-O1", "-O2", "-O3":
			lvl := args[i]
			if lvl == "-O" {
				i++
				lvl = "-O" + argAt(args, i)
			}
			n, err := strconv.Atoi(lvl[2:])
			if err != nil || n < 0 || n > 3 {
				fail("invalid optimization level %q", lvl)
			}
			opts.OptLevel = pass.OptLevel(n)
		case "-cgus":
			i++
			n, err := strconv.Atoi(argAt(args, i))
			if err != nil || n < 1 {
				fail("invalid -cgus value")
			}
			opts.Units = n
		case "-cache":
			i++
			opts.CacheDir = argAt(args, i)
		case "-profile":
			i++
			opts.ProfilePath = argAt(args, i)
		case "-target":
			i++
			opts.Target = argAt(args, i)
		default:
			fail("unknown option %q", args[i])
		}
	}

	fmt.Printf("Compiling %s (%s)...\n", sourceFile, opts.OptLevel)
	res, err := driver.Compile(context.Background(), sourceFile, opts)
	if err != nil {
		logger.LogCompilerComplete(false, time.Since(start).String())
		statusFail.Fprintf(os.Stderr, "error: ")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	statusOK.Printf("ok ")
	fmt.Printf("%d function(s), %d codegen unit(s) in %s\n",
		len(res.Module.Functions), len(res.Units), time.Since(start).Round(time.Millisecond))
}

func argAt(args []string, i int) string {
	if i >= len(args) {
		fail("missing value for %s", args[i-1])
	}
	return args[i]
}

func fail(format string, a ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", a...)
	os.Exit(1)
}
