// Package driver orchestrates the compile pipeline: parse, build MIR, run
// the optimization pipeline, partition into codegen units, compile uncached
// units through the external LLVM toolchain in parallel, and link. This is
// the host driver around the single-threaded core; only the per-unit
// back-end invocations fan out.
package driver

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/lumen-lang/lumenc/pkg/codegen/partition"
	"github.com/lumen-lang/lumenc/pkg/diag"
	"github.com/lumen-lang/lumenc/pkg/frontend"
	"github.com/lumen-lang/lumenc/pkg/linker"
	"github.com/lumen-lang/lumenc/pkg/logger"
	"github.com/lumen-lang/lumenc/pkg/mir"
	"github.com/lumen-lang/lumenc/pkg/mir/build"
	"github.com/lumen-lang/lumenc/pkg/optimizer"
	"github.com/lumen-lang/lumenc/pkg/pass"
)

// Options configures one compile.
type Options struct {
	OptLevel    pass.OptLevel
	Units       int
	CacheDir    string
	Output      string
	ProfilePath string
	EmitMIR     bool
	EmitLLVM    bool
	Target      string
}

// Result reports what the compile produced.
type Result struct {
	Module   *mir.Module
	Units    []partition.Unit
	Objects  []string
	Duration time.Duration
}

// Compile runs the whole pipeline for one source file. Analysis-reported
// errors (memory leak, infinite loop) are rendered through the emitter and
// returned as a single build error, which the CLI maps to exit code 1.
func Compile(ctx context.Context, srcPath string, opts Options) (*Result, error) {
	start := time.Now()
	emitter := diag.NewEmitter(os.Stderr)

	logger.LogFileProcessing(srcPath)
	source, err := os.ReadFile(srcPath)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}

	logger.LogPhase("parse")
	ast, err := frontend.NewParser(string(source)).Parse()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", srcPath, err)
	}
	logger.LogParsing(srcPath, len(ast.Body))
	logger.LogPhaseComplete("parse")

	logger.LogPhase("mir")
	moduleName := moduleNameOf(srcPath)
	mod, err := build.New(moduleName).Build(ast)
	if err != nil {
		return nil, err
	}

	logger.LogPhase("optimize")
	var profile *optimizer.Profile
	if opts.ProfilePath != "" {
		profile, err = optimizer.LoadProfile(opts.ProfilePath)
		if err != nil {
			return nil, err
		}
	}
	mgr := optimizer.BuildPipeline(opts.OptLevel, profile)
	mgr.Run(mod)
	emitter.EmitAll(mgr.Diagnostics())
	if mgr.HasErrors() {
		return nil, fmt.Errorf("%d error(s) reported by analysis passes", emitter.Errors())
	}
	logger.LogPhaseComplete("optimize")

	res := &Result{Module: mod}
	if opts.EmitMIR {
		for _, fn := range mod.Functions {
			fmt.Print(mir.Print(fn))
		}
	}

	logger.LogPhase("partition")
	units := opts.Units
	if units < 1 {
		units = 1
	}
	part, err := partition.Partition(mod, partition.WithUnits(units))
	if err != nil {
		return nil, err
	}
	res.Units = part.Units

	if opts.EmitLLVM {
		for _, u := range part.Units {
			fmt.Print(u.IRText)
		}
	}
	if opts.Output == "" {
		res.Duration = time.Since(start)
		return res, nil
	}

	logger.LogPhase("codegen")
	objects, err := compileUnits(ctx, part, opts)
	if err != nil {
		return nil, err
	}
	res.Objects = objects

	logger.LogLinkingStart(len(objects))
	ld := linker.New(opts.Target, opts.Output, runtimeArchive())
	for _, obj := range objects {
		ld.AddObject(obj)
	}
	if err := ld.Link(); err != nil {
		return nil, fmt.Errorf("link: %w", err)
	}
	logger.LogLinkingComplete(opts.Output)

	res.Duration = time.Since(start)
	logger.LogCompilerComplete(true, humanize.RelTime(start, time.Now(), "", ""))
	return res, nil
}

// compileUnits invokes the external toolchain per uncached unit, in
// parallel. Each unit writes its own object through the cache's
// temp-then-rename protocol, so no cross-unit synchronization is needed
// beyond the errgroup join.
func compileUnits(ctx context.Context, part *partition.Result, opts Options) ([]string, error) {
	cacheDir := opts.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "lumenc-cache")
	}
	cache, err := partition.NewCache(cacheDir)
	if err != nil {
		return nil, err
	}

	objects := make([]string, len(part.Units))
	g, ctx := errgroup.WithContext(ctx)
	for i := range part.Units {
		unit := &part.Units[i]
		objName := unit.ObjectName(part.ModuleName)
		objects[i] = cache.Path(objName)
		if cache.Hit(objName) {
			logger.Debug("cache hit", "object", objName)
			continue
		}
		g.Go(func() error {
			return compileOneUnit(ctx, cache, unit, objName)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return objects, nil
}

func compileOneUnit(ctx context.Context, cache *partition.Cache, unit *partition.Unit, objName string) error {
	llPath := cache.Path(objName) + ".ll"
	if err := os.WriteFile(llPath, []byte(unit.IRText), 0o644); err != nil {
		return fmt.Errorf("cgu%d: write IR: %w", unit.Index, err)
	}
	defer os.Remove(llPath)

	tmpObj := llPath + ".o"
	cmd := exec.CommandContext(ctx, "clang", "-c", "-O2", "-o", tmpObj, "-x", "ir", llPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("cgu%d: clang: %w\n%s", unit.Index, err, out)
	}
	if err := cache.PutFile(objName, tmpObj); err != nil {
		return fmt.Errorf("cgu%d: %w", unit.Index, err)
	}
	logger.Debug("compiled codegen unit", "object", objName,
		"functions", len(unit.FunctionNames), "ir", humanize.Bytes(uint64(len(unit.IRText))))
	return nil
}

func moduleNameOf(srcPath string) string {
	base := filepath.Base(srcPath)
	return base[:len(base)-len(filepath.Ext(base))]
}

// runtimeArchive locates the static runtime the linker appends; overridable
// for packaging.
func runtimeArchive() string {
	if env := os.Getenv("LUMEN_RUNTIME"); env != "" {
		return env
	}
	return "liblumen_rt.a"
}
