// Command vellumc is the middle-end-visible slice of the compiler CLI.
// It does not implement the lexer, parser, type checker, or backend —
// those are out-of-scope external collaborators — so it drives the
// pipeline two ways instead of accepting real source files:
//
//   - against one of the hand-built MIR fixtures in samples.go, run
//     through internal/passmanager's O0..O3 pipelines;
//   - against a single fixed arithmetic program (frontend_demo.go) for
//     --emit-hir/--use-thir/--emit-thir, since those flags only make
//     sense with a HirBuilder/ThirLower front end and none of the MIR
//     fixtures carry typed-AST input.
//
// Stdlib flag only, no CLI framework; os.Exit(1) on usage error.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"

	"vellum/internal/hir"
	"vellum/internal/passmanager"
	"vellum/internal/thir"
	"vellum/internal/types"
)

func main() {
	var (
		o0         = flag.Bool("O0", false, "no optimization (default)")
		o1         = flag.Bool("O1", false, "O1 pipeline")
		o2         = flag.Bool("O2", false, "O2 pipeline")
		o3         = flag.Bool("O3", false, "O3 pipeline")
		emitHIR    = flag.Bool("emit-hir", false, "print HIR after construction and continue")
		emitTHIR   = flag.Bool("emit-thir", false, "print THIR after lowering and continue")
		emitMIR    = flag.Bool("emit-mir", false, "print MIR once before and once after the whole pass pipeline; intermediate stages are not printed")
		useTHIR    = flag.Bool("use-thir", false, "lower the demo program through HIR -> THIR instead of stopping at HIR")
		showTime   = flag.Bool("time", false, "print per-pass wall time on completion")
		passesFile = flag.String("passes-file", "", "TOML pipeline override: run its pass groups instead of the -O level's table")
	)

	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 {
		usage()
		os.Exit(1)
	}

	level := resolveLevel(*o0, *o1, *o2, *o3)

	switch args[0] {
	case "list":
		listSamples()
	case "demo":
		runDemo(*emitHIR, *emitTHIR, *useTHIR)
	default:
		s := findSample(args[0])
		if s == nil {
			fmt.Fprintf(os.Stderr, "vellumc: unknown sample %q (try `vellumc list`)\n", args[0])
			os.Exit(1)
		}

		runSample(*s, level, *passesFile, *emitMIR, *showTime)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: vellumc [-O0|-O1|-O2|-O3] [--emit-hir] [--emit-thir] [--emit-mir] [--use-thir] [--time] [--passes-file=pipeline.toml] <sample-name|demo|list>")
	flag.PrintDefaults()
}

func resolveLevel(o0, o1, o2, o3 bool) passmanager.Level {
	switch {
	case o3:
		return passmanager.O3
	case o2:
		return passmanager.O2
	case o1:
		return passmanager.O1
	default:
		_ = o0

		return passmanager.O0
	}
}

func listSamples() {
	for _, s := range samples {
		fmt.Printf("%-18s %s\n", s.name, s.describe)
	}
}

// runDemo lowers frontend_demo.go's fixed program through HirBuilder,
// optionally through ThirLower, and prints whichever IR the flags ask
// for. It never reaches MIR: C6 (MirBuilder) is a contract-only external
// collaborator this repo does not implement.
func runDemo(emitHIR, emitTHIR, useTHIR bool) {
	builder := hir.NewHirBuilder(demoTypeEnv{})

	mod, err := builder.Build(demoModule())
	if err != nil {
		fmt.Fprintf(os.Stderr, "vellumc: HIR construction failed: %v\n", err)
		os.Exit(1)
	}

	if emitHIR {
		fmt.Print(hir.Print(mod))
	}

	if !useTHIR && !emitTHIR {
		return
	}

	lower := thir.NewThirLower(mod, noopTraitSolver{})
	tmod := lower.Lower()

	if emitTHIR {
		fmt.Print(thir.Print(tmod))

		for _, site := range lower.CoercionTrace() {
			fmt.Printf("; coercion: expr #%d %s -> %s (%s)\n", site.ExprID, site.BeforeType, site.AfterType, site.Kind)
		}

		for _, d := range lower.Diagnostics() {
			fmt.Printf("; diagnostic: %s\n", d.Message)
		}
	}
}

func runSample(s sample, level passmanager.Level, passesFile string, emitMIR, showTime bool) {
	m := s.build()

	var hierarchy *types.ClassHierarchy
	if s.hierarchy != nil {
		hierarchy = types.NewClassHierarchy(s.hierarchy())
	}

	if emitMIR {
		printBanner(fmt.Sprintf("before %s", levelName(level)))
		fmt.Print(m.String())
	}

	pm := passmanager.NewPassManager(level, hierarchy)

	var (
		result passmanager.Result
		err    error
	)

	start := time.Now()

	if passesFile != "" {
		cfg, cfgErr := passmanager.LoadCustomPipelineConfig(passesFile)
		if cfgErr != nil {
			fmt.Fprintf(os.Stderr, "vellumc: %v\n", cfgErr)
			os.Exit(1)
		}

		result, err = pm.RunCustom(m, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "vellumc: %v\n", err)
			os.Exit(1)
		}
	} else {
		result = pm.Run(m)
	}

	elapsed := time.Since(start)

	if emitMIR {
		printBanner(fmt.Sprintf("after %s", levelName(level)))
		fmt.Print(m.String())
	}

	if showTime {
		printTiming(result, elapsed)
	}
}

func printBanner(label string) {
	bold := color.New(color.Bold)
	bold.Fprintf(os.Stdout, "; ===== %s =====\n", label)
}

func printTiming(result passmanager.Result, total time.Duration) {
	fmt.Printf("; total pass-manager time: %s\n", total)

	for _, st := range result.Stats {
		fmt.Printf(";   %-28s %10s visited=%d changed=%d removed=%d blocks_removed=%d funcs_removed=%d\n",
			st.PassName, st.Elapsed, st.InstructionsVisited, st.InstructionsChanged, st.InstructionsRemoved, st.BlocksRemoved, st.FunctionsRemoved)
	}

	for name, iters := range result.Iterations {
		fmt.Printf(";   group %-20s ran %d iteration(s)\n", name, iters)
	}
}

func levelName(l passmanager.Level) string {
	switch l {
	case passmanager.O1:
		return "O1"
	case passmanager.O2:
		return "O2"
	case passmanager.O3:
		return "O3"
	default:
		return "O0"
	}
}
