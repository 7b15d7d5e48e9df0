// Package passmanager sequences internal/mirpasses's optimization passes
// into the named O0..O3 pipelines, split into per-function and
// per-module stages. Independent per-function passes within a group run concurrently
// across a module's functions via golang.org/x/sync/errgroup before the
// module-level interprocedural passes run as a barrier.
package passmanager

import (
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"vellum/internal/alias"
	"vellum/internal/mir"
	"vellum/internal/mirpasses"
	"vellum/internal/types"
)

// Level names an optimization level.
type Level int

const (
	O0 Level = iota
	O1
	O2
	O3
)

// MaxFixpointIterations bounds a group's local fixpoint loop.
const MaxFixpointIterations = 10

// functionPassFactory builds a FunctionPass for one function. Most passes
// are stateless and reused across every function; GVN, LoadStoreOpt, and
// LICM need a fresh per-function alias.Analysis, so they get a factory instead
// of a shared instance.
type functionPassFactory func(fn *mir.Function) mirpasses.FunctionPass

func constFactory(p mirpasses.FunctionPass) functionPassFactory {
	return func(*mir.Function) mirpasses.FunctionPass { return p }
}

// group is an ordered list of function-level and module-level passes run
// together to a local fixpoint. Module passes run after every
// function pass in the group has run once across all functions — the
// errgroup barrier — since a module pass (inlining, devirt, dead-code)
// needs a globally consistent view of the IR.
type group struct {
	name           string
	functionPasses []functionPassFactory
	modulePasses   []mirpasses.ModulePass
	fixpoint       bool
}

// Result reports what one PassManager.Run call did.
type Result struct {
	Stats      []mirpasses.Stats
	Iterations map[string]int
}

// PassManager runs a level's pipeline over a module.
type PassManager struct {
	Level     Level
	Hierarchy *types.ClassHierarchy
	// Parallel enables concurrent per-function execution of
	// function-level passes within a group via errgroup. Defaults to true
	// through NewPassManager; tests that need deterministic single-
	// threaded stats ordering may disable it.
	Parallel bool
}

// NewPassManager returns a PassManager for level, with hierarchy used by
// O3's Devirtualization and DeadMethodElimination (may be nil at O0..O2,
// where neither pass runs).
func NewPassManager(level Level, hierarchy *types.ClassHierarchy) *PassManager {
	return &PassManager{Level: level, Hierarchy: hierarchy, Parallel: true}
}

// Run applies the configured level's pipeline to m in place, returning
// per-pass statistics in the order passes ran.
func (pm *PassManager) Run(m *mir.Module) Result {
	res := Result{Iterations: map[string]int{}}

	if pm.Level == O0 {
		return res
	}

	for _, g := range pm.buildPipeline(m) {
		iterations := pm.runGroup(m, g, &res)
		res.Iterations[g.name] = iterations
	}

	return res
}

func (pm *PassManager) runGroup(m *mir.Module, g group, res *Result) int {
	iterCap := 1
	if g.fixpoint {
		iterCap = MaxFixpointIterations
	}

	iter := 0

	for ; iter < iterCap; iter++ {
		changedThisIter := false

		for _, factory := range g.functionPasses {
			changed, stats := pm.runFunctionPass(m, factory)
			res.Stats = append(res.Stats, stats...)
			changedThisIter = changedThisIter || changed
		}

		for _, mp := range g.modulePasses {
			start := time.Now()
			changed, stats := mp.RunModule(m)
			stats.Elapsed = time.Since(start)
			res.Stats = append(res.Stats, stats)
			changedThisIter = changedThisIter || changed
		}

		if !changedThisIter {
			iter++

			break
		}
	}

	return iter
}

// runFunctionPass applies factory's pass to every function in m, in
// parallel when pm.Parallel is set. Each function owns disjoint state, so concurrent application is safe; the module's Functions slice
// itself is only read here, never resized — resizing is a module pass's
// job and happens after this returns.
func (pm *PassManager) runFunctionPass(m *mir.Module, factory functionPassFactory) (bool, []mirpasses.Stats) {
	if !pm.Parallel || len(m.Functions) <= 1 {
		changed := false

		var all []mirpasses.Stats

		for _, fn := range m.Functions {
			start := time.Now()
			c, s := factory(fn).RunFunction(fn)
			s.Elapsed = time.Since(start)
			changed = changed || c
			all = append(all, s)
		}

		return changed, all
	}

	var (
		mu      sync.Mutex
		changed bool
		all     []mirpasses.Stats
	)

	g := new(errgroup.Group)

	for _, fn := range m.Functions {
		fn := fn

		g.Go(func() error {
			start := time.Now()
			c, s := factory(fn).RunFunction(fn)
			s.Elapsed = time.Since(start)

			mu.Lock()
			changed = changed || c
			all = append(all, s)
			mu.Unlock()

			return nil
		})
	}

	_ = g.Wait() // every pass is pure-Go and error-free; Wait only joins

	return changed, all
}

func aliasFactory(build func(a *alias.Analysis) mirpasses.FunctionPass) functionPassFactory {
	return func(fn *mir.Function) mirpasses.FunctionPass {
		return build(alias.Analyze(fn))
	}
}
