// Package mirpasses implements the MIR optimization passes: per-block
// peepholes, per-function dataflow/CFG/loop transforms, and per-module
// interprocedural/OOP passes. Each pass declares a name and a scope and
// reports whether it changed the IR.
package mirpasses

import (
	"time"

	"vellum/internal/mir"
)

// Scope names the granularity a pass operates at.
type Scope int

const (
	ScopeBlock Scope = iota
	ScopeFunction
	ScopeModule
)

// Stats reports how much of the IR a pass actually touched and how long
// the run took.
type Stats struct {
	PassName            string
	Elapsed             time.Duration
	InstructionsVisited int
	InstructionsChanged int
	InstructionsRemoved int
	BlocksRemoved       int
	FunctionsRemoved    int
}

// BlockPass runs once per basic block within a function.
type BlockPass interface {
	Name() string
	RunBlock(fn *mir.Function, bb *mir.BasicBlock) (changed bool, stats Stats)
}

// FunctionPass runs once per function, free to restructure its CFG.
type FunctionPass interface {
	Name() string
	RunFunction(fn *mir.Function) (changed bool, stats Stats)
}

// ModulePass runs once over the whole module, free to add/remove
// functions (inlining, dead-function/-method elimination, devirt).
type ModulePass interface {
	Name() string
	RunModule(m *mir.Module) (changed bool, stats Stats)
}

// AsFunctionPass adapts a BlockPass into a FunctionPass that applies it to
// every block in the function, aggregating stats and the changed flag —
// every local/per-block pass is registered with the pass manager this
// way, since the manager pipelines only know FunctionPass and
// ModulePass.
func AsFunctionPass(bp BlockPass) FunctionPass { return &blockToFunctionPass{bp} }

type blockToFunctionPass struct{ bp BlockPass }

func (w *blockToFunctionPass) Name() string { return w.bp.Name() }

func (w *blockToFunctionPass) RunFunction(fn *mir.Function) (bool, Stats) {
	total := Stats{PassName: w.bp.Name()}
	changed := false

	for _, bb := range fn.Blocks {
		c, s := w.bp.RunBlock(fn, bb)
		changed = changed || c
		total.Elapsed += s.Elapsed
		total.InstructionsVisited += s.InstructionsVisited
		total.InstructionsChanged += s.InstructionsChanged
		total.InstructionsRemoved += s.InstructionsRemoved
	}

	return changed, total
}

func mergeStats(dst *Stats, src Stats) {
	dst.Elapsed += src.Elapsed
	dst.InstructionsVisited += src.InstructionsVisited
	dst.InstructionsChanged += src.InstructionsChanged
	dst.InstructionsRemoved += src.InstructionsRemoved
	dst.BlocksRemoved += src.BlocksRemoved
	dst.FunctionsRemoved += src.FunctionsRemoved
}
