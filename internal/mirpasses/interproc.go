package mirpasses

import (
	"vellum/internal/ids"
	"vellum/internal/mir"
)

// callGraph maps a function name to the set of function names it calls
// directly (mir.Call) or takes the address of (mir.ClosureInit) — the
// latter counts as a use because DeadFunctionElimination and
// DeadArgumentElimination both need to treat "someone took my address"
// the same as "someone calls me directly": either makes the call sites
// no longer exhaustively enumerable. MethodCall is deliberately excluded:
// its callee is resolved by receiver type, not by name, so it cannot
// contribute a direct edge here (DeadMethodElimination, not this pass,
// reasons about virtual dispatch reachability).
func callGraph(m *mir.Module) map[string]map[string]bool {
	graph := make(map[string]map[string]bool, len(m.Functions))

	for _, fn := range m.Functions {
		callees := map[string]bool{}

		for _, bb := range fn.Blocks {
			for _, in := range bb.Instrs {
				switch v := in.Variant.(type) {
				case mir.Call:
					callees[v.Callee] = true
				case mir.ClosureInit:
					callees[v.FuncName] = true
				}
			}
		}

		graph[fn.Name] = callees
	}

	return graph
}

// isEntryPoint reports whether fn is a root of the reachability graph
// : main, or tagged test/bench/fuzz/
// export/inline. "inline" is included because an inlined-everywhere
// function may still need a standalone definition for indirect callers
// the module can't see (function pointers handed to out-of-module code).
func isEntryPoint(fn *mir.Function) bool {
	if fn.Name == "main" {
		return true
	}

	return fn.HasAttr(mir.AttrTest) || fn.HasAttr(mir.AttrBench) ||
		fn.HasAttr(mir.AttrFuzz) || fn.HasAttr(mir.AttrExport) ||
		fn.HasAttr(mir.AttrInline)
}

// DeadFunctionEliminationPass deletes functions unreachable from any
// entry point.
type DeadFunctionEliminationPass struct{}

func NewDeadFunctionEliminationPass() *DeadFunctionEliminationPass {
	return &DeadFunctionEliminationPass{}
}

func (p *DeadFunctionEliminationPass) Name() string { return "DeadFunctionElimination" }

func (p *DeadFunctionEliminationPass) RunModule(m *mir.Module) (bool, Stats) {
	stats := Stats{PassName: p.Name()}
	graph := callGraph(m)

	reachable := map[string]bool{}

	var queue []string

	for _, fn := range m.Functions {
		if isEntryPoint(fn) {
			if !reachable[fn.Name] {
				reachable[fn.Name] = true

				queue = append(queue, fn.Name)
			}
		}
	}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		for callee := range graph[name] {
			if !reachable[callee] {
				reachable[callee] = true

				queue = append(queue, callee)
			}
		}
	}

	kept := m.Functions[:0]
	removed := 0

	for _, fn := range m.Functions {
		if reachable[fn.Name] {
			kept = append(kept, fn)
		} else {
			removed++
		}
	}

	m.Functions = kept
	stats.FunctionsRemoved = removed

	return removed > 0, stats
}

// DeadArgumentEliminationPass drops unreferenced parameters from internal
// functions and rewrites every call site. Only applied when
// every call site is statically visible — a function whose address is
// taken (appears as a ClosureInit callee) is skipped, since a caller
// outside the module's visible call sites may rely on the full signature.
type DeadArgumentEliminationPass struct{}

func NewDeadArgumentEliminationPass() *DeadArgumentEliminationPass {
	return &DeadArgumentEliminationPass{}
}

func (p *DeadArgumentEliminationPass) Name() string { return "DeadArgumentElimination" }

func (p *DeadArgumentEliminationPass) RunModule(m *mir.Module) (bool, Stats) {
	stats := Stats{PassName: p.Name()}
	changed := false

	addressTaken := map[string]bool{}

	for _, fn := range m.Functions {
		for _, bb := range fn.Blocks {
			for _, in := range bb.Instrs {
				if ci, ok := in.Variant.(mir.ClosureInit); ok {
					addressTaken[ci.FuncName] = true
				}
			}
		}
	}

	for _, fn := range m.Functions {
		if fn.Name == "main" || fn.HasAttr(mir.AttrExport) || fn.HasAttr(mir.AttrExtern) ||
			fn.HasAttr(mir.AttrTest) || fn.HasAttr(mir.AttrBench) || fn.HasAttr(mir.AttrFuzz) ||
			addressTaken[fn.Name] {
			continue
		}

		dead := deadParamIndices(fn)
		if len(dead) == 0 {
			continue
		}

		removeParams(fn, dead)

		for _, caller := range m.Functions {
			for _, bb := range caller.Blocks {
				for i, in := range bb.Instrs {
					call, ok := in.Variant.(mir.Call)
					if !ok || call.Callee != fn.Name {
						continue
					}

					call.Args = removeIndices(call.Args, dead)
					bb.Instrs[i].Variant = call
				}
			}
		}

		changed = true
		stats.InstructionsChanged += len(dead)
	}

	return changed, stats
}

// deadParamIndices returns the indices of fn's parameters that are never
// referenced by any instruction or terminator in fn's body.
func deadParamIndices(fn *mir.Function) []int {
	paramIndex := map[ids.ValueID]int{}
	for i, p := range fn.Params {
		paramIndex[p.ID] = i
	}

	used := map[int]bool{}

	mark := func(v ids.ValueID) ids.ValueID {
		if idx, ok := paramIndex[v]; ok {
			used[idx] = true
		}

		return v
	}

	for _, bb := range fn.Blocks {
		for _, in := range bb.Instrs {
			rewriteOperands(in.Variant, mark)
		}

		if bb.Term != nil {
			rewriteTerminator(bb.Term, mark)
		}
	}

	var dead []int

	for i := range fn.Params {
		if !used[i] {
			dead = append(dead, i)
		}
	}

	return dead
}

func removeParams(fn *mir.Function, dead []int) {
	skip := map[int]bool{}
	for _, i := range dead {
		skip[i] = true
	}

	kept := fn.Params[:0]

	for i, p := range fn.Params {
		if !skip[i] {
			kept = append(kept, p)
		}
	}

	fn.Params = kept
}

func removeIndices[T any](xs []T, dead []int) []T {
	skip := map[int]bool{}
	for _, i := range dead {
		skip[i] = true
	}

	out := xs[:0]

	for i, x := range xs {
		if !skip[i] {
			out = append(out, x)
		}
	}

	return out
}
