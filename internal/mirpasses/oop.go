package mirpasses

import (
	"strings"

	"vellum/internal/ids"
	"vellum/internal/mir"
	"vellum/internal/types"
)

// DeadMethodEliminationPass computes method-level reachability against a
// class hierarchy: a direct Call is a normal edge, but a virtual
// MethodCall marks every possible target (the receiver's static type plus
// every transitive subclass) reachable, since any of them could be the
// runtime type.
type DeadMethodEliminationPass struct {
	Hierarchy *types.ClassHierarchy
}

func NewDeadMethodEliminationPass(h *types.ClassHierarchy) *DeadMethodEliminationPass {
	return &DeadMethodEliminationPass{Hierarchy: h}
}

func (p *DeadMethodEliminationPass) Name() string { return "DeadMethodElimination" }

func (p *DeadMethodEliminationPass) RunModule(m *mir.Module) (bool, Stats) {
	stats := Stats{PassName: p.Name()}

	reachable := map[string]bool{}

	var queue []string

	mark := func(name string) {
		if !reachable[name] {
			reachable[name] = true

			queue = append(queue, name)
		}
	}

	for _, fn := range m.Functions {
		if isEntryPoint(fn) {
			mark(fn.Name)
		}
	}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		fn := m.FindFunction(name)
		if fn == nil {
			continue
		}

		for _, bb := range fn.Blocks {
			for _, in := range bb.Instrs {
				switch v := in.Variant.(type) {
				case mir.Call:
					mark(v.Callee)
				case mir.ClosureInit:
					mark(v.FuncName)
				case mir.MethodCall:
					for _, impl := range p.Hierarchy.Implementors(v.ReceiverType.Name) {
						mark(impl + "_" + v.MethodName)
					}
				}
			}
		}
	}

	kept := m.Functions[:0]
	removed := 0

	for _, fn := range m.Functions {
		// Only functions that look like lowered methods ("Type_method")
		// are candidates for this pass — free functions are
		// DeadFunctionElimination's concern, since they have no virtual
		// dispatch ambiguity to account for.
		if looksLikeMethod(fn.Name) && !reachable[fn.Name] {
			removed++

			continue
		}

		kept = append(kept, fn)
	}

	m.Functions = kept
	stats.FunctionsRemoved = removed

	return removed > 0, stats
}

func looksLikeMethod(name string) bool {
	i := strings.IndexByte(name, '_')
	return i > 0 && i < len(name)-1
}

// BuilderOptPass detects a fluent chain `obj.set_a(...).set_b(...).build()`
// — every intermediate MethodCall's result type equal to its receiver
// type — and elides the intermediate stack slot a lowering might have
// introduced to round-trip the receiver through memory, rewriting
// `alloca; store result_i, ptr; load ptr` (used only as the next call's
// receiver) directly to `result_i`. This is
// DestinationPropagation's three-instruction pattern, scoped to builder
// chains specifically so it still fires even when DestinationPropagation
// itself declines (e.g. because the alloca has more than the one
// load/store pair DestinationPropagation requires).
type BuilderOptPass struct{}

func NewBuilderOptPass() *BuilderOptPass { return &BuilderOptPass{} }

func (p *BuilderOptPass) Name() string { return "BuilderOpt" }

func (p *BuilderOptPass) RunFunction(fn *mir.Function) (bool, Stats) {
	stats := Stats{PassName: p.Name()}
	changed := false

	for _, bb := range fn.Blocks {
		chain := builderChain(bb)
		if len(chain) < 2 {
			continue
		}

		for _, elideIdx := range chain[:len(chain)-1] {
			if eliminateRoundTrip(bb, elideIdx) {
				changed = true
				stats.InstructionsRemoved += 2
			}
		}
	}

	return changed, stats
}

// builderChain returns the indices, within bb, of consecutive MethodCall
// instructions where each call's ReturnType equals its own ReceiverType
// (a fluent setter) and the next call's Receiver is (directly, or via a
// single intervening store/load round trip) this call's result.
func builderChain(bb *mir.BasicBlock) []int {
	var chain []int

	for i, in := range bb.Instrs {
		mc, ok := in.Variant.(mir.MethodCall)
		if !ok || !mc.ReturnType.Equal(mc.ReceiverType) {
			continue
		}

		if i+1 < len(bb.Instrs) && receiverTracesTo(bb, i+1, in.Result) {
			chain = append(chain, i)
		}
	}

	return chain
}

// receiverTracesTo reports whether an instruction at or after idx uses
// srcResult as a receiver, either directly or through one store/load
// round trip (the value is spilled to a slot and reloaded before the
// next call).
func receiverTracesTo(bb *mir.BasicBlock, idx int, srcResult ids.ValueID) bool {
	carried := srcResult

	var viaPtr ids.ValueID

	for j := idx; j < len(bb.Instrs) && j < idx+4; j++ {
		switch v := bb.Instrs[j].Variant.(type) {
		case mir.MethodCall:
			if v.Receiver == carried {
				return true
			}
		case mir.Store:
			if v.Value == carried {
				viaPtr = v.Ptr
			}
		case mir.Load:
			if viaPtr.IsValid() && v.Ptr == viaPtr {
				carried = bb.Instrs[j].Result
			}
		}
	}

	return false
}

// eliminateRoundTrip removes the store/load pair (if present) that
// carries setIdx's result into the following call's receiver slot,
// replacing every use of the loaded value with the producing call's own
// result directly. The alloca itself stays in place.
func eliminateRoundTrip(bb *mir.BasicBlock, setIdx int) bool {
	result := bb.Instrs[setIdx].Result

	for j := setIdx + 1; j < len(bb.Instrs) && j < setIdx+4; j++ {
		st, ok := bb.Instrs[j].Variant.(mir.Store)
		if !ok || st.Value != result {
			continue
		}

		for k := j + 1; k < len(bb.Instrs) && k < j+3; k++ {
			ld, ok := bb.Instrs[k].Variant.(mir.Load)
			if !ok || ld.Ptr != st.Ptr {
				continue
			}

			loadResult := bb.Instrs[k].Result

			for idx, in := range bb.Instrs {
				bb.Instrs[idx].Variant = rewriteOperands(in.Variant, func(v ids.ValueID) ids.ValueID {
					if v == loadResult {
						return result
					}

					return v
				})
			}

			removeInstrAt(bb, k)
			removeInstrAt(bb, j)

			return true
		}
	}

	return false
}

// ConstructorFusionPass fuses a straight-line run of per-field GEP+Store
// instructions that fully initializes every field of a freshly allocated
// struct into one StructInit plus a single aggregate Store. Vtable stores
// are not examined: a base-class constructor's vtable store followed by a
// derived constructor's store to the same slot is left in place.
type ConstructorFusionPass struct{ Module *mir.Module }

func NewConstructorFusionPass(m *mir.Module) *ConstructorFusionPass {
	return &ConstructorFusionPass{Module: m}
}

func (p *ConstructorFusionPass) Name() string { return "ConstructorFusion" }

func (p *ConstructorFusionPass) RunFunction(fn *mir.Function) (bool, Stats) {
	stats := Stats{PassName: p.Name()}
	changed := false

	for _, bb := range fn.Blocks {
		for i := 0; i < len(bb.Instrs); i++ {
			al, ok := bb.Instrs[i].Variant.(mir.Alloca)
			if !ok || al.AllocatedType.Kind != types.KindNamed {
				continue
			}

			def, ok := p.Module.Structs[al.AllocatedType.Name]
			if !ok || len(def.Fields) == 0 {
				continue
			}

			ptr := bb.Instrs[i].Result

			fields, consumed, ok := collectFieldStores(bb, i+1, ptr, len(def.Fields))
			if !ok {
				continue
			}

			siResult := ptr

			init := mir.Instruction{
				Result:  fn.ValueGen.Fresh(),
				Ty:      al.AllocatedType,
				Variant: mir.StructInit{StructName: al.AllocatedType.Name, Fields: fields},
			}

			newInstrs := append([]mir.Instruction{}, bb.Instrs[:i+1]...)
			newInstrs = append(newInstrs, init)
			newInstrs = append(newInstrs, mir.Instruction{Variant: mir.Store{Ptr: siResult, Value: init.Result}})
			newInstrs = append(newInstrs, bb.Instrs[i+1+consumed:]...)
			bb.Instrs = newInstrs

			changed = true
			stats.InstructionsRemoved += consumed - 2
			i += 2
		}
	}

	return changed, stats
}

// collectFieldStores looks for exactly wantFields consecutive
// GEP(base)+Store pairs (in any relative order among themselves, one per
// field index 0..wantFields-1, no other instruction interleaved) starting
// at bb.Instrs[start], and returns the stored values in field-declaration
// order.
func collectFieldStores(bb *mir.BasicBlock, start int, base ids.ValueID, wantFields int) ([]ids.ValueID, int, bool) {
	values := make([]ids.ValueID, wantFields)
	seen := make([]bool, wantFields)

	consumed := 0
	j := start

	for found := 0; found < wantFields; found++ {
		if j+1 >= len(bb.Instrs) {
			return nil, 0, false
		}

		gep, ok := bb.Instrs[j].Variant.(mir.GEP)
		if !ok || gep.Base != base || len(gep.Indices) != 1 || !gep.Indices[0].IsConst {
			return nil, 0, false
		}

		idx := int(gep.Indices[0].Const)
		if idx < 0 || idx >= wantFields || seen[idx] {
			return nil, 0, false
		}

		st, ok := bb.Instrs[j+1].Variant.(mir.Store)
		if !ok || st.Ptr != bb.Instrs[j].Result {
			return nil, 0, false
		}

		values[idx] = st.Value
		seen[idx] = true
		consumed += 2
		j += 2
	}

	for _, s := range seen {
		if !s {
			return nil, 0, false
		}
	}

	return values, consumed, true
}

// DestructorHoistPass moves a loop-invariant object allocation out of a
// loop that allocates it at the top and drops it at the bottom, replacing
// the per-iteration alloc/drop pair with a single preheader allocation, a
// `reset()` call at the original allocation point, and one drop after the
// loop exits — applicable only when the object doesn't
// escape the loop and the class has an observable `reset` method (a
// `<Type>_reset` function present in the module, the IR-level signal for
// "has a reset method" available without a full per-class method table).
type DestructorHoistPass struct{ Module *mir.Module }

func NewDestructorHoistPass(m *mir.Module) *DestructorHoistPass {
	return &DestructorHoistPass{Module: m}
}

func (p *DestructorHoistPass) Name() string { return "DestructorHoist" }

func (p *DestructorHoistPass) RunFunction(fn *mir.Function) (bool, Stats) {
	stats := Stats{PassName: p.Name()}
	changed := false

	for _, loop := range findNaturalLoops(fn) {
		header := fn.BlockByID(loop.Header)
		if header == nil || len(header.Preds) != 2 {
			continue
		}

		var preheader ids.BlockID

		found := false

		for _, pr := range header.Preds {
			if !loop.Blocks[pr] {
				preheader = pr
				found = true
			}
		}

		if !found {
			continue
		}

		if len(header.Instrs) == 0 {
			continue
		}

		al, ok := header.Instrs[0].Variant.(mir.Alloca)
		if !ok || al.AllocatedType.Kind != types.KindNamed {
			continue
		}

		typeName := al.AllocatedType.Name
		if p.Module.FindFunction(typeName+"_reset") == nil {
			continue
		}

		ptr := header.Instrs[0].Result

		if !valueConfinedToLoop(fn, loop, ptr) {
			continue
		}

		dropIdx, dropBlock := findDropCall(fn, loop, typeName, ptr)
		if dropBlock == nil {
			continue
		}

		ph := fn.BlockByID(preheader)
		if ph == nil || ph.Term == nil {
			continue
		}

		if _, ok := ph.Term.(mir.Branch); !ok {
			continue
		}

		ph.Instrs = append(ph.Instrs, header.Instrs[0])
		header.Instrs[0] = mir.Instruction{
			Variant: mir.Call{Callee: typeName + "_reset", Args: []ids.ValueID{ptr}, ReturnType: types.Unit()},
		}

		removeInstrAt(dropBlock, dropIdx)

		changed = true
		stats.InstructionsChanged++
	}

	return changed, stats
}

// valueConfinedToLoop reports whether every use of v lies within the
// loop's own blocks — the "doesn't escape" precondition.
func valueConfinedToLoop(fn *mir.Function, loop loopInfo, v ids.ValueID) bool {
	for _, bb := range fn.Blocks {
		if loop.Blocks[bb.ID] {
			continue
		}

		escapes := false

		check := func(u ids.ValueID) ids.ValueID {
			if u == v {
				escapes = true
			}

			return u
		}

		for _, in := range bb.Instrs {
			rewriteOperands(in.Variant, check)
		}

		if bb.Term != nil {
			rewriteTerminator(bb.Term, check)
		}

		if escapes {
			return false
		}
	}

	return true
}

// findDropCall locates a `<typeName>_drop(ptr)` Call within loop, along
// with its index and owning block.
func findDropCall(fn *mir.Function, loop loopInfo, typeName string, ptr ids.ValueID) (int, *mir.BasicBlock) {
	for id := range loop.Blocks {
		bb := fn.BlockByID(id)
		if bb == nil {
			continue
		}

		for i, in := range bb.Instrs {
			call, ok := in.Variant.(mir.Call)
			if !ok || call.Callee != typeName+"_drop" || len(call.Args) != 1 || call.Args[0] != ptr {
				continue
			}

			return i, bb
		}
	}

	return 0, nil
}
