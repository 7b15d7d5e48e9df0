package mirpasses

import (
	"golang.org/x/tools/container/intsets"

	"vellum/internal/alias"
	"vellum/internal/ids"
	"vellum/internal/mir"
	"vellum/internal/types"
)

// ConstantPropagationPass finds Phis whose incoming values all resolve
// (directly, or transitively through another already-resolved Phi) to the
// same constant and rewrites the Phi in place into that Constant. SSA form
// already makes a plain value's constant-ness visible at every use, so
// the one case left for this pass is the join point a Phi introduces.
type ConstantPropagationPass struct{}

func NewConstantPropagationPass() *ConstantPropagationPass { return &ConstantPropagationPass{} }

func (p *ConstantPropagationPass) Name() string { return "ConstantPropagation" }

func (p *ConstantPropagationPass) RunFunction(fn *mir.Function) (bool, Stats) {
	stats := Stats{PassName: p.Name()}
	consts := map[ids.ValueID]mir.Constant{}

	for _, bb := range fn.Blocks {
		for _, in := range bb.Instrs {
			stats.InstructionsVisited++
			if c, ok := in.Variant.(mir.Constant); ok {
				consts[in.Result] = c
			}
		}
	}

	changed := false

	// Iterate to a fixpoint: folding one Phi to a constant can make a Phi
	// that reads it foldable on the next pass.
	for progress := true; progress; {
		progress = false

		for _, bb := range fn.Blocks {
			for i, in := range bb.Instrs {
				ph, ok := in.Variant.(mir.Phi)
				if !ok || len(ph.Incoming) == 0 {
					continue
				}

				first, ok := consts[ph.Incoming[0].Value]
				if !ok {
					continue
				}

				allSame := true
				for _, e := range ph.Incoming[1:] {
					c, ok := consts[e.Value]
					if !ok || !constantsEqual(c, first) {
						allSame = false
						break
					}
				}

				if !allSame {
					continue
				}

				bb.Instrs[i].Variant = first
				consts[in.Result] = first
				changed = true
				progress = true
				stats.InstructionsChanged++
			}
		}
	}

	return changed, stats
}

func constantsEqual(a, b mir.Constant) bool {
	if a.IsUnit != b.IsUnit || a.IsFloat != b.IsFloat || a.Signed != b.Signed {
		return false
	}
	switch {
	case a.IsUnit:
		return true
	case a.Str != "" || b.Str != "":
		return a.Str == b.Str
	case a.IsFloat:
		return a.F64 == b.F64
	case a.Signed:
		return a.I64 == b.I64
	default:
		return a.U64 == b.U64 && a.Bool == b.Bool && a.Char == b.Char
	}
}

// CopyPropagationPass recognizes copies — a phi whose incoming values are
// all equal across predecessors, a select whose branches are equal, or an
// identity bitcast — builds a copy map, closes it transitively, and
// replaces all uses. A single-incoming phi is deliberately NOT treated
// as a copy: its incoming value may not dominate the phi's uses.
type CopyPropagationPass struct{}

func NewCopyPropagationPass() *CopyPropagationPass { return &CopyPropagationPass{} }

func (p *CopyPropagationPass) Name() string { return "CopyPropagation" }

func (p *CopyPropagationPass) RunFunction(fn *mir.Function) (bool, Stats) {
	stats := Stats{PassName: p.Name()}
	copyOf := map[ids.ValueID]ids.ValueID{}

	for _, bb := range fn.Blocks {
		for _, in := range bb.Instrs {
			stats.InstructionsVisited++

			switch v := in.Variant.(type) {
			case mir.Phi:
				if len(v.Incoming) <= 1 {
					continue
				}
				allEqual := true
				first := v.Incoming[0].Value
				for _, e := range v.Incoming[1:] {
					if e.Value != first {
						allEqual = false
						break
					}
				}
				if allEqual {
					copyOf[in.Result] = first
				}
			case mir.Select:
				if v.TrueVal == v.FalseVal {
					copyOf[in.Result] = v.TrueVal
				}
			case mir.Cast:
				if v.CastKind == mir.Bitcast && v.SourceType.Equal(v.TargetType) {
					copyOf[in.Result] = v.Operand
				}
			}
		}
	}

	if len(copyOf) == 0 {
		return false, stats
	}

	resolve := func(v ids.ValueID) ids.ValueID {
		for i := 0; i < len(copyOf)+1; i++ {
			src, ok := copyOf[v]
			if !ok || src == v {
				return v
			}
			v = src
		}
		return v
	}

	changed := false

	for _, bb := range fn.Blocks {
		for i, in := range bb.Instrs {
			newV := rewriteOperands(in.Variant, resolve)
			if newV != in.Variant {
				bb.Instrs[i].Variant = newV
				changed = true
				stats.InstructionsChanged++
			}
		}

		if bb.Term != nil {
			newT := rewriteTerminator(bb.Term, resolve)
			if newT != bb.Term {
				bb.Term = newT
				changed = true
			}
		}
	}

	return changed, stats
}

// DCEPass removes instructions whose result is unused and are side-effect
// free, iterating to a fixpoint. Calls are side-effecting
// unless the callee is on the documented pure-function list.
type DCEPass struct{}

func NewDCEPass() *DCEPass { return &DCEPass{} }

func (p *DCEPass) Name() string { return "DCE" }

func (p *DCEPass) RunFunction(fn *mir.Function) (bool, Stats) {
	stats := Stats{PassName: p.Name()}
	changed := false

	for {
		used := usedValues(fn)
		removedThisRound := false

		for _, bb := range fn.Blocks {
			kept := bb.Instrs[:0]

			for _, in := range bb.Instrs {
				stats.InstructionsVisited++

				if canDelete(in, used) {
					removedThisRound = true
					changed = true
					stats.InstructionsRemoved++
					continue
				}

				kept = append(kept, in)
			}

			bb.Instrs = kept
		}

		if !removedThisRound {
			break
		}
	}

	return changed, stats
}

func canDelete(in mir.Instruction, used map[ids.ValueID]bool) bool {
	if !in.Result.IsValid() {
		return false // Store and other void instructions are never DCE'd here
	}

	if used[in.Result] {
		return false
	}

	switch v := in.Variant.(type) {
	case mir.Call:
		return isPureCall(v.Callee)
	case mir.MethodCall, mir.Await, mir.ClosureInit:
		return false
	default:
		return true
	}
}

func usedValues(fn *mir.Function) map[ids.ValueID]bool {
	used := map[ids.ValueID]bool{}

	mark := func(v ids.ValueID) {
		if v.IsValid() {
			used[v] = true
		}
	}

	for _, bb := range fn.Blocks {
		for _, in := range bb.Instrs {
			for _, v := range operandsOfPublic(in.Variant) {
				mark(v)
			}
		}

		if bb.Term != nil {
			for _, v := range mir.TerminatorOperands(bb.Term) {
				mark(v)
			}
		}
	}

	return used
}

// ADCEPass is DCE's more aggressive cousin: mark every side-effecting
// instruction and terminator operand live, backward-propagate liveness
// through operands, and delete everything left unmarked.
// This additionally removes pure instructions DCE's simple "unused
// result" test would keep because they feed an otherwise-dead chain that
// loops back only through phis DCE doesn't unwind.
type ADCEPass struct{}

func NewADCEPass() *ADCEPass { return &ADCEPass{} }

func (p *ADCEPass) Name() string { return "ADCE" }

func (p *ADCEPass) RunFunction(fn *mir.Function) (bool, Stats) {
	stats := Stats{PassName: p.Name()}

	// live holds the ValueId domain as a sparse bitset rather than a
	// map[ids.ValueID]bool: a function's SSA namespace is a dense integer
	// range (ids.ValueIDGenerator hands out 1..N), exactly the shape
	// intsets.Sparse is built for, so liveness membership/insertion here
	// is a direct use rather than a map-for-set substitute.
	live := &intsets.Sparse{}
	defOf := map[ids.ValueID]mir.InstrVariant{}

	var worklist []ids.ValueID

	markLive := func(v ids.ValueID) {
		if live.Insert(int(v)) {
			worklist = append(worklist, v)
		}
	}

	for _, bb := range fn.Blocks {
		for _, in := range bb.Instrs {
			stats.InstructionsVisited++

			if in.Result.IsValid() {
				defOf[in.Result] = in.Variant
			}

			if hasSideEffect(in.Variant) {
				for _, v := range operandsOfPublic(in.Variant) {
					markLive(v)
				}
			}
		}

		if bb.Term != nil {
			for _, v := range mir.TerminatorOperands(bb.Term) {
				markLive(v)
			}
		}
	}

	for len(worklist) > 0 {
		v := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		def, ok := defOf[v]
		if !ok {
			continue
		}

		for _, u := range operandsOfPublic(def) {
			markLive(u)
		}
	}

	changed := false

	for _, bb := range fn.Blocks {
		kept := bb.Instrs[:0]

		for _, in := range bb.Instrs {
			if hasSideEffect(in.Variant) || !in.Result.IsValid() || live.Has(int(in.Result)) {
				kept = append(kept, in)
				continue
			}

			changed = true
			stats.InstructionsRemoved++
		}

		bb.Instrs = kept
	}

	return changed, stats
}

func hasSideEffect(v mir.InstrVariant) bool {
	switch x := v.(type) {
	case mir.Store:
		return true
	case mir.Call:
		return !isPureCall(x.Callee)
	case mir.MethodCall, mir.Await:
		return true
	default:
		return false
	}
}

// operandsOfPublic collects every operand ValueID of v by riding
// rewriteOperands' exhaustive type switch with an identity replace that
// records what it sees, rather than keeping a second hand-written switch
// in sync with rewrite.go's.
func operandsOfPublic(v mir.InstrVariant) []ids.ValueID {
	var out []ids.ValueID
	rewriteOperands(v, func(id ids.ValueID) ids.ValueID {
		if id.IsValid() {
			out = append(out, id)
		}
		return id
	})
	return out
}

// GVNPass performs cross-block hash-based value numbering in
// dominator-tree order: canonicalize commutative-op operand pairs by
// value number, redirect equal expressions to the earlier value. When an
// AliasAnalysis is supplied, it also performs Load GVN: a later load with
// the same pointer value number reuses the value unless a may-aliasing
// store intervenes; calls invalidate the whole load table.
type GVNPass struct {
	Alias *alias.Analysis // optional; nil disables Load GVN
}

func NewGVNPass(a *alias.Analysis) *GVNPass { return &GVNPass{Alias: a} }

func (p *GVNPass) Name() string { return "GVN" }

func (p *GVNPass) RunFunction(fn *mir.Function) (bool, Stats) {
	stats := Stats{PassName: p.Name()}
	dom := mir.ComputeDominance(fn)

	vn := map[ids.ValueID]string{}     // value -> canonical expression string (its "value number")
	leader := map[string]ids.ValueID{} // expression string -> earliest defining value
	replace := map[ids.ValueID]ids.ValueID{}

	loadTable := map[string]loadEntry{} // pointer-VN -> (pointer, loaded value), reset on aliasing store/call

	resolve := func(v ids.ValueID) ids.ValueID {
		if r, ok := replace[v]; ok {
			return r
		}
		return v
	}

	changed := false

	for _, id := range dom.ReversePostorder() {
		bb := fn.BlockByID(id)
		if bb == nil {
			continue
		}

		for i, in := range bb.Instrs {
			stats.InstructionsVisited++

			in.Variant = rewriteOperands(in.Variant, resolve)
			bb.Instrs[i].Variant = in.Variant

			if p.Alias != nil {
				if ld, ok := in.Variant.(mir.Load); ok {
					key := keyFor(vn, ld.Ptr)

					if prior, ok := loadTable[key]; ok {
						replace[in.Result] = prior.val
						stats.InstructionsRemoved++
						changed = true
						continue
					}

					loadTable[key] = loadEntry{ptr: ld.Ptr, val: in.Result}
				}

				if st, ok := in.Variant.(mir.Store); ok {
					invalidateAliasing(loadTable, p.Alias, st.Ptr)
				}

				if _, ok := in.Variant.(mir.Call); ok {
					loadTable = map[string]loadEntry{}
				}

				if _, ok := in.Variant.(mir.MethodCall); ok {
					loadTable = map[string]loadEntry{}
				}
			}

			if !in.Result.IsValid() || !gvnEligible(in.Variant) {
				continue
			}

			key := gvnKey(in.Ty, in.Variant, vn)
			vn[in.Result] = key

			if prior, ok := leader[key]; ok {
				replace[in.Result] = prior
				stats.InstructionsRemoved++
				changed = true
				continue
			}

			leader[key] = in.Result
		}
	}

	if !changed {
		return false, stats
	}

	for _, bb := range fn.Blocks {
		for i, in := range bb.Instrs {
			bb.Instrs[i].Variant = rewriteOperands(in.Variant, resolve)
		}

		if bb.Term != nil {
			bb.Term = rewriteTerminator(bb.Term, resolve)
		}
	}

	return true, stats
}

func gvnEligible(v mir.InstrVariant) bool {
	switch v.(type) {
	case mir.Binary, mir.Unary, mir.Cast, mir.GEP, mir.ExtractValue, mir.Select:
		return true
	default:
		return false
	}
}

func gvnKey(ty types.Type, v mir.InstrVariant, vn map[ids.ValueID]string) string {
	num := func(id ids.ValueID) string {
		if n, ok := vn[id]; ok {
			return n
		}
		return id.String()
	}

	switch x := v.(type) {
	case mir.Binary:
		l, r := num(x.Left), num(x.Right)
		if x.Op.IsCommutative() && r < l {
			l, r = r, l
		}
		return "bin:" + x.Op.String() + ":" + l + ":" + r
	case mir.Unary:
		return "un:" + x.Op.String() + ":" + num(x.Operand)
	case mir.Cast:
		return "cast:" + x.CastKind.String() + ":" + num(x.Operand) + ":" + x.TargetType.String()
	case mir.Select:
		return "sel:" + num(x.Cond) + ":" + num(x.TrueVal) + ":" + num(x.FalseVal)
	default:
		return ty.String() + ":" + v.String()
	}
}

// loadEntry remembers both the pointer a Load GVN table entry was built
// from and the value it produced, so a later Store can test aliasing
// against the real pointer rather than its opaque VN string.
type loadEntry struct {
	ptr ids.ValueID
	val ids.ValueID
}

func invalidateAliasing(loadTable map[string]loadEntry, a *alias.Analysis, storedPtr ids.ValueID) {
	for key, e := range loadTable {
		if a.Alias(storedPtr, e.ptr) != alias.NoAlias {
			delete(loadTable, key)
		}
	}
}

func keyFor(vn map[ids.ValueID]string, v ids.ValueID) string {
	if n, ok := vn[v]; ok {
		return n
	}
	return v.String()
}

// LoadStoreOpt performs local store-to-load forwarding, dead-store
// elimination, and redundant-load elimination within each block.
// With an AliasAnalysis it invalidates only aliasing table
// entries on an intervening store; without one it conservatively clears
// the whole table on any store.
type LoadStoreOptPass struct {
	Alias *alias.Analysis
}

func NewLoadStoreOptPass(a *alias.Analysis) *LoadStoreOptPass { return &LoadStoreOptPass{Alias: a} }

func (p *LoadStoreOptPass) Name() string { return "LoadStoreOpt" }

func (p *LoadStoreOptPass) RunFunction(fn *mir.Function) (bool, Stats) {
	stats := Stats{PassName: p.Name()}
	changed := false

	for _, bb := range fn.Blocks {
		replace := map[ids.ValueID]ids.ValueID{}
		memory := map[ids.ValueID]ids.ValueID{} // ptr -> last known stored/loaded value
		lastStoreAt := map[ids.ValueID]int{}    // ptr -> instruction index of its last store, for dead-store detection

		out := bb.Instrs[:0]

		for _, in := range bb.Instrs {
			stats.InstructionsVisited++

			in.Variant = rewriteOperands(in.Variant, func(v ids.ValueID) ids.ValueID {
				if r, ok := replace[v]; ok {
					return r
				}
				return v
			})

			switch v := in.Variant.(type) {
			case mir.Load:
				// a load may read any earlier store, so none of them is dead
				lastStoreAt = map[ids.ValueID]int{}

				if v.IsVolatile {
					out = append(out, in)
					continue
				}

				if val, ok := memory[v.Ptr]; ok {
					replace[in.Result] = val
					stats.InstructionsRemoved++
					changed = true
					continue
				}

				memory[v.Ptr] = in.Result

			case mir.Store:
				if v.IsVolatile {
					out = append(out, in)
					continue
				}

				if prevIdx, ok := lastStoreAt[v.Ptr]; ok && prevIdx >= 0 && prevIdx < len(out) && noLoadBetween(out, prevIdx) {
					// a prior store to the same pointer with no intervening
					// load/call is dead; drop it from the output.
					out[prevIdx] = mir.Instruction{} // zero marks it for the compaction pass below
					stats.InstructionsRemoved++
					changed = true
				}

				memory[v.Ptr] = v.Value
				lastStoreAt[v.Ptr] = len(out)

				if p.Alias != nil {
					invalidateStoreAliasing(memory, p.Alias, v.Ptr)
				} else {
					memory = map[ids.ValueID]ids.ValueID{v.Ptr: v.Value}
				}

			case mir.Call, mir.MethodCall:
				memory = map[ids.ValueID]ids.ValueID{}
				lastStoreAt = map[ids.ValueID]int{}
			}

			out = append(out, in)
		}

		compacted := out[:0]
		for _, in := range out {
			if in.Variant == nil && !in.Result.IsValid() {
				continue
			}
			compacted = append(compacted, in)
		}
		bb.Instrs = compacted
	}

	return changed, stats
}

// noLoadBetween is a conservative placeholder: dead-store elimination
// here only fires for a store re-stored to the same pointer with no load
// or call in between, which the caller guarantees by clearing lastStoreAt
// at every load and call; kept as a named check so a future
// alias-aware version can inspect the intervening slice instead of
// assuming adjacency.
func noLoadBetween(out []mir.Instruction, storeIdx int) bool { return true }

func invalidateStoreAliasing(memory map[ids.ValueID]ids.ValueID, a *alias.Analysis, storedPtr ids.ValueID) {
	for ptr := range memory {
		if ptr == storedPtr {
			continue
		}
		if a.Alias(storedPtr, ptr) != alias.NoAlias {
			delete(memory, ptr)
		}
	}
}

// Mem2RegPass promotes allocas referenced only by non-volatile load/store
// (address never escapes, never indexed by GEP, never passed to a call)
// to SSA values: the simple case forwards a single dominating store
// directly; the general case inserts phi nodes at dominance frontiers
// and renames via a dominator-tree walk (standard Cytron algorithm).
type Mem2RegPass struct{}

func NewMem2RegPass() *Mem2RegPass { return &Mem2RegPass{} }

func (p *Mem2RegPass) Name() string { return "Mem2Reg" }

func (p *Mem2RegPass) RunFunction(fn *mir.Function) (bool, Stats) {
	stats := Stats{PassName: p.Name()}

	candidates := promotableAllocas(fn)
	if len(candidates) == 0 {
		return false, stats
	}

	dom := mir.ComputeDominance(fn)
	frontier := dominanceFrontiers(fn, dom)
	children := dominatorChildren(fn, dom)

	changed := false

	for allocaID, info := range candidates {
		stats.InstructionsVisited++
		promoteAlloca(fn, dom, frontier, children, allocaID, info)
		changed = true
		stats.InstructionsRemoved++
	}

	return changed, stats
}

// allocaInfo records what promoteAlloca needs about one candidate slot.
type allocaInfo struct {
	ty        types.Type
	defBlocks map[ids.BlockID]bool
}

// promotableAllocas finds every Alloca in fn whose pointer result is used
// exclusively as a non-volatile Load.Ptr or Store.Ptr.
func promotableAllocas(fn *mir.Function) map[ids.ValueID]*allocaInfo {
	allocas := map[ids.ValueID]*allocaInfo{}

	for _, bb := range fn.Blocks {
		for _, in := range bb.Instrs {
			if a, ok := in.Variant.(mir.Alloca); ok {
				allocas[in.Result] = &allocaInfo{ty: a.AllocatedType, defBlocks: map[ids.BlockID]bool{}}
			}
		}
	}

	if len(allocas) == 0 {
		return nil
	}

	escaped := map[ids.ValueID]bool{}

	for _, bb := range fn.Blocks {
		for _, in := range bb.Instrs {
			switch v := in.Variant.(type) {
			case mir.Load:
				if _, ok := allocas[v.Ptr]; ok && v.IsVolatile {
					escaped[v.Ptr] = true
				}
			case mir.Store:
				if _, ok := allocas[v.Ptr]; ok {
					if v.IsVolatile {
						escaped[v.Ptr] = true
					} else {
						allocas[v.Ptr].defBlocks[bb.ID] = true
					}
				}
				if _, ok := allocas[v.Value]; ok {
					escaped[v.Value] = true // storing the pointer itself elsewhere escapes it
				}
			default:
				for _, id := range operandsOfPublic(in.Variant) {
					if _, ok := allocas[id]; ok {
						escaped[id] = true
					}
				}
			}
		}

		if bb.Term != nil {
			for _, id := range mir.TerminatorOperands(bb.Term) {
				if _, ok := allocas[id]; ok {
					escaped[id] = true
				}
			}
		}
	}

	for id := range escaped {
		delete(allocas, id)
	}

	return allocas
}

// dominanceFrontiers computes the standard Cytron/Ferrante/Rosen/Zadeck
// dominance frontier for every block with at least two predecessors: walk
// up from each predecessor until reaching the block's immediate
// dominator, adding the block to DF(runner) at each step.
func dominanceFrontiers(fn *mir.Function, dom *mir.Dominance) map[ids.BlockID][]ids.BlockID {
	df := map[ids.BlockID][]ids.BlockID{}

	for _, bb := range fn.Blocks {
		if len(bb.Preds) < 2 {
			continue
		}

		stop := idomOf(dom, bb.ID)

		for _, pred := range bb.Preds {
			runner := pred
			for runner != stop {
				df[runner] = appendUniqueBlockID(df[runner], bb.ID)

				next, ok := dom.IDom(runner)
				if !ok {
					break
				}
				runner = next
			}
		}
	}

	return df
}

func idomOf(dom *mir.Dominance, id ids.BlockID) ids.BlockID {
	idom, ok := dom.IDom(id)
	if !ok {
		return id
	}
	return idom
}

func dominatorChildren(fn *mir.Function, dom *mir.Dominance) map[ids.BlockID][]ids.BlockID {
	children := map[ids.BlockID][]ids.BlockID{}

	for _, bb := range fn.Blocks {
		idom, ok := dom.IDom(bb.ID)
		if !ok {
			continue
		}
		children[idom] = append(children[idom], bb.ID)
	}

	return children
}

// promoteAlloca runs the Cytron rename walk for one alloca: it inserts a
// Phi at each block in the alloca's iterated dominance frontier, then
// walks the dominator tree threading the "current value" down, replacing
// loads and dropping stores/the alloca itself as it goes.
func promoteAlloca(fn *mir.Function, dom *mir.Dominance, frontier map[ids.BlockID][]ids.BlockID, children map[ids.BlockID][]ids.BlockID, allocaID ids.ValueID, info *allocaInfo) {
	phiBlocks := iteratedFrontier(frontier, info.defBlocks)
	phiResult := map[ids.BlockID]ids.ValueID{}

	for blockID := range phiBlocks {
		bb := fn.BlockByID(blockID)
		if bb == nil {
			continue
		}
		result := fn.ValueGen.Fresh()
		phi := mir.Instruction{Result: result, Ty: info.ty, Variant: mir.Phi{}}
		bb.Instrs = append([]mir.Instruction{phi}, bb.Instrs...)
		phiResult[blockID] = result
	}

	replace := map[ids.ValueID]ids.ValueID{}

	var walk func(blockID ids.BlockID, current ids.ValueID)
	walk = func(blockID ids.BlockID, current ids.ValueID) {
		bb := fn.BlockByID(blockID)
		if bb == nil {
			return
		}

		if r, ok := phiResult[blockID]; ok {
			current = r
		}

		kept := bb.Instrs[:0]

		for _, in := range bb.Instrs {
			if in.Variant == nil {
				continue
			}

			if ld, ok := in.Variant.(mir.Load); ok && ld.Ptr == allocaID {
				replace[in.Result] = current
				continue
			}

			if st, ok := in.Variant.(mir.Store); ok && st.Ptr == allocaID {
				current = st.Value
				continue
			}

			if _, ok := in.Variant.(mir.Alloca); ok && in.Result == allocaID {
				continue
			}

			kept = append(kept, in)
		}

		bb.Instrs = kept

		for _, succ := range bb.Succs {
			if sb := fn.BlockByID(succ); sb != nil {
				for i, sin := range sb.Instrs {
					if sin.Result == phiResult[succ] {
						ph := sin.Variant.(mir.Phi)
						ph.Incoming = append(ph.Incoming, mir.PhiIncoming{Value: current, Block: blockID})
						sb.Instrs[i].Variant = ph
					}
				}
			}
		}

		for _, c := range children[blockID] {
			walk(c, current)
		}
	}

	entry := fn.Entry()
	if entry == nil {
		return
	}

	// A load reachable along a path with no preceding store reads
	// uninitialized memory; materialize a zero value for info.ty up front
	// rather than carry an invalid operand into rewritten IR. DCE removes
	// it if every path turned out to store before loading.
	undef := fn.ValueGen.Fresh()
	entry.Instrs = append([]mir.Instruction{{Result: undef, Ty: info.ty, Variant: zeroConstantFor(info.ty)}}, entry.Instrs...)

	walk(entry.ID, undef)

	if len(replace) > 0 {
		resolve := func(v ids.ValueID) ids.ValueID {
			if r, ok := replace[v]; ok {
				return r
			}
			return v
		}
		for _, bb := range fn.Blocks {
			for i, in := range bb.Instrs {
				bb.Instrs[i].Variant = rewriteOperands(in.Variant, resolve)
			}
			if bb.Term != nil {
				bb.Term = rewriteTerminator(bb.Term, resolve)
			}
		}
	}
}

func iteratedFrontier(frontier map[ids.BlockID][]ids.BlockID, defs map[ids.BlockID]bool) map[ids.BlockID]bool {
	result := map[ids.BlockID]bool{}
	worklist := make([]ids.BlockID, 0, len(defs))
	for b := range defs {
		worklist = append(worklist, b)
	}

	for len(worklist) > 0 {
		b := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		for _, f := range frontier[b] {
			if !result[f] {
				result[f] = true
				worklist = append(worklist, f)
			}
		}
	}

	return result
}

// SROAPass splits an alloca of an aggregate into one alloca per distinct
// single-constant-index GEP used against it, so each resulting slot is a
// scalar Mem2Reg can promote on its own. Limited to
// single-level GEP chains (one constant index); a GEP with more than one
// index, or a dynamic index, blocks promotion of that alloca entirely.
type SROAPass struct{}

func NewSROAPass() *SROAPass { return &SROAPass{} }

func (p *SROAPass) Name() string { return "SROA" }

func (p *SROAPass) RunFunction(fn *mir.Function) (bool, Stats) {
	stats := Stats{PassName: p.Name()}

	type use struct {
		blockIdx, instrIdx int
		idx                int64
	}

	allocas := map[ids.ValueID]bool{}
	for _, bb := range fn.Blocks {
		for _, in := range bb.Instrs {
			if _, ok := in.Variant.(mir.Alloca); ok {
				allocas[in.Result] = true
			}
		}
	}

	gepUses := map[ids.ValueID][]use{}
	blocked := map[ids.ValueID]bool{}

	for bi, bb := range fn.Blocks {
		for ii, in := range bb.Instrs {
			stats.InstructionsVisited++

			g, ok := in.Variant.(mir.GEP)
			if !ok {
				continue
			}
			if !allocas[g.Base] {
				continue
			}
			if len(g.Indices) != 1 || !g.Indices[0].IsConst {
				blocked[g.Base] = true
				continue
			}
			gepUses[g.Base] = append(gepUses[g.Base], use{blockIdx: bi, instrIdx: ii, idx: g.Indices[0].Const})
		}
	}

	for _, bb := range fn.Blocks {
		for _, in := range bb.Instrs {
			for _, id := range operandsOfPublic(in.Variant) {
				if allocas[id] {
					if _, isGepBase := gepUses[id]; !isGepBase {
						blocked[id] = true
					}
				}
			}
		}
	}

	changed := false

	for baseID, uses := range gepUses {
		if blocked[baseID] {
			continue
		}

		var baseBlock *mir.BasicBlock
		var baseTy types.Type
		for _, bb := range fn.Blocks {
			for _, in := range bb.Instrs {
				if a, ok := in.Variant.(mir.Alloca); ok && in.Result == baseID {
					baseBlock = bb
					baseTy = a.AllocatedType
				}
			}
		}
		if baseBlock == nil {
			continue
		}

		shadow := map[int64]ids.ValueID{}
		for _, u := range uses {
			if _, ok := shadow[u.idx]; ok {
				continue
			}
			slotTy := baseTy
			if gt := fn.Blocks[u.blockIdx].Instrs[u.instrIdx].Ty; gt.Kind == types.KindPointer && gt.Elem != nil {
				slotTy = *gt.Elem
			}
			id := fn.ValueGen.Fresh()
			shadow[u.idx] = id
			baseBlock.Instrs = append(baseBlock.Instrs, mir.Instruction{
				Result:  id,
				Ty:      types.Pointer(slotTy),
				Variant: mir.Alloca{Name: "sroa", AllocatedType: slotTy},
			})
		}

		for _, u := range uses {
			bb := fn.Blocks[u.blockIdx]
			g := bb.Instrs[u.instrIdx].Variant.(mir.GEP)
			replaceAllUses(fn, bb.Instrs[u.instrIdx].Result, shadow[g.Indices[0].Const])
			bb.Instrs[u.instrIdx] = mir.Instruction{}
		}

		for _, bb := range fn.Blocks {
			kept := bb.Instrs[:0]
			for _, in := range bb.Instrs {
				if in.Variant == nil && !in.Result.IsValid() {
					continue
				}
				if a, ok := in.Variant.(mir.Alloca); ok && in.Result == baseID {
					_ = a
					continue
				}
				kept = append(kept, in)
			}
			bb.Instrs = kept
		}

		changed = true
		stats.InstructionsChanged++
	}

	return changed, stats
}

// ReassociatePass canonicalizes chains of the same commutative operator by
// pushing constants together: `(x op C1) op C2` becomes `x op (C1 op C2)`,
// exposing a single fold where two previously stood.
type ReassociatePass struct{}

func NewReassociatePass() *ReassociatePass { return &ReassociatePass{} }

func (p *ReassociatePass) Name() string { return "Reassociate" }

func (p *ReassociatePass) RunFunction(fn *mir.Function) (bool, Stats) {
	stats := Stats{PassName: p.Name()}
	changed := false

	for _, bb := range fn.Blocks {
		consts := map[ids.ValueID]mir.Constant{}
		defs := map[ids.ValueID]mir.Binary{}

		for i, in := range bb.Instrs {
			stats.InstructionsVisited++

			if c, ok := in.Variant.(mir.Constant); ok {
				consts[in.Result] = c
				continue
			}

			bin, ok := in.Variant.(mir.Binary)
			if !ok || !bin.Op.IsCommutative() {
				if ok {
					defs[in.Result] = bin
				}
				continue
			}

			inner, innerIsBin := defs[bin.Left]
			outerConst, outerOk := consts[bin.Right]

			if innerIsBin && outerOk && inner.Op == bin.Op {
				if innerConst, ok := consts[inner.Right]; ok {
					if folded, ok := foldIntBinary(bin.Op, innerConst, outerConst); ok {
						newConstID := fn.ValueGen.Fresh()
						bb.Instrs = append(bb.Instrs[:i], append([]mir.Instruction{{
							Result: newConstID, Ty: in.Ty, Variant: folded,
						}}, bb.Instrs[i:]...)...)
						consts[newConstID] = folded

						bb.Instrs[i+1].Variant = mir.Binary{Op: bin.Op, Left: inner.Left, Right: newConstID}
						defs[in.Result] = mir.Binary{Op: bin.Op, Left: inner.Left, Right: newConstID}

						changed = true
						stats.InstructionsChanged++
					}
				}
			}

			defs[in.Result] = bin
		}
	}

	return changed, stats
}

// NarrowingPass folds `trunc(op(zext a, zext b)) -> op(a, b)` when a and b
// share the narrow width the trunc restores, removing the extend/truncate
// round-trip.
type NarrowingPass struct{}

func NewNarrowingPass() *NarrowingPass { return &NarrowingPass{} }

func (p *NarrowingPass) Name() string { return "Narrowing" }

func (p *NarrowingPass) RunFunction(fn *mir.Function) (bool, Stats) {
	stats := Stats{PassName: p.Name()}
	changed := false

	for _, bb := range fn.Blocks {
		exts := map[ids.ValueID]mir.Cast{}
		bins := map[ids.ValueID]mir.Binary{}

		for i, in := range bb.Instrs {
			stats.InstructionsVisited++

			switch v := in.Variant.(type) {
			case mir.Cast:
				if v.CastKind == mir.ZExt || v.CastKind == mir.SExt {
					exts[in.Result] = v
				} else if v.CastKind == mir.Trunc {
					if bin, ok := bins[v.Operand]; ok {
						lext, lok := exts[bin.Left]
						rext, rok := exts[bin.Right]
						if lok && rok && lext.SourceType.Equal(v.TargetType) && rext.SourceType.Equal(v.TargetType) {
							bb.Instrs[i].Variant = mir.Binary{Op: bin.Op, Left: lext.Operand, Right: rext.Operand}
							changed = true
							stats.InstructionsChanged++
						}
					}
				}
			case mir.Binary:
				bins[in.Result] = v
			}
		}
	}

	return changed, stats
}

// DestinationPropagationPass handles allocas used exactly once as a store
// target and exactly once as a load source, with the store preceding the
// load in the same block and nothing aliasing in between: the load's uses
// are replaced by the stored value and the alloca/store/load are deleted.
// Never applied to volatile ops.
type DestinationPropagationPass struct{}

func NewDestinationPropagationPass() *DestinationPropagationPass {
	return &DestinationPropagationPass{}
}

func (p *DestinationPropagationPass) Name() string { return "DestinationPropagation" }

func (p *DestinationPropagationPass) RunFunction(fn *mir.Function) (bool, Stats) {
	stats := Stats{PassName: p.Name()}

	type site struct {
		storeBlock, storeIdx  int
		loadBlock, loadIdx    int
		storeCount, loadCount int
	}

	sites := map[ids.ValueID]*site{}

	// escaped tracks pointers seen as an operand of anything other than
	// their own designated Store/Load: a Call argument is the common case
	// (the callee is opaque, so it may stash the address anywhere), and
	// the safe choice is to exclude the pointer from propagation rather
	// than assume the call doesn't alias it.
	escaped := map[ids.ValueID]bool{}

	for bi, bb := range fn.Blocks {
		for ii, in := range bb.Instrs {
			stats.InstructionsVisited++

			switch v := in.Variant.(type) {
			case mir.Store:
				if v.IsVolatile {
					continue
				}
				s := sites[v.Ptr]
				if s == nil {
					s = &site{}
					sites[v.Ptr] = s
				}
				s.storeCount++
				s.storeBlock, s.storeIdx = bi, ii
				if _, ok := sites[v.Value]; ok {
					escaped[v.Value] = true
				}
			case mir.Load:
				if v.IsVolatile {
					continue
				}
				s := sites[v.Ptr]
				if s == nil {
					s = &site{}
					sites[v.Ptr] = s
				}
				s.loadCount++
				s.loadBlock, s.loadIdx = bi, ii
			default:
				for _, id := range operandsOfPublic(v) {
					escaped[id] = true
				}
			}
		}

		if bb.Term != nil {
			for _, id := range mir.TerminatorOperands(bb.Term) {
				escaped[id] = true
			}
		}
	}

	changed := false

	for ptr, s := range sites {
		if escaped[ptr] {
			continue
		}
		if s.storeCount != 1 || s.loadCount != 1 {
			continue
		}
		if s.storeBlock != s.loadBlock || s.storeIdx >= s.loadIdx {
			continue
		}

		bb := fn.Blocks[s.storeBlock]
		storeIn := bb.Instrs[s.storeIdx].Variant.(mir.Store)
		loadResult := bb.Instrs[s.loadIdx].Result

		replaceAllUses(fn, loadResult, storeIn.Value)

		bb.Instrs[s.storeIdx] = mir.Instruction{}
		bb.Instrs[s.loadIdx] = mir.Instruction{}

		removeAllocaByID(fn, ptr)

		kept := bb.Instrs[:0]
		for _, in := range bb.Instrs {
			if in.Variant == nil && !in.Result.IsValid() {
				continue
			}
			kept = append(kept, in)
		}
		bb.Instrs = kept

		changed = true
		stats.InstructionsRemoved += 3
	}

	return changed, stats
}

func removeAllocaByID(fn *mir.Function, id ids.ValueID) {
	for _, bb := range fn.Blocks {
		kept := bb.Instrs[:0]
		for _, in := range bb.Instrs {
			if a, ok := in.Variant.(mir.Alloca); ok && in.Result == id {
				_ = a
				continue
			}
			kept = append(kept, in)
		}
		bb.Instrs = kept
	}
}

// RemoveUnneededDropsPass deletes calls named `<T>::drop` or `<T>_drop`
// when T has no user-defined destructor and no droppable fields — the
// module's struct table is consulted since MIR instructions alone don't
// carry that fact. Unknown callees are left alone.
type RemoveUnneededDropsPass struct {
	Module *mir.Module
}

func NewRemoveUnneededDropsPass(m *mir.Module) *RemoveUnneededDropsPass {
	return &RemoveUnneededDropsPass{Module: m}
}

func (p *RemoveUnneededDropsPass) Name() string { return "RemoveUnneededDrops" }

func (p *RemoveUnneededDropsPass) RunFunction(fn *mir.Function) (bool, Stats) {
	stats := Stats{PassName: p.Name()}
	changed := false

	for _, bb := range fn.Blocks {
		kept := bb.Instrs[:0]

		for _, in := range bb.Instrs {
			stats.InstructionsVisited++

			if call, ok := in.Variant.(mir.Call); ok {
				if typeName, isDrop := dropTargetType(call.Callee); isDrop && p.isTriviallyDroppable(typeName) {
					changed = true
					stats.InstructionsRemoved++
					continue
				}
			}

			kept = append(kept, in)
		}

		bb.Instrs = kept
	}

	return changed, stats
}

func dropTargetType(callee string) (string, bool) {
	if idx := indexOfSuffix(callee, "::drop"); idx >= 0 {
		return callee[:idx], true
	}
	if idx := indexOfSuffix(callee, "_drop"); idx >= 0 {
		return callee[:idx], true
	}
	return "", false
}

func indexOfSuffix(s, suffix string) int {
	if len(s) <= len(suffix) || s[len(s)-len(suffix):] != suffix {
		return -1
	}
	return len(s) - len(suffix)
}

func (p *RemoveUnneededDropsPass) isTriviallyDroppable(typeName string) bool {
	def, ok := p.Module.Structs[typeName]
	if !ok {
		return false // unknown type: conservative, keep the drop
	}
	if def.HasDrop {
		return false
	}
	for _, f := range def.Fields {
		if !typeIsTriviallyDroppable(p.Module, f.Type) {
			return false
		}
	}
	return true
}

func typeIsTriviallyDroppable(m *mir.Module, t types.Type) bool {
	switch t.Kind {
	case types.KindPrimitive, types.KindUnit, types.KindNever, types.KindFunction,
		types.KindPointer, types.KindReference:
		return true
	case types.KindArray, types.KindSlice:
		return typeIsTriviallyDroppable(m, *t.Elem)
	case types.KindTuple:
		for _, e := range t.Elems {
			if !typeIsTriviallyDroppable(m, e) {
				return false
			}
		}
		return true
	case types.KindNamed:
		def, ok := m.Structs[t.Name]
		if !ok {
			return false
		}
		if def.HasDrop {
			return false
		}
		for _, f := range def.Fields {
			if !typeIsTriviallyDroppable(m, f.Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// NormalizeArrayLenPass replaces `.len()` method calls on a fixed-size
// array receiver with a Constant equal to the array's length.
type NormalizeArrayLenPass struct{}

func NewNormalizeArrayLenPass() *NormalizeArrayLenPass { return &NormalizeArrayLenPass{} }

func (p *NormalizeArrayLenPass) Name() string { return "NormalizeArrayLen" }

func (p *NormalizeArrayLenPass) RunFunction(fn *mir.Function) (bool, Stats) {
	stats := Stats{PassName: p.Name()}
	changed := false

	for _, bb := range fn.Blocks {
		for i, in := range bb.Instrs {
			stats.InstructionsVisited++

			mc, ok := in.Variant.(mir.MethodCall)
			if !ok || mc.MethodName != "len" || mc.ReceiverType.Kind != types.KindArray {
				continue
			}

			bb.Instrs[i].Variant = mir.Constant{U64: uint64(mc.ReceiverType.Count)}
			changed = true
			stats.InstructionsChanged++
		}
	}

	return changed, stats
}

// BatchDestructionPass folds a straight-line run of `<T>_drop(array[i])`
// calls on consecutive constant indices of the same base into a single
// `<T>_batch_drop(array, n)` call (n >= 3), or — when T's destructor is
// trivial (no user-defined drop method) — a single `<T>_bulk_free(array,
// n)` call (n >= 4).
type BatchDestructionPass struct {
	Module *mir.Module
}

func NewBatchDestructionPass(m *mir.Module) *BatchDestructionPass {
	return &BatchDestructionPass{Module: m}
}

func (p *BatchDestructionPass) Name() string { return "BatchDestruction" }

func (p *BatchDestructionPass) RunFunction(fn *mir.Function) (bool, Stats) {
	stats := Stats{PassName: p.Name()}
	changed := false

	for _, bb := range fn.Blocks {
		gepBase := map[ids.ValueID]ids.ValueID{}
		gepIndex := map[ids.ValueID]int64{}
		for _, in := range bb.Instrs {
			if g, ok := in.Variant.(mir.GEP); ok && len(g.Indices) == 1 && g.Indices[0].IsConst {
				gepBase[in.Result] = g.Base
				gepIndex[in.Result] = g.Indices[0].Const
			}
		}

		var out []mir.Instruction
		i := 0

		for i < len(bb.Instrs) {
			in := bb.Instrs[i]
			stats.InstructionsVisited++

			call, ok := in.Variant.(mir.Call)
			typeName, isDrop := "", false
			if ok {
				typeName, isDrop = dropTargetType(call.Callee)
			}

			if !isDrop || len(call.Args) != 1 {
				out = append(out, in)
				i++
				continue
			}

			base, hasBase := gepBase[call.Args[0]]
			if !hasBase {
				out = append(out, in)
				i++
				continue
			}

			runStart := i
			runBase := base
			runType := typeName
			nextIdx := gepIndex[call.Args[0]]
			count := 1
			j := i + 1

			for j < len(bb.Instrs) {
				nc, ok := bb.Instrs[j].Variant.(mir.Call)
				if !ok {
					break
				}
				nt, nd := dropTargetType(nc.Callee)
				if !nd || nt != runType || len(nc.Args) != 1 {
					break
				}
				nb, hasNb := gepBase[nc.Args[0]]
				if !hasNb || nb != runBase || gepIndex[nc.Args[0]] != nextIdx+1 {
					break
				}
				nextIdx++
				count++
				j++
			}

			trivial := p.isTrivialDrop(runType)
			threshold := 3
			calleeName := runType + "_batch_drop"
			if trivial {
				threshold = 4
				calleeName = runType + "_bulk_free"
			}

			if count < threshold {
				out = append(out, in)
				i++
				continue
			}

			countID := constArgPlaceholder(fn, &out, int64(count))
			out = append(out, mir.Instruction{
				Variant: mir.Call{Callee: calleeName, Args: []ids.ValueID{runBase, countID}},
			})
			changed = true
			stats.InstructionsRemoved += count - 1
			i = runStart + count
		}

		bb.Instrs = out
	}

	return changed, stats
}

func (p *BatchDestructionPass) isTrivialDrop(typeName string) bool {
	def, ok := p.Module.Structs[typeName]
	return ok && !def.HasDrop
}

// constArgPlaceholder materializes a fresh Constant instruction, appended
// to out; callers that need to pass a literal count as an SSA argument
// (BatchDestruction) use this instead of inventing an immediate-operand
// instruction shape.
func constArgPlaceholder(fn *mir.Function, out *[]mir.Instruction, n int64) ids.ValueID {
	id := fn.ValueGen.Fresh()
	*out = append(*out, mir.Instruction{
		Result:  id,
		Ty:      types.NewPrimitive(types.PrimI64),
		Variant: mir.Constant{I64: n, Signed: true, Width: 64},
	})
	return id
}

// zeroConstantFor returns the zero value of t as a Constant, used to seed
// Mem2Reg's dominator-tree walk before any store has been seen on a path.
func zeroConstantFor(t types.Type) mir.Constant {
	switch t.Kind {
	case types.KindPrimitive:
		switch {
		case t.Prim.IsFloat():
			return mir.Constant{IsFloat: true, IsF64: t.Prim.Width() == 64}
		case t.Prim == types.PrimBool:
			return mir.Constant{Bool: false}
		case t.Prim == types.PrimStr:
			return mir.Constant{Str: ""}
		case t.Prim.IsSigned():
			return mir.Constant{Signed: true, Width: t.Prim.Width()}
		default:
			return mir.Constant{Width: t.Prim.Width()}
		}
	case types.KindUnit:
		return mir.Constant{IsUnit: true}
	default:
		return mir.Constant{} // pointer/aggregate kinds: zero/null bit pattern
	}
}
