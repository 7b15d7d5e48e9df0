package mirpasses

import (
	"vellum/internal/alias"
	"vellum/internal/ids"
	"vellum/internal/mir"
	"vellum/internal/types"
)

// loopInfo describes one natural loop discovered from a single back edge
// loopInfo describes one natural loop discovered from a single back
// edge. Loops whose header is reached by more than one back edge
// (irreducible or multi-latch loops) are skipped by every pass below.
type loopInfo struct {
	Header ids.BlockID
	Latch  ids.BlockID
	Blocks map[ids.BlockID]bool
}

// findNaturalLoops locates every natural loop in fn via back-edge
// detection over the dominator tree: an edge s -> t is a back edge iff t
// dominates s, and the loop body is everything reaching s backward
// without crossing t.
func findNaturalLoops(fn *mir.Function) []loopInfo {
	dom := mir.ComputeDominance(fn)

	latchesByHeader := map[ids.BlockID][]ids.BlockID{}

	var headerOrder []ids.BlockID

	for _, bb := range fn.Blocks {
		for _, s := range bb.Succs {
			if dom.Dominates(s, bb.ID) {
				if _, ok := latchesByHeader[s]; !ok {
					headerOrder = append(headerOrder, s)
				}

				latchesByHeader[s] = append(latchesByHeader[s], bb.ID)
			}
		}
	}

	var loops []loopInfo

	for _, header := range headerOrder {
		latches := latchesByHeader[header]
		if len(latches) != 1 {
			continue
		}

		latch := latches[0]
		blocks := map[ids.BlockID]bool{header: true, latch: true}

		// The backward walk must stop at the header: a self-loop's latch IS
		// the header, and expanding the header's own preds would pull the
		// preheader into the loop body.
		var queue []ids.BlockID
		if latch != header {
			queue = append(queue, latch)
		}

		for len(queue) > 0 {
			b := queue[0]
			queue = queue[1:]

			bb := fn.BlockByID(b)
			if bb == nil {
				continue
			}

			for _, p := range bb.Preds {
				if !blocks[p] {
					blocks[p] = true
					queue = append(queue, p)
				}
			}
		}

		loops = append(loops, loopInfo{Header: header, Latch: latch, Blocks: blocks})
	}

	return loops
}

// valueDefBlocks maps every SSA value defined anywhere in fn to the block
// that defines it, used to decide whether an operand is loop-invariant.
func valueDefBlocks(fn *mir.Function) map[ids.ValueID]ids.BlockID {
	out := map[ids.ValueID]ids.BlockID{}

	for _, bb := range fn.Blocks {
		for _, in := range bb.Instrs {
			if in.Result.IsValid() {
				out[in.Result] = bb.ID
			}
		}
	}

	return out
}

// operandsOf extracts the operand value ids an instruction reads, reusing
// rewriteOperands' exhaustive type switch as a read-only visitor.
func operandsOf(v mir.InstrVariant) []ids.ValueID {
	var ops []ids.ValueID

	rewriteOperands(v, func(id ids.ValueID) ids.ValueID {
		ops = append(ops, id)

		return id
	})

	return ops
}

// ensurePreheader returns a block that dominates loop.Header and whose
// only path into the loop is through loop.Header, creating one if the
// header currently has more than one predecessor outside the loop.
func ensurePreheader(fn *mir.Function, loop loopInfo) *mir.BasicBlock {
	header := fn.BlockByID(loop.Header)
	if header == nil {
		return nil
	}

	var external []ids.BlockID

	for _, p := range header.Preds {
		if !loop.Blocks[p] {
			external = append(external, p)
		}
	}

	if len(external) == 0 {
		return nil
	}

	if len(external) == 1 {
		return fn.BlockByID(external[0])
	}

	pre := &mir.BasicBlock{ID: fn.BlockGen.Fresh(), Name: "loop.preheader"}
	fn.Blocks = append(fn.Blocks, pre)

	for i, in := range header.Instrs {
		ph, ok := in.Variant.(mir.Phi)
		if !ok {
			continue
		}

		var extEntries, kept []mir.PhiIncoming

		for _, e := range ph.Incoming {
			isExternal := false

			for _, x := range external {
				if x == e.Block {
					isExternal = true

					break
				}
			}

			if isExternal {
				extEntries = append(extEntries, e)
			} else {
				kept = append(kept, e)
			}
		}

		if len(extEntries) > 0 {
			sameValue := true

			for _, e := range extEntries[1:] {
				if e.Value != extEntries[0].Value {
					sameValue = false

					break
				}
			}

			newValue := extEntries[0].Value

			if !sameValue {
				newValue = fn.ValueGen.Fresh()
				pre.Instrs = append(pre.Instrs, mir.Instruction{Result: newValue, Ty: in.Ty, Variant: mir.Phi{Incoming: extEntries}})
			}

			kept = append(kept, mir.PhiIncoming{Value: newValue, Block: pre.ID})
		}

		ph.Incoming = kept
		header.Instrs[i].Variant = ph
	}

	for _, p := range external {
		if pb := fn.BlockByID(p); pb != nil {
			retargetTerminator(fn, pb, loop.Header, pre.ID)
		}
	}

	setTerminator(fn, pre, mir.Branch{Target: loop.Header})

	return pre
}

// LICMPass hoists loop-invariant, side-effect-free instructions (and,
// when Alias is set, loads proven free of aliasing stores within the
// loop) into the loop's preheader.
type LICMPass struct {
	Alias *alias.Analysis
}

func NewLICMPass() *LICMPass { return &LICMPass{} }

func NewLICMPassWithAlias(a *alias.Analysis) *LICMPass { return &LICMPass{Alias: a} }

func (p *LICMPass) Name() string { return "LICM" }

func (p *LICMPass) RunFunction(fn *mir.Function) (bool, Stats) {
	stats := Stats{PassName: p.Name()}
	changed := false

	for _, loop := range findNaturalLoops(fn) {
		pre := ensurePreheader(fn, loop)
		if pre == nil {
			continue
		}

		defBlock := valueDefBlocks(fn)
		invariant := map[ids.ValueID]bool{}

		definedOutside := func(id ids.ValueID) bool {
			if !id.IsValid() {
				return true
			}

			if invariant[id] {
				return true
			}

			b, ok := defBlock[id]

			return !ok || !loop.Blocks[b]
		}

		order := blocksInLoopOrder(fn, loop)

		for progress := true; progress; {
			progress = false

			for _, bid := range order {
				bb := fn.BlockByID(bid)
				for _, in := range bb.Instrs {
					if !in.Result.IsValid() || invariant[in.Result] {
						continue
					}

					if canHoist(p.Alias, fn, loop, in, definedOutside) {
						invariant[in.Result] = true
						progress = true
					}
				}
			}
		}

		for _, bid := range order {
			bb := fn.BlockByID(bid)

			var kept []mir.Instruction

			for _, in := range bb.Instrs {
				if in.Result.IsValid() && invariant[in.Result] {
					pre.Instrs = append(pre.Instrs, in)
					changed = true
					stats.InstructionsChanged++

					continue
				}

				kept = append(kept, in)
			}

			bb.Instrs = kept
		}
	}

	return changed, stats
}

// canHoist reports whether in is safe to move to the preheader: a pure
// instruction whose operands are all defined outside the loop, or
// (when alias is available) a Load from a loop-invariant pointer with no
// possibly-aliasing Store inside the loop.
func canHoist(al *alias.Analysis, fn *mir.Function, loop loopInfo, in mir.Instruction, definedOutside func(ids.ValueID) bool) bool {
	if ld, ok := in.Variant.(mir.Load); ok {
		if al == nil || !definedOutside(ld.Ptr) {
			return false
		}

		return !hasAliasingStoreInLoop(fn, loop, al, ld.Ptr)
	}

	if !isPure(in.Variant) {
		return false
	}

	for _, op := range operandsOf(in.Variant) {
		if !definedOutside(op) {
			return false
		}
	}

	return true
}

// hasAliasingStoreInLoop reports whether any Store within the loop may
// alias ptr.
func hasAliasingStoreInLoop(fn *mir.Function, loop loopInfo, al *alias.Analysis, ptr ids.ValueID) bool {
	for bid := range loop.Blocks {
		bb := fn.BlockByID(bid)
		if bb == nil {
			continue
		}

		for _, in := range bb.Instrs {
			st, ok := in.Variant.(mir.Store)
			if !ok {
				continue
			}

			if al.Alias(st.Ptr, ptr) != alias.NoAlias {
				return true
			}
		}
	}

	return false
}

// blocksInLoopOrder returns loop.Blocks in fn's block order, a stable
// traversal every loop pass below uses when scanning a loop body.
func blocksInLoopOrder(fn *mir.Function, loop loopInfo) []ids.BlockID {
	var out []ids.BlockID

	for _, bb := range fn.Blocks {
		if loop.Blocks[bb.ID] {
			out = append(out, bb.ID)
		}
	}

	return out
}

// ConstantHoistPass moves each expensive constant of a loop body into a
// single preheader definition, which later copies of the same value
// reuse. Only integers outside the 16-bit range, floats and strings are
// considered "expensive"; narrower integers stay in place however often
// they repeat.
type ConstantHoistPass struct{}

func NewConstantHoistPass() *ConstantHoistPass { return &ConstantHoistPass{} }

func (p *ConstantHoistPass) Name() string { return "ConstHoist" }

func (p *ConstantHoistPass) RunFunction(fn *mir.Function) (bool, Stats) {
	stats := Stats{PassName: p.Name()}
	changed := false

	for _, loop := range findNaturalLoops(fn) {
		pre := ensurePreheader(fn, loop)
		if pre == nil {
			continue
		}

		type key struct {
			kind string
			i    int64
			u    uint64
			f    float64
			s    string
		}

		seen := map[key]ids.ValueID{}
		replace := map[ids.ValueID]ids.ValueID{}

		for _, bid := range blocksInLoopOrder(fn, loop) {
			bb := fn.BlockByID(bid)

			var kept []mir.Instruction

			for _, in := range bb.Instrs {
				c, ok := in.Variant.(mir.Constant)
				if !ok || !isExpensiveConstant(c) {
					kept = append(kept, in)

					continue
				}

				k := key{i: c.I64, u: c.U64, f: c.F64, s: c.Str}

				switch {
				case c.IsUnit:
					k.kind = "unit"
				case c.Str != "":
					k.kind = "str"
				case c.IsFloat:
					k.kind = "float"
				case c.Bool:
					k.kind = "true"
				default:
					k.kind = "int"
				}

				if existing, ok := seen[k]; ok {
					replace[in.Result] = existing
					changed = true
					stats.InstructionsRemoved++

					continue
				}

				seen[k] = in.Result
				pre.Instrs = append(pre.Instrs, in)
				changed = true
				stats.InstructionsChanged++
			}

			bb.Instrs = kept
		}

		for old, repl := range replace {
			replaceAllUses(fn, old, repl)
		}
	}

	return changed, stats
}

// isExpensiveConstant reports whether c is worth hoisting: wide integer
// literals, floating point, or string constants (small narrow integers
// materialize in a single cheap instruction on every target so hoisting
// buys nothing).
func isExpensiveConstant(c mir.Constant) bool {
	if c.IsUnit {
		return false
	}

	if c.Str != "" || c.IsFloat {
		return true
	}

	if c.Signed {
		return c.I64 > 0xffff || c.I64 < -0x10000
	}

	return c.U64 > 0xffff
}

// SinkingPass moves a pure, single-use instruction out of its defining
// block and into the one successor block that actually uses it; the
// inverse of LICM.
type SinkingPass struct{}

func NewSinkingPass() *SinkingPass { return &SinkingPass{} }

func (p *SinkingPass) Name() string { return "Sinking" }

func (p *SinkingPass) RunFunction(fn *mir.Function) (bool, Stats) {
	stats := Stats{PassName: p.Name()}
	changed := false

	for _, bb := range fn.Blocks {
		var kept []mir.Instruction

		for idx, in := range bb.Instrs {
			if !in.Result.IsValid() || !isPure(in.Variant) {
				kept = append(kept, in)

				continue
			}

			target, ok := findSingleUseSuccessor(fn, bb, in.Result)
			if !ok {
				kept = append(kept, in)

				continue
			}

			tb := fn.BlockByID(target)
			if tb == nil || tb.ID == bb.ID {
				kept = append(kept, in)

				continue
			}

			insertPos := firstNonPhiIndex(tb)
			tb.Instrs = append(tb.Instrs[:insertPos], append([]mir.Instruction{in}, tb.Instrs[insertPos:]...)...)
			changed = true
			stats.InstructionsChanged++
			_ = idx
		}

		bb.Instrs = kept
	}

	return changed, stats
}

// findSingleUseSuccessor reports the single successor block of def's
// defining block in which every use of val occurs, if all uses lie in
// exactly one such successor block and none occur in def's own block
// (besides the definition itself) or any other block.
func findSingleUseSuccessor(fn *mir.Function, def *mir.BasicBlock, val ids.ValueID) (ids.BlockID, bool) {
	usingBlocks := map[ids.BlockID]bool{}

	for _, bb := range fn.Blocks {
		for _, in := range bb.Instrs {
			for _, op := range operandsOf(in.Variant) {
				if op == val {
					usingBlocks[bb.ID] = true
				}
			}
		}

		for _, op := range terminatorOperands(bb.Term) {
			if op == val {
				usingBlocks[bb.ID] = true
			}
		}
	}

	if len(usingBlocks) != 1 {
		return 0, false
	}

	var only ids.BlockID

	for b := range usingBlocks {
		only = b
	}

	if only == def.ID {
		return 0, false
	}

	isSucc := false

	for _, s := range def.Succs {
		if s == only {
			isSucc = true

			break
		}
	}

	if !isSucc {
		return 0, false
	}

	return only, true
}

// terminatorOperands extracts the value ids a terminator reads (Return's
// value, CondBranch's / Switch's discriminant).
func terminatorOperands(t mir.Terminator) []ids.ValueID {
	switch tt := t.(type) {
	case mir.Return:
		if tt.Value.IsValid() {
			return []ids.ValueID{tt.Value}
		}
	case mir.CondBranch:
		return []ids.ValueID{tt.Cond}
	case mir.Switch:
		return []ids.ValueID{tt.Value}
	}

	return nil
}

// firstNonPhiIndex returns the index of the first non-Phi instruction in
// bb, the valid insertion point for a sunk instruction (phis must stay
// first).
func firstNonPhiIndex(bb *mir.BasicBlock) int {
	for i, in := range bb.Instrs {
		if _, ok := in.Variant.(mir.Phi); !ok {
			return i
		}
	}

	return len(bb.Instrs)
}

// LoopRotatePass converts a loop tested at the top into one tested at the
// bottom. Bounded to the canonical two-block loop shape (header holding
// the induction phi(s) and the exit test, latch holding the body and the
// back edge) — anything more complex is left untouched.
type LoopRotatePass struct{}

func NewLoopRotatePass() *LoopRotatePass { return &LoopRotatePass{} }

func (p *LoopRotatePass) Name() string { return "LoopRotate" }

func (p *LoopRotatePass) RunFunction(fn *mir.Function) (bool, Stats) {
	stats := Stats{PassName: p.Name()}
	changed := false

	for _, loop := range findNaturalLoops(fn) {
		if len(loop.Blocks) != 2 {
			continue
		}

		if rotateLoop(fn, loop) {
			changed = true
			stats.InstructionsChanged++
		}
	}

	return changed, stats
}

// rotateLoop rotates a single two-block loop: the header's non-phi
// instructions are copied into the preheader as a guard test, and the
// header's phis and exit test move into the latch, which then branches
// back to itself or out. It returns whether it applied.
func rotateLoop(fn *mir.Function, loop loopInfo) bool {
	header := fn.BlockByID(loop.Header)
	latch := fn.BlockByID(loop.Latch)

	if header == nil || latch == nil {
		return false
	}

	cb, ok := header.Term.(mir.CondBranch)
	if !ok {
		return false
	}

	if cb.Then != latch.ID && cb.Else != latch.ID {
		return false
	}

	lb, ok := latch.Term.(mir.Branch)
	if !ok || lb.Target != header.ID {
		return false
	}

	for _, in := range header.Instrs {
		if _, ok := in.Variant.(mir.Phi); ok {
			continue
		}

		if !isPure(in.Variant) {
			return false
		}
	}

	pre := ensurePreheader(fn, loop)
	if pre == nil {
		return false
	}

	// Build the guard's substitution: each header phi's incoming value
	// from the preheader edge stands in for the phi's result.
	mapping := map[ids.ValueID]ids.ValueID{}

	var headerPhis []mir.Instruction

	var nonPhi []mir.Instruction

	for _, in := range header.Instrs {
		if ph, ok := in.Variant.(mir.Phi); ok {
			headerPhis = append(headerPhis, in)

			for _, e := range ph.Incoming {
				if e.Block == pre.ID {
					mapping[in.Result] = e.Value
				}
			}

			continue
		}

		nonPhi = append(nonPhi, in)
	}

	var guardCond ids.ValueID

	for _, in := range nonPhi {
		newID := fn.ValueGen.Fresh()
		variant := rewriteOperands(in.Variant, func(id ids.ValueID) ids.ValueID {
			if m, ok := mapping[id]; ok {
				return m
			}

			return id
		})
		pre.Instrs = append(pre.Instrs, mir.Instruction{Result: newID, Ty: in.Ty, Variant: variant})
		mapping[in.Result] = newID

		if in.Result == cb.Cond {
			guardCond = newID
		}
	}

	setTerminator(fn, pre, mir.CondBranch{Cond: guardCond, Then: cb.Then, Else: cb.Else})

	// Relocate header's phis and non-phi instructions into latch, keeping
	// their original ids so every existing use inside latch stays valid;
	// the "from latch" incoming edge becomes self-referential since latch
	// is now its own loop header.
	var relocated []mir.Instruction

	for _, in := range headerPhis {
		ph := in.Variant.(mir.Phi)

		var newIncoming []mir.PhiIncoming

		for _, e := range ph.Incoming {
			if e.Block == pre.ID {
				newIncoming = append(newIncoming, mir.PhiIncoming{Value: e.Value, Block: pre.ID})
			} else if e.Block == latch.ID {
				newIncoming = append(newIncoming, mir.PhiIncoming{Value: e.Value, Block: latch.ID})
			}
		}

		ph.Incoming = newIncoming
		relocated = append(relocated, mir.Instruction{Result: in.Result, Ty: in.Ty, Variant: ph})
	}

	relocated = append(relocated, nonPhi...)
	latch.Instrs = append(relocated, latch.Instrs...)

	setTerminator(fn, latch, mir.CondBranch{Cond: cb.Cond, Then: cb.Then, Else: cb.Else})

	exitID := cb.Then
	if exitID == latch.ID {
		exitID = cb.Else
	}

	if exit := fn.BlockByID(exitID); exit != nil {
		for i, in := range exit.Instrs {
			ph, ok := in.Variant.(mir.Phi)
			if !ok {
				continue
			}

			for _, e := range ph.Incoming {
				if e.Block == header.ID {
					ph.Incoming = append(ph.Incoming, mir.PhiIncoming{Value: e.Value, Block: latch.ID})

					break
				}
			}

			exit.Instrs[i].Variant = ph
		}
	}

	header.Instrs = nil

	return true
}

// LoopUnrollPass unrolls small counted loops whose trip count is known
// at compile time. A trip count at or below MaxFullUnrollCount is fully
// unrolled, dropping the per-iteration test entirely; a larger trip count
// up to MaxTripCount is partially unrolled instead: the body is grouped
// partialUnrollFactor-wide so the physical loop runs fewer, fatter passes,
// and the trip%partialUnrollFactor leftover iterations are peeled
// straight-line after it.
type LoopUnrollPass struct {
	MaxFullUnrollCount int
	MaxLoopBodySize    int
	MaxTripCount       int
}

func NewLoopUnrollPass() *LoopUnrollPass {
	return &LoopUnrollPass{MaxFullUnrollCount: 8, MaxLoopBodySize: 20, MaxTripCount: 64}
}

func (p *LoopUnrollPass) Name() string { return "LoopUnroll" }

func (p *LoopUnrollPass) RunFunction(fn *mir.Function) (bool, Stats) {
	stats := Stats{PassName: p.Name()}
	changed := false

	for _, loop := range findNaturalLoops(fn) {
		if len(loop.Blocks) != 2 {
			continue
		}

		if unrollLoop(fn, loop, p) {
			changed = true
			stats.InstructionsChanged++
		}
	}

	return changed, stats
}

// unrollLoop attempts to unroll a two-block counted loop: fully, when its
// trip count is at most opts.MaxFullUnrollCount, or partially (see
// partialUnrollLoop) up to opts.MaxTripCount.
func unrollLoop(fn *mir.Function, loop loopInfo, opts *LoopUnrollPass) bool {
	header := fn.BlockByID(loop.Header)
	latch := fn.BlockByID(loop.Latch)

	if header == nil || latch == nil || len(latch.Instrs) > opts.MaxLoopBodySize {
		return false
	}

	cb, ok := header.Term.(mir.CondBranch)
	if !ok {
		return false
	}

	lb, ok := latch.Term.(mir.Branch)
	if !ok || lb.Target != header.ID {
		return false
	}

	ivPhi, ivResult, ok := findInductionPhi(header)
	if !ok {
		return false
	}

	cmp, ok := findTripCondition(header, ivResult, cb.Cond)
	if !ok {
		return false
	}

	ivInit, ok := ivInitialValue(ivPhi, latch.ID)
	if !ok {
		return false
	}

	start, ok := constIntValue(fn, ivInit)
	if !ok {
		return false
	}

	step, stepAdd, ok := findStep(fn, latch, ivResult)
	if !ok {
		return false
	}

	bound, ok := constIntValue(fn, cmp.bound)
	if !ok {
		return false
	}

	continuesOnThen := cb.Then == latch.ID

	trip, ok := simulateTripCount(start, bound, step, stepAdd, cmp.op, continuesOnThen, opts.MaxTripCount)
	if !ok || trip == 0 || trip > opts.MaxTripCount {
		return false
	}

	exitID := cb.Then
	if exitID == latch.ID {
		exitID = cb.Else
	}

	pre := ensurePreheader(fn, loop)
	if pre == nil {
		return false
	}

	ivType := header.Instrs[0].Ty

	for _, in := range header.Instrs {
		if in.Result == ivResult {
			ivType = in.Ty
		}
	}

	if trip > opts.MaxFullUnrollCount {
		return partialUnrollLoop(fn, header, latch, pre, ivPhi, ivResult, cb, step, stepAdd, start, ivType, exitID, trip)
	}

	lastBlock, lastMapping := unrollIterationChain(fn, ivResult, ivType, latch.Instrs, pre, start, step, stepAdd, trip, "loop.unrolled")

	setTerminator(fn, lastBlock, mir.Branch{Target: exitID})
	patchExitPhiFromHeader(fn, exitID, header.ID, lastBlock.ID, lastMapping, true)

	removeBlock(fn, header.ID)
	removeBlock(fn, latch.ID)

	return true
}

// unrollIterationChain emits count copies of body (one loop iteration's
// worth of instructions, taken from the loop's latch), chained by
// unconditional branches starting right after startBlock. The induction
// variable is folded to a fresh compile-time constant each copy (startCur,
// startCur+step, startCur+2*step,...), since every call site here only
// unrolls iterations whose trip count is already known exactly. Shared by
// LoopUnrollPass's full-unroll path (every iteration of a small loop) and
// its partial-unroll path's remainder peel (the trip%partialUnrollFactor
// leftover iterations after the grouped main loop).
func unrollIterationChain(fn *mir.Function, ivResult ids.ValueID, ivType types.Type, body []mir.Instruction,
	startBlock *mir.BasicBlock, startCur, step int64, stepAdd bool, count int, blockName string) (*mir.BasicBlock, map[ids.ValueID]ids.ValueID) {
	cur := startCur
	prevBlock := startBlock
	lastMapping := map[ids.ValueID]ids.ValueID{}

	var lastBlock *mir.BasicBlock

	for k := 0; k < count; k++ {
		blk := &mir.BasicBlock{ID: fn.BlockGen.Fresh(), Name: blockName}
		fn.Blocks = append(fn.Blocks, blk)

		mapping := map[ids.ValueID]ids.ValueID{}
		constID := fn.ValueGen.Fresh()
		blk.Instrs = append(blk.Instrs, mir.Instruction{Result: constID, Ty: ivType, Variant: sameSignConstant(ivType, cur)})
		mapping[ivResult] = constID

		for _, in := range body {
			newID := fn.ValueGen.Fresh()
			variant := rewriteOperands(in.Variant, func(id ids.ValueID) ids.ValueID {
				if m, ok := mapping[id]; ok {
					return m
				}

				return id
			})
			blk.Instrs = append(blk.Instrs, mir.Instruction{Result: newID, Ty: in.Ty, Variant: variant})

			if in.Result.IsValid() {
				mapping[in.Result] = newID
			}
		}

		setTerminator(fn, prevBlock, mir.Branch{Target: blk.ID})
		prevBlock = blk
		lastBlock = blk
		lastMapping = mapping

		if stepAdd {
			cur += step
		} else {
			cur -= step
		}
	}

	return lastBlock, lastMapping
}

// patchExitPhiFromHeader rewrites exit's Phi incoming edges that used to
// come from fromID (the loop header, no longer one of exit's predecessors
// once the loop is unrolled) so they come from toID instead, translating
// the incoming value through valueMap. When keepOld is true the original
// entry is left in place and a new one appended (full unroll removes
// fromID from the function entirely, so a stale entry is harmless);
// otherwise the entry is replaced in place, which partial unroll needs
// since its header block survives as a live (non-)predecessor of exit.
func patchExitPhiFromHeader(fn *mir.Function, exitID, fromID, toID ids.BlockID, valueMap map[ids.ValueID]ids.ValueID, keepOld bool) {
	exit := fn.BlockByID(exitID)
	if exit == nil {
		return
	}

	for i, in := range exit.Instrs {
		ph, ok := in.Variant.(mir.Phi)
		if !ok {
			continue
		}

		for j, e := range ph.Incoming {
			if e.Block != fromID {
				continue
			}

			v := e.Value
			if m, ok := valueMap[v]; ok {
				v = m
			}

			if keepOld {
				ph.Incoming = append(ph.Incoming, mir.PhiIncoming{Value: v, Block: toID})
			} else {
				ph.Incoming[j] = mir.PhiIncoming{Value: v, Block: toID}
			}
		}

		exit.Instrs[i].Variant = ph
	}
}

// partialUnrollFactor is how many logical iterations one physical pass
// of a partially-unrolled loop performs. Since every loop reaching this
// path already has a statically known trip count, any remainder
// (trip%partialUnrollFactor) is peeled exactly, so a fixed factor of 4
// simply minimizes physical loop tests with no added risk.
const partialUnrollFactor = 4

// partialUnrollLoop groups the body of a counted loop whose trip count
// exceeds MaxFullUnrollCount (but not MaxTripCount) into
// partialUnrollFactor chained copies per physical pass, cutting the
// number of per-iteration branch tests roughly by that factor while
// capping code growth at partialUnrollFactor copies of the body instead of
// trip copies. The leftover trip%partialUnrollFactor iterations are
// peeled straight-line after the reduced loop exits.
func partialUnrollLoop(fn *mir.Function, header, latch, pre *mir.BasicBlock, ivPhi mir.Phi, ivResult ids.ValueID,
	cb mir.CondBranch, step int64, stepAdd bool, start int64, ivType types.Type, exitID ids.BlockID, trip int) bool {
	factor := partialUnrollFactor
	if trip < factor {
		return false
	}

	var origNext ids.ValueID

	for _, e := range ivPhi.Incoming {
		if e.Block == latch.ID {
			origNext = e.Value
		}
	}

	if !origNext.IsValid() {
		return false
	}

	mainTrip := trip - trip%factor
	remainder := trip - mainTrip

	if mainTrip == 0 {
		return false
	}

	origLatchInstrs := append([]mir.Instruction(nil), latch.Instrs...)

	// Rebuild latch as `factor` chained copies of the original
	// per-iteration body: copy 0 reads the induction value straight from
	// the header phi, and each later copy reads the induction value the
	// previous copy just computed, so one physical pass advances the
	// logical iteration count by factor instead of 1.
	var grouped []mir.Instruction

	chainIV := ivResult
	lastNext := origNext

	for c := 0; c < factor; c++ {
		copyMap := map[ids.ValueID]ids.ValueID{ivResult: chainIV}

		for _, in := range origLatchInstrs {
			newID := ids.InvalidValueID
			if in.Result.IsValid() {
				newID = fn.ValueGen.Fresh()
				copyMap[in.Result] = newID
			}

			variant := rewriteOperands(in.Variant, func(id ids.ValueID) ids.ValueID {
				if m, ok := copyMap[id]; ok {
					return m
				}

				return id
			})

			grouped = append(grouped, mir.Instruction{Result: newID, Ty: in.Ty, Variant: variant})

			if in.Result == origNext {
				lastNext = newID
			}
		}

		chainIV = lastNext
	}

	latch.Instrs = grouped

	for i := range header.Instrs {
		ph, ok := header.Instrs[i].Variant.(mir.Phi)
		if !ok {
			continue
		}

		for j, e := range ph.Incoming {
			if e.Block == latch.ID {
				ph.Incoming[j].Value = lastNext
			}
		}

		header.Instrs[i].Variant = ph
	}

	stepSigned := step
	if !stepAdd {
		stepSigned = -step
	}

	mainBoundValue := start + int64(mainTrip)*stepSigned
	mainBoundID := fn.ValueGen.Fresh()
	pre.Instrs = append(pre.Instrs, mir.Instruction{Result: mainBoundID, Ty: ivType, Variant: sameSignConstant(ivType, mainBoundValue)})

	if !rewriteHeaderBound(header, cb.Cond, ivResult, mainBoundID) {
		return false
	}

	if remainder == 0 {
		return true
	}

	// Peel the trip%factor leftover iterations as an unconditional
	// straight-line chain off the reduced loop's exit edge, same as full
	// unroll, since their induction values are fixed once mainTrip is.
	remStart := &mir.BasicBlock{ID: fn.BlockGen.Fresh(), Name: "loop.unroll.rem.entry"}
	fn.Blocks = append(fn.Blocks, remStart)

	if cb.Then == latch.ID {
		setTerminator(fn, header, mir.CondBranch{Cond: cb.Cond, Then: cb.Then, Else: remStart.ID})
	} else {
		setTerminator(fn, header, mir.CondBranch{Cond: cb.Cond, Then: remStart.ID, Else: cb.Else})
	}

	lastBlock, lastMapping := unrollIterationChain(fn, ivResult, ivType, origLatchInstrs, remStart, mainBoundValue, step, stepAdd, remainder, "loop.unroll.rem")

	setTerminator(fn, lastBlock, mir.Branch{Target: exitID})
	patchExitPhiFromHeader(fn, exitID, header.ID, lastBlock.ID, lastMapping, false)

	return true
}

// rewriteHeaderBound replaces the non-induction-variable operand of
// header's comparison instruction (the one producing condID) with
// newBound, leaving its operator untouched. Used to shrink a partially
// unrolled loop's exit test to fire after mainTrip iterations instead of
// the original trip.
func rewriteHeaderBound(header *mir.BasicBlock, condID, iv, newBound ids.ValueID) bool {
	for i, in := range header.Instrs {
		if in.Result != condID {
			continue
		}

		bin, ok := in.Variant.(mir.Binary)
		if !ok {
			return false
		}

		switch {
		case bin.Left == iv:
			bin.Right = newBound
		case bin.Right == iv:
			bin.Left = newBound
		default:
			return false
		}

		header.Instrs[i].Variant = bin

		return true
	}

	return false
}

// findInductionPhi returns header's sole Phi instruction, if it has
// exactly one.
func findInductionPhi(header *mir.BasicBlock) (mir.Phi, ids.ValueID, bool) {
	var found mir.Phi

	var result ids.ValueID

	count := 0

	for _, in := range header.Instrs {
		if ph, ok := in.Variant.(mir.Phi); ok {
			found = ph
			result = in.Result
			count++
		}
	}

	return found, result, count == 1
}

// ivInitialValue returns the induction phi's incoming value from any
// predecessor other than latchID (its initial, pre-loop value).
func ivInitialValue(ph mir.Phi, latchID ids.BlockID) (ids.ValueID, bool) {
	for _, e := range ph.Incoming {
		if e.Block != latchID {
			return e.Value, true
		}
	}

	return ids.InvalidValueID, false
}

type tripCondition struct {
	op    mir.BinOp
	bound ids.ValueID
}

// findTripCondition locates the Binary comparison instruction (result ==
// condID) comparing the induction variable against a bound.
func findTripCondition(header *mir.BasicBlock, iv ids.ValueID, condID ids.ValueID) (tripCondition, bool) {
	for _, in := range header.Instrs {
		if in.Result != condID {
			continue
		}

		bin, ok := in.Variant.(mir.Binary)
		if !ok {
			return tripCondition{}, false
		}

		switch {
		case bin.Left == iv:
			return tripCondition{op: bin.Op, bound: bin.Right}, true
		case bin.Right == iv:
			return tripCondition{op: flipComparison(bin.Op), bound: bin.Left}, true
		default:
			return tripCondition{}, false
		}
	}

	return tripCondition{}, false
}

// flipComparison returns the operator obtained by swapping operand order
// (bound CMP iv instead of iv CMP bound).
func flipComparison(op mir.BinOp) mir.BinOp {
	switch op {
	case mir.Lt:
		return mir.Gt
	case mir.Le:
		return mir.Ge
	case mir.Gt:
		return mir.Lt
	case mir.Ge:
		return mir.Le
	default:
		return op
	}
}

// findStep locates latch's `next = iv +/- constant` instruction feeding
// the induction phi's back edge.
func findStep(fn *mir.Function, latch *mir.BasicBlock, iv ids.ValueID) (int64, bool, bool) {
	for _, in := range latch.Instrs {
		bin, ok := in.Variant.(mir.Binary)
		if !ok || bin.Left != iv {
			continue
		}

		if bin.Op != mir.Add && bin.Op != mir.Sub {
			continue
		}

		step, ok := constIntValue(fn, bin.Right)
		if !ok {
			continue
		}

		return step, bin.Op == mir.Add, true
	}

	return 0, false, false
}

// constIntValue resolves id to a compile-time integer constant if id
// names a Constant instruction anywhere in fn.
func constIntValue(fn *mir.Function, id ids.ValueID) (int64, bool) {
	for _, bb := range fn.Blocks {
		for _, in := range bb.Instrs {
			if in.Result != id {
				continue
			}

			c, ok := in.Variant.(mir.Constant)
			if !ok || c.IsUnit || c.IsFloat || c.Str != "" {
				return 0, false
			}

			if c.Signed {
				return c.I64, true
			}

			return int64(c.U64), true
		}
	}

	return 0, false
}

// simulateTripCount counts loop iterations by evaluating the comparison
// at each step, bailing out past maxTrip.
func simulateTripCount(start, bound, step int64, stepAdd bool, op mir.BinOp, continuesOnThen bool, maxTrip int) (int, bool) {
	if step == 0 {
		return 0, false
	}

	cur := start
	count := 0

	for count <= maxTrip {
		cond := evalCmp(op, cur, bound)

		continuing := cond
		if !continuesOnThen {
			continuing = !cond
		}

		if !continuing {
			return count, true
		}

		count++

		if stepAdd {
			cur += step
		} else {
			cur -= step
		}
	}

	return 0, false
}

// evalCmp evaluates a compile-time integer comparison.
func evalCmp(op mir.BinOp, a, b int64) bool {
	switch op {
	case mir.Lt:
		return a < b
	case mir.Le:
		return a <= b
	case mir.Gt:
		return a > b
	case mir.Ge:
		return a >= b
	case mir.Eq:
		return a == b
	case mir.Ne:
		return a != b
	default:
		return false
	}
}
