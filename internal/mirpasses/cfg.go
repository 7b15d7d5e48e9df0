package mirpasses

import (
	"vellum/internal/ids"
	"vellum/internal/mir"
	"vellum/internal/types"
)

// constantBoolMap collects every Constant-of-type-Bool instruction's
// result in fn, the lookup the CFG passes below use to fold conditional
// branches whose condition is already known.
func constantBoolMap(fn *mir.Function) map[ids.ValueID]bool {
	out := map[ids.ValueID]bool{}

	for _, bb := range fn.Blocks {
		for _, in := range bb.Instrs {
			if in.Ty.Kind != types.KindPrimitive || in.Ty.Prim != types.PrimBool {
				continue
			}

			if c, ok := in.Variant.(mir.Constant); ok {
				out[in.Result] = c.Bool
			}
		}
	}

	return out
}

// constantIntMap collects every Constant-of-integer-type instruction's
// result as an int64, used to fold Switch discriminants.
func constantIntMap(fn *mir.Function) map[ids.ValueID]int64 {
	out := map[ids.ValueID]int64{}

	for _, bb := range fn.Blocks {
		for _, in := range bb.Instrs {
			c, ok := in.Variant.(mir.Constant)
			if !ok || c.IsUnit || c.IsFloat || c.Str != "" {
				continue
			}

			if in.Ty.Kind == types.KindPrimitive && in.Ty.Prim == types.PrimBool {
				continue
			}

			if c.Signed {
				out[in.Result] = c.I64
			} else {
				out[in.Result] = int64(c.U64)
			}
		}
	}

	return out
}

// valueType returns the type of the SSA value id within fn — a parameter
// or some instruction's result — used by MatchSimplify to synthesize the
// comparison a single-case Switch collapses into.
func valueType(fn *mir.Function, id ids.ValueID) (types.Type, bool) {
	for _, p := range fn.Params {
		if p.ID == id {
			return p.Ty, true
		}
	}

	for _, bb := range fn.Blocks {
		for _, in := range bb.Instrs {
			if in.Result == id {
				return in.Ty, true
			}
		}
	}

	return types.Type{}, false
}

// SimplifyCfgPass is the general CFG cleanup: merging
// single-predecessor/successor blocks, removing empty branch-only
// blocks, folding constant conditional branches, and deleting blocks
// unreachable from entry. The four sub-transforms run to a local
// fixpoint.
type SimplifyCfgPass struct{}

func NewSimplifyCfgPass() *SimplifyCfgPass { return &SimplifyCfgPass{} }

func (p *SimplifyCfgPass) Name() string { return "SimplifyCfg" }

func (p *SimplifyCfgPass) RunFunction(fn *mir.Function) (bool, Stats) {
	stats := Stats{PassName: p.Name()}
	changed := false

	for progress := true; progress; {
		progress = false

		if foldConstantBranches(fn, &stats) {
			progress = true
		}

		if removeEmptyBranchOnlyBlocks(fn, &stats) {
			progress = true
		}

		if mergeAllEligibleBlocks(fn, &stats) {
			progress = true
		}

		if pruneUnreachableBlocks(fn, &stats) {
			progress = true
		}

		changed = changed || progress
	}

	return changed, stats
}

// foldConstantBranches rewrites CondBranch terminators whose condition is
// a known Bool constant into an unconditional Branch.
func foldConstantBranches(fn *mir.Function, stats *Stats) bool {
	consts := constantBoolMap(fn)
	changed := false

	for _, bb := range fn.Blocks {
		cb, ok := bb.Term.(mir.CondBranch)
		if !ok {
			continue
		}

		v, ok := consts[cb.Cond]
		if !ok {
			continue
		}

		target := cb.Else
		if v {
			target = cb.Then
		}

		setTerminator(fn, bb, mir.Branch{Target: target})
		dropPhiIncomingFromIfNotSucc(fn, bb.ID, target, v, cb)
		changed = true
		stats.InstructionsChanged++
	}

	return changed
}

// dropPhiIncomingFromIfNotSucc removes the phi incoming entry in the
// branch not taken's block when it is no longer reachable from bb,
// keeping later reachability-based phi cleanup simpler. It is a no-op
// when the discarded branch's target still has other live edges into it.
func dropPhiIncomingFromIfNotSucc(fn *mir.Function, from ids.BlockID, taken ids.BlockID, tookThen bool, cb mir.CondBranch) {
	dropped := cb.Then
	if tookThen {
		dropped = cb.Else
	}

	if dropped == taken {
		return
	}

	if db := fn.BlockByID(dropped); db != nil {
		dropPhiIncomingFrom(db, from)
	}
}

// removeEmptyBranchOnlyBlocks deletes blocks with no instructions whose
// only terminator is an unconditional Branch, redirecting every
// predecessor straight to the target and duplicating the target's phi
// incoming entry for X once per redirected predecessor.
func removeEmptyBranchOnlyBlocks(fn *mir.Function, stats *Stats) bool {
	changed := false

	for _, bb := range fn.Blocks {
		if len(bb.Instrs) != 0 {
			continue
		}

		br, ok := bb.Term.(mir.Branch)
		if !ok || br.Target == bb.ID {
			continue
		}

		preds := append([]ids.BlockID(nil), bb.Preds...)
		if len(preds) == 0 {
			continue
		}

		target := fn.BlockByID(br.Target)
		if target == nil {
			continue
		}

		originalPhiValues := phiIncomingValuesFrom(target, bb.ID)

		for _, pid := range preds {
			pb := fn.BlockByID(pid)
			if pb == nil {
				continue
			}

			retargetTerminator(fn, pb, bb.ID, br.Target)
		}

		if len(originalPhiValues) > 0 {
			duplicatePhiIncoming(target, bb.ID, preds, originalPhiValues)
		} else {
			dropPhiIncomingFrom(target, bb.ID)
		}

		removeBlock(fn, bb.ID)
		stats.BlocksRemoved++
		changed = true

		return true // block list mutated; caller re-scans on next outer iteration
	}

	return changed
}

// phiIncomingValuesFrom returns, per Phi instruction in bb (in
// instruction order), the value it expects from predecessor "from".
func phiIncomingValuesFrom(bb *mir.BasicBlock, from ids.BlockID) []ids.ValueID {
	var out []ids.ValueID

	for _, in := range bb.Instrs {
		ph, ok := in.Variant.(mir.Phi)
		if !ok {
			continue
		}

		for _, e := range ph.Incoming {
			if e.Block == from {
				out = append(out, e.Value)

				break
			}
		}
	}

	return out
}

// duplicatePhiIncoming replaces bb's phi incoming entries from "from"
// with one entry per block in "newPreds", each carrying the value the
// deleted block would have forwarded.
func duplicatePhiIncoming(bb *mir.BasicBlock, from ids.BlockID, newPreds []ids.BlockID, values []ids.ValueID) {
	idx := 0

	for i, in := range bb.Instrs {
		ph, ok := in.Variant.(mir.Phi)
		if !ok {
			continue
		}

		out := make([]mir.PhiIncoming, 0, len(ph.Incoming)+len(newPreds))

		for _, e := range ph.Incoming {
			if e.Block == from {
				continue
			}

			out = append(out, e)
		}

		if idx < len(values) {
			for _, np := range newPreds {
				out = append(out, mir.PhiIncoming{Value: values[idx], Block: np})
			}
		}

		ph.Incoming = out
		bb.Instrs[i].Variant = ph
		idx++
	}
}

// retargetTerminator rewrites pb's terminator so every edge to "from"
// instead points at "to", keeping Preds/Succs consistent via
// setTerminator.
func retargetTerminator(fn *mir.Function, pb *mir.BasicBlock, from, to ids.BlockID) {
	switch t := pb.Term.(type) {
	case mir.Branch:
		if t.Target == from {
			setTerminator(fn, pb, mir.Branch{Target: to})
		}
	case mir.CondBranch:
		nt := t
		if nt.Then == from {
			nt.Then = to
		}

		if nt.Else == from {
			nt.Else = to
		}

		setTerminator(fn, pb, nt)
	case mir.Switch:
		nt := t
		if nt.Default == from {
			nt.Default = to
		}

		for i := range nt.Cases {
			if nt.Cases[i].Target == from {
				nt.Cases[i].Target = to
			}
		}

		setTerminator(fn, pb, nt)
	}
}

// mergeAllEligibleBlocks merges every predecessor/successor pair
// satisfying BlockMergePass's condition; shared by SimplifyCfg and
// BlockMerge.
func mergeAllEligibleBlocks(fn *mir.Function, stats *Stats) bool {
	changed := false

	for {
		merged := false

		for _, pred := range fn.Blocks {
			if tryMergeBlock(fn, pred, stats) {
				merged = true
				changed = true

				break
			}
		}

		if !merged {
			break
		}
	}

	return changed
}

// tryMergeBlock merges pred's unique unconditional successor into pred
// when that successor has no other predecessor and no phi nodes.
// Returns true if a merge happened (fn.Blocks is then
// stale for iteration and callers must restart their scan).
func tryMergeBlock(fn *mir.Function, pred *mir.BasicBlock, stats *Stats) bool {
	br, ok := pred.Term.(mir.Branch)
	if !ok || br.Target == pred.ID {
		return false
	}

	succ := fn.BlockByID(br.Target)
	if succ == nil || len(succ.Preds) != 1 || succ.Preds[0] != pred.ID {
		return false
	}

	for _, in := range succ.Instrs {
		if _, ok := in.Variant.(mir.Phi); ok {
			return false
		}
	}

	pred.Instrs = append(pred.Instrs, succ.Instrs...)
	setTerminator(fn, pred, succ.Term)
	removeBlock(fn, succ.ID)
	stats.BlocksRemoved++

	return true
}

// pruneUnreachableBlocks deletes every block not reachable from entry,
// scrubbing dangling phi incoming entries first.
func pruneUnreachableBlocks(fn *mir.Function, stats *Stats) bool {
	reachable := reachableBlocks(fn)
	changed := false

	var keep []*mir.BasicBlock

	for _, bb := range fn.Blocks {
		if reachable[bb.ID] {
			keep = append(keep, bb)
		}
	}

	if len(keep) == len(fn.Blocks) {
		return false
	}

	for _, bb := range keep {
		for _, in := range bb.Instrs {
			ph, ok := in.Variant.(mir.Phi)
			if !ok {
				continue
			}

			for _, e := range ph.Incoming {
				if !reachable[e.Block] {
					dropPhiIncomingFrom(bb, e.Block)
				}
			}
		}
	}

	for _, bb := range fn.Blocks {
		if !reachable[bb.ID] {
			stats.BlocksRemoved++
			stats.InstructionsRemoved += len(bb.Instrs)
		}
	}

	fn.Blocks = keep
	changed = true

	return changed
}

// BlockMergePass is the narrow merge-only subset of SimplifyCfg's full
// sweep, exposed as its own pipeline entry.
type BlockMergePass struct{}

func NewBlockMergePass() *BlockMergePass { return &BlockMergePass{} }

func (p *BlockMergePass) Name() string { return "BlockMerge" }

func (p *BlockMergePass) RunFunction(fn *mir.Function) (bool, Stats) {
	stats := Stats{PassName: p.Name()}
	changed := mergeAllEligibleBlocks(fn, &stats)

	return changed, stats
}

// JumpThreadingPass redirects a conditional branch straight to its final
// target when it jumps to an empty block that tests the exact same
// condition value again.
type JumpThreadingPass struct{}

func NewJumpThreadingPass() *JumpThreadingPass { return &JumpThreadingPass{} }

func (p *JumpThreadingPass) Name() string { return "JumpThreading" }

func (p *JumpThreadingPass) RunFunction(fn *mir.Function) (bool, Stats) {
	stats := Stats{PassName: p.Name()}
	changed := false

	for _, bb := range fn.Blocks {
		cb, ok := bb.Term.(mir.CondBranch)
		if !ok {
			continue
		}

		newThen, threadedThen := threadTarget(fn, cb.Cond, cb.Then, true)
		newElse, threadedElse := threadTarget(fn, cb.Cond, cb.Else, false)

		if !threadedThen && !threadedElse {
			continue
		}

		setTerminator(fn, bb, mir.CondBranch{Cond: cb.Cond, Then: newThen, Else: newElse})
		changed = true
		stats.InstructionsChanged++
	}

	return changed, stats
}

// threadTarget reports the block actually reached when control flows into
// "target" with cond already known to be wantTrue: if target is empty and
// itself branches on the identical cond value, the second test is
// redundant and we can skip straight to its resolved successor.
func threadTarget(fn *mir.Function, cond ids.ValueID, target ids.BlockID, wantTrue bool) (ids.BlockID, bool) {
	bb := fn.BlockByID(target)
	if bb == nil || len(bb.Instrs) != 0 {
		return target, false
	}

	cb2, ok := bb.Term.(mir.CondBranch)
	if !ok || cb2.Cond != cond {
		return target, false
	}

	if wantTrue {
		return cb2.Then, true
	}

	return cb2.Else, true
}

// MergeReturnsPass replaces every Return terminator in a function with a
// Branch to one unified exit block housing a Phi of the return values.
type MergeReturnsPass struct{}

func NewMergeReturnsPass() *MergeReturnsPass { return &MergeReturnsPass{} }

func (p *MergeReturnsPass) Name() string { return "MergeReturns" }

func (p *MergeReturnsPass) RunFunction(fn *mir.Function) (bool, Stats) {
	stats := Stats{PassName: p.Name()}

	var retBlocks []*mir.BasicBlock

	for _, bb := range fn.Blocks {
		if _, ok := bb.Term.(mir.Return); ok {
			retBlocks = append(retBlocks, bb)
		}
	}

	if len(retBlocks) <= 1 {
		return false, stats
	}

	exit := &mir.BasicBlock{ID: fn.BlockGen.Fresh(), Name: "unified_exit"}
	fn.Blocks = append(fn.Blocks, exit)

	hasValue := false

	for _, bb := range retBlocks {
		if bb.Term.(mir.Return).Value.IsValid() {
			hasValue = true
		}
	}

	var retValue ids.ValueID

	if hasValue {
		phiResult := fn.ValueGen.Fresh()
		incoming := make([]mir.PhiIncoming, 0, len(retBlocks))

		for _, bb := range retBlocks {
			incoming = append(incoming, mir.PhiIncoming{Value: bb.Term.(mir.Return).Value, Block: bb.ID})
		}

		exit.Instrs = append(exit.Instrs, mir.Instruction{Result: phiResult, Ty: fn.Return, Variant: mir.Phi{Incoming: incoming}})
		retValue = phiResult
	}

	for _, bb := range retBlocks {
		setTerminator(fn, bb, mir.Branch{Target: exit.ID})
	}

	setTerminator(fn, exit, mir.Return{Value: retValue})

	stats.InstructionsChanged = len(retBlocks)

	return true, stats
}

// MatchSimplifyPass cleans up Switch terminators: dropping cases that
// target the default block, folding switches with a compile-time-constant
// discriminant, and converting single-case switches into a CondBranch.
type MatchSimplifyPass struct{}

func NewMatchSimplifyPass() *MatchSimplifyPass { return &MatchSimplifyPass{} }

func (p *MatchSimplifyPass) Name() string { return "MatchSimplify" }

func (p *MatchSimplifyPass) RunFunction(fn *mir.Function) (bool, Stats) {
	stats := Stats{PassName: p.Name()}
	changed := false
	consts := constantIntMap(fn)

	for _, bb := range fn.Blocks {
		sw, ok := bb.Term.(mir.Switch)
		if !ok {
			continue
		}

		filtered := make([]mir.SwitchCase, 0, len(sw.Cases))

		for _, c := range sw.Cases {
			if c.Target != sw.Default {
				filtered = append(filtered, c)
			}
		}

		if len(filtered) != len(sw.Cases) {
			sw.Cases = filtered
			changed = true
			stats.InstructionsChanged++
		}

		if v, ok := consts[sw.Value]; ok {
			target := sw.Default

			for _, c := range sw.Cases {
				if c.Value == v {
					target = c.Target

					break
				}
			}

			setTerminator(fn, bb, mir.Branch{Target: target})
			changed = true
			stats.InstructionsChanged++

			continue
		}

		if len(sw.Cases) == 1 {
			ty, ok := valueType(fn, sw.Value)
			if !ok {
				setTerminator(fn, bb, sw)

				continue
			}

			only := sw.Cases[0]

			constID := fn.ValueGen.Fresh()
			constInstr := mir.Instruction{Result: constID, Ty: ty, Variant: sameSignConstant(ty, only.Value)}
			eqID := fn.ValueGen.Fresh()
			eqInstr := mir.Instruction{
				Result:  eqID,
				Ty:      types.NewPrimitive(types.PrimBool),
				Variant: mir.Binary{Op: mir.Eq, Left: sw.Value, Right: constID},
			}

			bb.Instrs = append(bb.Instrs, constInstr, eqInstr)
			setTerminator(fn, bb, mir.CondBranch{Cond: eqID, Then: only.Target, Else: sw.Default})
			changed = true
			stats.InstructionsChanged++

			continue
		}

		setTerminator(fn, bb, sw)
	}

	return changed, stats
}

// sameSignConstant builds a Constant of the given integer type carrying
// value v, matching ty's signedness so later passes' type-agreement
// invariant holds.
func sameSignConstant(ty types.Type, v int64) mir.Constant {
	if ty.Kind != types.KindPrimitive {
		return mir.Constant{I64: v, Signed: true}
	}

	if ty.Prim.IsSigned() {
		return mir.Constant{I64: v, Signed: true, Width: ty.Prim.Width()}
	}

	return mir.Constant{U64: uint64(v), Width: ty.Prim.Width()}
}

// UnreachableCodeEliminationPass removes blocks unreachable from entry and
// propagates unreachability through conditional branches whose one target
// is a trivially-unreachable block.
type UnreachableCodeEliminationPass struct{}

func NewUnreachableCodeEliminationPass() *UnreachableCodeEliminationPass {
	return &UnreachableCodeEliminationPass{}
}

func (p *UnreachableCodeEliminationPass) Name() string { return "UnreachableCodeElimination" }

func (p *UnreachableCodeEliminationPass) RunFunction(fn *mir.Function) (bool, Stats) {
	stats := Stats{PassName: p.Name()}
	changed := false

	for progress := true; progress; {
		progress = false

		if foldConstantBranches(fn, &stats) {
			progress = true
		}

		if propagateUnreachable(fn, &stats) {
			progress = true
		}

		if pruneUnreachableBlocks(fn, &stats) {
			progress = true
		}

		changed = changed || progress
	}

	return changed, stats
}

// propagateUnreachable rewrites a CondBranch to an unconditional Branch
// when one of its targets is trivially unreachable (empty, side-effect
// free, terminated by Unreachable).
func propagateUnreachable(fn *mir.Function, stats *Stats) bool {
	changed := false

	for _, bb := range fn.Blocks {
		cb, ok := bb.Term.(mir.CondBranch)
		if !ok {
			continue
		}

		thenDead := isTriviallyUnreachable(fn, cb.Then)
		elseDead := isTriviallyUnreachable(fn, cb.Else)

		switch {
		case thenDead && !elseDead:
			setTerminator(fn, bb, mir.Branch{Target: cb.Else})
			changed = true
			stats.InstructionsChanged++
		case elseDead && !thenDead:
			setTerminator(fn, bb, mir.Branch{Target: cb.Then})
			changed = true
			stats.InstructionsChanged++
		}
	}

	return changed
}

// isTriviallyUnreachable reports whether block id is empty (or contains
// only side-effect-free instructions) and terminates with Unreachable.
func isTriviallyUnreachable(fn *mir.Function, id ids.BlockID) bool {
	bb := fn.BlockByID(id)
	if bb == nil {
		return false
	}

	if _, ok := bb.Term.(mir.Unreachable); !ok {
		return false
	}

	for _, in := range bb.Instrs {
		if !isPure(in.Variant) {
			return false
		}
	}

	return true
}
