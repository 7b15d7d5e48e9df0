package mirpasses

import "vellum/internal/ids"
import "vellum/internal/mir"

// setTerminator replaces bb's terminator and recomputes bb's Succs (and
// the corresponding Preds entries on affected blocks) so predecessor
// lists stay in agreement with the terminators' target lists — every
// CFG-editing pass routes through this instead of hand-patching
// Preds/Succs.
func setTerminator(fn *mir.Function, bb *mir.BasicBlock, t mir.Terminator) {
	for _, old := range bb.Succs {
		if ob := fn.BlockByID(old); ob != nil {
			ob.Preds = removeBlockID(ob.Preds, bb.ID)
		}
	}

	bb.Term = t
	bb.Succs = append([]ids.BlockID(nil), t.Targets()...)

	for _, s := range bb.Succs {
		if sb := fn.BlockByID(s); sb != nil {
			sb.Preds = appendUniqueBlockID(sb.Preds, bb.ID)
		}
	}
}

func removeBlockID(list []ids.BlockID, id ids.BlockID) []ids.BlockID {
	out := list[:0]
	for _, x := range list {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}

func appendUniqueBlockID(list []ids.BlockID, id ids.BlockID) []ids.BlockID {
	for _, x := range list {
		if x == id {
			return list
		}
	}
	return append(list, id)
}

// removeInstrAt deletes the instruction at index i from bb.
func removeInstrAt(bb *mir.BasicBlock, i int) {
	bb.Instrs = append(bb.Instrs[:i], bb.Instrs[i+1:]...)
}

// removeBlock deletes bb from fn entirely, clearing it from every
// remaining block's Preds/Succs. Callers must already have redirected any
// live edges into/out of bb before calling this (SimplifyCfg's merging
// and pruning helpers and LoopUnroll's full unroll use it).
func removeBlock(fn *mir.Function, target ids.BlockID) {
	out := fn.Blocks[:0]
	for _, bb := range fn.Blocks {
		if bb.ID == target {
			continue
		}
		bb.Preds = removeBlockID(bb.Preds, target)
		bb.Succs = removeBlockID(bb.Succs, target)
		out = append(out, bb)
	}
	fn.Blocks = out
}

// reachableBlocks returns the set of block ids reachable from fn's entry
// by a forward BFS over Succs — the reachability computation behind
// pruneUnreachableBlocks, which SimplifyCfg and UnreachableCodeElimination
// share.
func reachableBlocks(fn *mir.Function) map[ids.BlockID]bool {
	seen := map[ids.BlockID]bool{}
	entry := fn.Entry()
	if entry == nil {
		return seen
	}

	queue := []ids.BlockID{entry.ID}
	seen[entry.ID] = true

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		bb := fn.BlockByID(id)
		if bb == nil {
			continue
		}

		for _, s := range bb.Succs {
			if !seen[s] {
				seen[s] = true
				queue = append(queue, s)
			}
		}
	}

	return seen
}

// replacePhiIncoming updates every Phi in bb to replace an incoming edge
// from "from" with one from "to" (used when a predecessor block is
// removed/merged and phis must track the new edge source).
func replacePhiIncoming(bb *mir.BasicBlock, from, to ids.BlockID) {
	for i, in := range bb.Instrs {
		p, ok := in.Variant.(mir.Phi)
		if !ok {
			continue
		}

		for j, e := range p.Incoming {
			if e.Block == from {
				p.Incoming[j].Block = to
			}
		}

		bb.Instrs[i].Variant = p
	}
}

// dropPhiIncomingFrom removes any incoming entry naming "from" — used
// when an edge is deleted outright (not replaced) so the target's phis
// stay well-formed.
func dropPhiIncomingFrom(bb *mir.BasicBlock, from ids.BlockID) {
	for i, in := range bb.Instrs {
		p, ok := in.Variant.(mir.Phi)
		if !ok {
			continue
		}

		out := p.Incoming[:0]
		for _, e := range p.Incoming {
			if e.Block != from {
				out = append(out, e)
			}
		}
		p.Incoming = out
		bb.Instrs[i].Variant = p
	}
}
