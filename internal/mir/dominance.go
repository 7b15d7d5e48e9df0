package mir

import "vellum/internal/ids"

// Dominance is the immediate-dominator tree of one function's CFG,
// computed by the standard iterative Cooper/Harvey/Kennedy algorithm.
// Code that needs to reason about control-flow ordering — GVN, Mem2Reg,
// the natural-loop finder behind the loop passes, and Verify — queries
// it rather than recomputing reachability itself.
type Dominance struct {
	order []ids.BlockID // reverse-postorder, entry first
	index map[ids.BlockID]int
	idom  map[ids.BlockID]ids.BlockID
	entry ids.BlockID
}

// ComputeDominance builds the dominator tree for f. f must have a
// reachable entry block; unreachable blocks are omitted from the result.
func ComputeDominance(f *Function) *Dominance {
	entry := f.Entry()
	if entry == nil {
		return &Dominance{index: map[ids.BlockID]int{}, idom: map[ids.BlockID]ids.BlockID{}}
	}

	order := reversePostorder(f, entry.ID)
	index := make(map[ids.BlockID]int, len(order))
	for i, id := range order {
		index[id] = i
	}

	idom := make(map[ids.BlockID]ids.BlockID, len(order))
	idom[entry.ID] = entry.ID

	changed := true
	for changed {
		changed = false

		for _, id := range order[1:] {
			bb := f.BlockByID(id)

			var newIdom ids.BlockID

			found := false

			for _, p := range bb.Preds {
				if _, ok := idom[p]; !ok {
					continue // predecessor not yet processed this pass
				}

				if !found {
					newIdom = p
					found = true

					continue
				}

				newIdom = intersect(idom, index, newIdom, p)
			}

			if !found {
				continue
			}

			if cur, ok := idom[id]; !ok || cur != newIdom {
				idom[id] = newIdom
				changed = true
			}
		}
	}

	return &Dominance{order: order, index: index, idom: idom, entry: entry.ID}
}

func intersect(idom map[ids.BlockID]ids.BlockID, index map[ids.BlockID]int, a, b ids.BlockID) ids.BlockID {
	for a != b {
		for index[a] > index[b] {
			a = idom[a]
		}

		for index[b] > index[a] {
			b = idom[b]
		}
	}

	return a
}

func reversePostorder(f *Function, entry ids.BlockID) []ids.BlockID {
	var post []ids.BlockID

	visited := map[ids.BlockID]bool{}

	var visit func(id ids.BlockID)

	visit = func(id ids.BlockID) {
		if visited[id] {
			return
		}

		visited[id] = true

		bb := f.BlockByID(id)
		if bb == nil {
			return
		}

		for _, s := range bb.Succs {
			visit(s)
		}

		post = append(post, id)
	}

	visit(entry)

	out := make([]ids.BlockID, len(post))
	for i, id := range post {
		out[len(post)-1-i] = id
	}

	return out
}

// IDom returns id's immediate dominator, and false if id is unreachable
// or is the entry block (whose immediate dominator is itself by
// convention).
func (d *Dominance) IDom(id ids.BlockID) (ids.BlockID, bool) {
	idom, ok := d.idom[id]
	if !ok || idom == id {
		return idom, false
	}

	return idom, true
}

// Dominates reports whether a dominates b (every path from the entry to
// b passes through a). A block trivially dominates itself.
func (d *Dominance) Dominates(a, b ids.BlockID) bool {
	if a == b {
		return true
	}

	cur, ok := d.idom[b]
	if !ok {
		return false
	}

	for cur != d.entry {
		if cur == a {
			return true
		}

		cur = d.idom[cur]
	}

	return cur == a
}

// ReversePostorder returns the function's blocks in reverse-postorder,
// the traversal order most dataflow passes (Mem2Reg, GVN, LICM) want.
func (d *Dominance) ReversePostorder() []ids.BlockID { return d.order }
