package mirpasses

import "vellum/internal/mir"

// TailCallPass marks a Call or MethodCall whose result feeds directly
// into the immediately following Return by setting the
// instruction's TailCall flag, so a backend can lower it to a jump
// instead of a call. Self-recursive tail calls are not rewritten into a
// loop here — that is a backend concern once MIR reaches codegen, not
// something this pass needs to decide.
type TailCallPass struct{}

func NewTailCallPass() *TailCallPass { return &TailCallPass{} }

func (p *TailCallPass) Name() string { return "TailCall" }

func (p *TailCallPass) RunFunction(fn *mir.Function) (bool, Stats) {
	stats := Stats{PassName: p.Name()}
	changed := false

	for _, bb := range fn.Blocks {
		if len(bb.Instrs) == 0 {
			continue
		}

		ret, ok := bb.Term.(mir.Return)
		if !ok {
			continue
		}

		last := len(bb.Instrs) - 1

		switch v := bb.Instrs[last].Variant.(type) {
		case mir.Call:
			if bb.Instrs[last].Result != ret.Value || v.TailCall {
				continue
			}

			v.TailCall = true
			bb.Instrs[last].Variant = v
			changed = true
			stats.InstructionsChanged++
		case mir.MethodCall:
			if bb.Instrs[last].Result != ret.Value || v.TailCall {
				continue
			}

			v.TailCall = true
			bb.Instrs[last].Variant = v
			changed = true
			stats.InstructionsChanged++
		}
	}

	return changed, stats
}
