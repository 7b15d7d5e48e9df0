package mirpasses

import (
	"vellum/internal/ids"
	"vellum/internal/mir"
)

// InliningOptions configures InliningPass's cost model.
type InliningOptions struct {
	BaseThreshold          int
	RecursiveLimit         int
	MaxCalleeSize          int
	CallPenalty            int
	OptLevel               int
	DevirtBonus            int
	DevirtExactBonus       int
	DevirtSealedBonus      int
	ConstructorBonus       int
	BaseConstructorBonus   int
	AlwaysInlineSingleExpr bool
	SingleExprMaxSize      int
}

// DefaultInliningOptions returns the stock cost-model defaults.
func DefaultInliningOptions() InliningOptions {
	return InliningOptions{
		BaseThreshold:          250,
		RecursiveLimit:         3,
		MaxCalleeSize:          500,
		CallPenalty:            20,
		OptLevel:               2,
		DevirtBonus:            100,
		DevirtExactBonus:       150,
		DevirtSealedBonus:      120,
		ConstructorBonus:       200,
		BaseConstructorBonus:   250,
		AlwaysInlineSingleExpr: true,
		SingleExprMaxSize:      3,
	}
}

// InlineBonusSource names a devirtualization/construction reason a call
// site can claim a threshold bonus for. When more than one bonus could
// apply to the same call site, a deterministic tie-break is needed:
// applying at most one source per call (devirt bonus takes priority over
// constructor bonus when a call is both, since a devirtualized
// constructor call is rare and the devirt bonus is evaluated first in
// bonusFor below) — recorded in DESIGN.md.
type InlineBonusSource int

const (
	BonusNone InlineBonusSource = iota
	BonusDevirtSealed
	BonusDevirtExact
	BonusDevirtPlain
	BonusBaseConstructor
	BonusConstructor
)

// InliningStats breaks down what RunModule did and why calls were
// rejected.
type InliningStats struct {
	Stats
	CallsAnalyzed      int
	CallsInlined       int
	AlwaysInlineCount  int
	NeverInlineCount   int
	RecursiveLimitHit  int
	TooLarge           int
	NoDefinition       int
	DevirtCallsInlined int
	ConstructorInlined int
}

// InliningPass performs cost-based inlining.
type InliningPass struct {
	Opts       InliningOptions
	DevirtInfo map[callSite]InlineBonusSource // populated by a preceding Devirtualization run
}

// NewInliningPass returns an inlining pass with the default cost model.
func NewInliningPass() *InliningPass { return &InliningPass{Opts: DefaultInliningOptions()} }

// NewInliningPassWithOptions returns an inlining pass with custom options.
func NewInliningPassWithOptions(opts InliningOptions) *InliningPass {
	return &InliningPass{Opts: opts}
}

func (p *InliningPass) Name() string { return "Inlining" }

// callSite identifies one call instruction for bonus bookkeeping:
// (caller function name, block id, instruction index).
type callSite struct {
	Caller string
	Block  ids.BlockID
	Index  int
}

// RunModule inlines eligible call sites across the module.
// Callee instruction counts are recomputed from the caller's current
// state on each outer iteration so a just-inlined callee's own (already
// inlined) calls are visible to subsequent analysis; the driver loop
// iterates to a fixpoint.
func (p *InliningPass) RunModule(m *mir.Module) (bool, Stats) {
	istats := &InliningStats{Stats: Stats{PassName: p.Name()}}
	changed := false

	threshold := p.Opts.BaseThreshold
	switch p.Opts.OptLevel {
	case 1:
		threshold *= 1
	case 2:
		threshold *= 2
	case 3:
		threshold *= 4
	}

	depth := map[string]int{}

	for iter := 0; iter < 8; iter++ {
		iterChanged := false

		for _, caller := range m.Functions {
			for _, bb := range caller.Blocks {
				for i := 0; i < len(bb.Instrs); i++ {
					call, ok := bb.Instrs[i].Variant.(mir.Call)
					if !ok || call.TailCall {
						continue
					}

					istats.CallsAnalyzed++

					callee := m.FindFunction(call.Callee)
					if callee == nil {
						istats.NoDefinition++

						continue
					}

					if callee.HasAttr(mir.AttrNoInline) {
						istats.NeverInlineCount++

						continue
					}

					site := callSite{caller.Name, bb.ID, i}

					always := callee.HasAttr(mir.AttrAlwaysInline) ||
						(p.Opts.AlwaysInlineSingleExpr && callee.InstructionCount() <= p.Opts.SingleExprMaxSize)

					if callee.Name == caller.Name {
						if depth[caller.Name] >= p.Opts.RecursiveLimit && !always {
							istats.RecursiveLimitHit++

							continue
						}
					}

					if callee.InstructionCount() > p.Opts.MaxCalleeSize && !always {
						istats.TooLarge++

						continue
					}

					if !always {
						netCost := p.instructionCost(callee) - p.Opts.CallPenalty
						bonus, bonusSrc := p.bonusFor(site, callee)
						if netCost-bonus > threshold {
							continue
						}

						switch {
						case bonusSrc == BonusConstructor || bonusSrc == BonusBaseConstructor:
							istats.ConstructorInlined++
						case bonus > 0:
							istats.DevirtCallsInlined++
						}
					} else {
						istats.AlwaysInlineCount++
					}

					if inlineCallAt(caller, bb, i, callee) {
						istats.CallsInlined++
						depth[caller.Name]++
						iterChanged = true
						changed = true

						break // bb.Instrs was spliced; restart this block next outer pass
					}
				}
			}
		}

		if !iterChanged {
			break
		}
	}

	istats.InstructionsChanged = istats.CallsInlined

	return changed, istats.Stats
}

func (p *InliningPass) instructionCost(fn *mir.Function) int {
	cost := 0

	for _, bb := range fn.Blocks {
		for _, in := range bb.Instrs {
			switch in.Variant.(type) {
			case mir.Call, mir.MethodCall:
				cost += p.Opts.CallPenalty
			default:
				cost++
			}
		}
	}

	return cost
}

// bonusFor returns the threshold bonus for site and which source granted
// it. A bonus recorded in DevirtInfo by a preceding Devirtualization run
// always wins (see InlineBonusSource's doc comment on tie-break order);
// only when no devirt bonus was recorded does it fall back to recognizing
// callee itself as a constructor.
func (p *InliningPass) bonusFor(site callSite, callee *mir.Function) (int, InlineBonusSource) {
	src := p.DevirtInfo[site]
	if src == BonusNone {
		src = constructorBonusSource(callee)
	}

	switch src {
	case BonusDevirtSealed:
		return p.Opts.DevirtBonus + p.Opts.DevirtSealedBonus, src
	case BonusDevirtExact:
		return p.Opts.DevirtBonus + p.Opts.DevirtExactBonus, src
	case BonusDevirtPlain:
		return p.Opts.DevirtBonus, src
	case BonusBaseConstructor:
		return p.Opts.ConstructorBonus + p.Opts.BaseConstructorBonus, src
	case BonusConstructor:
		return p.Opts.ConstructorBonus, src
	default:
		return 0, BonusNone
	}
}

// constructorBonusSource recognizes callee as a lowered constructor by the
// "<Type>::new"/"<Type>_new" naming convention this package already uses
// for drop methods (dropTargetType in dataflow.go) and reset methods
// (DestructorHoistPass). A constructor whose own body calls another
// constructor is chaining into a base class's constructor; a constructor
// with no such call is a plain constructor.
func constructorBonusSource(callee *mir.Function) InlineBonusSource {
	if _, ok := constructorTargetType(callee.Name); !ok {
		return BonusNone
	}

	for _, bb := range callee.Blocks {
		for _, in := range bb.Instrs {
			call, ok := in.Variant.(mir.Call)
			if !ok {
				continue
			}

			if _, ok := constructorTargetType(call.Callee); ok {
				return BonusBaseConstructor
			}
		}
	}

	return BonusConstructor
}

// constructorTargetType extracts the constructed type's name from a
// lowered constructor callee's name, e.g. "Dog::new" -> "Dog".
func constructorTargetType(callee string) (string, bool) {
	if idx := indexOfSuffix(callee, "::new"); idx >= 0 {
		return callee[:idx], true
	}

	if idx := indexOfSuffix(callee, "_new"); idx >= 0 {
		return callee[:idx], true
	}

	return "", false
}

// AlwaysInlinePass unconditionally inlines every call whose callee is
// marked `@inline`.
type AlwaysInlinePass struct{}

func NewAlwaysInlinePass() *AlwaysInlinePass { return &AlwaysInlinePass{} }

func (p *AlwaysInlinePass) Name() string { return "AlwaysInline" }

func (p *AlwaysInlinePass) RunModule(m *mir.Module) (bool, Stats) {
	stats := Stats{PassName: p.Name()}
	changed := false

	for iter := 0; iter < 8; iter++ {
		iterChanged := false

		for _, caller := range m.Functions {
			for _, bb := range caller.Blocks {
				for i := 0; i < len(bb.Instrs); i++ {
					call, ok := bb.Instrs[i].Variant.(mir.Call)
					if !ok {
						continue
					}

					callee := m.FindFunction(call.Callee)
					if callee == nil || !callee.HasAttr(mir.AttrAlwaysInline) {
						continue
					}

					if inlineCallAt(caller, bb, i, callee) {
						stats.InstructionsChanged++
						changed = true
						iterChanged = true

						break
					}
				}
			}
		}

		if !iterChanged {
			break
		}
	}

	return changed, stats
}

// inlineCallAt splices a fresh clone of callee's body into caller at
// block bb, instruction index i, replacing the Call with a branch into
// the cloned entry and rewriting the cloned exit(s) to produce the call's
// result via a Phi feeding the remainder of bb.
func inlineCallAt(caller *mir.Function, bb *mir.BasicBlock, i int, callee *mir.Function) bool {
	call, ok := bb.Instrs[i].Variant.(mir.Call)
	if !ok {
		return false
	}

	resultID := bb.Instrs[i].Result
	resultTy := bb.Instrs[i].Ty

	valueMap := map[ids.ValueID]ids.ValueID{}
	for pi, param := range callee.Params {
		if pi < len(call.Args) {
			valueMap[param.ID] = call.Args[pi]
		}
	}

	blockMap := map[*mir.BasicBlock]*mir.BasicBlock{}
	clones := make([]*mir.BasicBlock, len(callee.Blocks))

	for bi, src := range callee.Blocks {
		nb := &mir.BasicBlock{ID: caller.BlockGen.Fresh(), Name: "inline." + src.Name}
		clones[bi] = nb
		blockMap[src] = nb
	}

	for _, src := range callee.Blocks {
		for _, in := range src.Instrs {
			result := ids.InvalidValueID
			if in.Result.IsValid() {
				result = caller.ValueGen.Fresh()
				valueMap[in.Result] = result
			}

			blockMap[src].Instrs = append(blockMap[src].Instrs, mir.Instruction{
				Result: result, Ty: in.Ty, Variant: in.Variant,
			})
		}
	}

	remap := func(v ids.ValueID) ids.ValueID {
		if nv, ok := valueMap[v]; ok {
			return nv
		}

		return v
	}

	for bi, src := range callee.Blocks {
		for ii := range blockMap[src].Instrs {
			blockMap[src].Instrs[ii].Variant = rewriteOperands(blockMap[src].Instrs[ii].Variant, remap)
		}

		_ = bi
	}

	// The instructions following the call in bb (the "remainder") move to
	// a new continuation block; the call itself is deleted.
	cont := &mir.BasicBlock{ID: caller.BlockGen.Fresh(), Name: bb.Name + ".cont"}
	cont.Instrs = append(cont.Instrs, bb.Instrs[i+1:]...)
	cont.Term = bb.Term
	cont.Succs = bb.Succs

	for _, s := range cont.Succs {
		if sb := caller.BlockByID(s); sb != nil {
			sb.Preds = replacePredID(sb.Preds, bb.ID, cont.ID)
			replacePhiIncoming(sb, bb.ID, cont.ID)
		}
	}

	bidMap := map[ids.BlockID]ids.BlockID{}
	for _, src := range callee.Blocks {
		bidMap[src.ID] = blockMap[src].ID
	}

	returns := []mir.PhiIncoming{}

	for _, src := range callee.Blocks {
		clone := blockMap[src]

		switch t := src.Term.(type) {
		case mir.Return:
			if t.Value.IsValid() && resultID.IsValid() {
				returns = append(returns, mir.PhiIncoming{Value: remap(t.Value), Block: clone.ID})
			}

			clone.Term = mir.Branch{Target: cont.ID}
			clone.Succs = []ids.BlockID{cont.ID}
			cont.Preds = append(cont.Preds, clone.ID)
		default:
			clone.Term = remapTerminatorBlocks(rewriteTerminator(src.Term, remap), bidMap)
			clone.Succs = append(clone.Succs, clone.Term.Targets()...)
		}
	}

	for _, src := range callee.Blocks {
		clone := blockMap[src]
		for _, p := range src.Preds {
			if pb, ok := blockMap[callee.BlockByID(p)]; ok {
				clone.Preds = append(clone.Preds, pb.ID)
			}
		}
	}

	if resultID.IsValid() {
		if len(returns) == 1 {
			// Single exit: remap every remaining use of resultID in cont to
			// the lone returned value (cont hasn't been spliced into
			// caller.Blocks yet, so a direct rewrite suffices).
			for ii := range cont.Instrs {
				cont.Instrs[ii].Variant = rewriteOperands(cont.Instrs[ii].Variant, func(v ids.ValueID) ids.ValueID {
					if v == resultID {
						return returns[0].Value
					}

					return v
				})
			}

			cont.Term = rewriteTerminator(cont.Term, func(v ids.ValueID) ids.ValueID {
				if v == resultID {
					return returns[0].Value
				}

				return v
			})
		} else if len(returns) > 1 {
			phi := mir.Phi{Incoming: returns}
			cont.Instrs = append([]mir.Instruction{{Result: resultID, Ty: resultTy, Variant: phi}}, cont.Instrs...)
		}
	}

	// Splice the clone and continuation into the caller before retargeting
	// bb's terminator, so setTerminator's Preds/Succs bookkeeping (which
	// looks blocks up by id) can find them.
	caller.Blocks = append(caller.Blocks, cont)
	caller.Blocks = append(caller.Blocks, clones...)

	bb.Instrs = bb.Instrs[:i]

	entryClone := blockMap[callee.Entry()]
	setTerminator(caller, bb, mir.Branch{Target: entryClone.ID})

	return true
}

// remapTerminatorBlocks rewrites every BlockID target of t (Branch,
// CondBranch, Switch) through m — needed on top of rewriteTerminator,
// which only touches ValueID operands, since a cloned callee block's
// terminator still points at the callee's original BlockIDs until this
// runs.
func remapTerminatorBlocks(t mir.Terminator, m map[ids.BlockID]ids.BlockID) mir.Terminator {
	remap := func(b ids.BlockID) ids.BlockID {
		if nb, ok := m[b]; ok {
			return nb
		}

		return b
	}

	switch x := t.(type) {
	case mir.Branch:
		x.Target = remap(x.Target)
		return x
	case mir.CondBranch:
		x.Then, x.Else = remap(x.Then), remap(x.Else)
		return x
	case mir.Switch:
		cases := make([]mir.SwitchCase, len(x.Cases))
		for i, c := range x.Cases {
			c.Target = remap(c.Target)
			cases[i] = c
		}
		x.Cases = cases
		x.Default = remap(x.Default)
		return x
	default:
		return t
	}
}

func replacePredID(list []ids.BlockID, from, to ids.BlockID) []ids.BlockID {
	out := make([]ids.BlockID, len(list))
	for i, x := range list {
		if x == from {
			out[i] = to
		} else {
			out[i] = x
		}
	}

	return out
}
