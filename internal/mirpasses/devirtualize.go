package mirpasses

import (
	"vellum/internal/ids"
	"vellum/internal/mir"
	"vellum/internal/types"
)

// DevirtReason records which strategy converted a virtual MethodCall to
// a direct Call. When more than one strategy applies, sealed/exact/final
// are preferred over single-impl and type narrowing: the strategies
// sound without runtime information are tried first.
type DevirtReason int

const (
	DevirtNone DevirtReason = iota
	DevirtSealedClass
	DevirtFinalMethod
	DevirtSingleImpl
	DevirtExactType
	DevirtTypeNarrowing
)

// DevirtualizationStats breaks down RunModule's decisions per strategy.
type DevirtualizationStats struct {
	Stats
	MethodCallsAnalyzed    int
	DevirtualizedSealed    int
	DevirtualizedFinal     int
	DevirtualizedSingle    int
	DevirtualizedExact     int
	DevirtualizedNarrowing int
	NotDevirtualized       int
}

// DevirtualizationPass converts MethodCall instructions to direct Call
// instructions when the receiver's exact runtime type (or enough of the
// hierarchy) is known. Whole-program and profile-guided modes are off
// by default and not implemented here; a call no strategy covers stays
// virtual.
type DevirtualizationPass struct {
	Hierarchy *types.ClassHierarchy
	// Decisions records, per call site, which bonus Inlining should apply
	// — consumed by a subsequent InliningPass's DevirtInfo.
	Decisions map[callSite]InlineBonusSource
}

// NewDevirtualizationPass returns a devirtualization pass over h.
func NewDevirtualizationPass(h *types.ClassHierarchy) *DevirtualizationPass {
	return &DevirtualizationPass{Hierarchy: h, Decisions: map[callSite]InlineBonusSource{}}
}

func (p *DevirtualizationPass) Name() string { return "Devirtualization" }

func (p *DevirtualizationPass) RunModule(m *mir.Module) (bool, Stats) {
	stats := &DevirtualizationStats{Stats: Stats{PassName: p.Name()}}
	changed := false

	for _, fn := range m.Functions {
		for _, bb := range fn.Blocks {
			exact := exactConstructedInBlock(bb)

			for i, in := range bb.Instrs {
				mc, ok := in.Variant.(mir.MethodCall)
				if !ok {
					continue
				}

				stats.MethodCallsAnalyzed++

				target, reason := p.resolve(mc, exact[mc.Receiver])
				if reason == DevirtNone {
					stats.NotDevirtualized++

					continue
				}

				bb.Instrs[i].Variant = mir.Call{
					Callee:     target,
					Args:       append([]ids.ValueID{mc.Receiver}, mc.Args...),
					ReturnType: mc.ReturnType,
					TailCall:   mc.TailCall,
				}

				switch reason {
				case DevirtSealedClass, DevirtFinalMethod:
					stats.DevirtualizedSealed++
					p.Decisions[callSite{fn.Name, bb.ID, i}] = BonusDevirtSealed
				case DevirtExactType:
					stats.DevirtualizedExact++
					p.Decisions[callSite{fn.Name, bb.ID, i}] = BonusDevirtExact
				case DevirtSingleImpl, DevirtTypeNarrowing:
					stats.DevirtualizedSingle++
					p.Decisions[callSite{fn.Name, bb.ID, i}] = BonusDevirtPlain
				}

				changed = true
			}
		}
	}

	return changed, stats.Stats
}

// resolve picks a devirtualization strategy for one MethodCall in
// preference order, returning the mangled direct-callee name
// ("ReceiverType_methodName") and the reason.
func (p *DevirtualizationPass) resolve(mc mir.MethodCall, exactType string) (string, DevirtReason) {
	recvName := mc.ReceiverType.Name
	info, known := p.Hierarchy.Lookup(recvName)

	switch {
	case known && info.IsSealed:
		return recvName + "_" + mc.MethodName, DevirtSealedClass
	case known && info.IsMethodFinal(mc.MethodName):
		return recvName + "_" + mc.MethodName, DevirtFinalMethod
	case known && info.IsLeaf():
		return recvName + "_" + mc.MethodName, DevirtSealedClass
	case exactType != "":
		return exactType + "_" + mc.MethodName, DevirtExactType
	case known && len(info.TransitiveSubclasses) == 1:
		for sub := range info.TransitiveSubclasses {
			return sub + "_" + mc.MethodName, DevirtSingleImpl
		}
	}

	return "", DevirtNone
}

// exactConstructedInBlock finds every SSA value in bb whose exact runtime
// type is known because it was just produced, earlier in the same
// straight-line block, by a StructInit. Cross-block exact-type tracking
// would need `when x is T` narrowing flow info; this local, same-block
// approximation covers the common "let d = Dog { ... }; d.speak()" shape
// without it; a receiver returned by a constructor call is not recognised.
func exactConstructedInBlock(bb *mir.BasicBlock) map[ids.ValueID]string {
	out := map[ids.ValueID]string{}

	for _, in := range bb.Instrs {
		if si, ok := in.Variant.(mir.StructInit); ok && in.Result.IsValid() {
			out[in.Result] = si.StructName
		}
	}

	return out
}
