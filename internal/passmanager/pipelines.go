package passmanager

import (
	"vellum/internal/alias"
	"vellum/internal/mir"
	"vellum/internal/mirpasses"
	"vellum/internal/types"
)

// buildPipeline returns the ordered groups for pm.Level. O2's
// table is O1's group plus one more; O3's table is O2's groups plus loop/
// interprocedural/OOP groups and a second pass over O2's scalar group —
// each written out here as a separate group literal rather than sliced
// from a shared backing array, so each level's pipeline reads as the
// spec's own table does.
func (pm *PassManager) buildPipeline(m *mir.Module) []group {
	switch pm.Level {
	case O1:
		return []group{o1Group(m)}
	case O2:
		return []group{o1Group(m), o2ScalarGroup(m)}
	case O3:
		return []group{
			o1Group(m),
			o2ScalarGroup(m),
			o2ScalarGroup(m), // "a second round of O2's scalar group"
			loopGroup(),
			adceGroup(),
			alwaysInlineGroup(),
			devirtInlineGroup(pm.Hierarchy),
			oopGroup(m, pm.Hierarchy),
			interprocGroup(),
			tailCallGroup(),
		}
	default:
		return nil
	}
}

// o1Group is O1's entire pipeline: SimplifyCfg, Mem2Reg,
// ConstantFolding, ConstantPropagation, InstSimplify, RemoveUnneededDrops,
// NormalizeArrayLen, DCE, SimplifyCfg — run to a local fixpoint since
// later passes in the list can re-expose earlier ones' opportunities
// (e.g. DCE removing a block can let a second SimplifyCfg merge its
// former predecessor).
func o1Group(m *mir.Module) group {
	return group{
		name:     "O1",
		fixpoint: true,
		functionPasses: []functionPassFactory{
			constFactory(mirpasses.NewSimplifyCfgPass()),
			constFactory(mirpasses.NewMem2RegPass()),
			constFactory(mirpasses.AsFunctionPass(mirpasses.NewConstantFoldingPass())),
			constFactory(mirpasses.NewConstantPropagationPass()),
			constFactory(mirpasses.AsFunctionPass(mirpasses.NewInstSimplifyPass())),
			constFactory(mirpasses.NewRemoveUnneededDropsPass(m)),
			constFactory(mirpasses.NewNormalizeArrayLenPass()),
			constFactory(mirpasses.NewDCEPass()),
			constFactory(mirpasses.NewSimplifyCfgPass()),
		},
	}
}

// o2ScalarGroup is the scalar/CFG group O2 adds on top of O1:
// EarlyCSE, CopyPropagation, GVN, LoadStoreOpt, SROA, Peephole,
// StrengthReduction, Reassociate, Narrowing, JumpThreading, MatchSimplify,
// UnreachableCodeElimination, BlockMerge, MergeReturns, then Inlining
// (baseline, module-level) once the scalar group reaches its own
// fixpoint.
func o2ScalarGroup(m *mir.Module) group {
	return group{
		name:     "O2",
		fixpoint: true,
		functionPasses: []functionPassFactory{
			constFactory(mirpasses.AsFunctionPass(mirpasses.NewEarlyCSEPass())),
			constFactory(mirpasses.NewCopyPropagationPass()),
			aliasFactory(func(a *alias.Analysis) mirpasses.FunctionPass { return mirpasses.NewGVNPass(a) }),
			aliasFactory(func(a *alias.Analysis) mirpasses.FunctionPass { return mirpasses.NewLoadStoreOptPass(a) }),
			constFactory(mirpasses.NewSROAPass()),
			constFactory(mirpasses.AsFunctionPass(mirpasses.NewPeepholePass())),
			constFactory(mirpasses.AsFunctionPass(mirpasses.NewStrengthReductionPass())),
			constFactory(mirpasses.NewReassociatePass()),
			constFactory(mirpasses.NewNarrowingPass()),
			constFactory(mirpasses.NewJumpThreadingPass()),
			constFactory(mirpasses.NewMatchSimplifyPass()),
			constFactory(mirpasses.NewUnreachableCodeEliminationPass()),
			constFactory(mirpasses.NewBlockMergePass()),
			constFactory(mirpasses.NewMergeReturnsPass()),
		},
		modulePasses: []mirpasses.ModulePass{mirpasses.NewInliningPass()},
	}
}

// loopGroup is O3's loop group: LICM, LoopRotate,
// ConstantHoist, LoopUnroll, Sinking, run to a local fixpoint since
// LoopRotate can expose a new LICM opportunity and vice versa.
func loopGroup() group {
	return group{
		name:     "O3-loop",
		fixpoint: true,
		functionPasses: []functionPassFactory{
			aliasFactory(func(a *alias.Analysis) mirpasses.FunctionPass { return mirpasses.NewLICMPassWithAlias(a) }),
			constFactory(mirpasses.NewLoopRotatePass()),
			constFactory(mirpasses.NewConstantHoistPass()),
			constFactory(mirpasses.NewLoopUnrollPass()),
			constFactory(mirpasses.NewSinkingPass()),
		},
	}
}

// adceGroup runs ADCE once.
func adceGroup() group {
	return group{
		name: "O3-adce",
		functionPasses: []functionPassFactory{
			constFactory(mirpasses.NewADCEPass()),
		},
	}
}

// alwaysInlineGroup runs AlwaysInline once.
func alwaysInlineGroup() group {
	return group{
		name:         "O3-alwaysinline",
		modulePasses: []mirpasses.ModulePass{mirpasses.NewAlwaysInlinePass()},
	}
}

// devirtInlineGroup wires the devirt-aware inlining stage:
// Devirtualization runs first and records its
// per-call-site bonus decisions, then a second InliningPass instance
// consumes them via DevirtInfo so a just-devirtualized call gets its
// devirt bonus on the very same pipeline pass instead of waiting for
// another full O2 round.
func devirtInlineGroup(hierarchy *types.ClassHierarchy) group {
	return group{
		name:         "O3-devirt",
		modulePasses: []mirpasses.ModulePass{&devirtThenInline{hierarchy: hierarchy}},
	}
}

type devirtThenInline struct{ hierarchy *types.ClassHierarchy }

func (d *devirtThenInline) Name() string { return "Devirtualization+Inlining" }

func (d *devirtThenInline) RunModule(m *mir.Module) (bool, mirpasses.Stats) {
	devirt := mirpasses.NewDevirtualizationPass(d.hierarchy)
	devirtChanged, devirtStats := devirt.RunModule(m)

	inline := mirpasses.NewInliningPassWithOptions(mirpasses.DefaultInliningOptions())
	inline.DevirtInfo = devirt.Decisions

	inlineChanged, inlineStats := inline.RunModule(m)

	merged := devirtStats
	merged.PassName = d.Name()
	merged.InstructionsVisited += inlineStats.InstructionsVisited
	merged.InstructionsChanged += inlineStats.InstructionsChanged
	merged.InstructionsRemoved += inlineStats.InstructionsRemoved
	merged.BlocksRemoved += inlineStats.BlocksRemoved
	merged.FunctionsRemoved += inlineStats.FunctionsRemoved

	return devirtChanged || inlineChanged, merged
}

// oopGroup is O3's OOP group: DeadMethodElimination,
// BuilderOpt, ConstructorFusion, DestructorHoist, BatchDestruction.
func oopGroup(m *mir.Module, hierarchy *types.ClassHierarchy) group {
	return group{
		name: "O3-oop",
		functionPasses: []functionPassFactory{
			constFactory(mirpasses.NewBuilderOptPass()),
			constFactory(mirpasses.NewConstructorFusionPass(m)),
			constFactory(mirpasses.NewDestructorHoistPass(m)),
			constFactory(mirpasses.NewBatchDestructionPass(m)),
		},
		modulePasses: []mirpasses.ModulePass{mirpasses.NewDeadMethodEliminationPass(hierarchy)},
	}
}

// interprocGroup is O3's interprocedural group:
// DeadArgElimination, DeadFunctionElimination.
func interprocGroup() group {
	return group{
		name: "O3-interproc",
		modulePasses: []mirpasses.ModulePass{
			mirpasses.NewDeadArgumentEliminationPass(),
			mirpasses.NewDeadFunctionEliminationPass(),
		},
	}
}

// tailCallGroup runs TailCall once.
func tailCallGroup() group {
	return group{
		name: "O3-tailcall",
		functionPasses: []functionPassFactory{
			constFactory(mirpasses.NewTailCallPass()),
		},
	}
}
