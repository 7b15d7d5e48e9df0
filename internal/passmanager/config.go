package passmanager

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"vellum/internal/alias"
	"vellum/internal/mir"
	"vellum/internal/mirpasses"
)

// CustomPipelineConfig is the on-disk shape of a custom pipeline override
// file. Each Groups entry names a sequence of passes run together to
// a local fixpoint when Fixpoint is true, mirroring the group shape
// buildPipeline constructs from the literal O1..O3 tables.
type CustomPipelineConfig struct {
	Groups []struct {
		Name     string   `toml:"name"`
		Passes   []string `toml:"passes"`
		Fixpoint bool     `toml:"fixpoint"`
	} `toml:"group"`
}

// LoadCustomPipelineConfig reads a TOML pipeline override from path, of
// the form:
//
//	[[group]]
//	name = "scalar"
//	fixpoint = true
//	passes = ["SimplifyCfg", "Mem2Reg", "ConstantFolding", "DCE"]
func LoadCustomPipelineConfig(path string) (*CustomPipelineConfig, error) {
	var cfg CustomPipelineConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("passmanager: decode pipeline config %s: %w", path, err)
	}

	return &cfg, nil
}

// RunCustom applies a config loaded by LoadCustomPipelineConfig instead of
// one of the built-in O1..O3 tables. Pass names are resolved against the
// same registry buildPipeline's literal tables draw from; an unknown name
// is a fatal configuration error.
func (pm *PassManager) RunCustom(m *mir.Module, cfg *CustomPipelineConfig) (Result, error) {
	res := Result{Iterations: map[string]int{}}
	registry := pm.passRegistry(m)

	for _, gc := range cfg.Groups {
		g := group{name: gc.Name, fixpoint: gc.Fixpoint}

		for _, name := range gc.Passes {
			entry, ok := registry[name]
			if !ok {
				return res, fmt.Errorf("passmanager: unknown pass %q in group %q", name, gc.Name)
			}

			if entry.fn != nil {
				g.functionPasses = append(g.functionPasses, entry.fn)
			} else {
				g.modulePasses = append(g.modulePasses, entry.mod)
			}
		}

		iterations := pm.runGroup(m, g, &res)
		res.Iterations[g.name] = iterations
	}

	return res, nil
}

type registryEntry struct {
	fn  functionPassFactory
	mod mirpasses.ModulePass
}

// passRegistry maps every pass's pipeline name to its constructor, bound
// to m (and pm.Hierarchy for the OOP passes) so a custom pipeline file can
// reorder or subset the built-in passes by name alone.
func (pm *PassManager) passRegistry(m *mir.Module) map[string]registryEntry {
	fn := func(f functionPassFactory) registryEntry { return registryEntry{fn: f} }
	mod := func(p mirpasses.ModulePass) registryEntry { return registryEntry{mod: p} }

	return map[string]registryEntry{
		"SimplifyCfg":                fn(constFactory(mirpasses.NewSimplifyCfgPass())),
		"Mem2Reg":                    fn(constFactory(mirpasses.NewMem2RegPass())),
		"ConstantFolding":            fn(constFactory(mirpasses.AsFunctionPass(mirpasses.NewConstantFoldingPass()))),
		"ConstantPropagation":        fn(constFactory(mirpasses.NewConstantPropagationPass())),
		"InstSimplify":               fn(constFactory(mirpasses.AsFunctionPass(mirpasses.NewInstSimplifyPass()))),
		"RemoveUnneededDrops":        fn(constFactory(mirpasses.NewRemoveUnneededDropsPass(m))),
		"NormalizeArrayLen":          fn(constFactory(mirpasses.NewNormalizeArrayLenPass())),
		"DCE":                        fn(constFactory(mirpasses.NewDCEPass())),
		"EarlyCSE":                   fn(constFactory(mirpasses.AsFunctionPass(mirpasses.NewEarlyCSEPass()))),
		"CopyPropagation":            fn(constFactory(mirpasses.NewCopyPropagationPass())),
		"GVN":                        fn(aliasFactory(func(a *alias.Analysis) mirpasses.FunctionPass { return mirpasses.NewGVNPass(a) })),
		"LoadStoreOpt":               fn(aliasFactory(func(a *alias.Analysis) mirpasses.FunctionPass { return mirpasses.NewLoadStoreOptPass(a) })),
		"SROA":                       fn(constFactory(mirpasses.NewSROAPass())),
		"Peephole":                   fn(constFactory(mirpasses.AsFunctionPass(mirpasses.NewPeepholePass()))),
		"StrengthReduction":          fn(constFactory(mirpasses.AsFunctionPass(mirpasses.NewStrengthReductionPass()))),
		"Reassociate":                fn(constFactory(mirpasses.NewReassociatePass())),
		"Narrowing":                  fn(constFactory(mirpasses.NewNarrowingPass())),
		"JumpThreading":              fn(constFactory(mirpasses.NewJumpThreadingPass())),
		"MatchSimplify":              fn(constFactory(mirpasses.NewMatchSimplifyPass())),
		"UnreachableCodeElimination": fn(constFactory(mirpasses.NewUnreachableCodeEliminationPass())),
		"BlockMerge":                 fn(constFactory(mirpasses.NewBlockMergePass())),
		"MergeReturns":               fn(constFactory(mirpasses.NewMergeReturnsPass())),
		"Inlining":                   mod(mirpasses.NewInliningPass()),
		"LICM":                       fn(aliasFactory(func(a *alias.Analysis) mirpasses.FunctionPass { return mirpasses.NewLICMPassWithAlias(a) })),
		"LoopRotate":                 fn(constFactory(mirpasses.NewLoopRotatePass())),
		"ConstantHoist":              fn(constFactory(mirpasses.NewConstantHoistPass())),
		"LoopUnroll":                 fn(constFactory(mirpasses.NewLoopUnrollPass())),
		"Sinking":                    fn(constFactory(mirpasses.NewSinkingPass())),
		"ADCE":                       fn(constFactory(mirpasses.NewADCEPass())),
		"AlwaysInline":               mod(mirpasses.NewAlwaysInlinePass()),
		"Devirtualization":           mod(mirpasses.NewDevirtualizationPass(pm.Hierarchy)),
		"DeadMethodElimination":      mod(mirpasses.NewDeadMethodEliminationPass(pm.Hierarchy)),
		"BuilderOpt":                 fn(constFactory(mirpasses.NewBuilderOptPass())),
		"ConstructorFusion":          fn(constFactory(mirpasses.NewConstructorFusionPass(m))),
		"DestructorHoist":            fn(constFactory(mirpasses.NewDestructorHoistPass(m))),
		"BatchDestruction":           fn(constFactory(mirpasses.NewBatchDestructionPass(m))),
		"DeadArgumentElimination":    mod(mirpasses.NewDeadArgumentEliminationPass()),
		"DeadFunctionElimination":    mod(mirpasses.NewDeadFunctionEliminationPass()),
		"TailCall":                   fn(constFactory(mirpasses.NewTailCallPass())),
	}
}
