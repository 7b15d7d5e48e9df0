package passmanager_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"vellum/internal/ids"
	"vellum/internal/mir"
	"vellum/internal/passmanager"
	"vellum/internal/types"
)

func i32() types.Type { return types.NewPrimitive(types.PrimI32) }

func constI32(n int64) mir.Constant { return mir.Constant{I64: n, Signed: true, Width: 32} }

// buildConstArith returns `fn main() -> I32 { (2 + 3) * 4 - 1 }` — spec
// scenario: post-optimization the body is a single Constant(19) and its
// Return.
func buildConstArith() *mir.Module {
	m := mir.NewModule("const_arith")
	fn := mir.NewFunction("main", nil, i32())
	b := mir.NewBuilder(fn)
	b.Block("entry")

	two := b.Emit(i32(), constI32(2))
	three := b.Emit(i32(), constI32(3))
	four := b.Emit(i32(), constI32(4))
	one := b.Emit(i32(), constI32(1))

	sum := b.Emit(i32(), mir.Binary{Op: mir.Add, Left: two, Right: three})
	prod := b.Emit(i32(), mir.Binary{Op: mir.Mul, Left: sum, Right: four})
	diff := b.Emit(i32(), mir.Binary{Op: mir.Sub, Left: prod, Right: one})
	b.Terminate(mir.Return{Value: diff})

	m.Functions = append(m.Functions, fn)

	return m
}

func totalInstructions(m *mir.Module) int {
	n := 0
	for _, fn := range m.Functions {
		n += fn.InstructionCount()
	}

	return n
}

func TestO0LeavesModuleUntouched(t *testing.T) {
	m := buildConstArith()
	before := m.String()

	pm := passmanager.NewPassManager(passmanager.O0, nil)
	res := pm.Run(m)

	require.Empty(t, res.Stats)
	require.Equal(t, before, m.String())
}

func TestEmptyModuleSurvivesFullO3Pipeline(t *testing.T) {
	m := mir.NewModule("empty")

	pm := passmanager.NewPassManager(passmanager.O3, nil)
	require.NotPanics(t, func() { pm.Run(m) })
	require.Empty(t, m.Functions)
}

func TestBareReturnFunctionSurvivesEveryLevelUnchanged(t *testing.T) {
	for _, level := range []passmanager.Level{passmanager.O1, passmanager.O2, passmanager.O3} {
		m := mir.NewModule("bare")
		fn := mir.NewFunction("main", nil, types.Unit())
		b := mir.NewBuilder(fn)
		b.Block("entry")
		b.Terminate(mir.Return{})
		m.Functions = append(m.Functions, fn)

		pm := passmanager.NewPassManager(level, nil)
		pm.Run(m)

		require.Len(t, m.Functions, 1)
		require.Len(t, fn.Blocks, 1)
		require.Empty(t, fn.Blocks[0].Instrs)

		_, ok := fn.Blocks[0].Term.(mir.Return)
		require.True(t, ok)
	}
}

func TestO1CollapsesConstantArithmeticToSingleConstant(t *testing.T) {
	m := buildConstArith()

	pm := passmanager.NewPassManager(passmanager.O1, nil)
	pm.Run(m)

	fn := m.FindFunction("main")
	require.NotNil(t, fn)
	require.Len(t, fn.Blocks, 1)
	require.Len(t, fn.Blocks[0].Instrs, 1)

	c, ok := fn.Blocks[0].Instrs[0].Variant.(mir.Constant)
	require.True(t, ok)
	require.Equal(t, int64(19), c.I64)

	ret, ok := fn.Blocks[0].Term.(mir.Return)
	require.True(t, ok)
	require.Equal(t, fn.Blocks[0].Instrs[0].Result, ret.Value)
}

func TestHigherLevelNeverGrowsInstructionCount(t *testing.T) {
	m1 := buildConstArith()
	m2 := buildConstArith()

	passmanager.NewPassManager(passmanager.O1, nil).Run(m1)
	passmanager.NewPassManager(passmanager.O2, nil).Run(m2)

	require.LessOrEqual(t, totalInstructions(m2), totalInstructions(m1))
}

func TestRunningPipelineTwiceIsIdempotent(t *testing.T) {
	m := buildConstArith()

	pm := passmanager.NewPassManager(passmanager.O2, nil)
	pm.Run(m)
	after := m.String()

	pm.Run(m)
	require.Equal(t, after, m.String())
}

func TestFixpointGroupStopsWhenNothingChanges(t *testing.T) {
	m := buildConstArith()

	pm := passmanager.NewPassManager(passmanager.O1, nil)
	res := pm.Run(m)

	iters, ok := res.Iterations["O1"]
	require.True(t, ok)
	require.Greater(t, iters, 1)
	require.LessOrEqual(t, iters, passmanager.MaxFixpointIterations)
}

func TestParallelAndSequentialRunsAgree(t *testing.T) {
	seq := buildConstArith()
	par := buildConstArith()

	pmSeq := passmanager.NewPassManager(passmanager.O2, nil)
	pmSeq.Parallel = false
	pmSeq.Run(seq)

	pmPar := passmanager.NewPassManager(passmanager.O2, nil)
	pmPar.Run(par)

	require.Equal(t, seq.String(), par.String())
}

func TestO3DevirtualizesAndInlinesSealedClassCall(t *testing.T) {
	m := mir.NewModule("sealed")
	m.Structs["C"] = &types.StructDef{Name: "C"}

	method := mir.NewFunction("C_m", []mir.Param{{ID: 1, Ty: types.Named("C")}}, i32())
	mb := mir.NewBuilder(method)
	mb.Block("entry")
	seven := mb.Emit(i32(), constI32(7))
	mb.Terminate(mir.Return{Value: seven})

	main := mir.NewFunction("main", nil, i32())
	b := mir.NewBuilder(main)
	b.Block("entry")
	recv := b.Emit(types.Named("C"), mir.StructInit{StructName: "C"})
	call := b.Emit(i32(), mir.MethodCall{
		Receiver: recv, ReceiverType: types.Named("C"), MethodName: "m", ReturnType: i32(),
	})
	b.Terminate(mir.Return{Value: call})

	m.Functions = append(m.Functions, method, main)

	hierarchy := types.NewClassHierarchy([]types.ClassInfo{{Name: "C", IsSealed: true}})

	pm := passmanager.NewPassManager(passmanager.O3, hierarchy)
	pm.Run(m)

	fn := m.FindFunction("main")
	require.NotNil(t, fn)

	for _, bb := range fn.Blocks {
		for _, in := range bb.Instrs {
			_, isVirtual := in.Variant.(mir.MethodCall)
			require.False(t, isVirtual, "virtual call survived O3 on a sealed class")
		}
	}
}

func TestCustomPipelineRunsNamedPasses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.toml")

	content := `
[[group]]
name = "scalar"
fixpoint = true
passes = ["ConstantFolding", "DCE"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := passmanager.LoadCustomPipelineConfig(path)
	require.NoError(t, err)

	m := buildConstArith()
	pm := passmanager.NewPassManager(passmanager.O2, nil)

	res, err := pm.RunCustom(m, cfg)
	require.NoError(t, err)
	require.NotEmpty(t, res.Stats)

	// folding plus DCE alone collapse the chain to the returned constant.
	fn := m.FindFunction("main")
	require.Len(t, fn.Blocks[0].Instrs, 1)

	c, ok := fn.Blocks[0].Instrs[0].Variant.(mir.Constant)
	require.True(t, ok)
	require.Equal(t, int64(19), c.I64)
}

func TestCustomPipelineRejectsUnknownPassName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.toml")

	content := `
[[group]]
name = "typo"
passes = ["ConstantFoldingg"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := passmanager.LoadCustomPipelineConfig(path)
	require.NoError(t, err)

	pm := passmanager.NewPassManager(passmanager.O2, nil)
	_, err = pm.RunCustom(mir.NewModule("m"), cfg)
	require.Error(t, err)
}

func TestDeadBranchPrunedAtO2(t *testing.T) {
	m := mir.NewModule("dead_branch")

	leaf := func(name string) *mir.Function {
		fn := mir.NewFunction(name, []mir.Param{{ID: 1, Ty: i32()}}, i32())
		fn.Attrs[mir.AttrNoInline] = true
		b := mir.NewBuilder(fn)
		b.Block("entry")
		b.Terminate(mir.Return{Value: 1})

		return fn
	}

	f := leaf("f")
	g := leaf("g")

	main := mir.NewFunction("main", nil, i32())
	b := mir.NewBuilder(main)
	entry := b.Block("entry")
	cond := b.Emit(types.NewPrimitive(types.PrimBool), mir.Constant{Bool: true})

	thenBB := b.Block("then")
	one := b.Emit(i32(), constI32(1))
	fCall := b.Emit(i32(), mir.Call{Callee: "f", Args: []ids.ValueID{one}, ReturnType: i32()})
	b.Terminate(mir.Return{Value: fCall})

	elseBB := b.Block("else")
	two := b.Emit(i32(), constI32(2))
	gCall := b.Emit(i32(), mir.Call{Callee: "g", Args: []ids.ValueID{two}, ReturnType: i32()})
	b.Terminate(mir.Return{Value: gCall})

	b.SetBlock(entry)
	b.Terminate(mir.CondBranch{Cond: cond, Then: thenBB.ID, Else: elseBB.ID})

	m.Functions = append(m.Functions, f, g, main)

	pm := passmanager.NewPassManager(passmanager.O2, nil)
	pm.Run(m)

	calls := map[string]int{}

	for _, bb := range m.FindFunction("main").Blocks {
		for _, in := range bb.Instrs {
			if c, ok := in.Variant.(mir.Call); ok {
				calls[c.Callee]++
			}
		}
	}

	require.Equal(t, 1, calls["f"])
	require.Zero(t, calls["g"])
}
