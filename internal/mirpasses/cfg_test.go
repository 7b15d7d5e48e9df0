package mirpasses_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"vellum/internal/ids"
	"vellum/internal/mir"
	"vellum/internal/mirpasses"
	"vellum/internal/types"
)

func i32Type() types.Type { return types.NewPrimitive(types.PrimI32) }

func TestSimplifyCfgFoldsConstantBranch(t *testing.T) {
	fn := mir.NewFunction("f", nil, i32Type())
	b := mir.NewBuilder(fn)

	entry := b.Block("entry")
	thenBB := b.Block("then")
	elseBB := b.Block("else")

	b.SetBlock(entry)
	cond := b.Emit(types.NewPrimitive(types.PrimBool), mir.Constant{Bool: true})
	b.Terminate(mir.CondBranch{Cond: cond, Then: thenBB.ID, Else: elseBB.ID})

	b.SetBlock(thenBB)
	v := b.Emit(i32Type(), mir.Constant{I64: 1, Signed: true})
	b.Terminate(mir.Return{Value: v})

	b.SetBlock(elseBB)
	v2 := b.Emit(i32Type(), mir.Constant{I64: 2, Signed: true})
	b.Terminate(mir.Return{Value: v2})

	pass := mirpasses.NewSimplifyCfgPass()
	changed, _ := pass.RunFunction(fn)
	require.True(t, changed)

	// the constant branch folds to an unconditional edge into thenBB, the
	// dead elseBB is pruned, and entry/thenBB (now a trivial single-pred
	// chain) fuse into one block returning the folded constant.
	require.Len(t, fn.Blocks, 1)

	ret, ok := fn.Blocks[0].Term.(mir.Return)
	require.True(t, ok)
	require.True(t, ret.Value.IsValid())
}

func TestSimplifyCfgRemovesEmptyBranchOnlyBlock(t *testing.T) {
	fn := mir.NewFunction("f", nil, i32Type())
	b := mir.NewBuilder(fn)

	entry := b.Block("entry")
	empty := b.Block("empty")
	exit := b.Block("exit")

	b.SetBlock(entry)
	b.Terminate(mir.Branch{Target: empty.ID})

	b.SetBlock(empty)
	b.Terminate(mir.Branch{Target: exit.ID})

	b.SetBlock(exit)
	v := b.Emit(i32Type(), mir.Constant{I64: 7, Signed: true})
	b.Terminate(mir.Return{Value: v})

	pass := mirpasses.NewSimplifyCfgPass()
	changed, _ := pass.RunFunction(fn)
	require.True(t, changed)

	for _, bb := range fn.Blocks {
		require.NotEqual(t, empty.ID, bb.ID)
	}

	// entry, the empty redirector, and exit all collapse into one block:
	// the empty block is removed and entry/exit are then fused by the
	// merge step within the same fixpoint round.
	require.Len(t, fn.Blocks, 1)

	_, ok := fn.Blocks[0].Term.(mir.Return)
	require.True(t, ok)
}

func TestSimplifyCfgPrunesUnreachableBlock(t *testing.T) {
	fn := mir.NewFunction("f", nil, i32Type())
	b := mir.NewBuilder(fn)

	entry := b.Block("entry")
	dead := b.Block("dead")

	b.SetBlock(entry)
	v := b.Emit(i32Type(), mir.Constant{I64: 0, Signed: true})
	b.Terminate(mir.Return{Value: v})

	b.SetBlock(dead)
	b.Terminate(mir.Unreachable{})

	pass := mirpasses.NewSimplifyCfgPass()
	changed, _ := pass.RunFunction(fn)
	require.True(t, changed)
	require.Len(t, fn.Blocks, 1)
	require.Equal(t, entry.ID, fn.Blocks[0].ID)
}

func TestBlockMergeFusesSingleSuccessor(t *testing.T) {
	fn := mir.NewFunction("f", nil, i32Type())
	b := mir.NewBuilder(fn)

	entry := b.Block("entry")
	next := b.Block("next")

	b.SetBlock(entry)
	b.Terminate(mir.Branch{Target: next.ID})

	b.SetBlock(next)
	v := b.Emit(i32Type(), mir.Constant{I64: 3, Signed: true})
	b.Terminate(mir.Return{Value: v})

	pass := mirpasses.NewBlockMergePass()
	changed, _ := pass.RunFunction(fn)
	require.True(t, changed)
	require.Len(t, fn.Blocks, 1)
	require.Len(t, fn.Blocks[0].Instrs, 1)
}

func TestJumpThreadingSkipsRedundantRetest(t *testing.T) {
	fn := mir.NewFunction("f", []mir.Param{{ID: 1, Ty: types.NewPrimitive(types.PrimBool)}}, i32Type())
	b := mir.NewBuilder(fn)

	entry := b.Block("entry")
	mid := b.Block("mid")
	thenBB := b.Block("then")
	elseBB := b.Block("else")

	b.SetBlock(entry)
	b.Terminate(mir.CondBranch{Cond: 1, Then: mid.ID, Else: elseBB.ID})

	b.SetBlock(mid)
	b.Terminate(mir.CondBranch{Cond: 1, Then: thenBB.ID, Else: elseBB.ID})

	b.SetBlock(thenBB)
	v1 := b.Emit(i32Type(), mir.Constant{I64: 1, Signed: true})
	b.Terminate(mir.Return{Value: v1})

	b.SetBlock(elseBB)
	v2 := b.Emit(i32Type(), mir.Constant{I64: 2, Signed: true})
	b.Terminate(mir.Return{Value: v2})

	pass := mirpasses.NewJumpThreadingPass()
	changed, _ := pass.RunFunction(fn)
	require.True(t, changed)

	cb, ok := entry.Term.(mir.CondBranch)
	require.True(t, ok)
	require.Equal(t, thenBB.ID, cb.Then)
	require.Equal(t, elseBB.ID, cb.Else)
}

func TestMergeReturnsUnifiesExitBlock(t *testing.T) {
	fn := mir.NewFunction("f", []mir.Param{{ID: 1, Ty: types.NewPrimitive(types.PrimBool)}}, i32Type())
	b := mir.NewBuilder(fn)

	entry := b.Block("entry")
	thenBB := b.Block("then")
	elseBB := b.Block("else")

	b.SetBlock(entry)
	b.Terminate(mir.CondBranch{Cond: 1, Then: thenBB.ID, Else: elseBB.ID})

	b.SetBlock(thenBB)
	v1 := b.Emit(i32Type(), mir.Constant{I64: 1, Signed: true})
	b.Terminate(mir.Return{Value: v1})

	b.SetBlock(elseBB)
	v2 := b.Emit(i32Type(), mir.Constant{I64: 2, Signed: true})
	b.Terminate(mir.Return{Value: v2})

	pass := mirpasses.NewMergeReturnsPass()
	changed, _ := pass.RunFunction(fn)
	require.True(t, changed)

	var returns int

	for _, bb := range fn.Blocks {
		if _, ok := bb.Term.(mir.Return); ok {
			returns++
		}
	}

	require.Equal(t, 1, returns)
}

func TestMergeReturnsNoopForSingleReturn(t *testing.T) {
	fn := mir.NewFunction("f", nil, i32Type())
	b := mir.NewBuilder(fn)

	entry := b.Block("entry")
	b.SetBlock(entry)
	v := b.Emit(i32Type(), mir.Constant{I64: 9, Signed: true})
	b.Terminate(mir.Return{Value: v})

	pass := mirpasses.NewMergeReturnsPass()
	changed, _ := pass.RunFunction(fn)
	require.False(t, changed)
	require.Len(t, fn.Blocks, 1)
}

func TestMatchSimplifyFoldsConstantDiscriminant(t *testing.T) {
	fn := mir.NewFunction("f", nil, i32Type())
	b := mir.NewBuilder(fn)

	entry := b.Block("entry")
	caseA := b.Block("caseA")
	caseB := b.Block("caseB")
	def := b.Block("default")

	b.SetBlock(entry)
	disc := b.Emit(i32Type(), mir.Constant{I64: 2, Signed: true})
	b.Terminate(mir.Switch{
		Value: disc,
		Cases: []mir.SwitchCase{
			{Value: 1, Target: caseA.ID},
			{Value: 2, Target: caseB.ID},
		},
		Default: def.ID,
	})

	b.SetBlock(caseA)
	b.Terminate(mir.Return{})

	b.SetBlock(caseB)
	b.Terminate(mir.Return{})

	b.SetBlock(def)
	b.Terminate(mir.Return{})

	pass := mirpasses.NewMatchSimplifyPass()
	changed, _ := pass.RunFunction(fn)
	require.True(t, changed)

	br, ok := entry.Term.(mir.Branch)
	require.True(t, ok)
	require.Equal(t, caseB.ID, br.Target)
}

func TestMatchSimplifyConvertsSingleCaseToCondBranch(t *testing.T) {
	fn := mir.NewFunction("f", []mir.Param{{ID: 1, Ty: i32Type()}}, i32Type())
	b := mir.NewBuilder(fn)

	entry := b.Block("entry")
	caseA := b.Block("caseA")
	def := b.Block("default")

	b.SetBlock(entry)
	b.Terminate(mir.Switch{
		Value:   1,
		Cases:   []mir.SwitchCase{{Value: 5, Target: caseA.ID}},
		Default: def.ID,
	})

	b.SetBlock(caseA)
	b.Terminate(mir.Return{})

	b.SetBlock(def)
	b.Terminate(mir.Return{})

	pass := mirpasses.NewMatchSimplifyPass()
	changed, _ := pass.RunFunction(fn)
	require.True(t, changed)

	cb, ok := entry.Term.(mir.CondBranch)
	require.True(t, ok)
	require.Equal(t, caseA.ID, cb.Then)
	require.Equal(t, def.ID, cb.Else)
	require.True(t, ids.ValueID(cb.Cond).IsValid())
}

func TestUnreachableCodeEliminationPropagatesThroughDeadBranch(t *testing.T) {
	fn := mir.NewFunction("f", []mir.Param{{ID: 1, Ty: types.NewPrimitive(types.PrimBool)}}, i32Type())
	b := mir.NewBuilder(fn)

	entry := b.Block("entry")
	live := b.Block("live")
	dead := b.Block("dead")

	b.SetBlock(entry)
	b.Terminate(mir.CondBranch{Cond: 1, Then: live.ID, Else: dead.ID})

	b.SetBlock(live)
	v := b.Emit(i32Type(), mir.Constant{I64: 1, Signed: true})
	b.Terminate(mir.Return{Value: v})

	b.SetBlock(dead)
	b.Terminate(mir.Unreachable{})

	pass := mirpasses.NewUnreachableCodeEliminationPass()
	changed, _ := pass.RunFunction(fn)
	require.True(t, changed)

	br, ok := entry.Term.(mir.Branch)
	require.True(t, ok)
	require.Equal(t, live.ID, br.Target)

	for _, bb := range fn.Blocks {
		require.NotEqual(t, dead.ID, bb.ID)
	}
}
