package mirpasses_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"vellum/internal/mir"
	"vellum/internal/mirpasses"
	"vellum/internal/types"
)

func boolType() types.Type { return types.NewPrimitive(types.PrimBool) }

func constI32(n int64) mir.Constant { return mir.Constant{I64: n, Signed: true, Width: 32} }

func TestConstantFoldingFoldsArithmeticChain(t *testing.T) {
	fn := mir.NewFunction("f", nil, i32Type())
	b := mir.NewBuilder(fn)
	b.Block("entry")

	two := b.Emit(i32Type(), constI32(2))
	three := b.Emit(i32Type(), constI32(3))
	four := b.Emit(i32Type(), constI32(4))
	one := b.Emit(i32Type(), constI32(1))

	sum := b.Emit(i32Type(), mir.Binary{Op: mir.Add, Left: two, Right: three})
	prod := b.Emit(i32Type(), mir.Binary{Op: mir.Mul, Left: sum, Right: four})
	diff := b.Emit(i32Type(), mir.Binary{Op: mir.Sub, Left: prod, Right: one})
	b.Terminate(mir.Return{Value: diff})

	pass := mirpasses.NewConstantFoldingPass()
	changed, _ := pass.RunBlock(fn, fn.Blocks[0])
	require.True(t, changed)

	// the folded chain registers each intermediate as a constant within
	// the same walk, so the final Sub folds to 19 in a single run.
	last := fn.Blocks[0].Instrs[len(fn.Blocks[0].Instrs)-1]
	c, ok := last.Variant.(mir.Constant)
	require.True(t, ok)
	require.Equal(t, int64(19), c.I64)
}

func TestConstantFoldingNeverFoldsDivisionByZero(t *testing.T) {
	fn := mir.NewFunction("f", nil, i32Type())
	b := mir.NewBuilder(fn)
	b.Block("entry")

	ten := b.Emit(i32Type(), constI32(10))
	zero := b.Emit(i32Type(), constI32(0))
	q := b.Emit(i32Type(), mir.Binary{Op: mir.Div, Left: ten, Right: zero})
	b.Terminate(mir.Return{Value: q})

	pass := mirpasses.NewConstantFoldingPass()
	changed, _ := pass.RunBlock(fn, fn.Blocks[0])
	require.False(t, changed)

	_, stillBinary := fn.Blocks[0].Instrs[2].Variant.(mir.Binary)
	require.True(t, stillBinary)
}

func TestConstantFoldingLeavesSignedOverflowAlone(t *testing.T) {
	fn := mir.NewFunction("f", nil, i32Type())
	b := mir.NewBuilder(fn)
	b.Block("entry")

	// 2_000_000_000 + 2_000_000_000 overflows I32's signed range.
	big1 := b.Emit(i32Type(), constI32(2_000_000_000))
	big2 := b.Emit(i32Type(), constI32(2_000_000_000))
	sum := b.Emit(i32Type(), mir.Binary{Op: mir.Add, Left: big1, Right: big2})
	b.Terminate(mir.Return{Value: sum})

	pass := mirpasses.NewConstantFoldingPass()
	changed, _ := pass.RunBlock(fn, fn.Blocks[0])
	require.False(t, changed)

	_, stillBinary := fn.Blocks[0].Instrs[2].Variant.(mir.Binary)
	require.True(t, stillBinary)
}

func TestConstantFoldingIsIdempotent(t *testing.T) {
	fn := mir.NewFunction("f", nil, i32Type())
	b := mir.NewBuilder(fn)
	b.Block("entry")

	l := b.Emit(i32Type(), constI32(6))
	r := b.Emit(i32Type(), constI32(7))
	p := b.Emit(i32Type(), mir.Binary{Op: mir.Mul, Left: l, Right: r})
	b.Terminate(mir.Return{Value: p})

	pass := mirpasses.NewConstantFoldingPass()

	changed, _ := pass.RunBlock(fn, fn.Blocks[0])
	require.True(t, changed)

	changedAgain, _ := pass.RunBlock(fn, fn.Blocks[0])
	require.False(t, changedAgain)
}

func TestInstSimplifyAddZeroAliasesOperand(t *testing.T) {
	fn := mir.NewFunction("f", []mir.Param{{ID: 1, Ty: i32Type()}}, i32Type())
	b := mir.NewBuilder(fn)
	b.Block("entry")

	zero := b.Emit(i32Type(), constI32(0))
	sum := b.Emit(i32Type(), mir.Binary{Op: mir.Add, Left: 1, Right: zero})
	b.Terminate(mir.Return{Value: sum})

	pass := mirpasses.NewInstSimplifyPass()
	changed, _ := pass.RunBlock(fn, fn.Blocks[0])
	require.True(t, changed)

	ret, ok := fn.Blocks[0].Term.(mir.Return)
	require.True(t, ok)
	require.Equal(t, fn.Params[0].ID, ret.Value)
}

func TestInstSimplifySelfComparisonsFoldToConstants(t *testing.T) {
	fn := mir.NewFunction("f", []mir.Param{{ID: 1, Ty: i32Type()}}, boolType())
	b := mir.NewBuilder(fn)
	b.Block("entry")

	eq := b.Emit(boolType(), mir.Binary{Op: mir.Eq, Left: 1, Right: 1})
	lt := b.Emit(boolType(), mir.Binary{Op: mir.Lt, Left: 1, Right: 1})
	xor := b.Emit(i32Type(), mir.Binary{Op: mir.BitXor, Left: 1, Right: 1})
	_ = lt
	_ = xor
	b.Terminate(mir.Return{Value: eq})

	pass := mirpasses.NewInstSimplifyPass()
	changed, _ := pass.RunBlock(fn, fn.Blocks[0])
	require.True(t, changed)

	eqC, ok := fn.Blocks[0].Instrs[0].Variant.(mir.Constant)
	require.True(t, ok)
	require.True(t, eqC.Bool)

	ltC, ok := fn.Blocks[0].Instrs[1].Variant.(mir.Constant)
	require.True(t, ok)
	require.False(t, ltC.Bool)

	xorC, ok := fn.Blocks[0].Instrs[2].Variant.(mir.Constant)
	require.True(t, ok)
	require.Equal(t, int64(0), xorC.I64)
}

func TestInstSimplifySelectWithEqualBranches(t *testing.T) {
	fn := mir.NewFunction("f", []mir.Param{{ID: 1, Ty: boolType()}, {ID: 2, Ty: i32Type()}}, i32Type())
	b := mir.NewBuilder(fn)
	b.Block("entry")

	sel := b.Emit(i32Type(), mir.Select{Cond: 1, TrueVal: 2, FalseVal: 2})
	b.Terminate(mir.Return{Value: sel})

	pass := mirpasses.NewInstSimplifyPass()
	changed, _ := pass.RunBlock(fn, fn.Blocks[0])
	require.True(t, changed)

	ret := fn.Blocks[0].Term.(mir.Return)
	require.Equal(t, fn.Params[1].ID, ret.Value)
}

func TestStrengthReductionMulPowerOfTwoBecomesShift(t *testing.T) {
	fn := mir.NewFunction("f", []mir.Param{{ID: 1, Ty: i32Type()}}, i32Type())
	b := mir.NewBuilder(fn)
	b.Block("entry")

	eight := b.Emit(i32Type(), constI32(8))
	prod := b.Emit(i32Type(), mir.Binary{Op: mir.Mul, Left: 1, Right: eight})
	b.Terminate(mir.Return{Value: prod})

	pass := mirpasses.NewStrengthReductionPass()
	changed, _ := pass.RunBlock(fn, fn.Blocks[0])
	require.True(t, changed)

	shl, ok := fn.Blocks[0].Instrs[1].Variant.(mir.Binary)
	require.True(t, ok)
	require.Equal(t, mir.Shl, shl.Op)
}

func TestStrengthReductionUnsignedDivBecomesShift(t *testing.T) {
	u32 := types.NewPrimitive(types.PrimU32)
	fn := mir.NewFunction("f", []mir.Param{{ID: 1, Ty: u32}}, u32)
	b := mir.NewBuilder(fn)
	b.Block("entry")

	four := b.Emit(u32, mir.Constant{U64: 4, Width: 32})
	q := b.Emit(u32, mir.Binary{Op: mir.Div, Left: 1, Right: four})
	b.Terminate(mir.Return{Value: q})

	pass := mirpasses.NewStrengthReductionPass()
	changed, _ := pass.RunBlock(fn, fn.Blocks[0])
	require.True(t, changed)

	shr := fn.Blocks[0].Instrs[1].Variant.(mir.Binary)
	require.Equal(t, mir.Shr, shr.Op)
}

func TestStrengthReductionSignedDivStaysDiv(t *testing.T) {
	fn := mir.NewFunction("f", []mir.Param{{ID: 1, Ty: i32Type()}}, i32Type())
	b := mir.NewBuilder(fn)
	b.Block("entry")

	four := b.Emit(i32Type(), constI32(4))
	q := b.Emit(i32Type(), mir.Binary{Op: mir.Div, Left: 1, Right: four})
	b.Terminate(mir.Return{Value: q})

	pass := mirpasses.NewStrengthReductionPass()
	changed, _ := pass.RunBlock(fn, fn.Blocks[0])
	require.False(t, changed)

	div := fn.Blocks[0].Instrs[1].Variant.(mir.Binary)
	require.Equal(t, mir.Div, div.Op)
}

func TestEarlyCSEDeduplicatesRepeatedBinary(t *testing.T) {
	fn := mir.NewFunction("f", []mir.Param{{ID: 1, Ty: i32Type()}, {ID: 2, Ty: i32Type()}}, i32Type())
	b := mir.NewBuilder(fn)
	b.Block("entry")

	a1 := b.Emit(i32Type(), mir.Binary{Op: mir.Add, Left: 1, Right: 2})
	// commutative: b+a hashes to the same key as a+b.
	a2 := b.Emit(i32Type(), mir.Binary{Op: mir.Add, Left: 2, Right: 1})
	sum := b.Emit(i32Type(), mir.Binary{Op: mir.Mul, Left: a1, Right: a2})
	b.Terminate(mir.Return{Value: sum})

	pass := mirpasses.NewEarlyCSEPass()
	changed, stats := pass.RunBlock(fn, fn.Blocks[0])
	require.True(t, changed)
	require.Equal(t, 1, stats.InstructionsRemoved)
	require.Len(t, fn.Blocks[0].Instrs, 2)

	mul := fn.Blocks[0].Instrs[1].Variant.(mir.Binary)
	require.Equal(t, a1, mul.Left)
	require.Equal(t, a1, mul.Right)
}

func TestEarlyCSENeverMergesLoads(t *testing.T) {
	ptrTy := types.Pointer(i32Type())
	fn := mir.NewFunction("f", []mir.Param{{ID: 1, Ty: ptrTy}}, i32Type())
	b := mir.NewBuilder(fn)
	b.Block("entry")

	l1 := b.Emit(i32Type(), mir.Load{Ptr: 1})
	l2 := b.Emit(i32Type(), mir.Load{Ptr: 1})
	sum := b.Emit(i32Type(), mir.Binary{Op: mir.Add, Left: l1, Right: l2})
	b.Terminate(mir.Return{Value: sum})

	pass := mirpasses.NewEarlyCSEPass()
	changed, _ := pass.RunBlock(fn, fn.Blocks[0])
	require.False(t, changed)
	require.Len(t, fn.Blocks[0].Instrs, 3)
}

func TestPeepholeMulZeroBecomesZero(t *testing.T) {
	fn := mir.NewFunction("f", []mir.Param{{ID: 1, Ty: i32Type()}}, i32Type())
	b := mir.NewBuilder(fn)
	b.Block("entry")

	zero := b.Emit(i32Type(), constI32(0))
	prod := b.Emit(i32Type(), mir.Binary{Op: mir.Mul, Left: 1, Right: zero})
	b.Terminate(mir.Return{Value: prod})

	pass := mirpasses.NewPeepholePass()
	changed, _ := pass.RunBlock(fn, fn.Blocks[0])
	require.True(t, changed)

	c, ok := fn.Blocks[0].Instrs[1].Variant.(mir.Constant)
	require.True(t, ok)
	require.Equal(t, int64(0), c.I64)
}

func TestPeepholeXorZeroAliasesOperand(t *testing.T) {
	fn := mir.NewFunction("f", []mir.Param{{ID: 1, Ty: i32Type()}}, i32Type())
	b := mir.NewBuilder(fn)
	b.Block("entry")

	zero := b.Emit(i32Type(), constI32(0))
	x := b.Emit(i32Type(), mir.Binary{Op: mir.BitXor, Left: 1, Right: zero})
	b.Terminate(mir.Return{Value: x})

	pass := mirpasses.NewPeepholePass()
	changed, _ := pass.RunBlock(fn, fn.Blocks[0])
	require.True(t, changed)

	ret := fn.Blocks[0].Term.(mir.Return)
	require.Equal(t, fn.Params[0].ID, ret.Value)
}
