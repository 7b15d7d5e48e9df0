package mirpasses_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"vellum/internal/ids"
	"vellum/internal/mir"
	"vellum/internal/mirpasses"
	"vellum/internal/types"
)

// buildCountedLoop constructs entry -> header -> latch -> header (back
// edge) -> exit, a simple `for (i = 0; i < bound; i++) {}` shape: the
// induction phi and its latch-edge increment are wired by reserving their
// value ids up front, since the phi must reference the increment's result
// before the increment instruction exists.
func buildCountedLoop(t *testing.T, bound int64) (*mir.Function, *mir.BasicBlock, *mir.BasicBlock, *mir.BasicBlock) {
	t.Helper()

	fn := mir.NewFunction("f", nil, i32Type())
	b := mir.NewBuilder(fn)

	entry := b.Block("entry")
	header := b.Block("header")
	latch := b.Block("latch")
	exit := b.Block("exit")

	b.SetBlock(entry)
	zero := b.Emit(i32Type(), mir.Constant{I64: 0, Signed: true})
	b.Terminate(mir.Branch{Target: header.ID})

	ivResult := fn.ValueGen.Fresh()
	nextID := fn.ValueGen.Fresh()

	b.SetBlock(header)
	header.Instrs = append(header.Instrs, mir.Instruction{
		Result: ivResult,
		Ty:     i32Type(),
		Variant: mir.Phi{Incoming: []mir.PhiIncoming{
			{Value: zero, Block: entry.ID},
			{Value: nextID, Block: latch.ID},
		}},
	})
	boundC := b.Emit(i32Type(), mir.Constant{I64: bound, Signed: true})
	cond := b.Emit(types.NewPrimitive(types.PrimBool), mir.Binary{Op: mir.Lt, Left: ivResult, Right: boundC})
	b.Terminate(mir.CondBranch{Cond: cond, Then: latch.ID, Else: exit.ID})

	b.SetBlock(latch)
	one := b.Emit(i32Type(), mir.Constant{I64: 1, Signed: true})
	latch.Instrs = append(latch.Instrs, mir.Instruction{
		Result:  nextID,
		Ty:      i32Type(),
		Variant: mir.Binary{Op: mir.Add, Left: ivResult, Right: one},
	})
	b.Terminate(mir.Branch{Target: header.ID})

	b.SetBlock(exit)
	b.Terminate(mir.Return{})

	return fn, header, latch, exit
}

func TestLoopUnrollFullyUnrollsSmallTripCount(t *testing.T) {
	fn, header, latch, _ := buildCountedLoop(t, 5)

	pass := mirpasses.NewLoopUnrollPass()
	changed, _ := pass.RunFunction(fn)
	require.True(t, changed)

	require.Nil(t, fn.BlockByID(header.ID), "a fully unrolled loop's header is removed")
	require.Nil(t, fn.BlockByID(latch.ID), "a fully unrolled loop's latch is removed")

	var condBranches int

	for _, bb := range fn.Blocks {
		if _, ok := bb.Term.(mir.CondBranch); ok {
			condBranches++
		}
	}

	require.Zero(t, condBranches, "full unroll drops the per-iteration test entirely")
}

func TestLoopUnrollPartiallyUnrollsLargerTripCountExactMultiple(t *testing.T) {
	fn, header, latch, exit := buildCountedLoop(t, 16)

	pass := mirpasses.NewLoopUnrollPass()
	changed, _ := pass.RunFunction(fn)
	require.True(t, changed)

	require.NotNil(t, fn.BlockByID(header.ID), "partial unroll keeps the reduced loop's header")
	require.NotNil(t, fn.BlockByID(latch.ID), "partial unroll keeps the reduced loop's latch")

	// latch originally held 2 instructions per iteration (the constant 1
	// and the increment); grouped by the fixed factor of 4, it should now
	// hold 4x that.
	require.Len(t, latch.Instrs, 8)

	cb, ok := header.Term.(mir.CondBranch)
	require.True(t, ok)
	require.Equal(t, latch.ID, cb.Then)
	require.Equal(t, exit.ID, cb.Else, "trip count 16 divides the factor evenly: no remainder block is needed")

	for _, bb := range fn.Blocks {
		require.NotEqual(t, "loop.unroll.rem", bb.Name)
	}
}

func TestLoopUnrollPartialUnrollPeelsRemainder(t *testing.T) {
	fn, header, latch, exit := buildCountedLoop(t, 18)

	pass := mirpasses.NewLoopUnrollPass()
	changed, _ := pass.RunFunction(fn)
	require.True(t, changed)

	require.NotNil(t, fn.BlockByID(header.ID))
	require.NotNil(t, fn.BlockByID(latch.ID))
	require.Len(t, latch.Instrs, 8)

	cb, ok := header.Term.(mir.CondBranch)
	require.True(t, ok)
	require.Equal(t, latch.ID, cb.Then)
	require.NotEqual(t, exit.ID, cb.Else, "trip count 18 leaves a remainder of 2: the exit edge routes through peeled blocks first")

	var remBlocks []*mir.BasicBlock

	for _, bb := range fn.Blocks {
		if bb.Name == "loop.unroll.rem" {
			remBlocks = append(remBlocks, bb)
		}
	}

	require.Len(t, remBlocks, 2, "18 %% 4 == 2 leftover iterations are peeled straight-line")

	last := remBlocks[len(remBlocks)-1]

	br, ok := last.Term.(mir.Branch)
	require.True(t, ok)
	require.Equal(t, exit.ID, br.Target)
	require.Equal(t, ids.BlockID(exit.ID), br.Target)
}
