package mirpasses_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"vellum/internal/ids"
	"vellum/internal/mir"
	"vellum/internal/mirpasses"
	"vellum/internal/types"
)

func TestTailCallMarksCallFeedingImmediateReturn(t *testing.T) {
	fn := mir.NewFunction("f", []mir.Param{{ID: 1, Ty: i32Type()}}, i32Type())
	b := mir.NewBuilder(fn)
	b.Block("entry")

	r := b.Emit(i32Type(), mir.Call{Callee: "g", Args: []ids.ValueID{1}, ReturnType: i32Type()})
	b.Terminate(mir.Return{Value: r})

	pass := mirpasses.NewTailCallPass()
	changed, stats := pass.RunFunction(fn)
	require.True(t, changed)
	require.Equal(t, 1, stats.InstructionsChanged)

	call := fn.Blocks[0].Instrs[0].Variant.(mir.Call)
	require.True(t, call.TailCall)

	// idempotent: the already-marked call is not re-reported.
	changedAgain, _ := pass.RunFunction(fn)
	require.False(t, changedAgain)
}

func TestTailCallMarksMethodCallInTailPosition(t *testing.T) {
	recvTy := types.Named("C")

	fn := mir.NewFunction("f", []mir.Param{{ID: 1, Ty: recvTy}}, i32Type())
	b := mir.NewBuilder(fn)
	b.Block("entry")

	r := b.Emit(i32Type(), mir.MethodCall{Receiver: 1, ReceiverType: recvTy, MethodName: "m", ReturnType: i32Type()})
	b.Terminate(mir.Return{Value: r})

	pass := mirpasses.NewTailCallPass()
	changed, _ := pass.RunFunction(fn)
	require.True(t, changed)

	mc := fn.Blocks[0].Instrs[0].Variant.(mir.MethodCall)
	require.True(t, mc.TailCall)
}

func TestTailCallSkipsCallWithInterveningInstruction(t *testing.T) {
	fn := mir.NewFunction("f", []mir.Param{{ID: 1, Ty: i32Type()}}, i32Type())
	b := mir.NewBuilder(fn)
	b.Block("entry")

	r := b.Emit(i32Type(), mir.Call{Callee: "g", Args: []ids.ValueID{1}, ReturnType: i32Type()})
	sum := b.Emit(i32Type(), mir.Binary{Op: mir.Add, Left: r, Right: r})
	b.Terminate(mir.Return{Value: sum})

	pass := mirpasses.NewTailCallPass()
	changed, _ := pass.RunFunction(fn)
	require.False(t, changed)

	call := fn.Blocks[0].Instrs[0].Variant.(mir.Call)
	require.False(t, call.TailCall)
}

func TestTailCallSkipsCallWhoseResultIsNotReturned(t *testing.T) {
	fn := mir.NewFunction("f", []mir.Param{{ID: 1, Ty: i32Type()}}, i32Type())
	b := mir.NewBuilder(fn)
	b.Block("entry")

	_ = b.Emit(i32Type(), mir.Call{Callee: "g", Args: []ids.ValueID{1}, ReturnType: i32Type()})
	b.Terminate(mir.Return{Value: 1})

	pass := mirpasses.NewTailCallPass()
	changed, _ := pass.RunFunction(fn)
	require.False(t, changed)
}
