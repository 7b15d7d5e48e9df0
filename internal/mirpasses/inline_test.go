package mirpasses_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"vellum/internal/ids"
	"vellum/internal/mir"
	"vellum/internal/mirpasses"
)

// callCount returns how many direct Call instructions to callee survive in
// fn.
func callCount(fn *mir.Function, callee string) int {
	n := 0

	for _, bb := range fn.Blocks {
		for _, in := range bb.Instrs {
			if c, ok := in.Variant.(mir.Call); ok && c.Callee == callee {
				n++
			}
		}
	}

	return n
}

// buildDoubler returns `fn double(p) -> I32 { p + p }`, small enough for
// the single-expression always-inline shortcut.
func buildDoubler() *mir.Function {
	fn := mir.NewFunction("double", []mir.Param{{ID: 1, Ty: i32Type()}}, i32Type())
	b := mir.NewBuilder(fn)
	b.Block("entry")
	sum := b.Emit(i32Type(), mir.Binary{Op: mir.Add, Left: 1, Right: 1})
	b.Terminate(mir.Return{Value: sum})

	return fn
}

func TestInliningSplicesSmallCalleeIntoCaller(t *testing.T) {
	m := mir.NewModule("inline_small")
	callee := buildDoubler()

	main := mir.NewFunction("main", nil, i32Type())
	b := mir.NewBuilder(main)
	b.Block("entry")
	five := b.Emit(i32Type(), constI32(5))
	r := b.Emit(i32Type(), mir.Call{Callee: "double", Args: []ids.ValueID{five}, ReturnType: i32Type()})
	b.Terminate(mir.Return{Value: r})

	m.Functions = append(m.Functions, callee, main)

	pass := mirpasses.NewInliningPass()
	changed, _ := pass.RunModule(m)
	require.True(t, changed)
	require.Equal(t, 0, callCount(main, "double"))

	// the cloned body's Add must have been rebased onto the call argument.
	foundAdd := false

	for _, bb := range main.Blocks {
		for _, in := range bb.Instrs {
			if bin, ok := in.Variant.(mir.Binary); ok && bin.Op == mir.Add {
				foundAdd = true

				require.Equal(t, five, bin.Left)
				require.Equal(t, five, bin.Right)
			}
		}
	}

	require.True(t, foundAdd)
}

func TestInliningHonorsNoInline(t *testing.T) {
	m := mir.NewModule("inline_no")
	callee := buildDoubler()
	callee.Attrs[mir.AttrNoInline] = true

	main := mir.NewFunction("main", nil, i32Type())
	b := mir.NewBuilder(main)
	b.Block("entry")
	five := b.Emit(i32Type(), constI32(5))
	r := b.Emit(i32Type(), mir.Call{Callee: "double", Args: []ids.ValueID{five}, ReturnType: i32Type()})
	b.Terminate(mir.Return{Value: r})

	m.Functions = append(m.Functions, callee, main)

	pass := mirpasses.NewInliningPass()
	changed, _ := pass.RunModule(m)
	require.False(t, changed)
	require.Equal(t, 1, callCount(main, "double"))
}

func TestInliningStopsAtRecursionDepthLimit(t *testing.T) {
	m := mir.NewModule("inline_rec")

	// self(n) calls itself unconditionally; the depth cap must stop the
	// pass from expanding it forever.
	self := mir.NewFunction("self", []mir.Param{{ID: 1, Ty: i32Type()}}, i32Type())
	b := mir.NewBuilder(self)
	b.Block("entry")
	r := b.Emit(i32Type(), mir.Call{Callee: "self", Args: []ids.ValueID{1}, ReturnType: i32Type()})
	b.Terminate(mir.Return{Value: r})

	m.Functions = append(m.Functions, self)

	opts := mirpasses.DefaultInliningOptions()
	opts.AlwaysInlineSingleExpr = false

	pass := mirpasses.NewInliningPassWithOptions(opts)
	_, _ = pass.RunModule(m)

	// however much was expanded, at least one residual self-call remains.
	require.GreaterOrEqual(t, callCount(self, "self"), 1)
}

func TestAlwaysInlineForcesInliningRegardlessOfCost(t *testing.T) {
	m := mir.NewModule("always_inline")
	callee := buildDoubler()
	callee.Attrs[mir.AttrAlwaysInline] = true

	main := mir.NewFunction("main", nil, i32Type())
	b := mir.NewBuilder(main)
	b.Block("entry")
	five := b.Emit(i32Type(), constI32(5))
	r := b.Emit(i32Type(), mir.Call{Callee: "double", Args: []ids.ValueID{five}, ReturnType: i32Type()})
	b.Terminate(mir.Return{Value: r})

	m.Functions = append(m.Functions, callee, main)

	pass := mirpasses.NewAlwaysInlinePass()
	changed, _ := pass.RunModule(m)
	require.True(t, changed)
	require.Equal(t, 0, callCount(main, "double"))
}
