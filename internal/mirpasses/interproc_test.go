package mirpasses_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"vellum/internal/ids"
	"vellum/internal/mir"
	"vellum/internal/mirpasses"
	"vellum/internal/types"
)

// leafFn builds `fn name(p) -> I32 { ret p }`.
func leafFn(name string) *mir.Function {
	fn := mir.NewFunction(name, []mir.Param{{ID: 1, Ty: i32Type()}}, i32Type())
	b := mir.NewBuilder(fn)
	b.Block("entry")
	b.Terminate(mir.Return{Value: 1})

	return fn
}

func TestDeadFunctionEliminationKeepsReachableDeletesRest(t *testing.T) {
	m := mir.NewModule("dfe")

	used := leafFn("used")
	orphan := leafFn("orphan")

	main := mir.NewFunction("main", nil, i32Type())
	b := mir.NewBuilder(main)
	b.Block("entry")
	arg := b.Emit(i32Type(), constI32(1))
	r := b.Emit(i32Type(), mir.Call{Callee: "used", Args: []ids.ValueID{arg}, ReturnType: i32Type()})
	b.Terminate(mir.Return{Value: r})

	m.Functions = append(m.Functions, used, orphan, main)

	pass := mirpasses.NewDeadFunctionEliminationPass()
	changed, stats := pass.RunModule(m)
	require.True(t, changed)
	require.Equal(t, 1, stats.FunctionsRemoved)
	require.NotNil(t, m.FindFunction("used"))
	require.NotNil(t, m.FindFunction("main"))
	require.Nil(t, m.FindFunction("orphan"))
}

func TestDeadFunctionEliminationTreatsExportAndTestAsRoots(t *testing.T) {
	m := mir.NewModule("dfe_roots")

	exported := leafFn("api")
	exported.Attrs[mir.AttrExport] = true

	tested := leafFn("check_roundtrip")
	tested.Attrs[mir.AttrTest] = true

	m.Functions = append(m.Functions, exported, tested)

	pass := mirpasses.NewDeadFunctionEliminationPass()
	changed, _ := pass.RunModule(m)
	require.False(t, changed)
	require.Len(t, m.Functions, 2)
}

func TestDeadFunctionEliminationFollowsClosureReferences(t *testing.T) {
	m := mir.NewModule("dfe_closure")

	target := leafFn("callback")

	main := mir.NewFunction("main", nil, i32Type())
	b := mir.NewBuilder(main)
	b.Block("entry")
	b.Emit(types.Function(nil, i32Type(), true), mir.ClosureInit{FuncName: "callback"})
	zero := b.Emit(i32Type(), constI32(0))
	b.Terminate(mir.Return{Value: zero})

	m.Functions = append(m.Functions, target, main)

	pass := mirpasses.NewDeadFunctionEliminationPass()
	changed, _ := pass.RunModule(m)
	require.False(t, changed)
	require.NotNil(t, m.FindFunction("callback"))
}

func TestDeadArgumentEliminationDropsUnusedParamAndRewritesCallSites(t *testing.T) {
	m := mir.NewModule("dae")

	// helper(a, b) only uses a.
	helper := mir.NewFunction("helper", []mir.Param{{ID: 1, Ty: i32Type()}, {ID: 2, Ty: i32Type()}}, i32Type())
	hb := mir.NewBuilder(helper)
	hb.Block("entry")
	dbl := hb.Emit(i32Type(), mir.Binary{Op: mir.Add, Left: 1, Right: 1})
	hb.Terminate(mir.Return{Value: dbl})

	main := mir.NewFunction("main", nil, i32Type())
	b := mir.NewBuilder(main)
	b.Block("entry")
	x := b.Emit(i32Type(), constI32(5))
	y := b.Emit(i32Type(), constI32(9))
	r := b.Emit(i32Type(), mir.Call{Callee: "helper", Args: []ids.ValueID{x, y}, ReturnType: i32Type()})
	b.Terminate(mir.Return{Value: r})

	m.Functions = append(m.Functions, helper, main)

	pass := mirpasses.NewDeadArgumentEliminationPass()
	changed, _ := pass.RunModule(m)
	require.True(t, changed)
	require.Len(t, helper.Params, 1)
	require.Equal(t, ids.ValueID(1), helper.Params[0].ID)

	call := main.Blocks[0].Instrs[2].Variant.(mir.Call)
	require.Equal(t, []ids.ValueID{x}, call.Args)
}

func TestDeadArgumentEliminationSkipsExportedFunctions(t *testing.T) {
	m := mir.NewModule("dae_export")

	api := mir.NewFunction("api", []mir.Param{{ID: 1, Ty: i32Type()}, {ID: 2, Ty: i32Type()}}, i32Type())
	api.Attrs[mir.AttrExport] = true
	ab := mir.NewBuilder(api)
	ab.Block("entry")
	ab.Terminate(mir.Return{Value: 1})

	m.Functions = append(m.Functions, api)

	pass := mirpasses.NewDeadArgumentEliminationPass()
	changed, _ := pass.RunModule(m)
	require.False(t, changed)
	require.Len(t, api.Params, 2)
}

func TestDeadArgumentEliminationSkipsAddressTakenFunctions(t *testing.T) {
	m := mir.NewModule("dae_addr")

	cb := mir.NewFunction("cb", []mir.Param{{ID: 1, Ty: i32Type()}, {ID: 2, Ty: i32Type()}}, i32Type())
	cbb := mir.NewBuilder(cb)
	cbb.Block("entry")
	cbb.Terminate(mir.Return{Value: 1})

	main := mir.NewFunction("main", nil, i32Type())
	b := mir.NewBuilder(main)
	b.Block("entry")
	b.Emit(types.Function(nil, i32Type(), true), mir.ClosureInit{FuncName: "cb"})
	zero := b.Emit(i32Type(), constI32(0))
	b.Terminate(mir.Return{Value: zero})

	m.Functions = append(m.Functions, cb, main)

	pass := mirpasses.NewDeadArgumentEliminationPass()
	changed, _ := pass.RunModule(m)
	require.False(t, changed)
	require.Len(t, cb.Params, 2)
}
