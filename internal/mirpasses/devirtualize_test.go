package mirpasses_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"vellum/internal/mir"
	"vellum/internal/mirpasses"
	"vellum/internal/types"
)

// buildMethodModule returns a module with `Type_m` defined plus a main
// that virtual-calls m on a receiver of the given static type.
func buildMethodModule(receiverType string) (*mir.Module, *mir.Function) {
	m := mir.NewModule("devirt")

	method := mir.NewFunction(receiverType+"_m", []mir.Param{{ID: 1, Ty: types.Named(receiverType)}}, i32Type())
	mb := mir.NewBuilder(method)
	mb.Block("entry")
	seven := mb.Emit(i32Type(), constI32(7))
	mb.Terminate(mir.Return{Value: seven})

	main := mir.NewFunction("main", nil, i32Type())
	b := mir.NewBuilder(main)
	b.Block("entry")
	recv := b.Emit(types.Named(receiverType), mir.StructInit{StructName: receiverType})
	call := b.Emit(i32Type(), mir.MethodCall{
		Receiver: recv, ReceiverType: types.Named(receiverType), MethodName: "m", ReturnType: i32Type(),
	})
	b.Terminate(mir.Return{Value: call})

	m.Functions = append(m.Functions, method, main)

	return m, main
}

func TestDevirtualizationRewritesSealedClassCall(t *testing.T) {
	m, main := buildMethodModule("C")
	h := types.NewClassHierarchy([]types.ClassInfo{{Name: "C", IsSealed: true}})

	pass := mirpasses.NewDevirtualizationPass(h)
	changed, _ := pass.RunModule(m)
	require.True(t, changed)

	call, ok := main.Blocks[0].Instrs[1].Variant.(mir.Call)
	require.True(t, ok)
	require.Equal(t, "C_m", call.Callee)
	// the receiver is threaded through as the first direct argument.
	require.Equal(t, main.Blocks[0].Instrs[0].Result, call.Args[0])
	require.NotEmpty(t, pass.Decisions)
}

func TestDevirtualizationRewritesLeafClassCall(t *testing.T) {
	m, main := buildMethodModule("Leaf")
	h := types.NewClassHierarchy([]types.ClassInfo{{Name: "Leaf"}})

	pass := mirpasses.NewDevirtualizationPass(h)
	changed, _ := pass.RunModule(m)
	require.True(t, changed)

	call := main.Blocks[0].Instrs[1].Variant.(mir.Call)
	require.Equal(t, "Leaf_m", call.Callee)
}

func TestDevirtualizationUsesExactTypeFromConstruction(t *testing.T) {
	// the static receiver type Animal has subclasses, so the hierarchy
	// alone cannot devirtualize; the same-block StructInit pins the exact
	// runtime type.
	m := mir.NewModule("devirt_exact")

	method := mir.NewFunction("Dog_speak", []mir.Param{{ID: 1, Ty: types.Named("Dog")}}, i32Type())
	mb := mir.NewBuilder(method)
	mb.Block("entry")
	one := mb.Emit(i32Type(), constI32(1))
	mb.Terminate(mir.Return{Value: one})

	main := mir.NewFunction("main", nil, i32Type())
	b := mir.NewBuilder(main)
	b.Block("entry")
	recv := b.Emit(types.Named("Dog"), mir.StructInit{StructName: "Dog"})
	call := b.Emit(i32Type(), mir.MethodCall{
		Receiver: recv, ReceiverType: types.Named("Animal"), MethodName: "speak", ReturnType: i32Type(),
	})
	b.Terminate(mir.Return{Value: call})

	m.Functions = append(m.Functions, method, main)

	h := types.NewClassHierarchy([]types.ClassInfo{
		{Name: "Animal", DirectSubclasses: []string{"Dog", "Cat"}},
		{Name: "Dog", Base: "Animal"},
		{Name: "Cat", Base: "Animal"},
	})

	pass := mirpasses.NewDevirtualizationPass(h)
	changed, _ := pass.RunModule(m)
	require.True(t, changed)

	direct := main.Blocks[0].Instrs[1].Variant.(mir.Call)
	require.Equal(t, "Dog_speak", direct.Callee)
}

func TestDevirtualizationLeavesOpenHierarchyCallVirtual(t *testing.T) {
	m := mir.NewModule("devirt_none")

	main := mir.NewFunction("main", []mir.Param{{ID: 1, Ty: types.Named("Animal")}}, i32Type())
	b := mir.NewBuilder(main)
	b.Block("entry")
	call := b.Emit(i32Type(), mir.MethodCall{
		Receiver: 1, ReceiverType: types.Named("Animal"), MethodName: "speak", ReturnType: i32Type(),
	})
	b.Terminate(mir.Return{Value: call})

	m.Functions = append(m.Functions, main)

	h := types.NewClassHierarchy([]types.ClassInfo{
		{Name: "Animal", DirectSubclasses: []string{"Dog", "Cat"}},
		{Name: "Dog", Base: "Animal"},
		{Name: "Cat", Base: "Animal"},
	})

	pass := mirpasses.NewDevirtualizationPass(h)
	changed, _ := pass.RunModule(m)
	require.False(t, changed)

	_, stillVirtual := main.Blocks[0].Instrs[0].Variant.(mir.MethodCall)
	require.True(t, stillVirtual)
}

func TestDevirtualizationHonorsFinalMethod(t *testing.T) {
	m, main := buildMethodModule("Base")
	h := types.NewClassHierarchy([]types.ClassInfo{
		{Name: "Base", DirectSubclasses: []string{"Derived"}, FinalMethods: map[string]bool{"m": true}},
		{Name: "Derived", Base: "Base"},
	})

	pass := mirpasses.NewDevirtualizationPass(h)
	changed, _ := pass.RunModule(m)
	require.True(t, changed)

	call := main.Blocks[0].Instrs[1].Variant.(mir.Call)
	require.Equal(t, "Base_m", call.Callee)
}
