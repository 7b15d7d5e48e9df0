package main

import (
	"vellum/internal/ids"
	"vellum/internal/mir"
	"vellum/internal/types"
)

// The MirBuilder that lowers THIR/HIR into MIR is a contract-only
// external collaborator this repo does not implement,
// so vellumc exercises the pass manager against small, hand-built MIR
// modules instead of a real front end, built with mir.Builder the same
// way internal/mirpasses' own tests construct fixtures.
type sample struct {
	name      string
	describe  string
	build     func() *mir.Module
	hierarchy func() []types.ClassInfo
}

var samples = []sample{
	{name: "const-arith", describe: "(2 + 3) * 4 - 1", build: buildConstArith},
	{name: "dead-branch", describe: "if true { f(1) } else { g(2) }", build: buildDeadBranch},
	{name: "pow2-mul", describe: "x * 8", build: buildPow2Mul},
	{name: "redundant-load", describe: "*p used twice across a branch, no intervening store", build: buildRedundantLoad},
	{name: "virtual-dispatch", describe: "c.m() where c: C, C sealed", build: buildVirtualDispatch, hierarchy: sealedClassHierarchy},
	{name: "tail-factorial", describe: "f(n, acc) = n <= 1 ? acc : f(n-1, n*acc)", build: buildTailFactorial},
}

func findSample(name string) *sample {
	for i := range samples {
		if samples[i].name == name {
			return &samples[i]
		}
	}

	return nil
}

func i32() types.Type    { return types.NewPrimitive(types.PrimI32) }
func boolTy() types.Type { return types.NewPrimitive(types.PrimBool) }

func constI32(n int64) mir.Constant { return mir.Constant{I64: n, Signed: true, Width: 32} }
func constBool(v bool) mir.Constant { return mir.Constant{Bool: v} }

// buildConstArith returns `fn main() -> I32 { (2 + 3) * 4 - 1 }`.
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

// buildDeadBranch returns `fn main() -> I32 { if true { f(1) } else { g(2) } }`
// plus extern-style leaf functions f and g.
func buildDeadBranch() *mir.Module {
	m := mir.NewModule("dead_branch")

	leaf := func(name string) *mir.Function {
		fn := mir.NewFunction(name, []mir.Param{{ID: 1, Ty: i32()}}, i32())
		b := mir.NewBuilder(fn)
		b.Block("entry")
		b.Terminate(mir.Return{Value: 1})

		return fn
	}

	f := leaf("f")
	g := leaf("g")

	fn := mir.NewFunction("main", nil, i32())
	b := mir.NewBuilder(fn)
	entry := b.Block("entry")
	cond := b.Emit(boolTy(), constBool(true))

	thenBB := b.Block("then")
	one := b.Emit(i32(), constI32(1))
	fCall := b.Emit(i32(), mir.Call{Callee: "f", Args: []ids.ValueID{one}, ReturnType: i32()})
	mergeBB := mergeBlock(fn)
	b.Terminate(mir.Branch{Target: mergeBB.ID})

	elseBB := b.Block("else")
	two := b.Emit(i32(), constI32(2))
	gCall := b.Emit(i32(), mir.Call{Callee: "g", Args: []ids.ValueID{two}, ReturnType: i32()})
	b.Terminate(mir.Branch{Target: mergeBB.ID})

	b.SetBlock(entry)
	b.Terminate(mir.CondBranch{Cond: cond, Then: thenBB.ID, Else: elseBB.ID})

	b.SetBlock(mergeBB)
	phi := b.Emit(i32(), mir.Phi{Incoming: []mir.PhiIncoming{
		{Value: fCall, Block: thenBB.ID},
		{Value: gCall, Block: elseBB.ID},
	}})
	b.Terminate(mir.Return{Value: phi})

	m.Functions = append(m.Functions, f, g, fn)

	return m
}

func mergeBlock(fn *mir.Function) *mir.BasicBlock {
	bb := &mir.BasicBlock{ID: fn.BlockGen.Fresh(), Name: "merge"}
	fn.Blocks = append(fn.Blocks, bb)

	return bb
}

// buildPow2Mul returns `fn main(x: I32) -> I32 { x * 8 }`.
func buildPow2Mul() *mir.Module {
	m := mir.NewModule("pow2_mul")
	fn := mir.NewFunction("main", []mir.Param{{ID: 1, Ty: i32()}}, i32())
	b := mir.NewBuilder(fn)
	b.Block("entry")

	eight := b.Emit(i32(), constI32(8))
	prod := b.Emit(i32(), mir.Binary{Op: mir.Mul, Left: 1, Right: eight})
	b.Terminate(mir.Return{Value: prod})

	m.Functions = append(m.Functions, fn)

	return m
}

// buildRedundantLoad returns a function loading *p, branching, and using
// the loaded value again on both sides with no intervening store.
func buildRedundantLoad() *mir.Module {
	m := mir.NewModule("redundant_load")
	fn := mir.NewFunction("main", []mir.Param{{ID: 1, Ty: types.Pointer(i32())}}, i32())
	b := mir.NewBuilder(fn)
	entry := b.Block("entry")

	load1 := b.Emit(i32(), mir.Load{Ptr: 1})
	zero := b.Emit(i32(), constI32(0))
	cond := b.Emit(boolTy(), mir.Binary{Op: mir.Gt, Left: load1, Right: zero})

	thenBB := b.Block("then")
	load2 := b.Emit(i32(), mir.Load{Ptr: 1})
	b.Terminate(mir.Return{Value: load2})

	elseBB := b.Block("else")
	neg := b.Emit(i32(), mir.Unary{Op: mir.Neg, Operand: load1})
	b.Terminate(mir.Return{Value: neg})

	b.SetBlock(entry)
	b.Terminate(mir.CondBranch{Cond: cond, Then: thenBB.ID, Else: elseBB.ID})

	m.Functions = append(m.Functions, fn)

	return m
}

// buildVirtualDispatch returns a module with a sealed class C defining
// method m, and `fn main() -> I32 { C {}.m() }` (the receiver is a
// StructInit of C).
func buildVirtualDispatch() *mir.Module {
	m := mir.NewModule("virtual_dispatch")
	m.Structs["C"] = &types.StructDef{Name: "C"}

	method := mir.NewFunction("C_m", []mir.Param{{ID: 1, Ty: types.Named("C")}}, i32())
	mb := mir.NewBuilder(method)
	mb.Block("entry")
	seven := mb.Emit(i32(), constI32(7))
	mb.Terminate(mir.Return{Value: seven})

	fn := mir.NewFunction("main", nil, i32())
	b := mir.NewBuilder(fn)
	b.Block("entry")

	recv := b.Emit(types.Named("C"), mir.StructInit{StructName: "C"})
	call := b.Emit(i32(), mir.MethodCall{
		Receiver: recv, ReceiverType: types.Named("C"), MethodName: "m", ReturnType: i32(),
	})
	b.Terminate(mir.Return{Value: call})

	m.Functions = append(m.Functions, method, fn)

	return m
}

func sealedClassHierarchy() []types.ClassInfo {
	return []types.ClassInfo{
		{Name: "C", IsSealed: true},
	}
}

// buildTailFactorial returns
// `fn f(n: I32, acc: I32) -> I32 { if n <= 1 { acc } else { f(n-1, n*acc) } }`.
func buildTailFactorial() *mir.Module {
	m := mir.NewModule("tail_factorial")
	fn := mir.NewFunction("f", []mir.Param{{ID: 1, Ty: i32()}, {ID: 2, Ty: i32()}}, i32())
	b := mir.NewBuilder(fn)
	entry := b.Block("entry")

	one := b.Emit(i32(), constI32(1))
	cond := b.Emit(boolTy(), mir.Binary{Op: mir.Le, Left: 1, Right: one})

	thenBB := b.Block("then")
	b.Terminate(mir.Return{Value: 2})

	elseBB := b.Block("else")
	nMinus1 := b.Emit(i32(), mir.Binary{Op: mir.Sub, Left: 1, Right: one})
	nTimesAcc := b.Emit(i32(), mir.Binary{Op: mir.Mul, Left: 1, Right: 2})
	rec := b.Emit(i32(), mir.Call{Callee: "f", Args: []ids.ValueID{nMinus1, nTimesAcc}, ReturnType: i32()})
	b.Terminate(mir.Return{Value: rec})

	b.SetBlock(entry)
	b.Terminate(mir.CondBranch{Cond: cond, Then: thenBB.ID, Else: elseBB.ID})

	m.Functions = append(m.Functions, fn)

	return m
}
