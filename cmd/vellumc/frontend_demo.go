package main

import (
	"vellum/internal/hir"
	"vellum/internal/thir"
	"vellum/internal/types"
)

// demoTypeEnv is a minimal, always-I32 stand-in for the real upstream
// TypeEnv. The middle-end never implements a
// TypeEnv on its own — it is supplied by the out-of-scope type checker —
// so this exists only so `vellumc --emit-hir`/`--emit-thir` has a
// concrete (if tiny) program to lower without a real front end. It
// reproduces internal/hir's own fakeTypeEnv test double as ordinary
// (non-test) code, since cmd packages cannot import another package's
// _test.go file.
type demoTypeEnv struct{}

func (demoTypeEnv) ResolvedType(hir.AstNode) types.Type { return types.NewPrimitive(types.PrimI32) }

func (demoTypeEnv) FieldIndex(types.Type, string) int { return -1 }

func (demoTypeEnv) VariantIndex(types.Type, string) int { return -1 }

func (demoTypeEnv) IteratorProtocolMethod(types.Type) string { return "next" }

func (demoTypeEnv) IteratorItemOptionVariants(types.Type) (string, string) { return "Some", "None" }

func (demoTypeEnv) IsCopy(types.Type) bool { return true }

func (demoTypeEnv) HasDrop(types.Type) bool { return false }

// noopTraitSolver never resolves an overload — fine for the demo, whose
// every operand is a primitive I32 and so never reaches the solver at all
// (internal/thir/lower.go's lowerBinary only queries the solver when the
// left operand's type is Named).
type noopTraitSolver struct{}

func (noopTraitSolver) ResolveMethod(recv types.Type, method string, args []types.Type) (thir.ResolvedMethod, bool, thir.AmbiguityDiagnostic) {
	return thir.ResolvedMethod{}, false, thir.AmbiguityDiagnostic{MethodName: method}
}

func (noopTraitSolver) NormalizeAssociatedType(proj thir.Projection) types.Type {
	return proj.BaseType
}

// demoModule returns the fixed typed-AST fixture used by --emit-hir /
// --emit-thir: `fn demo() -> I32 { (2 + 3) * 4 - 1 }`.
func demoModule() *hir.AstModule {
	lit := func(v int64) *hir.AstExpr { return &hir.AstExpr{Kind: hir.AstLiteral, LitInt: v} }
	bin := func(op hir.BinOp, l, r *hir.AstExpr) *hir.AstExpr {
		return &hir.AstExpr{Kind: hir.AstBinary, Op: op, Left: l, Right: r}
	}

	sum := bin(hir.OpAdd, lit(2), lit(3))
	product := bin(hir.OpMul, sum, lit(4))
	result := bin(hir.OpSub, product, lit(1))

	body := &hir.AstExpr{Kind: hir.AstBlock, Tail: result}

	fn := &hir.AstFunction{Name: "demo", ReturnHint: "I32", Body: body}

	return &hir.AstModule{Name: "demo", Functions: []*hir.AstFunction{fn}}
}
