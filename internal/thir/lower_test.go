package thir_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"vellum/internal/hir"
	"vellum/internal/ids"
	"vellum/internal/thir"
	"vellum/internal/types"
)

// notFoundSolver returns a MockTraitSolver that answers every lookup with
// "no such method", the behavior lowering expects for primitive-only
// programs that never reach the solver's happy path.
func notFoundSolver(t *testing.T) *MockTraitSolver {
	solver := NewMockTraitSolver(gomock.NewController(t))
	solver.EXPECT().
		ResolveMethod(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(thir.ResolvedMethod{}, false, thir.AmbiguityDiagnostic{}).
		AnyTimes()

	return solver
}

func litI32(v int64) *hir.Literal {
	return &hir.Literal{Base: hir.Base{Ty: types.NewPrimitive(types.PrimI32)}, Int: v}
}

func TestLowerFunctionBodyCoercesReturn(t *testing.T) {
	i64 := types.NewPrimitive(types.PrimI64)

	fn := &hir.FunctionDecl{
		Name:   "widen",
		Return: i64,
		Body: &hir.Block{
			Base: hir.Base{Ty: i64},
			Tail: litI32(7),
		},
	}

	mod := &hir.Module{Name: "m", Functions: []*hir.FunctionDecl{fn}}
	lower := thir.NewThirLower(mod, notFoundSolver(t))
	out := lower.Lower()

	require.Len(t, out.Functions, 1)

	tail := out.Functions[0].Body.Tail
	coercion, ok := tail.(*thir.Coercion)
	require.True(t, ok, "expected tail to be wrapped in a Coercion node")
	require.Equal(t, thir.NumericWidening, coercion.CoercionKind)
	require.True(t, coercion.Type().Equal(i64))
}

func TestLowerBinaryOverloadDesugarsToMethodCall(t *testing.T) {
	pointTy := types.Named("Point")

	solver := NewMockTraitSolver(gomock.NewController(t))
	solver.EXPECT().
		ResolveMethod(gomock.Any(), "add", gomock.Any()).
		Return(thir.ResolvedMethod{
			ReceiverKind:     thir.ReceiverBehavior,
			ImplementingType: pointTy,
			MethodName:       "add",
		}, true, thir.AmbiguityDiagnostic{})

	left := &hir.Var{Base: hir.Base{Ty: pointTy}, Name: "a"}
	right := &hir.Var{Base: hir.Base{Ty: pointTy}, Name: "b"}

	bin := &hir.Binary{Base: hir.Base{Ty: pointTy}, Op: hir.OpAdd, Left: left, Right: right}

	fn := &hir.FunctionDecl{
		Name:   "sum",
		Return: pointTy,
		Body:   &hir.Block{Base: hir.Base{Ty: pointTy}, Tail: bin},
	}

	mod := &hir.Module{Name: "m", Functions: []*hir.FunctionDecl{fn}}
	lower := thir.NewThirLower(mod, solver)
	out := lower.Lower()

	mc, ok := out.Functions[0].Body.Tail.(*thir.MethodCall)
	require.True(t, ok, "expected overloaded Binary to desugar to MethodCall")
	require.Equal(t, "add", mc.MethodName)
	require.False(t, mc.Resolved.Ambiguous)
}

func TestLowerMethodCallRecordsAmbiguityDiagnostic(t *testing.T) {
	recvTy := types.Named("Shape")
	solver := NewMockTraitSolver(gomock.NewController(t))
	solver.EXPECT().
		ResolveMethod(gomock.Any(), "area", gomock.Any()).
		Return(thir.ResolvedMethod{}, false, thir.AmbiguityDiagnostic{
			MethodName: "area",
			Candidates: []string{"Circle", "Square"},
		})

	call := &hir.MethodCall{
		Base:       hir.Base{Ty: types.NewPrimitive(types.PrimF64)},
		Receiver:   &hir.Var{Base: hir.Base{Ty: recvTy}, Name: "s"},
		MethodName: "area",
	}

	fn := &hir.FunctionDecl{
		Name:   "f",
		Return: types.NewPrimitive(types.PrimF64),
		Body:   &hir.Block{Base: hir.Base{Ty: types.NewPrimitive(types.PrimF64)}, Tail: call},
	}

	mod := &hir.Module{Name: "m", Functions: []*hir.FunctionDecl{fn}}
	lower := thir.NewThirLower(mod, solver)
	_ = lower.Lower()

	require.Len(t, lower.Diagnostics(), 1)
	require.Equal(t, "E7002", lower.Diagnostics()[0].Code)
}

func TestLowerWhenSynthesizesDefaultArmWhenNonExhaustive(t *testing.T) {
	boolTy := types.NewPrimitive(types.PrimBool)

	when := &hir.When{
		Base:      hir.Base{Ty: types.Unit()},
		Scrutinee: &hir.Var{Base: hir.Base{Ty: boolTy}, Name: "b"},
		Arms: []hir.WhenArm{
			{Pattern: hir.Pattern{Kind: hir.PatternLiteral, LitBool: true, LitTy: boolTy}, Body: litI32(1)},
		},
	}

	fn := &hir.FunctionDecl{
		Name:   "f",
		Return: types.Unit(),
		Body:   &hir.Block{Base: hir.Base{Ty: types.Unit()}, Tail: when},
	}

	mod := &hir.Module{Name: "m", Functions: []*hir.FunctionDecl{fn}}
	lower := thir.NewThirLower(mod, notFoundSolver(t))
	out := lower.Lower()

	w := out.Functions[0].Body.Tail.(*thir.When)
	require.True(t, w.Synthesized)
	require.Len(t, w.Arms, 2)
	require.Len(t, lower.Diagnostics(), 1)
	require.Equal(t, "E7001", lower.Diagnostics()[0].Code)
}

func TestFreshIDsDoNotCollideWithSourceIDs(t *testing.T) {
	gen := ids.NewNodeIDGenerator()
	_ = gen.Fresh()

	mod := &hir.Module{Name: "m"}
	lower := thir.NewThirLower(mod, notFoundSolver(t))
	out := lower.Lower()
	require.NotNil(t, out)
}
