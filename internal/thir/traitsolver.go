package thir

import (
	"vellum/internal/hir"
	"vellum/internal/types"
)

// AmbiguityDiagnostic describes why TraitSolver.ResolveMethod could not
// settle on one implementation.
type AmbiguityDiagnostic struct {
	MethodName string
	Candidates []string // implementing-type names, for diagnostic text
}

// Projection names an associated-type lookup site for
// TraitSolver.NormalizeAssociatedType.
type Projection struct {
	BaseType   types.Type
	BehaviorID string
	AssocName  string
}

// TraitSolver is the external collaborator ThirLower queries to resolve
// method dispatch and normalize associated-type projections.
// This repo never implements a TraitSolver — only the interface, plus a
// MockGen-generated test mock.
type TraitSolver interface {
	// ResolveMethod finds the implementing type and behavior (if any) for
	// a method call. ok is false iff resolution was ambiguous or failed,
	// in which case diag explains why; ThirLower records the diagnostic
	// and synthesizes a placeholder resolution rather than panicking
	//.
	ResolveMethod(receiverType types.Type, methodName string, argTypes []types.Type) (res ResolvedMethod, ok bool, diag AmbiguityDiagnostic)

	// NormalizeAssociatedType resolves a projection to a concrete type,
	// or returns proj.BaseType unchanged if no normalization applies.
	NormalizeAssociatedType(proj Projection) types.Type
}

// operatorMethodNames is the fixed table used to look up the overloaded
// method name for a binary operator.
var operatorMethodNames = map[hir.BinOp]string{
	hir.OpAdd:    "add",
	hir.OpSub:    "sub",
	hir.OpMul:    "mul",
	hir.OpDiv:    "div",
	hir.OpMod:    "mod",
	hir.OpEq:     "eq",
	hir.OpNe:     "ne",
	hir.OpLt:     "lt",
	hir.OpLe:     "le",
	hir.OpGt:     "gt",
	hir.OpGe:     "ge",
	hir.OpAnd:    "and",
	hir.OpOr:     "or",
	hir.OpBitAnd: "bitand",
	hir.OpBitOr:  "bitor",
	hir.OpBitXor: "bitxor",
	hir.OpShl:    "shl",
	hir.OpShr:    "shr",
}

// unaryOperatorMethodNames is the equivalent table for unary operators
// (`-a` → "neg", `!a` → "not", `~a` → "bitnot").
var unaryOperatorMethodNames = map[hir.UnaryOp]string{
	hir.UnNeg:    "neg",
	hir.UnNot:    "not",
	hir.UnBitNot: "bitnot",
}
