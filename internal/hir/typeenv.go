package hir

import "vellum/internal/types"

// AstNode is an opaque handle to a node of the upstream typed AST. The
// middle-end never inspects an AST node's internal shape — it only uses
// handles as keys into TypeEnv queries. The upstream type
// checker is expected to hand out values satisfying this interface.
type AstNode interface {
	// AstKind lets HirBuilder dispatch on surface-construct shape without
	// depending on the upstream AST's concrete types.
	AstKind() string
}

// TypeEnv is the contract HirBuilder depends on from the upstream type
// checker: resolved expression types, field/variant index lookups, the
// iterator protocol's method and variant names, and Copy/Drop queries. This repo never
// implements a TypeEnv — it is supplied by an external collaborator;
// internal/hir only declares the interface and, in tests, a hand-written
// mock in the go.uber.org/mock style.
type TypeEnv interface {
	// ResolvedType returns the fully resolved type of a typed-AST
	// expression node.
	ResolvedType(node AstNode) types.Type

	// FieldIndex returns the zero-based ordinal of fieldName on structTy,
	// or -1 if absent.
	FieldIndex(structTy types.Type, fieldName string) int

	// VariantIndex returns the zero-based ordinal of variantName on
	// enumTy, or -1 if absent.
	VariantIndex(enumTy types.Type, variantName string) int

	// IteratorProtocolMethod returns the method name the source language
	// uses for `iterator.next()` on iterTy, so lowering `for` loops never
	// needs to hardcode a source-language identifier.
	IteratorProtocolMethod(iterTy types.Type) string

	// IteratorItemOptionVariants returns the (Some, None) variant names of
	// the Option-like enum IteratorProtocolMethod returns, in that order.
	IteratorItemOptionVariants(iterTy types.Type) (some, none string)

	// IsCopy reports whether a value of ty is bitwise-copyable, which
	// affects closure capture mode selection.
	IsCopy(ty types.Type) bool

	// HasDrop reports whether ty has a user-defined destructor.
	HasDrop(ty types.Type) bool
}
