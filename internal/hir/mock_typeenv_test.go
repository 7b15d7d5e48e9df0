package hir

import "vellum/internal/types"

// fakeTypeEnv is a hand-written stand-in for a go.uber.org/mock-generated
// TypeEnv, used across this package's builder tests. Resolved
// types are keyed by AST node identity rather than recorded expectations,
// since HirBuilder queries every node exactly once during lowering.
type fakeTypeEnv struct {
	types          map[*AstExpr]types.Type
	fieldIndex     map[string]int // "StructName.field" -> index
	variantIndex   map[string]int // "EnumName.Variant" -> index
	copyTypes      map[string]bool
	dropTypes      map[string]bool
	iterNextMethod string
	iterSome       string
	iterNone       string
}

func newFakeTypeEnv() *fakeTypeEnv {
	return &fakeTypeEnv{
		types:          map[*AstExpr]types.Type{},
		fieldIndex:     map[string]int{},
		variantIndex:   map[string]int{},
		copyTypes:      map[string]bool{},
		dropTypes:      map[string]bool{},
		iterNextMethod: "next",
		iterSome:       "Some",
		iterNone:       "None",
	}
}

func (f *fakeTypeEnv) set(n *AstExpr, ty types.Type) *AstExpr {
	f.types[n] = ty
	return n
}

func (f *fakeTypeEnv) ResolvedType(node AstNode) types.Type {
	n, ok := node.(*AstExpr)
	if !ok {
		return types.Type{}
	}

	if ty, ok := f.types[n]; ok {
		return ty
	}

	return types.Unit()
}

func (f *fakeTypeEnv) FieldIndex(structTy types.Type, fieldName string) int {
	if idx, ok := f.fieldIndex[structTy.Name+"."+fieldName]; ok {
		return idx
	}

	return -1
}

func (f *fakeTypeEnv) VariantIndex(enumTy types.Type, variantName string) int {
	if idx, ok := f.variantIndex[enumTy.Name+"."+variantName]; ok {
		return idx
	}
	// Option is synthesized by the `for` desugaring without a concrete
	// declared enum in these tests; default Some/None to 0/1.
	if variantName == "Some" {
		return 0
	}

	if variantName == "None" {
		return 1
	}

	return -1
}

func (f *fakeTypeEnv) IteratorProtocolMethod(iterTy types.Type) string { return f.iterNextMethod }

func (f *fakeTypeEnv) IteratorItemOptionVariants(iterTy types.Type) (string, string) {
	return f.iterSome, f.iterNone
}

func (f *fakeTypeEnv) IsCopy(ty types.Type) bool { return f.copyTypes[ty.String()] }

func (f *fakeTypeEnv) HasDrop(ty types.Type) bool { return f.dropTypes[ty.String()] }
