package hir

import (
	"vellum/internal/ids"
	"vellum/internal/position"
	"vellum/internal/types"
)

// Module owns all top-level HIR declarations in separate vectors by
// category, enabling typed iteration without a type switch over a mixed
// declaration list.
type Module struct {
	Name      string
	Structs   []*StructDecl
	Enums     []*EnumDecl
	Behaviors []*BehaviorDecl
	Impls     []*ImplDecl
	Functions []*FunctionDecl
	Constants []*ConstDecl
	Imports   []string
}

// FindFunction returns the function named name, or nil if absent.
func (m *Module) FindFunction(name string) *FunctionDecl {
	for _, f := range m.Functions {
		if f.Name == name {
			return f
		}
	}

	return nil
}

// FindStruct returns the struct named name, or nil if absent.
func (m *Module) FindStruct(name string) *StructDecl {
	for _, s := range m.Structs {
		if s.Name == name {
			return s
		}
	}

	return nil
}

// FindEnum returns the enum named name, or nil if absent.
func (m *Module) FindEnum(name string) *EnumDecl {
	for _, e := range m.Enums {
		if e.Name == name {
			return e
		}
	}

	return nil
}

// StructDecl is a monomorphized struct definition. Name is already the
// mangled name (e.g. `Vec__I32`) if this struct came from a generic
// template.
type StructDecl struct {
	ID     ids.NodeID
	Span   position.Span
	Name   string
	Fields []FieldDecl
}

// FieldDecl is one field of a StructDecl, carrying its resolved ordinal.
type FieldDecl struct {
	Name  string
	Ty    types.Type
	Index int
}

// FieldIndex returns the zero-based ordinal of fieldName, or -1 if absent.
func (s *StructDecl) FieldIndex(fieldName string) int {
	for _, f := range s.Fields {
		if f.Name == fieldName {
			return f.Index
		}
	}

	return -1
}

// EnumDecl is a monomorphized enum definition.
type EnumDecl struct {
	ID       ids.NodeID
	Span     position.Span
	Name     string
	Variants []VariantDecl
}

// VariantDecl is one variant of an EnumDecl, carrying its resolved ordinal.
type VariantDecl struct {
	Name    string
	Index   int
	Payload []types.Type
}

// VariantIndex returns the zero-based ordinal of variantName, or -1 if absent.
func (e *EnumDecl) VariantIndex(variantName string) int {
	for _, v := range e.Variants {
		if v.Name == variantName {
			return v.Index
		}
	}

	return -1
}

// BehaviorDecl is a trait/behavior declaration: a named set of method
// signatures that ImplDecls satisfy.
type BehaviorDecl struct {
	ID      ids.NodeID
	Span    position.Span
	Name    string
	Methods []MethodSig
}

// MethodSig is a method signature with no body, used by BehaviorDecl.
type MethodSig struct {
	Name   string
	Params []Param
	Return types.Type
}

// ImplDecl attaches a set of method bodies to a concrete type, either
// inherently or in satisfaction of a named BehaviorDecl.
type ImplDecl struct {
	ID           ids.NodeID
	Span         position.Span
	ForType      types.Type
	BehaviorName string // "" for an inherent impl
	Methods      []*FunctionDecl
}

// FunctionDecl is a monomorphized function or method body. Name is already
// mangled for generic instantiations.
type FunctionDecl struct {
	ID         ids.NodeID
	Span       position.Span
	Name       string
	Params     []Param
	Return     types.Type
	Body       *Block
	IsMethod   bool
	ReceiverTy types.Type // valid only when IsMethod
}

// ConstDecl is a module-level constant.
type ConstDecl struct {
	ID    ids.NodeID
	Span  position.Span
	Name  string
	Ty    types.Type
	Value Expr
}
