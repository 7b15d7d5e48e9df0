// Package thir defines the Typed High-level IR: HIR with explicit
// coercions, resolved method dispatch, operator overloading desugared to
// method calls, and checked pattern exhaustiveness. The data model
// mirrors internal/hir one-to-one except for those differences.
package thir

import (
	"vellum/internal/ids"
	"vellum/internal/position"
	"vellum/internal/types"
)

// Module owns all top-level THIR declarations, mirroring hir.Module.
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

// StructDecl mirrors hir.StructDecl verbatim — structs carry no
// coercions or dispatch, so THIR reuses the same shape.
type StructDecl struct {
	ID     ids.NodeID
	Span   position.Span
	Name   string
	Fields []FieldDecl
}

// FieldDecl is one field of a StructDecl.
type FieldDecl struct {
	Name  string
	Ty    types.Type
	Index int
}

// EnumDecl mirrors hir.EnumDecl verbatim.
type EnumDecl struct {
	ID       ids.NodeID
	Span     position.Span
	Name     string
	Variants []VariantDecl
}

// VariantDecl is one variant of an EnumDecl.
type VariantDecl struct {
	Name    string
	Index   int
	Payload []types.Type
}

// BehaviorDecl mirrors hir.BehaviorDecl verbatim.
type BehaviorDecl struct {
	ID      ids.NodeID
	Span    position.Span
	Name    string
	Methods []MethodSig
}

// MethodSig is a method signature with no body.
type MethodSig struct {
	Name   string
	Params []Param
	Return types.Type
}

// ImplDecl attaches method bodies to a concrete type.
type ImplDecl struct {
	ID           ids.NodeID
	Span         position.Span
	ForType      types.Type
	BehaviorName string
	Methods      []*FunctionDecl
}

// FunctionDecl is a lowered function or method body.
type FunctionDecl struct {
	ID         ids.NodeID
	Span       position.Span
	Name       string
	Params     []Param
	Return     types.Type
	Body       *Block
	IsMethod   bool
	ReceiverTy types.Type
}

// Param is one function or closure parameter.
type Param struct {
	Name string
	Ty   types.Type
}

// ConstDecl is a module-level constant.
type ConstDecl struct {
	ID    ids.NodeID
	Span  position.Span
	Name  string
	Ty    types.Type
	Value Expr
}
