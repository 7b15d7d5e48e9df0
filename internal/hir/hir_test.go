package hir

import (
	"testing"

	"vellum/internal/ids"
	"vellum/internal/types"
)

func TestModuleFindHelpers(t *testing.T) {
	mod := &Module{
		Name: "demo",
		Structs: []*StructDecl{
			{ID: 1, Name: "Point", Fields: []FieldDecl{{Name: "x", Ty: types.NewPrimitive(types.PrimI32), Index: 0}}},
		},
		Enums: []*EnumDecl{
			{ID: 2, Name: "Option", Variants: []VariantDecl{{Name: "Some", Index: 0}, {Name: "None", Index: 1}}},
		},
		Functions: []*FunctionDecl{{ID: 3, Name: "main"}},
	}

	if mod.FindStruct("Point") == nil {
		t.Fatal("expected to find struct Point")
	}

	if mod.FindStruct("Missing") != nil {
		t.Fatal("did not expect to find struct Missing")
	}

	if mod.FindEnum("Option") == nil {
		t.Fatal("expected to find enum Option")
	}

	if mod.FindFunction("main") == nil {
		t.Fatal("expected to find function main")
	}
}

func TestStructDeclFieldIndex(t *testing.T) {
	s := &StructDecl{Name: "Point", Fields: []FieldDecl{
		{Name: "x", Index: 0},
		{Name: "y", Index: 1},
	}}

	if got := s.FieldIndex("y"); got != 1 {
		t.Errorf("FieldIndex(y) = %d, want 1", got)
	}

	if got := s.FieldIndex("z"); got != -1 {
		t.Errorf("FieldIndex(z) = %d, want -1", got)
	}
}

func TestEnumDeclVariantIndex(t *testing.T) {
	e := &EnumDecl{Name: "Option", Variants: []VariantDecl{
		{Name: "Some", Index: 0},
		{Name: "None", Index: 1},
	}}

	if got := e.VariantIndex("None"); got != 1 {
		t.Errorf("VariantIndex(None) = %d, want 1", got)
	}

	if got := e.VariantIndex("Absent"); got != -1 {
		t.Errorf("VariantIndex(Absent) = %d, want -1", got)
	}
}

func TestWalkVisitsEveryChild(t *testing.T) {
	left := &Literal{Base: Base{ID: 1, Ty: types.NewPrimitive(types.PrimI32)}, Int: 1}
	right := &Literal{Base: Base{ID: 2, Ty: types.NewPrimitive(types.PrimI32)}, Int: 2}
	add := &Binary{Base: Base{ID: 3, Ty: types.NewPrimitive(types.PrimI32)}, Op: OpAdd, Left: left, Right: right}

	var visited []ids.NodeID

	Walk(add, func(e Expr) bool {
		visited = append(visited, e.NodeID())
		return true
	})

	if len(visited) != 3 {
		t.Fatalf("expected 3 visited nodes, got %d: %v", len(visited), visited)
	}
}

func TestWalkStopsDescendingWhenVisitReturnsFalse(t *testing.T) {
	inner := &Literal{Base: Base{ID: 1}}
	outer := &Unary{Base: Base{ID: 2}, Op: UnNeg, Operand: inner}

	var visited int

	Walk(outer, func(e Expr) bool {
		visited++
		return false
	})

	if visited != 1 {
		t.Fatalf("expected Walk to stop after the root, visited %d nodes", visited)
	}
}

func TestEveryLoweredExpressionHasNonInvalidType(t *testing.T) {
	// A universal invariant from the testable-properties list: for every
	// lowered HIR expression e, type_of(e) != INVALID.
	exprs := []Expr{
		&Literal{Base: Base{Ty: types.NewPrimitive(types.PrimBool)}, Bool: true},
		&Var{Base: Base{Ty: types.NewPrimitive(types.PrimI32)}, Name: "x"},
	}

	for _, e := range exprs {
		if !e.Type().IsValid() {
			t.Errorf("expression %#v has invalid type", e)
		}
	}
}
