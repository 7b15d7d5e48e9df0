package hir

import (
	"vellum/internal/ids"
	"vellum/internal/position"
	"vellum/internal/types"
)

// StmtKind tags the variant of a Stmt. Exactly two kinds exist after
// desugaring: `var` has already become `let mut` by the time HIR is
// built.
type StmtKind int

const (
	StmtLet StmtKind = iota
	StmtExpr
)

// Stmt is one statement inside a Block.
type Stmt struct {
	Kind StmtKind
	ID   ids.NodeID
	Span position.Span

	// StmtLet
	Pattern Pattern
	Mutable bool
	Ty      types.Type // declared or inferred type of the binding
	Init    Expr       // nil for `let pattern: T;` with no initializer

	// StmtExpr
	Value Expr
}

// Children returns the expressions reachable as immediate operands of s,
// for use by Walk via Block.Children.
func (s Stmt) Children() []Expr {
	switch s.Kind {
	case StmtLet:
		if s.Init != nil {
			return []Expr{s.Init}
		}

		return nil
	case StmtExpr:
		return []Expr{s.Value}
	default:
		return nil
	}
}
