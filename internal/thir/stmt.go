package thir

import (
	"vellum/internal/hir"
	"vellum/internal/ids"
	"vellum/internal/position"
	"vellum/internal/types"
)

// StmtKind mirrors hir.StmtKind verbatim.
type StmtKind int

const (
	StmtLet StmtKind = iota
	StmtExpr
)

// Stmt mirrors hir.Stmt verbatim; patterns are reused from hir since
// pattern shape does not change between HIR and THIR.
type Stmt struct {
	Kind StmtKind
	ID   ids.NodeID
	Span position.Span

	Pattern hir.Pattern
	Mutable bool
	Ty      types.Type
	Init    Expr

	Value Expr
}

// Children returns the expressions reachable as immediate operands of s.
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
