package hir

import "vellum/internal/position"

// This file defines the minimal typed-AST input surface HirBuilder lowers
// from. The real typed AST is produced by the out-of-scope parser/type
// checker; HirBuilder only needs enough shape to drive
// each per-node lowering operation, so these types stand in
// for that external collaborator's node kinds — narrow enough to show the
// exact desugarings the catalogue demands, not a full surface grammar.

// AstExprKind tags the variant of an AstExpr.
type AstExprKind int

const (
	AstLiteral AstExprKind = iota
	AstIdent
	AstBinary
	AstUnary
	AstCall
	AstMethodCall
	AstField
	AstIndex
	AstTupleLit
	AstArrayLit
	AstArrayRepeat
	AstStructLit
	AstEnumCtor
	AstBlock
	AstIf
	AstTernary
	AstIfLet
	AstWhen
	AstLoop
	AstWhile
	AstFor
	AstReturn
	AstBreak
	AstContinue
	AstClosure
	AstCast
	AstTry
	AstAwait
	AstAssign
	AstCompoundAssign
	AstRange
	AstLowLevel
)

// AstExpr is one node of the typed-AST input to HirBuilder.
type AstExpr struct {
	Kind AstExprKind
	Span position.Span

	LitInt    int64
	LitUint   uint64
	LitFloat  float64
	LitBool   bool
	LitChar   rune
	LitStr    string
	LitIsUnit bool

	Name string // AstIdent

	Op    BinOp // AstBinary / AstCompoundAssign
	UOp   UnaryOp
	Left  *AstExpr
	Right *AstExpr

	Callee string // AstCall
	Args   []*AstExpr

	Receiver   *AstExpr // AstMethodCall
	MethodName string
	TypeArgs   []string // type-argument names; each is lowered to types.Named

	Object    *AstExpr // AstField / AstIndex
	FieldName string
	IndexExpr *AstExpr

	Elements []*AstExpr // AstTupleLit / AstArrayLit
	Repeat   *AstExpr   // AstArrayRepeat element
	Count    int

	StructName string // AstStructLit
	FieldInit  []AstFieldInit

	EnumName    string // AstEnumCtor
	VariantName string
	Payload     []*AstExpr

	Stmts []AstStmt // AstBlock
	Tail  *AstExpr

	Cond *AstExpr // AstIf / AstTernary / AstWhile
	Then *AstExpr
	Else *AstExpr

	LetPattern Pattern // AstIfLet
	LetInit    *AstExpr

	Scrutinee *AstExpr // AstWhen
	Arms      []AstWhenArm

	Body *AstExpr // AstLoop / AstFor body (AstWhile uses Then, AstClosure uses ClosureBody)

	ForPattern Pattern // AstFor
	ForIter    *AstExpr

	ReturnValue *AstExpr // AstReturn / AstBreak
	BreakValue  *AstExpr

	Params         []Param // AstClosure
	ClosureBody    *AstExpr
	ClosureEscapes bool // conservative escape hint from the type checker

	CastTarget string // AstCast: target type name, lowered to types.Named

	Inner *AstExpr // AstTry / AstAwait

	Place *AstExpr // AstAssign / AstCompoundAssign
	Value *AstExpr

	RangeLow       *AstExpr // AstRange
	RangeHigh      *AstExpr
	RangeInclusive bool

	Intrinsic string // AstLowLevel
}

// AstKind implements AstNode so an *AstExpr can be passed directly to a
// TypeEnv query.
func (e *AstExpr) AstKind() string { return astKindNames[e.Kind] }

var astKindNames = map[AstExprKind]string{
	AstLiteral: "literal", AstIdent: "ident", AstBinary: "binary",
	AstUnary: "unary", AstCall: "call", AstMethodCall: "method_call",
	AstField: "field", AstIndex: "index", AstTupleLit: "tuple_lit",
	AstArrayLit: "array_lit", AstArrayRepeat: "array_repeat",
	AstStructLit: "struct_lit", AstEnumCtor: "enum_ctor", AstBlock: "block",
	AstIf: "if", AstTernary: "ternary", AstIfLet: "if_let", AstWhen: "when",
	AstLoop: "loop", AstWhile: "while", AstFor: "for", AstReturn: "return",
	AstBreak: "break", AstContinue: "continue", AstClosure: "closure",
	AstCast: "cast", AstTry: "try", AstAwait: "await", AstAssign: "assign",
	AstCompoundAssign: "compound_assign", AstRange: "range",
	AstLowLevel: "low_level",
}

// AstFieldInit is one field initializer of an AstStructLit.
type AstFieldInit struct {
	Name  string
	Value *AstExpr
}

// AstWhenArm is one arm of an AstWhen.
type AstWhenArm struct {
	Pattern Pattern
	Guard   *AstExpr
	Body    *AstExpr
}

// AstStmtKind tags the variant of an AstStmt.
type AstStmtKind int

const (
	AstStmtLet AstStmtKind = iota
	AstStmtVar             // `var x = e`, desugars to `let mut`
	AstStmtExpr
	AstStmtNestedDecl // nested function/struct/enum/const declared inside a block
)

// AstStmt is one statement of an AstBlock.
type AstStmt struct {
	Kind     AstStmtKind
	Span     position.Span
	Pattern  Pattern
	TypeHint string // "" if omitted; lowered to types.Named when present
	Init     *AstExpr
	Value    *AstExpr

	NestedFunction *AstFunction
}

// AstFunction is a typed-AST function or method declaration.
type AstFunction struct {
	Name         string
	Params       []Param
	ReturnHint   string
	Body         *AstExpr
	IsMethod     bool
	ReceiverHint string
}

// AstModule is the typed-AST module HirBuilder's public entry point
// consumes.
type AstModule struct {
	Name      string
	Structs   []AstStructDecl
	Enums     []AstEnumDecl
	Behaviors []AstBehaviorDecl
	Impls     []AstImplDecl
	Functions []*AstFunction
	Constants []AstConstDecl
	Imports   []string
}

// AstStructDecl is a typed-AST struct declaration.
type AstStructDecl struct {
	Name   string
	Fields []AstFieldDecl
}

// AstFieldDecl is one field of an AstStructDecl.
type AstFieldDecl struct {
	Name     string
	TypeHint string
}

// AstEnumDecl is a typed-AST enum declaration.
type AstEnumDecl struct {
	Name     string
	Variants []AstVariantDecl
}

// AstVariantDecl is one variant of an AstEnumDecl.
type AstVariantDecl struct {
	Name         string
	PayloadHints []string
}

// AstBehaviorDecl is a typed-AST trait/behavior declaration.
type AstBehaviorDecl struct {
	Name    string
	Methods []MethodSig
}

// AstImplDecl is a typed-AST impl block.
type AstImplDecl struct {
	ForTypeHint  string
	BehaviorName string
	Methods      []*AstFunction
}

// AstConstDecl is a typed-AST module-level constant.
type AstConstDecl struct {
	Name     string
	TypeHint string
	Value    *AstExpr
}
