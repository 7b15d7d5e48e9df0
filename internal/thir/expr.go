package thir

import (
	"vellum/internal/hir"
	"vellum/internal/ids"
	"vellum/internal/position"
	"vellum/internal/types"
)

// ExprKind tags the variant of a THIR Expr. Mirrors hir.ExprKind exactly
// except ExprMethodCall now always carries a ResolvedMethod and binary/
// unary operator overloads have already been rewritten to ExprMethodCall
// by ThirLower; ExprCoercion is new.
type ExprKind int

const (
	ExprInvalid ExprKind = iota
	ExprLiteral
	ExprVar
	ExprBinary
	ExprUnary
	ExprCall
	ExprMethodCall
	ExprField
	ExprIndex
	ExprTupleInit
	ExprArrayInit
	ExprArrayRepeat
	ExprStructInit
	ExprEnumInit
	ExprBlock
	ExprIf
	ExprWhen
	ExprLoop
	ExprWhile
	ExprReturn
	ExprBreak
	ExprContinue
	ExprClosure
	ExprCast
	ExprAwait
	ExprAssign
	ExprCompoundAssign
	ExprLowLevel
	ExprCoercion
)

// Base carries the fields every THIR node has, identical to hir.Base.
type Base struct {
	ID   ids.NodeID
	Ty   types.Type
	Span position.Span
}

func (b Base) NodeID() ids.NodeID        { return b.ID }
func (b Base) Type() types.Type          { return b.Ty }
func (b Base) SourceSpan() position.Span { return b.Span }

// Expr is the sealed interface implemented by every THIR expression kind.
type Expr interface {
	Kind() ExprKind
	NodeID() ids.NodeID
	Type() types.Type
	SourceSpan() position.Span
	Children() []Expr
}

// CoercionKind enumerates the coercion kinds.
type CoercionKind int

const (
	NumericWidening CoercionKind = iota
	NumericNarrowing
	AutoDeref
	AutoRef
	MutToConstRef
	NeverToAny
)

func (k CoercionKind) String() string {
	switch k {
	case NumericWidening:
		return "NumericWidening"
	case NumericNarrowing:
		return "NumericNarrowing"
	case AutoDeref:
		return "AutoDeref"
	case AutoRef:
		return "AutoRef"
	case MutToConstRef:
		return "MutToConstRef"
	case NeverToAny:
		return "NeverToAny"
	default:
		return "<invalid-coercion>"
	}
}

// Coercion wraps an inner expression whose type differs from its
// position's declared target type. Multiple coercions
// compose by nesting — a Coercion's Inner may itself be a Coercion.
type Coercion struct {
	Base
	CoercionKind CoercionKind
	Inner        Expr
}

func (e *Coercion) Kind() ExprKind   { return ExprCoercion }
func (e *Coercion) Children() []Expr { return []Expr{e.Inner} }

// ReceiverKind classifies how a ResolvedMethod was found.
type ReceiverKind int

const (
	ReceiverInherent ReceiverKind = iota
	ReceiverBehavior
	ReceiverInterface
)

// ResolvedMethod is the dispatch resolution recorded on every THIR
// MethodCall.
type ResolvedMethod struct {
	ReceiverKind     ReceiverKind
	ImplementingType types.Type
	MethodName       string
	IsStaticDispatch bool
	// Ambiguous is set when TraitSolver.ResolveMethod reported an
	// AmbiguityDiagnostic; a placeholder resolution is still recorded so
	// lowering can proceed.
	Ambiguous bool
}

// Literal mirrors hir.Literal verbatim.
type Literal struct {
	Base
	Int    int64
	Uint   uint64
	Float  float64
	Bool   bool
	Char   rune
	Str    string
	IsUnit bool
}

func (e *Literal) Kind() ExprKind   { return ExprLiteral }
func (e *Literal) Children() []Expr { return nil }

// Var mirrors hir.Var verbatim.
type Var struct {
	Base
	Name    string
	Binding hir.BindingKind
}

func (e *Var) Kind() ExprKind   { return ExprVar }
func (e *Var) Children() []Expr { return nil }

// Binary is a primitive-on-primitive binary operation; overloaded
// operators never reach THIR as Binary — ThirLower rewrites them to
// MethodCall.
type Binary struct {
	Base
	Op    hir.BinOp
	Left  Expr
	Right Expr
}

func (e *Binary) Kind() ExprKind   { return ExprBinary }
func (e *Binary) Children() []Expr { return []Expr{e.Left, e.Right} }

// Unary mirrors hir.Unary; overloaded unary operators are also rewritten
// to MethodCall by ThirLower.
type Unary struct {
	Base
	Op      hir.UnaryOp
	Operand Expr
}

func (e *Unary) Kind() ExprKind   { return ExprUnary }
func (e *Unary) Children() []Expr { return []Expr{e.Operand} }

// Call mirrors hir.Call verbatim.
type Call struct {
	Base
	Callee string
	Args   []Expr
}

func (e *Call) Kind() ExprKind   { return ExprCall }
func (e *Call) Children() []Expr { return e.Args }

// MethodCall always carries a ResolvedMethod, unlike HIR's
// dispatch-unresolved MethodCall.
type MethodCall struct {
	Base
	Receiver   Expr
	MethodName string
	TypeArgs   []types.Type
	Args       []Expr
	Resolved   ResolvedMethod
}

func (e *MethodCall) Kind() ExprKind   { return ExprMethodCall }
func (e *MethodCall) Children() []Expr { return append([]Expr{e.Receiver}, e.Args...) }

// Field mirrors hir.Field verbatim.
type Field struct {
	Base
	Object     Expr
	FieldName  string
	FieldIndex int
}

func (e *Field) Kind() ExprKind   { return ExprField }
func (e *Field) Children() []Expr { return []Expr{e.Object} }

// Index mirrors hir.Index verbatim.
type Index struct {
	Base
	Object Expr
	Index  Expr
}

func (e *Index) Kind() ExprKind   { return ExprIndex }
func (e *Index) Children() []Expr { return []Expr{e.Object, e.Index} }

// TupleInit mirrors hir.TupleInit verbatim.
type TupleInit struct {
	Base
	Elements []Expr
}

func (e *TupleInit) Kind() ExprKind   { return ExprTupleInit }
func (e *TupleInit) Children() []Expr { return e.Elements }

// ArrayInit mirrors hir.ArrayInit verbatim.
type ArrayInit struct {
	Base
	Elements []Expr
}

func (e *ArrayInit) Kind() ExprKind   { return ExprArrayInit }
func (e *ArrayInit) Children() []Expr { return e.Elements }

// ArrayRepeat mirrors hir.ArrayRepeat verbatim.
type ArrayRepeat struct {
	Base
	Element Expr
	Count   int
}

func (e *ArrayRepeat) Kind() ExprKind   { return ExprArrayRepeat }
func (e *ArrayRepeat) Children() []Expr { return []Expr{e.Element} }

// StructInit mirrors hir.StructInit verbatim.
type StructInit struct {
	Base
	StructName string
	Fields     []Expr
}

func (e *StructInit) Kind() ExprKind   { return ExprStructInit }
func (e *StructInit) Children() []Expr { return e.Fields }

// EnumInit mirrors hir.EnumInit verbatim.
type EnumInit struct {
	Base
	EnumName     string
	VariantIndex int
	Payload      []Expr
}

func (e *EnumInit) Kind() ExprKind   { return ExprEnumInit }
func (e *EnumInit) Children() []Expr { return e.Payload }

// Block mirrors hir.Block; Tail is nil for a unit-typed block.
type Block struct {
	Base
	Stmts []Stmt
	Tail  Expr
}

func (e *Block) Kind() ExprKind { return ExprBlock }
func (e *Block) Children() []Expr {
	var out []Expr
	for _, s := range e.Stmts {
		out = append(out, s.Children()...)
	}

	if e.Tail != nil {
		out = append(out, e.Tail)
	}

	return out
}

// If mirrors hir.If verbatim.
type If struct {
	Base
	Cond Expr
	Then Expr
	Else Expr
}

func (e *If) Kind() ExprKind { return ExprIf }
func (e *If) Children() []Expr {
	if e.Else != nil {
		return []Expr{e.Cond, e.Then, e.Else}
	}

	return []Expr{e.Cond, e.Then}
}

// WhenArm is one arm of a When expression; the pattern shape is unchanged
// from HIR.
type WhenArm struct {
	Pattern hir.Pattern
	Guard   Expr
	Body    Expr
}

// When has passed exhaustiveness checking by the time ThirLower returns
// it; if the original arms were non-exhaustive, Synthesized is true and
// the last arm is the synthesized unreachable default.
type When struct {
	Base
	Scrutinee   Expr
	Arms        []WhenArm
	Synthesized bool
}

func (e *When) Kind() ExprKind { return ExprWhen }
func (e *When) Children() []Expr {
	out := []Expr{e.Scrutinee}
	for _, a := range e.Arms {
		if a.Guard != nil {
			out = append(out, a.Guard)
		}

		out = append(out, a.Body)
	}

	return out
}

// Loop mirrors hir.Loop verbatim.
type Loop struct {
	Base
	Body Expr
}

func (e *Loop) Kind() ExprKind   { return ExprLoop }
func (e *Loop) Children() []Expr { return []Expr{e.Body} }

// While mirrors hir.While verbatim.
type While struct {
	Base
	Cond Expr
	Body Expr
}

func (e *While) Kind() ExprKind   { return ExprWhile }
func (e *While) Children() []Expr { return []Expr{e.Cond, e.Body} }

// Return mirrors hir.Return verbatim.
type Return struct {
	Base
	Value Expr
}

func (e *Return) Kind() ExprKind { return ExprReturn }
func (e *Return) Children() []Expr {
	if e.Value != nil {
		return []Expr{e.Value}
	}

	return nil
}

// Break mirrors hir.Break verbatim.
type Break struct {
	Base
	Value Expr
}

func (e *Break) Kind() ExprKind { return ExprBreak }
func (e *Break) Children() []Expr {
	if e.Value != nil {
		return []Expr{e.Value}
	}

	return nil
}

// Continue mirrors hir.Continue verbatim.
type Continue struct{ Base }

func (e *Continue) Kind() ExprKind   { return ExprContinue }
func (e *Continue) Children() []Expr { return nil }

// Closure mirrors hir.Closure verbatim — capture analysis already ran in
// HirBuilder and is not redone here.
type Closure struct {
	Base
	Params   []Param
	Body     Expr
	Captures []hir.Capture
}

func (e *Closure) Kind() ExprKind   { return ExprClosure }
func (e *Closure) Children() []Expr { return []Expr{e.Body} }

// Cast is an explicit `as` cast. Unlike implicit Coercion nodes, Cast
// always carries an explicit NumericNarrowing/NumericWidening/Bitcast
// intent the backend resolves at MIR build time; ThirLower does not wrap
// Cast in a further Coercion.
type Cast struct {
	Base
	Operand Expr
	Target  types.Type
}

func (e *Cast) Kind() ExprKind   { return ExprCast }
func (e *Cast) Children() []Expr { return []Expr{e.Operand} }

// Await mirrors hir.Await verbatim.
type Await struct {
	Base
	Inner Expr
}

func (e *Await) Kind() ExprKind   { return ExprAwait }
func (e *Await) Children() []Expr { return []Expr{e.Inner} }

// Assign mirrors hir.Assign verbatim.
type Assign struct {
	Base
	Place Expr
	Value Expr
}

func (e *Assign) Kind() ExprKind   { return ExprAssign }
func (e *Assign) Children() []Expr { return []Expr{e.Place, e.Value} }

// CompoundAssign mirrors hir.CompoundAssign; if Op is overloaded on
// Place's type, ThirLower desugars the whole node to
// `Assign{Place, MethodCall{Place, op-method, [Value]}}` instead of
// keeping CompoundAssign.
type CompoundAssign struct {
	Base
	Op    hir.BinOp
	Place Expr
	Value Expr
}

func (e *CompoundAssign) Kind() ExprKind   { return ExprCompoundAssign }
func (e *CompoundAssign) Children() []Expr { return []Expr{e.Place, e.Value} }

// LowLevel mirrors hir.LowLevel verbatim.
type LowLevel struct {
	Base
	Intrinsic string
	Args      []Expr
}

func (e *LowLevel) Kind() ExprKind   { return ExprLowLevel }
func (e *LowLevel) Children() []Expr { return e.Args }

// Walk visits e and every descendant in pre-order.
func Walk(e Expr, visit func(Expr) bool) {
	if e == nil || !visit(e) {
		return
	}

	for _, c := range e.Children() {
		Walk(c, visit)
	}
}
