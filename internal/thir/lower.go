// ThirLower performs the HIR → THIR lowering pass: inserting explicit
// coercions, resolving method dispatch, desugaring operator overloads to
// method calls, and checking `when` exhaustiveness. One lowering method
// per surface construct.
package thir

import (
	"fmt"

	"vellum/internal/diagnostic"
	"vellum/internal/hir"
	"vellum/internal/ids"
	"vellum/internal/position"
	"vellum/internal/types"
)

// ThirLower owns one HIR → THIR lowering session: a fresh NodeID
// generator, the trait solver
// collaborator, the accumulated diagnostics vector, and the
// CoercionSite trace.
type ThirLower struct {
	ids     *ids.NodeIDGenerator
	solver  TraitSolver
	diags   []diagnostic.Diagnostic
	trace   CoercionTrace
	src     *hir.Module
	checker *ExhaustivenessChecker
	tryN    int
}

// NewThirLower returns a lowering session for src, resolving method
// dispatch through solver.
func NewThirLower(src *hir.Module, solver TraitSolver) *ThirLower {
	l := &ThirLower{
		ids:    ids.NewNodeIDGenerator(),
		solver: solver,
		src:    src,
	}
	l.checker = NewExhaustivenessChecker(src)

	return l
}

// Diagnostics returns every diagnostic collected during Lower:
// non-exhaustive `when` and ambiguous dispatch never abort the pass.
func (l *ThirLower) Diagnostics() []diagnostic.Diagnostic { return l.diags }

// CoercionTrace returns every coercion inserted during Lower, in
// insertion order, for --emit-thir.
func (l *ThirLower) CoercionTrace() []CoercionSite { return l.trace.Sites() }

// Lower converts the entire HIR module to THIR.
func (l *ThirLower) Lower() *Module {
	out := &Module{
		Name:    l.src.Name,
		Imports: append([]string(nil), l.src.Imports...),
	}

	for _, s := range l.src.Structs {
		out.Structs = append(out.Structs, l.lowerStruct(s))
	}

	for _, e := range l.src.Enums {
		out.Enums = append(out.Enums, l.lowerEnum(e))
	}

	for _, b := range l.src.Behaviors {
		out.Behaviors = append(out.Behaviors, l.lowerBehavior(b))
	}

	for _, c := range l.src.Constants {
		out.Constants = append(out.Constants, l.lowerConst(c))
	}

	for _, f := range l.src.Functions {
		out.Functions = append(out.Functions, l.lowerFunction(f))
	}

	for _, impl := range l.src.Impls {
		out.Impls = append(out.Impls, l.lowerImpl(impl))
	}

	return out
}

func (l *ThirLower) lowerStruct(s *hir.StructDecl) *StructDecl {
	out := &StructDecl{ID: s.ID, Span: s.Span, Name: s.Name}
	for _, f := range s.Fields {
		out.Fields = append(out.Fields, FieldDecl{Name: f.Name, Ty: f.Ty, Index: f.Index})
	}

	return out
}

func (l *ThirLower) lowerEnum(e *hir.EnumDecl) *EnumDecl {
	out := &EnumDecl{ID: e.ID, Span: e.Span, Name: e.Name}
	for _, v := range e.Variants {
		out.Variants = append(out.Variants, VariantDecl{Name: v.Name, Index: v.Index, Payload: v.Payload})
	}

	return out
}

func (l *ThirLower) lowerBehavior(b *hir.BehaviorDecl) *BehaviorDecl {
	out := &BehaviorDecl{ID: b.ID, Span: b.Span, Name: b.Name}
	for _, m := range b.Methods {
		out.Methods = append(out.Methods, MethodSig{Name: m.Name, Params: lowerParams(m.Params), Return: m.Return})
	}

	return out
}

func (l *ThirLower) lowerImpl(i *hir.ImplDecl) *ImplDecl {
	out := &ImplDecl{ID: i.ID, Span: i.Span, ForType: i.ForType, BehaviorName: i.BehaviorName}
	for _, m := range i.Methods {
		out.Methods = append(out.Methods, l.lowerFunction(m))
	}

	return out
}

func (l *ThirLower) lowerConst(c *hir.ConstDecl) *ConstDecl {
	return &ConstDecl{ID: c.ID, Span: c.Span, Name: c.Name, Ty: c.Ty, Value: l.coerce(c.Ty, l.lowerExpr(c.Value))}
}

func lowerParams(ps []hir.Param) []Param {
	out := make([]Param, len(ps))
	for i, p := range ps {
		out[i] = Param{Name: p.Name, Ty: p.Ty}
	}

	return out
}

func (l *ThirLower) lowerFunction(f *hir.FunctionDecl) *FunctionDecl {
	out := &FunctionDecl{
		ID:         f.ID,
		Span:       f.Span,
		Name:       f.Name,
		Params:     lowerParams(f.Params),
		Return:     f.Return,
		IsMethod:   f.IsMethod,
		ReceiverTy: f.ReceiverTy,
	}

	if f.Body != nil {
		body := l.lowerExpr(f.Body).(*Block)
		if body.Tail != nil {
			body.Tail = l.coerce(f.Return, body.Tail)
		}

		out.Body = body
	}

	return out
}

// fresh allocates a new THIR-local NodeID.
func (l *ThirLower) fresh() ids.NodeID { return l.ids.Fresh() }

// coerce wraps e in a Coercion node if e's type differs from target and
// one of the coercion rules applies; otherwise returns e
// unchanged. Multiple coercions compose by nesting (repeated calls on an
// already-coerced e).
func (l *ThirLower) coerce(target types.Type, e Expr) Expr {
	if e == nil || target.Equal(e.Type()) {
		return e
	}

	kind, ok := coercionKindFor(e.Type(), target)
	if !ok {
		return e
	}

	site := CoercionSite{ExprID: uint64(e.NodeID()), Kind: kind, BeforeType: e.Type(), AfterType: target}
	l.trace.Record(site)

	return &Coercion{
		Base:         Base{ID: l.fresh(), Ty: target, Span: e.SourceSpan()},
		CoercionKind: kind,
		Inner:        e,
	}
}

// coercionKindFor decides which coercion kind bridges from → to, or
// reports none applies. NumericNarrowing is deliberately never returned
// here: it only ever arises from an explicit `as` cast, which ThirLower
// represents directly as a Cast node instead.
func coercionKindFor(from, to types.Type) (CoercionKind, bool) {
	if from.Kind == types.KindNever {
		return NeverToAny, true
	}

	if from.Kind == types.KindPrimitive && to.Kind == types.KindPrimitive {
		fp, tp := from.Prim, to.Prim
		if fp.IsInteger() && tp.IsInteger() && fp.IsSigned() == tp.IsSigned() && tp.Width() > fp.Width() {
			return NumericWidening, true
		}

		if fp == types.PrimF32 && tp == types.PrimF64 {
			return NumericWidening, true
		}
	}

	if from.Kind == types.KindReference && to.Kind == types.KindReference &&
		from.RefMut == types.Mutable && to.RefMut == types.Immutable && from.Elem.Equal(*to.Elem) {
		return MutToConstRef, true
	}

	if from.Kind == types.KindReference && to.Kind != types.KindReference && from.Elem.Equal(to) {
		return AutoDeref, true
	}

	if from.Kind != types.KindReference && to.Kind == types.KindReference && from.Equal(*to.Elem) {
		return AutoRef, true
	}

	return 0, false
}

// lowerExpr dispatches on the HIR expression's kind, one method per
// surface shape.
func (l *ThirLower) lowerExpr(e hir.Expr) Expr {
	switch n := e.(type) {
	case *hir.Literal:
		return &Literal{Base: base(n), Int: n.Int, Uint: n.Uint, Float: n.Float, Bool: n.Bool, Char: n.Char, Str: n.Str, IsUnit: n.IsUnit}
	case *hir.Var:
		return &Var{Base: base(n), Name: n.Name, Binding: n.Binding}
	case *hir.Binary:
		return l.lowerBinary(n)
	case *hir.Unary:
		return l.lowerUnary(n)
	case *hir.Call:
		return l.lowerCall(n)
	case *hir.MethodCall:
		return l.lowerMethodCall(n)
	case *hir.Field:
		return &Field{Base: base(n), Object: l.lowerExpr(n.Object), FieldName: n.FieldName, FieldIndex: n.FieldIndex}
	case *hir.Index:
		return &Index{Base: base(n), Object: l.lowerExpr(n.Object), Index: l.lowerExpr(n.Index)}
	case *hir.TupleInit:
		return &TupleInit{Base: base(n), Elements: l.lowerExprs(n.Elements)}
	case *hir.ArrayInit:
		return &ArrayInit{Base: base(n), Elements: l.lowerExprs(n.Elements)}
	case *hir.ArrayRepeat:
		return &ArrayRepeat{Base: base(n), Element: l.lowerExpr(n.Element), Count: n.Count}
	case *hir.StructInit:
		return l.lowerStructInit(n)
	case *hir.EnumInit:
		return l.lowerEnumInit(n)
	case *hir.Block:
		return l.lowerBlock(n)
	case *hir.If:
		return l.lowerIf(n)
	case *hir.When:
		return l.lowerWhen(n)
	case *hir.Loop:
		return &Loop{Base: base(n), Body: l.lowerExpr(n.Body)}
	case *hir.While:
		return &While{Base: base(n), Cond: l.lowerExpr(n.Cond), Body: l.lowerExpr(n.Body)}
	case *hir.Return:
		return l.lowerReturn(n)
	case *hir.Break:
		if n.Value != nil {
			return &Break{Base: base(n), Value: l.lowerExpr(n.Value)}
		}

		return &Break{Base: base(n)}
	case *hir.Continue:
		return &Continue{Base: base(n)}
	case *hir.Closure:
		return &Closure{Base: base(n), Params: lowerParams(n.Params), Body: l.lowerExpr(n.Body), Captures: n.Captures}
	case *hir.Cast:
		return &Cast{Base: base(n), Operand: l.lowerExpr(n.Operand), Target: n.Target}
	case *hir.Try:
		return l.lowerTry(n)
	case *hir.Await:
		return &Await{Base: base(n), Inner: l.lowerExpr(n.Inner)}
	case *hir.Assign:
		place := l.lowerExpr(n.Place)
		return &Assign{Base: base(n), Place: place, Value: l.coerce(place.Type(), l.lowerExpr(n.Value))}
	case *hir.CompoundAssign:
		return l.lowerCompoundAssign(n)
	case *hir.LowLevel:
		return &LowLevel{Base: base(n), Intrinsic: n.Intrinsic, Args: l.lowerExprs(n.Args)}
	default:
		panic(fmt.Sprintf("thir: unhandled HIR expression kind %v", e.Kind()))
	}
}

func base(e hir.Expr) Base {
	return Base{ID: e.NodeID(), Ty: e.Type(), Span: e.SourceSpan()}
}

func (l *ThirLower) lowerExprs(es []hir.Expr) []Expr {
	out := make([]Expr, len(es))
	for i, e := range es {
		out[i] = l.lowerExpr(e)
	}

	return out
}

func (l *ThirLower) lowerStructInit(n *hir.StructInit) *StructInit {
	out := &StructInit{Base: base(n), StructName: n.StructName}
	decl := l.src.FindStruct(n.StructName)

	for i, f := range n.Fields {
		lowered := l.lowerExpr(f)
		if decl != nil && i < len(decl.Fields) {
			lowered = l.coerce(decl.Fields[i].Ty, lowered)
		}

		out.Fields = append(out.Fields, lowered)
	}

	return out
}

func (l *ThirLower) lowerEnumInit(n *hir.EnumInit) *EnumInit {
	out := &EnumInit{Base: base(n), EnumName: n.EnumName, VariantIndex: n.VariantIndex}
	decl := l.src.FindEnum(n.EnumName)

	var payloadTys []types.Type
	if decl != nil && n.VariantIndex < len(decl.Variants) {
		payloadTys = decl.Variants[n.VariantIndex].Payload
	}

	for i, p := range n.Payload {
		lowered := l.lowerExpr(p)
		if i < len(payloadTys) {
			lowered = l.coerce(payloadTys[i], lowered)
		}

		out.Payload = append(out.Payload, lowered)
	}

	return out
}

func (l *ThirLower) lowerBlock(n *hir.Block) *Block {
	out := &Block{Base: base(n)}
	for _, s := range n.Stmts {
		out.Stmts = append(out.Stmts, l.lowerStmt(s))
	}

	if n.Tail != nil {
		out.Tail = l.lowerExpr(n.Tail)
	}

	return out
}

func (l *ThirLower) lowerStmt(s hir.Stmt) Stmt {
	switch s.Kind {
	case hir.StmtLet:
		out := Stmt{Kind: StmtLet, ID: s.ID, Span: s.Span, Pattern: s.Pattern, Mutable: s.Mutable, Ty: s.Ty}
		if s.Init != nil {
			out.Init = l.coerce(s.Ty, l.lowerExpr(s.Init))
		}

		return out
	case hir.StmtExpr:
		return Stmt{Kind: StmtExpr, ID: s.ID, Span: s.Span, Value: l.lowerExpr(s.Value)}
	default:
		panic("thir: unhandled HIR statement kind")
	}
}

func (l *ThirLower) lowerIf(n *hir.If) *If {
	out := &If{Base: base(n), Cond: l.lowerExpr(n.Cond), Then: l.lowerExpr(n.Then)}
	if n.Else != nil {
		out.Else = l.lowerExpr(n.Else)
	}

	return out
}

func (l *ThirLower) lowerReturn(n *hir.Return) *Return {
	if n.Value == nil {
		return &Return{Base: base(n)}
	}

	return &Return{Base: base(n), Value: l.lowerExpr(n.Value)}
}

// lowerWhen checks exhaustiveness and, if the arms are
// non-exhaustive, emits a diagnostic and synthesizes an unreachable
// default arm rather than failing the pass.
func (l *ThirLower) lowerWhen(n *hir.When) *When {
	out := &When{Base: base(n), Scrutinee: l.lowerExpr(n.Scrutinee)}

	patterns := make([]hir.Pattern, len(n.Arms))
	for i, a := range n.Arms {
		patterns[i] = a.Pattern
	}

	for _, a := range n.Arms {
		arm := WhenArm{Pattern: a.Pattern, Body: l.lowerExpr(a.Body)}
		if a.Guard != nil {
			arm.Guard = l.lowerExpr(a.Guard)
		}

		out.Arms = append(out.Arms, arm)
	}

	missing := l.checker.Missing(n.Scrutinee.Type(), patterns)
	if len(missing) > 0 {
		l.diags = append(l.diags, *diagnostic.Common.NonExhaustiveWhen(n.Span, missing))
		out.Arms = append(out.Arms, WhenArm{
			Pattern: hir.Pattern{Kind: hir.PatternWildcard},
			Body:    &LowLevel{Base: Base{ID: l.fresh(), Ty: n.Ty, Span: n.Span}, Intrinsic: "unreachable"},
		})
		out.Synthesized = true
	}

	return out
}

// lowerTry desugars the `?` marker to a match on the inner Result/Option-
// like enum value: the zero-index "ok" variant's single payload becomes
// the expression's value; any other variant causes an early return of
// that same enum value, re-wrapped for the caller's own return type by
// the normal coercion machinery.
func (l *ThirLower) lowerTry(n *hir.Try) Expr {
	inner := l.lowerExpr(n.Inner)
	innerTy := inner.Type()

	decl := l.src.FindEnum(innerTy.Name)
	if decl == nil || len(decl.Variants) == 0 {
		// Unknown shape: pass the value through unexamined rather than
		// guessing at a protocol the type environment didn't confirm.
		return inner
	}

	l.tryN++
	tmpName := fmt.Sprintf("__try%d", l.tryN)
	tmpID := l.fresh()

	letStmt := Stmt{
		Kind:    StmtLet,
		ID:      tmpID,
		Span:    n.Span,
		Pattern: hir.Pattern{Kind: hir.PatternBinding, BindingName: tmpName},
		Ty:      innerTy,
		Init:    inner,
	}

	scrutinee := &Var{Base: Base{ID: l.fresh(), Ty: innerTy, Span: n.Span}, Name: tmpName, Binding: hir.BindingLocal}

	okVariant := decl.Variants[0]
	var okPayloadVar Expr = &Literal{Base: Base{ID: l.fresh(), Ty: types.Unit(), Span: n.Span}, IsUnit: true}

	okPat := hir.Pattern{Kind: hir.PatternEnum, EnumName: decl.Name, VariantName: okVariant.Name, VariantIndex: okVariant.Index}

	if len(okVariant.Payload) == 1 {
		bindName := tmpName + "_ok"
		okPat.Payload = []hir.Pattern{{Kind: hir.PatternBinding, BindingName: bindName}}
		okPayloadVar = &Var{Base: Base{ID: l.fresh(), Ty: okVariant.Payload[0], Span: n.Span}, Name: bindName, Binding: hir.BindingLocal}
	}

	arms := []WhenArm{{Pattern: okPat, Body: okPayloadVar}}

	earlyReturn := &Return{Base: Base{ID: l.fresh(), Ty: types.Never(), Span: n.Span}, Value: scrutinee}
	arms = append(arms, WhenArm{Pattern: hir.Pattern{Kind: hir.PatternWildcard}, Body: earlyReturn})

	when := &When{Base: Base{ID: l.fresh(), Ty: n.Ty, Span: n.Span}, Scrutinee: scrutinee, Arms: arms}

	return &Block{
		Base:  Base{ID: l.fresh(), Ty: n.Ty, Span: n.Span},
		Stmts: []Stmt{letStmt},
		Tail:  when,
	}
}

// lowerBinary desugars an overloaded operator to a resolved MethodCall,
// or keeps primitive-on-primitive arithmetic as Binary with numeric
// widening applied so both operands share a common width.
func (l *ThirLower) lowerBinary(n *hir.Binary) Expr {
	left := l.lowerExpr(n.Left)
	right := l.lowerExpr(n.Right)

	if left.Type().Kind == types.KindNamed {
		if mc, ok := l.tryOverload(n.Span, n.Ty, left, operatorMethodNames[n.Op], []Expr{right}); ok {
			return mc
		}
	}

	left, right = l.widenToCommon(left, right)

	return &Binary{Base: base(n), Op: n.Op, Left: left, Right: right}
}

func (l *ThirLower) lowerUnary(n *hir.Unary) Expr {
	operand := l.lowerExpr(n.Operand)

	if operand.Type().Kind == types.KindNamed {
		if mc, ok := l.tryOverload(n.Span, n.Ty, operand, unaryOperatorMethodNames[n.Op], nil); ok {
			return mc
		}
	}

	return &Unary{Base: base(n), Op: n.Op, Operand: operand}
}

// lowerCompoundAssign desugars `place op= value` on a named (possibly
// operator-overloaded) type to `place = place.op(value)`; primitive
// compound-assigns keep the dedicated CompoundAssign shape.
func (l *ThirLower) lowerCompoundAssign(n *hir.CompoundAssign) Expr {
	place := l.lowerExpr(n.Place)
	value := l.lowerExpr(n.Value)

	if place.Type().Kind == types.KindNamed {
		if mc, ok := l.tryOverload(n.Span, place.Type(), place, operatorMethodNames[n.Op], []Expr{value}); ok {
			return &Assign{Base: base(n), Place: place, Value: mc}
		}
	}

	place, value = l.widenToCommon(place, value)

	return &CompoundAssign{Base: base(n), Op: n.Op, Place: place, Value: value}
}

// tryOverload queries the trait solver for an operator method on
// receiver's type; ok is false if no such method exists (leave the
// caller's primitive fallback in place) or methodName is empty (operator
// has no table entry).
func (l *ThirLower) tryOverload(span position.Span, resultTy types.Type, receiver Expr, methodName string, args []Expr) (*MethodCall, bool) {
	if methodName == "" {
		return nil, false
	}

	argTypes := make([]types.Type, len(args))
	for i, a := range args {
		argTypes[i] = a.Type()
	}

	res, ok, diag := l.solver.ResolveMethod(receiver.Type(), methodName, argTypes)
	if !ok {
		if diag.MethodName == "" {
			// Solver reports "no such method" (not ambiguity) for
			// operators the receiver type doesn't actually overload —
			// fall back to Binary/Unary rather than diagnosing.
			return nil, false
		}

		l.diags = append(l.diags, *diagnostic.Common.AmbiguousDispatch(span, methodName, diag.Candidates))
		res = ResolvedMethod{MethodName: methodName, ImplementingType: receiver.Type(), Ambiguous: true}
	}

	return &MethodCall{
		Base:       Base{ID: l.fresh(), Ty: resultTy, Span: span},
		Receiver:   receiver,
		MethodName: methodName,
		Args:       args,
		Resolved:   res,
	}, true
}

// widenToCommon applies NumericWidening to whichever of left/right has
// the narrower matching-signedness integer or float type, so a Binary's
// two operands share one width.
func (l *ThirLower) widenToCommon(left, right Expr) (Expr, Expr) {
	lt, rt := left.Type(), right.Type()
	if lt.Equal(rt) || lt.Kind != types.KindPrimitive || rt.Kind != types.KindPrimitive {
		return left, right
	}

	if lt.Prim.IsInteger() && rt.Prim.IsInteger() && lt.Prim.IsSigned() == rt.Prim.IsSigned() {
		if rt.Prim.Width() > lt.Prim.Width() {
			return l.coerce(rt, left), right
		}

		if lt.Prim.Width() > rt.Prim.Width() {
			return left, l.coerce(lt, right)
		}
	}

	if lt.Prim.IsFloat() && rt.Prim.IsFloat() && lt.Prim != rt.Prim {
		if rt.Prim == types.PrimF64 {
			return l.coerce(rt, left), right
		}

		return left, l.coerce(lt, right)
	}

	return left, right
}

// lowerCall lowers a free-function call, coercing each argument to the
// callee's declared parameter type when the callee's signature is
// visible in this module.
func (l *ThirLower) lowerCall(n *hir.Call) *Call {
	out := &Call{Base: base(n), Callee: n.Callee}

	callee := l.src.FindFunction(n.Callee)

	for i, a := range n.Args {
		lowered := l.lowerExpr(a)
		if callee != nil && i < len(callee.Params) {
			lowered = l.coerce(callee.Params[i].Ty, lowered)
		}

		out.Args = append(out.Args, lowered)
	}

	return out
}

// lowerMethodCall resolves dispatch through the TraitSolver: ambiguous or unresolved calls get a diagnostic
// and a placeholder resolution rather than aborting lowering.
func (l *ThirLower) lowerMethodCall(n *hir.MethodCall) *MethodCall {
	receiver := l.lowerExpr(n.Receiver)
	args := l.lowerExprs(n.Args)

	argTypes := make([]types.Type, len(args))
	for i, a := range args {
		argTypes[i] = a.Type()
	}

	res, ok, diag := l.solver.ResolveMethod(receiver.Type(), n.MethodName, argTypes)
	if !ok {
		l.diags = append(l.diags, *diagnostic.Common.AmbiguousDispatch(n.Span, n.MethodName, diag.Candidates))
		res = ResolvedMethod{MethodName: n.MethodName, ImplementingType: receiver.Type(), Ambiguous: true}
	}

	return &MethodCall{
		Base:       base(n),
		Receiver:   receiver,
		MethodName: n.MethodName,
		TypeArgs:   n.TypeArgs,
		Args:       args,
		Resolved:   res,
	}
}
