package hir

import (
	"fmt"

	"vellum/internal/errors"
	"vellum/internal/ids"
	"vellum/internal/types"
)

// HirBuilder lowers one typed-AST module into one HIR module.
// One instance is owned by exactly one compilation-unit worker; it is
// never shared across goroutines.
type HirBuilder struct {
	env     TypeEnv
	nodeIDs *ids.NodeIDGenerator
	mono    *MonomorphizationCache
	capture *captureTracker

	mod *Module

	// names of the functions currently being lowered, innermost last;
	// hoistedName prefixes a nested declaration with the innermost one.
	scopePrefix []string
}

// NewHirBuilder constructs a builder that resolves types and names
// through env.
func NewHirBuilder(env TypeEnv) *HirBuilder {
	return &HirBuilder{
		env:     env,
		nodeIDs: ids.NewNodeIDGenerator(),
		mono:    NewMonomorphizationCache(),
		capture: newCaptureTracker(),
	}
}

// Build lowers ast into a complete HIR module, then drains the
// monomorphization request queue.
func (b *HirBuilder) Build(ast *AstModule) (*Module, error) {
	b.mod = &Module{Name: ast.Name, Imports: append([]string(nil), ast.Imports...)}

	for _, s := range ast.Structs {
		b.mod.Structs = append(b.mod.Structs, b.lowerStructDecl(s))
	}

	for _, e := range ast.Enums {
		b.mod.Enums = append(b.mod.Enums, b.lowerEnumDecl(e))
	}

	for _, bh := range ast.Behaviors {
		b.mod.Behaviors = append(b.mod.Behaviors, &BehaviorDecl{
			ID: b.nodeIDs.Fresh(), Name: bh.Name, Methods: bh.Methods,
		})
	}

	for _, c := range ast.Constants {
		decl, err := b.lowerConstDecl(c)
		if err != nil {
			return nil, err
		}

		b.mod.Constants = append(b.mod.Constants, decl)
	}

	for _, fn := range ast.Functions {
		decl, err := b.lowerFunction(fn)
		if err != nil {
			return nil, err
		}

		b.mod.Functions = append(b.mod.Functions, decl)
	}

	for _, impl := range ast.Impls {
		decl, err := b.lowerImplDecl(impl)
		if err != nil {
			return nil, err
		}

		b.mod.Impls = append(b.mod.Impls, decl)
	}

	var drainErr error

	b.mono.DrainRequests(func(req MonoRequest) {
		if drainErr != nil {
			return
		}
		// A real implementation re-enters the template's AST (held by the
		// type environment) under a substitution context; this repo's
		// contract-only MonomorphizationCache records the request and
		// mangled name so a downstream MirBuilder can perform the actual
		// instantiation.
		_ = req
	})

	if drainErr != nil {
		return nil, drainErr
	}

	return b.mod, nil
}

func (b *HirBuilder) lowerStructDecl(s AstStructDecl) *StructDecl {
	decl := &StructDecl{ID: b.nodeIDs.Fresh(), Name: s.Name}

	for i, f := range s.Fields {
		decl.Fields = append(decl.Fields, FieldDecl{
			Name: f.Name, Ty: b.resolveHint(f.TypeHint), Index: i,
		})
	}

	return decl
}

func (b *HirBuilder) lowerEnumDecl(e AstEnumDecl) *EnumDecl {
	decl := &EnumDecl{ID: b.nodeIDs.Fresh(), Name: e.Name}

	for i, v := range e.Variants {
		payload := make([]types.Type, len(v.PayloadHints))
		for j, h := range v.PayloadHints {
			payload[j] = b.resolveHint(h)
		}

		decl.Variants = append(decl.Variants, VariantDecl{Name: v.Name, Index: i, Payload: payload})
	}

	return decl
}

func (b *HirBuilder) lowerImplDecl(impl AstImplDecl) (*ImplDecl, error) {
	decl := &ImplDecl{
		ID:           b.nodeIDs.Fresh(),
		ForType:      b.resolveHint(impl.ForTypeHint),
		BehaviorName: impl.BehaviorName,
	}

	for _, m := range impl.Methods {
		fn, err := b.lowerFunction(m)
		if err != nil {
			return nil, err
		}

		fn.IsMethod = true
		fn.ReceiverTy = decl.ForType
		decl.Methods = append(decl.Methods, fn)
	}

	return decl, nil
}

func (b *HirBuilder) lowerConstDecl(c AstConstDecl) (*ConstDecl, error) {
	val, err := b.lowerExpr(c.Value)
	if err != nil {
		return nil, err
	}

	return &ConstDecl{ID: b.nodeIDs.Fresh(), Name: c.Name, Ty: b.resolveHint(c.TypeHint), Value: val}, nil
}

func (b *HirBuilder) lowerFunction(fn *AstFunction) (*FunctionDecl, error) {
	b.capture.PushScope()
	defer b.capture.PopScope()

	b.scopePrefix = append(b.scopePrefix, fn.Name)
	defer func() { b.scopePrefix = b.scopePrefix[:len(b.scopePrefix)-1] }()

	for _, p := range fn.Params {
		b.capture.Declare(p.Name, p.Ty)
	}

	body, err := b.lowerBlockExpr(fn.Body)
	if err != nil {
		return nil, fmt.Errorf("lowering function %q: %w", fn.Name, err)
	}

	block, ok := body.(*Block)
	if !ok {
		// a function body is always a block at the typed-AST level; wrap a
		// bare expression defensively so FunctionDecl.Body's type holds.
		block = &Block{Base: Base{ID: b.nodeIDs.Fresh(), Ty: body.Type()}, Tail: body}
	}

	return &FunctionDecl{
		ID:     b.nodeIDs.Fresh(),
		Name:   fn.Name,
		Params: fn.Params,
		Return: b.resolveHint(fn.ReturnHint),
		Body:   block,
	}, nil
}

// resolveHint turns a textual type hint into types.Named(hint); the type
// environment is not consulted. An empty hint yields Unit, matching a
// bodyless declaration.
func (b *HirBuilder) resolveHint(hint string) types.Type {
	if hint == "" {
		return types.Unit()
	}

	return types.Named(hint)
}

func (b *HirBuilder) resolvedType(node *AstExpr) (types.Type, error) {
	ty := b.env.ResolvedType(node)
	if !ty.IsValid() {
		return types.Type{}, errors.MissingTypeInfo(node.AstKind())
	}

	return ty, nil
}

// lowerBlockExpr lowers an AstBlock, hoisting any nested declarations
// found among its statements into the owning module's top-level vectors
// under a scope-qualified mangled name.
func (b *HirBuilder) lowerBlockExpr(a *AstExpr) (Expr, error) {
	if a.Kind != AstBlock {
		return b.lowerExpr(a)
	}

	b.capture.PushScope()
	defer b.capture.PopScope()

	ty, err := b.resolvedType(a)
	if err != nil {
		return nil, err
	}

	block := &Block{Base: Base{ID: b.nodeIDs.Fresh(), Ty: ty, Span: a.Span}}

	for _, s := range a.Stmts {
		stmt, err := b.lowerStmt(s)
		if err != nil {
			return nil, err
		}

		if stmt != nil {
			block.Stmts = append(block.Stmts, *stmt)
		}
	}

	if a.Tail != nil {
		tail, err := b.lowerExpr(a.Tail)
		if err != nil {
			return nil, err
		}

		block.Tail = tail
	}

	return block, nil
}

// lowerStmt lowers one AstStmt, applying the `var` → `let mut` desugaring
// and hoisting nested declarations.
func (b *HirBuilder) lowerStmt(s AstStmt) (*Stmt, error) {
	switch s.Kind {
	case AstStmtLet, AstStmtVar:
		// `var x = e` desugars to `let mut x = e`; a plain
		// `let` never introduces mutability on its own.
		mutable := s.Kind == AstStmtVar

		var init Expr

		if s.Init != nil {
			lowered, err := b.lowerExpr(s.Init)
			if err != nil {
				return nil, err
			}

			init = lowered

			for _, name := range patternNames(s.Pattern) {
				b.capture.Declare(name, init.Type())
				b.capture.RecordAccess(name, init.Type(), true)
			}
		}

		ty := b.resolveHint(s.TypeHint)
		if init != nil && s.TypeHint == "" {
			ty = init.Type()
		}

		pat := b.lowerPattern(s.Pattern, ty)

		return &Stmt{Kind: StmtLet, ID: b.nodeIDs.Fresh(), Span: s.Span, Pattern: pat, Mutable: mutable, Ty: ty, Init: init}, nil

	case AstStmtExpr:
		val, err := b.lowerExpr(s.Value)
		if err != nil {
			return nil, err
		}

		return &Stmt{Kind: StmtExpr, ID: b.nodeIDs.Fresh(), Span: s.Span, Value: val}, nil

	case AstStmtNestedDecl:
		qualified := *s.NestedFunction
		qualified.Name = b.hoistedName(qualified.Name)

		decl, err := b.lowerFunction(&qualified)
		if err != nil {
			return nil, err
		}

		b.mod.Functions = append(b.mod.Functions, decl)

		return nil, nil

	default:
		return nil, fmt.Errorf("hir: unknown statement kind %d", s.Kind)
	}
}

// hoistedName scope-qualifies name with the current nesting prefix so a
// hoisted nested declaration cannot collide with a sibling of the same
// source-level name in another scope.
func (b *HirBuilder) hoistedName(name string) string {
	// the innermost enclosing name is itself already qualified
	if n := len(b.scopePrefix); n > 0 {
		return b.scopePrefix[n-1] + "$" + name
	}

	return name
}

func patternNames(p Pattern) []string {
	switch p.Kind {
	case PatternBinding:
		names := []string{p.BindingName}
		if p.SubPattern != nil {
			names = append(names, patternNames(*p.SubPattern)...)
		}

		return names
	case PatternTuple, PatternArray:
		var names []string
		for _, e := range p.Elements {
			names = append(names, patternNames(e)...)
		}

		return names
	case PatternStruct:
		var names []string
		for _, f := range p.StructFields {
			names = append(names, patternNames(f)...)
		}

		return names
	case PatternEnum:
		var names []string
		for _, pl := range p.Payload {
			names = append(names, patternNames(pl)...)
		}

		return names
	case PatternOr:
		if len(p.Alternatives) > 0 {
			return patternNames(p.Alternatives[0])
		}

		return nil
	default:
		return nil
	}
}

// lowerPattern resolves field/variant ordinals against ty via the type
// environment.
func (b *HirBuilder) lowerPattern(p Pattern, ty types.Type) Pattern {
	out := p

	switch p.Kind {
	case PatternStruct:
		out.StructFields = make([]Pattern, len(p.StructFields))
		for i, f := range p.StructFields {
			out.StructFields[i] = b.lowerPattern(f, types.Type{})
		}
		// FieldNames carries the matched field names in StructFields
		// order; struct patterns match by name, so no ordinal lookup is
		// needed here (field-init expressions, not patterns, are the ones
		// reordered into declaration order — see lowerExpr's AstStructLit
		// case).
	case PatternEnum:
		out.VariantIndex = b.env.VariantIndex(ty, p.VariantName)
		out.Payload = make([]Pattern, len(p.Payload))

		for i, pl := range p.Payload {
			out.Payload[i] = b.lowerPattern(pl, types.Type{})
		}
	case PatternTuple, PatternArray:
		out.Elements = make([]Pattern, len(p.Elements))
		for i, e := range p.Elements {
			out.Elements[i] = b.lowerPattern(e, types.Type{})
		}
	case PatternOr:
		out.Alternatives = make([]Pattern, len(p.Alternatives))
		for i, a := range p.Alternatives {
			out.Alternatives[i] = b.lowerPattern(a, ty)
		}
	case PatternBinding:
		if p.SubPattern != nil {
			sub := b.lowerPattern(*p.SubPattern, ty)
			out.SubPattern = &sub
		}
	}

	return out
}

// lowerExpr is the per-node dispatch table, applying every desugaring inline.
func (b *HirBuilder) lowerExpr(a *AstExpr) (Expr, error) {
	if a == nil {
		return nil, nil
	}

	ty, err := b.resolvedType(a)
	if err != nil {
		return nil, err
	}

	base := Base{ID: b.nodeIDs.Fresh(), Ty: ty, Span: a.Span}

	switch a.Kind {
	case AstLiteral:
		return &Literal{Base: base, Int: a.LitInt, Uint: a.LitUint, Float: a.LitFloat, Bool: a.LitBool, Char: a.LitChar, Str: a.LitStr, IsUnit: a.LitIsUnit}, nil

	case AstIdent:
		kind := BindingLocal
		if vty, ok := b.capture.resolvedIn(a.Name); ok {
			b.capture.RecordAccess(a.Name, vty, false)
		} else {
			kind = BindingFunc
		}

		return &Var{Base: base, Name: a.Name, Binding: kind}, nil

	case AstBinary:
		left, err := b.lowerExpr(a.Left)
		if err != nil {
			return nil, err
		}

		right, err := b.lowerExpr(a.Right)
		if err != nil {
			return nil, err
		}

		return &Binary{Base: base, Op: a.Op, Left: left, Right: right}, nil

	case AstUnary:
		operand, err := b.lowerExpr(a.Left)
		if err != nil {
			return nil, err
		}

		return &Unary{Base: base, Op: a.UOp, Operand: operand}, nil

	case AstCall:
		args, err := b.lowerExprList(a.Args)
		if err != nil {
			return nil, err
		}

		callee := a.Callee
		if len(a.TypeArgs) > 0 {
			callee = b.mono.InstantiateFunction(a.Callee, b.resolveHints(a.TypeArgs))
		}

		return &Call{Base: base, Callee: callee, Args: args}, nil

	case AstMethodCall:
		recv, err := b.lowerExpr(a.Receiver)
		if err != nil {
			return nil, err
		}

		args, err := b.lowerExprList(a.Args)
		if err != nil {
			return nil, err
		}

		return &MethodCall{Base: base, Receiver: recv, MethodName: a.MethodName, TypeArgs: b.resolveHints(a.TypeArgs), Args: args}, nil

	case AstField:
		obj, err := b.lowerExpr(a.Object)
		if err != nil {
			return nil, err
		}

		idx := b.env.FieldIndex(obj.Type(), a.FieldName)
		if idx < 0 {
			return nil, errors.UnresolvedName("field", a.FieldName, obj.Type().String())
		}

		return &Field{Base: base, Object: obj, FieldName: a.FieldName, FieldIndex: idx}, nil

	case AstIndex:
		obj, err := b.lowerExpr(a.Object)
		if err != nil {
			return nil, err
		}

		idxExpr, err := b.lowerExpr(a.IndexExpr)
		if err != nil {
			return nil, err
		}

		return &Index{Base: base, Object: obj, Index: idxExpr}, nil

	case AstTupleLit:
		elems, err := b.lowerExprList(a.Elements)
		if err != nil {
			return nil, err
		}

		return &TupleInit{Base: base, Elements: elems}, nil

	case AstArrayLit:
		elems, err := b.lowerExprList(a.Elements)
		if err != nil {
			return nil, err
		}

		return &ArrayInit{Base: base, Elements: elems}, nil

	case AstArrayRepeat:
		elem, err := b.lowerExpr(a.Repeat)
		if err != nil {
			return nil, err
		}

		return &ArrayRepeat{Base: base, Element: elem, Count: a.Count}, nil

	case AstStructLit:
		structTy := ty
		ordered := make([]Expr, len(a.FieldInit))
		for _, fi := range a.FieldInit {
			idx := b.env.FieldIndex(structTy, fi.Name)
			if idx < 0 || idx >= len(ordered) {
				return nil, errors.UnresolvedName("field", fi.Name, a.StructName)
			}

			val, err := b.lowerExpr(fi.Value)
			if err != nil {
				return nil, err
			}

			ordered[idx] = val
		}

		return &StructInit{Base: base, StructName: a.StructName, Fields: ordered}, nil

	case AstEnumCtor:
		idx := b.env.VariantIndex(ty, a.VariantName)
		if idx < 0 {
			return nil, errors.UnresolvedName("variant", a.VariantName, a.EnumName)
		}

		payload, err := b.lowerExprList(a.Payload)
		if err != nil {
			return nil, err
		}

		return &EnumInit{Base: base, EnumName: a.EnumName, VariantIndex: idx, Payload: payload}, nil

	case AstBlock:
		return b.lowerBlockExpr(a)

	case AstIf:
		return b.lowerIf(base, a)

	case AstTernary:
		// `a ? b : c` → `if a { b } else { c }`.
		return b.lowerIf(base, a)

	case AstIfLet:
		return b.lowerIfLet(base, a)

	case AstWhen:
		return b.lowerWhen(base, a)

	case AstLoop:
		body, err := b.lowerExpr(a.Body)
		if err != nil {
			return nil, err
		}

		return &Loop{Base: base, Body: body}, nil

	case AstWhile:
		cond, err := b.lowerExpr(a.Cond)
		if err != nil {
			return nil, err
		}

		body, err := b.lowerExpr(a.Then)
		if err != nil {
			return nil, err
		}

		return &While{Base: base, Cond: cond, Body: body}, nil

	case AstFor:
		return b.lowerFor(base, a)

	case AstReturn:
		val, err := b.lowerExpr(a.ReturnValue)
		if err != nil {
			return nil, err
		}

		return &Return{Base: base, Value: val}, nil

	case AstBreak:
		val, err := b.lowerExpr(a.BreakValue)
		if err != nil {
			return nil, err
		}

		return &Break{Base: base, Value: val}, nil

	case AstContinue:
		return &Continue{Base: base}, nil

	case AstClosure:
		return b.lowerClosure(base, a)

	case AstCast:
		operand, err := b.lowerExpr(a.Left)
		if err != nil {
			return nil, err
		}

		return &Cast{Base: base, Operand: operand, Target: b.resolveHint(a.CastTarget)}, nil

	case AstTry:
		inner, err := b.lowerExpr(a.Inner)
		if err != nil {
			return nil, err
		}

		return &Try{Base: base, Inner: inner}, nil

	case AstAwait:
		inner, err := b.lowerExpr(a.Inner)
		if err != nil {
			return nil, err
		}

		return &Await{Base: base, Inner: inner}, nil

	case AstAssign:
		place, err := b.lowerPlace(a.Place)
		if err != nil {
			return nil, err
		}

		val, err := b.lowerExpr(a.Value)
		if err != nil {
			return nil, err
		}

		return &Assign{Base: base, Place: place, Value: val}, nil

	case AstCompoundAssign:
		place, err := b.lowerPlace(a.Place)
		if err != nil {
			return nil, err
		}

		val, err := b.lowerExpr(a.Value)
		if err != nil {
			return nil, err
		}

		return &CompoundAssign{Base: base, Op: a.Op, Place: place, Value: val}, nil

	case AstRange:
		return b.lowerRange(base, a)

	case AstLowLevel:
		args, err := b.lowerExprList(a.Args)
		if err != nil {
			return nil, err
		}

		return &LowLevel{Base: base, Intrinsic: a.Intrinsic, Args: args}, nil

	default:
		return nil, fmt.Errorf("hir: unknown ast expr kind %d", a.Kind)
	}
}

func (b *HirBuilder) lowerPlace(a *AstExpr) (Expr, error) {
	target := a
	if a.Place != nil {
		target = a.Place
	}

	place, err := b.lowerExpr(target)
	if err != nil {
		return nil, err
	}

	// assigning a local is a write access for closure-capture purposes
	if v, ok := place.(*Var); ok && v.Binding == BindingLocal {
		if vty, ok := b.capture.resolvedIn(v.Name); ok {
			b.capture.RecordAccess(v.Name, vty, true)
		}
	}

	return place, nil
}

func (b *HirBuilder) lowerExprList(list []*AstExpr) ([]Expr, error) {
	out := make([]Expr, len(list))

	for i, e := range list {
		lowered, err := b.lowerExpr(e)
		if err != nil {
			return nil, err
		}

		out[i] = lowered
	}

	return out, nil
}

func (b *HirBuilder) resolveHints(hints []string) []types.Type {
	out := make([]types.Type, len(hints))
	for i, h := range hints {
		out[i] = b.resolveHint(h)
	}

	return out
}

// lowerIf lowers both a plain `if` and a desugared ternary:
// both arrive as AstIf/AstTernary with Cond/Then/Else already in the right
// shape, so the HIR form is identical.
func (b *HirBuilder) lowerIf(base Base, a *AstExpr) (Expr, error) {
	cond, err := b.lowerExpr(a.Cond)
	if err != nil {
		return nil, err
	}

	then, err := b.lowerExpr(a.Then)
	if err != nil {
		return nil, err
	}

	els, err := b.lowerExpr(a.Else)
	if err != nil {
		return nil, err
	}

	return &If{Base: base, Cond: cond, Then: then, Else: els}, nil
}

// lowerIfLet desugars `if let P = e { body } [else { other }]` to
// `when e { P => body, _ => unit|other }`.
func (b *HirBuilder) lowerIfLet(base Base, a *AstExpr) (Expr, error) {
	scrutinee, err := b.lowerExpr(a.LetInit)
	if err != nil {
		return nil, err
	}

	for _, name := range patternNames(a.LetPattern) {
		b.capture.Declare(name, scrutinee.Type())
	}

	matchArm, err := b.lowerExpr(a.Then)
	if err != nil {
		return nil, err
	}

	var elseArm Expr

	if a.Else != nil {
		elseArm, err = b.lowerExpr(a.Else)
		if err != nil {
			return nil, err
		}
	} else {
		elseArm = &Literal{Base: Base{ID: b.nodeIDs.Fresh(), Ty: types.Unit(), Span: a.Span}, IsUnit: true}
	}

	pat := b.lowerPattern(a.LetPattern, scrutinee.Type())

	return &When{
		Base:      base,
		Scrutinee: scrutinee,
		Arms: []WhenArm{
			{Pattern: pat, Body: matchArm},
			{Pattern: Pattern{Kind: PatternWildcard}, Body: elseArm},
		},
	}, nil
}

func (b *HirBuilder) lowerWhen(base Base, a *AstExpr) (Expr, error) {
	scrutinee, err := b.lowerExpr(a.Scrutinee)
	if err != nil {
		return nil, err
	}

	arms := make([]WhenArm, len(a.Arms))

	for i, arm := range a.Arms {
		for _, name := range patternNames(arm.Pattern) {
			b.capture.Declare(name, scrutinee.Type())
		}

		var guard Expr

		if arm.Guard != nil {
			guard, err = b.lowerExpr(arm.Guard)
			if err != nil {
				return nil, err
			}
		}

		body, err := b.lowerExpr(arm.Body)
		if err != nil {
			return nil, err
		}

		arms[i] = WhenArm{Pattern: b.lowerPattern(arm.Pattern, scrutinee.Type()), Guard: guard, Body: body}
	}

	return &When{Base: base, Scrutinee: scrutinee, Arms: arms}, nil
}

// lowerFor desugars `for p in e { body }` into an iterator-protocol loop
// : construct the iterator, then loop calling its next()
// method, matching Some(p) => body, None => break. Method/variant names
// come from the type environment so no source-language identifier leaks
// into the IR.
func (b *HirBuilder) lowerFor(base Base, a *AstExpr) (Expr, error) {
	iter, err := b.lowerExpr(a.ForIter)
	if err != nil {
		return nil, err
	}

	iterTy := iter.Type()
	nextMethod := b.env.IteratorProtocolMethod(iterTy)
	someName, noneName := b.env.IteratorItemOptionVariants(iterTy)

	for _, name := range patternNames(a.ForPattern) {
		b.capture.Declare(name, types.Type{})
	}

	body, err := b.lowerExpr(a.Body)
	if err != nil {
		return nil, err
	}

	optionTy := types.Named("Option", iterTy)

	nextCall := &MethodCall{
		Base:       Base{ID: b.nodeIDs.Fresh(), Ty: optionTy, Span: a.Span},
		Receiver:   iter,
		MethodName: nextMethod,
	}

	somePattern := Pattern{
		Kind:         PatternEnum,
		EnumName:     "Option",
		VariantName:  someName,
		VariantIndex: b.env.VariantIndex(optionTy, someName),
		Payload:      []Pattern{b.lowerPattern(a.ForPattern, types.Type{})},
	}

	nonePattern := Pattern{
		Kind:         PatternEnum,
		EnumName:     "Option",
		VariantName:  noneName,
		VariantIndex: b.env.VariantIndex(optionTy, noneName),
	}

	breakExpr := &Break{Base: Base{ID: b.nodeIDs.Fresh(), Ty: types.Unit(), Span: a.Span}}

	loopWhen := &When{
		Base:      Base{ID: b.nodeIDs.Fresh(), Ty: types.Unit(), Span: a.Span},
		Scrutinee: nextCall,
		Arms: []WhenArm{
			{Pattern: somePattern, Body: body},
			{Pattern: nonePattern, Body: breakExpr},
		},
	}

	return &Loop{Base: base, Body: loopWhen}, nil
}

// lowerRange constructs the range struct literal for `a..b` / `a..=b`.
func (b *HirBuilder) lowerRange(base Base, a *AstExpr) (Expr, error) {
	low, err := b.lowerExpr(a.RangeLow)
	if err != nil {
		return nil, err
	}

	high, err := b.lowerExpr(a.RangeHigh)
	if err != nil {
		return nil, err
	}

	name := "Range"
	if a.RangeInclusive {
		name = "RangeInclusive"
	}

	return &StructInit{Base: base, StructName: name, Fields: []Expr{low, high}}, nil
}

// lowerClosure applies the closure capture analysis: push a
// scope for the parameters, lower the body, then record every outer-scope
// name referenced inside as a capture with its inferred mode.
func (b *HirBuilder) lowerClosure(base Base, a *AstExpr) (Expr, error) {
	b.capture.EnterClosure()

	for _, p := range a.Params {
		b.capture.Declare(p.Name, p.Ty)
	}

	body, err := b.lowerExpr(a.ClosureBody)
	if err != nil {
		b.capture.PopScope()
		return nil, err
	}

	captures := b.capture.ExitClosure(a.ClosureEscapes, b.env.IsCopy)

	return &Closure{Base: base, Params: a.Params, Body: body, Captures: captures}, nil
}
