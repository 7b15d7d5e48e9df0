package hir

import (
	"testing"

	"vellum/internal/types"
)

func i32() types.Type { return types.NewPrimitive(types.PrimI32) }

func litInt(env *fakeTypeEnv, v int64) *AstExpr {
	return env.set(&AstExpr{Kind: AstLiteral, LitInt: v}, i32())
}

func ident(env *fakeTypeEnv, name string, ty types.Type) *AstExpr {
	return env.set(&AstExpr{Kind: AstIdent, Name: name}, ty)
}

func TestVarStatementDesugarsToMutableLet(t *testing.T) {
	env := newFakeTypeEnv()
	b := NewHirBuilder(env)
	b.mod = &Module{}

	b.capture.PushScope()
	defer b.capture.PopScope()

	stmt := AstStmt{
		Kind:    AstStmtVar,
		Pattern: Pattern{Kind: PatternBinding, BindingName: "x"},
		Init:    litInt(env, 1),
	}

	lowered, err := b.lowerStmt(stmt)
	if err != nil {
		t.Fatalf("lowerStmt: %v", err)
	}

	if lowered.Kind != StmtLet {
		t.Fatalf("expected StmtLet, got %v", lowered.Kind)
	}

	if !lowered.Mutable {
		t.Error("`var` must desugar to a mutable let binding")
	}
}

func TestLetStatementIsNotMutable(t *testing.T) {
	env := newFakeTypeEnv()
	b := NewHirBuilder(env)
	b.mod = &Module{}
	b.capture.PushScope()
	defer b.capture.PopScope()

	stmt := AstStmt{
		Kind:    AstStmtLet,
		Pattern: Pattern{Kind: PatternBinding, BindingName: "x"},
		Init:    litInt(env, 1),
	}

	lowered, err := b.lowerStmt(stmt)
	if err != nil {
		t.Fatalf("lowerStmt: %v", err)
	}

	if lowered.Mutable {
		t.Error("plain `let` must not be mutable")
	}
}

func TestTernaryDesugarsToIf(t *testing.T) {
	env := newFakeTypeEnv()
	b := NewHirBuilder(env)
	b.mod = &Module{}
	b.capture.PushScope()
	defer b.capture.PopScope()

	cond := env.set(&AstExpr{Kind: AstLiteral, LitBool: true}, types.NewPrimitive(types.PrimBool))
	then := litInt(env, 1)
	els := litInt(env, 2)

	ternary := env.set(&AstExpr{Kind: AstTernary, Cond: cond, Then: then, Else: els}, i32())

	lowered, err := b.lowerExpr(ternary)
	if err != nil {
		t.Fatalf("lowerExpr: %v", err)
	}

	ifExpr, ok := lowered.(*If)
	if !ok {
		t.Fatalf("expected *If, got %T", lowered)
	}

	if ifExpr.Else == nil {
		t.Error("ternary must always produce an If with a non-nil Else branch")
	}
}

func TestIfLetDesugarsToTwoArmWhen(t *testing.T) {
	env := newFakeTypeEnv()
	env.variantIndex["Option.Some"] = 0

	b := NewHirBuilder(env)
	b.mod = &Module{}
	b.capture.PushScope()
	defer b.capture.PopScope()

	scrutinee := env.set(&AstExpr{Kind: AstIdent, Name: "opt"}, types.Named("Option"))

	ifLet := env.set(&AstExpr{
		Kind:       AstIfLet,
		LetPattern: Pattern{Kind: PatternEnum, EnumName: "Option", VariantName: "Some"},
		LetInit:    scrutinee,
		Then:       litInt(env, 1),
	}, types.Unit())

	lowered, err := b.lowerExpr(ifLet)
	if err != nil {
		t.Fatalf("lowerExpr: %v", err)
	}

	when, ok := lowered.(*When)
	if !ok {
		t.Fatalf("expected *When, got %T", lowered)
	}

	if len(when.Arms) != 2 {
		t.Fatalf("expected 2 arms, got %d", len(when.Arms))
	}

	if when.Arms[1].Pattern.Kind != PatternWildcard {
		t.Errorf("expected second arm to be a wildcard default, got %v", when.Arms[1].Pattern.Kind)
	}
}

func TestForLoopDesugarsToLoopOverIteratorProtocol(t *testing.T) {
	env := newFakeTypeEnv()
	b := NewHirBuilder(env)
	b.mod = &Module{}
	b.capture.PushScope()
	defer b.capture.PopScope()

	iter := env.set(&AstExpr{Kind: AstIdent, Name: "it"}, types.Named("Iter"))
	body := env.set(&AstExpr{Kind: AstLiteral, LitIsUnit: true}, types.Unit())

	forExpr := env.set(&AstExpr{
		Kind:       AstFor,
		ForPattern: Pattern{Kind: PatternBinding, BindingName: "p"},
		ForIter:    iter,
		Body:       body,
	}, types.Unit())

	lowered, err := b.lowerExpr(forExpr)
	if err != nil {
		t.Fatalf("lowerExpr: %v", err)
	}

	loop, ok := lowered.(*Loop)
	if !ok {
		t.Fatalf("expected *Loop, got %T", lowered)
	}

	when, ok := loop.Body.(*When)
	if !ok {
		t.Fatalf("expected loop body to be *When, got %T", loop.Body)
	}

	if len(when.Arms) != 2 {
		t.Fatalf("expected Some/None arms, got %d", len(when.Arms))
	}

	if _, ok := when.Arms[1].Body.(*Break); !ok {
		t.Errorf("expected None arm to break, got %T", when.Arms[1].Body)
	}

	call, ok := when.Scrutinee.(*MethodCall)
	if !ok || call.MethodName != "next" {
		t.Errorf("expected scrutinee to call the iterator-protocol next() method, got %#v", when.Scrutinee)
	}
}

func TestRangeConstructsRangeStruct(t *testing.T) {
	env := newFakeTypeEnv()
	b := NewHirBuilder(env)
	b.mod = &Module{}
	b.capture.PushScope()
	defer b.capture.PopScope()

	low := litInt(env, 0)
	high := litInt(env, 10)

	rangeExpr := env.set(&AstExpr{Kind: AstRange, RangeLow: low, RangeHigh: high, RangeInclusive: false}, types.Named("Range"))

	lowered, err := b.lowerExpr(rangeExpr)
	if err != nil {
		t.Fatalf("lowerExpr: %v", err)
	}

	si, ok := lowered.(*StructInit)
	if !ok {
		t.Fatalf("expected *StructInit, got %T", lowered)
	}

	if si.StructName != "Range" {
		t.Errorf("StructName = %q, want Range", si.StructName)
	}

	rangeExprIncl := env.set(&AstExpr{Kind: AstRange, RangeLow: low, RangeHigh: high, RangeInclusive: true}, types.Named("RangeInclusive"))

	loweredIncl, err := b.lowerExpr(rangeExprIncl)
	if err != nil {
		t.Fatalf("lowerExpr: %v", err)
	}

	if loweredIncl.(*StructInit).StructName != "RangeInclusive" {
		t.Errorf("inclusive range must construct RangeInclusive")
	}
}

func TestClosureCaptureByRefWhenOnlyRead(t *testing.T) {
	env := newFakeTypeEnv()
	b := NewHirBuilder(env)
	b.mod = &Module{}
	b.capture.PushScope()

	b.capture.Declare("outer", i32())

	body := ident(env, "outer", i32())

	closure := env.set(&AstExpr{Kind: AstClosure, ClosureBody: body}, types.Function(nil, i32(), true))

	lowered, err := b.lowerExpr(closure)
	if err != nil {
		t.Fatalf("lowerExpr: %v", err)
	}

	cl := lowered.(*Closure)
	if len(cl.Captures) != 1 {
		t.Fatalf("expected 1 capture, got %d", len(cl.Captures))
	}

	if cl.Captures[0].Mode != CaptureByRef {
		t.Errorf("read-only capture should be CaptureByRef, got %v", cl.Captures[0].Mode)
	}
}

func TestClosureCaptureByValueWhenEscapes(t *testing.T) {
	env := newFakeTypeEnv()
	b := NewHirBuilder(env)
	b.mod = &Module{}
	b.capture.PushScope()

	b.capture.Declare("outer", i32())

	body := ident(env, "outer", i32())

	closure := env.set(&AstExpr{Kind: AstClosure, ClosureBody: body, ClosureEscapes: true}, types.Function(nil, i32(), true))

	lowered, err := b.lowerExpr(closure)
	if err != nil {
		t.Fatalf("lowerExpr: %v", err)
	}

	cl := lowered.(*Closure)
	if cl.Captures[0].Mode != CaptureByValue {
		t.Errorf("escaping capture should be CaptureByValue, got %v", cl.Captures[0].Mode)
	}
}

func TestClosureCaptureByMutRefOnWrite(t *testing.T) {
	env := newFakeTypeEnv()
	b := NewHirBuilder(env)
	b.mod = &Module{}
	b.capture.PushScope()

	b.capture.Declare("outer", i32())

	place := ident(env, "outer", i32())
	value := litInt(env, 5)
	assign := env.set(&AstExpr{Kind: AstAssign, Place: place, Value: value}, types.Unit())

	closure := env.set(&AstExpr{Kind: AstClosure, ClosureBody: assign}, types.Function(nil, types.Unit(), true))

	lowered, err := b.lowerExpr(closure)
	if err != nil {
		t.Fatalf("lowerExpr: %v", err)
	}

	cl := lowered.(*Closure)
	if len(cl.Captures) != 1 || cl.Captures[0].Mode != CaptureByMutRef {
		t.Errorf("written capture should be CaptureByMutRef, got %#v", cl.Captures)
	}
}

func TestFieldAccessResolvesIndex(t *testing.T) {
	env := newFakeTypeEnv()
	env.fieldIndex["Point.y"] = 1

	b := NewHirBuilder(env)
	b.mod = &Module{}
	b.capture.PushScope()
	defer b.capture.PopScope()

	obj := ident(env, "p", types.Named("Point"))
	field := env.set(&AstExpr{Kind: AstField, Object: obj, FieldName: "y"}, i32())

	lowered, err := b.lowerExpr(field)
	if err != nil {
		t.Fatalf("lowerExpr: %v", err)
	}

	f := lowered.(*Field)
	if f.FieldIndex != 1 {
		t.Errorf("FieldIndex = %d, want 1", f.FieldIndex)
	}
}

func TestFieldAccessUnresolvedNameFails(t *testing.T) {
	env := newFakeTypeEnv()
	b := NewHirBuilder(env)
	b.mod = &Module{}
	b.capture.PushScope()
	defer b.capture.PopScope()

	obj := ident(env, "p", types.Named("Point"))
	field := env.set(&AstExpr{Kind: AstField, Object: obj, FieldName: "missing"}, i32())

	if _, err := b.lowerExpr(field); err == nil {
		t.Fatal("expected an error for an unresolved field name")
	}
}

func TestMissingResolvedTypeIsFatal(t *testing.T) {
	env := newFakeTypeEnv()
	b := NewHirBuilder(env)
	b.mod = &Module{}

	// an unregistered node would make ResolvedType fall back to Unit(), so
	// register it with an invalid type to exercise the failure path.
	bad := &AstExpr{Kind: AstLiteral}
	env.types[bad] = types.Type{} // KindInvalid

	if _, err := b.lowerExpr(bad); err == nil {
		t.Fatal("expected an error when the type environment returns an invalid type")
	}
}

func TestGenericCallMonomorphizesOnce(t *testing.T) {
	env := newFakeTypeEnv()
	b := NewHirBuilder(env)
	b.mod = &Module{}
	b.capture.PushScope()
	defer b.capture.PopScope()

	call1 := env.set(&AstExpr{Kind: AstCall, Callee: "identity", TypeArgs: []string{"I32"}}, i32())
	call2 := env.set(&AstExpr{Kind: AstCall, Callee: "identity", TypeArgs: []string{"I32"}}, i32())

	l1, err := b.lowerExpr(call1)
	if err != nil {
		t.Fatalf("lowerExpr: %v", err)
	}

	l2, err := b.lowerExpr(call2)
	if err != nil {
		t.Fatalf("lowerExpr: %v", err)
	}

	c1, c2 := l1.(*Call), l2.(*Call)
	if c1.Callee != c2.Callee {
		t.Errorf("two uses of the same generic instantiation must mangle identically: %q vs %q", c1.Callee, c2.Callee)
	}

	if c1.Callee != "identity__I32" {
		t.Errorf("Callee = %q, want identity__I32", c1.Callee)
	}

	if b.mono.Pending() != 1 {
		t.Errorf("expected exactly one queued monomorphization request, got %d", b.mono.Pending())
	}
}
