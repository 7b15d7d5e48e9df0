package thir

import (
	"fmt"
	"strings"

	"vellum/internal/hir"
)

// Print renders mod in the same non-round-trippable TML-like text format
// internal/hir.Print uses for `--emit-hir`, extended with the
// two THIR-only node shapes: Coercion and a MethodCall that always carries
// a ResolvedMethod. `--emit-thir` prints this alongside the CoercionTrace
// (cmd/vellumc/main.go) rather than re-deriving coercion sites from the
// tree, since ThirLower already threads them through CoercionTrace.
func Print(mod *Module) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "; THIR Module: %s\n", mod.Name)

	for _, imp := range mod.Imports {
		fmt.Fprintf(&sb, "import %s\n", imp)
	}

	for _, s := range mod.Structs {
		printStruct(&sb, s)
	}

	for _, e := range mod.Enums {
		printEnum(&sb, e)
	}

	for _, bh := range mod.Behaviors {
		printBehavior(&sb, bh)
	}

	for _, c := range mod.Constants {
		fmt.Fprintf(&sb, "const %s: %s = %s\n", c.Name, c.Ty, printExpr(c.Value))
	}

	for _, fn := range mod.Functions {
		printFunction(&sb, fn)
	}

	for _, impl := range mod.Impls {
		fmt.Fprintf(&sb, "impl %s for %s {\n", impl.BehaviorName, impl.ForType)

		for _, m := range impl.Methods {
			printFunction(&sb, m)
		}

		sb.WriteString("}\n")
	}

	return sb.String()
}

func printStruct(sb *strings.Builder, s *StructDecl) {
	fmt.Fprintf(sb, "struct %s {\n", s.Name)

	for _, f := range s.Fields {
		fmt.Fprintf(sb, "  %s: %s,  ; #%d\n", f.Name, f.Ty, f.Index)
	}

	sb.WriteString("}\n")
}

func printEnum(sb *strings.Builder, e *EnumDecl) {
	fmt.Fprintf(sb, "enum %s {\n", e.Name)

	for _, v := range e.Variants {
		types := make([]string, len(v.Payload))
		for i, t := range v.Payload {
			types[i] = t.String()
		}

		fmt.Fprintf(sb, "  %s(%s),  ; #%d\n", v.Name, strings.Join(types, ", "), v.Index)
	}

	sb.WriteString("}\n")
}

func printBehavior(sb *strings.Builder, bh *BehaviorDecl) {
	fmt.Fprintf(sb, "behavior %s {\n", bh.Name)

	for _, m := range bh.Methods {
		params := make([]string, len(m.Params))
		for i, p := range m.Params {
			params[i] = fmt.Sprintf("%s: %s", p.Name, p.Ty)
		}

		fmt.Fprintf(sb, "  fn %s(%s) -> %s\n", m.Name, strings.Join(params, ", "), m.Return)
	}

	sb.WriteString("}\n")
}

func printFunction(sb *strings.Builder, fn *FunctionDecl) {
	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = fmt.Sprintf("%s: %s", p.Name, p.Ty)
	}

	fmt.Fprintf(sb, "fn %s(%s) -> %s %s\n", fn.Name, strings.Join(params, ", "), fn.Return, printExpr(fn.Body))
}

func printExpr(e Expr) string {
	if e == nil {
		return "()"
	}

	switch n := e.(type) {
	case *Literal:
		return printLiteral(n)
	case *Var:
		return n.Name
	case *Binary:
		return fmt.Sprintf("(%s %s %s)", printExpr(n.Left), binOpSymbol(n.Op), printExpr(n.Right))
	case *Unary:
		return fmt.Sprintf("(%s%s)", unaryOpSymbol(n.Op), printExpr(n.Operand))
	case *Call:
		return fmt.Sprintf("%s(%s)", n.Callee, printExprList(n.Args))
	case *MethodCall:
		dispatch := "virtual"
		if n.Resolved.IsStaticDispatch {
			dispatch = "static"
		}

		if n.Resolved.Ambiguous {
			dispatch = "ambiguous"
		}

		return fmt.Sprintf("%s./*%s:%s*/%s(%s)", printExpr(n.Receiver), dispatch, n.Resolved.ImplementingType, n.MethodName, printExprList(n.Args))
	case *Field:
		return fmt.Sprintf("%s.%s/*#%d*/", printExpr(n.Object), n.FieldName, n.FieldIndex)
	case *Index:
		return fmt.Sprintf("%s[%s]", printExpr(n.Object), printExpr(n.Index))
	case *TupleInit:
		return fmt.Sprintf("(%s)", printExprList(n.Elements))
	case *ArrayInit:
		return fmt.Sprintf("[%s]", printExprList(n.Elements))
	case *ArrayRepeat:
		return fmt.Sprintf("[%s; %d]", printExpr(n.Element), n.Count)
	case *StructInit:
		return fmt.Sprintf("%s{%s}", n.StructName, printExprList(n.Fields))
	case *EnumInit:
		return fmt.Sprintf("%s::#%d(%s)", n.EnumName, n.VariantIndex, printExprList(n.Payload))
	case *Block:
		var sb strings.Builder

		sb.WriteString("{\n")

		for _, s := range n.Stmts {
			sb.WriteString("  " + printStmt(s) + "\n")
		}

		if n.Tail != nil {
			sb.WriteString("  " + printExpr(n.Tail) + "\n")
		}

		sb.WriteString(" }")

		return sb.String()
	case *If:
		if n.Else != nil {
			return fmt.Sprintf("if %s %s else %s", printExpr(n.Cond), printExpr(n.Then), printExpr(n.Else))
		}

		return fmt.Sprintf("if %s %s", printExpr(n.Cond), printExpr(n.Then))
	case *When:
		var sb strings.Builder

		tag := ""
		if n.Synthesized {
			tag = "; non-exhaustive, synthesized default arm"
		}

		fmt.Fprintf(&sb, "when %s {%s\n", printExpr(n.Scrutinee), tag)

		for _, arm := range n.Arms {
			fmt.Fprintf(&sb, "  %s => %s,\n", printPattern(arm.Pattern), printExpr(arm.Body))
		}

		sb.WriteString(" }")

		return sb.String()
	case *Loop:
		return fmt.Sprintf("loop %s", printExpr(n.Body))
	case *While:
		return fmt.Sprintf("while %s %s", printExpr(n.Cond), printExpr(n.Body))
	case *Return:
		if n.Value == nil {
			return "return"
		}

		return "return " + printExpr(n.Value)
	case *Break:
		if n.Value == nil {
			return "break"
		}

		return "break " + printExpr(n.Value)
	case *Continue:
		return "continue"
	case *Closure:
		params := make([]string, len(n.Params))
		for i, p := range n.Params {
			params[i] = p.Name
		}

		caps := make([]string, len(n.Captures))
		for i, c := range n.Captures {
			caps[i] = fmt.Sprintf("%s:%s", c.Name, captureModeSymbol(c.Mode))
		}

		return fmt.Sprintf("|%s| /*captures: %s*/ %s", strings.Join(params, ", "), strings.Join(caps, ", "), printExpr(n.Body))
	case *Cast:
		return fmt.Sprintf("(%s as %s)", printExpr(n.Operand), n.Target)
	case *Coercion:
		return fmt.Sprintf("<%s>(%s)", n.CoercionKind, printExpr(n.Inner))
	case *Await:
		return printExpr(n.Inner) + ".await"
	case *Assign:
		return fmt.Sprintf("%s = %s", printExpr(n.Place), printExpr(n.Value))
	case *CompoundAssign:
		return fmt.Sprintf("%s %s= %s", printExpr(n.Place), binOpSymbol(n.Op), printExpr(n.Value))
	case *LowLevel:
		return fmt.Sprintf("__lowlevel__%s(%s)", n.Intrinsic, printExprList(n.Args))
	default:
		return "<?>"
	}
}

func printLiteral(n *Literal) string {
	switch {
	case n.IsUnit:
		return "()"
	case n.Str != "":
		return fmt.Sprintf("%q", n.Str)
	default:
		return fmt.Sprintf("%v", literalValue(n))
	}
}

func literalValue(n *Literal) interface{} {
	switch {
	case n.Ty.Prim.IsFloat():
		return n.Float
	case n.Ty.Prim.IsInteger() && n.Ty.Prim.IsSigned():
		return n.Int
	case n.Ty.Prim.IsInteger():
		return n.Uint
	default:
		return n.Bool
	}
}

func printExprList(list []Expr) string {
	parts := make([]string, len(list))
	for i, e := range list {
		parts[i] = printExpr(e)
	}

	return strings.Join(parts, ", ")
}

func printStmt(s Stmt) string {
	switch s.Kind {
	case StmtLet:
		mut := ""
		if s.Mutable {
			mut = "mut "
		}

		if s.Init != nil {
			return fmt.Sprintf("let %s%s: %s = %s;", mut, printPattern(s.Pattern), s.Ty, printExpr(s.Init))
		}

		return fmt.Sprintf("let %s%s: %s;", mut, printPattern(s.Pattern), s.Ty)
	case StmtExpr:
		return printExpr(s.Value) + ";"
	default:
		return "<?>;"
	}
}

func printPattern(p hir.Pattern) string {
	switch p.Kind {
	case hir.PatternWildcard:
		return "_"
	case hir.PatternBinding:
		if p.SubPattern != nil {
			return fmt.Sprintf("%s @ %s", p.BindingName, printPattern(*p.SubPattern))
		}

		return p.BindingName
	case hir.PatternLiteral:
		return fmt.Sprintf("%v", p.LitInt)
	case hir.PatternTuple:
		parts := make([]string, len(p.Elements))
		for i, e := range p.Elements {
			parts[i] = printPattern(e)
		}

		return "(" + strings.Join(parts, ", ") + ")"
	case hir.PatternArray:
		parts := make([]string, len(p.Elements))
		for i, e := range p.Elements {
			parts[i] = printPattern(e)
		}

		return "[" + strings.Join(parts, ", ") + "]"
	case hir.PatternStruct:
		parts := make([]string, len(p.StructFields))
		for i, f := range p.StructFields {
			name := ""
			if i < len(p.FieldNames) {
				name = p.FieldNames[i]
			}

			parts[i] = fmt.Sprintf("%s: %s", name, printPattern(f))
		}

		return fmt.Sprintf("%s{%s}", p.StructName, strings.Join(parts, ", "))
	case hir.PatternEnum:
		parts := make([]string, len(p.Payload))
		for i, pl := range p.Payload {
			parts[i] = printPattern(pl)
		}

		return fmt.Sprintf("%s::%s(%s)", p.EnumName, p.VariantName, strings.Join(parts, ", "))
	case hir.PatternOr:
		parts := make([]string, len(p.Alternatives))
		for i, a := range p.Alternatives {
			parts[i] = printPattern(a)
		}

		return strings.Join(parts, " | ")
	case hir.PatternRange:
		op := ".."
		if p.RangeInclusive {
			op = "..="
		}

		lo, hi := "", ""

		if p.RangeLow != nil {
			lo = printPattern(*p.RangeLow)
		}

		if p.RangeHigh != nil {
			hi = printPattern(*p.RangeHigh)
		}

		return lo + op + hi
	default:
		return "<?>"
	}
}

func binOpSymbol(op hir.BinOp) string {
	symbols := map[hir.BinOp]string{
		hir.OpAdd: "+", hir.OpSub: "-", hir.OpMul: "*", hir.OpDiv: "/", hir.OpMod: "%",
		hir.OpEq: "==", hir.OpNe: "!=", hir.OpLt: "<", hir.OpLe: "<=", hir.OpGt: ">", hir.OpGe: ">=",
		hir.OpAnd: "&&", hir.OpOr: "||", hir.OpBitAnd: "&", hir.OpBitOr: "|", hir.OpBitXor: "^",
		hir.OpShl: "<<", hir.OpShr: ">>",
	}
	if s, ok := symbols[op]; ok {
		return s
	}

	return "?"
}

func unaryOpSymbol(op hir.UnaryOp) string {
	switch op {
	case hir.UnNeg:
		return "-"
	case hir.UnNot:
		return "!"
	case hir.UnBitNot:
		return "~"
	default:
		return "?"
	}
}

func captureModeSymbol(m hir.CaptureMode) string {
	switch m {
	case hir.CaptureByValue:
		return "value"
	case hir.CaptureByRef:
		return "ref"
	case hir.CaptureByMutRef:
		return "mutref"
	default:
		return "?"
	}
}
