package mirpasses

import "vellum/internal/ids"
import "vellum/internal/mir"

// rewriteOperands returns a copy of v with every operand ValueID passed
// through replace. Every scalar/dataflow pass that redirects uses to a
// folded constant, a copy's source, or a GVN leader routes through this
// instead of a per-pass type switch, keeping every instruction variant
// handled in exactly one place.
func rewriteOperands(v mir.InstrVariant, replace func(ids.ValueID) ids.ValueID) mir.InstrVariant {
	switch x := v.(type) {
	case mir.Binary:
		x.Left, x.Right = replace(x.Left), replace(x.Right)
		return x
	case mir.Unary:
		x.Operand = replace(x.Operand)
		return x
	case mir.Cast:
		x.Operand = replace(x.Operand)
		return x
	case mir.Load:
		x.Ptr = replace(x.Ptr)
		return x
	case mir.Store:
		x.Ptr, x.Value = replace(x.Ptr), replace(x.Value)
		return x
	case mir.GEP:
		x.Base = replace(x.Base)
		idxs := make([]mir.GEPIndex, len(x.Indices))
		for i, idx := range x.Indices {
			if !idx.IsConst {
				idx.Value = replace(idx.Value)
			}
			idxs[i] = idx
		}
		x.Indices = idxs
		return x
	case mir.ExtractValue:
		x.Aggregate = replace(x.Aggregate)
		return x
	case mir.InsertValue:
		x.Aggregate, x.Value = replace(x.Aggregate), replace(x.Value)
		return x
	case mir.Call:
		args := make([]ids.ValueID, len(x.Args))
		for i, a := range x.Args {
			args[i] = replace(a)
		}
		x.Args = args
		return x
	case mir.MethodCall:
		x.Receiver = replace(x.Receiver)
		args := make([]ids.ValueID, len(x.Args))
		for i, a := range x.Args {
			args[i] = replace(a)
		}
		x.Args = args
		return x
	case mir.Phi:
		in := make([]mir.PhiIncoming, len(x.Incoming))
		for i, e := range x.Incoming {
			e.Value = replace(e.Value)
			in[i] = e
		}
		x.Incoming = in
		return x
	case mir.Select:
		x.Cond, x.TrueVal, x.FalseVal = replace(x.Cond), replace(x.TrueVal), replace(x.FalseVal)
		return x
	case mir.StructInit:
		fields := make([]ids.ValueID, len(x.Fields))
		for i, f := range x.Fields {
			fields[i] = replace(f)
		}
		x.Fields = fields
		return x
	case mir.EnumInit:
		payload := make([]ids.ValueID, len(x.Payload))
		for i, p := range x.Payload {
			payload[i] = replace(p)
		}
		x.Payload = payload
		return x
	case mir.TupleInit:
		elems := make([]ids.ValueID, len(x.Elements))
		for i, e := range x.Elements {
			elems[i] = replace(e)
		}
		x.Elements = elems
		return x
	case mir.ArrayInit:
		elems := make([]ids.ValueID, len(x.Elements))
		for i, e := range x.Elements {
			elems[i] = replace(e)
		}
		x.Elements = elems
		return x
	case mir.Await:
		x.PollResult = replace(x.PollResult)
		return x
	case mir.ClosureInit:
		caps := make([]ids.ValueID, len(x.Captures))
		for i, c := range x.Captures {
			caps[i] = replace(c)
		}
		x.Captures = caps
		return x
	default:
		return v
	}
}

// rewriteTerminator returns a copy of t with every operand ValueID passed
// through replace.
func rewriteTerminator(t mir.Terminator, replace func(ids.ValueID) ids.ValueID) mir.Terminator {
	switch x := t.(type) {
	case mir.Return:
		if x.Value.IsValid() {
			x.Value = replace(x.Value)
		}
		return x
	case mir.CondBranch:
		x.Cond = replace(x.Cond)
		return x
	case mir.Switch:
		x.Value = replace(x.Value)
		return x
	default:
		return t
	}
}

// replaceAllUses rewrites every use of old to repl across fn — instruction
// operands, terminator operands, and phi incoming values — used by
// ConstantHoist, SROA and DestinationPropagation to redirect uses of a
// replaced value to its substitute.
func replaceAllUses(fn *mir.Function, old, repl ids.ValueID) bool {
	changed := false

	replace := func(v ids.ValueID) ids.ValueID {
		if v == old {
			changed = true
			return repl
		}
		return v
	}

	for _, bb := range fn.Blocks {
		for i, in := range bb.Instrs {
			bb.Instrs[i].Variant = rewriteOperands(in.Variant, replace)
		}

		if bb.Term != nil {
			bb.Term = rewriteTerminator(bb.Term, replace)
		}
	}

	return changed
}

// isPure reports whether an instruction variant has no observable side
// effect beyond producing its result — the eligibility test shared by
// LICM, Sinking, LoopRotate and UnreachableCodeElimination.
func isPure(v mir.InstrVariant) bool {
	switch v.(type) {
	case mir.Constant, mir.Binary, mir.Unary, mir.Cast, mir.GEP,
		mir.ExtractValue, mir.InsertValue, mir.Select,
		mir.StructInit, mir.EnumInit, mir.TupleInit, mir.ArrayInit:
		return true
	default:
		// Load is conditionally pure (no aliasing store between def and
		// use) but that requires AliasAnalysis context a caller supplies
		// separately; treated as impure by this blanket test. Store,
		// Call, MethodCall, Phi, Await, ClosureInit, Alloca all have or
		// may have effects / are not hashable as values.
		return false
	}
}

// pureCallees lists callee names DCE may treat as side-effect free even
// though they are Call instructions.
var pureCallees = map[string]bool{
	"abs": true, "sqrt": true, "sin": true, "cos": true, "tan": true,
	"len": true, "contains": true, "starts_with": true, "ends_with": true,
	"to_i32": true, "to_i64": true, "to_f32": true, "to_f64": true, "to_str": true,
}

func isPureCall(callee string) bool { return pureCallees[callee] }
