package mir

import (
	"fmt"

	"vellum/internal/errors"
	"vellum/internal/ids"
)

// VerifyError reports one violated structural invariant, with enough
// context (function/block) that a pass author can find the bug that
// introduced it. The underlying report is an errors.BrokenInvariant, so
// callers that classify by category see CategoryInternal.
type VerifyError struct {
	Function string
	Block    ids.BlockID
	Err      *errors.StandardError
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("%s/%s: %s", e.Function, e.Block, e.Err.Message)
}

func (e *VerifyError) Unwrap() error { return e.Err }

// broken wraps a BrokenInvariant report with function/block context.
func broken(f *Function, bb *BasicBlock, invariant, detail string) *VerifyError {
	return &VerifyError{Function: f.Name, Block: bb.ID, Err: errors.BrokenInvariant(invariant, detail)}
}

// Verify checks the structural invariants of a MIR function: every
// block ends in exactly one terminator, phis are
// contiguous at block entry and agree with the block's actual
// predecessor set, declared Preds/Succs match the edges terminators
// imply, and every operand referencing a value id was defined before its
// use reaches it (checked per-dominance, since SSA only requires
// dominance, not textual order, across blocks).
// Verify is meant to run after every pass in debug builds.
func Verify(f *Function) []error {
	var errs []error

	dom := ComputeDominance(f)
	defined := map[ids.ValueID]ids.BlockID{}

	for _, p := range f.Params {
		defined[p.ID] = f.Entry().ID
	}

	for _, bb := range f.Blocks {
		if bb.Term == nil {
			errs = append(errs, broken(f, bb, "terminator-uniqueness", "block has no terminator"))
		}

		seenNonPhi := false

		for _, in := range bb.Instrs {
			_, isPhi := in.Variant.(Phi)
			if isPhi && seenNonPhi {
				errs = append(errs, broken(f, bb, "phi-placement", "phi follows a non-phi instruction"))
			}

			if !isPhi {
				seenNonPhi = true
			}

			if in.Result.IsValid() {
				if prior, ok := defined[in.Result]; ok {
					errs = append(errs, broken(f, bb, "ssa-single-definition",
						fmt.Sprintf("value %s redefined (first defined in %s)", in.Result, prior)))
				}

				defined[in.Result] = bb.ID
			}

			if p, ok := in.Variant.(Phi); ok {
				errs = append(errs, verifyPhi(f, bb, p)...)
			}
		}

		errs = append(errs, verifyEdges(f, bb)...)
	}

	for _, bb := range f.Blocks {
		for _, in := range bb.Instrs {
			for _, used := range operandsOf(in.Variant) {
				if !used.IsValid() {
					continue
				}

				defBlock, ok := defined[used]
				if !ok {
					errs = append(errs, broken(f, bb, "ssa-dominance", fmt.Sprintf("use of undefined value %s", used)))
					continue
				}

				if _, isPhi := in.Variant.(Phi); isPhi {
					continue // phi operands arrive along edges; verifyPhi checks the incoming blocks
				}

				if defBlock != bb.ID && !dom.Dominates(defBlock, bb.ID) {
					errs = append(errs, broken(f, bb, "ssa-dominance",
						fmt.Sprintf("value %s used in %s but its definition in %s does not dominate", used, bb.ID, defBlock)))
				}
			}
		}

		if bb.Term == nil {
			continue
		}

		for _, used := range TerminatorOperands(bb.Term) {
			if !used.IsValid() {
				continue
			}

			defBlock, ok := defined[used]
			if !ok {
				errs = append(errs, broken(f, bb, "ssa-dominance", fmt.Sprintf("use of undefined value %s", used)))
				continue
			}

			if defBlock != bb.ID && !dom.Dominates(defBlock, bb.ID) {
				errs = append(errs, broken(f, bb, "ssa-dominance",
					fmt.Sprintf("value %s used in %s but its definition in %s does not dominate", used, bb.ID, defBlock)))
			}
		}
	}

	return errs
}

func verifyPhi(f *Function, bb *BasicBlock, p Phi) []error {
	var errs []error

	seen := map[ids.BlockID]bool{}
	for _, in := range p.Incoming {
		seen[in.Block] = true
	}

	for _, pred := range bb.Preds {
		if !seen[pred] {
			errs = append(errs, broken(f, bb, "phi-placement",
				fmt.Sprintf("phi missing incoming value for predecessor %s", pred)))
		}
	}

	for got := range seen {
		isPred := false

		for _, pred := range bb.Preds {
			if pred == got {
				isPred = true

				break
			}
		}

		if !isPred {
			errs = append(errs, broken(f, bb, "phi-placement",
				fmt.Sprintf("phi names %s as incoming but it is not a predecessor", got)))
		}
	}

	return errs
}

func verifyEdges(f *Function, bb *BasicBlock) []error {
	var errs []error

	if bb.Term == nil {
		return errs
	}

	want := bb.Term.Targets()
	if len(want) != len(bb.Succs) {
		errs = append(errs, broken(f, bb, "pred-succ-consistency",
			fmt.Sprintf("terminator names %d successors but Succs has %d", len(want), len(bb.Succs))))

		return errs
	}

	for i, w := range want {
		if bb.Succs[i] != w {
			errs = append(errs, broken(f, bb, "pred-succ-consistency", "Succs does not match terminator Targets()"))

			break
		}
	}

	return errs
}

// operandsOf returns every ValueID an instruction variant reads, used by
// Verify's checks as a generic "what does this instruction use" view
// instead of a type switch per instruction kind.
func operandsOf(v InstrVariant) []ids.ValueID {
	switch x := v.(type) {
	case Binary:
		return []ids.ValueID{x.Left, x.Right}
	case Unary:
		return []ids.ValueID{x.Operand}
	case Cast:
		return []ids.ValueID{x.Operand}
	case Load:
		return []ids.ValueID{x.Ptr}
	case Store:
		return []ids.ValueID{x.Ptr, x.Value}
	case GEP:
		out := []ids.ValueID{x.Base}
		for _, idx := range x.Indices {
			if !idx.IsConst {
				out = append(out, idx.Value)
			}
		}

		return out
	case ExtractValue:
		return []ids.ValueID{x.Aggregate}
	case InsertValue:
		return []ids.ValueID{x.Aggregate, x.Value}
	case Call:
		return append([]ids.ValueID(nil), x.Args...)
	case MethodCall:
		return append([]ids.ValueID{x.Receiver}, x.Args...)
	case Phi:
		out := make([]ids.ValueID, len(x.Incoming))
		for i, in := range x.Incoming {
			out[i] = in.Value
		}

		return out
	case Select:
		return []ids.ValueID{x.Cond, x.TrueVal, x.FalseVal}
	case StructInit:
		return append([]ids.ValueID(nil), x.Fields...)
	case EnumInit:
		return append([]ids.ValueID(nil), x.Payload...)
	case TupleInit:
		return append([]ids.ValueID(nil), x.Elements...)
	case ArrayInit:
		return append([]ids.ValueID(nil), x.Elements...)
	case Await:
		return []ids.ValueID{x.PollResult}
	case ClosureInit:
		return append([]ids.ValueID(nil), x.Captures...)
	default:
		return nil
	}
}

// TerminatorOperands returns every ValueID a terminator reads.
func TerminatorOperands(t Terminator) []ids.ValueID {
	switch x := t.(type) {
	case Return:
		if x.Value.IsValid() {
			return []ids.ValueID{x.Value}
		}

		return nil
	case CondBranch:
		return []ids.ValueID{x.Cond}
	case Switch:
		return []ids.ValueID{x.Value}
	default:
		return nil
	}
}
