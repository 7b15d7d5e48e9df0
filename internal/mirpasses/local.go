package mirpasses

import (
	"math"

	"vellum/internal/ids"
	"vellum/internal/mir"
)

// ConstantFoldingPass evaluates binary/unary/select instructions whose
// operands are all constants, replacing them with a single Constant
// instruction. Integer overflow wraps for unsigned and is
// left to the backend for signed (never folded); division/modulo by zero
// is never folded.
type ConstantFoldingPass struct{}

func NewConstantFoldingPass() *ConstantFoldingPass { return &ConstantFoldingPass{} }

func (p *ConstantFoldingPass) Name() string { return "ConstantFolding" }

func (p *ConstantFoldingPass) RunBlock(fn *mir.Function, bb *mir.BasicBlock) (bool, Stats) {
	stats := Stats{PassName: p.Name()}
	changed := false

	consts := map[ids.ValueID]mir.Constant{}

	for i, in := range bb.Instrs {
		stats.InstructionsVisited++

		if c, ok := in.Variant.(mir.Constant); ok {
			consts[in.Result] = c
			continue
		}

		if folded, ok := tryFold(in, consts); ok {
			bb.Instrs[i].Variant = folded
			if in.Result.IsValid() {
				consts[in.Result] = folded
			}
			stats.InstructionsChanged++
			changed = true
		}
	}

	return changed, stats
}

func tryFold(in mir.Instruction, consts map[ids.ValueID]mir.Constant) (mir.Constant, bool) {
	switch v := in.Variant.(type) {
	case mir.Binary:
		l, lok := consts[v.Left]
		r, rok := consts[v.Right]
		if !lok || !rok {
			return mir.Constant{}, false
		}
		return foldBinary(v.Op, l, r)
	case mir.Unary:
		o, ok := consts[v.Operand]
		if !ok {
			return mir.Constant{}, false
		}
		return foldUnary(v.Op, o)
	case mir.Select:
		c, ok := consts[v.Cond]
		if !ok {
			return mir.Constant{}, false
		}
		chosen := v.FalseVal
		if c.Bool {
			chosen = v.TrueVal
		}
		if cv, ok := consts[chosen]; ok {
			return cv, true
		}
		return mir.Constant{}, false
	default:
		return mir.Constant{}, false
	}
}

func foldBinary(op mir.BinOp, l, r mir.Constant) (mir.Constant, bool) {
	switch {
	case !l.IsFloat && !r.IsFloat:
		return foldIntBinary(op, l, r)
	case l.IsFloat && r.IsFloat:
		return foldFloatBinary(op, l, r)
	default:
		return mir.Constant{}, false
	}
}

func foldIntBinary(op mir.BinOp, l, r mir.Constant) (mir.Constant, bool) {
	signed := l.Signed
	li, ri := l.I64, r.I64

	switch op {
	case mir.Add:
		if signed && addOverflowsSigned(l.Width, li, ri) {
			return mir.Constant{}, false
		}
		return mir.Constant{I64: li + ri, U64: l.U64 + r.U64, Signed: signed, Width: l.Width}, true
	case mir.Sub:
		if signed && subOverflowsSigned(l.Width, li, ri) {
			return mir.Constant{}, false
		}
		return mir.Constant{I64: li - ri, U64: l.U64 - r.U64, Signed: signed, Width: l.Width}, true
	case mir.Mul:
		if signed && mulOverflowsSigned(l.Width, li, ri) {
			return mir.Constant{}, false
		}
		return mir.Constant{I64: li * ri, U64: l.U64 * r.U64, Signed: signed, Width: l.Width}, true
	case mir.Div:
		// Never fold division by zero.
		if signed {
			if ri == 0 {
				return mir.Constant{}, false
			}
			return mir.Constant{I64: li / ri, Signed: true, Width: l.Width}, true
		}
		if r.U64 == 0 {
			return mir.Constant{}, false
		}
		return mir.Constant{U64: l.U64 / r.U64, Width: l.Width}, true
	case mir.Mod:
		if signed {
			if ri == 0 {
				return mir.Constant{}, false
			}
			return mir.Constant{I64: li % ri, Signed: true, Width: l.Width}, true
		}
		if r.U64 == 0 {
			return mir.Constant{}, false
		}
		return mir.Constant{U64: l.U64 % r.U64, Width: l.Width}, true
	case mir.Eq:
		return boolConst(li == ri), true
	case mir.Ne:
		return boolConst(li != ri), true
	case mir.Lt:
		if signed {
			return boolConst(li < ri), true
		}
		return boolConst(l.U64 < r.U64), true
	case mir.Le:
		if signed {
			return boolConst(li <= ri), true
		}
		return boolConst(l.U64 <= r.U64), true
	case mir.Gt:
		if signed {
			return boolConst(li > ri), true
		}
		return boolConst(l.U64 > r.U64), true
	case mir.Ge:
		if signed {
			return boolConst(li >= ri), true
		}
		return boolConst(l.U64 >= r.U64), true
	case mir.And:
		return boolConst(l.Bool && r.Bool), true
	case mir.Or:
		return boolConst(l.Bool || r.Bool), true
	case mir.BitAnd:
		return mir.Constant{I64: li & ri, U64: l.U64 & r.U64, Signed: signed, Width: l.Width}, true
	case mir.BitOr:
		return mir.Constant{I64: li | ri, U64: l.U64 | r.U64, Signed: signed, Width: l.Width}, true
	case mir.BitXor:
		return mir.Constant{I64: li ^ ri, U64: l.U64 ^ r.U64, Signed: signed, Width: l.Width}, true
	case mir.Shl:
		if signed && (ri < 0 || ri >= 64 || shlOverflowsSigned(l.Width, li, uint(ri))) {
			return mir.Constant{}, false
		}
		return mir.Constant{I64: li << uint(ri), U64: l.U64 << uint(r.U64), Signed: signed, Width: l.Width}, true
	case mir.Shr:
		if signed {
			return mir.Constant{I64: li >> uint(ri), Signed: true, Width: l.Width}, true
		}
		return mir.Constant{U64: l.U64 >> uint(r.U64), Width: l.Width}, true
	default:
		return mir.Constant{}, false
	}
}

// signedBounds returns the inclusive [lo, hi] range an N-bit two's
// complement signed integer can hold. width <= 0 or width >= 64 is
// treated as the full int64 range.
func signedBounds(width int) (lo, hi int64) {
	if width <= 0 || width >= 64 {
		return math.MinInt64, math.MaxInt64
	}
	hi = int64(1)<<uint(width-1) - 1
	lo = -hi - 1
	return lo, hi
}

// addOverflowsSigned reports whether l+r overflows width's signed range.
// Narrower-than-64 widths fit exactly in int64, so the sum is computed
// exactly and just needs a bounds check; width 64 needs the classic
// two's-complement overflow test since the int64 sum itself may wrap.
func addOverflowsSigned(width int, l, r int64) bool {
	sum := l + r
	if width > 0 && width < 64 {
		lo, hi := signedBounds(width)
		return sum < lo || sum > hi
	}
	return ((l ^ sum) & (r ^ sum)) < 0
}

func subOverflowsSigned(width int, l, r int64) bool {
	diff := l - r
	if width > 0 && width < 64 {
		lo, hi := signedBounds(width)
		return diff < lo || diff > hi
	}
	return ((l ^ r) & (l ^ diff)) < 0
}

func mulOverflowsSigned(width int, l, r int64) bool {
	product := l * r
	if width > 0 && width < 64 {
		lo, hi := signedBounds(width)
		return product < lo || product > hi
	}
	if l == 0 || r == 0 {
		return false
	}
	if l == -1 && r == math.MinInt64 {
		return true
	}
	return product/l != r
}

func negOverflowsSigned(width int, o int64) bool {
	if width > 0 && width < 64 {
		neg := -o
		lo, hi := signedBounds(width)
		return neg < lo || neg > hi
	}
	return o == math.MinInt64
}

// shlOverflowsSigned reports whether shifting l left by shift bits loses
// any bit that mattered to an N-bit signed value: either the result
// leaves width's range, or (for width 64) shifting back right no longer
// recovers l.
func shlOverflowsSigned(width int, l int64, shift uint) bool {
	if shift == 0 {
		return false
	}
	if shift >= 64 {
		return l != 0
	}
	result := l << shift
	if width > 0 && width < 64 {
		lo, hi := signedBounds(width)
		return result < lo || result > hi
	}
	return result>>shift != l
}

func foldFloatBinary(op mir.BinOp, l, r mir.Constant) (mir.Constant, bool) {
	switch op {
	case mir.Add:
		return mir.Constant{F64: l.F64 + r.F64, IsFloat: true, IsF64: l.IsF64}, true
	case mir.Sub:
		return mir.Constant{F64: l.F64 - r.F64, IsFloat: true, IsF64: l.IsF64}, true
	case mir.Mul:
		return mir.Constant{F64: l.F64 * r.F64, IsFloat: true, IsF64: l.IsF64}, true
	case mir.Div:
		if r.F64 == 0 {
			return mir.Constant{}, false
		}
		return mir.Constant{F64: l.F64 / r.F64, IsFloat: true, IsF64: l.IsF64}, true
	case mir.Eq:
		return boolConst(l.F64 == r.F64), true
	case mir.Ne:
		return boolConst(l.F64 != r.F64), true
	case mir.Lt:
		return boolConst(l.F64 < r.F64), true
	case mir.Le:
		return boolConst(l.F64 <= r.F64), true
	case mir.Gt:
		return boolConst(l.F64 > r.F64), true
	case mir.Ge:
		return boolConst(l.F64 >= r.F64), true
	default:
		return mir.Constant{}, false
	}
}

func foldUnary(op mir.UnaryOp, o mir.Constant) (mir.Constant, bool) {
	switch op {
	case mir.Neg:
		if o.IsFloat {
			return mir.Constant{F64: -o.F64, IsFloat: true, IsF64: o.IsF64}, true
		}
		if o.Signed && negOverflowsSigned(o.Width, o.I64) {
			return mir.Constant{}, false
		}
		return mir.Constant{I64: -o.I64, Signed: true, Width: o.Width}, true
	case mir.Not:
		return boolConst(!o.Bool), true
	case mir.BitNot:
		return mir.Constant{I64: ^o.I64, U64: ^o.U64, Signed: o.Signed, Width: o.Width}, true
	default:
		return mir.Constant{}, false
	}
}

func boolConst(b bool) mir.Constant { return mir.Constant{Bool: b} }

// InstSimplifyPass applies the standard algebraic identities:
// x+0, x-0, x*1, x/1, x&-1, x^x, x-x, x&x, x|x, shifts by 0,
// self-comparisons, double negation/not, and the three select
// simplifications (x*0, x&0, x|0 and x^0 are PeepholePass's). Runs after
// ConstantPropagation exposes more cases.
type InstSimplifyPass struct{}

func NewInstSimplifyPass() *InstSimplifyPass { return &InstSimplifyPass{} }

func (p *InstSimplifyPass) Name() string { return "InstSimplify" }

func (p *InstSimplifyPass) RunBlock(fn *mir.Function, bb *mir.BasicBlock) (bool, Stats) {
	stats := Stats{PassName: p.Name()}
	changed := false

	consts := map[ids.ValueID]mir.Constant{}
	unaryDefs := map[ids.ValueID]mir.Unary{}
	replace := map[ids.ValueID]ids.ValueID{}

	for i, in := range bb.Instrs {
		stats.InstructionsVisited++

		if c, ok := in.Variant.(mir.Constant); ok {
			consts[in.Result] = c
		}

		if u, ok := in.Variant.(mir.Unary); ok {
			// Double negation/not: neg(neg(x)) = x, not(not(x)) = x.
			if src, ok := unaryDefs[u.Operand]; ok && src.Op == u.Op && (u.Op == mir.Neg || u.Op == mir.Not) {
				replace[in.Result] = src.Operand
				stats.InstructionsChanged++
				changed = true
				continue
			}

			unaryDefs[in.Result] = u
		}

		if bin, ok := in.Variant.(mir.Binary); ok && bin.Left == bin.Right {
			// Self-comparisons and self-combinations: x==x,
			// x<x, x-x fold to a constant regardless of whether x itself
			// is a known literal; x&x, x|x alias x via the replace map.
			if folded, ok := selfIdentityConstant(bin.Op); ok {
				bb.Instrs[i].Variant = folded
				consts[in.Result] = folded
				stats.InstructionsChanged++
				changed = true
				continue
			}
		}

		if src, ok := simplify(in, consts); ok {
			replace[in.Result] = src
			stats.InstructionsChanged++
			changed = true
		}
	}

	if !changed {
		return false, stats
	}

	resolve := func(v ids.ValueID) ids.ValueID {
		for {
			if r, ok := replace[v]; ok && r != v {
				v = r
				continue
			}
			return v
		}
	}

	for i, in := range bb.Instrs {
		bb.Instrs[i].Variant = rewriteOperands(in.Variant, resolve)
	}

	if bb.Term != nil {
		bb.Term = rewriteTerminator(bb.Term, resolve)
	}

	return true, stats
}

// simplify returns the operand id that in's result is equivalent to, if
// an identity applies.
func simplify(in mir.Instruction, consts map[ids.ValueID]mir.Constant) (ids.ValueID, bool) {
	switch v := in.Variant.(type) {
	case mir.Binary:
		return simplifyBinary(v, consts)
	case mir.Select:
		return simplifySelect(v, consts)
	default:
		return 0, false
	}
}

func simplifyBinary(v mir.Binary, consts map[ids.ValueID]mir.Constant) (ids.ValueID, bool) {
	lc, lok := consts[v.Left]
	rc, rok := consts[v.Right]

	switch v.Op {
	case mir.Add:
		if rok && isZero(rc) {
			return v.Left, true
		}
		if lok && isZero(lc) {
			return v.Right, true
		}
	case mir.Sub:
		if rok && isZero(rc) {
			return v.Left, true
		}
	case mir.Mul:
		if rok && isOne(rc) {
			return v.Left, true
		}
		if lok && isOne(lc) {
			return v.Right, true
		}
	case mir.Div:
		if rok && isOne(rc) {
			return v.Left, true
		}
	case mir.BitAnd:
		if v.Left == v.Right {
			return v.Left, true
		}
		if rok && isAllOnes(rc) {
			return v.Left, true
		}
	case mir.BitOr:
		if v.Left == v.Right {
			return v.Left, true
		}
	case mir.Shl, mir.Shr:
		if rok && isZero(rc) {
			return v.Left, true
		}
	}

	return 0, false
}

func simplifySelect(v mir.Select, consts map[ids.ValueID]mir.Constant) (ids.ValueID, bool) {
	if c, ok := consts[v.Cond]; ok {
		if c.Bool {
			return v.TrueVal, true
		}
		return v.FalseVal, true
	}

	if v.TrueVal == v.FalseVal {
		return v.TrueVal, true
	}

	// select(c, true, false) = c. The mirror case,
	// select(c, false, true) = not(c), needs a new Not instruction rather
	// than a value alias and is left to InstCombine-equivalent folding in
	// a later pass.
	if tc, ok := consts[v.TrueVal]; ok {
		if fc, ok := consts[v.FalseVal]; ok && tc.Bool && !fc.Bool {
			return v.Cond, true
		}
	}

	return 0, false
}

func isZero(c mir.Constant) bool {
	if c.IsFloat {
		return c.F64 == 0
	}
	return c.I64 == 0 && c.U64 == 0
}

func isOne(c mir.Constant) bool {
	if c.IsFloat {
		return c.F64 == 1
	}
	return c.I64 == 1 || c.U64 == 1
}

func isAllOnes(c mir.Constant) bool {
	return c.I64 == -1
}

// selfIdentityConstant gives the constant value of op applied to two
// equal operands, for the ops where the result is a fixed constant
// rather than one of the operands.
func selfIdentityConstant(op mir.BinOp) (mir.Constant, bool) {
	switch op {
	case mir.Sub, mir.BitXor:
		return mir.Constant{I64: 0, U64: 0}, true
	case mir.Eq, mir.Le, mir.Ge:
		return boolConst(true), true
	case mir.Ne, mir.Lt, mir.Gt:
		return boolConst(false), true
	default:
		return mir.Constant{}, false
	}
}

// StrengthReductionPass replaces expensive operations with cheaper
// equivalents when one operand is a compile-time power of two: x*2^n ->
// x<<n, x/2^n -> x>>n (unsigned only), x%2^n -> x&(2^n-1) (unsigned only),
// and x*-1 -> 0-x. Multiplication by any other constant, such as 3, 5, 7
// or 9, is left unchanged.
type StrengthReductionPass struct{}

func NewStrengthReductionPass() *StrengthReductionPass { return &StrengthReductionPass{} }

func (p *StrengthReductionPass) Name() string { return "StrengthReduction" }

func (p *StrengthReductionPass) RunBlock(fn *mir.Function, bb *mir.BasicBlock) (bool, Stats) {
	stats := Stats{PassName: p.Name()}
	changed := false

	consts := map[ids.ValueID]mir.Constant{}

	for i, in := range bb.Instrs {
		stats.InstructionsVisited++

		if c, ok := in.Variant.(mir.Constant); ok {
			consts[in.Result] = c
			continue
		}

		bin, ok := in.Variant.(mir.Binary)
		if !ok {
			continue
		}

		rc, rok := consts[bin.Right]
		if !rok || rc.IsFloat {
			continue
		}

		switch bin.Op {
		case mir.Mul:
			if n, ok := log2(rc.U64); ok && n > 0 {
				bb.Instrs[i].Variant = mir.Binary{Op: mir.Shl, Left: bin.Left, Right: bin.Right}
				consts[bin.Right] = mir.Constant{U64: uint64(n), I64: int64(n), Signed: rc.Signed, Width: rc.Width}
				stats.InstructionsChanged++
				changed = true
			} else if rc.I64 == -1 {
				bb.Instrs[i].Variant = mir.Unary{Op: mir.Neg, Operand: bin.Left}
				stats.InstructionsChanged++
				changed = true
			}
		case mir.Div:
			if n, ok := log2(rc.U64); ok && n > 0 && !rc.Signed {
				bb.Instrs[i].Variant = mir.Binary{Op: mir.Shr, Left: bin.Left, Right: bin.Right}
				consts[bin.Right] = mir.Constant{U64: uint64(n), Width: rc.Width}
				stats.InstructionsChanged++
				changed = true
			}
		case mir.Mod:
			if n, ok := log2(rc.U64); ok && n > 0 && !rc.Signed {
				bb.Instrs[i].Variant = mir.Binary{Op: mir.BitAnd, Left: bin.Left, Right: bin.Right}
				consts[bin.Right] = mir.Constant{U64: rc.U64 - 1, Width: rc.Width}
				stats.InstructionsChanged++
				changed = true
			}
		}
	}

	return changed, stats
}

// log2 returns n such that v == 2^n, for v a power of two > 0.
func log2(v uint64) (int, bool) {
	if v == 0 || v&(v-1) != 0 {
		return 0, false
	}

	n := 0
	for v > 1 {
		v >>= 1
		n++
	}

	return n, true
}

// EarlyCSEPass hashes eligible instructions (Binary, Unary, Cast, GEP,
// ExtractValue) by operation + operand ids (commutative ops sort their
// operands first) within a single block, reusing the first-seen result
// for duplicates. Never CSEs loads/stores/calls.
type EarlyCSEPass struct{}

func NewEarlyCSEPass() *EarlyCSEPass { return &EarlyCSEPass{} }

func (p *EarlyCSEPass) Name() string { return "EarlyCSE" }

func (p *EarlyCSEPass) RunBlock(fn *mir.Function, bb *mir.BasicBlock) (bool, Stats) {
	stats := Stats{PassName: p.Name()}
	seen := map[string]ids.ValueID{}
	replace := map[ids.ValueID]ids.ValueID{}
	changed := false

	out := bb.Instrs[:0]

	for _, in := range bb.Instrs {
		stats.InstructionsVisited++

		in.Variant = rewriteOperands(in.Variant, func(v ids.ValueID) ids.ValueID {
			if r, ok := replace[v]; ok {
				return r
			}
			return v
		})

		if !in.Result.IsValid() || !cseEligible(in.Variant) {
			out = append(out, in)
			continue
		}

		key := cseKey(in.Ty, in.Variant)
		if leader, ok := seen[key]; ok {
			replace[in.Result] = leader
			stats.InstructionsRemoved++
			changed = true
			continue
		}

		seen[key] = in.Result
		out = append(out, in)
	}

	bb.Instrs = out

	return changed, stats
}

func cseEligible(v mir.InstrVariant) bool {
	switch v.(type) {
	case mir.Binary, mir.Unary, mir.Cast, mir.GEP, mir.ExtractValue:
		return true
	default:
		return false
	}
}

func cseKey(ty interface{ String() string }, v mir.InstrVariant) string {
	switch x := v.(type) {
	case mir.Binary:
		l, r := x.Left, x.Right
		if x.Op.IsCommutative() && r < l {
			l, r = r, l
		}
		return "bin:" + x.Op.String() + ":" + l.String() + ":" + r.String()
	default:
		return ty.String() + ":" + v.String()
	}
}

// PeepholePass catches the identities InstSimplify leaves out:
// x*0=0, x&0=0, x|0=x, x|-1=-1, x^0=x.
// InstSimplify already owns x+0, x-0, x*1, x/1, x&x, x|x, shifts by zero,
// double negation/not and the self-comparison identities, so this pass
// only fires on the remaining zero/all-ones patterns to avoid the two
// passes fighting over the same rewrite.
type PeepholePass struct{}

func NewPeepholePass() *PeepholePass { return &PeepholePass{} }

func (p *PeepholePass) Name() string { return "Peephole" }

func (p *PeepholePass) RunBlock(fn *mir.Function, bb *mir.BasicBlock) (bool, Stats) {
	stats := Stats{PassName: p.Name()}

	consts := map[ids.ValueID]mir.Constant{}
	replace := map[ids.ValueID]ids.ValueID{}
	changed := false

	for i, in := range bb.Instrs {
		stats.InstructionsVisited++

		if c, ok := in.Variant.(mir.Constant); ok {
			consts[in.Result] = c
			continue
		}

		bin, ok := in.Variant.(mir.Binary)
		if !ok {
			continue
		}

		lc, lok := consts[bin.Left]
		rc, rok := consts[bin.Right]

		switch bin.Op {
		case mir.Mul:
			if (rok && isZero(rc)) || (lok && isZero(lc)) {
				zero := mir.Constant{I64: 0, U64: 0}
				bb.Instrs[i].Variant = zero
				consts[in.Result] = zero
				stats.InstructionsChanged++
				changed = true
			}
		case mir.BitAnd:
			if (rok && isZero(rc)) || (lok && isZero(lc)) {
				zero := mir.Constant{I64: 0, U64: 0}
				bb.Instrs[i].Variant = zero
				consts[in.Result] = zero
				stats.InstructionsChanged++
				changed = true
			}
		case mir.BitOr:
			if rok && isAllOnes(rc) {
				bb.Instrs[i].Variant = rc
				consts[in.Result] = rc
				stats.InstructionsChanged++
				changed = true
			} else if lok && isAllOnes(lc) {
				bb.Instrs[i].Variant = lc
				consts[in.Result] = lc
				stats.InstructionsChanged++
				changed = true
			} else if rok && isZero(rc) {
				replace[in.Result] = bin.Left
				stats.InstructionsChanged++
				changed = true
			} else if lok && isZero(lc) {
				replace[in.Result] = bin.Right
				stats.InstructionsChanged++
				changed = true
			}
		case mir.BitXor:
			if rok && isZero(rc) {
				replace[in.Result] = bin.Left
				stats.InstructionsChanged++
				changed = true
			} else if lok && isZero(lc) {
				replace[in.Result] = bin.Right
				stats.InstructionsChanged++
				changed = true
			}
		}
	}

	if !changed {
		return false, stats
	}

	resolve := func(v ids.ValueID) ids.ValueID {
		for {
			if r, ok := replace[v]; ok && r != v {
				v = r
				continue
			}
			return v
		}
	}

	for i, in := range bb.Instrs {
		bb.Instrs[i].Variant = rewriteOperands(in.Variant, resolve)
	}

	if bb.Term != nil {
		bb.Term = rewriteTerminator(bb.Term, resolve)
	}

	return true, stats
}
