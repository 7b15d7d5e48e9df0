package thir

import (
	"fmt"

	"vellum/internal/hir"
	"vellum/internal/types"
)

// TypeRegistry is the lookup ExhaustivenessChecker needs to enumerate all
// constructors of a named (enum/struct) type. hir.Module already
// implements this via its existing FindEnum/FindStruct methods.
type TypeRegistry interface {
	FindEnum(name string) *hir.EnumDecl
	FindStruct(name string) *hir.StructDecl
}

// ExhaustivenessChecker implements Maranget's usefulness algorithm over
// the pattern matrix of a `when` expression. Constructors are
// grouped by type: literals by type, single-constructor
// tuples/structs (recurse into fields), one constructor per enum variant,
// wildcards/bindings covering everything, or-patterns flattened, range
// patterns checked for contiguous coverage, array patterns covered by
// length with a rest-pattern covering any length at or above its prefix.
type ExhaustivenessChecker struct {
	reg TypeRegistry
}

// NewExhaustivenessChecker returns a checker resolving enum/struct
// constructor sets through reg.
func NewExhaustivenessChecker(reg TypeRegistry) *ExhaustivenessChecker {
	return &ExhaustivenessChecker{reg: reg}
}

// Missing returns the constructors not covered by any of arms' top-level
// patterns against scrutineeTy. An empty, non-nil-or-nil result means the
// arm set is exhaustive.
func (c *ExhaustivenessChecker) Missing(scrutineeTy types.Type, arms []hir.Pattern) []string {
	return c.missing(scrutineeTy, flatten(arms))
}

// flatten expands or-patterns into their alternatives, recursively, so
// the usefulness check below only ever sees simple constructor rows.
func flatten(patterns []hir.Pattern) []hir.Pattern {
	var out []hir.Pattern

	for _, p := range patterns {
		if p.Kind == hir.PatternOr {
			out = append(out, flatten(p.Alternatives)...)
			continue
		}

		out = append(out, p)
	}

	return out
}

// unwrap follows binding patterns down to their effective sub-pattern,
// since `name @ pattern` contributes pattern's coverage, not a wildcard's
// (a bare binding with no sub-pattern is irreducibly a wildcard).
func unwrap(p hir.Pattern) hir.Pattern {
	for p.Kind == hir.PatternBinding && p.SubPattern != nil {
		p = *p.SubPattern
	}

	return p
}

func hasCatchAll(patterns []hir.Pattern) bool {
	for _, p := range patterns {
		u := unwrap(p)
		if u.Kind == hir.PatternWildcard || (u.Kind == hir.PatternBinding && u.SubPattern == nil) {
			return true
		}
	}

	return false
}

func (c *ExhaustivenessChecker) missing(ty types.Type, patterns []hir.Pattern) []string {
	if hasCatchAll(patterns) {
		return nil
	}

	switch ty.Kind {
	case types.KindPrimitive:
		return c.missingPrimitive(ty, patterns)
	case types.KindNamed:
		return c.missingNamed(ty, patterns)
	case types.KindTuple:
		return c.missingTuple(ty, patterns)
	case types.KindArray:
		return c.missingArray(ty, patterns)
	default:
		// Unit, never, function, pointer, reference, slice: exactly one
		// inhabited shape (or none, for `never`) — a single wildcard-free
		// binding row already covers it, and the builder never emits
		// `when` over these without one. Conservatively report nothing
		// missing rather than guessing a constructor name.
		return nil
	}
}

func (c *ExhaustivenessChecker) missingPrimitive(ty types.Type, patterns []hir.Pattern) []string {
	if ty.Prim == types.PrimBool {
		var sawTrue, sawFalse bool

		for _, p := range patterns {
			u := unwrap(p)
			if u.Kind == hir.PatternLiteral {
				if u.LitBool {
					sawTrue = true
				} else {
					sawFalse = true
				}
			}
		}

		var missing []string
		if !sawTrue {
			missing = append(missing, "true")
		}

		if !sawFalse {
			missing = append(missing, "false")
		}

		return missing
	}

	if ty.Prim.IsInteger() || ty.Prim == types.PrimChar {
		if covered, ok := integerDomainCovered(ty, patterns); ok && covered {
			return nil
		}
	}

	// Float/Str, or an integer/char domain not provably covered by the
	// literal/range set above: the domain is too large to enumerate
	// missing values individually, so report the residual as a single
	// catch-all requirement rather than fabricating a specific value.
	return []string{"_"}
}

// integerDomainCovered reports whether literal and range patterns
// together cover every value of ty's integer/char domain, by merging
// covered intervals and checking for a single gap-free span. ok is false
// if ty's width makes exhaustive interval math impractical (I64/I128/
// U64/U128) — callers then fall back to requiring a wildcard.
func integerDomainCovered(ty types.Type, patterns []hir.Pattern) (covered, ok bool) {
	width := ty.Prim.Width()
	if width == 0 || width > 32 {
		return false, false
	}

	lo, hi := domainBounds(ty.Prim)

	type interval struct{ lo, hi int64 }

	var ivs []interval

	for _, p := range patterns {
		u := unwrap(p)

		switch u.Kind {
		case hir.PatternLiteral:
			v := literalInt(u)
			ivs = append(ivs, interval{v, v})
		case hir.PatternRange:
			l := lo
			h := hi

			if u.RangeLow != nil {
				l = literalInt(*u.RangeLow)
			}

			if u.RangeHigh != nil {
				h = literalInt(*u.RangeHigh)
				if !u.RangeInclusive {
					h--
				}
			}

			ivs = append(ivs, interval{l, h})
		}
	}

	if len(ivs) == 0 {
		return false, true
	}

	for i := 0; i < len(ivs); i++ {
		for j := i + 1; j < len(ivs); j++ {
			if ivs[j].lo < ivs[i].lo {
				ivs[i], ivs[j] = ivs[j], ivs[i]
			}
		}
	}

	cur := lo

	for _, iv := range ivs {
		if iv.lo > cur {
			return false, true
		}

		if iv.hi+1 > cur {
			cur = iv.hi + 1
		}
	}

	return cur > hi, true
}

func domainBounds(p types.Primitive) (lo, hi int64) {
	w := p.Width()
	if p.IsSigned() {
		return -(1 << (w - 1)), (1 << (w - 1)) - 1
	}

	if w >= 63 {
		return 0, 1<<62 - 1
	}

	return 0, (1 << w) - 1
}

func literalInt(p hir.Pattern) int64 {
	if p.LitUint != 0 {
		return int64(p.LitUint)
	}

	if p.LitChar != 0 {
		return int64(p.LitChar)
	}

	return p.LitInt
}

func (c *ExhaustivenessChecker) missingNamed(ty types.Type, patterns []hir.Pattern) []string {
	if enum := c.reg.FindEnum(ty.Name); enum != nil {
		seen := make(map[int]bool)

		for _, p := range patterns {
			u := unwrap(p)
			if u.Kind == hir.PatternEnum && u.EnumName == ty.Name {
				seen[u.VariantIndex] = true
			}
		}

		var missing []string

		for _, v := range enum.Variants {
			if !seen[v.Index] {
				missing = append(missing, fmt.Sprintf("%s::%s", ty.Name, v.Name))
			}
		}

		return missing
	}

	if s := c.reg.FindStruct(ty.Name); s != nil {
		return c.missingStructFields(s, patterns)
	}

	// Opaque named type (class with no enum/struct def visible here,
	// e.g. an external collaborator's type): never panic, assume covered.
	return nil
}

func (c *ExhaustivenessChecker) missingStructFields(s *hir.StructDecl, patterns []hir.Pattern) []string {
	var rows [][]hir.Pattern
	for range s.Fields {
		rows = append(rows, nil)
	}

	for _, p := range patterns {
		u := unwrap(p)
		if u.Kind != hir.PatternStruct {
			continue
		}

		for i, name := range u.FieldNames {
			idx := s.FieldIndex(name)
			if idx >= 0 && idx < len(rows) && i < len(u.StructFields) {
				rows[idx] = append(rows[idx], u.StructFields[i])
			}
		}
	}

	var missing []string

	for i, f := range s.Fields {
		if len(rows[i]) == 0 {
			continue
		}

		for _, m := range c.missing(f.Ty, rows[i]) {
			missing = append(missing, fmt.Sprintf("%s.%s=%s", s.Name, f.Name, m))
		}
	}

	return missing
}

func (c *ExhaustivenessChecker) missingTuple(ty types.Type, patterns []hir.Pattern) []string {
	var rows [][]hir.Pattern
	for range ty.Elems {
		rows = append(rows, nil)
	}

	for _, p := range patterns {
		u := unwrap(p)
		if u.Kind != hir.PatternTuple {
			continue
		}

		for i := 0; i < len(u.Elements) && i < len(rows); i++ {
			rows[i] = append(rows[i], u.Elements[i])
		}
	}

	var missing []string

	for i, elemTy := range ty.Elems {
		for _, m := range c.missing(elemTy, rows[i]) {
			missing = append(missing, fmt.Sprintf("tuple.%d=%s", i, m))
		}
	}

	return missing
}

// missingArray covers an array pattern set by length: since arrays are
// fixed-size, every row already matches ty.Count unless it
// carries a rest — which, by definition, covers any length ≥
// prefix+suffix and therefore covers this fixed Count too. Absent a rest
// row, recurse element-wise like a tuple.
func (c *ExhaustivenessChecker) missingArray(ty types.Type, patterns []hir.Pattern) []string {
	for _, p := range patterns {
		u := unwrap(p)
		if u.Kind == hir.PatternArray && u.HasRest {
			return nil
		}
	}

	var rows [][]hir.Pattern
	for i := 0; i < ty.Count; i++ {
		rows = append(rows, nil)
	}

	for _, p := range patterns {
		u := unwrap(p)
		if u.Kind != hir.PatternArray {
			continue
		}

		for i := 0; i < len(u.Elements) && i < len(rows); i++ {
			rows[i] = append(rows[i], u.Elements[i])
		}
	}

	var missing []string

	for i := 0; i < ty.Count; i++ {
		for _, m := range c.missing(*ty.Elem, rows[i]) {
			missing = append(missing, fmt.Sprintf("[%d]=%s", i, m))
		}
	}

	return missing
}
