package hir

import (
	"vellum/internal/types"
)

// PatternKind tags the variant of a Pattern.
type PatternKind int

const (
	PatternWildcard PatternKind = iota
	PatternBinding
	PatternLiteral
	PatternTuple
	PatternStruct
	PatternEnum
	PatternOr
	PatternRange
	PatternArray
)

// Pattern is one arm pattern of a When/match. Unlike Expr, patterns do not
// need a shared Base — they carry no resolved value type of their own
// (the scrutinee's type is what's being matched), only the fields the
// exhaustiveness checker and HirBuilder need.
type Pattern struct {
	Kind PatternKind

	// PatternWildcard: no fields

	// PatternBinding
	BindingName string
	SubPattern  *Pattern // `name @ pattern`, nil if a bare binding

	// PatternLiteral
	LitInt   int64
	LitUint  uint64
	LitFloat float64
	LitBool  bool
	LitChar  rune
	LitStr   string
	LitTy    types.Type

	// PatternTuple / PatternArray
	Elements []Pattern

	// PatternArray only: HasRest marks a `..` rest element, matching any
	// length >= len(Elements); RestIndex is its position among Elements.
	HasRest   bool
	RestIndex int

	// PatternStruct
	StructName   string
	FieldNames   []string // parallel to StructFields, declaration order not required
	StructFields []Pattern

	// PatternEnum
	EnumName     string
	VariantName  string
	VariantIndex int
	Payload      []Pattern

	// PatternOr
	Alternatives []Pattern

	// PatternRange
	RangeLow       *Pattern
	RangeHigh      *Pattern
	RangeInclusive bool
}

// IsIrrefutable reports whether the pattern matches every value of its
// type by construction (wildcard, a bare binding, or a tuple/struct whose
// every sub-pattern is irrefutable) — used by `let` bindings, which
// require an irrefutable pattern.
func (p Pattern) IsIrrefutable() bool {
	switch p.Kind {
	case PatternWildcard:
		return true
	case PatternBinding:
		if p.SubPattern == nil {
			return true
		}

		return p.SubPattern.IsIrrefutable()
	case PatternTuple:
		for _, e := range p.Elements {
			if !e.IsIrrefutable() {
				return false
			}
		}

		return true
	case PatternStruct:
		for _, f := range p.StructFields {
			if !f.IsIrrefutable() {
				return false
			}
		}

		return true
	default:
		return false
	}
}
