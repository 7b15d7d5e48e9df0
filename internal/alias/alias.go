// Package alias implements the shared AliasAnalysis the pass manager runs
// before any pass that needs it. It classifies every
// pointer-typed SSA value with a PointerInfo (origin, ultimate base, known
// constant offsets) and answers alias(p1, p2) queries used by Load GVN,
// LoadStoreOpt, LICM, and DestinationPropagation. Rules are tried in a
// fixed order: identical origin, disjoint-origin-class,
// constant-offset-disjoint, field-sensitivity, then the MayAlias
// fallback.
package alias

import (
	"vellum/internal/ids"
	"vellum/internal/mir"
	"vellum/internal/types"
)

// Origin classifies where a pointer value ultimately came from.
type Origin int

const (
	OriginUnknown Origin = iota
	OriginStackAlloca
	OriginGlobalVariable
	OriginHeapAlloc
	OriginFunctionArg
	OriginGEP
	OriginFieldAccess
)

// Result is the outcome of an alias(p1, p2) query.
type Result int

const (
	NoAlias Result = iota
	MayAlias
	MustAlias
	PartialAlias
)

func (r Result) String() string {
	switch r {
	case NoAlias:
		return "NoAlias"
	case MustAlias:
		return "MustAlias"
	case PartialAlias:
		return "PartialAlias"
	default:
		return "MayAlias"
	}
}

// Offset is one constant GEP offset applied along a pointer's derivation
// chain. Known collapses to false the moment a dynamic (non-constant)
// index is seen — an unknown offset collapses the whole chain.
type Offset struct {
	Known bool
	Value int64
	// Size is the byte/element extent this offset addresses, used for the
	// disjoint-interval test; 0 means "unknown extent", treated
	// conservatively (not provably disjoint from anything).
	Size int64
}

// PointerInfo is the classification the analysis computes for one
// pointer-typed SSA value.
type PointerInfo struct {
	Origin   Origin
	Base     ids.ValueID // the value that began the derivation chain
	Offset   Offset
	Pointee  string // textual pointee type, for field-sensitivity comparisons
	Field    string // non-empty iff Origin == OriginFieldAccess: the field name
	Restrict bool   // always false (spec: "here always false")
}

// Stats tallies query outcomes for diagnostics.
type Stats struct {
	Queries        int
	NoAliasCount   int
	MayAliasCount  int
	MustAliasCount int
	PartialCount   int
}

// Analysis is a per-function alias analysis: every pointer-typed SSA
// value's PointerInfo, computed once and queried repeatedly by later
// passes.
type Analysis struct {
	fn    *mir.Function
	infos map[ids.ValueID]PointerInfo
	stats Stats
}

// Analyze computes pointer origin information for every pointer-typed
// value defined in fn. Non-pointer values are simply absent from the
// result; queries against them report MayAlias conservatively.
func Analyze(fn *mir.Function) *Analysis {
	a := &Analysis{fn: fn, infos: map[ids.ValueID]PointerInfo{}}

	for _, p := range fn.Params {
		if p.Ty.Kind == types.KindPointer || p.Ty.Kind == types.KindReference {
			a.infos[p.ID] = PointerInfo{Origin: OriginFunctionArg, Base: p.ID}
		}
	}

	// Process in a fixed block order; Alloca/GEP/FieldAccess derivations
	// only ever reference already-defined values (SSA dominance), so one
	// forward pass over each block in program order is sufficient.
	for _, bb := range fn.Blocks {
		for _, in := range bb.Instrs {
			a.classify(in)
		}
	}

	return a
}

func (a *Analysis) classify(in mir.Instruction) {
	switch v := in.Variant.(type) {
	case mir.Alloca:
		a.infos[in.Result] = PointerInfo{
			Origin: OriginStackAlloca, Base: in.Result, Pointee: v.AllocatedType.String(),
			Offset: Offset{Known: true, Value: 0, Size: 0},
		}
	case mir.Call:
		// A call returning a pointer type is treated as a fresh heap
		// allocation origin — the middle-end has no explicit Alloc
		// instruction, so calls
		// to allocator-shaped functions are the only heap source it sees.
		if in.Result.IsValid() && (in.Ty.Kind == types.KindPointer || in.Ty.Kind == types.KindReference) {
			a.infos[in.Result] = PointerInfo{Origin: OriginHeapAlloc, Base: in.Result, Pointee: in.Ty.String()}
		}
	case mir.GEP:
		base, ok := a.infos[v.Base]
		field := ""
		offset := Offset{Known: true, Value: 0, Size: 0}

		if !ok {
			base = PointerInfo{Origin: OriginUnknown, Base: v.Base}
		}

		origin := OriginGEP

		allConst := true
		acc := int64(0)

		for _, idx := range v.Indices {
			if !idx.IsConst {
				allConst = false
				break
			}

			acc += idx.Const
		}

		if allConst {
			offset = Offset{Known: base.Offset.Known, Value: base.Offset.Value + acc, Size: 1}
		} else {
			offset = Offset{Known: false}
		}

		// A single constant trailing index into a named struct is treated
		// as field access for field-sensitivity purposes.
		if allConst && len(v.Indices) == 1 {
			origin = OriginFieldAccess
			field = v.Indices[0].String()
		}

		a.infos[in.Result] = PointerInfo{
			Origin: origin, Base: base.Base, Offset: offset, Pointee: in.Ty.String(), Field: field,
		}
	default:
		// Not a pointer-producing instruction; leave unclassified.
	}
}

// Info returns v's computed PointerInfo and whether one was recorded.
func (a *Analysis) Info(v ids.ValueID) (PointerInfo, bool) {
	info, ok := a.infos[v]
	return info, ok
}

// Stats returns the query counters accumulated so far.
func (a *Analysis) Stats() Stats { return a.stats }

// Alias answers whether p1 and p2 may/must/never refer to overlapping
// memory: identical value, disjoint origin classes, same-base offset
// comparison, field-sensitivity, then MayAlias, in that order.
func (a *Analysis) Alias(p1, p2 ids.ValueID) Result {
	a.stats.Queries++

	result := a.alias(p1, p2)

	switch result {
	case NoAlias:
		a.stats.NoAliasCount++
	case MustAlias:
		a.stats.MustAliasCount++
	case PartialAlias:
		a.stats.PartialCount++
	default:
		a.stats.MayAliasCount++
	}

	return result
}

func (a *Analysis) alias(p1, p2 ids.ValueID) Result {
	// Rule 1: same SSA value.
	if p1 == p2 {
		return MustAlias
	}

	i1, ok1 := a.infos[p1]
	i2, ok2 := a.infos[p2]

	if !ok1 || !ok2 {
		return MayAlias
	}

	// Rule 2: distinct stack allocas, or stack vs. global, or distinct
	// heap allocs, never alias.
	if disjointOriginClass(i1, i2) {
		return NoAlias
	}

	// Rule 3: same ultimate base — compare known offsets.
	if i1.Base == i2.Base && i1.Base.IsValid() {
		if i1.Offset.Known && i2.Offset.Known {
			return compareOffsets(i1.Offset, i2.Offset)
		}
		// Unknown offset on a shared base: conservative MayAlias, unless
		// origins are both field accesses naming different fields (rule 4
		// below still applies first for that case).
	}

	// Rule 4: different struct-field accesses of the same base are
	// field-sensitively disjoint.
	if i1.Origin == OriginFieldAccess && i2.Origin == OriginFieldAccess &&
		i1.Base == i2.Base && i1.Field != "" && i2.Field != "" && i1.Field != i2.Field {
		return NoAlias
	}

	// Rule 5: fallback.
	return MayAlias
}

func disjointOriginClass(i1, i2 PointerInfo) bool {
	if i1.Origin == OriginStackAlloca && i2.Origin == OriginStackAlloca {
		return i1.Base != i2.Base
	}

	if isMemoryOrigin(i1.Origin) && isMemoryOrigin(i2.Origin) && i1.Origin != i2.Origin {
		return true
	}

	if i1.Origin == OriginHeapAlloc && i2.Origin == OriginHeapAlloc {
		return i1.Base != i2.Base
	}

	return false
}

func isMemoryOrigin(o Origin) bool {
	return o == OriginStackAlloca || o == OriginGlobalVariable || o == OriginHeapAlloc
}

func compareOffsets(a, b Offset) Result {
	if a.Value == b.Value {
		return MustAlias
	}

	if a.Size <= 0 || b.Size <= 0 {
		return MayAlias
	}

	aLo, aHi := a.Value, a.Value+a.Size
	bLo, bHi := b.Value, b.Value+b.Size

	if aHi <= bLo || bHi <= aLo {
		return NoAlias
	}

	return PartialAlias
}
