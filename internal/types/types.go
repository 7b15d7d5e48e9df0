// Package types models the single semantic type representation shared
// across HIR, THIR, and MIR. The middle-end never constructs
// these from scratch and never mutates them — they are produced by the
// external type checker and treated as shared, read-only handles; this
// package exists only so the middle-end has a concrete Go value to hold
// and compare: one tagged value instead of one struct per kind.
package types

import (
	"fmt"
	"strings"
)

// Kind tags the constructor of a Type value.
type Kind int

const (
	KindInvalid Kind = iota
	KindPrimitive
	KindNamed
	KindTuple
	KindArray
	KindSlice
	KindFunction
	KindPointer
	KindReference
	KindNever
	KindUnit
)

// Primitive enumerates the primitive scalar kinds.
type Primitive int

const (
	PrimInvalid Primitive = iota
	PrimI8
	PrimI16
	PrimI32
	PrimI64
	PrimI128
	PrimU8
	PrimU16
	PrimU32
	PrimU64
	PrimU128
	PrimF32
	PrimF64
	PrimBool
	PrimChar
	PrimStr
)

var primitiveNames = map[Primitive]string{
	PrimI8: "I8", PrimI16: "I16", PrimI32: "I32", PrimI64: "I64", PrimI128: "I128",
	PrimU8: "U8", PrimU16: "U16", PrimU32: "U32", PrimU64: "U64", PrimU128: "U128",
	PrimF32: "F32", PrimF64: "F64", PrimBool: "Bool", PrimChar: "Char", PrimStr: "Str",
}

func (p Primitive) String() string {
	if n, ok := primitiveNames[p]; ok {
		return n
	}

	return "<invalid-primitive>"
}

// IsInteger reports whether p is one of the signed or unsigned integer kinds.
func (p Primitive) IsInteger() bool {
	switch p {
	case PrimI8, PrimI16, PrimI32, PrimI64, PrimI128,
		PrimU8, PrimU16, PrimU32, PrimU64, PrimU128:
		return true
	default:
		return false
	}
}

// IsSigned reports whether p is a signed integer kind.
func (p Primitive) IsSigned() bool {
	switch p {
	case PrimI8, PrimI16, PrimI32, PrimI64, PrimI128:
		return true
	default:
		return false
	}
}

// IsFloat reports whether p is F32 or F64.
func (p Primitive) IsFloat() bool { return p == PrimF32 || p == PrimF64 }

// Width returns the bit width of an integer or float primitive, or 0 for
// non-sized kinds (Bool, Char, Str).
func (p Primitive) Width() int {
	switch p {
	case PrimI8, PrimU8:
		return 8
	case PrimI16, PrimU16:
		return 16
	case PrimI32, PrimU32, PrimF32:
		return 32
	case PrimI64, PrimU64, PrimF64:
		return 64
	case PrimI128, PrimU128:
		return 128
	case PrimChar:
		return 32
	case PrimBool:
		return 1
	default:
		return 0
	}
}

// Mutability flags whether a reference type is mutable.
type Mutability int

const (
	Immutable Mutability = iota
	Mutable
)

// Type is the single recursively tagged value shared by HIR/THIR/MIR.
// Equality is structural modulo named-type identity: two Named types are
// equal iff their Name (and, for generics, their resolved Args) match;
// all other kinds compare their constituent fields.
type Type struct {
	Kind Kind

	// KindPrimitive
	Prim Primitive

	// KindNamed: struct/enum/class identity plus resolved type arguments.
	Name string
	Args []Type

	// KindTuple
	Elems []Type

	// KindArray
	Elem  *Type
	Count int

	// KindSlice: reuses Elem.

	// KindFunction
	Params    []Type
	Return    *Type
	IsClosure bool

	// KindPointer / KindReference: reuses Elem.
	RefMut Mutability
}

// Primitive-constructors.
func NewPrimitive(p Primitive) Type { return Type{Kind: KindPrimitive, Prim: p} }

// Unit is the canonical unit type value.
func Unit() Type { return Type{Kind: KindUnit} }

// Never is the canonical uninhabited type value.
func Never() Type { return Type{Kind: KindNever} }

// Named constructs a struct/enum/class type with resolved type arguments.
func Named(name string, args ...Type) Type {
	return Type{Kind: KindNamed, Name: name, Args: args}
}

// Tuple constructs a tuple type from its element types.
func Tuple(elems ...Type) Type { return Type{Kind: KindTuple, Elems: elems} }

// Array constructs a fixed-size array type.
func Array(elem Type, count int) Type {
	return Type{Kind: KindArray, Elem: &elem, Count: count}
}

// Slice constructs a slice type.
func Slice(elem Type) Type { return Type{Kind: KindSlice, Elem: &elem} }

// Function constructs a function or closure signature type.
func Function(params []Type, ret Type, isClosure bool) Type {
	return Type{Kind: KindFunction, Params: params, Return: &ret, IsClosure: isClosure}
}

// Pointer constructs a raw pointer type.
func Pointer(pointee Type) Type { return Type{Kind: KindPointer, Elem: &pointee} }

// Reference constructs a reference type with the given mutability.
func Reference(pointee Type, mut Mutability) Type {
	return Type{Kind: KindReference, Elem: &pointee, RefMut: mut}
}

// IsValid reports whether t is a recognized, non-zero-value type.
func (t Type) IsValid() bool { return t.Kind != KindInvalid }

// Equal reports structural equality modulo named-type identity.
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind {
		return false
	}

	switch t.Kind {
	case KindPrimitive:
		return t.Prim == o.Prim
	case KindNamed:
		if t.Name != o.Name || len(t.Args) != len(o.Args) {
			return false
		}

		for i := range t.Args {
			if !t.Args[i].Equal(o.Args[i]) {
				return false
			}
		}

		return true
	case KindTuple:
		if len(t.Elems) != len(o.Elems) {
			return false
		}

		for i := range t.Elems {
			if !t.Elems[i].Equal(o.Elems[i]) {
				return false
			}
		}

		return true
	case KindArray:
		return t.Count == o.Count && t.Elem.Equal(*o.Elem)
	case KindSlice, KindPointer:
		return t.Elem.Equal(*o.Elem)
	case KindReference:
		return t.RefMut == o.RefMut && t.Elem.Equal(*o.Elem)
	case KindFunction:
		if len(t.Params) != len(o.Params) || t.IsClosure != o.IsClosure {
			return false
		}

		for i := range t.Params {
			if !t.Params[i].Equal(o.Params[i]) {
				return false
			}
		}

		return t.Return.Equal(*o.Return)
	case KindNever, KindUnit:
		return true
	default:
		return false
	}
}

// String renders a canonical textual form, also used as the monomorphization
// mangling-key fragment for type arguments.
func (t Type) String() string {
	switch t.Kind {
	case KindPrimitive:
		return t.Prim.String()
	case KindNamed:
		if len(t.Args) == 0 {
			return t.Name
		}

		parts := make([]string, len(t.Args))
		for i, a := range t.Args {
			parts[i] = a.String()
		}

		return fmt.Sprintf("%s[%s]", t.Name, strings.Join(parts, ","))
	case KindTuple:
		parts := make([]string, len(t.Elems))
		for i, e := range t.Elems {
			parts[i] = e.String()
		}

		return fmt.Sprintf("(%s)", strings.Join(parts, ","))
	case KindArray:
		return fmt.Sprintf("[%s;%d]", t.Elem.String(), t.Count)
	case KindSlice:
		return fmt.Sprintf("[%s]", t.Elem.String())
	case KindFunction:
		parts := make([]string, len(t.Params))
		for i, p := range t.Params {
			parts[i] = p.String()
		}

		kw := "fn"
		if t.IsClosure {
			kw = "closure"
		}

		return fmt.Sprintf("%s(%s)->%s", kw, strings.Join(parts, ","), t.Return.String())
	case KindPointer:
		return fmt.Sprintf("*%s", t.Elem.String())
	case KindReference:
		if t.RefMut == Mutable {
			return fmt.Sprintf("&mut %s", t.Elem.String())
		}

		return fmt.Sprintf("&%s", t.Elem.String())
	case KindNever:
		return "!"
	case KindUnit:
		return "()"
	default:
		return "<invalid-type>"
	}
}

// StructDef gives field name/type/ordinal information for a named struct,
// materialized by MIR alongside EnumDef. HasDrop records
// whether the source type has a user-defined destructor, the fact
// RemoveUnneededDrops and BatchDestruction need to decide whether a
// `<T>::drop` call is eliminable or batchable.
type StructDef struct {
	Name    string
	Fields  []FieldDef
	HasDrop bool
}

// FieldDef is one field of a StructDef.
type FieldDef struct {
	Name  string
	Type  Type
	Index int
}

// FieldIndex returns the zero-based ordinal of fieldName, or -1 if absent.
func (s *StructDef) FieldIndex(fieldName string) int {
	for _, f := range s.Fields {
		if f.Name == fieldName {
			return f.Index
		}
	}

	return -1
}

// EnumDef gives variant name/payload-type/ordinal information for a named
// enum.
type EnumDef struct {
	Name     string
	Variants []VariantDef
}

// VariantDef is one variant of an EnumDef.
type VariantDef struct {
	Name    string
	Index   int
	Payload []Type
}

// VariantIndex returns the zero-based ordinal of variantName, or -1 if absent.
func (e *EnumDef) VariantIndex(variantName string) int {
	for _, v := range e.Variants {
		if v.Name == variantName {
			return v.Index
		}
	}

	return -1
}
