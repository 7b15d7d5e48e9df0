package mir

import (
	"fmt"
	"strings"

	"vellum/internal/ids"
	"vellum/internal/types"
)

// Constant is a literal value of one of the primitive shapes. Exactly
// one of the typed fields is meaningful, selected by Ty.
type Constant struct {
	I64     int64
	U64     uint64
	F64     float64
	Bool    bool
	Char    rune
	Str     string
	Signed  bool
	Width   int
	IsFloat bool
	IsF64   bool
	IsUnit  bool
}

func (Constant) isInstrVariant() {}
func (c Constant) String() string {
	switch {
	case c.IsUnit:
		return "const ()"
	case c.Str != "":
		return fmt.Sprintf("const %q", c.Str)
	case c.IsFloat:
		return fmt.Sprintf("const %g", c.F64)
	case c.Signed:
		return fmt.Sprintf("const %d", c.I64)
	default:
		return fmt.Sprintf("const %d", c.U64)
	}
}

// BinOp enumerates the binary operators.
type BinOp int

const (
	Add BinOp = iota
	Sub
	Mul
	Div
	Mod
	Eq
	Ne
	Lt
	Le
	Gt
	Ge
	And
	Or
	BitAnd
	BitOr
	BitXor
	Shl
	Shr
)

var binOpNames = map[BinOp]string{
	Add: "add", Sub: "sub", Mul: "mul", Div: "div", Mod: "mod",
	Eq: "eq", Ne: "ne", Lt: "lt", Le: "le", Gt: "gt", Ge: "ge",
	And: "and", Or: "or", BitAnd: "bitand", BitOr: "bitor", BitXor: "bitxor",
	Shl: "shl", Shr: "shr",
}

func (op BinOp) String() string {
	if n, ok := binOpNames[op]; ok {
		return n
	}

	return "binop?"
}

// IsCommutative reports whether op's two operands may be reordered —
// used by CSE/GVN to canonicalize operand order.
func (op BinOp) IsCommutative() bool {
	switch op {
	case Add, Mul, Eq, Ne, And, Or, BitAnd, BitOr, BitXor:
		return true
	default:
		return false
	}
}

// Binary is a binary SSA instruction.
type Binary struct {
	Op          BinOp
	Left, Right ids.ValueID
}

func (Binary) isInstrVariant()  {}
func (b Binary) String() string { return fmt.Sprintf("%s %s, %s", b.Op, b.Left, b.Right) }

// UnaryOp enumerates the unary operators.
type UnaryOp int

const (
	Neg UnaryOp = iota
	Not
	BitNot
)

func (op UnaryOp) String() string {
	switch op {
	case Neg:
		return "neg"
	case Not:
		return "not"
	case BitNot:
		return "bitnot"
	default:
		return "unop?"
	}
}

// Unary is a unary SSA instruction.
type Unary struct {
	Op      UnaryOp
	Operand ids.ValueID
}

func (Unary) isInstrVariant()  {}
func (u Unary) String() string { return fmt.Sprintf("%s %s", u.Op, u.Operand) }

// CastKind enumerates the cast kinds.
type CastKind int

const (
	ZExt CastKind = iota
	SExt
	Trunc
	FpToSi
	SiToFp
	FpExt
	FpTrunc
	Bitcast
	PtrToInt
	IntToPtr
)

func (k CastKind) String() string {
	switch k {
	case ZExt:
		return "zext"
	case SExt:
		return "sext"
	case Trunc:
		return "trunc"
	case FpToSi:
		return "fptosi"
	case SiToFp:
		return "sitofp"
	case FpExt:
		return "fpext"
	case FpTrunc:
		return "fptrunc"
	case Bitcast:
		return "bitcast"
	case PtrToInt:
		return "ptrtoint"
	case IntToPtr:
		return "inttoptr"
	default:
		return "cast?"
	}
}

// Cast converts Operand from SourceType to TargetType.
type Cast struct {
	CastKind   CastKind
	SourceType types.Type
	TargetType types.Type
	Operand    ids.ValueID
}

func (Cast) isInstrVariant() {}
func (c Cast) String() string {
	return fmt.Sprintf("%s %s to %s, from %s", c.CastKind, c.Operand, c.TargetType, c.SourceType)
}

// Alloca allocates a stack slot of AllocatedType, producing a pointer.
type Alloca struct {
	Name          string
	AllocatedType types.Type
	IsVolatile    bool
}

func (Alloca) isInstrVariant() {}
func (a Alloca) String() string {
	if a.Name != "" {
		return fmt.Sprintf("alloca %s; %s", a.AllocatedType, a.Name)
	}

	return fmt.Sprintf("alloca %s", a.AllocatedType)
}

// Load reads from Ptr.
type Load struct {
	Ptr        ids.ValueID
	IsVolatile bool
}

func (Load) isInstrVariant() {}
func (l Load) String() string {
	if l.IsVolatile {
		return fmt.Sprintf("load volatile %s", l.Ptr)
	}

	return fmt.Sprintf("load %s", l.Ptr)
}

// Store writes Value to Ptr. Stores have no result (InvalidValueID).
type Store struct {
	Ptr        ids.ValueID
	Value      ids.ValueID
	IsVolatile bool
}

func (Store) isInstrVariant() {}
func (s Store) String() string {
	if s.IsVolatile {
		return fmt.Sprintf("store volatile %s, %s", s.Value, s.Ptr)
	}

	return fmt.Sprintf("store %s, %s", s.Value, s.Ptr)
}

// GEPIndex is one index of a GEP chain: either a compile-time constant or
// a dynamic SSA value.
type GEPIndex struct {
	IsConst bool
	Const   int64
	Value   ids.ValueID
}

func (i GEPIndex) String() string {
	if i.IsConst {
		return fmt.Sprintf("%d", i.Const)
	}

	return i.Value.String()
}

// GEP computes a derived pointer from Base by walking Indices.
type GEP struct {
	Base    ids.ValueID
	Indices []GEPIndex
}

func (GEP) isInstrVariant() {}
func (g GEP) String() string {
	parts := make([]string, len(g.Indices))
	for i, idx := range g.Indices {
		parts[i] = idx.String()
	}

	return fmt.Sprintf("gep %s, [%s]", g.Base, strings.Join(parts, ", "))
}

// ExtractValue reads one field out of an aggregate SSA value.
type ExtractValue struct {
	Aggregate ids.ValueID
	Indices   []int
}

func (ExtractValue) isInstrVariant() {}
func (e ExtractValue) String() string {
	return fmt.Sprintf("extractvalue %s, %s", e.Aggregate, intsString(e.Indices))
}

// InsertValue returns a copy of Aggregate with one field replaced by Value.
type InsertValue struct {
	Aggregate ids.ValueID
	Value     ids.ValueID
	Indices   []int
}

func (InsertValue) isInstrVariant() {}
func (e InsertValue) String() string {
	return fmt.Sprintf("insertvalue %s, %s, %s", e.Aggregate, e.Value, intsString(e.Indices))
}

func intsString(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprintf("%d", x)
	}

	return strings.Join(parts, ",")
}

// Call invokes a named function (direct call).
type Call struct {
	Callee     string
	Args       []ids.ValueID
	ReturnType types.Type
	// TailCall is set by the TailCall pass; the backend may
	// convert a tail call into a jump.
	TailCall bool
}

func (Call) isInstrVariant() {}
func (c Call) String() string {
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		parts[i] = a.String()
	}

	tail := ""
	if c.TailCall {
		tail = " tail"
	}

	return fmt.Sprintf("call%s %s(%s)", tail, c.Callee, strings.Join(parts, ", "))
}

// MethodCall invokes a (possibly virtual) method on Receiver.
type MethodCall struct {
	Receiver     ids.ValueID
	ReceiverType types.Type
	MethodName   string
	Args         []ids.ValueID
	ReturnType   types.Type
	TailCall     bool
}

func (MethodCall) isInstrVariant() {}
func (c MethodCall) String() string {
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		parts[i] = a.String()
	}

	tail := ""
	if c.TailCall {
		tail = " tail"
	}

	return fmt.Sprintf("methodcall%s %s.%s(%s)", tail, c.Receiver, c.MethodName, strings.Join(parts, ", "))
}

// PhiIncoming is one (value, predecessor) entry of a Phi.
type PhiIncoming struct {
	Value ids.ValueID
	Block ids.BlockID
}

// Phi selects a value based on the incoming control-flow edge. Phi
// instructions must be contiguous at the top of their block.
type Phi struct {
	Incoming []PhiIncoming
}

func (Phi) isInstrVariant() {}
func (p Phi) String() string {
	parts := make([]string, len(p.Incoming))
	for i, in := range p.Incoming {
		parts[i] = fmt.Sprintf("[%s, %s]", in.Value, in.Block)
	}

	return fmt.Sprintf("phi %s", strings.Join(parts, ", "))
}

// Select picks TrueVal or FalseVal based on Cond, branch-free.
type Select struct {
	Cond              ids.ValueID
	TrueVal, FalseVal ids.ValueID
}

func (Select) isInstrVariant() {}
func (s Select) String() string {
	return fmt.Sprintf("select %s, %s, %s", s.Cond, s.TrueVal, s.FalseVal)
}

// StructInit constructs a struct value from its fields in declaration
// order.
type StructInit struct {
	StructName string
	Fields     []ids.ValueID
}

func (StructInit) isInstrVariant() {}
func (s StructInit) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = f.String()
	}

	return fmt.Sprintf("structinit %s {%s}", s.StructName, strings.Join(parts, ", "))
}

// EnumInit constructs an enum value for a given variant.
type EnumInit struct {
	EnumName     string
	VariantIndex int
	Payload      []ids.ValueID
}

func (EnumInit) isInstrVariant() {}
func (e EnumInit) String() string {
	parts := make([]string, len(e.Payload))
	for i, p := range e.Payload {
		parts[i] = p.String()
	}

	return fmt.Sprintf("enuminit %s#%d(%s)", e.EnumName, e.VariantIndex, strings.Join(parts, ", "))
}

// TupleInit constructs a tuple value.
type TupleInit struct{ Elements []ids.ValueID }

func (TupleInit) isInstrVariant() {}
func (t TupleInit) String() string {
	parts := make([]string, len(t.Elements))
	for i, e := range t.Elements {
		parts[i] = e.String()
	}

	return fmt.Sprintf("tupleinit (%s)", strings.Join(parts, ", "))
}

// ArrayInit constructs a fixed-size array value.
type ArrayInit struct{ Elements []ids.ValueID }

func (ArrayInit) isInstrVariant() {}
func (a ArrayInit) String() string {
	parts := make([]string, len(a.Elements))
	for i, e := range a.Elements {
		parts[i] = e.String()
	}

	return fmt.Sprintf("arrayinit [%s]", strings.Join(parts, ", "))
}

// Await polls a future/coroutine value to completion. Opaque to every
// optimization pass.
type Await struct{ PollResult ids.ValueID }

func (Await) isInstrVariant()  {}
func (a Await) String() string { return fmt.Sprintf("await %s", a.PollResult) }

// ClosureInit constructs a closure value: a function pointer paired with
// its captured environment. The backend owns the exact environment
// layout; the middle-end only needs to know which values are captured
// (for liveness/CSE purposes).
type ClosureInit struct {
	FuncName string
	Captures []ids.ValueID
}

func (ClosureInit) isInstrVariant() {}
func (c ClosureInit) String() string {
	parts := make([]string, len(c.Captures))
	for i, v := range c.Captures {
		parts[i] = v.String()
	}

	return fmt.Sprintf("closureinit %s[%s]", c.FuncName, strings.Join(parts, ", "))
}
