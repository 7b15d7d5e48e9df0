// Package mir defines the Mid-level IR: an SSA control-flow graph of
// typed instructions. A MIR function owns its blocks; blocks own their
// instructions; ValueIds are non-owning indices into the function's SSA
// namespace. Predecessor/successor lists are materialized, and every
// block carries a single explicit terminator.
package mir

import (
	"fmt"
	"strings"

	"vellum/internal/ids"
	"vellum/internal/types"
)

// Module owns a module's functions and the struct/enum definition tables
// materialized alongside them.
type Module struct {
	Name      string
	Functions []*Function
	Structs   map[string]*types.StructDef
	Enums     map[string]*types.EnumDef
}

// NewModule returns an empty module ready to accept functions.
func NewModule(name string) *Module {
	return &Module{Name: name, Structs: map[string]*types.StructDef{}, Enums: map[string]*types.EnumDef{}}
}

// FindFunction returns the function named name, or nil if absent.
func (m *Module) FindFunction(name string) *Function {
	for _, f := range m.Functions {
		if f.Name == name {
			return f
		}
	}

	return nil
}

// Attr enumerates the function attributes.
type Attr int

const (
	AttrInline Attr = iota
	AttrNoInline
	AttrExport
	AttrTest
	AttrBench
	AttrFuzz
	AttrExtern
	AttrAlwaysInline
)

// Param is one function parameter: an SSA value bound at entry.
type Param struct {
	ID ids.ValueID
	Ty types.Type
}

// Function owns its basic blocks and the per-function SSA id
// generators. Entry is always Blocks[0].
type Function struct {
	Name     string
	Params   []Param
	Return   types.Type
	Attrs    map[Attr]bool
	Blocks   []*BasicBlock
	ValueGen *ids.ValueIDGenerator
	BlockGen *ids.BlockIDGenerator
}

// NewFunction returns an empty function with fresh id generators. The
// value generator starts past the highest parameter id, so parameter ids
// are never handed out again.
func NewFunction(name string, params []Param, ret types.Type) *Function {
	f := &Function{
		Name:     name,
		Params:   params,
		Return:   ret,
		Attrs:    map[Attr]bool{},
		ValueGen: ids.NewValueIDGenerator(),
		BlockGen: &ids.BlockIDGenerator{},
	}

	for _, p := range params {
		for f.ValueGen.Peek() <= p.ID {
			f.ValueGen.Fresh()
		}
	}

	return f
}

// HasAttr reports whether a is set on f.
func (f *Function) HasAttr(a Attr) bool { return f.Attrs[a] }

// Entry returns the function's entry block, or nil if it has none.
func (f *Function) Entry() *BasicBlock {
	if len(f.Blocks) == 0 {
		return nil
	}

	return f.Blocks[0]
}

// BlockByID returns the block with the given id, or nil.
func (f *Function) BlockByID(id ids.BlockID) *BasicBlock {
	for _, b := range f.Blocks {
		if b.ID == id {
			return b
		}
	}

	return nil
}

// InstructionCount returns the total number of instructions across every
// block, used by inlining's cost model and the "pipeline never grows the
// IR" testable property.
func (f *Function) InstructionCount() int {
	n := 0
	for _, b := range f.Blocks {
		n += len(b.Instrs)
	}

	return n
}

// BasicBlock owns a straight-line instruction sequence and exactly one
// optional terminator. Preds/Succs are materialized rather
// than derived on every query, and kept consistent by CFG-editing passes.
type BasicBlock struct {
	ID     ids.BlockID
	Name   string
	Instrs []Instruction
	Term   Terminator
	Preds  []ids.BlockID
	Succs  []ids.BlockID
}

// Instruction is one typed SSA instruction: a result id (InvalidValueID
// for void instructions like Store), its type, and its variant payload.
type Instruction struct {
	Result  ids.ValueID
	Ty      types.Type
	Variant InstrVariant
}

// InstrVariant is implemented by every instruction payload kind.
type InstrVariant interface {
	isInstrVariant()
	fmt.Stringer
}

// Terminator is implemented by every terminator kind.
type Terminator interface {
	isTerminator()
	// Targets returns every block this terminator can transfer control
	// to, in a stable order matching how Switch orders its cases —
	// callers needing predecessor/successor bookkeeping use this instead
	// of a type switch.
	Targets() []ids.BlockID
	fmt.Stringer
}

func (m *Module) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "module %s\n", m.Name)

	for _, f := range m.Functions {
		b.WriteString(f.String())
		b.WriteByte('\n')
	}

	return b.String()
}

func (f *Function) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "fn %s(", f.Name)

	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}

		fmt.Fprintf(&b, "%s: %s", p.ID, p.Ty)
	}

	fmt.Fprintf(&b, ") -> %s {\n", f.Return)

	for _, bb := range f.Blocks {
		b.WriteString(bb.String())
	}

	b.WriteString("}\n")

	return b.String()
}

func (bb *BasicBlock) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s:", bb.ID)

	if bb.Name != "" {
		fmt.Fprintf(&b, "; %s", bb.Name)
	}

	b.WriteByte('\n')

	for _, in := range bb.Instrs {
		fmt.Fprintf(&b, " %s\n", in.String())
	}

	if bb.Term != nil {
		fmt.Fprintf(&b, " %s\n", bb.Term.String())
	}

	return b.String()
}

func (in Instruction) String() string {
	if in.Result.IsValid() {
		return fmt.Sprintf("%s: %s = %s", in.Result, in.Ty, in.Variant.String())
	}

	return in.Variant.String()
}
