package mir

import (
	"vellum/internal/ids"
	"vellum/internal/types"
)

// Builder assembles a Function one instruction at a time. The MirBuilder
// proper — the external collaborator that lowers THIR into MIR — is out
// of scope here, but pass and alias-analysis tests still need a way to
// construct well-formed MIR fixtures, so this package supplies its own
// minimal builder.
type Builder struct {
	fn  *Function
	cur *BasicBlock
}

// NewBuilder starts building fn, a fresh function with no blocks.
func NewBuilder(fn *Function) *Builder {
	return &Builder{fn: fn}
}

// Block appends a new, empty basic block and makes it current.
func (b *Builder) Block(name string) *BasicBlock {
	bb := &BasicBlock{ID: b.fn.BlockGen.Fresh(), Name: name}
	b.fn.Blocks = append(b.fn.Blocks, bb)
	b.cur = bb

	return bb
}

// SetBlock makes bb the insertion point for subsequent Emit calls.
func (b *Builder) SetBlock(bb *BasicBlock) { b.cur = bb }

// Emit appends an instruction producing a value of type ty to the
// current block and returns its freshly allocated result id.
func (b *Builder) Emit(ty types.Type, v InstrVariant) ids.ValueID {
	id := b.fn.ValueGen.Fresh()
	b.cur.Instrs = append(b.cur.Instrs, Instruction{Result: id, Ty: ty, Variant: v})

	return id
}

// EmitVoid appends a side-effecting instruction with no result (e.g.
// Store).
func (b *Builder) EmitVoid(v InstrVariant) {
	b.cur.Instrs = append(b.cur.Instrs, Instruction{Variant: v})
}

// Terminate sets the current block's terminator and records the implied
// CFG edges in both blocks' Preds/Succs lists.
func (b *Builder) Terminate(t Terminator) {
	b.cur.Term = t
	for _, target := range t.Targets() {
		b.cur.Succs = append(b.cur.Succs, target)

		if tb := b.fn.BlockByID(target); tb != nil {
			tb.Preds = append(tb.Preds, b.cur.ID)
		}
	}
}

// Func returns the function under construction.
func (b *Builder) Func() *Function { return b.fn }
