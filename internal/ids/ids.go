// Package ids defines the identifier types shared by the HIR, THIR, and MIR
// layers of the middle-end: process-local monotonic counters with a
// reserved zero value meaning "invalid".
package ids

import "fmt"

// NodeID uniquely identifies an HIR or THIR node within one compilation
// session. Zero is reserved as the invalid id; ids are stable for the
// lifetime of one IR tree but are not stable across serialization
// boundaries.
type NodeID uint64

// InvalidNodeID is the reserved zero value.
const InvalidNodeID NodeID = 0

func (id NodeID) String() string { return fmt.Sprintf("#%d", uint64(id)) }

// IsValid reports whether id is not the reserved invalid value.
func (id NodeID) IsValid() bool { return id != InvalidNodeID }

// NodeIDGenerator hands out fresh, strictly increasing NodeIDs. One
// generator lives per HirBuilder/ThirLower instance; it is never global
// mutable state.
type NodeIDGenerator struct {
	next uint64
}

// NewNodeIDGenerator returns a generator whose first Fresh() call yields 1.
func NewNodeIDGenerator() *NodeIDGenerator {
	return &NodeIDGenerator{next: 1}
}

// Fresh returns a new, never-before-returned NodeID.
func (g *NodeIDGenerator) Fresh() NodeID {
	id := NodeID(g.next)
	g.next++

	return id
}

// ValueID uniquely identifies an SSA value within one MIR function. Zero
// is reserved as invalid. A distinct generator exists per function.
type ValueID uint64

// InvalidValueID is the reserved zero value.
const InvalidValueID ValueID = 0

func (id ValueID) String() string { return fmt.Sprintf("%%%d", uint64(id)) }

// IsValid reports whether id is not the reserved invalid value.
func (id ValueID) IsValid() bool { return id != InvalidValueID }

// ValueIDGenerator hands out fresh ValueIDs for a single MIR function.
type ValueIDGenerator struct {
	next uint64
}

// NewValueIDGenerator returns a generator whose first Fresh() call yields 1.
func NewValueIDGenerator() *ValueIDGenerator {
	return &ValueIDGenerator{next: 1}
}

// Fresh returns a new, never-before-returned ValueID.
func (g *ValueIDGenerator) Fresh() ValueID {
	id := ValueID(g.next)
	g.next++

	return id
}

// Peek returns the ValueID that the next Fresh() call will return, without
// consuming it. Used by inlining to reserve a contiguous id range for a
// cloned callee before splicing it into the caller.
func (g *ValueIDGenerator) Peek() ValueID { return ValueID(g.next) }

// BlockID identifies a basic block within one MIR function. The entry
// block always has the smallest id (0).
type BlockID uint64

func (id BlockID) String() string { return fmt.Sprintf("bb%d", uint64(id)) }

// BlockIDGenerator hands out fresh BlockIDs for a single MIR function,
// starting at 0 so the entry block naturally gets the smallest id.
type BlockIDGenerator struct {
	next uint64
}

// Fresh returns a new, never-before-returned BlockID.
func (g *BlockIDGenerator) Fresh() BlockID {
	id := BlockID(g.next)
	g.next++

	return id
}
