package hir

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"vellum/internal/types"
)

// MonoRequest is one queued monomorphization request: instantiate the
// generic named Base under the concrete TypeArgs, producing MangledName.
type MonoRequest struct {
	Base        string
	TypeArgs    []types.Type
	MangledName string
}

// MonomorphizationCache holds the two mangling-key → mangled-name
// mappings and the re-entrant request queue drained once
// top-level lowering completes.
type MonomorphizationCache struct {
	types     map[string]string
	functions map[string]string
	queue     []MonoRequest
	drained   int // index of the next undrained request; supports re-entrant appends during draining
}

// NewMonomorphizationCache returns an empty cache.
func NewMonomorphizationCache() *MonomorphizationCache {
	return &MonomorphizationCache{
		types:     make(map[string]string),
		functions: make(map[string]string),
	}
}

// manglingKey computes the textual key `"Base[Arg1,Arg2,...]"` for a
// generic use, NFC-normalized so visually identical Unicode identifiers
// mangle identically.
func manglingKey(base string, args []types.Type) string {
	if len(args) == 0 {
		return norm.NFC.String(base)
	}

	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}

	return norm.NFC.String(base + "[" + strings.Join(parts, ",") + "]")
}

// mangledName flattens nested generics by concatenation:
// `Vec[Vec[I32]]` → `Vec__Vec__I32`.
func mangledName(base string, args []types.Type) string {
	if len(args) == 0 {
		return base
	}

	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = mangleTypeFragment(a)
	}

	return base + "__" + strings.Join(parts, "_")
}

// mangleTypeFragment renders one type argument for concatenation into a
// mangled name, recursing for nested generics so `Vec[I32]` contributes
// `Vec__I32` rather than the bracketed `Vec[I32]`.
func mangleTypeFragment(t types.Type) string {
	if t.Kind == types.KindNamed && len(t.Args) > 0 {
		return mangledName(t.Name, t.Args)
	}

	return t.String()
}

// InstantiateType resolves the mangled name for a generic type use,
// enqueuing a monomorphization request on first sight. Returns the mangled name to rewrite the use site to.
func (c *MonomorphizationCache) InstantiateType(base string, args []types.Type) string {
	key := manglingKey(base, args)
	if name, ok := c.types[key]; ok {
		return name
	}

	name := mangledName(base, args)
	c.types[key] = name
	c.queue = append(c.queue, MonoRequest{Base: base, TypeArgs: args, MangledName: name})

	return name
}

// InstantiateFunction resolves the mangled name for a generic function
// use, enqueuing a monomorphization request on first sight.
func (c *MonomorphizationCache) InstantiateFunction(base string, args []types.Type) string {
	key := manglingKey(base, args)
	if name, ok := c.functions[key]; ok {
		return name
	}

	name := mangledName(base, args)
	c.functions[key] = name
	c.queue = append(c.queue, MonoRequest{Base: base, TypeArgs: args, MangledName: name})

	return name
}

// DrainRequests invokes lower once per still-undrained request, re-entrantly
// picking up any further requests enqueued by lower itself — processing
// continues until the queue is exhausted.
func (c *MonomorphizationCache) DrainRequests(lower func(MonoRequest)) {
	for c.drained < len(c.queue) {
		req := c.queue[c.drained]
		c.drained++
		lower(req)
	}
}

// Pending reports how many requests remain undrained.
func (c *MonomorphizationCache) Pending() int {
	return len(c.queue) - c.drained
}
