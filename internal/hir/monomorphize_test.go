package hir

import (
	"testing"

	"vellum/internal/types"
)

func TestInstantiateTypeReusesMangledNameForSameKey(t *testing.T) {
	c := NewMonomorphizationCache()

	a := c.InstantiateType("Vec", []types.Type{types.NewPrimitive(types.PrimI32)})
	b := c.InstantiateType("Vec", []types.Type{types.NewPrimitive(types.PrimI32)})

	if a != b {
		t.Errorf("same mangling key produced different mangled names: %q vs %q", a, b)
	}

	if c.Pending() != 1 {
		t.Errorf("expected exactly one queued request after two identical uses, got %d", c.Pending())
	}
}

func TestMangledNameFlattensNestedGenerics(t *testing.T) {
	c := NewMonomorphizationCache()

	inner := types.Named("Vec", types.NewPrimitive(types.PrimI32))
	name := c.InstantiateType("Vec", []types.Type{inner})

	if name != "Vec__Vec__I32" {
		t.Errorf("mangled name = %q, want Vec__Vec__I32", name)
	}
}

func TestNoTwoKeysMapToTheSameMangledNameUnlessEqual(t *testing.T) {
	c := NewMonomorphizationCache()

	n1 := c.InstantiateType("Vec", []types.Type{types.NewPrimitive(types.PrimI32)})
	n2 := c.InstantiateType("Vec", []types.Type{types.NewPrimitive(types.PrimI64)})

	if n1 == n2 {
		t.Fatalf("distinct type arguments must not collide on the same mangled name: %q", n1)
	}
}

func TestDrainRequestsIsReentrant(t *testing.T) {
	c := NewMonomorphizationCache()
	c.InstantiateType("Vec", []types.Type{types.NewPrimitive(types.PrimI32)})

	var seen []string

	c.DrainRequests(func(req MonoRequest) {
		seen = append(seen, req.MangledName)
		// simulate discovering a further nested use while lowering this
		// instance's body.
		if req.MangledName == "Vec__I32" {
			c.InstantiateType("Box", []types.Type{types.NewPrimitive(types.PrimI32)})
		}
	})

	if len(seen) != 2 {
		t.Fatalf("expected re-entrant draining to process the newly queued request too, got %v", seen)
	}

	if c.Pending() != 0 {
		t.Errorf("expected queue fully drained, %d still pending", c.Pending())
	}
}

func TestManglingKeyNormalizesUnicodeIdentifiers(t *testing.T) {
	// "é" (single NFC codepoint) vs. "é" (NFD decomposition)
	// render as the same visible identifier and must mangle identically.
	nfc := "Vecé"
	nfd := "Vecé"

	c := NewMonomorphizationCache()

	a := c.InstantiateType(nfc, nil)
	b := c.InstantiateType(nfd, nil)

	if a != b {
		t.Errorf("visually identical Unicode identifiers mangled differently: %q vs %q", a, b)
	}
}
