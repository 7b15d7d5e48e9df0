package thir

import "vellum/internal/types"

// CoercionSite records one inserted coercion for later diagnostics
// ("implicit narrowing at line N"). Coercions are already recorded on
// THIR nodes; the flat trace exists because --emit-thir wants a single
// list to print rather than re-walking the whole module.
type CoercionSite struct {
	ExprID     uint64
	Kind       CoercionKind
	BeforeType types.Type
	AfterType  types.Type
}

// CoercionTrace accumulates CoercionSite entries in insertion order as
// ThirLower runs. One trace is owned per ThirLower invocation.
type CoercionTrace struct {
	sites []CoercionSite
}

// Record appends a coercion site to the trace.
func (t *CoercionTrace) Record(site CoercionSite) {
	t.sites = append(t.sites, site)
}

// Sites returns every recorded coercion, in insertion order.
func (t *CoercionTrace) Sites() []CoercionSite {
	return t.sites
}
