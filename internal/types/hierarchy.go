package types

// ClassHierarchy is the class-hierarchy table Devirtualization and
// DeadMethodElimination query. Classes are held in a flat arena and
// referenced by integer index rather than by pointer; base and subclass
// links are index lookups through the byName map, so the structure has
// no self-referential pointers to keep alive or leak.
type ClassHierarchy struct {
	classes []ClassInfo
	byName  map[string]int
}

// ClassInfo is one class's hierarchy record. TransitiveSubclasses is
// precomputed eagerly by NewClassHierarchy and only ever recomputed by
// calling NewClassHierarchy again.
type ClassInfo struct {
	Name                 string
	Base                 string // "" if none
	Interfaces           []string
	DirectSubclasses     []string
	TransitiveSubclasses map[string]bool
	FinalMethods         map[string]bool
	IsSealed             bool
	IsAbstract           bool
}

// IsLeaf reports whether c has no subclasses.
func (c ClassInfo) IsLeaf() bool { return len(c.DirectSubclasses) == 0 }

// CanDevirtualize reports whether every call through c's static type can
// be devirtualized regardless of the specific method: sealed or leaf
// classes have no room for an overriding subclass to appear later.
func (c ClassInfo) CanDevirtualize() bool { return c.IsSealed || c.IsLeaf() }

// IsMethodFinal reports whether methodName is marked final on c.
func (c ClassInfo) IsMethodFinal(methodName string) bool { return c.FinalMethods[methodName] }

// NewClassHierarchy builds a ClassHierarchy from a flat list of class
// records (no TransitiveSubclasses needed — it is computed here), in the
// order external type-checker class declarations are supplied.
func NewClassHierarchy(classes []ClassInfo) *ClassHierarchy {
	h := &ClassHierarchy{byName: map[string]int{}}

	for i, c := range classes {
		if c.FinalMethods == nil {
			c.FinalMethods = map[string]bool{}
		}

		c.TransitiveSubclasses = map[string]bool{}
		h.classes = append(h.classes, c)
		h.byName[c.Name] = i
	}

	// Transitive subclasses: repeat until fixpoint since a grandchild may
	// be discovered through a child processed earlier in the same pass.
	changed := true
	for changed {
		changed = false

		for i := range h.classes {
			for _, sub := range h.classes[i].DirectSubclasses {
				if !h.classes[i].TransitiveSubclasses[sub] {
					h.classes[i].TransitiveSubclasses[sub] = true
					changed = true
				}

				if subIdx, ok := h.byName[sub]; ok {
					for grand := range h.classes[subIdx].TransitiveSubclasses {
						if !h.classes[i].TransitiveSubclasses[grand] {
							h.classes[i].TransitiveSubclasses[grand] = true
							changed = true
						}
					}
				}
			}
		}
	}

	return h
}

// Lookup returns the ClassInfo for name, and false if name is not a known
// class.
func (h *ClassHierarchy) Lookup(name string) (ClassInfo, bool) {
	if h == nil {
		return ClassInfo{}, false
	}

	i, ok := h.byName[name]
	if !ok {
		return ClassInfo{}, false
	}

	return h.classes[i], true
}

// Implementors returns the set of classes (receiver type plus every
// transitive subclass) that a virtual call through name could possibly
// dispatch to, used by DeadMethodElimination to mark every possible
// target of a virtual call reachable.
func (h *ClassHierarchy) Implementors(name string) []string {
	info, ok := h.Lookup(name)
	if !ok {
		return []string{name}
	}

	out := []string{name}
	for sub := range info.TransitiveSubclasses {
		out = append(out, sub)
	}

	return out
}
