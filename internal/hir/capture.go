package hir

import "vellum/internal/types"

// scope is one lexical block of the closure-capture scope stack: the set
// of names defined within it, keyed to their resolved type.
type scope map[string]types.Type

// captureTracker maintains the scope stack during lowering of one
// function body and records, per enclosing closure, which outer-scope
// variables are referenced inside it.
type captureTracker struct {
	scopes []scope
	// per closure depth: name -> access record, read and/or written
	access []map[string]*accessRecord
	// per closure depth: index in scopes of the closure's parameter scope
	closureStarts []int
}

type accessRecord struct {
	ty      types.Type
	read    bool
	written bool
}

func newCaptureTracker() *captureTracker {
	return &captureTracker{}
}

// PushScope opens a fresh lexical scope, e.g. a function or block body.
func (t *captureTracker) PushScope() {
	t.scopes = append(t.scopes, scope{})
}

// PopScope closes the innermost lexical scope.
func (t *captureTracker) PopScope() {
	t.scopes = t.scopes[:len(t.scopes)-1]
}

// Declare records that name of type ty is defined in the innermost scope.
func (t *captureTracker) Declare(name string, ty types.Type) {
	t.scopes[len(t.scopes)-1][name] = ty
}

// resolvedIn reports whether name is defined in any currently open scope,
// searching innermost first, and returns the type it was declared with.
func (t *captureTracker) resolvedIn(name string) (types.Type, bool) {
	for i := len(t.scopes) - 1; i >= 0; i-- {
		if ty, ok := t.scopes[i][name]; ok {
			return ty, true
		}
	}

	return types.Type{}, false
}

// EnterClosure begins tracking a new nested closure's free-variable
// accesses and pushes its parameter scope.
func (t *captureTracker) EnterClosure() {
	t.access = append(t.access, map[string]*accessRecord{})
	t.closureStarts = append(t.closureStarts, len(t.scopes))
	t.PushScope()
}

// closureBoundaryDepth returns the scope-stack depth at which the
// innermost closure's own parameters begin; a reference to a name
// resolved at a shallower depth is a free variable of that closure.
func (t *captureTracker) closureBoundaryDepth() int {
	return t.closureStarts[len(t.closureStarts)-1]
}

// RecordAccess notes that name (resolved to ty) was referenced while
// lowering the body of the innermost active closure, as a read and/or a
// write. If name is declared inside the closure itself (at or past the
// boundary depth), it is not a capture and is ignored.
func (t *captureTracker) RecordAccess(name string, ty types.Type, write bool) {
	if len(t.access) == 0 {
		return
	}

	boundary := t.closureBoundaryDepth()
	for i := len(t.scopes) - 1; i >= boundary; i-- {
		if _, ok := t.scopes[i][name]; ok {
			return // declared inside the closure itself, not a capture
		}
	}

	rec := t.access[len(t.access)-1][name]
	if rec == nil {
		rec = &accessRecord{ty: ty}
		t.access[len(t.access)-1][name] = rec
	}

	if write {
		rec.written = true
	} else {
		rec.read = true
	}
}

// ExitClosure pops the innermost closure's parameter scope and returns
// its resolved capture list, applying the capture-mode rules:
// by-ref if only read, by-mut-ref if any write observed, by-value if the
// closure escapes its defining scope or the captured type is Copy.
func (t *captureTracker) ExitClosure(escapes bool, isCopy func(types.Type) bool) []Capture {
	t.PopScope()

	recs := t.access[len(t.access)-1]
	t.access = t.access[:len(t.access)-1]
	t.closureStarts = t.closureStarts[:len(t.closureStarts)-1]

	var out []Capture
	for name, rec := range recs {
		mode := CaptureByRef
		switch {
		case escapes || isCopy(rec.ty):
			mode = CaptureByValue
		case rec.written:
			mode = CaptureByMutRef
		}

		out = append(out, Capture{Name: name, Ty: rec.ty, Mode: mode})
	}

	return out
}
