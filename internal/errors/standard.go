// Package errors provides standardized error messaging for the compiler
package errors

import (
	"fmt"
	"runtime"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

// CategoryInternal marks invariant violations inside the middle-end or
// its input (a bug in a pass or in the upstream type checker, never user
// error). The middle-end has no other error domain: user-facing
// conditions are diagnostics, not errors.
const CategoryInternal ErrorCategory = "INTERNAL"

// StandardError provides a consistent error format
type StandardError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Context  map[string]interface{}
	Caller   string
}

// Error implements the error interface
func (e *StandardError) Error() string {
	return fmt.Sprintf("[%s:%s] %s (caller: %s)", e.Category, e.Code, e.Message, e.Caller)
}

// NewStandardError creates a new standardized error
func NewStandardError(category ErrorCategory, code, message string, context map[string]interface{}) *StandardError {
	pc, _, _, ok := runtime.Caller(1)
	caller := "unknown"
	if ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			caller = fn.Name()
		}
	}

	return &StandardError{
		Category: category,
		Code:     code,
		Message:  message,
		Context:  context,
		Caller:   caller,
	}
}

// MissingTypeInfo reports that the upstream type checker failed to resolve
// a type for an AST node — an internal invariant violation in the
// middle-end's input, never user error.
func MissingTypeInfo(where string) *StandardError {
	return NewStandardError(CategoryInternal, "MISSING_TYPE_INFO",
		fmt.Sprintf("no resolved type available for %s", where),
		map[string]interface{}{"where": where})
}

// UnresolvedName reports a field or variant name the type environment
// could not resolve to an ordinal — also a fatal, non-recoverable
// condition during lowering.
func UnresolvedName(kind, name, owner string) *StandardError {
	return NewStandardError(CategoryInternal, "UNRESOLVED_NAME",
		fmt.Sprintf("unresolved %s %q on %s", kind, name, owner),
		map[string]interface{}{"kind": kind, "name": name, "owner": owner})
}

// BrokenInvariant reports a violated MIR/HIR structural invariant
// detected by a verifier (dominance, SSA, terminator uniqueness,...).
func BrokenInvariant(invariant, detail string) *StandardError {
	return NewStandardError(CategoryInternal, "BROKEN_INVARIANT",
		fmt.Sprintf("%s: %s", invariant, detail),
		map[string]interface{}{"invariant": invariant, "detail": detail})
}
