// Package fault defines the shared error taxonomy for the jamhub core.
//
// Every failure raised by the store, relation, rule, cache, and cascade
// layers is a *Fault carrying a Code from the fixed taxonomy below. The
// embedding HTTP layer maps each code to a status code; the core itself
// never retries.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Code categorizes a fault.
type Code string

const (
	// CodeNotFound indicates a record or relation does not exist.
	CodeNotFound Code = "NOT_FOUND"

	// CodeConflict indicates a uniqueness violation, a duplicate relation
	// key, or a delete refused because dependents still exist.
	CodeConflict Code = "CONFLICT"

	// CodeForbidden indicates a permission or block-list denial.
	CodeForbidden Code = "FORBIDDEN"

	// CodeValidation indicates a missing required field, bad enum value,
	// illegal state transition, rule violation, or bad scoring weights.
	CodeValidation Code = "VALIDATION_ERROR"

	// CodeCycleDetected indicates a relation insert would close a cycle
	// in a directed edge set (e.g. category prerequisites).
	CodeCycleDetected Code = "CYCLE_DETECTED"
)

// Fault is a structured error with a taxonomy code and diagnostic fields.
//
// Record and Field identify what was being touched when the fault was
// raised; Details carries additional context such as the offending value
// or the rule that denied an operation.
type Fault struct {
	Code    Code
	Message string

	// Record identifies the affected record or relation ("post/post_abc",
	// "group_user"). Optional.
	Record string

	// Field names the offending field for validation faults. Optional.
	Field string

	// Details contains additional context keyed by name. Optional.
	Details map[string]string
}

// Error implements the error interface.
func (f *Fault) Error() string {
	var b strings.Builder
	b.WriteString(string(f.Code))
	b.WriteString(": ")
	b.WriteString(f.Message)
	if f.Record != "" {
		fmt.Fprintf(&b, " (record=%s)", f.Record)
	}
	if f.Field != "" {
		fmt.Fprintf(&b, " (field=%s)", f.Field)
	}
	return b.String()
}

// With adds a detail key/value pair and returns the fault for chaining.
func (f *Fault) With(key, value string) *Fault {
	if f.Details == nil {
		f.Details = make(map[string]string)
	}
	f.Details[key] = value
	return f
}

// NotFound creates a CodeNotFound fault for the given record.
func NotFound(record string) *Fault {
	return &Fault{Code: CodeNotFound, Message: "record not found", Record: record}
}

// Conflict creates a CodeConflict fault.
func Conflict(message, record string) *Fault {
	return &Fault{Code: CodeConflict, Message: message, Record: record}
}

// Forbidden creates a CodeForbidden fault.
func Forbidden(message string) *Fault {
	return &Fault{Code: CodeForbidden, Message: message}
}

// Validation creates a CodeValidation fault for a field.
func Validation(message, field string) *Fault {
	return &Fault{Code: CodeValidation, Message: message, Field: field}
}

// Cycle creates a CodeCycleDetected fault for a relation type.
func Cycle(message, relationType string) *Fault {
	return &Fault{Code: CodeCycleDetected, Message: message, Record: relationType}
}

// CodeOf extracts the taxonomy code from an error chain.
// Returns "" if the error is not a *Fault.
func CodeOf(err error) Code {
	var f *Fault
	if errors.As(err, &f) {
		return f.Code
	}
	return ""
}

// IsNotFound returns true if the error chain contains a CodeNotFound fault.
func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }

// IsConflict returns true if the error chain contains a CodeConflict fault.
func IsConflict(err error) bool { return CodeOf(err) == CodeConflict }

// IsForbidden returns true if the error chain contains a CodeForbidden fault.
func IsForbidden(err error) bool { return CodeOf(err) == CodeForbidden }

// IsValidation returns true if the error chain contains a CodeValidation fault.
func IsValidation(err error) bool { return CodeOf(err) == CodeValidation }

// IsCycle returns true if the error chain contains a CodeCycleDetected fault.
func IsCycle(err error) bool { return CodeOf(err) == CodeCycleDetected }
