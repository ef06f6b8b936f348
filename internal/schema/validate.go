package schema

import (
	"fmt"
	"slices"

	"github.com/jamhub/jamhub/internal/fault"
	"github.com/jamhub/jamhub/internal/record"
)

// CheckRequired verifies all required fields are present and non-empty.
func (s *ContentSpec) CheckRequired(r *record.Record) error {
	for _, field := range s.Required {
		if !r.Has(field) {
			return fault.Validation(fmt.Sprintf("required field %q is missing", field), field)
		}
		if s, ok := r.Fields[field].(string); ok && s == "" {
			return fault.Validation(fmt.Sprintf("required field %q is empty", field), field)
		}
	}
	return nil
}

// CheckEnums verifies every enum-valued field present on the record holds
// a declared value. Absent fields pass; use Defaults before validation.
func (s *ContentSpec) CheckEnums(r *record.Record) error {
	return checkEnums(s.Enums, r)
}

// CheckTransition verifies old -> new is a declared edge of the field's
// transition graph. old == new is a no-op success. States may only move
// forward along declared edges: no backward moves, no skipping.
func (s *ContentSpec) CheckTransition(field, old, new string) error {
	if old == new {
		return nil
	}
	graph, ok := s.Transitions[field]
	if !ok {
		return nil
	}
	if old == "" {
		// Unset state may initialize to any declared value.
		return nil
	}
	if slices.Contains(graph[old], new) {
		return nil
	}
	return fault.Validation(
		fmt.Sprintf("illegal transition %q -> %q", old, new), field,
	).With("from", old).With("to", new)
}

// ApplyDefaults fills unset fields from the type's default table.
func (s *ContentSpec) ApplyDefaults(r *record.Record) {
	applyDefaults(s.Defaults, r)
}

// CheckEnums verifies every enum-valued attribute present on the relation
// holds a declared value.
func (s *RelationSpec) CheckEnums(r *record.Record) error {
	return checkEnums(s.Enums, r)
}

// CheckKeys verifies all composite-key fields are present and non-empty.
func (s *RelationSpec) CheckKeys(r *record.Record) error {
	for _, field := range s.Keys {
		if r.String(field) == "" {
			return &fault.Fault{
				Code:    fault.CodeValidation,
				Message: fmt.Sprintf("missing key field %q", field),
				Field:   field,
			}
		}
	}
	return nil
}

// ApplyDefaults fills unset attributes from the relation's default table.
func (s *RelationSpec) ApplyDefaults(r *record.Record) {
	applyDefaults(s.Defaults, r)
}

func checkEnums(enums map[string][]string, r *record.Record) error {
	for field, values := range enums {
		if !r.Has(field) {
			continue
		}
		got := r.String(field)
		if !slices.Contains(values, got) {
			return fault.Validation(
				fmt.Sprintf("value %q not in enum %v", got, values), field,
			)
		}
	}
	return nil
}

func applyDefaults(defaults map[string]any, r *record.Record) {
	for field, value := range defaults {
		if !r.Has(field) {
			r.Set(field, value)
		}
	}
}
