package store

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/jamhub/jamhub/internal/fault"
	"github.com/jamhub/jamhub/internal/record"
)

// Find returns all records of a type whose fields exactly match every
// filter entry, in creation order. An empty filter returns all records.
func (s *Store) Find(typ string, filters map[string]any) ([]*record.Record, error) {
	records, err := s.List(typ)
	if err != nil {
		return nil, err
	}
	if len(filters) == 0 {
		return records, nil
	}
	matched := make([]*record.Record, 0, len(records))
	for _, r := range records {
		if Matches(r, filters) {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

// Matches reports whether the record's fields satisfy every filter entry.
func Matches(r *record.Record, filters map[string]any) bool {
	for field, want := range filters {
		got, ok := r.Fields[field]
		if !ok {
			return false
		}
		if !valueEqual(got, want) {
			return false
		}
	}
	return true
}

// valueEqual compares a stored field against a filter value.
// Numeric kinds compare by value: YAML decodes whole numbers as int, so a
// float64 filter must still match.
func valueEqual(got, want any) bool {
	if gn, ok := asFloat(got); ok {
		if wn, ok := asFloat(want); ok {
			return gn == wn
		}
		return false
	}
	return got == want
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// CheckUnique verifies the record's designated fields do not collide with
// any existing non-deleted record of the same type. excludeID skips the
// record itself on update.
//
// Comparison is NFC-normalized and case-folded so "Ada" and "ada" count
// as the same username.
func (s *Store) CheckUnique(uniqueFields []string, r *record.Record, excludeID string) error {
	if len(uniqueFields) == 0 {
		return nil
	}
	existing, err := s.List(r.Type)
	if err != nil {
		return err
	}
	for _, field := range uniqueFields {
		value := r.String(field)
		if value == "" {
			continue
		}
		want := Canonical(value)
		for _, other := range existing {
			if other.ID == excludeID || other.Deleted() {
				continue
			}
			if Canonical(other.String(field)) == want {
				return fault.Conflict(
					fmt.Sprintf("%s %q already taken", field, value),
					r.Type+"/"+other.ID,
				).With("field", field)
			}
		}
	}
	return nil
}

// Canonical returns the normalized comparison form of a field value:
// NFC normalization, case folding, surrounding whitespace trimmed.
func Canonical(value string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(value)))
}
